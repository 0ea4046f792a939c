package leveldb

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/radiation-octopus/octopus-trade/typedb"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

const (
	// minCache是分配给leveldb读写缓存的最小内存量，以MB为单位，一分为二。
	minCache = 16

	// minHandles是要分配给打开的数据库文件的最小文件句柄数。
	minHandles = 16
)

//Database是一个持久的键值存储。
type Database struct {
	fn string      // 用于报告的文件名
	db *leveldb.DB // LevelDB实例

	closeOnce sync.Once
	log       log.Logger // 跟踪数据库路径的配置记录器
}

var _ typedb.KeyValueStore = (*Database)(nil)

//New返回一个包装的LevelDB对象。
func New(file string, cache int, handles int, readonly bool) (*Database, error) {
	return NewCustom(file, func(options *opt.Options) {
		// 确保我们有一些最小的缓存和文件保证
		if cache < minCache {
			cache = minCache
		}
		if handles < minHandles {
			handles = minHandles
		}
		options.OpenFilesCacheCapacity = handles
		options.BlockCacheCapacity = cache / 2 * opt.MiB
		options.WriteBuffer = cache / 4 * opt.MiB // 其中两个在内部使用
		if readonly {
			options.ReadOnly = true
		}
	})
}

//NewCustom返回一个包装的LevelDB对象。自定义函数允许调用者修改leveldb选项
func NewCustom(file string, customize func(options *opt.Options)) (*Database, error) {
	options := configureOptions(customize)
	logger := log.New("database", file)
	usedCache := options.GetBlockCacheCapacity() + options.GetWriteBuffer()*2
	logCtx := []interface{}{"cache", common.StorageSize(usedCache), "handles", options.GetOpenFilesCacheCapacity()}
	if options.ReadOnly {
		logCtx = append(logCtx, "readonly", "true")
	}
	logger.Info("Allocated cache and file handles", logCtx...)

	// 打开数据库并恢复任何潜在的损坏
	db, err := leveldb.OpenFile(file, options)
	if _, corrupted := err.(*errors.ErrCorrupted); corrupted {
		db, err = leveldb.RecoverFile(file, nil)
	}
	if err != nil {
		return nil, err
	}
	return &Database{fn: file, db: db, log: logger}, nil
}

//configureOptions设置一些默认选项，然后运行提供的setter。
func configureOptions(customizeFn func(*opt.Options)) *opt.Options {
	options := &opt.Options{
		Filter: filter.NewBloomFilter(10),
	}
	if customizeFn != nil {
		customizeFn(options)
	}
	return options
}

// Path返回数据库目录的路径。
func (db *Database) Path() string {
	return db.fn
}

// Close关闭底层数据库，可重复调用。
func (db *Database) Close() error {
	var err error
	db.closeOnce.Do(func() {
		if err = db.db.Close(); err != nil {
			db.log.Error("Failed to close database", "err", err)
		}
	})
	return err
}

// Has检索键值存储中是否存在键。
func (db *Database) Has(key []byte) (bool, error) {
	return db.db.Has(key, nil)
}

// Get检索给定的键（如果它存在于键值存储中）。
func (db *Database) Get(key []byte) ([]byte, error) {
	dat, err := db.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, typedb.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return dat, nil
}

// Put将给定值插入键值存储。
func (db *Database) Put(key []byte, value []byte) error {
	return db.db.Put(key, value, nil)
}

// Delete从键值存储中删除键。
func (db *Database) Delete(key []byte) error {
	return db.db.Delete(key, nil)
}
