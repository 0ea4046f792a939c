// Package memorydb 实现基于内存的键值存储，用于测试和临时会话。
package memorydb

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/radiation-octopus/octopus-trade/typedb"
)

// 如果在调用数据访问操作时已关闭内存数据库，则返回errMemorydbClosed。
var errMemorydbClosed = errors.New("database closed")

//Database是一个短暂的键值存储。
type Database struct {
	db   map[string][]byte
	lock sync.RWMutex
}

var _ typedb.KeyValueStore = (*Database)(nil)

// New返回一个空的内存数据库。
func New() *Database {
	return &Database{
		db: make(map[string][]byte),
	}
}

// Close释放内存，之后的访问都返回错误。
func (db *Database) Close() error {
	db.lock.Lock()
	defer db.lock.Unlock()

	db.db = nil
	return nil
}

//Has检索键值存储中是否存在键。
func (db *Database) Has(key []byte) (bool, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.db == nil {
		return false, errMemorydbClosed
	}
	_, ok := db.db[string(key)]
	return ok, nil
}

//Get检索给定的键（如果它存在于键值存储中）。
func (db *Database) Get(key []byte) ([]byte, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.db == nil {
		return nil, errMemorydbClosed
	}
	if entry, ok := db.db[string(key)]; ok {
		return common.CopyBytes(entry), nil
	}
	return nil, typedb.ErrNotFound
}

//Put将给定值插入键值存储。
func (db *Database) Put(key []byte, value []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.db == nil {
		return errMemorydbClosed
	}
	db.db[string(key)] = common.CopyBytes(value)
	return nil
}

//Delete从键值存储中删除键。
func (db *Database) Delete(key []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.db == nil {
		return errMemorydbClosed
	}
	delete(db.db, string(key))
	return nil
}

// Len返回存储的条目数。
func (db *Database) Len() int {
	db.lock.RLock()
	defer db.lock.RUnlock()

	return len(db.db)
}
