package typedb

import (
	"errors"
	"io"
)

// ErrNotFound 键不存在时由所有后端返回
var ErrNotFound = errors.New("not found")

// KeyValueReader 读取键值数据
type KeyValueReader interface {
	// Has 是否存在键
	Has(key []byte) (bool, error)

	// Get 检索键对应的值，不存在时返回 ErrNotFound
	Get(key []byte) ([]byte, error)
}

// KeyValueWriter 写入键值数据
type KeyValueWriter interface {
	// Put 将给定值插入键值数据存储。
	Put(key []byte, value []byte) error

	// Delete 从键值数据存储中删除键。删除不存在的键不是错误。
	Delete(key []byte) error
}

// KeyValueStore 客户端持久化所需的全部方法
type KeyValueStore interface {
	KeyValueReader
	KeyValueWriter
	io.Closer
}
