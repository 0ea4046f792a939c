package crypto

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// hasherPool保存LegacyKeccak256哈希器，用户操作哈希和ABI缓存键会频繁调用。
var hasherPool = sync.Pool{
	New: func() interface{} { return sha3.NewLegacyKeccak256() },
}

// Keccak256Hash计算并返回输入数据的Keccak256哈希，将其转换为内部哈希数据结构。
func Keccak256Hash(data ...[]byte) (h common.Hash) {
	sha := hasherPool.Get().(KeccakState)
	defer hasherPool.Put(sha)
	sha.Reset()
	for _, b := range data {
		sha.Write(b)
	}
	sha.Read(h[:])
	return h
}
