package rawdb

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/radiation-octopus/octopus-trade/typedb"
)

// ReadSmartAccountAddress 读取持久化的智能账户地址，不存在或格式错误时返回nil。
func ReadSmartAccountAddress(db typedb.KeyValueReader) *common.Address {
	data, err := db.Get(smartAccountAddressKey)
	if err != nil {
		if err != typedb.ErrNotFound {
			log.Warn("Failed to read smart account address", "err", err)
		}
		return nil
	}
	if !common.IsHexAddress(string(data)) {
		log.Warn("Ignoring malformed smart account address", "value", string(data))
		return nil
	}
	addr := common.HexToAddress(string(data))
	return &addr
}

// WriteSmartAccountAddress 保存智能账户地址，覆盖之前的记录。
func WriteSmartAccountAddress(db typedb.KeyValueWriter, addr common.Address) {
	if err := db.Put(smartAccountAddressKey, []byte(addr.Hex())); err != nil {
		log.Warn("Failed to store smart account address", "err", err)
	}
}

// DeleteSmartAccountAddress 删除持久化的智能账户地址。
func DeleteSmartAccountAddress(db typedb.KeyValueWriter) {
	if err := db.Delete(smartAccountAddressKey); err != nil {
		log.Warn("Failed to delete smart account address", "err", err)
	}
}
