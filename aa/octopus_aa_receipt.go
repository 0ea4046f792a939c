package aa

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Receipt eth_getUserOperationReceipt 的返回
type Receipt struct {
	UserOpHash    common.Hash    `json:"userOpHash"`
	EntryPoint    common.Address `json:"entryPoint"`
	Sender        common.Address `json:"sender"`
	Nonce         *hexutil.Big   `json:"nonce"`
	Paymaster     common.Address `json:"paymaster"`
	ActualGasCost *hexutil.Big   `json:"actualGasCost"`
	ActualGasUsed *hexutil.Big   `json:"actualGasUsed"`
	Success       bool           `json:"success"`
	Reason        string         `json:"reason,omitempty"` // 失败时的回滚原因
	Receipt       TxReceipt      `json:"receipt"`
}

// TxReceipt 打包该用户操作的外层交易
type TxReceipt struct {
	TransactionHash common.Hash  `json:"transactionHash"`
	BlockHash       common.Hash  `json:"blockHash"`
	BlockNumber     *hexutil.Big `json:"blockNumber"`
}

// BlockNumber 返回打包区块高度，未知时为nil
func (r *Receipt) BlockNumber() *big.Int {
	if r.Receipt.BlockNumber == nil {
		return nil
	}
	return r.Receipt.BlockNumber.ToInt()
}
