package accounts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
)

// ChainBackend是填充交易默认值并广播交易所需的链访问能力，ethclient.Client满足该接口。
type ChainBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// TransactionArgs表示eth_sendTransaction请求中构造新事务的参数。
type TransactionArgs struct {
	From                 *common.Address `json:"from"`
	To                   *common.Address `json:"to"`
	Gas                  *hexutil.Uint64 `json:"gas,omitempty"`
	GasPrice             *hexutil.Big    `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
	Value                *hexutil.Big    `json:"value,omitempty"`
	Nonce                *hexutil.Uint64 `json:"nonce,omitempty"`

	// 出于向后兼容的原因，我们接受“数据”和“输入”。
	//“input”是一个较新的名称，应该是客户的首选。
	Data  *hexutil.Bytes `json:"data,omitempty"`
	Input *hexutil.Bytes `json:"input,omitempty"`

	ChainID *hexutil.Big `json:"chainId,omitempty"`
}

// 从检索事务发送方地址。
func (args *TransactionArgs) from() common.Address {
	if args.From == nil {
		return common.Address{}
	}
	return *args.From
}

// 数据检索事务调用数据。首选输入字段。
func (args *TransactionArgs) data() []byte {
	if args.Input != nil {
		return *args.Input
	}
	if args.Data != nil {
		return *args.Data
	}
	return nil
}

// setDefaults为未指定的tx字段填写默认值。
func (args *TransactionArgs) setDefaults(ctx context.Context, b ChainBackend) error {
	if args.GasPrice != nil && (args.MaxFeePerGas != nil || args.MaxPriorityFeePerGas != nil) {
		return errors.New("both gasPrice and (maxFeePerGas or maxPriorityFeePerGas) specified")
	}
	if args.GasPrice == nil && (args.MaxPriorityFeePerGas == nil || args.MaxFeePerGas == nil) {
		head, err := b.HeaderByNumber(ctx, nil)
		if err != nil {
			return err
		}
		if head.BaseFee != nil {
			// 伦敦之后默认为1559：maxFee = tip + 2*baseFee
			if args.MaxPriorityFeePerGas == nil {
				tip, err := b.SuggestGasTipCap(ctx)
				if err != nil {
					return err
				}
				args.MaxPriorityFeePerGas = (*hexutil.Big)(tip)
			}
			if args.MaxFeePerGas == nil {
				gasFeeCap := new(big.Int).Add(
					(*big.Int)(args.MaxPriorityFeePerGas),
					new(big.Int).Mul(head.BaseFee, big.NewInt(2)),
				)
				args.MaxFeePerGas = (*hexutil.Big)(gasFeeCap)
			}
		} else {
			if args.MaxFeePerGas != nil || args.MaxPriorityFeePerGas != nil {
				return errors.New("maxFeePerGas or maxPriorityFeePerGas specified but london is not active yet")
			}
			price, err := b.SuggestGasPrice(ctx)
			if err != nil {
				return err
			}
			args.GasPrice = (*hexutil.Big)(price)
		}
	}
	if args.MaxFeePerGas != nil && args.MaxPriorityFeePerGas != nil {
		if args.MaxFeePerGas.ToInt().Cmp(args.MaxPriorityFeePerGas.ToInt()) < 0 {
			return fmt.Errorf("maxFeePerGas (%v) < maxPriorityFeePerGas (%v)", args.MaxFeePerGas, args.MaxPriorityFeePerGas)
		}
	}
	if args.Value == nil {
		args.Value = new(hexutil.Big)
	}
	if args.Nonce == nil {
		nonce, err := b.PendingNonceAt(ctx, args.from())
		if err != nil {
			return err
		}
		args.Nonce = (*hexutil.Uint64)(&nonce)
	}
	if args.Data != nil && args.Input != nil && !bytes.Equal(*args.Data, *args.Input) {
		return errors.New(`both "data" and "input" are set and not equal. Please use "input" to pass transaction call data`)
	}
	if args.To == nil && len(args.data()) == 0 {
		return errors.New(`contract creation without any data provided`)
	}
	// 如有必要，估计gas用量。
	if args.Gas == nil {
		msg := ethereum.CallMsg{
			From:  args.from(),
			To:    args.To,
			Value: args.Value.ToInt(),
			Data:  args.data(),
		}
		if args.GasPrice != nil {
			msg.GasPrice = args.GasPrice.ToInt()
		} else {
			msg.GasFeeCap = args.MaxFeePerGas.ToInt()
			msg.GasTipCap = args.MaxPriorityFeePerGas.ToInt()
		}
		estimated, err := b.EstimateGas(ctx, msg)
		if err != nil {
			return err
		}
		args.Gas = (*hexutil.Uint64)(&estimated)
		log.Trace("Estimate gas usage automatically", "gas", estimated)
	}
	if args.ChainID == nil {
		id, err := b.ChainID(ctx)
		if err != nil {
			return err
		}
		args.ChainID = (*hexutil.Big)(id)
	}
	return nil
}

// toTransaction将参数转换为事务。这假设已调用setDefaults。
func (args *TransactionArgs) toTransaction() *types.Transaction {
	var data types.TxData
	switch {
	case args.MaxFeePerGas != nil:
		data = &types.DynamicFeeTx{
			To:        args.To,
			ChainID:   (*big.Int)(args.ChainID),
			Nonce:     uint64(*args.Nonce),
			Gas:       uint64(*args.Gas),
			GasFeeCap: (*big.Int)(args.MaxFeePerGas),
			GasTipCap: (*big.Int)(args.MaxPriorityFeePerGas),
			Value:     (*big.Int)(args.Value),
			Data:      args.data(),
		}
	default:
		data = &types.LegacyTx{
			To:       args.To,
			Nonce:    uint64(*args.Nonce),
			Gas:      uint64(*args.Gas),
			GasPrice: (*big.Int)(args.GasPrice),
			Value:    (*big.Int)(args.Value),
			Data:     args.data(),
		}
	}
	return types.NewTx(data)
}
