package aa

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/radiation-octopus/octopus-trade/contract"
	"github.com/radiation-octopus/octopus-trade/crypto"
)

// AccountABI 智能账户的执行入口
const AccountABI = `[
	{"inputs":[{"name":"dest","type":"address"},{"name":"value","type":"uint256"},{"name":"func","type":"bytes"}],"name":"execute","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"dest","type":"address[]"},{"name":"value","type":"uint256[]"},{"name":"func","type":"bytes[]"}],"name":"executeBatch","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// EntryPointABI 只需要 getNonce
const EntryPointABI = `[
	{"inputs":[{"name":"sender","type":"address"},{"name":"key","type":"uint192"}],"name":"getNonce","outputs":[{"name":"nonce","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// FactoryABI 账户工厂
const FactoryABI = `[
	{"inputs":[{"name":"owner","type":"address"},{"name":"salt","type":"uint256"}],"name":"createAccount","outputs":[{"name":"ret","type":"address"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"owner","type":"address"},{"name":"salt","type":"uint256"}],"name":"getAddress","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

var (
	// EIP-1167 最小代理字节码的前后缀，中间是实现合约地址
	proxyPrefix = common.FromHex("0x3d602d80600a3d3981f3363d3d373d3d3d363d73")
	proxySuffix = common.FromHex("0x5af43d82803e903d91602b57fd5bf3")

	saltArgs = abi.Arguments{{Type: addressT}, {Type: uint256T}, {Type: uint256T}}

	errNoCalls     = errors.New("no calls to encode")
	errNotExecute  = errors.New("calldata is not an account execution")
	errBatchLength = errors.New("executeBatch argument length mismatch")
)

// Salt 计算 CREATE2 盐值 keccak256(abi.encode(owner, chainId, index))
func Salt(owner common.Address, chainID *big.Int, index uint64) ([32]byte, error) {
	enc, err := saltArgs.Pack(owner, chainID, new(big.Int).SetUint64(index))
	if err != nil {
		return [32]byte{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

// ProxyInitCode 返回指向 implementation 的最小代理部署字节码
func ProxyInitCode(implementation common.Address) []byte {
	code := make([]byte, 0, len(proxyPrefix)+common.AddressLength+len(proxySuffix))
	code = append(code, proxyPrefix...)
	code = append(code, implementation.Bytes()...)
	return append(code, proxySuffix...)
}

// CounterfactualAddress 计算账户部署前即可确定的地址。纯函数，不访问链。
func CounterfactualAddress(factory, implementation, owner common.Address, chainID *big.Int) (common.Address, error) {
	salt, err := Salt(owner, chainID, 0)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.CreateAddress2(factory, salt, crypto.Keccak256(ProxyInitCode(implementation))), nil
}

// InitCode 返回 factory ++ createAccount(owner, salt)，仅在账户尚未部署时附加
func InitCode(factory, owner common.Address, salt [32]byte) ([]byte, error) {
	call, err := contract.NewCall(factory, FactoryABI, "createAccount", owner, new(big.Int).SetBytes(salt[:]))
	if err != nil {
		return nil, err
	}
	data, err := call.Calldata()
	if err != nil {
		return nil, err
	}
	return append(factory.Bytes(), data...), nil
}

// EncodeExecute 把有序的调用编码为账户执行数据：一个调用用 execute，多个用 executeBatch，
// 顺序与输入一致
func EncodeExecute(account common.Address, msgs []contract.Message) ([]byte, error) {
	var (
		call contract.Call
		err  error
	)
	switch len(msgs) {
	case 0:
		return nil, errNoCalls
	case 1:
		call, err = contract.NewCall(account, AccountABI, "execute", msgs[0].To, valueOrZero(msgs[0].Value), msgs[0].Data)
	default:
		var (
			dests  = make([]common.Address, len(msgs))
			values = make([]*big.Int, len(msgs))
			datas  = make([][]byte, len(msgs))
		)
		for i, msg := range msgs {
			dests[i], values[i], datas[i] = msg.To, valueOrZero(msg.Value), msg.Data
		}
		call, err = contract.NewCall(account, AccountABI, "executeBatch", dests, values, datas)
	}
	if err != nil {
		return nil, err
	}
	return call.Calldata()
}

// DecodeExecute 是 EncodeExecute 的逆操作
func DecodeExecute(data []byte) ([]contract.Message, error) {
	parsed, err := contract.ParseABI(AccountABI)
	if err != nil {
		return nil, err
	}
	if len(data) < 4 {
		return nil, errNotExecute
	}
	method, err := parsed.MethodById(data[:4])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errNotExecute, err)
	}
	args, err := contract.DecodeArgs(*method, data)
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "execute":
		return []contract.Message{{
			To:    args[0].(common.Address),
			Value: args[1].(*big.Int),
			Data:  args[2].([]byte),
		}}, nil
	case "executeBatch":
		dests, values, datas := args[0].([]common.Address), args[1].([]*big.Int), args[2].([][]byte)
		if len(dests) != len(values) || len(dests) != len(datas) {
			return nil, errBatchLength
		}
		msgs := make([]contract.Message, len(dests))
		for i := range dests {
			msgs[i] = contract.Message{To: dests[i], Value: values[i], Data: datas[i]}
		}
		return msgs, nil
	}
	return nil, errNotExecute
}

// GetNonceData 返回 EntryPoint.getNonce(sender, 0) 的调用数据
func GetNonceData(entryPoint, sender common.Address) ([]byte, error) {
	call, err := contract.NewCall(entryPoint, EntryPointABI, "getNonce", sender, new(big.Int))
	if err != nil {
		return nil, err
	}
	return call.Calldata()
}

// UnpackNonce 解析 getNonce 的返回值
func UnpackNonce(output []byte) (*big.Int, error) {
	parsed, err := contract.ParseABI(EntryPointABI)
	if err != nil {
		return nil, err
	}
	out, err := parsed.Unpack("getNonce", output)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
