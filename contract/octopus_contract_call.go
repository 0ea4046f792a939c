package contract

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/holiman/uint256"
	"github.com/radiation-octopus/octopus-trade/crypto"
)

// abiCacheSize是已解析ABI的缓存条目数。
const abiCacheSize = 64

var (
	errUnknownMethod    = errors.New("method not found in abi")
	errShortCalldata    = errors.New("calldata shorter than selector")
	errSelectorMismatch = errors.New("calldata selector does not match method")

	abiCache, _ = lru.New(abiCacheSize)
)

//Call是执行核心的工作单元：目标地址加上一次由ABI描述的函数调用，与最终承载它的执行路径无关。
type Call struct {
	To     common.Address // 目标合约
	Method abi.Method     // 函数描述：名称与参数类型
	Args   []interface{}  // 参数值，顺序与Method.Inputs一致
	Value  *uint256.Int   // 可选的原生币转账，nil表示0
}

// Message是Call序列化后的形式，交给批量路径或直接签名路径。
type Message struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

// ParseABI解析ABI JSON并缓存结果。
func ParseABI(abiJSON string) (abi.ABI, error) {
	key := hashKey(abiJSON)
	if cached, ok := abiCache.Get(key); ok {
		return cached.(abi.ABI), nil
	}
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return abi.ABI{}, err
	}
	abiCache.Add(key, parsed)
	return parsed, nil
}

func hashKey(abiJSON string) common.Hash {
	return crypto.Keccak256Hash([]byte(abiJSON))
}

// NewCall按方法名从ABI JSON中查找函数并构造Call。参数在构造时就做一次编码检查。
func NewCall(to common.Address, abiJSON, name string, args ...interface{}) (Call, error) {
	parsed, err := ParseABI(abiJSON)
	if err != nil {
		return Call{}, err
	}
	method, ok := parsed.Methods[name]
	if !ok {
		return Call{}, fmt.Errorf("%w: %s", errUnknownMethod, name)
	}
	call := Call{To: to, Method: method, Args: args}
	if _, err := call.Encode(); err != nil {
		return Call{}, err
	}
	return call, nil
}

// WithValue返回附带原生币转账的副本。
func (c Call) WithValue(v *uint256.Int) Call {
	c.Value = v
	return c
}

// Calldata返回ABI编码的调用数据：4字节选择器加参数。
func (c Call) Calldata() ([]byte, error) {
	packed, err := c.Method.Inputs.Pack(c.Args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", c.Method.Name, err)
	}
	return append(append([]byte{}, c.Method.ID...), packed...), nil
}

// Encode把Call序列化为(目标地址, 调用数据, 转账金额)。
func (c Call) Encode() (Message, error) {
	data, err := c.Calldata()
	if err != nil {
		return Message{}, err
	}
	value := new(big.Int)
	if c.Value != nil {
		value = c.Value.ToBig()
	}
	return Message{To: c.To, Data: data, Value: value}, nil
}

// String实现stringer接口，用于日志。
func (c Call) String() string {
	return fmt.Sprintf("%s@%s", c.Method.Name, c.To.Hex())
}

// DecodeArgs把调用数据按给定方法解码为参数列表。
func DecodeArgs(method abi.Method, data []byte) ([]interface{}, error) {
	if len(data) < 4 {
		return nil, errShortCalldata
	}
	if !bytes.Equal(data[:4], method.ID) {
		return nil, errSelectorMismatch
	}
	return method.Inputs.Unpack(data[4:])
}

// EncodeAll按顺序编码一组Call。
func EncodeAll(calls []Call) ([]Message, error) {
	msgs := make([]Message, len(calls))
	for i, call := range calls {
		msg, err := call.Encode()
		if err != nil {
			return nil, fmt.Errorf("call %d (%s): %w", i, call, err)
		}
		msgs[i] = msg
	}
	return msgs, nil
}
