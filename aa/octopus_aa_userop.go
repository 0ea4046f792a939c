// Package aa 定义 ERC-4337 (EntryPoint v0.6) 的用户操作以及智能账户合约的编码。
package aa

import (
	"encoding/json"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/radiation-octopus/octopus-trade/crypto"
)

// DummySignature 估算阶段使用的占位签名，长度与真实 ECDSA 签名一致
var DummySignature = common.FromHex("0xfffffffffffffffffffffffffffffff0000000000000000000000000000000007aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1c")

var errMissingField = errors.New("missing required field in user operation")

//UserOperation ERC-4337 v0.6 用户操作
type UserOperation struct {
	Sender               common.Address `json:"sender"`
	Nonce                *big.Int       `json:"nonce"`
	InitCode             []byte         `json:"initCode"`
	CallData             []byte         `json:"callData"`
	CallGasLimit         *big.Int       `json:"callGasLimit"`
	VerificationGasLimit *big.Int       `json:"verificationGasLimit"`
	PreVerificationGas   *big.Int       `json:"preVerificationGas"`
	MaxFeePerGas         *big.Int       `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *big.Int       `json:"maxPriorityFeePerGas"`
	PaymasterAndData     []byte         `json:"paymasterAndData"` // 前20字节为paymaster地址
	Signature            []byte         `json:"signature"`
}

type userOperationJSON struct {
	Sender               *common.Address `json:"sender"`
	Nonce                *hexutil.Big    `json:"nonce"`
	InitCode             hexutil.Bytes   `json:"initCode"`
	CallData             hexutil.Bytes   `json:"callData"`
	CallGasLimit         *hexutil.Big    `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Big    `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Big    `json:"preVerificationGas"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas"`
	PaymasterAndData     hexutil.Bytes   `json:"paymasterAndData"`
	Signature            hexutil.Bytes   `json:"signature"`
}

// MarshalJSON 按 bundler 的线上格式输出：数值为十六进制数量，字节为 0x 前缀十六进制
func (op UserOperation) MarshalJSON() ([]byte, error) {
	enc := userOperationJSON{
		Sender:               &op.Sender,
		Nonce:                bigOrZero(op.Nonce),
		InitCode:             orEmpty(op.InitCode),
		CallData:             orEmpty(op.CallData),
		CallGasLimit:         bigOrZero(op.CallGasLimit),
		VerificationGasLimit: bigOrZero(op.VerificationGasLimit),
		PreVerificationGas:   bigOrZero(op.PreVerificationGas),
		MaxFeePerGas:         bigOrZero(op.MaxFeePerGas),
		MaxPriorityFeePerGas: bigOrZero(op.MaxPriorityFeePerGas),
		PaymasterAndData:     orEmpty(op.PaymasterAndData),
		Signature:            orEmpty(op.Signature),
	}
	return json.Marshal(&enc)
}

// UnmarshalJSON 解析线上格式，sender 与 nonce 必须存在
func (op *UserOperation) UnmarshalJSON(input []byte) error {
	var dec userOperationJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	if dec.Sender == nil || dec.Nonce == nil {
		return errMissingField
	}
	op.Sender = *dec.Sender
	op.Nonce = dec.Nonce.ToInt()
	op.InitCode = dec.InitCode
	op.CallData = dec.CallData
	op.CallGasLimit = (*big.Int)(dec.CallGasLimit)
	op.VerificationGasLimit = (*big.Int)(dec.VerificationGasLimit)
	op.PreVerificationGas = (*big.Int)(dec.PreVerificationGas)
	op.MaxFeePerGas = (*big.Int)(dec.MaxFeePerGas)
	op.MaxPriorityFeePerGas = (*big.Int)(dec.MaxPriorityFeePerGas)
	op.PaymasterAndData = dec.PaymasterAndData
	op.Signature = dec.Signature
	return nil
}

func bigOrZero(b *big.Int) *hexutil.Big {
	if b == nil {
		return new(hexutil.Big)
	}
	return (*hexutil.Big)(b)
}

func orEmpty(b []byte) hexutil.Bytes {
	if b == nil {
		return hexutil.Bytes{}
	}
	return b
}

// PaymasterAddress 返回 paymaster 地址，没有时为零地址
func (op *UserOperation) PaymasterAddress() common.Address {
	if len(op.PaymasterAndData) < common.AddressLength {
		return common.Address{}
	}
	return common.BytesToAddress(op.PaymasterAndData[:common.AddressLength])
}

// HasPaymaster 判断是否由 paymaster 代付
func (op *UserOperation) HasPaymaster() bool {
	return op.PaymasterAddress() != (common.Address{})
}

// Copy 深拷贝，签名前后互不影响
func (op *UserOperation) Copy() *UserOperation {
	cpy := *op
	cpy.InitCode = common.CopyBytes(op.InitCode)
	cpy.CallData = common.CopyBytes(op.CallData)
	cpy.PaymasterAndData = common.CopyBytes(op.PaymasterAndData)
	cpy.Signature = common.CopyBytes(op.Signature)
	for _, p := range []**big.Int{&cpy.Nonce, &cpy.CallGasLimit, &cpy.VerificationGasLimit, &cpy.PreVerificationGas, &cpy.MaxFeePerGas, &cpy.MaxPriorityFeePerGas} {
		if *p != nil {
			*p = new(big.Int).Set(*p)
		}
	}
	return &cpy
}

var (
	addressT, _ = abi.NewType("address", "", nil)
	uint256T, _ = abi.NewType("uint256", "", nil)
	bytes32T, _ = abi.NewType("bytes32", "", nil)

	packArgs = abi.Arguments{
		{Type: addressT}, {Type: uint256T}, {Type: bytes32T}, {Type: bytes32T},
		{Type: uint256T}, {Type: uint256T}, {Type: uint256T}, {Type: uint256T}, {Type: uint256T},
		{Type: bytes32T},
	}
	hashArgs = abi.Arguments{{Type: bytes32T}, {Type: addressT}, {Type: uint256T}}
)

// Pack 按 EntryPoint v0.6 规则打包，签名不参与，动态字段先做 keccak
func (op *UserOperation) Pack() ([]byte, error) {
	return packArgs.Pack(
		op.Sender,
		bigOrZero(op.Nonce).ToInt(),
		crypto.Keccak256Hash(op.InitCode),
		crypto.Keccak256Hash(op.CallData),
		bigOrZero(op.CallGasLimit).ToInt(),
		bigOrZero(op.VerificationGasLimit).ToInt(),
		bigOrZero(op.PreVerificationGas).ToInt(),
		bigOrZero(op.MaxFeePerGas).ToInt(),
		bigOrZero(op.MaxPriorityFeePerGas).ToInt(),
		crypto.Keccak256Hash(op.PaymasterAndData),
	)
}

// Hash 计算用户操作哈希 keccak256(abi.encode(keccak256(pack(op)), entryPoint, chainId))，
// 该值同时作为 bundler 返回的操作 id
func (op *UserOperation) Hash(entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	packed, err := op.Pack()
	if err != nil {
		return common.Hash{}, err
	}
	enc, err := hashArgs.Pack(crypto.Keccak256Hash(packed), entryPoint, chainID)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}
