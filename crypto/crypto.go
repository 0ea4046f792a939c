package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

// DigestLength设置签名摘要的精确长度
const DigestLength = 32

var (
	secp256k1N, _ = new(big.Int).SetString("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141", 16)

	errInvalidKeyLength = errors.New("invalid private key length, need 256 bits")
)

//KeccakState包裹sha3。状态除了通常的散列方法外，它还支持读取以从散列状态获取可变数量的数据。Read比Sum快，因为它不复制内部状态，但也修改内部状态。
type KeccakState interface {
	hash.Hash
	Read([]byte) (int, error)
}

// NewKeccakState创建新的KeccakState
func NewKeccakState() KeccakState {
	return sha3.NewLegacyKeccak256().(KeccakState)
}

// Keccak256计算并返回输入数据的Keccak256哈希。
func Keccak256(data ...[]byte) []byte {
	b := make([]byte, 32)
	d := NewKeccakState()
	for _, b := range data {
		d.Write(b)
	}
	d.Read(b)
	return b
}

// CreateAddress2按照EIP-1014在给定工厂地址、盐和初始化代码哈希的情况下创建地址。
//address = keccak256(0xff ++ factory ++ salt ++ initCodeHash)[12:]
func CreateAddress2(factory common.Address, salt [32]byte, initCodeHash []byte) common.Address {
	return common.BytesToAddress(Keccak256([]byte{0xff}, factory.Bytes(), salt[:], initCodeHash)[12:])
}

// PubkeyToAddress返回公钥对应的地址。
func PubkeyToAddress(p ecdsa.PublicKey) common.Address {
	return gethcrypto.PubkeyToAddress(p)
}

// ToECDSA创建具有给定D值的私钥，长度必须严格为256位。
func ToECDSA(d []byte) (*ecdsa.PrivateKey, error) {
	if len(d) != 32 {
		return nil, errInvalidKeyLength
	}
	priv := new(big.Int).SetBytes(d)
	if priv.Sign() <= 0 {
		return nil, fmt.Errorf("invalid private key, zero or negative")
	}
	if priv.Cmp(secp256k1N) >= 0 {
		return nil, fmt.Errorf("invalid private key, >=N")
	}
	return gethcrypto.ToECDSA(d)
}

//HexToECDSA解析secp256k1私钥，允许0x前缀。
func HexToECDSA(hexkey string) (*ecdsa.PrivateKey, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(hexkey), "0x"))
	if byteErr, ok := err.(hex.InvalidByteError); ok {
		return nil, fmt.Errorf("invalid hex character %q in private key", byte(byteErr))
	} else if err != nil {
		return nil, errors.New("invalid hex data for private key")
	}
	defer zeroBytes(b)
	return ToECDSA(b)
}

// 从ECDSA将私钥导出到二进制转储。
func FromECDSA(priv *ecdsa.PrivateKey) []byte {
	if priv == nil {
		return nil
	}
	return gethcrypto.FromECDSA(priv)
}

// ZeroKey将私钥的D值清零。
func ZeroKey(k *ecdsa.PrivateKey) {
	if k == nil || k.D == nil {
		return
	}
	b := k.D.Bits()
	for i := range b {
		b[i] = 0
	}
}

func zeroBytes(bytes []byte) {
	for i := range bytes {
		bytes[i] = 0
	}
}
