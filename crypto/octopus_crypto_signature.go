package crypto

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength表示携带具有恢复id的签名所需的字节长度。
const SignatureLength = 64 + 1

// Sign计算ECDSA签名。
//呼叫者必须意识到对手无法选择给定摘要。常见的解决方案是在计算签名之前对任何输入进行散列。
//生成的签名采用[R | | S | V]格式，其中V为0或1。
func SignECDSA(digestHash []byte, prv *ecdsa.PrivateKey) (sig []byte, err error) {
	if len(digestHash) != DigestLength {
		return nil, fmt.Errorf("hash is required to be exactly %d bytes (%d)", DigestLength, len(digestHash))
	}
	return gethcrypto.Sign(digestHash, prv)
}

// SignText按照personal_sign的方式对文本签名：先计算TextHash，再把V调整为27或28。
func SignText(text []byte, prv *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := SignECDSA(TextHash(text), prv)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// TextHash计算keccak256("\x19Ethereum Signed Message:\n"${message length}${message})。
//这为已签名的消息提供了上下文，并阻止了事务的签名。
func TextHash(data []byte) []byte {
	msg := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(data), data)
	return Keccak256([]byte(msg))
}

// RecoverText从personal_sign签名中恢复签名者地址。
func RecoverText(text, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes", SignatureLength)
	}
	s := make([]byte, SignatureLength)
	copy(s, sig)
	if s[64] >= 27 {
		s[64] -= 27
	}
	pub, err := gethcrypto.SigToPub(TextHash(text), s)
	if err != nil {
		return common.Address{}, err
	}
	return PubkeyToAddress(*pub), nil
}
