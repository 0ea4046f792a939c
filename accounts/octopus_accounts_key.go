package accounts

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/radiation-octopus/octopus-trade/crypto"
)

type Key struct {
	// 版本4“随机”表示未从密钥数据派生的唯一id
	Id uuid.UUID
	// 为了简化查找，我们还存储地址
	Address common.Address
	// 我们只存储privkey，因为pubkey/address可以从中派生。此结构中的privkey始终为纯文本
	PrivateKey *ecdsa.PrivateKey
}

func newKeyFromECDSA(privateKeyECDSA *ecdsa.PrivateKey) *Key {
	id, err := uuid.NewRandom()
	if err != nil {
		panic(fmt.Sprintf("Could not create random uuid: %v", err))
	}
	return &Key{
		Id:         id,
		Address:    crypto.PubkeyToAddress(privateKeyECDSA.PublicKey),
		PrivateKey: privateKeyECDSA,
	}
}

// NewKeyFromHex从十六进制私钥创建Key。
func NewKeyFromHex(hexkey string) (*Key, error) {
	priv, err := crypto.HexToECDSA(hexkey)
	if err != nil {
		return nil, err
	}
	return newKeyFromECDSA(priv), nil
}

// LoadKey从磁盘加载并解密web3 v3密钥文件。
func LoadKey(file, auth string) (*Key, error) {
	keyjson, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	k, err := keystore.DecryptKey(keyjson, auth)
	if err != nil {
		if err == keystore.ErrDecrypt {
			if auth == "" {
				return nil, NewAuthNeededError("password")
			}
			return nil, ErrInvalidPassphrase
		}
		return nil, err
	}
	return &Key{Id: k.Id, Address: k.Address, PrivateKey: k.PrivateKey}, nil
}

// Account返回该密钥对应的帐户，URL指向密钥文件。
func (k *Key) Account(path string) Account {
	return Account{Address: k.Address, URL: URL{Scheme: KeyStoreScheme, Path: path}}
}

// Zero清除内存中的私钥。
func (k *Key) Zero() {
	crypto.ZeroKey(k.PrivateKey)
}

// StoreKey用auth加密密钥并写入file，目录不存在时创建。
func StoreKey(file string, k *Key, auth string, scryptN, scryptP int) error {
	keyjson, err := keystore.EncryptKey(&keystore.Key{Id: k.Id, Address: k.Address, PrivateKey: k.PrivateKey}, auth, scryptN, scryptP)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(file), 0700); err != nil {
		return err
	}
	return os.WriteFile(file, keyjson, 0600)
}
