package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/radiation-octopus/octopus-trade/crypto"
)

// KeyProvider用单个本地密钥实现请求/响应签名提供者接口，
//对外表现与浏览器注入的EIP-1193提供者相同。
type KeyProvider struct {
	account Account      // 此提供者包含的单个帐户
	key     *Key         // 帐户的明文密钥
	backend ChainBackend // 填充交易默认值并广播

	mu     sync.Mutex // 串行化nonce分配
	closed bool
}

// NewKeyProvider创建由给定密钥支持的提供者。
func NewKeyProvider(key *Key, url URL, backend ChainBackend) *KeyProvider {
	return &KeyProvider{
		account: Account{Address: key.Address, URL: url},
		key:     key,
		backend: backend,
	}
}

// Account返回提供者唯一的帐户。
func (p *KeyProvider) Account() Account {
	return p.account
}

// Close清除密钥，之后的请求都会失败。
func (p *KeyProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		p.closed = true
		p.key.Zero()
	}
	return nil
}

// Request按方法名分派请求，参数与响应都使用JSON-RPC编码。
func (p *KeyProvider) Request(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrProviderClosed
	}
	switch method {
	case "eth_requestAccounts", "eth_accounts":
		return json.Marshal([]common.Address{p.account.Address})

	case "eth_chainId":
		id, err := p.backend.ChainID(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal((*hexutil.Big)(id))

	case "personal_sign":
		var (
			data hexutil.Bytes
			addr common.Address
		)
		if err := decodeParams(params, &data, &addr); err != nil {
			return nil, err
		}
		sig, err := p.signText(addr, data)
		if err != nil {
			return nil, err
		}
		return json.Marshal(hexutil.Bytes(sig))

	case "eth_sendTransaction":
		var args TransactionArgs
		if err := decodeParams(params, &args); err != nil {
			return nil, err
		}
		hash, err := p.sendTransaction(ctx, args)
		if err != nil {
			return nil, err
		}
		return json.Marshal(hash)
	}
	return nil, fmt.Errorf("%w: %s", ErrNotSupported, method)
}

//signText尝试使用给定帐户对给定文本签名。
//如果提供者没有包装此特定帐户，将返回一个错误以避免帐户泄漏。
func (p *KeyProvider) signText(addr common.Address, text []byte) ([]byte, error) {
	if addr != p.account.Address {
		return nil, ErrUnknownAccount
	}
	return crypto.SignText(text, p.key.PrivateKey)
}

// sendTransaction填写默认值，使用本地密钥签名并广播。
func (p *KeyProvider) sendTransaction(ctx context.Context, args TransactionArgs) (common.Hash, error) {
	if args.From == nil {
		from := p.account.Address
		args.From = &from
	}
	if *args.From != p.account.Address {
		return common.Hash{}, ErrUnknownAccount
	}
	if err := args.setDefaults(ctx, p.backend); err != nil {
		return common.Hash{}, err
	}
	tx := args.toTransaction()
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(args.ChainID.ToInt()), p.key.PrivateKey)
	if err != nil {
		return common.Hash{}, err
	}
	if err := p.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	if signed.To() == nil {
		log.Info("Submitted contract creation", "hash", signed.Hash().Hex(), "from", p.account.Address, "nonce", signed.Nonce())
	} else {
		log.Info("Submitted transaction", "hash", signed.Hash().Hex(), "from", p.account.Address, "nonce", signed.Nonce(), "recipient", signed.To(), "value", signed.Value())
	}
	return signed.Hash(), nil
}

// decodeParams通过JSON往返把位置参数解码到目标值中。
func decodeParams(params []interface{}, out ...interface{}) error {
	if len(params) < len(out) {
		return fmt.Errorf("missing value for required argument %d", len(params))
	}
	for i, dst := range out {
		enc, err := json.Marshal(params[i])
		if err != nil {
			return fmt.Errorf("invalid argument %d: %v", i, err)
		}
		if err := json.Unmarshal(enc, dst); err != nil {
			return fmt.Errorf("invalid argument %d: %v", i, err)
		}
	}
	return nil
}
