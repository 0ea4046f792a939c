package identity

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/radiation-octopus/octopus-trade/accounts"
	"github.com/radiation-octopus/octopus-trade/crypto"
	"github.com/radiation-octopus/octopus-trade/terr"
)

// KeyMaterial完整派生的私钥，从不持久化
type KeyMaterial struct {
	key     *ecdsa.PrivateKey
	address common.Address
	profile *Profile
}

func (km *KeyMaterial) Address() common.Address { return km.address }

// Profile返回社交会话携带的资料
func (km *KeyMaterial) Profile() *Profile { return km.profile }

func (km *KeyMaterial) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	if km.key == nil {
		return nil, errors.New("key material destroyed")
	}
	return crypto.SignText(msg, km.key)
}

// Destroy清零私钥，地址仍可读取
func (km *KeyMaterial) Destroy() {
	crypto.ZeroKey(km.key)
	km.key = nil
}

// ProviderHandle包装外部提供者及其授权访问的账户
type ProviderHandle struct {
	provider Provider
	address  common.Address
}

func (h *ProviderHandle) Address() common.Address { return h.address }

// Provider返回被包装的请求/响应提供者
func (h *ProviderHandle) Provider() Provider { return h.provider }

func (h *ProviderHandle) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	raw, err := h.provider.Request(ctx, "personal_sign", hexutil.Bytes(msg), h.address)
	if err != nil {
		return nil, err
	}
	var sig hexutil.Bytes
	if err := json.Unmarshal(raw, &sig); err != nil {
		return nil, fmt.Errorf("invalid signature response: %v", err)
	}
	return sig, nil
}

// DeriveFromSocialSession提取已认证社交会话的私钥。派生要么完全成功，要么返回DerivationError。
func DeriveFromSocialSession(ctx context.Context, sess SocialSession) (*KeyMaterial, error) {
	if sess == nil {
		return nil, terr.NewDerivationError("social session", ErrSessionInvalid)
	}
	if exp := sess.Expiry(); !exp.IsZero() && !time.Now().Before(exp) {
		return nil, terr.NewDerivationError("social session", ErrSessionExpired)
	}
	raw, err := sess.PrivateKey(ctx)
	if err != nil {
		return nil, terr.NewDerivationError("social session", err)
	}
	if len(raw) == 0 {
		return nil, terr.NewDerivationError("social session", ErrSessionInvalid)
	}
	key, err := crypto.ToECDSA(raw)
	for i := range raw {
		raw[i] = 0
	}
	if err != nil {
		return nil, terr.NewDerivationError("social session", fmt.Errorf("%w: %v", ErrSessionInvalid, err))
	}
	return &KeyMaterial{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		profile: sess.UserInfo(),
	}, nil
}

// DeriveFromExternalProvider向提供者请求账户访问，并包装第一个授权账户
func DeriveFromExternalProvider(ctx context.Context, p Provider) (*ProviderHandle, error) {
	if p == nil {
		return nil, terr.NewDerivationError("external provider", errors.New("no provider"))
	}
	raw, err := p.Request(ctx, "eth_requestAccounts")
	if err != nil {
		if isUserRejection(err) {
			err = fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return nil, terr.NewDerivationError("external provider", err)
	}
	var accs []common.Address
	if err := json.Unmarshal(raw, &accs); err != nil {
		return nil, terr.NewDerivationError("external provider", fmt.Errorf("invalid accounts response: %v", err))
	}
	if len(accs) == 0 || accs[0] == (common.Address{}) {
		return nil, terr.NewDerivationError("external provider", ErrNoAccounts)
	}
	return &ProviderHandle{provider: p, address: accs[0]}, nil
}

func isUserRejection(err error) bool {
	var rerr rpc.Error
	if errors.As(err, &rerr) {
		return rerr.ErrorCode() == CodeUserRejected || rerr.ErrorCode() == CodeUnauthorized
	}
	return false
}

// SocialDeriver返回通过社交会话登录的Deriver。
//source标识登录来源，例如social://google/<subject>
func SocialDeriver(source accounts.URL, sess SocialSession) Deriver {
	return DeriverFunc(func(ctx context.Context) (*Session, error) {
		km, err := DeriveFromSocialSession(ctx, sess)
		if err != nil {
			return nil, err
		}
		log.Debug("Derived social key material", "source", source.TerminalString(), "owner", km.Address())
		return newSession(source, km, km.Profile()), nil
	})
}

// ProviderDeriver返回通过外部提供者登录的Deriver
func ProviderDeriver(source accounts.URL, p Provider) Deriver {
	return DeriverFunc(func(ctx context.Context) (*Session, error) {
		h, err := DeriveFromExternalProvider(ctx, p)
		if err != nil {
			return nil, err
		}
		log.Debug("Derived provider handle", "source", source.TerminalString(), "owner", h.Address())
		return newSession(source, h, nil), nil
	})
}
