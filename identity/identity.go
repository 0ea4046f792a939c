// identity包把社交登录会话或外部连接的签名提供者转换为Owner，
// 由它可以计算出确定的智能账户地址。
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/radiation-octopus/octopus-trade/accounts"
)

// EIP-1193提供者错误码
const (
	CodeUserRejected = 4001
	CodeUnauthorized = 4100
)

var (
	ErrSessionExpired   = errors.New("social session expired")
	ErrSessionInvalid   = errors.New("social session invalid")
	ErrPermissionDenied = errors.New("permission denied by provider")
	ErrNoAccounts       = errors.New("provider returned no accounts")
)

// Owner控制智能账户的签名身份
type Owner interface {
	// Address返回owner的EOA地址
	Address() common.Address

	// SignMessage对msg生成EIP-191个人签名
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
}

// SocialSession社交认证后端的会话对象，须已在上游验证
type SocialSession interface {
	// PrivateKey返回已认证身份的原始私钥
	PrivateKey(ctx context.Context) ([]byte, error)

	// Expiry会话失效时间，零值表示不过期
	Expiry() time.Time

	// UserInfo返回可选的资料
	UserInfo() *Profile
}

// Provider标准的请求/响应签名提供者
type Provider interface {
	Request(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error)
}

// ProviderError提供者返回的错误响应
type ProviderError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// ErrorCode使ProviderError兼容go-ethereum的rpc.Error
func (e *ProviderError) ErrorCode() int { return e.Code }

// Profile已登录用户的资料
type Profile struct {
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// Session一次认证尝试。显式登录时创建，登出时丢弃，从不隐式重建。
type Session struct {
	ID        uuid.UUID
	Source    accounts.URL
	Owner     Owner
	Profile   *Profile
	CreatedAt time.Time
}

// Close释放会话owner持有的密钥材料
func (s *Session) Close() {
	if km, ok := s.Owner.(*KeyMaterial); ok {
		km.Destroy()
	}
}

func newSession(source accounts.URL, owner Owner, profile *Profile) *Session {
	return &Session{
		ID:        uuid.New(),
		Source:    source,
		Owner:     owner,
		Profile:   profile,
		CreatedAt: time.Now(),
	}
}

// Deriver生成身份Session
type Deriver interface {
	Derive(ctx context.Context) (*Session, error)
}

// DeriverFunc把函数适配为Deriver接口
type DeriverFunc func(ctx context.Context) (*Session, error)

func (f DeriverFunc) Derive(ctx context.Context) (*Session, error) { return f(ctx) }
