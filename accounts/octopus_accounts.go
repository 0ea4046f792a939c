package accounts

import (
	"github.com/ethereum/go-ethereum/common"
)

const (
	// KeyStoreScheme标识由本地加密密钥文件支持的帐户。
	KeyStoreScheme = "keystore"

	// SocialScheme标识由社交登录会话派生的帐户。
	SocialScheme = "social"

	// ProviderScheme标识由外部请求/响应签名提供者管理的帐户。
	ProviderScheme = "provider"
)

// Account表示位于可选URL字段定义的特定位置的帐户。
type Account struct {
	Address common.Address `json:"address"` //从密钥派生的帐户地址
	URL     URL            `json:"url"`     // 后端中的可选资源定位器
}
