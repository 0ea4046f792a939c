package accounts

import (
	"errors"
	"fmt"
)

//对于不属于该提供者的帐户的任何请求操作，都会返回ErrUnknownAccount。
var ErrUnknownAccount = errors.New("unknown account")

// 当从提供者请求不支持的方法时，将返回ErrNotSupported。
var ErrNotSupported = errors.New("not supported")

// 当解密操作接收到错误的密码短语时，将返回ErrInvalidPassphrase。
var ErrInvalidPassphrase = errors.New("invalid password")

// 提供者已关闭后再请求时返回ErrProviderClosed。
var ErrProviderClosed = errors.New("provider closed")

// AuthNeededError在请求需要用户提供进一步身份验证时返回。
type AuthNeededError struct {
	Needed string // 用户需要提供的额外身份验证
}

// NewAuthNeededError创建一个新的身份验证错误，其中包含有关所需字段集的额外详细信息。
func NewAuthNeededError(needed string) error {
	return &AuthNeededError{
		Needed: needed,
	}
}

// Error实现标准错误接口。
func (err *AuthNeededError) Error() string {
	return fmt.Sprintf("authentication needed: %s", err.Needed)
}
