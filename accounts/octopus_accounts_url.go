package accounts

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

//URL表示身份来源或帐户的规范标识URL，例如social://google/<subject>或keystore:///path。
//它只包含值可复制的组件，不做任何URL编码/解码，保证一个单一的规范形式。
type URL struct {
	Scheme string // 用于标识身份来源的协议方案
	Path   string // 来源内用于标识唯一实体的路径
}

// ParseURL将用户提供的URL转换为特定于帐户的结构。
func ParseURL(url string) (URL, error) {
	parts := strings.SplitN(url, "://", 2)
	if len(parts) != 2 || parts[0] == "" {
		return URL{}, errors.New("protocol scheme missing")
	}
	return URL{
		Scheme: parts[0],
		Path:   parts[1],
	}, nil
}

// String实现stringer接口。
func (u URL) String() string {
	if u.Scheme != "" {
		return fmt.Sprintf("%s://%s", u.Scheme, u.Path)
	}
	return u.Path
}

// TerminalString返回适合日志输出的截断形式。
func (u URL) TerminalString() string {
	url := u.String()
	if len(url) > 32 {
		return url[:31] + ".."
	}
	return url
}

// MarshalJSON实现json。Marshaller接口。
func (u URL) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON解析url。
func (u *URL) UnmarshalJSON(input []byte) error {
	var textURL string
	if err := json.Unmarshal(input, &textURL); err != nil {
		return err
	}
	url, err := ParseURL(textURL)
	if err != nil {
		return err
	}
	*u = url
	return nil
}

// Cmp比较x和y并返回：
//
//	-1 if x <  y
//	 0 if x == y
//	+1 if x >  y
func (u URL) Cmp(url URL) int {
	if u.Scheme == url.Scheme {
		return strings.Compare(u.Path, url.Path)
	}
	return strings.Compare(u.Scheme, url.Scheme)
}
