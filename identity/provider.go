package identity

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// RPCProvider把JSON-RPC签名端点(clef或钱包桥)适配为Provider接口
type RPCProvider struct {
	client *rpc.Client
}

// NewRPCProvider包装已拨号的rpc客户端
func NewRPCProvider(client *rpc.Client) *RPCProvider {
	return &RPCProvider{client: client}
}

func (p *RPCProvider) Request(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	var result json.RawMessage
	if err := p.client.CallContext(ctx, &result, method, params...); err != nil {
		return nil, err
	}
	return result, nil
}

// StaticSession认证后端导出为JSON文档的社交会话
type StaticSession struct {
	Key       hexutil.Bytes `json:"privKey"`
	ExpiresAt time.Time     `json:"expiresAt"`
	Info      *Profile      `json:"userInfo,omitempty"`
}

// LoadSession从文件读取StaticSession
func LoadSession(file string) (*StaticSession, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	sess := new(StaticSession)
	if err := json.Unmarshal(data, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// PrivateKey返回会话密钥的副本，调用方可以清零
func (s *StaticSession) PrivateKey(ctx context.Context) ([]byte, error) {
	return append([]byte(nil), s.Key...), nil
}

func (s *StaticSession) Expiry() time.Time { return s.ExpiresAt }

func (s *StaticSession) UserInfo() *Profile { return s.Info }
