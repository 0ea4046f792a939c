// bundler包是ERC-4337 bundler与paymaster端点的JSON-RPC客户端。
// 它只转发请求，gas估算与赞助策略都在远端完成。
package bundler

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/radiation-octopus/octopus-trade/aa"
)

var errEmptySponsorship = errors.New("paymaster returned no paymasterAndData")

// Sponsorship paymaster对pm_sponsorUserOperation的应答，未返回的gas字段为nil
type Sponsorship struct {
	PaymasterAndData     hexutil.Bytes `json:"paymasterAndData"`
	CallGasLimit         *hexutil.Big  `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Big  `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Big  `json:"preVerificationGas"`
	MaxFeePerGas         *hexutil.Big  `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big  `json:"maxPriorityFeePerGas,omitempty"`
}

// Apply把赞助字段复制到op
func (s *Sponsorship) Apply(op *aa.UserOperation) {
	op.PaymasterAndData = common.CopyBytes(s.PaymasterAndData)
	for _, f := range []struct {
		src *hexutil.Big
		dst **big.Int
	}{
		{s.CallGasLimit, &op.CallGasLimit},
		{s.VerificationGasLimit, &op.VerificationGasLimit},
		{s.PreVerificationGas, &op.PreVerificationGas},
		{s.MaxFeePerGas, &op.MaxFeePerGas},
		{s.MaxPriorityFeePerGas, &op.MaxPriorityFeePerGas},
	} {
		if f.src != nil {
			*f.dst = new(big.Int).Set(f.src.ToInt())
		}
	}
}

// Client连接一个bundler端点和一个paymaster端点，两者可以是同一连接
type Client struct {
	bundler *rpc.Client
	sponsor *rpc.Client
	owned   []*rpc.Client
}

// Dial连接两个端点，sponsorURL为空时复用bundler连接
func Dial(ctx context.Context, bundlerURL, sponsorURL string) (*Client, error) {
	b, err := rpc.DialContext(ctx, bundlerURL)
	if err != nil {
		return nil, fmt.Errorf("dial bundler: %w", err)
	}
	if sponsorURL == "" || sponsorURL == bundlerURL {
		c := NewClient(b, b)
		c.owned = []*rpc.Client{b}
		return c, nil
	}
	s, err := rpc.DialContext(ctx, sponsorURL)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("dial paymaster: %w", err)
	}
	c := NewClient(b, s)
	c.owned = []*rpc.Client{b, s}
	return c, nil
}

// NewClient包装已拨号的rpc客户端
func NewClient(bundler, sponsor *rpc.Client) *Client {
	return &Client{bundler: bundler, sponsor: sponsor}
}

// Close关闭Dial打开的连接
func (c *Client) Close() {
	for _, rc := range c.owned {
		rc.Close()
	}
}

// SponsorUserOperation请求paymaster赞助op，sponsorCtx原样传递，例如{"mode": "SPONSORED"}
func (c *Client) SponsorUserOperation(ctx context.Context, op *aa.UserOperation, entryPoint common.Address, sponsorCtx map[string]interface{}) (*Sponsorship, error) {
	var res Sponsorship
	if err := c.sponsor.CallContext(ctx, &res, "pm_sponsorUserOperation", op, entryPoint, sponsorCtx); err != nil {
		return nil, err
	}
	if len(res.PaymasterAndData) < common.AddressLength {
		return nil, errEmptySponsorship
	}
	log.Debug("User operation sponsored", "sender", op.Sender, "paymaster", common.BytesToAddress(res.PaymasterAndData[:common.AddressLength]))
	return &res, nil
}

// SendUserOperation提交已签名的操作，返回bundler给出的用户操作哈希
func (c *Client) SendUserOperation(ctx context.Context, op *aa.UserOperation, entryPoint common.Address) (common.Hash, error) {
	var hash common.Hash
	if err := c.bundler.CallContext(ctx, &hash, "eth_sendUserOperation", op, entryPoint); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// GetUserOperationReceipt返回已打包操作的收据，仍在等待时返回ethereum.NotFound
func (c *Client) GetUserOperationReceipt(ctx context.Context, hash common.Hash) (*aa.Receipt, error) {
	var r *aa.Receipt
	if err := c.bundler.CallContext(ctx, &r, "eth_getUserOperationReceipt", hash); err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ethereum.NotFound
	}
	return r, nil
}

// SupportedEntryPoints列出bundler接受的入口点
func (c *Client) SupportedEntryPoints(ctx context.Context) ([]common.Address, error) {
	var eps []common.Address
	err := c.bundler.CallContext(ctx, &eps, "eth_supportedEntryPoints")
	return eps, err
}

// ChainID返回bundler服务的链
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var id hexutil.Big
	if err := c.bundler.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return nil, err
	}
	return id.ToInt(), nil
}
