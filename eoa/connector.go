// eoa包通过请求/响应提供者连接单个外部账户，每次调用发送一笔签名交易。
package eoa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/radiation-octopus/octopus-trade/accounts"
	"github.com/radiation-octopus/octopus-trade/contract"
	"github.com/radiation-octopus/octopus-trade/event"
	"github.com/radiation-octopus/octopus-trade/identity"
	"github.com/radiation-octopus/octopus-trade/terr"
)

// ErrReverted交易已打包但状态为失败时由WaitMined返回
var ErrReverted = errors.New("transaction reverted")

const defaultPollInterval = time.Second

// Backend读取收据，由ethclient.Client实现
type Backend interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// State EOA的连接状态
type State struct {
	Address   common.Address
	Connected bool
}

// Connector唯一的EOA连接器
type Connector struct {
	provider identity.Provider
	backend  Backend
	poll     time.Duration

	mu    sync.RWMutex
	state State
	feed  event.Feed[State]
}

// NewConnector创建未连接的连接器，轮询间隔为零时使用默认值
func NewConnector(p identity.Provider, b Backend, poll time.Duration) *Connector {
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &Connector{provider: p, backend: b, poll: poll}
}

// Connect向提供者请求账户访问
func (c *Connector) Connect(ctx context.Context) (common.Address, error) {
	h, err := identity.DeriveFromExternalProvider(ctx, c.provider)
	if err != nil {
		return common.Address{}, err
	}
	st := State{Address: h.Address(), Connected: true}
	c.mu.Lock()
	c.state = st
	c.mu.Unlock()

	log.Info("EOA connected", "address", st.Address)
	c.feed.Send(st)
	return st.Address, nil
}

// Disconnect忘记已连接的账户
func (c *Connector) Disconnect() {
	c.mu.Lock()
	prev := c.state
	c.state = State{}
	c.mu.Unlock()

	if prev.Connected {
		log.Info("EOA disconnected", "address", prev.Address)
		c.feed.Send(State{})
	}
}

// State返回当前连接状态
func (c *Connector) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SubscribeState注册接收连接变化的通道
func (c *Connector) SubscribeState(ch chan<- State) event.Subscription {
	return c.feed.Subscribe(ch)
}

// Send把call作为一笔由提供者签名的交易提交，不等待，直接返回哈希
func (c *Connector) Send(ctx context.Context, call contract.Call) (common.Hash, error) {
	st := c.State()
	if !st.Connected {
		return common.Hash{}, terr.ErrNotConnected
	}
	msg, err := call.Encode()
	if err != nil {
		return common.Hash{}, err
	}
	data := hexutil.Bytes(msg.Data)
	args := accounts.TransactionArgs{
		From:  &st.Address,
		To:    &msg.To,
		Data:  &data,
		Value: (*hexutil.Big)(msg.Value),
	}
	raw, err := c.provider.Request(ctx, "eth_sendTransaction", args)
	if err != nil {
		return common.Hash{}, err
	}
	var hash common.Hash
	if err := json.Unmarshal(raw, &hash); err != nil {
		return common.Hash{}, fmt.Errorf("invalid transaction hash response: %v", err)
	}
	log.Debug("Sent transaction", "call", call, "hash", hash)
	return hash, nil
}

// WaitMined轮询hash的收据，直到被打包或ctx结束。失败状态返回收据和ErrReverted。
func (c *Connector) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status == types.ReceiptStatusFailed {
				return receipt, fmt.Errorf("%w: %s", ErrReverted, hash.Hex())
			}
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			log.Trace("Receipt retrieval failed", "hash", hash, "err", err)
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close取消所有订阅
func (c *Connector) Close() {
	c.feed.Close()
}
