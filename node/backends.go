package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/radiation-octopus/octopus-trade/bundler"
	"github.com/radiation-octopus/octopus-trade/eoa"
	"github.com/radiation-octopus/octopus-trade/identity"
	"github.com/radiation-octopus/octopus-trade/smartaccount"
)

// Chain两条执行路径共用的链访问，由*ethclient.Client实现
type Chain interface {
	smartaccount.ChainReader
	eoa.Backend
}

// Bundler用户操作中继，由*bundler.Client实现
type Bundler interface {
	smartaccount.Bundler
	SupportedEntryPoints(ctx context.Context) ([]common.Address, error)
}

// Backends节点依赖的远程服务。Provider可选，设置后启用EOA路径。
type Backends struct {
	Chain    Chain
	Bundler  Bundler
	Provider identity.Provider

	client  *ethclient.Client
	closers []func()
}

// DialBackends连接conf中的链节点和bundler，并检查链id与配置一致
func DialBackends(ctx context.Context, conf *Config) (*Backends, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	client, err := ethclient.DialContext(ctx, conf.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain: %w", err)
	}
	id, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("chain id: %w", err)
	}
	if !id.IsUint64() || id.Uint64() != conf.ChainID {
		client.Close()
		return nil, fmt.Errorf("%w: node reports %v, configured %d", ErrChainIDMismatch, id, conf.ChainID)
	}
	bundlerURL, err := conf.BundlerEndpoint()
	if err != nil {
		client.Close()
		return nil, err
	}
	sponsorURL, err := conf.PaymasterEndpoint()
	if err != nil {
		client.Close()
		return nil, err
	}
	bc, err := bundler.Dial(ctx, bundlerURL, sponsorURL)
	if err != nil {
		client.Close()
		return nil, err
	}
	log.Debug("Dialled backends", "rpc", conf.RPCURL, "chain", id)
	return &Backends{
		Chain:   client,
		Bundler: bc,
		client:  client,
		closers: []func(){client.Close, bc.Close},
	}, nil
}

// EthClient返回DialBackends打开的链客户端，没有则为nil
func (b *Backends) EthClient() *ethclient.Client {
	return b.client
}

// OnClose注册节点释放后端时运行的fn
func (b *Backends) OnClose(fn func()) {
	b.closers = append(b.closers, fn)
}

// Close按注册的逆序运行关闭函数
func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

func (b *Backends) check() error {
	if b == nil || b.Chain == nil || b.Bundler == nil {
		return errors.New("node: chain and bundler backends are required")
	}
	return nil
}
