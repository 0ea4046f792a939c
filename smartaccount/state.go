// smartaccount包管理派生的ERC-4337智能账户的生命周期：计算反事实地址，
// 跟踪就绪状态，并把有序的合约调用转换为赞助的用户操作。
package smartaccount

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/radiation-octopus/octopus-trade/aa"
	"github.com/radiation-octopus/octopus-trade/bundler"
)

// State会话的生命周期状态
type State uint8

const (
	Uninitialized State = iota
	Initializing
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Config会话的静态配置
type Config struct {
	ChainID            *big.Int
	EntryPoint         common.Address
	Factory            common.Address
	Implementation     common.Address
	SponsorshipContext map[string]interface{}
	PollInterval       time.Duration // WaitOperation轮询收据的间隔
}

const defaultPollInterval = 2 * time.Second

// Bundler赞助并转发用户操作的远程服务，由*bundler.Client实现
type Bundler interface {
	SponsorUserOperation(ctx context.Context, op *aa.UserOperation, entryPoint common.Address, sponsorCtx map[string]interface{}) (*bundler.Sponsorship, error)
	SendUserOperation(ctx context.Context, op *aa.UserOperation, entryPoint common.Address) (common.Hash, error)
	GetUserOperationReceipt(ctx context.Context, hash common.Hash) (*aa.Receipt, error)
}

// ChainReader构建操作所需的ethclient.Client子集
type ChainReader interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// StateEvent每次状态转换时发布
type StateEvent struct {
	State   State
	Owner   common.Address
	Address common.Address // 仅Ready时非零
	Err     error          // State为Failed时设置
}

// Snapshot会话描述的一致副本
type Snapshot struct {
	State    State
	Owner    common.Address
	Address  common.Address
	Restored *common.Address // 从存储读回的地址，仅供参考
	Pending  int
	Err      error
}
