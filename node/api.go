package node

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/radiation-octopus/octopus-trade/aa"
	"github.com/radiation-octopus/octopus-trade/smartaccount"
)

// apis返回节点自身提供的RPC API。
func (n *Node) apis() []rpc.API {
	return []rpc.API{{
		Namespace: "octrade",
		Service:   &TradeAPI{n},
	}}
}

// TradeAPI通过进程内RPC处理器暴露只读的节点状态
type TradeAPI struct {
	n *Node
}

// ViewResult octrade_view返回的钱包视图
type ViewResult struct {
	Address     common.Address `json:"address"`
	Connected   bool           `json:"connected"`
	Mode        string         `json:"mode"`
	DisplayName string         `json:"displayName"`
	Gasless     bool           `json:"gasless"`
	Optimistic  bool           `json:"optimistic"`
	InProgress  bool           `json:"inProgress"`
}

// View返回当前钱包视图
func (api *TradeAPI) View() ViewResult {
	v := api.n.View()
	return ViewResult{
		Address:     v.Address,
		Connected:   v.Connected,
		Mode:        v.Mode.String(),
		DisplayName: v.DisplayName,
		Gasless:     v.Gasless,
		Optimistic:  v.Optimistic,
		InProgress:  api.n.InProgress(),
	}
}

// SessionResult octrade_smartAccount返回的智能账户描述
type SessionResult struct {
	State    string          `json:"state"`
	Owner    *common.Address `json:"owner,omitempty"`
	Address  *common.Address `json:"address,omitempty"`
	Restored *common.Address `json:"restored,omitempty"`
	Pending  int             `json:"pending"`
	Error    string          `json:"error,omitempty"`
}

// SmartAccount返回智能账户描述
func (api *TradeAPI) SmartAccount() SessionResult {
	snap := api.n.SmartAccount()
	res := SessionResult{
		State:    snap.State.String(),
		Restored: snap.Restored,
		Pending:  snap.Pending,
	}
	if snap.Owner != (common.Address{}) {
		owner := snap.Owner
		res.Owner = &owner
	}
	if snap.State == smartaccount.Ready {
		addr := snap.Address
		res.Address = &addr
	}
	if snap.Err != nil {
		res.Error = snap.Err.Error()
	}
	return res
}

// OperationReceipt返回赞助操作的收据，等待中时返回null
func (api *TradeAPI) OperationReceipt(ctx context.Context, id common.Hash) (*aa.Receipt, error) {
	r, err := api.n.backends.Bundler.GetUserOperationReceipt(ctx, id)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}
