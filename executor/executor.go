// executor包根据调用时的钱包视图，把有序的合约调用交给智能账户路径(一个赞助批次)
// 或EOA路径(逐笔确认的交易)执行。
package executor

import (
	"context"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/radiation-octopus/octopus-trade/contract"
	"github.com/radiation-octopus/octopus-trade/event"
	"github.com/radiation-octopus/octopus-trade/terr"
	"github.com/radiation-octopus/octopus-trade/wallet"
)

// SmartAccount把整个批次作为一个操作提交，由*smartaccount.Session实现
type SmartAccount interface {
	EnqueueAndSubmit(ctx context.Context, calls []contract.Call) (common.Hash, error)
}

// Signer发送一笔交易并等待打包，由*eoa.Connector实现
type Signer interface {
	Send(ctx context.Context, call contract.Call) (common.Hash, error)
	WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// ViewSource返回当前钱包视图，由*wallet.Tracker实现
type ViewSource interface {
	View() wallet.View
}

// Route一次请求选定的执行路径
type Route interface {
	route()
}

// SmartAccountRoute作为一个赞助操作发送
type SmartAccountRoute struct{ Account common.Address }

// EOARoute作为顺序交易发送
type EOARoute struct{ Account common.Address }

func (SmartAccountRoute) route() {}
func (EOARoute) route()          {}

// Result标识请求的结果。智能账户路径为操作id，EOA路径为最后一笔交易哈希。
type Result struct {
	Mode  wallet.Mode
	ID    common.Hash
	Steps []common.Hash // 仅EOA路径，按调用顺序
}

// Executor统一的交易执行器
type Executor struct {
	views ViewSource
	sa    SmartAccount
	eoa   Signer

	inProgress atomic.Bool
	progress   event.Feed[bool]
}

// New创建执行器
func New(views ViewSource, sa SmartAccount, eoa Signer) *Executor {
	return &Executor{views: views, sa: sa, eoa: eoa}
}

// InProgress报告是否有Execute正在运行
func (e *Executor) InProgress() bool {
	return e.inProgress.Load()
}

// SubscribeProgress注册接收进行状态变化的通道
func (e *Executor) SubscribeProgress(ch chan<- bool) event.Subscription {
	return e.progress.Subscribe(ch)
}

// Close取消所有订阅
func (e *Executor) Close() {
	e.progress.Close()
}

// Route解析此刻请求会走的路径
func (e *Executor) Route() (Route, error) {
	v := e.views.View()
	switch v.Mode {
	case wallet.ModeSmartAccount:
		if v.Optimistic {
			return nil, terr.ErrNotInitialized
		}
		return SmartAccountRoute{Account: v.Address}, nil
	case wallet.ModeExternallyOwned:
		return EOARoute{Account: v.Address}, nil
	}
	return nil, terr.ErrNotConnected
}

// Execute按顺序通过当前路径执行calls。
//同一时间只允许一个Execute，并发调用返回ErrExecutionInProgress。
func (e *Executor) Execute(ctx context.Context, calls []contract.Call) (Result, error) {
	if len(calls) == 0 {
		return Result{}, terr.ErrEmptyRequest
	}
	if !e.inProgress.CompareAndSwap(false, true) {
		return Result{}, terr.ErrExecutionInProgress
	}
	e.progress.Send(true)
	defer func() {
		e.inProgress.Store(false)
		e.progress.Send(false)
	}()

	route, err := e.Route()
	if err != nil {
		return Result{}, err
	}
	switch r := route.(type) {
	case SmartAccountRoute:
		id, err := e.sa.EnqueueAndSubmit(ctx, calls)
		if err != nil {
			return Result{}, err
		}
		log.Info("Executed batch", "account", r.Account, "calls", len(calls), "id", id)
		return Result{Mode: wallet.ModeSmartAccount, ID: id}, nil
	case EOARoute:
		return e.executeSequential(ctx, r, calls)
	}
	return Result{}, terr.ErrNotConnected
}

// executeSequential逐个发送调用，等上一笔打包后再发下一笔。失败即停止，已完成的步骤保持提交。
func (e *Executor) executeSequential(ctx context.Context, r EOARoute, calls []contract.Call) (Result, error) {
	steps := make([]common.Hash, 0, len(calls))
	for i, call := range calls {
		hash, err := e.eoa.Send(ctx, call)
		if err == nil {
			_, err = e.eoa.WaitMined(ctx, hash)
		}
		if err != nil {
			log.Error("Sequential step failed", "account", r.Account, "step", i+1, "total", len(calls), "call", call, "err", err)
			committed := make([]string, len(steps))
			for j, h := range steps {
				committed[j] = h.Hex()
			}
			return Result{}, &terr.SequentialStepError{Index: i, Total: len(calls), Committed: committed, Err: err}
		}
		log.Info("Sequential step confirmed", "account", r.Account, "step", i+1, "total", len(calls), "hash", hash)
		steps = append(steps, hash)
	}
	return Result{Mode: wallet.ModeExternallyOwned, ID: steps[len(steps)-1], Steps: steps}, nil
}
