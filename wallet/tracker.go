package wallet

import (
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/radiation-octopus/octopus-trade/event"
	"github.com/radiation-octopus/octopus-trade/identity"
)

// Sources提供解析器的实时输入，每次读取时都会调用。
type Sources struct {
	EOA          func() EOAState
	SmartAccount func() SmartAccountState
	Profile      func() *identity.Profile
}

// Tracker在每次读取时从输入重新计算视图，Refresh发现变化时发布给订阅者。
type Tracker struct {
	src Sources

	mu   sync.Mutex // 保护last，并串行化计算与投递
	last View
	feed event.Feed[View]
}

// NewTracker创建跟踪器。nil输入函数视为空。
func NewTracker(src Sources) *Tracker {
	return &Tracker{src: src}
}

// View解析当前输入。
func (t *Tracker) View() View {
	var (
		eoa     EOAState
		sa      SmartAccountState
		profile *identity.Profile
	)
	if t.src.EOA != nil {
		eoa = t.src.EOA()
	}
	if t.src.SmartAccount != nil {
		sa = t.src.SmartAccount()
	}
	if t.src.Profile != nil {
		profile = t.src.Profile()
	}
	return Resolve(eoa, sa, profile)
}

// Refresh解析视图，与上次发布的不同时投递。任何输入变化后都应调用。
//计算与投递在同一把锁下完成，订阅者收到的最后一个视图总是最新的。
func (t *Tracker) Refresh() View {
	t.mu.Lock()
	defer t.mu.Unlock()

	v := t.View()
	if v == t.last {
		return v
	}
	t.last = v
	log.Debug("Wallet view changed", "mode", v.Mode, "address", v.Address, "optimistic", v.Optimistic)
	t.feed.Send(v)
	return v
}

// Subscribe注册视图变化的通道。
func (t *Tracker) Subscribe(ch chan<- View) event.Subscription {
	return t.feed.Subscribe(ch)
}

// Close取消所有订阅。
func (t *Tracker) Close() {
	t.feed.Close()
}
