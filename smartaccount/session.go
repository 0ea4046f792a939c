package smartaccount

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/radiation-octopus/octopus-trade/aa"
	"github.com/radiation-octopus/octopus-trade/contract"
	"github.com/radiation-octopus/octopus-trade/event"
	"github.com/radiation-octopus/octopus-trade/identity"
	"github.com/radiation-octopus/octopus-trade/rawdb"
	"github.com/radiation-octopus/octopus-trade/terr"
	"github.com/radiation-octopus/octopus-trade/typedb"
	"golang.org/x/sync/singleflight"
)

// Session客户端唯一的智能账户描述，所有方法都可并发调用
type Session struct {
	config  Config
	db      typedb.KeyValueStore
	bundler Bundler
	chain   ChainReader

	mu        sync.Mutex
	state     State
	owner     identity.Owner
	ownerAddr common.Address
	ident     *identity.Session // 通过Deriver建立时设置
	address   common.Address
	restored  *common.Address
	pending   []contract.Call
	err       error
	gen       uint64 // Teardown时递增，使进行中的初始化失效

	initGroup singleflight.Group
	submitMu  sync.Mutex
	feed      event.Feed[StateEvent]
}

// New创建未初始化的会话
func New(config Config, db typedb.KeyValueStore, b Bundler, chain ChainReader) *Session {
	if config.PollInterval <= 0 {
		config.PollInterval = defaultPollInterval
	}
	return &Session{
		config:  config,
		db:      db,
		bundler: b,
		chain:   chain,
	}
}

// Restore把持久化的智能账户地址读入乐观槽位，不会使会话进入Ready
func (s *Session) Restore() *common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Uninitialized {
		return nil
	}
	s.restored = rawdb.ReadSmartAccountAddress(s.db)
	if s.restored != nil {
		log.Info("Restored smart account address", "address", *s.restored)
		addr := *s.restored
		return &addr
	}
	return nil
}

// Initialize为owner计算反事实地址并使会话进入Ready。同一身份的重复调用是幂等的，
//并发调用共享同一次尝试。
func (s *Session) Initialize(ctx context.Context, owner identity.Owner) (common.Address, error) {
	key := owner.Address()

	var started bool
	s.mu.Lock()
	switch s.state {
	case Ready:
		defer s.mu.Unlock()
		if s.ownerAddr == key {
			return s.address, nil
		}
		return common.Address{}, terr.ErrIdentityConflict
	case Initializing:
		if s.ownerAddr != key {
			s.mu.Unlock()
			return common.Address{}, terr.ErrInitializing
		}
	default:
		s.state, s.owner, s.ownerAddr, s.err = Initializing, owner, key, nil
		started = true
	}
	// 只加入同一代的尝试，Teardown之后的调用总是重新开始
	gen := s.gen
	s.mu.Unlock()

	if started {
		log.Debug("Initializing smart account", "owner", key)
		s.feed.Send(StateEvent{State: Initializing, Owner: key})
	}

	v, err, shared := s.initGroup.Do(initKey(key, gen), func() (interface{}, error) {
		return s.initialize(key, gen)
	})
	if shared {
		log.Trace("Joined smart account initialization", "owner", key, "gen", gen)
	}
	if err != nil {
		return common.Address{}, err
	}
	return v.(common.Address), nil
}

// initKey是一次初始化尝试的singleflight键。
func initKey(owner common.Address, gen uint64) string {
	return fmt.Sprintf("%s/%d", owner.Hex(), gen)
}

func (s *Session) initialize(key common.Address, gen uint64) (common.Address, error) {
	s.mu.Lock()
	if s.state == Ready && s.ownerAddr == key {
		defer s.mu.Unlock()
		return s.address, nil
	}
	if s.gen != gen || s.state != Initializing || s.ownerAddr != key {
		s.mu.Unlock()
		return common.Address{}, terr.ErrInitAborted
	}
	s.mu.Unlock()

	addr, err := aa.CounterfactualAddress(s.config.Factory, s.config.Implementation, key, s.config.ChainID)

	s.mu.Lock()
	if s.gen != gen || s.state != Initializing {
		s.mu.Unlock()
		return common.Address{}, terr.ErrInitAborted
	}
	var ev StateEvent
	if err != nil {
		s.state, s.err = Failed, err
		ev = StateEvent{State: Failed, Owner: key, Err: err}
	} else {
		s.state, s.address, s.restored = Ready, addr, nil
		rawdb.WriteSmartAccountAddress(s.db, addr)
		ev = StateEvent{State: Ready, Owner: key, Address: addr}
	}
	s.mu.Unlock()

	if err != nil {
		log.Error("Smart account initialization failed", "owner", key, "err", err)
	} else {
		log.Info("Smart account ready", "owner", key, "address", addr)
	}
	s.feed.Send(ev)
	return addr, err
}

// Establish通过d派生身份并用它初始化会话。
//派生失败时Ready会话保持不变，否则会话进入Failed并删除持久化地址。
func (s *Session) Establish(ctx context.Context, d identity.Deriver) (*identity.Session, common.Address, error) {
	sess, err := d.Derive(ctx)
	if err != nil {
		s.fail(err)
		return nil, common.Address{}, err
	}
	addr, err := s.Initialize(ctx, sess.Owner)
	if err != nil {
		sess.Close()
		return nil, common.Address{}, err
	}
	s.mu.Lock()
	adopt := s.state == Ready && s.owner == sess.Owner && s.ident == nil
	if adopt {
		s.ident = sess
	}
	s.mu.Unlock()
	if !adopt {
		// 同一密钥的并发登录已胜出，只保留它的材料
		sess.Close()
	}
	return sess, addr, nil
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.state != Uninitialized && s.state != Failed {
		s.mu.Unlock()
		return
	}
	s.state, s.err, s.restored = Failed, err, nil
	s.owner, s.ownerAddr = nil, common.Address{}
	rawdb.DeleteSmartAccountAddress(s.db)
	s.mu.Unlock()

	log.Warn("Smart account derivation failed", "err", err)
	s.feed.Send(StateEvent{State: Failed, Err: err})
}

// Teardown使会话回到Uninitialized，中止进行中的初始化并删除持久化地址。可重复调用。
func (s *Session) Teardown() {
	s.mu.Lock()
	prev, owner, ident := s.state, s.ownerAddr, s.ident
	s.gen++
	s.state, s.err = Uninitialized, nil
	s.owner, s.ownerAddr, s.ident = nil, common.Address{}, nil
	s.address, s.restored, s.pending = common.Address{}, nil, nil
	rawdb.DeleteSmartAccountAddress(s.db)
	s.mu.Unlock()

	if ident != nil {
		ident.Close()
	}
	if prev != Uninitialized {
		log.Info("Smart account torn down", "owner", owner, "from", prev)
		s.feed.Send(StateEvent{State: Uninitialized, Owner: owner})
	}
}

// State返回当前生命周期状态
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Address返回Ready时的智能账户地址
func (s *Session) Address() (common.Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address, s.state == Ready
}

// Snapshot返回描述的副本
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:   s.state,
		Owner:   s.ownerAddr,
		Address: s.address,
		Pending: len(s.pending),
		Err:     s.err,
	}
	if s.restored != nil {
		addr := *s.restored
		snap.Restored = &addr
	}
	return snap
}

// Profile返回已建立身份的资料，没有则为nil
func (s *Session) Profile() *identity.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ident == nil {
		return nil
	}
	return s.ident.Profile
}

// SubscribeState注册接收状态转换的通道
func (s *Session) SubscribeState(ch chan<- StateEvent) event.Subscription {
	return s.feed.Subscribe(ch)
}

// Close取消所有订阅，保留持久化地址
func (s *Session) Close() {
	s.feed.Close()
}
