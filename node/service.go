package node

import (
	"context"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/radiation-octopus/octopus-trade/eoa"
	"github.com/radiation-octopus/octopus-trade/event"
	"github.com/radiation-octopus/octopus-trade/smartaccount"
)

// viewService在会话和连接器每次转换时刷新钱包视图
type viewService struct {
	n    *Node
	subs []event.Subscription
}

func (s *viewService) Start() error {
	n := s.n
	sub := event.Forward(n.session.SubscribeState, func(ev smartaccount.StateEvent) {
		n.log.Trace("Smart account transition", "state", ev.State, "owner", ev.Owner)
		n.tracker.Refresh()
	})
	if sub != nil {
		s.subs = append(s.subs, sub)
	}
	if n.connector != nil {
		sub := event.Forward(n.connector.SubscribeState, func(st eoa.State) {
			n.log.Trace("EOA transition", "connected", st.Connected, "address", st.Address)
			n.tracker.Refresh()
		})
		if sub != nil {
			s.subs = append(s.subs, sub)
		}
	}
	return nil
}

func (s *viewService) Stop() error {
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil
	return nil
}

const entryPointCheckTimeout = 10 * time.Second

// entryPointCheck在bundler不支持配置的入口点时使启动失败
type entryPointCheck struct {
	bundler    Bundler
	entryPoint common.Address
	log        log.Logger
}

func (c *entryPointCheck) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), entryPointCheckTimeout)
	defer cancel()

	eps, err := c.bundler.SupportedEntryPoints(ctx)
	if err != nil {
		return fmt.Errorf("bundler: %w", err)
	}
	supported := mapset.NewThreadUnsafeSet()
	for _, ep := range eps {
		supported.Add(ep)
	}
	if !supported.Contains(c.entryPoint) {
		c.log.Warn("Bundler does not serve entry point", "entrypoint", c.entryPoint, "supported", supported.Cardinality())
		return fmt.Errorf("%w: %s", ErrEntryPointUnsupported, c.entryPoint.Hex())
	}
	c.log.Debug("Bundler supports entry point", "entrypoint", c.entryPoint)
	return nil
}

func (c *entryPointCheck) Stop() error { return nil }
