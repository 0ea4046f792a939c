package event

import (
	"github.com/ethereum/go-ethereum/event"
)

//Feed 是带作用域的一对多广播：Send 投递给所有订阅者，Close 取消全部订阅。零值可用。
type Feed[T any] struct {
	feed  event.FeedOf[T]
	scope SubscriptionScope
}

// Subscribe 注册通道。Feed 关闭后返回 nil。
func (f *Feed[T]) Subscribe(ch chan<- T) Subscription {
	inner := f.feed.Subscribe(ch)
	sub := f.scope.Track(inner)
	if sub == nil {
		inner.Unsubscribe()
		return nil
	}
	return sub
}

// Send 投递给当前所有订阅者，阻塞直到每个订阅者都收到，返回投递数。
func (f *Feed[T]) Send(v T) int {
	return f.feed.Send(v)
}

// Count 返回当前订阅者数量。
func (f *Feed[T]) Count() int {
	return f.scope.Count()
}

// Close 取消所有订阅，可重复调用。
func (f *Feed[T]) Close() {
	f.scope.Close()
}

// Forward 在后台把 sub 收到的事件交给 fn，直到取消订阅或出错。返回的订阅用于停止转发。
func Forward[T any](subscribe func(chan<- T) Subscription, fn func(T)) Subscription {
	ch := make(chan T, 16)
	sub := subscribe(ch)
	if sub == nil {
		return nil
	}
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case v := <-ch:
				fn(v)
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	})
}
