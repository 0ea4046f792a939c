// Package event 提供会话、连接器、视图跟踪器和执行器共用的事件源。
package event

import (
	"github.com/ethereum/go-ethereum/event"
)

// Subscription 表示事件流，见 go-ethereum/event
type Subscription = event.Subscription

// SubscriptionScope 可以一次取消多个订阅，零值可用
type SubscriptionScope = event.SubscriptionScope
