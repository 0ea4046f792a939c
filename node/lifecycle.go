package node

// Lifecycle包括可以在节点上启动和停止的服务的行为。
//生命周期管理委托给节点，服务通过RegisterLifecycle注册到节点上。
type Lifecycle interface {
	// Start在节点组装完成、持久化地址恢复之后调用。
	Start() error

	// Stop终止属于服务的所有goroutine，阻塞直到它们全部终止。
	Stop() error
}
