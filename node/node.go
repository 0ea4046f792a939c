package node

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/tsdb/fileutil"
	"github.com/radiation-octopus/octopus-trade/aa"
	"github.com/radiation-octopus/octopus-trade/contract"
	"github.com/radiation-octopus/octopus-trade/eoa"
	"github.com/radiation-octopus/octopus-trade/event"
	"github.com/radiation-octopus/octopus-trade/executor"
	"github.com/radiation-octopus/octopus-trade/identity"
	"github.com/radiation-octopus/octopus-trade/smartaccount"
	"github.com/radiation-octopus/octopus-trade/typedb"
	"github.com/radiation-octopus/octopus-trade/typedb/leveldb"
	"github.com/radiation-octopus/octopus-trade/typedb/memorydb"
	"github.com/radiation-octopus/octopus-trade/wallet"
)

const (
	initializingState = iota
	runningState
	closedState
)

// Node是交易核心的容器：会话数据库、智能账户会话、EOA连接器、钱包视图和统一执行器。
type Node struct {
	config        *Config
	log           log.Logger
	dirLock       fileutil.Releaser // 防止并发使用实例目录
	stop          chan struct{}     // 等待终止通知的通道
	startStopLock sync.Mutex        // 启动/停止由附加锁保护
	state         int               // 跟踪节点生命周期的状态

	lock          sync.Mutex
	lifecycles    []Lifecycle // 所有已注册的生命周期
	rpcAPIs       []rpc.API   // 节点当前提供的API列表
	inprocHandler *rpc.Server // 进程内RPC请求处理程序
	databases     map[*closeTrackingDB]struct{}

	backends  *Backends
	db        typedb.KeyValueStore
	session   *smartaccount.Session
	connector *eoa.Connector // 没有提供者时为nil
	tracker   *wallet.Tracker
	executor  *executor.Executor
}

// New在给定后端上创建节点，Start之前不访问网络
func New(conf *Config, b *Backends) (*Node, error) {
	// 复制config并解析datadir，以便将来对当前工作目录的更改不会影响节点。
	confCopy := *conf
	conf = &confCopy
	if conf.DataDir != "" {
		absdatadir, err := filepath.Abs(conf.DataDir)
		if err != nil {
			return nil, err
		}
		conf.DataDir = absdatadir
	}
	if conf.Logger == nil {
		conf.Logger = log.New()
	}
	if err := b.check(); err != nil {
		return nil, err
	}
	if strings.ContainsAny(conf.Name, `/\`) {
		return nil, errors.New(`Config.Name must not contain '/' or '\'`)
	}

	n := &Node{
		config:        conf,
		log:           conf.Logger,
		stop:          make(chan struct{}),
		inprocHandler: rpc.NewServer(),
		databases:     make(map[*closeTrackingDB]struct{}),
		backends:      b,
	}

	// 获取实例目录锁。
	if err := n.openDataDir(); err != nil {
		return nil, err
	}
	db, err := n.openSessionDB()
	if err != nil {
		n.closeDataDir()
		return nil, err
	}
	n.db = db

	n.session = smartaccount.New(conf.SessionConfig(), db, b.Bundler, b.Chain)
	var signer executor.Signer
	if b.Provider != nil {
		n.connector = eoa.NewConnector(b.Provider, b.Chain, conf.PollInterval)
		signer = n.connector
	}
	n.tracker = wallet.NewTracker(wallet.Sources{
		EOA:          n.eoaState,
		SmartAccount: n.smartAccountState,
		Profile:      n.session.Profile,
	})
	n.executor = executor.New(n.tracker, n.session, signer)

	n.RegisterLifecycle(&viewService{n: n})
	if conf.CheckEntryPoint {
		n.RegisterLifecycle(&entryPointCheck{bundler: b.Bundler, entryPoint: conf.EntryPoint, log: n.log})
	}
	n.rpcAPIs = append(n.rpcAPIs, n.apis()...)
	return n, nil
}

// Start启动所有注册的生命周期和进程内RPC服务。节点只能启动一次。
func (n *Node) Start() error {
	n.startStopLock.Lock()
	defer n.startStopLock.Unlock()

	n.lock.Lock()
	switch n.state {
	case runningState:
		n.lock.Unlock()
		return ErrNodeRunning
	case closedState:
		n.lock.Unlock()
		return ErrNodeStopped
	}
	n.state = runningState
	err := n.startInProc()
	lifecycles := make([]Lifecycle, len(n.lifecycles))
	copy(lifecycles, n.lifecycles)
	n.lock.Unlock()

	if err != nil {
		n.doClose(nil)
		return err
	}
	// 恢复持久化的智能账户地址。它只作为乐观视图，执行前必须重新派生。
	n.session.Restore()

	// 启动所有注册的生命周期。
	var started []Lifecycle
	for _, lifecycle := range lifecycles {
		if err = lifecycle.Start(); err != nil {
			break
		}
		started = append(started, lifecycle)
	}
	// 检查是否有任何生命周期未能启动。
	if err != nil {
		n.stopServices(started)
		n.doClose(nil)
		return err
	}
	n.tracker.Refresh()
	n.log.Info("Trading node started", "chain", n.config.ChainID, "entrypoint", n.config.EntryPoint, "datadir", n.config.DataDir)
	return nil
}

// Wait阻塞直到节点关闭
func (n *Node) Wait() {
	<-n.stop
}

// Close停止节点并释放New中获取的资源。
func (n *Node) Close() error {
	n.startStopLock.Lock()
	defer n.startStopLock.Unlock()

	n.lock.Lock()
	state := n.state
	n.lock.Unlock()
	switch state {
	case initializingState:
		// 该节点从未启动。
		return n.doClose(nil)
	case runningState:
		// 节点已启动，释放Start获取的资源。
		var errs []error
		if err := n.stopServices(n.lifecycles); err != nil {
			errs = append(errs, err)
		}
		return n.doClose(errs)
	case closedState:
		return ErrNodeStopped
	default:
		panic(fmt.Sprintf("node is in unknown state %d", state))
	}
}

// doClose释放New获取的资源，收集错误。
func (n *Node) doClose(errs []error) error {
	n.executor.Close()
	n.tracker.Close()
	if n.connector != nil {
		n.connector.Close()
	}
	n.session.Close()

	// 关闭数据库。这需要锁，因为它需要与openSessionDB同步。
	n.lock.Lock()
	n.state = closedState
	errs = append(errs, n.closeDatabases()...)
	n.lock.Unlock()

	n.backends.Close()

	// 释放实例目录锁。
	n.closeDataDir()

	// 解锁n.Wait。
	close(n.stop)

	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return fmt.Errorf("%v", errs)
	}
}

// RegisterLifecycle在节点上注册给定的生命周期
func (n *Node) RegisterLifecycle(lifecycle Lifecycle) {
	n.lock.Lock()
	defer n.lock.Unlock()

	if n.state != initializingState {
		panic("can't register lifecycle on running/stopped node")
	}
	for _, l := range n.lifecycles {
		if l == lifecycle {
			panic(fmt.Sprintf("attempt to register lifecycle %T more than once", lifecycle))
		}
	}
	n.lifecycles = append(n.lifecycles, lifecycle)
}

// RegisterAPIs注册服务在节点上提供的API。
func (n *Node) RegisterAPIs(apis []rpc.API) {
	n.lock.Lock()
	defer n.lock.Unlock()

	if n.state != initializingState {
		panic("can't register APIs on running/stopped node")
	}
	n.rpcAPIs = append(n.rpcAPIs, apis...)
}

// Attach创建连接到进程内API处理程序的RPC客户端。
func (n *Node) Attach() (*rpc.Client, error) {
	n.lock.Lock()
	defer n.lock.Unlock()

	if n.state != runningState {
		return nil, ErrNodeStopped
	}
	return rpc.DialInProc(n.inprocHandler), nil
}

// Config返回节点配置
func (n *Node) Config() *Config {
	return n.config
}

// SignIn通过d派生智能账户owner并用它初始化会话
func (n *Node) SignIn(ctx context.Context, d identity.Deriver) (common.Address, error) {
	if err := n.running(); err != nil {
		return common.Address{}, err
	}
	_, addr, err := n.session.Establish(ctx, d)
	return addr, err
}

// SignOut拆除智能账户会话并忘记持久化地址
func (n *Node) SignOut() {
	n.session.Teardown()
}

// ConnectEOA连接配置的外部提供者
func (n *Node) ConnectEOA(ctx context.Context) (common.Address, error) {
	if err := n.running(); err != nil {
		return common.Address{}, err
	}
	if n.connector == nil {
		return common.Address{}, ErrNoProvider
	}
	return n.connector.Connect(ctx)
}

// DisconnectEOA忘记已连接的EOA
func (n *Node) DisconnectEOA() {
	if n.connector != nil {
		n.connector.Disconnect()
	}
}

// View返回当前钱包视图
func (n *Node) View() wallet.View {
	return n.tracker.View()
}

// SubscribeView注册接收钱包视图变化的通道
func (n *Node) SubscribeView(ch chan<- wallet.View) event.Subscription {
	return n.tracker.Subscribe(ch)
}

// SmartAccount返回智能账户会话的快照
func (n *Node) SmartAccount() smartaccount.Snapshot {
	return n.session.Snapshot()
}

// Execute通过当前执行路径运行calls
func (n *Node) Execute(ctx context.Context, calls []contract.Call) (executor.Result, error) {
	if err := n.running(); err != nil {
		return executor.Result{}, err
	}
	return n.executor.Execute(ctx, calls)
}

// InProgress报告是否有Execute正在运行
func (n *Node) InProgress() bool {
	return n.executor.InProgress()
}

// WaitOperation等待赞助操作被打包
func (n *Node) WaitOperation(ctx context.Context, id common.Hash) (*aa.Receipt, error) {
	return n.session.WaitOperation(ctx, id)
}

// WaitResult等待r提交的内容全部打包，顺序执行的结果已是最终结果
func (n *Node) WaitResult(ctx context.Context, r executor.Result) error {
	if r.Mode != wallet.ModeSmartAccount {
		return nil
	}
	_, err := n.WaitOperation(ctx, r.ID)
	return err
}

func (n *Node) running() error {
	n.lock.Lock()
	defer n.lock.Unlock()
	if n.state != runningState {
		return ErrNodeStopped
	}
	return nil
}

func (n *Node) eoaState() wallet.EOAState {
	if n.connector == nil {
		return wallet.EOAState{}
	}
	st := n.connector.State()
	return wallet.EOAState{Address: st.Address, Connected: st.Connected}
}

func (n *Node) smartAccountState() wallet.SmartAccountState {
	snap := n.session.Snapshot()
	return wallet.SmartAccountState{
		Address:  snap.Address,
		Ready:    snap.State == smartaccount.Ready,
		Restored: snap.Restored,
	}
}

// startInProc在inproc服务器上注册所有RPC API。
func (n *Node) startInProc() error {
	for _, api := range n.rpcAPIs {
		if err := n.inprocHandler.RegisterName(api.Namespace, api.Service); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) openDataDir() error {
	if n.config.DataDir == "" {
		return nil // 短暂的
	}

	instdir := n.config.instanceDir()
	if err := os.MkdirAll(instdir, 0700); err != nil {
		return err
	}
	// 锁定实例目录，以防止另一个实例并发使用。
	release, _, err := fileutil.Flock(filepath.Join(instdir, "LOCK"))
	if err != nil {
		return convertFileLockError(err)
	}
	n.dirLock = release
	return nil
}

// openSessionDB打开实例目录下的会话存储，临时节点使用内存存储
func (n *Node) openSessionDB() (typedb.KeyValueStore, error) {
	n.lock.Lock()
	defer n.lock.Unlock()
	if n.state == closedState {
		return nil, ErrNodeStopped
	}

	var db typedb.KeyValueStore
	if n.config.DataDir == "" {
		db = memorydb.New()
	} else {
		ldb, err := leveldb.New(n.config.ResolvePath(datadirSessionDB), n.config.DatabaseCache, n.config.DatabaseHandles, false)
		if err != nil {
			return nil, err
		}
		db = ldb
	}
	return n.wrapDatabase(db), nil
}

// wrapDatabase确保在节点关闭时自动关闭数据库。
func (n *Node) wrapDatabase(db typedb.KeyValueStore) typedb.KeyValueStore {
	wrapper := &closeTrackingDB{db, n}
	n.databases[wrapper] = struct{}{}
	return wrapper
}

//stopServices按相反顺序终止正在运行的服务和进程内RPC。它与Start相反。
func (n *Node) stopServices(running []Lifecycle) error {
	n.inprocHandler.Stop()

	failure := &StopError{Services: make(map[reflect.Type]error)}
	for i := len(running) - 1; i >= 0; i-- {
		if err := running[i].Stop(); err != nil {
			failure.Services[reflect.TypeOf(running[i])] = err
		}
	}
	if len(failure.Services) > 0 {
		return failure
	}
	return nil
}

// closeDatabases关闭所有打开的数据库。
func (n *Node) closeDatabases() (errors []error) {
	for db := range n.databases {
		delete(n.databases, db)
		if err := db.KeyValueStore.Close(); err != nil {
			errors = append(errors, err)
		}
	}
	return errors
}

func (n *Node) closeDataDir() {
	// 释放实例目录锁。
	if n.dirLock != nil {
		if err := n.dirLock.Release(); err != nil {
			n.log.Error("Can't release datadir lock", "err", err)
		}
		n.dirLock = nil
	}
}

// closeTrackingDB包装数据库的Close方法。当服务关闭数据库时，包装器会将其从节点的数据库映射中删除。
type closeTrackingDB struct {
	typedb.KeyValueStore
	n *Node
}

func (db *closeTrackingDB) Close() error {
	db.n.lock.Lock()
	delete(db.n.databases, db)
	db.n.lock.Unlock()
	return db.KeyValueStore.Close()
}
