package node

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/radiation-octopus/octopus-trade/aa"
	"github.com/radiation-octopus/octopus-trade/accounts"
	"github.com/radiation-octopus/octopus-trade/bundler"
	"github.com/radiation-octopus/octopus-trade/contract"
	"github.com/radiation-octopus/octopus-trade/identity"
	"github.com/radiation-octopus/octopus-trade/terr"
	"github.com/radiation-octopus/octopus-trade/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ownerKey = "289c2857d4598e37fb9647507e47a309d6133539bf21a8b9cb6df88fd5232032"
	eoaKey   = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"
)

var (
	usdc  = common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	vault = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

// testBundler sponsors everything and includes every operation on the first
// receipt query.
type testBundler struct {
	mu          sync.Mutex
	sent        []*aa.UserOperation
	entryPoints []common.Address
}

func (b *testBundler) SponsorUserOperation(ctx context.Context, op *aa.UserOperation, ep common.Address, sctx map[string]interface{}) (*bundler.Sponsorship, error) {
	return &bundler.Sponsorship{
		PaymasterAndData:     common.FromHex("0x00000000000000000000000000000000000000ff01"),
		CallGasLimit:         (*hexutil.Big)(big.NewInt(100000)),
		VerificationGasLimit: (*hexutil.Big)(big.NewInt(300000)),
		PreVerificationGas:   (*hexutil.Big)(big.NewInt(50000)),
	}, nil
}

func (b *testBundler) SendUserOperation(ctx context.Context, op *aa.UserOperation, ep common.Address) (common.Hash, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, op.Copy())
	return op.Hash(ep, big.NewInt(137))
}

func (b *testBundler) GetUserOperationReceipt(ctx context.Context, hash common.Hash) (*aa.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, op := range b.sent {
		if h, _ := op.Hash(DefaultConfig.EntryPoint, big.NewInt(137)); h == hash {
			return &aa.Receipt{UserOpHash: hash, Sender: op.Sender, Success: true}, nil
		}
	}
	return nil, ethereum.NotFound
}

func (b *testBundler) SupportedEntryPoints(ctx context.Context) ([]common.Address, error) {
	return b.entryPoints, nil
}

// testChain serves both execution paths. Sent transactions are mined
// immediately.
type testChain struct {
	mu   sync.Mutex
	sent []*types.Transaction
}

func (c *testChain) CodeAt(ctx context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	return nil, nil
}

func (c *testChain) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	return make([]byte, 32), nil
}

func (c *testChain) ChainID(ctx context.Context) (*big.Int, error) { return big.NewInt(137), nil }

func (c *testChain) HeaderByNumber(ctx context.Context, _ *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1), BaseFee: big.NewInt(10)}, nil
}

func (c *testChain) SuggestGasTipCap(ctx context.Context) (*big.Int, error) { return big.NewInt(2), nil }
func (c *testChain) SuggestGasPrice(ctx context.Context) (*big.Int, error)  { return big.NewInt(40), nil }

func (c *testChain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint64(len(c.sent)), nil
}

func (c *testChain) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 60000, nil
}

func (c *testChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, tx)
	return nil
}

func (c *testChain) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tx := range c.sent {
		if tx.Hash() == hash {
			return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: hash, BlockNumber: big.NewInt(2)}, nil
		}
	}
	return nil, ethereum.NotFound
}

func testConfig(datadir string) *Config {
	conf := DefaultConfig
	conf.DataDir = datadir
	conf.BundlerURL = "http://bundler.invalid"
	conf.PollInterval = time.Millisecond
	return &conf
}

func newTestNode(t *testing.T, conf *Config, provider bool) (*Node, *testBundler, *testChain) {
	b := &testBundler{entryPoints: []common.Address{DefaultConfig.EntryPoint}}
	c := new(testChain)
	backends := &Backends{Chain: c, Bundler: b}
	if provider {
		key, err := accounts.NewKeyFromHex(eoaKey)
		require.NoError(t, err)
		kp := accounts.NewKeyProvider(key, accounts.URL{Scheme: accounts.KeyStoreScheme, Path: "test"}, c)
		backends.Provider = kp
		backends.OnClose(func() { kp.Close() })
	}
	n, err := New(conf, backends)
	require.NoError(t, err)
	return n, b, c
}

func socialDeriver(expires time.Time) identity.Deriver {
	return identity.SocialDeriver(
		accounts.URL{Scheme: accounts.SocialScheme, Path: "test"},
		&identity.StaticSession{Key: common.FromHex(ownerKey), ExpiresAt: expires, Info: &identity.Profile{Name: "alice"}},
	)
}

func depositCalls(t *testing.T, receiver common.Address) []contract.Call {
	calls, err := contract.ApproveAndDeposit(usdc, vault, big.NewInt(1_000_000), receiver)
	require.NoError(t, err)
	return calls
}

func TestLoadConfig(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.toml")
	data := `
ChainID = 80002
RPCURL = "http://localhost:8545"
BundlerURL = "https://bundler.example/rpc"
APIKey = "secret"
EntryPoint = "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"
PollInterval = 500000000
`
	require.NoError(t, os.WriteFile(file, []byte(data), 0600))

	conf, err := LoadConfig(file)
	require.NoError(t, err)
	assert.Equal(t, uint64(80002), conf.ChainID)
	assert.Equal(t, 500*time.Millisecond, conf.PollInterval)
	// untouched fields keep their defaults
	assert.Equal(t, DefaultConfig.AccountFactory, conf.AccountFactory)
	assert.Equal(t, "SPONSORED", conf.SponsorshipMode)
	require.NoError(t, conf.Validate())

	ep, err := conf.BundlerEndpoint()
	require.NoError(t, err)
	assert.Equal(t, "https://bundler.example/rpc?apikey=secret", ep)
	pm, err := conf.PaymasterEndpoint()
	require.NoError(t, err)
	assert.Equal(t, ep, pm)

	sc := conf.SessionConfig()
	assert.Equal(t, int64(80002), sc.ChainID.Int64())
	assert.Equal(t, map[string]interface{}{"mode": "SPONSORED"}, sc.SponsorshipContext)

	out, err := conf.Dump()
	require.NoError(t, err)
	assert.Contains(t, string(out), "BundlerURL")
}

func TestLoadConfigUnknownField(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(file, []byte("Bogus = 1\n"), 0600))

	_, err := LoadConfig(file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), file)
	assert.Contains(t, err.Error(), "Bogus")
}

func TestConfigValidate(t *testing.T) {
	conf := DefaultConfig
	assert.Error(t, conf.Validate(), "bundler url missing")
	conf.BundlerURL = "http://b"
	assert.NoError(t, conf.Validate())
	conf.ChainID = 0
	assert.Error(t, conf.Validate())
}

func TestNodeLifecycle(t *testing.T) {
	n, _, _ := newTestNode(t, testConfig(""), false)

	_, err := n.Execute(context.Background(), depositCalls(t, common.Address{}))
	assert.ErrorIs(t, err, ErrNodeStopped)

	require.NoError(t, n.Start())
	assert.ErrorIs(t, n.Start(), ErrNodeRunning)
	require.NoError(t, n.Close())
	assert.ErrorIs(t, n.Close(), ErrNodeStopped)
	assert.ErrorIs(t, n.Start(), ErrNodeStopped)

	select {
	case <-n.stop:
	default:
		t.Fatal("Wait channel not closed")
	}
}

func TestNodeUsedDataDir(t *testing.T) {
	dir := t.TempDir()
	n, _, _ := newTestNode(t, testConfig(dir), false)
	defer n.Close()

	_, err := New(testConfig(dir), &Backends{Chain: new(testChain), Bundler: new(testBundler)})
	assert.ErrorIs(t, err, ErrDatadirUsed)
}

func TestSignInPersistsAndRestores(t *testing.T) {
	dir := t.TempDir()
	n, _, _ := newTestNode(t, testConfig(dir), false)
	require.NoError(t, n.Start())

	assert.Equal(t, wallet.ModeNone, n.View().Mode)
	addr, err := n.SignIn(context.Background(), socialDeriver(time.Time{}))
	require.NoError(t, err)

	v := n.View()
	assert.Equal(t, wallet.ModeSmartAccount, v.Mode)
	assert.Equal(t, addr, v.Address)
	assert.Equal(t, "alice", v.DisplayName)
	assert.False(t, v.Optimistic)
	require.NoError(t, n.Close())

	// a fresh node only has the persisted address, which cannot execute
	n2, b, _ := newTestNode(t, testConfig(dir), false)
	require.NoError(t, n2.Start())
	defer n2.Close()

	v = n2.View()
	assert.Equal(t, addr, v.Address)
	assert.True(t, v.Optimistic)
	assert.False(t, v.Connected)
	_, err = n2.Execute(context.Background(), depositCalls(t, addr))
	assert.ErrorIs(t, err, terr.ErrNotInitialized)
	assert.Empty(t, b.sent)

	n2.SignOut()
	assert.Equal(t, wallet.ModeNone, n2.View().Mode)
}

func TestExecuteSmartAccount(t *testing.T) {
	n, b, _ := newTestNode(t, testConfig(""), true)
	require.NoError(t, n.Start())
	defer n.Close()

	views := make(chan wallet.View, 8)
	sub := n.SubscribeView(views)
	defer sub.Unsubscribe()

	addr, err := n.SignIn(context.Background(), socialDeriver(time.Time{}))
	require.NoError(t, err)

	timeout := time.After(time.Second)
wait:
	for {
		select {
		case v := <-views:
			if v.Mode == wallet.ModeSmartAccount {
				assert.Equal(t, addr, v.Address)
				break wait
			}
		case <-timeout:
			t.Fatal("no smart-account view posted")
		}
	}

	// the smart account wins over a connected EOA
	_, err = n.ConnectEOA(context.Background())
	require.NoError(t, err)
	res, err := n.Execute(context.Background(), depositCalls(t, addr))
	require.NoError(t, err)
	assert.Equal(t, wallet.ModeSmartAccount, res.Mode)
	require.Len(t, b.sent, 1)
	assert.Equal(t, addr, b.sent[0].Sender)
	assert.NotEmpty(t, b.sent[0].InitCode)

	require.NoError(t, n.WaitResult(context.Background(), res))
}

func TestExecuteEOA(t *testing.T) {
	n, b, c := newTestNode(t, testConfig(""), true)
	require.NoError(t, n.Start())
	defer n.Close()

	from, err := n.ConnectEOA(context.Background())
	require.NoError(t, err)
	assert.Equal(t, wallet.ModeExternallyOwned, n.View().Mode)

	res, err := n.Execute(context.Background(), depositCalls(t, from))
	require.NoError(t, err)
	assert.Equal(t, wallet.ModeExternallyOwned, res.Mode)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, res.Steps[1], res.ID)
	assert.Len(t, c.sent, 2)
	assert.Equal(t, usdc, *c.sent[0].To())
	assert.Equal(t, vault, *c.sent[1].To())
	assert.Empty(t, b.sent)
	require.NoError(t, n.WaitResult(context.Background(), res))

	n.DisconnectEOA()
	_, err = n.Execute(context.Background(), depositCalls(t, from))
	assert.ErrorIs(t, err, terr.ErrNotConnected)
}

func TestConnectWithoutProvider(t *testing.T) {
	n, _, _ := newTestNode(t, testConfig(""), false)
	require.NoError(t, n.Start())
	defer n.Close()

	_, err := n.ConnectEOA(context.Background())
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestEntryPointCheck(t *testing.T) {
	conf := testConfig("")
	conf.CheckEntryPoint = true
	b := &testBundler{entryPoints: []common.Address{common.HexToAddress("0x01")}}
	n, err := New(conf, &Backends{Chain: new(testChain), Bundler: b})
	require.NoError(t, err)

	err = n.Start()
	assert.ErrorIs(t, err, ErrEntryPointUnsupported)
	assert.ErrorIs(t, n.Close(), ErrNodeStopped)
}

func TestTradeAPI(t *testing.T) {
	n, _, _ := newTestNode(t, testConfig(""), false)
	require.NoError(t, n.Start())
	defer n.Close()

	addr, err := n.SignIn(context.Background(), socialDeriver(time.Time{}))
	require.NoError(t, err)

	client, err := n.Attach()
	require.NoError(t, err)
	defer client.Close()

	var view ViewResult
	require.NoError(t, client.Call(&view, "octrade_view"))
	assert.Equal(t, "smart-account", view.Mode)
	assert.Equal(t, addr, view.Address)
	assert.False(t, view.InProgress)

	var sess SessionResult
	require.NoError(t, client.Call(&sess, "octrade_smartAccount"))
	assert.Equal(t, "ready", sess.State)
	require.NotNil(t, sess.Address)
	assert.Equal(t, addr, *sess.Address)

	var receipt *aa.Receipt
	require.NoError(t, client.Call(&receipt, "octrade_operationReceipt", common.HexToHash("0x01")))
	assert.Nil(t, receipt)
}
