package eoa

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/radiation-octopus/octopus-trade/accounts"
	"github.com/radiation-octopus/octopus-trade/contract"
	"github.com/radiation-octopus/octopus-trade/identity"
	"github.com/radiation-octopus/octopus-trade/terr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

// testChain is a minimal chain: every sent transaction is mined on the
// second receipt query, reverted ones with status 0.
type testChain struct {
	mu      sync.Mutex
	sent    []*types.Transaction
	queries map[common.Hash]int
	revert  map[common.Address]bool
}

func newTestChain() *testChain {
	return &testChain{queries: make(map[common.Hash]int), revert: make(map[common.Address]bool)}
}

func (c *testChain) ChainID(ctx context.Context) (*big.Int, error) { return big.NewInt(1337), nil }
func (c *testChain) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1), BaseFee: big.NewInt(10)}, nil
}
func (c *testChain) SuggestGasTipCap(ctx context.Context) (*big.Int, error) { return big.NewInt(1), nil }
func (c *testChain) SuggestGasPrice(ctx context.Context) (*big.Int, error)  { return big.NewInt(11), nil }
func (c *testChain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint64(len(c.sent)), nil
}
func (c *testChain) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 50000, nil
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
		if tx.Hash() != hash {
			continue
		}
		c.queries[hash]++
		if c.queries[hash] < 2 {
			return nil, ethereum.NotFound
		}
		status := types.ReceiptStatusSuccessful
		if c.revert[*tx.To()] {
			status = types.ReceiptStatusFailed
		}
		return &types.Receipt{Status: status, TxHash: hash, BlockNumber: big.NewInt(2)}, nil
	}
	return nil, ethereum.NotFound
}

func newTestConnector(t *testing.T) (*Connector, *testChain, *accounts.KeyProvider) {
	key, err := accounts.NewKeyFromHex(testKeyHex)
	require.NoError(t, err)
	chain := newTestChain()
	kp := accounts.NewKeyProvider(key, accounts.URL{Scheme: accounts.KeyStoreScheme, Path: "test"}, chain)
	c := NewConnector(kp, chain, time.Millisecond)
	t.Cleanup(c.Close)
	return c, chain, kp
}

func testCall(t *testing.T, to common.Address) contract.Call {
	call, err := contract.Approve(to, common.HexToAddress("0xaa"), big.NewInt(100))
	require.NoError(t, err)
	return call
}

func TestConnectDisconnect(t *testing.T) {
	c, _, kp := newTestConnector(t)
	states := make(chan State, 4)
	c.SubscribeState(states)

	assert.False(t, c.State().Connected)
	addr, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, kp.Account().Address, addr)
	assert.Equal(t, State{Address: addr, Connected: true}, c.State())

	c.Disconnect()
	c.Disconnect()
	assert.Equal(t, State{}, c.State())

	require.Len(t, states, 2)
	assert.True(t, (<-states).Connected)
	assert.False(t, (<-states).Connected)
}

type rejectingProvider struct{}

func (rejectingProvider) Request(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	return nil, &identity.ProviderError{Code: identity.CodeUserRejected, Message: "User rejected the request."}
}

func TestConnectRejected(t *testing.T) {
	c := NewConnector(rejectingProvider{}, nil, 0)
	_, err := c.Connect(context.Background())
	assert.ErrorIs(t, err, identity.ErrPermissionDenied)
	assert.False(t, c.State().Connected)
}

func TestSendAndWait(t *testing.T) {
	c, chain, kp := newTestConnector(t)
	token := common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")

	_, err := c.Send(context.Background(), testCall(t, token))
	assert.ErrorIs(t, err, terr.ErrNotConnected)

	_, err = c.Connect(context.Background())
	require.NoError(t, err)
	hash, err := c.Send(context.Background(), testCall(t, token))
	require.NoError(t, err)

	require.Len(t, chain.sent, 1)
	tx := chain.sent[0]
	assert.Equal(t, hash, tx.Hash())
	assert.Equal(t, token, *tx.To())
	sender, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	require.NoError(t, err)
	assert.Equal(t, kp.Account().Address, sender)

	receipt, err := c.WaitMined(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
}

func TestWaitMinedReverted(t *testing.T) {
	c, chain, _ := newTestConnector(t)
	bad := common.HexToAddress("0xdead")
	chain.revert[bad] = true

	_, err := c.Connect(context.Background())
	require.NoError(t, err)
	hash, err := c.Send(context.Background(), testCall(t, bad))
	require.NoError(t, err)

	receipt, err := c.WaitMined(context.Background(), hash)
	assert.True(t, errors.Is(err, ErrReverted))
	require.NotNil(t, receipt)
	assert.Equal(t, types.ReceiptStatusFailed, receipt.Status)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = c.WaitMined(ctx, common.HexToHash("0x01"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
