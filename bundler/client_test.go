package bundler

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/radiation-octopus/octopus-trade/aa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	entryPoint = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
	paymaster  = common.HexToAddress("0x00000000000000000000000000000000000000ff")
	sender     = common.HexToAddress("0x1dbbbd0dbb1c4f89e88cc6c12bf9b37ac4c32a09")
)

// fakeBundler serves both the pm_ and eth_ namespaces.
type fakeBundler struct {
	mu       sync.Mutex
	sponsor  []map[string]interface{}
	sent     []aa.UserOperation
	noPm     bool
	rejectOp error
	included map[common.Hash]bool
}

type pmAPI struct{ b *fakeBundler }

func (api *pmAPI) SponsorUserOperation(op aa.UserOperation, ep common.Address, ctx map[string]interface{}) (*Sponsorship, error) {
	api.b.mu.Lock()
	defer api.b.mu.Unlock()
	api.b.sponsor = append(api.b.sponsor, ctx)
	if api.b.noPm {
		return &Sponsorship{}, nil
	}
	return &Sponsorship{
		PaymasterAndData:     append(paymaster.Bytes(), 0x01, 0x02),
		CallGasLimit:         (*hexutil.Big)(big.NewInt(90000)),
		VerificationGasLimit: (*hexutil.Big)(big.NewInt(150000)),
		PreVerificationGas:   (*hexutil.Big)(big.NewInt(48000)),
	}, nil
}

type ethAPI struct{ b *fakeBundler }

func (api *ethAPI) SendUserOperation(op aa.UserOperation, ep common.Address) (common.Hash, error) {
	api.b.mu.Lock()
	defer api.b.mu.Unlock()
	if api.b.rejectOp != nil {
		return common.Hash{}, api.b.rejectOp
	}
	api.b.sent = append(api.b.sent, op)
	h, err := op.Hash(ep, big.NewInt(137))
	if err != nil {
		return common.Hash{}, err
	}
	api.b.included[h] = true
	return h, nil
}

func (api *ethAPI) GetUserOperationReceipt(hash common.Hash) (*aa.Receipt, error) {
	api.b.mu.Lock()
	defer api.b.mu.Unlock()
	if !api.b.included[hash] {
		return nil, nil
	}
	return &aa.Receipt{
		UserOpHash: hash,
		Sender:     sender,
		Success:    true,
		Receipt:    aa.TxReceipt{TransactionHash: common.HexToHash("0xabc"), BlockNumber: (*hexutil.Big)(big.NewInt(10))},
	}, nil
}

func (api *ethAPI) SupportedEntryPoints() []common.Address { return []common.Address{entryPoint} }

func (api *ethAPI) ChainId() *hexutil.Big { return (*hexutil.Big)(big.NewInt(137)) }

func newTestClient(t *testing.T) (*Client, *fakeBundler) {
	b := &fakeBundler{included: make(map[common.Hash]bool)}
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("pm", &pmAPI{b}))
	require.NoError(t, server.RegisterName("eth", &ethAPI{b}))
	client := rpc.DialInProc(server)
	t.Cleanup(func() {
		client.Close()
		server.Stop()
	})
	return NewClient(client, client), b
}

func testOp() *aa.UserOperation {
	return &aa.UserOperation{
		Sender:               sender,
		Nonce:                big.NewInt(0),
		CallData:             []byte{0xb6, 0x1d, 0x27, 0xf6},
		MaxFeePerGas:         big.NewInt(30),
		MaxPriorityFeePerGas: big.NewInt(2),
		Signature:            aa.DummySignature,
	}
}

func TestSponsorUserOperation(t *testing.T) {
	c, b := newTestClient(t)
	op := testOp()

	res, err := c.SponsorUserOperation(context.Background(), op, entryPoint, map[string]interface{}{"mode": "SPONSORED"})
	require.NoError(t, err)
	require.Len(t, b.sponsor, 1)
	assert.Equal(t, "SPONSORED", b.sponsor[0]["mode"])

	res.Apply(op)
	assert.True(t, op.HasPaymaster())
	assert.Equal(t, paymaster, op.PaymasterAddress())
	assert.Equal(t, int64(90000), op.CallGasLimit.Int64())
	assert.Equal(t, int64(48000), op.PreVerificationGas.Int64())
	// fee fields the paymaster left out are kept
	assert.Equal(t, int64(30), op.MaxFeePerGas.Int64())

	b.noPm = true
	_, err = c.SponsorUserOperation(context.Background(), op, entryPoint, nil)
	assert.ErrorIs(t, err, errEmptySponsorship)
}

func TestSendAndReceipt(t *testing.T) {
	c, b := newTestClient(t)
	op := testOp()

	hash, err := c.SendUserOperation(context.Background(), op, entryPoint)
	require.NoError(t, err)
	want, _ := op.Hash(entryPoint, big.NewInt(137))
	assert.Equal(t, want, hash)
	require.Len(t, b.sent, 1)
	assert.Equal(t, op.CallData, []byte(b.sent[0].CallData))

	r, err := c.GetUserOperationReceipt(context.Background(), hash)
	require.NoError(t, err)
	assert.True(t, r.Success)
	assert.Equal(t, int64(10), r.BlockNumber().Int64())

	_, err = c.GetUserOperationReceipt(context.Background(), common.HexToHash("0x01"))
	assert.True(t, errors.Is(err, ethereum.NotFound))
}

func TestSendRejected(t *testing.T) {
	c, b := newTestClient(t)
	b.rejectOp = errors.New("AA21 didn't pay prefund")

	_, err := c.SendUserOperation(context.Background(), testOp(), entryPoint)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AA21")
}

func TestBundlerInfo(t *testing.T) {
	c, _ := newTestClient(t)
	eps, err := c.SupportedEntryPoints(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []common.Address{entryPoint}, eps)

	id, err := c.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(137), id.Int64())
}
