package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/radiation-octopus/octopus-trade/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

type testBackend struct {
	baseFee *big.Int
	sent    []*types.Transaction
}

func (b *testBackend) ChainID(ctx context.Context) (*big.Int, error) { return big.NewInt(1337), nil }
func (b *testBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(10), BaseFee: b.baseFee}, nil
}
func (b *testBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(2), nil
}
func (b *testBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(7), nil
}
func (b *testBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return uint64(5 + len(b.sent)), nil
}
func (b *testBackend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 21000, nil
}
func (b *testBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.sent = append(b.sent, tx)
	return nil
}

func newTestProvider(t *testing.T, baseFee *big.Int) (*KeyProvider, *testBackend) {
	key, err := NewKeyFromHex(testKeyHex)
	require.NoError(t, err)
	backend := &testBackend{baseFee: baseFee}
	return NewKeyProvider(key, URL{Scheme: KeyStoreScheme, Path: "test"}, backend), backend
}

func TestKeyProviderAccounts(t *testing.T) {
	p, _ := newTestProvider(t, big.NewInt(10))

	raw, err := p.Request(context.Background(), "eth_requestAccounts")
	require.NoError(t, err)

	var accs []common.Address
	require.NoError(t, json.Unmarshal(raw, &accs))
	require.Len(t, accs, 1)
	assert.Equal(t, p.Account().Address, accs[0])
}

func TestKeyProviderSendDynamicFeeTx(t *testing.T) {
	p, backend := newTestProvider(t, big.NewInt(10))
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	data := hexutil.Bytes{0x01, 0x02}

	raw, err := p.Request(context.Background(), "eth_sendTransaction", TransactionArgs{To: &to, Data: &data})
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)

	var hash common.Hash
	require.NoError(t, json.Unmarshal(raw, &hash))

	tx := backend.sent[0]
	assert.Equal(t, tx.Hash(), hash)
	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	assert.Equal(t, uint64(5), tx.Nonce())
	// maxFee = tip + 2*baseFee
	assert.Equal(t, big.NewInt(22), tx.GasFeeCap())
	assert.Equal(t, big.NewInt(2), tx.GasTipCap())

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1337)), tx)
	require.NoError(t, err)
	assert.Equal(t, p.Account().Address, from)
}

func TestKeyProviderSendLegacyTx(t *testing.T) {
	p, backend := newTestProvider(t, nil)
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	_, err := p.Request(context.Background(), "eth_sendTransaction", TransactionArgs{To: &to})
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)
	assert.Equal(t, uint8(types.LegacyTxType), backend.sent[0].Type())
	assert.Equal(t, big.NewInt(7), backend.sent[0].GasPrice())
}

func TestKeyProviderPersonalSign(t *testing.T) {
	p, _ := newTestProvider(t, big.NewInt(10))
	msg := hexutil.Bytes("hello")

	raw, err := p.Request(context.Background(), "personal_sign", msg, p.Account().Address)
	require.NoError(t, err)

	var sig hexutil.Bytes
	require.NoError(t, json.Unmarshal(raw, &sig))
	signer, err := crypto.RecoverText(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, p.Account().Address, signer)

	_, err = p.Request(context.Background(), "personal_sign", msg, common.Address{0x1})
	assert.True(t, errors.Is(err, ErrUnknownAccount))
}

func TestKeyProviderRejects(t *testing.T) {
	p, _ := newTestProvider(t, big.NewInt(10))

	_, err := p.Request(context.Background(), "eth_signTypedData_v4")
	assert.True(t, errors.Is(err, ErrNotSupported))

	other := common.Address{0x2}
	to := common.Address{0x3}
	_, err = p.Request(context.Background(), "eth_sendTransaction", TransactionArgs{From: &other, To: &to})
	assert.True(t, errors.Is(err, ErrUnknownAccount))

	require.NoError(t, p.Close())
	_, err = p.Request(context.Background(), "eth_accounts")
	assert.Equal(t, ErrProviderClosed, err)
}
