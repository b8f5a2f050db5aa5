package settlement

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	relaysettlement "github.com/orris-inc/quickpay/internal/application/relay/settlement"
	"github.com/orris-inc/quickpay/internal/shared/logger"
)

var (
	testChainID  = big.NewInt(84532)
	testContract = common.HexToAddress("0x5e77000000000000000000000000000000005e77")
)

type rpcError struct {
	code int
	msg  string
}

func (e rpcError) Error() string  { return e.msg }
func (e rpcError) ErrorCode() int { return e.code }

type fakeEthClient struct {
	mu          sync.Mutex
	gas         uint64
	estimateErr error
	nonce       uint64
	nonceCalls  int
	sendErrs    []error
	sent        []*types.Transaction
	receipts    map[common.Hash]*types.Receipt
	pooled      map[common.Hash]bool
	callOutput  []byte
	callErr     error
	closed      bool
}

func newFakeEthClient() *fakeEthClient {
	return &fakeEthClient{
		gas:      100_000,
		nonce:    7,
		receipts: make(map[common.Hash]*types.Receipt),
		pooled:   make(map[common.Hash]bool),
	}
}

func (c *fakeEthClient) ChainID(context.Context) (*big.Int, error) { return testChainID, nil }

func (c *fakeEthClient) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return c.callOutput, c.callErr
}

func (c *fakeEthClient) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nonceCalls++
	return c.nonce, nil
}

func (c *fakeEthClient) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000), nil
}

func (c *fakeEthClient) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: big.NewInt(50_000_000)}, nil
}

func (c *fakeEthClient) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return c.gas, c.estimateErr
}

func (c *fakeEthClient) SendTransaction(_ context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sendErrs) > 0 {
		err := c.sendErrs[0]
		c.sendErrs = c.sendErrs[1:]
		if err != nil {
			return err
		}
	}
	c.sent = append(c.sent, tx)
	return nil
}

func (c *fakeEthClient) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	if r, ok := c.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (c *fakeEthClient) TransactionByHash(_ context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	if c.pooled[hash] {
		return nil, true, nil
	}
	return nil, false, ethereum.NotFound
}

func (c *fakeEthClient) Close() { c.closed = true }

func newTestEVMGateway(t *testing.T, client *fakeEthClient, gasCap uint64) *EVMGateway {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	gw, err := NewEVMGateway(client, EVMConfig{
		ChainID:     testChainID,
		Contract:    testContract,
		RelayerKey:  key,
		GasLimitCap: gasCap,
	}, logger.NewNop())
	require.NoError(t, err)
	return gw
}

func executeRequest(id byte) relaysettlement.ExecuteRequest {
	return relaysettlement.ExecuteRequest{
		SessionID: common.BytesToHash([]byte{0xaa}),
		To:        common.HexToAddress("0x3333333333333333333333333333333333333333"),
		Amount:    big.NewInt(1_000_000),
		PaymentID: common.BytesToHash([]byte{id}),
		Signature: make([]byte, 65),
	}
}

func TestEVMGateway_ExecuteSignsAndTracksNonce(t *testing.T) {
	client := newFakeEthClient()
	gw := newTestEVMGateway(t, client, 0)
	ctx := context.Background()

	h1, err := gw.ExecuteWithSession(ctx, executeRequest(1))
	require.NoError(t, err)
	h2, err := gw.ExecuteWithSession(ctx, executeRequest(2))
	require.NoError(t, err)

	require.Len(t, client.sent, 2)
	assert.Equal(t, 1, client.nonceCalls)
	assert.Equal(t, uint64(7), client.sent[0].Nonce())
	assert.Equal(t, uint64(8), client.sent[1].Nonce())
	assert.Equal(t, client.sent[0].Hash().Hex(), h1)
	assert.Equal(t, client.sent[1].Hash().Hex(), h2)

	tx := client.sent[0]
	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	assert.Equal(t, testContract, *tx.To())
	assert.Equal(t, uint64(120_000), tx.Gas())
	assert.Equal(t, big.NewInt(101_000_000), tx.GasFeeCap())

	from, err := types.Sender(types.NewLondonSigner(testChainID), tx)
	require.NoError(t, err)
	assert.Equal(t, gw.RelayerAddress(), from)

	method, err := gw.abi.MethodById(tx.Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, methodExecuteWithSession, method.Name)
}

func TestEVMGateway_ExecuteFailures(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(c *fakeEthClient)
		gasCap    uint64
		wantErr   error
		wantHash  bool
		wantReset bool
	}{
		{
			name:    "estimate reverts",
			setup:   func(c *fakeEthClient) { c.estimateErr = errors.New("execution reverted: daily limit") },
			wantErr: relaysettlement.ErrRejected,
		},
		{
			name:    "gas cap exceeded",
			setup:   func(c *fakeEthClient) {},
			gasCap:  50_000,
			wantErr: relaysettlement.ErrRejected,
		},
		{
			name:      "node rejects",
			setup:     func(c *fakeEthClient) { c.sendErrs = []error{rpcError{code: -32000, msg: "nonce too low"}} },
			wantErr:   relaysettlement.ErrRejected,
			wantReset: true,
		},
		{
			name:      "broadcast times out",
			setup:     func(c *fakeEthClient) { c.sendErrs = []error{context.DeadlineExceeded} },
			wantErr:   relaysettlement.ErrAmbiguous,
			wantHash:  true,
			wantReset: true,
		},
		{
			name:      "connection drops",
			setup:     func(c *fakeEthClient) { c.sendErrs = []error{errors.New("EOF")} },
			wantErr:   relaysettlement.ErrAmbiguous,
			wantHash:  true,
			wantReset: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeEthClient()
			tt.setup(client)
			gw := newTestEVMGateway(t, client, tt.gasCap)

			hash, err := gw.ExecuteWithSession(context.Background(), executeRequest(1))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantHash, hash != "")
			if tt.wantReset {
				assert.False(t, gw.nonceKnown)
			}
			assert.Empty(t, client.sent)
		})
	}
}

func TestEVMGateway_AlreadyKnownCountsAsBroadcast(t *testing.T) {
	client := newFakeEthClient()
	client.sendErrs = []error{rpcError{code: -32000, msg: "already known"}}
	gw := newTestEVMGateway(t, client, 0)

	hash, err := gw.ExecuteWithSession(context.Background(), executeRequest(1))
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.Equal(t, uint64(8), gw.nextNonce)
}

func TestEVMGateway_NonceRefetchedAfterFailure(t *testing.T) {
	client := newFakeEthClient()
	client.sendErrs = []error{context.DeadlineExceeded}
	gw := newTestEVMGateway(t, client, 0)
	ctx := context.Background()

	_, err := gw.ExecuteWithSession(ctx, executeRequest(1))
	require.ErrorIs(t, err, relaysettlement.ErrAmbiguous)

	client.nonce = 8
	_, err = gw.ExecuteWithSession(ctx, executeRequest(2))
	require.NoError(t, err)
	assert.Equal(t, 2, client.nonceCalls)
	assert.Equal(t, uint64(8), client.sent[0].Nonce())
}

func TestEVMGateway_GetTransactionStatus(t *testing.T) {
	client := newFakeEthClient()
	gw := newTestEVMGateway(t, client, 0)

	confirmed := common.HexToHash("0x01")
	reverted := common.HexToHash("0x02")
	pooled := common.HexToHash("0x03")
	client.receipts[confirmed] = &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(42)}
	client.receipts[reverted] = &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(43)}
	client.pooled[pooled] = true

	tests := []struct {
		hash  string
		want  relaysettlement.TxStatus
		block uint64
	}{
		{confirmed.Hex(), relaysettlement.TxStatusConfirmed, 42},
		{reverted.Hex(), relaysettlement.TxStatusReverted, 43},
		{pooled.Hex(), relaysettlement.TxStatusPending, 0},
		{common.HexToHash("0x04").Hex(), relaysettlement.TxStatusDropped, 0},
	}
	for _, tt := range tests {
		res, err := gw.GetTransactionStatus(context.Background(), tt.hash)
		require.NoError(t, err)
		assert.Equal(t, tt.want, res.Status, tt.hash)
		assert.Equal(t, tt.block, res.BlockNumber, tt.hash)
	}

	_, err := gw.GetTransactionStatus(context.Background(), "0xnothex")
	assert.Error(t, err)
}

func TestEVMGateway_ContractReads(t *testing.T) {
	client := newFakeEthClient()
	gw := newTestEVMGateway(t, client, 0)
	ctx := context.Background()

	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	signer := common.HexToAddress("0x2222222222222222222222222222222222222222")
	expiry := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	out, err := gw.abi.Methods[methodGetSession].Outputs.Pack(
		owner, signer, big.NewInt(10), big.NewInt(20), big.NewInt(5), uint64(expiry.Unix()), true)
	require.NoError(t, err)
	client.callOutput = out

	s, err := gw.GetSession(ctx, common.HexToHash("0xaa"))
	require.NoError(t, err)
	assert.Equal(t, owner, s.Owner)
	assert.Equal(t, signer, s.Signer)
	assert.Equal(t, int64(20), s.DailyLimit.Int64())
	assert.Equal(t, int64(5), s.UsedToday.Int64())
	assert.True(t, s.Expiry.Equal(expiry))
	assert.True(t, s.Active)

	out, err = gw.abi.Methods[methodGetSession].Outputs.Pack(
		common.Address{}, common.Address{}, big.NewInt(0), big.NewInt(0), big.NewInt(0), uint64(0), false)
	require.NoError(t, err)
	client.callOutput = out
	_, err = gw.GetSession(ctx, common.HexToHash("0xbb"))
	assert.ErrorIs(t, err, relaysettlement.ErrSessionNotRegistered)

	out, err = gw.abi.Methods[methodIsPaymentExecuted].Outputs.Pack(true)
	require.NoError(t, err)
	client.callOutput = out
	settled, err := gw.IsPaymentSettled(ctx, common.HexToHash("0x01"))
	require.NoError(t, err)
	assert.True(t, settled)

	client.callErr = errors.New("connection refused")
	_, err = gw.IsPaymentSettled(ctx, common.HexToHash("0x01"))
	assert.Error(t, err)
}

func TestEVMGateway_RegisterSession(t *testing.T) {
	client := newFakeEthClient()
	gw := newTestEVMGateway(t, client, 0)

	hash, err := gw.RegisterSession(context.Background(), relaysettlement.RegisterRequest{
		SessionID:      common.HexToHash("0xaa"),
		Owner:          common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Signer:         common.HexToAddress("0x2222222222222222222222222222222222222222"),
		SingleLimit:    big.NewInt(10),
		DailyLimit:     big.NewInt(20),
		Expiry:         time.Now().Add(24 * time.Hour),
		OwnerSignature: make([]byte, 65),
	})
	require.NoError(t, err)
	require.Len(t, client.sent, 1)
	assert.Equal(t, client.sent[0].Hash().Hex(), hash)

	method, err := gw.abi.MethodById(client.sent[0].Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, methodRegisterSession, method.Name)
}
