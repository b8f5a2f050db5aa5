package settlement

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"

	relaysettlement "github.com/orris-inc/quickpay/internal/application/relay/settlement"
	"github.com/orris-inc/quickpay/internal/shared/logger"
	"github.com/orris-inc/quickpay/internal/shared/utils/logutil"
)

const (
	// gasBufferPercent is added on top of the node's estimate.
	gasBufferPercent = 20
	// baseFeeMultiplier leaves headroom for base fee growth across blocks.
	baseFeeMultiplier = 2
	// maxLoggedErrorLen bounds node error text, which can carry full revert data.
	maxLoggedErrorLen = 256
)

// EVMConfig configures the ethclient-backed gateway.
type EVMConfig struct {
	ChainID     *big.Int
	Contract    common.Address
	RelayerKey  *ecdsa.PrivateKey
	GasLimitCap uint64 // 0 disables the cap
}

// EVMGateway talks to the settlement contract through a JSON-RPC node. It
// signs EIP-1559 transactions with the relayer key and owns that key's nonce.
type EVMGateway struct {
	client  EthClient
	abi     abi.ABI
	cfg     EVMConfig
	relayer common.Address
	signer  ethtypes.Signer
	logger  logger.Interface

	nonceMu    sync.Mutex
	nextNonce  uint64
	nonceKnown bool
}

var (
	_ relaysettlement.Gateway          = (*EVMGateway)(nil)
	_ relaysettlement.SessionRegistrar = (*EVMGateway)(nil)
)

func NewEVMGateway(client EthClient, cfg EVMConfig, log logger.Interface) (*EVMGateway, error) {
	if cfg.RelayerKey == nil {
		return nil, fmt.Errorf("relayer key is required")
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("chain id is required")
	}
	parsed, err := parseSessionPaymentABI()
	if err != nil {
		return nil, fmt.Errorf("failed to parse settlement ABI: %w", err)
	}

	relayer := crypto.PubkeyToAddress(cfg.RelayerKey.PublicKey)
	log.Infow("evm settlement gateway initialized",
		"chain_id", cfg.ChainID.String(),
		"contract", cfg.Contract.Hex(),
		"relayer", relayer.Hex(),
	)

	return &EVMGateway{
		client:  client,
		abi:     parsed,
		cfg:     cfg,
		relayer: relayer,
		signer:  ethtypes.NewLondonSigner(cfg.ChainID),
		logger:  log,
	}, nil
}

// RelayerAddress is the account paying gas for settlements.
func (g *EVMGateway) RelayerAddress() common.Address {
	return g.relayer
}

func (g *EVMGateway) ExecuteWithSession(ctx context.Context, req relaysettlement.ExecuteRequest) (string, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return "", fmt.Errorf("%w: amount must be positive", relaysettlement.ErrRejected)
	}
	data, err := g.abi.Pack(methodExecuteWithSession,
		req.SessionID, req.To, req.Amount, req.PaymentID, req.Signature)
	if err != nil {
		return "", fmt.Errorf("%w: pack %s: %v", relaysettlement.ErrRejected, methodExecuteWithSession, err)
	}
	return g.transact(ctx, data, "payment_id", req.PaymentID.Hex())
}

func (g *EVMGateway) RegisterSession(ctx context.Context, req relaysettlement.RegisterRequest) (string, error) {
	data, err := g.abi.Pack(methodRegisterSession,
		req.SessionID, req.Owner, req.Signer, req.SingleLimit, req.DailyLimit,
		uint64(req.Expiry.Unix()), req.OwnerSignature)
	if err != nil {
		return "", fmt.Errorf("%w: pack %s: %v", relaysettlement.ErrRejected, methodRegisterSession, err)
	}
	return g.transact(ctx, data, "session_id", req.SessionID.Hex())
}

// transact estimates, signs and broadcasts one contract call. The hash is
// known before broadcast, so an ambiguous send still reports it.
func (g *EVMGateway) transact(ctx context.Context, data []byte, logKey, logValue string) (string, error) {
	g.nonceMu.Lock()
	defer g.nonceMu.Unlock()

	log := g.logger.With(logKey, logValue)

	gasLimit, err := g.client.EstimateGas(ctx, ethereum.CallMsg{
		From: g.relayer,
		To:   &g.cfg.Contract,
		Data: data,
	})
	if err != nil {
		// The node simulates the call; a failure here means it would revert.
		log.Debugw("call simulation failed", "error", logutil.TruncateForLog(err.Error(), maxLoggedErrorLen))
		return "", fmt.Errorf("%w: estimate gas: %v", relaysettlement.ErrRejected, err)
	}
	gasLimit = gasLimit * (100 + gasBufferPercent) / 100
	if g.cfg.GasLimitCap > 0 && gasLimit > g.cfg.GasLimitCap {
		return "", fmt.Errorf("%w: gas limit %d exceeds cap %d", relaysettlement.ErrRejected, gasLimit, g.cfg.GasLimitCap)
	}

	nonce, err := g.currentNonce(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", relaysettlement.ErrRejected, err)
	}

	tipCap, err := g.client.SuggestGasTipCap(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: suggest gas tip cap: %v", relaysettlement.ErrRejected, err)
	}
	head, err := g.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%w: latest header: %v", relaysettlement.ErrRejected, err)
	}
	if head.BaseFee == nil {
		return "", fmt.Errorf("%w: chain does not support EIP-1559", relaysettlement.ErrRejected)
	}
	feeCap := new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(baseFeeMultiplier)), tipCap)

	tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   g.cfg.ChainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &g.cfg.Contract,
		Value:     big.NewInt(0),
		Data:      data,
	})
	signed, err := ethtypes.SignTx(tx, g.signer, g.cfg.RelayerKey)
	if err != nil {
		return "", fmt.Errorf("%w: sign transaction: %v", relaysettlement.ErrRejected, err)
	}
	txHash := signed.Hash().Hex()

	if err := g.client.SendTransaction(ctx, signed); err != nil {
		if isAlreadyKnown(err) {
			g.nextNonce = nonce + 1
			log.Infow("transaction already in mempool", "tx_hash", txHash, "nonce", nonce)
			return txHash, nil
		}
		g.nonceKnown = false
		if isNodeRejection(err) {
			log.Warnw("transaction rejected by node", "tx_hash", txHash, "nonce", nonce,
				"error", logutil.TruncateForLog(err.Error(), maxLoggedErrorLen))
			return "", fmt.Errorf("%w: send transaction: %v", relaysettlement.ErrRejected, err)
		}
		log.Warnw("transaction broadcast outcome unknown", "tx_hash", txHash, "nonce", nonce,
			"error", logutil.TruncateForLog(err.Error(), maxLoggedErrorLen))
		return txHash, fmt.Errorf("%w: send transaction: %v", relaysettlement.ErrAmbiguous, err)
	}

	g.nextNonce = nonce + 1
	log.Infow("transaction broadcast", "tx_hash", txHash, "nonce", nonce, "gas", gasLimit)
	return txHash, nil
}

// currentNonce must be called with nonceMu held.
func (g *EVMGateway) currentNonce(ctx context.Context) (uint64, error) {
	if g.nonceKnown {
		return g.nextNonce, nil
	}
	nonce, err := g.client.PendingNonceAt(ctx, g.relayer)
	if err != nil {
		return 0, fmt.Errorf("pending nonce: %w", err)
	}
	g.nextNonce = nonce
	g.nonceKnown = true
	return nonce, nil
}

func (g *EVMGateway) GetSession(ctx context.Context, sessionID common.Hash) (*relaysettlement.OnChainSession, error) {
	out, err := g.call(ctx, methodGetSession, sessionID)
	if err != nil {
		return nil, err
	}
	if len(out) != 7 {
		return nil, fmt.Errorf("unexpected %s output length %d", methodGetSession, len(out))
	}

	owner, _ := out[0].(common.Address)
	if owner == (common.Address{}) {
		return nil, relaysettlement.ErrSessionNotRegistered
	}
	signer, _ := out[1].(common.Address)
	expiry, _ := out[5].(uint64)
	active, _ := out[6].(bool)

	return &relaysettlement.OnChainSession{
		Owner:       owner,
		Signer:      signer,
		SingleLimit: bigOrZero(out[2]),
		DailyLimit:  bigOrZero(out[3]),
		UsedToday:   bigOrZero(out[4]),
		Expiry:      time.Unix(int64(expiry), 0).UTC(),
		Active:      active,
	}, nil
}

func (g *EVMGateway) IsPaymentSettled(ctx context.Context, paymentID common.Hash) (bool, error) {
	out, err := g.call(ctx, methodIsPaymentExecuted, paymentID)
	if err != nil {
		return false, err
	}
	if len(out) != 1 {
		return false, fmt.Errorf("unexpected %s output length %d", methodIsPaymentExecuted, len(out))
	}
	executed, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected %s output type %T", methodIsPaymentExecuted, out[0])
	}
	return executed, nil
}

// GetTransactionStatus maps a receipt to a TxStatus. A hash the node has
// neither mined nor pooled is reported as dropped.
func (g *EVMGateway) GetTransactionStatus(ctx context.Context, txHash string) (relaysettlement.TxResult, error) {
	if !isHexHash(txHash) {
		return relaysettlement.TxResult{}, fmt.Errorf("invalid transaction hash %q", txHash)
	}
	hash := common.HexToHash(txHash)

	receipt, err := g.client.TransactionReceipt(ctx, hash)
	if err == nil {
		res := relaysettlement.TxResult{Status: relaysettlement.TxStatusReverted}
		if receipt.Status == ethtypes.ReceiptStatusSuccessful {
			res.Status = relaysettlement.TxStatusConfirmed
		}
		if receipt.BlockNumber != nil {
			res.BlockNumber = receipt.BlockNumber.Uint64()
		}
		return res, nil
	}
	if !errors.Is(err, ethereum.NotFound) {
		return relaysettlement.TxResult{}, fmt.Errorf("transaction receipt: %w", err)
	}

	_, _, err = g.client.TransactionByHash(ctx, hash)
	switch {
	case err == nil:
		// pooled, or mined with the receipt not yet indexed
		return relaysettlement.TxResult{Status: relaysettlement.TxStatusPending}, nil
	case errors.Is(err, ethereum.NotFound):
		return relaysettlement.TxResult{Status: relaysettlement.TxStatusDropped}, nil
	default:
		return relaysettlement.TxResult{}, fmt.Errorf("transaction by hash: %w", err)
	}
}

func (g *EVMGateway) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := g.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := g.client.CallContract(ctx, ethereum.CallMsg{
		From: g.relayer,
		To:   &g.cfg.Contract,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	out, err := g.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

// Close releases the RPC connection.
func (g *EVMGateway) Close() {
	g.client.Close()
}

// isNodeRejection reports a JSON-RPC error answer: the node received the
// transaction and refused it, so it will never be mined.
func isNodeRejection(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr)
}

func isAlreadyKnown(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") || strings.Contains(msg, "already imported")
}

func isHexHash(s string) bool {
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 2*common.HashLength {
		return false
	}
	_, err := hexutil.Decode("0x" + s)
	return err == nil
}

func bigOrZero(v any) *big.Int {
	if b, ok := v.(*big.Int); ok && b != nil {
		return b
	}
	return new(big.Int)
}
