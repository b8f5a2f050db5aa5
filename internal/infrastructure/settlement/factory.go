package settlement

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	relaysettlement "github.com/orris-inc/quickpay/internal/application/relay/settlement"
	sharedConfig "github.com/orris-inc/quickpay/internal/shared/config"
	"github.com/orris-inc/quickpay/internal/shared/logger"
)

const (
	GatewayEVM  = "evm"
	GatewayMock = "mock"
)

// NewGateway builds the gateway selected by chain.gateway. The returned close
// function releases any RPC connection.
func NewGateway(ctx context.Context, cfg sharedConfig.ChainConfig, log logger.Interface) (relaysettlement.Gateway, func(), error) {
	switch cfg.Gateway {
	case GatewayMock, "":
		log.Warnw("using mock settlement gateway, payments are not settled on chain")
		return NewMockGateway(log.Named("mock-chain")), func() {}, nil
	case GatewayEVM:
		gw, err := dialEVMGateway(ctx, cfg, log.Named("evm-gateway"))
		if err != nil {
			return nil, nil, err
		}
		log.Infow("evm settlement gateway ready",
			"chain_id", cfg.ChainID,
			"contract", cfg.SettlementContract,
			"relayer", gw.RelayerAddress().Hex(),
		)
		return gw, gw.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown settlement gateway %q", cfg.Gateway)
	}
}

func dialEVMGateway(ctx context.Context, cfg sharedConfig.ChainConfig, log logger.Interface) (*EVMGateway, error) {
	if !common.IsHexAddress(cfg.SettlementContract) {
		return nil, fmt.Errorf("invalid settlement contract address %q", cfg.SettlementContract)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.RelayerPrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse relayer private key: %w", err)
	}

	dialCtx := ctx
	if cfg.RPCTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.RPCTimeout)
		defer cancel()
	}
	client, err := DialEthClient(dialCtx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC: %w", err)
	}

	chainID, err := client.ChainID(dialCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}
	if cfg.ChainID != 0 && chainID.Cmp(big.NewInt(cfg.ChainID)) != 0 {
		client.Close()
		return nil, fmt.Errorf("RPC chain id %s does not match configured %d", chainID, cfg.ChainID)
	}

	gw, err := NewEVMGateway(client, EVMConfig{
		ChainID:     chainID,
		Contract:    common.HexToAddress(cfg.SettlementContract),
		RelayerKey:  key,
		GasLimitCap: cfg.GasLimitCap,
	}, log)
	if err != nil {
		client.Close()
		return nil, err
	}
	return gw, nil
}
