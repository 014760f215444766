// Package chain is the read-only gateway to a single configured
// Ethereum RPC endpoint: latest base fee, signer nonce/balance, and
// eth_estimateGas against the decoded tx1 envelope.
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"

	"github.com/swapnilraj/atomic-bundler/internal/bundlerrors"
	"github.com/swapnilraj/atomic-bundler/internal/txcodec"
)

// defaultBaseFee is the fallback used when the latest block predates
// EIP-1559 (no base fee field).
var defaultBaseFee = big.NewInt(20_000_000_000) // 20 gwei

// Gateway wraps an ethclient.Client bound to one RPC endpoint.
type Gateway struct {
	client *ethclient.Client
}

func Dial(ctx context.Context, rpcURL string) (*Gateway, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, bundlerrors.Wrap(bundlerrors.KindChainRPCUnavailable, "dial RPC endpoint", err)
	}
	return &Gateway{client: client}, nil
}

func (g *Gateway) Close() {
	g.client.Close()
}

// LatestBaseFee returns the latest block's base fee per gas, falling
// back to 20 gwei for pre-London chains.
func (g *Gateway) LatestBaseFee(ctx context.Context) (*uint256.Int, error) {
	header, err := g.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, bundlerrors.Wrap(bundlerrors.KindChainRPCUnavailable, "fetch latest block header", err)
	}

	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = defaultBaseFee
	}
	u, overflow := uint256.FromBig(baseFee)
	if overflow {
		return nil, bundlerrors.New(bundlerrors.KindChainRPCUnavailable, "base fee overflows 256 bits")
	}
	return u, nil
}

// NonceOf returns the latest confirmed transaction count for address.
func (g *Gateway) NonceOf(ctx context.Context, address common.Address) (uint64, error) {
	nonce, err := g.client.NonceAt(ctx, address, nil)
	if err != nil {
		return 0, bundlerrors.Wrap(bundlerrors.KindChainRPCUnavailable, "fetch nonce", err)
	}
	return nonce, nil
}

// BalanceOf returns the latest balance for address.
func (g *Gateway) BalanceOf(ctx context.Context, address common.Address) (*uint256.Int, error) {
	bal, err := g.client.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, bundlerrors.Wrap(bundlerrors.KindChainRPCUnavailable, "fetch balance", err)
	}
	u, overflow := uint256.FromBig(bal)
	if overflow {
		return nil, bundlerrors.New(bundlerrors.KindChainRPCUnavailable, "balance overflows 256 bits")
	}
	return u, nil
}

// EstimateGas decodes rawTxHex (EIP-2718 framed, 0x-prefixed or bare)
// and calls eth_estimateGas with a call object reconstructed from its
// fields, reconciling legacy vs. 1559 fee keys by the decoded type.
func (g *Gateway) EstimateGas(ctx context.Context, rawTxHex string) (uint64, error) {
	decoded, err := txcodec.Decode(rawTxHex)
	if err != nil {
		return 0, bundlerrors.Wrap(bundlerrors.KindChainRPCUnavailable, "decode tx1 for gas estimation", err)
	}

	msg := ethereum.CallMsg{
		From:       decoded.From,
		To:         decoded.To,
		Value:      decoded.Value.ToBig(),
		Data:       decoded.Input,
		AccessList: decoded.AccessList,
	}

	switch decoded.Type {
	case types.LegacyTxType, types.AccessListTxType:
		msg.GasPrice = decoded.GasPrice.ToBig()
	default:
		msg.GasFeeCap = decoded.MaxFeePerGas.ToBig()
		msg.GasTipCap = decoded.MaxPriorityFeePerGas.ToBig()
	}

	gas, err := g.client.EstimateGas(ctx, msg)
	if err != nil {
		return 0, bundlerrors.Wrap(bundlerrors.KindChainRPCUnavailable, fmt.Sprintf("eth_estimateGas for type %d tx", decoded.Type), err)
	}
	return gas, nil
}
