package txcodec

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Forged is the output of forging a payment transaction: its raw
// RLP-encoded signed form and the transaction hash a full node would
// assign it, both 0x-prefixed lower-case hex.
type Forged struct {
	RawHex string
	Hash   string
}

// ForgeParams are the inputs to building and signing the payment
// transaction: empty input, empty access list, EIP-1559 (type-2).
type ForgeParams struct {
	To                   common.Address
	Value                *uint256.Int
	ChainID              uint64
	Nonce                uint64
	MaxFeePerGas         *uint256.Int
	MaxPriorityFeePerGas *uint256.Int
	GasLimit             uint64
	SignerKey            *ecdsa.PrivateKey
}

// Forge builds an EIP-1559 transaction with the given parameters,
// signs it with SignerKey, and returns its RLP-encoded hex and hash.
// Decoding Forge's output reproduces every field passed in here, and
// the returned hash equals keccak256 of the encoded bytes.
func Forge(p ForgeParams) (*Forged, error) {
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(p.ChainID),
		Nonce:     p.Nonce,
		GasTipCap: p.MaxPriorityFeePerGas.ToBig(),
		GasFeeCap: p.MaxFeePerGas.ToBig(),
		Gas:       p.GasLimit,
		To:        &p.To,
		Value:     p.Value.ToBig(),
		Data:      nil,
	})

	signer := types.NewLondonSigner(tx.ChainId())
	signed, err := types.SignTx(tx, signer, p.SignerKey)
	if err != nil {
		return nil, fmt.Errorf("sign payment transaction: %w", err)
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode payment transaction: %w", err)
	}

	return &Forged{
		RawHex: hexutil.Encode(raw),
		Hash:   hexutil.Encode(signed.Hash().Bytes()),
	}, nil
}

// DeriveAddress returns the Ethereum address for a private key, used
// by the orchestrator to identify the operator's signer account.
func DeriveAddress(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}
