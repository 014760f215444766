// Package txcodec decodes raw signed Ethereum transactions and forges
// signed EIP-1559 payment transactions, matching exactly the bytes and
// hash a full node would assign them (EIP-2718 type-prefixed RLP).
package txcodec

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// Decoded is a typed view over a signed transaction's fields, used by
// internal/chain to reconstruct an eth_estimateGas call object.
type Decoded struct {
	Type                 uint8
	ChainID              *uint256.Int
	Nonce                uint64
	From                 common.Address
	To                   *common.Address
	Value                *uint256.Int
	Input                []byte
	GasLimit             uint64
	GasPrice             *uint256.Int
	MaxFeePerGas         *uint256.Int
	MaxPriorityFeePerGas *uint256.Int
	MaxFeePerBlobGas     *uint256.Int
	AccessList           types.AccessList
	BlobHashes           []common.Hash
	Hash                 common.Hash
}

// Decode accepts a 0x-prefixed or bare hex encoded signed transaction
// and parses its EIP-2718 envelope.
func Decode(rawTxHex string) (*Decoded, error) {
	raw, err := hexutil.Decode(ensure0x(rawTxHex))
	if err != nil {
		return nil, fmt.Errorf("invalid tx1 hex: %w", err)
	}

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("decode EIP-2718 envelope: %w", err)
	}

	signer := types.LatestSignerForChainID(tx.ChainId())
	from, err := types.Sender(signer, tx)
	if err != nil {
		return nil, fmt.Errorf("recover sender: %w", err)
	}

	d := &Decoded{
		Type:       tx.Type(),
		Nonce:      tx.Nonce(),
		From:       from,
		To:         tx.To(),
		Input:      tx.Data(),
		GasLimit:   tx.Gas(),
		AccessList: types.AccessList{},
		Hash:       tx.Hash(),
	}

	if al := tx.AccessList(); al != nil {
		d.AccessList = al
	}
	if bh := tx.BlobHashes(); bh != nil {
		d.BlobHashes = bh
	}

	var overflow bool
	d.ChainID, overflow = uint256.FromBig(tx.ChainId())
	if overflow {
		return nil, fmt.Errorf("chain id overflows 256 bits")
	}
	d.Value, overflow = uint256.FromBig(tx.Value())
	if overflow {
		return nil, fmt.Errorf("value overflows 256 bits")
	}

	if gp := tx.GasPrice(); gp != nil {
		d.GasPrice, _ = uint256.FromBig(gp)
	}
	if tip := tx.GasTipCap(); tip != nil {
		d.MaxPriorityFeePerGas, _ = uint256.FromBig(tip)
	}
	if fee := tx.GasFeeCap(); fee != nil {
		d.MaxFeePerGas, _ = uint256.FromBig(fee)
	}
	if blobFee := tx.BlobGasFeeCap(); blobFee != nil {
		d.MaxFeePerBlobGas, _ = uint256.FromBig(blobFee)
	}

	return d, nil
}

func ensure0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s
	}
	return "0x" + s
}
