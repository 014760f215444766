// Package signerkey resolves the operator's custodial signer private
// key from the environment. The key is opaque outside this package:
// it is handed to internal/txcodec for signing and is never logged.
package signerkey

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/swapnilraj/atomic-bundler/internal/bundlerrors"
)

const envVar = "PAYMENT_SIGNER_PRIVATE_KEY"

// Provider resolves the signer key on demand; a call per request keeps
// the core stateless with respect to the key and lets operators rotate
// it by restarting the process rather than the whole service contract.
type Provider struct{}

func NewProvider() *Provider { return &Provider{} }

// Key returns the parsed ECDSA signer key. It never returns the raw
// hex string.
func (p *Provider) Key() (*ecdsa.PrivateKey, error) {
	raw, ok := os.LookupEnv(envVar)
	if !ok || raw == "" {
		return nil, bundlerrors.New(bundlerrors.KindSignerKeyMissing,
			fmt.Sprintf("%s is not set", envVar))
	}

	hexKey := strings.TrimPrefix(raw, "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, bundlerrors.Wrap(bundlerrors.KindInvalidSignerKey, "invalid signer private key", err)
	}
	return key, nil
}
