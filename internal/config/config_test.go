package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

const validYAML = `
network:
  network: mainnet
  rpc_url: http://localhost:8545
  chain_id: 1
payment:
  formula: flat
  k1: 0
  k2_wei: "200000000000000"
  max_amount_wei: "500000000000000"
limits:
  per_bundle_cap_wei: "2000000000000000"
  daily_cap_wei: "500000000000000000"
  emergency_stop_enabled: false
  emergency_stop_threshold_wei: "100000000000000000"
builders:
  - name: flashbots
    relay_url: https://relay.flashbots.net
    payment_address: "0x000000000000000000000000000000000000dEaD"
    enabled: true
    timeout_seconds: 5
server:
  host: 0.0.0.0
  port: 8080
  request_timeout_seconds: 30
`

func TestLoadValidConfig(t *testing.T) {
	path := writeTempConfig(t, validYAML)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "mainnet", cfg.Network.Network)
	require.Len(t, cfg.Builders, 1)
}

func TestLoadRejectsNoEnabledBuilders(t *testing.T) {
	path := writeTempConfig(t, `
network: { network: mainnet, rpc_url: http://localhost:8545, chain_id: 1 }
payment: { formula: flat, k1: 0, k2_wei: "1", max_amount_wei: "1" }
limits: { per_bundle_cap_wei: "1", daily_cap_wei: "1" }
builders:
  - name: flashbots
    relay_url: https://relay.flashbots.net
    payment_address: "0x000000000000000000000000000000000000dEaD"
    enabled: false
    timeout_seconds: 5
server: { host: 0.0.0.0, port: 8080 }
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsPerBundleCapAboveDailyCap(t *testing.T) {
	path := writeTempConfig(t, `
network: { network: mainnet, rpc_url: http://localhost:8545, chain_id: 1 }
payment: { formula: flat, k1: 0, k2_wei: "1", max_amount_wei: "1" }
limits: { per_bundle_cap_wei: "1000", daily_cap_wei: "100" }
builders:
  - name: flashbots
    relay_url: https://relay.flashbots.net
    payment_address: "0x000000000000000000000000000000000000dEaD"
    enabled: true
    timeout_seconds: 5
server: { host: 0.0.0.0, port: 8080 }
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsInvalidPaymentAddress(t *testing.T) {
	path := writeTempConfig(t, `
network: { network: mainnet, rpc_url: http://localhost:8545, chain_id: 1 }
payment: { formula: flat, k1: 0, k2_wei: "1", max_amount_wei: "1" }
limits: { per_bundle_cap_wei: "1", daily_cap_wei: "100" }
builders:
  - name: flashbots
    relay_url: https://relay.flashbots.net
    payment_address: "not-an-address"
    enabled: true
    timeout_seconds: 5
server: { host: 0.0.0.0, port: 8080 }
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverrideAppliesK1(t *testing.T) {
	path := writeTempConfig(t, validYAML)
	t.Setenv("ATOMIC_BUNDLER_PAYMENT_K1", "2.5")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2.5, cfg.Payment.K1)
}

func TestParseFormulaRejectsUnknown(t *testing.T) {
	_, err := ParseFormula("quadratic")
	require.Error(t, err)
}

func TestParseWei(t *testing.T) {
	v, err := ParseWei("123456789012345678")
	require.NoError(t, err)
	require.Equal(t, "123456789012345678", v.Dec())
}
