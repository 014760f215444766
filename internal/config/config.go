// Package config loads and validates the operator configuration for
// the atomic bundler: network, targets, payment, limits, builders, and
// the ambient server/logging/metrics/security sections.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/holiman/uint256"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Formula selects the payment calculation in use by internal/payment.
type Formula string

const (
	FormulaFlat     Formula = "flat"
	FormulaGas      Formula = "gas"
	FormulaBasefee  Formula = "basefee"
)

func ParseFormula(s string) (Formula, error) {
	switch Formula(strings.ToLower(s)) {
	case FormulaFlat:
		return FormulaFlat, nil
	case FormulaGas:
		return FormulaGas, nil
	case FormulaBasefee:
		return FormulaBasefee, nil
	default:
		return "", fmt.Errorf("unknown payment formula: %s", s)
	}
}

type NetworkConfig struct {
	Network string `yaml:"network" mapstructure:"network"`
	RPCURL  string `yaml:"rpc_url" mapstructure:"rpc_url"`
	ChainID uint64 `yaml:"chain_id" mapstructure:"chain_id"`
}

type TargetConfig struct {
	BlocksAhead          uint32 `yaml:"blocks_ahead" mapstructure:"blocks_ahead"`
	ResubmitMax          uint32 `yaml:"resubmit_max" mapstructure:"resubmit_max"`
	BundleExpirySeconds  uint64 `yaml:"bundle_expiry_seconds" mapstructure:"bundle_expiry_seconds"`
}

// PaymentConfig holds the operator-configured pricing formula:
// the formula and coefficients applied by internal/payment.
type PaymentConfig struct {
	Formula       string `yaml:"formula" mapstructure:"formula"`
	K1            float64 `yaml:"k1" mapstructure:"k1"`
	K2Wei         string  `yaml:"k2_wei" mapstructure:"k2_wei"`
	MaxAmountWei  string  `yaml:"max_amount_wei" mapstructure:"max_amount_wei"`
}

type LimitsConfig struct {
	PerBundleCapWei          string `yaml:"per_bundle_cap_wei" mapstructure:"per_bundle_cap_wei"`
	DailyCapWei              string `yaml:"daily_cap_wei" mapstructure:"daily_cap_wei"`
	EmergencyStopEnabled     bool   `yaml:"emergency_stop_enabled" mapstructure:"emergency_stop_enabled"`
	EmergencyStopThresholdWei string `yaml:"emergency_stop_threshold_wei" mapstructure:"emergency_stop_threshold_wei"`
}

type BuilderConfig struct {
	Name                       string `yaml:"name" mapstructure:"name"`
	RelayURL                   string `yaml:"relay_url" mapstructure:"relay_url"`
	PaymentAddress             string `yaml:"payment_address" mapstructure:"payment_address"`
	Enabled                    bool   `yaml:"enabled" mapstructure:"enabled"`
	TimeoutSeconds             int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	MaxRetries                 int    `yaml:"max_retries" mapstructure:"max_retries"`
	HealthCheckIntervalSeconds int    `yaml:"health_check_interval_seconds" mapstructure:"health_check_interval_seconds"`
}

type ServerConfig struct {
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds" mapstructure:"request_timeout_seconds"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
}

type SecurityConfig struct {
	AdminAPIKey string `yaml:"admin_api_key" mapstructure:"admin_api_key"`
	JWTSecret   string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
}

type Config struct {
	Network  NetworkConfig   `yaml:"network" mapstructure:"network"`
	Targets  TargetConfig    `yaml:"targets" mapstructure:"targets"`
	Payment  PaymentConfig   `yaml:"payment" mapstructure:"payment"`
	Limits   LimitsConfig    `yaml:"limits" mapstructure:"limits"`
	Builders []BuilderConfig `yaml:"builders" mapstructure:"builders"`
	Server   ServerConfig    `yaml:"server" mapstructure:"server"`
	Database DatabaseConfig  `yaml:"database" mapstructure:"database"`
	Logging  LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	Metrics  MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	Security SecurityConfig  `yaml:"security" mapstructure:"security"`
}

func defaults() Config {
	return Config{
		Network: NetworkConfig{Network: "mainnet", RPCURL: "http://localhost:8545", ChainID: 1},
		Targets: TargetConfig{BlocksAhead: 3, ResubmitMax: 3, BundleExpirySeconds: 300},
		Payment: PaymentConfig{
			Formula:      "basefee",
			K1:           1.0,
			K2Wei:        "200000000000000",
			MaxAmountWei: "500000000000000",
		},
		Limits: LimitsConfig{
			PerBundleCapWei:           "2000000000000000",
			DailyCapWei:               "500000000000000000",
			EmergencyStopEnabled:      true,
			EmergencyStopThresholdWei: "100000000000000000",
		},
		Server:   ServerConfig{Host: "0.0.0.0", Port: 8080, RequestTimeoutSeconds: 30},
		Database: DatabaseConfig{Path: "atomic_bundler.db"},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
		Metrics:  MetricsConfig{Enabled: true, Namespace: "atomic_bundler"},
		Security: SecurityConfig{},
	}
}

// Load reads YAML from path, then overlays ATOMIC_BUNDLER_-prefixed
// environment variables via viper (e.g. ATOMIC_BUNDLER_PAYMENT_K1),
// and validates the result.
func Load(path string) (*Config, error) {
	cfg := defaults()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	v := viper.New()
	v.SetEnvPrefix("ATOMIC_BUNDLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	applyEnvOverrides(v, &cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides lets a small set of hot operator knobs (payment
// coefficients, caps, killswitch-adjacent security fields) be tuned
// without editing the YAML file, the way figment's Env provider did in
// the original implementation.
func applyEnvOverrides(v *viper.Viper, cfg *Config) {
	if v.IsSet("payment.k1") {
		cfg.Payment.K1 = v.GetFloat64("payment.k1")
	}
	if v.IsSet("limits.daily_cap_wei") {
		cfg.Limits.DailyCapWei = v.GetString("limits.daily_cap_wei")
	}
	if v.IsSet("limits.per_bundle_cap_wei") {
		cfg.Limits.PerBundleCapWei = v.GetString("limits.per_bundle_cap_wei")
	}
	if v.IsSet("security.admin_api_key") {
		cfg.Security.AdminAPIKey = v.GetString("security.admin_api_key")
	}
	if v.IsSet("security.jwt_secret") {
		cfg.Security.JWTSecret = v.GetString("security.jwt_secret")
	}
}

// Validate enforces the rules required of operator
// configuration.
func Validate(cfg *Config) error {
	if cfg.Network.Network == "" {
		return fmt.Errorf("network.network must not be empty")
	}

	if _, err := ParseFormula(cfg.Payment.Formula); err != nil {
		return err
	}
	if cfg.Payment.K1 < 0 {
		return fmt.Errorf("payment.k1 must not be negative")
	}

	enabled := 0
	for _, b := range cfg.Builders {
		if b.Name == "" {
			return fmt.Errorf("builders: name must not be empty")
		}
		if !strings.HasPrefix(b.RelayURL, "http://") && !strings.HasPrefix(b.RelayURL, "https://") {
			return fmt.Errorf("builders[%s]: relay_url must start with http:// or https://", b.Name)
		}
		if !isValidAddress(b.PaymentAddress) {
			return fmt.Errorf("builders[%s]: invalid payment_address %q", b.Name, b.PaymentAddress)
		}
		if b.TimeoutSeconds < 1 || b.TimeoutSeconds > 300 {
			return fmt.Errorf("builders[%s]: timeout_seconds must be in 1..=300", b.Name)
		}
		if b.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one enabled builder is required")
	}

	perBundle, err := ParseWei(cfg.Limits.PerBundleCapWei)
	if err != nil {
		return fmt.Errorf("limits.per_bundle_cap_wei: %w", err)
	}
	daily, err := ParseWei(cfg.Limits.DailyCapWei)
	if err != nil {
		return fmt.Errorf("limits.daily_cap_wei: %w", err)
	}
	if perBundle.Cmp(daily) > 0 {
		return fmt.Errorf("limits.per_bundle_cap_wei must not exceed limits.daily_cap_wei")
	}

	if _, err := ParseWei(cfg.Payment.K2Wei); err != nil {
		return fmt.Errorf("payment.k2_wei: %w", err)
	}
	if _, err := ParseWei(cfg.Payment.MaxAmountWei); err != nil {
		return fmt.Errorf("payment.max_amount_wei: %w", err)
	}

	if cfg.Server.Port == 0 {
		return fmt.Errorf("server.port must not be 0")
	}

	return nil
}

// ParseWei parses a decimal wei amount into a uint256.Int.
func ParseWei(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid wei amount %q: %w", s, err)
	}
	return v, nil
}

func isValidAddress(addr string) bool {
	if !strings.HasPrefix(addr, "0x") || len(addr) != 42 {
		return false
	}
	for _, c := range addr[2:] {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}
