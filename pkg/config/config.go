package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Network defaults
const (
	NetworkTestnet = "testnet"
	NetworkMainnet = "mainnet"

	defaultTestnetRPC = "https://rpc.testnet.near.org"
	defaultMainnetRPC = "https://rpc.mainnet.near.org"
)

// Load loads configuration from a YAML file and environment variables.
// An empty path yields a configuration built from defaults and environment only.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		cleanPath := filepath.Clean(path)
		absPath, err := filepath.Abs(cleanPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}

		data, err := os.ReadFile(absPath) // #nosec G304 -- Path sanitized with filepath.Clean and filepath.Abs
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in YAML
		expanded := os.ExpandEnv(string(data))

		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// applyEnvOverrides applies the environment variables understood by the node.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("NEAR_NETWORK"); v != "" {
		cfg.Ledger.Network = v
	}
	if v := os.Getenv("NEAR_NODE_URL"); v != "" {
		cfg.Ledger.RPCEndpoints = splitList(v)
	}
	if v := os.Getenv("ORACLE_CONTRACT_ID"); v != "" {
		cfg.Ledger.ContractID = v
	}
	if v := os.Getenv("NODE_ACCOUNT_ID"); v != "" {
		cfg.Ledger.AccountID = v
	}
	if v := os.Getenv("SIGNER_URL"); v != "" {
		cfg.Ledger.Signer.URL = v
	}
	if v := os.Getenv("CODE_HASH"); v != "" {
		cfg.Ledger.Attestation.CodeHash = v
	}
	if v := os.Getenv("TEE_MR_ENCLAVE"); v != "" {
		cfg.Ledger.Attestation.MrEnclave = v
	}
	if v := os.Getenv("ATTESTATION_ISSUED_AT_MS"); v != "" {
		ms, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidAttestationTime, v)
		}
		cfg.Ledger.Attestation.IssuedAtMs = &ms
	}
	if v := os.Getenv("UPDATE_INTERVAL"); v != "" {
		ms, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("%w: UPDATE_INTERVAL=%q", ErrInvalidInterval, v)
		}
		cfg.Node.UpdateInterval = Duration(time.Duration(ms) * time.Millisecond)
	}
	return nil
}

// applyDefaults sets default values for optional fields.
func applyDefaults(cfg *Config) {
	// Node defaults
	if cfg.Node.UpdateInterval == 0 {
		cfg.Node.UpdateInterval = Duration(60 * time.Second)
	}
	if cfg.Node.AssetDelay == 0 {
		cfg.Node.AssetDelay = Duration(time.Second)
	}
	if cfg.Node.FetchTimeout == 0 {
		cfg.Node.FetchTimeout = Duration(5 * time.Second)
	}
	if cfg.Node.FailureWarnThreshold == 0 {
		cfg.Node.FailureWarnThreshold = 3
	}

	// Ledger defaults
	if cfg.Ledger.Network == "" {
		cfg.Ledger.Network = NetworkTestnet
	}
	if len(cfg.Ledger.RPCEndpoints) == 0 {
		if strings.ToLower(cfg.Ledger.Network) == NetworkMainnet {
			cfg.Ledger.RPCEndpoints = []string{defaultMainnetRPC}
		} else {
			cfg.Ledger.RPCEndpoints = []string{defaultTestnetRPC}
		}
	}
	if cfg.Ledger.Timeout == 0 {
		cfg.Ledger.Timeout = Duration(15 * time.Second)
	}
	if cfg.Ledger.Signer.TokenEnv == "" && cfg.Ledger.Signer.Token == "" {
		cfg.Ledger.Signer.TokenEnv = "SIGNER_TOKEN"
	}

	// Assets
	if len(cfg.Assets) == 0 {
		cfg.Assets = DefaultAssets()
	}

	// Server defaults
	if cfg.Server.HTTP.Addr == "" {
		cfg.Server.HTTP.Addr = ":8080"
	}
	if cfg.Server.WebSocket.Addr == "" {
		cfg.Server.WebSocket.Addr = ":8081"
	}

	// Metrics defaults
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9091"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Logging.File.MaxSize == 0 {
		cfg.Logging.File.MaxSize = 100
	}
}

// SignerToken resolves the signing relay credential, preferring the inline token.
func (l *LedgerConfig) SignerToken() string {
	if l.Signer.Token != "" {
		return l.Signer.Token
	}
	if l.Signer.TokenEnv != "" {
		return os.Getenv(l.Signer.TokenEnv)
	}
	return ""
}

// AssetIDs returns the configured asset ids in order.
func (c *Config) AssetIDs() []string {
	ids := make([]string, 0, len(c.Assets))
	for _, a := range c.Assets {
		ids = append(ids, a.ID)
	}
	return ids
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DefaultAssets returns the asset table used when the configuration names none:
// NEAR, BTC, ETH and USDC, each quoted by six public exchanges.
func DefaultAssets() []AssetConfig {
	type ids struct {
		id, symbol, coingecko, binance, coinbase, okx string
	}
	table := []ids{
		{"near", "NEAR", "near", "NEARUSDT", "NEAR-USD", "NEAR-USDT"},
		{"bitcoin", "BTC", "bitcoin", "BTCUSDT", "BTC-USD", "BTC-USDT"},
		{"ethereum", "ETH", "ethereum", "ETHUSDT", "ETH-USD", "ETH-USDT"},
		{"usdc", "USDC", "usd-coin", "USDCUSDT", "USDC-USD", "USDC-USDT"},
	}

	assets := make([]AssetConfig, 0, len(table))
	for _, t := range table {
		assets = append(assets, AssetConfig{
			ID:       t.id,
			Symbol:   t.symbol,
			Decimals: 4,
			Sources: []SourceConfig{
				{
					Name:   "coingecko",
					URL:    "https://api.coingecko.com/api/v3/simple/price?ids=" + t.coingecko + "&vs_currencies=usd",
					Path:   t.coingecko + ".usd",
				},
				{
					Name:   "binance",
					URL:    "https://api.binance.com/api/v3/ticker/price?symbol=" + t.binance,
					Path:   "price",
				},
				{
					Name:   "coinbase",
					URL:    "https://api.coinbase.com/v2/prices/" + t.coinbase + "/spot",
					Path:   "data.amount",
				},
				{
					Name:   "cryptocompare",
					URL:    "https://min-api.cryptocompare.com/data/price?fsym=" + t.symbol + "&tsyms=USD",
					Path:   "USD",
				},
				{
					Name:   "okx",
					URL:    "https://www.okx.com/api/v5/market/ticker?instId=" + t.okx,
					Path:   "data.0.last",
				},
				{
					Name:   "kucoin",
					URL:    "https://api.kucoin.com/api/v1/market/orderbook/level1?symbol=" + t.okx,
					Path:   "data.price",
				},
			},
		})
	}
	return assets
}
