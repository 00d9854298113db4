package config

import "time"

// Config is the root configuration structure
type Config struct {
	Node    NodeConfig    `yaml:"node"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Assets  []AssetConfig `yaml:"assets"`
	Server  ServerConfig  `yaml:"server"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// NodeConfig configures the update loop
type NodeConfig struct {
	UpdateInterval       Duration `yaml:"update_interval"`        // Wait between cycle completion and next cycle
	AssetDelay           Duration `yaml:"asset_delay"`            // Pause between assets inside a cycle
	FetchTimeout         Duration `yaml:"fetch_timeout"`          // Deadline for a single source fetch
	FailureWarnThreshold int      `yaml:"failure_warn_threshold"` // Consecutive failures before warning
	EnforceMinSources    bool     `yaml:"enforce_min_sources"`    // Skip reporting below an asset's min_sources
}

// LedgerConfig configures the NEAR oracle contract connection
type LedgerConfig struct {
	Network      string       `yaml:"network"`       // "testnet" or "mainnet"
	RPCEndpoints []string     `yaml:"rpc_endpoints"` // NEAR JSON-RPC URLs, first is primary
	ContractID   string       `yaml:"contract_id"`
	AccountID    string       `yaml:"account_id"`
	Signer       SignerConfig `yaml:"signer"`
	Attestation  Attestation  `yaml:"attestation"`
	DryRun       bool         `yaml:"dry_run"` // Log reports instead of submitting them
	Verify       bool         `yaml:"verify"`  // Read back get_price after each report
	Timeout      Duration     `yaml:"timeout"`
}

// SignerConfig configures the signing relay that submits change calls
type SignerConfig struct {
	URL      string `yaml:"url"`
	Token    string `yaml:"token"`
	TokenEnv string `yaml:"token_env"`
}

// Attestation holds TEE registration material
type Attestation struct {
	CodeHash   string `yaml:"code_hash"`
	MrEnclave  string `yaml:"mr_enclave"`
	IssuedAtMs *int64 `yaml:"issued_at_ms"`
}

// AssetConfig describes one published asset and where its quotes come from
type AssetConfig struct {
	ID         string         `yaml:"id" json:"id"`
	Symbol     string         `yaml:"symbol" json:"symbol"`
	Decimals   uint8          `yaml:"decimals" json:"decimals"`
	MinSources int            `yaml:"min_sources" json:"min_sources"`
	Sources    []SourceConfig `yaml:"sources" json:"sources"`
}

// SourceConfig configures a price source
type SourceConfig struct {
	Name      string   `yaml:"name" json:"name"`
	URL       string   `yaml:"url" json:"url"`
	Path      string   `yaml:"path" json:"path"`
	Weight    *float64 `yaml:"weight" json:"weight"`         // Reserved for weighted aggregation, nil = 1
	RateLimit Duration `yaml:"rate_limit" json:"rate_limit"` // Minimum spacing between requests, 0 = none
}

// DefaultSourceWeight applies to sources that do not set a weight.
const DefaultSourceWeight = 1.0

// EffectiveWeight returns the configured weight, or DefaultSourceWeight when unset.
// An explicit 0 is kept.
func (s SourceConfig) EffectiveWeight() float64 {
	if s.Weight == nil {
		return DefaultSourceWeight
	}
	return *s.Weight
}

// ServerConfig configures the status API
type ServerConfig struct {
	Enabled   bool       `yaml:"enabled"`
	HTTP      HTTPConfig `yaml:"http"`
	WebSocket WSConfig   `yaml:"websocket"`
}

// HTTPConfig configures the HTTP server
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// WSConfig configures the WebSocket server
type WSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// MetricsConfig configures Prometheus metrics
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string        `yaml:"level"`
	Format string        `yaml:"format"`
	Output string        `yaml:"output"`
	File   LogFileConfig `yaml:"file"`
}

// LogFileConfig configures log file rotation
type LogFileConfig struct {
	MaxSize    int `yaml:"max_size"`
	MaxBackups int `yaml:"max_backups"`
	MaxAge     int `yaml:"max_age"`
}

// Duration is a wrapper around time.Duration for YAML parsing
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	td, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(td)
	return nil
}

// MarshalText renders the duration in time.Duration notation
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// ToDuration converts Duration to time.Duration
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}
