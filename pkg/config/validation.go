package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Validate checks configuration for errors
func Validate(cfg *Config) error {
	if err := validateNodeConfig(&cfg.Node); err != nil {
		return fmt.Errorf("node config: %w", err)
	}

	if err := validateLedgerConfig(&cfg.Ledger); err != nil {
		return fmt.Errorf("ledger config: %w", err)
	}

	if len(cfg.Assets) == 0 {
		return fmt.Errorf("%w", ErrNoAssetsConfigured)
	}
	seen := make(map[string]bool, len(cfg.Assets))
	for i := range cfg.Assets {
		asset := &cfg.Assets[i]
		if err := validateAssetConfig(asset); err != nil {
			return fmt.Errorf("asset %d (%s): %w", i, asset.ID, err)
		}
		if seen[asset.ID] {
			return fmt.Errorf("asset %d: %w: %s", i, ErrDuplicateAsset, asset.ID)
		}
		seen[asset.ID] = true
	}

	if err := validateLoggingConfig(&cfg.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

func validateNodeConfig(cfg *NodeConfig) error {
	if cfg.UpdateInterval.ToDuration() <= 0 {
		return fmt.Errorf("update_interval: %w", ErrInvalidInterval)
	}
	if cfg.AssetDelay.ToDuration() < 0 {
		return fmt.Errorf("asset_delay: %w", ErrInvalidInterval)
	}
	if cfg.FetchTimeout.ToDuration() <= 0 {
		return fmt.Errorf("fetch_timeout: %w", ErrInvalidInterval)
	}
	return nil
}

func validateLedgerConfig(cfg *LedgerConfig) error {
	network := strings.ToLower(cfg.Network)
	if network != NetworkTestnet && network != NetworkMainnet {
		return fmt.Errorf("%w: %s", ErrInvalidNetwork, cfg.Network)
	}
	if len(cfg.RPCEndpoints) == 0 {
		return fmt.Errorf("%w", ErrNoRPCEndpoints)
	}
	for i, ep := range cfg.RPCEndpoints {
		if err := validateHTTPURL(ep); err != nil {
			return fmt.Errorf("rpc_endpoints[%d]: %w", i, err)
		}
	}
	if cfg.ContractID == "" {
		return fmt.Errorf("%w", ErrContractIDRequired)
	}
	if cfg.AccountID == "" {
		return fmt.Errorf("%w", ErrAccountIDRequired)
	}

	// Attestation material is required even in dry-run mode; the node never
	// starts without it.
	if cfg.Attestation.CodeHash == "" {
		return fmt.Errorf("%w", ErrCodeHashRequired)
	}
	if cfg.Attestation.MrEnclave == "" {
		return fmt.Errorf("%w", ErrMrEnclaveRequired)
	}

	if cfg.DryRun {
		return nil
	}

	if cfg.Signer.URL == "" {
		return fmt.Errorf("%w", ErrSignerURLRequired)
	}
	if err := validateHTTPURL(cfg.Signer.URL); err != nil {
		return fmt.Errorf("signer.url: %w", err)
	}
	if cfg.Signer.Token == "" {
		if cfg.Signer.TokenEnv == "" {
			return fmt.Errorf("%w", ErrSignerTokenRequired)
		}
		if os.Getenv(cfg.Signer.TokenEnv) == "" {
			return fmt.Errorf("%w: %s", ErrSignerTokenEnvNotSet, cfg.Signer.TokenEnv)
		}
	}

	return nil
}

func validateAssetConfig(cfg *AssetConfig) error {
	if cfg.ID == "" {
		return fmt.Errorf("%w", ErrAssetIDRequired)
	}
	if cfg.Decimals > 18 {
		return fmt.Errorf("%w: %d", ErrInvalidDecimals, cfg.Decimals)
	}
	if len(cfg.Sources) == 0 {
		return fmt.Errorf("%w", ErrNoSourcesConfigured)
	}
	if cfg.MinSources < 0 || cfg.MinSources > len(cfg.Sources) {
		return fmt.Errorf("%w: %d", ErrInvalidMinSources, cfg.MinSources)
	}

	names := make(map[string]bool, len(cfg.Sources))
	for i := range cfg.Sources {
		source := &cfg.Sources[i]
		if err := validateSourceConfig(source); err != nil {
			return fmt.Errorf("source %d (%s): %w", i, source.Name, err)
		}
		if names[source.Name] {
			return fmt.Errorf("source %d: %w: %s", i, ErrDuplicateSource, source.Name)
		}
		names[source.Name] = true
	}
	return nil
}

func validateSourceConfig(cfg *SourceConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("%w", ErrSourceNameRequired)
	}
	if err := validateHTTPURL(cfg.URL); err != nil {
		return err
	}
	if strings.Trim(cfg.Path, ". ") == "" {
		return fmt.Errorf("%w", ErrSourcePathRequired)
	}
	if cfg.Weight != nil && *cfg.Weight < 0 {
		return fmt.Errorf("%w", ErrSourceWeightMustBeNonNegative)
	}
	if cfg.RateLimit.ToDuration() < 0 {
		return fmt.Errorf("rate_limit: %w", ErrInvalidInterval)
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %s", ErrInvalidURL, raw)
	}
	return nil
}

func validateLoggingConfig(cfg *LoggingConfig) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	levelValid := false
	for _, l := range validLevels {
		if strings.ToLower(cfg.Level) == l {
			levelValid = true
			break
		}
	}
	if !levelValid {
		return fmt.Errorf("%w: %s (must be one of: %s)", ErrInvalidLogLevel, cfg.Level, strings.Join(validLevels, ", "))
	}

	formatValid := strings.ToLower(cfg.Format) == "json" || strings.ToLower(cfg.Format) == "text"
	if !formatValid {
		return fmt.Errorf("%w: %s (must be 'json' or 'text')", ErrInvalidLogFormat, cfg.Format)
	}

	return nil
}
