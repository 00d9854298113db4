// Package config provides configuration loading and validation for the oracle node.
package config

import "errors"

var (
	// ErrNoAssetsConfigured indicates that no assets are configured.
	ErrNoAssetsConfigured = errors.New("at least one asset must be configured")
	// ErrAssetIDRequired indicates that an asset has no id.
	ErrAssetIDRequired = errors.New("asset id is required")
	// ErrDuplicateAsset indicates that two assets share an id.
	ErrDuplicateAsset = errors.New("duplicate asset id")
	// ErrInvalidDecimals indicates that an asset precision is out of range.
	ErrInvalidDecimals = errors.New("decimals must be <= 18")
	// ErrNoSourcesConfigured indicates that an asset has no price sources.
	ErrNoSourcesConfigured = errors.New("at least one price source must be configured")
	// ErrSourceNameRequired indicates that source name is required.
	ErrSourceNameRequired = errors.New("source name is required")
	// ErrDuplicateSource indicates that a source name is repeated within an asset.
	ErrDuplicateSource = errors.New("duplicate source name")
	// ErrInvalidURL indicates that a URL is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("url must be an absolute http or https url")
	// ErrSourcePathRequired indicates that a source has no extraction path.
	ErrSourcePathRequired = errors.New("source path is required")
	// ErrSourceWeightMustBeNonNegative indicates that source weight must be >= 0.
	ErrSourceWeightMustBeNonNegative = errors.New("weight must be >= 0")
	// ErrInvalidMinSources indicates that min_sources is negative or exceeds the source count.
	ErrInvalidMinSources = errors.New("min_sources must be between 0 and the number of sources")
	// ErrInvalidInterval indicates that a schedule duration is not positive.
	ErrInvalidInterval = errors.New("interval must be positive")
	// ErrInvalidNetwork indicates that the NEAR network is unknown.
	ErrInvalidNetwork = errors.New("network must be 'testnet' or 'mainnet'")
	// ErrNoRPCEndpoints indicates that at least one rpc_endpoint must be specified.
	ErrNoRPCEndpoints = errors.New("at least one rpc_endpoint must be specified")
	// ErrContractIDRequired indicates that the oracle contract id is missing.
	ErrContractIDRequired = errors.New("contract_id must be specified")
	// ErrAccountIDRequired indicates that the node account id is missing.
	ErrAccountIDRequired = errors.New("account_id must be specified")
	// ErrSignerURLRequired indicates that the signing relay url is missing.
	ErrSignerURLRequired = errors.New("signer.url must be specified")
	// ErrSignerTokenRequired indicates that no signer credential is available.
	ErrSignerTokenRequired = errors.New("signer credential is required (signer.token or signer.token_env)")
	// ErrSignerTokenEnvNotSet indicates that the signer credential environment variable is empty.
	ErrSignerTokenEnvNotSet = errors.New("signer token environment variable not set")
	// ErrCodeHashRequired indicates that the attestation code hash is missing.
	ErrCodeHashRequired = errors.New("attestation.code_hash must be specified")
	// ErrMrEnclaveRequired indicates that the attestation measurement is missing.
	ErrMrEnclaveRequired = errors.New("attestation.mr_enclave must be specified")
	// ErrInvalidAttestationTime indicates that ATTESTATION_ISSUED_AT_MS is not an integer.
	ErrInvalidAttestationTime = errors.New("ATTESTATION_ISSUED_AT_MS must be a valid integer (milliseconds)")
	// ErrInvalidLogLevel indicates that the log level is invalid.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidLogFormat indicates that the log format is invalid.
	ErrInvalidLogFormat = errors.New("invalid log format")
)
