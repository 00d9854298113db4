package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/justmert/near-oracle/pkg/feeder/price"
	"github.com/justmert/near-oracle/pkg/feeder/tx"
)

// Reporter publishes prices and handles node registration.
type Reporter interface {
	ReportPrice(ctx context.Context, p price.Encoded) error
	RegisterNode(ctx context.Context, codeHash string, att Attestation) error
	IsAuthorized(ctx context.Context, accountID string) (bool, error)
}

// PriceReader reads aggregated prices back from the contract.
type PriceReader interface {
	GetPrice(ctx context.Context, assetID string) (*PriceData, error)
}

// Viewer performs read-only contract calls.
type Viewer interface {
	ViewFunction(ctx context.Context, contractID, method string, args interface{}) ([]byte, error)
}

// Attestation is the enclave evidence sent with register_node.
type Attestation struct {
	MrEnclave string `json:"mr_enclave"`
	IssuedAt  uint64 `json:"issued_at"` // nanoseconds since epoch
}

// NewAttestation builds an attestation issued at issuedAtMs (milliseconds),
// or at now when issuedAtMs is nil. Negative times clamp to zero.
func NewAttestation(mrEnclave string, issuedAtMs *int64, now time.Time) Attestation {
	ms := now.UnixMilli()
	if issuedAtMs != nil {
		ms = *issuedAtMs
	}
	if ms < 0 {
		ms = 0
	}
	return Attestation{
		MrEnclave: mrEnclave,
		IssuedAt:  uint64(ms) * uint64(time.Millisecond),
	}
}

// Price is the aggregated on-chain price of an asset.
type Price struct {
	Multiplier decimal.Decimal `json:"multiplier"`
	Decimals   uint8           `json:"decimals"`
	Timestamp  uint64          `json:"timestamp"` // nanoseconds
}

// PriceData is the get_price view result.
type PriceData struct {
	AssetID    string `json:"asset_id"`
	Price      Price  `json:"price"`
	NumSources uint8  `json:"num_sources"`
}

// Time returns the on-chain timestamp.
func (p PriceData) Time() time.Time {
	return time.Unix(0, int64(p.Price.Timestamp))
}

// Asset is an asset registered in the contract.
type Asset struct {
	ID         string `json:"id"`
	Symbol     string `json:"symbol"`
	Name       string `json:"name"`
	Decimals   uint8  `json:"decimals"`
	Active     bool   `json:"active"`
	MinSources uint8  `json:"min_sources"`
}

// Contract is a Reporter backed by the NEAR oracle contract.
type Contract struct {
	viewer     Viewer
	submitter  tx.Submitter
	contractID string
	gas        uint64
	logger     zerolog.Logger
}

// ContractConfig holds configuration for creating a Contract.
type ContractConfig struct {
	Viewer     Viewer
	Submitter  tx.Submitter
	ContractID string
	Gas        uint64 // 0 means tx.DefaultGas
	Logger     zerolog.Logger
}

// NewContract creates a new contract wrapper.
func NewContract(cfg ContractConfig) *Contract {
	if cfg.Gas == 0 {
		cfg.Gas = tx.DefaultGas
	}
	return &Contract{
		viewer:     cfg.Viewer,
		submitter:  cfg.Submitter,
		contractID: cfg.ContractID,
		gas:        cfg.Gas,
		logger:     cfg.Logger,
	}
}

var _ Reporter = (*Contract)(nil)
var _ PriceReader = (*Contract)(nil)

// ReportPrice calls report_price(asset_id, multiplier, decimals).
func (c *Contract) ReportPrice(ctx context.Context, p price.Encoded) error {
	res, err := c.submitter.Submit(ctx, tx.FunctionCall{
		ContractID: c.contractID,
		MethodName: "report_price",
		Args: map[string]interface{}{
			"asset_id":   p.AssetID,
			"multiplier": p.Mantissa,
			"decimals":   p.Decimals,
		},
		Gas: c.gas,
	})
	if err != nil {
		return fmt.Errorf("report_price %s: %w", p.AssetID, err)
	}

	c.logger.Info().
		Str("asset", p.AssetID).
		Str("price", p.String()).
		Uint64("multiplier", p.Mantissa).
		Uint8("decimals", p.Decimals).
		Str("tx_hash", res.TxHash).
		Msg("Price reported")
	return nil
}

// RegisterNode calls register_node(code_hash, attestation).
func (c *Contract) RegisterNode(ctx context.Context, codeHash string, att Attestation) error {
	_, err := c.submitter.Submit(ctx, tx.FunctionCall{
		ContractID: c.contractID,
		MethodName: "register_node",
		Args: map[string]interface{}{
			"code_hash":   codeHash,
			"attestation": att,
		},
		Gas: c.gas,
	})
	if err != nil {
		return fmt.Errorf("register_node: %w", err)
	}
	return nil
}

// IsAuthorized calls the is_authorized view.
func (c *Contract) IsAuthorized(ctx context.Context, accountID string) (bool, error) {
	raw, err := c.viewer.ViewFunction(ctx, c.contractID, "is_authorized", map[string]string{"account_id": accountID})
	if err != nil {
		return false, fmt.Errorf("is_authorized: %w", err)
	}
	var ok bool
	if err := json.Unmarshal(raw, &ok); err != nil {
		return false, fmt.Errorf("%w: is_authorized: %v", ErrInvalidResponse, err)
	}
	return ok, nil
}

// GetPrice calls the get_price view. A missing or stale price returns ErrPriceNotFound.
func (c *Contract) GetPrice(ctx context.Context, assetID string) (*PriceData, error) {
	raw, err := c.viewer.ViewFunction(ctx, c.contractID, "get_price", map[string]string{"asset_id": assetID})
	if err != nil {
		return nil, fmt.Errorf("get_price: %w", err)
	}
	var data *PriceData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: get_price: %v", ErrInvalidResponse, err)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrPriceNotFound, assetID)
	}
	return data, nil
}

// GetAssets calls the get_assets view.
func (c *Contract) GetAssets(ctx context.Context) ([]Asset, error) {
	raw, err := c.viewer.ViewFunction(ctx, c.contractID, "get_assets", nil)
	if err != nil {
		return nil, fmt.Errorf("get_assets: %w", err)
	}
	var assets []Asset
	if err := json.Unmarshal(raw, &assets); err != nil {
		return nil, fmt.Errorf("%w: get_assets: %v", ErrInvalidResponse, err)
	}
	return assets, nil
}

// EnsureRegistered checks whether accountID is authorized and registers it
// otherwise. It reports whether a registration was submitted.
func EnsureRegistered(ctx context.Context, r Reporter, accountID, codeHash string, att Attestation, logger zerolog.Logger) (bool, error) {
	ok, err := r.IsAuthorized(ctx, accountID)
	if err != nil {
		return false, fmt.Errorf("failed to check registration: %w", err)
	}
	if ok {
		logger.Info().Str("account", accountID).Msg("Node is already registered")
		return false, nil
	}

	logger.Info().
		Str("account", accountID).
		Str("code_hash", codeHash).
		Uint64("issued_at", att.IssuedAt).
		Msg("Node not registered, registering")

	if err := r.RegisterNode(ctx, codeHash, att); err != nil {
		return true, fmt.Errorf("failed to register node: %w", err)
	}

	logger.Info().Str("account", accountID).Msg("Node registered")
	return true, nil
}

// Verify reads the asset price back from the contract and compares it with
// the reported one. The on-chain value aggregates every node's report.
func Verify(ctx context.Context, r PriceReader, reported price.Encoded) (*PriceData, error) {
	data, err := r.GetPrice(ctx, reported.AssetID)
	if err != nil {
		return nil, err
	}
	want := decimal.NewFromBigInt(new(big.Int).SetUint64(reported.Mantissa), 0)
	if data.Price.Decimals != reported.Decimals || !data.Price.Multiplier.Equal(want) {
		return data, fmt.Errorf("%w: %s reported %s/10^%d, on chain %s/10^%d",
			ErrPriceMismatch, reported.AssetID,
			want.String(), reported.Decimals,
			data.Price.Multiplier.String(), data.Price.Decimals)
	}
	return data, nil
}

// Deviation returns |on-chain - reported| / reported as a fraction.
func Deviation(reported price.Encoded, data *PriceData) decimal.Decimal {
	want := reported.Decimal()
	if want.IsZero() || data == nil {
		return decimal.Zero
	}
	got := data.Price.Multiplier.Shift(-int32(data.Price.Decimals))
	return got.Sub(want).Abs().Div(want)
}
