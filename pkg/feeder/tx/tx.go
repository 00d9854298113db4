package tx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/justmert/near-oracle/pkg/version"
)

// DefaultGas is the gas attached to oracle change calls (30 TGas).
const DefaultGas uint64 = 30_000_000_000_000

// FunctionCall is a contract change call to be signed by the node account.
type FunctionCall struct {
	ContractID string
	MethodName string
	Args       interface{}
	Gas        uint64 // 0 means DefaultGas
	Deposit    string // yoctoNEAR, empty means "0"
}

// Result describes a submitted call.
type Result struct {
	TxHash string `json:"transaction_hash"`
	Status string `json:"status"`
}

// Submitter signs and submits change calls. Signing and gas accounting live
// behind this interface.
type Submitter interface {
	Submit(ctx context.Context, call FunctionCall) (Result, error)
}

// RelaySubmitter forwards calls to a signing relay over HTTPS. The relay holds
// the node account key and signs on its behalf.
type RelaySubmitter struct {
	url      string
	token    string
	signerID string
	client   *http.Client
	logger   zerolog.Logger
}

// RelayConfig holds configuration for creating a RelaySubmitter.
type RelayConfig struct {
	URL      string
	Token    string
	SignerID string // Node account id
	Timeout  time.Duration
	Logger   zerolog.Logger
}

// NewRelaySubmitter creates a new relay submitter.
func NewRelaySubmitter(cfg RelayConfig) (*RelaySubmitter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: relay url is empty", ErrInvalidParameter)
	}
	if cfg.SignerID == "" {
		return nil, fmt.Errorf("%w: signer id is empty", ErrInvalidParameter)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &RelaySubmitter{
		url:      cfg.URL,
		token:    cfg.Token,
		signerID: cfg.SignerID,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   cfg.Logger,
	}, nil
}

type relayRequest struct {
	ContractID string          `json:"contract_id"`
	SignerID   string          `json:"signer_id"`
	MethodName string          `json:"method_name"`
	Args       json.RawMessage `json:"args"`
	Gas        uint64          `json:"gas"`
	Deposit    string          `json:"deposit"`
}

// Submit posts the call to the relay and waits for its answer.
func (s *RelaySubmitter) Submit(ctx context.Context, call FunctionCall) (Result, error) {
	body, err := encodeCall(s.signerID, call)
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.AgentString())
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	s.logger.Debug().
		Str("contract", call.ContractID).
		Str("method", call.MethodName).
		Msg("Submitting function call")

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to submit %s: %w", call.MethodName, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("%w: %s returned %d: %s", ErrTransactionRejected, call.MethodName, resp.StatusCode, string(respBody))
	}

	var res Result
	if len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, &res); err != nil {
			s.logger.Warn().Err(err).Str("method", call.MethodName).Msg("Relay returned an undecodable body")
		}
	}

	s.logger.Info().
		Str("tx_hash", res.TxHash).
		Str("method", call.MethodName).
		Msg("Function call submitted")

	return res, nil
}

// DryRunSubmitter logs calls instead of submitting them.
type DryRunSubmitter struct {
	signerID string
	logger   zerolog.Logger
}

// NewDryRunSubmitter creates a new dry-run submitter.
func NewDryRunSubmitter(signerID string, logger zerolog.Logger) *DryRunSubmitter {
	return &DryRunSubmitter{signerID: signerID, logger: logger}
}

// Submit logs the call and reports success.
func (s *DryRunSubmitter) Submit(_ context.Context, call FunctionCall) (Result, error) {
	body, err := encodeCall(s.signerID, call)
	if err != nil {
		return Result{}, err
	}
	s.logger.Info().
		RawJSON("call", body).
		Msg("Dry run: function call not submitted")
	return Result{Status: "dry_run"}, nil
}

func encodeCall(signerID string, call FunctionCall) ([]byte, error) {
	if call.ContractID == "" || call.MethodName == "" {
		return nil, fmt.Errorf("%w: contract and method are required", ErrInvalidParameter)
	}
	args, err := json.Marshal(call.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode args: %w", err)
	}
	if call.Gas == 0 {
		call.Gas = DefaultGas
	}
	if call.Deposit == "" {
		call.Deposit = "0"
	}

	return json.Marshal(relayRequest{
		ContractID: call.ContractID,
		SignerID:   signerID,
		MethodName: call.MethodName,
		Args:       args,
		Gas:        call.Gas,
		Deposit:    call.Deposit,
	})
}
