package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/justmert/near-oracle/pkg/metrics"
	"github.com/justmert/near-oracle/pkg/version"
)

const (
	defaultTimeout    = 15 * time.Second
	defaultRetryDelay = 500 * time.Millisecond
	maxResponseBytes  = 4 << 20
)

// Client talks to NEAR RPC nodes and rotates between them on failure.
type Client struct {
	logger     zerolog.Logger
	endpoints  []string
	current    int
	mu         sync.RWMutex
	http       *http.Client
	retryDelay time.Duration
}

// ClientConfig holds configuration for creating a new Client.
type ClientConfig struct {
	Endpoints  []string      // RPC URLs, first is primary
	Timeout    time.Duration // Per-request HTTP timeout
	RetryDelay time.Duration // Pause after rotating to the next endpoint
	HTTPClient *http.Client  // Optional, overrides Timeout
	Logger     zerolog.Logger
}

// NewClient creates a new RPC client with failover support across multiple endpoints.
func NewClient(cfg ClientConfig) (*Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("%w", ErrNoEndpointsRequired)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	} else if cfg.RetryDelay == 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	endpoints := make([]string, len(cfg.Endpoints))
	copy(endpoints, cfg.Endpoints)

	return &Client{
		logger:     cfg.Logger,
		endpoints:  endpoints,
		http:       httpClient,
		retryDelay: cfg.RetryDelay,
	}, nil
}

// Failover rotates to the next endpoint.
func (c *Client) Failover() {
	c.mu.Lock()
	defer c.mu.Unlock()

	oldIndex := c.current
	c.current = (c.current + 1) % len(c.endpoints)
	metrics.RecordRPCFailover()

	c.logger.Warn().
		Str("from", c.endpoints[oldIndex]).
		Str("to", c.endpoints[c.current]).
		Msg("Failing over to next RPC endpoint")
}

// CurrentEndpoint returns the currently active endpoint.
func (c *Client) CurrentEndpoint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endpoints[c.current]
}

// Endpoints returns the configured endpoints in priority order.
func (c *Client) Endpoints() []string {
	out := make([]string, len(c.endpoints))
	copy(out, c.endpoints)
	return out
}

// WithFailover runs call against the current endpoint and rotates to the next
// one on retryable errors, trying every endpoint at most once. Errors reported
// by the contract itself are returned immediately since another node would
// give the same answer.
func WithFailover[T any](ctx context.Context, c *Client, call func(endpoint string) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < len(c.endpoints); attempt++ {
		endpoint := c.CurrentEndpoint()
		resp, err := call(endpoint)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !retryable(err) || ctx.Err() != nil {
			return zero, err
		}

		isLastAttempt := attempt == len(c.endpoints)-1
		logEvent := c.logger.Debug()
		if isLastAttempt {
			logEvent = c.logger.Error()
		}
		logEvent.
			Err(err).
			Str("endpoint", endpoint).
			Int("attempt", attempt+1).
			Int("max_attempts", len(c.endpoints)).
			Msg("RPC call failed")

		if isLastAttempt {
			break
		}

		c.Failover()
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}

	return zero, fmt.Errorf("%w (%d endpoints): %w", ErrAllAttemptsFailed, len(c.endpoints), lastErr)
}

func retryable(err error) bool {
	return !errors.Is(err, ErrContractExecution) && !errors.Is(err, context.Canceled)
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// RPCError is the error object returned by NEAR RPC nodes.
type RPCError struct {
	Name    string          `json:"name"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Cause   struct {
		Name string          `json:"name"`
		Info json.RawMessage `json:"info"`
	} `json:"cause"`
}

func (e *RPCError) Error() string {
	if e.Cause.Name != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Name, e.Cause.Name, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// Call performs one JSON-RPC request with failover and decodes the result into out.
func (c *Client) Call(ctx context.Context, method string, params, out interface{}) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      "near-oracle",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	raw, err := WithFailover(ctx, c, func(endpoint string) (json.RawMessage, error) {
		return c.post(ctx, endpoint, body)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.AgentString())

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordRPCRequest(endpoint, "error")
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordRPCRequest(endpoint, "http_error")
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %d: %s", ErrUnexpectedStatus, resp.StatusCode, string(snippet))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&rpcResp); err != nil {
		metrics.RecordRPCRequest(endpoint, "decode_error")
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if rpcResp.Error != nil {
		metrics.RecordRPCRequest(endpoint, "rpc_error")
		if rpcResp.Error.Cause.Name == "CONTRACT_EXECUTION_ERROR" {
			return nil, fmt.Errorf("%w: %w", ErrContractExecution, rpcResp.Error)
		}
		return nil, fmt.Errorf("%w: %w", ErrRPC, rpcResp.Error)
	}

	metrics.RecordRPCRequest(endpoint, "success")
	return rpcResp.Result, nil
}

type callFunctionResult struct {
	RawResult   []int    `json:"result"`
	Logs        []string `json:"logs"`
	BlockHeight uint64   `json:"block_height"`
	BlockHash   string   `json:"block_hash"`
	Error       string   `json:"error"`
}

// ViewFunction calls a read-only contract method at final finality and
// returns the raw bytes it produced, usually JSON.
func (c *Client) ViewFunction(ctx context.Context, contractID, method string, args interface{}) ([]byte, error) {
	if args == nil {
		args = struct{}{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s args: %w", method, err)
	}

	params := map[string]string{
		"request_type": "call_function",
		"finality":     "final",
		"account_id":   contractID,
		"method_name":  method,
		"args_base64":  base64.StdEncoding.EncodeToString(argsJSON),
	}

	var res callFunctionResult
	if err := c.Call(ctx, "query", params, &res); err != nil {
		return nil, err
	}
	// Older nodes report contract panics inside a successful query result.
	if res.Error != "" {
		return nil, fmt.Errorf("%s.%s: %w: %s", contractID, method, ErrContractExecution, res.Error)
	}

	out := make([]byte, len(res.RawResult))
	for i, b := range res.RawResult {
		out[i] = byte(b)
	}
	return out, nil
}

// ChainStatus is the subset of the node status used at startup.
type ChainStatus struct {
	ChainID           string `json:"chain_id"`
	LatestBlockHeight uint64 `json:"latest_block_height"`
	LatestBlockTime   string `json:"latest_block_time"`
	Syncing           bool   `json:"syncing"`
}

// Status queries the node status of the current endpoint.
func (c *Client) Status(ctx context.Context) (ChainStatus, error) {
	var raw struct {
		ChainID  string      `json:"chain_id"`
		SyncInfo ChainStatus `json:"sync_info"`
	}
	if err := c.Call(ctx, "status", []interface{}{}, &raw); err != nil {
		return ChainStatus{}, err
	}
	status := raw.SyncInfo
	status.ChainID = raw.ChainID
	return status, nil
}
