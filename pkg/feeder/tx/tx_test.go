package tx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelaySubmitter_Submit(t *testing.T) {
	var (
		gotAuth string
		gotBody map[string]interface{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &gotBody))
		_, _ = w.Write([]byte(`{"transaction_hash":"8fGx","status":"SuccessValue"}`))
	}))
	defer srv.Close()

	s, err := NewRelaySubmitter(RelayConfig{URL: srv.URL, Token: "secret", SignerID: "node.testnet", Logger: zerolog.Nop()})
	require.NoError(t, err)

	res, err := s.Submit(context.Background(), FunctionCall{
		ContractID: "oracle.testnet",
		MethodName: "report_price",
		Args:       map[string]interface{}{"asset_id": "near", "multiplier": 35000, "decimals": 4},
	})
	require.NoError(t, err)
	assert.Equal(t, "8fGx", res.TxHash)

	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "oracle.testnet", gotBody["contract_id"])
	assert.Equal(t, "node.testnet", gotBody["signer_id"])
	assert.Equal(t, "report_price", gotBody["method_name"])
	assert.Equal(t, float64(DefaultGas), gotBody["gas"])
	assert.Equal(t, "0", gotBody["deposit"])
	assert.Equal(t, map[string]interface{}{"asset_id": "near", "multiplier": float64(35000), "decimals": float64(4)}, gotBody["args"])
}

func TestRelaySubmitter_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "node not authorized", http.StatusForbidden)
	}))
	defer srv.Close()

	s, err := NewRelaySubmitter(RelayConfig{URL: srv.URL, SignerID: "node.testnet", Logger: zerolog.Nop()})
	require.NoError(t, err)

	_, err = s.Submit(context.Background(), FunctionCall{ContractID: "oracle.testnet", MethodName: "report_price"})
	require.ErrorIs(t, err, ErrTransactionRejected)
	assert.Contains(t, err.Error(), "node not authorized")
}

func TestNewRelaySubmitter_Validation(t *testing.T) {
	_, err := NewRelaySubmitter(RelayConfig{SignerID: "node"})
	require.ErrorIs(t, err, ErrInvalidParameter)

	_, err = NewRelaySubmitter(RelayConfig{URL: "https://relay"})
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestDryRunSubmitter(t *testing.T) {
	s := NewDryRunSubmitter("node.testnet", zerolog.Nop())

	res, err := s.Submit(context.Background(), FunctionCall{ContractID: "oracle.testnet", MethodName: "register_node", Args: map[string]string{"code_hash": "h"}})
	require.NoError(t, err)
	assert.Equal(t, "dry_run", res.Status)

	_, err = s.Submit(context.Background(), FunctionCall{MethodName: "register_node"})
	require.ErrorIs(t, err, ErrInvalidParameter)
}
