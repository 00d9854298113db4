package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/justmert/near-oracle/pkg/feeder/price"
	"github.com/justmert/near-oracle/pkg/feeder/tx"
)

type MockViewer struct {
	mock.Mock
}

func (m *MockViewer) ViewFunction(ctx context.Context, contractID, method string, args interface{}) ([]byte, error) {
	a := m.Called(contractID, method, args)
	if a.Get(0) == nil {
		return nil, a.Error(1)
	}
	return a.Get(0).([]byte), a.Error(1)
}

type MockSubmitter struct {
	mock.Mock
}

func (m *MockSubmitter) Submit(ctx context.Context, call tx.FunctionCall) (tx.Result, error) {
	a := m.Called(call)
	return a.Get(0).(tx.Result), a.Error(1)
}

type MockReporter struct {
	mock.Mock
}

func (m *MockReporter) ReportPrice(ctx context.Context, p price.Encoded) error {
	return m.Called(p).Error(0)
}

func (m *MockReporter) RegisterNode(ctx context.Context, codeHash string, att Attestation) error {
	return m.Called(codeHash, att).Error(0)
}

func (m *MockReporter) IsAuthorized(ctx context.Context, accountID string) (bool, error) {
	a := m.Called(accountID)
	return a.Bool(0), a.Error(1)
}

func newContract(v Viewer, s tx.Submitter) *Contract {
	return NewContract(ContractConfig{
		Viewer:     v,
		Submitter:  s,
		ContractID: "oracle.testnet",
		Logger:     zerolog.Nop(),
	})
}

func TestNewAttestation(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_123)

	att := NewAttestation("mr", nil, now)
	assert.Equal(t, "mr", att.MrEnclave)
	assert.Equal(t, uint64(1_700_000_000_123_000_000), att.IssuedAt)

	fixed := int64(1_600_000_000_000)
	att = NewAttestation("mr", &fixed, now)
	assert.Equal(t, uint64(1_600_000_000_000_000_000), att.IssuedAt)

	negative := int64(-5)
	att = NewAttestation("mr", &negative, now)
	assert.Equal(t, uint64(0), att.IssuedAt)
}

func TestContract_ReportPrice(t *testing.T) {
	s := new(MockSubmitter)
	s.On("Submit", tx.FunctionCall{
		ContractID: "oracle.testnet",
		MethodName: "report_price",
		Args: map[string]interface{}{
			"asset_id":   "near",
			"multiplier": uint64(35000),
			"decimals":   uint8(4),
		},
		Gas: tx.DefaultGas,
	}).Return(tx.Result{TxHash: "h"}, nil)

	err := newContract(nil, s).ReportPrice(context.Background(), price.Encoded{AssetID: "near", Mantissa: 35000, Decimals: 4})
	require.NoError(t, err)
	s.AssertExpectations(t)
}

func TestContract_ReportPriceError(t *testing.T) {
	s := new(MockSubmitter)
	s.On("Submit", mock.Anything).Return(tx.Result{}, tx.ErrTransactionRejected)

	err := newContract(nil, s).ReportPrice(context.Background(), price.Encoded{AssetID: "near", Mantissa: 1, Decimals: 4})
	require.ErrorIs(t, err, tx.ErrTransactionRejected)
}

func TestContract_RegisterNodeArgs(t *testing.T) {
	s := new(MockSubmitter)
	s.On("Submit", mock.Anything).Return(tx.Result{}, nil)

	att := Attestation{MrEnclave: "mr", IssuedAt: 42}
	require.NoError(t, newContract(nil, s).RegisterNode(context.Background(), "hash", att))

	call := s.Calls[0].Arguments.Get(0).(tx.FunctionCall)
	assert.Equal(t, "register_node", call.MethodName)
	raw, err := json.Marshal(call.Args)
	require.NoError(t, err)
	assert.JSONEq(t, `{"code_hash":"hash","attestation":{"mr_enclave":"mr","issued_at":42}}`, string(raw))
}

func TestContract_IsAuthorized(t *testing.T) {
	v := new(MockViewer)
	v.On("ViewFunction", "oracle.testnet", "is_authorized", map[string]string{"account_id": "node.testnet"}).
		Return([]byte("true"), nil)

	ok, err := newContract(v, nil).IsAuthorized(context.Background(), "node.testnet")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestContract_GetPrice(t *testing.T) {
	v := new(MockViewer)
	v.On("ViewFunction", "oracle.testnet", "get_price", map[string]string{"asset_id": "near"}).
		Return([]byte(`{"asset_id":"near","price":{"multiplier":35000,"decimals":4,"timestamp":1700000000000000000},"num_sources":3}`), nil)
	v.On("ViewFunction", "oracle.testnet", "get_price", map[string]string{"asset_id": "stale"}).
		Return([]byte(`null`), nil)

	c := newContract(v, nil)
	data, err := c.GetPrice(context.Background(), "near")
	require.NoError(t, err)
	assert.Equal(t, "35000", data.Price.Multiplier.String())
	assert.Equal(t, uint8(4), data.Price.Decimals)
	assert.Equal(t, uint8(3), data.NumSources)
	assert.Equal(t, int64(1700000000), data.Time().Unix())

	_, err = c.GetPrice(context.Background(), "stale")
	require.ErrorIs(t, err, ErrPriceNotFound)
}

func TestContract_GetAssets(t *testing.T) {
	v := new(MockViewer)
	v.On("ViewFunction", "oracle.testnet", "get_assets", nil).
		Return([]byte(`[{"id":"near","symbol":"NEAR","name":"NEAR Protocol","decimals":4,"active":true,"min_sources":2}]`), nil)

	assets, err := newContract(v, nil).GetAssets(context.Background())
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, uint8(2), assets[0].MinSources)
}

func TestEnsureRegistered(t *testing.T) {
	att := Attestation{MrEnclave: "mr", IssuedAt: 1}

	t.Run("already registered", func(t *testing.T) {
		r := new(MockReporter)
		r.On("IsAuthorized", "node").Return(true, nil)

		registered, err := EnsureRegistered(context.Background(), r, "node", "hash", att, zerolog.Nop())
		require.NoError(t, err)
		assert.False(t, registered)
		r.AssertNotCalled(t, "RegisterNode", mock.Anything, mock.Anything)
	})

	t.Run("registers when missing", func(t *testing.T) {
		r := new(MockReporter)
		r.On("IsAuthorized", "node").Return(false, nil)
		r.On("RegisterNode", "hash", att).Return(nil)

		registered, err := EnsureRegistered(context.Background(), r, "node", "hash", att, zerolog.Nop())
		require.NoError(t, err)
		assert.True(t, registered)
		r.AssertExpectations(t)
	})

	t.Run("registration failure is surfaced", func(t *testing.T) {
		r := new(MockReporter)
		r.On("IsAuthorized", "node").Return(false, nil)
		r.On("RegisterNode", "hash", att).Return(errors.New("code hash not approved"))

		_, err := EnsureRegistered(context.Background(), r, "node", "hash", att, zerolog.Nop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "code hash not approved")
	})

	t.Run("check failure is surfaced", func(t *testing.T) {
		r := new(MockReporter)
		r.On("IsAuthorized", "node").Return(false, errors.New("rpc down"))

		_, err := EnsureRegistered(context.Background(), r, "node", "hash", att, zerolog.Nop())
		require.Error(t, err)
	})
}

func TestVerify(t *testing.T) {
	v := new(MockViewer)
	v.On("ViewFunction", "oracle.testnet", "get_price", map[string]string{"asset_id": "near"}).
		Return([]byte(`{"asset_id":"near","price":{"multiplier":"35000","decimals":4,"timestamp":1},"num_sources":1}`), nil)
	c := newContract(v, nil)

	_, err := Verify(context.Background(), c, price.Encoded{AssetID: "near", Mantissa: 35000, Decimals: 4})
	require.NoError(t, err)

	data, err := Verify(context.Background(), c, price.Encoded{AssetID: "near", Mantissa: 35001, Decimals: 4})
	require.ErrorIs(t, err, ErrPriceMismatch)
	require.NotNil(t, data)
}

func TestDeviation(t *testing.T) {
	tests := []struct {
		name       string
		multiplier string
		decimals   uint8
		want       string
	}{
		{name: "equal", multiplier: "35000", decimals: 4, want: "0"},
		{name: "one percent", multiplier: "35350", decimals: 4, want: "0.01"},
		{name: "different precision", multiplier: "345", decimals: 2, want: "0.0142857142857143"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := &PriceData{Price: Price{Multiplier: decimal.RequireFromString(tt.multiplier), Decimals: tt.decimals}}
			got := Deviation(price.Encoded{AssetID: "near", Mantissa: 35000, Decimals: 4}, data)
			assert.True(t, got.Round(16).Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}
