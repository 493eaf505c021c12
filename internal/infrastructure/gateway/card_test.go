package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/payably/backend/internal/domain/payment"
	"github.com/payably/backend/internal/domain/shared/valueobject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) *Config {
	return &Config{
		BaseURL: baseURL,
		APIKey:  "sk_test_123",
		Timeout: 5 * time.Second,
	}
}

func cardChargeRequest() payment.ChargeRequest {
	return payment.ChargeRequest{
		TransactionID: "txn-1",
		Amount:        valueobject.NewMoneyFromCents(10290, valueobject.USD),
		Method:        payment.MethodCard,
		MethodToken:   "tok_visa",
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr error
	}{
		{
			name:    "valid config",
			config:  &Config{BaseURL: "https://gateway.example.com", APIKey: "sk_test"},
			wantErr: nil,
		},
		{
			name:    "missing base URL",
			config:  &Config{APIKey: "sk_test"},
			wantErr: ErrGatewayMissingBaseURL,
		},
		{
			name:    "missing API key",
			config:  &Config{BaseURL: "https://gateway.example.com"},
			wantErr: ErrGatewayMissingAPIKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, defaultGatewayTimeout, tt.config.Timeout)
			}
		})
	}
}

func TestCardGatewayAdapter_Charge(t *testing.T) {
	t.Run("settles synchronously and sends the idempotency key", func(t *testing.T) {
		var gotIdempotencyKey, gotAuth string
		var gotBody chargeRequestBody

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotIdempotencyKey = r.Header.Get("Idempotency-Key")
			gotAuth = r.Header.Get("Authorization")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(chargeResponseBody{ChargeID: "ch_123", Status: chargeStatusSucceeded})
		}))
		defer server.Close()

		adapter, err := NewCardGatewayAdapter(testConfig(server.URL))
		require.NoError(t, err)

		result, err := adapter.Charge(context.Background(), cardChargeRequest())

		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.False(t, result.Pending)
		assert.Equal(t, "ch_123", result.VendorTransactionID)
		assert.Equal(t, "txn-1", gotIdempotencyKey)
		assert.Equal(t, "Bearer sk_test_123", gotAuth)
		assert.Equal(t, int64(10290), gotBody.AmountCents)
		assert.Equal(t, "tok_visa", gotBody.MethodToken)
	})

	t.Run("maps a decline to a transient failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			json.NewEncoder(w).Encode(gatewayErrorBody{Code: "CARD_DECLINED", Message: "insufficient funds"})
		}))
		defer server.Close()

		adapter, err := NewCardGatewayAdapter(testConfig(server.URL))
		require.NoError(t, err)

		_, err = adapter.Charge(context.Background(), cardChargeRequest())

		require.Error(t, err)
		assert.False(t, payment.IsStructural(err))

		var se *payment.SettlementError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "CARD_DECLINED", se.Code)
	})

	t.Run("maps a missing prerequisite to a structural failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(gatewayErrorBody{Code: "TOKEN_NOT_FOUND", Message: "unknown method token"})
		}))
		defer server.Close()

		adapter, err := NewCardGatewayAdapter(testConfig(server.URL))
		require.NoError(t, err)

		_, err = adapter.Charge(context.Background(), cardChargeRequest())

		require.Error(t, err)
		assert.True(t, payment.IsStructural(err))
	})

	t.Run("maps a consumed idempotency token to a duplicate charge", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(gatewayErrorBody{Code: "DUPLICATE", Message: "idempotency key already used"})
		}))
		defer server.Close()

		adapter, err := NewCardGatewayAdapter(testConfig(server.URL))
		require.NoError(t, err)

		_, err = adapter.Charge(context.Background(), cardChargeRequest())

		assert.ErrorIs(t, err, payment.ErrDuplicateCharge)
	})

	t.Run("maps a server error to a transient failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		adapter, err := NewCardGatewayAdapter(testConfig(server.URL))
		require.NoError(t, err)

		_, err = adapter.Charge(context.Background(), cardChargeRequest())

		require.Error(t, err)
		assert.False(t, payment.IsStructural(err))
	})

	t.Run("maps an exceeded deadline to a gateway timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer server.Close()

		cfg := testConfig(server.URL)
		cfg.Timeout = 20 * time.Millisecond
		adapter, err := NewCardGatewayAdapter(cfg)
		require.NoError(t, err)

		_, err = adapter.Charge(context.Background(), cardChargeRequest())

		require.Error(t, err)
		assert.ErrorIs(t, err, payment.ErrGatewayTimeout)
		assert.False(t, payment.IsStructural(err))
	})

	t.Run("maps an unreachable gateway to unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		adapter, err := NewCardGatewayAdapter(testConfig(server.URL))
		require.NoError(t, err)

		_, err = adapter.Charge(context.Background(), cardChargeRequest())

		assert.ErrorIs(t, err, payment.ErrGatewayUnavailable)
	})

	t.Run("rejects an invalid request before calling out", func(t *testing.T) {
		adapter, err := NewCardGatewayAdapter(testConfig("https://gateway.example.com"))
		require.NoError(t, err)

		req := cardChargeRequest()
		req.MethodToken = ""

		_, err = adapter.Charge(context.Background(), req)

		require.Error(t, err)
		assert.True(t, payment.IsStructural(err))
	})
}

func TestCardGatewayAdapter_Reversals(t *testing.T) {
	t.Run("refunds a settled charge", func(t *testing.T) {
		var gotPath string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(reversalResponseBody{Status: "refunded", AmountCents: 10290})
		}))
		defer server.Close()

		adapter, err := NewCardGatewayAdapter(testConfig(server.URL))
		require.NoError(t, err)

		result, err := adapter.Refund(context.Background(), payment.ReversalRequest{
			TransactionID:       "txn-1",
			VendorTransactionID: "ch_123",
			Amount:              valueobject.NewMoneyFromCents(10290, valueobject.USD),
			Method:              payment.MethodCard,
		})

		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, int64(10290), result.Amount.Cents())
		assert.Equal(t, "/v1/charges/ch_123/refund", gotPath)
	})

	t.Run("does not support void", func(t *testing.T) {
		adapter, err := NewCardGatewayAdapter(testConfig("https://gateway.example.com"))
		require.NoError(t, err)

		_, err = adapter.Void(context.Background(), payment.ReversalRequest{
			VendorTransactionID: "ch_123",
			Amount:              valueobject.NewMoneyFromCents(10290, valueobject.USD),
		})

		assert.ErrorIs(t, err, payment.ErrReversalNotSupported)
	})
}
