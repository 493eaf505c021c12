package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/payably/backend/internal/domain/payment"
	"github.com/payably/backend/internal/domain/shared/valueobject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func achChargeRequest() payment.ChargeRequest {
	return payment.ChargeRequest{
		TransactionID: "txn-2",
		Amount:        valueobject.NewMoneyFromCents(10000, valueobject.USD),
		Method:        payment.MethodACH,
		MethodToken:   "ba_checking",
	}
}

func TestACHGatewayAdapter_Charge(t *testing.T) {
	t.Run("returns accepted for processing", func(t *testing.T) {
		var gotIdempotencyKey string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotIdempotencyKey = r.Header.Get("Idempotency-Key")
			assert.Equal(t, "/v1/debits", r.URL.Path)

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(chargeResponseBody{ChargeID: "db_456", Status: chargeStatusAccepted})
		}))
		defer server.Close()

		adapter, err := NewACHGatewayAdapter(testConfig(server.URL))
		require.NoError(t, err)

		result, err := adapter.Charge(context.Background(), achChargeRequest())

		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.True(t, result.Pending)
		assert.Equal(t, "db_456", result.VendorTransactionID)
		assert.Equal(t, "txn-2", gotIdempotencyKey)
	})

	t.Run("maps a rejection to a transient failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			json.NewEncoder(w).Encode(gatewayErrorBody{Code: "ACH_REJECTED", Message: "account frozen"})
		}))
		defer server.Close()

		adapter, err := NewACHGatewayAdapter(testConfig(server.URL))
		require.NoError(t, err)

		_, err = adapter.Charge(context.Background(), achChargeRequest())

		require.Error(t, err)
		assert.False(t, payment.IsStructural(err))
	})

	t.Run("maps an unknown account to a structural failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(gatewayErrorBody{Code: "ACCOUNT_NOT_FOUND", Message: "unknown bank account"})
		}))
		defer server.Close()

		adapter, err := NewACHGatewayAdapter(testConfig(server.URL))
		require.NoError(t, err)

		_, err = adapter.Charge(context.Background(), achChargeRequest())

		require.Error(t, err)
		assert.True(t, payment.IsStructural(err))
	})
}

func TestACHGatewayAdapter_Reversals(t *testing.T) {
	t.Run("voids an unsettled debit", func(t *testing.T) {
		var gotPath string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(reversalResponseBody{Status: "cancelled", AmountCents: 10000})
		}))
		defer server.Close()

		adapter, err := NewACHGatewayAdapter(testConfig(server.URL))
		require.NoError(t, err)

		result, err := adapter.Void(context.Background(), payment.ReversalRequest{
			TransactionID:       "txn-2",
			VendorTransactionID: "db_456",
			Amount:              valueobject.NewMoneyFromCents(10000, valueobject.USD),
			Method:              payment.MethodACH,
		})

		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, "/v1/debits/db_456/cancel", gotPath)
	})

	t.Run("does not support refund", func(t *testing.T) {
		adapter, err := NewACHGatewayAdapter(testConfig("https://gateway.example.com"))
		require.NoError(t, err)

		_, err = adapter.Refund(context.Background(), payment.ReversalRequest{
			VendorTransactionID: "db_456",
			Amount:              valueobject.NewMoneyFromCents(10000, valueobject.USD),
		})

		assert.ErrorIs(t, err, payment.ErrReversalNotSupported)
	})
}
