package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"PesaGate/internal/conf"
	"PesaGate/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMpesaTestServer fakes the Daraja endpoints used by the adapter.
func newMpesaTestServer(t *testing.T, tokenCalls *atomic.Int32, stkHandler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		if tokenCalls != nil {
			tokenCalls.Add(1)
		}
		assert.NotEmpty(t, r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]string{
			"access_token": "test-token",
			"expires_in":   "3599",
		})
	})
	if stkHandler != nil {
		mux.HandleFunc("/mpesa/stkpush/v1/processrequest", stkHandler)
	}
	return httptest.NewServer(mux)
}

func newMpesaAdapter(t *testing.T, baseURL string) *MpesaAdapter {
	t.Helper()
	a, err := NewMpesaAdapter(&conf.Provider{
		Name:      model.ProviderMpesa,
		BaseUrl:   baseURL,
		ApiKey:    "consumer-key",
		ApiSecret: "consumer-secret",
		Timeout:   5 * time.Second,
		Extra: map[string]string{
			"shortcode":    "174379",
			"passkey":      "test-passkey",
			"callback_url": "https://gateway.example.com/callbacks/mpesa",
		},
	}, log.DefaultLogger)
	require.NoError(t, err)
	return a
}

func TestMpesaAdapter_Initiate(t *testing.T) {
	var tokenCalls atomic.Int32
	srv := newMpesaTestServer(t, &tokenCalls, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var req mpesaSTKRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "174379", req.BusinessShortCode)
		assert.Equal(t, "254712345678", req.PhoneNumber)
		assert.Equal(t, "150", req.Amount)
		assert.Equal(t, "ORDER-001", req.AccountReference)

		_ = json.NewEncoder(w).Encode(mpesaSTKResponse{
			CheckoutRequestID:   "ws_CO_123",
			ResponseCode:        "0",
			ResponseDescription: "Success",
			CustomerMessage:     "Check your phone",
		})
	})
	defer srv.Close()

	a := newMpesaAdapter(t, srv.URL)

	result, err := a.Initiate(context.Background(), &model.PaymentRequest{
		Amount:      decimal.NewFromFloat(150.00),
		Currency:    "KES",
		PhoneNumber: "254712345678",
		Reference:   "ORDER-001",
		Description: "Test order",
	})
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_123", result.ProviderRef)
	assert.Equal(t, model.StatusPending, result.Status)
	assert.Equal(t, "Check your phone", result.Message)
}

func TestMpesaAdapter_InitiateRejected(t *testing.T) {
	srv := newMpesaTestServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(mpesaSTKResponse{
			ResponseCode:        "1",
			ResponseDescription: "Invalid Amount",
		})
	})
	defer srv.Close()

	a := newMpesaAdapter(t, srv.URL)

	_, err := a.Initiate(context.Background(), &model.PaymentRequest{
		Amount:      decimal.NewFromInt(10),
		Currency:    "KES",
		PhoneNumber: "254712345678",
		Reference:   "ORDER-002",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.False(t, IsTransient(err))
}

func TestMpesaAdapter_TokenCaching(t *testing.T) {
	var tokenCalls atomic.Int32
	srv := newMpesaTestServer(t, &tokenCalls, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(mpesaSTKResponse{
			CheckoutRequestID: "ws_CO_123",
			ResponseCode:      "0",
		})
	})
	defer srv.Close()

	a := newMpesaAdapter(t, srv.URL)

	req := &model.PaymentRequest{
		Amount:      decimal.NewFromInt(10),
		Currency:    "KES",
		PhoneNumber: "254712345678",
		Reference:   "ORDER-003",
	}

	_, err := a.Initiate(context.Background(), req)
	require.NoError(t, err)
	_, err = a.Initiate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, int32(1), tokenCalls.Load(), "token should be fetched once and cached")

	// Advance the clock past expiry; the next call refreshes.
	a.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = a.Initiate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(2), tokenCalls.Load())
}

func TestMpesaAdapter_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		resultCode string
		want       model.PaymentStatus
	}{
		{"success", "0", model.StatusSuccess},
		{"cancelled by user", "1032", model.StatusCancelled},
		{"still processing", "", model.StatusPending},
		{"insufficient balance", "1", model.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok", "expires_in": "3599"})
			})
			mux.HandleFunc("/mpesa/stkpushquery/v1/query", func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(mpesaQueryResponse{
					ResultCode:        tt.resultCode,
					CheckoutRequestID: "ws_CO_123",
				})
			})
			srv := httptest.NewServer(mux)
			defer srv.Close()

			a := newMpesaAdapter(t, srv.URL)

			result, err := a.Status(context.Background(), "ws_CO_123")
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Status)
		})
	}
}

func TestMpesaAdapter_HealthCheck(t *testing.T) {
	srv := newMpesaTestServer(t, nil, nil)
	defer srv.Close()

	a := newMpesaAdapter(t, srv.URL)
	assert.NoError(t, a.HealthCheck(context.Background()))
}

func TestMpesaAdapter_HealthCheckDown(t *testing.T) {
	fastBackoffs(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(503)
	}))
	defer srv.Close()

	a := newMpesaAdapter(t, srv.URL)

	err := a.HealthCheck(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}
