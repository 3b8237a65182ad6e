package transferclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/delegate-rewards/referral-payout/internal/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(url string, retries uint) *config.TransferConfig {
	return &config.TransferConfig{
		Type:          config.TransferTypeHTTP,
		URL:           url,
		Timeout:       time.Second,
		MaxRetryTimes: retries,
		RetryInterval: time.Millisecond,
	}
}

var transfer = Transfer{
	RunID:      "run-1",
	StartBlock: 100,
	EndBlock:   200,
	User:       "alice",
	Address:    "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY",
	Amount:     decimal.RequireFromString("109.999999856"),
}

func TestAttemptTransfer_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/transfers", r.URL.Path)
		assert.Equal(t, "100-200:"+transfer.Address, r.Header.Get("Idempotency-Key"))

		var req transferRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, transfer.Address, req.Destination)
		assert.Equal(t, "109.999999856", req.Amount)

		_ = json.NewEncoder(w).Encode(transferResponse{Status: "success", TxHash: "0xabc"})
	}))
	defer server.Close()

	outcome, err := NewHTTPClient(testConfig(server.URL+"/", 3)).AttemptTransfer(context.Background(), transfer)
	require.NoError(t, err)
	assert.Equal(t, Success, outcome)
}

func TestAttemptTransfer_RetriesServerErrors(t *testing.T) {
	var requests atomic.Int32
	keys := make(chan string, 3)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys <- r.Header.Get("Idempotency-Key")
		if requests.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(transferResponse{Status: "success"})
	}))
	defer server.Close()

	outcome, err := NewHTTPClient(testConfig(server.URL, 3)).AttemptTransfer(context.Background(), transfer)
	require.NoError(t, err)
	assert.Equal(t, Success, outcome)
	assert.Equal(t, int32(3), requests.Load())

	close(keys)
	for key := range keys {
		assert.Equal(t, transfer.IdempotencyKey(), key, "retries reuse the idempotency key")
	}
}

func TestAttemptTransfer_ExceedsMaxRetries(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	outcome, err := NewHTTPClient(testConfig(server.URL, 2)).AttemptTransfer(context.Background(), transfer)
	require.Error(t, err)
	assert.Equal(t, Failure, outcome)
	assert.Equal(t, int32(2), requests.Load())
}

func TestAttemptTransfer_ClientErrorNotRetried(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	outcome, err := NewHTTPClient(testConfig(server.URL, 3)).AttemptTransfer(context.Background(), transfer)
	require.Error(t, err)
	assert.Equal(t, Failure, outcome)
	assert.Equal(t, int32(1), requests.Load())
}

func TestAttemptTransfer_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(transferResponse{Status: "failed", Message: "insufficient balance"})
	}))
	defer server.Close()

	outcome, err := NewHTTPClient(testConfig(server.URL, 3)).AttemptTransfer(context.Background(), transfer)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient balance")
	assert.Equal(t, Failure, outcome)
}

func TestNew(t *testing.T) {
	cfg := testConfig("http://localhost:1", 1)

	tr, err := New(cfg, true)
	require.NoError(t, err)
	outcome, err := tr.AttemptTransfer(context.Background(), transfer)
	require.NoError(t, err)
	assert.Equal(t, Success, outcome, "dry run never reaches the service")

	_, err = New(&config.TransferConfig{Type: "carrier-pigeon"}, false)
	require.Error(t, err)

	mock := NewMockClient()
	_, err = mock.AttemptTransfer(context.Background(), transfer)
	require.NoError(t, err)
	require.Len(t, mock.Transfers(), 1)
	assert.Equal(t, "alice", mock.Transfers()[0].User)
}
