package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/delegate-rewards/referral-payout/internal/ledger"
	"github.com/delegate-rewards/referral-payout/internal/services"
	"github.com/delegate-rewards/referral-payout/internal/shares"
	"github.com/delegate-rewards/referral-payout/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	status  *services.LedgerStatus
	records []types.PayoutRecord
	limit   int
	opts    services.RunOptions
	err     error
}

func (f *fakeService) Status(context.Context) (*services.LedgerStatus, error) {
	return f.status, f.err
}

func (f *fakeService) Records(_ context.Context, limit int) ([]types.PayoutRecord, error) {
	f.limit = limit
	return f.records, f.err
}

func (f *fakeService) Preview(_ context.Context, pool decimal.Decimal, opts services.RunOptions) (*services.Plan, error) {
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	adjusted := shares.Shares{
		"A": sdkmath.LegacyMustNewDecFromStr("0.11"),
		"B": sdkmath.LegacyMustNewDecFromStr("0.04"),
		"C": sdkmath.LegacyZeroDec(),
	}
	users := []types.UserAccount{
		{Name: "A", Addresses: []string{"addrA"}},
		{Name: "B", Addresses: []string{"addrB"}},
		{Name: "C", Addresses: []string{"addrC"}},
	}
	return &services.Plan{
		StartBlock: 100,
		EndBlock:   200,
		Snapshots:  2,
		Baseline:   adjusted,
		Adjusted:   adjusted,
		Batch:      ledger.Settle(adjusted, users, pool, decimal.RequireFromString("0.000000144"), 9, 100, 200),
	}, nil
}

func do(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestResumePoint(t *testing.T) {
	point, latest := uint64(201), uint64(250)
	s := NewServer(":0", &fakeService{status: &services.LedgerStatus{
		ResumePoint: &point, LatestBlock: &latest, PendingBlocks: 50,
	}})

	rec := do(t, s, "/v1/ledger/resume-point")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"resume_point": 201, "latest_block": 250, "pending_blocks": 50}`, rec.Body.String())
}

func TestRecords(t *testing.T) {
	svc := &fakeService{records: []types.PayoutRecord{{
		User:       "A",
		Address:    "addrA",
		Amount:     decimal.RequireFromString("109.999999856"),
		StartBlock: 100,
		EndBlock:   200,
		PoolTotal:  decimal.RequireFromString("1000"),
	}}}
	s := NewServer(":0", svc)

	rec := do(t, s, "/v1/ledger/records")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultRecordsLimit, svc.limit)
	assert.JSONEq(t, `[{"user":"A","address":"addrA","amount":"109.999999856","start_block":100,"end_block":200,"pool_total":"1000"}]`,
		rec.Body.String())

	rec = do(t, s, "/v1/ledger/records?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, svc.limit)

	rec = do(t, s, "/v1/ledger/records?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreview(t *testing.T) {
	svc := &fakeService{}
	s := NewServer(":0", svc)

	rec := do(t, s, "/v1/preview?pool=1000")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, svc.opts.EndBlock)

	var resp previewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(100), resp.StartBlock)
	assert.Equal(t, "149.999999712", resp.Total)
	require.Len(t, resp.Users, 3)
	assert.Equal(t, "109.999999856", resp.Users[0].Amount)
	assert.Equal(t, "0.11", resp.Users[0].Adjusted)
	assert.True(t, resp.Users[2].Skipped)
	assert.False(t, resp.Retry)

	rec = do(t, s, "/v1/preview?pool=1000&end_block=150")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.opts.EndBlock)
	assert.Equal(t, uint64(150), *svc.opts.EndBlock)

	rec = do(t, s, "/v1/preview?pool=lots")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, "/v1/preview?pool=1&end_block=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrors(t *testing.T) {
	s := NewServer(":0", &fakeService{err: errors.Join(types.ErrSourceUnavailable, errors.New("no such file"))})

	rec := do(t, s, "/v1/preview?pool=1")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, s, "/v1/ledger/resume-point")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "source unavailable")

	s = NewServer(":0", &fakeService{err: fmt.Errorf("%w: pool 1 requested", types.ErrPendingWindowMismatch)})
	rec = do(t, s, "/v1/preview?pool=1")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMetrics(t *testing.T) {
	rec := do(t, NewServer(":0", &fakeService{}), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ledger_pending_blocks")
}
