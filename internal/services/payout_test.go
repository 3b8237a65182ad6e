package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/davecgh/go-spew/spew"
	"github.com/delegate-rewards/referral-payout/internal/clients/transferclient"
	"github.com/delegate-rewards/referral-payout/internal/config"
	"github.com/delegate-rewards/referral-payout/internal/ledger"
	"github.com/delegate-rewards/referral-payout/internal/referral"
	"github.com/delegate-rewards/referral-payout/internal/snapshot"
	"github.com/delegate-rewards/referral-payout/internal/types"
	"github.com/delegate-rewards/referral-payout/internal/users"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	addrA     = "5FA9nQDVg267DEd8m1ZypXLBnvN7SFxYwV7ndqSYGiN9TTpu"
	addrB     = "5Ckx2w7xkrXRUhmT1hMnthsGqQwyWbhkGdHAmYUZFf8rbDNb"
	addrOwner = "5HotKeyOwner000000000000000000000000000000000000"
)

var pool = decimal.RequireFromString("1000")

type fakeTransferer struct {
	mu        sync.Mutex
	fail      map[string]bool
	transfers []transferclient.Transfer
}

func (f *fakeTransferer) AttemptTransfer(_ context.Context, t transferclient.Transfer) (transferclient.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = append(f.transfers, t)
	if f.fail[t.Address] {
		return transferclient.Failure, errors.New("node rejected extrinsic")
	}
	return transferclient.Success, nil
}

type fixture struct {
	service    *Service
	transferer *fakeTransferer
	logPath    string
	ledgerPath string
}

func snapshotLine(block uint64, percentA, percentB string) string {
	return fmt.Sprintf(
		"2024-05-01 10:00:00,123 - delegate_info_logger - INFO - Timestamp: 2024-05-01 10:00:00, Block: %d, "+
			"Delegate info for 5HotKey: "+
			`{"total_stake": 1000.5, "total_daily_return": 1.25, "take": 0.18, `+
			`"nominators": [["%s", 100.0], ["%s", 50.0]], `+
			`"nominators_percent": [["%s", %s], ["%s", %s], ["%s", 0.85]]}`+"\n",
		block, addrA, addrB, addrA, percentA, addrB, percentB, addrOwner,
	)
}

func appendSnapshots(t *testing.T, path string, lines ...string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(strings.Join(lines, ""))
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	registry, err := users.New([]types.UserAccount{
		{Name: "A", Addresses: []string{addrA}},
		{Name: "B", Addresses: []string{addrB}},
	})
	require.NoError(t, err)

	graph, err := referral.New([]referral.Edge{
		{Layer: 1, Referrer: "A", TaxRate: sdkmath.LegacyMustNewDecFromStr("0.20"), Referees: []string{"B"}},
	})
	require.NoError(t, err)

	cfg := &config.Config{
		Payout: config.PayoutConfig{Fee: "0.000000144", Precision: 9},
		Server: config.ServerConfig{PollInterval: time.Minute},
	}

	f := &fixture{
		transferer: &fakeTransferer{fail: map[string]bool{}},
		logPath:    filepath.Join(dir, "delegate_info.log"),
		ledgerPath: filepath.Join(dir, "payout_log.csv"),
	}
	appendSnapshots(t, f.logPath)

	f.service = NewService(
		cfg,
		snapshot.NewReader(snapshot.NewFileSource(f.logPath), 4),
		registry,
		graph,
		ledger.New(ledger.NewCSVStore(f.ledgerPath)),
		f.transferer,
		clockwork.NewFakeClock(),
	)
	return f
}

func (f *fixture) records(t *testing.T) []types.PayoutRecord {
	t.Helper()
	records, err := f.service.Records(context.Background(), 0)
	require.NoError(t, err)
	return records
}

func TestPayout_Settles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	appendSnapshots(t, f.logPath,
		snapshotLine(100, "0.10", "0.05"),
		"2024-05-01 10:00:05,000 - delegate_info_logger - INFO - connected to node\n",
		snapshotLine(200, "0.10", "0.05"),
	)

	result, err := f.service.Payout(ctx, pool, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, types.StateSettled, result.State)
	assert.Equal(t, uint64(100), result.Plan.StartBlock)
	assert.Equal(t, uint64(200), result.Plan.EndBlock)
	assert.Equal(t, 2, result.Plan.Snapshots)

	records := f.records(t)
	require.Len(t, records, 2, spew.Sdump(records))
	assert.Equal(t, "A", records[0].User)
	assert.Equal(t, "109.999999856", records[0].Amount.String())
	assert.Equal(t, "B", records[1].User)
	assert.Equal(t, "39.999999856", records[1].Amount.String())

	require.Len(t, f.transferer.transfers, 2)
	for _, tr := range f.transferer.transfers {
		assert.Equal(t, result.Plan.RunID, tr.RunID)
	}

	point, err := f.service.ResumePoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(201), *point)
}

func TestPayout_ResumesAfterSettledWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	appendSnapshots(t, f.logPath, snapshotLine(100, "0.10", "0.05"), snapshotLine(200, "0.10", "0.05"))

	_, err := f.service.Payout(ctx, pool, RunOptions{})
	require.NoError(t, err)

	appendSnapshots(t, f.logPath, snapshotLine(300, "0.30", "0.10"))

	result, err := f.service.Payout(ctx, pool, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, uint64(201), result.Plan.StartBlock)
	assert.Equal(t, uint64(300), result.Plan.EndBlock)
	assert.Equal(t, 1, result.Plan.Snapshots)

	records := f.records(t)
	require.Len(t, records, 4)
	// A: 0.30 + 0.02, B: 0.08
	assert.Equal(t, "319.999999856", records[2].Amount.String())
	assert.Equal(t, "79.999999856", records[3].Amount.String())
	assert.Equal(t, uint64(201), records[3].StartBlock)
}

func TestPayout_FailedTransferAbortsBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	appendSnapshots(t, f.logPath, snapshotLine(100, "0.10", "0.05"), snapshotLine(200, "0.10", "0.05"))
	f.transferer.fail[addrA] = true

	result, err := f.service.Payout(ctx, pool, RunOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrTransferBatchIncomplete)
	assert.True(t, IsRetriable(err))
	assert.Equal(t, types.StateAborted, result.State)

	var incomplete *types.TransferBatchIncompleteError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, 2, incomplete.Attempted)
	require.Len(t, incomplete.Failures, 1)
	assert.Equal(t, "A", incomplete.Failures[0].User)

	// B was still attempted after A failed
	assert.Len(t, f.transferer.transfers, 2)
	assert.Empty(t, f.records(t))

	pending, err := f.service.ledger.Pending(ctx)
	require.NoError(t, err)
	require.NotNil(t, pending, "an aborted window stays pinned")
	assert.Equal(t, uint64(200), pending.EndBlock)
	assert.Equal(t, result.Plan.RunID, pending.RunID)

	// the logger keeps appending while the operator fixes the failure
	appendSnapshots(t, f.logPath, snapshotLine(300, "0.30", "0.10"))

	// the retry covers the identical window even though newer snapshots exist
	f.transferer.fail[addrA] = false
	retry, err := f.service.Payout(ctx, pool, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, result.Plan.StartBlock, retry.Plan.StartBlock)
	assert.Equal(t, result.Plan.EndBlock, retry.Plan.EndBlock)
	assert.Equal(t, 2, retry.Plan.Snapshots)
	require.NotNil(t, retry.Plan.Pending)
	assert.NotEqual(t, result.Plan.RunID, retry.Plan.RunID)
	assert.Len(t, f.records(t), 2)

	// both runs present the same keys so the executor can drop repeats
	require.Len(t, f.transferer.transfers, 4)
	for i := range 2 {
		first, again := f.transferer.transfers[i], f.transferer.transfers[i+2]
		assert.Equal(t, first.IdempotencyKey(), again.IdempotencyKey())
		assert.True(t, first.Amount.Equal(again.Amount), "%s: %s vs %s", first.User, first.Amount, again.Amount)
	}
	assert.Equal(t, "100-200:"+addrB, f.transferer.transfers[3].IdempotencyKey())

	pending, err = f.service.ledger.Pending(ctx)
	require.NoError(t, err)
	assert.Nil(t, pending, "settling clears the marker")

	// with the window settled the next run moves on to the newer snapshots
	next, err := f.service.Payout(ctx, pool, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, uint64(201), next.Plan.StartBlock)
	assert.Equal(t, uint64(300), next.Plan.EndBlock)
	assert.Nil(t, next.Plan.Pending)
}

func TestPayout_PendingWindowPinsPoolAndEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	appendSnapshots(t, f.logPath, snapshotLine(100, "0.10", "0.05"), snapshotLine(200, "0.10", "0.05"))
	f.transferer.fail[addrB] = true

	_, err := f.service.Payout(ctx, pool, RunOptions{})
	require.ErrorIs(t, err, types.ErrTransferBatchIncomplete)
	appendSnapshots(t, f.logPath, snapshotLine(300, "0.10", "0.05"))
	attempted := len(f.transferer.transfers)

	_, err = f.service.Payout(ctx, decimal.RequireFromString("2000"), RunOptions{})
	assert.ErrorIs(t, err, types.ErrPendingWindowMismatch)

	end := uint64(300)
	_, err = f.service.Payout(ctx, pool, RunOptions{EndBlock: &end})
	assert.ErrorIs(t, err, types.ErrPendingWindowMismatch)
	assert.Len(t, f.transferer.transfers, attempted, "a mismatched run transfers nothing")

	f.transferer.fail[addrB] = false

	// previews and dry runs show what the retry will do and leave the marker alone
	plan, err := f.service.Preview(ctx, pool, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, uint64(200), plan.EndBlock)
	require.NotNil(t, plan.Pending)

	_, err = f.service.Payout(ctx, pool, RunOptions{DryRun: true})
	require.NoError(t, err)
	pending, err := f.service.ledger.Pending(ctx)
	require.NoError(t, err)
	require.NotNil(t, pending)

	end = 200
	result, err := f.service.Payout(ctx, pool, RunOptions{EndBlock: &end})
	require.NoError(t, err)
	assert.Equal(t, types.StateSettled, result.State)
}

func TestPayout_CanceledContext(t *testing.T) {
	f := newFixture(t)
	appendSnapshots(t, f.logPath, snapshotLine(100, "0.10", "0.05"))

	plan, err := f.service.Preview(context.Background(), pool, RunOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = f.service.transferBatch(ctx, plan)
	assert.ErrorIs(t, err, types.ErrTransferBatchIncomplete)
	assert.Empty(t, f.transferer.transfers)
}

func TestPayout_ZeroWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	result, err := f.service.Payout(ctx, pool, RunOptions{})
	require.NoError(t, err)
	assert.True(t, result.Plan.ZeroWindow)
	assert.Equal(t, types.StateSettled, result.State)
	assert.True(t, result.Plan.Batch.IsEmpty())
	assert.Len(t, result.Plan.Batch.Skipped, 2)
	assert.Empty(t, f.transferer.transfers)

	point, err := f.service.ResumePoint(ctx)
	require.NoError(t, err)
	assert.Nil(t, point, "an empty batch leaves the ledger untouched")
}

func TestPayout_EndBlock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	appendSnapshots(t, f.logPath,
		snapshotLine(100, "0.10", "0.05"),
		snapshotLine(200, "0.30", "0.05"),
	)

	end := uint64(150)
	result, err := f.service.Payout(ctx, pool, RunOptions{EndBlock: &end})
	require.NoError(t, err)
	assert.Equal(t, uint64(150), result.Plan.EndBlock)
	assert.Equal(t, 1, result.Plan.Snapshots)

	result, err = f.service.Payout(ctx, pool, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, uint64(151), result.Plan.StartBlock)
	assert.Equal(t, uint64(200), result.Plan.EndBlock)
}

func TestPayout_EndBlockBeforeStart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	appendSnapshots(t, f.logPath, snapshotLine(100, "0.10", "0.05"), snapshotLine(200, "0.10", "0.05"))

	_, err := f.service.Payout(ctx, pool, RunOptions{})
	require.NoError(t, err)

	end := uint64(150)
	result, err := f.service.Payout(ctx, pool, RunOptions{EndBlock: &end})
	require.ErrorIs(t, err, types.ErrInvalidWindow)
	assert.Nil(t, result)
	assert.Len(t, f.records(t), 2)

	_, err = f.service.Preview(ctx, pool, RunOptions{EndBlock: &end})
	assert.ErrorIs(t, err, types.ErrInvalidWindow)
}

func TestPayout_DryRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	appendSnapshots(t, f.logPath, snapshotLine(100, "0.10", "0.05"))

	result, err := f.service.Payout(ctx, pool, RunOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, types.StateSettled, result.State)
	assert.Len(t, result.Plan.Batch.Records, 2)
	assert.Empty(t, f.records(t))
}

func TestPreview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	appendSnapshots(t, f.logPath, snapshotLine(100, "0.10", "0.05"))

	plan, err := f.service.Preview(ctx, pool, RunOptions{})
	require.NoError(t, err)
	assert.True(t, plan.Baseline.Get("A").Equal(sdkmath.LegacyMustNewDecFromStr("0.10")))
	assert.True(t, plan.Adjusted.Get("A").Equal(sdkmath.LegacyMustNewDecFromStr("0.11")))
	assert.True(t, plan.Adjusted.Sum().Equal(plan.Baseline.Sum()))
	assert.False(t, plan.Adjusted.Has("owner"))
	assert.Empty(t, f.transferer.transfers)
	assert.Empty(t, f.records(t))

	_, err = f.service.Preview(ctx, decimal.NewFromInt(-1), RunOptions{})
	require.Error(t, err)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	status, err := f.service.Status(ctx)
	require.NoError(t, err)
	assert.Nil(t, status.LatestBlock)
	assert.Zero(t, status.PendingBlocks)

	appendSnapshots(t, f.logPath, snapshotLine(100, "0.10", "0.05"), snapshotLine(200, "0.10", "0.05"))
	status, err = f.service.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, status.LatestBlock)
	assert.Equal(t, uint64(200), *status.LatestBlock)
	assert.Equal(t, uint64(101), status.PendingBlocks)

	_, err = f.service.Payout(ctx, pool, RunOptions{})
	require.NoError(t, err)
	status, err = f.service.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(201), *status.ResumePoint)
	assert.Zero(t, status.PendingBlocks)

	require.NoError(t, f.service.updateStats(ctx))
}
