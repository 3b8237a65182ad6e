package e2etest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/delegate-rewards/referral-payout/e2etest/container"
	"github.com/delegate-rewards/referral-payout/internal/clients/transferclient"
	"github.com/delegate-rewards/referral-payout/internal/config"
	"github.com/delegate-rewards/referral-payout/internal/db"
	"github.com/delegate-rewards/referral-payout/internal/db/model"
	"github.com/delegate-rewards/referral-payout/internal/ledger"
	"github.com/delegate-rewards/referral-payout/internal/lock"
	"github.com/delegate-rewards/referral-payout/internal/referral"
	"github.com/delegate-rewards/referral-payout/internal/services"
	"github.com/delegate-rewards/referral-payout/internal/snapshot"
	"github.com/delegate-rewards/referral-payout/internal/types"
	"github.com/delegate-rewards/referral-payout/internal/users"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

var (
	eventuallyWaitTimeOut = 40 * time.Second
	eventuallyPollTime    = 1 * time.Second
)

// signer is a fake transfer service that remembers idempotency keys
type signer struct {
	mu       sync.Mutex
	executed map[string]string
	reject   map[string]bool
}

func (s *signer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Destination string `json:"destination"`
		Amount      string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reject[req.Destination] {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "failed", "message": "destination frozen"})
		return
	}
	s.executed[r.Header.Get("Idempotency-Key")] = req.Amount
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "success", "tx_hash": gofakeit.HexUint(256)})
}

func (s *signer) setReject(address string, reject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reject[address] = reject
}

func (s *signer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.executed)
}

type TestManager struct {
	Config   *config.Config
	Service  *services.Service
	Db       db.DbInterface
	Signer   *signer
	Accounts []types.UserAccount
	logPath  string
}

// StartManager builds the whole payout stack on a fresh mongo ledger
func StartManager(t *testing.T, referralTable string) *TestManager {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	dbCfg := container.StartMongo(t, container.NewImageConfig())
	require.Eventually(t, func() bool {
		return model.Setup(ctx, dbCfg) == nil
	}, eventuallyWaitTimeOut, eventuallyPollTime)

	database, err := db.New(ctx, *dbCfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(context.Background()) })

	sign := &signer{executed: map[string]string{}, reject: map[string]bool{}}
	server := httptest.NewServer(sign)
	t.Cleanup(server.Close)

	cfg := &config.Config{
		Snapshots: config.SnapshotConfig{Path: filepath.Join(dir, "delegate_info.log"), Workers: 4},
		Users:     config.UsersConfig{Path: filepath.Join(dir, "user_data.json")},
		Referrals: config.ReferralConfig{Path: filepath.Join(dir, "referral_layers.csv")},
		Ledger:    config.LedgerConfig{Type: config.LedgerTypeMongo},
		Db:        dbCfg,
		Payout:    config.PayoutConfig{Fee: "0.000000144", Precision: 9},
		Transfer: config.TransferConfig{
			Type:          config.TransferTypeHTTP,
			URL:           server.URL,
			Timeout:       5 * time.Second,
			MaxRetryTimes: 3,
			RetryInterval: 10 * time.Millisecond,
		},
		Server: config.ServerConfig{PollInterval: time.Minute},
	}

	accounts := []types.UserAccount{
		{Name: "alice", Addresses: []string{gofakeit.Regex("[A-Za-z0-9]{48}")}},
		{Name: "bob", Addresses: []string{gofakeit.Regex("[A-Za-z0-9]{48}")}},
		{Name: "carol", Addresses: []string{gofakeit.Regex("[A-Za-z0-9]{48}"), gofakeit.Regex("[A-Za-z0-9]{48}")}},
	}
	registry, err := users.New(accounts)
	require.NoError(t, err)
	require.NoError(t, registry.Save(cfg.Users.Path))
	require.NoError(t, os.WriteFile(cfg.Referrals.Path, []byte(referralTable), 0o644))
	require.NoError(t, os.WriteFile(cfg.Snapshots.Path, nil, 0o644))

	loaded, err := users.Load(cfg.Users.Path)
	require.NoError(t, err)
	graph, err := referral.Load(cfg.Referrals.Path)
	require.NoError(t, err)
	transferer, err := transferclient.New(&cfg.Transfer, false)
	require.NoError(t, err)

	dbClient := db.NewDbWithMetrics(database)
	clock := clockwork.NewRealClock()
	service := services.NewService(
		cfg,
		snapshot.NewReader(snapshot.NewFileSource(cfg.Snapshots.Path), cfg.Snapshots.Workers),
		loaded,
		graph,
		ledger.New(ledger.NewMongoStore(dbClient, clock)),
		transferer,
		clock,
	)

	return &TestManager{
		Config:   cfg,
		Service:  service,
		Db:       dbClient,
		Signer:   sign,
		Accounts: accounts,
		logPath:  cfg.Snapshots.Path,
	}
}

// AppendSnapshot writes a delegate info line with the given percent per account address
func (tm *TestManager) AppendSnapshot(t *testing.T, block uint64, percents map[string]string) {
	t.Helper()

	var pairs []string
	for _, acc := range tm.Accounts {
		for _, addr := range acc.Addresses {
			if p, ok := percents[addr]; ok {
				pairs = append(pairs, fmt.Sprintf(`["%s", %s]`, addr, p))
			}
		}
	}
	line := fmt.Sprintf(
		"Timestamp: %s, Block: %d, Delegate info for 5HotKey: "+
			`{"total_stake": 5000, "total_daily_return": 3.5, "take": 0.18, "nominators": [], "nominators_percent": [%s]}`+"\n",
		time.Now().UTC().Format(time.DateTime), block, strings.Join(pairs, ", "),
	)

	f, err := os.OpenFile(tm.logPath, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(line)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func (tm *TestManager) Locker(owner string) lock.Locker {
	return lock.NewMongoLock(tm.Db, owner, time.Minute)
}

func (tm *TestManager) Address(user string) string {
	for _, acc := range tm.Accounts {
		if acc.Name == user {
			return acc.PayoutAddress()
		}
	}
	return ""
}
