package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rs/zerolog/log"
)

type Outcome string

const (
	Success                  Outcome       = "success"
	Error                    Outcome       = "error"
	MetricRequestTimeout     time.Duration = 5 * time.Second
	MetricRequestIdleTimeout time.Duration = 10 * time.Second

	pushJobName = "referral_payout"
)

func (O Outcome) String() string {
	return string(O)
}

var (
	once     sync.Once
	registry = prometheus.NewRegistry()

	defaultHistogramBucketsSeconds = []float64{0.1, 0.5, 1, 2.5, 5, 10, 30}

	clientRequestDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "client_request_duration_seconds",
			Help:    "Histogram of outgoing client request durations in seconds.",
			Buckets: defaultHistogramBucketsSeconds,
		},
		[]string{"baseurl", "method", "path", "status"},
	)
	transferLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transfer_latency_seconds",
			Help:    "Histogram of transfer attempt durations in seconds, including retries.",
			Buckets: defaultHistogramBucketsSeconds,
		},
		[]string{"executor", "status"},
	)
	dbLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "db_latency_seconds",
			Help: "Ledger store latency in seconds splitted by method and execution status",
		},
		[]string{"method", "status"},
	)
	pollerDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poller_duration_seconds",
			Help:    "Histogram of poller durations in seconds.",
			Buckets: defaultHistogramBucketsSeconds,
		},
		[]string{"type", "status"},
	)
	malformedSnapshotsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "malformed_snapshot_records_total",
			Help: "Number of snapshot records skipped because they failed to parse",
		},
	)
	runStateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "payout_run_state",
			Help: "Current state of the payout run, 1 for the active state",
		},
		[]string{"state"},
	)
	runOutcomeCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payout_runs_total",
			Help: "Number of finished payout runs by final state",
		},
		[]string{"state"},
	)
	payoutRecordsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payout_records_settled_total",
			Help: "Number of payout records appended to the ledger",
		},
	)
	payoutsSkippedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payouts_skipped_total",
			Help: "Number of payouts skipped because the amount after fee was not positive",
		},
	)
	settledAmountGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "payout_last_settled_amount",
			Help: "Sum of amounts of the last settled batch",
		},
	)
	latestSnapshotBlockGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "snapshot_latest_block",
			Help: "Highest block found in the snapshot log",
		},
	)
	resumePointGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_resume_point",
			Help: "First block of the next payout window",
		},
	)
	pendingBlocksGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_pending_blocks",
			Help: "Number of blocks observed but not yet settled",
		},
	)
)

func init() {
	registry.MustRegister(
		clientRequestDurationHistogram,
		transferLatency,
		dbLatency,
		pollerDurationHistogram,
		malformedSnapshotsCounter,
		runStateGauge,
		runOutcomeCounter,
		payoutRecordsCounter,
		payoutsSkippedCounter,
		settledAmountGauge,
		latestSnapshotBlockGauge,
		resumePointGauge,
		pendingBlocksGauge,
	)
}

// Init starts the metrics server. Collectors are usable without it.
func Init(metricsPort int) {
	once.Do(func() {
		initMetricsRouter(metricsPort)
	})
}

// Handler serves the registry in the prometheus exposition format
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// initMetricsRouter initializes the metrics router.
func initMetricsRouter(metricsPort int) {
	metricsRouter := chi.NewRouter()
	metricsRouter.Get("/metrics", Handler().ServeHTTP)

	metricsAddr := fmt.Sprintf(":%d", metricsPort)
	server := &http.Server{
		Addr:         metricsAddr,
		Handler:      metricsRouter,
		ReadTimeout:  MetricRequestTimeout,
		WriteTimeout: MetricRequestTimeout,
		IdleTimeout:  MetricRequestIdleTimeout,
	}

	go func() {
		log.Printf("Starting metrics server on %s", metricsAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msgf("Error starting metrics server on %s", metricsAddr)
		}
	}()
}

// Push sends the current values to a Pushgateway. Payout runs are short lived
// batch jobs, so they cannot rely on being scraped.
func Push(ctx context.Context, url string) error {
	return push.New(url, pushJobName).Gatherer(registry).PushContext(ctx)
}

func status(failure bool) Outcome {
	if failure {
		return Error
	}
	return Success
}

func RecordDbLatency(d time.Duration, method string, failure bool) {
	dbLatency.WithLabelValues(method, status(failure).String()).Observe(d.Seconds())
}

func RecordTransferLatency(d time.Duration, executor string, failure bool) {
	transferLatency.WithLabelValues(executor, status(failure).String()).Observe(d.Seconds())
}

func RecordMalformedSnapshots(count int) {
	malformedSnapshotsCounter.Add(float64(count))
}

// RecordRunState marks state as the single active run state
func RecordRunState(state string, all []string) {
	for _, s := range all {
		runStateGauge.WithLabelValues(s).Set(0)
	}
	runStateGauge.WithLabelValues(state).Set(1)
}

func RecordRunOutcome(state string) {
	runOutcomeCounter.WithLabelValues(state).Inc()
}

func RecordSettledBatch(records int, amount float64) {
	payoutRecordsCounter.Add(float64(records))
	settledAmountGauge.Set(amount)
}

func RecordPayoutsSkipped(count int) {
	payoutsSkippedCounter.Add(float64(count))
}

func RecordLatestSnapshotBlock(block uint64) {
	latestSnapshotBlockGauge.Set(float64(block))
}

func RecordResumePoint(block uint64) {
	resumePointGauge.Set(float64(block))
}

func RecordPendingBlocks(blocks uint64) {
	pendingBlocksGauge.Set(float64(blocks))
}

// StartClientRequestDurationTimer starts a timer to measure outgoing client request duration.
func StartClientRequestDurationTimer(baseUrl, method, path string) func(statusCode int) {
	startTime := time.Now()
	return func(statusCode int) {
		duration := time.Since(startTime).Seconds()
		clientRequestDurationHistogram.WithLabelValues(
			baseUrl,
			method,
			path,
			fmt.Sprintf("%d", statusCode),
		).Observe(duration)
	}
}
