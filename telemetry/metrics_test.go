package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsInitialized(t *testing.T) {
	Init()
	Init() // idempotent

	if LedgerOps == nil || LedgerOpDuration == nil {
		t.Fatal("ledger metrics not initialized")
	}
	if SlotSpins == nil || DirectivesProcessed == nil || BonusRuns == nil {
		t.Fatal("feature metrics not initialized")
	}
}

func TestObserveLedgerOpSeparatesOutcomes(t *testing.T) {
	Init()

	beforeApplied := testutil.ToFloat64(LedgerOps.WithLabelValues("add_cookies", OutcomeApplied))
	beforeStorage := testutil.ToFloat64(LedgerOps.WithLabelValues("add_cookies", OutcomeStorageError))
	beforeRejected := testutil.ToFloat64(LedgerOps.WithLabelValues("add_cookies", OutcomeRejected))

	ObserveLedgerOp("add_cookies", OutcomeApplied, time.Millisecond)
	ObserveLedgerOp("add_cookies", OutcomeStorageError, time.Millisecond)
	ObserveLedgerOp("add_cookies", OutcomeStorageError, time.Millisecond)
	ObserveLedgerOp("add_cookies", OutcomeRejected, 0)

	if got := testutil.ToFloat64(LedgerOps.WithLabelValues("add_cookies", OutcomeApplied)) - beforeApplied; got != 1 {
		t.Errorf("applied delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(LedgerOps.WithLabelValues("add_cookies", OutcomeStorageError)) - beforeStorage; got != 2 {
		t.Errorf("storage_error delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(LedgerOps.WithLabelValues("add_cookies", OutcomeRejected)) - beforeRejected; got != 1 {
		t.Errorf("rejected delta = %v, want 1", got)
	}
}

func TestHelpersIgnoreNonPositive(t *testing.T) {
	Init()

	before := testutil.ToFloat64(CookiesMinted.WithLabelValues("test_noop"))
	AddMinted("test_noop", 0)
	AddMinted("test_noop", -5)
	if got := testutil.ToFloat64(CookiesMinted.WithLabelValues("test_noop")); got != before {
		t.Errorf("minted changed on non-positive amount: %v -> %v", before, got)
	}
	AddMinted("test_noop", 7)
	if got := testutil.ToFloat64(CookiesMinted.WithLabelValues("test_noop")) - before; got != 7 {
		t.Errorf("minted delta = %v, want 7", got)
	}
}

func TestRecordBonusRunSetsGaugeOnlyWhenApplied(t *testing.T) {
	Init()

	RecordBonusRun(OutcomeApplied, 42)
	if got := testutil.ToFloat64(BonusAccountsGauge); got != 42 {
		t.Errorf("gauge = %v, want 42", got)
	}
	RecordBonusRun(OutcomeStorageError, 0)
	if got := testutil.ToFloat64(BonusAccountsGauge); got != 42 {
		t.Errorf("gauge changed on failed run: %v", got)
	}
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	testHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration",
		Buckets: prometheus.DefBuckets,
	})

	executed := false
	duration := TimeFunc(testHistogram, func() {
		time.Sleep(10 * time.Millisecond)
		executed = true
	})

	if !executed {
		t.Error("TimeFunc did not execute provided function")
	}
	if duration < 10*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 10ms", duration)
	}

	metric := &dto.Metric{}
	if err := testHistogram.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram == nil || metric.Histogram.GetSampleCount() == 0 {
		t.Error("TimeFunc did not record observation in histogram")
	}
}

func TestCorrelationHelpers(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("empty ctx corr = %q", got)
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Errorf("corr = %q, want abc-123", got)
	}
	if LoggerWithCorr(ctx) == nil || WithCorr(ctx, nil) == nil {
		t.Error("logger helpers returned nil")
	}
}
