// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ledger operation outcomes.
const (
	OutcomeApplied      = "applied"
	OutcomeRejected     = "rejected"
	OutcomeStorageError = "storage_error"
)

var (
	once sync.Once

	// Counters
	LedgerOps           *prometheus.CounterVec // op, outcome
	CookiesMinted       *prometheus.CounterVec // reason
	CookiesTransferred  *prometheus.CounterVec // reason
	SlotSpins           *prometheus.CounterVec // result
	SlotCookiesStaked   prometheus.Counter
	SlotCookiesPaid     prometheus.Counter
	DirectivesProcessed *prometheus.CounterVec // action, outcome
	BonusRuns           *prometheus.CounterVec // outcome
	ChatMessages        *prometheus.CounterVec // kind

	// Histograms (seconds)
	LedgerOpDuration *prometheus.HistogramVec // op
	LLMDuration      prometheus.Observer

	// Gauges
	BonusAccountsGauge prometheus.Gauge
	LLMInFlightGauge   prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		LedgerOps = promauto.NewCounterVec(prometheus.CounterOpts{Name: "glorpinia_ledger_ops_total", Help: "Ledger operations by outcome (applied, rejected, storage_error)"}, []string{"op", "outcome"})
		CookiesMinted = promauto.NewCounterVec(prometheus.CounterOpts{Name: "glorpinia_cookies_minted_total", Help: "Cookies created by credit sources"}, []string{"reason"})
		CookiesTransferred = promauto.NewCounterVec(prometheus.CounterOpts{Name: "glorpinia_cookies_transferred_total", Help: "Cookies moved into the house account"}, []string{"reason"})
		SlotSpins = promauto.NewCounterVec(prometheus.CounterOpts{Name: "glorpinia_slot_spins_total", Help: "Slot machine spins by result"}, []string{"result"})
		SlotCookiesStaked = promauto.NewCounter(prometheus.CounterOpts{Name: "glorpinia_slot_cookies_staked_total", Help: "Cookies staked on slot spins"})
		SlotCookiesPaid = promauto.NewCounter(prometheus.CounterOpts{Name: "glorpinia_slot_cookies_paid_total", Help: "Cookies paid out by slot spins"})
		DirectivesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{Name: "glorpinia_bridge_directives_total", Help: "Cookie directives found in generated text"}, []string{"action", "outcome"})
		BonusRuns = promauto.NewCounterVec(prometheus.CounterOpts{Name: "glorpinia_daily_bonus_runs_total", Help: "Daily bonus applications by outcome"}, []string{"outcome"})
		ChatMessages = promauto.NewCounterVec(prometheus.CounterOpts{Name: "glorpinia_chat_messages_total", Help: "Chat messages handled by kind"}, []string{"kind"})
		LedgerOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "glorpinia_ledger_op_duration_seconds", Help: "Ledger storage call duration seconds", Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, 1}}, []string{"op"})
		LLMDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "glorpinia_llm_duration_seconds", Help: "Text generation duration seconds", Buckets: []float64{.25, .5, 1, 2, 4, 8, 16, 30}})
		BonusAccountsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "glorpinia_daily_bonus_accounts", Help: "Accounts credited by the last daily bonus"})
		LLMInFlightGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "glorpinia_llm_in_flight", Help: "Text generations currently running"})
	})
}

// ObserveLedgerOp counts one ledger call and records its storage duration.
func ObserveLedgerOp(op, outcome string, d time.Duration) {
	if LedgerOps != nil {
		LedgerOps.WithLabelValues(op, outcome).Inc()
	}
	if LedgerOpDuration != nil && outcome != OutcomeRejected {
		LedgerOpDuration.WithLabelValues(op).Observe(d.Seconds())
	}
}

// AddMinted records cookies created from nothing.
func AddMinted(reason string, n int64) {
	if CookiesMinted != nil && n > 0 {
		CookiesMinted.WithLabelValues(reason).Add(float64(n))
	}
}

// AddTransferred records cookies moved into the house account.
func AddTransferred(reason string, n int64) {
	if CookiesTransferred != nil && n > 0 {
		CookiesTransferred.WithLabelValues(reason).Add(float64(n))
	}
}

// RecordSpin records one slot spin.
func RecordSpin(result string, staked, paid int64) {
	if SlotSpins != nil {
		SlotSpins.WithLabelValues(result).Inc()
	}
	if SlotCookiesStaked != nil {
		SlotCookiesStaked.Add(float64(staked))
	}
	if SlotCookiesPaid != nil && paid > 0 {
		SlotCookiesPaid.Add(float64(paid))
	}
}

// RecordDirective records one bridge directive.
func RecordDirective(action, outcome string) {
	if DirectivesProcessed != nil {
		DirectivesProcessed.WithLabelValues(action, outcome).Inc()
	}
}

// RecordBonusRun records one scheduler application attempt.
func RecordBonusRun(outcome string, accounts int64) {
	if BonusRuns != nil {
		BonusRuns.WithLabelValues(outcome).Inc()
	}
	if BonusAccountsGauge != nil && outcome == OutcomeApplied {
		BonusAccountsGauge.Set(float64(accounts))
	}
}

// RecordChatMessage counts a handled chat message.
func RecordChatMessage(kind string) {
	if ChatMessages != nil {
		ChatMessages.WithLabelValues(kind).Inc()
	}
}

// SetLLMInFlight records the number of running generations.
func SetLLMInFlight(n int) {
	if LLMInFlightGauge != nil {
		LLMInFlightGauge.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	return WithCorr(ctx, slog.Default())
}

// WithCorr decorates base with the context's correlation id, if any.
func WithCorr(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	if id := GetCorrelation(ctx); id != "" {
		return base.With(slog.String("corr", id))
	}
	return base
}
