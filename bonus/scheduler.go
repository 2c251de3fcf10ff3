// Package bonus runs the daily cookie bonus: a periodic check that credits every stored
// account once per interval.
package bonus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/leojscalabrin/glorpinia-AI/telemetry"
)

const (
	DefaultAmount     int64 = 5
	DefaultInterval         = 24 * time.Hour
	DefaultCheckEvery       = time.Hour
)

// Applier credits amount to every account and returns how many were touched.
// *ledger.Store satisfies it.
type Applier interface {
	ApplyBonus(ctx context.Context, amount int64) (int64, error)
}

// Config tunes a Scheduler. Zero values pick the defaults.
type Config struct {
	Amount     int64
	Interval   time.Duration
	CheckEvery time.Duration
	Now        func() time.Time
	Logger     *slog.Logger
}

// Scheduler applies the bonus when at least Interval has passed since the last
// application. The clock starts when the scheduler is built and is not persisted.
type Scheduler struct {
	applier    Applier
	amount     int64
	interval   time.Duration
	checkEvery time.Duration
	now        func() time.Time
	log        *slog.Logger

	mu   sync.Mutex
	last time.Time
}

// NewScheduler returns a scheduler whose first application is due one interval from now.
func NewScheduler(applier Applier, cfg Config) *Scheduler {
	s := &Scheduler{
		applier:    applier,
		amount:     cfg.Amount,
		interval:   cfg.Interval,
		checkEvery: cfg.CheckEvery,
		now:        cfg.Now,
		log:        cfg.Logger,
	}
	if s.amount <= 0 {
		s.amount = DefaultAmount
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.checkEvery <= 0 {
		s.checkEvery = DefaultCheckEvery
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With(slog.String("component", "bonus"))
	s.last = s.now()
	return s
}

// Run checks every CheckEvery until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("daily bonus scheduler starting",
		slog.Int64("amount", s.amount),
		slog.Duration("interval", s.interval),
		slog.Duration("check_every", s.checkEvery))

	ticker := time.NewTicker(s.checkEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("daily bonus scheduler stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick applies the bonus if it is due and reports whether it was applied. A failed
// application leaves the timer alone so the next tick retries.
func (s *Scheduler) Tick(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.last) < s.interval {
		return false
	}

	ctx, span := telemetry.StartSpan(ctx, "bonus", "bonus.Apply", telemetry.AmountAttr(s.amount))
	defer span.End()

	accounts, err := s.applier.ApplyBonus(ctx, s.amount)
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.RecordBonusRun(telemetry.OutcomeStorageError, 0)
		s.log.Error("daily bonus failed, retrying on next check", slog.Any("err", err))
		return false
	}
	s.last = now
	telemetry.SetSpanSuccess(span)
	telemetry.RecordBonusRun(telemetry.OutcomeApplied, accounts)
	telemetry.AddMinted("daily_bonus", s.amount*accounts)
	s.log.Info("daily bonus applied",
		slog.Int64("amount", s.amount), slog.Int64("accounts", accounts))
	return true
}

// LastApplied returns the time the bonus was last applied, or the start time.
func (s *Scheduler) LastApplied() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
