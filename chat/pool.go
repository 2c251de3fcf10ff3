package chat

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/leojscalabrin/glorpinia-AI/telemetry"
)

// Pool runs background jobs with at most n in flight. Jobs past the limit wait for a
// slot or for their context to end.
type Pool struct {
	slots  chan struct{}
	wg     sync.WaitGroup
	active atomic.Int64
}

// NewPool returns a pool with n slots (at least one).
func NewPool(n int) *Pool {
	if n <= 0 {
		n = 1
	}
	slog.Info("llm concurrency limit initialized", slog.Int("max_concurrent", n))
	return &Pool{slots: make(chan struct{}, n)}
}

// Go schedules fn. It never blocks the caller.
func (p *Pool) Go(ctx context.Context, fn func(ctx context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if !p.acquire(ctx) {
			return
		}
		defer p.release()
		fn(ctx)
	}()
}

// Wait blocks until every scheduled job has returned.
func (p *Pool) Wait() { p.wg.Wait() }

// Active returns the number of running jobs.
func (p *Pool) Active() int { return int(p.active.Load()) }

// Cap returns the slot count.
func (p *Pool) Cap() int { return cap(p.slots) }

func (p *Pool) acquire(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case p.slots <- struct{}{}:
		telemetry.SetLLMInFlight(int(p.active.Add(1)))
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Pool) release() {
	telemetry.SetLLMInFlight(int(p.active.Add(-1)))
	select {
	case <-p.slots:
	default:
		// Should not happen unless mismatched acquire/release
		slog.Warn("llm slot release called without corresponding acquire")
	}
}
