// Package oauth refreshes provider tokens persisted in the oauth_tokens table. It
// performs jittered checks and refreshes when expiry falls within a configured window.
package oauth

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/leojscalabrin/glorpinia-AI/db"
)

// RefreshFunc performs provider-specific refresh and returns (access, refresh, expiry, scope)
type RefreshFunc func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error)

// Refresher keeps one stored token fresh.
type Refresher struct {
	DB       *db.DB
	Provider string
	// Interval is how often to wake up and check.
	Interval time.Duration
	// Window triggers a refresh when the remaining lifetime is at most Window.
	Window  time.Duration
	Refresh RefreshFunc
	// OnRefresh, if set, receives every new access token.
	OnRefresh func(access string)
	Logger    *slog.Logger
}

func (r *Refresher) defaults() {
	if r.Interval <= 0 {
		r.Interval = 5 * time.Minute
	}
	if r.Window <= 0 {
		r.Window = 15 * time.Minute
	}
	if r.Logger == nil {
		r.Logger = slog.Default()
	}
}

// Run checks the token every Interval with jitter until ctx is done.
func (r *Refresher) Run(ctx context.Context) error {
	r.defaults()
	// Randomize initial delay to spread load across instances.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initialJitter := time.Duration(rand.Int63n(int64(r.Interval/2) + 1))
	select {
	case <-ctx.Done():
		return nil
	case <-time.After(initialJitter):
	}
	for {
		if _, err := r.Check(ctx); err != nil && ctx.Err() == nil {
			r.Logger.Warn("token refresh failed", slog.String("provider", r.Provider), slog.Any("err", err))
		}
		// Per-iteration jitter of +-20% of interval.
		jitterRange := int64(r.Interval/5) + 1
		//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
		jitter := time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
		nextSleep := max(r.Interval+jitter, r.Interval/2)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(nextSleep):
		}
	}
}

// Check refreshes the token if it is inside the window and reports whether it did.
// A missing row or a row without a refresh token is not an error.
func (r *Refresher) Check(ctx context.Context) (bool, error) {
	r.defaults()
	at, rt, exp, scope, err := db.GetOAuthToken(ctx, r.DB, r.Provider)
	if err != nil {
		return false, err
	}
	if at == "" && rt == "" {
		return false, nil
	}
	if rt == "" || time.Until(exp) > r.Window {
		return false, nil
	}

	ctx2, cancel := context.WithTimeout(ctx, 15*time.Second)
	newAT, newRT, newExp, newScope, err := r.Refresh(ctx2, rt)
	cancel()
	if err != nil {
		return false, err
	}
	if newRT == "" {
		newRT = rt
	}
	if newScope == "" {
		newScope = scope
	}
	if err := db.UpsertOAuthToken(ctx, r.DB, r.Provider, newAT, newRT, newExp, strings.TrimSpace(newScope)); err != nil {
		return false, err
	}
	r.Logger.Info("token refreshed", slog.String("provider", r.Provider), slog.Time("expires_at", newExp))
	if r.OnRefresh != nil {
		r.OnRefresh(newAT)
	}
	return true, nil
}
