package twitchapi

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultLivePollInterval is how often LiveTracker asks Helix for stream status.
const DefaultLivePollInterval = 60 * time.Second

// StreamsGetter is the Helix call LiveTracker needs. *HelixClient satisfies it.
type StreamsGetter interface {
	GetStreams(ctx context.Context, logins ...string) ([]Stream, error)
}

// LiveTracker polls stream status for a fixed set of channels and answers IsLive from
// the last successful poll. Until the first poll succeeds every channel reads offline.
type LiveTracker struct {
	helix    StreamsGetter
	channels []string
	interval time.Duration
	log      *slog.Logger

	mu      sync.RWMutex
	live    map[string]bool
	checked time.Time
}

// NewLiveTracker returns a tracker for channels.
func NewLiveTracker(helix StreamsGetter, channels []string, interval time.Duration, logger *slog.Logger) *LiveTracker {
	if interval <= 0 {
		interval = DefaultLivePollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	norm := make([]string, 0, len(channels))
	for _, c := range channels {
		if c = normalizeChannel(c); c != "" {
			norm = append(norm, c)
		}
	}
	return &LiveTracker{
		helix:    helix,
		channels: norm,
		interval: interval,
		log:      logger.With(slog.String("component", "live_tracker")),
		live:     make(map[string]bool),
	}
}

// IsLive reports whether channel was live at the last poll.
func (lt *LiveTracker) IsLive(channel string) bool {
	lt.mu.RLock()
	defer lt.mu.RUnlock()
	return lt.live[normalizeChannel(channel)]
}

// LastChecked returns the time of the last successful poll.
func (lt *LiveTracker) LastChecked() time.Time {
	lt.mu.RLock()
	defer lt.mu.RUnlock()
	return lt.checked
}

// Refresh polls Helix once. On error the previous state is kept.
func (lt *LiveTracker) Refresh(ctx context.Context) error {
	if len(lt.channels) == 0 {
		return nil
	}
	streams, err := lt.helix.GetStreams(ctx, lt.channels...)
	if err != nil {
		return err
	}
	next := make(map[string]bool, len(streams))
	for _, s := range streams {
		next[normalizeChannel(s.UserLogin)] = true
	}
	lt.mu.Lock()
	for _, c := range lt.channels {
		if lt.live[c] != next[c] {
			lt.log.Info("channel live status changed", slog.String("channel", c), slog.Bool("live", next[c]))
		}
	}
	lt.live = next
	lt.checked = time.Now()
	lt.mu.Unlock()
	return nil
}

// Run polls immediately and then every interval until ctx is done.
func (lt *LiveTracker) Run(ctx context.Context) error {
	lt.log.Info("live tracker started", slog.Duration("interval", lt.interval), slog.Any("channels", lt.channels))
	ticker := time.NewTicker(lt.interval)
	defer ticker.Stop()
	for {
		if err := lt.Refresh(ctx); err != nil && ctx.Err() == nil {
			lt.log.Warn("live status poll failed", slog.Any("err", err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func normalizeChannel(c string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c), "#"))
}
