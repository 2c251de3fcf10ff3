// Package server exposes the HTTP API: health, readiness, Prometheus metrics, the
// public cookie endpoints (leaderboard, balance, history), the token-protected admin
// adjustment endpoint and the Twitch OAuth flow that stores the bot's chat token.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"

	"github.com/leojscalabrin/glorpinia-AI/db"
	"github.com/leojscalabrin/glorpinia-AI/ledger"
)

// Options wires a Server. OAuth may be nil to disable the /auth routes.
type Options struct {
	DB          *db.DB
	Ledger      *ledger.Ledger
	OAuth       *oauth2.Config
	AdminToken  string
	RateLimit   int
	RateWindow  time.Duration
	CORSOrigins []string
	// OnToken receives the access token stored by the OAuth callback.
	OnToken func(access string)
	Logger  *slog.Logger
}

// Server holds handler dependencies.
type Server struct {
	db      *db.DB
	ledger  *ledger.Ledger
	oauth   *oauth2.Config
	onToken func(string)
	states  *stateStore
	limiter *ipRateLimiter
	admin   string
	cors    []string
	log     *slog.Logger
	mux     *chi.Mux
}

// New builds the router. ctx bounds the rate limiter's cleanup goroutine.
func New(ctx context.Context, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = time.Minute
	}
	s := &Server{
		db:      opts.DB,
		ledger:  opts.Ledger,
		oauth:   opts.OAuth,
		onToken: opts.OnToken,
		states:  newStateStore(),
		limiter: newIPRateLimiter(ctx, opts.RateLimit, opts.RateWindow),
		admin:   opts.AdminToken,
		cors:    opts.CORSOrigins,
		log:     opts.Logger.With(slog.String("component", "http")),
		mux:     chi.NewRouter(),
	}
	if s.admin == "" {
		s.log.Warn("ADMIN_TOKEN not set; admin endpoints are disabled")
	}
	s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlate)
	r.Use(cors(s.cors))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/leaderboard", s.handleLeaderboard)
	r.Get("/balance/{principal}", s.handleBalance)
	r.Get("/history/{principal}", s.handleHistory)

	r.Route("/admin", func(r chi.Router) {
		r.Use(adminAuth(s.admin, s.log))
		r.Use(s.limiter.middleware(s.log))
		r.Post("/cookies/{principal}", s.handleAdminCookies)
	})

	r.Get("/auth/twitch/start", s.handleTwitchOAuthStart)
	r.Get("/auth/twitch/callback", s.handleTwitchOAuthCallback)
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		// Use WithoutCancel to inherit context values but allow shutdown to complete
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
