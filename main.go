// Command glorpinia runs the cookie economy of the Glorpinia Twitch bot.
// It:
//   - Loads configuration and initializes structured logging.
//   - Opens the ledger database (SQLite file or Postgres DSN) and runs idempotent migrations.
//   - Starts background jobs: daily bonus scheduler, Helix live-status poller and the
//     Twitch OAuth token refresher.
//   - Connects the chat bot (commands, interaction cookies, LLM replies with cookie directives).
//   - Exposes the HTTP server with /healthz, /readyz, /metrics, cookie endpoints and OAuth.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/leojscalabrin/glorpinia-AI/bonus"
	"github.com/leojscalabrin/glorpinia-AI/bridge"
	"github.com/leojscalabrin/glorpinia-AI/chat"
	"github.com/leojscalabrin/glorpinia-AI/config"
	"github.com/leojscalabrin/glorpinia-AI/crypto"
	"github.com/leojscalabrin/glorpinia-AI/db"
	"github.com/leojscalabrin/glorpinia-AI/ledger"
	"github.com/leojscalabrin/glorpinia-AI/llm"
	"github.com/leojscalabrin/glorpinia-AI/oauth"
	"github.com/leojscalabrin/glorpinia-AI/server"
	"github.com/leojscalabrin/glorpinia-AI/slots"
	"github.com/leojscalabrin/glorpinia-AI/telemetry"
	"github.com/leojscalabrin/glorpinia-AI/twitchapi"
)

// version is set with -ldflags "-X main.version=..."
var version = "dev"

// defaultHouse owns staked and taken cookies when TWITCH_BOT_USERNAME is unset.
const defaultHouse = "glorpinia"

// alwaysOffline opens the casino when stream status cannot be polled.
type alwaysOffline struct{}

func (alwaysOffline) IsLive(string) bool { return false }

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel, cfg.LogFormat)

	telemetry.Init()
	shutdown, err := telemetry.InitTracing(telemetry.TracingConfig{
		ServiceName:    "glorpinia-cookies",
		ServiceVersion: version,
		Endpoint:       cfg.OTLPEndpoint,
		SampleRatio:    cfg.TraceSampleRate,
		Insecure:       cfg.OTLPInsecure,
	})
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	database, err := db.Open(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	if cfg.EncryptionKey != "" {
		tokens, err := crypto.NewTokenCipher(cfg.EncryptionKey)
		if err != nil {
			slog.Error("encryption initialization failed", slog.Any("err", err), slog.String("component", "db_encryption"))
			os.Exit(1)
		}
		database.Tokens = tokens
		slog.Info("OAuth token encryption enabled (AES-256-GCM)", slog.String("component", "db_encryption"))
	} else {
		slog.Warn("ENCRYPTION_KEY not set, OAuth tokens will be stored in plaintext", slog.String("component", "db_encryption"))
	}

	slog.Info("running database migrations", slog.String("component", "db_migrate"), slog.String("dialect", string(database.Dialect)))
	if err := db.RunMigrations(database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.EnablePprof {
		startPprof(cfg.PprofAddr)
	}

	if err := run(ctx, cfg, database); err != nil {
		slog.Error("exited with error", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("shutting down")
}

func setupLogging(level, format string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		// unknown level -> keep info but note once using temporary logger
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", level))
	}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", strings.ToLower(format)))
}

func run(ctx context.Context, cfg *config.Config, database *db.DB) error {
	logger := slog.Default()
	house := cfg.TwitchBotUsername
	if house == "" {
		house = defaultHouse
	}

	validator := ledger.NewValidator(cfg.Forbidden()...)
	led := ledger.New(ledger.NewStore(database), validator, house, logger)

	g, ctx := errgroup.WithContext(ctx)

	// Stream status gates the casino. Without app credentials it always reads offline.
	var live slots.LiveChecker = alwaysOffline{}
	if cfg.TwitchClientID != "" && cfg.TwitchClientSecret != "" {
		helix := &twitchapi.HelixClient{
			ClientID:       cfg.TwitchClientID,
			AppTokenSource: &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret},
		}
		tracker := twitchapi.NewLiveTracker(helix, cfg.TwitchChannels, cfg.LivePoll, logger)
		live = tracker
		g.Go(func() error { return tracker.Run(ctx) })
	} else {
		slog.Warn("TWITCH_CLIENT_ID/TWITCH_CLIENT_SECRET not set; live status unknown, slots always open")
	}

	machine, err := slots.NewMachine(led, slots.Options{
		MinBet:    cfg.SlotsMinBet,
		Cooldown:  cfg.SlotsCooldown,
		Live:      live,
		Validator: validator,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	br := bridge.New(led, bridge.Options{
		MaxAmount: cfg.BridgeMaxAmount,
		House:     house,
		Validator: validator,
		Logger:    logger,
	})

	var gen llm.Generator
	if cfg.GeminiAPIKey != "" {
		gen = &llm.Gemini{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			Persona: cfg.GeminiPersona,
			Timeout: cfg.LLMTimeout,
		}
	} else {
		slog.Info("GEMINI_API_KEY not set; mentions will not be answered")
	}

	sched := bonus.NewScheduler(led.Store(), bonus.Config{
		Amount:     cfg.DailyBonus,
		Interval:   cfg.BonusInterval,
		CheckEvery: cfg.BonusCheckEvery,
		Logger:     logger,
	})
	g.Go(func() error { return sched.Run(ctx) })

	// The stored token wins over TWITCH_OAUTH_TOKEN since the refresher keeps it current.
	chatToken := cfg.TwitchOAuthToken
	if access, _, _, _, err := db.GetOAuthToken(ctx, database, "twitch"); err != nil {
		slog.Warn("read stored twitch token", slog.Any("err", err))
	} else if access != "" {
		chatToken = access
	}
	bot := chat.NewBot(cfg.TwitchBotUsername, chatToken, cfg.TwitchChannels, logger)

	var oauthCfg *oauth2.Config
	if cfg.TwitchClientID != "" && cfg.TwitchRedirectURI != "" {
		oauthCfg, err = twitchapi.OAuthConfig(cfg.TwitchClientID, cfg.TwitchClientSecret, cfg.TwitchRedirectURI, cfg.TwitchScopes)
		if err != nil {
			return err
		}
	}
	if oauthCfg != nil && cfg.TwitchClientSecret != "" {
		refresher := &oauth.Refresher{
			DB:       database,
			Provider: "twitch",
			Interval: 5 * time.Minute,
			Window:   15 * time.Minute,
			Refresh: func(rctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
				tok, err := twitchapi.RefreshToken(rctx, oauthCfg, refreshToken)
				if err != nil {
					return "", "", time.Time{}, "", err
				}
				return tok.AccessToken, tok.RefreshToken, twitchapi.ComputeExpiry(tok), twitchapi.ScopeString(oauthCfg, tok), nil
			},
			OnRefresh: bot.SetToken,
			Logger:    logger,
		}
		g.Go(func() error { return refresher.Run(ctx) })
	}

	if err := cfg.ValidateChatReady(chatToken); err != nil {
		slog.Info("chat bot disabled", slog.String("reason", err.Error()))
	} else {
		handler := chat.NewHandler(chat.HandlerOptions{
			BotName:   cfg.TwitchBotUsername,
			Ledger:    led,
			Slots:     machine,
			Bridge:    br,
			Generator: gen,
			Sender:    bot,
			Pool:      chat.NewPool(cfg.LLMMaxConcurrent),
			Logger:    logger,
		})
		g.Go(func() error { return bot.Run(ctx, handler) })
	}

	srv := server.New(ctx, server.Options{
		DB:          database,
		Ledger:      led,
		OAuth:       oauthCfg,
		AdminToken:  cfg.AdminToken,
		RateLimit:   cfg.AdminRateLimit,
		RateWindow:  cfg.AdminRateWindow,
		CORSOrigins: cfg.CORSAllowedOrigins,
		OnToken:     bot.SetToken,
		Logger:      logger,
	})
	g.Go(func() error { return server.Start(ctx, cfg.HTTPAddr, srv.Handler()) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func startPprof(addr string) {
	go func() {
		slog.Info("pprof profiling enabled", slog.String("addr", addr))
		// Use an http.Server with timeouts to satisfy G114 and avoid DoS risks
		srv := &http.Server{
			Addr:              addr,
			Handler:           nil, // default mux exposes /debug/pprof
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("pprof server error", slog.Any("err", err))
		}
	}()
}
