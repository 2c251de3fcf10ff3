package server

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/leojscalabrin/glorpinia-AI/db"
	"github.com/leojscalabrin/glorpinia-AI/telemetry"
	"github.com/leojscalabrin/glorpinia-AI/twitchapi"
)

// handleTwitchOAuthStart redirects the bot owner to Twitch to authorize the chat scopes.
func (s *Server) handleTwitchOAuthStart(w http.ResponseWriter, r *http.Request) {
	if s.oauth == nil {
		writeError(w, http.StatusBadRequest, "oauth not configured (need TWITCH_CLIENT_ID + TWITCH_REDIRECT_URI)")
		return
	}
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		writeError(w, http.StatusInternalServerError, "state gen error")
		return
	}
	st := hex.EncodeToString(b)
	if !s.states.add(st) {
		writeError(w, http.StatusServiceUnavailable, "too many pending oauth flows")
		return
	}
	http.Redirect(w, r, twitchapi.BuildAuthorizeURL(s.oauth, st), http.StatusFound)
}

// handleTwitchOAuthCallback exchanges the code and stores the bot token.
func (s *Server) handleTwitchOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if s.oauth == nil {
		writeError(w, http.StatusBadRequest, "oauth not configured")
		return
	}
	code := r.URL.Query().Get("code")
	st := r.URL.Query().Get("state")
	if code == "" || st == "" {
		writeError(w, http.StatusBadRequest, "missing code/state")
		return
	}
	if !s.states.consume(st) {
		writeError(w, http.StatusBadRequest, "invalid state")
		return
	}
	ctx := r.Context()
	log := telemetry.WithCorr(ctx, s.log)
	tok, err := twitchapi.ExchangeAuthCode(ctx, s.oauth, code)
	if err != nil {
		log.Warn("twitch code exchange failed", slog.Any("err", err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	expiry := twitchapi.ComputeExpiry(tok)
	scope := twitchapi.ScopeString(s.oauth, tok)
	if err := db.UpsertOAuthToken(ctx, s.db, "twitch", tok.AccessToken, tok.RefreshToken, expiry, scope); err != nil {
		log.Error("store twitch token", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "failed to store token")
		return
	}
	if s.onToken != nil {
		s.onToken(tok.AccessToken)
	}
	log.Info("twitch bot token stored", slog.String("scope", scope), slog.Time("expiry", expiry))
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "scope": scope, "expiry": expiry})
}
