package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/leojscalabrin/glorpinia-AI/ledger"
	"github.com/leojscalabrin/glorpinia-AI/telemetry"
)

const (
	defaultLeaderboardLimit = 10
	defaultHistoryLimit     = 50
)

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultLeaderboardLimit)
	entries := s.ledger.GetLeaderboard(r.Context(), limit)
	if entries == nil {
		entries = []ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// principalParam validates the {principal} URL parameter, writing a 400 on failure.
func (s *Server) principalParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	p, err := s.ledger.Validator().Validate(chi.URLParam(r, "principal"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return p, true
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principalParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"principal": p,
		"balance":   s.ledger.GetBalance(r.Context(), p),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principalParam(w, r)
	if !ok {
		return
	}
	entries := s.ledger.History(r.Context(), p, parseIntQuery(r, "limit", defaultHistoryLimit))
	if entries == nil {
		entries = []ledger.LogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"principal": p, "entries": entries})
}

type adjustRequest struct {
	Delta int64 `json:"delta"`
}

// handleAdminCookies grants (delta > 0) or takes (delta < 0) cookies. Takes move the
// cookies into the house account and are clamped to the available balance.
func (s *Server) handleAdminCookies(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principalParam(w, r)
	if !ok {
		return
	}
	if p == s.ledger.House() {
		writeError(w, http.StatusBadRequest, ledger.ErrHouseAccount.Error())
		return
	}
	var req adjustRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	ctx := r.Context()
	log := telemetry.WithCorr(ctx, s.log)

	var applied int64
	switch {
	case req.Delta > 0:
		if !s.ledger.AddCookies(ledger.WithReason(ctx, ledger.ReasonAdminGrant), p, req.Delta) {
			writeError(w, http.StatusServiceUnavailable, "cookie storage unavailable")
			return
		}
		applied = req.Delta
	case req.Delta < 0:
		applied = -s.ledger.RemoveCookies(ledger.WithReason(ctx, ledger.ReasonAdminTake), p, -req.Delta)
	default:
		writeError(w, http.StatusBadRequest, "delta must be non-zero")
		return
	}
	log.Info("admin cookie adjustment", slog.String("principal", p), slog.Int64("requested", req.Delta), slog.Int64("applied", applied))
	writeJSON(w, http.StatusOK, map[string]any{
		"principal": p,
		"applied":   applied,
		"balance":   s.ledger.GetBalance(ctx, p),
	})
}
