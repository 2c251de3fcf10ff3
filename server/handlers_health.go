package server

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReadyz reports ready once the database answers and the schema is migrated
// to a clean version.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error { return s.db.PingContext(r.Context()) }},
		{"schema", func() error {
			var (
				version int64
				dirty   bool
			)
			err := s.db.QueryRowContext(r.Context(), `SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &dirty)
			if errors.Is(err, sql.ErrNoRows) {
				return errors.New("schema not migrated")
			}
			if err != nil {
				return err
			}
			if dirty {
				return errors.New("schema version " + strconv.FormatInt(version, 10) + " is dirty")
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
