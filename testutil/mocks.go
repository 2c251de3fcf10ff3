package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// MockTwitchServer serves the Helix streams and OAuth token endpoints used by the
// live-status poller.
type MockTwitchServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu       sync.Mutex
	live     map[string]bool
	bearers  []string
	tokenHit int
}

// NewMockTwitchServer starts a mock Twitch server that is closed with the test.
// Helix lives under /helix and the token endpoint at /oauth2/token.
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		Handlers: make(map[string]http.HandlerFunc),
		live:     make(map[string]bool),
	}
	m.Handlers["/helix/streams"] = m.streams
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// HelixURL is the base URL to hand to a Helix client.
func (m *MockTwitchServer) HelixURL() string { return m.URL + "/helix" }

// TokenURL is the client credentials endpoint.
func (m *MockTwitchServer) TokenURL() string { return m.URL + "/oauth2/token" }

// SetLive replaces the set of channels reported as live.
func (m *MockTwitchServer) SetLive(logins ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live = make(map[string]bool, len(logins))
	for _, l := range logins {
		m.live[strings.ToLower(l)] = true
	}
}

// Bearers returns the Authorization tokens seen by /helix/streams, in order.
func (m *MockTwitchServer) Bearers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.bearers...)
}

// TokenRequests reports how many times the token endpoint was hit.
func (m *MockTwitchServer) TokenRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokenHit
}

func (m *MockTwitchServer) streams(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.bearers = append(m.bearers, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	data := []map[string]any{}
	for _, l := range r.URL.Query()["user_login"] {
		if m.live[l] {
			data = append(data, map[string]any{"user_login": l, "type": "live", "title": l + " ao vivo", "viewer_count": 42})
		}
	}
	m.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data}) //nolint:errcheck // test mock response
}

// MockOAuthTokenResponse serves accessToken from /oauth2/token.
func (m *MockTwitchServer) MockOAuthTokenResponse(accessToken string, expiresIn int) {
	m.Handlers["/oauth2/token"] = func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.tokenHit++
		m.mu.Unlock()
		response := map[string]any{
			"access_token": accessToken,
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}
