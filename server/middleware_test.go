package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
}

func TestAdminAuthMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		token          string
		authHeader     string
		tokenHeader    string
		expectedStatus int
	}{
		{name: "not configured", token: "", authHeader: "Bearer x", expectedStatus: http.StatusServiceUnavailable},
		{name: "valid bearer", token: "t0k", authHeader: "Bearer t0k", expectedStatus: http.StatusOK},
		{name: "bearer case insensitive", token: "t0k", authHeader: "bearer t0k", expectedStatus: http.StatusOK},
		{name: "valid header token", token: "t0k", tokenHeader: "t0k", expectedStatus: http.StatusOK},
		{name: "wrong bearer", token: "t0k", authHeader: "Bearer nope", expectedStatus: http.StatusUnauthorized},
		{name: "basic auth is not accepted", token: "t0k", authHeader: "Basic dDBrOnQwaw==", expectedStatus: http.StatusUnauthorized},
		{name: "missing", token: "t0k", expectedStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := adminAuth(tt.token, slog.Default())(okHandler())
			req := httptest.NewRequest(http.MethodPost, "/admin/cookies/alice", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			if tt.tokenHeader != "" {
				req.Header.Set("X-Admin-Token", tt.tokenHeader)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rr.Code)
			}
			if rr.Code == http.StatusUnauthorized && rr.Header().Get("WWW-Authenticate") == "" {
				t.Errorf("expected WWW-Authenticate header on 401")
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newIPRateLimiter(context.Background(), 3, time.Minute)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !rl.allow("192.168.1.1") {
			t.Errorf("request %d should be allowed", i+1)
		}
	}
	if rl.allow("192.168.1.1") {
		t.Error("4th request should be denied")
	}
	if !rl.allow("192.168.1.2") {
		t.Error("a different IP should be allowed")
	}

	now = now.Add(time.Minute + time.Second)
	if !rl.allow("192.168.1.1") {
		t.Error("request after the window should be allowed")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := newIPRateLimiter(context.Background(), 1, time.Minute)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }
	rl.allow("10.0.0.1")

	now = now.Add(3 * time.Minute)
	rl.cleanup()
	if n := len(rl.visitors); n != 0 {
		t.Errorf("expected stale visitors to be removed, %d left", n)
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := newIPRateLimiter(context.Background(), 0, time.Minute)
	for i := 0; i < 100; i++ {
		if !rl.allow("192.168.1.1") {
			t.Fatalf("request %d should be allowed when disabled", i+1)
		}
	}
}

func TestClientIP(t *testing.T) {
	tests := map[string]string{
		"192.168.1.1:1234": "192.168.1.1",
		"[::1]:8080":       "::1",
		"192.168.1.1":      "192.168.1.1",
		"2001:db8::1":      "2001:db8::1",
	}
	for remote, want := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		if got := clientIP(req); got != want {
			t.Errorf("clientIP(%q) = %q, want %q", remote, got, want)
		}
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		want    string
	}{
		{"no origins configured", nil, "https://overlay.example.com", ""},
		{"exact match", []string{"https://overlay.example.com"}, "https://overlay.example.com", "https://overlay.example.com"},
		{"not allowed", []string{"https://overlay.example.com"}, "https://evil.com", ""},
		{"wildcard", []string{"*"}, "https://anything.dev", "https://anything.dev"},
		{"subdomain wildcard", []string{"*.example.com"}, "https://a.example.com", "https://a.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := cors(tt.origins)(okHandler())
			req := httptest.NewRequest(http.MethodGet, "/leaderboard", nil)
			req.Header.Set("Origin", tt.origin)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCORSPreflightRequest(t *testing.T) {
	h := cors([]string{"*"})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("preflight must not reach the handler")
	}))
	req := httptest.NewRequest(http.MethodOptions, "/leaderboard", nil)
	req.Header.Set("Origin", "https://overlay.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rr.Code)
	}
}

func TestIsOriginAllowed(t *testing.T) {
	tests := []struct {
		origin  string
		allowed []string
		want    bool
	}{
		{"https://example.com", []string{"https://example.com"}, true},
		{"https://EXAMPLE.com", []string{"https://example.com"}, true},
		{"https://example.com", []string{"https://other.com"}, false},
		{"https://sub.example.com", []string{"*.example.com"}, true},
		{"https://example.com", []string{"*.example.com"}, true},
		{"https://notexample.com", []string{"*.example.com"}, false},
		{"https://example.com", nil, false},
	}
	for _, tt := range tests {
		if got := isOriginAllowed(tt.origin, tt.allowed); got != tt.want {
			t.Errorf("isOriginAllowed(%q, %v) = %v, want %v", tt.origin, tt.allowed, got, tt.want)
		}
	}
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"Bearer":       "",
		"":             "",
	}
	for in, want := range tests {
		if got := bearerToken(in); got != want {
			t.Errorf("bearerToken(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStateStore(t *testing.T) {
	s := newStateStore()
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }

	if !s.add("a") || !s.add("b") {
		t.Fatal("add should succeed")
	}
	if !s.consume("a") {
		t.Error("fresh state should be accepted")
	}
	if s.consume("a") {
		t.Error("state must be single use")
	}
	now = now.Add(stateTTL + time.Second)
	if s.consume("b") {
		t.Error("expired state must be rejected")
	}
	if s.consume("never-issued") {
		t.Error("unknown state must be rejected")
	}
}
