package twitchapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestOAuthConfig(t *testing.T) {
	if _, err := OAuthConfig("", "s", "http://localhost/cb", ""); err == nil {
		t.Error("expected error for empty client id")
	}
	if _, err := OAuthConfig("id", "s", "", ""); err == nil {
		t.Error("expected error for empty redirect uri")
	}
	cfg, err := OAuthConfig("id", "s", "http://localhost/cb", "chat:read, chat:edit")
	if err != nil {
		t.Fatalf("OAuthConfig() error = %v", err)
	}
	if strings.Join(cfg.Scopes, " ") != "chat:read chat:edit" {
		t.Errorf("scopes = %v", cfg.Scopes)
	}
	cfg, _ = OAuthConfig("id", "s", "http://localhost/cb", "")
	if strings.Join(cfg.Scopes, " ") != strings.Join(DefaultScopes, " ") {
		t.Errorf("default scopes = %v", cfg.Scopes)
	}
}

func TestBuildAuthorizeURL(t *testing.T) {
	cfg, _ := OAuthConfig("test-client-id", "s", "http://localhost/callback", "chat:read,chat:edit")
	raw := BuildAuthorizeURL(cfg, "random-state")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if u.Host != "id.twitch.tv" {
		t.Errorf("host = %s", u.Host)
	}
	q := u.Query()
	for k, want := range map[string]string{
		"client_id":     "test-client-id",
		"state":         "random-state",
		"response_type": "code",
		"redirect_uri":  "http://localhost/callback",
		"scope":         "chat:read chat:edit",
	} {
		if got := q.Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}

func oauthServer(t *testing.T, wantGrant string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != wantGrant {
			t.Errorf("grant_type = %q, want %q", got, wantGrant)
		}
		if got := r.PostForm.Get("client_secret"); got != "secret" {
			t.Errorf("client_secret = %q, want it sent in the form", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "user-access",
			"refresh_token": "user-refresh",
			"expires_in":    14400,
			"scope":         []string{"chat:read", "chat:edit"},
			"token_type":    "bearer",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExchangeAuthCode(t *testing.T) {
	srv := oauthServer(t, "authorization_code")
	cfg, _ := OAuthConfig("id", "secret", "http://localhost/cb", "")
	cfg.Endpoint.TokenURL = srv.URL

	before := time.Now()
	tok, err := ExchangeAuthCode(context.Background(), cfg, "the-code")
	if err != nil {
		t.Fatalf("ExchangeAuthCode() error = %v", err)
	}
	if tok.AccessToken != "user-access" || tok.RefreshToken != "user-refresh" {
		t.Errorf("token = %+v", tok)
	}
	if exp := ComputeExpiry(tok); exp.Before(before.Add(3 * time.Hour)) {
		t.Errorf("expiry = %v, want about 4h from now", exp)
	}
	if got := ScopeString(cfg, tok); got != "chat:read chat:edit" {
		t.Errorf("ScopeString() = %q", got)
	}
	if _, err := ExchangeAuthCode(context.Background(), cfg, ""); err == nil {
		t.Error("expected error for empty code")
	}
}

func TestRefreshToken(t *testing.T) {
	srv := oauthServer(t, "refresh_token")
	cfg, _ := OAuthConfig("id", "secret", "http://localhost/cb", "")
	cfg.Endpoint.TokenURL = srv.URL

	tok, err := RefreshToken(context.Background(), cfg, "old-refresh")
	if err != nil {
		t.Fatalf("RefreshToken() error = %v", err)
	}
	if tok.AccessToken != "user-access" {
		t.Errorf("access = %s", tok.AccessToken)
	}
	if _, err := RefreshToken(context.Background(), cfg, ""); err == nil {
		t.Error("expected error for empty refresh token")
	}
}

func TestComputeExpiryDefault(t *testing.T) {
	exp := ComputeExpiry(nil)
	if d := time.Until(exp); d < 59*time.Minute || d > 61*time.Minute {
		t.Errorf("default expiry in %v, want ~60m", d)
	}
}
