// Package twitchapi contains minimal helpers for the Twitch Helix API and Twitch OAuth:
// stream status lookups with an app access token, a poller that tracks which channels
// are live, and the bot user's authorization code flow.
package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultHelixURL is the Helix API root.
const DefaultHelixURL = "https://api.twitch.tv/helix"

// maxStreamLogins is the Helix limit of user_login values per request.
const maxStreamLogins = 100

// Stream is a live stream as reported by Helix.
type Stream struct {
	UserLogin   string
	Title       string
	ViewerCount int
	StartedAt   time.Time
}

// HelixClient provides the Helix calls the bot needs.
type HelixClient struct {
	AppTokenSource *TokenSource
	ClientID       string
	HTTPClient     *http.Client
	// BaseURL overrides DefaultHelixURL.
	BaseURL string
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) baseURL() string {
	if hc.BaseURL != "" {
		return strings.TrimRight(hc.BaseURL, "/")
	}
	return DefaultHelixURL
}

// GetStreams returns the live streams among logins. Offline channels are absent from
// the result. Logins may carry a leading '#'.
func (hc *HelixClient) GetStreams(ctx context.Context, logins ...string) ([]Stream, error) {
	if len(logins) == 0 {
		return nil, errors.New("no logins")
	}
	if hc.AppTokenSource == nil {
		return nil, errors.New("helix: missing app token source")
	}
	var out []Stream
	for start := 0; start < len(logins); start += maxStreamLogins {
		end := min(start+maxStreamLogins, len(logins))
		page, err := hc.getStreams(ctx, logins[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
	}
	return out, nil
}

func (hc *HelixClient) getStreams(ctx context.Context, logins []string) ([]Stream, error) {
	tok, err := hc.AppTokenSource.Get(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hc.baseURL()+"/streams", nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	for _, l := range logins {
		q.Add("user_login", strings.ToLower(strings.TrimPrefix(l, "#")))
	}
	q.Set("first", fmt.Sprintf("%d", maxStreamLogins))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := hc.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("helix streams failed: %s: %s", resp.Status, string(b))
	}
	var body struct {
		Data []struct {
			UserLogin   string    `json:"user_login"`
			Type        string    `json:"type"`
			Title       string    `json:"title"`
			ViewerCount int       `json:"viewer_count"`
			StartedAt   time.Time `json:"started_at"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	out := make([]Stream, 0, len(body.Data))
	for _, s := range body.Data {
		if s.Type != "" && s.Type != "live" {
			continue
		}
		out = append(out, Stream{
			UserLogin:   strings.ToLower(s.UserLogin),
			Title:       s.Title,
			ViewerCount: s.ViewerCount,
			StartedAt:   s.StartedAt,
		})
	}
	return out, nil
}
