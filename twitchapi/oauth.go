package twitchapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/twitch"
)

// DefaultScopes lets the bot read and write chat.
var DefaultScopes = []string{"chat:read", "chat:edit"}

// OAuthConfig builds the authorization code flow config for the bot account. scopes is
// a comma or space separated list; empty means DefaultScopes.
func OAuthConfig(clientID, clientSecret, redirectURI, scopes string) (*oauth2.Config, error) {
	if clientID == "" || redirectURI == "" {
		return nil, errors.New("missing clientID or redirectURI")
	}
	list := strings.Fields(strings.ReplaceAll(scopes, ",", " "))
	if len(list) == 0 {
		list = DefaultScopes
	}
	// Twitch only reads client credentials from the form body.
	ep := twitch.Endpoint
	ep.AuthStyle = oauth2.AuthStyleInParams
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       list,
		Endpoint:     ep,
	}, nil
}

// BuildAuthorizeURL constructs the user authorization URL for OAuth code grant.
func BuildAuthorizeURL(cfg *oauth2.Config, state string) string {
	return cfg.AuthCodeURL(state)
}

// ExchangeAuthCode exchanges an authorization code for access & refresh tokens.
func ExchangeAuthCode(ctx context.Context, cfg *oauth2.Config, code string) (*oauth2.Token, error) {
	if cfg.ClientSecret == "" || code == "" {
		return nil, errors.New("missing required parameter for auth code exchange")
	}
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("twitch auth code exchange failed: %w", err)
	}
	return tok, nil
}

// RefreshToken exchanges a refresh token for a new access token.
func RefreshToken(ctx context.Context, cfg *oauth2.Config, refreshToken string) (*oauth2.Token, error) {
	if cfg.ClientSecret == "" || refreshToken == "" {
		return nil, errors.New("missing clientSecret/refreshToken")
	}
	// An expired token forces the source to hit the token endpoint.
	stale := &oauth2.Token{RefreshToken: refreshToken, Expiry: time.Unix(1, 0)}
	tok, err := cfg.TokenSource(ctx, stale).Token()
	if err != nil {
		return nil, fmt.Errorf("twitch refresh failed: %w", err)
	}
	return tok, nil
}

// ComputeExpiry returns the token expiry, defaulting to +60m when unknown.
func ComputeExpiry(tok *oauth2.Token) time.Time {
	if tok == nil || tok.Expiry.IsZero() {
		return time.Now().Add(60 * time.Minute)
	}
	return tok.Expiry
}

// ScopeString renders the scopes granted with tok, falling back to the requested ones.
// Twitch returns scope as a JSON array.
func ScopeString(cfg *oauth2.Config, tok *oauth2.Token) string {
	if tok != nil {
		switch v := tok.Extra("scope").(type) {
		case []any:
			parts := make([]string, 0, len(v))
			for _, s := range v {
				if str, ok := s.(string); ok {
					parts = append(parts, str)
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, " ")
			}
		case string:
			if v != "" {
				return v
			}
		}
	}
	return strings.Join(cfg.Scopes, " ")
}
