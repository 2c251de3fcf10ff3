package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "k3y", r.Header.Get("x-goog-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"oi "},{"text":"[[COOKIE:GIVE:bob:5]] "}]}}]}`))
	}))
	defer srv.Close()

	g := &Gemini{APIKey: "k3y", Model: "gemini-test", Persona: "Você é a Glorpinia.", BaseURL: srv.URL}
	text, err := g.Generate(context.Background(), "bob", "me da cookie")
	require.NoError(t, err)
	assert.Equal(t, "oi [[COOKIE:GIVE:bob:5]]", text)

	require.Len(t, got.Contents, 1)
	assert.Equal(t, "bob: me da cookie", got.Contents[0].Parts[0].Text)
	require.NotNil(t, got.SystemInstruction)
	sys := got.SystemInstruction.Parts[0].Text
	assert.True(t, strings.HasPrefix(sys, "Você é a Glorpinia."))
	assert.Contains(t, sys, "[[COOKIE:GIVE:usuario:quantidade]]")
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		wantMsg string
	}{
		{"http error", http.StatusTooManyRequests, `{"error":{"message":"quota"}}`, nil, "429"},
		{"no candidates", http.StatusOK, `{"candidates":[]}`, ErrEmptyResponse, ""},
		{"blocked", http.StatusOK, `{"candidates":[{"finishReason":"SAFETY"}]}`, ErrEmptyResponse, ""},
		{"bad json", http.StatusOK, `{`, nil, "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			g := &Gemini{APIKey: "k", BaseURL: srv.URL}
			_, err := g.Generate(context.Background(), "a", "b")
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestGenerateRequiresKey(t *testing.T) {
	_, err := (&Gemini{}).Generate(context.Background(), "a", "b")
	assert.Error(t, err)
}

func TestGenerateTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	g := &Gemini{APIKey: "k", BaseURL: srv.URL, Timeout: 20 * time.Millisecond}
	_, err := g.Generate(context.Background(), "a", "b")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSystemInstructionWithoutPersona(t *testing.T) {
	assert.Equal(t, DirectiveInstructions, (&Gemini{}).SystemInstruction())
}
