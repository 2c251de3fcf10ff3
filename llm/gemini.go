// Package llm generates chat replies with the Gemini API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/leojscalabrin/glorpinia-AI/telemetry"
)

const (
	// DefaultBaseURL is the Generative Language REST endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	// DefaultModel is used when Gemini.Model is empty.
	DefaultModel = "gemini-flash-latest"
)

// DirectiveInstructions teaches the model the cookie directive grammar. Replies are
// passed through the bridge, which executes and strips the tags.
const DirectiveInstructions = `Você pode dar ou tirar cookies (🍪) dos usuários do chat.
Para dar, escreva exatamente [[COOKIE:GIVE:usuario:quantidade]].
Para tirar, escreva exatamente [[COOKIE:TAKE:usuario:quantidade]].
Use o nome de usuário sem espaços e uma quantidade inteira positiva de no máximo 500.
Use isso raramente, só quando fizer sentido na conversa.`

// ErrEmptyResponse is returned when the model produced no text, for example after a
// safety block.
var ErrEmptyResponse = errors.New("llm: empty response")

// Generator produces a reply to prompt written by author.
type Generator interface {
	Generate(ctx context.Context, author, prompt string) (string, error)
}

// Gemini is a minimal generateContent client.
type Gemini struct {
	APIKey string
	Model  string
	// Persona is prepended to DirectiveInstructions as the system instruction.
	Persona    string
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

type part struct {
	Text string `json:"text,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	SafetySettings    []safetySetting   `json:"safetySettings,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      *content `json:"content"`
		FinishReason string   `json:"finishReason"`
	} `json:"candidates"`
}

func (g *Gemini) http() *http.Client {
	if g.HTTPClient != nil {
		return g.HTTPClient
	}
	return http.DefaultClient
}

// SystemInstruction returns the persona followed by the directive grammar.
func (g *Gemini) SystemInstruction() string {
	if strings.TrimSpace(g.Persona) == "" {
		return DirectiveInstructions
	}
	return strings.TrimSpace(g.Persona) + "\n\n" + DirectiveInstructions
}

// Generate sends one user turn and returns the first candidate's text.
func (g *Gemini) Generate(ctx context.Context, author, prompt string) (string, error) {
	if g.APIKey == "" {
		return "", errors.New("llm: missing api key")
	}
	model := g.Model
	if model == "" {
		model = DefaultModel
	}
	base := strings.TrimRight(g.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(generateRequest{
		Contents:          []content{{Role: "user", Parts: []part{{Text: author + ": " + prompt}}}},
		SystemInstruction: &content{Parts: []part{{Text: g.SystemInstruction()}}},
		SafetySettings: []safetySetting{
			{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_NONE"},
			{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_NONE"},
			{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_NONE"},
			{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_NONE"},
		},
		GenerationConfig: &generationConfig{Temperature: 0.7, MaxOutputTokens: 1024},
	})
	if err != nil {
		return "", fmt.Errorf("llm: encode request: %w", err)
	}

	ctx, span := telemetry.StartSpan(ctx, "llm", "llm.Generate")
	defer span.End()

	var (
		text   string
		reqErr error
	)
	telemetry.TimeFunc(telemetry.LLMDuration, func() {
		text, reqErr = g.do(ctx, base+"/models/"+model+":generateContent", body)
	})
	if reqErr != nil {
		telemetry.RecordError(span, reqErr)
		return "", reqErr
	}
	telemetry.SetSpanSuccess(span)
	return text, nil
}

func (g *Gemini) do(ctx context.Context, url string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.APIKey)
	resp, err := g.http().Do(req)
	if err != nil {
		return "", fmt.Errorf("llm: request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("llm: generate failed: %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("llm: decode response: %w", err)
	}
	var sb strings.Builder
	for _, c := range out.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			sb.WriteString(p.Text)
		}
		break
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
