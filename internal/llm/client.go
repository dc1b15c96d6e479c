// Package llm is the schema-constrained generative client used by the
// intent resolver and the synthesizer.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/haryshwa05/pharmasynapse/internal/circuitbreaker"
	"github.com/haryshwa05/pharmasynapse/internal/interceptors"
	"github.com/haryshwa05/pharmasynapse/internal/metrics"
	"github.com/haryshwa05/pharmasynapse/internal/tracing"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.0-flash"

	maxResponseBytes = 4 << 20
)

var (
	ErrNotConfigured = errors.New("generative backend not configured")
	ErrBackend       = errors.New("generative backend failed")
	ErrMalformed     = errors.New("malformed model output")
	ErrSchema        = errors.New("model output violates schema")
)

// PromptSpec is one structured completion request.
type PromptSpec struct {
	// Purpose labels metrics and logs, e.g. "intent" or "synthesis".
	Purpose     string
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Client returns a JSON document that satisfies schema, or an error.
// Implementations are stateless and bounded by ctx.
type Client interface {
	Complete(ctx context.Context, spec PromptSpec, schema *jsonschema.Schema) (json.RawMessage, error)
}

// Config configures the Gemini backend.
type Config struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
	RPS     float64       `mapstructure:"rps"`
	Burst   int           `mapstructure:"burst"`
}

// GeminiClient calls the generateContent REST endpoint with a JSON
// response schema.
type GeminiClient struct {
	cfg     Config
	http    *circuitbreaker.HTTPWrapper
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewGeminiClient returns ErrNotConfigured when no API key is set.
func NewGeminiClient(cfg Config, logger *zap.Logger) (*GeminiClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: interceptors.NewRequestHTTPRoundTripper(nil),
	}
	c := &GeminiClient{
		cfg:    cfg,
		http:   circuitbreaker.NewHTTPWrapper(client, "gemini", "llm", circuitbreaker.GetLLMConfig(), logger),
		logger: logger,
	}
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	return c, nil
}

// Model returns the configured model name.
func (c *GeminiClient) Model() string { return c.cfg.Model }

// IsCircuitBreakerOpen reports whether the backend circuit is open.
func (c *GeminiClient) IsCircuitBreakerOpen() bool { return c.http.IsCircuitBreakerOpen() }

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature        float64            `json:"temperature"`
	MaxOutputTokens    int                `json:"maxOutputTokens,omitempty"`
	ResponseMimeType   string             `json:"responseMimeType"`
	ResponseJSONSchema *jsonschema.Schema `json:"responseJsonSchema,omitempty"`
}

type generateRequest struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Complete sends spec and validates the reply against schema. A nil schema
// only checks that the reply is JSON.
func (c *GeminiClient) Complete(ctx context.Context, spec PromptSpec, schema *jsonschema.Schema) (raw json.RawMessage, err error) {
	purpose := spec.Purpose
	if purpose == "" {
		purpose = "completion"
	}
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "llm.complete")
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.RecordLLMMetrics(purpose, status, time.Since(start).Seconds())
		tracing.EndSpan(span, err)
	}()

	if c.limiter != nil {
		if werr := c.limiter.Wait(ctx); werr != nil {
			return nil, fmt.Errorf("%w: rate limit wait: %v", ErrBackend, werr)
		}
	}

	text, err := c.generate(ctx, spec, schema)
	if err != nil {
		return nil, err
	}
	raw, err = ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	if schema != nil {
		if err := Validate(raw, schema); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

func (c *GeminiClient) generate(ctx context.Context, spec PromptSpec, schema *jsonschema.Schema) (string, error) {
	body := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: spec.User}}}},
		GenerationConfig: generationConfig{
			Temperature:        spec.Temperature,
			MaxOutputTokens:    spec.MaxTokens,
			ResponseMimeType:   "application/json",
			ResponseJSONSchema: schema,
		},
	}
	if spec.System != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: spec.System}}}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.cfg.BaseURL, c.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBackend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: HTTP %d: %s", ErrBackend, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out generateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode envelope: %v", ErrBackend, err)
	}
	if out.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked: %s", ErrBackend, out.PromptFeedback.BlockReason)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty candidate list", ErrMalformed)
	}
	var b strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}
