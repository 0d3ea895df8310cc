// Package sentiment scores free text on a 0..1 positivity scale using a remote service.
package sentiment

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
)

// Defaults for the Text Analytics client.
const (
	DefaultLanguage = "en"
	DefaultTimeout  = 10 * time.Second
	// SubscriptionKeyHeader carries the static credential of the scoring service.
	SubscriptionKeyHeader = "Ocp-Apim-Subscription-Key"
	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 1 << 20
)

// Errors returned by scorers.
var (
	ErrMissingEndpoint   = errors.New("sentiment endpoint not set")
	ErrMalformedResponse = errors.New("malformed sentiment response")
)

// Scorer returns a sentiment score for text.
type Scorer interface {
	Score(ctx context.Context, text string) (float64, error)
}

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("sentiment service returned status %d: %s", e.StatusCode, e.Body)
}

// Opts holds configuration for the Text Analytics client.
type Opts struct {
	Endpoint   string
	Key        string
	Language   string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Option configures the Text Analytics client.
type Option func(*Opts)

// WithEndpoint sets the full URL of the sentiment operation.
func WithEndpoint(endpoint string) Option {
	return func(o *Opts) { o.Endpoint = endpoint }
}

// WithKey sets the subscription key sent with every request.
func WithKey(key string) Option {
	return func(o *Opts) { o.Key = key }
}

// WithLanguage sets the document language. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(o *Opts) { o.Language = lang }
}

// WithTimeout bounds a single scoring request.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithHTTPClient injects the HTTP client (tests, proxies).
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

type document struct {
	Language string `json:"language"`
	ID       string `json:"id"`
	Text     string `json:"text"`
}

type request struct {
	Documents []document `json:"documents"`
}

type scoredDocument struct {
	ID    string   `json:"id,omitempty"`
	Score *float64 `json:"score"`
}

type response struct {
	Documents []scoredDocument `json:"documents"`
}

// TextAnalyticsClient calls a Text Analytics style sentiment endpoint.
type TextAnalyticsClient struct {
	endpoint string
	key      string
	language string
	timeout  time.Duration
	http     *http.Client
}

// NewTextAnalyticsClient builds a client from options.
func NewTextAnalyticsClient(opts ...Option) (*TextAnalyticsClient, error) {
	cfg := Opts{Language: DefaultLanguage, Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, ErrMissingEndpoint
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	slog.Debug("TextAnalyticsClient configured", "endpoint", cfg.Endpoint, "key_set", cfg.Key != "", "language", cfg.Language, "timeout", cfg.Timeout)
	return &TextAnalyticsClient{
		endpoint: cfg.Endpoint,
		key:      cfg.Key,
		language: cfg.Language,
		timeout:  cfg.Timeout,
		http:     httpClient,
	}, nil
}

// Score posts one document and returns documents[0].score.
func (c *TextAnalyticsClient) Score(ctx context.Context, text string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(request{Documents: []document{{Language: c.language, ID: "1", Text: text}}})
	if err != nil {
		return 0, fmt.Errorf("failed to encode sentiment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build sentiment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.key != "" {
		req.Header.Set(SubscriptionKeyHeader, c.key)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("TextAnalyticsClient.Score: request failed", "error", err)
		return 0, fmt.Errorf("sentiment request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, fmt.Errorf("failed to read sentiment response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Warn("TextAnalyticsClient.Score: non-success status", "status", resp.StatusCode)
		return 0, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}

	var decoded response
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(decoded.Documents) == 0 {
		return 0, fmt.Errorf("%w: no documents", ErrMalformedResponse)
	}
	if decoded.Documents[0].Score == nil {
		return 0, fmt.Errorf("%w: documents[0] has no score", ErrMalformedResponse)
	}

	score := *decoded.Documents[0].Score
	slog.Debug("TextAnalyticsClient.Score: scored", "score", score, "duration", time.Since(start))
	return score, nil
}
