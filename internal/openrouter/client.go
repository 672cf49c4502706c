// Package openrouter is a minimal client for the OpenRouter chat-completion
// and model catalogue endpoints.
package openrouter

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

	"github.com/tartakovsky/prompttester/internal/utils"
)

// DefaultBaseURL is the OpenRouter API root.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// DefaultMaxTokens is the output budget used when a request does not set one.
const DefaultMaxTokens = 4096

// maxErrorBody is the number of response-body characters kept in an UpstreamHTTPError.
const maxErrorBody = 300

// ErrMissingAPIKey is returned before any I/O when a request carries no API key.
var ErrMissingAPIKey = errors.New("openrouter: API key is required")

// UpstreamHTTPError is returned when the upstream answers with a non-2xx status.
type UpstreamHTTPError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamHTTPError) Error() string {
	return fmt.Sprintf("OpenRouter %d: %s", e.StatusCode, e.Body)
}

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest describes a single system+user round-trip.
type CompletionRequest struct {
	APIKey         string
	Model          string
	SystemPrompt   string
	UserMessage    string
	Temperature    float64
	MaxTokens      int
	ResponseFormat *ResponseFormat
}

// Completion is the normalized result of a round-trip.
type Completion struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

type requestPayload struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type responsePayload struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     *int `json:"prompt_tokens"`
		CompletionTokens *int `json:"completion_tokens"`
	} `json:"usage"`
}

// Client talks to the OpenRouter HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API root (useful for tests and proxies).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a Client. The zero configuration talks to DefaultBaseURL.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Complete performs exactly one POST to /chat/completions. The context is
// attached to the HTTP request, so cancelling it aborts the call in flight.
func (c *Client) Complete(ctx context.Context, req *CompletionRequest) (*Completion, error) {
	if req.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	body, err := json.Marshal(requestPayload{
		Model: req.Model,
		Messages: []Message{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserMessage},
		},
		Temperature:    req.Temperature,
		MaxTokens:      maxTokens,
		ResponseFormat: req.ResponseFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debug("upstream request", "model", req.Model, "max_tokens", maxTokens, "structured", req.ResponseFormat != nil)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", req.Model, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(resp.Body)
		return nil, &UpstreamHTTPError{
			StatusCode: resp.StatusCode,
			Body:       utils.Truncate(string(text), maxErrorBody),
		}
	}

	var payload responsePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding response from %s: %w", req.Model, err)
	}

	out := &Completion{}
	if len(payload.Choices) > 0 {
		out.Content = contentString(payload.Choices[0].Message.Content)
	}
	if payload.Usage != nil {
		out.InputTokens = utils.Deref(payload.Usage.PromptTokens)
		out.OutputTokens = utils.Deref(payload.Usage.CompletionTokens)
	}
	return out, nil
}

// contentString returns string content as-is and any other JSON value in its
// serialized form. Missing or null content yields "".
func contentString(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return string(trimmed)
	}
	return buf.String()
}
