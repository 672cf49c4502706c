package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tartakovsky/prompttester/internal/models"
	"github.com/tartakovsky/prompttester/internal/openrouter"
	"github.com/tartakovsky/prompttester/internal/orchestration"
	"github.com/tartakovsky/prompttester/internal/utils"
)

// Evaluator evaluates one prompt across a model x input grid.
type Evaluator interface {
	Evaluate(ctx context.Context, apiKey string, req *models.EvaluateRequest) (models.Results, error)
}

// maxRelayErrorText bounds the raw body text quoted in a RelayError.
const maxRelayErrorText = 200

// RelayError is a non-2xx response from the relay.
type RelayError struct {
	StatusCode int
	Message    string
}

func (e *RelayError) Error() string { return e.Message }

// newRelayError builds the message for a failed relay call. It starts as
// "HTTP <status>". A JSON body's error field replaces it; a non-JSON body is
// appended, truncated to 200 characters.
func newRelayError(status int, body []byte) *RelayError {
	msg := fmt.Sprintf("HTTP %d", status)

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err == nil {
		switch v := parsed["error"].(type) {
		case string:
			if v != "" {
				msg = v
			}
		case nil:
		default:
			if b, err := json.Marshal(v); err == nil {
				msg = string(b)
			}
		}
	} else if text := string(body); len(text) > 0 {
		msg += ": " + utils.Truncate(text, maxRelayErrorText)
	}

	return &RelayError{StatusCode: status, Message: msg}
}

// RelayClient evaluates prompts through a relay's POST /api/evaluate.
type RelayClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// RelayOption configures a RelayClient.
type RelayOption func(*RelayClient)

// WithRelayHTTPClient sets the HTTP client.
func WithRelayHTTPClient(hc *http.Client) RelayOption {
	return func(c *RelayClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRelayLogger sets the logger.
func WithRelayLogger(l *slog.Logger) RelayOption {
	return func(c *RelayClient) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewRelayClient creates a client for the relay at baseURL.
func NewRelayClient(baseURL string, opts ...RelayOption) *RelayClient {
	c := &RelayClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Evaluate posts req to the relay. An empty apiKey leaves the choice of key
// to the relay.
func (c *RelayClient) Evaluate(ctx context.Context, apiKey string, req *models.EvaluateRequest) (models.Results, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building relay request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("x-api-key", apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) //nolint:errcheck
		relayErr := newRelayError(resp.StatusCode, text)
		c.logger.Debug("relay rejected request", "status", resp.StatusCode, "message", relayErr.Message)
		return nil, relayErr
	}

	var payload struct {
		Results models.Results `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding relay response: %w", err)
	}
	if payload.Results == nil {
		payload.Results = models.Results{}
	}
	return payload.Results, nil
}

// LocalEvaluator runs the evaluation in-process instead of through a relay.
type LocalEvaluator struct {
	ev *orchestration.Evaluator
}

// NewLocalEvaluator wraps ev.
func NewLocalEvaluator(ev *orchestration.Evaluator) *LocalEvaluator {
	return &LocalEvaluator{ev: ev}
}

// Evaluate validates req and fans it out in-process.
func (l *LocalEvaluator) Evaluate(ctx context.Context, apiKey string, req *models.EvaluateRequest) (models.Results, error) {
	if apiKey == "" {
		return nil, openrouter.ErrMissingAPIKey
	}
	if err := orchestration.Validate(req); err != nil {
		return nil, err
	}
	return l.ev.Evaluate(ctx, apiKey, req), nil
}

var (
	_ Evaluator = (*RelayClient)(nil)
	_ Evaluator = (*LocalEvaluator)(nil)
)
