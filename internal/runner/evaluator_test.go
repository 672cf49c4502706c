package runner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tartakovsky/prompttester/internal/models"
	"github.com/tartakovsky/prompttester/internal/openrouter"
	"github.com/tartakovsky/prompttester/internal/orchestration"
	"github.com/tartakovsky/prompttester/internal/webapi"
)

func TestNewRelayError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "json error string", status: 401, body: `{"error":"No API key provided"}`, want: "No API key provided"},
		{name: "json without error", status: 500, body: `{"detail":"x"}`, want: "HTTP 500"},
		{name: "json empty error", status: 500, body: `{"error":""}`, want: "HTTP 500"},
		{name: "json error object", status: 400, body: `{"error":{"formErrors":[],"fieldErrors":{"temperature":["too hot"]}}}`,
			want: `{"fieldErrors":{"temperature":["too hot"]},"formErrors":[]}`},
		{name: "plain text", status: 502, body: "Bad Gateway", want: "HTTP 502: Bad Gateway"},
		{name: "long text is truncated", status: 503, body: strings.Repeat("x", 500), want: "HTTP 503: " + strings.Repeat("x", 200)},
		{name: "empty body", status: 504, body: "", want: "HTTP 504"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newRelayError(tt.status, []byte(tt.body))
			assert.Equal(t, tt.status, err.StatusCode)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestRelayClient_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/evaluate", r.URL.Path)
		assert.Equal(t, "sk-1", r.Header.Get("x-api-key"))

		var req models.EvaluateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Rate this.", req.Prompt)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":{"m/a":{"i1":{"output":"ok","error":null,"input_tokens":10,"output_tokens":5}}}}`)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)

	client := NewRelayClient(srv.URL+"/", WithRelayHTTPClient(srv.Client()))
	results, err := client.Evaluate(context.Background(), "sk-1", &models.EvaluateRequest{
		Prompt: "Rate this.",
		Models: []string{"m/a"},
		Inputs: []models.InputRef{{InputID: "i1", Content: "x"}},
	})
	require.NoError(t, err)

	cell, ok := results.Get("m/a", "i1")
	require.True(t, ok)
	assert.Equal(t, "ok", *cell.Output)
	assert.Equal(t, 10, *cell.InputTokens)
	assert.Nil(t, cell.Error)
}

func TestRelayClient_EmptyKeyOmitsHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present := r.Header["X-Api-Key"]
		assert.False(t, present)
		w.Write([]byte(`{"results":{}}`)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)

	results, err := NewRelayClient(srv.URL).Evaluate(context.Background(), "", &models.EvaluateRequest{Prompt: "p"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRelayClient_ErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"No API key provided"}`)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)

	_, err := NewRelayClient(srv.URL).Evaluate(context.Background(), "", &models.EvaluateRequest{Prompt: "p"})
	var relayErr *RelayError
	require.True(t, errors.As(err, &relayErr))
	assert.Equal(t, http.StatusUnauthorized, relayErr.StatusCode)
	assert.Equal(t, "No API key provided", relayErr.Message)
}

// TestRelayClient_AgainstRelay runs the coordinator through the real relay
// handlers and a fake upstream.
func TestRelayClient_AgainstRelay(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Model string `json:"model"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		if payload.Model == "m/b" {
			http.Error(w, "overloaded", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"fine"}}],"usage":{"prompt_tokens":10,"completion_tokens":5}}`)) //nolint:errcheck
	}))
	t.Cleanup(upstream.Close)

	mux := http.NewServeMux()
	webapi.RegisterRoutes(mux, webapi.Config{
		Evaluator: orchestration.NewEvaluator(openrouter.NewClient(openrouter.WithBaseURL(upstream.URL))),
	})
	relay := httptest.NewServer(mux)
	t.Cleanup(relay.Close)

	c := New(NewRelayClient(relay.URL))
	tc := newTest("Rate this.")
	outcome, err := c.Run(context.Background(), tc, "sk-live")
	require.NoError(t, err)

	snap := outcome.Snapshot
	ok, _ := snap.Prompts[0].Results.Get("m/a", "i1")
	assert.Equal(t, "fine", *ok.Output)
	failed, _ := snap.Prompts[0].Results.Get("m/b", "i1")
	assert.Equal(t, models.CellError, failed.State())
	assert.Contains(t, *failed.Error, "OpenRouter 500")
}

func TestLocalEvaluator(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"comment\":\"Love it\"}"}}]}`)) //nolint:errcheck
	}))
	t.Cleanup(upstream.Close)

	local := NewLocalEvaluator(orchestration.NewEvaluator(openrouter.NewClient(openrouter.WithBaseURL(upstream.URL))))

	_, err := local.Evaluate(context.Background(), "", &models.EvaluateRequest{})
	assert.ErrorIs(t, err, openrouter.ErrMissingAPIKey)

	_, err = local.Evaluate(context.Background(), "k", &models.EvaluateRequest{Prompt: "p"})
	var reqErr *orchestration.RequestError
	assert.True(t, errors.As(err, &reqErr))

	results, err := local.Evaluate(context.Background(), "k", &models.EvaluateRequest{
		Prompt: "Write a comment.",
		Models: []string{"m/a"},
		Inputs: []models.InputRef{{InputID: "i1", Content: "x"}},
		Mode:   models.ModeCommenter,
	})
	require.NoError(t, err)
	cell, _ := results.Get("m/a", "i1")
	assert.Equal(t, "Love it", *cell.Comment)
}
