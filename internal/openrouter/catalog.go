package openrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/tartakovsky/prompttester/internal/utils"
)

// ModelInfo is one entry of the upstream model catalogue. Prices are USD per token.
type ModelInfo struct {
	ID              string  `json:"id"`
	Name            string  `json:"name,omitempty"`
	PromptPrice     float64 `json:"prompt"`
	CompletionPrice float64 `json:"completion"`
}

type modelsPayload struct {
	Data []struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Pricing *struct {
			Prompt     string `json:"prompt"`
			Completion string `json:"completion"`
		} `json:"pricing"`
	} `json:"data"`
}

// ListModels fetches the public model catalogue with per-token pricing.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(resp.Body)
		return nil, &UpstreamHTTPError{StatusCode: resp.StatusCode, Body: utils.Truncate(string(text), maxErrorBody)}
	}

	var payload modelsPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding model list: %w", err)
	}

	out := make([]ModelInfo, 0, len(payload.Data))
	for _, m := range payload.Data {
		info := ModelInfo{ID: m.ID, Name: m.Name}
		if m.Pricing != nil {
			info.PromptPrice = parsePrice(m.Pricing.Prompt)
			info.CompletionPrice = parsePrice(m.Pricing.Completion)
		}
		out = append(out, info)
	}
	c.logger.Debug("fetched model catalogue", "count", len(out))
	return out, nil
}

func parsePrice(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
