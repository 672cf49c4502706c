package openrouter

import "github.com/tartakovsky/prompttester/internal/models"

// ResponseFormat is the strict JSON-schema directive sent as response_format.
type ResponseFormat struct {
	Type       string     `json:"type"`
	JSONSchema JSONSchema `json:"json_schema"`
}

// JSONSchema names a schema and marks it strict.
type JSONSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

// ScoredResultSchema is the object schema for scorer output.
func ScoredResultSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"score":      map[string]any{"type": "number", "description": "Relevance score between 0 and 1"},
			"reasoning":  map[string]any{"type": "string"},
			"post_recap": map[string]any{"type": "string"},
		},
		"required":             []any{"score", "reasoning", "post_recap"},
		"additionalProperties": false,
	}
}

// CommentResultSchema is the object schema for commenter output.
func CommentResultSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"comment": map[string]any{"type": "string"},
		},
		"required":             []any{"comment"},
		"additionalProperties": false,
	}
}

// ScoredResultFormat is the response_format for scorer mode.
func ScoredResultFormat() *ResponseFormat {
	return &ResponseFormat{
		Type:       "json_schema",
		JSONSchema: JSONSchema{Name: "scored_result", Strict: true, Schema: ScoredResultSchema()},
	}
}

// CommentResultFormat is the response_format for commenter mode.
func CommentResultFormat() *ResponseFormat {
	return &ResponseFormat{
		Type:       "json_schema",
		JSONSchema: JSONSchema{Name: "comment_result", Strict: true, Schema: CommentResultSchema()},
	}
}

// FormatForMode returns the response_format for mode, or nil for plain output.
func FormatForMode(mode models.Mode) *ResponseFormat {
	switch mode {
	case models.ModeScorer:
		return ScoredResultFormat()
	case models.ModeCommenter:
		return CommentResultFormat()
	default:
		return nil
	}
}
