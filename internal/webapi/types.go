package webapi

import "github.com/tartakovsky/prompttester/internal/models"

// EvaluateResponse is the successful response of POST /api/evaluate.
type EvaluateResponse struct {
	Results models.Results `json:"results"`
}

// ModelPrice is one entry of the model catalog with per-token USD prices.
type ModelPrice struct {
	ID         string  `json:"id"`
	Name       string  `json:"name,omitempty"`
	Prompt     float64 `json:"prompt"`
	Completion float64 `json:"completion"`
}

// ModelsResponse is the model catalog response.
type ModelsResponse struct {
	Models []ModelPrice `json:"models"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ErrorResponse is returned for errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// FlattenedErrors groups validation failures by top-level request field.
type FlattenedErrors struct {
	FormErrors  []string            `json:"formErrors"`
	FieldErrors map[string][]string `json:"fieldErrors"`
}

// ValidationErrorResponse is returned when the request body fails field validation.
type ValidationErrorResponse struct {
	Error FlattenedErrors `json:"error"`
}
