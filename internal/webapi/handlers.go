package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tartakovsky/prompttester/internal/models"
	"github.com/tartakovsky/prompttester/internal/openrouter"
	"github.com/tartakovsky/prompttester/internal/orchestration"
)

// Version is set at build time or defaults to dev.
var Version = "0.1.0-dev"

// maxBodyBytes caps the size of an evaluation request body.
const maxBodyBytes = 10 << 20

// Evaluator runs one prompt across a model x input grid.
type Evaluator interface {
	Evaluate(ctx context.Context, apiKey string, req *models.EvaluateRequest) models.Results
}

// Catalog lists upstream models and their prices.
type Catalog interface {
	ListModels(ctx context.Context) ([]openrouter.ModelInfo, error)
}

// Config wires the handlers to their collaborators.
type Config struct {
	Evaluator Evaluator
	Catalog   Catalog
	// DefaultAPIKey is used when a request carries no x-api-key header.
	DefaultAPIKey string
	Logger        *slog.Logger
}

// Handlers holds the HTTP handler methods for the web API.
type Handlers struct {
	evaluator     Evaluator
	catalog       Catalog
	defaultAPIKey string
	logger        *slog.Logger
}

// NewHandlers creates a new Handlers from cfg.
func NewHandlers(cfg Config) *Handlers {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		evaluator:     cfg.Evaluator,
		catalog:       cfg.Catalog,
		defaultAPIKey: cfg.DefaultAPIKey,
		logger:        logger,
	}
}

// HandleHealth returns a simple health check response.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
	})
}

// HandleEvaluate runs one prompt against every requested (model, input) pair
// and returns the settled results map.
func (h *Handlers) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	apiKey := r.Header.Get("x-api-key")
	if apiKey == "" {
		apiKey = h.defaultAPIKey
	}
	if apiKey == "" {
		writeError(w, http.StatusUnauthorized, "No API key provided")
		return
	}

	var req models.EvaluateRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		h.logger.Debug("rejecting undecodable body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if err := orchestration.Validate(&req); err != nil {
		var reqErr *orchestration.RequestError
		if errors.As(err, &reqErr) {
			writeError(w, http.StatusBadRequest, reqErr.Message)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if flat := validateStruct(&req); flat != nil {
		writeJSON(w, http.StatusBadRequest, ValidationErrorResponse{Error: *flat})
		return
	}

	h.logger.Info("evaluating",
		"models", len(req.Models),
		"inputs", len(req.Inputs),
		"mode", req.Mode)

	results := h.evaluator.Evaluate(r.Context(), apiKey, &req)
	writeJSON(w, http.StatusOK, EvaluateResponse{Results: results})
}

// HandleModels returns the upstream model catalog with prices.
func (h *Handlers) HandleModels(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeError(w, http.StatusNotImplemented, "model catalog is not configured")
		return
	}

	list, err := h.catalog.ListModels(r.Context())
	if err != nil {
		h.logger.Warn("listing models failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	out := ModelsResponse{Models: make([]ModelPrice, 0, len(list))}
	for _, m := range list {
		out.Models = append(out.Models, ModelPrice{
			ID:         m.ID,
			Name:       m.Name,
			Prompt:     m.PromptPrice,
			Completion: m.CompletionPrice,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// RegisterRoutes registers all web API routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, cfg Config) {
	h := NewHandlers(cfg)
	mux.HandleFunc("GET /api/health", h.HandleHealth)
	mux.HandleFunc("GET /api/models", h.HandleModels)
	mux.Handle("POST /api/evaluate", RecoverMiddleware(http.HandlerFunc(h.HandleEvaluate), h.logger))
}

// RecoverMiddleware turns a panic in next into a 500 JSON error response.
func RecoverMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			msg := fmt.Sprint(rec)
			if err, ok := rec.(error); ok {
				msg = err.Error()
			}
			logger.Error("handler panic", "path", r.URL.Path, "panic", msg)
			writeError(w, http.StatusInternalServerError, msg)
		}()
		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware wraps a handler with CORS headers.
// If allowedOrigins is empty, no CORS header is set (same-origin only).
// Otherwise, the request Origin is checked against the allowed list.
func CORSMiddleware(next http.Handler, allowedOrigins ...string) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if len(allowedOrigins) > 0 && origin != "" && (allowed[origin] || allowed["*"]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, x-api-key")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg})
}
