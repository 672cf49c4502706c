package webserver

import (
	"encoding/json"
	"net/http"

	"github.com/tartakovsky/prompttester/internal/webapi"
)

// registerRoutes sets up the relay API on the given mux and returns the
// handler chain to serve.
func registerRoutes(mux *http.ServeMux, cfg Config) http.Handler {
	api := cfg.API
	if api.Logger == nil {
		api.Logger = cfg.Logger
	}
	webapi.RegisterRoutes(mux, api)
	mux.HandleFunc("/api/", handleAPINotFound)

	return webapi.CORSMiddleware(mux, cfg.AllowedOrigins...)
}

// handleAPINotFound returns a JSON 404 for unknown API endpoints.
func handleAPINotFound(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(map[string]string{"error": "not found"}) //nolint:errcheck
}
