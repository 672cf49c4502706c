package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/tartakovsky/prompttester/internal/orchestration"
	"github.com/tartakovsky/prompttester/internal/projectconfig"
	"github.com/tartakovsky/prompttester/internal/webapi"
	"github.com/tartakovsky/prompttester/internal/webserver"
)

func newServeCommand() *cobra.Command {
	var (
		port           int
		allowedOrigins []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the evaluation relay",
		Long: `Start the evaluation relay on 127.0.0.1.

The relay exposes:
  GET  /api/health    Liveness and version
  GET  /api/models    OpenRouter models with per-token prices
  POST /api/evaluate  Run one prompt across a model x input grid

Clients pass their OpenRouter key in the x-api-key header. When the header is
absent the relay falls back to $` + apiKeyEnv + `.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadProjectConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if len(allowedOrigins) > 0 {
				cfg.Server.AllowedOrigins = allowedOrigins
			}

			srv, err := newRelayServer(cfg, os.Getenv(apiKeyEnv), slog.Default())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			fmt.Fprintf(cmd.ErrOrStderr(), "Relay listening on http://%s\n", srv.Addr()) //nolint:errcheck
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", projectconfig.DefaultServerPort, "Port to listen on")
	cmd.Flags().StringSliceVar(&allowedOrigins, "allow-origin", nil, "Origin allowed to call the relay from a browser (repeatable, * for any)")

	return cmd
}

// newRelayServer wires the upstream client, the evaluator and the HTTP layer.
func newRelayServer(cfg *projectconfig.ProjectConfig, defaultKey string, logger *slog.Logger) (*webserver.Server, error) {
	client := newUpstreamClient(cfg)
	return webserver.New(webserver.Config{
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
		API: webapi.Config{
			Evaluator: orchestration.NewEvaluator(client,
				orchestration.WithMaxTokens(cfg.Defaults.MaxTokens),
				orchestration.WithLogger(logger)),
			Catalog:       client,
			DefaultAPIKey: defaultKey,
			Logger:        logger,
		},
	})
}
