package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tartakovsky/prompttester/internal/cache"
	"github.com/tartakovsky/prompttester/internal/openrouter"
	"github.com/tartakovsky/prompttester/internal/projectconfig"
)

var version = "dev"

// apiKeyEnv names the environment variable holding the OpenRouter key.
const apiKeyEnv = "OPENROUTER_API_KEY"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompttester",
		Short: "Compare system prompts across LLMs side by side",
		Long: `prompttester runs one or more system prompts against a grid of
inputs and OpenRouter models, then prints every cell with token usage and
projected monthly cost.

It can evaluate in-process or through a relay started with "prompttester serve".`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	envFile := cmd.PersistentFlags().String("env-file", ".env", "Dotenv file to load before running")
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if *debugLogging {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
		return loadEnvFile(*envFile)
	}

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newNewCommand())
	cmd.AddCommand(newModelsCommand())
	cmd.AddCommand(newSessionsCommand())
	cmd.AddCommand(newStoreCommand())

	return cmd
}

func execute() error {
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}

// loadEnvFile loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	slog.Debug("loaded env file", "path", path)
	return nil
}

// loadProjectConfig reads .prompttester.yaml/.toml from the working directory upwards.
func loadProjectConfig() (*projectconfig.ProjectConfig, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := projectconfig.Load(wd)
	if err != nil {
		return nil, err
	}
	if cfg.Path != "" {
		slog.Debug("loaded project config", "path", cfg.Path)
	}
	return cfg, nil
}

// resolveAPIKey prefers an explicit flag value over the environment.
func resolveAPIKey(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(apiKeyEnv)
}

func newUpstreamClient(cfg *projectconfig.ProjectConfig) *openrouter.Client {
	return openrouter.NewClient(openrouter.WithBaseURL(cfg.OpenRouter.BaseURL))
}

// openStore opens the configured persistence backend. The returned close
// function is never nil.
func openStore(cfg *projectconfig.ProjectConfig) (cache.Store, func(), error) {
	switch cfg.Store.Backend {
	case projectconfig.StoreDir:
		return cache.NewDirStore(cfg.Store.Path, slog.Default()), func() {}, nil
	default:
		store, err := cache.NewSQLiteStore(cfg.Store.Path, slog.Default())
		if err != nil {
			return nil, func() {}, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				slog.Warn("closing store", "error", err)
			}
		}, nil
	}
}
