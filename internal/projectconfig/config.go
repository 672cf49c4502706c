// Package projectconfig provides the ProjectConfig struct and loader for
// .prompttester.yaml / .prompttester.toml project-level configuration files.
package projectconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/tartakovsky/prompttester/internal/models"
	"gopkg.in/yaml.v3"
)

// Default values for project configuration. These are the single source of
// truth: New() references them and no other code should duplicate them.
const (
	DefaultServerPort = 3000

	DefaultMode        = models.ModePlain
	DefaultTemperature = models.DefaultTemperature
	DefaultMaxTokens   = 4096
	DefaultTimeout     = 300

	DefaultStoreBackend = "sqlite"
	DefaultStorePath    = ".prompttester/store.db"

	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreDir    = "dir"
)

// configNames are tried in order at each directory level.
var configNames = []string{".prompttester.yaml", ".prompttester.yml", ".prompttester.toml"}

// maxWalkUp bounds how many parent directories Load searches.
const maxWalkUp = 10

// ServerConfig holds relay server settings.
type ServerConfig struct {
	Port           int      `yaml:"port,omitempty" toml:"port,omitempty"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty" toml:"allowed_origins,omitempty"`
}

// DefaultsConfig holds default run parameters.
type DefaultsConfig struct {
	Mode        models.Mode `yaml:"mode,omitempty" toml:"mode,omitempty"`
	Temperature *float64    `yaml:"temperature,omitempty" toml:"temperature,omitempty"`
	MaxTokens   int         `yaml:"max_tokens,omitempty" toml:"max_tokens,omitempty"`
	Timeout     int         `yaml:"timeout,omitempty" toml:"timeout,omitempty"`
	Models      []string    `yaml:"models,omitempty" toml:"models,omitempty"`
	SessionLog  *bool       `yaml:"session_log,omitempty" toml:"session_log,omitempty"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend string `yaml:"backend,omitempty" toml:"backend,omitempty"`
	Path    string `yaml:"path,omitempty" toml:"path,omitempty"`
}

// RelayConfig points the CLI at a running relay. An empty URL evaluates in-process.
type RelayConfig struct {
	URL string `yaml:"url,omitempty" toml:"url,omitempty"`
}

// OpenRouterConfig holds upstream settings. The API key is never read from
// config files; it comes from OPENROUTER_API_KEY.
type OpenRouterConfig struct {
	BaseURL string `yaml:"base_url,omitempty" toml:"base_url,omitempty"`
}

// ProjectConfig is the top-level configuration.
type ProjectConfig struct {
	Server     ServerConfig      `yaml:"server,omitempty" toml:"server,omitempty"`
	Defaults   DefaultsConfig    `yaml:"defaults,omitempty" toml:"defaults,omitempty"`
	Thresholds models.Thresholds `yaml:"thresholds,omitempty" toml:"thresholds,omitempty"`
	Store      StoreConfig       `yaml:"store,omitempty" toml:"store,omitempty"`
	Relay      RelayConfig       `yaml:"relay,omitempty" toml:"relay,omitempty"`
	OpenRouter OpenRouterConfig  `yaml:"openrouter,omitempty" toml:"openrouter,omitempty"`

	// Path is the file the configuration was read from, or empty for defaults.
	Path string `yaml:"-" toml:"-"`
}

// New returns a ProjectConfig with all hard-coded defaults populated.
func New() *ProjectConfig {
	return &ProjectConfig{
		Server: ServerConfig{
			Port: DefaultServerPort,
		},
		Defaults: DefaultsConfig{
			Mode:        DefaultMode,
			Temperature: float64Ptr(DefaultTemperature),
			MaxTokens:   DefaultMaxTokens,
			Timeout:     DefaultTimeout,
			SessionLog:  boolPtr(false),
		},
		Thresholds: models.DefaultThresholds(),
		Store: StoreConfig{
			Backend: DefaultStoreBackend,
			Path:    DefaultStorePath,
		},
		OpenRouter: OpenRouterConfig{
			BaseURL: DefaultOpenRouterBaseURL,
		},
	}
}

// Load finds a project config file by walking up from startDir (max 10
// levels), unmarshals it, and fills in missing fields with defaults.
// If no config file is found, returns defaults with a nil error.
// Real I/O errors (e.g. permission denied) are returned to the caller.
func Load(startDir string) (*ProjectConfig, error) {
	cfg := New()

	path, data, err := findConfigFile(startDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil // no file found → return defaults
		}
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	// Thresholds start from the defaults so a file may set any of them to 0.
	fileCfg := ProjectConfig{Thresholds: models.DefaultThresholds()}
	if filepath.Ext(path) == ".toml" {
		err = toml.Unmarshal(data, &fileCfg)
	} else {
		err = yaml.Unmarshal(data, &fileCfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if fileCfg.Defaults.Mode != "" {
		if _, err := models.ParseMode(string(fileCfg.Defaults.Mode)); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	if fileCfg.Store.Backend != "" && fileCfg.Store.Backend != StoreSQLite && fileCfg.Store.Backend != StoreDir {
		return nil, fmt.Errorf("%s: unknown store backend %q (expected sqlite or dir)", path, fileCfg.Store.Backend)
	}

	// Merge file values onto defaults.
	mergeConfig(cfg, &fileCfg)
	cfg.Path = path
	return cfg, nil
}

// RunTimeout returns the run timeout as a duration.
func (c *ProjectConfig) RunTimeout() time.Duration {
	return time.Duration(c.Defaults.Timeout) * time.Second
}

// findConfigFile walks up from dir looking for a config file (max 10 levels).
// Returns os.ErrNotExist if no config file is found. Propagates real I/O
// errors (e.g. permission denied) instead of silently swallowing them.
func findConfigFile(dir string) (string, []byte, error) {
	// Convert to absolute path so filepath.Dir(".") walks correctly.
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", nil, fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for i := 0; i < maxWalkUp; i++ {
		for _, name := range configNames {
			p := filepath.Join(dir, name)
			data, err := os.ReadFile(p)
			if err == nil {
				return p, data, nil
			}
			if !errors.Is(err, os.ErrNotExist) {
				return "", nil, fmt.Errorf("reading %q: %w", p, err)
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached filesystem root
		}
		dir = parent
	}
	return "", nil, os.ErrNotExist
}

// mergeConfig overlays non-zero values from src onto dst.
func mergeConfig(dst, src *ProjectConfig) {
	// Server
	if src.Server.Port != 0 {
		dst.Server.Port = src.Server.Port
	}
	if len(src.Server.AllowedOrigins) > 0 {
		dst.Server.AllowedOrigins = src.Server.AllowedOrigins
	}

	// Defaults
	if src.Defaults.Mode != "" {
		dst.Defaults.Mode = src.Defaults.Mode
	}
	if src.Defaults.Temperature != nil {
		dst.Defaults.Temperature = src.Defaults.Temperature
	}
	if src.Defaults.MaxTokens != 0 {
		dst.Defaults.MaxTokens = src.Defaults.MaxTokens
	}
	if src.Defaults.Timeout != 0 {
		dst.Defaults.Timeout = src.Defaults.Timeout
	}
	if len(src.Defaults.Models) > 0 {
		dst.Defaults.Models = src.Defaults.Models
	}
	if src.Defaults.SessionLog != nil {
		dst.Defaults.SessionLog = src.Defaults.SessionLog
	}

	// Thresholds were decoded over the defaults; 0 is a real value.
	dst.Thresholds = src.Thresholds

	// Store
	if src.Store.Backend != "" {
		dst.Store.Backend = src.Store.Backend
	}
	if src.Store.Path != "" {
		dst.Store.Path = src.Store.Path
	}

	// Relay
	if src.Relay.URL != "" {
		dst.Relay.URL = src.Relay.URL
	}

	// OpenRouter
	if src.OpenRouter.BaseURL != "" {
		dst.OpenRouter.BaseURL = src.OpenRouter.BaseURL
	}
}

func boolPtr(b bool) *bool {
	return &b
}

func float64Ptr(f float64) *float64 {
	return &f
}
