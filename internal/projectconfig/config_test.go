package projectconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tartakovsky/prompttester/internal/models"
)

func TestNew_ReturnsAllDefaults(t *testing.T) {
	cfg := New()

	assertEqualInt(t, "Server.Port", DefaultServerPort, cfg.Server.Port)
	if len(cfg.Server.AllowedOrigins) != 0 {
		t.Errorf("Server.AllowedOrigins = %v, want empty", cfg.Server.AllowedOrigins)
	}

	assertEqual(t, "Defaults.Mode", "plain", string(cfg.Defaults.Mode))
	assertFloatPtr(t, "Defaults.Temperature", 0.7, cfg.Defaults.Temperature)
	assertEqualInt(t, "Defaults.MaxTokens", 4096, cfg.Defaults.MaxTokens)
	assertEqualInt(t, "Defaults.Timeout", 300, cfg.Defaults.Timeout)
	assertBoolPtr(t, "Defaults.SessionLog", false, cfg.Defaults.SessionLog)

	if cfg.Thresholds.Like != 0.5 || cfg.Thresholds.Comment != 0.7 || cfg.Thresholds.Share != 0.9 || cfg.Thresholds.Save != 0.8 {
		t.Errorf("Thresholds = %+v, want defaults", cfg.Thresholds)
	}

	assertEqual(t, "Store.Backend", "sqlite", cfg.Store.Backend)
	assertEqual(t, "Store.Path", ".prompttester/store.db", cfg.Store.Path)
	assertEqual(t, "Relay.URL", "", cfg.Relay.URL)
	assertEqual(t, "OpenRouter.BaseURL", DefaultOpenRouterBaseURL, cfg.OpenRouter.BaseURL)
	assertEqual(t, "Path", "", cfg.Path)

	if got := cfg.RunTimeout(); got != 5*time.Minute {
		t.Errorf("RunTimeout() = %v, want 5m", got)
	}
}

func TestLoad_FullConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".prompttester.yaml", `server:
  port: 8080
  allowed_origins:
    - http://localhost:5173
defaults:
  mode: scorer
  temperature: 0
  max_tokens: 1024
  timeout: 60
  models:
    - openai/gpt-5.2-chat
  session_log: true
thresholds:
  like: 0.4
  save: 0.95
store:
  backend: dir
  path: /tmp/pt-cache
relay:
  url: http://127.0.0.1:3000
openrouter:
  base_url: http://localhost:9999/v1
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	assertEqualInt(t, "Server.Port", 8080, cfg.Server.Port)
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "http://localhost:5173" {
		t.Errorf("Server.AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	assertEqual(t, "Defaults.Mode", "scorer", string(cfg.Defaults.Mode))
	assertFloatPtr(t, "Defaults.Temperature", 0, cfg.Defaults.Temperature)
	assertEqualInt(t, "Defaults.MaxTokens", 1024, cfg.Defaults.MaxTokens)
	assertEqualInt(t, "Defaults.Timeout", 60, cfg.Defaults.Timeout)
	if len(cfg.Defaults.Models) != 1 || cfg.Defaults.Models[0] != "openai/gpt-5.2-chat" {
		t.Errorf("Defaults.Models = %v", cfg.Defaults.Models)
	}
	assertBoolPtr(t, "Defaults.SessionLog", true, cfg.Defaults.SessionLog)

	// Unset thresholds keep their defaults.
	if cfg.Thresholds.Like != 0.4 || cfg.Thresholds.Comment != 0.7 || cfg.Thresholds.Share != 0.9 || cfg.Thresholds.Save != 0.95 {
		t.Errorf("Thresholds = %+v", cfg.Thresholds)
	}

	assertEqual(t, "Store.Backend", "dir", cfg.Store.Backend)
	assertEqual(t, "Store.Path", "/tmp/pt-cache", cfg.Store.Path)
	assertEqual(t, "Relay.URL", "http://127.0.0.1:3000", cfg.Relay.URL)
	assertEqual(t, "OpenRouter.BaseURL", "http://localhost:9999/v1", cfg.OpenRouter.BaseURL)
	assertEqual(t, "Path", filepath.Join(dir, ".prompttester.yaml"), cfg.Path)

	if got := cfg.RunTimeout(); got != time.Minute {
		t.Errorf("RunTimeout() = %v, want 1m", got)
	}
}

func TestLoad_TOML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".prompttester.toml", `[server]
port = 4000

[defaults]
mode = "commenter"
max_tokens = 256

[thresholds]
share = 0.85
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	assertEqualInt(t, "Server.Port", 4000, cfg.Server.Port)
	assertEqual(t, "Defaults.Mode", "commenter", string(cfg.Defaults.Mode))
	assertEqualInt(t, "Defaults.MaxTokens", 256, cfg.Defaults.MaxTokens)
	assertFloatPtr(t, "Defaults.Temperature", 0.7, cfg.Defaults.Temperature)
	if cfg.Thresholds.Share != 0.85 || cfg.Thresholds.Like != 0.5 {
		t.Errorf("Thresholds = %+v", cfg.Thresholds)
	}
}

func TestLoad_ZeroThresholds(t *testing.T) {
	for name, content := range map[string]string{
		".prompttester.yaml": "thresholds:\n  like: 0\n  save: 0.6\n",
		".prompttester.toml": "[thresholds]\nlike = 0.0\nsave = 0.6\n",
	} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, name, content)

			cfg, err := Load(dir)
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			want := models.Thresholds{Like: 0, Comment: 0.7, Share: 0.9, Save: 0.6}
			if cfg.Thresholds != want {
				t.Errorf("Thresholds = %+v, want %+v", cfg.Thresholds, want)
			}
		})
	}
}

func TestLoad_YAMLPreferredOverTOML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".prompttester.yaml", "server:\n  port: 1111\n")
	writeFile(t, dir, ".prompttester.toml", "[server]\nport = 2222\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	assertEqualInt(t, "Server.Port", 1111, cfg.Server.Port)
}

func TestLoad_PartialConfig_KeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".prompttester.yml", "relay:\n  url: http://relay.local\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	assertEqual(t, "Relay.URL", "http://relay.local", cfg.Relay.URL)
	assertEqualInt(t, "Server.Port", DefaultServerPort, cfg.Server.Port)
	assertEqual(t, "Store.Backend", DefaultStoreBackend, cfg.Store.Backend)
	assertEqualInt(t, "Defaults.Timeout", DefaultTimeout, cfg.Defaults.Timeout)
}

func TestLoad_MissingFile_ReturnsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	assertEqualInt(t, "Server.Port", DefaultServerPort, cfg.Server.Port)
	assertEqual(t, "Path", "", cfg.Path)
}

func TestLoad_InvalidYAML_ReturnsError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".prompttester.yaml", "server: [unclosed\n")

	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_InvalidTOML_ReturnsError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".prompttester.toml", "[server\nport = \n")

	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for invalid TOML")
	}
}

func TestLoad_RejectsUnknownValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "mode", content: "defaults:\n  mode: grader\n"},
		{name: "store backend", content: "store:\n  backend: redis\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, ".prompttester.yaml", tt.content)
			if _, err := Load(dir); err == nil {
				t.Fatalf("expected error for %s", tt.name)
			}
		})
	}
}

func TestLoad_WalksUpDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".prompttester.yaml", "server:\n  port: 9090\n")

	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(nested)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	assertEqualInt(t, "Server.Port", 9090, cfg.Server.Port)
	assertEqual(t, "Path", filepath.Join(root, ".prompttester.yaml"), cfg.Path)
}

func TestLoad_StopsAfterMaxLevels(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".prompttester.yaml", "server:\n  port: 9090\n")

	parts := []string{root}
	for i := 0; i < maxWalkUp; i++ {
		parts = append(parts, "d")
	}
	deep := filepath.Join(parts...)
	if err := os.MkdirAll(deep, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(deep)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	assertEqualInt(t, "Server.Port", DefaultServerPort, cfg.Server.Port)
}

func TestBoolPointerFields(t *testing.T) {
	t.Run("explicit false overrides", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, ".prompttester.yaml", "defaults:\n  session_log: false\n")
		cfg, err := Load(dir)
		if err != nil {
			t.Fatalf("Load() error: %v", err)
		}
		assertBoolPtr(t, "Defaults.SessionLog", false, cfg.Defaults.SessionLog)
	})

	t.Run("explicit true overrides", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, ".prompttester.yaml", "defaults:\n  session_log: true\n")
		cfg, err := Load(dir)
		if err != nil {
			t.Fatalf("Load() error: %v", err)
		}
		assertBoolPtr(t, "Defaults.SessionLog", true, cfg.Defaults.SessionLog)
	})
}

// --- test helpers ---

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func assertEqual(t *testing.T, field, want, got string) {
	t.Helper()
	if got != want {
		t.Errorf("%s = %q, want %q", field, got, want)
	}
}

func assertEqualInt(t *testing.T, field string, want, got int) {
	t.Helper()
	if got != want {
		t.Errorf("%s = %d, want %d", field, got, want)
	}
}

func assertFloatPtr(t *testing.T, field string, want float64, got *float64) {
	t.Helper()
	if got == nil {
		t.Errorf("%s is nil, want *%v", field, want)
		return
	}
	if *got != want {
		t.Errorf("%s = %v, want %v", field, *got, want)
	}
}

func assertBoolPtr(t *testing.T, field string, want bool, got *bool) {
	t.Helper()
	if got == nil {
		t.Errorf("%s is nil, want *%v", field, want)
		return
	}
	if *got != want {
		t.Errorf("%s = %v, want %v", field, *got, want)
	}
}
