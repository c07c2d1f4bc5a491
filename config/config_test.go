package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/toolbridge/toolbridge/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.Transport != "stdio" {
		t.Errorf("default transport = %q", cfg.Server.Transport)
	}
	if cfg.Claude.MaxIterations != 10 {
		t.Errorf("default max iterations = %d", cfg.Claude.MaxIterations)
	}
	if got := cfg.ToolTimeout(); got != 30*time.Second {
		t.Errorf("default tool timeout = %v", got)
	}
}

func TestLoadWithoutPathUsesDefaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Name != "toolbridge" {
		t.Errorf("name = %q", cfg.Server.Name)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  name: custom-bridge
  transport: sse
  http_addr: localhost:9000
claude:
  model: claude-opus-4-20250514
  max_iterations: 5
log:
  level: debug
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Name != "custom-bridge" {
		t.Errorf("name = %q", cfg.Server.Name)
	}
	if cfg.Server.Transport != "sse" {
		t.Errorf("transport = %q", cfg.Server.Transport)
	}
	if cfg.Claude.Model != "claude-opus-4-20250514" {
		t.Errorf("model = %q", cfg.Claude.Model)
	}
	if cfg.Claude.MaxIterations != 5 {
		t.Errorf("max iterations = %d", cfg.Claude.MaxIterations)
	}
	// Values the file does not mention keep their defaults.
	if cfg.Claude.MaxTokens != 4096 {
		t.Errorf("max tokens = %d", cfg.Claude.MaxTokens)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  name: from-file
`)
	t.Setenv("TOOLBRIDGE_SERVER_NAME", "from-env")
	t.Setenv("TOOLBRIDGE_LOG_LEVEL", "error")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Name != "from-env" {
		t.Errorf("name = %q, environment must win over the file", cfg.Server.Name)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestAnthropicAPIKeyFallback(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-fallback")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Claude.APIKey != "sk-fallback" {
		t.Errorf("api key = %q", cfg.Claude.APIKey)
	}

	// The dedicated variable wins over the generic fallback.
	t.Setenv("TOOLBRIDGE_CLAUDE_API_KEY", "sk-specific")
	cfg, err = config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Claude.APIKey != "sk-specific" {
		t.Errorf("api key = %q", cfg.Claude.APIKey)
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*config.Config) {}, wantErr: false},
		{name: "bad transport", mutate: func(c *config.Config) { c.Server.Transport = "grpc" }, wantErr: true},
		{name: "sse without addr", mutate: func(c *config.Config) {
			c.Server.Transport = "sse"
			c.Server.HTTPAddr = ""
		}, wantErr: true},
		{name: "zero max tokens", mutate: func(c *config.Config) { c.Claude.MaxTokens = 0 }, wantErr: true},
		{name: "zero max iterations", mutate: func(c *config.Config) { c.Claude.MaxIterations = 0 }, wantErr: true},
		{name: "negative timeout", mutate: func(c *config.Config) { c.Claude.TimeoutSeconds = -1 }, wantErr: true},
		{name: "temperature too high", mutate: func(c *config.Config) { c.Claude.Temperature = 1.5 }, wantErr: true},
		{name: "temperature zero", mutate: func(c *config.Config) { c.Claude.Temperature = 0 }, wantErr: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
