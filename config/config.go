// Package config loads server configuration from a YAML file with
// environment variable overrides layered on top.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Claude ClaudeConfig `yaml:"claude"`
	Tools  ToolsConfig  `yaml:"tools"`
	MCP    MCPConfig    `yaml:"mcp"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig identifies the server and selects its transport.
type ServerConfig struct {
	Name      string `yaml:"name" env:"TOOLBRIDGE_SERVER_NAME"`
	Version   string `yaml:"version" env:"TOOLBRIDGE_SERVER_VERSION"`
	Transport string `yaml:"transport" env:"TOOLBRIDGE_TRANSPORT"`
	HTTPAddr  string `yaml:"http_addr" env:"TOOLBRIDGE_HTTP_ADDR"`
}

// ClaudeConfig configures the upstream model integration.
type ClaudeConfig struct {
	APIKey            string  `yaml:"api_key" env:"TOOLBRIDGE_CLAUDE_API_KEY"`
	Model             string  `yaml:"model" env:"TOOLBRIDGE_CLAUDE_MODEL"`
	MaxTokens         int     `yaml:"max_tokens" env:"TOOLBRIDGE_CLAUDE_MAX_TOKENS"`
	Temperature       float64 `yaml:"temperature" env:"TOOLBRIDGE_CLAUDE_TEMPERATURE"`
	BaseURL           string  `yaml:"base_url" env:"TOOLBRIDGE_CLAUDE_BASE_URL"`
	TimeoutSeconds    int     `yaml:"timeout_seconds" env:"TOOLBRIDGE_CLAUDE_TIMEOUT_SECONDS"`
	MaxRetries        int     `yaml:"max_retries" env:"TOOLBRIDGE_CLAUDE_MAX_RETRIES"`
	RequestsPerMinute int     `yaml:"requests_per_minute" env:"TOOLBRIDGE_CLAUDE_REQUESTS_PER_MINUTE"`
	TokensPerMinute   int     `yaml:"tokens_per_minute" env:"TOOLBRIDGE_CLAUDE_TOKENS_PER_MINUTE"`
	MaxIterations     int     `yaml:"max_iterations" env:"TOOLBRIDGE_CLAUDE_MAX_ITERATIONS"`
}

// ToolsConfig configures tool execution.
type ToolsConfig struct {
	DefaultTimeoutSeconds int  `yaml:"default_timeout_seconds" env:"TOOLBRIDGE_TOOLS_DEFAULT_TIMEOUT_SECONDS"`
	EnableExecuteCommand  bool `yaml:"enable_execute_command" env:"TOOLBRIDGE_TOOLS_ENABLE_EXECUTE_COMMAND"`
}

// MCPConfig toggles protocol feature groups.
type MCPConfig struct {
	EnableTools     bool `yaml:"enable_tools" env:"TOOLBRIDGE_MCP_ENABLE_TOOLS"`
	EnableResources bool `yaml:"enable_resources" env:"TOOLBRIDGE_MCP_ENABLE_RESOURCES"`
	EnablePrompts   bool `yaml:"enable_prompts" env:"TOOLBRIDGE_MCP_ENABLE_PROMPTS"`
	EnableLogging   bool `yaml:"enable_logging" env:"TOOLBRIDGE_MCP_ENABLE_LOGGING"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level string `yaml:"level" env:"TOOLBRIDGE_LOG_LEVEL"`
	Path  string `yaml:"path" env:"TOOLBRIDGE_LOG_PATH"`
}

// Default returns the configuration used when no file is provided.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Name:      "toolbridge",
			Version:   "0.1.0",
			Transport: "stdio",
			HTTPAddr:  "localhost:8421",
		},
		Claude: ClaudeConfig{
			Model:             "claude-sonnet-4-20250514",
			MaxTokens:         4096,
			Temperature:       1.0,
			TimeoutSeconds:    120,
			MaxRetries:        3,
			RequestsPerMinute: 50,
			TokensPerMinute:   100000,
			MaxIterations:     10,
		},
		Tools: ToolsConfig{
			DefaultTimeoutSeconds: 30,
			EnableExecuteCommand:  true,
		},
		MCP: MCPConfig{
			EnableTools:     true,
			EnableResources: true,
			EnablePrompts:   true,
			EnableLogging:   true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the config file at path, layering environment overrides on top
// of the file values and built-in defaults. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// envdecode only touches fields whose variables are set, so env always
	// wins over the file.
	if err := envdecode.Decode(&cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return Config{}, fmt.Errorf("failed to decode environment overrides: %w", err)
	}

	// The conventional Anthropic variable is honored when nothing more
	// specific is configured.
	if cfg.Claude.APIKey == "" {
		cfg.Claude.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	switch c.Server.Transport {
	case "stdio", "sse":
	default:
		return fmt.Errorf("invalid transport %q: must be stdio or sse", c.Server.Transport)
	}
	if c.Server.Transport == "sse" && c.Server.HTTPAddr == "" {
		return fmt.Errorf("http_addr is required for the sse transport")
	}
	if c.Claude.MaxTokens < 1 {
		return fmt.Errorf("claude.max_tokens must be positive")
	}
	if c.Claude.Temperature < 0 || c.Claude.Temperature > 1 {
		return fmt.Errorf("claude.temperature must be between 0 and 1")
	}
	if c.Claude.MaxIterations < 1 {
		return fmt.Errorf("claude.max_iterations must be positive")
	}
	if c.Claude.TimeoutSeconds < 1 {
		return fmt.Errorf("claude.timeout_seconds must be positive")
	}
	if c.Tools.DefaultTimeoutSeconds < 1 {
		return fmt.Errorf("tools.default_timeout_seconds must be positive")
	}
	return nil
}

// ToolTimeout returns the default tool budget as a duration.
func (c Config) ToolTimeout() time.Duration {
	return time.Duration(c.Tools.DefaultTimeoutSeconds) * time.Second
}

// ClaudeTimeout returns the upstream HTTP timeout as a duration.
func (c Config) ClaudeTimeout() time.Duration {
	return time.Duration(c.Claude.TimeoutSeconds) * time.Second
}
