package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is looked up in the workspace root when no path is given.
const DefaultConfigFile = "lmctx.yaml"

// Config holds all lmctx configuration.
type Config struct {
	// Model server
	Endpoint    string  `yaml:"endpoint"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	Timeout     string  `yaml:"timeout"`
	Retries     int     `yaml:"retries"`

	// Editor integration
	DebounceMs    int  `yaml:"debounce_ms"`
	ContextLines  int  `yaml:"context_lines"`
	InlineEnabled bool `yaml:"inline_enabled"`

	// Context assembly
	MaxFileReadChars int         `yaml:"max_file_read_chars"`
	World            WorldConfig `yaml:"world"`

	// Budget discovery
	Budget BudgetConfig `yaml:"budget"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Endpoint:    "http://127.0.0.1:1234",
		Model:       "",
		MaxTokens:   512,
		Temperature: 0.7,
		Timeout:     "60s",
		Retries:     1,

		DebounceMs:    500,
		ContextLines:  50,
		InlineEnabled: false,

		MaxFileReadChars: 1200,
		World:            DefaultWorldConfig(),

		Budget: DefaultBudgetConfig(),

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.normalize()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LMCTX_ENDPOINT"); v != "" {
		c.Endpoint = v
	}
	if v := os.Getenv("LMCTX_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("LMCTX_MAX_FILE_READ_CHARS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxFileReadChars = n
		}
	}
	if v := os.Getenv("LMCTX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// normalize fills zero values a partial YAML file may leave behind.
func (c *Config) normalize() {
	c.Endpoint = strings.TrimRight(strings.TrimSpace(c.Endpoint), "/")
	if c.Endpoint == "" {
		c.Endpoint = DefaultConfig().Endpoint
	}
	c.Model = strings.TrimSpace(c.Model)
	if len(c.Budget.Fallback) == 0 {
		c.Budget.Fallback = DefaultFallbackTable()
	}
	if c.Budget.DefaultChars <= 0 {
		c.Budget.DefaultChars = DefaultBudgetConfig().DefaultChars
	}
	if len(c.World.ExcludedDirs) == 0 {
		c.World.ExcludedDirs = DefaultWorldConfig().ExcludedDirs
	}
	if c.World.ReadWorkers <= 0 {
		c.World.ReadWorkers = DefaultWorldConfig().ReadWorkers
	}
}

// GetTimeout returns the model call timeout as a duration.
func (c *Config) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// GetDebounce returns the inline completion debounce window.
func (c *Config) GetDebounce() time.Duration {
	if c.DebounceMs < 0 {
		return 0
	}
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid endpoint %q: expected scheme://host[:port]", c.Endpoint)
	}
	if c.MaxFileReadChars <= 0 {
		return fmt.Errorf("max_file_read_chars must be > 0")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be > 0")
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must be >= 0")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be within [0, 2]")
	}
	if c.Budget.DefaultChars < MinDefaultChars {
		return fmt.Errorf("budget default_chars must be >= %d", MinDefaultChars)
	}
	for _, f := range c.Budget.Fallback {
		if strings.TrimSpace(f.Family) == "" || f.Chars <= 0 {
			return fmt.Errorf("invalid budget fallback entry %q=%d", f.Family, f.Chars)
		}
	}
	return nil
}

// ResolvePath returns the config path to use for a workspace: explicit wins,
// otherwise lmctx.yaml in the workspace root.
func ResolvePath(explicit, workspace string) string {
	if explicit != "" {
		return explicit
	}
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, DefaultConfigFile)
}
