// Package config holds all vibeforge configuration, loaded from YAML with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all vibeforge configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Store     StoreConfig     `yaml:"store"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LLMConfig configures the generation collaborator.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"`
}

// SandboxConfig configures command execution.
type SandboxConfig struct {
	Root           string `yaml:"root"`
	CommandTimeout string `yaml:"command_timeout"`
}

// WorkspaceConfig configures project file storage.
type WorkspaceConfig struct {
	Root string `yaml:"root"`
}

// StoreConfig configures the ledger/activity database.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Server:    ServerConfig{Addr: ":8080"},
		LLM:       LLMConfig{Model: "gemini-2.0-flash", Timeout: "90s"},
		Sandbox:   SandboxConfig{Root: "data/sandbox", CommandTimeout: "60s"},
		Workspace: WorkspaceConfig{Root: "data/projects"},
		Store:     StoreConfig{DatabasePath: "data/vibeforge.db"},
		Logging:   LoggingConfig{Level: "info"},
	}
}

// Load reads configuration from path, falling back to defaults when the
// file does not exist. Environment overrides apply last.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.LLM.APIKey = v
	} else if v := os.Getenv("GOOGLE_API_KEY"); v != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("VIBEFORGE_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("VIBEFORGE_DB"); v != "" {
		c.Store.DatabasePath = v
	}
	if v := os.Getenv("VIBEFORGE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) validate() error {
	if _, err := c.CommandTimeout(); err != nil {
		return fmt.Errorf("invalid sandbox.command_timeout: %w", err)
	}
	if _, err := c.GenerationTimeout(); err != nil {
		return fmt.Errorf("invalid llm.timeout: %w", err)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q", c.Logging.Level)
	}
	return nil
}

// CommandTimeout parses the sandbox command timeout.
func (c *Config) CommandTimeout() (time.Duration, error) {
	return parseDuration(c.Sandbox.CommandTimeout, 60*time.Second)
}

// GenerationTimeout parses the generation call timeout.
func (c *Config) GenerationTimeout() (time.Duration, error) {
	return parseDuration(c.LLM.Timeout, 90*time.Second)
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}
