package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main Deskpilot configuration
type Config struct {
	// Desktop backend
	Desktop DesktopConfig `json:"desktop" mapstructure:"desktop"`

	// Model provider
	Model ModelConfig `json:"model" mapstructure:"model"`

	// Session lifecycle
	Session SessionConfig `json:"session" mapstructure:"session"`

	// Chat server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// DesktopConfig selects and configures the desktop control backend.
type DesktopConfig struct {
	// Backend is "remote" (spawn a tool server subprocess) or "local".
	Backend string `json:"backend" mapstructure:"backend"`

	// Command and Args launch the tool server when Backend is "remote".
	Command string   `json:"command" mapstructure:"command"`
	Args    []string `json:"args" mapstructure:"args"`

	// Remote desktop credentials, passed to the tool server via its
	// environment.
	Host          string `json:"host" mapstructure:"host"`
	Port          int    `json:"port" mapstructure:"port"`
	Username      string `json:"username" mapstructure:"username"`
	Password      string `json:"password" mapstructure:"password"`
	Encryption    string `json:"encryption" mapstructure:"encryption"`
	VNCTimeoutSec int    `json:"vnc_timeout_sec" mapstructure:"vnc_timeout_sec"`

	RequestTimeoutSec   int `json:"request_timeout_sec" mapstructure:"request_timeout_sec"`
	HandshakeTimeoutSec int `json:"handshake_timeout_sec" mapstructure:"handshake_timeout_sec"`
	SettleDelayMs       int `json:"settle_delay_ms" mapstructure:"settle_delay_ms"`
}

// ModelConfig holds model provider configuration.
type ModelConfig struct {
	Provider       string  `json:"provider" mapstructure:"provider"` // anthropic, openai
	Name           string  `json:"name" mapstructure:"name"`
	APIKey         string  `json:"api_key" mapstructure:"api_key"`
	MaxTokens      int     `json:"max_tokens" mapstructure:"max_tokens"`
	Temperature    float64 `json:"temperature" mapstructure:"temperature"`
	MaxRetries     int     `json:"max_retries" mapstructure:"max_retries"`
	RetryBackoffMs int     `json:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	HistoryLimit   int     `json:"history_limit" mapstructure:"history_limit"`
}

// SessionConfig holds session lifecycle settings.
type SessionConfig struct {
	IdleTimeoutMin          int    `json:"idle_timeout_min" mapstructure:"idle_timeout_min"`
	SweepIntervalMin        int    `json:"sweep_interval_min" mapstructure:"sweep_interval_min"`
	TranscriptDir           string `json:"transcript_dir" mapstructure:"transcript_dir"`
	TranscriptRetentionDays int    `json:"transcript_retention_days" mapstructure:"transcript_retention_days"`
}

// ServerConfig holds chat server configuration.
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values.
func DefaultConfig() *Config {
	return &Config{
		Desktop: DesktopConfig{
			Backend:             "remote",
			Command:             "uvx",
			Args:                []string{"mcp-remote-macos-use"},
			Port:                5900,
			VNCTimeoutSec:       10,
			RequestTimeoutSec:   45,
			HandshakeTimeoutSec: 15,
			SettleDelayMs:       1000,
		},
		Model: ModelConfig{
			Provider:       "anthropic",
			Name:           "claude-sonnet-4-5",
			MaxTokens:      4096,
			Temperature:    0.7,
			MaxRetries:     3,
			RetryBackoffMs: 1000,
			HistoryLimit:   20,
		},
		Session: SessionConfig{
			IdleTimeoutMin:          30,
			SweepIntervalMin:        5,
			TranscriptRetentionDays: 7,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			Redaction: true,
		},
	}
}

// String returns a JSON representation of the config. Secrets are blanked.
func (c *Config) String() string {
	clone := *c
	if clone.Desktop.Password != "" {
		clone.Desktop.Password = "[REDACTED]"
	}
	if clone.Model.APIKey != "" {
		clone.Model.APIKey = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(&clone, "", "  ")
	return string(data)
}

// Validate checks if the configuration is usable. Missing remote
// credentials are not an error here: the local backend does not need
// them, and with the remote backend the tool server reports its own
// connection failure. Warnings returns those soft findings.
func (c *Config) Validate() error {
	switch c.Desktop.Backend {
	case "remote", "local":
	default:
		return fmt.Errorf("invalid desktop backend %q (must be: remote, local)", c.Desktop.Backend)
	}

	if c.Desktop.Backend == "remote" && c.Desktop.Command == "" {
		return fmt.Errorf("desktop command is required for the remote backend")
	}

	switch c.Model.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("invalid model provider %q (must be: anthropic, openai)", c.Model.Provider)
	}
	if c.Model.Name == "" {
		return fmt.Errorf("model name is required")
	}
	if c.Model.APIKey == "" {
		return fmt.Errorf("model api_key is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	return nil
}

// Warnings reports non-fatal configuration gaps.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Desktop.Backend == "remote" {
		if c.Desktop.Host == "" {
			warnings = append(warnings, "desktop host is not set; the tool server will fail to reach the remote desktop")
		}
		if c.Desktop.Password == "" {
			warnings = append(warnings, "desktop password is not set")
		}
	}
	return warnings
}
