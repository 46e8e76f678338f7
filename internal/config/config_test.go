package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Model.APIKey = "sk-test"
	cfg.Desktop.Host = "10.0.0.5"
	cfg.Desktop.Password = "hunter2"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "remote", cfg.Desktop.Backend)
	assert.Equal(t, 5900, cfg.Desktop.Port)
	assert.Equal(t, "anthropic", cfg.Model.Provider)
	assert.Equal(t, 3, cfg.Model.MaxRetries)
	assert.Equal(t, 20, cfg.Model.HistoryLimit)
	assert.Equal(t, 30, cfg.Session.IdleTimeoutMin)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Logging.Redaction)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"local backend without credentials", func(c *Config) {
			c.Desktop = DesktopConfig{Backend: "local"}
		}, ""},
		{"bad backend", func(c *Config) { c.Desktop.Backend = "vnc" }, "invalid desktop backend"},
		{"remote without command", func(c *Config) { c.Desktop.Command = "" }, "desktop command is required"},
		{"bad provider", func(c *Config) { c.Model.Provider = "gemini" }, "invalid model provider"},
		{"missing model name", func(c *Config) { c.Model.Name = "" }, "model name is required"},
		{"missing api key", func(c *Config) { c.Model.APIKey = "" }, "api_key is required"},
		{"bad port", func(c *Config) { c.Server.Port = -1 }, "invalid server port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_Warnings(t *testing.T) {
	cfg := validConfig()
	assert.Empty(t, cfg.Warnings())

	// Missing remote credentials warn but do not fail validation.
	cfg.Desktop.Host = ""
	cfg.Desktop.Password = ""
	warnings := cfg.Warnings()
	assert.Len(t, warnings, 2)
	assert.NoError(t, cfg.Validate())

	cfg.Desktop.Backend = "local"
	assert.Empty(t, cfg.Warnings())
}

func TestConfig_StringRedactsSecrets(t *testing.T) {
	cfg := validConfig()

	s := cfg.String()
	assert.NotContains(t, s, "sk-test")
	assert.NotContains(t, s, "hunter2")
	assert.Contains(t, s, "[REDACTED]")

	// The config itself is untouched.
	assert.Equal(t, "sk-test", cfg.Model.APIKey)
}
