package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads the configuration from file
func (l *Loader) Load() (*Config, error) {
	configPath := l.configPath
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".deskpilot", "deskpilot.json")
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	// Environment overrides, e.g. DESKPILOT_MODEL_API_KEY.
	v.SetEnvPrefix("DESKPILOT")
	v.AutomaticEnv()

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	// Environment variables win even without a config file on disk.
	if key := os.Getenv("DESKPILOT_MODEL_API_KEY"); key != "" {
		cfg.Model.APIKey = key
	}
	if pw := os.Getenv("DESKPILOT_DESKTOP_PASSWORD"); pw != "" {
		cfg.Desktop.Password = pw
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".deskpilot")
	}

	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "deskpilot.log")
	}
	if cfg.Session.TranscriptDir == "" {
		cfg.Session.TranscriptDir = filepath.Join(cfg.DataDir, "transcripts")
	}

	return cfg, nil
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to determine config path")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("desktop", cfg.Desktop)
	v.Set("model", cfg.Model)
	v.Set("session", cfg.Session)
	v.Set("server", cfg.Server)
	v.Set("logging", cfg.Logging)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".deskpilot", "deskpilot.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
