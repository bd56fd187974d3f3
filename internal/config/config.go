// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/safadev/safachat/internal/model"
	"github.com/safadev/safachat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete safachat configuration.
type Config struct {
	Version string `toml:"version"`

	API     APIConfig     `toml:"api"`
	Backend BackendConfig `toml:"backend"`
	Storage StorageConfig `toml:"storage"`
	Log     LogConfig     `toml:"log"`
}

// APIConfig configures the OpenRouter completion API.
type APIConfig struct {
	// OpenRouterKey is the API key. Usually supplied via the
	// OPENROUTER_API_KEY environment variable instead of the file.
	OpenRouterKey string `toml:"openrouter_key"`
	// DefaultModel is the model new chats start with.
	DefaultModel string `toml:"default_model"`
	// ReasoningModels are substrings matched (case-insensitively)
	// against model ids to decide whether to request reasoning deltas.
	ReasoningModels []string `toml:"reasoning_models"`
}

// BackendConfig configures the sync backend.
type BackendConfig struct {
	// URL is the backend base URL. Empty disables sync entirely.
	URL string `toml:"url"`
	// SessionCookie is the value of the backend session cookie.
	SessionCookie string `toml:"session_cookie"`
	// CookieName is the session cookie's name.
	CookieName string `toml:"cookie_name"`
	// UserID identifies the signed-in user for listing and ownership.
	UserID string `toml:"user_id"`
	// UserEmail is informational.
	UserEmail string `toml:"user_email"`
}

// StorageConfig configures the local database.
type StorageConfig struct {
	// DatabasePath overrides the default ~/.safachat/chats.db.
	DatabasePath string `toml:"database_path"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level"`
	// File is an optional log file path; empty logs to stderr.
	File string `toml:"file"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with built-in defaults.
func Default() *Config {
	return &Config{
		Version: "1.0.0",
		API: APIConfig{
			DefaultModel:    model.DefaultModel,
			ReasoningModels: append([]string(nil), model.DefaultReasoningMarkers...),
		},
		Backend: BackendConfig{
			CookieName: "session",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// fillDefaults fills missing values from Default.
func fillDefaults(cfg *Config) {
	defaults := Default()
	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}
	if cfg.API.DefaultModel == "" {
		cfg.API.DefaultModel = defaults.API.DefaultModel
	}
	if len(cfg.API.ReasoningModels) == 0 {
		cfg.API.ReasoningModels = defaults.API.ReasoningModels
	}
	if cfg.Backend.CookieName == "" {
		cfg.Backend.CookieName = defaults.Backend.CookieName
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	if c.Backend.URL != "" && !strings.HasPrefix(c.Backend.URL, "http://") && !strings.HasPrefix(c.Backend.URL, "https://") {
		return fmt.Errorf("backend url %q is not an http(s) URL", c.Backend.URL)
	}
	return nil
}

// ApplyEnvOverrides layers environment variables over file values.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		c.API.OpenRouterKey = v
	}
	if v := os.Getenv("SAFACHAT_MODEL"); v != "" {
		c.API.DefaultModel = v
	}
	if v := os.Getenv("SAFACHAT_BACKEND_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("SAFACHAT_SESSION_COOKIE"); v != "" {
		c.Backend.SessionCookie = v
	}
	if v := os.Getenv("SAFACHAT_USER_ID"); v != "" {
		c.Backend.UserID = v
	}
	if v := os.Getenv("SAFACHAT_DB_PATH"); v != "" {
		c.Storage.DatabasePath = v
	}
	if v := os.Getenv("SAFACHAT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// ReasoningSet builds the model capability set from configuration.
func (c *Config) ReasoningSet() model.ReasoningSet {
	return model.NewReasoningSet(c.API.ReasoningModels)
}

// =============================================================================
// PATHS
// =============================================================================

// Dir returns the safachat configuration directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".safachat"), nil
}

// Path returns the config file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOAD AND SAVE
// =============================================================================

// Load reads the default config file, falling back to defaults when it
// does not exist. Environment overrides apply either way.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath reads and validates the config file at path.
func LoadFromPath(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	fillDefaults(cfg)
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to the default path.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveToPath(cfg, path)
}

// SaveToPath writes the configuration atomically with 0600 permissions;
// the file carries the API key.
func SaveToPath(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# safachat configuration file\n")
	buf.WriteString("# edit with care, or set OPENROUTER_API_KEY and SAFACHAT_* env vars instead\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
