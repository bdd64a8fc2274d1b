// D-Back - Discord Presence and Chat Relay
// Copyright 2026 NNTin
// SPDX-License-Identifier: MIT
// https://github.com/NNTin/d-back

// Package config loads layered configuration: built-in defaults, an optional
// YAML file, then environment variables. ENV > file > defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/d-back/config.yaml",
	"/etc/d-back/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Provider ProviderConfig `koanf:"provider"`
	Discord  DiscordConfig  `koanf:"discord"`
	Auth     AuthConfig     `koanf:"auth"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig covers the shared HTTP/websocket listener.
type ServerConfig struct {
	Port      int           `koanf:"port" validate:"min=1,max=65535"`
	Host      string        `koanf:"host" validate:"required"`
	StaticDir string        `koanf:"static_dir"` // "" serves the embedded landing page
	Timeout   time.Duration `koanf:"timeout"`
}

// ProviderConfig selects and paces the data provider.
type ProviderConfig struct {
	// Source selects where room data comes from.
	Source string `koanf:"source" validate:"oneof=mock discord"`

	// Mock simulation pacing.
	PresenceInterval time.Duration `koanf:"presence_interval"`
	MessageInterval  time.Duration `koanf:"message_interval"`
	ChurnInterval    time.Duration `koanf:"churn_interval"`
}

// DiscordConfig covers the live widget-API adapter.
type DiscordConfig struct {
	APIURL       string        `koanf:"api_url" validate:"omitempty,url"`
	Token        string        `koanf:"token"`
	PollInterval time.Duration `koanf:"poll_interval"`
}

// AuthConfig covers OAuth2 token validation for viewers.
type AuthConfig struct {
	Mode     string `koanf:"mode" validate:"oneof=none anonymous reject"`
	APIURL   string `koanf:"api_url" validate:"omitempty,url"`
	ClientID string `koanf:"client_id"`
}

// SecurityConfig covers the HTTP hardening knobs.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig covers log output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all defaults applied. These are layered
// first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      3000,
			Host:      "0.0.0.0",
			StaticDir: "",
			Timeout:   30 * time.Second,
		},
		Provider: ProviderConfig{
			Source:           "mock",
			PresenceInterval: 4 * time.Second,
			MessageInterval:  5 * time.Second,
			ChurnInterval:    20 * time.Second,
		},
		Discord: DiscordConfig{
			APIURL:       "https://discord.com/api",
			Token:        "",
			PollInterval: 30 * time.Second,
		},
		Auth: AuthConfig{
			Mode:     "none",
			APIURL:   "https://discord.com/api",
			ClientID: "",
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{"*"},
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from layered sources:
//  1. Defaults: built-in values
//  2. Config file: optional YAML (CONFIG_PATH or the default search paths)
//  3. Environment variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks field constraints and the static directory.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.Server.StaticDir != "" {
		stat, err := os.Stat(c.Server.StaticDir)
		if err != nil {
			return fmt.Errorf("static dir %s: %w", c.Server.StaticDir, err)
		}
		if !stat.IsDir() {
			return fmt.Errorf("static dir %s is not a directory", c.Server.StaticDir)
		}
	}

	if c.Provider.Source == "discord" && c.Discord.APIURL == "" {
		return fmt.Errorf("discord provider requires discord.api_url")
	}
	if c.Auth.Mode != "none" && c.Auth.APIURL == "" {
		return fmt.Errorf("auth mode %s requires auth.api_url", c.Auth.Mode)
	}

	return nil
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// findConfigFile searches for a config file, honoring CONFIG_PATH first.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths defines which config paths are parsed as comma-separated
// slices when they arrive from the environment.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated env values to slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
//
// Examples:
//   - PORT -> server.port
//   - STATIC_DIR -> server.static_dir
//   - DISCORD_CLIENT_ID -> auth.client_id
//   - PROVIDER -> provider.source
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"port":       "server.port",
		"host":       "server.host",
		"static_dir": "server.static_dir",
		"timeout":    "server.timeout",

		"provider":          "provider.source",
		"presence_interval": "provider.presence_interval",
		"message_interval":  "provider.message_interval",
		"churn_interval":    "provider.churn_interval",

		"discord_api_url":       "discord.api_url",
		"discord_token":         "discord.token",
		"discord_poll_interval": "discord.poll_interval",

		"auth_mode":         "auth.mode",
		"oauth_api_url":     "auth.api_url",
		"discord_client_id": "auth.client_id",

		"cors_origins":        "security.cors_origins",
		"rate_limit_reqs":     "security.rate_limit_reqs",
		"rate_limit_window":   "security.rate_limit_window",
		"rate_limit_disabled": "security.rate_limit_disabled",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	// Unknown variables are ignored rather than polluting the tree.
	return ""
}
