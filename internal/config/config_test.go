// D-Back - Discord Presence and Chat Relay
// Copyright 2026 NNTin
// SPDX-License-Identifier: MIT
// https://github.com/NNTin/d-back

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Shield against ambient overrides from the test environment.
	for _, key := range []string{"PORT", "HOST", "PROVIDER", "LOG_LEVEL"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("expected default port 3000, got %d", cfg.Server.Port)
	}
	if cfg.Provider.Source != "mock" {
		t.Errorf("expected mock provider by default, got %q", cfg.Provider.Source)
	}
	if cfg.Auth.Mode != "none" {
		t.Errorf("expected auth mode none by default, got %q", cfg.Auth.Mode)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging defaults: %+v", cfg.Logging)
	}
	if cfg.Addr() != "0.0.0.0:3000" {
		t.Errorf("unexpected default addr %q", cfg.Addr())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "5555")
	t.Setenv("PROVIDER", "discord")
	t.Setenv("DISCORD_API_URL", "http://localhost:9999/api")
	t.Setenv("DISCORD_POLL_INTERVAL", "10s")
	t.Setenv("AUTH_MODE", "anonymous")
	t.Setenv("OAUTH_API_URL", "http://localhost:9999/api")
	t.Setenv("DISCORD_CLIENT_ID", "client-123")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CORS_ORIGINS", "https://nntin.github.io, http://localhost:8080")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != 5555 {
		t.Errorf("PORT override ignored, got %d", cfg.Server.Port)
	}
	if cfg.Provider.Source != "discord" {
		t.Errorf("PROVIDER override ignored, got %q", cfg.Provider.Source)
	}
	if cfg.Discord.PollInterval != 10*time.Second {
		t.Errorf("DISCORD_POLL_INTERVAL override ignored, got %v", cfg.Discord.PollInterval)
	}
	if cfg.Auth.Mode != "anonymous" || cfg.Auth.ClientID != "client-123" {
		t.Errorf("auth overrides ignored: %+v", cfg.Auth)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("LOG_LEVEL override ignored, got %q", cfg.Logging.Level)
	}
	want := []string{"https://nntin.github.io", "http://localhost:8080"}
	if len(cfg.Security.CORSOrigins) != 2 || cfg.Security.CORSOrigins[0] != want[0] || cfg.Security.CORSOrigins[1] != want[1] {
		t.Errorf("CORS_ORIGINS not split, got %v", cfg.Security.CORSOrigins)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("server:\n  port: 4242\nlogging:\n  level: warn\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != 4242 {
		t.Errorf("config file port ignored, got %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("config file log level ignored, got %q", cfg.Logging.Level)
	}

	// Env still wins over the file.
	t.Setenv("PORT", "4243")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != 4243 {
		t.Errorf("env should override file, got %d", cfg.Server.Port)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"port out of range":   func(c *Config) { c.Server.Port = 0 },
		"bad provider source": func(c *Config) { c.Provider.Source = "csv" },
		"bad auth mode":       func(c *Config) { c.Auth.Mode = "maybe" },
		"bad log level":       func(c *Config) { c.Logging.Level = "verbose" },
		"bad log format":      func(c *Config) { c.Logging.Format = "xml" },
		"missing static dir":  func(c *Config) { c.Server.StaticDir = "/does/not/exist" },
		"auth without api url": func(c *Config) {
			c.Auth.Mode = "reject"
			c.Auth.APIURL = ""
		},
	}

	for name, mutate := range cases {
		cfg := defaultConfig()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestValidateAcceptsStaticDir(t *testing.T) {
	cfg := defaultConfig()
	cfg.Server.StaticDir = t.TempDir()
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid static dir rejected: %v", err)
	}
}
