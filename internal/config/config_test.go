// Tagsight - RFID Tag Read Ingestion and Live Analytics
// Copyright 2026 Tagsight Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tagsight/tagsight

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load with defaults: %v", err)
	}

	if cfg.Broker.URL != "tcp://127.0.0.1:1883" {
		t.Errorf("Expected default broker URL, got %q", cfg.Broker.URL)
	}
	if cfg.Broker.QoS != 1 {
		t.Errorf("Expected QoS 1, got %d", cfg.Broker.QoS)
	}
	if cfg.Server.Port != 8090 {
		t.Errorf("Expected port 8090, got %d", cfg.Server.Port)
	}
	if cfg.Settings.RetentionDays != 90 {
		t.Errorf("Expected retention 90 days, got %d", cfg.Settings.RetentionDays)
	}
	if cfg.Aggregation.RefreshInterval != 30*time.Second {
		t.Errorf("Expected 30s refresh, got %s", cfg.Aggregation.RefreshInterval)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
broker:
  url: wss://broker.example.com:443/mqtt
  client_id: tagsight-dock
  topics:
    - rfid/readers/dock/tags
    - rfid/readers/gate/tags
server:
  port: 9000
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("Write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Broker.URL != "wss://broker.example.com:443/mqtt" {
		t.Errorf("Expected file broker URL, got %q", cfg.Broker.URL)
	}
	if len(cfg.Broker.Topics) != 2 {
		t.Errorf("Expected 2 topics from file, got %v", cfg.Broker.Topics)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Expected port 9000 from file, got %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected debug level from file, got %q", cfg.Logging.Level)
	}
	// Sections the file does not mention keep their defaults.
	if cfg.Database.MaxMemory != "1GB" {
		t.Errorf("Expected default max memory, got %q", cfg.Database.MaxMemory)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o600); err != nil {
		t.Fatalf("Write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("TAGSIGHT_HTTP_PORT", "9200")
	t.Setenv("TAGSIGHT_LOG_LEVEL", "warn")
	t.Setenv("TAGSIGHT_BROKER_TOPICS", "rfid/a/tags, rfid/b/tags")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9200 {
		t.Errorf("Expected env port 9200 to win over file, got %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Expected env level warn, got %q", cfg.Logging.Level)
	}
	if len(cfg.Broker.Topics) != 2 || cfg.Broker.Topics[0] != "rfid/a/tags" {
		t.Errorf("Expected comma-separated topics split, got %v", cfg.Broker.Topics)
	}
}

func TestUnmappedEnvIgnored(t *testing.T) {
	t.Setenv("TAGSIGHT_SOMETHING_UNRELATED", "value")

	if _, err := Load(); err != nil {
		t.Fatalf("Load with stray env var: %v", err)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"BadBrokerScheme", func(c *Config) { c.Broker.URL = "mqtt://host:1883" }},
		{"EmptyBrokerURL", func(c *Config) { c.Broker.URL = "" }},
		{"NoTopics", func(c *Config) { c.Broker.Topics = nil }},
		{"BlankTopic", func(c *Config) { c.Broker.Topics = []string{"  "} }},
		{"QoSTooHigh", func(c *Config) { c.Broker.QoS = 3 }},
		{"PortOutOfRange", func(c *Config) { c.Server.Port = 70000 }},
		{"UnknownLogLevel", func(c *Config) { c.Logging.Level = "verbose" }},
		{"ZeroRetention", func(c *Config) { c.Settings.RetentionDays = 0 }},
		{"BackoffInverted", func(c *Config) {
			c.Broker.ReconnectInitialDelay = time.Minute
			c.Broker.ReconnectMaxDelay = time.Second
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}
