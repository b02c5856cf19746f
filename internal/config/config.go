// Tagsight - RFID Tag Read Ingestion and Live Analytics
// Copyright 2026 Tagsight Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tagsight/tagsight

// Package config loads layered configuration: struct defaults, an
// optional YAML file, then environment overrides. Precedence is
// ENV > file > defaults.
package config

import "time"

// Config is the full process configuration.
type Config struct {
	Broker      BrokerConfig      `koanf:"broker"`
	Database    DatabaseConfig    `koanf:"database"`
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Aggregation AggregationConfig `koanf:"aggregation"`
	Settings    SettingsConfig    `koanf:"settings"`
	Ingest      IngestConfig      `koanf:"ingest"`
}

// BrokerConfig parameterizes the MQTT session to the reader broker.
type BrokerConfig struct {
	URL                   string        `koanf:"url" validate:"required"`
	ClientID              string        `koanf:"client_id" validate:"required"`
	Username              string        `koanf:"username"`
	Password              string        `koanf:"password"`
	Topics                []string      `koanf:"topics" validate:"required,min=1"`
	QoS                   byte          `koanf:"qos" validate:"max=2"`
	ConnectTimeout        time.Duration `koanf:"connect_timeout"`
	MaxReconnectAttempts  int           `koanf:"max_reconnect_attempts" validate:"min=1"`
	ReconnectInitialDelay time.Duration `koanf:"reconnect_initial_delay"`
	ReconnectMaxDelay     time.Duration `koanf:"reconnect_max_delay"`
	MessageBuffer         int           `koanf:"message_buffer" validate:"min=1"`
}

// DatabaseConfig selects the DuckDB store. An empty Path runs in-memory.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads" validate:"min=0"`
}

// ServerConfig parameterizes the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout         time.Duration `koanf:"timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_requests" validate:"min=1"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig mirrors the logging package options.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// AggregationConfig tunes the stats refresher and trend window sizes.
type AggregationConfig struct {
	RefreshInterval time.Duration `koanf:"refresh_interval"`
	DailyDays       int           `koanf:"daily_days" validate:"min=1"`
	HourlyHours     int           `koanf:"hourly_hours" validate:"min=1"`
	WeeklyWeeks     int           `koanf:"weekly_weeks" validate:"min=1"`
}

// SettingsConfig seeds the runtime settings until operators store
// overrides in the database.
type SettingsConfig struct {
	RetentionDays       int `koanf:"retention_days" validate:"min=1"`
	DedupeWindowMinutes int `koanf:"dedupe_window_minutes" validate:"min=1"`
}

// IngestConfig tunes the persistence circuit breaker.
type IngestConfig struct {
	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold" validate:"min=1"`
	BreakerTimeout          time.Duration `koanf:"breaker_timeout"`
}

// defaultConfig returns the built-in defaults, the lowest-precedence
// layer.
func defaultConfig() *Config {
	return &Config{
		Broker: BrokerConfig{
			URL:                   "tcp://127.0.0.1:1883",
			ClientID:              "tagsight-server",
			Topics:                []string{"rfid/readers/+/tags"},
			QoS:                   1,
			ConnectTimeout:        10 * time.Second,
			MaxReconnectAttempts:  10,
			ReconnectInitialDelay: time.Second,
			ReconnectMaxDelay:     time.Minute,
			MessageBuffer:         1024,
		},
		Database: DatabaseConfig{
			Path:      "/data/tagsight.duckdb",
			MaxMemory: "1GB",
			Threads:   0, // 0 = use runtime.NumCPU()
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8090,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Aggregation: AggregationConfig{
			RefreshInterval: 30 * time.Second,
			DailyDays:       30,
			HourlyHours:     24,
			WeeklyWeeks:     12,
		},
		Settings: SettingsConfig{
			RetentionDays:       90,
			DedupeWindowMinutes: 5,
		},
		Ingest: IngestConfig{
			BreakerFailureThreshold: 5,
			BreakerTimeout:          30 * time.Second,
		},
	}
}
