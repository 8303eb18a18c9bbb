// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package config loads and validates the gateway's own configuration: the
// Redis-compatible backend it proxies, the relay set it listens on, its
// signing identity, and the per-connection defaults handed to new clients.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for one gateway process (§4.11, §5).
type Config struct {
	Environment    string        `yaml:"environment" json:"environment"`
	BackendURL     string        `yaml:"backend_url" json:"backend_url"`
	Namespace      string        `yaml:"namespace" json:"namespace"`
	Relays         []string      `yaml:"relays" json:"relays"`
	ServerSecret   string        `yaml:"server_secret" json:"server_secret"`
	EncryptionPref string        `yaml:"encryption_pref" json:"encryption_pref"`
	ClockSkewMax   time.Duration `yaml:"clock_skew_max" json:"clock_skew_max"`
	EventMaxAge    time.Duration `yaml:"event_max_age" json:"event_max_age"`
	Limits         LimitsConfig  `yaml:"limits" json:"limits"`
	Logging        *LoggingConfig `yaml:"logging" json:"logging"`
	Metrics        *MetricsConfig `yaml:"metrics" json:"metrics"`
	Health         *HealthConfig  `yaml:"health" json:"health"`
}

// LimitsConfig is the default per-connection policy handed to clients that
// have no entry in the connection registry's policy document (§4.4, §4.7).
type LimitsConfig struct {
	MPS     int `yaml:"mps" json:"mps"`
	BPS     int `yaml:"bps" json:"bps"`
	MaxKey  int `yaml:"max_key" json:"max_key"`
	MaxVal  int `yaml:"max_val" json:"max_val"`
	MGetMax int `yaml:"mget_max" json:"mget_max"`
}

// LoggingConfig configures internal/logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Port    int    `yaml:"port" json:"port"`
	Path    string `yaml:"path" json:"path"`
}

// HealthConfig configures the liveness/readiness HTTP server.
type HealthConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Port    int    `yaml:"port" json:"port"`
	Path    string `yaml:"path" json:"path"`
}

// LoadFromFile loads configuration from a YAML (or, failing that, JSON) file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file (tried YAML and JSON): %w", err)
		}
	}

	setDefaults(cfg)
	return cfg, nil
}

// SaveToFile writes configuration to path, choosing format by extension.
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error

	if len(path) > 5 && path[len(path)-5:] == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setDefaults fills in the zero-value fields every gateway needs to boot
// with something reasonable (§4.4, §4.7, §4.11).
func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "app:"
	}
	if cfg.EncryptionPref == "" {
		cfg.EncryptionPref = "v2"
	}
	if cfg.ClockSkewMax == 0 {
		cfg.ClockSkewMax = 60 * time.Second
	}
	if cfg.EventMaxAge == 0 {
		cfg.EventMaxAge = 5 * time.Minute
	}

	if cfg.Limits.MPS == 0 {
		cfg.Limits.MPS = 50
	}
	if cfg.Limits.BPS == 0 {
		cfg.Limits.BPS = 1 << 20
	}
	if cfg.Limits.MaxKey == 0 {
		cfg.Limits.MaxKey = 256
	}
	if cfg.Limits.MaxVal == 0 {
		cfg.Limits.MaxVal = 65536
	}
	if cfg.Limits.MGetMax == 0 {
		cfg.Limits.MGetMax = 64
	}

	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Metrics == nil {
		cfg.Metrics = &MetricsConfig{}
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Health == nil {
		cfg.Health = &HealthConfig{}
	}
	if cfg.Health.Port == 0 {
		cfg.Health.Port = 8080
	}
	if cfg.Health.Path == "" {
		cfg.Health.Path = "/health"
	}
}

// Validate checks that the fields required to start a gateway are present,
// returning every problem found rather than failing on the first (§4.11).
func Validate(cfg *Config) []string {
	var problems []string

	if cfg.BackendURL == "" {
		problems = append(problems, "backend_url is required")
	}
	if len(cfg.Relays) == 0 {
		problems = append(problems, "relays must list at least one relay URL")
	}
	if cfg.ServerSecret == "" {
		problems = append(problems, "server_secret is required")
	}
	if cfg.EncryptionPref != "v2" && cfg.EncryptionPref != "v1" {
		problems = append(problems, "encryption_pref must be v2 or v1")
	}
	if cfg.Limits.MPS <= 0 {
		problems = append(problems, "limits.mps must be positive")
	}
	if cfg.Limits.BPS <= 0 {
		problems = append(problems, "limits.bps must be positive")
	}
	if cfg.Limits.MaxKey <= 0 {
		problems = append(problems, "limits.max_key must be positive")
	}
	if cfg.Limits.MaxVal <= 0 {
		problems = append(problems, "limits.max_val must be positive")
	}
	if cfg.Limits.MGetMax <= 0 {
		problems = append(problems, "limits.mget_max must be positive")
	}

	return problems
}
