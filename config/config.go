// Copyright (C) 2025 the spdm-go authors
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

// Package config loads the YAML/JSON configuration shared by the
// spdm-requester and spdm-responder binaries: transport endpoints,
// certificate slots, PSK hints, and the ambient logging/metrics/health/
// audit stack.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document.
type Config struct {
	Environment string           `yaml:"environment" json:"environment"`
	Responder   *ResponderConfig `yaml:"responder" json:"responder"`
	Requester   *RequesterConfig `yaml:"requester" json:"requester"`
	Logging     *LoggingConfig   `yaml:"logging" json:"logging"`
	Metrics     *MetricsConfig   `yaml:"metrics" json:"metrics"`
	Health      *HealthConfig    `yaml:"health" json:"health"`
	Audit       *AuditConfig     `yaml:"audit" json:"audit"`
	Session     *SessionConfig   `yaml:"session" json:"session"`
	Handshake   *HandshakeConfig `yaml:"handshake" json:"handshake"`
}

// ResponderConfig configures the spdm-responder binary's listening
// transport and provisioned identity material.
type ResponderConfig struct {
	ListenAddr   string       `yaml:"listen_addr" json:"listen_addr"`
	Capabilities []string     `yaml:"capabilities" json:"capabilities"`
	Slots        []SlotConfig `yaml:"slots" json:"slots"`
	PSKs         []PSKConfig  `yaml:"psks" json:"psks"`
}

// SlotConfig names the on-disk certificate chain and private key for one
// of the responder's up-to-protocol.MaxSlots certificate slots.
type SlotConfig struct {
	Index          uint8  `yaml:"index" json:"index"`
	CertChainPath  string `yaml:"cert_chain_path" json:"cert_chain_path"`
	PrivateKeyPath string `yaml:"private_key_path" json:"private_key_path"`
}

// PSKConfig binds a PSK_EXCHANGE hint ID to the environment variable
// holding its pre-shared secret. The secret itself is never written to a
// config file.
type PSKConfig struct {
	HintID    string `yaml:"hint_id" json:"hint_id"`
	SecretEnv string `yaml:"secret_env" json:"secret_env"`
}

// RequesterConfig configures the spdm-requester binary's outbound
// connection.
type RequesterConfig struct {
	DialAddr        string `yaml:"dial_addr" json:"dial_addr"`
	Slot            uint8  `yaml:"slot" json:"slot"`
	MeasurementHash bool   `yaml:"measurement_hash" json:"measurement_hash"`
}

// SessionConfig holds session lifetime and table size settings. They are
// loaded and defaulted here but no engine reads them: session.Table has
// the fixed capacity protocol.MaxSessions and no idle expiry.
type SessionConfig struct {
	MaxIdleTime     time.Duration `yaml:"max_idle_time" json:"max_idle_time"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
	MaxSessions     int           `yaml:"max_sessions" json:"max_sessions"`
}

// HandshakeConfig holds timeout and retry settings for handshake
// exchanges. They are loaded and defaulted here but the requester engine
// does not read them; its retry loop is bounded by protocol.MaxErrorRetries.
type HandshakeConfig struct {
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff" json:"retry_backoff"`
}

// LoggingConfig configures the internal/logger default logger.
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	Path    string `yaml:"path" json:"path"`
}

// HealthConfig configures the JWT-protected health endpoint served by
// spdm-responder.
type HealthConfig struct {
	Enabled      bool   `yaml:"enabled" json:"enabled"`
	Addr         string `yaml:"addr" json:"addr"`
	Path         string `yaml:"path" json:"path"`
	JWTSecretEnv string `yaml:"jwt_secret_env" json:"jwt_secret_env"`
}

// AuditConfig configures the Postgres-backed session/measurement audit
// sink.
type AuditConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled"`
	DSNEnv  string        `yaml:"dsn_env" json:"dsn_env"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// LoadFromFile loads a configuration document from path, trying YAML
// before falling back to JSON.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("parse config file (tried YAML and JSON): %w", err)
		}
	}
	return cfg, nil
}

// SaveToFile writes cfg to path, choosing JSON or YAML by file extension.
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error
	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// setDefaults fills in zero-valued fields with the process's operating
// defaults. Called by Load after parsing and before env var overrides.
func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	if cfg.Responder == nil {
		cfg.Responder = &ResponderConfig{}
	}
	if cfg.Responder.ListenAddr == "" {
		cfg.Responder.ListenAddr = "127.0.0.1:4433"
	}

	if cfg.Requester == nil {
		cfg.Requester = &RequesterConfig{}
	}
	if cfg.Requester.DialAddr == "" {
		cfg.Requester.DialAddr = "127.0.0.1:4433"
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
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = "127.0.0.1:9090"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Health == nil {
		cfg.Health = &HealthConfig{}
	}
	if cfg.Health.Addr == "" {
		cfg.Health.Addr = "127.0.0.1:9091"
	}
	if cfg.Health.Path == "" {
		cfg.Health.Path = "/healthz"
	}

	if cfg.Audit == nil {
		cfg.Audit = &AuditConfig{}
	}
	if cfg.Audit.Timeout == 0 {
		cfg.Audit.Timeout = 5 * time.Second
	}

	if cfg.Session != nil {
		if cfg.Session.MaxIdleTime == 0 {
			cfg.Session.MaxIdleTime = 30 * time.Minute
		}
		if cfg.Session.CleanupInterval == 0 {
			cfg.Session.CleanupInterval = 5 * time.Minute
		}
		if cfg.Session.MaxSessions == 0 {
			cfg.Session.MaxSessions = 10000
		}
	}

	if cfg.Handshake != nil {
		if cfg.Handshake.Timeout == 0 {
			cfg.Handshake.Timeout = 30 * time.Second
		}
		if cfg.Handshake.MaxRetries == 0 {
			cfg.Handshake.MaxRetries = 3
		}
		if cfg.Handshake.RetryBackoff == 0 {
			cfg.Handshake.RetryBackoff = 1 * time.Second
		}
	}
}
