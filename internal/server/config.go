// Copyright 2024 Celine Data Platform Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	validatorpkg "github.com/go-playground/validator/v10"
	yaml "github.com/goccy/go-yaml"

	"github.com/celine-eu/dataset-api/internal/identity"
	"github.com/celine-eu/dataset-api/internal/sources/postgres"
)

// ServerConfig is the complete, validated configuration for one gateway
// process. It is assembled from a YAML file (see LoadConfig) and then
// overlaid with cobra flags by cmd.
type ServerConfig struct {
	Version string `yaml:"-"`

	Address string `yaml:"address"`
	Port    int    `yaml:"port"`

	LoggingFormat logFormat   `yaml:"-"`
	LogLevel      StringLevel `yaml:"-"`
	// LoggingFormatRaw/LogLevelRaw are the YAML-facing strings; LoadConfig
	// converts them into LoggingFormat/LogLevel via Set so both the file and
	// the cobra flag path share the same validation.
	LoggingFormatRaw string `yaml:"loggingFormat"`
	LogLevelRaw      string `yaml:"logLevel"`

	Database postgres.Config `yaml:"database" validate:"required"`
	// CatalogSchema is the schema the dataset_catalog table lives in.
	CatalogSchema string `yaml:"catalogSchema"`

	// Issuers configures every trusted JWKS issuer; at least one is
	// required for any dataset above access_level=open to be reachable.
	Issuers []identity.Config `yaml:"issuers"`

	// PolicyEngineEnabled gates whether internal/access.Gate calls out at
	// all for policy-required datasets; false makes the gate log-and-allow.
	PolicyEngineEnabled bool   `yaml:"policyEngineEnabled"`
	PolicyEngineURL     string `yaml:"policyEngineURL"`
	PolicyCacheSize     int    `yaml:"policyCacheSize"`
	PolicyCacheTTL      time.Duration `yaml:"policyCacheTTL"`

	// RowFilterCacheSize/TTL bound the row-filter plan cache (spec.md §4.4).
	RowFilterCacheSize int           `yaml:"rowFilterCacheSize"`
	RowFilterCacheTTL  time.Duration `yaml:"rowFilterCacheTTL"`
	// AdminGroups lists the groups that bypass row-filter resolution
	// entirely, per spec.md §4.4.
	AdminGroups []string `yaml:"adminGroups"`

	// StatementTimeoutMS is passed to internal/executor. DefaultLimit and
	// MaxLimit are loaded and defaulted but not passed on: the executor
	// clamps limits with its own constants (100 and 10000).
	DefaultLimit      int `yaml:"defaultLimit"`
	MaxLimit          int `yaml:"maxLimit"`
	StatementTimeoutMS int `yaml:"statementTimeoutMS"`

	// SourceService is the value placed in PolicyEnvironment.SourceService.
	SourceService string `yaml:"sourceService"`

	// CORSAllowedOrigins configures the chi/cors middleware; empty allows
	// none (same-origin only, the conservative default).
	CORSAllowedOrigins []string `yaml:"corsAllowedOrigins"`
}

// defaults fills the zero-value fields a correct process needs even with a
// minimal YAML file, mirroring the teacher's flag-default pattern in
// cmd/root.go (address/port defaults) extended to this gateway's own tuning
// knobs.
func (c *ServerConfig) defaults() {
	if c.Address == "" {
		c.Address = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.CatalogSchema == "" {
		c.CatalogSchema = "public"
	}
	if c.PolicyCacheTTL <= 0 {
		c.PolicyCacheTTL = 5 * time.Minute
	}
	if c.PolicyCacheSize <= 0 {
		c.PolicyCacheSize = 10_000
	}
	if c.RowFilterCacheTTL <= 0 {
		c.RowFilterCacheTTL = 5 * time.Minute
	}
	if c.RowFilterCacheSize <= 0 {
		c.RowFilterCacheSize = 10_000
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = 100
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = 10_000
	}
	if c.StatementTimeoutMS <= 0 {
		c.StatementTimeoutMS = 2000
	}
	if c.SourceService == "" {
		c.SourceService = "dataset-api"
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
}

// LoadConfig reads and strictly decodes a YAML config file at path, applying
// defaults and struct-tag validation (github.com/go-playground/validator/v10),
// the same two-step decode the teacher's internal/server/config.go applies
// per-resource via util.NewStrictDecoder.
func LoadConfig(path string) (ServerConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("read config %q: %w", path, err)
	}

	var cfg ServerConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw), yaml.Strict())
	if err := dec.Decode(&cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	if cfg.LoggingFormatRaw != "" {
		if err := cfg.LoggingFormat.Set(cfg.LoggingFormatRaw); err != nil {
			return ServerConfig{}, fmt.Errorf("config %q: %w", path, err)
		}
	}
	if cfg.LogLevelRaw != "" {
		if err := cfg.LogLevel.Set(cfg.LogLevelRaw); err != nil {
			return ServerConfig{}, fmt.Errorf("config %q: %w", path, err)
		}
	}
	cfg.defaults()

	if err := validatorpkg.New().Struct(cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return cfg, nil
}

// logFormat is a cobra-flag-compatible string enum, copied from the
// teacher's internal/server/config.go almost verbatim.
type logFormat string

func (f *logFormat) String() string {
	if string(*f) != "" {
		return strings.ToLower(string(*f))
	}
	return "standard"
}

func (f *logFormat) Set(v string) error {
	switch strings.ToLower(v) {
	case "standard", "json":
		*f = logFormat(v)
		return nil
	default:
		return fmt.Errorf(`log format must be one of "standard" or "json"`)
	}
}

func (f *logFormat) Type() string { return "logFormat" }

// StringLevel is a cobra-flag-compatible log level enum, copied from the
// teacher's internal/server/config.go.
type StringLevel string

func (s *StringLevel) String() string {
	if string(*s) != "" {
		return strings.ToLower(string(*s))
	}
	return "info"
}

func (s *StringLevel) Set(v string) error {
	switch strings.ToLower(v) {
	case "debug", "info", "warn", "error":
		*s = StringLevel(v)
		return nil
	default:
		return fmt.Errorf(`log level must be one of "debug", "info", "warn", or "error"`)
	}
}

func (s *StringLevel) Type() string { return "stringLevel" }
