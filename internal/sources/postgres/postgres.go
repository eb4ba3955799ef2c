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

// Package postgres owns the single pgxpool.Pool the gateway uses for the
// catalogue store, the query executor, and the information_schema column
// introspection behind the schema endpoint.
package postgres

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config describes how to reach the warehouse. Exactly one pool is built
// from it at startup and shared by every request.
type Config struct {
	Host        string            `yaml:"host" validate:"required"`
	Port        string            `yaml:"port" validate:"required"`
	User        string            `yaml:"user" validate:"required"`
	Password    string            `yaml:"password" validate:"required"`
	Database    string            `yaml:"database" validate:"required"`
	SSLMode     string            `yaml:"sslmode"`
	QueryParams map[string]string `yaml:"queryParams"`
	// MaxConns bounds the pool; zero lets pgxpool pick its default.
	MaxConns int32 `yaml:"maxConns"`
}

// NewPool builds and pings a pgxpool.Pool for cfg.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	qp := make(map[string]string, len(cfg.QueryParams)+1)
	for k, v := range cfg.QueryParams {
		qp[k] = v
	}
	if cfg.SSLMode != "" {
		if _, ok := qp["sslmode"]; !ok {
			qp["sslmode"] = cfg.SSLMode
		}
	}

	dsn := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Path:     cfg.Database,
		RawQuery: convertParamMapToRawQuery(qp),
	}

	poolCfg, err := pgxpool.ParseConfig(dsn.String())
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return pool, nil
}

func convertParamMapToRawQuery(queryParams map[string]string) string {
	if len(queryParams) == 0 {
		return ""
	}
	keys := make([]string, 0, len(queryParams))
	for k := range queryParams {
		if queryParams[k] != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	values := url.Values{}
	for _, k := range keys {
		values.Set(k, queryParams[k])
	}
	return values.Encode()
}
