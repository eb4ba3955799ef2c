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

// Package server assembles every component package behind spec.md §6's
// HTTP API: parse → resolve → gate → row-filter → rewrite → execute.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/celine-eu/dataset-api/internal/access"
	"github.com/celine-eu/dataset-api/internal/catalog"
	"github.com/celine-eu/dataset-api/internal/executor"
	"github.com/celine-eu/dataset-api/internal/identity"
	"github.com/celine-eu/dataset-api/internal/log"
	"github.com/celine-eu/dataset-api/internal/rowfilter"
	"github.com/celine-eu/dataset-api/internal/sources/postgres"
	"github.com/celine-eu/dataset-api/internal/sqlgate"
)

// pinger is the subset of *pgxpool.Pool the health check needs, narrowed so
// tests can substitute a mock.
type pinger interface {
	Ping(ctx context.Context) error
}

// Server holds every already-initialized component and the chi router
// mounted on top of them.
type Server struct {
	conf   ServerConfig
	root   chi.Router
	logger log.Logger
	tracer trace.Tracer

	pool pinger

	resolver    *catalog.Resolver
	schemas     *catalog.SchemaIntrospector
	identity    *identity.MultiNormalizer
	gate        *access.Gate
	rfRegistry  *rowfilter.Registry
	rfEngine    *rowfilter.Engine
	sqlOpts     sqlgate.Options
	executor    *executor.Executor
}

// NewServer builds every component from cfg and mounts the HTTP routes.
// tracer spans component construction the way the teacher's NewServer spans
// source/tool/toolset Initialize calls.
func NewServer(ctx context.Context, cfg ServerConfig, logger log.Logger, tracer trace.Tracer) (*Server, error) {
	ctx, span := tracer.Start(ctx, "dataset-api/server/init")
	defer span.End()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to postgres: %w", err)
	}

	store := catalog.NewPostgresStore(pool, cfg.CatalogSchema)
	resolver := catalog.NewResolver(store)
	schemas := catalog.NewSchemaIntrospector(pool)

	normalizers := make([]*identity.Normalizer, 0, len(cfg.Issuers))
	for _, icfg := range cfg.Issuers {
		_, issSpan := tracer.Start(ctx, "dataset-api/server/identity/init")
		n, err := identity.NewNormalizer(ctx, icfg)
		issSpan.End()
		if err != nil {
			return nil, fmt.Errorf("unable to initialize issuer %q: %w", icfg.Issuer, err)
		}
		normalizers = append(normalizers, n)
	}
	multiNorm := identity.NewMultiNormalizer(normalizers...)
	logger.Info("initialized identity issuers", log.Int("count", len(normalizers)))

	var engine access.PolicyEngine
	if cfg.PolicyEngineEnabled && cfg.PolicyEngineURL != "" {
		engine = access.NewHTTPPolicyEngine(&http.Client{Timeout: 5 * time.Second}, cfg.PolicyEngineURL)
	}
	gate := access.NewGate(engine, cfg.PolicyEngineEnabled, cfg.PolicyCacheSize, cfg.PolicyCacheTTL, cfg.SourceService, logger)

	rfRegistry := rowfilter.NewRegistry()
	rowfilter.NewHTTPHandlers(rfRegistry, &http.Client{Timeout: 10 * time.Second})
	rfCache := rowfilter.NewPlanCache(cfg.RowFilterCacheSize, cfg.RowFilterCacheTTL)
	rfEngine := rowfilter.NewEngine(rfRegistry, rfCache, cfg.AdminGroups)

	sqlOpts := sqlgate.DefaultOptions()

	exec := executor.NewExecutor(pool, cfg.StatementTimeoutMS)

	s := &Server{
		conf:       cfg,
		logger:     logger,
		tracer:     tracer,
		pool:       pool,
		resolver:   resolver,
		schemas:    schemas,
		identity:   multiNorm,
		gate:       gate,
		rfRegistry: rfRegistry,
		rfEngine:   rfEngine,
		sqlOpts:    sqlOpts,
		executor:   exec,
	}

	s.root = s.buildRouter()
	return s, nil
}

func (s *Server) buildRouter() chi.Router {
	logLevel := parseHttplogLevel(s.conf.LogLevel.String())
	var opts httplog.Options
	if s.conf.LoggingFormat.String() == "json" {
		opts = httplog.Options{JSON: true, LogLevel: logLevel, Concise: true, RequestHeaders: true}
	} else {
		opts = httplog.Options{LogLevel: logLevel, Concise: true, RequestHeaders: true}
	}
	accessLogger := httplog.NewLogger("httplog", opts)

	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(accessLogger))
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	if len(s.conf.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.conf.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Get("/catalogue", s.handleListCatalogue)
	r.Get("/catalogue/{id}/schema", s.handleDatasetSchema)

	r.Group(func(r chi.Router) {
		r.Use(bearerAuthMiddleware(s.identity))
		r.Post("/query", s.handleQuery)
		r.Post("/admin/catalogue", s.handleAdminUpsert)
	})

	return r
}

// Listen opens the configured TCP listener, mirroring the teacher's
// net.ListenConfig keep-alive setup.
func (s *Server) Listen(ctx context.Context) (net.Listener, error) {
	addr := net.JoinHostPort(s.conf.Address, strconv.Itoa(s.conf.Port))
	lc := net.ListenConfig{KeepAlive: 30 * time.Second}
	l, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to open listener for %q: %w", addr, err)
	}
	return l, nil
}

// Serve blocks, handling requests on l.
func (s *Server) Serve(l net.Listener) error {
	return http.Serve(l, s.root)
}

func parseHttplogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
