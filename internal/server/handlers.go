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
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/celine-eu/dataset-api/internal/catalog"
	"github.com/celine-eu/dataset-api/internal/gwerror"
	"github.com/celine-eu/dataset-api/internal/identity"
	"github.com/celine-eu/dataset-api/internal/log"
	"github.com/celine-eu/dataset-api/internal/rowfilter"
	"github.com/celine-eu/dataset-api/internal/sqlgate"
)

// adminCatalogueResourceID is the synthetic dataset id the admin upsert
// endpoint is gated on, per SPEC_FULL.md §E.3.
const adminCatalogueResourceID = "__catalogue_admin__"

// healthResponse is the GET /health body.
type healthResponse struct {
	Status string `json:"status"`
}

func (healthResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, http.StatusOK)
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.pool.Ping(ctx); err != nil {
		s.logger.Error("health check failed", log.Err(err))
		renderError(w, r, gwerror.Upstream("database unavailable", err))
		return
	}
	_ = render.Render(w, r, healthResponse{Status: "ok"})
}

// catalogueListResponse wraps []*catalog.DatasetEntry so it satisfies
// render.Renderer.
type catalogueListResponse struct {
	Items []*catalog.DatasetEntry `json:"items"`
}

func (catalogueListResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, http.StatusOK)
	return nil
}

func (s *Server) handleListCatalogue(w http.ResponseWriter, r *http.Request) {
	entries, err := s.resolver.List(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}
	_ = render.Render(w, r, catalogueListResponse{Items: entries})
}

type tableSchemaResponse struct {
	*catalog.TableSchema
}

func (tableSchemaResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, http.StatusOK)
	return nil
}

func (s *Server) handleDatasetSchema(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	entry, err := s.resolver.Load(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	if !entry.Expose {
		renderError(w, r, gwerror.NotFound("dataset not found"))
		return
	}
	if entry.BackendType != catalog.BackendPostgres {
		renderError(w, r, gwerror.NotFound("dataset has no queryable schema"))
		return
	}

	schema, err := s.schemas.Describe(r.Context(), entry)
	if err != nil {
		renderError(w, r, err)
		return
	}
	_ = render.Render(w, r, tableSchemaResponse{schema})
}

// queryRequest is the POST /query body, per spec.md §6.
type queryRequest struct {
	SQL    string `json:"sql"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

type queryResponse struct {
	Items  []map[string]any `json:"items"`
	Offset int              `json:"offset"`
	Limit  int              `json:"limit"`
	Count  int              `json:"count"`
	Total  int64            `json:"total"`
}

func (queryResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, http.StatusOK)
	return nil
}

// handleQuery runs spec.md §2's control flow: parse+validate, resolve
// datasets, gate each one, resolve row-filter plans, rewrite the AST, wrap
// with pagination + COUNT, and execute under a statement timeout.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := userFrom(ctx)

	var body queryRequest
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		renderError(w, r, gwerror.InvalidRequest("request body must be valid JSON"))
		return
	}
	if body.SQL == "" {
		renderError(w, r, gwerror.InvalidRequest("sql is required"))
		return
	}

	parsed, err := sqlgate.Parse(body.SQL, s.sqlOpts)
	if err != nil {
		renderError(w, r, err)
		return
	}

	entries, err := s.resolver.ResolveForTables(ctx, parsed.ReferencedTables)
	if err != nil {
		renderError(w, r, err)
		return
	}

	physicalTables := make(map[string]string, len(entries))
	for logicalID, entry := range entries {
		if err := s.gate.Check(ctx, entry, user); err != nil {
			renderError(w, r, err)
			return
		}
		if entry.BackendType != catalog.BackendPostgres {
			renderError(w, r, gwerror.InvalidRequest("dataset "+logicalID+" is not queryable"))
			return
		}
		physical, err := entry.PhysicalTable()
		if err != nil {
			renderError(w, r, err)
			return
		}
		physicalTables[logicalID] = physical
	}

	plans, err := s.rfEngine.ResolvePlans(ctx, entries, physicalTables, user, tokenRemainingTTL(user))
	if err != nil {
		renderError(w, r, err)
		return
	}

	sqlgate.SubstituteTables(parsed, physicalTables)
	if err := rowfilter.Rewrite(parsed, plans); err != nil {
		renderError(w, r, err)
		return
	}

	rewritten, err := sqlgate.Deparse(parsed.Result)
	if err != nil {
		renderError(w, r, err)
		return
	}

	result, err := s.executor.Execute(ctx, rewritten, body.Limit, body.Offset)
	if err != nil {
		renderError(w, r, err)
		return
	}

	_ = render.Render(w, r, queryResponse{
		Items:  result.Items,
		Offset: result.Offset,
		Limit:  result.Limit,
		Count:  result.Count,
		Total:  result.Total,
	})
}

// tokenRemainingTTL reads the bearer token's "exp" claim (seconds since the
// epoch, the standard JWT numeric-date encoding) and returns how much of its
// lifetime remains, bounding the row-filter plan cache's effective TTL per
// spec.md §4.4. A nil user, or a token with no parseable exp, yields zero so
// the cache falls back to its configured default TTL.
func tokenRemainingTTL(user *identity.AuthenticatedUser) time.Duration {
	if user == nil || user.Claims == nil {
		return 0
	}
	expVal, ok := user.Claims["exp"].(float64)
	if !ok {
		return 0
	}
	remaining := time.Until(time.Unix(int64(expVal), 0))
	if remaining < 0 {
		return 0
	}
	return remaining
}

// handleAdminUpsert serves POST /admin/catalogue, whose body is a full
// catalogue entry to insert or replace.
func (s *Server) handleAdminUpsert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := userFrom(ctx)

	admin := &catalog.DatasetEntry{
		DatasetID:   adminCatalogueResourceID,
		AccessLevel: catalog.AccessRestricted,
	}
	if err := s.gate.Check(ctx, admin, user); err != nil {
		renderError(w, r, err)
		return
	}
	if !user.HasAnyGroup(s.conf.AdminGroups) {
		renderError(w, r, gwerror.Forbidden("admin group membership required"))
		return
	}

	var entry catalog.DatasetEntry
	if err := render.DecodeJSON(r.Body, &entry); err != nil {
		renderError(w, r, gwerror.InvalidRequest("request body must be valid JSON"))
		return
	}
	if err := entry.Validate(); err != nil {
		renderError(w, r, err)
		return
	}

	if err := s.resolver.Upsert(ctx, &entry); err != nil {
		renderError(w, r, err)
		return
	}
	_ = render.Render(w, r, healthResponse{Status: "upserted"})
}
