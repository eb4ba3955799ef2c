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

package rowfilter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celine-eu/dataset-api/internal/catalog"
	"github.com/celine-eu/dataset-api/internal/identity"
	"github.com/celine-eu/dataset-api/internal/sqlgate"
)

func mustParse(t *testing.T, sql string) *sqlgate.ParsedSQL {
	t.Helper()
	parsed, err := sqlgate.Parse(sql, sqlgate.DefaultOptions())
	require.NoError(t, err)
	return parsed
}

func deparse(t *testing.T, parsed *sqlgate.ParsedSQL) string {
	t.Helper()
	out, err := sqlgate.Deparse(parsed.Result)
	require.NoError(t, err)
	return out
}

func TestRewriteDenyPlanInjectsFalse(t *testing.T) {
	parsed := mustParse(t, `SELECT id FROM solar WHERE city = 'Milan'`)
	plans := map[string]*RowFilterPlan{"solar": {Table: "solar", Kind: KindDeny}}
	require.NoError(t, Rewrite(parsed, plans))
	out := deparse(t, parsed)
	assert.Contains(t, out, "FALSE")
}

func TestRewriteDenyAppliesToBothUnionBranches(t *testing.T) {
	parsed := mustParse(t, `SELECT id FROM solar UNION SELECT id FROM solar`)
	plans := map[string]*RowFilterPlan{"solar": {Table: "solar", Kind: KindDeny}}
	require.NoError(t, Rewrite(parsed, plans))
	out := deparse(t, parsed)
	assert.Equal(t, 2, countOccurrences(out, "FALSE"))
}

func TestRewritePredicateQualifiesUnaliasedTable(t *testing.T) {
	parsed := mustParse(t, `SELECT id FROM solar`)
	plans := map[string]*RowFilterPlan{
		"solar": {Table: "solar", Kind: KindPredicate, PredicateTemplates: []*Predicate{{Column: "owner", Op: "=", Literal: "alice"}}},
	}
	require.NoError(t, Rewrite(parsed, plans))
	out := deparse(t, parsed)
	assert.Contains(t, out, "solar.owner")
	assert.Contains(t, out, "alice")
}

func TestRewritePredicateQualifiesAlias(t *testing.T) {
	parsed := mustParse(t, `SELECT s.id FROM solar s`)
	plans := map[string]*RowFilterPlan{
		"solar": {Table: "solar", Kind: KindPredicate, PredicateTemplates: []*Predicate{{Column: "owner", Op: "=", Literal: "alice"}}},
	}
	require.NoError(t, Rewrite(parsed, plans))
	out := deparse(t, parsed)
	assert.Contains(t, out, "s.owner")
}

func TestRewritePredicateAppliesToEachJoinOccurrence(t *testing.T) {
	parsed := mustParse(t, `SELECT a.id FROM solar a JOIN solar b ON a.id = b.id`)
	plans := map[string]*RowFilterPlan{
		"solar": {Table: "solar", Kind: KindPredicate, PredicateTemplates: []*Predicate{{Column: "owner", Op: "=", Literal: "alice"}}},
	}
	require.NoError(t, Rewrite(parsed, plans))
	out := deparse(t, parsed)
	assert.Contains(t, out, "a.owner")
	assert.Contains(t, out, "b.owner")
}

func TestRewriteInPredicate(t *testing.T) {
	parsed := mustParse(t, `SELECT id FROM solar`)
	plans := map[string]*RowFilterPlan{
		"solar": {Table: "solar", Kind: KindPredicate, PredicateTemplates: []*Predicate{{
			Column: "region", Op: "IN", Literal: []any{"north", "south"},
		}}},
	}
	require.NoError(t, Rewrite(parsed, plans))
	out := deparse(t, parsed)
	assert.Contains(t, out, "IN")
	assert.Contains(t, out, "north")
	assert.Contains(t, out, "south")
}

func TestRewriteSubqueryInPredicate(t *testing.T) {
	parsed := mustParse(t, `SELECT id FROM solar`)
	plans := map[string]*RowFilterPlan{
		"solar": {Table: "solar", Kind: KindPredicate, PredicateTemplates: []*Predicate{{
			Column:   "id",
			Op:       "SUBQUERY_IN",
			Subquery: `SELECT asset_id FROM ownership WHERE user_id = 'alice'`,
		}}},
	}
	require.NoError(t, Rewrite(parsed, plans))
	out := deparse(t, parsed)
	assert.Contains(t, out, "ownership")
}

func TestRewriteUnrelatedTableUntouched(t *testing.T) {
	parsed := mustParse(t, `SELECT id FROM other_table`)
	plans := map[string]*RowFilterPlan{
		"solar": {Table: "solar", Kind: KindPredicate, PredicateTemplates: []*Predicate{{Column: "owner", Op: "=", Literal: "alice"}}},
	}
	original := deparse(t, parsed)
	require.NoError(t, Rewrite(parsed, plans))
	out := deparse(t, parsed)
	assert.Equal(t, original, out)
}

func TestRewriteNoPlansIsNoop(t *testing.T) {
	parsed := mustParse(t, `SELECT id FROM solar`)
	original := deparse(t, parsed)
	require.NoError(t, Rewrite(parsed, nil))
	assert.Equal(t, original, deparse(t, parsed))
}

func countOccurrences(s, substr string) int {
	count := 0
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			count++
			i += len(substr) - 1
		}
	}
	return count
}

// --- Engine / cache / handler tests ---

func adminUser() *identity.AuthenticatedUser {
	return &identity.AuthenticatedUser{Sub: "root", Groups: []string{"admins"}}
}

func plainUser(sub string) *identity.AuthenticatedUser {
	return &identity.AuthenticatedUser{Sub: sub}
}

func TestEngineAdminBypassSkipsAllFilters(t *testing.T) {
	registry := NewRegistry()
	engine := NewEngine(registry, NewPlanCache(10, time.Minute), []string{"admins"})
	entries := map[string]*catalog.DatasetEntry{
		"solar": {
			DatasetID: "solar",
			Governance: catalog.Governance{
				RowFilters: []catalog.RowFilterSpec{{Handler: "direct_user_match", Args: map[string]any{"column": "owner"}}},
			},
		},
	}
	plans, err := engine.ResolvePlans(context.Background(), entries, map[string]string{"solar": "solar"}, adminUser(), time.Minute)
	require.NoError(t, err)
	assert.Nil(t, plans)
}

func TestEngineDirectUserMatchDeniesAnonymous(t *testing.T) {
	registry := NewRegistry()
	engine := NewEngine(registry, NewPlanCache(10, time.Minute), nil)
	entries := map[string]*catalog.DatasetEntry{
		"solar": {
			DatasetID: "solar",
			Governance: catalog.Governance{
				RowFilters: []catalog.RowFilterSpec{{Handler: "direct_user_match", Args: map[string]any{"column": "owner"}}},
			},
		},
	}
	plans, err := engine.ResolvePlans(context.Background(), entries, map[string]string{"solar": "solar"}, nil, time.Minute)
	require.NoError(t, err)
	require.Contains(t, plans, "solar")
	assert.Equal(t, KindDeny, plans["solar"].Kind)
}

func TestEngineDirectUserMatchResolvesPredicate(t *testing.T) {
	registry := NewRegistry()
	engine := NewEngine(registry, NewPlanCache(10, time.Minute), nil)
	entries := map[string]*catalog.DatasetEntry{
		"solar": {
			DatasetID: "solar",
			Governance: catalog.Governance{
				RowFilters: []catalog.RowFilterSpec{{Handler: "direct_user_match", Args: map[string]any{"column": "owner"}}},
			},
		},
	}
	plans, err := engine.ResolvePlans(context.Background(), entries, map[string]string{"solar": "solar"}, plainUser("alice"), time.Minute)
	require.NoError(t, err)
	require.Contains(t, plans, "solar")
	assert.Equal(t, "alice", plans["solar"].PredicateTemplates[0].Literal)
}

func TestEngineMergesMultipleSpecsOnSameTable(t *testing.T) {
	registry := NewRegistry()
	engine := NewEngine(registry, NewPlanCache(10, time.Minute), nil)
	entries := map[string]*catalog.DatasetEntry{
		"solar": {
			DatasetID: "solar",
			Governance: catalog.Governance{
				RowFilters: []catalog.RowFilterSpec{
					{Handler: "direct_user_match", Args: map[string]any{"column": "owner"}},
					{Handler: "direct_user_match", Args: map[string]any{"column": "region"}},
				},
			},
		},
	}
	plans, err := engine.ResolvePlans(context.Background(), entries, map[string]string{"solar": "solar"}, plainUser("alice"), time.Minute)
	require.NoError(t, err)
	require.Contains(t, plans, "solar")
	require.Len(t, plans["solar"].PredicateTemplates, 2,
		"both row-filter specs on the same table must be kept, not just the first")
	assert.Equal(t, "owner", plans["solar"].PredicateTemplates[0].Column)
	assert.Equal(t, "region", plans["solar"].PredicateTemplates[1].Column)
}

func TestRewritePredicateANDsMultipleTemplatesOnSameOccurrence(t *testing.T) {
	parsed := mustParse(t, `SELECT id FROM solar`)
	plans := map[string]*RowFilterPlan{
		"solar": {Table: "solar", Kind: KindPredicate, PredicateTemplates: []*Predicate{
			{Column: "owner", Op: "=", Literal: "alice"},
			{Column: "region", Op: "=", Literal: "north"},
		}},
	}
	require.NoError(t, Rewrite(parsed, plans))
	out := deparse(t, parsed)
	assert.Contains(t, out, "solar.owner")
	assert.Contains(t, out, "solar.region")
	assert.Contains(t, out, "AND")
}

func TestEngineCachesWithinTTL(t *testing.T) {
	registry := NewRegistry()
	calls := 0
	registry.Register("counting", HandlerFunc(func(ctx context.Context, table string, user *identity.AuthenticatedUser, args map[string]any, reqCtx RequestContext) (*RowFilterPlan, error) {
		calls++
		return &RowFilterPlan{Table: table, Kind: KindPredicate, PredicateTemplates: []*Predicate{{Column: "owner", Op: "=", Literal: "alice"}}}, nil
	}))
	engine := NewEngine(registry, NewPlanCache(10, time.Minute), nil)
	entries := map[string]*catalog.DatasetEntry{
		"solar": {DatasetID: "solar", Governance: catalog.Governance{RowFilters: []catalog.RowFilterSpec{{Handler: "counting"}}}},
	}
	for i := 0; i < 5; i++ {
		_, err := engine.ResolvePlans(context.Background(), entries, map[string]string{"solar": "solar"}, plainUser("alice"), time.Minute)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, calls)
}

func TestPlanCacheEffectiveTTLPrefersShorterTokenLifetime(t *testing.T) {
	cache := NewPlanCache(10, 5*time.Minute)
	assert.Equal(t, 30*time.Second, cache.EffectiveTTL(30*time.Second))
	assert.Equal(t, 5*time.Minute, cache.EffectiveTTL(0))
	assert.Equal(t, 5*time.Minute, cache.EffectiveTTL(time.Hour))
}

func TestPlanCacheExpiresEntries(t *testing.T) {
	cache := NewPlanCache(10, time.Millisecond)
	cache.Set("k", &RowFilterPlan{Table: "t", Kind: KindDeny}, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	_, ok := cache.Get("k")
	assert.False(t, ok)
}

func TestRegistryPanicsOnDuplicateRegistration(t *testing.T) {
	registry := NewRegistry()
	assert.Panics(t, func() {
		registry.Register("direct_user_match", HandlerFunc(func(ctx context.Context, table string, user *identity.AuthenticatedUser, args map[string]any, reqCtx RequestContext) (*RowFilterPlan, error) {
			return nil, nil
		}))
	})
}

func TestTablePointerHandlerBuildsSubquery(t *testing.T) {
	plan, err := resolveTablePointer(context.Background(), "solar", plainUser("alice"), map[string]any{
		"column":             "id",
		"pointer_table":      "ownership",
		"pointer_key_column": "asset_id",
	}, RequestContext{})
	require.NoError(t, err)
	require.Equal(t, KindPredicate, plan.Kind)
	assert.Contains(t, plan.PredicateTemplates[0].Subquery, "ownership")
	assert.Contains(t, plan.PredicateTemplates[0].Subquery, "alice")
}

func TestTablePointerHandlerDeniesAnonymous(t *testing.T) {
	plan, err := resolveTablePointer(context.Background(), "solar", nil, map[string]any{
		"column": "id", "pointer_table": "ownership", "pointer_key_column": "asset_id",
	}, RequestContext{})
	require.NoError(t, err)
	assert.Equal(t, KindDeny, plan.Kind)
}

func TestHTTPInListHandlerBuildsPredicateFromResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"asset_ids": ["a1", "a2"]}`))
	}))
	defer srv.Close()

	cfg := HTTPHandlerConfig{Client: srv.Client()}
	plan, err := cfg.resolveHTTPInList(context.Background(), "solar", plainUser("alice"), map[string]any{
		"column": "id", "url": srv.URL, "response_path": "asset_ids",
	}, RequestContext{})
	require.NoError(t, err)
	require.Equal(t, KindPredicate, plan.Kind)
	assert.Equal(t, []any{"a1", "a2"}, plan.PredicateTemplates[0].Literal)
}

func TestHTTPInListHandlerEmptyMeansDenyByDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"asset_ids": []}`))
	}))
	defer srv.Close()

	cfg := HTTPHandlerConfig{Client: srv.Client()}
	plan, err := cfg.resolveHTTPInList(context.Background(), "solar", plainUser("alice"), map[string]any{
		"column": "id", "url": srv.URL, "response_path": "asset_ids",
	}, RequestContext{})
	require.NoError(t, err)
	assert.Equal(t, KindDeny, plan.Kind)
}

func TestHTTPInListHandlerEmptyMeansAllowWhenConfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"asset_ids": []}`))
	}))
	defer srv.Close()

	cfg := HTTPHandlerConfig{Client: srv.Client()}
	plan, err := cfg.resolveHTTPInList(context.Background(), "solar", plainUser("alice"), map[string]any{
		"column": "id", "url": srv.URL, "response_path": "asset_ids", "empty_means_deny": false,
	}, RequestContext{})
	require.NoError(t, err)
	require.Equal(t, KindPredicate, plan.Kind)
	assert.Equal(t, "TRUE", plan.PredicateTemplates[0].Op)
}

func TestRecRegistryDefaultsResponsePathAndSendsNoAuthWithoutToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"asset_ids": ["a1"]}`))
	}))
	defer srv.Close()

	user := plainUser("alice")
	cfg := HTTPHandlerConfig{Client: srv.Client()}
	plan, err := cfg.resolveRecRegistry(context.Background(), "solar", user, map[string]any{
		"column": "id", "url": srv.URL,
	}, RequestContext{})
	require.NoError(t, err)
	assert.Equal(t, KindPredicate, plan.Kind)
	assert.Empty(t, gotAuth)
}
