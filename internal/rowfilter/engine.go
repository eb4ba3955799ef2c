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
	"time"

	"github.com/celine-eu/dataset-api/internal/catalog"
	"github.com/celine-eu/dataset-api/internal/gwerror"
	"github.com/celine-eu/dataset-api/internal/identity"
)

// Engine resolves every governance.rowFilters spec for a set of datasets
// into per-table RowFilterPlans, honouring the admin-group bypass and the
// plan cache.
type Engine struct {
	registry    *Registry
	cache       *PlanCache
	adminGroups []string
}

func NewEngine(registry *Registry, cache *PlanCache, adminGroups []string) *Engine {
	return &Engine{registry: registry, cache: cache, adminGroups: adminGroups}
}

// ResolvePlans resolves row-filter plans for every (logical dataset id,
// physical table) pair in entries, for user, skipping resolution entirely
// (no plans at all) when user belongs to an admin group.
func (e *Engine) ResolvePlans(ctx context.Context, entries map[string]*catalog.DatasetEntry, physicalTables map[string]string, user *identity.AuthenticatedUser, tokenRemaining time.Duration) (map[string]*RowFilterPlan, error) {
	if user.HasAnyGroup(e.adminGroups) {
		return nil, nil
	}

	plans := make(map[string]*RowFilterPlan)
	for logicalID, entry := range entries {
		physical := physicalTables[logicalID]
		for _, spec := range entry.Governance.RowFilters {
			plan, err := e.resolveOne(ctx, physical, spec, user, logicalID, tokenRemaining)
			if err != nil {
				return nil, err
			}
			plans[physical] = mergePlans(plans[physical], plan)
		}
	}
	return plans, nil
}

// mergePlans combines every row-filter spec resolved for the same table: a
// deny from any spec makes the whole table deny, overriding every predicate
// already accumulated; otherwise every spec's predicate is kept and later
// ANDed together by the rewriter, so a dataset with two row-filter handlers
// on one table enforces both, not just the first.
func mergePlans(existing, next *RowFilterPlan) *RowFilterPlan {
	if existing == nil {
		return next
	}
	if existing.Kind == KindDeny {
		return existing
	}
	if next.Kind == KindDeny {
		return &RowFilterPlan{Table: existing.Table, Kind: KindDeny}
	}
	return &RowFilterPlan{
		Table:              existing.Table,
		Kind:               KindPredicate,
		PredicateTemplates: append(append([]*Predicate{}, existing.PredicateTemplates...), next.PredicateTemplates...),
	}
}

func (e *Engine) resolveOne(ctx context.Context, physicalTable string, spec catalog.RowFilterSpec, user *identity.AuthenticatedUser, datasetID string, tokenRemaining time.Duration) (*RowFilterPlan, error) {
	handler, ok := e.registry.Lookup(spec.Handler)
	if !ok {
		return nil, gwerror.ConfigError("unknown row-filter handler " + spec.Handler)
	}

	sub := ""
	if user != nil {
		sub = user.Sub
	}
	key := Key(spec.Handler, physicalTable, sub, spec.Args)

	if plan, hit := e.cache.Get(key); hit {
		return plan, nil
	}

	plan, err := handler.Resolve(ctx, physicalTable, user, spec.Args, RequestContext{DatasetID: datasetID})
	if err != nil {
		return nil, err
	}

	ttl := e.cache.EffectiveTTL(tokenRemaining)
	e.cache.Set(key, plan, ttl)
	return plan, nil
}
