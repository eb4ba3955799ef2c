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

package catalog

import (
	"context"
	"sort"

	"github.com/celine-eu/dataset-api/internal/gwerror"
)

// Resolver is the read path every request uses: load a single entry, or
// resolve every logical table name a parsed query references (one store
// lookup per name).
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Load fetches a single DatasetEntry by logical id. Returns
// gwerror.KindNotFound when absent.
func (r *Resolver) Load(ctx context.Context, datasetID string) (*DatasetEntry, error) {
	return r.store.Get(ctx, datasetID)
}

// ResolveForTables resolves every logical table name in tables to its
// DatasetEntry with one store.Get call per name, in sorted name order; the
// names are not fetched in a single batched query. An empty input, or any name with no catalogue entry, is a
// single 400 naming every unknown id — never a partial result, per spec.md
// §8's "single error, no partial result" property.
func (r *Resolver) ResolveForTables(ctx context.Context, tables map[string]struct{}) (map[string]*DatasetEntry, error) {
	if len(tables) == 0 {
		return nil, errEmptyTableSet()
	}

	names := make([]string, 0, len(tables))
	for t := range tables {
		names = append(names, t)
	}
	sort.Strings(names)

	out := make(map[string]*DatasetEntry, len(names))
	var unknown []string
	for _, name := range names {
		entry, err := r.store.Get(ctx, name)
		if err != nil {
			if ge, ok := gwerror.As(err); ok && ge.Kind == gwerror.KindNotFound {
				unknown = append(unknown, name)
				continue
			}
			return nil, err
		}
		out[name] = entry
	}
	if len(unknown) > 0 {
		return nil, errUnknownDatasets(unknown)
	}
	return out, nil
}

// List returns exposed catalogue entries (expose=true) for GET /catalogue.
func (r *Resolver) List(ctx context.Context) ([]*DatasetEntry, error) {
	return r.store.List(ctx, true)
}

// Upsert inserts or replaces a DatasetEntry for POST /admin/catalogue.
func (r *Resolver) Upsert(ctx context.Context, entry *DatasetEntry) error {
	return r.store.Upsert(ctx, entry)
}
