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
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/celine-eu/dataset-api/internal/gwerror"
)

// Store persists DatasetEntry records. PostgresStore is the only
// implementation the core ships; it is grounded on the teacher's RWMutex
// in-memory repository, generalised to a real backing table so catalogue
// entries survive a restart and admin upserts are visible to every replica.
type Store interface {
	Get(ctx context.Context, datasetID string) (*DatasetEntry, error)
	List(ctx context.Context, exposedOnly bool) ([]*DatasetEntry, error)
	Upsert(ctx context.Context, entry *DatasetEntry) error
}

// PostgresStore stores catalogue entries in a single table within
// schemaName, one row per dataset_id, with the variable-shaped fields
// (backend_config, governance) kept as JSONB.
type PostgresStore struct {
	pool       *pgxpool.Pool
	schemaName string
}

// NewPostgresStore wraps pool; schemaName is the schema the catalogue table
// lives in (created out of band by migrations, not by this package).
func NewPostgresStore(pool *pgxpool.Pool, schemaName string) *PostgresStore {
	if schemaName == "" {
		schemaName = "public"
	}
	return &PostgresStore{pool: pool, schemaName: schemaName}
}

func (s *PostgresStore) table() string {
	return fmt.Sprintf("%s.dataset_catalog", quoteIdent(s.schemaName))
}

func quoteIdent(ident string) string {
	return `"` + ident + `"`
}

type row struct {
	datasetID     string
	title         string
	description   string
	backendType   string
	backendConfig []byte
	expose        bool
	accessLevel   string
	governance    []byte
	namespace     string
	publisher     string
	license       string
}

func (s *PostgresStore) Get(ctx context.Context, datasetID string) (*DatasetEntry, error) {
	q := fmt.Sprintf(`SELECT dataset_id, title, description, backend_type, backend_config,
		expose, access_level, governance, namespace, publisher, license
		FROM %s WHERE dataset_id = $1`, s.table())

	var r row
	err := s.pool.QueryRow(ctx, q, datasetID).Scan(
		&r.datasetID, &r.title, &r.description, &r.backendType, &r.backendConfig,
		&r.expose, &r.accessLevel, &r.governance, &r.namespace, &r.publisher, &r.license,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errNotFound(datasetID)
		}
		return nil, gwerror.Upstream("catalogue lookup failed", err)
	}
	return rowToEntry(r)
}

func (s *PostgresStore) List(ctx context.Context, exposedOnly bool) ([]*DatasetEntry, error) {
	q := fmt.Sprintf(`SELECT dataset_id, title, description, backend_type, backend_config,
		expose, access_level, governance, namespace, publisher, license
		FROM %s`, s.table())
	if exposedOnly {
		q += " WHERE expose = true"
	}
	q += " ORDER BY dataset_id"

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, gwerror.Upstream("catalogue listing failed", err)
	}
	defer rows.Close()

	var out []*DatasetEntry
	for rows.Next() {
		var r row
		if err := rows.Scan(
			&r.datasetID, &r.title, &r.description, &r.backendType, &r.backendConfig,
			&r.expose, &r.accessLevel, &r.governance, &r.namespace, &r.publisher, &r.license,
		); err != nil {
			return nil, gwerror.Upstream("catalogue listing scan failed", err)
		}
		entry, err := rowToEntry(r)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, gwerror.Upstream("catalogue listing failed", err)
	}
	return out, nil
}

// Upsert inserts or replaces entry by dataset_id. It is idempotent, as
// spec.md §6 requires of POST /admin/catalogue.
func (s *PostgresStore) Upsert(ctx context.Context, entry *DatasetEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	backendConfig, err := json.Marshal(entry.BackendConfig)
	if err != nil {
		return gwerror.InvalidRequest("invalid backend_config: %v", err)
	}
	governance, err := json.Marshal(entry.Governance)
	if err != nil {
		return gwerror.InvalidRequest("invalid governance: %v", err)
	}

	q := fmt.Sprintf(`INSERT INTO %s (dataset_id, title, description, backend_type, backend_config,
		expose, access_level, governance, namespace, publisher, license)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (dataset_id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			backend_type = EXCLUDED.backend_type,
			backend_config = EXCLUDED.backend_config,
			expose = EXCLUDED.expose,
			access_level = EXCLUDED.access_level,
			governance = EXCLUDED.governance,
			namespace = EXCLUDED.namespace,
			publisher = EXCLUDED.publisher,
			license = EXCLUDED.license`, s.table())

	_, err = s.pool.Exec(ctx, q,
		entry.DatasetID, entry.Title, entry.Description, string(entry.BackendType), backendConfig,
		entry.Expose, string(entry.AccessLevel), governance, entry.Namespace, entry.Publisher, entry.License,
	)
	if err != nil {
		return gwerror.Upstream("catalogue upsert failed", err)
	}
	return nil
}

func rowToEntry(r row) (*DatasetEntry, error) {
	var backendConfig map[string]any
	if len(r.backendConfig) > 0 {
		if err := json.Unmarshal(r.backendConfig, &backendConfig); err != nil {
			return nil, gwerror.Upstream("malformed backend_config in catalogue", err)
		}
	}
	var governance Governance
	if len(r.governance) > 0 {
		if err := json.Unmarshal(r.governance, &governance); err != nil {
			return nil, gwerror.Upstream("malformed governance in catalogue", err)
		}
	}
	return &DatasetEntry{
		DatasetID:     r.datasetID,
		Title:         r.title,
		Description:   r.description,
		BackendType:   BackendType(r.backendType),
		BackendConfig: map[string]any(backendConfig),
		Expose:        r.expose,
		AccessLevel:   AccessLevel(r.accessLevel),
		Governance:    governance,
		Namespace:     r.namespace,
		Publisher:     r.publisher,
		License:       r.license,
	}, nil
}
