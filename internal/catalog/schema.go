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
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/celine-eu/dataset-api/internal/gwerror"
)

// ColumnSchema is one column of a GET /catalogue/{id}/schema response, a
// trimmed JSON-Schema-like description adapted from the teacher's
// postgres-list-tables introspection query.
type ColumnSchema struct {
	Name       string `json:"name"`
	DataType   string `json:"data_type"`
	Nullable   bool   `json:"nullable"`
	OrdinalPos int    `json:"ordinal_position"`
}

// TableSchema describes a backing physical table's columns.
type TableSchema struct {
	Schema  string         `json:"schema"`
	Table   string         `json:"table"`
	Columns []ColumnSchema `json:"columns"`
}

const columnsStatement = `
	SELECT column_name, data_type, is_nullable = 'YES' AS nullable, ordinal_position
	FROM information_schema.columns
	WHERE table_schema = $1 AND table_name = $2
	ORDER BY ordinal_position`

// SchemaIntrospector resolves a dataset's physical columns via
// information_schema.columns,
// used by GET /catalogue/{id}/schema.
type SchemaIntrospector struct {
	pool *pgxpool.Pool
}

func NewSchemaIntrospector(pool *pgxpool.Pool) *SchemaIntrospector {
	return &SchemaIntrospector{pool: pool}
}

// Describe returns the column schema for entry's physical table. entry must
// be a postgres-backed dataset (checked by the caller via
// entry.BackendType).
func (s *SchemaIntrospector) Describe(ctx context.Context, entry *DatasetEntry) (*TableSchema, error) {
	physical, err := entry.PhysicalTable()
	if err != nil || physical == "" {
		return nil, gwerror.NotFound("dataset has no physical table")
	}
	schemaName, tableName := splitSchemaTable(physical)

	rows, err := s.pool.Query(ctx, columnsStatement, schemaName, tableName)
	if err != nil {
		return nil, gwerror.Upstream("schema introspection failed", err)
	}
	defer rows.Close()

	ts := &TableSchema{Schema: schemaName, Table: tableName}
	for rows.Next() {
		var c ColumnSchema
		if err := rows.Scan(&c.Name, &c.DataType, &c.Nullable, &c.OrdinalPos); err != nil {
			return nil, gwerror.Upstream("schema introspection scan failed", err)
		}
		ts.Columns = append(ts.Columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, gwerror.Upstream("schema introspection failed", err)
	}
	if len(ts.Columns) == 0 {
		return nil, gwerror.NotFound("physical table not found")
	}
	return ts, nil
}

func splitSchemaTable(physical string) (schema, table string) {
	parts := strings.SplitN(physical, ".", 2)
	if len(parts) == 2 {
		return strings.Trim(parts[0], `"`), strings.Trim(parts[1], `"`)
	}
	return "public", strings.Trim(physical, `"`)
}
