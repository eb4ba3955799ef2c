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

// Package catalog maps logical dataset identifiers to governed physical
// tables. A DatasetEntry is owned by the catalogue store and loaded
// read-only per request.
package catalog

// BackendType is the kind of system a dataset's rows live in. Only Postgres
// is queryable by this gateway's core.
type BackendType string

const (
	BackendPostgres BackendType = "postgres"
	BackendS3       BackendType = "s3"
	BackendFS       BackendType = "fs"
)

// AccessLevel controls the auth/policy requirement tier a dataset sits at.
// There is deliberately no "unknown defaults to open" path: callers that
// load an entry with an empty AccessLevel must reject it (see Validate).
type AccessLevel string

const (
	AccessOpen       AccessLevel = "open"
	AccessInternal   AccessLevel = "internal"
	AccessRestricted AccessLevel = "restricted"
)

// RowFilterSpec is one entry of a dataset's ordered governance.rowFilters
// list. Args is opaque to the catalogue; only the named handler understands
// it.
type RowFilterSpec struct {
	Handler string         `json:"handler" yaml:"handler"`
	Args    map[string]any `json:"args" yaml:"args"`
}

// Governance carries the lineage.facets.governance block: the ordered
// row-filter specs plus free-form attributes forwarded verbatim to the
// policy engine as resource.attributes.governance.
type Governance struct {
	RowFilters []RowFilterSpec `json:"rowFilters" yaml:"rowFilters"`
	Attributes map[string]any  `json:"attributes" yaml:"attributes"`
}

// PostgresBackendConfig is the backend_config shape when BackendType is
// postgres: the physical, possibly schema-qualified, table name.
type PostgresBackendConfig struct {
	Table string `json:"table" yaml:"table"`
}

// DatasetEntry is one catalogue record: a logical queryable surface mapping
// to at most one physical table.
type DatasetEntry struct {
	DatasetID     string        `json:"dataset_id" yaml:"dataset_id"`
	Title         string        `json:"title" yaml:"title"`
	Description   string        `json:"description" yaml:"description"`
	BackendType   BackendType   `json:"backend_type" yaml:"backend_type"`
	BackendConfig any           `json:"backend_config" yaml:"backend_config"`
	Expose        bool          `json:"expose" yaml:"expose"`
	AccessLevel   AccessLevel   `json:"access_level" yaml:"access_level"`
	Governance    Governance    `json:"governance" yaml:"governance"`
	Namespace     string        `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Publisher     string        `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	License       string        `json:"license,omitempty" yaml:"license,omitempty"`
}

// Validate enforces the invariants spec.md §3 requires before an entry is
// considered queryable: a non-empty access level (no "unknown means open"),
// and — for postgres datasets — a non-empty backend_config.table.
func (e *DatasetEntry) Validate() error {
	switch e.AccessLevel {
	case AccessOpen, AccessInternal, AccessRestricted:
	default:
		return errInvalidAccessLevel(e.DatasetID, e.AccessLevel)
	}
	if e.BackendType == BackendPostgres {
		table, err := e.PhysicalTable()
		if err != nil || table == "" {
			return errMissingTable(e.DatasetID)
		}
	}
	return nil
}

// PhysicalTable extracts backend_config.table for a postgres dataset,
// tolerating both a typed PostgresBackendConfig and a decoded
// map[string]any (the shape produced by the generic YAML/JSON config
// loader).
func (e *DatasetEntry) PhysicalTable() (string, error) {
	switch cfg := e.BackendConfig.(type) {
	case PostgresBackendConfig:
		return cfg.Table, nil
	case *PostgresBackendConfig:
		if cfg == nil {
			return "", errMalformedBackendConfig(e.DatasetID)
		}
		return cfg.Table, nil
	case map[string]any:
		t, _ := cfg["table"].(string)
		return t, nil
	default:
		return "", errMalformedBackendConfig(e.DatasetID)
	}
}
