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

package executor

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/celine-eu/dataset-api/internal/gwerror"
)

// postgresQueryCanceled is the SQLSTATE Postgres reports when a statement
// is aborted by statement_timeout.
const postgresQueryCanceled = "57014"

// translateQueryError maps a database-side failure to the client-safe
// error the spec requires: a statement_timeout abort is distinguished from
// every other failure, but both are 400s — the query, not the service, is
// at fault.
func translateQueryError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == postgresQueryCanceled {
		return gwerror.InvalidRequest("Query exceeded time limit")
	}
	return gwerror.InvalidRequest("Database query failed")
}
