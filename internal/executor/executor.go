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

// Package executor wraps an already-substituted, already-filtered SELECT
// with pagination and a COUNT, runs both under a per-transaction statement
// timeout, and normalises geometry columns to GeoJSON on the way out. The
// AST-level steps of spec.md §4.5 (table substitution, row-filter
// injection) happen upstream in internal/sqlgate and internal/rowfilter;
// this package only ever sees the final SQL text.
package executor

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/celine-eu/dataset-api/internal/gwerror"
)

const (
	// DefaultLimitWhenNonpositive is substituted for any limit ≤ 0.
	DefaultLimitWhenNonpositive = 100
	// MaxLimit is the hard ceiling a requested limit is clamped to.
	MaxLimit = 10_000
	// DefaultStatementTimeoutMS bounds each transaction's execution time.
	DefaultStatementTimeoutMS = 2000
)

// ClampLimit enforces 0 < limit ≤ MaxLimit, defaulting non-positive values.
func ClampLimit(limit int) int {
	if limit <= 0 {
		limit = DefaultLimitWhenNonpositive
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return limit
}

// ClampOffset enforces offset ≥ 0.
func ClampOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

// PGXPool is the subset of *pgxpool.Pool the executor needs, narrowed so
// tests can substitute github.com/pashagolub/pgxmock/v4's mock pool.
type PGXPool interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Result is the response shape spec.md §4.5 step 7 requires.
type Result struct {
	Items  []map[string]any `json:"items"`
	Offset int              `json:"offset"`
	Limit  int              `json:"limit"`
	Count  int              `json:"count"`
	Total  int64            `json:"total"`
}

// Executor runs the paginated data query and the count query for one
// already-rewritten SELECT.
type Executor struct {
	pool               PGXPool
	statementTimeoutMS int
}

func NewExecutor(pool PGXPool, statementTimeoutMS int) *Executor {
	if statementTimeoutMS <= 0 {
		statementTimeoutMS = DefaultStatementTimeoutMS
	}
	return &Executor{pool: pool, statementTimeoutMS: statementTimeoutMS}
}

// Execute runs rewrittenSQL's data and count statements, each in its own
// transaction with SET LOCAL statement_timeout, and normalises geometry
// columns in the returned rows.
func (e *Executor) Execute(ctx context.Context, rewrittenSQL string, limit, offset int) (*Result, error) {
	limit = ClampLimit(limit)
	offset = ClampOffset(offset)

	total, err := e.count(ctx, rewrittenSQL)
	if err != nil {
		return nil, err
	}

	items, err := e.fetch(ctx, rewrittenSQL, limit, offset)
	if err != nil {
		return nil, err
	}

	return &Result{Items: items, Offset: offset, Limit: limit, Count: len(items), Total: total}, nil
}

func (e *Executor) count(ctx context.Context, rewrittenSQL string) (int64, error) {
	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return 0, gwerror.Upstream("failed to start count transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := e.setStatementTimeout(ctx, tx); err != nil {
		return 0, err
	}

	stmt := fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS q", rewrittenSQL)
	var total int64
	if err := tx.QueryRow(ctx, stmt).Scan(&total); err != nil {
		return 0, translateQueryError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, gwerror.Upstream("failed to commit count transaction", err)
	}
	return total, nil
}

func (e *Executor) fetch(ctx context.Context, rewrittenSQL string, limit, offset int) ([]map[string]any, error) {
	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, gwerror.Upstream("failed to start data transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := e.setStatementTimeout(ctx, tx); err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d OFFSET %d", rewrittenSQL, limit, offset)
	rows, err := tx.Query(ctx, stmt)
	if err != nil {
		return nil, translateQueryError(err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var items []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, translateQueryError(err)
		}
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[f.Name] = normalizeValue(ctx, tx, values[i])
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, translateQueryError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, gwerror.Upstream("failed to commit data transaction", err)
	}
	return items, nil
}

// setStatementTimeout issues SET LOCAL so the bound applies only to the
// current transaction and is never inherited by the next borrower of this
// pooled connection.
func (e *Executor) setStatementTimeout(ctx context.Context, tx pgx.Tx) error {
	stmt := fmt.Sprintf("SET LOCAL statement_timeout = %d", e.statementTimeoutMS)
	if _, err := tx.Exec(ctx, stmt); err != nil {
		return gwerror.Upstream("failed to set statement timeout", err)
	}
	return nil
}
