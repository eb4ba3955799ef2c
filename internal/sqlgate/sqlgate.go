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

// Package sqlgate parses and validates inbound SQL against a strict
// allow-listed grammar, using the real PostgreSQL grammar via pg_query_go
// instead of a regex or hand-rolled recursive-descent parser. Nothing here
// ever lets an internal panic escape to a caller.
package sqlgate

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/celine-eu/dataset-api/internal/gwerror"
)

// DefaultMaxDepth is the AST depth bound applied when Options.MaxDepth is
// unset.
const DefaultMaxDepth = 50

// ParsedSQL is the result of a successful Parse: the AST handle plus the set
// of logical table names the statement references, with every CTE alias (at
// any nesting depth) already excluded. It is not immutable: SubstituteTables
// and rowfilter.Rewrite modify Result's AST in place.
type ParsedSQL struct {
	Result           *pg_query.ParseResult
	ReferencedTables map[string]struct{}
}

// Options configures Parse's grammar enforcement.
type Options struct {
	MaxDepth        int
	AllowedFuncs    map[string]struct{}
	SemicolonGuard  bool
}

// DefaultOptions returns the grammar used by the gateway: default depth
// bound and the full built-in function allow-list.
func DefaultOptions() Options {
	return Options{
		MaxDepth:       DefaultMaxDepth,
		AllowedFuncs:   defaultAllowedFunctions(),
		SemicolonGuard: true,
	}
}

// Parse validates sql against opts and returns a ParsedSQL, or a
// gwerror.KindInvalidRequest for any grammar violation. Parser panics
// (including any panic inside pg_query_go's cgo boundary) are recovered and
// translated to the same generic 400; no internal detail or stack trace is
// ever surfaced.
func Parse(sql string, opts Options) (parsed *ParsedSQL, err error) {
	defer func() {
		if r := recover(); r != nil {
			parsed = nil
			err = gwerror.InvalidRequest("invalid SQL")
		}
	}()

	if opts.SemicolonGuard {
		if err := guardSemicolons(sql); err != nil {
			return nil, err
		}
	}
	if err := guardComments(sql); err != nil {
		return nil, err
	}

	result, err := pg_query.Parse(sql)
	if err != nil {
		return nil, gwerror.InvalidRequest("invalid SQL")
	}

	if err := validateTopLevel(result); err != nil {
		return nil, err
	}

	stmt := result.Stmts[0].Stmt
	if depthOf(stmt) > maxDepthOr(opts) {
		return nil, gwerror.InvalidRequest("query exceeds maximum allowed complexity")
	}

	if err := validateGrammar(stmt, allowedFuncsOr(opts)); err != nil {
		return nil, err
	}

	if err := checkTautologies(stmt); err != nil {
		return nil, err
	}

	tables := referencedTables(stmt)

	return &ParsedSQL{Result: result, ReferencedTables: tables}, nil
}

// Deparse renders parsed back to SQL text. Used both to produce the final
// rewritten statement and, internally, for tautology detection by textual
// comparison.
func Deparse(result *pg_query.ParseResult) (sql string, err error) {
	defer func() {
		if r := recover(); r != nil {
			sql, err = "", gwerror.InvalidRequest("invalid SQL")
		}
	}()
	out, err := pg_query.Deparse(result)
	if err != nil {
		return "", gwerror.InvalidRequest("invalid SQL")
	}
	return out, nil
}

func maxDepthOr(opts Options) int {
	if opts.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return opts.MaxDepth
}

func allowedFuncsOr(opts Options) map[string]struct{} {
	if opts.AllowedFuncs == nil {
		return defaultAllowedFunctions()
	}
	return opts.AllowedFuncs
}
