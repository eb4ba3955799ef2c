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

package sqlgate

import (
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// SubstituteTables replaces every RangeVar whose logical dataset identifier
// is a key of mapping with its physical table name. A dotted logical id
// (e.g. "prod.energy.solar") is replaced wholesale — Catalogname,
// Schemaname, and Relname are all overwritten — so a logical id can never
// be reinterpreted as a real catalog/schema qualifier after substitution.
// CTE aliases are left untouched even if their name happens to collide with
// a mapping key.
func SubstituteTables(parsed *ParsedSQL, mapping map[string]string) {
	cteNames := make(map[string]struct{})
	collectCTENames(parsed.Result.Stmts[0].Stmt, cteNames)
	substituteNode(parsed.Result.Stmts[0].Stmt, mapping, cteNames)
}

func collectCTENames(node *pg_query.Node, cteNames map[string]struct{}) {
	if node == nil {
		return
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_SelectStmt:
		sel := n.SelectStmt
		if sel == nil {
			return
		}
		if sel.WithClause != nil {
			for _, cte := range sel.WithClause.Ctes {
				if c, ok := cte.Node.(*pg_query.Node_CommonTableExpr); ok {
					cteNames[c.CommonTableExpr.Ctename] = struct{}{}
					collectCTENames(c.CommonTableExpr.Ctequery, cteNames)
				}
			}
		}
		collectCTENames(toNode(sel.Larg), cteNames)
		collectCTENames(toNode(sel.Rarg), cteNames)
		for _, from := range sel.FromClause {
			collectCTENamesFromFrom(from, cteNames)
		}
		collectCTENamesFromExpr(sel.WhereClause, cteNames)
	}
}

func collectCTENamesFromFrom(node *pg_query.Node, cteNames map[string]struct{}) {
	if node == nil {
		return
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_JoinExpr:
		collectCTENamesFromFrom(n.JoinExpr.Larg, cteNames)
		collectCTENamesFromFrom(n.JoinExpr.Rarg, cteNames)
	case *pg_query.Node_RangeSubselect:
		collectCTENames(n.RangeSubselect.Subquery, cteNames)
	}
}

func collectCTENamesFromExpr(node *pg_query.Node, cteNames map[string]struct{}) {
	if node == nil {
		return
	}
	if sl, ok := node.Node.(*pg_query.Node_SubLink); ok {
		collectCTENames(sl.SubLink.Subselect, cteNames)
	}
}

func substituteNode(node *pg_query.Node, mapping map[string]string, cteNames map[string]struct{}) {
	if node == nil {
		return
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_SelectStmt:
		substituteInSelect(n.SelectStmt, mapping, cteNames)
	case *pg_query.Node_JoinExpr:
		substituteNode(n.JoinExpr.Larg, mapping, cteNames)
		substituteNode(n.JoinExpr.Rarg, mapping, cteNames)
	case *pg_query.Node_RangeSubselect:
		substituteNode(n.RangeSubselect.Subquery, mapping, cteNames)
	}
}

func substituteInSelect(sel *pg_query.SelectStmt, mapping map[string]string, cteNames map[string]struct{}) {
	if sel == nil {
		return
	}
	if sel.WithClause != nil {
		for _, cte := range sel.WithClause.Ctes {
			if c, ok := cte.Node.(*pg_query.Node_CommonTableExpr); ok {
				substituteNode(c.CommonTableExpr.Ctequery, mapping, cteNames)
			}
		}
	}
	substituteInSelect(sel.Larg, mapping, cteNames)
	substituteInSelect(sel.Rarg, mapping, cteNames)
	for _, from := range sel.FromClause {
		substituteInFrom(from, mapping, cteNames)
	}
	substituteInExpr(sel.WhereClause, mapping, cteNames)
}

func substituteInFrom(node *pg_query.Node, mapping map[string]string, cteNames map[string]struct{}) {
	if node == nil {
		return
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_RangeVar:
		logical := rangeVarLogicalName(n.RangeVar)
		if _, isCTE := cteNames[logical]; isCTE {
			return
		}
		if physical, ok := mapping[logical]; ok {
			applyPhysicalName(n.RangeVar, physical)
		}
	case *pg_query.Node_JoinExpr:
		substituteInFrom(n.JoinExpr.Larg, mapping, cteNames)
		substituteInFrom(n.JoinExpr.Rarg, mapping, cteNames)
	case *pg_query.Node_RangeSubselect:
		substituteNode(n.RangeSubselect.Subquery, mapping, cteNames)
	}
}

func substituteInExpr(node *pg_query.Node, mapping map[string]string, cteNames map[string]struct{}) {
	if node == nil {
		return
	}
	if sl, ok := node.Node.(*pg_query.Node_SubLink); ok {
		substituteNode(sl.SubLink.Subselect, mapping, cteNames)
	}
}

// applyPhysicalName overwrites rv in place with the physical name. When
// physical contains a dot, the part before it becomes Schemaname and the
// rest Relname (the catalogue's own schema-qualification); otherwise the
// whole physical name becomes an unqualified Relname with no schema, never
// inheriting the logical identifier's dotted segments as a schema path.
func applyPhysicalName(rv *pg_query.RangeVar, physical string) {
	rv.Catalogname = ""
	if idx := strings.Index(physical, "."); idx >= 0 {
		rv.Schemaname = strings.Trim(physical[:idx], `"`)
		rv.Relname = strings.Trim(physical[idx+1:], `"`)
		return
	}
	rv.Schemaname = ""
	rv.Relname = strings.Trim(physical, `"`)
}
