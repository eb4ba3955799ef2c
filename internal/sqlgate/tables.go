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

// rangeVarLogicalName reconstructs the dotted logical identifier the client
// wrote, e.g. "prod.energy.solar", from the RangeVar's Catalogname/
// Schemaname/Relname split — the Postgres grammar parses a dotted name as
// catalog.schema.table regardless of whether it names a real schema, so the
// pieces must be rejoined to recover the identifier verbatim.
func rangeVarLogicalName(rv *pg_query.RangeVar) string {
	parts := make([]string, 0, 3)
	if rv.Catalogname != "" {
		parts = append(parts, rv.Catalogname)
	}
	if rv.Schemaname != "" {
		parts = append(parts, rv.Schemaname)
	}
	parts = append(parts, rv.Relname)
	return strings.Join(parts, ".")
}

// referencedTables walks stmt and returns every logical table name
// referenced anywhere (FROM, JOIN, subqueries, CTE bodies), minus every name
// declared as a CTE alias at any nesting depth — so a CTE can never be
// mistaken for a dataset to resolve.
func referencedTables(stmt *pg_query.Node) map[string]struct{} {
	found := make(map[string]struct{})
	cteNames := make(map[string]struct{})
	collectTables(stmt, found, cteNames)

	out := make(map[string]struct{}, len(found))
	for name := range found {
		if _, isCTE := cteNames[name]; isCTE {
			continue
		}
		out[name] = struct{}{}
	}
	return out
}

func collectTables(node *pg_query.Node, found, cteNames map[string]struct{}) {
	if node == nil {
		return
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_SelectStmt:
		collectTablesFromSelect(n.SelectStmt, found, cteNames)
	case *pg_query.Node_RangeVar:
		found[rangeVarLogicalName(n.RangeVar)] = struct{}{}
	case *pg_query.Node_JoinExpr:
		collectTables(n.JoinExpr.Larg, found, cteNames)
		collectTables(n.JoinExpr.Rarg, found, cteNames)
		collectTablesFromExpr(n.JoinExpr.Quals, found, cteNames)
	case *pg_query.Node_RangeSubselect:
		collectTables(n.RangeSubselect.Subquery, found, cteNames)
	case *pg_query.Node_SubLink:
		collectTables(n.SubLink.Subselect, found, cteNames)
	case *pg_query.Node_BoolExpr:
		for _, arg := range n.BoolExpr.Args {
			collectTablesFromExpr(arg, found, cteNames)
		}
	case *pg_query.Node_AExpr:
		collectTablesFromExpr(n.AExpr.Lexpr, found, cteNames)
		collectTablesFromExpr(n.AExpr.Rexpr, found, cteNames)
	case *pg_query.Node_ResTarget:
		collectTablesFromExpr(n.ResTarget.Val, found, cteNames)
	}
}

func collectTablesFromExpr(node *pg_query.Node, found, cteNames map[string]struct{}) {
	collectTables(node, found, cteNames)
}

func collectTablesFromSelect(sel *pg_query.SelectStmt, found, cteNames map[string]struct{}) {
	if sel == nil {
		return
	}
	if sel.WithClause != nil {
		for _, cte := range sel.WithClause.Ctes {
			if c, ok := cte.Node.(*pg_query.Node_CommonTableExpr); ok {
				cteNames[c.CommonTableExpr.Ctename] = struct{}{}
				collectTables(c.CommonTableExpr.Ctequery, found, cteNames)
			}
		}
	}
	if sel.Larg != nil {
		collectTablesFromSelect(sel.Larg, found, cteNames)
	}
	if sel.Rarg != nil {
		collectTablesFromSelect(sel.Rarg, found, cteNames)
	}
	for _, from := range sel.FromClause {
		collectTables(from, found, cteNames)
	}
	collectTablesFromExpr(sel.WhereClause, found, cteNames)
	collectTablesFromExpr(sel.HavingClause, found, cteNames)
	for _, t := range sel.TargetList {
		collectTablesFromExpr(t, found, cteNames)
	}
}
