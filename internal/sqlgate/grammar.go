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

	"github.com/celine-eu/dataset-api/internal/gwerror"
)

// validateTopLevel enforces "a single top-level statement that is a SELECT
// or UNION of SELECTs", with no top-level LIMIT/OFFSET — the executor
// injects those itself in §4.5.
func validateTopLevel(result *pg_query.ParseResult) error {
	if len(result.Stmts) != 1 {
		return gwerror.InvalidRequest("exactly one SELECT statement is required")
	}
	sel, ok := result.Stmts[0].Stmt.Node.(*pg_query.Node_SelectStmt)
	if !ok {
		return gwerror.InvalidRequest("only SELECT statements are allowed")
	}
	if sel.SelectStmt.LimitCount != nil || sel.SelectStmt.LimitOffset != nil {
		return gwerror.InvalidRequest("LIMIT/OFFSET are not allowed in the submitted query")
	}
	return nil
}

// validateGrammar walks the full AST rejecting any construct outside
// spec.md §4.1's allow-list: set operations other than UNION, window
// definitions and window function calls, lateral joins, table-valued
// functions in FROM, and any function call not in allowedFuncs.
func validateGrammar(node *pg_query.Node, allowedFuncs map[string]struct{}) error {
	if node == nil {
		return nil
	}

	switch n := node.Node.(type) {
	case *pg_query.Node_SelectStmt:
		return validateSelect(n.SelectStmt, allowedFuncs)
	case *pg_query.Node_RangeFunction:
		return gwerror.InvalidRequest("table functions are not allowed in FROM")
	case *pg_query.Node_RangeSubselect:
		if n.RangeSubselect.Lateral {
			return gwerror.InvalidRequest("LATERAL is not allowed")
		}
		return validateGrammar(n.RangeSubselect.Subquery, allowedFuncs)
	case *pg_query.Node_JoinExpr:
		if err := validateGrammar(n.JoinExpr.Larg, allowedFuncs); err != nil {
			return err
		}
		if err := validateGrammar(n.JoinExpr.Rarg, allowedFuncs); err != nil {
			return err
		}
		return validateGrammar(n.JoinExpr.Quals, allowedFuncs)
	case *pg_query.Node_SubLink:
		return validateGrammar(n.SubLink.Subselect, allowedFuncs)
	case *pg_query.Node_BoolExpr:
		for _, arg := range n.BoolExpr.Args {
			if err := validateGrammar(arg, allowedFuncs); err != nil {
				return err
			}
		}
		return nil
	case *pg_query.Node_AExpr:
		if err := validateGrammar(n.AExpr.Lexpr, allowedFuncs); err != nil {
			return err
		}
		return validateGrammar(n.AExpr.Rexpr, allowedFuncs)
	case *pg_query.Node_NullTest:
		return validateGrammar(n.NullTest.Arg, allowedFuncs)
	case *pg_query.Node_FuncCall:
		return validateFuncCall(n.FuncCall, allowedFuncs)
	case *pg_query.Node_ResTarget:
		return validateGrammar(n.ResTarget.Val, allowedFuncs)
	case *pg_query.Node_TypeCast:
		return validateGrammar(n.TypeCast.Arg, allowedFuncs)
	case *pg_query.Node_CaseExpr:
		for _, when := range n.CaseExpr.Args {
			if err := validateGrammar(when, allowedFuncs); err != nil {
				return err
			}
		}
		if err := validateGrammar(n.CaseExpr.Defresult, allowedFuncs); err != nil {
			return err
		}
		return validateGrammar(n.CaseExpr.Arg, allowedFuncs)
	case *pg_query.Node_CaseWhen:
		if err := validateGrammar(n.CaseWhen.Expr, allowedFuncs); err != nil {
			return err
		}
		return validateGrammar(n.CaseWhen.Result, allowedFuncs)
	case *pg_query.Node_CoalesceExpr:
		for _, arg := range n.CoalesceExpr.Args {
			if err := validateGrammar(arg, allowedFuncs); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}
}

func validateSelect(sel *pg_query.SelectStmt, allowedFuncs map[string]struct{}) error {
	if sel == nil {
		return nil
	}

	if sel.Op != pg_query.SetOperation_SETOP_NONE && sel.Op != pg_query.SetOperation_SETOP_UNION {
		return gwerror.InvalidRequest("only UNION is allowed among set operations")
	}
	if len(sel.WindowClause) > 0 {
		return gwerror.InvalidRequest("window definitions are not allowed")
	}
	if sel.LockingClause != nil && len(sel.LockingClause) > 0 {
		return gwerror.InvalidRequest("row locking clauses are not allowed")
	}

	if err := validateGrammar(toNode(sel.Larg), allowedFuncs); err != nil {
		return err
	}
	if err := validateGrammar(toNode(sel.Rarg), allowedFuncs); err != nil {
		return err
	}

	for _, from := range sel.FromClause {
		if err := validateGrammar(from, allowedFuncs); err != nil {
			return err
		}
	}
	if err := validateGrammar(sel.WhereClause, allowedFuncs); err != nil {
		return err
	}
	if err := validateGrammar(sel.HavingClause, allowedFuncs); err != nil {
		return err
	}
	for _, t := range sel.TargetList {
		if err := validateGrammar(t, allowedFuncs); err != nil {
			return err
		}
	}
	for _, g := range sel.GroupClause {
		if err := validateGrammar(g, allowedFuncs); err != nil {
			return err
		}
	}
	for _, s := range sel.SortClause {
		if sb, ok := s.Node.(*pg_query.Node_SortBy); ok {
			if err := validateGrammar(sb.SortBy.Node, allowedFuncs); err != nil {
				return err
			}
		}
	}
	if sel.WithClause != nil {
		for _, cte := range sel.WithClause.Ctes {
			if c, ok := cte.Node.(*pg_query.Node_CommonTableExpr); ok {
				if err := validateGrammar(c.CommonTableExpr.Ctequery, allowedFuncs); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func validateFuncCall(fc *pg_query.FuncCall, allowedFuncs map[string]struct{}) error {
	if fc.Over != nil {
		return gwerror.InvalidRequest("window function calls are not allowed")
	}
	name := lastFuncNamePart(fc.Funcname)
	if _, ok := allowedFuncs[strings.ToLower(name)]; !ok {
		return gwerror.InvalidRequest("function %q is not in the allow-list", name)
	}
	for _, arg := range fc.Args {
		if err := validateGrammar(arg, allowedFuncs); err != nil {
			return err
		}
	}
	return nil
}

func lastFuncNamePart(funcname []*pg_query.Node) string {
	if len(funcname) == 0 {
		return ""
	}
	last := funcname[len(funcname)-1]
	if s, ok := last.Node.(*pg_query.Node_String_); ok {
		return s.String_.Sval
	}
	return ""
}

func toNode(sel *pg_query.SelectStmt) *pg_query.Node {
	if sel == nil {
		return nil
	}
	return &pg_query.Node{Node: &pg_query.Node_SelectStmt{SelectStmt: sel}}
}
