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
	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/celine-eu/dataset-api/internal/gwerror"
)

// checkTautologies rejects any "=" comparison whose two operands deparse to
// the identical SQL text (e.g. "1=1", "(1)=(1)"). Comparisons whose
// operands merely evaluate the same ("1 = 1.0") are accepted: equality is
// decided on token-sequence identity, not on semantic value.
func checkTautologies(node *pg_query.Node) error {
	if node == nil {
		return nil
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_SelectStmt:
		return checkTautologiesInSelect(n.SelectStmt)
	case *pg_query.Node_BoolExpr:
		for _, arg := range n.BoolExpr.Args {
			if err := checkTautologies(arg); err != nil {
				return err
			}
		}
		return nil
	case *pg_query.Node_AExpr:
		if isEqualityOperator(n.AExpr) {
			lhs, lerr := deparseExpr(n.AExpr.Lexpr)
			rhs, rerr := deparseExpr(n.AExpr.Rexpr)
			if lerr == nil && rerr == nil && lhs != "" && lhs == rhs {
				return gwerror.InvalidRequest("tautological predicate is not allowed")
			}
		}
		if err := checkTautologies(n.AExpr.Lexpr); err != nil {
			return err
		}
		return checkTautologies(n.AExpr.Rexpr)
	case *pg_query.Node_SubLink:
		return checkTautologies(n.SubLink.Subselect)
	case *pg_query.Node_ResTarget:
		return checkTautologies(n.ResTarget.Val)
	default:
		return nil
	}
}

func checkTautologiesInSelect(sel *pg_query.SelectStmt) error {
	if sel == nil {
		return nil
	}
	if err := checkTautologies(toNode(sel.Larg)); err != nil {
		return err
	}
	if err := checkTautologies(toNode(sel.Rarg)); err != nil {
		return err
	}
	if err := checkTautologies(sel.WhereClause); err != nil {
		return err
	}
	if err := checkTautologies(sel.HavingClause); err != nil {
		return err
	}
	if sel.WithClause != nil {
		for _, cte := range sel.WithClause.Ctes {
			if c, ok := cte.Node.(*pg_query.Node_CommonTableExpr); ok {
				if err := checkTautologies(c.CommonTableExpr.Ctequery); err != nil {
					return err
				}
			}
		}
	}
	for _, from := range sel.FromClause {
		if err := checkTautologiesInFrom(from); err != nil {
			return err
		}
	}
	return nil
}

func checkTautologiesInFrom(node *pg_query.Node) error {
	if node == nil {
		return nil
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_RangeSubselect:
		return checkTautologies(n.RangeSubselect.Subquery)
	case *pg_query.Node_JoinExpr:
		if err := checkTautologiesInFrom(n.JoinExpr.Larg); err != nil {
			return err
		}
		if err := checkTautologiesInFrom(n.JoinExpr.Rarg); err != nil {
			return err
		}
		return checkTautologies(n.JoinExpr.Quals)
	default:
		return nil
	}
}

func isEqualityOperator(expr *pg_query.A_Expr) bool {
	if expr.Kind != pg_query.A_Expr_Kind_AEXPR_OP || len(expr.Name) != 1 {
		return false
	}
	s, ok := expr.Name[0].Node.(*pg_query.Node_String_)
	return ok && s.String_.Sval == "="
}

// deparseExpr renders a single expression node back to SQL text by
// wrapping it as the sole target of a throwaway "SELECT <expr>" and
// stripping the prefix — pg_query_go only deparses whole statements.
func deparseExpr(node *pg_query.Node) (string, error) {
	if node == nil {
		return "", nil
	}
	wrapper := &pg_query.ParseResult{
		Stmts: []*pg_query.RawStmt{{
			Stmt: &pg_query.Node{
				Node: &pg_query.Node_SelectStmt{
					SelectStmt: &pg_query.SelectStmt{
						TargetList: []*pg_query.Node{{
							Node: &pg_query.Node_ResTarget{
								ResTarget: &pg_query.ResTarget{Val: node},
							},
						}},
					},
				},
			},
		}},
	}
	out, err := pg_query.Deparse(wrapper)
	if err != nil {
		return "", err
	}
	const prefix = "SELECT "
	if len(out) >= len(prefix) && out[:len(prefix)] == prefix {
		return out[len(prefix):], nil
	}
	return out, nil
}
