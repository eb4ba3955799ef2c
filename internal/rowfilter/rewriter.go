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

package rowfilter

import (
	"fmt"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/celine-eu/dataset-api/internal/gwerror"
	"github.com/celine-eu/dataset-api/internal/sqlgate"
)

// Rewrite injects plans into parsed's AST in place, per the two-step
// algorithm: if any plan denies, every leaf SELECT gets a literal FALSE
// WHERE predicate and no further rewriting happens; otherwise every SELECT
// in the AST gets, for each FROM/JOIN occurrence of a governed table, that
// table's predicate AND-ed into the occurrence's own WHERE clause,
// qualified by the occurrence's alias (or bare table name if unaliased).
func Rewrite(parsed *sqlgate.ParsedSQL, plans map[string]*RowFilterPlan) error {
	if len(plans) == 0 {
		return nil
	}

	for _, plan := range plans {
		if plan.Kind == KindDeny {
			injectDenyFalse(parsed.Result.Stmts[0].Stmt)
			return nil
		}
	}

	return injectPredicates(parsed.Result.Stmts[0].Stmt, plans)
}

// injectDenyFalse walks down through set-op branches to every leaf SELECT
// and ANDs in a literal FALSE, guaranteeing zero rows regardless of how
// many branches a UNION has.
func injectDenyFalse(node *pg_query.Node) {
	if node == nil {
		return
	}
	sel, ok := node.Node.(*pg_query.Node_SelectStmt)
	if !ok || sel.SelectStmt == nil {
		return
	}
	s := sel.SelectStmt
	if s.Larg != nil {
		injectDenyFalse(&pg_query.Node{Node: &pg_query.Node_SelectStmt{SelectStmt: s.Larg}})
	}
	if s.Rarg != nil {
		injectDenyFalse(&pg_query.Node{Node: &pg_query.Node_SelectStmt{SelectStmt: s.Rarg}})
	}
	if s.Larg != nil || s.Rarg != nil {
		return
	}
	falseLit := makeBoolConst(false)
	if s.WhereClause == nil {
		s.WhereClause = falseLit
	} else {
		s.WhereClause = makeAndExpr(s.WhereClause, falseLit)
	}
}

func injectPredicates(node *pg_query.Node, plans map[string]*RowFilterPlan) error {
	if node == nil {
		return nil
	}
	sel, ok := node.Node.(*pg_query.Node_SelectStmt)
	if !ok || sel.SelectStmt == nil {
		return nil
	}
	return injectPredicatesInSelect(sel.SelectStmt, plans)
}

func injectPredicatesInSelect(s *pg_query.SelectStmt, plans map[string]*RowFilterPlan) error {
	if s == nil {
		return nil
	}

	if s.WithClause != nil {
		for _, cte := range s.WithClause.Ctes {
			if c, ok := cte.Node.(*pg_query.Node_CommonTableExpr); ok {
				if err := injectPredicates(c.CommonTableExpr.Ctequery, plans); err != nil {
					return err
				}
			}
		}
	}
	if s.Larg != nil {
		if err := injectPredicatesInSelect(s.Larg, plans); err != nil {
			return err
		}
	}
	if s.Rarg != nil {
		if err := injectPredicatesInSelect(s.Rarg, plans); err != nil {
			return err
		}
	}

	var filters []*pg_query.Node
	for _, from := range s.FromClause {
		fs, err := predicatesForFrom(from, plans)
		if err != nil {
			return err
		}
		filters = append(filters, fs...)

		if err := injectPredicatesInFromSubqueries(from, plans); err != nil {
			return err
		}
	}

	if len(filters) > 0 {
		combined := combineWithAnd(filters)
		if s.WhereClause == nil {
			s.WhereClause = combined
		} else {
			s.WhereClause = makeAndExpr(s.WhereClause, combined)
		}
	}

	return injectPredicatesInExpr(s.WhereClause, plans)
}

// predicatesForFrom walks one FROM-clause entry (a RangeVar or a tree of
// JoinExprs) and returns one predicate node per governed table occurrence
// found in it.
func predicatesForFrom(node *pg_query.Node, plans map[string]*RowFilterPlan) ([]*pg_query.Node, error) {
	if node == nil {
		return nil, nil
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_RangeVar:
		plan, qualifier, ok := lookupPlanForRangeVar(n.RangeVar, plans)
		if !ok {
			return nil, nil
		}
		var nodes []*pg_query.Node
		for _, pred := range plan.PredicateTemplates {
			predNode, err := buildPredicateNode(pred, qualifier)
			if err != nil {
				return nil, err
			}
			if predNode != nil {
				nodes = append(nodes, predNode)
			}
		}
		return nodes, nil
	case *pg_query.Node_JoinExpr:
		left, err := predicatesForFrom(n.JoinExpr.Larg, plans)
		if err != nil {
			return nil, err
		}
		right, err := predicatesForFrom(n.JoinExpr.Rarg, plans)
		if err != nil {
			return nil, err
		}
		return append(left, right...), nil
	default:
		return nil, nil
	}
}

func injectPredicatesInFromSubqueries(node *pg_query.Node, plans map[string]*RowFilterPlan) error {
	if node == nil {
		return nil
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_RangeSubselect:
		return injectPredicates(n.RangeSubselect.Subquery, plans)
	case *pg_query.Node_JoinExpr:
		if err := injectPredicatesInFromSubqueries(n.JoinExpr.Larg, plans); err != nil {
			return err
		}
		return injectPredicatesInFromSubqueries(n.JoinExpr.Rarg, plans)
	}
	return nil
}

func injectPredicatesInExpr(node *pg_query.Node, plans map[string]*RowFilterPlan) error {
	if node == nil {
		return nil
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_SubLink:
		return injectPredicates(n.SubLink.Subselect, plans)
	case *pg_query.Node_BoolExpr:
		for _, arg := range n.BoolExpr.Args {
			if err := injectPredicatesInExpr(arg, plans); err != nil {
				return err
			}
		}
	}
	return nil
}

// lookupPlanForRangeVar matches rv against plans by the physical table
// identifier (schema-qualified if rv carries a schema, bare relname
// otherwise — the same shape sqlgate.SubstituteTables produces) and
// returns the occurrence's column qualifier: its alias if it has one, else
// its bare (unqualified) table name.
func lookupPlanForRangeVar(rv *pg_query.RangeVar, plans map[string]*RowFilterPlan) (*RowFilterPlan, string, bool) {
	key := rv.Relname
	if rv.Schemaname != "" {
		key = rv.Schemaname + "." + rv.Relname
	}
	plan, ok := plans[key]
	if !ok || plan.Kind != KindPredicate || len(plan.PredicateTemplates) == 0 {
		return nil, "", false
	}
	qualifier := rv.Relname
	if rv.Alias != nil && rv.Alias.Aliasname != "" {
		qualifier = rv.Alias.Aliasname
	}
	return plan, qualifier, true
}

func buildPredicateNode(pred *Predicate, qualifier string) (*pg_query.Node, error) {
	if pred == nil {
		return nil, nil
	}
	switch pred.Op {
	case "TRUE":
		return makeBoolConst(true), nil
	case "=":
		lit, err := makeLiteral(pred.Literal)
		if err != nil {
			return nil, err
		}
		return &pg_query.Node{Node: &pg_query.Node_AExpr{AExpr: &pg_query.A_Expr{
			Kind:  pg_query.A_Expr_Kind_AEXPR_OP,
			Name:  []*pg_query.Node{makeStringNode("=")},
			Lexpr: makeColumnRef(pred.Column, qualifier),
			Rexpr: lit,
		}}}, nil
	case "IN":
		items, ok := pred.Literal.([]any)
		if !ok {
			return nil, gwerror.ConfigError("IN predicate literal must be a list")
		}
		elems := make([]*pg_query.Node, 0, len(items))
		for _, v := range items {
			lit, err := makeLiteral(v)
			if err != nil {
				return nil, err
			}
			elems = append(elems, lit)
		}
		return &pg_query.Node{Node: &pg_query.Node_AExpr{AExpr: &pg_query.A_Expr{
			Kind:  pg_query.A_Expr_Kind_AEXPR_IN,
			Name:  []*pg_query.Node{makeStringNode("=")},
			Lexpr: makeColumnRef(pred.Column, qualifier),
			Rexpr: &pg_query.Node{Node: &pg_query.Node_List{List: &pg_query.List{Items: elems}}},
		}}}, nil
	case "SUBQUERY_IN":
		subResult, err := pg_query.Parse(pred.Subquery)
		if err != nil || len(subResult.Stmts) != 1 {
			return nil, gwerror.ConfigError(fmt.Sprintf("row-filter handler produced unparseable subquery: %v", err))
		}
		subSelect, ok := subResult.Stmts[0].Stmt.Node.(*pg_query.Node_SelectStmt)
		if !ok {
			return nil, gwerror.ConfigError("row-filter handler subquery must be a SELECT")
		}
		return &pg_query.Node{Node: &pg_query.Node_SubLink{SubLink: &pg_query.SubLink{
			SubLinkType: pg_query.SubLinkType_ANY_SUBLINK,
			Testexpr:    makeColumnRef(pred.Column, qualifier),
			OperName:    []*pg_query.Node{makeStringNode("=")},
			Subselect:   &pg_query.Node{Node: &pg_query.Node_SelectStmt{SelectStmt: subSelect.SelectStmt}},
		}}}, nil
	default:
		return nil, gwerror.ConfigError("unknown row-filter predicate operator " + pred.Op)
	}
}

func makeColumnRef(column, qualifier string) *pg_query.Node {
	var fields []*pg_query.Node
	if qualifier != "" {
		fields = append(fields, makeStringNode(qualifier))
	}
	fields = append(fields, makeStringNode(column))
	return &pg_query.Node{Node: &pg_query.Node_ColumnRef{ColumnRef: &pg_query.ColumnRef{Fields: fields}}}
}

func makeLiteral(v any) (*pg_query.Node, error) {
	switch val := v.(type) {
	case string:
		return &pg_query.Node{Node: &pg_query.Node_AConst{AConst: &pg_query.A_Const{
			Val: &pg_query.A_Const_Sval{Sval: &pg_query.String{Sval: val}},
		}}}, nil
	case int:
		return makeIntegerConst(int64(val)), nil
	case int64:
		return makeIntegerConst(val), nil
	case float64:
		if val == float64(int64(val)) {
			return makeIntegerConst(int64(val)), nil
		}
		return &pg_query.Node{Node: &pg_query.Node_AConst{AConst: &pg_query.A_Const{
			Val: &pg_query.A_Const_Fval{Fval: &pg_query.Float{Fval: fmt.Sprintf("%g", val)}},
		}}}, nil
	case bool:
		return makeBoolConst(val), nil
	default:
		return nil, gwerror.ConfigError(fmt.Sprintf("row-filter handler produced unsupported literal type %T", v))
	}
}

func makeIntegerConst(v int64) *pg_query.Node {
	return &pg_query.Node{Node: &pg_query.Node_AConst{AConst: &pg_query.A_Const{
		Val: &pg_query.A_Const_Ival{Ival: &pg_query.Integer{Ival: int32(v)}},
	}}}
}

func makeBoolConst(v bool) *pg_query.Node {
	return &pg_query.Node{Node: &pg_query.Node_AConst{AConst: &pg_query.A_Const{
		Val: &pg_query.A_Const_Boolval{Boolval: &pg_query.Boolean{Boolval: v}},
	}}}
}

func makeStringNode(s string) *pg_query.Node {
	return &pg_query.Node{Node: &pg_query.Node_String_{String_: &pg_query.String{Sval: s}}}
}

// combineWithAnd combines multiple predicate nodes into one BoolExpr AND.
func combineWithAnd(exprs []*pg_query.Node) *pg_query.Node {
	if len(exprs) == 1 {
		return exprs[0]
	}
	return &pg_query.Node{Node: &pg_query.Node_BoolExpr{BoolExpr: &pg_query.BoolExpr{
		Boolop: pg_query.BoolExprType_AND_EXPR,
		Args:   exprs,
	}}}
}

// makeAndExpr ANDs left and right, flattening an existing top-level AND on
// either side so chained rewrites don't nest BoolExprs unnecessarily deep.
func makeAndExpr(left, right *pg_query.Node) *pg_query.Node {
	var args []*pg_query.Node
	if be, ok := left.Node.(*pg_query.Node_BoolExpr); ok && be.BoolExpr.Boolop == pg_query.BoolExprType_AND_EXPR {
		args = append(args, be.BoolExpr.Args...)
	} else {
		args = append(args, left)
	}
	if be, ok := right.Node.(*pg_query.Node_BoolExpr); ok && be.BoolExpr.Boolop == pg_query.BoolExprType_AND_EXPR {
		args = append(args, be.BoolExpr.Args...)
	} else {
		args = append(args, right)
	}
	return &pg_query.Node{Node: &pg_query.Node_BoolExpr{BoolExpr: &pg_query.BoolExpr{
		Boolop: pg_query.BoolExprType_AND_EXPR,
		Args:   args,
	}}}
}
