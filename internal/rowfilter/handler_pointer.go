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
	"context"
	"fmt"

	"github.com/celine-eu/dataset-api/internal/gwerror"
	"github.com/celine-eu/dataset-api/internal/identity"
)

// resolveTablePointer implements the table_pointer built-in: a subquery
// predicate "column IN (SELECT pointer_key_column FROM pointer_table WHERE
// pointer_subject_column = user.sub)".
func resolveTablePointer(_ context.Context, table string, user *identity.AuthenticatedUser, args map[string]any, _ RequestContext) (*RowFilterPlan, error) {
	column, _ := args["column"].(string)
	pointerTable, _ := args["pointer_table"].(string)
	pointerKeyColumn, _ := args["pointer_key_column"].(string)
	if column == "" || pointerTable == "" || pointerKeyColumn == "" {
		return nil, gwerror.ConfigError("table_pointer requires args.column, args.pointer_table, args.pointer_key_column")
	}
	pointerSubjectColumn, _ := args["pointer_subject_column"].(string)
	if pointerSubjectColumn == "" {
		pointerSubjectColumn = "user_id"
	}

	if user == nil {
		return &RowFilterPlan{Table: table, Kind: KindDeny}, nil
	}

	subquery := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = '%s'",
		quoteIdentForSubquery(pointerKeyColumn), quoteIdentForSubquery(pointerTable),
		quoteIdentForSubquery(pointerSubjectColumn), escapeLiteral(user.Sub),
	)

	return &RowFilterPlan{
		Table: table,
		Kind:  KindPredicate,
		PredicateTemplates: []*Predicate{{
			Column:   column,
			Op:       "SUBQUERY_IN",
			Subquery: subquery,
		}},
	}, nil
}
