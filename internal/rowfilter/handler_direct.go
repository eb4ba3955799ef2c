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

	"github.com/celine-eu/dataset-api/internal/gwerror"
	"github.com/celine-eu/dataset-api/internal/identity"
)

// resolveDirectUserMatch implements the direct_user_match built-in:
// produces "column = user.sub". Requires args.column.
func resolveDirectUserMatch(_ context.Context, table string, user *identity.AuthenticatedUser, args map[string]any, _ RequestContext) (*RowFilterPlan, error) {
	column, _ := args["column"].(string)
	if column == "" {
		return nil, gwerror.ConfigError("direct_user_match requires args.column")
	}
	if user == nil {
		return &RowFilterPlan{Table: table, Kind: KindDeny}, nil
	}
	return &RowFilterPlan{
		Table: table,
		Kind:  KindPredicate,
		PredicateTemplates: []*Predicate{{
			Column:  column,
			Op:      "=",
			Literal: user.Sub,
		}},
	}, nil
}
