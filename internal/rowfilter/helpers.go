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

import "strings"

// quoteIdentForSubquery double-quotes an identifier unconditionally before
// it is embedded in handler-generated subquery SQL text that gets
// re-parsed by the rewriter — every identifier in a handler-built fragment
// is quoted defensively since the handler, not the user, controls it.
func quoteIdentForSubquery(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// escapeLiteral doubles single quotes in a string about to be embedded
// inside a SQL string literal in handler-generated text.
func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// numericArg coerces a handler arg decoded from either JSON (float64) or
// YAML (int/int64) into a float64, since the catalogue's governance.args is
// shared by both decoders depending on whether the entry came from the
// config file or the admin upsert API.
func numericArg(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
