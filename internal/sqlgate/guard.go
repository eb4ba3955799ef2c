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

	"github.com/celine-eu/dataset-api/internal/gwerror"
)

// guardSemicolons rejects any ';' outside a single-quoted string literal,
// run textually before the statement ever reaches the parser. A doubled
// single quote ('') inside a literal is the escaped-quote form and does not
// close the literal.
func guardSemicolons(sql string) error {
	inString := false
	runes := []rune(sql)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case inString:
			if c == '\'' {
				if i+1 < len(runes) && runes[i+1] == '\'' {
					i++ // escaped quote, stays inside the literal
					continue
				}
				inString = false
			}
		case c == '\'':
			inString = true
		case c == ';':
			return gwerror.InvalidRequest("statement stacking is not allowed")
		}
	}
	if inString {
		return gwerror.InvalidRequest("unterminated string literal")
	}
	return nil
}

// guardComments rejects SQL comments outright; the gateway has no use case
// for them and they are a classic injection vector for smuggling a second
// statement past the semicolon guard.
func guardComments(sql string) error {
	if strings.Contains(sql, "--") || strings.Contains(sql, "/*") {
		return gwerror.InvalidRequest("SQL comments are not allowed")
	}
	return nil
}
