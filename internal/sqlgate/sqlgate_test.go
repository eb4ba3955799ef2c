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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimpleSelect(t *testing.T) {
	parsed, err := Parse(`SELECT id, city FROM ds_open WHERE city = 'Milan'`, DefaultOptions())
	require.NoError(t, err)
	_, ok := parsed.ReferencedTables["ds_open"]
	assert.True(t, ok)
}

func TestParseRejectsSemicolonStacking(t *testing.T) {
	_, err := Parse(`SELECT 1; DROP TABLE t`, DefaultOptions())
	assert.Error(t, err)
}

func TestParseAllowsSemicolonInsideStringLiteral(t *testing.T) {
	_, err := Parse(`SELECT * FROM ds_open WHERE city = 'a;b'`, DefaultOptions())
	assert.NoError(t, err)
}

func TestParseRejectsComments(t *testing.T) {
	_, err := Parse("SELECT * FROM ds_open -- comment", DefaultOptions())
	assert.Error(t, err)
}

func TestParseRejectsDML(t *testing.T) {
	_, err := Parse(`DELETE FROM ds_open`, DefaultOptions())
	assert.Error(t, err)
}

func TestParseRejectsTopLevelLimit(t *testing.T) {
	_, err := Parse(`SELECT * FROM ds_open LIMIT 10`, DefaultOptions())
	assert.Error(t, err)
}

func TestParseRejectsDisallowedFunction(t *testing.T) {
	_, err := Parse(`SELECT pg_sleep(1) FROM ds_open`, DefaultOptions())
	assert.Error(t, err)
}

func TestParseAllowsAllowlistedFunction(t *testing.T) {
	_, err := Parse(`SELECT lower(city), count(*) FROM ds_open GROUP BY lower(city)`, DefaultOptions())
	assert.NoError(t, err)
}

func TestParseRejectsWindowFunction(t *testing.T) {
	_, err := Parse(`SELECT row_number() OVER () FROM ds_open`, DefaultOptions())
	assert.Error(t, err)
}

func TestParseRejectsIntersect(t *testing.T) {
	_, err := Parse(`SELECT id FROM ds_a INTERSECT SELECT id FROM ds_b`, DefaultOptions())
	assert.Error(t, err)
}

func TestParseAllowsUnion(t *testing.T) {
	parsed, err := Parse(`SELECT id FROM ds_a UNION SELECT id FROM ds_b`, DefaultOptions())
	require.NoError(t, err)
	assert.Contains(t, parsed.ReferencedTables, "ds_a")
	assert.Contains(t, parsed.ReferencedTables, "ds_b")
}

func TestParseRejectsTautology(t *testing.T) {
	_, err := Parse(`SELECT * FROM ds_open WHERE 1=1`, DefaultOptions())
	assert.Error(t, err)
}

func TestParseRejectsParenthesizedTautology(t *testing.T) {
	_, err := Parse(`SELECT * FROM ds_open WHERE (1)=(1)`, DefaultOptions())
	assert.Error(t, err)
}

func TestParseAllowsNonTautologicalEquality(t *testing.T) {
	_, err := Parse(`SELECT * FROM ds_open WHERE 1 = 1.0`, DefaultOptions())
	assert.NoError(t, err)
}

func TestCTEAliasExcludedFromReferencedTables(t *testing.T) {
	parsed, err := Parse(`WITH recent AS (SELECT id FROM ds_open) SELECT id FROM recent`, DefaultOptions())
	require.NoError(t, err)
	assert.Contains(t, parsed.ReferencedTables, "ds_open")
	assert.NotContains(t, parsed.ReferencedTables, "recent")
}

func TestDepthBoundary(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxDepth = 3
	_, err := Parse(`SELECT 1`, opts)
	assert.Error(t, err, "a trivial SELECT already exceeds an unreasonably small depth bound")
}

func TestParseNeverPanics(t *testing.T) {
	inputs := []string{
		``, `   `, `SELECT`, `SELECT FROM`, string(rune(0)), `SELECT * FROM`,
		`WITH x AS (SELECT * FROM x) SELECT * FROM x`,
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			_, _ = Parse(in, DefaultOptions())
		})
	}
}

func TestSubstituteTablesSingleIdentifier(t *testing.T) {
	parsed, err := Parse(`SELECT * FROM prod.energy.solar`, DefaultOptions())
	require.NoError(t, err)
	require.Contains(t, parsed.ReferencedTables, "prod.energy.solar")

	SubstituteTables(parsed, map[string]string{"prod.energy.solar": "solar_panels"})
	out, err := Deparse(parsed.Result)
	require.NoError(t, err)
	assert.NotContains(t, out, "pg_catalog")
	assert.Contains(t, out, "solar_panels")
}

func TestSubstituteTablesSchemaQualifiedPhysical(t *testing.T) {
	parsed, err := Parse(`SELECT * FROM ds_open`, DefaultOptions())
	require.NoError(t, err)

	SubstituteTables(parsed, map[string]string{"ds_open": "warehouse.readings"})
	out, err := Deparse(parsed.Result)
	require.NoError(t, err)
	assert.Contains(t, out, "warehouse")
	assert.Contains(t, out, "readings")
}
