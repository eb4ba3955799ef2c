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

package executor

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultLimitWhenNonpositive, ClampLimit(0))
	assert.Equal(t, DefaultLimitWhenNonpositive, ClampLimit(-5))
	assert.Equal(t, 50, ClampLimit(50))
	assert.Equal(t, MaxLimit, ClampLimit(50_000))
}

func TestClampOffset(t *testing.T) {
	assert.Equal(t, 0, ClampOffset(-1))
	assert.Equal(t, 10, ClampOffset(10))
}

func TestExecuteReturnsItemsAndTotal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	mock.MatchExpectationsInOrder(false)

	rewritten := `SELECT id, city FROM solar`

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL statement_timeout`).WillReturnResult(pgxmock.NewResult("SET", 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM \(SELECT id, city FROM solar\) AS q`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(2)))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL statement_timeout`).WillReturnResult(pgxmock.NewResult("SET", 0))
	mock.ExpectQuery(`SELECT \* FROM \(SELECT id, city FROM solar\) AS q LIMIT 100 OFFSET 0`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "city"}).
			AddRow(int64(1), "Milan").
			AddRow(int64(2), "Turin"))
	mock.ExpectCommit()

	exec := NewExecutor(mock, 0)
	result, err := exec.Execute(context.Background(), rewritten, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, 100, result.Limit)
	assert.Equal(t, 0, result.Offset)
	assert.Equal(t, int64(2), result.Total)
	assert.Equal(t, 2, result.Count)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "Milan", result.Items[0]["city"])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteTranslatesStatementTimeout(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL statement_timeout`).WillReturnResult(pgxmock.NewResult("SET", 0))
	mock.ExpectQuery(`SELECT COUNT`).WillReturnError(&pgconn.PgError{Code: postgresQueryCanceled, Message: "canceling statement due to statement timeout"})
	mock.ExpectRollback()

	exec := NewExecutor(mock, 2000)
	_, err = exec.Execute(context.Background(), `SELECT id FROM solar`, 10, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "time limit")
}

func TestTranslateQueryErrorNonTimeout(t *testing.T) {
	err := translateQueryError(&pgconn.PgError{Code: "42601", Message: "syntax error"})
	assert.Contains(t, err.Error(), "Database query failed")
}

func TestLooksLikeWKBHex(t *testing.T) {
	assert.True(t, looksLikeWKBHex("0101000020E6100000000000000000F03F000000000000F03F"))
	assert.False(t, looksLikeWKBHex("Milan"))
	assert.False(t, looksLikeWKBHex("abc"))
}
