package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandlePull/internal/domain/models"
	applogger "CandlePull/pkg/logger"
)

func TestCHTableQuoting(t *testing.T) {
	assert.Equal(t, "`rest-api`.`candles`", chTable(candlesTable))
	assert.Equal(t, "`candles`", chTable(models.TableRef{Name: "candles"}))
}

func TestCHInsertRendersAllRows(t *testing.T) {
	rows := []models.CandleRow{row(0), row(60)}
	q, args := chInsert(candlesTable, rows)

	assert.True(t, strings.HasPrefix(q, "INSERT INTO `rest-api`.`candles` (symbol_id,"))
	assert.Equal(t, 2, strings.Count(q, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"))
	require.Len(t, args, 24)
	assert.Equal(t, uint16(3), args[0])
	assert.Equal(t, int64(60), args[12+2], "second row start")
}

func TestCHSchemaAndQueries(t *testing.T) {
	ddl := chSchemaDDL(candlesTable)
	require.Len(t, ddl, 2)
	assert.Contains(t, ddl[0], "CREATE DATABASE IF NOT EXISTS `rest-api`")
	assert.Contains(t, ddl[1], "ReplacingMergeTree(updated_at)")
	assert.Contains(t, ddl[1], "ORDER BY (symbol_id, period_id, start_ts_utc)")

	assert.Contains(t, chLastEndSQL(candlesTable), "FINAL")
	assert.Contains(t, chHistorySQL(candlesTable), "ORDER BY start_ts_utc ASC")
}

func TestCHInsertRowsFailureReportsNothingInserted(t *testing.T) {
	calls := 0
	store := &CHCandleStore{
		l: applogger.Nop(),
		exec: func(context.Context, string, ...any) (sql.Result, error) {
			calls++
			if calls == 2 {
				return nil, errors.New("too many parts")
			}
			return nil, nil
		},
	}

	rows := make([]models.CandleRow, chChunkSize+10)
	for i := range rows {
		rows[i] = row(int64(i) * 60)
	}
	n, err := store.InsertRows(context.Background(), candlesTable, rows)
	require.Error(t, err)
	assert.Zero(t, n, "first chunk was written but the batch failed")
	assert.Equal(t, 2, calls)

	calls = 10
	n, err = store.InsertRows(context.Background(), candlesTable, rows[:3])
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
