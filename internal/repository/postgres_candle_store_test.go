package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandlePull/internal/domain/models"
)

type fakeBatchResults struct {
	tags []pgconn.CommandTag
	err  error
	i    int
}

func (r *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	if r.err != nil {
		return pgconn.CommandTag{}, r.err
	}
	tag := r.tags[r.i]
	r.i++
	return tag, nil
}
func (r *fakeBatchResults) Query() (pgx.Rows, error) { return nil, errors.New("not used") }
func (r *fakeBatchResults) QueryRow() pgx.Row        { return nil }
func (r *fakeBatchResults) Close() error             { return nil }

type fakeRow struct {
	ts  int64
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*int64) = r.ts
	return nil
}

type fakePG struct {
	execs   []string
	batch   *pgx.Batch
	results *fakeBatchResults
	row     fakeRow
	rowSQL  string
	rowArgs []any
}

func (f *fakePG) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	return pgconn.NewCommandTag("CREATE"), nil
}
func (f *fakePG) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not used")
}
func (f *fakePG) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.rowSQL, f.rowArgs = sql, args
	return f.row
}
func (f *fakePG) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	f.batch = b
	return f.results
}
func (f *fakePG) Ping(context.Context) error { return nil }

var candlesTable = models.TableRef{Schema: "rest-api", Name: "candles"}

func row(start int64) models.CandleRow {
	now := time.Now().UTC()
	return models.CandleRow{
		FixedCandle: models.FixedCandle{StartTS: start, EndTS: start + 60, Open: 113000, High: 113100, Low: 112900, Close: 113050, Volume: 12},
		SymbolID:    3,
		PeriodID:    1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestPGTableQuoting(t *testing.T) {
	assert.Equal(t, `"rest-api"."candles"`, pgTable(candlesTable))
	assert.Equal(t, `"candles"`, pgTable(models.TableRef{Name: "candles"}))
	assert.Contains(t, pgInsertSQL(candlesTable), `ON CONFLICT (symbol_id, period_id, start_ts_utc) DO NOTHING`)
}

func TestPGInsertCountsConflicts(t *testing.T) {
	db := &fakePG{results: &fakeBatchResults{tags: []pgconn.CommandTag{
		pgconn.NewCommandTag("INSERT 0 1"),
		pgconn.NewCommandTag("INSERT 0 0"),
		pgconn.NewCommandTag("INSERT 0 1"),
	}}}
	store := NewPGCandleStore(db, nil, nil)

	inserted, err := store.InsertRows(context.Background(), candlesTable, []models.CandleRow{row(0), row(60), row(120)})
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	assert.Equal(t, 3, db.batch.Len())
}

func TestPGInsertEmptyAndError(t *testing.T) {
	db := &fakePG{results: &fakeBatchResults{err: errors.New("connection reset")}}
	store := NewPGCandleStore(db, nil, nil)

	n, err := store.InsertRows(context.Background(), candlesTable, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Nil(t, db.batch, "no round trip for an empty batch")

	_, err = store.InsertRows(context.Background(), candlesTable, []models.CandleRow{row(0)})
	assert.ErrorContains(t, err, "connection reset")
}

func TestPGLastEndTS(t *testing.T) {
	db := &fakePG{row: fakeRow{ts: 1700000060}}
	store := NewPGCandleStore(db, nil, nil)

	ts, ok, err := store.LastEndTS(context.Background(), candlesTable, 3, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1700000060), ts)
	assert.Equal(t, []any{3, 1}, db.rowArgs)

	db.row = fakeRow{err: pgx.ErrNoRows}
	_, ok, err = store.LastEndTS(context.Background(), candlesTable, 3, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPGEnsureSchema(t *testing.T) {
	db := &fakePG{}
	require.NoError(t, NewPGCandleStore(db, nil, nil).EnsureSchema(context.Background(), candlesTable))
	require.Len(t, db.execs, 3)
	assert.Contains(t, db.execs[0], `CREATE SCHEMA IF NOT EXISTS "rest-api"`)
	assert.Contains(t, db.execs[1], "PRIMARY KEY (symbol_id, period_id, start_ts_utc)")
}

func TestPGCloseReleasesPool(t *testing.T) {
	closed := false
	store := NewPGCandleStore(&fakePG{}, func() { closed = true }, nil)
	require.NoError(t, store.Close())
	assert.True(t, closed)
}
