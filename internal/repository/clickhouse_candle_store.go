package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"CandlePull/internal/domain/models"
	domrepo "CandlePull/internal/domain/repository"
	pkgch "CandlePull/pkg/clickhouse"
	applogger "CandlePull/pkg/logger"
)

const chChunkSize = 2000

// CHCandleStore keeps candles in a ReplacingMergeTree keyed like the Postgres
// primary key, so re-ingested rows collapse on merge and reads use FINAL.
type CHCandleStore struct {
	db   *sql.DB
	exec func(ctx context.Context, query string, args ...any) (sql.Result, error)
	l    *applogger.Logger
}

var _ domrepo.CandleStore = (*CHCandleStore)(nil)

func NewCHCandleStore(ch *pkgch.Client, l *applogger.Logger) *CHCandleStore {
	if l == nil {
		l = applogger.Nop()
	}
	db := ch.DB()
	return &CHCandleStore{db: db, exec: db.ExecContext, l: l}
}

func chIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "\\`") + "`"
}

func chTable(t models.TableRef) string {
	if t.Schema == "" {
		return chIdent(t.Name)
	}
	return chIdent(t.Schema) + "." + chIdent(t.Name)
}

func chSchemaDDL(t models.TableRef) []string {
	var stmts []string
	if t.Schema != "" {
		stmts = append(stmts, "CREATE DATABASE IF NOT EXISTS "+chIdent(t.Schema))
	}
	stmts = append(stmts, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	symbol_id    UInt16,
	period_id    UInt8,
	start_ts_utc Int64,
	end_ts_utc   Int64,
	open         Int64,
	high         Int64,
	low          Int64,
	close        Int64,
	volume       Int64,
	spread       Int64,
	created_at   DateTime64(3, 'UTC'),
	updated_at   DateTime64(3, 'UTC')
) ENGINE = ReplacingMergeTree(updated_at)
PARTITION BY (period_id, toYYYYMM(toDateTime(start_ts_utc)))
ORDER BY (symbol_id, period_id, start_ts_utc)`, chTable(t)))
	return stmts
}

const chColumns = "symbol_id, period_id, start_ts_utc, end_ts_utc, open, high, low, close, volume, spread, created_at, updated_at"

// chInsert renders one multi-row insert and its flattened arguments.
func chInsert(t models.TableRef, rows []models.CandleRow) (string, []any) {
	values := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*12)
	for _, r := range rows {
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			uint16(r.SymbolID), uint8(r.PeriodID), r.StartTS, r.EndTS,
			r.Open, r.High, r.Low, r.Close, r.Volume, r.Spread,
			r.CreatedAt, r.UpdatedAt,
		)
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", chTable(t), chColumns, strings.Join(values, ","))
	return q, args
}

func (s *CHCandleStore) EnsureSchema(ctx context.Context, table models.TableRef) error {
	for _, stmt := range chSchemaDDL(table) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema %s: %w", table, err)
		}
	}
	return nil
}

// InsertRows writes rows in chunks. Duplicates are only collapsed by the
// engine at merge time, so the count is every row sent, re-ingested ones
// included. It over-reports compared with the Postgres store on overlapping
// runs. On error the count is 0 even when earlier chunks were written.
func (s *CHCandleStore) InsertRows(ctx context.Context, table models.TableRef, rows []models.CandleRow) (int, error) {
	start := time.Now()
	for lo := 0; lo < len(rows); lo += chChunkSize {
		hi := lo + chChunkSize
		if hi > len(rows) {
			hi = len(rows)
		}
		q, args := chInsert(table, rows[lo:hi])
		if _, err := s.exec(ctx, q, args...); err != nil {
			s.l.Error("clickhouse insert candles error",
				applogger.String("table", table.String()),
				applogger.Int("chunk_start", lo),
				applogger.Error(err),
			)
			return 0, fmt.Errorf("insert candles into %s: %w", table, err)
		}
	}
	if len(rows) > 0 {
		s.l.Debug("clickhouse candles inserted",
			applogger.String("table", table.String()),
			applogger.Int("rows", len(rows)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return len(rows), nil
}

func (s *CHCandleStore) RunQuery(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		m := make(map[string]any, len(cols))
		for i, c := range cols {
			m[c] = vals[i]
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func chLastEndSQL(t models.TableRef) string {
	return fmt.Sprintf(`SELECT max(end_ts_utc), count()
FROM %s FINAL
WHERE symbol_id = ? AND period_id = ?`, chTable(t))
}

func (s *CHCandleStore) LastEndTS(ctx context.Context, table models.TableRef, symbolID, periodID int) (int64, bool, error) {
	var (
		ts int64
		n  uint64
	)
	err := s.db.QueryRowContext(ctx, chLastEndSQL(table), uint16(symbolID), uint8(periodID)).Scan(&ts, &n)
	if err != nil {
		return 0, false, fmt.Errorf("last candle of symbol %d: %w", symbolID, err)
	}
	return ts, n > 0, nil
}

func chHistorySQL(t models.TableRef) string {
	return fmt.Sprintf(`SELECT start_ts_utc, end_ts_utc, open, high, low, close, volume, spread
FROM %s FINAL
WHERE symbol_id = ? AND period_id = ? AND start_ts_utc >= ? AND start_ts_utc < ?
ORDER BY start_ts_utc ASC
LIMIT ?`, chTable(t))
}

func (s *CHCandleStore) History(ctx context.Context, table models.TableRef, symbolID, periodID int, from, to int64, limit int) ([]models.FixedCandle, error) {
	rows, err := s.db.QueryContext(ctx, chHistorySQL(table), uint16(symbolID), uint8(periodID), from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("history query: %w", err)
	}
	defer rows.Close()

	out := make([]models.FixedCandle, 0, 1024)
	for rows.Next() {
		var c models.FixedCandle
		if err := rows.Scan(&c.StartTS, &c.EndTS, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.Spread); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *CHCandleStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to pkg/clickhouse.Client.
func (s *CHCandleStore) Close() error { return nil }
