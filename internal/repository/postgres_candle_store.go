package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"CandlePull/internal/domain/models"
	domrepo "CandlePull/internal/domain/repository"
	applogger "CandlePull/pkg/logger"
)

// pgxDB is the part of *pgxpool.Pool the store needs.
type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Ping(ctx context.Context) error
}

// PGCandleStore keeps candles in Postgres, one row per (symbol, period, start).
type PGCandleStore struct {
	db    pgxDB
	close func()
	l     *applogger.Logger
}

var _ domrepo.CandleStore = (*PGCandleStore)(nil)

// NewPGCandleStore wraps a pool. closeFn releases it on Close and may be nil.
func NewPGCandleStore(db pgxDB, closeFn func(), l *applogger.Logger) *PGCandleStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &PGCandleStore{db: db, close: closeFn, l: l}
}

func pgTable(t models.TableRef) string {
	if t.Schema == "" {
		return pgx.Identifier{t.Name}.Sanitize()
	}
	return pgx.Identifier{t.Schema, t.Name}.Sanitize()
}

func pgSchemaDDL(t models.TableRef) []string {
	table := pgTable(t)
	var stmts []string
	if t.Schema != "" {
		stmts = append(stmts, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{t.Schema}.Sanitize()))
	}
	stmts = append(stmts,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	symbol_id    INTEGER     NOT NULL,
	period_id    INTEGER     NOT NULL,
	start_ts_utc BIGINT      NOT NULL,
	end_ts_utc   BIGINT      NOT NULL,
	open         BIGINT      NOT NULL,
	high         BIGINT      NOT NULL,
	low          BIGINT      NOT NULL,
	close        BIGINT      NOT NULL,
	volume       BIGINT      NOT NULL DEFAULT 0,
	spread       BIGINT      NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (symbol_id, period_id, start_ts_utc)
)`, table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (symbol_id, period_id, end_ts_utc DESC)",
			pgx.Identifier{t.Name + "_end_ts_idx"}.Sanitize(), table),
	)
	return stmts
}

func pgInsertSQL(t models.TableRef) string {
	return fmt.Sprintf(`INSERT INTO %s
	(symbol_id, period_id, start_ts_utc, end_ts_utc, open, high, low, close, volume, spread, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (symbol_id, period_id, start_ts_utc) DO NOTHING`, pgTable(t))
}

func (s *PGCandleStore) EnsureSchema(ctx context.Context, table models.TableRef) error {
	for _, stmt := range pgSchemaDDL(table) {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema %s: %w", table, err)
		}
	}
	return nil
}

// InsertRows queues every row in one batch. Rows already stored are skipped;
// the returned count excludes them.
func (s *PGCandleStore) InsertRows(ctx context.Context, table models.TableRef, rows []models.CandleRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	start := time.Now()
	q := pgInsertSQL(table)

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(q, r.SymbolID, r.PeriodID, r.StartTS, r.EndTS,
			r.Open, r.High, r.Low, r.Close, r.Volume, r.Spread, r.CreatedAt, r.UpdatedAt)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	conflicts := 0
	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, fmt.Errorf("insert candles into %s: %w", table, err)
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	s.l.Debug("candles inserted",
		applogger.String("table", table.String()),
		applogger.Int("rows", len(rows)),
		applogger.Int("conflicts", conflicts),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return len(rows) - conflicts, nil
}

func (s *PGCandleStore) RunQuery(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("collect rows: %w", err)
	}
	return out, nil
}

func (s *PGCandleStore) LastEndTS(ctx context.Context, table models.TableRef, symbolID, periodID int) (int64, bool, error) {
	q := fmt.Sprintf(`SELECT end_ts_utc FROM %s
WHERE symbol_id = $1 AND period_id = $2
ORDER BY end_ts_utc DESC
LIMIT 1`, pgTable(table))

	var ts int64
	err := s.db.QueryRow(ctx, q, symbolID, periodID).Scan(&ts)
	switch {
	case err == nil:
		return ts, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("last candle of symbol %d: %w", symbolID, err)
	}
}

func (s *PGCandleStore) History(ctx context.Context, table models.TableRef, symbolID, periodID int, from, to int64, limit int) ([]models.FixedCandle, error) {
	q := fmt.Sprintf(`SELECT start_ts_utc, end_ts_utc, open, high, low, close, volume, spread
FROM %s
WHERE symbol_id = $1 AND period_id = $2 AND start_ts_utc >= $3 AND start_ts_utc < $4
ORDER BY start_ts_utc ASC
LIMIT $5`, pgTable(table))

	rows, err := s.db.Query(ctx, q, symbolID, periodID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("history query: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.FixedCandle, error) {
		var c models.FixedCandle
		err := row.Scan(&c.StartTS, &c.EndTS, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.Spread)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan history: %w", err)
	}
	return out, nil
}

func (s *PGCandleStore) Health(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PGCandleStore) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
