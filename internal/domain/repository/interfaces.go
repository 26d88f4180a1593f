package repository

import (
	"context"

	"CandlePull/internal/domain/models"
)

// CandleSource is a connection to the market-data terminal. Not safe for concurrent use.
type CandleSource interface {
	Connect(ctx context.Context, cfg models.SourceConfig) error
	// EnsureWatched makes the instrument queryable or fails.
	EnsureWatched(ctx context.Context, instrument string) error
	FetchRaw(ctx context.Context, q models.FetchQuery) ([]models.RawCandle, error)
	Close() error
}

// SourceFactory opens a private, connected source per ingestion task.
type SourceFactory interface {
	Open(ctx context.Context) (CandleSource, error)
}

// CandleSink is append-only storage; duplicate suppression is its responsibility.
type CandleSink interface {
	InsertRows(ctx context.Context, table models.TableRef, rows []models.CandleRow) (int, error)
	RunQuery(ctx context.Context, query string, args ...any) ([]map[string]any, error)
	Close() error
}

// CandleQuery reads back stored candles.
type CandleQuery interface {
	// LastEndTS returns the most recent end timestamp, false when nothing is stored.
	LastEndTS(ctx context.Context, table models.TableRef, symbolID, periodID int) (int64, bool, error)
	History(ctx context.Context, table models.TableRef, symbolID, periodID int, from, to int64, limit int) ([]models.FixedCandle, error)
}

// CandleStore is a sink that can also be queried.
type CandleStore interface {
	CandleSink
	CandleQuery
	EnsureSchema(ctx context.Context, table models.TableRef) error
	Health(ctx context.Context) error
}

// InstrumentDiscovery lists instrument names to update.
type InstrumentDiscovery interface {
	List(ctx context.Context) ([]string, error)
}

// EventPublisher announces written batches.
type EventPublisher interface {
	PublishBatch(ctx context.Context, ev models.BatchEvent) error
	Close() error
}

type Metrics interface {
	RecordBatch(instrument, period string, rows, inserted int)
	RecordFetchAttempt(instrument string, empty bool)
	RecordFailure(instrument, kind string)
	RecordLastEnd(instrument string, ts int64)
	RecordLatency(op string, seconds float64)
}
