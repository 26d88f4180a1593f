package fetcher

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"CandlePull/internal/domain/models"
	"CandlePull/internal/domain/repository"
	"CandlePull/pkg/logger"
)

const (
	DefaultMaxAttempts = 5
	DefaultInterval    = time.Second
)

var errEmpty = errors.New("empty result")

// RetryingFetcher re-issues a fetch while the terminal answers with nothing.
// Source errors are returned immediately. An exhausted retry budget is not an
// error: the caller gets an empty slice.
type RetryingFetcher struct {
	maxAttempts int
	interval    time.Duration
	log         *logger.Logger
	metrics     repository.Metrics
}

type Option func(*RetryingFetcher)

func WithMaxAttempts(n int) Option {
	return func(f *RetryingFetcher) {
		if n > 0 {
			f.maxAttempts = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(f *RetryingFetcher) {
		if d >= 0 {
			f.interval = d
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(f *RetryingFetcher) { f.log = l }
}

func WithMetrics(m repository.Metrics) Option {
	return func(f *RetryingFetcher) { f.metrics = m }
}

func New(opts ...Option) *RetryingFetcher {
	f := &RetryingFetcher{
		maxAttempts: DefaultMaxAttempts,
		interval:    DefaultInterval,
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *RetryingFetcher) MaxAttempts() int { return f.maxAttempts }

// Fetch runs q against src up to MaxAttempts times.
func (f *RetryingFetcher) Fetch(ctx context.Context, src repository.CandleSource, q models.FetchQuery) ([]models.RawCandle, error) {
	var (
		out     []models.RawCandle
		attempt int
	)

	op := func() error {
		attempt++
		rows, err := src.FetchRaw(ctx, q)
		if err != nil {
			return backoff.Permanent(err)
		}
		empty := len(rows) == 0
		if f.metrics != nil {
			f.metrics.RecordFetchAttempt(q.Instrument.Name, empty)
		}
		if empty {
			return errEmpty
		}
		out = rows
		return nil
	}

	notify := func(_ error, wait time.Duration) {
		f.log.Warn("empty fetch, retrying",
			logger.String("instrument", q.Instrument.Name),
			logger.Stringer("window", q.Window),
			logger.Int("attempt", attempt),
			logger.Duration("wait_ms", wait),
		)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(f.interval), uint64(f.maxAttempts-1)),
		ctx,
	)

	err := backoff.RetryNotify(op, policy, notify)
	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, errEmpty):
		f.log.Warn("no candles after retries",
			logger.String("instrument", q.Instrument.Name),
			logger.String("period", q.Period.Name),
			logger.Stringer("window", q.Window),
			logger.Int("attempts", attempt),
		)
		return []models.RawCandle{}, nil
	default:
		return nil, err
	}
}
