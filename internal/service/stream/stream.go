package stream

import (
	"context"
	"fmt"
	"io"
	"sort"

	"CandlePull/internal/domain/models"
	"CandlePull/internal/domain/repository"
	"CandlePull/internal/service/codec"
	"CandlePull/pkg/logger"
)

// Fetcher fetches one window, retrying on empty answers.
type Fetcher interface {
	Fetch(ctx context.Context, src repository.CandleSource, q models.FetchQuery) ([]models.RawCandle, error)
}

// Planner splits a range into windows.
type Planner interface {
	Plan(r models.TimeRange) (models.BatchPlan, error)
}

// CandleStream yields normalized batches for one instrument and period.
// It is single-use: once Next returns io.EOF or an error it stays exhausted.
type CandleStream struct {
	src        repository.CandleSource
	fetcher    Fetcher
	instrument models.Instrument
	period     models.Period
	shape      models.FetchShape
	plan       models.BatchPlan
	fixed      bool
	log        *logger.Logger

	next    int
	watched bool
	err     error
}

type Option func(*CandleStream)

// WithFixedPoint also encodes every batch to integer prices.
func WithFixedPoint(on bool) Option {
	return func(s *CandleStream) { s.fixed = on }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *CandleStream) { s.log = l }
}

// New validates the range, decides the fetch shape and plans the windows.
// No I/O happens until the first Next.
func New(src repository.CandleSource, f Fetcher, p Planner, inst models.Instrument, period models.Period, r models.TimeRange, opts ...Option) (*CandleStream, error) {
	shape, err := models.ShapeFor(r.Start, r.End)
	if err != nil {
		return nil, err
	}
	plan, err := p.Plan(r)
	if err != nil {
		return nil, err
	}

	s := &CandleStream{
		src:        src,
		fetcher:    f,
		instrument: inst,
		period:     period,
		shape:      shape,
		plan:       plan,
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.String("instrument", inst.Name), logger.String("period", period.Name))
	s.log.Info("yielding candles",
		logger.Stringer("range", r),
		logger.String("shape", string(shape)),
		logger.Int("batches", plan.Count()),
	)
	return s, nil
}

func (s *CandleStream) Shape() models.FetchShape { return s.shape }

func (s *CandleStream) Count() int { return s.plan.Count() }

// Next fetches and normalizes the next window. It returns io.EOF after the last one.
func (s *CandleStream) Next(ctx context.Context) (*models.Batch, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.next >= s.plan.Count() {
		s.err = io.EOF
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		s.err = err
		return nil, err
	}

	if !s.watched {
		if err := s.src.EnsureWatched(ctx, s.instrument.Name); err != nil {
			s.err = err
			return nil, err
		}
		s.watched = true
	}

	w := s.plan.Windows[s.next]
	raw, err := s.fetcher.Fetch(ctx, s.src, models.FetchQuery{
		Instrument: s.instrument,
		Period:     s.period,
		Shape:      s.shape,
		Window:     w,
	})
	if err != nil {
		s.err = fmt.Errorf("fetch %s %s %s: %w", s.instrument.Name, s.period.Name, w, err)
		return nil, s.err
	}
	s.next++

	b := &models.Batch{
		Instrument: s.instrument,
		Period:     s.period,
		Index:      s.next,
		Count:      s.plan.Count(),
		Window:     w,
		Candles:    Normalize(raw, s.period),
	}
	if s.fixed {
		b.Fixed = codec.EncodeAll(b.Candles, s.instrument.Digits)
	}

	s.log.Info(fmt.Sprintf("batch %d of %d", b.Index, b.Count),
		logger.Stringer("window", w),
		logger.Int("rows", b.Len()),
	)
	return b, nil
}

// Normalize drops duplicate start times keeping the last one seen, derives the
// end timestamp and orders the result by start time.
func Normalize(raw []models.RawCandle, period models.Period) []models.Candle {
	pos := make(map[int64]int, len(raw))
	out := make([]models.Candle, 0, len(raw))
	for _, r := range raw {
		c := models.Candle{
			StartTS: r.Time,
			EndTS:   r.Time + period.Seconds,
			Open:    r.Open,
			High:    r.High,
			Low:     r.Low,
			Close:   r.Close,
			Volume:  r.TickVolume,
			Spread:  r.Spread,
		}
		if i, dup := pos[r.Time]; dup {
			out[i] = c
			continue
		}
		pos[r.Time] = len(out)
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTS < out[j].StartTS })
	return out
}

// Collect drains the stream. Intended for small ranges and tests.
func Collect(ctx context.Context, s *CandleStream) ([]*models.Batch, error) {
	var out []*models.Batch
	for {
		b, err := s.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, b)
	}
}
