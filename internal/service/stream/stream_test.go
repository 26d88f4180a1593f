package stream

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandlePull/internal/domain/errs"
	"CandlePull/internal/domain/models"
	"CandlePull/internal/service/fetcher"
	"CandlePull/internal/service/planner"
)

type fakeSource struct {
	watchCalls int
	watchErr   error
	queries    []models.FetchQuery
	answer     func(q models.FetchQuery) []models.RawCandle
}

func (f *fakeSource) Connect(context.Context, models.SourceConfig) error { return nil }
func (f *fakeSource) Close() error                                       { return nil }

func (f *fakeSource) EnsureWatched(context.Context, string) error {
	f.watchCalls++
	return f.watchErr
}

func (f *fakeSource) FetchRaw(_ context.Context, q models.FetchQuery) ([]models.RawCandle, error) {
	f.queries = append(f.queries, q)
	if f.answer == nil {
		return nil, nil
	}
	return f.answer(q), nil
}

var (
	eurusd = models.Instrument{Name: "EURUSD", Index: 3, Digits: 5}
	m1     = models.DefaultPeriods[0]
)

func calendarRange(t *testing.T, start, end time.Time) models.TimeRange {
	t.Helper()
	r, err := models.NewTimeRange(models.Calendar(start), models.Calendar(end))
	require.NoError(t, err)
	return r
}

func TestStreamCalendarBatches(t *testing.T) {
	start := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
	end := time.Date(2022, 1, 4, 0, 0, 0, 0, time.UTC)

	src := &fakeSource{answer: func(q models.FetchQuery) []models.RawCandle {
		ts := q.Window.Start.Time().Unix()
		// out of order with a duplicate start time
		return []models.RawCandle{
			{Time: ts + 60, Open: 1.2, High: 1.3, Low: 1.1, Close: 1.25, TickVolume: 7},
			{Time: ts, Open: 1.1, High: 1.2, Low: 1.0, Close: 1.15, TickVolume: 3},
			{Time: ts + 60, Open: 1.21, High: 1.31, Low: 1.11, Close: 1.26, TickVolume: 9, RealVolume: 100},
		}
	}}

	s, err := New(src, fetcher.New(fetcher.WithInterval(0)), planner.New(1000, models.Span{Duration: 4 * time.Hour}),
		eurusd, m1, calendarRange(t, start, end), WithFixedPoint(true))
	require.NoError(t, err)
	assert.Equal(t, models.ShapeRange, s.Shape())

	batches, err := Collect(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, batches, 6)
	assert.Equal(t, 1, src.watchCalls)

	for i, b := range batches {
		assert.Equal(t, i+1, b.Index)
		assert.Equal(t, 6, b.Count)
		require.Len(t, b.Candles, 2)
		assert.Less(t, b.Candles[0].StartTS, b.Candles[1].StartTS)
		assert.Equal(t, 1.21, b.Candles[1].Open, "last duplicate wins")
		assert.Equal(t, int64(9), b.Candles[1].Volume)
		for _, c := range b.Candles {
			assert.Equal(t, c.StartTS+m1.Seconds, c.EndTS)
		}
		require.Len(t, b.Fixed, 2)
		assert.Equal(t, int64(121000), b.Fixed[1].Open)
	}

	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF, "stream is not restartable")
}

func TestStreamOrdinalShape(t *testing.T) {
	src := &fakeSource{answer: func(q models.FetchQuery) []models.RawCandle {
		return []models.RawCandle{{Time: 60 * q.Window.Start.Index()}}
	}}
	r, err := models.NewTimeRange(models.Ordinal(0), models.Ordinal(23))
	require.NoError(t, err)

	s, err := New(src, fetcher.New(fetcher.WithInterval(0)), planner.New(10, models.Weeks(1)), eurusd, m1, r)
	require.NoError(t, err)
	assert.Equal(t, models.ShapeFromPos, s.Shape())

	batches, err := Collect(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, batches, 3)
	assert.Nil(t, batches[0].Fixed)

	require.Len(t, src.queries, 3)
	assert.Equal(t, int64(20), src.queries[2].Window.Start.Index())
	assert.Equal(t, int64(3), src.queries[2].Window.Size())
}

func TestStreamEmptyWindowsYieldEmptyBatches(t *testing.T) {
	src := &fakeSource{}
	start := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)

	s, err := New(src, fetcher.New(fetcher.WithInterval(0), fetcher.WithMaxAttempts(2)),
		planner.New(10, models.Span{Duration: time.Hour}), eurusd, m1, calendarRange(t, start, start.Add(2*time.Hour)))
	require.NoError(t, err)

	batches, err := Collect(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Zero(t, batches[0].Len())
	assert.Len(t, src.queries, 4)
}

func TestStreamWatchFailureIsHard(t *testing.T) {
	src := &fakeSource{watchErr: errs.Resolutionf("symbol %s not available", "EURUSD")}
	start := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)

	s, err := New(src, fetcher.New(), planner.New(10, models.Span{Duration: time.Hour}), eurusd, m1, calendarRange(t, start, start.Add(time.Hour)))
	require.NoError(t, err)

	_, err = s.Next(context.Background())
	assert.True(t, errs.IsKind(err, errs.KindResolution))
	assert.Empty(t, src.queries)

	_, err = s.Next(context.Background())
	assert.True(t, errs.IsKind(err, errs.KindResolution), "errors are sticky")
}

func TestStreamCancelled(t *testing.T) {
	src := &fakeSource{}
	start := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
	s, err := New(src, fetcher.New(), planner.New(10, models.Span{Duration: time.Hour}), eurusd, m1, calendarRange(t, start, start.Add(time.Hour)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Next(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, src.watchCalls)
}

func TestStreamRejectsUnsetRange(t *testing.T) {
	_, err := New(&fakeSource{}, fetcher.New(), planner.New(10, models.Weeks(1)), eurusd, m1, models.TimeRange{})
	assert.True(t, errs.IsKind(err, errs.KindConfiguration))
}

func TestNormalizeEmpty(t *testing.T) {
	assert.Empty(t, Normalize(nil, m1))
}
