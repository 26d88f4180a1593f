package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandlePull/internal/domain/errs"
	"CandlePull/internal/domain/models"
)

type historyStore struct {
	rows  []models.FixedCandle
	limit int
	args  [4]int64
}

func (s *historyStore) LastEndTS(context.Context, models.TableRef, int, int) (int64, bool, error) {
	return 0, false, nil
}

func (s *historyStore) History(_ context.Context, _ models.TableRef, symbolID, periodID int, from, to int64, limit int) ([]models.FixedCandle, error) {
	s.args = [4]int64{int64(symbolID), int64(periodID), from, to}
	s.limit = limit
	return s.rows, nil
}

func minuteRows(start int64, n int) []models.FixedCandle {
	rows := make([]models.FixedCandle, n)
	for i := range rows {
		ts := start + int64(i)*60
		rows[i] = models.FixedCandle{
			StartTS: ts, EndTS: ts + 60,
			Open: 110000 + int64(i), High: 110100 + int64(i), Low: 109900 - int64(i), Close: 110050 + int64(i),
			Volume: 10, Spread: int64(i % 3),
		}
	}
	return rows
}

func newCandles(store *historyStore) *CandlesUseCase {
	return NewCandlesUseCase(store, models.MustInstrumentRegistry(models.DefaultInstruments...), m1, candles)
}

func TestGetCandlesBasePeriod(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &historyStore{rows: minuteRows(from.Unix(), 3)}

	res, err := newCandles(store).GetCandles(context.Background(), GetCandlesParams{
		Instrument: "eurusd", From: from, To: from.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "EURUSD", res.Instrument)
	assert.Equal(t, "M1", res.Period)
	assert.Equal(t, 3, res.Count)
	assert.InDelta(t, 1.1, res.Candles[0].Open, 1e-9)
	assert.Equal(t, [4]int64{3, 1, from.Unix(), from.Add(time.Hour).Unix()}, store.args)
	assert.Equal(t, DefaultHistoryLimit, store.limit)
}

func TestGetCandlesResamples(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &historyStore{rows: minuteRows(from.Unix(), 12)}

	res, err := newCandles(store).GetCandles(context.Background(), GetCandlesParams{
		Instrument: "EURUSD", Period: "M5", From: from, To: from.Add(time.Hour), Limit: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, store.limit, "reads limit times the period ratio")
	require.Equal(t, 2, res.Count)

	first := res.Candles[0]
	assert.Equal(t, from.Unix(), first.StartTS)
	assert.Equal(t, from.Unix()+300, first.EndTS)
	assert.InDelta(t, 1.10000, first.Open, 1e-9)
	assert.InDelta(t, 1.10104, first.High, 1e-9)
	assert.InDelta(t, 1.09896, first.Low, 1e-9)
	assert.InDelta(t, 1.10054, first.Close, 1e-9)
	assert.Equal(t, int64(50), first.Volume)
	assert.Equal(t, int64(2), first.Spread)
}

func TestGetCandlesRejects(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	uc := newCandles(&historyStore{})
	ctx := context.Background()

	_, err := uc.GetCandles(ctx, GetCandlesParams{Instrument: "XAUUSD", From: from})
	assert.True(t, errs.IsKind(err, errs.KindResolution))

	_, err = uc.GetCandles(ctx, GetCandlesParams{Instrument: "EURUSD", Period: "M7", From: from})
	assert.True(t, errs.IsKind(err, errs.KindResolution))

	_, err = uc.GetCandles(ctx, GetCandlesParams{Instrument: "EURUSD", From: from, To: from})
	assert.True(t, errs.IsKind(err, errs.KindValidation))

	fine := NewCandlesUseCase(&historyStore{}, models.MustInstrumentRegistry(models.DefaultInstruments...), mustPeriod("M5"), candles)
	_, err = fine.GetCandles(ctx, GetCandlesParams{Instrument: "EURUSD", Period: "M1", From: from})
	assert.True(t, errs.IsKind(err, errs.KindValidation))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultHistoryLimit, clampLimit(0))
	assert.Equal(t, MaxHistoryLimit, clampLimit(MaxHistoryLimit+1))
	assert.Equal(t, 7, clampLimit(7))
}

func TestResampleEmpty(t *testing.T) {
	assert.Empty(t, Resample(nil, mustPeriod("H1")))
}
