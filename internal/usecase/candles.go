package usecase

import (
	"context"
	"fmt"
	"time"

	"CandlePull/internal/domain/errs"
	"CandlePull/internal/domain/models"
	domrepo "CandlePull/internal/domain/repository"
	"CandlePull/internal/service/codec"
)

const (
	DefaultHistoryLimit = 10000
	MaxHistoryLimit     = 50000
)

// CandlesUseCase reads stored candles back, optionally in a coarser period.
type CandlesUseCase struct {
	store    domrepo.CandleQuery
	registry *models.InstrumentRegistry
	periods  *models.PeriodRegistry
	base     models.Period
	table    models.TableRef
}

// NewCandlesUseCase reads rows stored at the base period from table.
func NewCandlesUseCase(store domrepo.CandleQuery, registry *models.InstrumentRegistry, base models.Period, table models.TableRef) *CandlesUseCase {
	return &CandlesUseCase{
		store:    store,
		registry: registry,
		periods:  models.Periods,
		base:     base,
		table:    table,
	}
}

type GetCandlesParams struct {
	Instrument string
	Period     string
	From       time.Time
	To         time.Time
	Limit      int
}

type GetCandlesResult struct {
	Instrument string          `json:"instrument"`
	Period     string          `json:"period"`
	From       time.Time       `json:"from"`
	To         time.Time       `json:"to"`
	Count      int             `json:"count"`
	Candles    []models.Candle `json:"candles"`
}

func (uc *CandlesUseCase) GetCandles(ctx context.Context, p GetCandlesParams) (*GetCandlesResult, error) {
	inst, err := uc.registry.Lookup(p.Instrument)
	if err != nil {
		return nil, err
	}
	period := uc.base
	if p.Period != "" {
		if period, err = uc.periods.Lookup(p.Period); err != nil {
			return nil, err
		}
	}
	if period.Seconds < uc.base.Seconds || period.Seconds%uc.base.Seconds != 0 {
		return nil, errs.Validationf("period", "period %s cannot be built from stored %s candles", period.Name, uc.base.Name)
	}
	if p.To.IsZero() {
		p.To = time.Now().UTC()
	}
	if !p.From.Before(p.To) {
		return nil, errs.Validation("from", "from must be before to")
	}
	p.Limit = clampLimit(p.Limit)

	ratio := int(period.Seconds / uc.base.Seconds)
	rows, err := uc.store.History(ctx, uc.table, inst.Index, uc.base.Index, p.From.Unix(), p.To.Unix(), p.Limit*ratio)
	if err != nil {
		return nil, fmt.Errorf("history %s %s: %w", inst.Name, uc.base.Name, err)
	}

	out := codec.DecodeAll(rows, inst.Digits)
	if ratio > 1 {
		out = Resample(out, period)
	}
	if len(out) > p.Limit {
		out = out[:p.Limit]
	}

	return &GetCandlesResult{
		Instrument: inst.Name,
		Period:     period.Name,
		From:       p.From,
		To:         p.To,
		Count:      len(out),
		Candles:    out,
	}, nil
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultHistoryLimit
	case n > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return n
	}
}

// Resample folds ascending candles into buckets of the target period.
func Resample(in []models.Candle, target models.Period) []models.Candle {
	if len(in) == 0 {
		return []models.Candle{}
	}
	width := target.Seconds
	out := make([]models.Candle, 0, len(in)/2+1)
	for _, c := range in {
		bucket := c.StartTS - c.StartTS%width
		if n := len(out); n > 0 && out[n-1].StartTS == bucket {
			cur := &out[n-1]
			cur.High = max(cur.High, c.High)
			cur.Low = min(cur.Low, c.Low)
			cur.Close = c.Close
			cur.Volume += c.Volume
			cur.Spread = max(cur.Spread, c.Spread)
			continue
		}
		out = append(out, models.Candle{
			StartTS: bucket,
			EndTS:   bucket + width,
			Open:    c.Open,
			High:    c.High,
			Low:     c.Low,
			Close:   c.Close,
			Volume:  c.Volume,
			Spread:  c.Spread,
		})
	}
	return out
}
