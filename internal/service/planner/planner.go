package planner

import (
	"time"

	"CandlePull/internal/domain/errs"
	"CandlePull/internal/domain/models"
)

// Planner splits a range into fetch windows. Ordinal ranges are cut every
// bars bars, calendar ranges every span.
type Planner struct {
	bars int64
	span models.Span
}

func New(bars int64, span models.Span) *Planner {
	return &Planner{bars: bars, span: span}
}

// Plan dispatches on the range's addressing mode.
func (p *Planner) Plan(r models.TimeRange) (models.BatchPlan, error) {
	switch r.Mode() {
	case models.ModeOrdinal:
		return IndexPlan(r.Start.Index(), r.End.Index(), p.bars)
	case models.ModeCalendar:
		return CalendarPlan(r.Start.Time(), r.End.Time(), p.span)
	default:
		return models.BatchPlan{}, errs.Configurationf("cannot plan %s range", r.Mode())
	}
}

// IndexPlan produces windows [start+i*step, start+(i+1)*step), the last one
// clamped to end.
func IndexPlan(start, end, step int64) (models.BatchPlan, error) {
	plan := models.BatchPlan{Mode: models.ModeOrdinal}
	if step <= 0 {
		return plan, errs.Configurationf("index step must be positive, got %d", step)
	}
	if end <= start {
		return plan, nil
	}

	span := end - start
	count := span / step
	if span%step > 0 {
		count++
	}

	plan.Windows = make([]models.Window, 0, count)
	for i := int64(0); i < count; i++ {
		lo := start + i*step
		hi := lo + step
		if hi > end {
			hi = end
		}
		plan.Windows = append(plan.Windows, models.Window{
			Start: models.Ordinal(lo),
			End:   models.Ordinal(hi),
		})
	}
	return plan, nil
}

// CalendarPlan steps a cursor from start until it reaches end. Windows are
// contiguous and half-open; the final upper bound is exactly end.
func CalendarPlan(start, end time.Time, step models.Span) (models.BatchPlan, error) {
	plan := models.BatchPlan{Mode: models.ModeCalendar}
	if !step.IsPositive() {
		return plan, errs.Configurationf("calendar step must be positive, got %s", step)
	}
	start, end = start.UTC(), end.UTC()

	for cur := start; cur.Before(end); {
		next := step.AddTo(cur)
		if !next.After(cur) {
			return models.BatchPlan{Mode: models.ModeCalendar}, errs.Configurationf("calendar step %s does not advance from %s", step, cur)
		}
		if next.After(end) {
			next = end
		}
		plan.Windows = append(plan.Windows, models.Window{
			Start: models.Calendar(cur),
			End:   models.Calendar(next),
		})
		cur = next
	}
	return plan, nil
}
