package models

import (
	"fmt"
	"strconv"
	"time"

	"CandlePull/internal/domain/errs"
)

// Mode is the addressing mode of a range bound.
type Mode int

const (
	ModeUnset Mode = iota
	// ModeOrdinal counts bars back from the most recent one (0).
	ModeOrdinal
	// ModeCalendar addresses bars by timestamp.
	ModeCalendar
)

func (m Mode) String() string {
	switch m {
	case ModeOrdinal:
		return "ordinal"
	case ModeCalendar:
		return "calendar"
	default:
		return "unset"
	}
}

// Bound is one end of a range. The mode is fixed at construction.
type Bound struct {
	mode    Mode
	ordinal int64
	at      time.Time
}

// Ordinal builds a bar-index bound.
func Ordinal(n int64) Bound { return Bound{mode: ModeOrdinal, ordinal: n} }

// Calendar builds a timestamp bound, normalised to UTC.
func Calendar(t time.Time) Bound { return Bound{mode: ModeCalendar, at: t.UTC()} }

func (b Bound) Mode() Mode { return b.mode }

// Index returns the ordinal value. Zero for calendar bounds.
func (b Bound) Index() int64 { return b.ordinal }

// Time returns the timestamp value. Zero for ordinal bounds.
func (b Bound) Time() time.Time { return b.at }

func (b Bound) IsZero() bool { return b.mode == ModeUnset }

func (b Bound) String() string {
	switch b.mode {
	case ModeOrdinal:
		return strconv.FormatInt(b.ordinal, 10)
	case ModeCalendar:
		return b.at.Format(time.RFC3339)
	default:
		return "<unset>"
	}
}

// TimeRange is a half-open interval [Start, End) with both bounds in one mode.
type TimeRange struct {
	Start Bound
	End   Bound
}

// NewTimeRange rejects mixed or unset bounds.
func NewTimeRange(start, end Bound) (TimeRange, error) {
	if start.IsZero() || end.IsZero() {
		return TimeRange{}, errs.Configuration("time range bounds must be set")
	}
	if start.mode != end.mode {
		return TimeRange{}, errs.Configurationf("mixed %s/%s time range is not supported", start.mode, end.mode).
			WithParam("start", start.String()).
			WithParam("end", end.String())
	}
	return TimeRange{Start: start, End: end}, nil
}

func (r TimeRange) Mode() Mode { return r.Start.mode }

// Empty reports whether the range covers nothing.
func (r TimeRange) Empty() bool {
	if r.Mode() == ModeOrdinal {
		return r.End.ordinal <= r.Start.ordinal
	}
	return !r.End.at.After(r.Start.at)
}

func (r TimeRange) String() string { return fmt.Sprintf("[%s, %s)", r.Start, r.End) }

// Window is one planned sub-range.
type Window struct {
	Start Bound `json:"-"`
	End   Bound `json:"-"`
}

// Size returns the bar count of an ordinal window.
func (w Window) Size() int64 { return w.End.ordinal - w.Start.ordinal }

// Width returns the elapsed time of a calendar window.
func (w Window) Width() time.Duration { return w.End.at.Sub(w.Start.at) }

func (w Window) String() string { return fmt.Sprintf("[%s, %s)", w.Start, w.End) }

// BatchPlan is the ordered, disjoint cover of a range.
type BatchPlan struct {
	Mode    Mode
	Windows []Window
}

func (p BatchPlan) Count() int { return len(p.Windows) }
