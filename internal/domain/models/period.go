package models

import (
	"sort"
	"strings"
	"time"

	"CandlePull/internal/domain/errs"
)

// Period is a candle timeframe.
type Period struct {
	Name    string `json:"name"`
	Alias   string `json:"alias"`
	Seconds int64  `json:"seconds"`
	Minutes int64  `json:"minutes"`
	Index   int    `json:"index"`
	// Token is the terminal-side timeframe code.
	Token int  `json:"token"`
	Step  Span `json:"-"`
}

func (p Period) String() string { return p.Name }

// Duration returns the candle width.
func (p Period) Duration() time.Duration { return time.Duration(p.Seconds) * time.Second }

var DefaultPeriods = []Period{
	{Name: "M1", Alias: "1min", Seconds: 60, Minutes: 1, Index: 1, Token: 1, Step: Span{Duration: time.Minute}},
	{Name: "M5", Alias: "5min", Seconds: 300, Minutes: 5, Index: 2, Token: 5, Step: Span{Duration: 5 * time.Minute}},
	{Name: "M10", Alias: "10min", Seconds: 600, Minutes: 10, Index: 3, Token: 10, Step: Span{Duration: 10 * time.Minute}},
	{Name: "M15", Alias: "15min", Seconds: 900, Minutes: 15, Index: 4, Token: 15, Step: Span{Duration: 15 * time.Minute}},
	{Name: "M30", Alias: "30min", Seconds: 1800, Minutes: 30, Index: 5, Token: 30, Step: Span{Duration: 30 * time.Minute}},
	{Name: "H1", Alias: "1H", Seconds: 3600, Minutes: 60, Index: 6, Token: 16385, Step: Span{Duration: time.Hour}},
	{Name: "H4", Alias: "4H", Seconds: 14400, Minutes: 240, Index: 7, Token: 16388, Step: Span{Duration: 4 * time.Hour}},
	{Name: "DAY", Alias: "1D", Seconds: 86400, Minutes: 1440, Index: 8, Token: 16408, Step: Span{Days: 1}},
	{Name: "WEEK", Alias: "1W", Seconds: 604800, Minutes: 10080, Index: 9, Token: 32769, Step: Weeks(1)},
	{Name: "MONTH", Alias: "1M", Seconds: 2592000, Minutes: 43200, Index: 10, Token: 49153, Step: Weeks(4)},
}

// PeriodRegistry is an immutable name/index lookup table.
type PeriodRegistry struct {
	byName  map[string]Period
	byIndex map[int]Period
}

func NewPeriodRegistry(list ...Period) (*PeriodRegistry, error) {
	r := &PeriodRegistry{
		byName:  make(map[string]Period, len(list)),
		byIndex: make(map[int]Period, len(list)),
	}
	for _, p := range list {
		p.Name = strings.ToUpper(p.Name)
		if p.Seconds <= 0 {
			return nil, errs.Configurationf("period %s: seconds must be positive", p.Name)
		}
		if !p.Step.IsPositive() {
			return nil, errs.Configurationf("period %s: step must be positive", p.Name)
		}
		if _, dup := r.byName[p.Name]; dup {
			return nil, errs.Configurationf("period %s registered twice", p.Name)
		}
		if _, dup := r.byIndex[p.Index]; dup {
			return nil, errs.Configurationf("period index %d registered twice", p.Index)
		}
		r.byName[p.Name] = p
		r.byIndex[p.Index] = p
	}
	return r, nil
}

func MustPeriodRegistry(list ...Period) *PeriodRegistry {
	r, err := NewPeriodRegistry(list...)
	if err != nil {
		panic(err)
	}
	return r
}

// Periods is the process-wide period table.
var Periods = MustPeriodRegistry(DefaultPeriods...)

// Lookup resolves a period by name.
func (r *PeriodRegistry) Lookup(name string) (Period, error) {
	p, ok := r.byName[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return Period{}, errs.Resolutionf("unknown period %q", name).WithField("period")
	}
	return p, nil
}

func (r *PeriodRegistry) ByIndex(index int) (Period, error) {
	p, ok := r.byIndex[index]
	if !ok {
		return Period{}, errs.Resolutionf("unknown period index %d", index)
	}
	return p, nil
}

// All returns periods ordered by width.
func (r *PeriodRegistry) All() []Period {
	out := make([]Period, 0, len(r.byIndex))
	for _, p := range r.byIndex {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seconds < out[j].Seconds })
	return out
}
