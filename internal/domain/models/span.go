package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"CandlePull/internal/domain/errs"
)

// Span is a calendar step. Years, months and days follow calendar arithmetic,
// Duration is added afterwards as elapsed time.
type Span struct {
	Years    int
	Months   int
	Days     int
	Duration time.Duration
}

// Weeks builds a span of n*7 days.
func Weeks(n int) Span { return Span{Days: 7 * n} }

// AddTo advances t by the span.
func (s Span) AddTo(t time.Time) time.Time {
	return t.AddDate(s.Years, s.Months, s.Days).Add(s.Duration)
}

// IsPositive reports whether the span moves time strictly forward.
func (s Span) IsPositive() bool {
	if s.Years < 0 || s.Months < 0 || s.Days < 0 || s.Duration < 0 {
		return false
	}
	return s.Years+s.Months+s.Days > 0 || s.Duration > 0
}

func (s Span) String() string {
	var b strings.Builder
	if s.Years != 0 {
		fmt.Fprintf(&b, "%dy", s.Years)
	}
	if s.Months != 0 {
		fmt.Fprintf(&b, "%dmo", s.Months)
	}
	if s.Days != 0 {
		fmt.Fprintf(&b, "%dd", s.Days)
	}
	if s.Duration != 0 || b.Len() == 0 {
		b.WriteString(s.Duration.String())
	}
	return b.String()
}

// ParseSpan accepts "4w", "28d", "1mo", "1y" or any time.ParseDuration value.
func ParseSpan(raw string) (Span, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	units := []struct {
		suffix string
		build  func(n int) Span
	}{
		{"mo", func(n int) Span { return Span{Months: n} }},
		{"y", func(n int) Span { return Span{Years: n} }},
		{"w", Weeks},
		{"d", func(n int) Span { return Span{Days: n} }},
	}
	for _, u := range units {
		if !strings.HasSuffix(s, u.suffix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(s, u.suffix))
		if err != nil {
			break
		}
		span := u.build(n)
		if !span.IsPositive() {
			return Span{}, errs.Configurationf("step %q must be positive", raw)
		}
		return span, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return Span{}, errs.Configurationf("invalid step %q", raw).WithError(err)
	}
	span := Span{Duration: d}
	if !span.IsPositive() {
		return Span{}, errs.Configurationf("step %q must be positive", raw)
	}
	return span, nil
}
