package models

import (
	"errors"
	"sort"
	"time"
)

// InstrumentResult is the outcome of one instrument task.
type InstrumentResult struct {
	Instrument string        `json:"instrument"`
	From       string        `json:"from,omitempty"`
	To         string        `json:"to,omitempty"`
	Batches    int           `json:"batches"`
	Rows       int           `json:"rows"`
	Inserted   int           `json:"inserted"`
	Skipped    bool          `json:"skipped,omitempty"`
	Duration   time.Duration `json:"duration"`
	Err        error         `json:"-"`
	Error      string        `json:"error,omitempty"`
}

func (r InstrumentResult) Failed() bool { return r.Err != nil }

// RunSummary aggregates all instrument tasks of one update run.
type RunSummary struct {
	RunID      string             `json:"run_id"`
	Period     string             `json:"period"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Results    []InstrumentResult `json:"results"`
}

// Sort orders results by instrument name.
func (s *RunSummary) Sort() {
	sort.Slice(s.Results, func(i, j int) bool { return s.Results[i].Instrument < s.Results[j].Instrument })
}

func (s *RunSummary) Failures() []InstrumentResult {
	var out []InstrumentResult
	for _, r := range s.Results {
		if r.Failed() {
			out = append(out, r)
		}
	}
	return out
}

func (s *RunSummary) HasFailures() bool { return len(s.Failures()) > 0 }

// Err joins every per-instrument failure.
func (s *RunSummary) Err() error {
	var all []error
	for _, r := range s.Failures() {
		all = append(all, r.Err)
	}
	return errors.Join(all...)
}

func (s *RunSummary) TotalRows() int {
	n := 0
	for _, r := range s.Results {
		n += r.Rows
	}
	return n
}

// BatchEvent announces a batch written to the store.
type BatchEvent struct {
	RunID      string    `json:"run_id"`
	Instrument string    `json:"instrument"`
	Period     string    `json:"period"`
	Batch      int       `json:"batch"`
	Count      int       `json:"count"`
	Rows       int       `json:"rows"`
	Inserted   int       `json:"inserted"`
	FirstTS    int64     `json:"first_ts_utc,omitempty"`
	LastTS     int64     `json:"last_ts_utc,omitempty"`
	IngestedAt time.Time `json:"ingested_at"`
}

// InstrumentStatus describes one instrument as the next update run would see it.
type InstrumentStatus struct {
	Name      string `json:"name"`
	Index     int    `json:"index,omitempty"`
	Digits    int    `json:"digits,omitempty"`
	Resume    string `json:"resume,omitempty"`
	LastEndTS int64  `json:"last_end_ts_utc,omitempty"`
	Error     string `json:"error,omitempty"`
}
