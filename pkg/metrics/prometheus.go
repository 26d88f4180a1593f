package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	batches       *prometheus.CounterVec
	rows          *prometheus.CounterVec
	fetchAttempts *prometheus.CounterVec
	failures      *prometheus.CounterVec
	lastEnd       *prometheus.GaugeVec
	latency       *prometheus.HistogramVec
}

// New registers the recorder on the default registry. Call it once per process.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the recorder on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		batches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candlepull_batches_total",
				Help: "Candle batches written to the store",
			},
			[]string{"instrument", "period"},
		),
		rows: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candlepull_rows_total",
				Help: "Candle rows handed to the store, by outcome",
			},
			[]string{"instrument", "period", "result"},
		),
		fetchAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candlepull_fetch_attempts_total",
				Help: "Terminal fetch attempts",
			},
			[]string{"instrument", "result"},
		),
		failures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candlepull_failures_total",
				Help: "Failed instrument tasks by error kind",
			},
			[]string{"instrument", "kind"},
		),
		lastEnd: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "candlepull_last_end_ts",
				Help: "Unix end timestamp of the newest written candle",
			},
			[]string{"instrument"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "candlepull_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordBatch(instrument, period string, rows, inserted int) {
	r.batches.WithLabelValues(instrument, period).Inc()
	r.rows.WithLabelValues(instrument, period, "inserted").Add(float64(inserted))
	if dup := rows - inserted; dup > 0 {
		r.rows.WithLabelValues(instrument, period, "duplicate").Add(float64(dup))
	}
}

func (r *Recorder) RecordFetchAttempt(instrument string, empty bool) {
	result := "data"
	if empty {
		result = "empty"
	}
	r.fetchAttempts.WithLabelValues(instrument, result).Inc()
}

func (r *Recorder) RecordFailure(instrument, kind string) {
	r.failures.WithLabelValues(instrument, kind).Inc()
}

func (r *Recorder) RecordLastEnd(instrument string, ts int64) {
	r.lastEnd.WithLabelValues(instrument).Set(float64(ts))
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
