package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"CandlePull/internal/domain/errs"
	"CandlePull/internal/domain/models"
	domrepo "CandlePull/internal/domain/repository"
	"CandlePull/internal/service/codec"
	"CandlePull/internal/service/stream"
	"CandlePull/pkg/cache"
	applogger "CandlePull/pkg/logger"
	xutil "CandlePull/pkg/util"
)

const (
	FromLast = "last"
	ToNow    = "now"
)

// DefaultEpoch is where an instrument with no stored candles starts.
var DefaultEpoch = time.Date(2012, 1, 1, 0, 0, 0, 0, time.UTC)

// Locker guards an instrument against overlapping runs.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type IngestConfig struct {
	Period      models.Period
	Table       models.TableRef
	Instruments []string
	DefaultFrom time.Time
	Concurrency int
	Throttle    time.Duration
	LockTTL     time.Duration
	// Login is checked before any task is scheduled.
	Login models.SourceConfig
}

// IngestUseCase runs update passes: one task per instrument, each with its
// own terminal connection, writing batches to the candle store in order.
type IngestUseCase struct {
	cfg       IngestConfig
	registry  *models.InstrumentRegistry
	discovery domrepo.InstrumentDiscovery
	sources   domrepo.SourceFactory
	store     domrepo.CandleStore
	fetcher   stream.Fetcher
	planner   stream.Planner
	publisher domrepo.EventPublisher
	metrics   domrepo.Metrics
	locker    Locker
	log       *applogger.Logger
	now       func() time.Time
	pause     func(context.Context, time.Duration) error
}

type IngestOption func(*IngestUseCase)

// WithDiscovery lists instruments from a discovery endpoint instead of the config.
func WithDiscovery(d domrepo.InstrumentDiscovery) IngestOption {
	return func(u *IngestUseCase) { u.discovery = d }
}

func WithPublisher(p domrepo.EventPublisher) IngestOption {
	return func(u *IngestUseCase) { u.publisher = p }
}

func WithMetrics(m domrepo.Metrics) IngestOption {
	return func(u *IngestUseCase) { u.metrics = m }
}

func WithLocker(l Locker) IngestOption {
	return func(u *IngestUseCase) { u.locker = l }
}

func WithLogger(l *applogger.Logger) IngestOption {
	return func(u *IngestUseCase) { u.log = l }
}

// WithClock replaces the wall clock used for "now" and row timestamps.
func WithClock(now func() time.Time) IngestOption {
	return func(u *IngestUseCase) { u.now = now }
}

func NewIngestUseCase(
	cfg IngestConfig,
	registry *models.InstrumentRegistry,
	sources domrepo.SourceFactory,
	store domrepo.CandleStore,
	f stream.Fetcher,
	p stream.Planner,
	opts ...IngestOption,
) *IngestUseCase {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.DefaultFrom.IsZero() {
		cfg.DefaultFrom = DefaultEpoch
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	u := &IngestUseCase{
		cfg:      cfg,
		registry: registry,
		sources:  sources,
		store:    store,
		fetcher:  f,
		planner:  p,
		log:      applogger.Nop(),
		now:      time.Now,
		pause:    sleep,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

type boundKind int

const (
	boundLast boundKind = iota + 1
	boundNow
	boundExplicit
)

// rangeSpec is a parsed pair of update literals.
type rangeSpec struct {
	fromKind boundKind
	from     models.Bound
	toKind   boundKind
	to       models.Bound
}

func (s rangeSpec) mode() models.Mode {
	if s.toKind == boundNow {
		return models.ModeCalendar
	}
	return s.to.Mode()
}

// ValidateRange checks the update literals and their mode compatibility. It does no I/O.
func ValidateRange(from, to string) error {
	_, err := parseRange(from, to)
	return err
}

func parseRange(from, to string) (rangeSpec, error) {
	var s rangeSpec

	from = strings.TrimSpace(from)
	switch {
	case strings.EqualFold(from, FromLast):
		s.fromKind = boundLast
	default:
		b, err := parseBound(from)
		if err != nil {
			return s, errs.Validationf("from", "update from must be %q, a bar index or a timestamp, got %q", FromLast, from).WithError(err)
		}
		s.fromKind, s.from = boundExplicit, b
	}

	to = strings.TrimSpace(to)
	switch {
	case strings.EqualFold(to, ToNow):
		s.toKind = boundNow
	default:
		b, err := parseBound(to)
		if err != nil {
			return s, errs.Validationf("to", "update to must be %q, a bar index or a timestamp, got %q", ToNow, to).WithError(err)
		}
		s.toKind, s.to = boundExplicit, b
	}

	startMode := models.ModeCalendar
	if s.fromKind == boundExplicit {
		startMode = s.from.Mode()
	}
	if startMode != s.mode() {
		return s, errs.Configurationf("update from %q and to %q mix %s and %s bounds", from, to, startMode, s.mode())
	}
	return s, nil
}

func parseBound(raw string) (models.Bound, error) {
	if raw == "" {
		return models.Bound{}, fmt.Errorf("empty")
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n < 0 {
			return models.Bound{}, fmt.Errorf("negative bar index %d", n)
		}
		return models.Ordinal(n), nil
	}
	t, err := xutil.ParseTimestamp(raw)
	if err != nil {
		return models.Bound{}, err
	}
	return models.Calendar(t), nil
}

// UpdateCandles ingests every instrument from `from` up to `to`. Literal and
// login errors are returned before any task starts; per-instrument failures
// are reported in the summary.
func (u *IngestUseCase) UpdateCandles(ctx context.Context, from, to string) (*models.RunSummary, error) {
	spec, err := parseRange(from, to)
	if err != nil {
		return nil, err
	}
	if _, err := u.cfg.Login.LoginMode(); err != nil {
		return nil, err
	}

	names, err := u.instrumentNames(ctx)
	if err != nil {
		return nil, err
	}

	summary := &models.RunSummary{
		RunID:     uuid.NewString(),
		Period:    u.cfg.Period.Name,
		StartedAt: u.now().UTC(),
	}
	log := u.log.With(applogger.String("run_id", summary.RunID), applogger.String("period", u.cfg.Period.Name))
	log.Info("update started",
		applogger.String("from", from),
		applogger.String("to", to),
		applogger.Int("instruments", len(names)))

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(u.cfg.Concurrency)
	record := func(r models.InstrumentResult) {
		if r.Err != nil {
			r.Error = r.Err.Error()
			u.recordFailure(r.Instrument, r.Err)
		}
		mu.Lock()
		summary.Results = append(summary.Results, r)
		mu.Unlock()
	}

	for _, name := range names {
		inst, err := u.registry.Lookup(name)
		if err != nil {
			log.Error("instrument not resolvable", applogger.String("instrument", name), applogger.Error(err))
			record(models.InstrumentResult{Instrument: strings.ToUpper(name), Err: err})
			continue
		}
		g.Go(func() error {
			record(u.runInstrument(ctx, log, summary.RunID, inst, spec))
			return nil
		})
	}
	_ = g.Wait()

	summary.FinishedAt = u.now().UTC()
	summary.Sort()
	log.Info("update finished",
		applogger.Int("rows", summary.TotalRows()),
		applogger.Int("failed", len(summary.Failures())),
		applogger.Duration("duration_ms", summary.FinishedAt.Sub(summary.StartedAt)))

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (u *IngestUseCase) instrumentNames(ctx context.Context) ([]string, error) {
	if u.discovery != nil {
		names, err := u.discovery.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("discover instruments: %w", err)
		}
		return names, nil
	}
	if len(u.cfg.Instruments) > 0 {
		return u.cfg.Instruments, nil
	}
	all := u.registry.All()
	names := make([]string, len(all))
	for i, inst := range all {
		names[i] = inst.Name
	}
	return names, nil
}

// ResolveResume returns the bound an instrument continues from: the end of its
// latest stored candle, or the default epoch when nothing is stored.
func (u *IngestUseCase) ResolveResume(ctx context.Context, inst models.Instrument) (models.Bound, bool, error) {
	ts, ok, err := u.store.LastEndTS(ctx, u.cfg.Table, inst.Index, u.cfg.Period.Index)
	if err != nil {
		return models.Bound{}, false, fmt.Errorf("last candle of %s: %w", inst.Name, err)
	}
	if !ok {
		return models.Calendar(u.cfg.DefaultFrom), false, nil
	}
	return models.Calendar(time.Unix(ts, 0)), true, nil
}

func (u *IngestUseCase) resolveRange(ctx context.Context, inst models.Instrument, spec rangeSpec) (models.TimeRange, error) {
	start := spec.from
	if spec.fromKind == boundLast {
		b, _, err := u.ResolveResume(ctx, inst)
		if err != nil {
			return models.TimeRange{}, err
		}
		start = b
	}
	end := spec.to
	if spec.toKind == boundNow {
		end = models.Calendar(u.now())
	}
	return models.NewTimeRange(start, end)
}

func lockKey(inst models.Instrument, period models.Period) string {
	return cache.GenerateKeyWithParams("ingest", inst.Name, period.Name)
}

func (u *IngestUseCase) runInstrument(ctx context.Context, parent *applogger.Logger, runID string, inst models.Instrument, spec rangeSpec) (res models.InstrumentResult) {
	started := time.Now()
	res.Instrument = inst.Name
	log := parent.With(applogger.String("instrument", inst.Name))
	defer func() {
		res.Duration = time.Since(started)
		if u.metrics != nil {
			u.metrics.RecordLatency("update_instrument", res.Duration.Seconds())
		}
	}()

	if u.locker != nil {
		key := lockKey(inst, u.cfg.Period)
		ok, err := u.locker.TryLock(ctx, key, u.cfg.LockTTL)
		if err != nil {
			log.Warn("lock unavailable, continuing unlocked", applogger.Error(err))
		} else if !ok {
			log.Warn("update already running elsewhere, skipping")
			res.Skipped = true
			return res
		} else {
			defer func() {
				if err := u.locker.Unlock(context.WithoutCancel(ctx), key); err != nil {
					log.Warn("unlock failed", applogger.Error(err))
				}
			}()
		}
	}

	r, err := u.resolveRange(ctx, inst, spec)
	if err != nil {
		res.Err = err
		return res
	}
	res.From, res.To = r.Start.String(), r.End.String()
	if r.Empty() {
		log.Info("up to date", applogger.Stringer("range", r))
		return res
	}

	src, err := u.sources.Open(ctx)
	if err != nil {
		res.Err = err
		return res
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.Warn("close source", applogger.Error(err))
		}
	}()

	s, err := stream.New(src, u.fetcher, u.planner, inst, u.cfg.Period, r,
		stream.WithFixedPoint(true),
		stream.WithLogger(log),
	)
	if err != nil {
		res.Err = err
		return res
	}

	for {
		b, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			res.Err = err
			return res
		}
		if res.Batches > 0 && u.cfg.Throttle > 0 {
			if err := u.pause(ctx, u.cfg.Throttle); err != nil {
				res.Err = err
				return res
			}
		}

		inserted, err := u.writeBatch(ctx, log, runID, b)
		if err != nil {
			res.Err = fmt.Errorf("write batch %d of %d: %w", b.Index, b.Count, err)
			return res
		}
		res.Batches++
		res.Rows += b.Len()
		res.Inserted += inserted
	}

	log.Info("instrument updated",
		applogger.Int("batches", res.Batches),
		applogger.Int("rows", res.Rows),
		applogger.Int("inserted", res.Inserted),
		applogger.Duration("duration_ms", time.Since(started)))
	return res
}

// Rows returns the batch tagged for the candles table.
func Rows(b *models.Batch, at time.Time) []models.CandleRow {
	fixed := b.Fixed
	if fixed == nil {
		fixed = codec.EncodeAll(b.Candles, b.Instrument.Digits)
	}
	rows := make([]models.CandleRow, len(fixed))
	for i, f := range fixed {
		rows[i] = models.CandleRow{
			FixedCandle: f,
			SymbolID:    b.Instrument.Index,
			PeriodID:    b.Period.Index,
			CreatedAt:   at,
			UpdatedAt:   at,
		}
	}
	return rows
}

func (u *IngestUseCase) writeBatch(ctx context.Context, log *applogger.Logger, runID string, b *models.Batch) (int, error) {
	if b.Len() == 0 {
		if u.metrics != nil {
			u.metrics.RecordBatch(b.Instrument.Name, b.Period.Name, 0, 0)
		}
		return 0, nil
	}

	at := u.now().UTC()
	rows := Rows(b, at)

	started := time.Now()
	inserted, err := u.store.InsertRows(ctx, u.cfg.Table, rows)
	if err != nil {
		return 0, err
	}
	last := rows[len(rows)-1].EndTS

	if u.metrics != nil {
		u.metrics.RecordLatency("insert_batch", time.Since(started).Seconds())
		u.metrics.RecordBatch(b.Instrument.Name, b.Period.Name, len(rows), inserted)
		u.metrics.RecordLastEnd(b.Instrument.Name, last)
	}

	if u.publisher != nil {
		ev := models.BatchEvent{
			RunID:      runID,
			Instrument: b.Instrument.Name,
			Period:     b.Period.Name,
			Batch:      b.Index,
			Count:      b.Count,
			Rows:       len(rows),
			Inserted:   inserted,
			FirstTS:    rows[0].StartTS,
			LastTS:     last,
			IngestedAt: at,
		}
		if err := u.publisher.PublishBatch(ctx, ev); err != nil {
			log.Warn("publish batch event",
				applogger.Int("batch", b.Index),
				applogger.Error(err))
		}
	}
	return inserted, nil
}

func (u *IngestUseCase) recordFailure(instrument string, err error) {
	if u.metrics == nil {
		return
	}
	u.metrics.RecordFailure(instrument, string(errs.KindOf(err)))
}

// Instruments reports what the next run would update and where each instrument resumes.
func (u *IngestUseCase) Instruments(ctx context.Context) ([]models.InstrumentStatus, error) {
	names, err := u.instrumentNames(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.InstrumentStatus, 0, len(names))
	for _, name := range names {
		st := models.InstrumentStatus{Name: strings.ToUpper(name)}
		inst, err := u.registry.Lookup(name)
		if err != nil {
			st.Error = err.Error()
			out = append(out, st)
			continue
		}
		st.Index, st.Digits = inst.Index, inst.Digits
		b, found, err := u.ResolveResume(ctx, inst)
		if err != nil {
			st.Error = err.Error()
		} else {
			st.Resume = b.String()
			if found {
				st.LastEndTS = b.Time().Unix()
			}
		}
		out = append(out, st)
	}
	return out, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
