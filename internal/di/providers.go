package di

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"CandlePull/internal/domain/models"
	"CandlePull/internal/domain/repository"
	"CandlePull/internal/handler/api"
	internalrepo "CandlePull/internal/repository"
	"CandlePull/internal/service/discovery"
	"CandlePull/internal/service/fetcher"
	"CandlePull/internal/service/planner"
	"CandlePull/internal/service/ratelimit"
	"CandlePull/internal/service/terminal"
	"CandlePull/internal/usecase"
	"CandlePull/pkg/cache"
	pkgch "CandlePull/pkg/clickhouse"
	"CandlePull/pkg/config"
	xhttp "CandlePull/pkg/http"
	pkgkafka "CandlePull/pkg/kafka"
	applogger "CandlePull/pkg/logger"
	"CandlePull/pkg/metrics"
	"CandlePull/pkg/postgres"
	"CandlePull/pkg/queue"
	"CandlePull/pkg/server"
)

// Ingest bundles what the one-shot CLI commands need.
type Ingest struct {
	Logger  *applogger.Logger
	Ingest  *usecase.IngestUseCase
	Candles *usecase.CandlesUseCase
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithAutoCreateTopics(true),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideLogger builds the process logger. Error entries are aggregated to
// Kafka when log collection is enabled.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, func(), error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: cfg.Log.TimeFormat,
	})
	if err != nil {
		return nil, nil, err
	}
	if cfg.Log.Collect.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Log.Collect.Interval,
			CountThreshold: cfg.Log.Collect.Count,
			Topic:          cfg.Log.Collect.Topic,
			Publisher:      producer,
		})
	}
	return l, l.RemoveCollector, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideRedisClient connects to Redis when the cache or the queue needs it.
func ProvideRedisClient(cfg *config.Config, l *applogger.Logger) (*redis.Client, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, func() {}, nil
	}
	client, err := cache.ConnectRedis(context.Background(),
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
	)
	if err != nil {
		return nil, nil, err
	}
	l.Info("redis connected", applogger.String("addr", cfg.Redis.Addr))
	return client, func() { _ = client.Close() }, nil
}

// ProvideCache uses Redis when connected and an in-process cache otherwise.
func ProvideCache(cfg *config.Config, client *redis.Client) (cache.Service, func()) {
	var c cache.Service
	if client != nil {
		c = cache.NewRedisCache(client, cfg.Redis.Prefix)
	} else {
		c = cache.NewMemoryCache()
	}
	return c, func() { _ = c.Close() }
}

// ProvideCandleStore opens the configured store and creates its schema.
func ProvideCandleStore(cfg *config.Config, l *applogger.Logger) (repository.CandleStore, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		store   repository.CandleStore
		cleanup func()
	)
	switch cfg.Storage.Driver {
	case "clickhouse":
		client, err := pkgch.NewClient(
			pkgch.WithHost(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
			pkgch.WithDatabase(cfg.ClickHouse.Database),
			pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
			pkgch.WithMaxConnections(10, 5),
			pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
			pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
			pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
			pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse client: %w", err)
		}
		store = internalrepo.NewCHCandleStore(client, l)
		cleanup = func() { _ = client.Close() }
	default:
		pool, err := postgres.Connect(ctx, cfg.Postgres.URL,
			postgres.WithPool(cfg.Postgres.MinConns, cfg.Postgres.MaxConns),
			postgres.WithMaxConnLifetime(cfg.Postgres.MaxConnLifetime),
			postgres.WithConnectTimeout(cfg.Postgres.ConnectTimeout),
		)
		if err != nil {
			return nil, nil, err
		}
		pg := internalrepo.NewPGCandleStore(pool, pool.Close, l)
		store = pg
		cleanup = func() { _ = pg.Close() }
	}

	if cfg.Storage.EnsureSchema {
		if err := store.EnsureSchema(ctx, tableRef(cfg)); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("candle schema: %w", err)
		}
	}
	l.Info("candle store ready", applogger.String("driver", cfg.Storage.Driver), applogger.Stringer("table", tableRef(cfg)))
	return store, cleanup, nil
}

func tableRef(cfg *config.Config) models.TableRef {
	return models.TableRef{Schema: cfg.Ingest.Table.Schema, Name: cfg.Ingest.Table.Name}
}

// ProvideEventPublisher announces written batches on Kafka, or drops them.
func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.EventPublisher {
	if producer == nil {
		return internalrepo.NopEventPublisher{}
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.Topic)
}

// ProvideRegistry extends the built-in instruments with the configured ones.
func ProvideRegistry(cfg *config.Config) (*models.InstrumentRegistry, error) {
	list := append([]models.Instrument{}, models.DefaultInstruments...)
	for _, extra := range cfg.Registry.Instruments {
		list = append(list, models.Instrument{Name: extra.Name, Index: extra.Index, Digits: extra.Digits})
	}
	return models.NewInstrumentRegistry(list...)
}

func ProvidePeriod(cfg *config.Config) (models.Period, error) {
	return models.Periods.Lookup(cfg.Ingest.Period)
}

func ProvideSourceFactory(cfg *config.Config, l *applogger.Logger) repository.SourceFactory {
	return terminal.NewFactory(terminalConfig(cfg), l)
}

func terminalConfig(cfg *config.Config) terminal.Config {
	return terminal.Config{
		URL:                cfg.Terminal.URL,
		Timeout:            cfg.Terminal.Timeout,
		PingInterval:       cfg.Terminal.PingInterval,
		InclusiveEndOffset: cfg.Terminal.InclusiveEndOffset,
		Login: models.SourceConfig{
			Server:       cfg.Terminal.Server,
			Login:        cfg.Terminal.Login,
			Password:     cfg.Terminal.Password,
			TerminalPath: cfg.Terminal.Path,
		},
	}
}

func ProvideFetcher(cfg *config.Config, l *applogger.Logger, m repository.Metrics) *fetcher.RetryingFetcher {
	return fetcher.New(
		fetcher.WithMaxAttempts(cfg.Ingest.FetchAttempts),
		fetcher.WithInterval(cfg.Ingest.FetchInterval),
		fetcher.WithLogger(l),
		fetcher.WithMetrics(m),
	)
}

func ProvidePlanner(cfg *config.Config) (*planner.Planner, error) {
	span, err := models.ParseSpan(cfg.Ingest.CalendarStep)
	if err != nil {
		return nil, err
	}
	return planner.New(cfg.Ingest.IndexStep, span), nil
}

func ProvideIngestUseCase(
	cfg *config.Config,
	l *applogger.Logger,
	registry *models.InstrumentRegistry,
	period models.Period,
	sources repository.SourceFactory,
	store repository.CandleStore,
	f *fetcher.RetryingFetcher,
	p *planner.Planner,
	pub repository.EventPublisher,
	m repository.Metrics,
	c cache.Service,
) (*usecase.IngestUseCase, error) {
	from, err := time.Parse("2006-01-02", cfg.Ingest.DefaultFrom)
	if err != nil {
		return nil, fmt.Errorf("ingest.default_from: %w", err)
	}

	opts := []usecase.IngestOption{
		usecase.WithLogger(l),
		usecase.WithPublisher(pub),
		usecase.WithMetrics(m),
		usecase.WithLocker(c),
	}
	if cfg.Discovery.Enabled {
		opts = append(opts, usecase.WithDiscovery(discovery.New(discovery.Config{
			URL:      cfg.Discovery.URL,
			Timeout:  cfg.Discovery.Timeout,
			CacheTTL: cfg.Discovery.CacheTTL,
		}, discovery.WithCache(c), discovery.WithLogger(l))))
	}

	return usecase.NewIngestUseCase(usecase.IngestConfig{
		Period:      period,
		Table:       tableRef(cfg),
		Instruments: cfg.Ingest.Instruments,
		DefaultFrom: from,
		Concurrency: cfg.Ingest.Concurrency,
		Throttle:    cfg.Ingest.Throttle,
		LockTTL:     cfg.Ingest.LockTTL,
		Login:       terminalConfig(cfg).Login,
	}, registry, sources, store, f, p, opts...), nil
}

func ProvideCandlesUseCase(cfg *config.Config, store repository.CandleStore, registry *models.InstrumentRegistry, period models.Period) *usecase.CandlesUseCase {
	return usecase.NewCandlesUseCase(store, registry, period, tableRef(cfg))
}

func ProvideIngest(l *applogger.Logger, ingest *usecase.IngestUseCase, candles *usecase.CandlesUseCase) *Ingest {
	return &Ingest{Logger: l, Ingest: ingest, Candles: candles}
}

func ProvideUpdateJob(ingest *usecase.IngestUseCase, l *applogger.Logger) *usecase.UpdateJob {
	return usecase.NewUpdateJob(ingest, l)
}

// JobQueue is a queue that reports the IDs of enqueued messages.
type JobQueue interface {
	queue.Queue
	api.Enqueuer
}

// ProvideQueue builds the job queue with the update job registered. It is started by the App.
func ProvideQueue(cfg *config.Config, l *applogger.Logger, job *usecase.UpdateJob, client *redis.Client) JobQueue {
	qc := &queue.QueueConfig{
		Workers:       cfg.Queue.Workers,
		RetryLimit:    cfg.Queue.MaxRetries,
		RetryDelay:    cfg.Queue.RetryDelay,
		MaxRetryDelay: cfg.Queue.MaxRetryDelay,
	}
	if cfg.Queue.Driver != "redis" || client == nil {
		return queue.NewMemoryQueue(l, qc, job)
	}
	q := queue.NewRedisQueue(l, qc, client, queue.WithKeyPrefix(cfg.Queue.Name))
	q.RegisterJob(job)
	return q
}

func ProvideHandler(cfg *config.Config, l *applogger.Logger, q JobQueue, ingest *usecase.IngestUseCase, candles *usecase.CandlesUseCase, store repository.CandleStore) xhttp.Handler {
	var opts []api.HandlerOption
	if lim := cfg.Server.UpdateLimit; lim.PerMinute > 0 {
		opts = append(opts, api.WithUpdateLimit(ratelimit.New(lim.Burst, lim.PerMinute/60)))
	}
	return api.NewCandlesHandler(l, q, ingest, candles, store, opts...)
}

func ProvideHTTPServer(cfg *config.Config, h xhttp.Handler, l *applogger.Logger) *xhttp.Server {
	return xhttp.NewServer(h, l,
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithMetricsEndpoint(cfg.Metrics.Enabled),
	)
}

// ProvideApp creates the long-running server.
func ProvideApp(cfg *config.Config, l *applogger.Logger, srv *xhttp.Server, q JobQueue) *server.App {
	return server.New(l, srv, q,
		server.WithSchedule(cfg.Ingest.ScheduleInterval, usecase.UpdateJobType, &models.UpdateRequest{From: usecase.FromLast, To: usecase.ToNow}),
	)
}
