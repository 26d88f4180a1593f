package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	xhttp "CandlePull/pkg/http"
	applogger "CandlePull/pkg/logger"
)

// JobQueue is the background queue the App starts and stops.
type JobQueue interface {
	Start() error
	Stop(ctx context.Context) error
	Enqueue(ctx context.Context, msgType string, payload interface{}) (string, error)
}

type schedule struct {
	every   time.Duration
	msgType string
	payload interface{}
}

type Option func(*App)

// WithSchedule enqueues payload every interval. A zero interval disables it.
func WithSchedule(every time.Duration, msgType string, payload interface{}) Option {
	return func(a *App) {
		if every > 0 {
			a.schedule = &schedule{every: every, msgType: msgType, payload: payload}
		}
	}
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) {
		if d > 0 {
			a.shutdownTimeout = d
		}
	}
}

// App encapsulates the serve lifecycle: HTTP server, job queue and scheduler.
type App struct {
	l               *applogger.Logger
	httpServer      *xhttp.Server
	queue           JobQueue
	schedule        *schedule
	shutdownTimeout time.Duration
	wg              sync.WaitGroup
}

func New(l *applogger.Logger, srv *xhttp.Server, q JobQueue, opts ...Option) *App {
	a := &App{
		l:               l,
		httpServer:      srv,
		queue:           q,
		shutdownTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts every component and blocks until ctx is done or a signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.queue.Start(); err != nil {
		return err
	}
	a.l.Info("job queue started")

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		_ = a.queue.Stop(context.Background())
		return err
	}

	if a.schedule != nil {
		a.wg.Add(1)
		go a.runSchedule(ctx)
		a.l.Info("update schedule started", applogger.Duration("every", a.schedule.every))
	}

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.shutdown()
}

func (a *App) runSchedule(ctx context.Context) {
	defer a.wg.Done()
	t := time.NewTicker(a.schedule.every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			id, err := a.queue.Enqueue(ctx, a.schedule.msgType, a.schedule.payload)
			if err != nil {
				a.l.Warn("scheduled enqueue failed", applogger.Error(err))
				continue
			}
			a.l.Debug("scheduled update enqueued", applogger.String("job_id", id))
		}
	}
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	a.wg.Wait()

	var errList []error
	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
		errList = append(errList, err)
	}
	if err := a.queue.Stop(ctx); err != nil {
		a.l.Warn("job queue stop error", applogger.Error(err))
		errList = append(errList, err)
	}

	a.l.Info("shutdown complete")
	return errors.Join(errList...)
}
