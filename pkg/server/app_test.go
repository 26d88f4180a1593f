package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xhttp "CandlePull/pkg/http"
	applogger "CandlePull/pkg/logger"
)

type noRoutes struct{}

func (noRoutes) RegisterRoutes(*echo.Echo) {}

type fakeQueue struct {
	mu       sync.Mutex
	started  bool
	stopped  bool
	startErr error
	enqueued []string
}

func (q *fakeQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.started = true
	return q.startErr
}

func (q *fakeQueue) Stop(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopped = true
	return nil
}

func (q *fakeQueue) Enqueue(_ context.Context, msgType string, _ interface{}) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, msgType)
	return "id", nil
}

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.enqueued)
}

func testServer() *xhttp.Server {
	return xhttp.NewServer(noRoutes{}, applogger.Nop(),
		xhttp.WithHost("127.0.0.1"),
		xhttp.WithPort(0),
		xhttp.WithMetricsEndpoint(false),
	)
}

func TestAppRunsScheduleUntilCancelled(t *testing.T) {
	q := &fakeQueue{}
	app := New(applogger.Nop(), testServer(), q,
		WithSchedule(10*time.Millisecond, "candles.update", nil),
		WithShutdownTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool { return q.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, q.started)
	assert.True(t, q.stopped)
	assert.Equal(t, "candles.update", q.enqueued[0])
}

func TestAppWithoutScheduleEnqueuesNothing(t *testing.T) {
	q := &fakeQueue{}
	app := New(applogger.Nop(), testServer(), q, WithSchedule(0, "candles.update", nil))
	assert.Nil(t, app.schedule)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, app.Run(ctx))
	assert.Zero(t, q.count())
}

func TestAppQueueStartFailure(t *testing.T) {
	q := &fakeQueue{startErr: errors.New("redis down")}
	app := New(applogger.Nop(), testServer(), q)

	err := app.Run(context.Background())
	assert.EqualError(t, err, "redis down")
}
