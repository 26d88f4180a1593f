package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"CandlePull/pkg/logger"
)

const (
	popTimeout   = time.Second
	promoteEvery = 2 * time.Second
	promoteBatch = 100
)

// RedisQueue is a reliable list queue. A worker moves a message from the
// pending list to the processing list and removes it only once handled, so
// messages held by a crashed process are requeued on the next Start. Failed
// messages wait in a sorted set scored by their retry time and end up in the
// dead letter list once RetryLimit is spent.
type RedisQueue struct {
	logger *logger.Logger
	config *QueueConfig
	client redis.UniversalClient
	prefix string

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var _ Queue = (*RedisQueue)(nil)

type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix namespaces every key of the queue.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

func NewRedisQueue(lgr *logger.Logger, config *QueueConfig, client redis.UniversalClient, opts ...RedisQueueOption) *RedisQueue {
	r := &RedisQueue{
		logger: lgr,
		config: config.withDefaults(),
		client: client,
		prefix: "candlepull:queue",
		jobs:   make(map[string]Job),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisQueue) pendingKey() string    { return r.prefix + ":pending" }
func (r *RedisQueue) processingKey() string { return r.prefix + ":processing" }
func (r *RedisQueue) retryKey() string      { return r.prefix + ":retry" }
func (r *RedisQueue) deadKey() string       { return r.prefix + ":dead" }

func (r *RedisQueue) RegisterJob(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.Type()]; ok {
		r.logger.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
	r.logger.Info("job registered", logger.String("job", job.Name()), logger.String("type", job.Type()))
}

// Start pings Redis, requeues orphaned messages and starts the workers.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("queue already running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	n, err := r.recover(ctx)
	if err != nil {
		return fmt.Errorf("requeue processing list: %w", err)
	}
	if n > 0 {
		r.logger.Warn("requeued unfinished messages", logger.Int("count", n))
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	r.cancel = runCancel
	r.running = true
	for i := 0; i < r.config.Workers; i++ {
		r.wg.Add(1)
		go r.work(runCtx, i)
	}
	r.wg.Add(1)
	go r.promoteLoop(runCtx)

	r.logger.Info("redis queue started", logger.Int("workers", r.config.Workers), logger.String("prefix", r.prefix))
	return nil
}

// recover moves everything left on the processing list back to pending.
func (r *RedisQueue) recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := r.client.LMove(ctx, r.processingKey(), r.pendingKey(), "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

// Stop cancels the workers and waits for them or for ctx.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		r.logger.Warn("timeout waiting for queue workers", logger.Error(ctx.Err()))
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-done:
		r.logger.Info("redis queue stopped")
		return nil
	}
}

// Enqueue pushes a message and returns its ID. Unknown types are refused.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) (string, error) {
	r.mu.RLock()
	running := r.running
	_, known := r.jobs[msgType]
	r.mu.RUnlock()
	if !running {
		return "", fmt.Errorf("queue not running")
	}
	if !known {
		return "", fmt.Errorf("no job registered for type: %s", msgType)
	}

	msg := Message{ID: uuid.NewString(), Type: msgType, Payload: payload, Timestamp: time.Now().UTC()}
	raw, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.pendingKey(), raw).Err(); err != nil {
		return "", fmt.Errorf("lpush: %w", err)
	}
	return msg.ID, nil
}

func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	_, err := r.Enqueue(ctx, msgType, payload)
	return err
}

func (r *RedisQueue) work(ctx context.Context, id int) {
	defer r.wg.Done()
	for ctx.Err() == nil {
		raw, err := r.client.BLMove(ctx, r.pendingKey(), r.processingKey(), "RIGHT", "LEFT", popTimeout).Result()
		switch {
		case err == nil:
			r.handle(ctx, raw)
		case errors.Is(err, redis.Nil), ctx.Err() != nil:
		default:
			r.logger.Error("blmove failed", logger.Int("worker_id", id), logger.Error(err))
			sleepCtx(ctx, time.Second)
		}
	}
}

func (r *RedisQueue) handle(ctx context.Context, raw string) {
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		r.logger.Error("undecodable message moved to dead letters", logger.Error(err))
		r.finish(raw, r.deadKey(), 0)
		return
	}

	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.logger.Error("no job for message type", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.finish(raw, r.deadKey(), 0)
		return
	}

	start := time.Now()
	err := job.Handle(ctx, convertPayload(msg.Payload))
	fields := []logger.Field{
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts+1),
		logger.Duration("elapsed", time.Since(start)),
	}
	switch {
	case err == nil:
		r.finish(raw, "", 0)
	case ctx.Err() != nil:
		// Left on the processing list; the next Start requeues it.
		r.logger.Warn("message interrupted by shutdown", fields...)
	default:
		r.logger.Error("message processing error", append(fields, logger.Error(err))...)
		r.fail(raw, msg, err)
	}
}

func (r *RedisQueue) fail(raw string, msg Message, cause error) {
	msg.Attempts++
	msg.LastError = cause.Error()
	next, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal retry", logger.Error(err))
		r.finish(raw, r.deadKey(), 0)
		return
	}
	if msg.Attempts > r.config.RetryLimit {
		r.logger.Error("max retries reached", logger.String("id", msg.ID))
		r.finishAs(raw, string(next), r.deadKey(), 0)
		return
	}
	at := time.Now().Add(r.config.retryDelay(msg.Attempts))
	r.finishAs(raw, string(next), r.retryKey(), float64(at.Unix()))
	r.logger.Info("scheduled retry", logger.String("id", msg.ID), logger.Time("retry_at", at))
}

func (r *RedisQueue) finish(raw, dest string, score float64) {
	r.finishAs(raw, raw, dest, score)
}

// finishAs drops raw from the processing list and, when dest is set, stores
// next there in the same transaction. The retry set is recognised by its key.
func (r *RedisQueue) finishAs(raw, next, dest string, score float64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pipe := r.client.TxPipeline()
	pipe.LRem(ctx, r.processingKey(), 1, raw)
	switch dest {
	case "":
	case r.retryKey():
		pipe.ZAdd(ctx, dest, redis.Z{Score: score, Member: next})
	default:
		pipe.LPush(ctx, dest, next)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("finish message", logger.String("dest", dest), logger.Error(err))
	}
}

func (r *RedisQueue) promoteLoop(ctx context.Context) {
	defer r.wg.Done()
	t := time.NewTicker(promoteEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := r.promote(ctx, time.Now()); err != nil && ctx.Err() == nil {
				r.logger.Error("promote retries", logger.Error(err))
			}
		}
	}
}

// promote moves due retries back to pending. A member is pushed only by the
// caller whose ZREM removed it, so several processes can promote concurrently.
func (r *RedisQueue) promote(ctx context.Context, now time.Time) (int, error) {
	due, err := r.client.ZRangeByScore(ctx, r.retryKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: promoteBatch,
	}).Result()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, member := range due {
		removed, err := r.client.ZRem(ctx, r.retryKey(), member).Result()
		if err != nil {
			return n, err
		}
		if removed == 0 {
			continue
		}
		if err := r.client.LPush(ctx, r.pendingKey(), member).Err(); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// convertPayload turns a JSON-decoded map back into raw JSON for ParsePayload.
func convertPayload(payload interface{}) interface{} {
	m, ok := payload.(map[string]interface{})
	if !ok {
		return payload
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return payload
	}
	return json.RawMessage(raw)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
