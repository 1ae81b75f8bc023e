package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/dkhp-proxy/pkg/portal"
)

const (
	// writeTimeout bounds a single state update. It is only enforced when the
	// Redis client has ContextTimeoutEnabled set.
	writeTimeout = 500 * time.Millisecond

	// queueSize is the number of outcomes buffered ahead of the writer.
	queueSize = 256
)

var (
	upstreamConsecutiveFailures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dkhp_upstream_consecutive_failures",
		Help: "Number of consecutive failed portal calls as recorded in the shared health state",
	})

	healthWriteErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dkhp_health_write_errors_total",
		Help: "Total number of failed health state writes to Redis",
	})

	healthDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dkhp_health_dropped_total",
		Help: "Total number of call outcomes dropped because the health writer fell behind",
	})
)

// ErrDegraded is returned by Check when the portal keeps failing.
var ErrDegraded = errors.New("upstream degraded")

// outcome is one queued call result. A non-nil flushed is a barrier, not a result.
type outcome struct {
	endpoint string
	status   int
	failed   bool
	at       time.Time
	flushed  chan struct{}
}

// Tracker records portal call outcomes in Redis. It implements portal.Observer.
//
// Observe never waits on Redis: outcomes go through a bounded queue drained
// by a single writer goroutine, and are dropped when the queue is full.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger

	queue     chan outcome
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

var _ portal.Observer = (*Tracker)(nil)

// NewTracker creates a health tracker and starts its writer. Call Close to stop it.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	t := &Tracker{
		redis:  redisClient,
		logger: logger,
		queue:  make(chan outcome, queueSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go t.run()
	return t
}

// IsFailure reports whether err means the portal itself misbehaved.
// Client errors, rejected envelopes and cancellations do not count.
func IsFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var upErr *portal.UpstreamError
	if !errors.As(err, &upErr) {
		return true
	}
	switch upErr.ErrorClass {
	case portal.ErrorClassNetwork, portal.ErrorClassServer, portal.ErrorClassMalformed:
		return true
	default:
		return false
	}
}

// Observe queues the outcome of one portal call. It never blocks.
// Failed calls whose caller had already gone away are ignored: they say
// nothing about the portal.
func (t *Tracker) Observe(ctx context.Context, endpoint string, statusCode int, err error) {
	if err != nil && ctx.Err() != nil {
		return
	}

	o := outcome{
		endpoint: endpoint,
		status:   statusCode,
		failed:   IsFailure(err),
		at:       time.Now(),
	}

	select {
	case <-t.stop:
	case t.queue <- o:
	default:
		healthDroppedTotal.Inc()
		t.logger.Warn().Str("endpoint", endpoint).Msg("Health queue full, dropping call outcome")
	}
}

// Flush waits until every outcome queued before the call has been written.
func (t *Tracker) Flush(ctx context.Context) error {
	flushed := make(chan struct{})
	select {
	case t.queue <- outcome{flushed: flushed}:
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-flushed:
		return nil
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the writer after the write in progress. Queued outcomes are discarded.
func (t *Tracker) Close() {
	t.closeOnce.Do(func() { close(t.stop) })
	<-t.done
}

func (t *Tracker) run() {
	defer close(t.done)
	for {
		select {
		case <-t.stop:
			return
		case o := <-t.queue:
			if o.flushed != nil {
				close(o.flushed)
				continue
			}
			t.record(o)
		}
	}
}

// record writes one outcome. Redis errors are logged, never returned.
func (t *Tracker) record(o outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	at := o.at.UnixMilli()

	pipe := t.redis.TxPipeline()
	var failures *redis.IntCmd
	if o.failed {
		failures = pipe.Incr(ctx, RedisKeyConsecutiveFailures)
		pipe.Set(ctx, RedisKeyLastFailure, at, 0)
	} else {
		pipe.Set(ctx, RedisKeyConsecutiveFailures, 0, 0)
		pipe.Set(ctx, RedisKeyLastSuccess, at, 0)
	}
	pipe.Set(ctx, RedisKeyLastStatus, o.status, 0)
	pipe.Set(ctx, RedisKeyLastEndpoint, o.endpoint, 0)

	if _, execErr := pipe.Exec(ctx); execErr != nil {
		healthWriteErrorsTotal.Inc()
		t.logger.Warn().Err(execErr).Str("endpoint", o.endpoint).Msg("Failed to record upstream health")
		return
	}

	if !o.failed {
		upstreamConsecutiveFailures.Set(0)
		return
	}

	count := failures.Val()
	upstreamConsecutiveFailures.Set(float64(count))
	if count == FailureThreshold {
		t.logger.Error().
			Str("endpoint", o.endpoint).
			Int("status", o.status).
			Int64("consecutive_failures", count).
			Msg("Portal DEGRADED - consecutive failure threshold reached")
	}
}

// GetState retrieves the current health state from Redis.
// Returns a healthy zero state if nothing was recorded yet.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	pipe := t.redis.Pipeline()
	failuresCmd := pipe.Get(ctx, RedisKeyConsecutiveFailures)
	successCmd := pipe.Get(ctx, RedisKeyLastSuccess)
	failureCmd := pipe.Get(ctx, RedisKeyLastFailure)
	statusCmd := pipe.Get(ctx, RedisKeyLastStatus)
	endpointCmd := pipe.Get(ctx, RedisKeyLastEndpoint)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read health state: %w", err)
	}

	state := &State{}

	var err error
	if state.ConsecutiveFailures, err = intOrZero(failuresCmd); err != nil {
		return nil, fmt.Errorf("get consecutive failures: %w", err)
	}
	if state.LastStatus, err = intOrZero(statusCmd); err != nil {
		return nil, fmt.Errorf("get last status: %w", err)
	}
	if state.LastSuccess, err = timeOrZero(successCmd); err != nil {
		return nil, fmt.Errorf("get last success: %w", err)
	}
	if state.LastFailure, err = timeOrZero(failureCmd); err != nil {
		return nil, fmt.Errorf("get last failure: %w", err)
	}
	state.LastEndpoint = endpointCmd.Val()
	state.UpdateHealth()

	return state, nil
}

// Check returns nil when Redis is reachable and the portal is not degraded.
func (t *Tracker) Check(ctx context.Context) error {
	if err := t.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis unreachable: %w", err)
	}
	state, err := t.GetState(ctx)
	if err != nil {
		return err
	}
	if !state.Healthy {
		return fmt.Errorf("%w: %d consecutive failures", ErrDegraded, state.ConsecutiveFailures)
	}
	return nil
}

// Reset clears the recorded state.
func (t *Tracker) Reset(ctx context.Context) error {
	err := t.redis.Del(ctx,
		RedisKeyConsecutiveFailures,
		RedisKeyLastSuccess,
		RedisKeyLastFailure,
		RedisKeyLastStatus,
		RedisKeyLastEndpoint,
	).Err()
	if err != nil {
		return fmt.Errorf("reset health state: %w", err)
	}
	upstreamConsecutiveFailures.Set(0)
	return nil
}

func intOrZero(cmd *redis.StringCmd) (int, error) {
	v, err := cmd.Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func timeOrZero(cmd *redis.StringCmd) (time.Time, error) {
	ms, err := cmd.Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
