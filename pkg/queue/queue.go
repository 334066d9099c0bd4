// Package queue buffers tracked events and delivers them in batches.
//
// A flush is triggered when the pending buffer reaches the batch size
// or when the batch timeout elapses after the first event of a run.
// Each batch gets a bounded number of delivery attempts with
// exponential backoff; batches that exhaust their attempts are written
// to the FailureStore. At most one batch is in flight per queue, and
// Send never blocks on the network or reports delivery errors.
package queue

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/iamgideonidoko/beacon/pkg/clock"
	"github.com/iamgideonidoko/beacon/pkg/event"
	"github.com/iamgideonidoko/beacon/pkg/logger"
)

var (
	ErrDeliveryExhausted = errors.New("delivery attempts exhausted")
	ErrQueueClosed       = errors.New("queue closed")
)

// Transport performs one delivery attempt for a batch.
type Transport interface {
	Deliver(ctx context.Context, batch []event.Event) error
}

type Options struct {
	BatchSize     int
	BatchTimeout  time.Duration
	SamplingRate  float64
	RetryAttempts int
	RetryBackoff  time.Duration

	// MaxRetryBackoff caps the doubling wait between attempts.
	MaxRetryBackoff time.Duration
}

func DefaultOptions() Options {
	return Options{
		BatchSize:     10,
		BatchTimeout:  2000 * time.Millisecond,
		SamplingRate:  1,
		RetryAttempts: 3,
		RetryBackoff:  1000 * time.Millisecond,

		MaxRetryBackoff: 30 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.BatchSize <= 0 {
		o.BatchSize = def.BatchSize
	}
	if o.BatchTimeout <= 0 {
		o.BatchTimeout = def.BatchTimeout
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = def.RetryAttempts
	}
	if o.RetryBackoff < 0 {
		o.RetryBackoff = def.RetryBackoff
	}
	if o.MaxRetryBackoff <= 0 {
		o.MaxRetryBackoff = def.MaxRetryBackoff
	}
	o.SamplingRate = min(max(o.SamplingRate, 0), 1)
	return o
}

type Option func(*Queue)

func WithClock(c clock.Clock) Option {
	return func(q *Queue) { q.clock = c }
}

// WithRandom replaces the sampling source. fn must return values in [0,1).
func WithRandom(fn func() float64) Option {
	return func(q *Queue) { q.random = fn }
}

func WithLogger(l *logger.Logger) Option {
	return func(q *Queue) { q.log = l }
}

// Stats is a point-in-time view of queue activity.
type Stats struct {
	Pending       int    `json:"pending"`
	Sending       bool   `json:"sending"`
	SentBatches   uint64 `json:"sent_batches"`
	SentEvents    uint64 `json:"sent_events"`
	FailedBatches uint64 `json:"failed_batches"`
	SampledOut    uint64 `json:"sampled_out"`
}

type Queue struct {
	opts      Options
	transport Transport
	failures  *FailureStore
	clock     clock.Clock
	random    func() float64
	log       *logger.Logger

	mu       sync.Mutex
	idle     *sync.Cond
	pending  []event.Event
	sending  bool
	timer    *clock.Timer
	timerGen uint64
	closed   bool
	stats    Stats

	// abort cuts backoff waits short once Close gives up waiting.
	abort     chan struct{}
	abortOnce sync.Once
}

func New(transport Transport, failures *FailureStore, opts Options, options ...Option) *Queue {
	q := &Queue{
		opts:      opts.withDefaults(),
		transport: transport,
		failures:  failures,
		clock:     clock.Real(),
		random:    rand.Float64,
		log:       logger.Default(),
		abort:     make(chan struct{}),
	}
	for _, o := range options {
		o(q)
	}
	q.log = q.log.WithField("component", "queue")
	q.idle = sync.NewCond(&q.mu)
	return q
}

func (q *Queue) Options() Options { return q.opts }

// Send admits ev subject to sampling and schedules its delivery.
func (q *Queue) Send(ev event.Event) {
	if q.random() >= q.opts.SamplingRate {
		q.mu.Lock()
		q.stats.SampledOut++
		q.mu.Unlock()
		return
	}

	ev.QueuedAt = event.Millis(q.clock.Now())

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.log.Warn("Event sent after close, persisting for retry", map[string]any{"type": ev.Type})
		q.failures.Append(context.Background(), []event.Event{ev})
		return
	}
	defer q.mu.Unlock()

	q.pending = append(q.pending, ev)
	if len(q.pending) >= q.opts.BatchSize {
		q.flushLocked()
		return
	}
	if q.timer == nil {
		q.timerGen++
		gen := q.timerGen
		q.timer = q.clock.AfterFunc(q.opts.BatchTimeout, func() { q.onTimer(gen) })
	}
}

func (q *Queue) onTimer(gen uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	// A flush since scheduling already cancelled this timer.
	if gen != q.timerGen {
		return
	}
	q.timer = nil
	q.flushLocked()
}

func (q *Queue) stopTimerLocked() {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.timerGen++
}

// flushLocked moves the head of pending into a new in-flight batch.
// It is a no-op while another batch is in flight.
func (q *Queue) flushLocked() {
	if q.sending || len(q.pending) == 0 {
		return
	}
	q.stopTimerLocked()

	n := min(len(q.pending), q.opts.BatchSize)
	batch := make([]event.Event, n)
	copy(batch, q.pending[:n])
	q.pending = append([]event.Event(nil), q.pending[n:]...)

	q.sending = true
	go q.deliver(batch)
}

func (q *Queue) deliver(batch []event.Event) {
	err := q.attempt(batch)
	if err != nil {
		q.log.Error("Batch delivery failed, persisting for retry", map[string]any{
			"error":  err.Error(),
			"events": len(batch),
		})
		q.failures.Append(context.Background(), batch)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err != nil {
		q.stats.FailedBatches++
	} else {
		q.stats.SentBatches++
		q.stats.SentEvents += uint64(len(batch))
	}
	q.sending = false
	q.flushLocked()
	if !q.sending {
		q.idle.Broadcast()
	}
}

// attempt delivers batch with exponential backoff between attempts,
// doubling from RetryBackoff up to MaxRetryBackoff.
func (q *Queue) attempt(batch []event.Event) error {
	var lastErr error
	wait := min(q.opts.RetryBackoff, q.opts.MaxRetryBackoff)
	for attempt := 0; attempt < q.opts.RetryAttempts; attempt++ {
		err := q.transport.Deliver(context.Background(), batch)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == q.opts.RetryAttempts-1 {
			break
		}

		q.log.Warn("Batch delivery failed, retrying", map[string]any{
			"attempt": attempt + 1,
			"max":     q.opts.RetryAttempts,
			"wait_ms": wait.Milliseconds(),
			"error":   err.Error(),
		})

		select {
		case <-q.clock.After(wait):
		case <-q.abort:
			return fmt.Errorf("%w: %v", ErrQueueClosed, lastErr)
		}
		wait = min(wait*2, q.opts.MaxRetryBackoff)
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrDeliveryExhausted, q.opts.RetryAttempts, lastErr)
}

// Wait blocks until no batch is in flight.
func (q *Queue) Wait() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.sending {
		q.idle.Wait()
	}
}

// Flush starts delivery of everything pending and waits until the
// queue is idle or ctx is done.
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	q.flushLocked()
	q.mu.Unlock()

	return q.waitContext(ctx)
}

// Close stops accepting events into the buffer, delivers what is
// pending and waits. If ctx ends first, backoff waits are abandoned
// and their batches persisted.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.stopTimerLocked()
	q.flushLocked()
	q.mu.Unlock()

	if err := q.waitContext(ctx); err != nil {
		q.abortOnce.Do(func() { close(q.abort) })
		q.Wait()
		q.persistPending()
		return err
	}
	return nil
}

// persistPending moves anything still buffered into the failure store.
func (q *Queue) persistPending() {
	q.mu.Lock()
	rest := q.pending
	q.pending = nil
	q.mu.Unlock()

	q.failures.Append(context.Background(), rest)
}

func (q *Queue) waitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RetryFailedEvents resubmits every persisted event through Send and
// clears the store. It returns the number of events resubmitted.
func (q *Queue) RetryFailedEvents(ctx context.Context) int {
	events := q.failures.Drain(ctx)
	for _, ev := range events {
		q.Send(ev)
	}
	if len(events) > 0 {
		q.log.Info("Resubmitted failed events", map[string]any{"events": len(events)})
	}
	return len(events)
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.stats
	s.Pending = len(q.pending)
	s.Sending = q.sending
	return s
}
