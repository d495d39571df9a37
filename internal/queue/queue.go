package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/claimwiz/internal/store"
)

// ErrDrainInFlight is returned when Drain is called while another drain is
// still running. The running drain covers the same backlog.
var ErrDrainInFlight = errors.New("drain already in flight")

// Backlog is the durable envelope collection.
type Backlog interface {
	Enqueue(ctx context.Context, env store.Envelope) error
	List(ctx context.Context) ([]store.Envelope, error)
	Remove(ctx context.Context, id string) error
	MarkAttempt(ctx context.Context, id string) (int, error)
}

// DrainResult summarizes one drain cycle.
type DrainResult struct {
	Delivered []string `json:"delivered"`
	Failed    string   `json:"failed,omitempty"`
	Attempts  int      `json:"attempts,omitempty"` // of the failed envelope
	Remaining int      `json:"remaining"`
}

// Option configures a Queue.
type Option func(*Queue)

// WithIDGenerator sets the envelope id source. Defaults to UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(q *Queue) {
		q.ids = g
	}
}

// WithClock sets the enqueue timestamp source.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// WithChannel sets the channel that receives sync-complete messages.
func WithChannel(c *Channel) Option {
	return func(q *Queue) {
		q.channel = c
	}
}

// WithTransportFailureHook registers fn to be told about deliveries that
// never reached the server, so connectivity can be re-evaluated.
func WithTransportFailureHook(fn func(error)) Option {
	return func(q *Queue) {
		q.onTransportFailure = fn
	}
}

// Queue defers submissions until they can be delivered, exactly once each,
// in the order they were made.
//
// Each envelope moves pending -> in-flight -> delivered (removed) or back to
// pending with one more attempt. A failed delivery stops the drain cycle so
// later envelopes never overtake an earlier one.
type Queue struct {
	backlog            Backlog
	dispatcher         Dispatcher
	ids                IDGenerator
	now                func() time.Time
	channel            *Channel
	onTransportFailure func(error)
	tracer             trace.Tracer

	draining atomic.Bool
}

// New creates a queue over backlog delivering through dispatcher.
func New(backlog Backlog, dispatcher Dispatcher, opts ...Option) *Queue {
	q := &Queue{
		backlog:    backlog,
		dispatcher: dispatcher,
		ids:        UUIDv7Generator{},
		now:        time.Now,
		channel:    NewChannel(),
		tracer:     otel.Tracer("claimwiz/queue"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Channel returns the channel sync-complete messages are posted to.
func (q *Queue) Channel() *Channel {
	return q.channel
}

// Enqueue durably records payload as a new pending envelope. An error means
// nothing was recorded and the submission must not be reported as saved.
func (q *Queue) Enqueue(ctx context.Context, payload any) (store.Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return store.Envelope{}, fmt.Errorf("enqueue submission: %w", err)
	}
	env := store.Envelope{
		ID:         q.ids.Generate(),
		Payload:    data,
		EnqueuedAt: q.now().UTC(),
	}
	if err := q.backlog.Enqueue(ctx, env); err != nil {
		slog.Error("submission not queued", "submission", env.ID, "error", err)
		return store.Envelope{}, fmt.Errorf("enqueue submission: %w", err)
	}
	slog.Info("submission queued", "submission", env.ID)
	return env, nil
}

// Submit implements the wizard's Submitter: the final payload is enqueued
// and its envelope id returned.
func (q *Queue) Submit(ctx context.Context, payload map[string]string) (string, error) {
	env, err := q.Enqueue(ctx, payload)
	if err != nil {
		return "", err
	}
	return env.ID, nil
}

// Pending returns the queued envelopes in delivery order.
func (q *Queue) Pending(ctx context.Context) ([]store.Envelope, error) {
	envs, err := q.backlog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	return envs, nil
}

// Drain attempts delivery of every pending envelope in FIFO order. It stops
// at the first failure, leaving that envelope pending with one more attempt
// recorded, and returns the delivery error. Each delivered envelope is
// removed and announced with one sync-complete message.
//
// Returns ErrDrainInFlight if another drain is running.
func (q *Queue) Drain(ctx context.Context) (result DrainResult, err error) {
	if !q.draining.CompareAndSwap(false, true) {
		return DrainResult{}, ErrDrainInFlight
	}
	defer q.draining.Store(false)

	ctx, span := q.tracer.Start(ctx, "queue.drain")
	defer func() {
		span.SetAttributes(
			attribute.Int("drain.delivered", len(result.Delivered)),
			attribute.Int("drain.remaining", result.Remaining),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	envs, err := q.backlog.List(ctx)
	if err != nil {
		return DrainResult{}, fmt.Errorf("drain: %w", err)
	}
	result.Delivered = []string{}

	for i, env := range envs {
		if err := ctx.Err(); err != nil {
			result.Remaining = len(envs) - i
			return result, err
		}

		if derr := q.dispatcher.Dispatch(ctx, env); derr != nil {
			if cerr := ctx.Err(); cerr != nil {
				// Abandoned by the caller: neither an attempt nor a network failure.
				result.Remaining = len(envs) - i
				slog.Info("drain cancelled", "submission", env.ID, "error", derr)
				return result, cerr
			}
			attempts, merr := q.backlog.MarkAttempt(ctx, env.ID)
			if merr != nil {
				slog.Error("recording delivery attempt failed", "submission", env.ID, "error", merr)
				attempts = env.Attempts + 1
			}
			result.Failed = env.ID
			result.Attempts = attempts
			result.Remaining = len(envs) - i
			slog.Error("delivery failed",
				"submission", env.ID,
				"attempts", attempts,
				"remaining", result.Remaining,
				"error", derr,
			)
			if IsTransportError(derr) && q.onTransportFailure != nil {
				q.onTransportFailure(derr)
			}
			return result, fmt.Errorf("drain: %w", derr)
		}

		if rerr := q.backlog.Remove(ctx, env.ID); rerr != nil && !store.IsNotFound(rerr) {
			// Delivered but still queued: it will be sent again next cycle.
			result.Remaining = len(envs) - i
			return result, fmt.Errorf("drain: remove delivered %s: %w", env.ID, rerr)
		}
		result.Delivered = append(result.Delivered, env.ID)
		slog.Info("submission delivered", "submission", env.ID, "attempts", env.Attempts+1)
		q.channel.Post(Message{
			Kind:         KindSyncComplete,
			Message:      SyncCompleteMessage,
			SubmissionID: env.ID,
		})
	}
	return result, nil
}
