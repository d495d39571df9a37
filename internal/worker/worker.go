package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/claimwiz/internal/queue"
)

// SyncTag requests delivery of the queued tax form submissions.
const SyncTag = "tax-form-submission"

var (
	// ErrUnknownTag is returned when registering a tag with no handler.
	ErrUnknownTag = errors.New("unknown sync tag")

	// ErrStopped is returned when registering after Stop.
	ErrStopped = errors.New("worker stopped")
)

// Drainer delivers the submission backlog.
type Drainer interface {
	Drain(ctx context.Context) (queue.DrainResult, error)
}

// Option configures a Worker.
type Option func(*Worker)

// WithOnlineCheck sets the function consulted before running a sync. While it
// reports false, requests are dropped; the next connectivity-restored
// transition registers them again.
func WithOnlineCheck(online func() bool) Option {
	return func(w *Worker) {
		w.online = online
	}
}

// WithCycleHook registers fn to run after every handled request. Tests use
// it to observe the worker.
func WithCycleHook(fn func(tag string, err error)) Option {
	return func(w *Worker) {
		w.onCycle = fn
	}
}

// Worker runs sync requests in the background, outside any wizard session.
// Requests for the same tag made before the worker gets to them coalesce
// into one run.
type Worker struct {
	requests *requestQueue
	handlers map[string]func(ctx context.Context) error
	online   func() bool
	onCycle  func(tag string, err error)
}

// New creates a worker that answers SyncTag by draining d.
func New(d Drainer, opts ...Option) *Worker {
	w := &Worker{
		requests: newRequestQueue(),
		online:   func() bool { return true },
	}
	w.handlers = map[string]func(ctx context.Context) error{
		SyncTag: func(ctx context.Context) error {
			res, err := d.Drain(ctx)
			if errors.Is(err, queue.ErrDrainInFlight) {
				// The running drain covers this request.
				return nil
			}
			if err != nil {
				return err
			}
			slog.Info("background sync finished", "delivered", len(res.Delivered))
			return nil
		},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Register requests a sync for tag.
func (w *Worker) Register(tag string) error {
	if _, ok := w.handlers[tag]; !ok {
		return fmt.Errorf("register %q: %w", tag, ErrUnknownTag)
	}
	if !w.requests.Add(tag) {
		return fmt.Errorf("register %q: %w", tag, ErrStopped)
	}
	slog.Debug("background sync registered", "tag", tag)
	return nil
}

// Pending returns the tags waiting to run.
func (w *Worker) Pending() []string {
	return w.requests.Pending()
}

// Run handles requests until ctx is cancelled or Stop is called.
func (w *Worker) Run(ctx context.Context) error {
	slog.Info("background worker starting")

	for {
		if tag, ok := w.requests.TryTake(); ok {
			w.handle(ctx, tag)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("background worker stopping: context cancelled")
			w.requests.Close()
			return ctx.Err()

		case <-w.requests.Wait():
			if w.requests.Closed() && len(w.requests.Pending()) == 0 {
				slog.Info("background worker stopping: stopped")
				return nil
			}
		}
	}
}

// Flush handles every pending request on the calling goroutine and returns
// how many ran.
func (w *Worker) Flush(ctx context.Context) int {
	n := 0
	for {
		tag, ok := w.requests.TryTake()
		if !ok {
			return n
		}
		w.handle(ctx, tag)
		n++
	}
}

// Stop makes Run return once pending requests are handled.
func (w *Worker) Stop() {
	w.requests.Close()
}

func (w *Worker) handle(ctx context.Context, tag string) {
	var err error
	if w.online() {
		err = w.handlers[tag](ctx)
		if err != nil {
			slog.Error("background sync failed", "tag", tag, "error", err)
		}
	} else {
		slog.Debug("background sync skipped: offline", "tag", tag)
	}
	if w.onCycle != nil {
		w.onCycle(tag, err)
	}
}
