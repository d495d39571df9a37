package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/claimwiz/internal/queue"
)

type fakeDrainer struct {
	calls atomic.Int32
	err   error
	block chan struct{}
}

func (d *fakeDrainer) Drain(ctx context.Context) (queue.DrainResult, error) {
	d.calls.Add(1)
	if d.block != nil {
		select {
		case <-d.block:
		case <-ctx.Done():
			return queue.DrainResult{}, ctx.Err()
		}
	}
	return queue.DrainResult{Delivered: []string{"sub-1"}}, d.err
}

type cycle struct {
	tag string
	err error
}

// startWorker runs w in the background and returns a channel of handled
// requests. The worker is stopped when the test ends.
func startWorker(t *testing.T, d Drainer, opts ...Option) (*Worker, <-chan cycle) {
	t.Helper()
	cycles := make(chan cycle, 16)
	opts = append(opts, WithCycleHook(func(tag string, err error) {
		cycles <- cycle{tag: tag, err: err}
	}))
	w := New(d, opts...)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w, cycles
}

func waitCycle(t *testing.T, cycles <-chan cycle) cycle {
	t.Helper()
	select {
	case c := <-cycles:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for background sync")
		return cycle{}
	}
}

func TestRegister_UnknownTag(t *testing.T) {
	w := New(&fakeDrainer{})

	err := w.Register("photo-upload")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownTag)
	assert.Empty(t, w.Pending())
}

func TestRegister_Coalesces(t *testing.T) {
	w := New(&fakeDrainer{})

	require.NoError(t, w.Register(SyncTag))
	require.NoError(t, w.Register(SyncTag))
	require.NoError(t, w.Register(SyncTag))

	assert.Equal(t, []string{SyncTag}, w.Pending())
}

func TestRegister_AfterStop(t *testing.T) {
	w := New(&fakeDrainer{})
	w.Stop()

	err := w.Register(SyncTag)
	assert.ErrorIs(t, err, ErrStopped)
}

func TestRun_DrainsRegisteredTag(t *testing.T) {
	d := &fakeDrainer{}
	w, cycles := startWorker(t, d)

	require.NoError(t, w.Register(SyncTag))
	c := waitCycle(t, cycles)

	assert.Equal(t, SyncTag, c.tag)
	assert.NoError(t, c.err)
	assert.Equal(t, int32(1), d.calls.Load())
}

func TestRun_SkipsWhileOffline(t *testing.T) {
	d := &fakeDrainer{}
	var online atomic.Bool
	w, cycles := startWorker(t, d, WithOnlineCheck(online.Load))

	require.NoError(t, w.Register(SyncTag))
	waitCycle(t, cycles)
	assert.Equal(t, int32(0), d.calls.Load())
	assert.Empty(t, w.Pending(), "offline request is dropped until re-registered")

	online.Store(true)
	require.NoError(t, w.Register(SyncTag))
	waitCycle(t, cycles)
	assert.Equal(t, int32(1), d.calls.Load())
}

func TestRun_DrainFailureReported(t *testing.T) {
	boom := errors.New("connection refused")
	d := &fakeDrainer{err: boom}
	w, cycles := startWorker(t, d)

	require.NoError(t, w.Register(SyncTag))
	c := waitCycle(t, cycles)
	assert.ErrorIs(t, c.err, boom)

	// The worker keeps running; the next registration retries.
	require.NoError(t, w.Register(SyncTag))
	waitCycle(t, cycles)
	assert.Equal(t, int32(2), d.calls.Load())
}

func TestRun_DrainInFlightIsNotAFailure(t *testing.T) {
	d := &fakeDrainer{err: queue.ErrDrainInFlight}
	w, cycles := startWorker(t, d)

	require.NoError(t, w.Register(SyncTag))
	c := waitCycle(t, cycles)
	assert.NoError(t, c.err)
}

func TestRun_RegisterDuringDrainRunsAgain(t *testing.T) {
	d := &fakeDrainer{block: make(chan struct{})}
	w, cycles := startWorker(t, d)

	require.NoError(t, w.Register(SyncTag))
	require.Eventually(t, func() bool { return d.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	// Taken off the queue while draining, so this one is pending again.
	require.NoError(t, w.Register(SyncTag))
	assert.Equal(t, []string{SyncTag}, w.Pending())

	close(d.block)
	waitCycle(t, cycles)
	waitCycle(t, cycles)
	assert.Equal(t, int32(2), d.calls.Load())
}

func TestRun_StopsOnCancel(t *testing.T) {
	w := New(&fakeDrainer{})
	ctx, cancel := context.WithCancel(t.Context())

	var wg sync.WaitGroup
	var err error
	wg.Add(1)
	go func() {
		defer wg.Done()
		err = w.Run(ctx)
	}()
	cancel()
	wg.Wait()

	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, w.Register(SyncTag), ErrStopped)
}

func TestRun_StopReturnsNil(t *testing.T) {
	w := New(&fakeDrainer{})
	done := make(chan error, 1)
	go func() { done <- w.Run(t.Context()) }()

	w.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestFlush_HandlesPendingInline(t *testing.T) {
	d := &fakeDrainer{}
	w := New(d)

	assert.Equal(t, 0, w.Flush(t.Context()))

	require.NoError(t, w.Register(SyncTag))
	require.NoError(t, w.Register(SyncTag))
	assert.Equal(t, 1, w.Flush(t.Context()))
	assert.Equal(t, int32(1), d.calls.Load())
	assert.Empty(t, w.Pending())
}
