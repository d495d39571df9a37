package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/claimwiz/internal/notify"
)

// Status is the resolved connectivity state.
type Status string

const (
	Online  Status = "online"
	Offline Status = "offline"
)

// Cause names the signal that resolved a transition.
type Cause string

const (
	CausePlatform Cause = "platform"
	CauseProbe    Cause = "probe"
	CauseFailure  Cause = "request-failure"
)

// Transition is raised once per change of the resolved state.
type Transition struct {
	From  Status    `json:"from"`
	To    Status    `json:"to"`
	Cause Cause     `json:"cause"`
	At    time.Time `json:"at"`
}

// Prober checks real reachability. A nil error means reachable.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) error

// Probe implements Prober.
func (f ProberFunc) Probe(ctx context.Context) error {
	return f(ctx)
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the liveness probe period used by Run.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithProbeTimeout bounds each probe. A probe still pending at the deadline
// counts as failed.
func WithProbeTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithToastTTL sets how long transient notices stay visible.
func WithToastTTL(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.toastTTL = d
		}
	}
}

// WithInitialPlatformState sets the platform's coarse signal at startup.
func WithInitialPlatformState(online bool) Option {
	return func(m *Monitor) {
		m.platform = online
	}
}

// WithClock sets the time source for transition timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// Monitor reconciles three signals into one online/offline state: platform
// connectivity events, the periodic liveness probe, and request failures
// reported by the submission queue.
//
// The resolved state is online only while the platform says online and the
// latest probe (or reported failure) did not fail. A platform change to
// online clears an earlier probe failure; a repeated "online" does not.
// Listeners are notified only when the resolved state changes.
type Monitor struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration
	toastTTL time.Duration
	now      func() time.Time

	mu       sync.Mutex
	platform bool
	probeOK  bool
	gen      uint64 // bumped on every platform change

	transitions notify.Hub[Transition]
	notices     notify.Hub[Notice]
}

// New creates a monitor. The prober may be nil, in which case Probe only
// reports the current state.
func New(prober Prober, opts ...Option) *Monitor {
	m := &Monitor{
		prober:   prober,
		interval: DefaultInterval,
		timeout:  DefaultProbeTimeout,
		toastTTL: DefaultToastTTL,
		now:      time.Now,
		platform: true,
		probeOK:  true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Monitor) resolvedLocked() Status {
	if m.platform && m.probeOK {
		return Online
	}
	return Offline
}

// State returns the resolved state.
func (m *Monitor) State() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolvedLocked()
}

// SubmitEnabled reports whether submit affordances should be enabled.
func (m *Monitor) SubmitEnabled() bool {
	return m.State() == Online
}

// OnTransition registers a listener for resolved state changes.
func (m *Monitor) OnTransition(fn func(Transition)) (unsubscribe func()) {
	return m.transitions.Subscribe(fn)
}

// OnNotice registers a listener for user-facing notices.
func (m *Monitor) OnNotice(fn func(Notice)) (unsubscribe func()) {
	return m.notices.Subscribe(fn)
}

// Signal records a platform connectivity event.
func (m *Monitor) Signal(online bool) Status {
	m.mu.Lock()
	before := m.resolvedLocked()
	if online != m.platform {
		if online {
			m.probeOK = true
		}
		m.platform = online
		m.gen++
	}
	after := m.resolvedLocked()
	m.mu.Unlock()

	slog.Debug("platform connectivity signal", "online", online, "state", after)
	m.emit(before, after, CausePlatform)
	return after
}

// Probe runs one liveness check, bounded by the probe timeout. The check is
// skipped while the platform reports offline.
func (m *Monitor) Probe(ctx context.Context) Status {
	m.mu.Lock()
	if !m.platform || m.prober == nil {
		s := m.resolvedLocked()
		m.mu.Unlock()
		return s
	}
	gen := m.gen
	m.mu.Unlock()

	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.prober.Probe(pctx)
	cancel()
	if err != nil {
		slog.Debug("liveness probe failed", "error", err)
	}

	m.mu.Lock()
	if gen != m.gen {
		// A platform signal arrived while probing; it is newer.
		s := m.resolvedLocked()
		m.mu.Unlock()
		return s
	}
	before := m.resolvedLocked()
	m.probeOK = err == nil
	after := m.resolvedLocked()
	m.mu.Unlock()

	m.emit(before, after, CauseProbe)
	return after
}

// ReportFailure records a transport failure seen by a network caller. It
// counts as a failed probe until the next successful probe or platform
// "online" event.
func (m *Monitor) ReportFailure(err error) Status {
	m.mu.Lock()
	before := m.resolvedLocked()
	m.probeOK = false
	after := m.resolvedLocked()
	m.mu.Unlock()

	slog.Debug("network failure reported", "error", err, "state", after)
	m.emit(before, after, CauseFailure)
	return after
}

// Run probes at the configured interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	slog.Debug("connectivity monitor started", "interval", m.interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

func (m *Monitor) emit(before, after Status, cause Cause) {
	if before == after {
		return
	}
	tr := Transition{From: before, To: after, Cause: cause, At: m.now()}
	if after == Offline {
		slog.Warn("connectivity lost", "cause", cause)
	} else {
		slog.Info("connectivity restored", "cause", cause)
	}
	m.transitions.Publish(tr)
	for _, n := range noticesFor(tr, m.toastTTL) {
		m.notices.Publish(n)
	}
}
