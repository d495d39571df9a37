package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/claimwiz/internal/assets"
	"github.com/roach88/claimwiz/internal/config"
	"github.com/roach88/claimwiz/internal/connectivity"
	"github.com/roach88/claimwiz/internal/features"
	"github.com/roach88/claimwiz/internal/formdef"
	"github.com/roach88/claimwiz/internal/progress"
	"github.com/roach88/claimwiz/internal/queue"
	"github.com/roach88/claimwiz/internal/store"
	"github.com/roach88/claimwiz/internal/validate"
	"github.com/roach88/claimwiz/internal/wizard"
	"github.com/roach88/claimwiz/internal/worker"
)

var (
	// ErrNotInitialized is returned by operations called before Init.
	ErrNotInitialized = errors.New("session not initialized")

	// ErrDisposed is returned by operations called after Dispose.
	ErrDisposed = errors.New("session disposed")

	// ErrOffline is returned by Drain while connectivity is offline.
	ErrOffline = errors.New("offline")
)

// Deps overrides collaborators built from the config. Nil fields get the
// production implementation.
type Deps struct {
	Store      *store.Store
	Definition *formdef.Definition
	Dispatcher queue.Dispatcher
	Prober     connectivity.Prober
	Fetcher    assets.Fetcher
	IDs        queue.IDGenerator
	HTTPClient *http.Client
	Clock      func() time.Time

	// Online is the platform connectivity signal at startup. Nil means online.
	Online *bool
}

// Session is one claim wizard.
type Session struct {
	cfg  *config.Config
	deps Deps
	now  func() time.Time

	mu        sync.Mutex
	ready     bool
	disposed  bool
	ownsStore bool
	unsubs    []func()

	store    *store.Store
	def      *formdef.Definition
	engine   *validate.Engine
	tracker  *progress.Tracker
	queue    *queue.Queue
	monitor  *connectivity.Monitor
	worker   *worker.Worker
	cache    *assets.Cache
	features *features.Registry
}

// New creates a session. Call Init before use.
func New(cfg *config.Config, deps Deps) *Session {
	if cfg == nil {
		cfg = config.Default()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &Session{cfg: cfg, deps: deps, now: now}
}

// Init opens the store, restores or starts the wizard session and wires
// every component together.
func (s *Session) Init(ctx context.Context) (progress.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return progress.Progress{}, ErrDisposed
	}
	if s.ready {
		return s.tracker.Progress(), nil
	}

	if err := s.openLocked(); err != nil {
		return progress.Progress{}, err
	}

	client := s.deps.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	s.engine = validate.New(validate.WithNow(s.now))

	prober := s.deps.Prober
	if prober == nil && s.cfg.ProbeURL != "" {
		p, err := connectivity.NewHTTPProber(s.cfg.ProbeURL, connectivity.WithHTTPClient(client))
		if err != nil {
			s.closeLocked()
			return progress.Progress{}, fmt.Errorf("init session: %w", err)
		}
		prober = p
	}
	online := true
	if s.deps.Online != nil {
		online = *s.deps.Online
	}
	s.monitor = connectivity.New(prober,
		connectivity.WithInterval(s.cfg.ProbeInterval),
		connectivity.WithProbeTimeout(s.cfg.ProbeTimeout),
		connectivity.WithToastTTL(s.cfg.ToastTTL),
		connectivity.WithInitialPlatformState(online),
		connectivity.WithClock(s.now),
	)

	dispatcher := s.deps.Dispatcher
	if dispatcher == nil {
		if s.cfg.SubmitURL == "" {
			dispatcher = queue.DispatcherFunc(func(context.Context, store.Envelope) error {
				return errors.New("no submit_url configured")
			})
		} else {
			dispatcher = queue.NewHTTPDispatcher(s.cfg.SubmitURL, client)
		}
	}
	qopts := []queue.Option{
		queue.WithClock(s.now),
		queue.WithTransportFailureHook(func(err error) { s.monitor.ReportFailure(err) }),
	}
	if s.deps.IDs != nil {
		qopts = append(qopts, queue.WithIDGenerator(s.deps.IDs))
	}
	s.queue = queue.New(s.store, dispatcher, qopts...)

	s.worker = worker.New(s.queue, worker.WithOnlineCheck(s.monitor.SubmitEnabled))
	s.unsubs = append(s.unsubs, s.monitor.OnTransition(func(tr connectivity.Transition) {
		if tr.To != connectivity.Online {
			return
		}
		if err := s.worker.Register(worker.SyncTag); err != nil {
			slog.Warn("background sync not registered", "error", err)
		}
	}))

	fetcher := s.deps.Fetcher
	if fetcher == nil {
		fetcher = assets.HTTPFetcher{Client: client}
	}
	s.cache = assets.New(s.store, fetcher, s.cfg.CacheName, assets.WithAllowedOrigins(s.cfg.Origins...))

	s.tracker = progress.New(s.store,
		progress.WithClock(s.now),
		progress.WithMachineOptions(
			wizard.WithGate(s.def.Gate(s.engine)),
			wizard.WithFormatter(s.def.Format),
			wizard.WithSubmitter(s.queue),
		),
	)
	p, err := s.tracker.Init(s.def.TotalSteps())
	if err != nil {
		s.closeLocked()
		return progress.Progress{}, fmt.Errorf("init session: %w", err)
	}

	s.features = s.registerFeatures(prober)
	s.features.Resolve(ctx)

	s.ready = true
	slog.Info("session ready",
		"form", s.def.Name,
		"step", p.CurrentStep,
		"total_steps", p.TotalSteps,
		"features", s.features.Names(),
	)
	return p, nil
}

func (s *Session) openLocked() error {
	s.store = s.deps.Store
	if s.store == nil {
		st, err := store.Open(s.cfg.Database, store.WithDriver(s.cfg.Driver))
		if err != nil {
			return fmt.Errorf("init session: %w", err)
		}
		s.store = st
		s.ownsStore = true
	}

	s.def = s.deps.Definition
	if s.def == nil {
		if s.cfg.Form == "" {
			s.def = formdef.Default()
		} else {
			def, err := formdef.Load(s.cfg.Form)
			if err != nil {
				s.closeLocked()
				return fmt.Errorf("init session: %w", err)
			}
			s.def = def
		}
	}
	if s.def.TotalSteps() != s.cfg.TotalSteps {
		slog.Warn("form definition overrides configured step count",
			"configured", s.cfg.TotalSteps, "form_steps", s.def.TotalSteps())
	}
	return nil
}

func (s *Session) registerFeatures(prober connectivity.Prober) *features.Registry {
	r := features.NewRegistry()
	registerFeature(r, features.OfflineQueue, nil)
	registerFeature(r, features.BackgroundSync, nil)
	if prober != nil {
		registerFeature(r, features.LivenessProbe, nil)
	}
	registerFeature(r, features.AssetCache, func(ctx context.Context) error {
		names, err := s.store.AssetCacheNames(ctx)
		if err != nil {
			return err
		}
		if !slices.Contains(names, s.cache.Name()) {
			return fmt.Errorf("asset cache %s not installed", s.cache.Name())
		}
		return nil
	})
	return r
}

// registerFeature adds a capability. A capability that cannot be registered
// stays disabled.
func registerFeature(r *features.Registry, name string, init features.Initializer) {
	if err := r.Register(name, init); err != nil {
		slog.Warn("feature not registered", "feature", name, "error", err)
	}
}

func (s *Session) closeLocked() {
	if s.ownsStore && s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Warn("closing store failed", "error", err)
		}
	}
	s.store = nil
	s.ownsStore = false
}

func (s *Session) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrDisposed
	}
	if !s.ready {
		return ErrNotInitialized
	}
	return nil
}

// Tracker returns the progress tracker.
func (s *Session) Tracker() *progress.Tracker { return s.tracker }

// Machine returns the step machine.
func (s *Session) Machine() *wizard.Machine { return s.tracker.Machine() }

// Monitor returns the connectivity monitor.
func (s *Session) Monitor() *connectivity.Monitor { return s.monitor }

// Queue returns the submission queue.
func (s *Session) Queue() *queue.Queue { return s.queue }

// Worker returns the background sync worker.
func (s *Session) Worker() *worker.Worker { return s.worker }

// Cache returns the asset cache.
func (s *Session) Cache() *assets.Cache { return s.cache }

// Definition returns the form definition.
func (s *Session) Definition() *formdef.Definition { return s.def }

// Engine returns the validation engine.
func (s *Session) Engine() *validate.Engine { return s.engine }

// Features returns the resolved capability registry.
func (s *Session) Features() *features.Registry { return s.features }

// Store returns the underlying store.
func (s *Session) Store() *store.Store { return s.store }

// ValidateStep checks values against the fields of step without moving.
func (s *Session) ValidateStep(step int, values map[string]string) (validate.Report, error) {
	if err := s.check(); err != nil {
		return validate.Report{}, err
	}
	st, ok := s.def.Step(step)
	if !ok {
		return validate.Report{}, fmt.Errorf("validate step %d: no such step", step)
	}
	return s.engine.ValidateForm(st.Fields, validate.FormatAll(st.Fields, values)), nil
}

// SaveDraft stores the in-progress field values of the whole form.
func (s *Session) SaveDraft(ctx context.Context, values map[string]string) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.store.SaveFormData(ctx, s.def.Name, values)
}

// Draft returns the stored in-progress field values.
func (s *Session) Draft(ctx context.Context) (map[string]string, bool, error) {
	if err := s.check(); err != nil {
		return nil, false, err
	}
	return s.store.LoadFormData(ctx, s.def.Name)
}

// FormValues returns every field value known so far: the snapshot of each
// step in step order, overlaid with the saved draft.
func (s *Session) FormValues(ctx context.Context) (map[string]string, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	values := map[string]string{}
	for step := 1; step <= s.def.TotalSteps(); step++ {
		if snap, ok := s.tracker.StepSnapshot(step); ok {
			maps.Copy(values, snap)
		}
	}
	draft, _, err := s.store.LoadFormData(ctx, s.def.Name)
	if err != nil {
		return nil, fmt.Errorf("form values: %w", err)
	}
	maps.Copy(values, draft)
	return values, nil
}

// SubmitResult describes a submit action.
type SubmitResult struct {
	SubmissionID string             `json:"submission_id"`
	Delivered    bool               `json:"delivered"`
	Drain        *queue.DrainResult `json:"drain,omitempty"`
}

// Submit completes the wizard. The payload is validated and durably queued
// first; an error here means nothing was recorded. When online the queue is
// drained right away, and a failed delivery leaves the submission pending
// for the next connectivity-restored transition rather than failing Submit.
func (s *Session) Submit(ctx context.Context, values map[string]string) (SubmitResult, error) {
	if err := s.check(); err != nil {
		return SubmitResult{}, err
	}

	sub, err := s.Machine().Submit(ctx, values)
	if err != nil {
		return SubmitResult{}, err
	}
	res := SubmitResult{SubmissionID: sub.ID}

	if err := s.store.DeleteFormData(ctx, s.def.Name); err != nil {
		slog.Warn("clearing draft failed", "error", err)
	}

	if !s.monitor.SubmitEnabled() {
		slog.Info("offline: submission deferred", "submission", sub.ID)
		return res, nil
	}

	dr, err := s.queue.Drain(ctx)
	switch {
	case errors.Is(err, queue.ErrDrainInFlight):
		slog.Debug("drain already running", "submission", sub.ID)
	case err != nil:
		slog.Warn("immediate delivery failed; submission stays queued", "submission", sub.ID, "error", err)
		res.Drain = &dr
	default:
		res.Drain = &dr
		for _, id := range dr.Delivered {
			if id == sub.ID {
				res.Delivered = true
			}
		}
	}
	return res, nil
}

// Drain delivers the backlog now. It returns ErrOffline while offline.
func (s *Session) Drain(ctx context.Context) (queue.DrainResult, error) {
	if err := s.check(); err != nil {
		return queue.DrainResult{}, err
	}
	if !s.monitor.SubmitEnabled() {
		return queue.DrainResult{}, ErrOffline
	}
	return s.queue.Drain(ctx)
}

// Run drives the liveness probe and the background worker until ctx is
// cancelled. Any backlog left from earlier sessions is scheduled at start.
func (s *Session) Run(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}

	if _, err := s.ScheduleBacklog(ctx); err != nil {
		return fmt.Errorf("run session: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.monitor.Run(ctx) })
	g.Go(func() error { return s.worker.Run(ctx) })
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ScheduleBacklog registers a background sync when submissions from an
// earlier session are still queued. It returns the queued count.
func (s *Session) ScheduleBacklog(ctx context.Context) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	n, err := s.store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("schedule backlog: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	slog.Info("queued submissions found", "count", n)
	if err := s.worker.Register(worker.SyncTag); err != nil {
		return n, fmt.Errorf("schedule backlog: %w", err)
	}
	return n, nil
}

// Reset clears the wizard session and its draft and starts over at step 1.
// Queued submissions are kept.
func (s *Session) Reset(ctx context.Context) (progress.Progress, error) {
	if err := s.check(); err != nil {
		return progress.Progress{}, err
	}
	if err := s.tracker.Reset(); err != nil {
		return progress.Progress{}, fmt.Errorf("reset session: %w", err)
	}
	if err := s.store.DeleteFormData(ctx, s.def.Name); err != nil {
		return progress.Progress{}, fmt.Errorf("reset session: %w", err)
	}
	p, err := s.tracker.Init(s.def.TotalSteps())
	if err != nil {
		return progress.Progress{}, fmt.Errorf("reset session: %w", err)
	}
	return p, nil
}

// Dispose releases the session. It is safe to call more than once.
func (s *Session) Dispose() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return nil
	}
	s.disposed = true
	for _, u := range s.unsubs {
		u()
	}
	s.unsubs = nil
	if s.tracker != nil {
		s.tracker.Dispose()
	}
	if s.worker != nil {
		s.worker.Stop()
	}

	var err error
	if s.ownsStore && s.store != nil {
		err = s.store.Close()
	}
	s.ready = false
	return err
}
