package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/claimwiz/internal/config"
	"github.com/roach88/claimwiz/internal/connectivity"
	"github.com/roach88/claimwiz/internal/formdef"
	"github.com/roach88/claimwiz/internal/progress"
	"github.com/roach88/claimwiz/internal/queue"
	"github.com/roach88/claimwiz/internal/session"
	"github.com/roach88/claimwiz/internal/store"
	"github.com/roach88/claimwiz/internal/testutil"
	"github.com/roach88/claimwiz/internal/wizard"
)

// errOffline is the expect code for operations refused while offline.
const errOffline = "offline"

// errDeliveryFailed is the expect code for a drain that stopped on a failed
// delivery.
const errDeliveryFailed = "delivery_failed"

// errUnreachable is what the fake prober returns for an unreachable probe.
var errUnreachable = errors.New("probe: host unreachable")

// Harness runs one scenario against a real session backed by a throwaway
// database. The clock, submission ids, probe results and endpoint responses
// are all under the scenario's control, so runs are deterministic.
type Harness struct {
	scenario *Scenario
	def      *formdef.Definition
	cfg      *config.Config
	clock    *testutil.FakeClock
	ids      *testutil.SequenceIDs
	result   *Result

	session *session.Session
	unsubs  []func()
	machine func() // unsubscribes from the current machine

	online    bool
	reachable bool
	status    int
	delivered int
}

// Run executes a test scenario and returns the result.
//
// Execution flow:
// 1. Create a fresh database in a temporary directory
// 2. Load the scenario's form and open a session
// 3. Execute flow steps with expect validation, flushing background sync
// after each one
// 4. Evaluate assertions against the trace and the final state
//
// The returned error is reserved for infrastructure failures. Failed
// expectations and assertions are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "claimwiz-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	def := formdef.Default()
	if scenario.Form != "" {
		def, err = formdef.Load(scenario.Form)
		if err != nil {
			return nil, fmt.Errorf("failed to load form: %w", err)
		}
	}

	cfg := config.Default()
	cfg.Database = filepath.Join(dir, "claimwiz.db")
	cfg.TotalSteps = def.TotalSteps()

	h := &Harness{
		scenario:  scenario,
		def:       def,
		cfg:       cfg,
		clock:     testutil.NewFakeClock(testutil.Epoch),
		ids:       testutil.NewSequenceIDs("sub"),
		result:    NewResult(),
		online:    !scenario.Offline,
		reachable: true,
		status:    200,
	}

	ctx := context.Background()
	if err := h.open(ctx); err != nil {
		return nil, err
	}
	defer h.close()

	if err := h.executeFlow(ctx, scenario.Flow); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	if err := h.captureState(ctx); err != nil {
		return nil, fmt.Errorf("failed to capture final state: %w", err)
	}

	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

// open starts a session on the scenario database and subscribes to every
// observable the trace records.
func (h *Harness) open(ctx context.Context) error {
	online := h.online
	s := session.New(h.cfg, session.Deps{
		Definition: h.def,
		Dispatcher: queue.DispatcherFunc(h.dispatch),
		Prober:     connectivity.ProberFunc(h.probe),
		IDs:        h.ids,
		Clock:      h.clock.Now,
		Online:     &online,
	})
	if _, err := s.Init(ctx); err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	h.session = s

	h.unsubs = []func(){
		s.Monitor().OnTransition(func(tr connectivity.Transition) {
			h.result.Record(EventConnectivity, map[string]any{
				"from":  string(tr.From),
				"to":    string(tr.To),
				"cause": string(tr.Cause),
			})
		}),
		s.Monitor().OnNotice(func(n connectivity.Notice) {
			fields := map[string]any{"kind": string(n.Kind)}
			if n.Message != "" {
				fields["message"] = n.Message
			}
			h.result.Record(EventNotice, fields)
		}),
		s.Queue().Channel().Listen(func(msg queue.Message) {
			if msg.Kind != queue.KindSyncComplete {
				return
			}
			h.result.Record(EventSyncComplete, map[string]any{"id": msg.SubmissionID})
		}),
	}
	h.attachMachine()

	if _, err := s.ScheduleBacklog(ctx); err != nil {
		return fmt.Errorf("failed to schedule backlog: %w", err)
	}
	return nil
}

// attachMachine subscribes to the current wizard machine. The tracker builds
// a new machine on every Init, so this runs again after a reset.
func (h *Harness) attachMachine() {
	if h.machine != nil {
		h.machine()
	}
	m := h.session.Machine()
	offProgress := m.OnProgressChanged(func(ev wizard.Event) {
		h.result.Record(EventProgress, map[string]any{
			"from":      ev.From,
			"step":      ev.CurrentStep,
			"total":     ev.TotalSteps,
			"completed": ev.Completed,
			"percent":   ev.Percent(),
		})
	})
	offSubmitted := m.OnSubmitted(func(sub wizard.Submission) {
		h.result.Record(EventSubmitted, map[string]any{"id": sub.ID, "step": sub.Step})
	})
	h.machine = func() {
		offProgress()
		offSubmitted()
	}
}

func (h *Harness) close() {
	if h.machine != nil {
		h.machine()
		h.machine = nil
	}
	for _, u := range h.unsubs {
		u()
	}
	h.unsubs = nil
	if h.session != nil {
		_ = h.session.Dispose()
		h.session = nil
	}
}

// dispatch is the fake submission endpoint.
func (h *Harness) dispatch(_ context.Context, env store.Envelope) error {
	fields := map[string]any{"id": env.ID, "attempt": env.Attempts + 1}
	var err error
	switch {
	case h.status == 0:
		fields["outcome"] = "transport"
		err = &queue.DeliveryError{ID: env.ID, Transport: true, Err: errors.New("connection refused")}
	case h.status < 200 || h.status > 299:
		fields["outcome"] = fmt.Sprintf("status %d", h.status)
		err = &queue.DeliveryError{ID: env.ID, StatusCode: h.status}
	default:
		fields["outcome"] = "delivered"
		h.delivered++
	}
	h.result.Record(EventDispatch, fields)
	return err
}

// probe is the fake liveness check.
func (h *Harness) probe(context.Context) error {
	if h.reachable {
		return nil
	}
	return errUnreachable
}

// executeFlow runs all flow steps. Background sync requests raised by a
// step are handled before the next step starts.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep) error {
	for i, step := range flow {
		err := h.execute(ctx, step)
		if errors.Is(err, errInfrastructure) {
			return fmt.Errorf("flow[%d] %s: %w", i, step.Action, err)
		}
		h.checkExpect(i, step, err)
		h.session.Worker().Flush(ctx)
	}
	return nil
}

// errInfrastructure marks errors that abort the scenario.
var errInfrastructure = errors.New("harness failure")

func (h *Harness) execute(ctx context.Context, step FlowStep) error {
	s := h.session
	tracker := s.Tracker()

	switch step.Action {
	case ActionNext:
		_, err := tracker.Advance(step.Values)
		return err
	case ActionPrevious:
		_, err := tracker.Previous(step.Values)
		return err
	case ActionGoTo:
		_, err := tracker.GoToStep(step.Step, step.Values)
		return err
	case ActionSubmit:
		_, err := s.Submit(ctx, step.Values)
		return err
	case ActionSignal:
		h.online = step.Online
		s.Monitor().Signal(step.Online)
		return nil
	case ActionProbe:
		h.reachable = step.Reachable
		s.Monitor().Probe(ctx)
		return nil
	case ActionServer:
		h.status = step.Status
		return nil
	case ActionDrain:
		_, err := s.Drain(ctx)
		return err
	case ActionAdvance:
		h.clock.Advance(step.Duration)
		return nil
	case ActionReload:
		h.close()
		if err := h.open(ctx); err != nil {
			return fmt.Errorf("%w: %v", errInfrastructure, err)
		}
		h.result.Record(EventReload, map[string]any{"step": h.session.Tracker().Progress().CurrentStep})
		return nil
	case ActionReset:
		if _, err := s.Reset(ctx); err != nil {
			return err
		}
		h.attachMachine()
		h.result.Record(EventReset, nil)
		return nil
	case ActionComplete:
		if err := tracker.CompleteSection(step.Section, step.Values); err != nil {
			return err
		}
		h.result.Record(EventSection, map[string]any{"id": step.Section})
		return nil
	default:
		return fmt.Errorf("%w: unknown action %q", errInfrastructure, step.Action)
	}
}

// checkExpect compares the outcome of flow step i with its expect clause
// and records a rejection event for every error.
func (h *Harness) checkExpect(i int, step FlowStep, err error) {
	code := errorCode(err)
	if err != nil {
		h.result.Record(EventRejected, map[string]any{"action": step.Action, "code": code})
	}

	var want ExpectClause
	if step.Expect != nil {
		want = *step.Expect
	}

	switch {
	case want.Error == "" && err != nil:
		h.result.AddError(fmt.Sprintf("flow[%d] %s: unexpected error: %v", i, step.Action, err))
	case want.Error != "" && err == nil:
		h.result.AddError(fmt.Sprintf("flow[%d] %s: expected error %s, got success", i, step.Action, want.Error))
	case want.Error != "" && code != want.Error:
		h.result.AddError(fmt.Sprintf("flow[%d] %s: expected error %s, got %s", i, step.Action, want.Error, code))
	}

	if want.Step != 0 {
		if got := h.session.Machine().State().CurrentStep; got != want.Step {
			h.result.AddError(fmt.Sprintf("flow[%d] %s: expected step %d, got %d", i, step.Action, want.Step, got))
		}
	}

	if len(want.Invalid) > 0 {
		report, ok := wizard.ValidationReport(err)
		if !ok {
			h.result.AddError(fmt.Sprintf("flow[%d] %s: expected invalid fields %v, got no validation report", i, step.Action, want.Invalid))
			return
		}
		for _, field := range want.Invalid {
			if _, invalid := report.Error(field); !invalid {
				h.result.AddError(fmt.Sprintf("flow[%d] %s: expected field %q to be invalid", i, step.Action, field))
			}
		}
	}
}

// errorCode maps an action error to the code used in expect clauses.
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	var te *wizard.TransitionError
	if errors.As(err, &te) {
		return string(te.Code)
	}
	if errors.Is(err, session.ErrOffline) {
		return errOffline
	}
	var de *queue.DeliveryError
	if errors.As(err, &de) {
		return errDeliveryFailed
	}
	return err.Error()
}

// captureState records the final session state for final_state assertions.
func (h *Harness) captureState(ctx context.Context) error {
	s := h.session
	queued, err := s.Store().Count(ctx)
	if err != nil {
		return err
	}
	p := s.Tracker().Progress()
	h.result.State = map[string]any{
		"step":         p.CurrentStep,
		"total":        p.TotalSteps,
		"percent":      p.Percent,
		"completed":    p.Completed,
		"sections":     p.CompletedSections,
		"time_spent":   progress.FormatDuration(p.TimeSpent),
		"queued":       queued,
		"delivered":    h.delivered,
		"connectivity": string(s.Monitor().State()),
	}
	return nil
}
