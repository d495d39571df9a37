package wizard

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"sync"

	"github.com/roach88/claimwiz/internal/notify"
	"github.com/roach88/claimwiz/internal/validate"
)

// State is the position of the wizard.
type State struct {
	CurrentStep int  `json:"current_step"`
	TotalSteps  int  `json:"total_steps"`
	Completed   bool `json:"completed"`
}

// Percent returns round(current/total*100), or 100 once submitted.
func (s State) Percent() int {
	if s.Completed {
		return 100
	}
	return Percent(s.CurrentStep, s.TotalSteps)
}

// Percent returns round(k/n*100). Returns 0 when n < 1.
func Percent(k, n int) int {
	if n < 1 {
		return 0
	}
	return int(math.Round(float64(k) / float64(n) * 100))
}

// Event is the progress-changed notification. It is the only integration
// point between the wizard and view widgets.
type Event struct {
	From        int               `json:"from"`
	CurrentStep int               `json:"current_step"`
	TotalSteps  int               `json:"total_steps"`
	Completed   bool              `json:"completed"`
	Snapshot    map[string]string `json:"snapshot,omitempty"` // field values of the step being left
}

// Percent of the event's position.
func (e Event) Percent() int {
	return State{CurrentStep: e.CurrentStep, TotalSteps: e.TotalSteps, Completed: e.Completed}.Percent()
}

// Submission is raised once the final step has been submitted and the payload
// was accepted by the Submitter.
type Submission struct {
	ID      string            `json:"id"`
	Step    int               `json:"step"`
	Payload map[string]string `json:"payload"`
}

// Gate validates a step's field values before the wizard may move past it.
type Gate interface {
	Check(step int, values map[string]string) validate.Report
}

// GateFunc adapts a function to Gate.
type GateFunc func(step int, values map[string]string) validate.Report

// Check implements Gate.
func (f GateFunc) Check(step int, values map[string]string) validate.Report {
	return f(step, values)
}

// Submitter durably accepts a final submission and returns its id.
// An error means the submission was not recorded.
type Submitter interface {
	Submit(ctx context.Context, payload map[string]string) (string, error)
}

// Option configures a Machine.
type Option func(*Machine)

// WithGate sets the validation gate used by Next and Submit.
func WithGate(g Gate) Option {
	return func(m *Machine) {
		m.gate = g
	}
}

// WithFormatter sets the input masks applied to step snapshots and the
// submit payload before they are validated, published or recorded.
func WithFormatter(format func(values map[string]string) map[string]string) Option {
	return func(m *Machine) {
		m.format = format
	}
}

// WithSubmitter sets the collaborator that records final submissions.
func WithSubmitter(s Submitter) Option {
	return func(m *Machine) {
		m.submitter = s
	}
}

// WithInitialStep starts the machine at step instead of 1.
// Out-of-range values are ignored.
func WithInitialStep(step int) Option {
	return func(m *Machine) {
		if step >= 1 && step <= m.total {
			m.current = step
		}
	}
}

// TransitionOption configures a single transition.
type TransitionOption func(*transitionConfig)

type transitionConfig struct {
	snapshot map[string]string
}

// WithSnapshot attaches the field values of the step being left. They are
// validated by the gate on Next and delivered to listeners in Event.Snapshot.
func WithSnapshot(values map[string]string) TransitionOption {
	return func(c *transitionConfig) {
		c.snapshot = maps.Clone(values)
	}
}

// Machine is the step state machine of the wizard.
//
// INVARIANTS:
//   - 1 <= current <= total after construction
//   - a rejected transition never mutates state
//   - completed is reachable only from the last step through Submit
type Machine struct {
	mu         sync.Mutex
	current    int
	total      int
	completed  bool
	submitting bool

	gate      Gate
	format    func(map[string]string) map[string]string
	submitter Submitter

	progress  notify.Hub[Event]
	submitted notify.Hub[Submission]
}

// New creates a machine positioned at step 1.
func New(totalSteps int, opts ...Option) (*Machine, error) {
	if totalSteps < 1 {
		return nil, fmt.Errorf("total steps must be >= 1, got %d", totalSteps)
	}
	m := &Machine{current: 1, total: totalSteps}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// State returns the current position.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Machine) stateLocked() State {
	return State{CurrentStep: m.current, TotalSteps: m.total, Completed: m.completed}
}

// OnProgressChanged registers a progress-changed listener.
func (m *Machine) OnProgressChanged(fn func(Event)) (unsubscribe func()) {
	return m.progress.Subscribe(fn)
}

// OnSubmitted registers a listener for accepted final submissions.
func (m *Machine) OnSubmitted(fn func(Submission)) (unsubscribe func()) {
	return m.submitted.Subscribe(fn)
}

// GoTo moves to step. Out-of-range requests are rejected with INVALID_STEP
// and leave the position unchanged.
func (m *Machine) GoTo(step int, opts ...TransitionOption) (State, error) {
	return m.transition(step, moveGoTo, opts)
}

// Next moves forward one step after the gate accepts the current step's
// values. On the last step it is rejected: advancing past it is Submit.
func (m *Machine) Next(opts ...TransitionOption) (State, error) {
	m.mu.Lock()
	target := m.current + 1
	m.mu.Unlock()
	return m.transition(target, moveNext, opts)
}

// Previous moves back one step. It is rejected on the first step.
func (m *Machine) Previous(opts ...TransitionOption) (State, error) {
	m.mu.Lock()
	target := m.current - 1
	m.mu.Unlock()
	return m.transition(target, movePrevious, opts)
}

type move uint8

const (
	moveGoTo move = iota
	moveNext
	movePrevious
)

func (m *Machine) transition(target int, mv move, opts []TransitionOption) (State, error) {
	var cfg transitionConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if m.format != nil && cfg.snapshot != nil {
		cfg.snapshot = m.format(cfg.snapshot)
	}

	m.mu.Lock()
	if err := m.checkTransitionLocked(target, mv, cfg.snapshot); err != nil {
		state := m.stateLocked()
		m.mu.Unlock()
		slog.Warn("step transition rejected",
			"requested", target,
			"current", state.CurrentStep,
			"total", state.TotalSteps,
			"error", err,
		)
		return state, err
	}

	from := m.current
	m.current = target
	state := m.stateLocked()
	m.mu.Unlock()

	slog.Debug("step changed", "from", from, "to", target, "total", state.TotalSteps)
	m.progress.Publish(Event{
		From:        from,
		CurrentStep: state.CurrentStep,
		TotalSteps:  state.TotalSteps,
		Snapshot:    cfg.snapshot,
	})
	return state, nil
}

func (m *Machine) checkTransitionLocked(target int, mv move, snapshot map[string]string) error {
	if m.completed || m.submitting {
		return m.errorLocked(ErrCodeAlreadySubmitted, target, "wizard already submitted")
	}
	if mv == moveNext && m.current == m.total {
		return m.errorLocked(ErrCodeAtBoundary, target, "last step advances only through submit")
	}
	if mv == movePrevious && m.current == 1 {
		return m.errorLocked(ErrCodeAtBoundary, target, "first step has no previous step")
	}
	if target < 1 || target > m.total {
		return m.errorLocked(ErrCodeInvalidStep, target,
			fmt.Sprintf("step %d must be between 1 and %d", target, m.total))
	}
	if mv == moveNext && m.gate != nil {
		if report := m.gate.Check(m.current, snapshot); !report.Valid() {
			err := m.errorLocked(ErrCodeValidationFailed, target, "step fields are invalid")
			err.Report = report
			return err
		}
	}
	return nil
}

func (m *Machine) errorLocked(code ErrorCode, target int, msg string) *TransitionError {
	return &TransitionError{
		Code:      code,
		Message:   msg,
		Requested: target,
		Current:   m.current,
		Total:     m.total,
	}
}

// Submit completes the wizard from the last step. The gate must accept
// values and the Submitter must durably record them; otherwise the wizard
// stays on the last step and the error is returned.
func (m *Machine) Submit(ctx context.Context, values map[string]string) (Submission, error) {
	payload := maps.Clone(values)
	if payload == nil {
		payload = map[string]string{}
	}
	if m.format != nil {
		payload = m.format(payload)
	}

	m.mu.Lock()
	if m.completed || m.submitting {
		err := m.errorLocked(ErrCodeAlreadySubmitted, m.current, "wizard already submitted")
		m.mu.Unlock()
		return Submission{}, err
	}
	if m.current != m.total {
		err := m.errorLocked(ErrCodeNotFinalStep, m.current,
			fmt.Sprintf("submit is only available on step %d", m.total))
		m.mu.Unlock()
		slog.Warn("submit rejected", "current", err.Current, "total", err.Total)
		return Submission{}, err
	}
	if m.gate != nil {
		if report := m.gate.Check(m.current, payload); !report.Valid() {
			err := m.errorLocked(ErrCodeValidationFailed, m.current, "step fields are invalid")
			err.Report = report
			m.mu.Unlock()
			return Submission{}, err
		}
	}
	m.submitting = true
	step := m.current
	m.mu.Unlock()

	sub := Submission{Step: step, Payload: payload}
	if m.submitter != nil {
		id, err := m.submitter.Submit(ctx, payload)
		if err != nil {
			m.mu.Lock()
			m.submitting = false
			m.mu.Unlock()
			slog.Error("submission not recorded", "error", err)
			return Submission{}, fmt.Errorf("submit: %w", err)
		}
		sub.ID = id
	}

	m.mu.Lock()
	m.submitting = false
	m.completed = true
	state := m.stateLocked()
	m.mu.Unlock()

	slog.Info("wizard submitted", "submission", sub.ID, "step", step)
	m.submitted.Publish(sub)
	m.progress.Publish(Event{
		From:        step,
		CurrentStep: state.CurrentStep,
		TotalSteps:  state.TotalSteps,
		Completed:   true,
		Snapshot:    payload,
	})
	return sub, nil
}

// Restore positions the machine without notifying listeners. Used when a
// saved session is resumed.
func (m *Machine) Restore(step int, completed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if step < 1 || step > m.total {
		return m.errorLocked(ErrCodeInvalidStep, step,
			fmt.Sprintf("step %d must be between 1 and %d", step, m.total))
	}
	m.current = step
	m.completed = completed && step == m.total
	return nil
}

// Reset returns the machine to step 1 and clears completion. Listeners are
// not notified.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = 1
	m.completed = false
	m.submitting = false
}
