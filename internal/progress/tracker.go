package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/roach88/claimwiz/internal/wizard"
)

// Namespace prefixes every key a Tracker writes.
const Namespace = "taxFilingProgress/"

// Keys under Namespace.
const (
	keyMeta           = Namespace + "meta"
	keyTiming         = Namespace + "timing"
	keySections       = Namespace + "sections"
	keyData           = Namespace + "data"
	keySnapshotPrefix = Namespace + "snapshot/"
)

// SubmissionSection is the section marked complete when the final step is
// submitted.
const SubmissionSection = "submission"

var (
	// ErrNotInitialized is returned by operations called before Init or after Reset.
	ErrNotInitialized = errors.New("progress tracker not initialized")

	// ErrDisposed is returned by operations called after Dispose.
	ErrDisposed = errors.New("progress tracker disposed")
)

// KV is the synchronous store tier used for the checkpoint.
type KV interface {
	SetItem(key string, value any) error
	GetItem(key string, dst any) bool
	RemovePrefix(prefix string) (int, error)
}

// StepTiming records when a step was entered and, once left, how long it was
// active. At most one step, the current one, is not Finalized.
type StepTiming struct {
	EnteredAt time.Time
	Elapsed   time.Duration
	Finalized bool
}

// CompletedSection is a section marked done with its opaque data.
type CompletedSection struct {
	CompletedAt time.Time       `json:"completed_at"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// Progress is the human-facing summary of the session.
type Progress struct {
	CurrentStep       int           `json:"current_step"`
	TotalSteps        int           `json:"total_steps"`
	Percent           int           `json:"percent"`
	Completed         bool          `json:"completed"`
	TimeSpent         time.Duration `json:"time_spent"`
	TimeRemaining     time.Duration `json:"time_remaining"`
	EstimateAvailable bool          `json:"estimate_available"`
	CompletedSections int           `json:"completed_sections"`
}

type meta struct {
	CurrentStep int       `json:"current_step"`
	TotalSteps  int       `json:"total_steps"`
	Completed   bool      `json:"completed"`
	StartTime   time.Time `json:"start_time"`
	LastUpdated time.Time `json:"last_updated"`
}

type timingRecord struct {
	EnteredAt *time.Time `json:"entered_at,omitempty"`
	ElapsedNs *int64     `json:"elapsed_ns,omitempty"`
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock sets the time source. Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithMachineOptions passes options to the step machine built by Init.
func WithMachineOptions(opts ...wizard.Option) Option {
	return func(t *Tracker) {
		t.machineOpts = append(t.machineOpts, opts...)
	}
}

// Tracker derives progress metrics and owns the durable checkpoint.
//
// Lifecycle: New -> Init -> (transitions) -> Dispose. Reset returns the
// tracker to the uninitialized state; Init starts a fresh session.
type Tracker struct {
	kv          KV
	now         func() time.Time
	machineOpts []wizard.Option

	mu         sync.Mutex
	machine    *wizard.Machine
	unsubs     []func()
	disposed   bool
	persistErr error

	total     int
	completed bool
	startTime time.Time
	timing    map[int]StepTiming
	sections  map[string]CompletedSection
	data      map[string]json.RawMessage
	snapshots map[int]map[string]string
}

// New creates a tracker over kv. Call Init before use.
func New(kv KV, opts ...Option) *Tracker {
	t := &Tracker{kv: kv, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Machine returns the step machine built by Init, or nil before Init.
func (t *Tracker) Machine() *wizard.Machine {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.machine
}

// Init restores the prior session from the store or, when there is none (or
// it is unreadable, or was saved for a different step count), starts a fresh
// session at step 1 and writes an initial checkpoint.
func (t *Tracker) Init(totalSteps int) (Progress, error) {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return Progress{}, ErrDisposed
	}
	t.detachLocked()

	step, restored := t.restoreLocked(totalSteps)
	if !restored {
		t.freshLocked(totalSteps)
		step = 1
	}

	machine, err := wizard.New(totalSteps, t.machineOpts...)
	if err != nil {
		t.mu.Unlock()
		return Progress{}, fmt.Errorf("init progress: %w", err)
	}
	if err := machine.Restore(step, t.completed); err != nil {
		t.mu.Unlock()
		return Progress{}, fmt.Errorf("init progress: %w", err)
	}
	t.machine = machine
	t.unsubs = []func(){
		machine.OnProgressChanged(t.onProgress),
		machine.OnSubmitted(t.onSubmitted),
	}

	if !restored {
		if err := t.writeCheckpointLocked(nil, 0); err != nil {
			t.mu.Unlock()
			return Progress{}, fmt.Errorf("init progress: %w", err)
		}
		slog.Info("progress session started", "total_steps", totalSteps)
	} else {
		slog.Info("progress session restored", "current_step", step, "total_steps", totalSteps)
	}
	p := t.progressLocked()
	t.mu.Unlock()
	return p, nil
}

func (t *Tracker) freshLocked(totalSteps int) {
	now := t.now()
	t.total = totalSteps
	t.completed = false
	t.startTime = now
	t.timing = map[int]StepTiming{1: {EnteredAt: now}}
	t.sections = map[string]CompletedSection{}
	t.data = map[string]json.RawMessage{}
	t.snapshots = map[int]map[string]string{}
}

func (t *Tracker) restoreLocked(totalSteps int) (int, bool) {
	var m meta
	if !t.kv.GetItem(keyMeta, &m) {
		return 0, false
	}
	if m.TotalSteps != totalSteps || m.CurrentStep < 1 || m.CurrentStep > totalSteps {
		slog.Warn("discarding saved progress",
			"saved_step", m.CurrentStep,
			"saved_total", m.TotalSteps,
			"total_steps", totalSteps,
		)
		return 0, false
	}

	t.total = totalSteps
	t.completed = m.Completed && m.CurrentStep == totalSteps
	t.startTime = m.StartTime
	if t.startTime.IsZero() {
		t.startTime = t.now()
	}

	var records map[int]timingRecord
	if !t.kv.GetItem(keyTiming, &records) {
		// Corrupt or missing timing reads as "no elapsed time recorded yet".
		records = nil
	}
	t.timing = map[int]StepTiming{}
	for step, rec := range records {
		if step < 1 || step > totalSteps || rec.EnteredAt == nil {
			continue
		}
		finalized := rec.ElapsedNs != nil && *rec.ElapsedNs >= 0
		switch {
		case step == m.CurrentStep && !t.completed:
			t.timing[step] = StepTiming{EnteredAt: *rec.EnteredAt}
		case finalized:
			t.timing[step] = StepTiming{
				EnteredAt: *rec.EnteredAt,
				Elapsed:   time.Duration(*rec.ElapsedNs),
				Finalized: true,
			}
		default:
			// Entered but never left: the write that finalized it did not land.
		}
	}
	if _, ok := t.timing[m.CurrentStep]; !ok && !t.completed {
		t.timing[m.CurrentStep] = StepTiming{EnteredAt: t.now()}
	}

	t.sections = map[string]CompletedSection{}
	var sections map[string]CompletedSection
	if t.kv.GetItem(keySections, &sections) && sections != nil {
		t.sections = sections
	}
	t.data = map[string]json.RawMessage{}
	var data map[string]json.RawMessage
	if t.kv.GetItem(keyData, &data) && data != nil {
		t.data = data
	}
	t.snapshots = map[int]map[string]string{}
	for step := 1; step <= totalSteps; step++ {
		var snap map[string]string
		if t.kv.GetItem(snapshotKey(step), &snap) && len(snap) > 0 {
			t.snapshots[step] = snap
		}
	}
	return m.CurrentStep, true
}

func snapshotKey(step int) string {
	return keySnapshotPrefix + strconv.Itoa(step)
}

// onProgress records timing and snapshots for every accepted transition.
func (t *Tracker) onProgress(ev wizard.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.machine == nil {
		return
	}

	now := t.now()
	if prev, ok := t.timing[ev.From]; ok && !prev.Finalized {
		prev.Elapsed = now.Sub(prev.EnteredAt)
		prev.Finalized = true
		t.timing[ev.From] = prev
	}
	if ev.Completed {
		t.completed = true
	} else {
		// Re-entering a step restarts its timing.
		t.timing[ev.CurrentStep] = StepTiming{EnteredAt: now}
	}

	var snap map[string]string
	if len(ev.Snapshot) > 0 {
		snap = maps.Clone(ev.Snapshot)
		t.snapshots[ev.From] = snap
	}
	t.persistErr = t.writeCheckpointLocked(snap, ev.From)
	if t.persistErr != nil {
		slog.Error("checkpoint write failed", "step", ev.CurrentStep, "error", t.persistErr)
	}
}

func (t *Tracker) onSubmitted(sub wizard.Submission) {
	if err := t.CompleteSection(SubmissionSection, map[string]any{
		"id":   sub.ID,
		"step": sub.Step,
	}); err != nil {
		slog.Error("marking submission section failed", "error", err)
	}
}

// writeCheckpointLocked writes snapshot, timing and meta, in that order.
func (t *Tracker) writeCheckpointLocked(snap map[string]string, snapStep int) error {
	if snap != nil {
		if err := t.kv.SetItem(snapshotKey(snapStep), snap); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
	}
	if err := t.kv.SetItem(keyTiming, t.timingRecordsLocked()); err != nil {
		return fmt.Errorf("write timing: %w", err)
	}
	return t.writeMetaLocked()
}

func (t *Tracker) writeMetaLocked() error {
	state := wizard.State{CurrentStep: 1, TotalSteps: t.total}
	if t.machine != nil {
		state = t.machine.State()
	}
	m := meta{
		CurrentStep: state.CurrentStep,
		TotalSteps:  t.total,
		Completed:   t.completed,
		StartTime:   t.startTime,
		LastUpdated: t.now(),
	}
	if err := t.kv.SetItem(keyMeta, m); err != nil {
		return fmt.Errorf("write meta: %w", err)
	}
	return nil
}

func (t *Tracker) timingRecordsLocked() map[int]timingRecord {
	out := make(map[int]timingRecord, len(t.timing))
	for step, st := range t.timing {
		entered := st.EnteredAt
		rec := timingRecord{EnteredAt: &entered}
		if st.Finalized {
			ns := int64(st.Elapsed)
			rec.ElapsedNs = &ns
		}
		out[step] = rec
	}
	return out
}

func (t *Tracker) ready() (*wizard.Machine, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return nil, ErrDisposed
	}
	if t.machine == nil {
		return nil, ErrNotInitialized
	}
	t.persistErr = nil
	return t.machine, nil
}

// afterTransition returns the progress after a machine transition, or the
// rejection or checkpoint failure.
func (t *Tracker) afterTransition(err error) (Progress, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		return t.progressLocked(), err
	}
	if t.persistErr != nil {
		return t.progressLocked(), fmt.Errorf("checkpoint: %w", t.persistErr)
	}
	return t.progressLocked(), nil
}

// Advance moves to the next step, recording stepData as the snapshot of the
// step being left.
func (t *Tracker) Advance(stepData map[string]string) (Progress, error) {
	m, err := t.ready()
	if err != nil {
		return Progress{}, err
	}
	_, err = m.Next(wizard.WithSnapshot(stepData))
	return t.afterTransition(err)
}

// GoToStep moves to step, recording stepData as the snapshot of the step
// being left. Out-of-range steps are rejected without any change.
func (t *Tracker) GoToStep(step int, stepData map[string]string) (Progress, error) {
	m, err := t.ready()
	if err != nil {
		return Progress{}, err
	}
	_, err = m.GoTo(step, wizard.WithSnapshot(stepData))
	return t.afterTransition(err)
}

// Previous moves back one step, recording stepData as the snapshot of the
// step being left.
func (t *Tracker) Previous(stepData map[string]string) (Progress, error) {
	m, err := t.ready()
	if err != nil {
		return Progress{}, err
	}
	_, err = m.Previous(wizard.WithSnapshot(stepData))
	return t.afterTransition(err)
}

// CompleteSection marks id complete with data. Re-marking overwrites both the
// data and the completion time.
func (t *Tracker) CompleteSection(id string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("complete section %q: %w", id, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sections == nil {
		return ErrNotInitialized
	}
	t.sections[id] = CompletedSection{CompletedAt: t.now(), Data: raw}
	if err := t.kv.SetItem(keySections, t.sections); err != nil {
		return fmt.Errorf("complete section %q: %w", id, err)
	}
	return nil
}

// IsSectionCompleted reports whether id has been marked complete.
func (t *Tracker) IsSectionCompleted(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sections[id]
	return ok
}

// SectionData decodes the data of section id into dst.
func (t *Tracker) SectionData(id string, dst any) bool {
	t.mu.Lock()
	sec, ok := t.sections[id]
	t.mu.Unlock()
	if !ok || len(sec.Data) == 0 {
		return false
	}
	return json.Unmarshal(sec.Data, dst) == nil
}

// SaveData stores an arbitrary value in the session.
func (t *Tracker) SaveData(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("save data %q: %w", key, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.data == nil {
		return ErrNotInitialized
	}
	t.data[key] = raw
	if err := t.kv.SetItem(keyData, t.data); err != nil {
		return fmt.Errorf("save data %q: %w", key, err)
	}
	return nil
}

// Data decodes the value saved under key into dst.
func (t *Tracker) Data(key string, dst any) bool {
	t.mu.Lock()
	raw, ok := t.data[key]
	t.mu.Unlock()
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

// StepSnapshot returns the field values captured when step was last left.
func (t *Tracker) StepSnapshot(step int) (map[string]string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap, ok := t.snapshots[step]
	if !ok {
		return nil, false
	}
	return maps.Clone(snap), true
}

// Timing returns a copy of the per-step timing.
func (t *Tracker) Timing() map[int]StepTiming {
	t.mu.Lock()
	defer t.mu.Unlock()
	return maps.Clone(t.timing)
}

// Progress returns the current summary.
func (t *Tracker) Progress() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progressLocked()
}

func (t *Tracker) progressLocked() Progress {
	if t.machine == nil {
		return Progress{}
	}
	state := t.machine.State()
	remaining, ok := t.estimateLocked(state)
	return Progress{
		CurrentStep:       state.CurrentStep,
		TotalSteps:        state.TotalSteps,
		Percent:           state.Percent(),
		Completed:         state.Completed,
		TimeSpent:         t.totalLocked(),
		TimeRemaining:     remaining,
		EstimateAvailable: ok,
		CompletedSections: len(t.sections),
	}
}

// EstimateTimeRemaining returns the average finalized step time multiplied by
// the number of steps remaining. The bool is false until at least one step
// has finalized timing.
func (t *Tracker) EstimateTimeRemaining() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.machine == nil {
		return 0, false
	}
	return t.estimateLocked(t.machine.State())
}

func (t *Tracker) estimateLocked(state wizard.State) (time.Duration, bool) {
	avg, ok := t.averageLocked()
	if !ok {
		return 0, false
	}
	if state.Completed {
		return 0, true
	}
	return avg * time.Duration(state.TotalSteps-state.CurrentStep), true
}

func (t *Tracker) averageLocked() (time.Duration, bool) {
	var sum time.Duration
	n := 0
	for _, st := range t.timing {
		if st.Finalized {
			sum += st.Elapsed
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / time.Duration(n), true
}

// TotalTimeSpent sums the finalized step times.
func (t *Tracker) TotalTimeSpent() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalLocked()
}

func (t *Tracker) totalLocked() time.Duration {
	var sum time.Duration
	for _, st := range t.timing {
		if st.Finalized {
			sum += st.Elapsed
		}
	}
	return sum
}

// Reset removes every persisted key of the session and clears all in-memory
// state. The tracker must be initialized again before use.
func (t *Tracker) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return ErrDisposed
	}
	t.detachLocked()
	t.machine = nil
	t.total = 0
	t.completed = false
	t.startTime = time.Time{}
	t.timing = nil
	t.sections = nil
	t.data = nil
	t.snapshots = nil

	n, err := t.kv.RemovePrefix(Namespace)
	if err != nil {
		return fmt.Errorf("reset progress: %w", err)
	}
	slog.Info("progress reset", "keys_removed", n)
	return nil
}

// Dispose detaches from the machine. Further operations return ErrDisposed.
// Calling Dispose more than once is a no-op.
func (t *Tracker) Dispose() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.detachLocked()
	t.disposed = true
}

func (t *Tracker) detachLocked() {
	for _, unsub := range t.unsubs {
		unsub()
	}
	t.unsubs = nil
}

// sortedSectionIDs returns section ids ordered by completion time, then id.
func (t *Tracker) sortedSectionIDs() []string {
	ids := make([]string, 0, len(t.sections))
	for id := range t.sections {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := t.sections[ids[i]], t.sections[ids[j]]
		if !a.CompletedAt.Equal(b.CompletedAt) {
			return a.CompletedAt.Before(b.CompletedAt)
		}
		return ids[i] < ids[j]
	})
	return ids
}
