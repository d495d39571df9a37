package harness

// Trace event types.
const (
	EventProgress     = "progress"
	EventRejected     = "rejected"
	EventSubmitted    = "submitted"
	EventConnectivity = "connectivity"
	EventNotice       = "notice"
	EventDispatch     = "dispatch"
	EventSyncComplete = "sync-complete"
	EventReload       = "reload"
	EventReset        = "reset"
	EventSection      = "section"
)

// TraceEvent is one observable occurrence during a scenario.
type TraceEvent struct {
	Seq    int            `json:"seq"`
	Type   string         `json:"type"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every recorded event in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the final session state used by final_state assertions.
	State map[string]any `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]any),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Record appends an event to the trace.
func (r *Result) Record(eventType string, fields map[string]any) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:    len(r.Trace) + 1,
		Type:   eventType,
		Fields: fields,
	})
}
