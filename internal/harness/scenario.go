package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines a wizard scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Form is a CUE form definition, relative to the scenario file.
	// Empty means the built-in claim.
	Form string `yaml:"form,omitempty"`

	// Offline starts the session with the platform reporting offline.
	Offline bool `yaml:"offline,omitempty"`

	// Flow contains the actions to run, in order.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Actions a FlowStep can perform.
const (
	ActionNext     = "next"
	ActionPrevious = "previous"
	ActionGoTo     = "goto"
	ActionSubmit   = "submit"
	ActionSignal   = "signal"   // platform connectivity event (Online)
	ActionProbe    = "probe"    // liveness probe with result Reachable
	ActionServer   = "server"   // set the endpoint's Status for later deliveries
	ActionDrain    = "drain"    // deliver the backlog now
	ActionAdvance  = "advance"  // move the clock by Duration
	ActionReload   = "reload"   // dispose the session and open a new one on the same store
	ActionReset    = "reset"    // discard progress
	ActionComplete = "complete" // mark Section complete
)

// FlowStep is one action in the flow.
type FlowStep struct {
	Action string `yaml:"action"`

	// Values are the field values for transitions and submit.
	Values map[string]string `yaml:"values,omitempty"`

	// Step is the goto target.
	Step int `yaml:"step,omitempty"`

	// Online is the platform state for signal.
	Online bool `yaml:"online,omitempty"`

	// Reachable is the probe result for probe.
	Reachable bool `yaml:"reachable,omitempty"`

	// Status is the endpoint response for server. Zero means a transport
	// failure (no response at all).
	Status int `yaml:"status,omitempty"`

	// Duration is the clock advance for advance.
	Duration time.Duration `yaml:"duration,omitempty"`

	// Section is the section id for complete.
	Section string `yaml:"section,omitempty"`

	// Expect specifies the expected outcome. Nil means the action must
	// succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Error is the expected error: a transition error code such as
	// "VALIDATION_FAILED", or "offline" for a drain while offline.
	// Empty means the action must succeed.
	Error string `yaml:"error,omitempty"`

	// Step is the expected current step afterwards.
	Step int `yaml:"step,omitempty"`

	// Invalid lists fields that must be reported invalid.
	Invalid []string `yaml:"invalid,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an event of Event type appears with Fields
	// - "trace_order": event types appear in order
	// - "trace_count": an event of Event type appears exactly Count times
	// - "final_state": the session state matches Expect
	Type string `yaml:"type"`

	// Event is the trace event type (trace_contains, trace_count).
	Event string `yaml:"event,omitempty"`

	// Fields are expected event fields (trace_contains). Subset match.
	Fields map[string]any `yaml:"fields,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Events is the expected event order (trace_order).
	Events []string `yaml:"events,omitempty"`

	// Expect contains expected state values (final_state). Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file. The form path is
// resolved relative to the scenario file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Form != "" && !filepath.IsAbs(scenario.Form) {
		scenario.Form = filepath.Join(filepath.Dir(path), scenario.Form)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

var validActions = map[string]bool{
	ActionNext: true, ActionPrevious: true, ActionGoTo: true, ActionSubmit: true,
	ActionSignal: true, ActionProbe: true, ActionServer: true, ActionDrain: true,
	ActionAdvance: true, ActionReload: true, ActionReset: true, ActionComplete: true,
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if !validActions[step.Action] {
			return fmt.Errorf("flow[%d]: unknown action %q", i, step.Action)
		}
		switch step.Action {
		case ActionGoTo:
			if step.Step == 0 {
				return fmt.Errorf("flow[%d]: goto requires step", i)
			}
		case ActionAdvance:
			if step.Duration <= 0 {
				return fmt.Errorf("flow[%d]: advance requires a positive duration", i)
			}
		case ActionComplete:
			if step.Section == "" {
				return fmt.Errorf("flow[%d]: complete requires section", i)
			}
		}
	}

	for i, a := range s.Assertions {
		switch a.Type {
		case AssertTraceContains, AssertTraceCount:
			if a.Event == "" {
				return fmt.Errorf("assertions[%d]: %s requires event", i, a.Type)
			}
		case AssertTraceOrder:
			if len(a.Events) < 2 {
				return fmt.Errorf("assertions[%d]: trace_order requires at least 2 events", i)
			}
		case AssertFinalState:
			if len(a.Expect) == 0 {
				return fmt.Errorf("assertions[%d]: final_state requires expect", i)
			}
		default:
			return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
		}
	}
	return nil
}
