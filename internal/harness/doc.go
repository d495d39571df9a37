// Package harness runs wizard scenarios described in YAML.
//
// A scenario drives an isolated session through a flow of actions (step
// transitions, submits, connectivity signals, clock advances, reloads) and
// records everything observable into a trace: progress notifications,
// connectivity transitions, delivery attempts and sync-complete messages.
// Assertions are checked against the trace and the final state, and the
// trace can be compared with a golden file.
//
// The clock, submission ids and the submission endpoint are all fakes, so a
// scenario produces the same trace on every run.
package harness
