// Package progress tracks a user's way through the wizard and owns the
// durable checkpoint.
//
// A Tracker builds the step machine, listens to its progress-changed
// notifications and records, for every transition, the elapsed time of the
// step being left, the entry time of the new step and the snapshot of the
// fields left behind. Everything is written to the synchronous store tier
// under Namespace, so Reset can remove the whole session by prefix.
//
// Each logical update is several independent key writes. Restore tolerates
// any prefix of them having landed: an unfinalized timing entry for a step
// that is not current is read as "no elapsed time recorded yet".
package progress
