// Package queue holds submissions until they can be delivered.
//
// Envelopes live in the durable store tier, independent of the wizard's
// checkpoint, so the backlog survives a cleared session. Drain is safe to
// trigger from several places at once (connectivity changes, the background
// worker, the CLI); only one drain runs at a time.
package queue
