// Package connectivity resolves whether the claim service is reachable.
//
// Monitor combines the platform's coarse online/offline events, a periodic
// liveness probe and failures reported by network callers into one state,
// and notifies listeners once per real change. HTTPProber is the production
// probe.
package connectivity
