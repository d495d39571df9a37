// Package session assembles one claim wizard from its parts.
//
// A Session owns the store, the step machine and progress tracker, the
// connectivity monitor, the submission queue with its background worker and
// the asset cache. Its lifecycle is New -> Init -> Dispose; tests build
// isolated sessions by injecting fakes through Deps.
package session
