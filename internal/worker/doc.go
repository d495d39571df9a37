// Package worker runs background sync requests on their own goroutine, so
// queued submissions are delivered even when no wizard session is active.
package worker
