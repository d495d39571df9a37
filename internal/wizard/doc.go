// Package wizard implements the step state machine of the claim wizard.
//
// A Machine owns the current step and the total step count. Steps are
// 1-based. Every transition is either accepted, in which case listeners
// registered with OnProgressChanged are notified, or rejected with a
// *TransitionError and no state change. The terminal completed state is
// reachable only from the last step through Submit.
//
// Listeners are the sole integration point for views and for the progress
// tracker:
//
//	unsubscribe := m.OnProgressChanged(func(ev wizard.Event) {
//		fmt.Printf("step %d of %d (%d%%)\n", ev.CurrentStep, ev.TotalSteps, ev.Percent())
//	})
//	defer unsubscribe()
package wizard
