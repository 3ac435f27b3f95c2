// internal/browser/dom/context.go
package dom

import "context"

// CombineContext returns a context derived from primary that is also canceled
// when op is done. Values come from primary only, which matters for drivers
// whose session context carries connection state. The cause recorded on the
// combined context is op's cause, so a step deadline stays distinguishable
// from a closed session through context.Cause.
func CombineContext(primary, op context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancelCause(primary)
	stop := context.AfterFunc(op, func() {
		cancel(context.Cause(op))
	})
	return combined, func() {
		stop()
		cancel(context.Canceled)
	}
}

// Detach returns a context carrying ctx's values but none of its deadline or
// cancellation. Used for cleanup that has to outlive the step that started it.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
