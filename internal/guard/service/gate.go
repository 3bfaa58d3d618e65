package service

import "context"

// ConfirmationGate asks the user to confirm a sensitive operation. Confirm
// blocks until the user answers or ctx is cancelled; cancellation must be
// reported as an error so the evaluator can resolve the evaluation as
// cancelled rather than leaving it dangling.
//
// The evaluator guarantees the gate is never invoked more than once
// concurrently for the same (subject, resourceKey), so implementations do not
// need their own de-duplication.
type ConfirmationGate interface {
	Confirm(ctx context.Context, message string) (bool, error)
}

// ConfirmFunc adapts a plain function to the ConfirmationGate interface.
type ConfirmFunc func(ctx context.Context, message string) (bool, error)

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, message string) (bool, error) {
	return f(ctx, message)
}

// StaticGate answers every confirmation with a fixed value. The HTTP surface
// uses a declining gate: sensitive operations there must carry an explicit
// confirmed flag in the evaluation context instead of prompting.
type StaticGate bool

// Confirm returns the fixed answer unless ctx is already cancelled.
func (g StaticGate) Confirm(ctx context.Context, message string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return bool(g), nil
}
