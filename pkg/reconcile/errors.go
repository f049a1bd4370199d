package reconcile

import (
	"errors"
	"fmt"
)

// ErrSuperseded is returned by OnReview when a full recalculation holds the
// lock. The event is dropped; the running recalculation covers it.
var ErrSuperseded = errors.New("review update superseded by full recalculation")

// StoreActionError records a single action the store rejected.
type StoreActionError struct {
	Action Action
	Err    error
}

func (e *StoreActionError) Error() string {
	target := e.Action.Literal
	if target == "" {
		target = fmt.Sprintf("note %d", e.Action.NoteID)
	}
	if e.Action.Tag != "" {
		return fmt.Sprintf("%s %s (%s): %v", e.Action.Kind, target, e.Action.Tag, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Action.Kind, target, e.Err)
}

func (e *StoreActionError) Unwrap() error { return e.Err }
