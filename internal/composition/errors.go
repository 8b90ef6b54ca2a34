package composition

import "fmt"

// ConstructionError reports an invalid use of a composition constructor.
// It carries the offending argument so callers can surface it programmatically.
type ConstructionError struct {
	Op       string // constructor name, e.g. "if", "retain"
	Argument any    // the offending argument, if any
	Reason   string
}

func (e *ConstructionError) Error() string {
	if e.Argument != nil {
		return fmt.Sprintf("composition.%s: %s (argument: %v)", e.Op, e.Reason, e.Argument)
	}
	return fmt.Sprintf("composition.%s: %s", e.Op, e.Reason)
}

func newError(op, reason string, arg any) *ConstructionError {
	return &ConstructionError{Op: op, Argument: arg, Reason: reason}
}
