package automation

import (
	"errors"
	"fmt"
)

// Errors reported to the caller before an execution becomes auditable.
// Anything that happens after condition evaluation starts is captured
// in the execution log instead of being returned as an error.
var (
	// ErrRuleNotFound means the rule id does not exist (or no longer
	// exists) in the store.
	ErrRuleNotFound = errors.New("automation rule not found")

	// ErrRuleInactive means Execute was called on a disabled rule.
	// No execution log is written for this case.
	ErrRuleInactive = errors.New("automation rule is inactive")

	// ErrHandlerNotRegistered means a rule references an action type
	// with no registered handler. Rules are validated against the
	// action vocabulary at write time, so hitting this indicates a
	// deployment defect (a handler removed after rules referencing it
	// were created) and is surfaced as a server fault.
	ErrHandlerNotRegistered = errors.New("no handler registered for action type")
)

// ValidationError reports a malformed rule definition, rejected before
// anything reaches the store.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %q: %s", e.Field, e.Message)
}
