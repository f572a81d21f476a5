package engine

import (
	"errors"
	"fmt"
)

// Error codes for rule evaluation failures.
const (
	// ErrCodeUnknownTrigger indicates a rule references a trigger kind
	// with no registered condition function.
	ErrCodeUnknownTrigger = "UNKNOWN_TRIGGER"

	// ErrCodeBadConditions indicates a rule's condition payload is missing
	// a field, or holds a value of the wrong type, for its trigger kind.
	ErrCodeBadConditions = "BAD_CONDITIONS"

	// ErrCodeSnapshotUnavailable indicates the operational snapshot could
	// not be assembled from the store.
	ErrCodeSnapshotUnavailable = "SNAPSHOT_UNAVAILABLE"

	// ErrCodeLedgerUnavailable indicates the debounce ledger rejected the
	// claim or release with an infrastructure error.
	ErrCodeLedgerUnavailable = "LEDGER_UNAVAILABLE"
)

// EvalError is a structured evaluation error carrying a stable code, a
// human-readable message, and the rule it concerns.
type EvalError struct {
	Code    string
	Message string
	RuleID  string
	Cause   error
}

func (e *EvalError) Error() string {
	if e.RuleID != "" {
		return fmt.Sprintf("[%s] rule %s: %s", e.Code, e.RuleID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *EvalError) Unwrap() error { return e.Cause }

// NewUnknownTriggerError reports a trigger kind outside the closed registry.
func NewUnknownTriggerError(ruleID, kind string) *EvalError {
	return &EvalError{
		Code:    ErrCodeUnknownTrigger,
		Message: fmt.Sprintf("no condition function for trigger kind %q", kind),
		RuleID:  ruleID,
	}
}

// NewBadConditionsError reports a malformed condition payload.
func NewBadConditionsError(ruleID, msg string) *EvalError {
	return &EvalError{
		Code:    ErrCodeBadConditions,
		Message: msg,
		RuleID:  ruleID,
	}
}

// NewSnapshotError wraps a store failure encountered while assembling the
// operational snapshot.
func NewSnapshotError(cause error) *EvalError {
	return &EvalError{
		Code:    ErrCodeSnapshotUnavailable,
		Message: "assembling operational snapshot",
		Cause:   cause,
	}
}

// NewLedgerError wraps a debounce ledger infrastructure failure.
func NewLedgerError(ruleID string, cause error) *EvalError {
	return &EvalError{
		Code:    ErrCodeLedgerUnavailable,
		Message: "debounce ledger unavailable",
		RuleID:  ruleID,
		Cause:   cause,
	}
}

// IsUnknownTrigger reports whether err is an UNKNOWN_TRIGGER evaluation error.
func IsUnknownTrigger(err error) bool { return hasCode(err, ErrCodeUnknownTrigger) }

// IsBadConditions reports whether err is a BAD_CONDITIONS evaluation error.
func IsBadConditions(err error) bool { return hasCode(err, ErrCodeBadConditions) }

func hasCode(err error, code string) bool {
	var ee *EvalError
	return errors.As(err, &ee) && ee.Code == code
}
