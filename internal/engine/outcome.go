package engine

import "github.com/plantops/shopcore/internal/store"

// Status classifies what an evaluation did for one rule.
type Status string

const (
	// StatusFired means the condition held, the debounce claim was won, and
	// the action was dispatched successfully.
	StatusFired Status = "fired"

	// StatusNotTriggered means the condition did not hold. Nothing was
	// written.
	StatusNotTriggered Status = "not_triggered"

	// StatusSkipped means the condition held but the debounce window had
	// not elapsed. Nothing was written.
	StatusSkipped Status = "skipped"

	// StatusError means evaluation or the dispatched action failed.
	StatusError Status = "error"
)

// Outcome reports the result of evaluating one rule.
type Outcome struct {
	RuleID   string
	RuleName string
	Status   Status

	// Message explains the outcome: why the condition held or did not,
	// what the action reported, or what went wrong.
	Message string

	// Execution is the appended record, set only when one was written
	// (fired, or an error after the debounce claim was won).
	Execution *store.Execution
}
