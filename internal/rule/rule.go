// Package rule defines the automation rule model: trigger and action kinds,
// per-kind parameter schemas, and the YAML definition loader.
//
// Trigger and action kinds are closed sets. Dispatch happens through
// registries keyed by kind, and every kind carries a CUE schema for its
// condition/parameter map, so a malformed or unknown rule is rejected at load
// time instead of surfacing mid-evaluation.
package rule

import (
	"fmt"
	"time"
)

// DefaultDebounceMinutes is the minimum spacing between two successful
// firings of a rule when the definition does not specify one.
const DefaultDebounceMinutes = 60

// TriggerKind names a condition-evaluation function.
type TriggerKind string

const (
	TriggerCapacityShortage  TriggerKind = "capacity_shortage"
	TriggerLowEfficiency     TriggerKind = "low_efficiency"
	TriggerOrderDelay        TriggerKind = "order_delay"
	TriggerMissingOperator   TriggerKind = "missing_operator"
	TriggerDependencyBlocked TriggerKind = "dependency_blocked"
	TriggerInspectionOverdue TriggerKind = "inspection_overdue"
	TriggerStandardDeviation TriggerKind = "standard_deviation"
)

// TriggerKinds lists every supported trigger kind.
var TriggerKinds = []TriggerKind{
	TriggerCapacityShortage,
	TriggerLowEfficiency,
	TriggerOrderDelay,
	TriggerMissingOperator,
	TriggerDependencyBlocked,
	TriggerInspectionOverdue,
	TriggerStandardDeviation,
}

// Valid reports whether k is a known trigger kind.
func (k TriggerKind) Valid() bool {
	for _, t := range TriggerKinds {
		if k == t {
			return true
		}
	}
	return false
}

// ActionKind names a side-effecting operation.
type ActionKind string

const (
	ActionSendNotification   ActionKind = "send_notification"
	ActionCreateLog          ActionKind = "create_log"
	ActionUpdateStatus       ActionKind = "update_status"
	ActionAssignOperator     ActionKind = "assign_operator"
	ActionRescheduleOrder    ActionKind = "reschedule_order"
	ActionInspectionReminder ActionKind = "inspection_reminder"
	ActionAutoLearningUpdate ActionKind = "auto_learning_update"
)

// ActionKinds lists every supported action kind.
var ActionKinds = []ActionKind{
	ActionSendNotification,
	ActionCreateLog,
	ActionUpdateStatus,
	ActionAssignOperator,
	ActionRescheduleOrder,
	ActionInspectionReminder,
	ActionAutoLearningUpdate,
}

// Valid reports whether k is a known action kind.
func (k ActionKind) Valid() bool {
	for _, a := range ActionKinds {
		if k == a {
			return true
		}
	}
	return false
}

// Trigger selects a condition-evaluation function and its parameters.
// Conditions is validated against the kind's CUE schema before use.
type Trigger struct {
	Kind       TriggerKind    `json:"type" yaml:"type"`
	Conditions map[string]any `json:"conditions" yaml:"conditions"`
}

// Action selects a side-effecting operation and its parameters.
// Params is validated against the kind's CUE schema before use.
type Action struct {
	Kind   ActionKind     `json:"type" yaml:"type"`
	Params map[string]any `json:"params" yaml:"params"`
}

// Rule is a persisted automation rule.
//
// ExecutionCount and LastExecuted are bookkeeping written back by the engine
// on successful, non-suppressed firings only. Everything else is authored by
// an operator.
type Rule struct {
	ID              string     `json:"id" yaml:"id"`
	Name            string     `json:"name" yaml:"name"`
	Enabled         bool       `json:"enabled" yaml:"enabled"`
	Trigger         Trigger    `json:"trigger" yaml:"trigger"`
	Action          Action     `json:"action" yaml:"action"`
	DebounceMinutes int        `json:"debounce_minutes" yaml:"debounce_minutes"`
	ExecutionCount  int        `json:"execution_count" yaml:"-"`
	LastExecuted    *time.Time `json:"last_executed,omitempty" yaml:"-"`
}

// DebounceWindow returns the minimum spacing between successful firings.
func (r *Rule) DebounceWindow() time.Duration {
	minutes := r.DebounceMinutes
	if minutes <= 0 {
		minutes = DefaultDebounceMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// Validate checks the rule's structure and both parameter maps against their
// kind schemas. A rule that fails validation must never reach the engine.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "id", Message: "id is required"}
	}
	if r.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if !r.Trigger.Kind.Valid() {
		return &ValidationError{
			Field:   "trigger.type",
			Message: fmt.Sprintf("unknown trigger kind %q", r.Trigger.Kind),
		}
	}
	if !r.Action.Kind.Valid() {
		return &ValidationError{
			Field:   "action.type",
			Message: fmt.Sprintf("unknown action kind %q", r.Action.Kind),
		}
	}
	if r.DebounceMinutes < 0 {
		return &ValidationError{Field: "debounce_minutes", Message: "must not be negative"}
	}
	if err := ValidateTriggerConditions(r.Trigger.Kind, r.Trigger.Conditions); err != nil {
		return err
	}
	return ValidateActionParams(r.Action.Kind, r.Action.Params)
}

// ValidationError reports a structural or schema failure in a rule
// definition.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("rule validation: %s: %s", e.Field, e.Message)
}
