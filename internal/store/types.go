package store

import (
	"context"
	"errors"
	"time"

	"github.com/plantops/shopcore/internal/order"
	"github.com/plantops/shopcore/internal/rule"
)

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("store: record not found")

	// ErrCycle is returned when a dependency write would make the graph cyclic.
	ErrCycle = errors.New("store: dependency edge would create a cycle")
)

// ExecutionStatus is the outcome recorded for one rule firing.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionError   ExecutionStatus = "error"
)

// Execution is an immutable audit entry written each time a rule fires or
// fails. Suppressed (debounced) evaluations write nothing.
type Execution struct {
	ID         string          `json:"id"`
	RuleID     string          `json:"rule_id"`
	RuleName   string          `json:"rule_name"`
	Status     ExecutionStatus `json:"status"`
	Message    string          `json:"message"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// LogEntry is an audit log record produced by create_log, send_notification
// and inspection_reminder actions.
type LogEntry struct {
	ID        string    `json:"id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Standard is a per-machine standard duration maintained by the
// auto_learning_update action.
type Standard struct {
	Machine     string    `json:"machine"`
	Hours       float64   `json:"hours"`
	SampleCount int       `json:"sample_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store is the persistence contract shared by the sqlite, postgres and
// memory implementations.
type Store interface {
	// Orders.
	PutOrder(ctx context.Context, o *order.Order) error
	GetOrder(ctx context.Context, id string) (*order.Order, error)
	OrderSnapshot(ctx context.Context) (order.Snapshot, error)
	UpdateOrderStatus(ctx context.Context, id string, status order.Status) error
	AssignOperator(ctx context.Context, id, operatorName string) error
	RescheduleOrder(ctx context.Context, id string, planned time.Time) error

	// Dependency edges. AddDependency re-certifies acyclicity inside its
	// write transaction and returns ErrCycle on rejection.
	AddDependency(ctx context.Context, orderID, dependsOn string) error
	RemoveDependency(ctx context.Context, orderID, dependsOn string) error

	// Rules. RecordFiring applies executionCount += 1 and lastExecuted = at;
	// it is only called for successful, non-suppressed firings.
	PutRule(ctx context.Context, r *rule.Rule) error
	GetRule(ctx context.Context, id string) (*rule.Rule, error)
	ListRules(ctx context.Context) ([]rule.Rule, error)
	ListEnabledRules(ctx context.Context) ([]rule.Rule, error)
	RecordFiring(ctx context.Context, ruleID string, at time.Time) error

	// Debounce ledger. See engine.DebounceLedger for the contract.
	ClaimDebounce(ctx context.Context, key string, now time.Time, window time.Duration) (bool, *time.Time, error)
	ReleaseDebounce(ctx context.Context, key string, claimedAt time.Time, prev *time.Time) error

	// Executions and audit log (append-only).
	AppendExecution(ctx context.Context, ex Execution) error
	ListExecutions(ctx context.Context, ruleID string, limit int) ([]Execution, error)
	AppendLog(ctx context.Context, e LogEntry) error

	// Inspections.
	PutInspection(ctx context.Context, ins order.Inspection) error
	ListInspections(ctx context.Context) ([]order.Inspection, error)

	// Standards.
	GetStandard(ctx context.Context, machine string) (*Standard, error)
	UpsertStandard(ctx context.Context, s Standard) error

	Close() error
}
