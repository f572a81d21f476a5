package actions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/plantops/shopcore/internal/metrics"
	"github.com/plantops/shopcore/internal/rule"
	"github.com/plantops/shopcore/internal/store"
)

// Clock supplies wall time. Satisfied by engine.SystemClock and
// testutil.FixedClock.
type Clock interface {
	Now() time.Time
}

// IDGenerator mints IDs for audit log entries. Satisfied by
// engine.UUIDGenerator and testutil.SequentialIDGenerator.
type IDGenerator interface {
	NewID() string
}

// Handler executes one action kind against the store.
type Handler func(ctx context.Context, d *Dispatcher, params map[string]any) (Result, error)

// Dispatcher routes an action to its handler and reports the structured
// outcome. The registry covers every rule.ActionKind; an unknown kind is a
// dispatch error, which the engine surfaces as a validation failure.
type Dispatcher struct {
	store    store.Store
	clock    Clock
	ids      IDGenerator
	notify   *NotifyLimiter
	handlers map[rule.ActionKind]Handler
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithNotifyLimiter replaces the default notification rate limiter.
func WithNotifyLimiter(l *NotifyLimiter) DispatcherOption {
	return func(d *Dispatcher) {
		d.notify = l
	}
}

// NewDispatcher creates a Dispatcher with the full handler registry.
func NewDispatcher(st store.Store, clock Clock, ids IDGenerator, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store: st,
		clock: clock,
		ids:   ids,
		// One notification per severity per 10s, burst of 5.
		notify: NewNotifyLimiter(0.1, 5),
	}
	d.handlers = map[rule.ActionKind]Handler{
		rule.ActionSendNotification:   sendNotification,
		rule.ActionCreateLog:          createLog,
		rule.ActionUpdateStatus:       updateStatus,
		rule.ActionAssignOperator:     assignOperator,
		rule.ActionRescheduleOrder:    rescheduleOrder,
		rule.ActionInspectionReminder: inspectionReminder,
		rule.ActionAutoLearningUpdate: autoLearningUpdate,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs the handler for the action's kind.
//
// The returned error is non-nil only for failures; a Result with
// DispositionNoop is a successful dispatch that had nothing to do. Handlers
// are idempotent: re-dispatching the same action against an unchanged store
// converges on the same state.
func (d *Dispatcher) Dispatch(ctx context.Context, action rule.Action) (Result, error) {
	handler, ok := d.handlers[action.Kind]
	if !ok {
		metrics.ActionDispatches.WithLabelValues(string(action.Kind), string(DispositionFailed)).Inc()
		return Result{Disposition: DispositionFailed},
			fmt.Errorf("unknown action kind %q", action.Kind)
	}

	result, err := handler(ctx, d, action.Params)
	if err != nil {
		result.Disposition = DispositionFailed
		if result.Message == "" {
			result.Message = err.Error()
		}
	}
	metrics.ActionDispatches.WithLabelValues(string(action.Kind), string(result.Disposition)).Inc()

	slog.Debug("action dispatched",
		"action", action.Kind,
		"disposition", result.Disposition,
		"message", result.Message,
	)
	return result, err
}
