package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/plantops/shopcore/internal/actions"
	"github.com/plantops/shopcore/internal/metrics"
	"github.com/plantops/shopcore/internal/rule"
	"github.com/plantops/shopcore/internal/store"
)

// Engine evaluates automation rules against operational snapshots and
// dispatches debounced actions.
type Engine struct {
	store      store.Store
	ledger     DebounceLedger
	dispatcher *actions.Dispatcher
	clock      Clock
	ids        IDGenerator

	capacityHours float64
	delayGrace    time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithLedger replaces the debounce ledger. By default the engine claims
// against the store itself; a shared Redis ledger lets multiple engine
// hosts debounce against one window.
func WithLedger(l DebounceLedger) Option {
	return func(e *Engine) { e.ledger = l }
}

// WithClock replaces the wall clock, fixing the evaluation instant in tests.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithIDGenerator replaces the execution record ID source.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithCapacityHours sets the total production capacity over the planning
// horizon, consumed by the capacity_shortage trigger.
func WithCapacityHours(hours float64) Option {
	return func(e *Engine) { e.capacityHours = hours }
}

// WithDelayGrace shifts the order_delay cutoff into the past, so an order
// counts as delayed only once its planned date is older than the grace
// period. Zero means strict wall-clock comparison.
func WithDelayGrace(d time.Duration) Option {
	return func(e *Engine) { e.delayGrace = d }
}

// New creates an Engine backed by st, debouncing against st unless a
// dedicated ledger is supplied.
func New(st store.Store, dispatcher *actions.Dispatcher, opts ...Option) *Engine {
	e := &Engine{
		store:      st,
		ledger:     st,
		dispatcher: dispatcher,
		clock:      SystemClock{},
		ids:        UUIDGenerator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EvaluatePass evaluates every enabled rule against one shared snapshot,
// in rule-ID order. A rule that fails does not abort the pass; its outcome
// carries the error. The returned error is non-nil only when the snapshot
// or the rule listing could not be assembled.
func (e *Engine) EvaluatePass(ctx context.Context) ([]Outcome, error) {
	rules, err := e.store.ListEnabledRules(ctx)
	if err != nil {
		return nil, NewSnapshotError(err)
	}
	snap, err := e.buildSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()

	outcomes := make([]Outcome, 0, len(rules))
	for i := range rules {
		outcomes = append(outcomes, e.evaluateRule(ctx, &rules[i], snap, now))
	}
	slog.Info("evaluation pass complete",
		"rules", len(rules),
		"fired", countStatus(outcomes, StatusFired),
		"skipped", countStatus(outcomes, StatusSkipped),
		"errors", countStatus(outcomes, StatusError),
	)
	return outcomes, nil
}

// TestRule evaluates a single rule by ID, enabled or not, and reports what
// would happen: fired, not triggered, skipped by debounce, or error. A test
// that fires goes through the full path, including the debounce claim and
// the execution record.
func (e *Engine) TestRule(ctx context.Context, ruleID string) (Outcome, error) {
	r, err := e.store.GetRule(ctx, ruleID)
	if err != nil {
		return Outcome{}, err
	}
	snap, err := e.buildSnapshot(ctx)
	if err != nil {
		return Outcome{}, err
	}
	return e.evaluateRule(ctx, r, snap, e.clock.Now()), nil
}

func (e *Engine) evaluateRule(ctx context.Context, r *rule.Rule, snap *Snapshot, now time.Time) Outcome {
	out := Outcome{RuleID: r.ID, RuleName: r.Name}

	fn, ok := triggerRegistry[r.Trigger.Kind]
	if !ok {
		return e.fail(out, NewUnknownTriggerError(r.ID, string(r.Trigger.Kind)))
	}

	triggered, msg, err := fn(snap, r.Trigger.Conditions, e.delayCutoff(now, r.Trigger.Kind))
	if err != nil {
		return e.fail(out, NewBadConditionsError(r.ID, err.Error()))
	}
	if !triggered {
		out.Status = StatusNotTriggered
		out.Message = msg
		metrics.RuleEvaluations.WithLabelValues(string(StatusNotTriggered)).Inc()
		return out
	}

	key, err := claimKey(r)
	if err != nil {
		return e.fail(out, NewBadConditionsError(r.ID, err.Error()))
	}
	claimed, prev, err := e.ledger.ClaimDebounce(ctx, key, now, r.DebounceWindow())
	if err != nil {
		return e.fail(out, NewLedgerError(r.ID, err))
	}
	if !claimed {
		out.Status = StatusSkipped
		out.Message = fmt.Sprintf("debounced: %s (window %s)", msg, r.DebounceWindow())
		metrics.RuleEvaluations.WithLabelValues(string(StatusSkipped)).Inc()
		slog.Debug("rule debounced", "rule", r.ID, "window", r.DebounceWindow())
		return out
	}

	result, actionErr := e.dispatcher.Dispatch(ctx, r.Action)

	ex := store.Execution{
		ID:         e.ids.NewID(),
		RuleID:     r.ID,
		RuleName:   r.Name,
		ExecutedAt: now,
	}
	if actionErr != nil {
		ex.Status = store.ExecutionError
		ex.Message = actionErr.Error()
	} else {
		ex.Status = store.ExecutionSuccess
		ex.Message = result.Message
	}
	if err := e.store.AppendExecution(ctx, ex); err != nil {
		slog.Error("appending execution record", "rule", r.ID, "error", err)
	}
	out.Execution = &ex

	if actionErr != nil {
		// Hand the claim back so the failure does not consume the window.
		if relErr := e.ledger.ReleaseDebounce(ctx, key, now, prev); relErr != nil {
			slog.Error("releasing debounce claim", "rule", r.ID, "error", relErr)
		}
		out.Status = StatusError
		out.Message = actionErr.Error()
		metrics.RuleEvaluations.WithLabelValues(string(StatusError)).Inc()
		slog.Warn("rule action failed", "rule", r.ID, "action", r.Action.Kind, "error", actionErr)
		return out
	}

	if err := e.store.RecordFiring(ctx, r.ID, now); err != nil {
		slog.Error("recording rule firing", "rule", r.ID, "error", err)
	}
	out.Status = StatusFired
	out.Message = fmt.Sprintf("%s; %s", msg, result.Message)
	metrics.RuleEvaluations.WithLabelValues(string(StatusFired)).Inc()
	metrics.RuleFirings.WithLabelValues(string(r.Trigger.Kind)).Inc()
	slog.Info("rule fired",
		"rule", r.ID,
		"trigger", r.Trigger.Kind,
		"action", r.Action.Kind,
		"disposition", result.Disposition,
	)
	return out
}

func (e *Engine) fail(out Outcome, err *EvalError) Outcome {
	out.Status = StatusError
	out.Message = err.Error()
	metrics.RuleEvaluations.WithLabelValues(string(StatusError)).Inc()
	slog.Warn("rule evaluation failed", "rule", out.RuleID, "code", err.Code, "error", err)
	return out
}

// delayCutoff applies the configured grace period to the order_delay
// trigger's notion of "now". Other triggers see the pass instant unchanged.
func (e *Engine) delayCutoff(now time.Time, kind rule.TriggerKind) time.Time {
	if kind == rule.TriggerOrderDelay && e.delayGrace > 0 {
		return now.Add(-e.delayGrace)
	}
	return now
}

// claimKey keys the debounce ledger by rule identity and definition hash,
// so editing a rule's trigger or action starts a fresh window.
func claimKey(r *rule.Rule) (string, error) {
	hash, err := rule.DefinitionHash(r)
	if err != nil {
		return "", err
	}
	return r.ID + ":" + hash, nil
}

func countStatus(outs []Outcome, s Status) int {
	n := 0
	for _, o := range outs {
		if o.Status == s {
			n++
		}
	}
	return n
}
