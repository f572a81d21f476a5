package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantops/shopcore/internal/actions"
	"github.com/plantops/shopcore/internal/order"
	"github.com/plantops/shopcore/internal/rule"
	"github.com/plantops/shopcore/internal/store"
	"github.com/plantops/shopcore/internal/testutil"
)

// testEngine wires a memory store, a fixed clock, and sequential IDs into
// an engine, returning all three for assertions.
func testEngine(t *testing.T, opts ...Option) (*Engine, *store.MemoryStore, *testutil.FixedClock) {
	t.Helper()
	st := store.NewMemoryStore()
	clock := testutil.NewFixedClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	ids := testutil.NewSequentialIDGenerator("exec")
	dispatcher := actions.NewDispatcher(st, clock, ids)

	opts = append([]Option{WithClock(clock), WithIDGenerator(ids)}, opts...)
	return New(st, dispatcher, opts...), st, clock
}

func blockedRule(id string) *rule.Rule {
	return &rule.Rule{
		ID:      id,
		Name:    "Blocked watch",
		Enabled: true,
		Trigger: rule.Trigger{
			Kind:       rule.TriggerDependencyBlocked,
			Conditions: map[string]any{"threshold": 1},
		},
		Action: rule.Action{
			Kind:   rule.ActionCreateLog,
			Params: map[string]any{"message": "orders are blocked"},
		},
		DebounceMinutes: 60,
	}
}

// seedBlockedOrders stores x depending on y, with y still planned, so the
// dependency_blocked condition holds at threshold 1.
func seedBlockedOrders(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.PutOrder(ctx, &order.Order{ID: "y", Status: order.StatusPlanned}))
	require.NoError(t, st.PutOrder(ctx, &order.Order{ID: "x", Status: order.StatusPlanned, Dependencies: []string{"y"}}))
	require.NoError(t, st.PutOrder(ctx, &order.Order{ID: "z", Status: order.StatusPlanned}))
}

// =============================================================================
// Outcome Legibility
// =============================================================================

func TestEngine_Fires(t *testing.T) {
	ctx := context.Background()
	eng, st, _ := testEngine(t)
	seedBlockedOrders(t, st)
	require.NoError(t, st.PutRule(ctx, blockedRule("r-1")))

	outcomes, err := eng.EvaluatePass(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)

	out := outcomes[0]
	assert.Equal(t, StatusFired, out.Status)
	assert.Equal(t, "r-1", out.RuleID)
	require.NotNil(t, out.Execution)
	assert.Equal(t, store.ExecutionSuccess, out.Execution.Status)

	r, err := st.GetRule(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, 1, r.ExecutionCount)
	require.NotNil(t, r.LastExecuted)

	assert.Len(t, st.Logs(), 1, "create_log action wrote its entry")
}

func TestEngine_NotTriggeredWritesNothing(t *testing.T) {
	ctx := context.Background()
	eng, st, _ := testEngine(t)
	// Every order independent: nothing is blocked.
	require.NoError(t, st.PutOrder(ctx, &order.Order{ID: "a", Status: order.StatusPlanned}))
	require.NoError(t, st.PutRule(ctx, blockedRule("r-1")))

	outcomes, err := eng.EvaluatePass(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusNotTriggered, outcomes[0].Status)
	assert.Nil(t, outcomes[0].Execution)

	execs, err := st.ListExecutions(ctx, "r-1", 0)
	require.NoError(t, err)
	assert.Empty(t, execs)

	r, err := st.GetRule(ctx, "r-1")
	require.NoError(t, err)
	assert.Zero(t, r.ExecutionCount)
}

// TestEngine_DebounceIdempotence: two immediate evaluations of the same
// triggered rule produce exactly one success record, one skipped outcome,
// and a single bookkeeping increment.
func TestEngine_DebounceIdempotence(t *testing.T) {
	ctx := context.Background()
	eng, st, _ := testEngine(t)
	seedBlockedOrders(t, st)
	require.NoError(t, st.PutRule(ctx, blockedRule("r-1")))

	first, err := eng.EvaluatePass(ctx)
	require.NoError(t, err)
	require.Equal(t, StatusFired, first[0].Status)

	second, err := eng.EvaluatePass(ctx)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, StatusSkipped, second[0].Status)
	assert.Nil(t, second[0].Execution, "a suppressed evaluation records nothing")

	execs, err := st.ListExecutions(ctx, "r-1", 0)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, store.ExecutionSuccess, execs[0].Status)

	r, err := st.GetRule(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, 1, r.ExecutionCount, "bookkeeping increments exactly once")
}

func TestEngine_FiresAgainAfterWindow(t *testing.T) {
	ctx := context.Background()
	eng, st, clock := testEngine(t)
	seedBlockedOrders(t, st)
	require.NoError(t, st.PutRule(ctx, blockedRule("r-1")))

	_, err := eng.EvaluatePass(ctx)
	require.NoError(t, err)

	clock.Advance(61 * time.Minute)
	outcomes, err := eng.EvaluatePass(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusFired, outcomes[0].Status)

	r, err := st.GetRule(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, 2, r.ExecutionCount)
}

// TestEngine_BlockedClears: once the blocking dependency ships, the same
// rule stops triggering.
func TestEngine_BlockedClears(t *testing.T) {
	ctx := context.Background()
	eng, st, clock := testEngine(t)
	seedBlockedOrders(t, st)
	require.NoError(t, st.PutRule(ctx, blockedRule("r-1")))

	outcomes, err := eng.EvaluatePass(ctx)
	require.NoError(t, err)
	require.Equal(t, StatusFired, outcomes[0].Status)

	require.NoError(t, st.UpdateOrderStatus(ctx, "y", order.StatusShipped))
	clock.Advance(2 * time.Hour)

	outcomes, err = eng.EvaluatePass(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusNotTriggered, outcomes[0].Status)
}

// =============================================================================
// Definition Hash Keying
// =============================================================================

func TestEngine_EditedDefinitionStartsFreshWindow(t *testing.T) {
	ctx := context.Background()
	eng, st, _ := testEngine(t)
	seedBlockedOrders(t, st)
	require.NoError(t, st.PutRule(ctx, blockedRule("r-1")))

	_, err := eng.EvaluatePass(ctx)
	require.NoError(t, err)

	// Change the action params: the ledger key changes, so the rule is not
	// debounced by the earlier firing.
	edited := blockedRule("r-1")
	edited.Action.Params = map[string]any{"message": "still blocked"}
	require.NoError(t, st.PutRule(ctx, edited))

	outcomes, err := eng.EvaluatePass(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusFired, outcomes[0].Status)
}

// =============================================================================
// Error Paths
// =============================================================================

func TestEngine_UnknownTriggerKind(t *testing.T) {
	ctx := context.Background()
	eng, st, _ := testEngine(t)

	bad := blockedRule("r-bad")
	bad.Trigger.Kind = "weather_alert"
	require.NoError(t, st.PutRule(ctx, bad))

	outcomes, err := eng.EvaluatePass(ctx)
	require.NoError(t, err, "one broken rule must not abort the pass")
	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusError, outcomes[0].Status)
	assert.Nil(t, outcomes[0].Execution, "rejected before any write")
	assert.Contains(t, outcomes[0].Message, ErrCodeUnknownTrigger)

	execs, err := st.ListExecutions(ctx, "r-bad", 0)
	require.NoError(t, err)
	assert.Empty(t, execs)
}

func TestEngine_MalformedConditions(t *testing.T) {
	ctx := context.Background()
	eng, st, _ := testEngine(t)
	seedBlockedOrders(t, st)

	bad := blockedRule("r-bad")
	bad.Trigger.Conditions = map[string]any{"threshold": "lots"}
	require.NoError(t, st.PutRule(ctx, bad))

	outcomes, err := eng.EvaluatePass(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusError, outcomes[0].Status)
	assert.Contains(t, outcomes[0].Message, ErrCodeBadConditions)
}

// TestEngine_ActionFailure: a failed action writes an error record, skips
// the bookkeeping, and hands back its debounce claim so the next attempt is
// not suppressed by the failure.
func TestEngine_ActionFailure(t *testing.T) {
	ctx := context.Background()
	eng, st, _ := testEngine(t)
	seedBlockedOrders(t, st)

	r := blockedRule("r-1")
	r.Action = rule.Action{
		Kind:   rule.ActionUpdateStatus,
		Params: map[string]any{"orderId": "no-such-order", "status": "shipped"},
	}
	require.NoError(t, st.PutRule(ctx, r))

	outcomes, err := eng.EvaluatePass(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusError, outcomes[0].Status)
	require.NotNil(t, outcomes[0].Execution)
	assert.Equal(t, store.ExecutionError, outcomes[0].Execution.Status)

	rr, err := st.GetRule(ctx, "r-1")
	require.NoError(t, err)
	assert.Zero(t, rr.ExecutionCount, "failures never count as firings")
	assert.Nil(t, rr.LastExecuted)

	// The claim was released: an immediate retry goes through the full path
	// again instead of reporting skipped.
	outcomes, err = eng.EvaluatePass(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusError, outcomes[0].Status)

	execs, err := st.ListExecutions(ctx, "r-1", 0)
	require.NoError(t, err)
	assert.Len(t, execs, 2, "every dispatched attempt leaves a record")
}

// =============================================================================
// TestRule
// =============================================================================

func TestEngine_TestRule_ReportsAllOutcomes(t *testing.T) {
	ctx := context.Background()
	eng, st, _ := testEngine(t)
	seedBlockedOrders(t, st)

	disabled := blockedRule("r-1")
	disabled.Enabled = false
	require.NoError(t, st.PutRule(ctx, disabled))

	// Disabled rules are still testable.
	out, err := eng.TestRule(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFired, out.Status)

	// Immediately again: debounced.
	out, err = eng.TestRule(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, out.Status)

	// Clear the condition: not triggered.
	require.NoError(t, st.UpdateOrderStatus(ctx, "y", order.StatusShipped))
	out, err = eng.TestRule(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, StatusNotTriggered, out.Status)
	assert.NotEmpty(t, out.Message, "a user testing a rule always learns why")
}

func TestEngine_TestRule_UnknownRule(t *testing.T) {
	eng, _, _ := testEngine(t)
	_, err := eng.TestRule(context.Background(), "absent")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// =============================================================================
// Pass Behavior
// =============================================================================

func TestEngine_EvaluatePass_RuleIDOrder(t *testing.T) {
	ctx := context.Background()
	eng, st, _ := testEngine(t)
	seedBlockedOrders(t, st)
	require.NoError(t, st.PutRule(ctx, blockedRule("r-b")))
	require.NoError(t, st.PutRule(ctx, blockedRule("r-a")))

	outcomes, err := eng.EvaluatePass(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "r-a", outcomes[0].RuleID)
	assert.Equal(t, "r-b", outcomes[1].RuleID)
}

func TestEngine_EvaluatePass_SkipsDisabled(t *testing.T) {
	ctx := context.Background()
	eng, st, _ := testEngine(t)
	seedBlockedOrders(t, st)

	disabled := blockedRule("r-off")
	disabled.Enabled = false
	require.NoError(t, st.PutRule(ctx, disabled))

	outcomes, err := eng.EvaluatePass(ctx)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}
