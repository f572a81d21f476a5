package actions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantops/shopcore/internal/order"
	"github.com/plantops/shopcore/internal/rule"
	"github.com/plantops/shopcore/internal/store"
	"github.com/plantops/shopcore/internal/testutil"
)

func testDispatcher(t *testing.T, opts ...DispatcherOption) (*Dispatcher, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	clock := testutil.NewFixedClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	ids := testutil.NewSequentialIDGenerator("act")
	return NewDispatcher(st, clock, ids, opts...), st
}

func TestDispatch_UnknownKind(t *testing.T) {
	d, _ := testDispatcher(t)

	result, err := d.Dispatch(context.Background(), rule.Action{Kind: "send_fax"})
	require.Error(t, err)
	assert.Equal(t, DispositionFailed, result.Disposition)
}

func TestDispatch_SendNotification(t *testing.T) {
	d, st := testDispatcher(t)

	result, err := d.Dispatch(context.Background(), rule.Action{
		Kind:   rule.ActionSendNotification,
		Params: map[string]any{"message": "capacity short", "severity": "warning"},
	})
	require.NoError(t, err)
	assert.Equal(t, DispositionApplied, result.Disposition)

	logs := st.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, "warning", logs[0].Level)
	assert.Equal(t, "capacity short", logs[0].Message)
}

func TestDispatch_SendNotification_RateLimited(t *testing.T) {
	// A limiter with zero refill and burst 1: the second send degrades to a
	// no-op instead of flooding the log.
	d, st := testDispatcher(t, WithNotifyLimiter(NewNotifyLimiter(0, 1)))
	action := rule.Action{
		Kind:   rule.ActionSendNotification,
		Params: map[string]any{"message": "m", "severity": "critical"},
	}

	result, err := d.Dispatch(context.Background(), action)
	require.NoError(t, err)
	assert.Equal(t, DispositionApplied, result.Disposition)

	result, err = d.Dispatch(context.Background(), action)
	require.NoError(t, err)
	assert.Equal(t, DispositionNoop, result.Disposition)
	assert.Len(t, st.Logs(), 1)
}

func TestDispatch_UpdateStatus_Idempotent(t *testing.T) {
	ctx := context.Background()
	d, st := testDispatcher(t)
	require.NoError(t, st.PutOrder(ctx, &order.Order{ID: "o-1", Status: order.StatusPlanned}))

	action := rule.Action{
		Kind:   rule.ActionUpdateStatus,
		Params: map[string]any{"orderId": "o-1", "status": "in_production"},
	}

	result, err := d.Dispatch(ctx, action)
	require.NoError(t, err)
	assert.Equal(t, DispositionApplied, result.Disposition)

	// Set-to-value: re-applying converges instead of erroring.
	result, err = d.Dispatch(ctx, action)
	require.NoError(t, err)
	assert.Equal(t, DispositionNoop, result.Disposition)

	got, err := st.GetOrder(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusInProduction, got.Status)
}

func TestDispatch_UpdateStatus_MissingOrder(t *testing.T) {
	d, _ := testDispatcher(t)

	result, err := d.Dispatch(context.Background(), rule.Action{
		Kind:   rule.ActionUpdateStatus,
		Params: map[string]any{"orderId": "ghost", "status": "shipped"},
	})
	require.Error(t, err)
	assert.Equal(t, DispositionFailed, result.Disposition)
}

func TestDispatch_AssignOperator(t *testing.T) {
	ctx := context.Background()
	d, st := testDispatcher(t)
	require.NoError(t, st.PutOrder(ctx, &order.Order{ID: "o-1", Status: order.StatusPlanned}))

	action := rule.Action{
		Kind:   rule.ActionAssignOperator,
		Params: map[string]any{"orderId": "o-1", "operatorName": "kim"},
	}

	result, err := d.Dispatch(ctx, action)
	require.NoError(t, err)
	assert.Equal(t, DispositionApplied, result.Disposition)

	result, err = d.Dispatch(ctx, action)
	require.NoError(t, err)
	assert.Equal(t, DispositionNoop, result.Disposition)
}

func TestDispatch_RescheduleOrder(t *testing.T) {
	ctx := context.Background()
	d, st := testDispatcher(t)
	require.NoError(t, st.PutOrder(ctx, &order.Order{ID: "o-1", Status: order.StatusPlanned}))

	action := rule.Action{
		Kind:   rule.ActionRescheduleOrder,
		Params: map[string]any{"orderId": "o-1", "plannedDate": "2026-09-15T08:00:00Z"},
	}

	result, err := d.Dispatch(ctx, action)
	require.NoError(t, err)
	assert.Equal(t, DispositionApplied, result.Disposition)

	got, err := st.GetOrder(ctx, "o-1")
	require.NoError(t, err)
	require.NotNil(t, got.PlannedDate)
	assert.Equal(t, 2026, got.PlannedDate.Year())

	result, err = d.Dispatch(ctx, action)
	require.NoError(t, err)
	assert.Equal(t, DispositionNoop, result.Disposition)
}

func TestDispatch_RescheduleOrder_BadDate(t *testing.T) {
	d, _ := testDispatcher(t)

	result, err := d.Dispatch(context.Background(), rule.Action{
		Kind:   rule.ActionRescheduleOrder,
		Params: map[string]any{"orderId": "o-1", "plannedDate": "next tuesday"},
	})
	require.Error(t, err)
	assert.Equal(t, DispositionFailed, result.Disposition)
}

func TestDispatch_InspectionReminder(t *testing.T) {
	d, st := testDispatcher(t)

	result, err := d.Dispatch(context.Background(), rule.Action{
		Kind:   rule.ActionInspectionReminder,
		Params: map[string]any{"station": "press-2"},
	})
	require.NoError(t, err)
	assert.Equal(t, DispositionApplied, result.Disposition)

	logs := st.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, "warning", logs[0].Level)
	assert.Contains(t, logs[0].Message, "press-2")
}

// =============================================================================
// Auto-Learning
// =============================================================================

func seedActuals(t *testing.T, st *store.MemoryStore, machine string, hours ...float64) {
	t.Helper()
	ctx := context.Background()
	for i, h := range hours {
		require.NoError(t, st.PutOrder(ctx, &order.Order{
			ID:          string(rune('a'+i)) + "-" + machine,
			Machine:     machine,
			ActualHours: h,
			Status:      order.StatusShipped,
		}))
	}
}

func TestDispatch_AutoLearning_Updates(t *testing.T) {
	ctx := context.Background()
	d, st := testDispatcher(t)
	seedActuals(t, st, "cnc-1", 4, 5, 6)

	result, err := d.Dispatch(ctx, rule.Action{Kind: rule.ActionAutoLearningUpdate})
	require.NoError(t, err)
	assert.Equal(t, DispositionApplied, result.Disposition)

	std, err := st.GetStandard(ctx, "cnc-1")
	require.NoError(t, err)
	assert.InDelta(t, 5.0, std.Hours, 0.001, "plain mean below the trim threshold")
	assert.Equal(t, 3, std.SampleCount)
}

func TestDispatch_AutoLearning_TrimsOutliers(t *testing.T) {
	ctx := context.Background()
	d, st := testDispatcher(t)
	// Five samples: the 1h and 20h extremes are dropped.
	seedActuals(t, st, "cnc-1", 1, 4, 5, 6, 20)

	result, err := d.Dispatch(ctx, rule.Action{Kind: rule.ActionAutoLearningUpdate})
	require.NoError(t, err)
	assert.Equal(t, DispositionApplied, result.Disposition)

	std, err := st.GetStandard(ctx, "cnc-1")
	require.NoError(t, err)
	assert.InDelta(t, 5.0, std.Hours, 0.001)
}

func TestDispatch_AutoLearning_TooFewSamples(t *testing.T) {
	ctx := context.Background()
	d, st := testDispatcher(t)
	seedActuals(t, st, "cnc-1", 4, 5)

	result, err := d.Dispatch(ctx, rule.Action{Kind: rule.ActionAutoLearningUpdate})
	require.NoError(t, err)
	assert.Equal(t, DispositionNoop, result.Disposition)

	_, err = st.GetStandard(ctx, "cnc-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDispatch_AutoLearning_DryRun(t *testing.T) {
	ctx := context.Background()
	d, st := testDispatcher(t)
	seedActuals(t, st, "cnc-1", 4, 5, 6)

	result, err := d.Dispatch(ctx, rule.Action{
		Kind:   rule.ActionAutoLearningUpdate,
		Params: map[string]any{"dryRun": true},
	})
	require.NoError(t, err)
	assert.Equal(t, DispositionNoop, result.Disposition)
	assert.Contains(t, result.Message, "dry run")

	// Computed but never persisted.
	_, err = st.GetStandard(ctx, "cnc-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDispatch_AutoLearning_MachineFilter(t *testing.T) {
	ctx := context.Background()
	d, st := testDispatcher(t)
	seedActuals(t, st, "cnc-1", 4, 5, 6)
	seedActuals(t, st, "weld-3", 7, 8, 9)

	result, err := d.Dispatch(ctx, rule.Action{
		Kind:   rule.ActionAutoLearningUpdate,
		Params: map[string]any{"machine": "weld-3"},
	})
	require.NoError(t, err)
	assert.Equal(t, DispositionApplied, result.Disposition)

	_, err = st.GetStandard(ctx, "cnc-1")
	assert.ErrorIs(t, err, store.ErrNotFound, "filtered machine untouched")
	std, err := st.GetStandard(ctx, "weld-3")
	require.NoError(t, err)
	assert.InDelta(t, 8.0, std.Hours, 0.001)
}
