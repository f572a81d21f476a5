package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantops/shopcore/internal/order"
	"github.com/plantops/shopcore/internal/store"
)

var evalNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func snapWith(orders ...*order.Order) *Snapshot {
	return &Snapshot{Orders: order.NewSnapshot(orders)}
}

func TestEvalCapacityShortage(t *testing.T) {
	snap := snapWith(
		&order.Order{ID: "a", EstimatedHours: 30, Status: order.StatusPlanned},
		&order.Order{ID: "b", EstimatedHours: 30, Status: order.StatusInProduction},
		&order.Order{ID: "done", EstimatedHours: 100, Status: order.StatusShipped},
	)
	snap.CapacityHours = 40

	// Demand 60h against capacity 40h: shortage 20h. Shipped work is not
	// demand.
	fired, msg, err := evalCapacityShortage(snap, map[string]any{"threshold": 10.0}, evalNow)
	require.NoError(t, err)
	assert.True(t, fired)
	assert.Contains(t, msg, "60.0h")

	fired, _, err = evalCapacityShortage(snap, map[string]any{"threshold": 25.0}, evalNow)
	require.NoError(t, err)
	assert.False(t, fired, "shortage of exactly the threshold does not fire")

	_, _, err = evalCapacityShortage(snap, map[string]any{}, evalNow)
	assert.Error(t, err, "missing threshold is a condition error")
}

func TestEvalCapacityShortage_ZeroCapacity(t *testing.T) {
	// Unconfigured capacity: the whole demand is shortage. No division is
	// involved, so zero capacity is a legal input, not an error.
	snap := snapWith(&order.Order{ID: "a", EstimatedHours: 5, Status: order.StatusPlanned})

	fired, _, err := evalCapacityShortage(snap, map[string]any{"threshold": 1.0}, evalNow)
	require.NoError(t, err)
	assert.True(t, fired)
}

func TestEvalLowEfficiency(t *testing.T) {
	snap := snapWith(
		// Ratios 0.5 and 0.7: average 0.6.
		&order.Order{ID: "a", EstimatedHours: 10, ActualHours: 5},
		&order.Order{ID: "b", EstimatedHours: 10, ActualHours: 7},
		// No actuals yet: excluded from the average.
		&order.Order{ID: "c", EstimatedHours: 10},
	)

	fired, _, err := evalLowEfficiency(snap, map[string]any{"threshold": 70.0}, evalNow)
	require.NoError(t, err)
	assert.True(t, fired, "0.60 is below 70%")

	fired, _, err = evalLowEfficiency(snap, map[string]any{"threshold": 50.0}, evalNow)
	require.NoError(t, err)
	assert.False(t, fired)
}

func TestEvalLowEfficiency_NoSamples(t *testing.T) {
	snap := snapWith(&order.Order{ID: "a", EstimatedHours: 10})

	fired, msg, err := evalLowEfficiency(snap, map[string]any{"threshold": 70.0}, evalNow)
	require.NoError(t, err)
	assert.False(t, fired, "no completion data never fires")
	assert.Contains(t, msg, "no orders")
}

func TestEvalOrderDelay(t *testing.T) {
	past := evalNow.Add(-48 * time.Hour)
	future := evalNow.Add(48 * time.Hour)
	snap := snapWith(
		&order.Order{ID: "late-1", PlannedDate: &past, Status: order.StatusPlanned},
		&order.Order{ID: "late-2", PlannedDate: &past, Status: order.StatusInProduction},
		&order.Order{ID: "on-time", PlannedDate: &future, Status: order.StatusPlanned},
		&order.Order{ID: "done-late", PlannedDate: &past, Status: order.StatusShipped},
		&order.Order{ID: "no-date", Status: order.StatusPlanned},
	)

	fired, msg, err := evalOrderDelay(snap, map[string]any{"minDelayedOrders": 2}, evalNow)
	require.NoError(t, err)
	assert.True(t, fired, "shipped and undated orders are not delayed; two remain")
	assert.Contains(t, msg, "late-1")

	fired, _, err = evalOrderDelay(snap, map[string]any{"minDelayedOrders": 3}, evalNow)
	require.NoError(t, err)
	assert.False(t, fired)
}

func TestEvalMissingOperator(t *testing.T) {
	snap := snapWith(
		// cnc-1 has active work with nobody assigned.
		&order.Order{ID: "a", Machine: "cnc-1", Status: order.StatusPlanned},
		// weld-3 is covered by one staffed order.
		&order.Order{ID: "b", Machine: "weld-3", Status: order.StatusPlanned},
		&order.Order{ID: "c", Machine: "weld-3", OperatorName: "kim", Status: order.StatusInProduction},
		// Machine with only shipped work does not count.
		&order.Order{ID: "d", Machine: "paint-1", Status: order.StatusShipped},
	)

	fired, msg, err := evalMissingOperator(snap, map[string]any{"threshold": 1}, evalNow)
	require.NoError(t, err)
	assert.True(t, fired)
	assert.Contains(t, msg, "cnc-1")

	fired, _, err = evalMissingOperator(snap, map[string]any{"threshold": 2}, evalNow)
	require.NoError(t, err)
	assert.False(t, fired)
}

func TestEvalDependencyBlocked(t *testing.T) {
	snap := snapWith(
		&order.Order{ID: "y", Status: order.StatusPlanned},
		&order.Order{ID: "x", Status: order.StatusPlanned, Dependencies: []string{"y"}},
		&order.Order{ID: "free", Status: order.StatusPlanned},
	)

	fired, msg, err := evalDependencyBlocked(snap, map[string]any{"threshold": 1}, evalNow)
	require.NoError(t, err)
	assert.True(t, fired)
	assert.Contains(t, msg, "x")

	// Shipping the dependency unblocks x.
	snap.Orders["y"].Status = order.StatusShipped
	fired, _, err = evalDependencyBlocked(snap, map[string]any{"threshold": 1}, evalNow)
	require.NoError(t, err)
	assert.False(t, fired)
}

func TestEvalDependencyBlocked_DanglingDependencyBlocks(t *testing.T) {
	snap := snapWith(
		&order.Order{ID: "x", Status: order.StatusPlanned, Dependencies: []string{"ghost"}},
	)

	fired, _, err := evalDependencyBlocked(snap, map[string]any{"threshold": 1}, evalNow)
	require.NoError(t, err)
	assert.True(t, fired, "a reference to an unknown order is unsatisfied, not ignored")
}

func TestEvalInspectionOverdue(t *testing.T) {
	snap := snapWith()
	snap.Inspections = []order.Inspection{
		{Station: "press-2", LastDone: evalNow.Add(-40 * 24 * time.Hour)},
		{Station: "cnc-1", LastDone: evalNow.Add(-5 * 24 * time.Hour)},
	}

	fired, msg, err := evalInspectionOverdue(snap, map[string]any{"daysOverdue": 30.0}, evalNow)
	require.NoError(t, err)
	assert.True(t, fired)
	assert.Contains(t, msg, "press-2")

	// Station filter restricted to the fresh station.
	fired, _, err = evalInspectionOverdue(snap, map[string]any{"daysOverdue": 30.0, "station": "cnc-1"}, evalNow)
	require.NoError(t, err)
	assert.False(t, fired)
}

func TestEvalInspectionOverdue_NeverInspected(t *testing.T) {
	snap := snapWith()

	fired, msg, err := evalInspectionOverdue(snap, map[string]any{"daysOverdue": 30.0, "station": "new-rig"}, evalNow)
	require.NoError(t, err)
	assert.True(t, fired, "a filtered station with no record at all is overdue")
	assert.Contains(t, msg, "new-rig")

	// Without a filter, an empty inspection list never fires.
	fired, _, err = evalInspectionOverdue(snap, map[string]any{"daysOverdue": 30.0}, evalNow)
	require.NoError(t, err)
	assert.False(t, fired)
}

func TestEvalStandardDeviation(t *testing.T) {
	snap := snapWith(
		// Learned standard 4h; actuals 5h and 6h deviate 25% and 50%.
		&order.Order{ID: "a", Machine: "cnc-1", EstimatedHours: 4, ActualHours: 5},
		&order.Order{ID: "b", Machine: "cnc-1", EstimatedHours: 4, ActualHours: 6},
		// No standard for this machine: falls back to the order's estimate.
		&order.Order{ID: "c", Machine: "weld-3", EstimatedHours: 10, ActualHours: 10},
	)
	snap.Standards = map[string]store.Standard{
		"cnc-1": {Machine: "cnc-1", Hours: 4},
	}

	// Mean deviation (25 + 50 + 0) / 3 = 25%.
	fired, _, err := evalStandardDeviation(snap, map[string]any{"minSamples": 3, "minDeviation": 20.0}, evalNow)
	require.NoError(t, err)
	assert.True(t, fired)

	fired, _, err = evalStandardDeviation(snap, map[string]any{"minSamples": 3, "minDeviation": 30.0}, evalNow)
	require.NoError(t, err)
	assert.False(t, fired)

	fired, msg, err := evalStandardDeviation(snap, map[string]any{"minSamples": 5, "minDeviation": 10.0}, evalNow)
	require.NoError(t, err)
	assert.False(t, fired, "too few samples never fires")
	assert.Contains(t, msg, "below minimum")
}
