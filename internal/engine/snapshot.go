package engine

import (
	"context"
	"errors"

	"github.com/plantops/shopcore/internal/order"
	"github.com/plantops/shopcore/internal/store"
)

// Snapshot is the point-in-time operational view that trigger conditions
// evaluate against. It is assembled once per pass; every rule in the pass
// sees the same data.
type Snapshot struct {
	// Orders is the full order set keyed by ID.
	Orders order.Snapshot

	// Inspections holds the last-done record per station.
	Inspections []order.Inspection

	// Standards holds the learned per-machine duration standards, keyed by
	// machine name.
	Standards map[string]store.Standard

	// CapacityHours is the total production capacity available over the
	// planning horizon, supplied by the host. Zero means unconfigured; the
	// capacity_shortage trigger then sees the entire demand as shortage.
	CapacityHours float64
}

// DemandHours sums the scheduling duration of every non-terminal order.
func (s *Snapshot) DemandHours() float64 {
	var total float64
	for _, o := range s.Orders {
		if !o.Status.Terminal() {
			total += o.Duration()
		}
	}
	return total
}

func (e *Engine) buildSnapshot(ctx context.Context) (*Snapshot, error) {
	orders, err := e.store.OrderSnapshot(ctx)
	if err != nil {
		return nil, NewSnapshotError(err)
	}
	inspections, err := e.store.ListInspections(ctx)
	if err != nil {
		return nil, NewSnapshotError(err)
	}
	standards := make(map[string]store.Standard)
	for _, o := range orders {
		if o.Machine == "" {
			continue
		}
		if _, seen := standards[o.Machine]; seen {
			continue
		}
		std, err := e.store.GetStandard(ctx, o.Machine)
		if err == nil {
			standards[o.Machine] = *std
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, NewSnapshotError(err)
		}
	}
	return &Snapshot{
		Orders:        orders,
		Inspections:   inspections,
		Standards:     standards,
		CapacityHours: e.capacityHours,
	}, nil
}
