// Package order defines the production order model shared by the graph
// and rule engines.
//
// Orders originate in an external record store. The engines never mutate an
// Order in place - they read a Snapshot, compute, and hand write-backs to the
// store layer.
package order

import "time"

// DefaultDurationHours is the scheduling duration assumed for orders that
// carry no estimate.
const DefaultDurationHours = 8.0

// Status is an order's lifecycle stage.
type Status string

const (
	StatusPlanned      Status = "planned"
	StatusInProduction Status = "in_production"
	StatusQualityCheck Status = "quality_check"
	StatusReadyToShip  Status = "ready_to_ship"
	StatusShipped      Status = "shipped"
)

// ValidStatuses lists every lifecycle stage in progression order.
var ValidStatuses = []Status{
	StatusPlanned,
	StatusInProduction,
	StatusQualityCheck,
	StatusReadyToShip,
	StatusShipped,
}

// Valid reports whether s is a known lifecycle stage.
func (s Status) Valid() bool {
	for _, v := range ValidStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether s is the terminal stage. Dependencies are
// satisfied only by terminal orders.
func (s Status) Terminal() bool {
	return s == StatusShipped
}

// Order is a production work item.
//
// Dependencies holds the IDs of orders that must reach the terminal stage
// before this order may start. The dependency relation over all orders must
// stay acyclic; the store layer enforces that at the write boundary.
type Order struct {
	ID             string     `json:"id" yaml:"id"`
	Name           string     `json:"name,omitempty" yaml:"name,omitempty"`
	Dependencies   []string   `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	EstimatedHours float64    `json:"estimated_hours" yaml:"estimated_hours"`
	ActualHours    float64    `json:"actual_hours" yaml:"actual_hours"`
	Status         Status     `json:"status" yaml:"status"`
	PlannedDate    *time.Time `json:"planned_date,omitempty" yaml:"planned_date,omitempty"`
	Machine        string     `json:"machine,omitempty" yaml:"machine,omitempty"`
	OperatorName   string     `json:"operator_name,omitempty" yaml:"operator_name,omitempty"`
}

// Duration returns the scheduling duration in hours, falling back to
// DefaultDurationHours when no estimate is present.
func (o *Order) Duration() float64 {
	if o.EstimatedHours > 0 {
		return o.EstimatedHours
	}
	return DefaultDurationHours
}

// DependsOn reports whether o lists depID as a direct dependency.
func (o *Order) DependsOn(depID string) bool {
	for _, d := range o.Dependencies {
		if d == depID {
			return true
		}
	}
	return false
}

// Snapshot is a point-in-time view of the full order set, keyed by order ID.
//
// A Snapshot is read-only by convention: engines traverse it but never
// mutate the contained orders.
type Snapshot map[string]*Order

// NewSnapshot builds a Snapshot from an order slice. Later duplicates of the
// same ID win, matching the store's last-write semantics.
func NewSnapshot(orders []*Order) Snapshot {
	snap := make(Snapshot, len(orders))
	for _, o := range orders {
		snap[o.ID] = o
	}
	return snap
}

// Blocked reports whether o cannot start because at least one dependency has
// not reached the terminal stage. Orders already terminal are never blocked.
// Dangling dependency IDs count as blocking: a reference to an unknown order
// is treated as unsatisfied, not ignored.
func (s Snapshot) Blocked(o *Order) bool {
	if o.Status.Terminal() {
		return false
	}
	for _, depID := range o.Dependencies {
		dep, ok := s[depID]
		if !ok || !dep.Status.Terminal() {
			return true
		}
	}
	return false
}

// Inspection records when a station was last inspected. Consumed by the
// inspection_overdue trigger.
type Inspection struct {
	Station  string    `json:"station" yaml:"station"`
	LastDone time.Time `json:"last_done" yaml:"last_done"`
}
