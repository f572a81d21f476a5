package graph

import (
	"log/slog"

	"github.com/plantops/shopcore/internal/metrics"
	"github.com/plantops/shopcore/internal/order"
)

// DefaultDepthBudget bounds graph recursion. Production dependency chains are
// shallow; anything approaching this depth indicates corrupt data.
const DefaultDepthBudget = 10000

// WouldCreateCycle reports whether adding the edge orderID → newDepID
// (orderID depends on newDepID) would make the dependency graph cyclic.
//
// The check is a depth-first reachability search: starting from newDepID and
// following its existing dependency edges, can we reach orderID? If yes, the
// new edge closes a cycle. The direct case orderID == newDepID is always a
// cycle.
//
// A visited set keyed by order ID guarantees termination on graphs with
// shared sub-dependencies, and also on graphs that already (incorrectly)
// contain a cycle - the search must not trust write-time validation.
//
// A newDepID not present in the snapshot creates no cycle (nothing to
// traverse). Whether dangling references are acceptable is the write
// boundary's decision, not this function's; the store rejects them.
func WouldCreateCycle(snap order.Snapshot, orderID, newDepID string) bool {
	if orderID == newDepID {
		return true
	}

	visited := make(map[string]bool)
	return reaches(snap, newDepID, orderID, visited)
}

// reaches reports whether target is reachable from start along dependency
// edges. Unknown IDs terminate the branch.
func reaches(snap order.Snapshot, start, target string, visited map[string]bool) bool {
	if start == target {
		return true
	}
	if visited[start] {
		return false
	}
	visited[start] = true

	o, ok := snap[start]
	if !ok {
		return false
	}
	for _, depID := range o.Dependencies {
		if reaches(snap, depID, target, visited) {
			return true
		}
	}
	return false
}

// CertifyEdge validates a candidate dependency edge for commit.
//
// It rejects, in order: unknown endpoints (dangling references are refused at
// the write boundary), duplicate edges, and edges that would close a cycle.
// A nil return certifies the edge as legal against the given snapshot; the
// store must re-certify inside its write transaction so concurrent inserts
// on the same graph cannot jointly form a cycle.
func CertifyEdge(snap order.Snapshot, orderID, newDepID string) error {
	o, ok := snap[orderID]
	if !ok {
		return &GraphError{Code: ErrCodeUnknownOrder, Message: "order not found", OrderID: orderID}
	}
	if _, ok := snap[newDepID]; !ok {
		return &GraphError{Code: ErrCodeUnknownOrder, Message: "dependency target not found", OrderID: newDepID}
	}
	if o.DependsOn(newDepID) {
		// Re-adding an existing edge is a no-op, not an error.
		return nil
	}
	if WouldCreateCycle(snap, orderID, newDepID) {
		slog.Warn("dependency edge rejected: would create cycle",
			"order_id", orderID,
			"dependency_id", newDepID,
		)
		metrics.CycleRejections.Inc()
		return NewNotADAGError(orderID)
	}
	return nil
}
