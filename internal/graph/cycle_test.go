package graph

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantops/shopcore/internal/order"
)

func snapOf(orders ...*order.Order) order.Snapshot {
	return order.NewSnapshot(orders)
}

// =============================================================================
// WouldCreateCycle Unit Tests
// =============================================================================

func TestWouldCreateCycle_SelfDependency(t *testing.T) {
	snap := snapOf(&order.Order{ID: "a"})

	assert.True(t, WouldCreateCycle(snap, "a", "a"), "self-dependency is always a cycle")
}

func TestWouldCreateCycle_SelfDependency_UnknownOrder(t *testing.T) {
	snap := snapOf()

	// Holds even when the order does not exist in the snapshot.
	assert.True(t, WouldCreateCycle(snap, "ghost", "ghost"))
}

func TestWouldCreateCycle_DirectBackEdge(t *testing.T) {
	snap := snapOf(
		&order.Order{ID: "a"},
		&order.Order{ID: "b", Dependencies: []string{"a"}},
	)

	// b already depends on a; a -> b would close the loop.
	assert.True(t, WouldCreateCycle(snap, "a", "b"))
}

func TestWouldCreateCycle_TransitiveBackEdge(t *testing.T) {
	snap := snapOf(
		&order.Order{ID: "a"},
		&order.Order{ID: "b", Dependencies: []string{"a"}},
		&order.Order{ID: "c", Dependencies: []string{"b"}},
	)

	assert.True(t, WouldCreateCycle(snap, "a", "c"), "a -> c closes a -> b -> c back to a")
	assert.False(t, WouldCreateCycle(snap, "c", "a"), "c already transitively depends on a; another edge is redundant, not cyclic")
}

func TestWouldCreateCycle_SharedSubDependencies(t *testing.T) {
	// Diamond: b and c both depend on a; d depends on b and c. The visited
	// set must keep the search from re-walking a's subtree.
	snap := snapOf(
		&order.Order{ID: "a"},
		&order.Order{ID: "b", Dependencies: []string{"a"}},
		&order.Order{ID: "c", Dependencies: []string{"a"}},
		&order.Order{ID: "d", Dependencies: []string{"b", "c"}},
	)

	assert.False(t, WouldCreateCycle(snap, "d", "a"))
	assert.True(t, WouldCreateCycle(snap, "a", "d"))
}

func TestWouldCreateCycle_UnknownDependency(t *testing.T) {
	snap := snapOf(&order.Order{ID: "a"})

	// Nothing to traverse from an unknown target.
	assert.False(t, WouldCreateCycle(snap, "a", "ghost"))
}

func TestWouldCreateCycle_TerminatesOnExistingCycle(t *testing.T) {
	// Malformed snapshot that already contains a cycle. The search must
	// terminate rather than trust write-time validation.
	snap := snapOf(
		&order.Order{ID: "a", Dependencies: []string{"b"}},
		&order.Order{ID: "b", Dependencies: []string{"a"}},
		&order.Order{ID: "x"},
	)

	assert.False(t, WouldCreateCycle(snap, "x", "a"), "x is not reachable from the existing cycle")
}

// =============================================================================
// CertifyEdge Unit Tests
// =============================================================================

func TestCertifyEdge_Accepts(t *testing.T) {
	snap := snapOf(
		&order.Order{ID: "a"},
		&order.Order{ID: "b"},
	)

	require.NoError(t, CertifyEdge(snap, "b", "a"))
}

func TestCertifyEdge_RejectsUnknownEndpoints(t *testing.T) {
	snap := snapOf(&order.Order{ID: "a"})

	err := CertifyEdge(snap, "ghost", "a")
	require.Error(t, err)
	var ge *GraphError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, ErrCodeUnknownOrder, ge.Code)

	err = CertifyEdge(snap, "a", "ghost")
	require.Error(t, err)
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, ErrCodeUnknownOrder, ge.Code)
	assert.Equal(t, "ghost", ge.OrderID)
}

func TestCertifyEdge_DuplicateEdgeIsNoop(t *testing.T) {
	snap := snapOf(
		&order.Order{ID: "a"},
		&order.Order{ID: "b", Dependencies: []string{"a"}},
	)

	assert.NoError(t, CertifyEdge(snap, "b", "a"))
}

func TestCertifyEdge_RejectsCycle(t *testing.T) {
	snap := snapOf(
		&order.Order{ID: "a"},
		&order.Order{ID: "b", Dependencies: []string{"a"}},
	)

	err := CertifyEdge(snap, "a", "b")
	require.Error(t, err)
	assert.True(t, IsNotADAG(err))
}

// =============================================================================
// Acyclicity Property Test
// =============================================================================

// TestCertifyEdge_RandomSequencesStayAcyclic commits random candidate edges
// through CertifyEdge and asserts the resulting graph never contains a
// cycle, checked independently by a full DFS after every commit.
func TestCertifyEdge_RandomSequencesStayAcyclic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 50; trial++ {
		const n = 12
		snap := make(order.Snapshot, n)
		ids := make([]string, n)
		for i := 0; i < n; i++ {
			id := fmt.Sprintf("ord-%d", i)
			ids[i] = id
			snap[id] = &order.Order{ID: id}
		}

		for step := 0; step < 60; step++ {
			from := ids[rng.Intn(n)]
			to := ids[rng.Intn(n)]
			if err := CertifyEdge(snap, from, to); err != nil {
				continue
			}
			if !snap[from].DependsOn(to) {
				snap[from].Dependencies = append(snap[from].Dependencies, to)
			}
			require.False(t, containsCycle(snap),
				"trial %d step %d: committed edge %s -> %s formed a cycle", trial, step, from, to)
		}
	}
}

// containsCycle is an independent three-color DFS over the whole snapshot.
func containsCycle(snap order.Snapshot) bool {
	state := make(map[string]visit, len(snap))
	var walk func(id string) bool
	walk = func(id string) bool {
		switch state[id] {
		case done:
			return false
		case inProgress:
			return true
		}
		state[id] = inProgress
		if o, ok := snap[id]; ok {
			for _, dep := range o.Dependencies {
				if walk(dep) {
					return true
				}
			}
		}
		state[id] = done
		return false
	}
	for id := range snap {
		if walk(id) {
			return true
		}
	}
	return false
}
