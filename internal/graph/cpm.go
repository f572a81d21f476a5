package graph

import (
	"math"
	"sort"

	"github.com/plantops/shopcore/internal/order"
)

// SlackEpsilon is the absolute tolerance used when classifying zero-slack
// orders. Durations may be non-integer, so exact float comparison would
// misclassify orders on the critical path.
const SlackEpsilon = 0.01

// Entry holds the computed schedule values for one order. All values are
// hours from project start.
type Entry struct {
	EarliestStart float64 `json:"earliest_start"`
	LatestStart   float64 `json:"latest_start"`
	Slack         float64 `json:"slack"`
	Critical      bool    `json:"critical"`
}

// Schedule is the result of one Critical Path Method computation.
type Schedule struct {
	// Entries maps order ID to its computed schedule values.
	Entries map[string]Entry `json:"entries"`

	// CriticalPath lists the zero-slack orders in dependency order
	// (ascending earliest start, ties broken by ID).
	CriticalPath []string `json:"critical_path"`

	// Horizon is the project end: the maximum earliest finish over all orders.
	Horizon float64 `json:"horizon"`
}

// visit marks a node's state during the memoized passes.
type visit int

const (
	unvisited visit = iota
	inProgress
	done
)

// cpmState carries the memo tables for one ComputeSchedule call. State is
// per-call: the engine itself is stateless between invocations.
type cpmState struct {
	snap       order.Snapshot
	successors map[string][]string
	earliest   map[string]float64
	latest     map[string]float64
	fwdState   map[string]visit
	bwdState   map[string]visit
	budget     int
}

// ComputeSchedule runs the Critical Path Method over the snapshot.
//
// Forward pass: earliestStart(o) = max over dependencies d of
// earliestStart(d) + duration(d), 0 with no dependencies. Backward pass:
// latestStart over the inverted (successor) relation, anchored at the
// project horizon. Slack = latestStart - earliestStart.
//
// Fails fast with ErrCodeNotADAG if the snapshot contains a cycle - a cycle
// should have been rejected at the write boundary, but the computation must
// surface malformed data rather than recurse forever or return silently
// wrong numbers. Callers must treat an error as "schedule unavailable".
//
// Dependency IDs not present in the snapshot contribute nothing to the
// forward pass; the write boundary is responsible for refusing dangling
// references in the first place.
func ComputeSchedule(snap order.Snapshot) (*Schedule, error) {
	st := &cpmState{
		snap:       snap,
		successors: invertDependencies(snap),
		earliest:   make(map[string]float64, len(snap)),
		latest:     make(map[string]float64, len(snap)),
		fwdState:   make(map[string]visit, len(snap)),
		bwdState:   make(map[string]visit, len(snap)),
		budget:     DefaultDepthBudget,
	}

	// Forward pass over every order. Also establishes that the graph is a DAG.
	for id := range snap {
		if _, err := st.earliestStart(id, 0); err != nil {
			return nil, err
		}
	}

	// Project horizon: latest earliest finish over all orders.
	var horizon float64
	for id, o := range snap {
		if finish := st.earliest[id] + o.Duration(); finish > horizon {
			horizon = finish
		}
	}

	// Backward pass. The successor relation is the inverse of a DAG, so it is
	// acyclic too; the visit state is kept as a guard regardless.
	for id := range snap {
		if _, err := st.latestStart(id, horizon, 0); err != nil {
			return nil, err
		}
	}

	entries := make(map[string]Entry, len(snap))
	var critical []string
	for id := range snap {
		slack := st.latest[id] - st.earliest[id]
		e := Entry{
			EarliestStart: st.earliest[id],
			LatestStart:   st.latest[id],
			Slack:         slack,
			Critical:      math.Abs(slack) < SlackEpsilon,
		}
		entries[id] = e
		if e.Critical {
			critical = append(critical, id)
		}
	}

	sort.Slice(critical, func(i, j int) bool {
		ei, ej := entries[critical[i]].EarliestStart, entries[critical[j]].EarliestStart
		if ei != ej {
			return ei < ej
		}
		return critical[i] < critical[j]
	})

	return &Schedule{
		Entries:      entries,
		CriticalPath: critical,
		Horizon:      horizon,
	}, nil
}

// earliestStart computes the memoized forward-pass value for one order.
func (st *cpmState) earliestStart(id string, depth int) (float64, error) {
	if depth > st.budget {
		return 0, NewDepthExceededError(id, st.budget)
	}

	switch st.fwdState[id] {
	case done:
		return st.earliest[id], nil
	case inProgress:
		// Revisiting a node on the current path means the stored data has a
		// cycle that slipped past write-time validation.
		return 0, NewNotADAGError(id)
	}
	st.fwdState[id] = inProgress

	o, ok := st.snap[id]
	if !ok {
		// Dangling reference: contributes nothing to the forward pass.
		st.fwdState[id] = done
		st.earliest[id] = 0
		return 0, nil
	}

	var start float64
	for _, depID := range o.Dependencies {
		dep, ok := st.snap[depID]
		if !ok {
			continue
		}
		depStart, err := st.earliestStart(depID, depth+1)
		if err != nil {
			return 0, err
		}
		if finish := depStart + dep.Duration(); finish > start {
			start = finish
		}
	}

	st.fwdState[id] = done
	st.earliest[id] = start
	return start, nil
}

// latestStart computes the memoized backward-pass value for one order.
func (st *cpmState) latestStart(id string, horizon float64, depth int) (float64, error) {
	if depth > st.budget {
		return 0, NewDepthExceededError(id, st.budget)
	}

	switch st.bwdState[id] {
	case done:
		return st.latest[id], nil
	case inProgress:
		return 0, NewNotADAGError(id)
	}
	st.bwdState[id] = inProgress

	o := st.snap[id]
	succs := st.successors[id]

	var start float64
	if len(succs) == 0 {
		// No order depends on this one: it may start as late as the horizon
		// allows.
		start = horizon - o.Duration()
	} else {
		start = math.Inf(1)
		for _, succID := range succs {
			succStart, err := st.latestStart(succID, horizon, depth+1)
			if err != nil {
				return 0, err
			}
			if candidate := succStart - o.Duration(); candidate < start {
				start = candidate
			}
		}
	}

	st.bwdState[id] = done
	st.latest[id] = start
	return start, nil
}

// invertDependencies builds the successor relation: S is a successor of D
// when D appears in S's dependency list. Unknown dependency IDs are skipped.
func invertDependencies(snap order.Snapshot) map[string][]string {
	succ := make(map[string][]string, len(snap))
	for id, o := range snap {
		for _, depID := range o.Dependencies {
			if _, ok := snap[depID]; !ok {
				continue
			}
			succ[depID] = append(succ[depID], id)
		}
	}
	// Deterministic order for reproducible traversal and tests.
	for _, s := range succ {
		sort.Strings(s)
	}
	return succ
}
