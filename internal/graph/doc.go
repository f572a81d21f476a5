// Package graph implements the dependency graph and critical-path engine.
//
// The engine is a pure function of an order snapshot. It certifies edge
// insertions against cycles and computes the Critical Path Method schedule:
// earliest start, latest start and slack per order, plus the ordered set of
// zero-slack orders that form the critical path.
//
// ARCHITECTURE:
//
// Write boundary vs. computation:
// WouldCreateCycle certifies a single candidate edge before the store commits
// it. ComputeSchedule consumes the committed graph. Both are side-effect-free;
// all mutation lives in the store layer.
//
// Defensive traversal:
// The snapshot originates in an external, possibly stale store, so validation
// at write time cannot be trusted to have run. Every traversal carries an
// explicit visited set and a depth budget. A cycle that slipped into stored
// data surfaces as ErrCodeNotADAG instead of a hang; the caller must treat
// the schedule as unavailable, never as zero slack.
//
// Numeric tolerance:
// Durations may be non-integer, so slack is compared against SlackEpsilon
// rather than exact zero when classifying critical orders.
package graph
