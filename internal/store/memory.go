package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/plantops/shopcore/internal/graph"
	"github.com/plantops/shopcore/internal/order"
	"github.com/plantops/shopcore/internal/rule"
)

// MemoryStore is a mutex-guarded in-memory Store used by tests and by the
// CLI's dry-run paths. Semantics match the SQLite implementation, including
// the transactional guarantees: every method holds the store lock for its
// full read-check-write sequence.
type MemoryStore struct {
	mu          sync.Mutex
	orders      map[string]*order.Order
	rules       map[string]*rule.Rule
	claims      map[string]time.Time
	executions  []Execution
	logs        []LogEntry
	inspections map[string]time.Time
	standards   map[string]Standard
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:      make(map[string]*order.Order),
		rules:       make(map[string]*rule.Rule),
		claims:      make(map[string]time.Time),
		inspections: make(map[string]time.Time),
		standards:   make(map[string]Standard),
	}
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) PutOrder(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, hadPrevious := s.orders[o.ID]
	stored := cloneOrder(o)
	stored.Dependencies = nil
	s.orders[o.ID] = stored

	snap := s.snapshotLocked()
	for _, depID := range o.Dependencies {
		if err := certifyAndTrack(snap, o.ID, depID); err != nil {
			// Roll the write back so a rejected edge leaves the store as it was.
			if hadPrevious {
				s.orders[o.ID] = previous
			} else {
				delete(s.orders, o.ID)
			}
			return err
		}
		stored.Dependencies = append(stored.Dependencies, depID)
	}
	return nil
}

func (s *MemoryStore) GetOrder(_ context.Context, id string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (s *MemoryStore) OrderSnapshot(_ context.Context) (order.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), nil
}

// snapshotLocked deep-copies the order set so callers can traverse it after
// the lock is released.
func (s *MemoryStore) snapshotLocked() order.Snapshot {
	snap := make(order.Snapshot, len(s.orders))
	for id, o := range s.orders {
		snap[id] = cloneOrder(o)
	}
	return snap
}

func (s *MemoryStore) UpdateOrderStatus(_ context.Context, id string, status order.Status) error {
	if !status.Valid() {
		return fmt.Errorf("unknown status %q", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return fmt.Errorf("update order %s: %w", id, ErrNotFound)
	}
	o.Status = status
	return nil
}

func (s *MemoryStore) AssignOperator(_ context.Context, id, operatorName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return fmt.Errorf("update order %s: %w", id, ErrNotFound)
	}
	o.OperatorName = operatorName
	return nil
}

func (s *MemoryStore) RescheduleOrder(_ context.Context, id string, planned time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return fmt.Errorf("update order %s: %w", id, ErrNotFound)
	}
	p := planned.UTC()
	o.PlannedDate = &p
	return nil
}

func (s *MemoryStore) AddDependency(_ context.Context, orderID, dependsOn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshotLocked()
	if err := graph.CertifyEdge(snap, orderID, dependsOn); err != nil {
		if graph.IsNotADAG(err) {
			return fmt.Errorf("%w: %s -> %s", ErrCycle, orderID, dependsOn)
		}
		return err
	}
	o := s.orders[orderID]
	if !o.DependsOn(dependsOn) {
		o.Dependencies = append(o.Dependencies, dependsOn)
		sort.Strings(o.Dependencies)
	}
	return nil
}

func (s *MemoryStore) RemoveDependency(_ context.Context, orderID, dependsOn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil
	}
	deps := o.Dependencies[:0]
	for _, d := range o.Dependencies {
		if d != dependsOn {
			deps = append(deps, d)
		}
	}
	o.Dependencies = deps
	return nil
}

func (s *MemoryStore) PutRule(_ context.Context, r *rule.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *r
	if existing, ok := s.rules[r.ID]; ok {
		// Bookkeeping survives definition updates, as in sqlite.
		stored.ExecutionCount = existing.ExecutionCount
		stored.LastExecuted = existing.LastExecuted
	}
	s.rules[r.ID] = &stored
	return nil
}

func (s *MemoryStore) GetRule(_ context.Context, id string) (*rule.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *r
	return &out, nil
}

func (s *MemoryStore) ListRules(_ context.Context) ([]rule.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listRulesLocked(false), nil
}

func (s *MemoryStore) ListEnabledRules(_ context.Context) ([]rule.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listRulesLocked(true), nil
}

func (s *MemoryStore) listRulesLocked(enabledOnly bool) []rule.Rule {
	out := make([]rule.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		if enabledOnly && !r.Enabled {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) RecordFiring(_ context.Context, ruleID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[ruleID]
	if !ok {
		return fmt.Errorf("record firing for rule %s: %w", ruleID, ErrNotFound)
	}
	r.ExecutionCount++
	t := at.UTC()
	r.LastExecuted = &t
	return nil
}

func (s *MemoryStore) ClaimDebounce(_ context.Context, key string, now time.Time, window time.Duration) (bool, *time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prev *time.Time
	if last, ok := s.claims[key]; ok {
		t := last
		prev = &t
		if now.Sub(last) < window {
			return false, prev, nil
		}
	}
	s.claims[key] = now
	return true, prev, nil
}

func (s *MemoryStore) ReleaseDebounce(_ context.Context, key string, claimedAt time.Time, prev *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.claims[key]
	if !ok || !current.Equal(claimedAt) {
		return nil
	}
	if prev == nil {
		delete(s.claims, key)
	} else {
		s.claims[key] = *prev
	}
	return nil
}

func (s *MemoryStore) AppendExecution(_ context.Context, ex Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.executions {
		if existing.ID == ex.ID {
			return nil
		}
	}
	s.executions = append(s.executions, ex)
	return nil
}

func (s *MemoryStore) ListExecutions(_ context.Context, ruleID string, limit int) ([]Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Execution
	for _, ex := range s.executions {
		if ruleID == "" || ex.RuleID == ruleID {
			out = append(out, ex)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecutedAt.After(out[j].ExecutedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) AppendLog(_ context.Context, e LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, e)
	return nil
}

// Logs returns all audit entries in append order. Test helper.
func (s *MemoryStore) Logs() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LogEntry, len(s.logs))
	copy(out, s.logs)
	return out
}

func (s *MemoryStore) PutInspection(_ context.Context, ins order.Inspection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inspections[ins.Station] = ins.LastDone.UTC()
	return nil
}

func (s *MemoryStore) ListInspections(_ context.Context) ([]order.Inspection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]order.Inspection, 0, len(s.inspections))
	for station, lastDone := range s.inspections {
		out = append(out, order.Inspection{Station: station, LastDone: lastDone})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Station < out[j].Station })
	return out, nil
}

func (s *MemoryStore) GetStandard(_ context.Context, machine string) (*Standard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.standards[machine]
	if !ok {
		return nil, ErrNotFound
	}
	return &st, nil
}

func (s *MemoryStore) UpsertStandard(_ context.Context, st Standard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.standards[st.Machine] = st
	return nil
}

func cloneOrder(o *order.Order) *order.Order {
	out := *o
	if o.Dependencies != nil {
		out.Dependencies = append([]string(nil), o.Dependencies...)
	}
	if o.PlannedDate != nil {
		t := *o.PlannedDate
		out.PlannedDate = &t
	}
	return &out
}
