package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/plantops/shopcore/internal/graph"
	"github.com/plantops/shopcore/internal/order"
	"github.com/plantops/shopcore/internal/rule"
)

// PutOrder upserts an order row and replaces its dependency edges.
// Every edge is re-certified against the graph inside the transaction;
// an edge that would close a cycle rejects the whole write with ErrCycle.
func (s *SQLiteStore) PutOrder(ctx context.Context, o *order.Order) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var planned any
		if o.PlannedDate != nil {
			planned = o.PlannedDate.Unix()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (id, name, estimated_hours, actual_hours, status, planned_date, machine, operator_name)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				estimated_hours = excluded.estimated_hours,
				actual_hours = excluded.actual_hours,
				status = excluded.status,
				planned_date = excluded.planned_date,
				machine = excluded.machine,
				operator_name = excluded.operator_name
		`, o.ID, o.Name, o.EstimatedHours, o.ActualHours, string(o.Status), planned, o.Machine, o.OperatorName)
		if err != nil {
			return fmt.Errorf("write order %s: %w", o.ID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM order_dependencies WHERE order_id = ?`, o.ID); err != nil {
			return fmt.Errorf("clear dependencies for %s: %w", o.ID, err)
		}

		snap, err := snapshotInTx(ctx, tx)
		if err != nil {
			return err
		}
		// The fresh row carries no edges yet; certify each desired edge
		// against the graph as it grows.
		snap[o.ID].Dependencies = nil
		for _, depID := range o.Dependencies {
			if err := certifyAndTrack(snap, o.ID, depID); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO order_dependencies (order_id, depends_on) VALUES (?, ?)
				ON CONFLICT DO NOTHING
			`, o.ID, depID); err != nil {
				return fmt.Errorf("write dependency %s -> %s: %w", o.ID, depID, err)
			}
		}
		return nil
	})
}

// certifyAndTrack certifies one edge and, on success, records it in the
// in-memory snapshot so subsequent edges of the same write see it.
func certifyAndTrack(snap order.Snapshot, orderID, depID string) error {
	if err := graph.CertifyEdge(snap, orderID, depID); err != nil {
		if graph.IsNotADAG(err) {
			return fmt.Errorf("%w: %s -> %s", ErrCycle, orderID, depID)
		}
		return err
	}
	snap[orderID].Dependencies = append(snap[orderID].Dependencies, depID)
	return nil
}

// UpdateOrderStatus sets an order's lifecycle stage. Set-to-value, so the
// write is safe to retry.
func (s *SQLiteStore) UpdateOrderStatus(ctx context.Context, id string, status order.Status) error {
	if !status.Valid() {
		return fmt.Errorf("unknown status %q", status)
	}
	return s.execOrderUpdate(ctx, id, `UPDATE orders SET status = ? WHERE id = ?`, string(status), id)
}

// AssignOperator sets an order's operator. Safe to retry.
func (s *SQLiteStore) AssignOperator(ctx context.Context, id, operatorName string) error {
	return s.execOrderUpdate(ctx, id, `UPDATE orders SET operator_name = ? WHERE id = ?`, operatorName, id)
}

// RescheduleOrder sets an order's planned date. Safe to retry.
func (s *SQLiteStore) RescheduleOrder(ctx context.Context, id string, planned time.Time) error {
	return s.execOrderUpdate(ctx, id, `UPDATE orders SET planned_date = ? WHERE id = ?`, planned.Unix(), id)
}

func (s *SQLiteStore) execOrderUpdate(ctx context.Context, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update order %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("update order %s: %w", id, ErrNotFound)
	}
	return nil
}

// AddDependency inserts the edge orderID -> dependsOn after re-certifying
// acyclicity against the current graph, all inside one write transaction.
// Two concurrent inserts that would jointly form a cycle therefore cannot
// both commit. Returns ErrCycle on rejection.
func (s *SQLiteStore) AddDependency(ctx context.Context, orderID, dependsOn string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		snap, err := snapshotInTx(ctx, tx)
		if err != nil {
			return err
		}
		if err := graph.CertifyEdge(snap, orderID, dependsOn); err != nil {
			if graph.IsNotADAG(err) {
				return fmt.Errorf("%w: %s -> %s", ErrCycle, orderID, dependsOn)
			}
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_dependencies (order_id, depends_on) VALUES (?, ?)
			ON CONFLICT DO NOTHING
		`, orderID, dependsOn)
		if err != nil {
			return fmt.Errorf("write dependency %s -> %s: %w", orderID, dependsOn, err)
		}
		return nil
	})
}

// RemoveDependency deletes an edge unconditionally - removing edges cannot
// introduce cycles. Deleting a missing edge is a no-op.
func (s *SQLiteStore) RemoveDependency(ctx context.Context, orderID, dependsOn string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM order_dependencies WHERE order_id = ? AND depends_on = ?`,
		orderID, dependsOn)
	if err != nil {
		return fmt.Errorf("remove dependency %s -> %s: %w", orderID, dependsOn, err)
	}
	return nil
}

// PutRule upserts a rule definition. Bookkeeping columns are preserved on
// update - the engine owns those through RecordFiring.
func (s *SQLiteStore) PutRule(ctx context.Context, r *rule.Rule) error {
	conditions, err := json.Marshal(orEmpty(r.Trigger.Conditions))
	if err != nil {
		return fmt.Errorf("encode conditions for rule %s: %w", r.ID, err)
	}
	params, err := json.Marshal(orEmpty(r.Action.Params))
	if err != nil {
		return fmt.Errorf("encode params for rule %s: %w", r.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rules (id, name, enabled, trigger_type, conditions, action_type, params, debounce_minutes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			enabled = excluded.enabled,
			trigger_type = excluded.trigger_type,
			conditions = excluded.conditions,
			action_type = excluded.action_type,
			params = excluded.params,
			debounce_minutes = excluded.debounce_minutes
	`, r.ID, r.Name, boolToInt(r.Enabled), string(r.Trigger.Kind), string(conditions),
		string(r.Action.Kind), string(params), r.DebounceMinutes)
	if err != nil {
		return fmt.Errorf("write rule %s: %w", r.ID, err)
	}
	return nil
}

// RecordFiring applies the success bookkeeping: executionCount += 1 and
// lastExecuted = at. Called only for successful, non-suppressed firings.
func (s *SQLiteStore) RecordFiring(ctx context.Context, ruleID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE rules SET execution_count = execution_count + 1, last_executed = ?
		WHERE id = ?
	`, at.Unix(), ruleID)
	if err != nil {
		return fmt.Errorf("record firing for rule %s: %w", ruleID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record firing for rule %s: %w", ruleID, err)
	}
	if n == 0 {
		return fmt.Errorf("record firing for rule %s: %w", ruleID, ErrNotFound)
	}
	return nil
}

// ClaimDebounce atomically claims the debounce window for a ledger key.
//
// The read-check-write runs in one serialized transaction, so two concurrent
// passes of the same rule cannot both claim. Returns the previous claim time
// (nil on first claim) so a failed firing can hand it back via
// ReleaseDebounce.
func (s *SQLiteStore) ClaimDebounce(ctx context.Context, key string, now time.Time, window time.Duration) (bool, *time.Time, error) {
	var (
		claimed bool
		prev    *time.Time
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var last sql.NullInt64
		err := tx.QueryRowContext(ctx,
			`SELECT claimed_at FROM debounce_claims WHERE key = ?`, key).Scan(&last)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("read debounce claim: %w", err)
		}

		if last.Valid {
			t := time.Unix(0, last.Int64).UTC()
			prev = &t
			if now.Sub(t) < window {
				claimed = false
				return nil
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO debounce_claims (key, claimed_at) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET claimed_at = excluded.claimed_at
		`, key, now.UnixNano())
		if err != nil {
			return fmt.Errorf("write debounce claim: %w", err)
		}
		claimed = true
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	return claimed, prev, nil
}

// ReleaseDebounce hands back a claim after a failed firing, restoring the
// previous claim time so the failure neither debounces future attempts nor
// erases an earlier success. Conditional on claimedAt still being current -
// a newer claim is never overwritten.
func (s *SQLiteStore) ReleaseDebounce(ctx context.Context, key string, claimedAt time.Time, prev *time.Time) error {
	var err error
	if prev == nil {
		_, err = s.db.ExecContext(ctx,
			`DELETE FROM debounce_claims WHERE key = ? AND claimed_at = ?`,
			key, claimedAt.UnixNano())
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE debounce_claims SET claimed_at = ? WHERE key = ? AND claimed_at = ?`,
			prev.UnixNano(), key, claimedAt.UnixNano())
	}
	if err != nil {
		return fmt.Errorf("release debounce claim: %w", err)
	}
	return nil
}

// AppendExecution writes an immutable execution record.
// ON CONFLICT DO NOTHING keeps retried writes idempotent.
func (s *SQLiteStore) AppendExecution(ctx context.Context, ex Execution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions (id, rule_id, rule_name, status, message, executed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, ex.ID, ex.RuleID, ex.RuleName, string(ex.Status), ex.Message, ex.ExecutedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("write execution %s: %w", ex.ID, err)
	}
	return nil
}

// AppendLog writes an audit log entry. Idempotent on ID.
func (s *SQLiteStore) AppendLog(ctx context.Context, e LogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, level, message, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, e.ID, e.Level, e.Message, e.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("write log entry %s: %w", e.ID, err)
	}
	return nil
}

// PutInspection upserts a station's last inspection time.
func (s *SQLiteStore) PutInspection(ctx context.Context, ins order.Inspection) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inspections (station, last_done) VALUES (?, ?)
		ON CONFLICT(station) DO UPDATE SET last_done = excluded.last_done
	`, ins.Station, ins.LastDone.Unix())
	if err != nil {
		return fmt.Errorf("write inspection for %s: %w", ins.Station, err)
	}
	return nil
}

// UpsertStandard writes a learned per-machine standard.
func (s *SQLiteStore) UpsertStandard(ctx context.Context, st Standard) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO standards (machine, hours, sample_count, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(machine) DO UPDATE SET
			hours = excluded.hours,
			sample_count = excluded.sample_count,
			updated_at = excluded.updated_at
	`, st.Machine, st.Hours, st.SampleCount, st.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("write standard for %s: %w", st.Machine, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
