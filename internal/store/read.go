package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/plantops/shopcore/internal/order"
	"github.com/plantops/shopcore/internal/rule"
)

// GetOrder reads one order including its dependency edges.
// Returns ErrNotFound when the order does not exist.
func (s *SQLiteStore) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	o, err := s.scanOrder(s.db.QueryRowContext(ctx, `
		SELECT id, name, estimated_hours, actual_hours, status, planned_date, machine, operator_name
		FROM orders WHERE id = ?
	`, id))
	if err != nil {
		return nil, err
	}

	deps, err := s.dependenciesOf(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Dependencies = deps
	return o, nil
}

// OrderSnapshot reads the full order set with dependency edges attached.
// The two reads run in one transaction so the snapshot is consistent.
func (s *SQLiteStore) OrderSnapshot(ctx context.Context) (order.Snapshot, error) {
	var snap order.Snapshot
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		snap, err = snapshotInTx(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// snapshotInTx loads orders and edges within an existing transaction. Also
// used by AddDependency to re-certify edges under the write lock.
func snapshotInTx(ctx context.Context, tx *sql.Tx) (order.Snapshot, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, name, estimated_hours, actual_hours, status, planned_date, machine, operator_name
		FROM orders
	`)
	if err != nil {
		return nil, fmt.Errorf("read orders: %w", err)
	}
	defer rows.Close()

	snap := make(order.Snapshot)
	for rows.Next() {
		var (
			o       order.Order
			planned sql.NullInt64
		)
		if err := rows.Scan(&o.ID, &o.Name, &o.EstimatedHours, &o.ActualHours,
			&o.Status, &planned, &o.Machine, &o.OperatorName); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		if planned.Valid {
			t := time.Unix(planned.Int64, 0).UTC()
			o.PlannedDate = &t
		}
		snap[o.ID] = &o
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read orders: %w", err)
	}

	edges, err := tx.QueryContext(ctx, `
		SELECT order_id, depends_on FROM order_dependencies ORDER BY order_id, depends_on
	`)
	if err != nil {
		return nil, fmt.Errorf("read dependencies: %w", err)
	}
	defer edges.Close()

	for edges.Next() {
		var orderID, dependsOn string
		if err := edges.Scan(&orderID, &dependsOn); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		if o, ok := snap[orderID]; ok {
			o.Dependencies = append(o.Dependencies, dependsOn)
		}
	}
	if err := edges.Err(); err != nil {
		return nil, fmt.Errorf("read dependencies: %w", err)
	}

	return snap, nil
}

func (s *SQLiteStore) scanOrder(row *sql.Row) (*order.Order, error) {
	var (
		o       order.Order
		planned sql.NullInt64
	)
	err := row.Scan(&o.ID, &o.Name, &o.EstimatedHours, &o.ActualHours,
		&o.Status, &planned, &o.Machine, &o.OperatorName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}
	if planned.Valid {
		t := time.Unix(planned.Int64, 0).UTC()
		o.PlannedDate = &t
	}
	return &o, nil
}

func (s *SQLiteStore) dependenciesOf(ctx context.Context, orderID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT depends_on FROM order_dependencies WHERE order_id = ? ORDER BY depends_on
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("read dependencies: %w", err)
	}
	defer rows.Close()

	var deps []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		deps = append(deps, d)
	}
	return deps, rows.Err()
}

// GetRule reads one rule by ID. Returns ErrNotFound when absent.
func (s *SQLiteStore) GetRule(ctx context.Context, id string) (*rule.Rule, error) {
	rules, err := s.queryRules(ctx, `
		SELECT id, name, enabled, trigger_type, conditions, action_type, params,
		       debounce_minutes, execution_count, last_executed
		FROM rules WHERE id = ?
	`, id)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, ErrNotFound
	}
	return &rules[0], nil
}

// ListRules reads every rule, enabled or not, ordered by ID.
func (s *SQLiteStore) ListRules(ctx context.Context) ([]rule.Rule, error) {
	return s.queryRules(ctx, `
		SELECT id, name, enabled, trigger_type, conditions, action_type, params,
		       debounce_minutes, execution_count, last_executed
		FROM rules ORDER BY id
	`)
}

// ListEnabledRules reads the rules the engine evaluates, ordered by ID for
// deterministic pass order.
func (s *SQLiteStore) ListEnabledRules(ctx context.Context) ([]rule.Rule, error) {
	return s.queryRules(ctx, `
		SELECT id, name, enabled, trigger_type, conditions, action_type, params,
		       debounce_minutes, execution_count, last_executed
		FROM rules WHERE enabled = 1 ORDER BY id
	`)
}

func (s *SQLiteStore) queryRules(ctx context.Context, query string, args ...any) ([]rule.Rule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	defer rows.Close()

	var rules []rule.Rule
	for rows.Next() {
		var (
			r            rule.Rule
			enabled      int
			conditions   string
			params       string
			lastExecuted sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.Name, &enabled, &r.Trigger.Kind, &conditions,
			&r.Action.Kind, &params, &r.DebounceMinutes, &r.ExecutionCount, &lastExecuted); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		r.Enabled = enabled != 0
		if err := json.Unmarshal([]byte(conditions), &r.Trigger.Conditions); err != nil {
			return nil, fmt.Errorf("decode conditions for rule %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(params), &r.Action.Params); err != nil {
			return nil, fmt.Errorf("decode params for rule %s: %w", r.ID, err)
		}
		if lastExecuted.Valid {
			t := time.Unix(lastExecuted.Int64, 0).UTC()
			r.LastExecuted = &t
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// ListExecutions reads execution records newest first, filtered to one rule
// when ruleID is non-empty. A zero or negative limit means no limit.
func (s *SQLiteStore) ListExecutions(ctx context.Context, ruleID string, limit int) ([]Execution, error) {
	query := `
		SELECT id, rule_id, rule_name, status, message, executed_at
		FROM executions
	`
	var args []any
	if ruleID != "" {
		query += " WHERE rule_id = ?"
		args = append(args, ruleID)
	}
	query += " ORDER BY executed_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read executions: %w", err)
	}
	defer rows.Close()

	var execs []Execution
	for rows.Next() {
		var (
			ex Execution
			at int64
		)
		if err := rows.Scan(&ex.ID, &ex.RuleID, &ex.RuleName, &ex.Status, &ex.Message, &at); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		ex.ExecutedAt = time.Unix(0, at).UTC()
		execs = append(execs, ex)
	}
	return execs, rows.Err()
}

// ListInspections reads every station's last inspection time.
func (s *SQLiteStore) ListInspections(ctx context.Context) ([]order.Inspection, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT station, last_done FROM inspections ORDER BY station`)
	if err != nil {
		return nil, fmt.Errorf("read inspections: %w", err)
	}
	defer rows.Close()

	var inspections []order.Inspection
	for rows.Next() {
		var (
			ins      order.Inspection
			lastDone int64
		)
		if err := rows.Scan(&ins.Station, &lastDone); err != nil {
			return nil, fmt.Errorf("scan inspection: %w", err)
		}
		ins.LastDone = time.Unix(lastDone, 0).UTC()
		inspections = append(inspections, ins)
	}
	return inspections, rows.Err()
}

// GetStandard reads the standard hours for a machine.
// Returns ErrNotFound when no standard has been learned yet.
func (s *SQLiteStore) GetStandard(ctx context.Context, machine string) (*Standard, error) {
	var (
		st        Standard
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT machine, hours, sample_count, updated_at FROM standards WHERE machine = ?
	`, machine).Scan(&st.Machine, &st.Hours, &st.SampleCount, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read standard: %w", err)
	}
	st.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &st, nil
}
