package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plantops/shopcore/internal/graph"
	"github.com/plantops/shopcore/internal/order"
	"github.com/plantops/shopcore/internal/rule"
)

const pgSchemaSQL = `
CREATE TABLE IF NOT EXISTS orders (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL DEFAULT '',
    estimated_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
    actual_hours    DOUBLE PRECISION NOT NULL DEFAULT 0,
    status          TEXT NOT NULL,
    planned_date    TIMESTAMPTZ,
    machine         TEXT NOT NULL DEFAULT '',
    operator_name   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS order_dependencies (
    order_id   TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
    depends_on TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
    PRIMARY KEY (order_id, depends_on)
);

CREATE TABLE IF NOT EXISTS rules (
    id               TEXT PRIMARY KEY,
    name             TEXT NOT NULL,
    enabled          BOOLEAN NOT NULL DEFAULT TRUE,
    trigger_type     TEXT NOT NULL,
    conditions       JSONB NOT NULL DEFAULT '{}',
    action_type      TEXT NOT NULL,
    params           JSONB NOT NULL DEFAULT '{}',
    debounce_minutes INTEGER NOT NULL DEFAULT 60,
    execution_count  INTEGER NOT NULL DEFAULT 0,
    last_executed    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS debounce_claims (
    key        TEXT PRIMARY KEY,
    claimed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS executions (
    id          TEXT PRIMARY KEY,
    rule_id     TEXT NOT NULL,
    rule_name   TEXT NOT NULL,
    status      TEXT NOT NULL,
    message     TEXT NOT NULL DEFAULT '',
    executed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_executions_rule ON executions(rule_id, executed_at DESC);

CREATE TABLE IF NOT EXISTS audit_log (
    id         TEXT PRIMARY KEY,
    level      TEXT NOT NULL,
    message    TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS inspections (
    station   TEXT PRIMARY KEY,
    last_done TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS standards (
    machine      TEXT PRIMARY KEY,
    hours        DOUBLE PRECISION NOT NULL,
    sample_count INTEGER NOT NULL DEFAULT 0,
    updated_at   TIMESTAMPTZ NOT NULL
);
`

// PGStore implements Store on PostgreSQL via pgx. Used when the core shares
// a database with the host application instead of embedding SQLite.
type PGStore struct {
	db *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

// NewPGStore creates a PGStore backed by the given pgx connection pool and
// applies the schema.
func NewPGStore(ctx context.Context, pool *pgxpool.Pool) (*PGStore, error) {
	s := &PGStore{db: pool}
	if _, err := pool.Exec(ctx, pgSchemaSQL); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return s, nil
}

// Close releases the connection pool.
func (s *PGStore) Close() error {
	s.db.Close()
	return nil
}

func (s *PGStore) PutOrder(ctx context.Context, o *order.Order) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		var planned *time.Time
		if o.PlannedDate != nil {
			t := o.PlannedDate.UTC()
			planned = &t
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO orders (id, name, estimated_hours, actual_hours, status, planned_date, machine, operator_name)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				estimated_hours = EXCLUDED.estimated_hours,
				actual_hours = EXCLUDED.actual_hours,
				status = EXCLUDED.status,
				planned_date = EXCLUDED.planned_date,
				machine = EXCLUDED.machine,
				operator_name = EXCLUDED.operator_name
		`, o.ID, o.Name, o.EstimatedHours, o.ActualHours, string(o.Status), planned, o.Machine, o.OperatorName)
		if err != nil {
			return fmt.Errorf("write order %s: %w", o.ID, err)
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM order_dependencies WHERE order_id = $1`, o.ID); err != nil {
			return fmt.Errorf("clear dependencies for %s: %w", o.ID, err)
		}

		snap, err := s.snapshotInTx(ctx, tx)
		if err != nil {
			return err
		}
		for _, depID := range o.Dependencies {
			if err := certifyAndTrack(snap, o.ID, depID); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO order_dependencies (order_id, depends_on) VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, o.ID, depID); err != nil {
				return fmt.Errorf("write dependency %s -> %s: %w", o.ID, depID, err)
			}
		}
		return nil
	})
}

func (s *PGStore) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	var (
		o       order.Order
		planned *time.Time
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, name, estimated_hours, actual_hours, status, planned_date, machine, operator_name
		FROM orders WHERE id = $1
	`, id).Scan(&o.ID, &o.Name, &o.EstimatedHours, &o.ActualHours, &o.Status, &planned, &o.Machine, &o.OperatorName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read order %s: %w", id, err)
	}
	if planned != nil {
		t := planned.UTC()
		o.PlannedDate = &t
	}

	rows, err := s.db.Query(ctx,
		`SELECT depends_on FROM order_dependencies WHERE order_id = $1 ORDER BY depends_on`, id)
	if err != nil {
		return nil, fmt.Errorf("read dependencies: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		o.Dependencies = append(o.Dependencies, d)
	}
	return &o, rows.Err()
}

func (s *PGStore) OrderSnapshot(ctx context.Context) (order.Snapshot, error) {
	var snap order.Snapshot
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		snap, err = s.snapshotInTx(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *PGStore) snapshotInTx(ctx context.Context, tx pgx.Tx) (order.Snapshot, error) {
	rows, err := tx.Query(ctx, `
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
			planned *time.Time
		)
		if err := rows.Scan(&o.ID, &o.Name, &o.EstimatedHours, &o.ActualHours,
			&o.Status, &planned, &o.Machine, &o.OperatorName); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		if planned != nil {
			t := planned.UTC()
			o.PlannedDate = &t
		}
		snap[o.ID] = &o
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read orders: %w", err)
	}
	rows.Close()

	edges, err := tx.Query(ctx,
		`SELECT order_id, depends_on FROM order_dependencies ORDER BY order_id, depends_on`)
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
	return snap, edges.Err()
}

func (s *PGStore) UpdateOrderStatus(ctx context.Context, id string, status order.Status) error {
	if !status.Valid() {
		return fmt.Errorf("unknown status %q", status)
	}
	return s.execOrderUpdate(ctx, id, `UPDATE orders SET status = $1 WHERE id = $2`, string(status), id)
}

func (s *PGStore) AssignOperator(ctx context.Context, id, operatorName string) error {
	return s.execOrderUpdate(ctx, id, `UPDATE orders SET operator_name = $1 WHERE id = $2`, operatorName, id)
}

func (s *PGStore) RescheduleOrder(ctx context.Context, id string, planned time.Time) error {
	return s.execOrderUpdate(ctx, id, `UPDATE orders SET planned_date = $1 WHERE id = $2`, planned.UTC(), id)
}

func (s *PGStore) execOrderUpdate(ctx context.Context, id, query string, args ...any) error {
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update order %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update order %s: %w", id, ErrNotFound)
	}
	return nil
}

// AddDependency locks the edge table for the certify-then-insert step so
// concurrent inserts cannot jointly form a cycle.
func (s *PGStore) AddDependency(ctx context.Context, orderID, dependsOn string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`LOCK TABLE order_dependencies IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return fmt.Errorf("lock dependencies: %w", err)
		}
		snap, err := s.snapshotInTx(ctx, tx)
		if err != nil {
			return err
		}
		if err := graph.CertifyEdge(snap, orderID, dependsOn); err != nil {
			if graph.IsNotADAG(err) {
				return fmt.Errorf("%w: %s -> %s", ErrCycle, orderID, dependsOn)
			}
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO order_dependencies (order_id, depends_on) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, orderID, dependsOn)
		if err != nil {
			return fmt.Errorf("write dependency %s -> %s: %w", orderID, dependsOn, err)
		}
		return nil
	})
}

func (s *PGStore) RemoveDependency(ctx context.Context, orderID, dependsOn string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM order_dependencies WHERE order_id = $1 AND depends_on = $2`,
		orderID, dependsOn)
	if err != nil {
		return fmt.Errorf("remove dependency %s -> %s: %w", orderID, dependsOn, err)
	}
	return nil
}

func (s *PGStore) PutRule(ctx context.Context, r *rule.Rule) error {
	conditions, err := json.Marshal(orEmpty(r.Trigger.Conditions))
	if err != nil {
		return fmt.Errorf("encode conditions for rule %s: %w", r.ID, err)
	}
	params, err := json.Marshal(orEmpty(r.Action.Params))
	if err != nil {
		return fmt.Errorf("encode params for rule %s: %w", r.ID, err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO rules (id, name, enabled, trigger_type, conditions, action_type, params, debounce_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			enabled = EXCLUDED.enabled,
			trigger_type = EXCLUDED.trigger_type,
			conditions = EXCLUDED.conditions,
			action_type = EXCLUDED.action_type,
			params = EXCLUDED.params,
			debounce_minutes = EXCLUDED.debounce_minutes
	`, r.ID, r.Name, r.Enabled, string(r.Trigger.Kind), conditions,
		string(r.Action.Kind), params, r.DebounceMinutes)
	if err != nil {
		return fmt.Errorf("write rule %s: %w", r.ID, err)
	}
	return nil
}

func (s *PGStore) GetRule(ctx context.Context, id string) (*rule.Rule, error) {
	rules, err := s.queryRules(ctx, `
		SELECT id, name, enabled, trigger_type, conditions, action_type, params,
		       debounce_minutes, execution_count, last_executed
		FROM rules WHERE id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, ErrNotFound
	}
	return &rules[0], nil
}

func (s *PGStore) ListRules(ctx context.Context) ([]rule.Rule, error) {
	return s.queryRules(ctx, `
		SELECT id, name, enabled, trigger_type, conditions, action_type, params,
		       debounce_minutes, execution_count, last_executed
		FROM rules ORDER BY id
	`)
}

func (s *PGStore) ListEnabledRules(ctx context.Context) ([]rule.Rule, error) {
	return s.queryRules(ctx, `
		SELECT id, name, enabled, trigger_type, conditions, action_type, params,
		       debounce_minutes, execution_count, last_executed
		FROM rules WHERE enabled ORDER BY id
	`)
}

func (s *PGStore) queryRules(ctx context.Context, query string, args ...any) ([]rule.Rule, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	defer rows.Close()

	var rules []rule.Rule
	for rows.Next() {
		var (
			r            rule.Rule
			conditions   []byte
			params       []byte
			lastExecuted *time.Time
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Enabled, &r.Trigger.Kind, &conditions,
			&r.Action.Kind, &params, &r.DebounceMinutes, &r.ExecutionCount, &lastExecuted); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		if err := json.Unmarshal(conditions, &r.Trigger.Conditions); err != nil {
			return nil, fmt.Errorf("decode conditions for rule %s: %w", r.ID, err)
		}
		if err := json.Unmarshal(params, &r.Action.Params); err != nil {
			return nil, fmt.Errorf("decode params for rule %s: %w", r.ID, err)
		}
		if lastExecuted != nil {
			t := lastExecuted.UTC()
			r.LastExecuted = &t
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *PGStore) RecordFiring(ctx context.Context, ruleID string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE rules SET execution_count = execution_count + 1, last_executed = $1
		WHERE id = $2
	`, at.UTC(), ruleID)
	if err != nil {
		return fmt.Errorf("record firing for rule %s: %w", ruleID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record firing for rule %s: %w", ruleID, ErrNotFound)
	}
	return nil
}

// ClaimDebounce claims the window under a transaction-scoped advisory lock
// on the key. Row locks alone cannot serialize the first claim: with no row
// yet, two concurrent passes would each read nothing and both win the upsert.
// The advisory lock is held until commit, so the compare and the swap are
// atomic with respect to every other claimant of the same key.
func (s *PGStore) ClaimDebounce(ctx context.Context, key string, now time.Time, window time.Duration) (bool, *time.Time, error) {
	var (
		claimed bool
		prev    *time.Time
	)
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return fmt.Errorf("lock debounce key: %w", err)
		}
		var last *time.Time
		err := tx.QueryRow(ctx,
			`SELECT claimed_at FROM debounce_claims WHERE key = $1`, key).Scan(&last)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("read debounce claim: %w", err)
		}
		if last != nil {
			t := last.UTC()
			prev = &t
			if now.Sub(t) < window {
				claimed = false
				return nil
			}
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO debounce_claims (key, claimed_at) VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET claimed_at = EXCLUDED.claimed_at
		`, key, now.UTC())
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

func (s *PGStore) ReleaseDebounce(ctx context.Context, key string, claimedAt time.Time, prev *time.Time) error {
	var err error
	if prev == nil {
		_, err = s.db.Exec(ctx,
			`DELETE FROM debounce_claims WHERE key = $1 AND claimed_at = $2`,
			key, claimedAt.UTC())
	} else {
		_, err = s.db.Exec(ctx,
			`UPDATE debounce_claims SET claimed_at = $1 WHERE key = $2 AND claimed_at = $3`,
			prev.UTC(), key, claimedAt.UTC())
	}
	if err != nil {
		return fmt.Errorf("release debounce claim: %w", err)
	}
	return nil
}

func (s *PGStore) AppendExecution(ctx context.Context, ex Execution) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO executions (id, rule_id, rule_name, status, message, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, ex.ID, ex.RuleID, ex.RuleName, string(ex.Status), ex.Message, ex.ExecutedAt.UTC())
	if err != nil {
		return fmt.Errorf("write execution %s: %w", ex.ID, err)
	}
	return nil
}

func (s *PGStore) ListExecutions(ctx context.Context, ruleID string, limit int) ([]Execution, error) {
	query := `
		SELECT id, rule_id, rule_name, status, message, executed_at
		FROM executions WHERE ($1 = '' OR rule_id = $1) ORDER BY executed_at DESC
	`
	args := []any{ruleID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read executions: %w", err)
	}
	defer rows.Close()

	var execs []Execution
	for rows.Next() {
		var (
			ex Execution
			at time.Time
		)
		if err := rows.Scan(&ex.ID, &ex.RuleID, &ex.RuleName, &ex.Status, &ex.Message, &at); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		ex.ExecutedAt = at.UTC()
		execs = append(execs, ex)
	}
	return execs, rows.Err()
}

func (s *PGStore) AppendLog(ctx context.Context, e LogEntry) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO audit_log (id, level, message, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.Level, e.Message, e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("write log entry %s: %w", e.ID, err)
	}
	return nil
}

func (s *PGStore) PutInspection(ctx context.Context, ins order.Inspection) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO inspections (station, last_done) VALUES ($1, $2)
		ON CONFLICT (station) DO UPDATE SET last_done = EXCLUDED.last_done
	`, ins.Station, ins.LastDone.UTC())
	if err != nil {
		return fmt.Errorf("write inspection for %s: %w", ins.Station, err)
	}
	return nil
}

func (s *PGStore) ListInspections(ctx context.Context) ([]order.Inspection, error) {
	rows, err := s.db.Query(ctx, `SELECT station, last_done FROM inspections ORDER BY station`)
	if err != nil {
		return nil, fmt.Errorf("read inspections: %w", err)
	}
	defer rows.Close()

	var inspections []order.Inspection
	for rows.Next() {
		var (
			ins      order.Inspection
			lastDone time.Time
		)
		if err := rows.Scan(&ins.Station, &lastDone); err != nil {
			return nil, fmt.Errorf("scan inspection: %w", err)
		}
		ins.LastDone = lastDone.UTC()
		inspections = append(inspections, ins)
	}
	return inspections, rows.Err()
}

func (s *PGStore) GetStandard(ctx context.Context, machine string) (*Standard, error) {
	var (
		st        Standard
		updatedAt time.Time
	)
	err := s.db.QueryRow(ctx, `
		SELECT machine, hours, sample_count, updated_at FROM standards WHERE machine = $1
	`, machine).Scan(&st.Machine, &st.Hours, &st.SampleCount, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read standard: %w", err)
	}
	st.UpdatedAt = updatedAt.UTC()
	return &st, nil
}

func (s *PGStore) UpsertStandard(ctx context.Context, st Standard) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO standards (machine, hours, sample_count, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (machine) DO UPDATE SET
			hours = EXCLUDED.hours,
			sample_count = EXCLUDED.sample_count,
			updated_at = EXCLUDED.updated_at
	`, st.Machine, st.Hours, st.SampleCount, st.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("write standard for %s: %w", st.Machine, err)
	}
	return nil
}

func (s *PGStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
