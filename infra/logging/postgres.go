package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	corelogging "github.com/fleetops/dispatchd/core/logging"
)

// PostgresStore persists engine logs to Postgres via the pgx stdlib driver.
// Rows are stored as JSONB next to the indexed columns.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects with the given URL and ensures schema.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	schema := `CREATE TABLE IF NOT EXISTS assignment_logs (
        id BIGSERIAL PRIMARY KEY,
        ts TIMESTAMPTZ NOT NULL,
        order_id TEXT NOT NULL,
        record JSONB NOT NULL
    );
    CREATE TABLE IF NOT EXISTS escalation_logs (
        id BIGSERIAL PRIMARY KEY,
        ts TIMESTAMPTZ NOT NULL,
        order_id TEXT NOT NULL,
        escalation_type TEXT NOT NULL,
        record JSONB NOT NULL
    );
    CREATE TABLE IF NOT EXISTS dispatch_alerts (
        id BIGSERIAL PRIMARY KEY,
        ts TIMESTAMPTZ NOT NULL,
        alert_type TEXT NOT NULL,
        record JSONB NOT NULL
    );
    CREATE TABLE IF NOT EXISTS optimization_logs (
        id BIGSERIAL PRIMARY KEY,
        ts TIMESTAMPTZ NOT NULL,
        batch_id TEXT NOT NULL,
        record JSONB NOT NULL
    );`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// AppendAssignment writes one assignment_logs row.
func (s *PostgresStore) AppendAssignment(ctx context.Context, rec corelogging.AssignmentLog) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO assignment_logs (ts, order_id, record) VALUES ($1, $2, $3)`,
		rec.AssignedAt, rec.OrderID, b)
	return err
}

// AppendEscalation writes one escalation_logs row.
func (s *PostgresStore) AppendEscalation(ctx context.Context, rec corelogging.EscalationLog) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO escalation_logs (ts, order_id, escalation_type, record) VALUES ($1, $2, $3, $4)`,
		rec.EscalatedAt, rec.OrderID, rec.EscalationType, b)
	return err
}

// AppendAlert writes one dispatch_alerts row.
func (s *PostgresStore) AppendAlert(ctx context.Context, rec corelogging.DispatchAlert) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dispatch_alerts (ts, alert_type, record) VALUES ($1, $2, $3)`,
		rec.CreatedAt, rec.AlertType, b)
	return err
}

// AppendOptimization writes one optimization_logs row.
func (s *PostgresStore) AppendOptimization(ctx context.Context, rec corelogging.OptimizationLog) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO optimization_logs (ts, batch_id, record) VALUES ($1, $2, $3)`,
		rec.CreatedAt, rec.BatchID, b)
	return err
}

// QueryAssignments returns assignment rows matching q in time order.
func (s *PostgresStore) QueryAssignments(ctx context.Context, q corelogging.Query) ([]corelogging.AssignmentLog, error) {
	rows, err := s.queryRecords(ctx, "assignment_logs", q)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []corelogging.AssignmentLog
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r corelogging.AssignmentLog
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("unmarshal assignment log: %w", err)
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

// QueryEscalations returns escalation rows matching q in time order.
func (s *PostgresStore) QueryEscalations(ctx context.Context, q corelogging.Query) ([]corelogging.EscalationLog, error) {
	rows, err := s.queryRecords(ctx, "escalation_logs", q)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []corelogging.EscalationLog
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r corelogging.EscalationLog
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("unmarshal escalation log: %w", err)
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

func (s *PostgresStore) queryRecords(ctx context.Context, table string, q corelogging.Query) (*sql.Rows, error) {
	var args []any
	query := `SELECT record FROM ` + table + ` WHERE true`
	if !q.Start.IsZero() {
		args = append(args, q.Start)
		query += fmt.Sprintf(` AND ts >= $%d`, len(args))
	}
	if !q.End.IsZero() {
		args = append(args, q.End)
		query += fmt.Sprintf(` AND ts <= $%d`, len(args))
	}
	if q.OrderID != "" {
		args = append(args, q.OrderID)
		query += fmt.Sprintf(` AND order_id = $%d`, len(args))
	}
	query += ` ORDER BY ts`
	return s.db.QueryContext(ctx, query, args...)
}

// Close closes the underlying pool.
func (s *PostgresStore) Close() error { return s.db.Close() }
