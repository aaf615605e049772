// Package logging provides the LogStore backends: embedded SQLite, rotating
// JSONL files and Postgres. All three persist a few indexed columns plus the
// full row as JSON, so the schema survives field additions.
package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	corelogging "github.com/fleetops/dispatchd/core/logging"
)

// SQLiteStore persists engine logs to an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS assignment_logs (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        ts INTEGER,
        order_id TEXT,
        record TEXT
    );
    CREATE TABLE IF NOT EXISTS escalation_logs (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        ts INTEGER,
        order_id TEXT,
        escalation_type TEXT,
        record TEXT
    );
    CREATE TABLE IF NOT EXISTS dispatch_alerts (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        ts INTEGER,
        alert_type TEXT,
        record TEXT
    );
    CREATE TABLE IF NOT EXISTS optimization_logs (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        ts INTEGER,
        batch_id TEXT,
        record TEXT
    );`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// AppendAssignment writes one assignment_logs row.
func (s *SQLiteStore) AppendAssignment(ctx context.Context, rec corelogging.AssignmentLog) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO assignment_logs (ts, order_id, record) VALUES (?, ?, ?)`,
		rec.AssignedAt.Unix(), rec.OrderID, string(b))
	return err
}

// AppendEscalation writes one escalation_logs row.
func (s *SQLiteStore) AppendEscalation(ctx context.Context, rec corelogging.EscalationLog) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO escalation_logs (ts, order_id, escalation_type, record) VALUES (?, ?, ?, ?)`,
		rec.EscalatedAt.Unix(), rec.OrderID, rec.EscalationType, string(b))
	return err
}

// AppendAlert writes one dispatch_alerts row.
func (s *SQLiteStore) AppendAlert(ctx context.Context, rec corelogging.DispatchAlert) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dispatch_alerts (ts, alert_type, record) VALUES (?, ?, ?)`,
		rec.CreatedAt.Unix(), rec.AlertType, string(b))
	return err
}

// AppendOptimization writes one optimization_logs row.
func (s *SQLiteStore) AppendOptimization(ctx context.Context, rec corelogging.OptimizationLog) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO optimization_logs (ts, batch_id, record) VALUES (?, ?, ?)`,
		rec.CreatedAt.Unix(), rec.BatchID, string(b))
	return err
}

// QueryAssignments returns assignment rows matching q in time order.
func (s *SQLiteStore) QueryAssignments(ctx context.Context, q corelogging.Query) ([]corelogging.AssignmentLog, error) {
	rows, err := s.queryRecords(ctx, "assignment_logs", q)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []corelogging.AssignmentLog
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r corelogging.AssignmentLog
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("unmarshal assignment log: %w", err)
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

// QueryEscalations returns escalation rows matching q in time order.
func (s *SQLiteStore) QueryEscalations(ctx context.Context, q corelogging.Query) ([]corelogging.EscalationLog, error) {
	rows, err := s.queryRecords(ctx, "escalation_logs", q)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []corelogging.EscalationLog
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r corelogging.EscalationLog
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("unmarshal escalation log: %w", err)
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

func (s *SQLiteStore) queryRecords(ctx context.Context, table string, q corelogging.Query) (*sql.Rows, error) {
	var args []any
	query := `SELECT record FROM ` + table + ` WHERE 1=1`
	if !q.Start.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, q.Start.Unix())
	}
	if !q.End.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, q.End.Unix())
	}
	if q.OrderID != "" {
		query += ` AND order_id = ?`
		args = append(args, q.OrderID)
	}
	query += ` ORDER BY ts`
	return s.db.QueryContext(ctx, query, args...)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
