package db

import (
	"database/sql"
	"fmt"
)

// RunEvent represents a row in the run_events table.
type RunEvent struct {
	ID        int
	RunID     string
	Event     string
	Iteration int
	Detail    string
	Timestamp string
}

// GateRun represents a row in the gate_runs table.
type GateRun struct {
	ID         int
	RunID      string
	Iteration  int
	Gate       string
	Status     string
	DurationMs int
	Summary    string
	Timestamp  string
}

// LogRunEvent inserts a pipeline lifecycle event.
func (d *DB) LogRunEvent(runID, event string, iteration int, detail string) error {
	_, err := d.conn.Exec(
		`INSERT INTO run_events (run_id, event, iteration, detail) VALUES (?, ?, ?, ?)`,
		runID, event, iteration, detail,
	)
	if err != nil {
		return fmt.Errorf("log run event: %w", err)
	}
	return nil
}

// LogGateRun inserts one gate result.
func (d *DB) LogGateRun(runID string, iteration int, gate, status string, durationMs int, summary string) error {
	_, err := d.conn.Exec(
		`INSERT INTO gate_runs (run_id, iteration, gate, status, duration_ms, summary) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, iteration, gate, status, durationMs, summary,
	)
	if err != nil {
		return fmt.Errorf("log gate run: %w", err)
	}
	return nil
}

// RecentEvents returns the most recent run events, newest first.
func (d *DB) RecentEvents(limit int) ([]RunEvent, error) {
	rows, err := d.conn.Query(
		`SELECT id, run_id, event, iteration, detail, timestamp
		 FROM run_events ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query run events: %w", err)
	}
	defer rows.Close()

	var events []RunEvent
	for rows.Next() {
		var e RunEvent
		var iteration sql.NullInt64
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.Event, &iteration, &detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		if iteration.Valid {
			e.Iteration = int(iteration.Int64)
		}
		if detail.Valid {
			e.Detail = detail.String
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GateRuns returns all gate results for a run, in insertion order.
func (d *DB) GateRuns(runID string) ([]GateRun, error) {
	rows, err := d.conn.Query(
		`SELECT id, run_id, iteration, gate, status, duration_ms, summary, timestamp
		 FROM gate_runs WHERE run_id = ? ORDER BY id ASC`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query gate runs: %w", err)
	}
	defer rows.Close()

	var runs []GateRun
	for rows.Next() {
		var g GateRun
		var durationMs sql.NullInt64
		var summary sql.NullString
		if err := rows.Scan(&g.ID, &g.RunID, &g.Iteration, &g.Gate, &g.Status, &durationMs, &summary, &g.Timestamp); err != nil {
			return nil, fmt.Errorf("scan gate run: %w", err)
		}
		if durationMs.Valid {
			g.DurationMs = int(durationMs.Int64)
		}
		if summary.Valid {
			g.Summary = summary.String
		}
		runs = append(runs, g)
	}
	return runs, rows.Err()
}
