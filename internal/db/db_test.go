package db

import (
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestMigrate(t *testing.T) {
	d, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()

	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	tables := []string{"schema_version", "run_events", "gate_runs"}
	for _, table := range tables {
		var name string
		err := d.conn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}

	var version int
	if err := d.conn.QueryRow("SELECT version FROM schema_version").Scan(&version); err != nil {
		t.Fatalf("query schema_version: %v", err)
	}
	if version != 1 {
		t.Errorf("expected schema version 1, got %d", version)
	}

	// Migrate again should be idempotent
	if err := d.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestRunEvents(t *testing.T) {
	d := testDB(t)

	if err := d.LogRunEvent("r1", "run_started", 0, ""); err != nil {
		t.Fatalf("log event: %v", err)
	}
	if err := d.LogRunEvent("r1", "iteration_started", 1, ""); err != nil {
		t.Fatalf("log event: %v", err)
	}
	if err := d.LogRunEvent("r1", "converged", 1, "all gates passed"); err != nil {
		t.Fatalf("log event: %v", err)
	}

	events, err := d.RecentEvents(2)
	if err != nil {
		t.Fatalf("recent events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	// Newest first
	if events[0].Event != "converged" {
		t.Errorf("expected converged first, got %q", events[0].Event)
	}
	if events[0].Detail != "all gates passed" {
		t.Errorf("unexpected detail %q", events[0].Detail)
	}
	if events[1].Event != "iteration_started" || events[1].Iteration != 1 {
		t.Errorf("unexpected second event %+v", events[1])
	}
}

func TestGateRuns(t *testing.T) {
	d := testDB(t)

	if err := d.LogGateRun("r1", 1, "lint", "pass", 1200, ""); err != nil {
		t.Fatalf("log gate run: %v", err)
	}
	if err := d.LogGateRun("r1", 1, "test", "fail", 8000, "2 tests failed"); err != nil {
		t.Fatalf("log gate run: %v", err)
	}
	if err := d.LogGateRun("r2", 1, "lint", "pass", 900, ""); err != nil {
		t.Fatalf("log gate run: %v", err)
	}

	runs, err := d.GateRuns("r1")
	if err != nil {
		t.Fatalf("gate runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 gate runs, got %d", len(runs))
	}
	if runs[0].Gate != "lint" || runs[0].Status != "pass" {
		t.Errorf("unexpected first run %+v", runs[0])
	}
	if runs[1].Summary != "2 tests failed" {
		t.Errorf("unexpected summary %q", runs[1].Summary)
	}
}

func TestGateRunStatusConstraint(t *testing.T) {
	d := testDB(t)

	if err := d.LogGateRun("r1", 1, "lint", "bogus", 0, ""); err == nil {
		t.Fatal("expected CHECK constraint error for invalid status")
	}
}

func TestReset(t *testing.T) {
	d := testDB(t)

	if err := d.LogRunEvent("r1", "run_started", 0, ""); err != nil {
		t.Fatalf("log event: %v", err)
	}
	if err := d.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}

	events, err := d.RecentEvents(10)
	if err != nil {
		t.Fatalf("recent events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected empty store after reset, got %d events", len(events))
	}
}
