package database

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Run statuses
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

var ErrRunNotFound = errors.New("run not found")

// DB wraps the SQLite database
type DB struct {
	*sql.DB
}

// Run is one batch of dispatched orders processed into profit results
type Run struct {
	ID            string     `json:"id"`
	OrderType     int        `json:"orderType"`
	LookbackDays  int        `json:"lookbackDays"`
	Status        string     `json:"status"` // "running", "success" or "failed"
	OrdersTotal   int        `json:"ordersTotal"`
	OrdersErrored int        `json:"ordersErrored"`
	OrdersSkipped int        `json:"ordersSkipped"` // resends filtered before processing
	ErrorMessage  string     `json:"errorMessage,omitempty"`
	StartedAt     time.Time  `json:"startedAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// Open opens or creates the database
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Initialize schema
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &DB{db}, nil
}

// CreateRun records the start of a run
func (db *DB) CreateRun(ctx context.Context, run *Run) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO runs (id, order_type, lookback_days, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, run.OrderType, run.LookbackDays, run.Status, run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// UpdateRun updates the status and counts of a run
func (db *DB) UpdateRun(ctx context.Context, run *Run) error {
	_, err := db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, orders_total = ?, orders_errored = ?, orders_skipped = ?, error_message = ?, completed_at = ?
		WHERE id = ?
	`, run.Status, run.OrdersTotal, run.OrdersErrored, run.OrdersSkipped, run.ErrorMessage, run.CompletedAt, run.ID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

const runColumns = `id, order_type, lookback_days, status, orders_total, orders_errored, orders_skipped,
	error_message, started_at, completed_at`

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	var r Run
	err := row.Scan(&r.ID, &r.OrderType, &r.LookbackDays, &r.Status, &r.OrdersTotal, &r.OrdersErrored,
		&r.OrdersSkipped, &r.ErrorMessage, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRun returns a run by id
func (db *DB) GetRun(ctx context.Context, id string) (*Run, error) {
	run, err := scanRun(db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// GetLatestRun returns the most recently started run
func (db *DB) GetLatestRun(ctx context.Context) (*Run, error) {
	run, err := scanRun(db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return run, err
}

// GetRuns returns the most recent runs, newest first
func (db *DB) GetRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}
