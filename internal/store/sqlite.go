// Package store keeps a history of runs and their test results in sqlite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"asmocha/internal/core"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	ddl := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA foreign_keys=ON;`,
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL UNIQUE,
			root_path TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			status TEXT NOT NULL,
			config_json TEXT NOT NULL,
			summary_json TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			package TEXT NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			message TEXT,
			file_path TEXT,
			line INTEGER,
			col INTEGER,
			created_at TEXT NOT NULL,
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_results_run_status ON results(run_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_results_name ON results(package, name);`,
	}

	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run core.RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, root_path, started_at, status, config_json)
		VALUES (?, ?, ?, ?, ?)`,
		run.RunID,
		run.RootPath,
		run.StartedAt.UTC().Format(time.RFC3339),
		run.Status,
		run.Config,
	)
	return err
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status string, summaryJSON string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, summary_json = ?, finished_at = ?
		WHERE run_id = ?`,
		status,
		summaryJSON,
		time.Now().UTC().Format(time.RFC3339),
		runID,
	)
	return err
}

func (s *SQLiteStore) InsertResults(ctx context.Context, results []core.ResultRecord) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO results (run_id, package, name, status, duration_ms, message, file_path, line, col, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, result := range results {
		if _, err := stmt.ExecContext(ctx,
			result.RunID,
			result.Package,
			result.Name,
			result.Status,
			result.DurationMs,
			result.Message,
			result.FilePath,
			result.Line,
			result.Column,
			result.CreatedAt.UTC().Format(time.RFC3339),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Results returns the results of runID in insertion order.
func (s *SQLiteStore) Results(ctx context.Context, runID string) ([]core.ResultRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT package, name, status, duration_ms, message, file_path, line, col, created_at
		FROM results
		WHERE run_id = ?
		ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []core.ResultRecord
	for rows.Next() {
		var (
			result    core.ResultRecord
			message   sql.NullString
			filePath  sql.NullString
			line      sql.NullInt64
			col       sql.NullInt64
			createdAt string
		)
		if err := rows.Scan(&result.Package, &result.Name, &result.Status, &result.DurationMs,
			&message, &filePath, &line, &col, &createdAt); err != nil {
			return nil, err
		}
		result.RunID = runID
		result.Message = message.String
		result.FilePath = filePath.String
		result.Line = int(line.Int64)
		result.Column = int(col.Int64)
		result.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		results = append(results, result)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) GetRunSummary(ctx context.Context, runID string) (core.RunSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT status, started_at, finished_at
		FROM runs
		WHERE run_id = ?`,
		runID,
	)

	var (
		status     string
		startedAt  string
		finishedAt sql.NullString
	)
	if err := row.Scan(&status, &startedAt, &finishedAt); err != nil {
		return core.RunSummary{}, err
	}

	var resultCount, failureCount int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = 'fail' THEN 1 ELSE 0 END), 0)
		FROM results
		WHERE run_id = ?`,
		runID,
	).Scan(&resultCount, &failureCount); err != nil {
		return core.RunSummary{}, err
	}

	started, _ := time.Parse(time.RFC3339, startedAt)
	finished := time.Time{}
	if finishedAt.Valid {
		finished, _ = time.Parse(time.RFC3339, finishedAt.String)
	}

	return core.RunSummary{
		RunID:    runID,
		Status:   status,
		Results:  resultCount,
		Failures: failureCount,
		Started:  started,
		Finished: finished,
	}, nil
}
