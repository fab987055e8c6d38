// Package resultsdb archives final experiment rankings in a standalone SQLite file.
package resultsdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"botarena/internal/store"

	_ "modernc.org/sqlite"
)

// ResultStore manages the experiment_results table.
type ResultStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

var _ store.ResultArchive = (*ResultStore)(nil)

func NewResultStore(root string) (*ResultStore, error) {
	if root == "" {
		return nil, fmt.Errorf("result store root cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(root, "results.db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureResultSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &ResultStore{db: db, path: path}, nil
}

func (s *ResultStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureResultSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS experiment_results (
			experiment_id TEXT NOT NULL,
			rank INTEGER NOT NULL,
			bot_id TEXT NOT NULL,
			bot_index INTEGER NOT NULL,
			kind TEXT NOT NULL,
			total_trades INTEGER NOT NULL DEFAULT 0,
			wins INTEGER NOT NULL DEFAULT 0,
			losses INTEGER NOT NULL DEFAULT 0,
			total_profit REAL NOT NULL DEFAULT 0,
			current_equity REAL NOT NULL DEFAULT 0,
			skipped_ticks INTEGER NOT NULL DEFAULT 0,
			dropped_events INTEGER NOT NULL DEFAULT 0,
			archived_at INTEGER NOT NULL,
			PRIMARY KEY (experiment_id, bot_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_results_rank ON experiment_results(experiment_id, rank);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("result schema: %w", err)
		}
	}
	return nil
}

// Archive replaces the stored ranking of every experiment present in rows.
func (s *ResultStore) Archive(ctx context.Context, rows []store.ResultRecord) error {
	if len(rows) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return fmt.Errorf("result store closed")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	seen := make(map[string]bool)
	for _, r := range rows {
		if seen[r.ExperimentID] {
			continue
		}
		seen[r.ExperimentID] = true
		if _, err := tx.ExecContext(ctx, `DELETE FROM experiment_results WHERE experiment_id = ?`, r.ExperimentID); err != nil {
			return err
		}
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO experiment_results
		(experiment_id, rank, bot_id, bot_index, kind, total_trades, wins, losses,
		 total_profit, current_equity, skipped_ticks, dropped_events, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		at := r.ArchivedAt
		if at.IsZero() {
			at = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, r.ExperimentID, r.Rank, r.BotID, r.BotIndex, r.Kind,
			r.TotalTrades, r.Wins, r.Losses, r.TotalProfit, r.CurrentEquity,
			r.SkippedTicks, r.DroppedEvents, at.UnixMilli()); err != nil {
			return fmt.Errorf("archive %s/%s: %w", r.ExperimentID, r.BotID, err)
		}
	}
	return tx.Commit()
}

func (s *ResultStore) Results(ctx context.Context, experimentID string) ([]store.ResultRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("result store closed")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT experiment_id, rank, bot_id, bot_index, kind, total_trades,
		wins, losses, total_profit, current_equity, skipped_ticks, dropped_events, archived_at
		FROM experiment_results WHERE experiment_id = ? ORDER BY rank ASC`, experimentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.ResultRecord
	for rows.Next() {
		var r store.ResultRecord
		var at int64
		if err := rows.Scan(&r.ExperimentID, &r.Rank, &r.BotID, &r.BotIndex, &r.Kind, &r.TotalTrades,
			&r.Wins, &r.Losses, &r.TotalProfit, &r.CurrentEquity, &r.SkippedTicks, &r.DroppedEvents, &at); err != nil {
			return nil, err
		}
		r.ArchivedAt = time.UnixMilli(at)
		out = append(out, r)
	}
	return out, rows.Err()
}
