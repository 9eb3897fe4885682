package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"gridchase/grid_world"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

// SaveRun replaces any run with the same id, routes included.
func (s *SQLiteStore) SaveRun(ctx context.Context, run Run) (err error) {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, width, height, cell_dim)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			created_at = excluded.created_at,
			width = excluded.width,
			height = excluded.height,
			cell_dim = excluded.cell_dim
	`, run.ID, run.CreatedAt.UnixNano(), run.Width, run.Height, run.CellDim); err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM routes WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}

	var stmt *sql.Stmt
	if stmt, err = tx.PrepareContext(ctx, `
		INSERT INTO routes (run_id, player_x, player_y, goal_x, goal_y, up_moves, down_moves, left_moves, right_moves)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`); err != nil {
		return err
	}
	defer stmt.Close()

	for _, key := range run.Ledger.Keys() {
		counts := run.Ledger[key]
		if _, err = stmt.ExecContext(ctx,
			run.ID,
			key.Player.X, key.Player.Y,
			key.Goal.X, key.Goal.Y,
			counts.Up, counts.Down, counts.Left, counts.Right,
		); err != nil {
			return fmt.Errorf("save route %v of run %s: %w", key, run.ID, err)
		}
	}

	err = tx.Commit()
	return
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (Run, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return Run{}, false, err
	}

	run := Run{ID: id}
	var createdAt int64
	err = db.QueryRowContext(ctx, `
		SELECT created_at, width, height, cell_dim FROM runs WHERE id = ?
	`, id).Scan(&createdAt, &run.Width, &run.Height, &run.CellDim)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, false, nil
		}
		return Run{}, false, err
	}
	run.CreatedAt = time.Unix(0, createdAt).UTC()

	rows, err := db.QueryContext(ctx, `
		SELECT player_x, player_y, goal_x, goal_y, up_moves, down_moves, left_moves, right_moves
		FROM routes WHERE run_id = ?
	`, id)
	if err != nil {
		return Run{}, false, err
	}
	defer rows.Close()

	run.Ledger = grid_world.Ledger{}
	for rows.Next() {
		var key grid_world.RouteKey
		var counts grid_world.MoveCounts
		if err := rows.Scan(
			&key.Player.X, &key.Player.Y,
			&key.Goal.X, &key.Goal.Y,
			&counts.Up, &counts.Down, &counts.Left, &counts.Right,
		); err != nil {
			return Run{}, false, fmt.Errorf("decode routes of run %s: %w", id, err)
		}
		run.Ledger[key] = counts
	}
	if err := rows.Err(); err != nil {
		return Run{}, false, err
	}
	return run, true, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]string, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id FROM runs ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			cell_dim INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS routes (
			run_id TEXT NOT NULL REFERENCES runs(id),
			player_x INTEGER NOT NULL,
			player_y INTEGER NOT NULL,
			goal_x INTEGER NOT NULL,
			goal_y INTEGER NOT NULL,
			up_moves INTEGER NOT NULL,
			down_moves INTEGER NOT NULL,
			left_moves INTEGER NOT NULL,
			right_moves INTEGER NOT NULL,
			PRIMARY KEY (run_id, player_x, player_y, goal_x, goal_y)
		);
	`)
	return err
}
