package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

// SQLite keeps runs in a single database file, for the CLI and single-node
// deployments.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at path and applies the
// schema.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one writer; WAL lets readers proceed
	db.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}
	if err := execScript(ctx, db, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) SaveRun(ctx context.Context, run Run) error {
	c, err := encodeRun(run)
	if err != nil {
		return err
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = run.CreatedAt
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO solver_runs (id, status, created_at, updated_at, problem, config, best, result, error)
        VALUES (?,?,?,?,?,?,?,?,?)
        ON CONFLICT (id) DO UPDATE SET
          status=excluded.status, updated_at=excluded.updated_at, problem=COALESCE(excluded.problem, solver_runs.problem),
          config=excluded.config, best=excluded.best, result=excluded.result, error=excluded.error`,
		run.ID, run.Status, formatTime(run.CreatedAt), formatTime(run.UpdatedAt),
		nullJSON(c.problem), string(c.config), nullJSON(c.best), nullJSON(c.result), nullIfEmpty(run.Error),
	)
	return err
}

func (s *SQLite) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, status, created_at, updated_at, problem, config, best, result, error FROM solver_runs WHERE id=?`, id)
	r, err := scanSQLiteRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return r, err
}

func (s *SQLite) ListRuns(ctx context.Context, cursor string, limit int) ([]Run, string, error) {
	limit = clampLimit(limit)
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = s.db.QueryContext(ctx, `SELECT id, status, created_at, updated_at, problem, config, best, result, error FROM solver_runs WHERE id < ? ORDER BY id DESC LIMIT ?`, cursor, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT id, status, created_at, updated_at, problem, config, best, result, error FROM solver_runs ORDER BY id DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []Run{}
	var last string
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, r)
		last = r.ID
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func scanSQLiteRun(s rowScanner) (Run, error) {
	var r Run
	var created, updated string
	var problem, best, result, errText sql.NullString
	var config string
	if err := s.Scan(&r.ID, &r.Status, &created, &updated, &problem, &config, &best, &result, &errText); err != nil {
		return Run{}, err
	}
	var err error
	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Run{}, fmt.Errorf("created_at: %w", err)
	}
	if r.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return Run{}, fmt.Errorf("updated_at: %w", err)
	}
	r.Error = errText.String
	c := runColumns{config: []byte(config)}
	if problem.Valid {
		c.problem = []byte(problem.String)
	}
	if best.Valid {
		c.best = []byte(best.String)
	}
	if result.Valid {
		c.result = []byte(result.String)
	}
	return r, decodeRun(&r, c)
}
