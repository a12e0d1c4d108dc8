package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed schema/postgres.sql
var postgresSchema string

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// Migrate creates the runs table if it is missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	return execScript(ctx, p.db, postgresSchema)
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) SaveRun(ctx context.Context, run Run) error {
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
	_, err = p.db.ExecContext(ctx, `INSERT INTO solver_runs (id, status, created_at, updated_at, problem, config, best, result, error)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (id) DO UPDATE SET
          status=$2, updated_at=$4, problem=COALESCE($5, solver_runs.problem), config=$6, best=$7, result=$8, error=$9`,
		run.ID, run.Status, run.CreatedAt, run.UpdatedAt,
		nullJSON(c.problem), string(c.config), nullJSON(c.best), nullJSON(c.result), nullIfEmpty(run.Error),
	)
	return err
}

func (p *Postgres) GetRun(ctx context.Context, id string) (Run, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id, status, created_at, updated_at, problem, config, best, result, error FROM solver_runs WHERE id=$1`, id)
	r, err := scanPostgresRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return r, err
}

func (p *Postgres) ListRuns(ctx context.Context, cursor string, limit int) ([]Run, string, error) {
	limit = clampLimit(limit)
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id, status, created_at, updated_at, problem, config, best, result, error FROM solver_runs WHERE id < $1 ORDER BY id DESC LIMIT $2`, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id, status, created_at, updated_at, problem, config, best, result, error FROM solver_runs ORDER BY id DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []Run{}
	var last string
	for rows.Next() {
		r, err := scanPostgresRun(rows)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPostgresRun(s rowScanner) (Run, error) {
	var r Run
	var c runColumns
	var errText sql.NullString
	if err := s.Scan(&r.ID, &r.Status, &r.CreatedAt, &r.UpdatedAt, &c.problem, &c.config, &c.best, &c.result, &errText); err != nil {
		return Run{}, err
	}
	r.Error = errText.String
	return r, decodeRun(&r, c)
}
