package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"vrptabu/internal/opt"
	"vrptabu/internal/problemio"
)

// Run states.
const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Run is one solve request and, once finished, its outcome.
type Run struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	// Problem is the submitted problem document, kept verbatim.
	Problem json.RawMessage      `json:"problem,omitempty"`
	Config  opt.Config           `json:"config"`
	Best    *opt.Solution        `json:"best,omitempty"`
	Result  *problemio.ResultDoc `json:"result,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// Store is the persistence interface used by the API server and the CLI.
type Store interface {
	// SaveRun inserts the run or replaces the stored one with the same ID.
	SaveRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, id string) (Run, error)
	// ListRuns pages newest first. The returned cursor is empty on the last page.
	ListRuns(ctx context.Context, cursor string, limit int) ([]Run, string, error)
}

var ErrNotFound = errors.New("not found")

// NewRunID returns a time-ordered ID, so ID order is creation order.
func NewRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}

// runColumns is the JSON-encoded form shared by the SQL stores.
type runColumns struct {
	config, problem, best, result []byte
}

func encodeRun(r Run) (runColumns, error) {
	var c runColumns
	var err error
	if c.config, err = json.Marshal(r.Config); err != nil {
		return c, fmt.Errorf("encode config: %w", err)
	}
	if len(r.Problem) > 0 {
		c.problem = r.Problem
	}
	if r.Best != nil {
		if c.best, err = json.Marshal(r.Best); err != nil {
			return c, fmt.Errorf("encode best: %w", err)
		}
	}
	if r.Result != nil {
		if c.result, err = json.Marshal(r.Result); err != nil {
			return c, fmt.Errorf("encode result: %w", err)
		}
	}
	return c, nil
}

func decodeRun(r *Run, c runColumns) error {
	if len(c.config) > 0 {
		if err := json.Unmarshal(c.config, &r.Config); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	}
	if len(c.problem) > 0 {
		r.Problem = json.RawMessage(c.problem)
	}
	if len(c.best) > 0 {
		r.Best = &opt.Solution{}
		if err := json.Unmarshal(c.best, r.Best); err != nil {
			return fmt.Errorf("decode best: %w", err)
		}
	}
	if len(c.result) > 0 {
		r.Result = &problemio.ResultDoc{}
		if err := json.Unmarshal(c.result, r.Result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

// nullJSON maps an empty document to SQL NULL.
func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// execScript runs a schema file one statement at a time.
func execScript(ctx context.Context, db *sql.DB, script string) error {
	for _, stmt := range strings.Split(script, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	return nil
}
