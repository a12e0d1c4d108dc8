package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is a simple in-memory store used when no database is configured.
type Memory struct {
	mu   sync.Mutex
	runs map[string]Run
	ids  []string // ascending
}

func NewMemory() *Memory {
	return &Memory{runs: map[string]Run{}}
}

func (m *Memory) SaveRun(ctx context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.runs[run.ID]; ok {
		if len(run.Problem) == 0 {
			run.Problem = prev.Problem
		}
	} else {
		i := sort.SearchStrings(m.ids, run.ID)
		m.ids = append(m.ids, "")
		copy(m.ids[i+1:], m.ids[i:])
		m.ids[i] = run.ID
	}
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) GetRun(ctx context.Context, id string) (Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return Run{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) ListRuns(ctx context.Context, cursor string, limit int) ([]Run, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = clampLimit(limit)
	end := len(m.ids)
	if cursor != "" {
		end = sort.SearchStrings(m.ids, cursor)
	}
	out := []Run{}
	var last string
	for i := end - 1; i >= 0 && len(out) < limit; i-- {
		r := m.runs[m.ids[i]]
		out = append(out, r)
		last = r.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}
