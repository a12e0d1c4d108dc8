package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vrptabu/internal/opt"
	"vrptabu/internal/problemio"
	"vrptabu/internal/store"
)

const lineProblem = `
problem:
  customers:
    - id: 0
    - {id: 1, demand: {volume: 1, weight: 1}}
    - {id: 2, demand: {volume: 1, weight: 1}}
    - {id: 3, demand: {volume: 1, weight: 1}}
    - {id: 4, demand: {volume: 1, weight: 1}}
  vehicles:
    - {id: 1, capacity: {volume: 2, weight: 2}, fixedCost: 10, variableCost: 1}
    - {id: 2, capacity: {volume: 2, weight: 2}, fixedCost: 10, variableCost: 1}
  locations:
    - {x: 0, y: 0}
    - {x: 10, y: 0}
    - {x: -10, y: 0}
    - {x: 11, y: 0}
    - {x: -11, y: 0}
solutions:
  - routes:
      - {vehicle: 0, stops: [1, 2]}
      - {vehicle: 1, stops: [3, 4]}
search:
  maxIterations: 5
`

func writeProblem(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "problem.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRunImprovesDocumentSeed(t *testing.T) {
	dir := t.TempDir()
	o := options{
		problem:    writeProblem(t, lineProblem),
		out:        filepath.Join(dir, "result.json"),
		sqlitePath: filepath.Join(dir, "runs.db"),
		families:   "exchange",
	}
	set := map[string]bool{"families": true}
	require.NoError(t, run(context.Background(), o, set, &bytes.Buffer{}))

	b, err := os.ReadFile(o.out)
	require.NoError(t, err)
	var res problemio.ResultDoc
	require.NoError(t, json.Unmarshal(b, &res))
	assert.True(t, res.Feasible)
	// both vehicles used; each side of the depot travels 11 out and back
	assert.InDelta(t, 2*(22+22+10), res.Objective, 1e-6)
	require.NotNil(t, res.Metrics)
	assert.Equal(t, 1, res.Metrics.FamilyWins["exchange"])

	db, err := store.NewSQLite(context.Background(), o.sqlitePath)
	require.NoError(t, err)
	defer db.Close()
	runs, _, err := db.ListRuns(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.StatusDone, runs[0].Status)
	assert.Equal(t, []opt.Family{opt.FamilyExchange}, runs[0].Config.Families)
	assert.Equal(t, 5, runs[0].Config.MaxIterations, "document search block is kept under flags")
}

func TestRunOverlaysDocumentSearchOnConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "solver.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("tabu:\n  maxIterations: 7\n  stagnationLimit: 9\n"), 0o644))
	doc := strings.Replace(lineProblem, "search:\n  maxIterations: 5\n", "search:\n  tenure: 3\n", 1)
	o := options{
		problem:    writeProblem(t, doc),
		configPath: cfgPath,
		sqlitePath: filepath.Join(dir, "runs.db"),
	}
	require.NoError(t, run(context.Background(), o, nil, &bytes.Buffer{}))

	db, err := store.NewSQLite(context.Background(), o.sqlitePath)
	require.NoError(t, err)
	defer db.Close()
	runs, _, err := db.ListRuns(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	got := runs[0].Config
	assert.Equal(t, 3, got.Tenure)
	assert.Equal(t, 7, got.MaxIterations)
	assert.Equal(t, 9, got.StagnationLimit)
	assert.Equal(t, opt.AllFamilies(), got.Families)
}

func TestRunGeneratesSeedsAndPrintsYAML(t *testing.T) {
	doc := `
problem:
  customers: [{id: 0}, {id: 5, demand: {volume: 1, weight: 1}}, {id: 6, demand: {volume: 1, weight: 1}}]
  vehicles: [{id: 1, capacity: {volume: 5, weight: 5}, variableCost: 1}]
  locations: [{x: 0, y: 0}, {x: 3, y: 4}, {x: 6, y: 8}]
`
	var out bytes.Buffer
	o := options{problem: writeProblem(t, doc), seeds: 2, iterations: 3}
	require.NoError(t, run(context.Background(), o, map[string]bool{"seeds": true, "iterations": true}, &out))
	assert.Contains(t, out.String(), "feasible: true")
	assert.Contains(t, out.String(), "vehicleId: 1")
}

func TestRunErrors(t *testing.T) {
	ctx := context.Background()
	assert.Error(t, run(ctx, options{}, nil, &bytes.Buffer{}))
	assert.Error(t, run(ctx, options{problem: filepath.Join(t.TempDir(), "none.yaml")}, nil, &bytes.Buffer{}))

	o := options{problem: writeProblem(t, lineProblem), families: "or_opt"}
	assert.Error(t, run(ctx, o, map[string]bool{"families": true}, &bytes.Buffer{}))

	o = options{problem: writeProblem(t, lineProblem), tenure: -3}
	assert.Error(t, run(ctx, o, map[string]bool{"tenure": true}, &bytes.Buffer{}))
}
