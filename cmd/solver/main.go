// Command solver improves vehicle routes for one problem document and prints
// the result.
//
//	solver -problem p.yaml [-seeds 4] [-families relocate,two_opt] [-out result.json]
//
// Settings come, lowest first, from defaults, the -config file, the
// environment, the document's search block, and the flags given here.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/go-logr/logr"

	"vrptabu/internal/buildinfo"
	"vrptabu/internal/config"
	"vrptabu/internal/logging"
	"vrptabu/internal/metrics"
	"vrptabu/internal/opt"
	"vrptabu/internal/problemio"
	"vrptabu/internal/seed"
	"vrptabu/internal/store"
)

type options struct {
	problem    string
	configPath string
	out        string
	format     string
	sqlitePath string
	logLevel   string
	seeds      int
	seedRand   int64
	tenure     int
	iterations int
	stagnation int
	workers    int
	families   string
	timeBudget time.Duration
	version    bool
}

func main() {
	var o options
	fs := flag.NewFlagSet("solver", flag.ExitOnError)
	fs.StringVar(&o.problem, "problem", "", "problem document (.yaml, .yml or .json)")
	fs.StringVar(&o.configPath, "config", "", "YAML config file")
	fs.StringVar(&o.out, "out", "", "write the result here instead of stdout")
	fs.StringVar(&o.format, "format", "", "result format: yaml or json (default from -out, else yaml)")
	fs.StringVar(&o.sqlitePath, "sqlite", "", "also record the run in this SQLite database")
	fs.StringVar(&o.logLevel, "log-level", "", "debug, info, warn, error or a verbosity number")
	fs.IntVar(&o.seeds, "seeds", 0, "greedy seeds to start from when the document has none")
	fs.Int64Var(&o.seedRand, "seed-rand", 0, "random seed for shuffled greedy seeds")
	fs.IntVar(&o.tenure, "tenure", 0, "tabu tenure")
	fs.IntVar(&o.iterations, "iterations", 0, "maximum iterations")
	fs.IntVar(&o.stagnation, "stagnation", 0, "stop after this many iterations without improvement")
	fs.IntVar(&o.workers, "workers", 0, "goroutines per move search (0 = GOMAXPROCS)")
	fs.StringVar(&o.families, "families", "", "comma separated move families")
	fs.DurationVar(&o.timeBudget, "time-budget", 0, "wall-clock cap per seed")
	fs.BoolVar(&o.version, "version", false, "print version and exit")
	_ = fs.Parse(os.Args[1:])

	if o.version {
		fmt.Println(buildinfo.String())
		return
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, o, set, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "solver:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, set map[string]bool, stdout io.Writer) error {
	if o.problem == "" {
		return errors.New("-problem is required")
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if set["log-level"] {
		cfg.LogLevel = o.logLevel
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return err
	}

	doc, err := problemio.LoadFile(o.problem)
	if err != nil {
		return fmt.Errorf("load %s: %w", o.problem, err)
	}
	p, seeds, err := doc.Build()
	if err != nil {
		return fmt.Errorf("problem %s: %w", o.problem, err)
	}

	search := cfg.Search()
	if doc.Search != nil {
		search = search.Overlay(*doc.Search)
	}
	if err := applyFlags(&search, &cfg, o, set); err != nil {
		return err
	}
	if err := search.Validate(); err != nil {
		return err
	}

	var providers []opt.InitialSolutionProvider
	count := cfg.Seeds
	if len(seeds) > 0 {
		providers = []opt.InitialSolutionProvider{seed.Fixed{Label: "document", Solutions: seeds}}
		count = 0
	} else {
		providers = []opt.InitialSolutionProvider{seed.Greedy{Seed: cfg.SeedRand}, seed.Regret{}}
	}

	runID := store.NewRunID()
	log = log.WithValues("runId", runID)
	log.Info("solving", "problem", o.problem, "customers", p.NumCustomers(), "vehicles", p.NumVehicles(), "providers", len(providers))
	started := time.Now().UTC()
	res, err := opt.SolveBest(ctx, p, providers, count, opt.TabuSearch{Config: search, Logger: log})
	if err != nil {
		return err
	}
	for _, sr := range res.Seeds {
		metrics.ObserveRun(sr.Metrics)
		log.V(1).Info("seed", "provider", sr.Provider, "index", sr.Index, "initial", sr.Initial, "improved", sr.Improved, "feasible", sr.Feasible)
	}
	m := res.Seeds[res.BestSeed].Metrics
	result := problemio.NewResult(p, res.Best, &m)
	if !result.Feasible {
		log.Info("best solution violates constraints", "violations", result.Violations)
	}

	if err := writeResult(stdout, o, result); err != nil {
		return err
	}
	if o.sqlitePath != "" {
		return record(ctx, log, o.sqlitePath, store.Run{
			ID:        runID,
			Status:    store.StatusDone,
			CreatedAt: started,
			UpdatedAt: time.Now().UTC(),
			Problem:   mustJSON(doc.Problem),
			Config:    search,
			Best:      &res.Best,
			Result:    &result,
		})
	}
	return nil
}

func applyFlags(search *opt.Config, cfg *config.Config, o options, set map[string]bool) error {
	if set["tenure"] {
		search.Tenure = o.tenure
	}
	if set["iterations"] {
		search.MaxIterations = o.iterations
	}
	if set["stagnation"] {
		search.StagnationLimit = o.stagnation
	}
	if set["workers"] {
		search.Workers = o.workers
	}
	if set["time-budget"] {
		search.TimeBudget = o.timeBudget
	}
	if set["families"] {
		fams, err := config.ParseFamilies(o.families)
		if err != nil {
			return err
		}
		search.Families = fams
	}
	if set["seeds"] {
		cfg.Seeds = o.seeds
	}
	if set["seed-rand"] {
		cfg.SeedRand = o.seedRand
	}
	return nil
}

func writeResult(stdout io.Writer, o options, result problemio.ResultDoc) error {
	format := problemio.Format(o.format)
	if format == "" {
		format = problemio.FormatYAML
		if o.out != "" {
			format = problemio.FormatFromPath(o.out)
		}
	}
	if o.out == "" {
		return problemio.Encode(stdout, format, result)
	}
	f, err := os.Create(o.out)
	if err != nil {
		return err
	}
	if err := problemio.Encode(f, format, result); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func record(ctx context.Context, log logr.Logger, path string, run store.Run) error {
	db, err := store.NewSQLite(ctx, path)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	log.Info("run recorded", "sqlite", path)
	return nil
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
