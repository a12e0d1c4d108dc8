package opt

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
)

// ErrNoSeeds is returned when no provider produced a solution.
var ErrNoSeeds = errors.New("no initial solutions")

// InitialSolutionProvider builds seed solutions. Returned solutions must be
// in canonical form and respect the split invariants.
type InitialSolutionProvider interface {
	Name() string
	Generate(p *Problem, count int) ([]Solution, error)
}

// Improver turns a seed into a (hopefully) better solution.
type Improver interface {
	Name() string
	Improve(ctx context.Context, p *Problem, s Solution) (Solution, Metrics, error)
}

// TabuSearch is the Improver backed by Engine.
type TabuSearch struct {
	Config   Config
	Logger   logr.Logger
	Observer func(IterationEvent)
}

func (TabuSearch) Name() string { return "tabu" }

func (t TabuSearch) Improve(ctx context.Context, p *Problem, s Solution) (Solution, Metrics, error) {
	opts := []EngineOption{WithObserver(t.Observer)}
	if t.Logger.GetSink() != nil {
		opts = append(opts, WithLogger(t.Logger))
	}
	e, err := NewEngine(p, t.Config, opts...)
	if err != nil {
		return Solution{}, Metrics{}, err
	}
	best, m := e.Improve(ctx, s)
	return best, m, nil
}

// SeedReport describes one seed's trip through the improver.
type SeedReport struct {
	Provider   string   `json:"provider"`
	Index      int      `json:"index"`
	Initial    float64  `json:"initial"`
	Improved   float64  `json:"improved"`
	Feasible   bool     `json:"feasible"`
	Violations []string `json:"violations,omitempty"`
	Metrics    Metrics  `json:"metrics"`
}

// Result is the outcome of SolveBest.
type Result struct {
	Best      Solution     `json:"best"`
	Objective float64      `json:"objective"`
	BestSeed  int          `json:"bestSeed"`
	Seeds     []SeedReport `json:"seeds"`
}

type seed struct {
	provider string
	index    int
	sln      Solution
}

// SolveBest asks every provider for count seeds, improves each one, and keeps
// the lowest-objective result. Seeds are improved concurrently; ties go to
// the earlier seed.
func SolveBest(ctx context.Context, p *Problem, providers []InitialSolutionProvider, count int, improver Improver) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	var seeds []seed
	for _, prov := range providers {
		slns, err := prov.Generate(p, count)
		if err != nil {
			return Result{}, fmt.Errorf("provider %s: %w", prov.Name(), err)
		}
		for i, s := range slns {
			if err := ValidateSolution(p, s); err != nil {
				return Result{}, fmt.Errorf("provider %s seed %d: %w", prov.Name(), i, err)
			}
			seeds = append(seeds, seed{provider: prov.Name(), index: i, sln: s})
		}
	}
	if len(seeds) == 0 {
		return Result{}, ErrNoSeeds
	}

	improved := make([]Solution, len(seeds))
	reports := make([]SeedReport, len(seeds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, sd := range seeds {
		i, sd := i, sd
		g.Go(func() error {
			out, m, err := improver.Improve(gctx, p, sd.sln)
			if err != nil {
				return fmt.Errorf("%s seed %d: %w", sd.provider, sd.index, err)
			}
			improved[i] = out
			reports[i] = SeedReport{
				Provider:   sd.provider,
				Index:      sd.index,
				Initial:    Objective(p, sd.sln),
				Improved:   Objective(p, out),
				Violations: Violations(p, out),
				Metrics:    m,
			}
			reports[i].Feasible = len(reports[i].Violations) == 0
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	best := 0
	for i := range seeds {
		if reports[i].Improved < reports[best].Improved {
			best = i
		}
	}
	return Result{Best: improved[best], Objective: reports[best].Improved, BestSeed: best, Seeds: reports}, nil
}
