package opt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
)

// Stop reasons reported in Metrics.StopReason.
const (
	StopIterations = "iterations"
	StopStagnation = "stagnation"
	StopDeadline   = "deadline"
)

// Config controls one tabu search run.
type Config struct {
	Tenure          int      `json:"tenure" yaml:"tenure"`
	MaxIterations   int      `json:"maxIterations" yaml:"maxIterations"`
	StagnationLimit int      `json:"stagnationLimit" yaml:"stagnationLimit"`
	Families        []Family `json:"families,omitempty" yaml:"families,omitempty"`
	// Workers bounds per-move search goroutines; 0 means GOMAXPROCS.
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty"`
	// TimeBudget caps wall-clock time; 0 means no cap.
	TimeBudget time.Duration `json:"timeBudget,omitempty" yaml:"timeBudget,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Tenure:          DefaultTenure,
		MaxIterations:   100,
		StagnationLimit: 20,
		Families:        AllFamilies(),
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Tenure == 0 {
		c.Tenure = d.Tenure
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.StagnationLimit == 0 {
		c.StagnationLimit = d.StagnationLimit
	}
	if len(c.Families) == 0 {
		c.Families = d.Families
	}
	return c
}

// Overlay returns c with every non-zero field of o applied on top. Zero
// fields in o mean unset, as they do for withDefaults.
func (c Config) Overlay(o Config) Config {
	if o.Tenure != 0 {
		c.Tenure = o.Tenure
	}
	if o.MaxIterations != 0 {
		c.MaxIterations = o.MaxIterations
	}
	if o.StagnationLimit != 0 {
		c.StagnationLimit = o.StagnationLimit
	}
	if len(o.Families) > 0 {
		c.Families = append([]Family(nil), o.Families...)
	}
	if o.Workers != 0 {
		c.Workers = o.Workers
	}
	if o.TimeBudget != 0 {
		c.TimeBudget = o.TimeBudget
	}
	return c
}

func (c Config) Validate() error {
	if c.Tenure < 0 {
		return fmt.Errorf("tenure must be >= 0, got %d", c.Tenure)
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("maxIterations must be >= 0, got %d", c.MaxIterations)
	}
	if c.StagnationLimit < 0 {
		return fmt.Errorf("stagnationLimit must be >= 0, got %d", c.StagnationLimit)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.TimeBudget < 0 {
		return errors.New("timeBudget must be >= 0")
	}
	seen := map[Family]bool{}
	for _, f := range c.Families {
		if f < 0 || f >= numFamilies {
			return fmt.Errorf("unknown move family %d", int(f))
		}
		if seen[f] {
			return fmt.Errorf("move family %s listed twice", f)
		}
		seen[f] = true
	}
	return nil
}

// Metrics summarises a run.
type Metrics struct {
	Iterations       int                 `json:"iterations"`
	Improvements     int                 `json:"improvements"`
	InitialObjective float64             `json:"initialObjective"`
	BestObjective    float64             `json:"bestObjective"`
	FamilyWins       map[string]int      `json:"familyWins"`
	TabuSkipped      int                 `json:"tabuSkipped"`
	Aspirated        int                 `json:"aspirated"`
	StopReason       string              `json:"stopReason"`
	Duration         time.Duration       `json:"duration"`
	Snapshots        []ObjectiveSnapshot `json:"snapshots,omitempty"`
}

// ObjectiveSnapshot is recorded every snapshotEvery iterations.
type ObjectiveSnapshot struct {
	Iteration int     `json:"iteration"`
	Current   float64 `json:"current"`
	Best      float64 `json:"best"`
	TabuSize  int     `json:"tabuSize"`
}

const snapshotEvery = 10

// IterationEvent is delivered to the observer after every iteration.
type IterationEvent struct {
	Iteration  int     `json:"iteration"`
	Winner     string  `json:"winner"`
	Current    float64 `json:"current"`
	Best       float64 `json:"best"`
	Improved   bool    `json:"improved"`
	Stagnation int     `json:"stagnation"`
}

// Engine runs tabu search over a fixed problem. It is safe to call Improve
// from several goroutines; each call owns its own memory.
type Engine struct {
	p        *Problem
	cfg      Config
	log      logr.Logger
	observer func(IterationEvent)
	newMove  func(Family) Move
}

type EngineOption func(*Engine)

func WithLogger(l logr.Logger) EngineOption { return func(e *Engine) { e.log = l } }

// WithObserver registers fn to be called synchronously after each iteration.
func WithObserver(fn func(IterationEvent)) EngineOption {
	return func(e *Engine) { e.observer = fn }
}

func NewEngine(p *Problem, cfg Config, opts ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, precondition("search", "%v", err)
	}
	e := &Engine{p: p, cfg: cfg.withDefaults(), log: logr.Discard(), newMove: NewMove}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

func (e *Engine) Config() Config { return e.cfg }

// Improve runs the search from initial and returns the best-known solution.
// initial must satisfy ValidateSolution; the engine does not re-check it.
//
// Each family walks its own working copy. A family whose operator finds no
// admissible improving move restarts from the best-known solution, so a
// family's current objective may sit above the best and its tabu list then
// blocks moves that aspiration does not rescue.
func (e *Engine) Improve(ctx context.Context, initial Solution) (Solution, Metrics) {
	start := time.Now()
	if e.cfg.TimeBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.TimeBudget)
		defer cancel()
	}
	p := e.p
	families := e.cfg.Families
	moves := make([]Move, len(families))
	for i, f := range families {
		moves[i] = e.newMove(f)
	}
	memory := NewTabuMemory(e.cfg.Tenure)
	working := make([]Solution, len(families))
	for i := range working {
		working[i] = initial.Clone()
	}
	best := initial.Clone()
	bestObj := Objective(p, best)
	m := Metrics{InitialObjective: bestObj, BestObjective: bestObj, FamilyWins: map[string]int{}}
	e.log.Info("tabu search started", "routes", len(initial.Routes), "objective", bestObj, "families", len(families))

	stagnation := 0
	for {
		if m.Iterations >= e.cfg.MaxIterations {
			m.StopReason = StopIterations
			break
		}
		if stagnation >= e.cfg.StagnationLimit {
			m.StopReason = StopStagnation
			break
		}
		if ctx.Err() != nil {
			m.StopReason = StopDeadline
			break
		}
		m.Iterations++

		// families are distinct, so each goroutine only reads its own list;
		// lists are written after the barrier
		outcomes := make([]MoveResult, len(families))
		var g errgroup.Group
		for i, mv := range moves {
			i, mv := i, mv
			g.Go(func() error {
				mc := MoveContext{Problem: p, Tabu: memory.List(mv.Family()), Aspiration: bestObj, Workers: e.cfg.Workers}
				outcomes[i] = mv.Apply(mc, working[i])
				return nil
			})
		}
		_ = g.Wait()

		win := 0
		for i := range outcomes {
			if outcomes[i].Improved {
				// deltas accumulate rounding error; rescore once
				outcomes[i].Objective = Objective(p, outcomes[i].Solution)
			}
			m.TabuSkipped += outcomes[i].TabuSkipped
			m.Aspirated += outcomes[i].Aspirated
			if outcomes[i].Objective < outcomes[win].Objective-1e-9 {
				win = i
			}
		}
		chosen := outcomes[win]
		if chosen.Improved {
			m.FamilyWins[families[win].String()]++
		}

		improved := chosen.Objective < bestObj-improveEps
		if improved {
			best = chosen.Solution.Clone()
			bestObj = chosen.Objective
			m.Improvements++
			stagnation = 0
		} else {
			stagnation++
		}

		// age old entries first so keys recorded this iteration keep full tenure
		memory.Decay()
		for i, f := range families {
			if len(outcomes[i].Keys) == 0 {
				continue
			}
			fresh := NewTabuList(e.cfg.Tenure)
			for _, k := range outcomes[i].Keys {
				fresh.Record(k)
			}
			memory.List(f).Merge(fresh)
		}

		for i, o := range outcomes {
			if o.Improved {
				working[i] = o.Solution
			} else {
				working[i] = best.Clone()
			}
		}

		if m.Iterations%snapshotEvery == 0 {
			m.Snapshots = append(m.Snapshots, ObjectiveSnapshot{
				Iteration: m.Iterations, Current: chosen.Objective, Best: bestObj, TabuSize: tabuSize(memory),
			})
		}
		ev := IterationEvent{
			Iteration: m.Iterations, Winner: families[win].String(), Current: chosen.Objective,
			Best: bestObj, Improved: improved, Stagnation: stagnation,
		}
		e.log.V(1).Info("tabu iteration", "iteration", ev.Iteration, "winner", ev.Winner, "current", ev.Current, "best", ev.Best, "stagnation", stagnation)
		if e.observer != nil {
			e.observer(ev)
		}
	}
	m.BestObjective = bestObj
	m.Duration = time.Since(start)
	e.log.Info("tabu search finished", "iterations", m.Iterations, "improvements", m.Improvements,
		"initial", m.InitialObjective, "best", m.BestObjective, "stopReason", m.StopReason, "duration", m.Duration)
	return best, m
}

func tabuSize(m *TabuMemory) int {
	n := 0
	for _, l := range m.lists {
		n += l.Len()
	}
	return n
}

// ConstructImprovedSolution runs an engine configured by cfg over initial.
// An invalid cfg is a precondition violation.
func ConstructImprovedSolution(ctx context.Context, p *Problem, initial Solution, cfg Config) (Solution, error) {
	e, err := NewEngine(p, cfg)
	if err != nil {
		return Solution{}, err
	}
	best, _ := e.Improve(ctx, initial)
	return best, nil
}
