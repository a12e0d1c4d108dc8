package opt

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineScenarioANeverWorsens(t *testing.T) {
	p := scenarioA()
	initial := solution(route(0, 0, 2, 1, 3, 0))
	e, err := NewEngine(p, DefaultConfig())
	require.NoError(t, err)

	best, m := e.Improve(context.Background(), initial)
	assert.LessOrEqual(t, Objective(p, best), Objective(p, initial))
	assert.InDelta(t, 85.0, m.BestObjective, 1e-9)
	assert.InDelta(t, Objective(p, initial), m.InitialObjective, 1e-9)
	assert.True(t, SatisfiesAll(p, best, nil))
	assert.Equal(t, StopStagnation, m.StopReason)
	assert.Equal(t, 1, m.Improvements)
	// one improving iteration, then twenty without
	assert.Equal(t, 21, m.Iterations)
}

func TestEngineStopsOnIterationCap(t *testing.T) {
	p := scenarioA()
	cfg := DefaultConfig()
	cfg.MaxIterations = 3
	cfg.StagnationLimit = 50
	e, err := NewEngine(p, cfg)
	require.NoError(t, err)
	_, m := e.Improve(context.Background(), solution(route(0, 0, 1, 2, 3, 0)))
	assert.Equal(t, 3, m.Iterations)
	assert.Equal(t, StopIterations, m.StopReason)
}

func TestEngineStopsOnCancelledContext(t *testing.T) {
	p := scenarioA()
	e, err := NewEngine(p, DefaultConfig())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	initial := solution(route(0, 0, 2, 1, 3, 0))
	best, m := e.Improve(ctx, initial)
	assert.Equal(t, StopDeadline, m.StopReason)
	assert.Zero(t, m.Iterations)
	assert.Equal(t, initial, best)
}

func TestEngineObserverAndLogger(t *testing.T) {
	p := scenarioA()
	var events []IterationEvent
	e, err := NewEngine(p, Config{MaxIterations: 5, StagnationLimit: 2},
		WithObserver(func(ev IterationEvent) { events = append(events, ev) }))
	require.NoError(t, err)
	_, m := e.Improve(context.Background(), solution(route(0, 0, 2, 1, 3, 0)))
	require.Len(t, events, m.Iterations)
	// relocate, exchange and two_opt all reach 85 first; ties go to family order
	assert.Equal(t, "relocate", events[0].Winner)
	assert.True(t, events[0].Improved)
	assert.Equal(t, map[string]int{"relocate": 1}, m.FamilyWins)
	for i, ev := range events {
		assert.Equal(t, i+1, ev.Iteration)
	}
}

func TestEngineRestrictedFamilies(t *testing.T) {
	p := scenarioA()
	cfg := DefaultConfig()
	cfg.Families = []Family{FamilyRelocate}
	e, err := NewEngine(p, cfg)
	require.NoError(t, err)
	best, m := e.Improve(context.Background(), solution(route(0, 0, 2, 1, 3, 0)))
	assert.LessOrEqual(t, m.BestObjective, m.InitialObjective)
	assert.Zero(t, m.FamilyWins["two_opt"])
	assert.True(t, SatisfiesCustomersService(p, best))
}

func TestEngineRandomInstancesStayConsistent(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 5; trial++ {
		p := randomProblem(rng, 12)
		perm := rng.Perm(11)
		r0 := []int{0}
		r1 := []int{0}
		for i, c := range perm {
			if i%2 == 0 {
				r0 = append(r0, c+1)
			} else {
				r1 = append(r1, c+1)
			}
		}
		initial := solution(route(0, append(r0, 0)...), route(1, append(r1, 0)...))
		require.True(t, SatisfiesAll(p, initial, nil))

		best, m := newTestEngine(t, p, Config{MaxIterations: 30, Workers: 3}).Improve(context.Background(), initial)
		assert.LessOrEqual(t, m.BestObjective, m.InitialObjective+1e-9)
		assert.InDelta(t, Objective(p, best), m.BestObjective, 1e-6)
		assert.True(t, SatisfiesAll(p, best, nil), "trial %d: %v", trial, Violations(p, best))
	}
}

func newTestEngine(t *testing.T, p *Problem, cfg Config) *Engine {
	t.Helper()
	e, err := NewEngine(p, cfg)
	require.NoError(t, err)
	return e
}

func TestEngineTimeBudget(t *testing.T) {
	p := scenarioA()
	e := newTestEngine(t, p, Config{TimeBudget: time.Nanosecond})
	_, m := e.Improve(context.Background(), solution(route(0, 0, 1, 2, 3, 0)))
	assert.LessOrEqual(t, m.Iterations, 1)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	require.NoError(t, Config{}.Validate())
	bad := []Config{
		{Tenure: -1},
		{MaxIterations: -1},
		{StagnationLimit: -2},
		{Workers: -1},
		{TimeBudget: -time.Second},
		{Families: []Family{FamilyExchange, FamilyExchange}},
		{Families: []Family{Family(9)}},
	}
	for _, c := range bad {
		assert.Error(t, c.Validate(), "%+v", c)
	}
	_, err := NewEngine(scenarioA(), Config{Tenure: -1})
	assert.Error(t, err)
}

func TestConfigOverlay(t *testing.T) {
	base := Config{Tenure: 9, MaxIterations: 250, StagnationLimit: 30, Families: []Family{FamilyRelocate}, Workers: 2}
	got := base.Overlay(Config{Tenure: 4, TimeBudget: time.Second})
	assert.Equal(t, Config{Tenure: 4, MaxIterations: 250, StagnationLimit: 30, Families: []Family{FamilyRelocate}, Workers: 2, TimeBudget: time.Second}, got)

	got = base.Overlay(Config{Families: []Family{FamilyTwoOpt, FamilyExchange}})
	assert.Equal(t, []Family{FamilyTwoOpt, FamilyExchange}, got.Families)
	assert.Equal(t, 9, got.Tenure)
	assert.Equal(t, base, base.Overlay(Config{}))
}

func TestConstructImprovedSolution(t *testing.T) {
	p := scenarioA()
	initial := solution(route(0, 0, 2, 1, 3, 0))
	out, err := ConstructImprovedSolution(context.Background(), p, initial, Config{})
	require.NoError(t, err)
	assert.InDelta(t, 85.0, Objective(p, out), 1e-9)

	_, err = ConstructImprovedSolution(context.Background(), p, initial, Config{Tenure: -5})
	var pe *PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "search", pe.Field)
}

// scriptedMove follows a fixed path keyed by the first stop of route 0.
// Objectives come from firstStopProblem, so each step's target is known.
type scriptedMove struct {
	family Family
	steps  map[int]scriptStep
}

type scriptStep struct {
	next int
	key  Key
}

func (m scriptedMove) Family() Family { return m.family }

func (m scriptedMove) Apply(mc MoveContext, s Solution) MoveResult {
	st, ok := m.steps[s.Routes[0].Stops[1]]
	if !ok {
		return unchanged(mc.Problem, s)
	}
	next := startingWith(len(mc.Problem.Customers), st.next)
	obj := Objective(mc.Problem, next)
	ok, aspirated := mc.permits(obj, st.key)
	if !ok {
		r := unchanged(mc.Problem, s)
		r.TabuSkipped = 1
		return r
	}
	return MoveResult{Solution: next, Objective: obj, Keys: []Key{st.key}, Improved: true, Aspirated: boolToInt(aspirated)}
}

// firstStopProblem has one vehicle and zero costs except depot to customer
// c, which costs w[c]; a single route's objective is w of its first stop.
func firstStopProblem(w []float64) *Problem {
	n := len(w)
	p := &Problem{Costs: make([][]float64, n), Times: make([][]int, n), Vehicles: []Vehicle{{ID: 1, Capacity: qty(100, 100), VariableCost: 1}}}
	for i := range w {
		p.Costs[i] = make([]float64, n)
		p.Times[i] = make([]int, n)
		p.Customers = append(p.Customers, Customer{ID: i, HardTW: TimeWindow{Latest: 1000}})
	}
	copy(p.Costs[0], w)
	p.Normalize()
	return p
}

func startingWith(n, first int) Solution {
	stops := []int{0, first}
	for c := 1; c < n; c++ {
		if c != first {
			stops = append(stops, c)
		}
	}
	return solution(route(0, append(stops, 0)...))
}

func TestEngineTenureChangesTrajectory(t *testing.T) {
	back := Key{A: 1, B: 0}
	// relocate walks 1 -> 2 -> 3 -> 4 -> 6 and its third step reuses the
	// key of its first; exchange jumps straight to 5 and sets the best.
	moves := func(f Family) Move {
		if f == FamilyExchange {
			return scriptedMove{family: f, steps: map[int]scriptStep{1: {next: 5, key: Key{A: 9, B: 9}}}}
		}
		return scriptedMove{family: f, steps: map[int]scriptStep{
			1: {next: 2, key: back},
			2: {next: 3, key: Key{A: 2, B: 0}},
			3: {next: 4, key: back},
			4: {next: 6, key: Key{A: 3, B: 0}},
		}}
	}
	tests := []struct {
		name      string
		w4        float64
		tenure    int
		best      float64
		first     int
		skipped   int
		aspirated int
	}{
		{name: "short tenure expires before reuse", w4: 70, tenure: 1, best: 50, first: 6},
		{name: "fresh key blocks two iterations later", w4: 70, tenure: 2, best: 60, first: 5, skipped: 1},
		{name: "long tenure blocks", w4: 70, tenure: 15, best: 60, first: 5, skipped: 1},
		{name: "aspiration overrides tabu", w4: 55, tenure: 15, best: 50, first: 6, aspirated: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := firstStopProblem([]float64{0, 100, 90, 80, tt.w4, 60, 50})
			e := newTestEngine(t, p, Config{
				Tenure: tt.tenure, MaxIterations: 10, StagnationLimit: 20,
				Families: []Family{FamilyRelocate, FamilyExchange},
			})
			e.newMove = moves

			best, m := e.Improve(context.Background(), startingWith(7, 1))
			assert.InDelta(t, tt.best, m.BestObjective, 1e-9)
			assert.Equal(t, tt.first, best.Routes[0].Stops[1])
			assert.Equal(t, tt.skipped, m.TabuSkipped)
			assert.Equal(t, tt.aspirated, m.Aspirated)
			assert.Equal(t, 1, m.FamilyWins["exchange"])
		})
	}
}

func TestEngineFamiliesKeepOwnCopies(t *testing.T) {
	p := firstStopProblem([]float64{0, 100, 90, 80, 70, 60, 50})
	e := newTestEngine(t, p, Config{MaxIterations: 3, StagnationLimit: 5, Families: []Family{FamilyRelocate, FamilyExchange}})
	e.newMove = func(f Family) Move {
		if f == FamilyExchange {
			return scriptedMove{family: f, steps: map[int]scriptStep{1: {next: 5}}}
		}
		return scriptedMove{family: f, steps: map[int]scriptStep{1: {next: 2}, 2: {next: 3, key: Key{A: 2}}}}
	}
	var events []IterationEvent
	e.observer = func(ev IterationEvent) { events = append(events, ev) }

	_, m := e.Improve(context.Background(), startingWith(7, 1))
	require.Len(t, events, 3)
	// relocate walks on from 90 to 80; restarting it at the best 60 would
	// tie with exchange and hand the win to relocate on family order
	assert.Equal(t, []string{"exchange", "exchange", "exchange"}, []string{events[0].Winner, events[1].Winner, events[2].Winner})
	assert.Equal(t, 1, m.Improvements)
	assert.Equal(t, map[string]int{"exchange": 1}, m.FamilyWins)
}

type stubProvider struct {
	name  string
	slns  []Solution
	err   error
	calls int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Generate(_ *Problem, count int) ([]Solution, error) {
	s.calls++
	return s.slns, s.err
}

func TestSolveBestPicksLowestObjective(t *testing.T) {
	p := scenarioA()
	a := &stubProvider{name: "a", slns: []Solution{solution(route(0, 0, 2, 1, 3, 0))}}
	b := &stubProvider{name: "b", slns: []Solution{solution(route(0, 0, 1, 3, 2, 0)), solution(route(0, 0, 3, 2, 1, 0))}}
	res, err := SolveBest(context.Background(), p, []InitialSolutionProvider{a, b}, 2, TabuSearch{Config: DefaultConfig()})
	require.NoError(t, err)
	require.Len(t, res.Seeds, 3)
	assert.InDelta(t, 85.0, res.Objective, 1e-9)
	assert.Equal(t, "a", res.Seeds[0].Provider)
	assert.Equal(t, 1, res.Seeds[2].Index)
	for _, sr := range res.Seeds {
		assert.LessOrEqual(t, sr.Improved, sr.Initial+1e-9)
		assert.True(t, sr.Feasible)
	}
	assert.Equal(t, 1, a.calls)
}

func TestSolveBestErrors(t *testing.T) {
	p := scenarioA()
	_, err := SolveBest(context.Background(), p, []InitialSolutionProvider{&stubProvider{name: "empty"}}, 1, TabuSearch{})
	assert.ErrorIs(t, err, ErrNoSeeds)

	boom := errors.New("boom")
	_, err = SolveBest(context.Background(), p, []InitialSolutionProvider{&stubProvider{name: "x", err: boom}}, 1, TabuSearch{})
	assert.ErrorIs(t, err, boom)

	bad := &stubProvider{name: "bad", slns: []Solution{solution(route(5, 0, 1, 0))}}
	_, err = SolveBest(context.Background(), p, []InitialSolutionProvider{bad}, 1, TabuSearch{})
	assert.ErrorIs(t, err, ErrPrecondition)

	ok := &stubProvider{name: "ok", slns: []Solution{solution(route(0, 0, 1, 2, 3, 0))}}
	_, err = SolveBest(context.Background(), p, []InitialSolutionProvider{ok}, 1, TabuSearch{Config: Config{StagnationLimit: -1}})
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestScheduleMatchesViolatedTime(t *testing.T) {
	p := scenarioA()
	p.Customers[2].HardTW = TimeWindow{Earliest: 30, Latest: 40}
	p.Customers[3].HardTW.Latest = 35
	s := solution(route(0, 0, 1, 2, 3, 0))
	sched := Schedule(p, s)
	require.Len(t, sched, 1)
	require.Len(t, sched[0], 5)
	assert.Equal(t, StopTime{Customer: 2, Arrive: 20, Start: 30, Finish: 30}, sched[0][2])
	assert.Equal(t, StopTime{Customer: 3, Arrive: 40, Start: 40, Finish: 40, Late: 5}, sched[0][3])
	late := 0
	for _, st := range sched[0] {
		late += st.Late
	}
	assert.Equal(t, TotalViolatedTime(p, s), late)
}
