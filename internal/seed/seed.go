// Package seed holds InitialSolutionProvider strategies for the tabu engine.
package seed

import (
	"fmt"
	"math"
	"math/rand"

	"vrptabu/internal/opt"
	"vrptabu/internal/problemio"
)

// Greedy inserts customers one at a time at their cheapest feasible
// position. The first seed visits customers in index order; further seeds
// shuffle the order with a generator seeded from Seed.
type Greedy struct {
	Seed int64
}

func (Greedy) Name() string { return "greedy" }

func (g Greedy) Generate(p *opt.Problem, count int) ([]opt.Solution, error) {
	if count <= 0 {
		count = 1
	}
	rng := rand.New(rand.NewSource(g.Seed))
	order := make([]int, 0, len(p.Customers)-1)
	for c := 1; c < len(p.Customers); c++ {
		order = append(order, c)
	}
	out := make([]opt.Solution, 0, count)
	for i := 0; i < count; i++ {
		if i > 0 {
			rng.Shuffle(len(order), func(a, b int) { order[a], order[b] = order[b], order[a] })
		}
		b := newBuilder(p)
		for _, c := range order {
			b.insert(c)
		}
		out = append(out, b.solution())
	}
	return out, nil
}

// Regret picks, at each step, the customer whose best and second-best
// vehicle placements differ the most and inserts it at its best. It always
// yields a single seed.
type Regret struct{}

func (Regret) Name() string { return "regret" }

func (Regret) Generate(p *opt.Problem, _ int) ([]opt.Solution, error) {
	b := newBuilder(p)
	pending := make([]int, 0, len(p.Customers)-1)
	for c := 1; c < len(p.Customers); c++ {
		pending = append(pending, c)
	}
	for len(pending) > 0 {
		pick, pickRegret := -1, -1.0
		var bestIn insertion
		for i, c := range pending {
			opts := b.options(c, 1)
			if len(opts) == 0 {
				continue
			}
			first, second := math.MaxFloat64, math.MaxFloat64
			var in insertion
			for _, o := range opts {
				if o.delta < first {
					second = first
					first, in = o.delta, o
				} else if o.delta < second {
					second = o.delta
				}
			}
			regret := second - first
			if len(opts) == 1 {
				// a single option is the most urgent
				regret = math.MaxFloat64
			}
			if regret > pickRegret {
				pick, pickRegret, bestIn = i, regret, in
			}
		}
		if pick < 0 {
			// nothing fits anywhere; fall back for the rest
			for _, c := range pending {
				b.insert(c)
			}
			break
		}
		b.place(pending[pick], bestIn, 1)
		pending = append(pending[:pick], pending[pick+1:]...)
	}
	return []opt.Solution{b.solution()}, nil
}

// Fixed hands out caller-supplied solutions, for example ones read from a
// document. Routes are normalised to canonical form.
type Fixed struct {
	Label     string
	Solutions []opt.Solution
}

func (f Fixed) Name() string {
	if f.Label == "" {
		return "fixed"
	}
	return f.Label
}

func (f Fixed) Generate(p *opt.Problem, count int) ([]opt.Solution, error) {
	out := make([]opt.Solution, 0, len(f.Solutions))
	for i, s := range f.Solutions {
		if count > 0 && i >= count {
			break
		}
		n := problemio.Canonical(s)
		if err := opt.ValidateSolution(p, n); err != nil {
			return nil, fmt.Errorf("fixed seed %d: %w", i, err)
		}
		out = append(out, n)
	}
	return out, nil
}
