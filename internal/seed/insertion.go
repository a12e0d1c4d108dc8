package seed

import (
	"math"

	"vrptabu/internal/opt"
)

// builder grows one route per vehicle by cheapest insertion.
type builder struct {
	p      *opt.Problem
	routes []opt.Route
	load   []opt.Quantity
}

func newBuilder(p *opt.Problem) *builder {
	b := &builder{p: p, routes: make([]opt.Route, len(p.Vehicles)), load: make([]opt.Quantity, len(p.Vehicles))}
	for vi := range p.Vehicles {
		b.routes[vi] = opt.Route{Vehicle: vi, Stops: []int{opt.DepotIndex, opt.DepotIndex}}
	}
	return b
}

// insertion is one placement option for a customer.
type insertion struct {
	vehicle int
	pos     int
	delta   float64
	ok      bool
}

// options returns the cheapest feasible placement per vehicle for c carrying
// fraction f. A placement is feasible when it keeps capacity, site
// dependency, and adds no lateness.
func (b *builder) options(c int, f float64) []insertion {
	p := b.p
	demand := p.Customers[c].Demand.Scale(f)
	out := make([]insertion, 0, len(p.Vehicles))
	for vi, r := range b.routes {
		if !p.Allowed(c, vi) || !b.load[vi].Add(demand).LessEq(p.Vehicles[vi].Capacity) {
			continue
		}
		if containsStop(r.Stops, c) {
			continue
		}
		late := opt.RouteViolatedTime(p, r)
		best := insertion{vehicle: vi, delta: math.MaxFloat64}
		for pos := 1; pos < len(r.Stops); pos++ {
			d := b.delta(vi, r.Stops, pos, c)
			if d >= best.delta {
				continue
			}
			trial := opt.Route{Vehicle: vi, Stops: insertStop(r.Stops, pos, c)}
			if opt.RouteViolatedTime(p, trial) > late {
				continue
			}
			best.pos, best.delta, best.ok = pos, d, true
		}
		if best.ok {
			out = append(out, best)
		}
	}
	return out
}

func (b *builder) delta(vi int, stops []int, pos, c int) float64 {
	p := b.p
	v := p.Vehicles[vi]
	edge := func(i, j int) float64 {
		return v.VariableCost*p.Costs[i][j] + p.TimeCoeff*float64(p.Times[i][j])
	}
	d := edge(stops[pos-1], c) + edge(c, stops[pos]) - edge(stops[pos-1], stops[pos])
	if len(stops) == 2 {
		d += v.FixedCost
	}
	return d
}

func (b *builder) place(c int, in insertion, f float64) {
	r := &b.routes[in.vehicle]
	r.Stops = insertStop(r.Stops, in.pos, c)
	if f < 1 {
		if r.Splits == nil {
			r.Splits = opt.SplitInfo{}
		}
		r.Splits[c] = f
	}
	b.load[in.vehicle] = b.load[in.vehicle].Add(b.p.Customers[c].Demand.Scale(f))
}

// insert places c at its cheapest feasible spot. When none exists and splits
// are enabled it spreads the demand over vehicles with spare capacity; as a
// last resort it goes to the allowed vehicle with the most spare capacity so
// every customer is served.
func (b *builder) insert(c int) {
	if opts := b.options(c, 1); len(opts) > 0 {
		b.place(c, cheapest(opts), 1)
		return
	}
	if b.p.EnableSplits && b.p.MaxSplits > 1 && b.split(c) {
		return
	}
	b.force(c)
}

func (b *builder) split(c int) bool {
	p := b.p
	demand := p.Customers[c].Demand
	type share struct {
		in insertion
		f  float64
	}
	var plan []share
	remaining := 1.0
	used := map[int]bool{}
	for len(plan) < p.MaxSplits && remaining > 1e-9 {
		bestF, bestIn := 0.0, insertion{}
		for vi := range b.routes {
			if used[vi] || !p.Allowed(c, vi) || containsStop(b.routes[vi].Stops, c) {
				continue
			}
			f := math.Min(remaining, spareFraction(p.Vehicles[vi].Capacity.Sub(b.load[vi]), demand))
			if f <= 1e-9 || f <= bestF {
				continue
			}
			for _, in := range b.options(c, f) {
				if in.vehicle == vi {
					bestF, bestIn = f, in
				}
			}
		}
		if bestF == 0 {
			return false
		}
		used[bestIn.vehicle] = true
		plan = append(plan, share{bestIn, bestF})
		remaining -= bestF
	}
	if remaining > 1e-9 {
		return false
	}
	// the last share absorbs rounding so the fractions sum to one
	sum := 0.0
	for i := range plan[:len(plan)-1] {
		sum += plan[i].f
	}
	plan[len(plan)-1].f = 1 - sum
	for _, s := range plan {
		b.place(c, s.in, s.f)
	}
	return true
}

// spareFraction is the largest share of demand that fits in spare.
func spareFraction(spare, demand opt.Quantity) float64 {
	f := 1.0
	if demand.Volume > 0 {
		f = math.Min(f, spare.Volume/demand.Volume)
	}
	if demand.Weight > 0 {
		f = math.Min(f, spare.Weight/demand.Weight)
	}
	return math.Max(0, f)
}

func (b *builder) force(c int) {
	p := b.p
	best, bestSpare := -1, math.Inf(-1)
	for vi := range b.routes {
		if !p.Allowed(c, vi) {
			continue
		}
		spare := p.Vehicles[vi].Capacity.Sub(b.load[vi])
		if s := spare.Volume + spare.Weight; s > bestSpare {
			best, bestSpare = vi, s
		}
	}
	if best < 0 {
		best = 0
	}
	stops := b.routes[best].Stops
	in := insertion{vehicle: best, pos: 1, delta: math.MaxFloat64}
	for pos := 1; pos < len(stops); pos++ {
		if d := b.delta(best, stops, pos, c); d < in.delta {
			in.pos, in.delta = pos, d
		}
	}
	b.place(c, in, 1)
}

func (b *builder) solution() opt.Solution {
	return opt.Solution{Routes: b.routes}
}

func cheapest(opts []insertion) insertion {
	best := opts[0]
	for _, in := range opts[1:] {
		if in.delta < best.delta {
			best = in
		}
	}
	return best
}

func containsStop(stops []int, c int) bool {
	for _, s := range stops {
		if s == c {
			return true
		}
	}
	return false
}

func insertStop(stops []int, pos, c int) []int {
	out := make([]int, 0, len(stops)+1)
	out = append(out, stops[:pos]...)
	out = append(out, c)
	return append(out, stops[pos:]...)
}
