package opt

import "sort"

// RelocateSplit moves one fragment of a split customer. A fragment either
// merges into another route already serving the customer, which drops a
// fragment, or moves to the cheapest position on a route that does not
// serve it yet. It does nothing when splits are disabled.
type RelocateSplit struct{}

func (RelocateSplit) Family() Family { return FamilyRelocateSplit }

func (RelocateSplit) Apply(mc MoveContext, s Solution) MoveResult {
	p := mc.Problem
	if !p.EnableSplits {
		return unchanged(p, s)
	}
	base := Objective(p, s)
	// customers served by more than one route
	serving := make(map[int][]int)
	for ri, r := range s.Routes {
		for _, c := range r.Customers() {
			serving[c] = append(serving[c], ri)
		}
	}
	shards := shardRoutes(len(s.Routes), mc.Workers, func(ri int) candidate {
		return relocateFragmentFrom(mc, s, base, ri, serving)
	})
	best := reduce(shards)
	if !best.found {
		return MoveResult{Solution: s, Objective: base, TabuSkipped: best.skipped}
	}
	return applyCandidate(p, s, base, best)
}

func relocateFragmentFrom(mc MoveContext, s Solution, base float64, ri int, serving map[int][]int) candidate {
	p := mc.Problem
	var best candidate
	origin := s.Routes[ri]
	consider := func(delta float64, key Key, from Route, rj int, build func() Route) {
		if delta >= -improveEps || !best.better(delta) {
			return
		}
		ok, asp := mc.permits(base+delta, key)
		if !ok {
			best.skipped++
			return
		}
		to := build()
		if !admissible(p, []Route{origin, s.Routes[rj]}, []Route{from, to}) {
			return
		}
		best.found = true
		best.delta = delta
		best.routes = map[int]Route{ri: from, rj: to}
		best.keys = []Key{{A: key.A, B: ri}}
		best.aspirated = boolToInt(asp)
	}
	for _, c := range splitCustomersOn(serving, ri) {
		pos := mustIndex(origin.Stops, c)
		f := origin.Fraction(c)
		out := removalDelta(p, origin, pos)
		from := Route{Vehicle: origin.Vehicle, Stops: removeAt(origin.Stops, pos), Splits: withoutSplit(origin, c)}
		for rj, dest := range s.Routes {
			if rj == ri || !p.Allowed(c, dest.Vehicle) {
				continue
			}
			key := Key{A: c, B: rj}
			if dest.contains(c) {
				consider(out, key, from, rj, func() Route {
					return Route{Vehicle: dest.Vehicle, Stops: append([]int(nil), dest.Stops...), Splits: withSplit(dest.Splits, c, dest.Fraction(c)+f)}
				})
				continue
			}
			// the fragment count is unchanged by a plain move
			for at := 1; at < len(dest.Stops); at++ {
				delta := out + insertionDelta(p, dest.Vehicle, dest.Stops, at, c)
				consider(delta, key, from, rj, func() Route {
					return Route{Vehicle: dest.Vehicle, Stops: insertAt(dest.Stops, at, c), Splits: withSplit(dest.Splits, c, f)}
				})
			}
		}
	}
	return best
}

// splitCustomersOn lists, in ascending order, the customers on route ri that
// are also served elsewhere.
func splitCustomersOn(serving map[int][]int, ri int) []int {
	var out []int
	for c, routes := range serving {
		if len(routes) < 2 {
			continue
		}
		for _, r := range routes {
			if r == ri {
				out = append(out, c)
				break
			}
		}
	}
	sort.Ints(out)
	return out
}
