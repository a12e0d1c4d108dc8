package opt

// Relocate moves one customer to the cheapest admissible position on any
// route, its own included. The tabu key is (customer, origin route index);
// moving a customer back onto a route it recently left is tabu.
type Relocate struct{}

func (Relocate) Family() Family { return FamilyRelocate }

func (Relocate) Apply(mc MoveContext, s Solution) MoveResult {
	p := mc.Problem
	base := Objective(p, s)
	shards := shardRoutes(len(s.Routes), mc.Workers, func(ri int) candidate {
		return relocateFrom(mc, s, base, ri)
	})
	best := reduce(shards)
	if !best.found {
		return MoveResult{Solution: s, Objective: base, TabuSkipped: best.skipped}
	}
	return applyCandidate(p, s, base, best)
}

func relocateFrom(mc MoveContext, s Solution, base float64, ri int) candidate {
	p := mc.Problem
	var best candidate
	origin := s.Routes[ri]
	for pos := 1; pos < len(origin.Stops)-1; pos++ {
		c := origin.Stops[pos]
		out := removalDelta(p, origin, pos)
		reduced := Route{Vehicle: origin.Vehicle, Stops: removeAt(origin.Stops, pos), Splits: origin.Splits}
		for rj, dest := range s.Routes {
			if rj != ri && dest.contains(c) {
				continue
			}
			if !p.Allowed(c, dest.Vehicle) {
				continue
			}
			target := dest.Stops
			if rj == ri {
				target = reduced.Stops
			}
			for at := 1; at < len(target); at++ {
				if rj == ri && at == pos {
					continue
				}
				var delta float64
				if rj == ri {
					// same route: fixed cost is unaffected
					delta = routeEdges(p, origin.Vehicle, insertAt(target, at, c)) - routeEdges(p, origin.Vehicle, origin.Stops)
				} else {
					delta = out + insertionDelta(p, dest.Vehicle, target, at, c)
				}
				if delta >= -improveEps || !best.better(delta) {
					continue
				}
				key := Key{A: c, B: rj}
				ok, asp := mc.permits(base+delta, key)
				if !ok {
					best.skipped++
					continue
				}
				var routes map[int]Route
				if rj == ri {
					moved := Route{Vehicle: origin.Vehicle, Stops: insertAt(target, at, c), Splits: cloneSplits(origin.Splits)}
					if !admissible(p, []Route{origin}, []Route{moved}) {
						continue
					}
					routes = map[int]Route{ri: moved}
				} else {
					from := Route{Vehicle: origin.Vehicle, Stops: reduced.Stops, Splits: withoutSplit(origin, c)}
					to := Route{Vehicle: dest.Vehicle, Stops: insertAt(target, at, c), Splits: cloneSplits(dest.Splits)}
					if f := origin.Fraction(c); f < 1 {
						to.Splits = withSplit(dest.Splits, c, f)
					}
					if !admissible(p, []Route{origin, dest}, []Route{from, to}) {
						continue
					}
					routes = map[int]Route{ri: from, rj: to}
				}
				best.found = true
				best.delta = delta
				best.routes = routes
				best.keys = []Key{{A: c, B: ri}}
				best.aspirated = boolToInt(asp)
			}
		}
	}
	return best
}

// routeEdges sums edge costs along stops without the fixed charge.
func routeEdges(p *Problem, v int, stops []int) float64 {
	total := 0.0
	for k := 1; k < len(stops); k++ {
		total += edgeCost(p, v, stops[k-1], stops[k])
	}
	return total
}

func cloneSplits(s SplitInfo) SplitInfo {
	if s == nil {
		return nil
	}
	out := make(SplitInfo, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
