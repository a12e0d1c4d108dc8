package opt

// Exchange swaps two customers, on the same route or across routes. A
// customer carries its split fraction with it. The tabu key is the ordered
// customer pair.
type Exchange struct{}

func (Exchange) Family() Family { return FamilyExchange }

func (Exchange) Apply(mc MoveContext, s Solution) MoveResult {
	p := mc.Problem
	base := Objective(p, s)
	shards := shardRoutes(len(s.Routes), mc.Workers, func(ri int) candidate {
		return exchangeFrom(mc, s, base, ri)
	})
	best := reduce(shards)
	if !best.found {
		return MoveResult{Solution: s, Objective: base, TabuSkipped: best.skipped}
	}
	return applyCandidate(p, s, base, best)
}

// exchangeFrom scans pairs whose first customer sits on route ri and whose
// second sits at a later (route, position).
func exchangeFrom(mc MoveContext, s Solution, base float64, ri int) candidate {
	p := mc.Problem
	var best candidate
	ra := s.Routes[ri]
	for pi := 1; pi < len(ra.Stops)-1; pi++ {
		a := ra.Stops[pi]
		for rj := ri; rj < len(s.Routes); rj++ {
			rb := s.Routes[rj]
			start := 1
			if rj == ri {
				start = pi + 1
			}
			for pj := start; pj < len(rb.Stops)-1; pj++ {
				b := rb.Stops[pj]
				var (
					delta float64
					build func() (map[int]Route, []Route, []Route)
				)
				if rj == ri {
					swapped := swapStops(ra.Stops, pi, pj)
					delta = routeEdges(p, ra.Vehicle, swapped) - routeEdges(p, ra.Vehicle, ra.Stops)
					build = func() (map[int]Route, []Route, []Route) {
						nr := Route{Vehicle: ra.Vehicle, Stops: swapped, Splits: cloneSplits(ra.Splits)}
						return map[int]Route{ri: nr}, []Route{ra}, []Route{nr}
					}
				} else {
					if ra.contains(b) || rb.contains(a) {
						continue
					}
					if !p.Allowed(b, ra.Vehicle) || !p.Allowed(a, rb.Vehicle) {
						continue
					}
					delta = replaceDelta(p, ra, pi, b) + replaceDelta(p, rb, pj, a)
					build = func() (map[int]Route, []Route, []Route) {
						na := replaceStop(ra, pi, b, rb.Fraction(b))
						nb := replaceStop(rb, pj, a, ra.Fraction(a))
						return map[int]Route{ri: na, rj: nb}, []Route{ra, rb}, []Route{na, nb}
					}
				}
				if delta >= -improveEps || !best.better(delta) {
					continue
				}
				key := pairKey(a, b)
				ok, asp := mc.permits(base+delta, key)
				if !ok {
					best.skipped++
					continue
				}
				routes, before, after := build()
				if !admissible(p, before, after) {
					continue
				}
				best.found = true
				best.delta = delta
				best.routes = routes
				best.keys = []Key{key}
				best.aspirated = boolToInt(asp)
			}
		}
	}
	return best
}

func swapStops(stops []int, i, j int) []int {
	out := append([]int(nil), stops...)
	out[i], out[j] = out[j], out[i]
	return out
}

// replaceDelta is the objective change of putting c in place of stops[i].
func replaceDelta(p *Problem, r Route, i, c int) float64 {
	v, s := r.Vehicle, r.Stops
	return edgeCost(p, v, s[i-1], c) + edgeCost(p, v, c, s[i+1]) -
		edgeCost(p, v, s[i-1], s[i]) - edgeCost(p, v, s[i], s[i+1])
}

// replaceStop returns r with stops[i] replaced by c delivering fraction f.
func replaceStop(r Route, i, c int, f float64) Route {
	old := r.Stops[i]
	stops := append([]int(nil), r.Stops...)
	stops[i] = c
	splits := withoutSplit(r, old)
	if f < 1 {
		splits = withSplit(splits, c, f)
	} else {
		splits = cloneSplits(splits)
	}
	return Route{Vehicle: r.Vehicle, Stops: stops, Splits: splits}
}
