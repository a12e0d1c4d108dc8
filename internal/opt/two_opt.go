package opt

// TwoOpt reverses segments within a route. For each route it repeatedly
// applies the best strictly improving reversal until none is left, then
// moves on to the next route. The tabu key is the ordered pair of customers
// at the segment ends.
type TwoOpt struct{}

func (TwoOpt) Family() Family { return FamilyTwoOpt }

func (TwoOpt) Apply(mc MoveContext, s Solution) MoveResult {
	p := mc.Problem
	base := Objective(p, s)
	res := MoveResult{Solution: s, Objective: base}
	var out Solution
	for ri := range s.Routes {
		for {
			cur := s.Routes[ri]
			if out.Routes != nil {
				cur = out.Routes[ri]
			}
			i, k, delta, key, skipped, asp := bestReversal(mc, cur, res.Objective)
			res.TabuSkipped += skipped
			if i < 0 {
				break
			}
			if out.Routes == nil {
				out = s.Clone()
			}
			out.Routes[ri].Stops = reverseSegment(cur.Stops, i, k)
			res.Objective += delta
			res.Keys = append(res.Keys, key)
			res.Aspirated += asp
			res.Improved = true
		}
	}
	if res.Improved {
		res.Solution = out
	}
	return res
}

// bestReversal returns the cut points of the best admissible improving
// reversal on r, or i = -1 when there is none. Deltas are O(1) per pair
// using forward and backward prefix sums, so asymmetric matrices are fine.
func bestReversal(mc MoveContext, r Route, base float64) (bi, bk int, bestDelta float64, bestKey Key, skipped, aspirated int) {
	p := mc.Problem
	stops, v := r.Stops, r.Vehicle
	n := len(stops)
	bi, bk = -1, -1
	if n < 4 {
		return
	}
	// fwd[x]: cost of stops[0..x] travelled forward; bwd[x]: the same edges
	// travelled backward.
	fwd := make([]float64, n)
	bwd := make([]float64, n)
	for x := 1; x < n; x++ {
		fwd[x] = fwd[x-1] + edgeCost(p, v, stops[x-1], stops[x])
		bwd[x] = bwd[x-1] + edgeCost(p, v, stops[x], stops[x-1])
	}
	before := RouteViolatedTime(p, r)
	for i := 1; i < n-2; i++ {
		for k := i + 1; k < n-1; k++ {
			oldCost := edgeCost(p, v, stops[i-1], stops[i]) + (fwd[k] - fwd[i]) + edgeCost(p, v, stops[k], stops[k+1])
			newCost := edgeCost(p, v, stops[i-1], stops[k]) + (bwd[k] - bwd[i]) + edgeCost(p, v, stops[i], stops[k+1])
			delta := newCost - oldCost
			if delta >= -improveEps || (bi >= 0 && delta >= bestDelta-1e-12) {
				continue
			}
			key := pairKey(stops[i], stops[k])
			ok, asp := mc.permits(base+delta, key)
			if !ok {
				skipped++
				continue
			}
			if ViolatedTimeRange(p, reverseSegment(stops, i, k), depotDeparture(p)) > before {
				continue
			}
			bi, bk, bestDelta, bestKey = i, k, delta, key
			aspirated = boolToInt(asp)
		}
	}
	return
}

func reverseSegment(stops []int, i, k int) []int {
	out := append([]int(nil), stops...)
	for l, r := i, k; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}
