package opt

import (
	"fmt"
	"strings"
)

// improveEps is the minimum objective decrease treated as an improvement.
const improveEps = 1e-6

// Family names one neighborhood operator.
type Family int

const (
	FamilyRelocate Family = iota
	FamilyRelocateSplit
	FamilyExchange
	FamilyTwoOpt
	numFamilies
)

var familyNames = [numFamilies]string{"relocate", "relocate_split", "exchange", "two_opt"}

func (f Family) String() string {
	if f < 0 || f >= numFamilies {
		return fmt.Sprintf("family(%d)", int(f))
	}
	return familyNames[f]
}

// AllFamilies lists the operators in tie-break order.
func AllFamilies() []Family {
	return []Family{FamilyRelocate, FamilyRelocateSplit, FamilyExchange, FamilyTwoOpt}
}

// ParseFamily accepts the names produced by Family.String.
func ParseFamily(s string) (Family, error) {
	for i, n := range familyNames {
		if strings.EqualFold(strings.TrimSpace(s), n) {
			return Family(i), nil
		}
	}
	return 0, fmt.Errorf("unknown move family %q", s)
}

func (f Family) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *Family) UnmarshalText(b []byte) error {
	v, err := ParseFamily(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// MoveContext is the read-only environment a move runs in.
type MoveContext struct {
	Problem *Problem
	// Tabu is this family's list; nil disables tabu checks.
	Tabu *TabuList
	// Aspiration is the best-known objective. A tabu move is allowed only
	// when it would end strictly below it.
	Aspiration float64
	// Workers bounds the goroutines used for exhaustive searches.
	Workers int
}

// permits applies the tabu and aspiration rules to a candidate whose
// resulting objective is next.
func (mc MoveContext) permits(next float64, keys ...Key) (ok, aspirated bool) {
	tabu := false
	for _, k := range keys {
		if mc.Tabu.Contains(k) {
			tabu = true
			break
		}
	}
	if !tabu {
		return true, false
	}
	if next < mc.Aspiration-improveEps {
		return true, true
	}
	return false, false
}

// MoveResult is the outcome of one operator application. When Improved is
// false Solution is the input unchanged.
type MoveResult struct {
	Solution    Solution
	Objective   float64
	Keys        []Key
	Improved    bool
	TabuSkipped int
	Aspirated   int
}

// Move is one neighborhood operator. Apply must not modify s.
type Move interface {
	Family() Family
	Apply(mc MoveContext, s Solution) MoveResult
}

// NewMove returns the operator for f.
func NewMove(f Family) Move {
	switch f {
	case FamilyRelocate:
		return Relocate{}
	case FamilyRelocateSplit:
		return RelocateSplit{}
	case FamilyExchange:
		return Exchange{}
	case FamilyTwoOpt:
		return TwoOpt{}
	}
	panic(fmt.Sprintf("opt: unknown move family %d", int(f)))
}

func unchanged(p *Problem, s Solution) MoveResult {
	return MoveResult{Solution: s, Objective: Objective(p, s)}
}

// admissible reports whether replacing the routes in before with the
// corresponding routes in after keeps their time and capacity violations
// from growing.
func admissible(p *Problem, before, after []Route) bool {
	for i := range before {
		if RouteViolatedTime(p, after[i]) > RouteViolatedTime(p, before[i]) {
			return false
		}
		was := RouteViolatedCapacity(p, before[i])
		now := RouteViolatedCapacity(p, after[i])
		if now.Volume > was.Volume+capacityEps || now.Weight > was.Weight+capacityEps {
			return false
		}
	}
	return true
}

func removeAt(stops []int, i int) []int {
	out := make([]int, 0, len(stops)-1)
	out = append(out, stops[:i]...)
	return append(out, stops[i+1:]...)
}

func insertAt(stops []int, i, c int) []int {
	out := make([]int, 0, len(stops)+1)
	out = append(out, stops[:i]...)
	out = append(out, c)
	return append(out, stops[i:]...)
}

// removalDelta is the objective change of dropping stops[i] from r.
func removalDelta(p *Problem, r Route, i int) float64 {
	v, s := r.Vehicle, r.Stops
	d := edgeCost(p, v, s[i-1], s[i+1]) - edgeCost(p, v, s[i-1], s[i]) - edgeCost(p, v, s[i], s[i+1])
	if len(s) == 3 {
		d -= p.Vehicles[v].FixedCost
	}
	return d
}

// insertionDelta is the objective change of placing c before stops[i] on a
// route driven by vehicle v.
func insertionDelta(p *Problem, v int, stops []int, i, c int) float64 {
	d := edgeCost(p, v, stops[i-1], c) + edgeCost(p, v, c, stops[i]) - edgeCost(p, v, stops[i-1], stops[i])
	if len(stops) == 2 {
		d += p.Vehicles[v].FixedCost
	}
	return d
}

// withoutSplit returns a copy of r minus the split entry for c.
func withoutSplit(r Route, c int) SplitInfo {
	if _, ok := r.Splits[c]; !ok {
		return r.Splits
	}
	out := make(SplitInfo, len(r.Splits))
	for k, v := range r.Splits {
		if k != c {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// withSplit returns a copy of splits with c set to f. A fraction of one is
// stored as absence.
func withSplit(splits SplitInfo, c int, f float64) SplitInfo {
	out := make(SplitInfo, len(splits)+1)
	for k, v := range splits {
		out[k] = v
	}
	if f >= 1-splitEps {
		delete(out, c)
	} else {
		out[c] = f
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// candidate is the best move found by one search shard.
type candidate struct {
	found     bool
	delta     float64
	routes    map[int]Route // replacement routes by index
	keys      []Key
	skipped   int
	aspirated int
}

func (c candidate) better(delta float64) bool {
	return !c.found || delta < c.delta-1e-12
}

// applyCandidate returns s with the candidate's routes swapped in.
func applyCandidate(p *Problem, s Solution, base float64, c candidate) MoveResult {
	out := Solution{Routes: make([]Route, len(s.Routes))}
	for i, r := range s.Routes {
		if nr, ok := c.routes[i]; ok {
			out.Routes[i] = nr
		} else {
			out.Routes[i] = r.Clone()
		}
	}
	return MoveResult{
		Solution:    out,
		Objective:   base + c.delta,
		Keys:        c.keys,
		Improved:    true,
		TabuSkipped: c.skipped,
		Aspirated:   c.aspirated,
	}
}

// reduce picks the lowest-delta candidate; shards are scanned in order so
// ties resolve to the lowest route index.
func reduce(shards []candidate) candidate {
	var best candidate
	skipped, aspirated := 0, 0
	for _, c := range shards {
		skipped += c.skipped
		if c.found && best.better(c.delta) {
			best = c
		}
	}
	if best.found {
		aspirated = best.aspirated
	}
	best.skipped = skipped
	best.aspirated = aspirated
	return best
}
