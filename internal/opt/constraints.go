package opt

import "math"

const (
	capacityEps = 1e-9
	splitEps    = 1e-6
)

// Names reported to the SatisfiesAll diagnostic sink.
const (
	CheckTimeWindows       = "time_windows"
	CheckCapacity          = "capacity"
	CheckSiteDependency    = "site_dependency"
	CheckVehicleUniqueness = "vehicle_uniqueness"
	CheckCustomersService  = "customers_service"
	CheckSplitDelivery     = "split_delivery"
)

// ViolatedTimeRange walks stops leaving stops[0] at departure and returns the
// summed lateness against hard windows for every later stop.
func ViolatedTimeRange(p *Problem, stops []int, departure int) int {
	violated := 0
	t := departure
	for i := 1; i < len(stops); i++ {
		prev, c := stops[i-1], stops[i]
		arrival := t + p.Times[prev][c]
		tw := p.Customers[c].HardTW
		if arrival > tw.Latest {
			violated += arrival - tw.Latest
		}
		t = max(arrival, tw.Earliest) + p.Customers[c].ServiceTime
	}
	return violated
}

// RouteViolatedTime is the lateness of one canonical route.
func RouteViolatedTime(p *Problem, r Route) int {
	if len(r.Stops) == 0 {
		return 0
	}
	return ViolatedTimeRange(p, r.Stops, depotDeparture(p))
}

func depotDeparture(p *Problem) int {
	d := p.Customers[DepotIndex]
	return max(0, d.HardTW.Earliest) + d.ServiceTime
}

func TotalViolatedTime(p *Problem, s Solution) int {
	total := 0
	for _, r := range s.Routes {
		total += RouteViolatedTime(p, r)
	}
	return total
}

// RouteLoad sums demand times split fraction over the route's customers.
func RouteLoad(p *Problem, r Route) Quantity {
	var load Quantity
	for _, c := range r.Customers() {
		load = load.Add(p.Customers[c].Demand.Scale(r.Fraction(c)))
	}
	return load
}

func RouteViolatedCapacity(p *Problem, r Route) Quantity {
	return RouteLoad(p, r).Excess(p.Vehicles[r.Vehicle].Capacity)
}

func TotalViolatedCapacity(p *Problem, s Solution) Quantity {
	var total Quantity
	for _, r := range s.Routes {
		total = total.Add(RouteViolatedCapacity(p, r))
	}
	return total
}

func SatisfiesTimeWindows(p *Problem, s Solution) bool { return TotalViolatedTime(p, s) == 0 }

func SatisfiesCapacity(p *Problem, s Solution) bool { return TotalViolatedCapacity(p, s).IsZero() }

func routeSiteDependent(p *Problem, r Route) bool {
	for _, c := range r.Customers() {
		if !p.Allowed(c, r.Vehicle) {
			return false
		}
	}
	return true
}

func SatisfiesSiteDependency(p *Problem, s Solution) bool {
	for _, r := range s.Routes {
		if !routeSiteDependent(p, r) {
			return false
		}
	}
	return true
}

func SatisfiesVehicleUniqueness(_ *Problem, s Solution) bool {
	seen := make(map[int]struct{}, len(s.Routes))
	for _, r := range s.Routes {
		if _, dup := seen[r.Vehicle]; dup {
			return false
		}
		seen[r.Vehicle] = struct{}{}
	}
	return true
}

// SatisfiesCustomersService checks that the depot bounds every route exactly
// twice and that each customer appears once (or up to MaxSplits times when
// splits are enabled). A customer visited twice on the same route fails.
func SatisfiesCustomersService(p *Problem, s Solution) bool {
	occurrences := make([]int, len(p.Customers))
	for _, r := range s.Routes {
		depots := 0
		onRoute := make(map[int]struct{}, len(r.Stops))
		for _, c := range r.Stops {
			if c == DepotIndex {
				depots++
				continue
			}
			if _, dup := onRoute[c]; dup {
				return false
			}
			onRoute[c] = struct{}{}
			occurrences[c]++
		}
		if depots != 2 || r.Stops[0] != DepotIndex || r.Stops[len(r.Stops)-1] != DepotIndex {
			return false
		}
	}
	limit := 1
	if p.EnableSplits {
		limit = p.MaxSplits
	}
	for c := 1; c < len(occurrences); c++ {
		if occurrences[c] < 1 || occurrences[c] > limit {
			return false
		}
	}
	return true
}

func SatisfiesSplitDelivery(p *Problem, s Solution) bool {
	sums := make(map[int]float64)
	fragments := make(map[int]int)
	for _, r := range s.Routes {
		for _, c := range r.Customers() {
			f := r.Fraction(c)
			if !p.EnableSplits {
				if f != 1.0 {
					return false
				}
				continue
			}
			if f <= 0 || f > 1 {
				return false
			}
			sums[c] += f
			fragments[c]++
		}
	}
	if !p.EnableSplits {
		return true
	}
	for c, sum := range sums {
		if math.Abs(sum-1.0) > splitEps || fragments[c] > p.MaxSplits {
			return false
		}
	}
	return true
}

// SatisfiesAll runs every check. When sink is non-nil it receives the name of
// each failing check; the result does not depend on the sink.
func SatisfiesAll(p *Problem, s Solution, sink func(check string)) bool {
	checks := []struct {
		name string
		fn   func(*Problem, Solution) bool
	}{
		{CheckTimeWindows, SatisfiesTimeWindows},
		{CheckCapacity, SatisfiesCapacity},
		{CheckSiteDependency, SatisfiesSiteDependency},
		{CheckVehicleUniqueness, SatisfiesVehicleUniqueness},
		{CheckCustomersService, SatisfiesCustomersService},
		{CheckSplitDelivery, SatisfiesSplitDelivery},
	}
	ok := true
	for _, c := range checks {
		if !c.fn(p, s) {
			ok = false
			if sink != nil {
				sink(c.name)
			}
		}
	}
	return ok
}

// Violations collects the failing check names, in check order.
func Violations(p *Problem, s Solution) []string {
	var out []string
	SatisfiesAll(p, s, func(name string) { out = append(out, name) })
	return out
}
