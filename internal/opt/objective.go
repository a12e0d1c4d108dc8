package opt

// ObjectiveBreakdown splits the objective into its terms.
type ObjectiveBreakdown struct {
	Travel float64 `json:"travel"` // variable cost x cost matrix
	Fixed  float64 `json:"fixed"`
	Time   float64 `json:"time"` // TimeCoeff x time matrix
	Total  float64 `json:"total"`
}

// edgeCost is the objective contribution of travelling i->j on vehicle vi.
func edgeCost(p *Problem, vi, i, j int) float64 {
	return p.Vehicles[vi].VariableCost*p.Costs[i][j] + p.TimeCoeff*float64(p.Times[i][j])
}

func routeBreakdown(p *Problem, r Route) ObjectiveBreakdown {
	var b ObjectiveBreakdown
	v := p.Vehicles[r.Vehicle]
	for k := 1; k < len(r.Stops); k++ {
		i, j := r.Stops[k-1], r.Stops[k]
		b.Travel += v.VariableCost * p.Costs[i][j]
		b.Time += p.TimeCoeff * float64(p.Times[i][j])
	}
	if !r.Empty() {
		b.Fixed = v.FixedCost
	}
	b.Total = b.Travel + b.Fixed + b.Time
	return b
}

// RouteObjective is the contribution of a single route, fixed cost included
// when the route visits at least one customer.
func RouteObjective(p *Problem, r Route) float64 {
	return routeBreakdown(p, r).Total
}

// Objective is the scalar cost of s. Lower is better. Constraint violations
// are not penalised here.
func Objective(p *Problem, s Solution) float64 {
	total := 0.0
	for _, r := range s.Routes {
		total += RouteObjective(p, r)
	}
	return total
}

func Breakdown(p *Problem, s Solution) ObjectiveBreakdown {
	var out ObjectiveBreakdown
	for _, r := range s.Routes {
		b := routeBreakdown(p, r)
		out.Travel += b.Travel
		out.Fixed += b.Fixed
		out.Time += b.Time
	}
	out.Total = out.Travel + out.Fixed + out.Time
	return out
}

// TravelCost is the raw cost-matrix sum over all edges, ignoring vehicle
// rates and time.
func TravelCost(p *Problem, s Solution) float64 {
	total := 0.0
	for _, r := range s.Routes {
		for k := 1; k < len(r.Stops); k++ {
			total += p.Costs[r.Stops[k-1]][r.Stops[k]]
		}
	}
	return total
}
