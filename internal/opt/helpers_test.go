package opt

import "math"

type point struct{ x, y float64 }

// planar builds a problem whose cost matrix is Euclidean distance and whose
// time matrix is that distance rounded. Customer 0 is the depot at pts[0].
func planar(pts []point, demand []Quantity, vehicles []Vehicle) *Problem {
	n := len(pts)
	p := &Problem{Costs: make([][]float64, n), Times: make([][]int, n), Vehicles: vehicles}
	for i := range pts {
		p.Costs[i] = make([]float64, n)
		p.Times[i] = make([]int, n)
		for j := range pts {
			d := math.Hypot(pts[i].x-pts[j].x, pts[i].y-pts[j].y)
			p.Costs[i][j] = d
			p.Times[i][j] = int(math.Round(d))
		}
		c := Customer{ID: i, HardTW: TimeWindow{Earliest: 0, Latest: 1000}}
		if i > 0 && i-1 < len(demand) {
			c.Demand = demand[i-1]
		}
		p.Customers = append(p.Customers, c)
	}
	p.Normalize()
	return p
}

func qty(v, w float64) Quantity { return Quantity{Volume: v, Weight: w} }

// scenarioA: depot plus A, B, C on the corners of a square, one vehicle of
// capacity 6, demand 2 each.
func scenarioA() *Problem {
	return planar(
		[]point{{0, 0}, {0, 10}, {10, 10}, {10, 0}},
		[]Quantity{qty(2, 2), qty(2, 2), qty(2, 2)},
		[]Vehicle{{ID: 1, Capacity: qty(6, 6), FixedCost: 5, VariableCost: 1}},
	)
}

func route(v int, stops ...int) Route { return Route{Vehicle: v, Stops: stops} }

func solution(routes ...Route) Solution { return Solution{Routes: routes} }
