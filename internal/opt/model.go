package opt

import (
	"errors"
	"fmt"
)

// DepotIndex is the customer index reserved for the depot.
const DepotIndex = 0

// ErrPrecondition marks inputs that violate the caller contract (bad indices,
// unknown vehicles, malformed matrices). Infeasible solutions are never errors.
var ErrPrecondition = errors.New("precondition violation")

// PreconditionError describes which part of an input broke the contract.
type PreconditionError struct {
	Field  string
	Detail string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition violation: %s: %s", e.Field, e.Detail)
}

func (e *PreconditionError) Unwrap() error { return ErrPrecondition }

func precondition(field, format string, args ...any) error {
	return &PreconditionError{Field: field, Detail: fmt.Sprintf(format, args...)}
}

// Quantity is a (volume, weight) pair used for demand and capacity.
type Quantity struct {
	Volume float64 `json:"volume" yaml:"volume"`
	Weight float64 `json:"weight" yaml:"weight"`
}

func (q Quantity) Add(o Quantity) Quantity { return Quantity{q.Volume + o.Volume, q.Weight + o.Weight} }
func (q Quantity) Sub(o Quantity) Quantity { return Quantity{q.Volume - o.Volume, q.Weight - o.Weight} }
func (q Quantity) Scale(f float64) Quantity {
	return Quantity{q.Volume * f, q.Weight * f}
}

// LessEq is the componentwise partial order.
func (q Quantity) LessEq(o Quantity) bool { return q.Volume <= o.Volume && q.Weight <= o.Weight }

func (q Quantity) IsZero() bool { return q.Volume == 0 && q.Weight == 0 }

// Excess returns the componentwise amount by which q exceeds capacity.
// Differences within capacityEps are treated as zero.
func (q Quantity) Excess(capacity Quantity) Quantity {
	var out Quantity
	if d := q.Volume - capacity.Volume; d > capacityEps {
		out.Volume = d
	}
	if d := q.Weight - capacity.Weight; d > capacityEps {
		out.Weight = d
	}
	return out
}

// TimeWindow bounds arrival/start times, inclusive on both ends.
type TimeWindow struct {
	Earliest int `json:"earliest" yaml:"earliest"`
	Latest   int `json:"latest" yaml:"latest"`
}

// Customer is a delivery location. Index 0 is the depot.
type Customer struct {
	ID              int        `json:"id" yaml:"id"`
	Demand          Quantity   `json:"demand" yaml:"demand"`
	HardTW          TimeWindow `json:"hardTw" yaml:"hardTw"`
	SoftTW          TimeWindow `json:"softTw,omitempty" yaml:"softTw,omitempty"`
	ServiceTime     int        `json:"serviceTime,omitempty" yaml:"serviceTime,omitempty"`
	AllowedVehicles []int      `json:"allowedVehicles,omitempty" yaml:"allowedVehicles,omitempty"` // vehicle IDs; empty means any
}

// Vehicle is one fleet member. Fixed cost is charged once per used route.
type Vehicle struct {
	ID           int      `json:"id" yaml:"id"`
	Capacity     Quantity `json:"capacity" yaml:"capacity"`
	FixedCost    float64  `json:"fixedCost,omitempty" yaml:"fixedCost,omitempty"`
	VariableCost float64  `json:"variableCost" yaml:"variableCost"`
}

// Problem is immutable for the duration of a solve and shared read-only.
type Problem struct {
	Costs        [][]float64 `json:"costs" yaml:"costs"`
	Times        [][]int     `json:"times" yaml:"times"`
	Customers    []Customer  `json:"customers" yaml:"customers"`
	Vehicles     []Vehicle   `json:"vehicles" yaml:"vehicles"`
	MaxSplits    int         `json:"maxSplits,omitempty" yaml:"maxSplits,omitempty"`
	EnableSplits bool        `json:"enableSplits,omitempty" yaml:"enableSplits,omitempty"`
	TimeCoeff    float64     `json:"timeCoeff,omitempty" yaml:"timeCoeff,omitempty"`
}

// Normalize fills defaults left zero by loaders. Call once before solving.
func (p *Problem) Normalize() {
	if p.TimeCoeff == 0 {
		p.TimeCoeff = 1.0
	}
	if p.MaxSplits <= 0 {
		p.MaxSplits = 1
	}
}

func (p *Problem) NumCustomers() int { return len(p.Customers) }
func (p *Problem) NumVehicles() int  { return len(p.Vehicles) }

// Allowed reports whether the vehicle at index vi may serve customer c.
func (p *Problem) Allowed(c, vi int) bool {
	allowed := p.Customers[c].AllowedVehicles
	if len(allowed) == 0 {
		return true
	}
	id := p.Vehicles[vi].ID
	for _, v := range allowed {
		if v == id {
			return true
		}
	}
	return false
}

// Validate checks the structural contract of the problem.
func (p *Problem) Validate() error {
	n := len(p.Customers)
	if n == 0 {
		return precondition("customers", "at least the depot is required")
	}
	if len(p.Vehicles) == 0 {
		return precondition("vehicles", "no vehicles")
	}
	if len(p.Costs) != n {
		return precondition("costs", "expected %d rows, got %d", n, len(p.Costs))
	}
	if len(p.Times) != n {
		return precondition("times", "expected %d rows, got %d", n, len(p.Times))
	}
	for i := 0; i < n; i++ {
		if len(p.Costs[i]) != n {
			return precondition("costs", "row %d has %d columns, want %d", i, len(p.Costs[i]), n)
		}
		if len(p.Times[i]) != n {
			return precondition("times", "row %d has %d columns, want %d", i, len(p.Times[i]), n)
		}
	}
	if !p.Customers[DepotIndex].Demand.IsZero() {
		return precondition("customers[0]", "depot must have zero demand")
	}
	ids := make(map[int]struct{}, len(p.Vehicles))
	for i, v := range p.Vehicles {
		if v.Capacity.Volume < 0 || v.Capacity.Weight < 0 {
			return precondition(fmt.Sprintf("vehicles[%d]", i), "negative capacity")
		}
		ids[v.ID] = struct{}{}
	}
	for i, c := range p.Customers {
		if c.Demand.Volume < 0 || c.Demand.Weight < 0 {
			return precondition(fmt.Sprintf("customers[%d]", i), "negative demand")
		}
		if c.HardTW.Latest < c.HardTW.Earliest {
			return precondition(fmt.Sprintf("customers[%d]", i), "hard window [%d,%d] is empty", c.HardTW.Earliest, c.HardTW.Latest)
		}
		for _, v := range c.AllowedVehicles {
			if _, ok := ids[v]; !ok {
				return precondition(fmt.Sprintf("customers[%d]", i), "allowed vehicle %d does not exist", v)
			}
		}
	}
	if p.EnableSplits && p.MaxSplits < 1 {
		return precondition("maxSplits", "must be >= 1 when splits are enabled")
	}
	return nil
}

// SplitInfo maps customer index to the fraction of its demand delivered on
// one route. A customer without an entry is delivered in full.
type SplitInfo map[int]float64

// Route is one vehicle's visiting sequence in canonical form [0, c1, ..., ck, 0].
type Route struct {
	Vehicle int       `json:"vehicle" yaml:"vehicle"`
	Stops   []int     `json:"stops" yaml:"stops"`
	Splits  SplitInfo `json:"splits,omitempty" yaml:"splits,omitempty"`
}

// Fraction returns the share of customer c's demand carried on this route.
func (r Route) Fraction(c int) float64 {
	if f, ok := r.Splits[c]; ok {
		return f
	}
	return 1.0
}

// Customers returns the non-depot stops.
func (r Route) Customers() []int {
	if len(r.Stops) < 2 {
		return nil
	}
	return r.Stops[1 : len(r.Stops)-1]
}

// Empty reports whether the route visits no customer.
func (r Route) Empty() bool { return len(r.Stops) <= 2 }

func (r Route) contains(c int) bool {
	for _, s := range r.Customers() {
		if s == c {
			return true
		}
	}
	return false
}

// Clone deep-copies the route.
func (r Route) Clone() Route {
	out := Route{Vehicle: r.Vehicle, Stops: append([]int(nil), r.Stops...)}
	if r.Splits != nil {
		out.Splits = make(SplitInfo, len(r.Splits))
		for k, v := range r.Splits {
			out.Splits[k] = v
		}
	}
	return out
}

// Solution is an ordered set of routes, at most one per vehicle.
type Solution struct {
	Routes []Route `json:"routes" yaml:"routes"`
}

// Clone deep-copies the solution so it can be owned by a single move family.
func (s Solution) Clone() Solution {
	out := Solution{Routes: make([]Route, len(s.Routes))}
	for i, r := range s.Routes {
		out.Routes[i] = r.Clone()
	}
	return out
}

// ValidateSolution checks that every index in s refers to something in p and
// that routes are in canonical form: the depot only at both ends and no
// customer twice on one route. It does not check feasibility.
func ValidateSolution(p *Problem, s Solution) error {
	n := len(p.Customers)
	for ri, r := range s.Routes {
		field := fmt.Sprintf("routes[%d]", ri)
		if r.Vehicle < 0 || r.Vehicle >= len(p.Vehicles) {
			return precondition(field, "vehicle index %d out of range", r.Vehicle)
		}
		if len(r.Stops) < 2 || r.Stops[0] != DepotIndex || r.Stops[len(r.Stops)-1] != DepotIndex {
			return precondition(field, "route must start and end at the depot")
		}
		seen := make(map[int]bool, len(r.Stops))
		for i, c := range r.Stops {
			if c < 0 || c >= n {
				return precondition(field, "customer index %d out of range", c)
			}
			if i == 0 || i == len(r.Stops)-1 {
				continue
			}
			if c == DepotIndex {
				return precondition(field, "depot at interior position %d", i)
			}
			if seen[c] {
				return precondition(field, "customer index %d visited twice", c)
			}
			seen[c] = true
		}
		for c := range r.Splits {
			if c <= DepotIndex || c >= n {
				return precondition(field, "split entry for customer index %d out of range", c)
			}
		}
	}
	return nil
}

// mustIndex returns the position of customer c in stops and panics when it is
// absent: the search loop relies on routes being self-consistent.
func mustIndex(stops []int, c int) int {
	for i, s := range stops {
		if s == c {
			return i
		}
	}
	panic(fmt.Sprintf("opt: contract violation: customer %d not found in route %v", c, stops))
}
