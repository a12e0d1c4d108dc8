package problemio

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"vrptabu/internal/opt"
)

// RouteOut is one route in a result, with customer IDs instead of indices.
type RouteOut struct {
	VehicleID int             `json:"vehicleId" yaml:"vehicleId"`
	Stops     []int           `json:"stops" yaml:"stops"`
	Splits    map[int]float64 `json:"splits,omitempty" yaml:"splits,omitempty"`
	Load      opt.Quantity    `json:"load" yaml:"load"`
	Objective float64         `json:"objective" yaml:"objective"`
	Schedule  []opt.StopTime  `json:"schedule,omitempty" yaml:"schedule,omitempty"`
}

// ResultDoc is the printable outcome of a solve or check.
type ResultDoc struct {
	Objective  float64                `json:"objective" yaml:"objective"`
	Breakdown  opt.ObjectiveBreakdown `json:"breakdown" yaml:"breakdown"`
	Feasible   bool                   `json:"feasible" yaml:"feasible"`
	Violations []string               `json:"violations,omitempty" yaml:"violations,omitempty"`
	Routes     []RouteOut             `json:"routes" yaml:"routes"`
	Metrics    *opt.Metrics           `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// NewResult describes s against p. Empty routes are left out.
func NewResult(p *opt.Problem, s opt.Solution, m *opt.Metrics) ResultDoc {
	violations := opt.Violations(p, s)
	out := ResultDoc{
		Objective:  opt.Objective(p, s),
		Breakdown:  opt.Breakdown(p, s),
		Feasible:   len(violations) == 0,
		Violations: violations,
		Metrics:    m,
	}
	sched := opt.Schedule(p, s)
	for ri, r := range s.Routes {
		if r.Empty() {
			continue
		}
		ro := RouteOut{
			VehicleID: p.Vehicles[r.Vehicle].ID,
			Load:      opt.RouteLoad(p, r),
			Objective: opt.RouteObjective(p, r),
			Schedule:  sched[ri],
		}
		for _, c := range r.Stops {
			ro.Stops = append(ro.Stops, p.Customers[c].ID)
		}
		for c, f := range r.Splits {
			if ro.Splits == nil {
				ro.Splits = map[int]float64{}
			}
			ro.Splits[p.Customers[c].ID] = f
		}
		out.Routes = append(out.Routes, ro)
	}
	return out
}

// Encode writes v in the given format.
func Encode(w io.Writer, f Format, v any) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown format %q", f)
}
