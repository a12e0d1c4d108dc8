// Package problemio reads problem documents and writes result documents in
// YAML or JSON. It is the one place external route formats are brought to
// the canonical [0, ..., 0] form.
package problemio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"vrptabu/internal/opt"
)

// Format selects the document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath guesses the format from a file extension; YAML is the default.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Location places a customer for matrix derivation.
type Location struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// ProblemDoc is the on-disk problem. Either Costs and Times are given, or
// Locations (one per customer) from which they are derived.
type ProblemDoc struct {
	Customers    []opt.Customer `json:"customers" yaml:"customers"`
	Vehicles     []opt.Vehicle  `json:"vehicles" yaml:"vehicles"`
	Costs        [][]float64    `json:"costs,omitempty" yaml:"costs,omitempty"`
	Times        [][]int        `json:"times,omitempty" yaml:"times,omitempty"`
	Locations    []Location     `json:"locations,omitempty" yaml:"locations,omitempty"`
	Metric       string         `json:"metric,omitempty" yaml:"metric,omitempty"` // euclidean (default) or haversine
	SpeedKph     float64        `json:"speedKph,omitempty" yaml:"speedKph,omitempty"`
	MaxSplits    int            `json:"maxSplits,omitempty" yaml:"maxSplits,omitempty"`
	EnableSplits bool           `json:"enableSplits,omitempty" yaml:"enableSplits,omitempty"`
	TimeCoeff    float64        `json:"timeCoeff,omitempty" yaml:"timeCoeff,omitempty"`
}

// Document is a problem plus optional seed solutions.
type Document struct {
	Problem   ProblemDoc     `json:"problem" yaml:"problem"`
	Solutions []opt.Solution `json:"solutions,omitempty" yaml:"solutions,omitempty"`
	Search    *opt.Config    `json:"search,omitempty" yaml:"search,omitempty"`
}

// Decode reads a document in the given format.
func Decode(r io.Reader, f Format) (Document, error) {
	var d Document
	switch f {
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&d); err != nil {
			return d, fmt.Errorf("decode json: %w", err)
		}
	default:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&d); err != nil && !errors.Is(err, io.EOF) {
			return d, fmt.Errorf("decode yaml: %w", err)
		}
	}
	return d, nil
}

// LoadFile reads a document, picking the format from the extension.
func LoadFile(path string) (Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	return Decode(bytes.NewReader(b), FormatFromPath(path))
}

// Build turns the document into a validated problem and canonical seeds.
func (d Document) Build() (*opt.Problem, []opt.Solution, error) {
	pd := d.Problem
	p := &opt.Problem{
		Customers:    append([]opt.Customer(nil), pd.Customers...),
		Vehicles:     append([]opt.Vehicle(nil), pd.Vehicles...),
		Costs:        pd.Costs,
		Times:        pd.Times,
		MaxSplits:    pd.MaxSplits,
		EnableSplits: pd.EnableSplits,
		TimeCoeff:    pd.TimeCoeff,
	}
	for i := range p.Customers {
		if p.Customers[i].HardTW == (opt.TimeWindow{}) {
			p.Customers[i].HardTW = opt.TimeWindow{Earliest: 0, Latest: math.MaxInt32}
		}
	}
	if len(p.Costs) == 0 || len(p.Times) == 0 {
		if len(pd.Locations) != len(p.Customers) {
			return nil, nil, fmt.Errorf("problem: need costs and times or one location per customer (%d locations, %d customers): %w",
				len(pd.Locations), len(p.Customers), opt.ErrPrecondition)
		}
		costs, times, err := deriveMatrices(pd.Locations, pd.Metric, pd.SpeedKph)
		if err != nil {
			return nil, nil, err
		}
		if len(p.Costs) == 0 {
			p.Costs = costs
		}
		if len(p.Times) == 0 {
			p.Times = times
		}
	}
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}
	slns := make([]opt.Solution, 0, len(d.Solutions))
	for i, s := range d.Solutions {
		c := Canonical(s)
		if err := opt.ValidateSolution(p, c); err != nil {
			return nil, nil, fmt.Errorf("solutions[%d]: %w", i, err)
		}
		slns = append(slns, c)
	}
	return p, slns, nil
}

// Canonical adds missing depot endpoints so each route reads [0, ..., 0].
func Canonical(s opt.Solution) opt.Solution {
	out := s.Clone()
	for i, r := range out.Routes {
		stops := r.Stops
		if len(stops) == 0 || stops[0] != opt.DepotIndex {
			stops = append([]int{opt.DepotIndex}, stops...)
		}
		if len(stops) == 1 || stops[len(stops)-1] != opt.DepotIndex {
			stops = append(stops, opt.DepotIndex)
		}
		out.Routes[i].Stops = stops
	}
	return out
}

func deriveMatrices(locs []Location, metric string, speedKph float64) ([][]float64, [][]int, error) {
	var dist func(a, b Location) float64
	switch strings.ToLower(metric) {
	case "", "euclidean":
		dist = func(a, b Location) float64 { return math.Hypot(a.X-b.X, a.Y-b.Y) }
	case "haversine":
		// X is longitude, Y latitude; distance in kilometres
		dist = func(a, b Location) float64 { return haversineMeters(a.Y, a.X, b.Y, b.X) / 1000 }
	default:
		return nil, nil, fmt.Errorf("unknown metric %q: %w", metric, opt.ErrPrecondition)
	}
	n := len(locs)
	costs := make([][]float64, n)
	times := make([][]int, n)
	for i := range locs {
		costs[i] = make([]float64, n)
		times[i] = make([]int, n)
		for j := range locs {
			d := dist(locs[i], locs[j])
			costs[i][j] = d
			if speedKph > 0 {
				// minutes at the given speed, distance in km
				times[i][j] = int(math.Round(d / speedKph * 60))
			} else {
				times[i][j] = int(math.Round(d))
			}
		}
	}
	return costs, times, nil
}

func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
