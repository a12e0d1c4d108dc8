package api

import (
	"fmt"

	"vrptabu/internal/opt"
	"vrptabu/internal/problemio"
)

const maxSeeds = 64

// SolveRequest is the body of POST /v1/solve.
type SolveRequest struct {
	Problem problemio.ProblemDoc `json:"problem"`
	// Solutions, when given, are the seeds; otherwise greedy and regret
	// seeds are generated.
	Solutions []opt.Solution `json:"solutions,omitempty"`
	Search    *opt.Config    `json:"search,omitempty"`
	Seeds     int            `json:"seeds,omitempty"`
	// Async returns 202 right away; progress is streamed on the run.
	Async bool `json:"async,omitempty"`
}

// CheckRequest is the body of POST /v1/check.
type CheckRequest struct {
	Problem  problemio.ProblemDoc `json:"problem"`
	Solution opt.Solution         `json:"solution"`
}

func validateSolveRequest(req *SolveRequest) error {
	if len(req.Problem.Customers) < 2 {
		return fmt.Errorf("problem needs the depot and at least one customer")
	}
	if len(req.Problem.Vehicles) == 0 {
		return fmt.Errorf("problem needs at least one vehicle")
	}
	if req.Seeds < 0 || req.Seeds > maxSeeds {
		return fmt.Errorf("seeds must be in [0,%d]", maxSeeds)
	}
	if req.Search != nil {
		if err := req.Search.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func validateCheckRequest(req *CheckRequest) error {
	if len(req.Problem.Customers) == 0 {
		return fmt.Errorf("problem has no customers")
	}
	if len(req.Solution.Routes) == 0 {
		return fmt.Errorf("solution has no routes")
	}
	return nil
}
