package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"vrptabu/internal/metrics"
	"vrptabu/internal/opt"
	"vrptabu/internal/problemio"
	"vrptabu/internal/seed"
	"vrptabu/internal/store"
)

const maxBodyBytes = 8 << 20

type solveResponse struct {
	RunID  string `json:"runId"`
	Status string `json:"status"`
	problemio.ResultDoc
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// SolveHandler handles POST /v1/solve
func (s *Server) SolveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req SolveRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateSolveRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid solve request", err.Error(), r.URL.Path)
		return
	}
	doc := problemio.Document{Problem: req.Problem, Solutions: req.Solutions}
	p, seeds, err := doc.Build()
	if err != nil {
		writeProblem(w, http.StatusUnprocessableEntity, "Invalid problem", err.Error(), r.URL.Path)
		return
	}

	cfg := s.Config.Search()
	if req.Search != nil {
		cfg = cfg.Overlay(*req.Search)
	}
	raw, _ := json.Marshal(req.Problem)
	now := time.Now().UTC()
	run := store.Run{
		ID:        store.NewRunID(),
		Status:    store.StatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
		Problem:   raw,
		Config:    cfg,
	}
	if err := s.Store.SaveRun(r.Context(), run); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Save run failed", err.Error(), r.URL.Path)
		return
	}

	count := req.Seeds
	if count == 0 && len(seeds) == 0 {
		count = s.Config.Seeds
	}
	providers := s.providers(seeds)

	if req.Async {
		s.running.Add(1)
		go func() {
			defer s.running.Done()
			s.execute(s.ctx, run, p, providers, count)
		}()
		w.Header().Set("Location", "/v1/runs/"+run.ID)
		writeJSON(w, http.StatusAccepted, map[string]string{"runId": run.ID, "status": run.Status})
		return
	}

	run = s.execute(r.Context(), run, p, providers, count)
	if run.Status == store.StatusFailed {
		writeProblem(w, http.StatusInternalServerError, "Solve failed", run.Error, "/v1/runs/"+run.ID)
		return
	}
	writeJSON(w, http.StatusOK, solveResponse{RunID: run.ID, Status: run.Status, ResultDoc: *run.Result})
}

func (s *Server) providers(seeds []opt.Solution) []opt.InitialSolutionProvider {
	if len(seeds) > 0 {
		return []opt.InitialSolutionProvider{seed.Fixed{Label: "request", Solutions: seeds}}
	}
	return []opt.InitialSolutionProvider{seed.Greedy{Seed: s.Config.SeedRand}, seed.Regret{}}
}

// execute runs the search for run, publishes its lifecycle events and stores
// the outcome. It returns the stored run.
func (s *Server) execute(ctx context.Context, run store.Run, p *opt.Problem, providers []opt.InitialSolutionProvider, count int) store.Run {
	log := s.Log.WithValues("runId", run.ID)
	s.Broker.Publish(run.ID, Event{Type: EventRunStarted, Data: map[string]any{"runId": run.ID, "customers": p.NumCustomers(), "vehicles": p.NumVehicles()}})

	improver := opt.TabuSearch{Config: run.Config, Logger: log, Observer: newProgress(s.Broker, run.ID).observe}
	res, err := opt.SolveBest(ctx, p, providers, count, improver)
	run.UpdatedAt = time.Now().UTC()
	if err != nil {
		run.Status = store.StatusFailed
		run.Error = err.Error()
		log.Error(err, "solve failed")
	} else {
		for _, sr := range res.Seeds {
			metrics.ObserveRun(sr.Metrics)
		}
		m := res.Seeds[res.BestSeed].Metrics
		doc := problemio.NewResult(p, res.Best, &m)
		run.Status = store.StatusDone
		run.Best = &res.Best
		run.Result = &doc
		log.Info("solve finished", "objective", doc.Objective, "feasible", doc.Feasible, "seeds", len(res.Seeds), "stopReason", m.StopReason)
	}
	// store before announcing, so a subscriber that misses the event reads
	// the finished run instead
	if err := s.Store.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		log.Error(err, "save run")
	}
	final, _ := finalEvent(run)
	s.Broker.Publish(run.ID, final)
	return run
}

// CheckHandler handles POST /v1/check: constraint report and objective for a
// supplied solution.
func (s *Server) CheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req CheckRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateCheckRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid check request", err.Error(), r.URL.Path)
		return
	}
	p, slns, err := problemio.Document{Problem: req.Problem, Solutions: []opt.Solution{req.Solution}}.Build()
	if err != nil {
		writeProblem(w, http.StatusUnprocessableEntity, "Invalid problem", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, problemio.NewResult(p, slns[0], nil))
}

// RunsIndexHandler handles GET /v1/runs
func (s *Server) RunsIndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", fmt.Sprintf("limit %q", v), r.URL.Path)
			return
		}
		limit = n
	}
	items, next, err := s.Store.ListRuns(r.Context(), cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List runs failed", err.Error(), r.URL.Path)
		return
	}
	// listings omit the problem and routes; GET /v1/runs/{id} has them
	for i := range items {
		items[i].Problem = nil
		items[i].Best = nil
		if items[i].Result != nil {
			res := *items[i].Result
			res.Routes = nil
			items[i].Result = &res
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// RunByIDHandler handles /v1/runs/{id}, /v1/runs/{id}/ws and /v1/runs/{id}/events
func (s *Server) RunByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	if rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	if len(parts) > 1 {
		switch parts[1] {
		case "ws":
			s.RunEventsWS(w, r, id)
		case "events":
			s.runEventsSSE(w, r, id)
		default:
			writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		}
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	run, err := s.Store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Run not found", id, r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get run failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// runEventsSSE streams run events as server-sent events until the run ends
// or the client goes away.
func (s *Server) runEventsSSE(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)
	run, err := s.Store.GetRun(r.Context(), id)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Run not found", id, r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func(evt Event) {
		b, _ := json.Marshal(evt.Data)
		fmt.Fprintf(w, "event: %s\n", evt.Type)
		fmt.Fprintf(w, "data: %s\n\n", b)
		flusher.Flush()
	}
	if final, done := finalEvent(run); done {
		send(final)
		return
	}
	send(Event{Type: "heartbeat", Data: map[string]any{"runId": id, "ts": time.Now().UTC().Format(time.RFC3339)}})
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			send(evt)
			if terminal(evt.Type) {
				return
			}
		case <-heartbeat.C:
			send(Event{Type: "heartbeat", Data: map[string]any{"runId": id, "ts": time.Now().UTC().Format(time.RFC3339)}})
		}
	}
}

// finalEvent describes a run that has already ended.
func finalEvent(run store.Run) (Event, bool) {
	switch run.Status {
	case store.StatusDone:
		data := map[string]any{"runId": run.ID}
		if run.Result != nil {
			data["objective"] = run.Result.Objective
			data["feasible"] = run.Result.Feasible
			if run.Result.Metrics != nil {
				data["iterations"] = run.Result.Metrics.Iterations
			}
		}
		return Event{Type: EventRunFinished, Data: data}, true
	case store.StatusFailed:
		return Event{Type: EventRunFailed, Data: map[string]any{"runId": run.ID, "error": run.Error}}, true
	}
	return Event{}, false
}

// ConfigHandler returns the default search configuration
func (s *Server) ConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	names := []string{}
	for _, f := range opt.AllFamilies() {
		names = append(names, f.String())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"search":   s.Config.Search(),
		"seeds":    s.Config.Seeds,
		"families": names,
	})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// Check store and broker connectivity when they are remote
	type pinger interface{ Ping(ctx context.Context) error }
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	for _, dep := range []any{s.Store, s.Broker} {
		if p, ok := dep.(pinger); ok {
			if err := p.Ping(ctx); err != nil {
				writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
				return
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
