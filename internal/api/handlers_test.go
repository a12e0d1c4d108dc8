package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vrptabu/internal/config"
	"vrptabu/internal/opt"
	"vrptabu/internal/problemio"
	"vrptabu/internal/store"
)

// squareProblem is a depot plus three customers on a 10x10 square served by
// one vehicle; the perimeter tour costs 40 travel + 40 time + 5 fixed.
const squareProblem = `{
  "customers": [
    {"id": 0},
    {"id": 1, "demand": {"volume": 2, "weight": 2}},
    {"id": 2, "demand": {"volume": 2, "weight": 2}},
    {"id": 3, "demand": {"volume": 2, "weight": 2}}
  ],
  "vehicles": [{"id": 9, "capacity": {"volume": 6, "weight": 6}, "fixedCost": 5, "variableCost": 1}],
  "locations": [{"x": 0, "y": 0}, {"x": 0, "y": 10}, {"x": 10, "y": 10}, {"x": 10, "y": 0}]
}`

func newTestServer(t *testing.T, tweak ...func(*config.Config)) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Seeds = 2
	for _, f := range tweak {
		f(&cfg)
	}
	s := New(store.NewMemory(), NewBroker(), cfg, logr.Discard())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestSolveStoresRun(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rr := do(t, h, http.MethodPost, "/v1/solve", `{"problem":`+squareProblem+`}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp solveResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, store.StatusDone, resp.Status)
	assert.True(t, resp.Feasible)
	assert.InDelta(t, 85.0, resp.Objective, 1e-6)
	require.Len(t, resp.Routes, 1)
	assert.Equal(t, 9, resp.Routes[0].VehicleID)
	require.NotNil(t, resp.Metrics)

	rr = do(t, h, http.MethodGet, "/v1/runs/"+resp.RunID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var run store.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &run))
	assert.Equal(t, store.StatusDone, run.Status)
	require.NotNil(t, run.Best)
	assert.NotEmpty(t, run.Problem)

	rr = do(t, h, http.MethodGet, "/v1/runs?limit=10", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Items      []store.Run `json:"items"`
		NextCursor string      `json:"nextCursor"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	assert.Empty(t, list.NextCursor)
	assert.Nil(t, list.Items[0].Best)
	assert.Empty(t, list.Items[0].Problem)
}

func TestSolveImprovesSuppliedSeed(t *testing.T) {
	s := newTestServer(t)
	body := `{"problem":` + squareProblem + `,"solutions":[{"routes":[{"vehicle":0,"stops":[3,1,2]}]}],"search":{"families":["two_opt"]}}`
	rr := do(t, s.Handler(), http.MethodPost, "/v1/solve", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp solveResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.InDelta(t, 85.0, resp.Objective, 1e-6)
	assert.Equal(t, 1, resp.Metrics.FamilyWins["two_opt"])
}

func TestSolveRejectsBadInput(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	cases := []struct {
		name   string
		method string
		body   string
		code   int
	}{
		{"method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"json", http.MethodPost, `{"problem":`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, `{"problem":` + squareProblem + `,"algo":"alns"}`, http.StatusBadRequest},
		{"seeds", http.MethodPost, `{"problem":` + squareProblem + `,"seeds":1000}`, http.StatusBadRequest},
		{"search", http.MethodPost, `{"problem":` + squareProblem + `,"search":{"tenure":-2}}`, http.StatusBadRequest},
		{"no vehicles", http.MethodPost, `{"problem":{"customers":[{"id":0},{"id":1}]}}`, http.StatusBadRequest},
		{"no matrices", http.MethodPost, `{"problem":{"customers":[{"id":0},{"id":1}],"vehicles":[{"id":1,"capacity":{"volume":1,"weight":1},"variableCost":1}]}}`, http.StatusUnprocessableEntity},
		{"bad seed", http.MethodPost, `{"problem":` + squareProblem + `,"solutions":[{"routes":[{"vehicle":4,"stops":[1,2,3]}]}]}`, http.StatusUnprocessableEntity},
		{"depot mid-route", http.MethodPost, `{"problem":` + squareProblem + `,"solutions":[{"routes":[{"vehicle":0,"stops":[0,1,0,2,3,0]}]}]}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, h, tc.method, "/v1/solve", tc.body)
			assert.Equal(t, tc.code, rr.Code, rr.Body.String())
			if tc.code != http.StatusMethodNotAllowed {
				var p Problem
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
				assert.Equal(t, tc.code, p.Status)
			}
		})
	}
}

func TestCheckReportsViolations(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rr := do(t, h, http.MethodPost, "/v1/check", `{"problem":`+squareProblem+`,"solution":{"routes":[{"vehicle":0,"stops":[1,2,3]}]}}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res problemio.ResultDoc
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.True(t, res.Feasible)
	assert.InDelta(t, 85.0, res.Objective, 1e-9)

	tight := strings.Replace(squareProblem, `"capacity": {"volume": 6, "weight": 6}`, `"capacity": {"volume": 4, "weight": 4}`, 1)
	rr = do(t, h, http.MethodPost, "/v1/check", `{"problem":`+tight+`,"solution":{"routes":[{"vehicle":0,"stops":[1,2,3]}]}}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.False(t, res.Feasible)
	assert.Contains(t, res.Violations, opt.CheckCapacity)

	rr = do(t, h, http.MethodPost, "/v1/check", `{"problem":`+squareProblem+`,"solution":{"routes":[]}}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRunNotFound(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/runs/nope", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/runs/nope/events", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/runs/nope/ws", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/runs/nope/other", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/runs?limit=x", "").Code)
}

func TestEventsForFinishedRun(t *testing.T) {
	s := newTestServer(t)
	run := store.Run{ID: "r-done", Status: store.StatusDone, Result: &problemio.ResultDoc{Objective: 12, Feasible: true}}
	require.NoError(t, s.Store.SaveRun(context.Background(), run))

	rr := httptest.NewRecorder()
	s.RunByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/runs/r-done/events", nil))
	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "event: run.finished\n")
	assert.Contains(t, rr.Body.String(), `"objective":12`)
}

func TestAsyncSolveStreamsOverWebSocket(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/solve", "application/json", bytes.NewBufferString(`{"problem":`+squareProblem+`,"async":true}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var accepted map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	id := accepted["runId"]
	require.NotEmpty(t, id)
	assert.Equal(t, "/v1/runs/"+id, resp.Header.Get("Location"))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/runs/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	var last Event
	for {
		var evt Event
		if err := conn.ReadJSON(&evt); err != nil {
			break
		}
		last = evt
		if terminal(evt.Type) {
			break
		}
	}
	assert.Equal(t, EventRunFinished, last.Type)
	assert.InDelta(t, 85.0, last.Data["objective"], 1e-6)

	run, err := s.Store.GetRun(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusDone, run.Status)
}

func TestRateLimitOnlyGuardsAPI(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.RateRPS = 0.001
		c.RateBurst = 1
	})
	h := s.Handler()
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/v1/config", "").Code)
	rr := do(t, h, http.MethodGet, "/v1/config", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
}

func TestConfigDebugAndMetrics(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rr := do(t, h, http.MethodGet, "/v1/config", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var cfg struct {
		Search   opt.Config `json:"search"`
		Families []string   `json:"families"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &cfg))
	assert.Equal(t, opt.DefaultTenure, cfg.Search.Tenure)
	assert.Equal(t, []string{"relocate", "relocate_split", "exchange", "two_opt"}, cfg.Families)

	rr = do(t, h, http.MethodGet, "/v1/debug", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"build"`)

	rr = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `http_requests_total{method="GET",path="/v1/config",status="200"}`)
}

func TestPathLabel(t *testing.T) {
	assert.Equal(t, "/v1/solve", pathLabel("/v1/solve"))
	assert.Equal(t, "/v1/runs/", pathLabel("/v1/runs/"))
	assert.Equal(t, "/v1/runs/{id}", pathLabel("/v1/runs/0193"))
	assert.Equal(t, "/v1/runs/{id}/ws", pathLabel("/v1/runs/0193/ws"))
}

func TestProgressThrottlesPlainIterations(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("r")
	p := newProgress(b, "r")
	for i := 1; i <= 5; i++ {
		p.observe(opt.IterationEvent{Iteration: i})
	}
	p.observe(opt.IterationEvent{Iteration: 6, Improved: true})

	var got []int
	for len(ch) > 0 {
		evt := <-ch
		got = append(got, evt.Data["iteration"].(int))
	}
	assert.Equal(t, []int{1, 6}, got)
}
