// Package main runs a demo WebSocket client for solve progress.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// ringProblem places n customers on a circle around the depot.
func ringProblem(n int) map[string]any {
	customers := []map[string]any{{"id": 0}}
	locations := []map[string]float64{{"x": 0, "y": 0}}
	for i := 1; i <= n; i++ {
		a := 2 * math.Pi * float64(i*7%n) / float64(n)
		customers = append(customers, map[string]any{"id": i, "demand": map[string]float64{"volume": 1, "weight": 1}})
		locations = append(locations, map[string]float64{"x": 50 * math.Cos(a), "y": 50 * math.Sin(a)})
	}
	return map[string]any{
		"customers": customers,
		"vehicles": []map[string]any{
			{"id": 1, "capacity": map[string]float64{"volume": 20, "weight": 20}, "fixedCost": 50, "variableCost": 1},
			{"id": 2, "capacity": map[string]float64{"volume": 20, "weight": 20}, "fixedCost": 50, "variableCost": 1},
		},
		"locations": locations,
	}
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Start an asynchronous solve
	body, _ := json.Marshal(map[string]any{
		"problem": ringProblem(30),
		"search":  map[string]any{"maxIterations": 200, "stagnationLimit": 40},
		"async":   true,
	})
	resp, err := http.Post(base+"/v1/solve", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusAccepted {
		log.Fatalf("solve: unexpected status %s", resp.Status)
	}
	var accepted struct {
		RunID string `json:"runId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		log.Fatal(err)
	}
	log.Printf("Run ID: %s", accepted.RunID)

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/runs/" + accepted.RunID + "/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Minute))
	for {
		var evt event
		if err := c.ReadJSON(&evt); err != nil {
			log.Printf("read: %v", err)
			return
		}
		d, _ := json.Marshal(evt.Data)
		log.Printf("WS <- %s: %s", evt.Type, d)
		if evt.Type == "run.finished" || evt.Type == "run.failed" {
			return
		}
	}
}
