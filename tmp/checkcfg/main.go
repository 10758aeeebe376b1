package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"

	"talentline/internal/app"
	"talentline/internal/server"
)

// Manual smoke check: boots a mock-mode workspace, runs one cycle over a
// seeded role through the HTTP API, and prints the summary.
func main() {
	workspace := "/tmp/talentline-check"
	a, err := app.Open(workspace, nil)
	if err != nil {
		panic(err)
	}
	defer a.Close()

	h, err := server.New(server.Config{
		Repo:    a.Repo,
		Gateway: a.Gateway,
		Ingest:  a.Ingest,
		Orch:    a.Orch,
	})
	if err != nil {
		panic(err)
	}
	ts := httptest.NewServer(h)
	defer ts.Close()

	role := map[string]any{
		"tenant_id":    "acme",
		"title":        "Backend Engineer",
		"requirements": "Go, SQL, distributed systems",
		"min_pipeline": 5,
	}
	b, _ := json.Marshal(role)
	resp, err := http.Post(ts.URL+"/v0/roles", "application/json", bytes.NewReader(b))
	if err != nil {
		panic(err)
	}
	resp.Body.Close()
	fmt.Println("create role:", resp.Status)

	resp, err = http.Post(ts.URL+"/v0/cycles", "application/json", nil)
	if err != nil {
		panic(err)
	}
	var summary map[string]any
	json.NewDecoder(resp.Body).Decode(&summary)
	resp.Body.Close()
	fmt.Println("cycle:", resp.Status, summary)
}
