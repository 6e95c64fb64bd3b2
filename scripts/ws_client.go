// Package main runs a demo WebSocket client for run events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)
	runID := "demo-" + uuid.NewString()[:8]

	// Connect WS first so no event is missed
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	payload := map[string]any{
		"query":     "subscription($runId: ID!) { runEvents(runId: $runId) }",
		"variables": map[string]any{"runId": runID},
	}
	pl, _ := json.Marshal(payload)
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
			if m.Type == "next" && bytes.Contains(m.Payload, []byte(`"run.completed"`)) {
				return
			}
		}
	}()

	// Start a run over a few cities
	time.Sleep(200 * time.Millisecond)
	body, _ := json.Marshal(map[string]any{
		"runId": runID,
		"locations": []map[string]any{
			{"id": "philadelphia", "lat": 39.9526, "lng": -75.1652},
			{"id": "new-york", "lat": 40.7128, "lng": -74.0060},
			{"id": "baltimore", "lat": 39.2904, "lng": -76.6122},
			{"id": "harrisburg", "lat": 40.2732, "lng": -76.8867},
			{"id": "trenton", "lat": 40.2206, "lng": -74.7597},
			{"id": "wilmington", "lat": 39.7447, "lng": -75.5484},
		},
		"iterations": 200,
		"polish":     true,
	})
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/optimize", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var optResp struct {
		RunID string   `json:"runId"`
		IDs   []string `json:"ids"`
		Cost  float64  `json:"cost"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&optResp); err != nil {
		log.Fatal(err)
	}
	log.Printf("Run %s: cost %.0f m via %v", optResp.RunID, optResp.Cost, optResp.IDs)

	select {
	case <-time.After(5 * time.Second):
	case <-done:
	}
}
