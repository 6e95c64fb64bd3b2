package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Run events over WebSocket using graphql-transport-ws framing: the client
// sends connection_init, then subscribe messages carrying
// {"variables":{"runId":"..."}}; events arrive as next / {data:{runEvents:...}}.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 20 * time.Second
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// WSHandler handles /v1/ws
func (s *Server) WSHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	type sub struct {
		key string
		ch  chan RunEvent
	}
	subs := map[string]sub{}
	var wg sync.WaitGroup

	// gorilla allows one concurrent writer
	var wmu sync.Mutex
	write := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}
	writeError := func(id, msg string) {
		b, _ := json.Marshal([]map[string]string{{"message": msg}})
		_ = write(wsMessage{Type: "error", ID: id, Payload: b})
	}

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsReadTimeout)) })

	stop := make(chan struct{})
	defer close(stop)
	initialised := false

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		switch msg.Type {
		case "connection_init":
			if initialised {
				continue
			}
			initialised = true
			_ = write(wsMessage{Type: "connection_ack"})
			go func() {
				ticker := time.NewTicker(wsPingInterval)
				defer ticker.Stop()
				for {
					select {
					case <-stop:
						return
					case <-ticker.C:
						if err := write(wsMessage{Type: "ping"}); err != nil {
							return
						}
					}
				}
			}()
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "pong":
		case "subscribe":
			if !initialised {
				writeError(msg.ID, "connection_init required")
				continue
			}
			if _, dup := subs[msg.ID]; dup || msg.ID == "" {
				writeError(msg.ID, "subscription id missing or already in use")
				continue
			}
			var pl subscribePayload
			_ = json.Unmarshal(msg.Payload, &pl)
			runID, _ := pl.Variables["runId"].(string)
			if runID == "" {
				writeError(msg.ID, "runId required")
				_ = write(wsMessage{Type: "complete", ID: msg.ID})
				continue
			}
			key := runTopic(p.Tenant, runID)
			ch := s.Broker.Subscribe(key)
			subs[msg.ID] = sub{key: key, ch: ch}
			wg.Add(1)
			go func(id string, c chan RunEvent) {
				defer wg.Done()
				for evt := range c {
					payload, _ := json.Marshal(map[string]any{"data": map[string]any{"runEvents": evt}})
					_ = write(wsMessage{Type: "next", ID: id, Payload: payload})
				}
				_ = write(wsMessage{Type: "complete", ID: id})
			}(msg.ID, ch)
		case "complete":
			if s0, ok := subs[msg.ID]; ok {
				s.Broker.Unsubscribe(s0.key, s0.ch)
				delete(subs, msg.ID)
			}
		default:
			s.Log.Debug("ignoring ws message", "type", msg.Type)
		}
	}
	for id, s0 := range subs {
		s.Broker.Unsubscribe(s0.key, s0.ch)
		delete(subs, id)
	}
	wg.Wait()
}
