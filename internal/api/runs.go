package api

import (
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "strings"
    "time"

    "tourplan/internal/model"
    "tourplan/internal/store"
)

const sseHeartbeat = 15 * time.Second

// RunsHandler handles GET /v1/runs?status=&cursor=&limit=
func (s *Server) RunsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    p, ok := s.principal(w, r)
    if !ok { return }
    status := r.URL.Query().Get("status")
    if status != "" && status != model.RunCompleted && status != model.RunCancelled {
        writeProblem(w, 400, "Invalid status", fmt.Sprintf("status must be %s or %s", model.RunCompleted, model.RunCancelled), r.URL.Path)
        return
    }
    items, next, err := s.Store.ListRuns(r.Context(), p.Tenant, status, r.URL.Query().Get("cursor"), queryLimit(r))
    if err != nil { writeProblem(w, 500, "List runs failed", err.Error(), r.URL.Path); return }
    if items == nil { items = []model.Run{} }
    writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

// RunByIDHandler handles GET /v1/runs/{id} and GET /v1/runs/{id}/events/stream
func (s *Server) RunByIDHandler(w http.ResponseWriter, r *http.Request) {
    path := r.URL.Path
    rest := strings.TrimPrefix(path, "/v1/runs/")
    if rest == path || rest == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", path)
        return
    }
    parts := strings.Split(rest, "/")
    id := parts[0]
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    p, ok := s.principal(w, r)
    if !ok { return }
    switch {
    case len(parts) == 1:
        run, err := s.Store.GetRun(r.Context(), p.Tenant, id)
        if errors.Is(err, store.ErrNotFound) { writeProblem(w, 404, "Run not found", id, path); return }
        if err != nil { writeProblem(w, 500, "Get run failed", err.Error(), path); return }
        writeJSON(w, 200, run)
    case len(parts) == 3 && parts[1] == "events" && parts[2] == "stream":
        s.streamRunEvents(w, r, p.Tenant, id)
    default:
        writeProblem(w, 404, "Not Found", "", path)
    }
}

// streamRunEvents writes run events as SSE until the client goes away.
// The run need not exist yet: clients subscribe before posting a runId.
func (s *Server) streamRunEvents(w http.ResponseWriter, r *http.Request, tenant, id string) {
    flusher, ok := w.(http.Flusher)
    if !ok { writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path); return }
    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")

    key := runTopic(tenant, id)
    ch := s.Broker.Subscribe(key)
    defer s.Broker.Unsubscribe(key, ch)

    heartbeat := func() {
        fmt.Fprintf(w, "event: heartbeat\n")
        fmt.Fprintf(w, "data: {\"runId\":%q,\"ts\":%q}\n\n", id, time.Now().UTC().Format(time.RFC3339))
        flusher.Flush()
    }
    heartbeat()
    ticker := time.NewTicker(sseHeartbeat)
    defer ticker.Stop()
    for {
        select {
        case <-r.Context().Done():
            return
        case evt, ok := <-ch:
            if !ok { return }
            b, _ := json.Marshal(evt.Data)
            fmt.Fprintf(w, "event: %s\n", evt.Type)
            fmt.Fprintf(w, "data: %s\n\n", b)
            flusher.Flush()
        case <-ticker.C:
            heartbeat()
        }
    }
}
