package api

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "strings"
    "time"

    "tourplan/internal/model"
    "tourplan/internal/store"
)

// queryLimit reads ?limit= clamped to [1, 500], defaulting to 100.
func queryLimit(r *http.Request) int {
    limit := 100
    if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
    if limit < 1 { limit = 1 }
    if limit > 500 { limit = 500 }
    return limit
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
    defer cancel()
    if err := s.Store.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", "store: "+err.Error(), r.URL.Path); return }
    type pinger interface{ Ping(ctx context.Context) error }
    if b, ok := s.Broker.(pinger); ok {
        if err := b.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", "broker: "+err.Error(), r.URL.Path); return }
    }
    writeJSON(w, 200, map[string]string{"status": "ready"})
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        p, ok := s.admin(w, r)
        if !ok { return }
        var req model.SubscriptionRequest
        if err := decodeJSON(r, &req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        req.TenantID = p.Tenant
        if err := validate.Struct(req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid subscription", validationDetail(err), r.URL.Path)
            return
        }
        sub, err := s.Store.CreateSubscription(r.Context(), req)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusCreated, sub)
    case http.MethodGet:
        p, ok := s.admin(w, r)
        if !ok { return }
        items, next, err := s.Store.ListSubscriptions(r.Context(), p.Tenant, r.URL.Query().Get("cursor"), queryLimit(r))
        if err != nil { writeProblem(w, 500, "List subscriptions failed", err.Error(), r.URL.Path); return }
        for i := range items { items[i].Secret = "" }
        writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
    id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
    if id == "" || id == r.URL.Path || strings.Contains(id, "/") { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodDelete { w.WriteHeader(405); return }
    p, ok := s.admin(w, r)
    if !ok { return }
    if err := s.Store.DeleteSubscription(r.Context(), p.Tenant, id); err != nil {
        if errors.Is(err, store.ErrNotFound) { writeProblem(w, 404, "Subscription not found", id, r.URL.Path); return }
        writeProblem(w, 500, "Delete subscription failed", err.Error(), r.URL.Path)
        return
    }
    w.WriteHeader(204)
}

// Admin: webhook deliveries list and retry
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/webhook-deliveries" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodGet { w.WriteHeader(405); return }
    p, ok := s.admin(w, r)
    if !ok { return }
    status := r.URL.Query().Get("status")
    items, next, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, status, r.URL.Query().Get("cursor"), queryLimit(r))
    if err != nil { writeProblem(w, 500, "List deliveries failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
    if !strings.HasPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/") || !strings.HasSuffix(r.URL.Path, "/retry") { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodPost { w.WriteHeader(405); return }
    p, ok := s.admin(w, r)
    if !ok { return }
    id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/"), "/retry")
    if err := s.Store.RetryWebhookDelivery(r.Context(), p.Tenant, id); err != nil {
        if errors.Is(err, store.ErrNotFound) { writeProblem(w, 404, "Delivery not found", id, r.URL.Path); return }
        writeProblem(w, 500, "Retry delivery failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, 202, map[string]int{"accepted": 1})
}

// Admin: webhook DLQ list and requeue
func (s *Server) WebhookDLQHandler(w http.ResponseWriter, r *http.Request) {
    p, ok := s.admin(w, r)
    if !ok { return }
    if r.URL.Path == "/v1/admin/webhook-dlq" && r.Method == http.MethodGet {
        eventType := r.URL.Query().Get("eventType")
        items, next, err := s.Store.ListWebhookDLQ(r.Context(), p.Tenant, eventType, r.URL.Query().Get("cursor"), queryLimit(r))
        if err != nil { writeProblem(w, 500, "List DLQ failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
        return
    }
    if strings.HasPrefix(r.URL.Path, "/v1/admin/webhook-dlq/") && strings.HasSuffix(r.URL.Path, "/requeue") && r.Method == http.MethodPost {
        id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-dlq/"), "/requeue")
        if err := s.Store.RequeueWebhookDLQ(r.Context(), p.Tenant, id); err != nil {
            if errors.Is(err, store.ErrNotFound) { writeProblem(w, 404, "DLQ entry not found", id, r.URL.Path); return }
            writeProblem(w, 500, "Requeue failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, 202, map[string]int{"accepted": 1})
        return
    }
    writeProblem(w, 404, "Not Found", "", r.URL.Path)
}

// OptimizerConfigHandler returns the effective optimizer settings for the
// caller's tenant: service defaults overlaid by the tenant's overrides.
func (s *Server) OptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/optimizer/config" || r.Method != http.MethodGet { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p, ok := s.principal(w, r)
    if !ok { return }
    eff, err := s.settingsFor(r.Context(), p.Tenant)
    if err != nil { writeProblem(w, 500, "Load config failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"defaults": map[string]any{
        "algorithm":        "tabu",
        "iterations":       eff.Iterations,
        "initialStrategy":  eff.InitialStrategy,
        "polish":           eff.Polish,
        "polishPasses":     eff.PolishPasses,
        "progressEvery":    eff.ProgressEvery,
        "speedKph":         eff.SpeedKph,
        "maxLocations":     eff.MaxLocations,
        "maxBatchJobs":     eff.MaxBatchJobs,
        "batchParallelism": eff.BatchParallelism,
    }})
}

// Admin get/set optimizer tenant config
func (s *Server) AdminOptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/optimizer/config" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p, ok := s.admin(w, r)
    if !ok { return }
    switch r.Method {
    case http.MethodGet:
        cfg, err := s.Store.GetOptimizerConfig(r.Context(), p.Tenant)
        if err != nil { writeProblem(w, 500, "Load config failed", err.Error(), r.URL.Path); return }
        if cfg == nil { cfg = map[string]any{} }
        writeJSON(w, 200, map[string]any{"config": cfg})
    case http.MethodPut:
        var body struct{ Config map[string]any `json:"config"` }
        if err := decodeJSON(r, &body); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
        if body.Config == nil { writeProblem(w, 400, "Missing config", "", r.URL.Path); return }
        if _, err := parseRunSettings(body.Config); err != nil { writeProblem(w, 400, "Invalid config", err.Error(), r.URL.Path); return }
        if err := s.Store.SaveOptimizerConfig(r.Context(), p.Tenant, body.Config); err != nil { writeProblem(w, 500, "Save failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]bool{"ok": true})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}
