package store

import (
    "context"
    "maps"
    "slices"
    "sync"
    "time"

    "github.com/google/uuid"
    "tourplan/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu     sync.Mutex
    runs   map[string]model.Run             // tenant|id -> run
    runIDs map[string][]string              // tenant -> run ids, insertion order
    subs   map[string][]model.Subscription  // tenant -> subscriptions
    // Webhooks queue state
    deliveries map[string]*memDelivery      // id -> delivery state
    deliveriesByTenant map[string][]string  // tenant -> delivery ids
    dlq    []memDLQ                         // dead-lettered deliveries
    optCfg map[string]map[string]any        // tenant -> config
    seq    int                              // enqueue order across tenants
}

func NewMemory() *Memory {
    return &Memory{
        runs: map[string]model.Run{},
        runIDs: map[string][]string{},
        subs: map[string][]model.Subscription{},
        deliveries: map[string]*memDelivery{},
        deliveriesByTenant: map[string][]string{},
        optCfg: map[string]map[string]any{},
    }
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
    WebhookDelivery
    NextAttemptAt time.Time
    LastError     string
    ResponseCode  int
    LatencyMs     int
    DeliveredAt   *time.Time
    seq           int
}

type memDLQ struct {
    ID           string
    DeliveryID   string
    TenantID     string
    EventType    string
    URL          string
    LastError    string
    ResponseCode int
    LatencyMs    int
    Attempts     int
    CreatedAt    time.Time
}

func runKey(tenantID, id string) string { return tenantID + "|" + id }

func (m *Memory) SaveRun(ctx context.Context, run model.Run) error {
    m.mu.Lock(); defer m.mu.Unlock()
    k := runKey(run.TenantID, run.ID)
    if _, ok := m.runs[k]; ok { return ErrConflict }
    if run.CreatedAt.IsZero() { run.CreatedAt = time.Now().UTC() }
    m.runs[k] = run
    m.runIDs[run.TenantID] = append(m.runIDs[run.TenantID], run.ID)
    return nil
}

func (m *Memory) GetRun(ctx context.Context, tenantID, runID string) (model.Run, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    r, ok := m.runs[runKey(tenantID, runID)]
    if !ok { return model.Run{}, ErrNotFound }
    return r, nil
}

func (m *Memory) ListRuns(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Run, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := m.runIDs[tenantID]
    start := 0
    if cursor != "" {
        for i, id := range ids {
            if id == cursor { start = i + 1; break }
        }
    }
    if limit <= 0 { limit = 100 }
    out := []model.Run{}
    var next string
    for i := start; i < len(ids) && len(out) < limit; i++ {
        r := m.runs[runKey(tenantID, ids[i])]
        if status == "" || r.Status == status { out = append(out, r) }
        next = ids[i]
    }
    if len(out) < limit { next = "" }
    return out, next, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: slices.Clone(req.Events), Secret: req.Secret}
    m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
    return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    var out []model.Subscription
    for _, s := range m.subs[tenantID] {
        if slices.Contains(s.Events, eventType) { out = append(out, s) }
    }
    return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    list := m.subs[tenantID]
    start := 0
    if cursor != "" {
        for i := range list { if list[i].ID == cursor { start = i+1; break } }
    }
    if limit <= 0 { limit = 100 }
    end := min(start + limit, len(list))
    items := append([]model.Subscription{}, list[start:end]...)
    next := ""
    if end < len(list) { next = list[end-1].ID }
    return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    arr := m.subs[tenantID]
    out := make([]model.Subscription, 0, len(arr))
    for _, s := range arr { if s.ID != id { out = append(out, s) } }
    if len(out) == len(arr) { return ErrNotFound }
    m.subs[tenantID] = out
    return nil
}

// Webhook deliveries
func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    dk := computeDedupKey(payload)
    for _, id := range m.deliveriesByTenant[tenantID] {
        d := m.deliveries[id]
        if d.EventType == eventType && d.URL == url && computeDedupKey(d.Payload) == dk {
            return d.ID, nil
        }
    }
    id := uuid.New().String()
    m.seq++
    d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, TenantID: tenantID, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending", Attempts: 0}, NextAttemptAt: time.Now(), seq: m.seq}
    m.deliveries[id] = d
    m.deliveriesByTenant[tenantID] = append(m.deliveriesByTenant[tenantID], id)
    return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    now := time.Now()
    out := []WebhookDelivery{}
    for _, id := range m.iterDeliveryIDs() {
        d := m.deliveries[id]
        if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
            out = append(out, d.WebhookDelivery)
            if limit > 0 && len(out) >= limit { break }
        }
    }
    return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    d.Attempts++
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    if success {
        d.Status = "delivered"
        now := time.Now()
        d.DeliveredAt = &now
    } else {
        d.Status = "retry"
        d.LastError = lastError
        if nextAttemptAt != nil { d.NextAttemptAt = *nextAttemptAt } else { d.NextAttemptAt = time.Now().Add(1 * time.Minute) }
    }
    return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    d.Status = "failed"
    d.LastError = lastError
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    m.dlq = append(m.dlq, memDLQ{
        ID: uuid.New().String(), DeliveryID: id, TenantID: d.TenantID, EventType: d.EventType, URL: d.URL,
        LastError: lastError, ResponseCode: responseCode, LatencyMs: latencyMs, Attempts: d.Attempts + 1, CreatedAt: time.Now().UTC(),
    })
    return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := m.deliveriesByTenant[tenantID]
    start := 0
    if cursor != "" {
        for i, id := range ids {
            if id == cursor { start = i + 1; break }
        }
    }
    if limit <= 0 { limit = 100 }
    out := []map[string]any{}
    var next string
    for i := start; i < len(ids) && len(out) < limit; i++ {
        d := m.deliveries[ids[i]]
        next = ids[i]
        if status != "" && d.Status != status { continue }
        item := map[string]any{"id": d.ID, "eventType": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL}
        if !d.NextAttemptAt.IsZero() { item["nextAttemptAt"] = d.NextAttemptAt }
        if d.LastError != "" { item["lastError"] = d.LastError }
        if d.ResponseCode != 0 { item["responseCode"] = d.ResponseCode }
        out = append(out, item)
    }
    if len(out) < limit { next = "" }
    return out, next, nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil || d.TenantID != tenantID { return ErrNotFound }
    d.Status = "pending"
    d.NextAttemptAt = time.Now()
    return nil
}

func (m *Memory) ListWebhookDLQ(ctx context.Context, tenantID, eventType, cursor string, limit int) ([]map[string]any, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if limit <= 0 { limit = 100 }
    out := []map[string]any{}
    started := cursor == ""
    var next string
    for _, e := range m.dlq {
        if !started { started = e.ID == cursor; continue }
        if e.TenantID != tenantID || (eventType != "" && e.EventType != eventType) { continue }
        if len(out) == limit { break }
        out = append(out, map[string]any{"id": e.ID, "deliveryId": e.DeliveryID, "eventType": e.EventType, "url": e.URL, "lastError": e.LastError, "attempts": e.Attempts, "createdAt": e.CreatedAt, "responseCode": e.ResponseCode, "latencyMs": e.LatencyMs})
        next = e.ID
    }
    if len(out) < limit { next = "" }
    return out, next, nil
}

// RequeueWebhookDLQ moves a dead-lettered delivery back to pending.
func (m *Memory) RequeueWebhookDLQ(ctx context.Context, tenantID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    for i, e := range m.dlq {
        if e.ID != id || e.TenantID != tenantID { continue }
        if d := m.deliveries[e.DeliveryID]; d != nil {
            d.Status = "pending"
            d.Attempts = 0
            d.NextAttemptAt = time.Now()
        }
        m.dlq = slices.Delete(m.dlq, i, i+1)
        return nil
    }
    return ErrNotFound
}

func (m *Memory) GetOptimizerConfig(ctx context.Context, tenantID string) (map[string]any, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if cfg, ok := m.optCfg[tenantID]; ok { return maps.Clone(cfg), nil }
    return nil, nil
}

func (m *Memory) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg map[string]any) error {
    m.mu.Lock(); defer m.mu.Unlock()
    m.optCfg[tenantID] = maps.Clone(cfg)
    return nil
}

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

// helper: delivery IDs across tenants in enqueue order
func (m *Memory) iterDeliveryIDs() []string {
    ids := []string{}
    for _, lst := range m.deliveriesByTenant {
        ids = append(ids, lst...)
    }
    slices.SortFunc(ids, func(a, b string) int { return m.deliveries[a].seq - m.deliveries[b].seq })
    return ids
}
