package webhooks

import (
    "bytes"
    "context"
    "io"
    "log/slog"
    "net/http"
    "strconv"
    "sync"
    "time"

    "tourplan/internal/config"
    "tourplan/internal/metrics"
    "tourplan/internal/store"
)

// Worker polls the store for due deliveries and posts them. Failed
// deliveries are retried with exponential backoff until MaxAttempts, then
// moved to the dead-letter queue.
type Worker struct {
    Store store.Store
    HTTP  *http.Client
    Stop  chan struct{}
    MaxAttempts int
    Poll  time.Duration
    Batch int
    Log   *slog.Logger

    stopOnce sync.Once
    done     chan struct{}
}

func NewWorker(s store.Store, cfg config.WebhookConfig, log *slog.Logger) *Worker {
    if log == nil { log = slog.Default() }
    timeout := cfg.Timeout
    if timeout <= 0 { timeout = 5 * time.Second }
    poll := cfg.PollInterval
    if poll <= 0 { poll = time.Second }
    max := cfg.MaxAttempts
    if max <= 0 { max = 10 }
    return &Worker{
        Store: s,
        HTTP: &http.Client{Timeout: timeout},
        Stop: make(chan struct{}),
        MaxAttempts: max,
        Poll: poll,
        Batch: 50,
        Log: log.With("component", "webhooks"),
        done: make(chan struct{}),
    }
}

// Start runs the poll loop in a goroutine until ctx is done or Shutdown is called.
func (w *Worker) Start(ctx context.Context) {
    go func() {
        defer close(w.done)
        ticker := time.NewTicker(w.Poll)
        defer ticker.Stop()
        for {
            select {
            case <-ctx.Done():
                return
            case <-w.Stop:
                return
            case <-ticker.C:
                w.processOnce(ctx)
            }
        }
    }()
}

// Shutdown stops the loop and waits for the in-flight batch.
func (w *Worker) Shutdown(ctx context.Context) error {
    w.stopOnce.Do(func() { close(w.Stop) })
    select {
    case <-w.done:
        return nil
    case <-ctx.Done():
        return ctx.Err()
    }
}

func (w *Worker) processOnce(parent context.Context) {
    ctx, cancel := context.WithTimeout(parent, 10*time.Second+w.HTTP.Timeout)
    defer cancel()
    items, err := w.Store.FetchDueWebhookDeliveries(ctx, w.Batch)
    if err != nil {
        w.Log.Error("fetch due deliveries", "err", err)
        return
    }
    for _, it := range items {
        w.deliver(ctx, it)
    }
}

func (w *Worker) deliver(ctx context.Context, it store.WebhookDelivery) {
    success := false
    next := time.Now().Add(nextBackoff(it.Attempts))
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
    if err != nil {
        // a malformed URL never heals
        _ = w.Store.FailWebhookDelivery(ctx, it.ID, err.Error(), 0, 0)
        metrics.WebhookDeliveries.WithLabelValues(it.EventType, "failed").Inc()
        return
    }
    req.Header.Set("Content-Type", "application/json")
    req.Header.Set(HeaderEventType, it.EventType)
    req.Header.Set(HeaderDelivery, it.ID)
    if it.Secret != "" {
        req.Header.Set(HeaderSignature, SignHMAC(it.Secret, it.Payload))
    }
    start := time.Now()
    resp, err := w.HTTP.Do(req)
    latency := int(time.Since(start).Milliseconds())
    code := 0
    if err == nil {
        code = resp.StatusCode
        _, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
        _ = resp.Body.Close()
        success = code >= 200 && code < 300
    }
    lastErr := ""
    switch {
    case err != nil:
        lastErr = err.Error()
    case !success:
        lastErr = "unexpected status " + strconv.Itoa(code)
    }

    status := "delivered"
    switch {
    case success:
        err = w.Store.MarkWebhookDelivery(ctx, it.ID, true, nil, "", code, latency)
    case it.Attempts+1 >= w.MaxAttempts:
        status = "failed"
        err = w.Store.FailWebhookDelivery(ctx, it.ID, lastErr, code, latency)
    default:
        status = "retry"
        err = w.Store.MarkWebhookDelivery(ctx, it.ID, false, &next, lastErr, code, latency)
    }
    metrics.WebhookDeliveries.WithLabelValues(it.EventType, status).Inc()
    metrics.WebhookLatency.WithLabelValues(it.EventType, status).Observe(float64(latency))
    if err != nil {
        w.Log.Error("record delivery", "id", it.ID, "status", status, "err", err)
        return
    }
    if !success {
        w.Log.Warn("webhook delivery failed", "id", it.ID, "event", it.EventType, "attempt", it.Attempts+1, "status", status, "code", code, "err", lastErr)
    }
}

// nextBackoff doubles from one second per attempt and caps at one hour.
func nextBackoff(attempts int) time.Duration {
    if attempts < 0 { attempts = 0 }
    if attempts > 10 { attempts = 10 }
    base := time.Second * time.Duration(1<<attempts)
    return min(base, time.Hour)
}

