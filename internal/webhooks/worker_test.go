package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"tourplan/internal/config"
	"tourplan/internal/model"
	"tourplan/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []MarkRec
	fails []FailRec
}
type MarkRec struct {
	ID            string
	Success       bool
	Code, Latency int
	LastErr       string
}
type FailRec struct {
	ID            string
	Code, Latency int
	LastErr       string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, MarkRec{ID: id, Success: success, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.MarkWebhookDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}
func (r *recordStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, FailRec{ID: id, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailWebhookDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func newTestWorker(s store.Store, client *http.Client, maxAttempts int) *Worker {
	w := NewWorker(s, config.WebhookConfig{MaxAttempts: maxAttempts}, nil)
	w.HTTP = client
	return w
}

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
	var gotSig, gotType string
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(HeaderSignature)
		gotType = r.Header.Get(HeaderEventType)
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := newTestWorker(rs, srv.Client(), 3)
	id, err := rs.Memory.EnqueueWebhook(context.Background(), "t1", "", EventRunCompleted, srv.URL, "secret", []byte(`{"id":"evt1"}`))
	if err != nil || id == "" {
		t.Fatalf("enqueue failed: %v", err)
	}

	w.processOnce(context.Background())

	if gotType != EventRunCompleted {
		t.Fatalf("event type header = %q", gotType)
	}
	if !VerifyHMAC("secret", body, gotSig) {
		t.Fatalf("signature %q does not verify", gotSig)
	}
	if len(rs.marks) != 1 || !rs.marks[0].Success || rs.marks[0].Code != 200 {
		t.Fatalf("expected mark success, got: %+v", rs.marks)
	}
}

func TestWorkerProcessOnce_RetryThenFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := newTestWorker(rs, srv.Client(), 2)
	_, _ = rs.Memory.EnqueueWebhook(context.Background(), "t1", "", EventRunCompleted, srv.URL, "", []byte(`{}`))

	w.processOnce(context.Background())
	if len(rs.marks) != 1 || rs.marks[0].Success || rs.marks[0].LastErr == "" {
		t.Fatalf("first attempt should be marked for retry: %+v", rs.marks)
	}
	if len(rs.fails) != 0 {
		t.Fatalf("unexpected early fail: %+v", rs.fails)
	}

	// make the retry due now
	items, _, _ := rs.ListWebhookDeliveries(context.Background(), "t1", "retry", "", 10)
	if len(items) != 1 {
		t.Fatalf("want one retry delivery, got %+v", items)
	}
	if err := rs.RetryWebhookDelivery(context.Background(), "t1", items[0]["id"].(string)); err != nil {
		t.Fatal(err)
	}
	w.processOnce(context.Background())
	if len(rs.fails) != 1 || rs.fails[0].Code != 500 {
		t.Fatalf("expected fail recorded, got %+v", rs.fails)
	}
	dlq, _, _ := rs.ListWebhookDLQ(context.Background(), "t1", "", "", 10)
	if len(dlq) != 1 {
		t.Fatalf("expected one DLQ entry, got %+v", dlq)
	}
}

func TestWorkerStartShutdown(t *testing.T) {
	hits := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case hits <- struct{}{}:
		default:
		}
	}))
	defer srv.Close()
	s := store.NewMemory()
	w := NewWorker(s, config.WebhookConfig{MaxAttempts: 3, PollInterval: 10 * time.Millisecond}, nil)
	_, _ = s.EnqueueWebhook(context.Background(), "t1", "", EventRunCompleted, srv.URL, "", []byte(`{"id":"e"}`))
	w.Start(context.Background())
	select {
	case <-hits:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never delivered")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	// second shutdown is harmless
	if err := w.Shutdown(ctx); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}

func TestPublisherEmit(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	_, _ = s.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://a", Events: []string{EventRunCompleted}, Secret: "k"})
	_, _ = s.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://b", Events: []string{EventRunCancelled}})
	p := NewPublisher(s)
	p.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	n, err := p.Emit(ctx, "t1", EventRunCompleted, "evt_run1", map[string]any{"runId": "run1"})
	if err != nil || n != 1 {
		t.Fatalf("emit: n=%d err=%v", n, err)
	}
	// same event id is deduplicated by the store
	_, _ = p.Emit(ctx, "t1", EventRunCompleted, "evt_run1", map[string]any{"runId": "run1"})
	due, _ := s.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 1 {
		t.Fatalf("want 1 due delivery, got %d", len(due))
	}
	var ev Event
	if err := json.Unmarshal(due[0].Payload, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.ID != "evt_run1" || ev.Type != EventRunCompleted || ev.TS != "2024-01-02T03:04:05Z" || due[0].Secret != "k" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if n, _ := p.Emit(ctx, "t2", EventRunCompleted, "", nil); n != 0 {
		t.Fatalf("tenant without subscriptions should enqueue nothing, got %d", n)
	}
}

func TestNextBackoff(t *testing.T) {
	if nextBackoff(-1) != time.Second || nextBackoff(0) != time.Second {
		t.Fatalf("base backoff should be 1s")
	}
	if nextBackoff(3) != 8*time.Second {
		t.Fatalf("nextBackoff(3) = %s", nextBackoff(3))
	}
	if nextBackoff(50) != nextBackoff(10) {
		t.Fatalf("backoff should stop growing after 10 attempts")
	}
}
