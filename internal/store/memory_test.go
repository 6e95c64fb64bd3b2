package store

import (
    "context"
    "errors"
    "testing"
    "time"

    "tourplan/internal/model"
)

func TestMemoryRuns(t *testing.T) {
    ctx := context.Background()
    m := NewMemory()
    for _, id := range []string{"r1", "r2", "r3"} {
        st := model.RunCompleted
        if id == "r2" { st = model.RunCancelled }
        if err := m.SaveRun(ctx, model.Run{ID: id, TenantID: "t1", Status: st, Tour: []int{0, 1, 0}}); err != nil {
            t.Fatalf("SaveRun %s: %v", id, err)
        }
    }
    if err := m.SaveRun(ctx, model.Run{ID: "r1", TenantID: "t1"}); !errors.Is(err, ErrConflict) {
        t.Fatalf("want ErrConflict, got %v", err)
    }
    // same id under another tenant is independent
    if err := m.SaveRun(ctx, model.Run{ID: "r1", TenantID: "t2"}); err != nil {
        t.Fatalf("SaveRun t2: %v", err)
    }
    r, err := m.GetRun(ctx, "t1", "r2")
    if err != nil || r.Status != model.RunCancelled || r.CreatedAt.IsZero() {
        t.Fatalf("GetRun: %+v %v", r, err)
    }
    if _, err := m.GetRun(ctx, "t2", "r2"); !errors.Is(err, ErrNotFound) {
        t.Fatalf("want ErrNotFound, got %v", err)
    }

    page, next, err := m.ListRuns(ctx, "t1", "", "", 2)
    if err != nil || len(page) != 2 || next != "r2" {
        t.Fatalf("page1: %d items next=%q err=%v", len(page), next, err)
    }
    page, next, _ = m.ListRuns(ctx, "t1", "", next, 2)
    if len(page) != 1 || page[0].ID != "r3" || next != "" {
        t.Fatalf("page2: %+v next=%q", page, next)
    }
    done, _, _ := m.ListRuns(ctx, "t1", model.RunCompleted, "", 10)
    if len(done) != 2 {
        t.Fatalf("want 2 completed runs, got %d", len(done))
    }
}

func TestMemorySubscriptions(t *testing.T) {
    ctx := context.Background()
    m := NewMemory()
    a, _ := m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://a", Events: []string{"run.completed"}})
    _, _ = m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://b", Events: []string{"run.cancelled"}})
    subs, _ := m.GetSubscriptionsForEvent(ctx, "t1", "run.completed")
    if len(subs) != 1 || subs[0].ID != a.ID {
        t.Fatalf("unexpected subscriptions: %+v", subs)
    }
    if err := m.DeleteSubscription(ctx, "t1", a.ID); err != nil {
        t.Fatalf("delete: %v", err)
    }
    if err := m.DeleteSubscription(ctx, "t1", a.ID); !errors.Is(err, ErrNotFound) {
        t.Fatalf("want ErrNotFound on second delete, got %v", err)
    }
    list, next, _ := m.ListSubscriptions(ctx, "t1", "", 10)
    if len(list) != 1 || next != "" {
        t.Fatalf("list: %+v next=%q", list, next)
    }
}

func TestMemoryWebhookLifecycle(t *testing.T) {
    ctx := context.Background()
    m := NewMemory()
    payload := []byte(`{"id":"evt_1","type":"run.completed"}`)
    id, err := m.EnqueueWebhook(ctx, "t1", "s1", "run.completed", "http://hook", "sec", payload)
    if err != nil { t.Fatal(err) }
    dup, _ := m.EnqueueWebhook(ctx, "t1", "s1", "run.completed", "http://hook", "sec", payload)
    if dup != id {
        t.Fatalf("duplicate payload should map to the same delivery: %s vs %s", dup, id)
    }

    due, _ := m.FetchDueWebhookDeliveries(ctx, 10)
    if len(due) != 1 || due[0].ID != id {
        t.Fatalf("due: %+v", due)
    }
    later := time.Now().Add(time.Hour)
    if err := m.MarkWebhookDelivery(ctx, id, false, &later, "boom", 500, 12); err != nil { t.Fatal(err) }
    if due, _ := m.FetchDueWebhookDeliveries(ctx, 10); len(due) != 0 {
        t.Fatalf("retry scheduled in the future should not be due: %+v", due)
    }
    if err := m.FailWebhookDelivery(ctx, id, "boom", 500, 12); err != nil { t.Fatal(err) }
    dlq, _, _ := m.ListWebhookDLQ(ctx, "t1", "", "", 10)
    if len(dlq) != 1 || dlq[0]["deliveryId"] != id {
        t.Fatalf("dlq: %+v", dlq)
    }
    if err := m.RequeueWebhookDLQ(ctx, "t1", dlq[0]["id"].(string)); err != nil { t.Fatal(err) }
    if due, _ := m.FetchDueWebhookDeliveries(ctx, 10); len(due) != 1 || due[0].Attempts != 0 {
        t.Fatalf("requeued delivery should be due with attempts reset: %+v", due)
    }
    if err := m.RequeueWebhookDLQ(ctx, "t1", "missing"); !errors.Is(err, ErrNotFound) {
        t.Fatalf("want ErrNotFound, got %v", err)
    }
    if err := m.MarkWebhookDelivery(ctx, id, true, nil, "", 200, 3); err != nil { t.Fatal(err) }
    items, _, _ := m.ListWebhookDeliveries(ctx, "t1", "delivered", "", 10)
    if len(items) != 1 || items[0]["attempts"] != 1 {
        t.Fatalf("delivered items: %+v", items)
    }
    if err := m.RetryWebhookDelivery(ctx, "t2", id); !errors.Is(err, ErrNotFound) {
        t.Fatalf("cross-tenant retry should be not found, got %v", err)
    }
}

func TestMemoryOptimizerConfigIsCopied(t *testing.T) {
    ctx := context.Background()
    m := NewMemory()
    if cfg, err := m.GetOptimizerConfig(ctx, "t1"); err != nil || cfg != nil {
        t.Fatalf("want nil config, got %v %v", cfg, err)
    }
    in := map[string]any{"iterations": 200}
    _ = m.SaveOptimizerConfig(ctx, "t1", in)
    in["iterations"] = 1
    got, _ := m.GetOptimizerConfig(ctx, "t1")
    if got["iterations"] != 200 {
        t.Fatalf("stored config aliased caller map: %v", got)
    }
}
