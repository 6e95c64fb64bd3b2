package api

import (
    "testing"
    "time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
    b := NewBroker()
    key := runTopic("t1", "r1")
    ch := b.Subscribe(key)

    evt := RunEvent{Type: EventRunProgress, RunID: "r1", Data: map[string]any{"x": 1}}
    b.Publish(key, evt)
    // other tenants never see it
    b.Publish(runTopic("t2", "r1"), RunEvent{Type: "other"})

    select {
    case got := <-ch:
        if got.Type != evt.Type { t.Fatalf("got type %s, want %s", got.Type, evt.Type) }
        if got.Data["x"].(int) != 1 { t.Fatalf("bad payload: %+v", got.Data) }
    case <-time.After(200 * time.Millisecond):
        t.Fatal("timeout waiting for event")
    }
    select {
    case got := <-ch:
        t.Fatalf("unexpected event %+v", got)
    default:
    }

    b.Unsubscribe(key, ch)
    if _, ok := <-ch; ok { t.Fatal("channel should be closed after unsubscribe") }
    // second unsubscribe must not panic on a closed channel
    b.Unsubscribe(key, ch)
}

func TestBrokerDropsWhenSubscriberIsSlow(t *testing.T) {
    b := NewBroker()
    ch := b.Subscribe("k")
    defer b.Unsubscribe("k", ch)
    for i := 0; i < 100; i++ {
        b.Publish("k", RunEvent{Type: EventRunProgress})
    }
    if len(ch) != cap(ch) { t.Fatalf("buffer should be full: %d/%d", len(ch), cap(ch)) }
}

func TestRunTopicKeepsTenantsApart(t *testing.T) {
    if runTopic("a", "x/y") == runTopic("a/x", "y") { t.Fatal("tenant a run x/y shares a topic with tenant a/x run y") }

    b := NewBroker()
    ch := b.Subscribe(runTopic("a/x", "y"))
    defer b.Unsubscribe(runTopic("a/x", "y"), ch)
    b.Publish(runTopic("a", "x/y"), RunEvent{Type: EventRunCompleted, RunID: "x/y"})
    select {
    case got := <-ch:
        t.Fatalf("event leaked across tenants: %+v", got)
    default:
    }
}
