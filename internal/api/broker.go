package api

import (
    "strconv"
    "sync"
)

// Run event types published on a run's channel.
const (
    EventRunProgress  = "run.progress"
    EventRunCompleted = "run.completed"
    EventRunCancelled = "run.cancelled"
)

// RunEvent is streamed to SSE and WebSocket subscribers of one run.
type RunEvent struct {
    Type  string         `json:"type"`
    RunID string         `json:"runId"`
    Data  map[string]any `json:"data"`
}

// EventBroker fans run events out to subscribers keyed by tenant and run.
// Delivery is best effort: a slow subscriber drops events.
type EventBroker interface {
    Subscribe(key string) chan RunEvent
    Unsubscribe(key string, ch chan RunEvent)
    Publish(key string, evt RunEvent)
}

// runTopic length-prefixes the tenant so no tenant/run pair can collide with
// another one's topic.
func runTopic(tenant, runID string) string {
    return strconv.Itoa(len(tenant)) + ":" + tenant + "/" + runID
}

// Broker is the in-process EventBroker.
type Broker struct {
    mu      sync.Mutex
    subs    map[string]map[chan RunEvent]struct{} // key -> set of channels
}

func NewBroker() *Broker {
    return &Broker{subs: map[string]map[chan RunEvent]struct{}{}}
}

func (b *Broker) Subscribe(key string) chan RunEvent {
    ch := make(chan RunEvent, 16)
    b.mu.Lock()
    if b.subs[key] == nil { b.subs[key] = map[chan RunEvent]struct{}{} }
    b.subs[key][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

// Unsubscribe removes and closes ch. Unknown channels are ignored.
func (b *Broker) Unsubscribe(key string, ch chan RunEvent) {
    b.mu.Lock()
    defer b.mu.Unlock()
    m := b.subs[key]
    if _, ok := m[ch]; !ok { return }
    delete(m, ch)
    if len(m) == 0 { delete(b.subs, key) }
    close(ch)
}

func (b *Broker) Publish(key string, evt RunEvent) {
    b.mu.Lock()
    defer b.mu.Unlock()
    for ch := range b.subs[key] {
        select { case ch <- evt: default: }
    }
}
