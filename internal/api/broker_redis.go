package api

import (
    "context"
    "encoding/json"
    "log/slog"
    "sync"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// RedisBroker implements EventBroker over Redis Pub/Sub so events reach
// subscribers connected to any API replica.
type RedisBroker struct {
    rdb *redis.Client
    mu  sync.Mutex
    ps  map[chan RunEvent]*redis.PubSub
}

func NewRedisBroker(url string) (*RedisBroker, error) {
    opt, err := redis.ParseURL(url)
    if err != nil { return nil, err }
    return &RedisBroker{rdb: redis.NewClient(opt), ps: map[chan RunEvent]*redis.PubSub{}}, nil
}

func (b *RedisBroker) Subscribe(key string) chan RunEvent {
    ch := make(chan RunEvent, 16)
    ctx := context.Background()
    ps := b.rdb.Subscribe(ctx, b.chanName(key))
    // initial consume to ensure subscription
    if _, err := ps.Receive(ctx); err != nil {
        slog.Warn("redis subscribe", "key", key, "err", err)
    }
    b.mu.Lock()
    b.ps[ch] = ps
    b.mu.Unlock()
    go func() {
        defer close(ch)
        for msg := range ps.Channel() {
            var evt RunEvent
            if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
                select { case ch <- evt: default: }
            }
        }
    }()
    return ch
}

// Unsubscribe closes the Pub/Sub connection; the forwarding goroutine then
// closes ch.
func (b *RedisBroker) Unsubscribe(key string, ch chan RunEvent) {
    b.mu.Lock()
    ps := b.ps[ch]
    delete(b.ps, ch)
    b.mu.Unlock()
    if ps != nil { _ = ps.Close() }
}

func (b *RedisBroker) Publish(key string, evt RunEvent) {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    data, _ := json.Marshal(evt)
    if err := b.rdb.Publish(ctx, b.chanName(key), data).Err(); err != nil {
        slog.Warn("redis publish", "key", key, "type", evt.Type, "err", err)
    }
}

func (b *RedisBroker) Ping(ctx context.Context) error { return b.rdb.Ping(ctx).Err() }

func (b *RedisBroker) Close() error {
    b.mu.Lock()
    for ch, ps := range b.ps {
        _ = ps.Close()
        delete(b.ps, ch)
    }
    b.mu.Unlock()
    return b.rdb.Close()
}

func (b *RedisBroker) chanName(key string) string { return "run:" + key }
