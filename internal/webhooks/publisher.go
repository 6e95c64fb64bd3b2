package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tourplan/internal/store"
)

// Event types delivered to subscribers.
const (
	EventRunCompleted = "run.completed"
	EventRunCancelled = "run.cancelled"
)

// Event is the JSON envelope posted to subscriber URLs.
type Event struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	TenantID string `json:"tenantId"`
	TS       string `json:"ts"`
	Data     any    `json:"data"`
}

type Publisher struct {
	Store store.Store
	now   func() time.Time
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s, now: time.Now}
}

// Emit enqueues one delivery per subscription for the tenant and event type
// and returns how many were enqueued. eventID doubles as the dedup key, so
// emitting the same event twice does not deliver it twice; an empty eventID
// gets a fresh one.
func (p *Publisher) Emit(ctx context.Context, tenantID, eventType, eventID string, data any) (int, error) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, tenantID, eventType)
	if err != nil {
		return 0, fmt.Errorf("subscriptions for %s: %w", eventType, err)
	}
	if len(subs) == 0 {
		return 0, nil
	}
	if eventID == "" {
		eventID = "evt_" + uuid.NewString()
	}
	body, err := json.Marshal(Event{
		ID:       eventID,
		Type:     eventType,
		TenantID: tenantID,
		TS:       p.now().UTC().Format(time.RFC3339),
		Data:     data,
	})
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", eventType, err)
	}
	n := 0
	var errs []error
	for _, s := range subs {
		if _, err := p.Store.EnqueueWebhook(ctx, tenantID, s.ID, eventType, s.URL, s.Secret, body); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}
