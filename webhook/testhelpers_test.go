package webhook_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/drytrack/drytrack-api/webhook"
)

/* fakeRepo is an in-memory webhook.Repository for unit tests.
 * Thread-safe because dispatcher fan-out writes from many goroutines
 */
type fakeRepo struct {
	mu            sync.Mutex
	subs          map[string]webhook.Subscription
	deliveries    map[string]webhook.Delivery
	recent        map[string][]string
	retries       map[string]time.Time
	listErr       error
	storeDelivErr error
	getDelivErr   error
	scheduleErr   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		subs:       make(map[string]webhook.Subscription),
		deliveries: make(map[string]webhook.Delivery),
		recent:     make(map[string][]string),
		retries:    make(map[string]time.Time),
	}
}

func (f *fakeRepo) StoreSubscription(_ context.Context, sub webhook.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[sub.ID] = sub
	return nil
}

func (f *fakeRepo) UpdateSubscription(_ context.Context, sub webhook.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[sub.ID]; !ok {
		return fmt.Errorf("subscription %s: %w", sub.ID, webhook.ErrNotFound)
	}
	f.subs[sub.ID] = sub
	return nil
}

func (f *fakeRepo) GetSubscription(_ context.Context, id string) (webhook.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[id]
	if !ok {
		return webhook.Subscription{}, fmt.Errorf("subscription %s: %w", id, webhook.ErrNotFound)
	}
	return sub, nil
}

func (f *fakeRepo) ListSubscriptions(_ context.Context) ([]webhook.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	subs := make([]webhook.Subscription, 0, len(f.subs))
	for _, sub := range f.subs {
		subs = append(subs, sub)
	}
	return subs, nil
}

func (f *fakeRepo) DeleteSubscription(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[id]; !ok {
		return fmt.Errorf("subscription %s: %w", id, webhook.ErrNotFound)
	}
	delete(f.subs, id)
	return nil
}

func (f *fakeRepo) StoreDelivery(_ context.Context, d webhook.Delivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storeDelivErr != nil {
		return f.storeDelivErr
	}
	f.deliveries[d.ID] = d
	f.recent[d.SubscriptionID] = append([]string{d.ID}, f.recent[d.SubscriptionID]...)
	return nil
}

func (f *fakeRepo) UpdateDelivery(_ context.Context, d webhook.Delivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries[d.ID] = d
	return nil
}

func (f *fakeRepo) GetDelivery(_ context.Context, id string) (webhook.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getDelivErr != nil {
		return webhook.Delivery{}, f.getDelivErr
	}
	d, ok := f.deliveries[id]
	if !ok {
		return webhook.Delivery{}, fmt.Errorf("delivery %s: %w", id, webhook.ErrNotFound)
	}
	return d, nil
}

func (f *fakeRepo) RecentDeliveries(_ context.Context, subscriptionID string, limit int) ([]webhook.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := f.recent[subscriptionID]
	if len(ids) > limit {
		ids = ids[:limit]
	}
	deliveries := make([]webhook.Delivery, 0, len(ids))
	for _, id := range ids {
		deliveries = append(deliveries, f.deliveries[id])
	}
	return deliveries, nil
}

func (f *fakeRepo) Stats(_ context.Context) (webhook.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var stats webhook.Stats
	for _, d := range f.deliveries {
		stats.Total++
		switch d.Status {
		case webhook.Delivered:
			stats.Success++
		case webhook.FailedExhausted:
			stats.Failed++
		case webhook.FailedRetrying:
			stats.PendingRetry++
		}
	}
	return stats, nil
}

func (f *fakeRepo) ScheduleRetry(_ context.Context, deliveryID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scheduleErr != nil {
		return f.scheduleErr
	}
	f.retries[deliveryID] = at
	return nil
}

func (f *fakeRepo) ClaimDueRetries(_ context.Context, now time.Time, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []string
	for id, at := range f.retries {
		if !at.After(now) && len(due) < limit {
			due = append(due, id)
			delete(f.retries, id)
		}
	}
	return due, nil
}

func (f *fakeRepo) Close(context.Context) error {
	return nil
}

func (f *fakeRepo) delivery(id string) webhook.Delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deliveries[id]
}

func (f *fakeRepo) retryAt(id string) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	at, ok := f.retries[id]
	return at, ok
}
