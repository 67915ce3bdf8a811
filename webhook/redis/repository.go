package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/drytrack/drytrack-api/webhook"
)

/* Redis implementation of webhook.Repository
 * Uses Redis Hashes for subscription and delivery records, a Set as the
 * subscription index, a capped List per subscription for recent
 * deliveries, and a Sorted Set (scored by unix retry time) as the retry
 * queue
 */

const (
	subPrefix      = "subscription" // Hash naming: subscription:{id}
	subIndexKey    = "subscriptions"
	deliveryPrefix = "delivery" // Hash naming: delivery:{id}
	retryQueueKey  = "deliveries:retry"

	// recentDeliveriesKept caps the per-subscription recent-delivery list
	recentDeliveriesKept = 5
)

type Repository struct {
	client *redis.Client
}

// NewRepository creates a new Redis repository
func NewRepository(addr, password string, db int) (*Repository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	return &Repository{
		client: client,
	}, nil
}

// StoreSubscription writes a subscription hash and indexes its ID
func (r *Repository) StoreSubscription(ctx context.Context, sub webhook.Subscription) error {
	if err := r.writeSubscription(ctx, sub); err != nil {
		return err
	}
	if err := r.client.SAdd(ctx, subIndexKey, sub.ID).Err(); err != nil {
		return fmt.Errorf("indexing subscription: %w", err)
	}
	return nil
}

// UpdateSubscription replaces the stored hash for an existing subscription
func (r *Repository) UpdateSubscription(ctx context.Context, sub webhook.Subscription) error {
	exists, err := r.client.Exists(ctx, subKey(sub.ID)).Result()
	if err != nil {
		return fmt.Errorf("checking subscription: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("subscription %s: %w", sub.ID, webhook.ErrNotFound)
	}
	return r.writeSubscription(ctx, sub)
}

func (r *Repository) writeSubscription(ctx context.Context, sub webhook.Subscription) error {
	eventsJSON, err := json.Marshal(sub.Events)
	if err != nil {
		return fmt.Errorf("marshaling events: %w", err)
	}
	headersJSON, err := json.Marshal(sub.ExtraHeaders)
	if err != nil {
		return fmt.Errorf("marshaling headers: %w", err)
	}

	active := 0
	if sub.Active {
		active = 1
	}

	err = r.client.HSet(ctx, subKey(sub.ID), map[string]interface{}{
		"id":            sub.ID,
		"name":          sub.Name,
		"target_url":    sub.TargetURL,
		"events":        string(eventsJSON),
		"secret":        sub.Secret,
		"extra_headers": string(headersJSON),
		"active":        active,
		"created_at":    sub.CreatedAt.Unix(),
	}).Err()
	if err != nil {
		return fmt.Errorf("storing subscription: %w", err)
	}
	return nil
}

// GetSubscription retrieves a subscription by ID
func (r *Repository) GetSubscription(ctx context.Context, id string) (webhook.Subscription, error) {
	data, err := r.client.HGetAll(ctx, subKey(id)).Result()
	if err != nil {
		return webhook.Subscription{}, fmt.Errorf("getting subscription: %w", err)
	}
	if len(data) == 0 {
		return webhook.Subscription{}, fmt.Errorf("subscription %s: %w", id, webhook.ErrNotFound)
	}

	var events []string
	if eventsStr, ok := data["events"]; ok && eventsStr != "" {
		if err := json.Unmarshal([]byte(eventsStr), &events); err != nil {
			return webhook.Subscription{}, fmt.Errorf("unmarshaling events: %w", err)
		}
	}
	headers := make(map[string]string)
	if headersStr, ok := data["extra_headers"]; ok && headersStr != "" {
		if err := json.Unmarshal([]byte(headersStr), &headers); err != nil {
			return webhook.Subscription{}, fmt.Errorf("unmarshaling headers: %w", err)
		}
	}

	return webhook.Subscription{
		ID:           data["id"],
		Name:         data["name"],
		TargetURL:    data["target_url"],
		Events:       events,
		Secret:       data["secret"],
		ExtraHeaders: headers,
		Active:       data["active"] == "1",
		CreatedAt:    time.Unix(parseInt64(data["created_at"]), 0),
	}, nil
}

// ListSubscriptions returns every indexed subscription
func (r *Repository) ListSubscriptions(ctx context.Context) ([]webhook.Subscription, error) {
	ids, err := r.client.SMembers(ctx, subIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("listing subscription index: %w", err)
	}

	subs := make([]webhook.Subscription, 0, len(ids))
	for _, id := range ids {
		sub, err := r.GetSubscription(ctx, id)
		if err != nil {
			// Index entry may outlive a concurrently deleted hash
			continue
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// DeleteSubscription removes a subscription and its index entry.
// Delivery records are kept; retention is an external concern
func (r *Repository) DeleteSubscription(ctx context.Context, id string) error {
	removed, err := r.client.SRem(ctx, subIndexKey, id).Result()
	if err != nil {
		return fmt.Errorf("removing subscription index: %w", err)
	}
	if removed == 0 {
		return fmt.Errorf("subscription %s: %w", id, webhook.ErrNotFound)
	}
	if err := r.client.Del(ctx, subKey(id)).Err(); err != nil {
		return fmt.Errorf("deleting subscription: %w", err)
	}
	return nil
}

// StoreDelivery writes a delivery hash and prepends it to the
// subscription's recent-delivery list
func (r *Repository) StoreDelivery(ctx context.Context, d webhook.Delivery) error {
	if err := r.writeDelivery(ctx, d); err != nil {
		return err
	}

	recentKey := recentDeliveriesKey(d.SubscriptionID)
	if err := r.client.LPush(ctx, recentKey, d.ID).Err(); err != nil {
		return fmt.Errorf("recording recent delivery: %w", err)
	}
	if err := r.client.LTrim(ctx, recentKey, 0, recentDeliveriesKept-1).Err(); err != nil {
		return fmt.Errorf("trimming recent deliveries: %w", err)
	}
	return nil
}

// UpdateDelivery replaces the stored hash for a delivery
func (r *Repository) UpdateDelivery(ctx context.Context, d webhook.Delivery) error {
	return r.writeDelivery(ctx, d)
}

func (r *Repository) writeDelivery(ctx context.Context, d webhook.Delivery) error {
	headersJSON, err := json.Marshal(d.ExtraHeaders)
	if err != nil {
		return fmt.Errorf("marshaling headers: %w", err)
	}

	var nextRetryAt int64
	if !d.NextRetryAt.IsZero() {
		nextRetryAt = d.NextRetryAt.Unix()
	}

	err = r.client.HSet(ctx, deliveryKey(d.ID), map[string]interface{}{
		"id":              d.ID,
		"subscription_id": d.SubscriptionID,
		"event":           d.Event,
		"payload":         d.Payload,
		"target_url":      d.TargetURL,
		"secret":          d.Secret,
		"extra_headers":   string(headersJSON),
		"status":          d.Status.String(),
		"response_status": d.ResponseStatus,
		"response_body":   d.ResponseBody,
		"error":           d.Error,
		"retry_count":     d.RetryCount,
		"next_retry_at":   nextRetryAt,
		"created_at":      d.CreatedAt.Unix(),
		"updated_at":      d.UpdatedAt.Unix(),
	}).Err()
	if err != nil {
		return fmt.Errorf("storing delivery: %w", err)
	}
	return nil
}

// GetDelivery retrieves a delivery record by ID
func (r *Repository) GetDelivery(ctx context.Context, id string) (webhook.Delivery, error) {
	data, err := r.client.HGetAll(ctx, deliveryKey(id)).Result()
	if err != nil {
		return webhook.Delivery{}, fmt.Errorf("getting delivery: %w", err)
	}
	if len(data) == 0 {
		return webhook.Delivery{}, fmt.Errorf("delivery %s: %w", id, webhook.ErrNotFound)
	}
	return deliveryFromHash(data)
}

// RecentDeliveries returns the newest delivery records for a subscription
func (r *Repository) RecentDeliveries(ctx context.Context, subscriptionID string, limit int) ([]webhook.Delivery, error) {
	if limit <= 0 || limit > recentDeliveriesKept {
		limit = recentDeliveriesKept
	}

	ids, err := r.client.LRange(ctx, recentDeliveriesKey(subscriptionID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing recent deliveries: %w", err)
	}

	deliveries := make([]webhook.Delivery, 0, len(ids))
	for _, id := range ids {
		d, err := r.GetDelivery(ctx, id)
		if err != nil {
			continue
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, nil
}

/* Stats counts delivery records by scanning their current states.
 * A projection, not a stored aggregate: slower but immune to counter
 * drift when updates race
 */
func (r *Repository) Stats(ctx context.Context) (webhook.Stats, error) {
	var stats webhook.Stats

	var cursor uint64
	for {
		keys, nextCursor, err := r.client.Scan(ctx, cursor, deliveryPrefix+":*", 100).Result()
		if err != nil {
			return webhook.Stats{}, fmt.Errorf("scanning delivery keys: %w", err)
		}

		for _, key := range keys {
			status, err := r.client.HGet(ctx, key, "status").Result()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return webhook.Stats{}, fmt.Errorf("getting delivery status: %w", err)
			}

			stats.Total++
			switch webhook.NewStatus(status) {
			case webhook.Delivered:
				stats.Success++
			case webhook.FailedExhausted:
				stats.Failed++
			case webhook.FailedRetrying:
				stats.PendingRetry++
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return stats, nil
}

// ScheduleRetry enqueues a delivery on the retry queue, scored by retry time
func (r *Repository) ScheduleRetry(ctx context.Context, deliveryID string, at time.Time) error {
	err := r.client.ZAdd(ctx, retryQueueKey, redis.Z{
		Score:  float64(at.Unix()),
		Member: deliveryID,
	}).Err()
	if err != nil {
		return fmt.Errorf("scheduling retry: %w", err)
	}
	return nil
}

// ClaimDueRetries pops up to limit due delivery IDs from the retry queue.
// A member is only returned if this caller's ZRem removed it, so two
// concurrent sweeps never claim the same delivery
func (r *Repository) ClaimDueRetries(ctx context.Context, now time.Time, limit int) ([]string, error) {
	ids, err := r.client.ZRangeByScore(ctx, retryQueueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now.Unix()),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("reading retry queue: %w", err)
	}

	claimed := make([]string, 0, len(ids))
	for _, id := range ids {
		removed, err := r.client.ZRem(ctx, retryQueueKey, id).Result()
		if err != nil {
			return claimed, fmt.Errorf("claiming retry: %w", err)
		}
		if removed > 0 {
			claimed = append(claimed, id)
		}
	}
	return claimed, nil
}

// Close closes the Redis connection
func (r *Repository) Close(ctx context.Context) error {
	return r.client.Close()
}

// GetClient returns the underlying Redis client for advanced operations
func (r *Repository) GetClient() *redis.Client {
	return r.client
}

// Helper functions

func subKey(id string) string {
	return fmt.Sprintf("%s:%s", subPrefix, id)
}

func deliveryKey(id string) string {
	return fmt.Sprintf("%s:%s", deliveryPrefix, id)
}

func recentDeliveriesKey(subscriptionID string) string {
	return fmt.Sprintf("%s:%s:deliveries", subPrefix, subscriptionID)
}

func deliveryFromHash(data map[string]string) (webhook.Delivery, error) {
	headers := make(map[string]string)
	if headersStr, ok := data["extra_headers"]; ok && headersStr != "" {
		if err := json.Unmarshal([]byte(headersStr), &headers); err != nil {
			return webhook.Delivery{}, fmt.Errorf("unmarshaling headers: %w", err)
		}
	}

	var nextRetryAt time.Time
	if ts := parseInt64(data["next_retry_at"]); ts > 0 {
		nextRetryAt = time.Unix(ts, 0)
	}

	return webhook.Delivery{
		ID:             data["id"],
		SubscriptionID: data["subscription_id"],
		Event:          data["event"],
		Payload:        []byte(data["payload"]),
		TargetURL:      data["target_url"],
		Secret:         data["secret"],
		ExtraHeaders:   headers,
		Status:         webhook.NewStatus(data["status"]),
		ResponseStatus: int(parseInt64(data["response_status"])),
		ResponseBody:   data["response_body"],
		Error:          data["error"],
		RetryCount:     int(parseInt64(data["retry_count"])),
		NextRetryAt:    nextRetryAt,
		CreatedAt:      time.Unix(parseInt64(data["created_at"]), 0),
		UpdatedAt:      time.Unix(parseInt64(data["updated_at"]), 0),
	}, nil
}

func parseInt64(s string) int64 {
	var result int64
	fmt.Sscanf(s, "%d", &result)
	return result
}
