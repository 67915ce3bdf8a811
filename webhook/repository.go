package webhook

import (
	"context"
	"errors"
	"time"
)

/* Small, focused interfaces following "The Go Way"
 * Interfaces abstract behavior, not things
 * Written for users of the API, not just for testing
 */

// ErrNotFound is returned when a subscription or delivery does not exist
var ErrNotFound = errors.New("not found")

// SubscriptionReader provides read operations for subscriptions
type SubscriptionReader interface {
	/* Context is always the first parameter in functions that do I/O
	 * This allows for cancellation, timeouts, and shared values
	 */
	GetSubscription(ctx context.Context, id string) (Subscription, error)
	ListSubscriptions(ctx context.Context) ([]Subscription, error)
}

// SubscriptionWriter provides write operations for subscriptions
type SubscriptionWriter interface {
	StoreSubscription(ctx context.Context, sub Subscription) error
	UpdateSubscription(ctx context.Context, sub Subscription) error
	DeleteSubscription(ctx context.Context, id string) error
}

// DeliveryReader provides read operations for delivery records
type DeliveryReader interface {
	GetDelivery(ctx context.Context, id string) (Delivery, error)
	/* RecentDeliveries returns the newest delivery records for a
	 * subscription, most recent first, capped at limit
	 */
	RecentDeliveries(ctx context.Context, subscriptionID string, limit int) ([]Delivery, error)
	Stats(ctx context.Context) (Stats, error)
}

// DeliveryWriter provides write operations for delivery records
type DeliveryWriter interface {
	StoreDelivery(ctx context.Context, d Delivery) error
	UpdateDelivery(ctx context.Context, d Delivery) error
}

// RetryQueue schedules and claims deliveries due for another attempt
type RetryQueue interface {
	ScheduleRetry(ctx context.Context, deliveryID string, at time.Time) error
	/* ClaimDueRetries removes and returns up to limit delivery IDs whose
	 * retry time has passed. Removal on claim is what serializes retries:
	 * a record is never held by two sweeps at once
	 */
	ClaimDueRetries(ctx context.Context, now time.Time, limit int) ([]string, error)
}

/* Interface composition - combining small interfaces into larger ones
 * This is preferred over large monolithic interfaces
 */
type Repository interface {
	SubscriptionReader
	SubscriptionWriter
	DeliveryReader
	DeliveryWriter
	RetryQueue
	Close(ctx context.Context) error
}
