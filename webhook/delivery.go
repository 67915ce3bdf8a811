package webhook

import "time"

/* Delivery represents one logical delivery of an event payload to one
 * subscription, across all of its attempts. The target URL, signing secret
 * and extra headers are frozen at creation time so retries never consult
 * the registry: a subscription edited or deactivated after dispatch still
 * receives its in-flight retries.
 */
type Delivery struct {
	ID             string
	SubscriptionID string
	Event          string
	Payload        []byte
	TargetURL      string
	Secret         string
	ExtraHeaders   map[string]string
	Status         Status
	ResponseStatus int
	ResponseBody   string
	Error          string
	RetryCount     int
	NextRetryAt    time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Stats is a read-only projection over current delivery states.
// Derived on demand, never stored, to avoid drifting aggregates.
type Stats struct {
	Total        int64 `json:"total"`
	Success      int64 `json:"success"`
	Failed       int64 `json:"failed"`
	PendingRetry int64 `json:"pendingRetry"`
}
