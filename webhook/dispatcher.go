package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/drytrack/drytrack-api/webhook/signature"
)

// maxResponseBytes caps how much of a subscriber response is recorded
const maxResponseBytes = 64 << 10

// Outcome is the per-subscription result of one dispatch or retry attempt
type Outcome struct {
	DeliveryID     string `json:"delivery_id"`
	SubscriptionID string `json:"subscription_id"`
	Status         string `json:"status"`
	ResponseStatus int    `json:"response_status,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Notifier defines the dispatch operation exposed to event producers
type Notifier interface {
	Dispatch(ctx context.Context, event string, payload any) ([]Outcome, error)
}

// ErrFinal is returned when a redelivery is requested for a record
// already in a terminal state
var ErrFinal = errors.New("delivery is final")

// DispatcherConfig holds delivery tuning knobs
type DispatcherConfig struct {
	// Timeout bounds each outbound HTTP attempt
	Timeout time.Duration
	// MaxAttempts is the total attempt budget per delivery (first try included)
	MaxAttempts int
	// BackoffBase is the delay after the first failure; it doubles per attempt
	BackoffBase time.Duration
}

/* Dispatcher fans an event out to every matching active subscription.
 * Each delivery runs in its own goroutine with errors captured into the
 * outcome, so one slow or broken subscriber can neither stall nor fail
 * the others. Dispatch returns only after every attempt has completed
 * and been recorded
 */
type Dispatcher struct {
	Repo   Repository
	Client *http.Client
	Config DispatcherConfig
	Logger *slog.Logger
}

// NewDispatcher creates a dispatcher with dependency injection,
// filling unset config fields with defaults
func NewDispatcher(repo Repository, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		Repo:   repo,
		Client: &http.Client{},
		Config: cfg,
		Logger: logger,
	}
}

// Dispatch delivers event+payload to all matching active subscriptions.
// Per-subscription failures are captured into outcomes and delivery
// records, never returned as errors; only a registry lookup failure or a
// non-serializable payload is raised to the caller
func (d *Dispatcher) Dispatch(ctx context.Context, event string, payload any) ([]Outcome, error) {
	if event == "" {
		return nil, fmt.Errorf("event cannot be empty")
	}

	// Serialize exactly once: the same bytes are signed and sent
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}

	subs, err := d.Repo.ListSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing subscriptions: %w", err)
	}

	now := time.Now()
	var deliveries []Delivery
	for _, sub := range subs {
		if !sub.Active || !sub.HasEvent(event) {
			continue
		}
		deliveries = append(deliveries, Delivery{
			ID:             uuid.New().String(),
			SubscriptionID: sub.ID,
			Event:          event,
			Payload:        body,
			TargetURL:      sub.TargetURL,
			Secret:         sub.Secret,
			ExtraHeaders:   sub.ExtraHeaders,
			Status:         Pending,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	if len(deliveries) == 0 {
		return []Outcome{}, nil
	}

	results := make(chan Outcome, len(deliveries))
	var wg sync.WaitGroup
	for _, del := range deliveries {
		wg.Add(1)
		go func(del Delivery) {
			defer wg.Done()
			results <- d.deliver(ctx, del)
		}(del)
	}
	wg.Wait()
	close(results)

	outcomes := make([]Outcome, 0, len(deliveries))
	for outcome := range results {
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// Redeliver re-attempts a previously failed delivery. The frozen target,
// secret and payload on the record are reused; the registry is not consulted
func (d *Dispatcher) Redeliver(ctx context.Context, deliveryID string) (Outcome, error) {
	del, err := d.Repo.GetDelivery(ctx, deliveryID)
	if err != nil {
		return Outcome{}, fmt.Errorf("getting delivery: %w", err)
	}
	if del.Status.IsFinal() {
		return Outcome{}, fmt.Errorf("delivery %s is already %s: %w", del.ID, del.Status, ErrFinal)
	}
	return d.attempt(ctx, del), nil
}

// deliver persists the fresh record, then runs the first attempt.
// A record is written per subscription regardless of the attempt outcome
func (d *Dispatcher) deliver(ctx context.Context, del Delivery) (outcome Outcome) {
	// Isolate panics from custom transports or header maps so a single
	// subscriber cannot take down the whole fan-out. The stored record
	// gets the same terminal state the caller sees
	defer func() {
		if r := recover(); r != nil {
			d.Logger.Error("delivery panicked", "delivery_id", del.ID, "panic", r)
			del.Status = FailedExhausted
			del.Error = fmt.Sprintf("delivery panicked: %v", r)
			del.NextRetryAt = time.Time{}
			del.UpdatedAt = time.Now()
			if err := d.Repo.UpdateDelivery(ctx, del); err != nil {
				d.Logger.Error("updating delivery record", "delivery_id", del.ID, "error", err)
			}
			outcome = Outcome{
				DeliveryID:     del.ID,
				SubscriptionID: del.SubscriptionID,
				Status:         del.Status.String(),
				Error:          del.Error,
			}
		}
	}()

	if err := d.Repo.StoreDelivery(ctx, del); err != nil {
		d.Logger.Error("storing delivery record", "delivery_id", del.ID, "error", err)
		return Outcome{
			DeliveryID:     del.ID,
			SubscriptionID: del.SubscriptionID,
			Status:         del.Status.String(),
			Error:          fmt.Sprintf("storing delivery record: %v", err),
		}
	}
	return d.attempt(ctx, del)
}

// attempt performs one signed POST and records its result
func (d *Dispatcher) attempt(ctx context.Context, del Delivery) Outcome {
	del.RetryCount++

	status, respBody, err := d.post(ctx, del)
	if err != nil {
		return d.recordFailure(ctx, del, fmt.Sprintf("sending webhook: %v", err))
	}
	if status < 200 || status > 299 {
		del.ResponseStatus = status
		del.ResponseBody = respBody
		return d.recordFailure(ctx, del, fmt.Sprintf("unexpected response status: %d", status))
	}

	del.Status = Delivered
	del.ResponseStatus = status
	del.ResponseBody = respBody
	del.Error = ""
	del.NextRetryAt = time.Time{}
	del.UpdatedAt = time.Now()
	if err := d.Repo.UpdateDelivery(ctx, del); err != nil {
		d.Logger.Error("updating delivery record", "delivery_id", del.ID, "error", err)
	}

	return Outcome{
		DeliveryID:     del.ID,
		SubscriptionID: del.SubscriptionID,
		Status:         del.Status.String(),
		ResponseStatus: status,
	}
}

// post issues the signed HTTP request with a bounded timeout
func (d *Dispatcher) post(ctx context.Context, del Delivery) (int, string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.Config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, del.TargetURL, bytes.NewReader(del.Payload))
	if err != nil {
		return 0, "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.Header, signature.Sign(del.Secret, del.Payload))
	for key, value := range del.ExtraHeaders {
		req.Header.Set(key, value)
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("reading response body: %w", err)
	}
	return resp.StatusCode, string(body), nil
}

/* recordFailure applies the retry policy: exponential backoff from
 * BackoffBase until MaxAttempts is exhausted, then the terminal
 * failed_exhausted state. Timeouts and connection errors are treated
 * identically to HTTP failures
 */
func (d *Dispatcher) recordFailure(ctx context.Context, del Delivery, reason string) Outcome {
	del.Error = reason
	del.UpdatedAt = time.Now()

	if del.RetryCount >= d.Config.MaxAttempts {
		del.Status = FailedExhausted
		del.NextRetryAt = time.Time{}
	} else {
		del.Status = FailedRetrying
		del.NextRetryAt = time.Now().Add(d.Backoff(del.RetryCount))
	}

	if err := d.Repo.UpdateDelivery(ctx, del); err != nil {
		d.Logger.Error("updating delivery record", "delivery_id", del.ID, "error", err)
	}
	if del.Status == FailedRetrying {
		if err := d.Repo.ScheduleRetry(ctx, del.ID, del.NextRetryAt); err != nil {
			d.Logger.Error("scheduling retry", "delivery_id", del.ID, "error", err)
			// A failed_retrying record with no queue entry would never
			// be swept again. Close it out as terminal instead
			del.Status = FailedExhausted
			del.NextRetryAt = time.Time{}
			del.Error = fmt.Sprintf("%s (scheduling retry: %v)", reason, err)
			del.UpdatedAt = time.Now()
			if err := d.Repo.UpdateDelivery(ctx, del); err != nil {
				d.Logger.Error("updating delivery record", "delivery_id", del.ID, "error", err)
			}
		}
	}

	return Outcome{
		DeliveryID:     del.ID,
		SubscriptionID: del.SubscriptionID,
		Status:         del.Status.String(),
		ResponseStatus: del.ResponseStatus,
		Error:          del.Error,
	}
}

// Backoff returns the delay before the attempt following attempt n
func (d *Dispatcher) Backoff(n int) time.Duration {
	backoff := d.Config.BackoffBase
	for i := 1; i < n; i++ {
		backoff *= 2
	}
	return backoff
}
