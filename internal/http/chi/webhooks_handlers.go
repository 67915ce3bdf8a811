package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/drytrack/drytrack-api/webhook"
)

/* HTTP layer DTOs for the resilience API
 * Separate from domain entities to avoid leaking internal structure;
 * the signing secret in particular never appears in a response
 */

// webhookRequest represents the subscription registration payload
type webhookRequest struct {
	Name    string            `json:"name"`
	URL     string            `json:"url"`
	Events  []string          `json:"events"`
	Headers map[string]string `json:"headers,omitempty"`
	Secret  string            `json:"secret"`
}

// webhookResponse represents a subscription in the API
type webhookResponse struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	URL       string             `json:"url"`
	Events    []string           `json:"events"`
	Headers   map[string]string  `json:"headers,omitempty"`
	Active    bool               `json:"active"`
	CreatedAt time.Time          `json:"created_at"`
	Recent    []deliveryResponse `json:"recent_deliveries,omitempty"`
}

// deliveryResponse represents a delivery record in the API
type deliveryResponse struct {
	ID             string `json:"id"`
	SubscriptionID string `json:"subscription_id"`
	Event          string `json:"event"`
	Status         string `json:"status"`
	ResponseStatus int    `json:"response_status,omitempty"`
	Error          string `json:"error,omitempty"`
	RetryCount     int    `json:"retry_count"`
	NextRetryAt    string `json:"next_retry_at,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// notifyRequest triggers a dispatch
type notifyRequest struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// notifyResponse acknowledges that dispatch was attempted. It never
// guarantees subscriber-side success; that is what the deliveries and
// stats endpoints are for
type notifyResponse struct {
	Success     bool              `json:"success"`
	DeliveryIDs []string          `json:"deliveryIds"`
	Outcomes    []webhook.Outcome `json:"outcomes"`
}

func toWebhookResponse(sub webhook.Subscription) webhookResponse {
	return webhookResponse{
		ID:        sub.ID,
		Name:      sub.Name,
		URL:       sub.TargetURL,
		Events:    sub.Events,
		Headers:   sub.ExtraHeaders,
		Active:    sub.Active,
		CreatedAt: sub.CreatedAt,
	}
}

func toDeliveryResponse(d webhook.Delivery) deliveryResponse {
	resp := deliveryResponse{
		ID:             d.ID,
		SubscriptionID: d.SubscriptionID,
		Event:          d.Event,
		Status:         d.Status.String(),
		ResponseStatus: d.ResponseStatus,
		Error:          d.Error,
		RetryCount:     d.RetryCount,
		CreatedAt:      d.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      d.UpdatedAt.Format(time.RFC3339),
	}
	if !d.NextRetryAt.IsZero() {
		resp.NextRetryAt = d.NextRetryAt.Format(time.RFC3339)
	}
	return resp
}

// postWebhook handles POST /webhooks
func postWebhook(registry webhook.RegistryUseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req webhookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}

		sub, err := registry.Register(r.Context(), req.Name, req.URL, req.Events, req.Secret, req.Headers)
		if err != nil {
			if errors.Is(err, webhook.ErrInvalid) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]webhookResponse{"webhook": toWebhookResponse(sub)})
	})
}

// listWebhooks handles GET /webhooks, attaching each subscription's
// last deliveries
func listWebhooks(registry webhook.RegistryUseCase, deliveries webhook.DeliveryReader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subs, err := registry.List(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		responses := make([]webhookResponse, 0, len(subs))
		for _, sub := range subs {
			resp := toWebhookResponse(sub)
			recent, err := deliveries.RecentDeliveries(r.Context(), sub.ID, 5)
			if err == nil {
				for _, d := range recent {
					resp.Recent = append(resp.Recent, toDeliveryResponse(d))
				}
			}
			responses = append(responses, resp)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string][]webhookResponse{"webhooks": responses})
	})
}

// patchWebhook handles PATCH /webhooks/{id}: deactivation or a partial
// update of target URL, events, headers or secret
func patchWebhook(registry webhook.RegistryUseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req struct {
			Name    *string            `json:"name"`
			URL     *string            `json:"url"`
			Events  []string           `json:"events"`
			Headers *map[string]string `json:"headers"`
			Secret  *string            `json:"secret"`
			Active  *bool              `json:"active"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}

		sub, err := registry.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, webhook.ErrNotFound) {
				http.Error(w, "webhook not found", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		if req.Name != nil {
			sub.Name = *req.Name
		}
		if req.URL != nil {
			sub.TargetURL = *req.URL
		}
		if req.Events != nil {
			sub.Events = req.Events
		}
		if req.Headers != nil {
			sub.ExtraHeaders = *req.Headers
		}
		if req.Secret != nil {
			sub.Secret = *req.Secret
		}
		if req.Active != nil {
			sub.Active = *req.Active
		}

		updated, err := registry.Update(r.Context(), sub)
		if err != nil {
			if errors.Is(err, webhook.ErrInvalid) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]webhookResponse{"webhook": toWebhookResponse(updated)})
	})
}

// deleteWebhook handles DELETE /webhooks/{id}
func deleteWebhook(registry webhook.RegistryUseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if err := registry.Delete(r.Context(), id); err != nil {
			if errors.Is(err, webhook.ErrNotFound) {
				http.Error(w, "webhook not found", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// notify handles POST /webhooks/notify
func notify(notifier webhook.Notifier) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req notifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if req.Event == "" || len(req.Payload) == 0 {
			http.Error(w, "event and payload are required", http.StatusBadRequest)
			return
		}

		outcomes, err := notifier.Dispatch(r.Context(), req.Event, req.Payload)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		ids := make([]string, 0, len(outcomes))
		for _, outcome := range outcomes {
			ids = append(ids, outcome.DeliveryID)
		}

		// 200 even with zero matching subscribers: dispatch was attempted
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(notifyResponse{
			Success:     true,
			DeliveryIDs: ids,
			Outcomes:    outcomes,
		})
	})
}

// getDelivery handles GET /webhooks/deliveries/{id}
func getDelivery(deliveries webhook.DeliveryReader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		d, err := deliveries.GetDelivery(r.Context(), id)
		if err != nil {
			if errors.Is(err, webhook.ErrNotFound) {
				http.Error(w, "delivery not found", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(toDeliveryResponse(d))
	})
}

// getStats handles GET /webhooks/stats
func getStats(deliveries webhook.DeliveryReader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := deliveries.Stats(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	})
}
