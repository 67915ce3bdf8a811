package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

/* Registry is the business logic layer for subscription management
 * Uses pointer semantics as it's an API, not data
 * The dispatcher reads subscriptions but never mutates them; all writes
 * go through here
 */

// RegistryUseCase defines the business operations for subscription management
type RegistryUseCase interface {
	Register(ctx context.Context, name, targetURL string, events []string, secret string, headers map[string]string) (Subscription, error)
	Get(ctx context.Context, id string) (Subscription, error)
	List(ctx context.Context) ([]Subscription, error)
	Update(ctx context.Context, sub Subscription) (Subscription, error)
	Deactivate(ctx context.Context, id string) (Subscription, error)
	Delete(ctx context.Context, id string) error
}

type Registry struct {
	Repo Repository
}

// NewRegistry creates a new subscription registry with dependency injection
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		Repo: repo,
	}
}

// Register validates and stores a new subscription
func (r *Registry) Register(ctx context.Context, name, targetURL string, events []string, secret string, headers map[string]string) (Subscription, error) {
	sub := Subscription{
		ID:           uuid.New().String(),
		Name:         name,
		TargetURL:    targetURL,
		Events:       events,
		Secret:       secret,
		ExtraHeaders: headers,
		Active:       true,
		CreatedAt:    time.Now(),
	}

	if err := sub.Validate(); err != nil {
		return Subscription{}, fmt.Errorf("validating subscription: %w", err)
	}

	if err := r.Repo.StoreSubscription(ctx, sub); err != nil {
		return Subscription{}, fmt.Errorf("storing subscription: %w", err)
	}

	return sub, nil
}

// Get retrieves a subscription by ID
func (r *Registry) Get(ctx context.Context, id string) (Subscription, error) {
	sub, err := r.Repo.GetSubscription(ctx, id)
	if err != nil {
		return Subscription{}, fmt.Errorf("getting subscription: %w", err)
	}
	return sub, nil
}

// List returns all subscriptions
func (r *Registry) List(ctx context.Context) ([]Subscription, error) {
	subs, err := r.Repo.ListSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing subscriptions: %w", err)
	}
	return subs, nil
}

// Update replaces a subscription after re-validating its invariants
func (r *Registry) Update(ctx context.Context, sub Subscription) (Subscription, error) {
	if err := sub.Validate(); err != nil {
		return Subscription{}, fmt.Errorf("validating subscription: %w", err)
	}
	if _, err := r.Repo.GetSubscription(ctx, sub.ID); err != nil {
		return Subscription{}, fmt.Errorf("getting subscription: %w", err)
	}
	if err := r.Repo.UpdateSubscription(ctx, sub); err != nil {
		return Subscription{}, fmt.Errorf("updating subscription: %w", err)
	}
	return sub, nil
}

// Deactivate marks a subscription inactive without deleting its history.
// In-flight retries are not affected; only future dispatches stop.
func (r *Registry) Deactivate(ctx context.Context, id string) (Subscription, error) {
	sub, err := r.Repo.GetSubscription(ctx, id)
	if err != nil {
		return Subscription{}, fmt.Errorf("getting subscription: %w", err)
	}
	sub.Active = false
	if err := r.Repo.UpdateSubscription(ctx, sub); err != nil {
		return Subscription{}, fmt.Errorf("deactivating subscription: %w", err)
	}
	return sub, nil
}

// Delete removes a subscription
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.Repo.DeleteSubscription(ctx, id); err != nil {
		return fmt.Errorf("deleting subscription: %w", err)
	}
	return nil
}
