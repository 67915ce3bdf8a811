package webhook_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drytrack/drytrack-api/webhook"
)

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		repo := newFakeRepo()
		registry := webhook.NewRegistry(repo)

		sub, err := registry.Register(ctx, "moisture alerts", "https://example.com/hook",
			[]string{"client.created", "reading.saved"}, "s3cr3t-key", map[string]string{"X-Tenant": "acme"})

		require.NoError(t, err)
		assert.NotEmpty(t, sub.ID)
		assert.True(t, sub.Active)
		assert.False(t, sub.CreatedAt.IsZero())

		stored, err := repo.GetSubscription(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, sub, stored)
	})

	t.Run("missing secret", func(t *testing.T) {
		repo := newFakeRepo()
		registry := webhook.NewRegistry(repo)

		_, err := registry.Register(ctx, "hook", "https://example.com/hook", []string{"client.created"}, "", nil)

		require.Error(t, err)
		assert.ErrorIs(t, err, webhook.ErrInvalid)
	})

	t.Run("no events", func(t *testing.T) {
		repo := newFakeRepo()
		registry := webhook.NewRegistry(repo)

		_, err := registry.Register(ctx, "hook", "https://example.com/hook", nil, "s3cr3t-key", nil)

		require.Error(t, err)
		assert.ErrorIs(t, err, webhook.ErrInvalid)
	})

	t.Run("relative target URL", func(t *testing.T) {
		repo := newFakeRepo()
		registry := webhook.NewRegistry(repo)

		_, err := registry.Register(ctx, "hook", "/hooks/incoming", []string{"client.created"}, "s3cr3t-key", nil)

		require.Error(t, err)
		assert.ErrorIs(t, err, webhook.ErrInvalid)
	})

	t.Run("non-http scheme", func(t *testing.T) {
		repo := newFakeRepo()
		registry := webhook.NewRegistry(repo)

		_, err := registry.Register(ctx, "hook", "ftp://example.com/hook", []string{"client.created"}, "s3cr3t-key", nil)

		require.Error(t, err)
		assert.ErrorIs(t, err, webhook.ErrInvalid)
	})
}

func TestDeactivate(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	registry := webhook.NewRegistry(repo)

	sub, err := registry.Register(ctx, "hook", "https://example.com/hook", []string{"client.created"}, "s3cr3t-key", nil)
	require.NoError(t, err)

	deactivated, err := registry.Deactivate(ctx, sub.ID)
	require.NoError(t, err)
	assert.False(t, deactivated.Active)

	stored, err := repo.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects invalid update", func(t *testing.T) {
		repo := newFakeRepo()
		registry := webhook.NewRegistry(repo)

		sub, err := registry.Register(ctx, "hook", "https://example.com/hook", []string{"client.created"}, "s3cr3t-key", nil)
		require.NoError(t, err)

		sub.Events = nil
		_, err = registry.Update(ctx, sub)
		require.Error(t, err)
		assert.ErrorIs(t, err, webhook.ErrInvalid)
	})

	t.Run("unknown id", func(t *testing.T) {
		repo := newFakeRepo()
		registry := webhook.NewRegistry(repo)

		_, err := registry.Update(ctx, webhook.Subscription{
			ID:        "missing",
			Name:      "hook",
			TargetURL: "https://example.com/hook",
			Events:    []string{"client.created"},
			Secret:    "s3cr3t-key",
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, webhook.ErrNotFound)
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	registry := webhook.NewRegistry(repo)

	sub, err := registry.Register(ctx, "hook", "https://example.com/hook", []string{"client.created"}, "s3cr3t-key", nil)
	require.NoError(t, err)

	require.NoError(t, registry.Delete(ctx, sub.ID))

	_, err = registry.Get(ctx, sub.ID)
	assert.ErrorIs(t, err, webhook.ErrNotFound)
}
