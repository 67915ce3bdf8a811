package webhook_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drytrack/drytrack-api/webhook"
	"github.com/drytrack/drytrack-api/webhook/signature"
)

func testDispatcher(repo webhook.Repository) *webhook.Dispatcher {
	return webhook.NewDispatcher(repo, webhook.DispatcherConfig{
		Timeout:     2 * time.Second,
		MaxAttempts: 3,
		BackoffBase: 5 * time.Minute,
	}, nil)
}

func activeSub(id, target, secret string, events ...string) webhook.Subscription {
	return webhook.Subscription{
		ID:        id,
		Name:      id,
		TargetURL: target,
		Events:    events,
		Secret:    secret,
		Active:    true,
		CreatedAt: time.Now(),
	}
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers signed payload", func(t *testing.T) {
		var gotBody []byte
		var gotSig string
		var gotHeader string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotBody, _ = io.ReadAll(r.Body)
			gotSig = r.Header.Get(signature.Header)
			gotHeader = r.Header.Get("X-Tenant")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"received":true}`))
		}))
		defer server.Close()

		repo := newFakeRepo()
		sub := activeSub("sub-1", server.URL, "s3cr3t-key", "client.created")
		sub.ExtraHeaders = map[string]string{"X-Tenant": "acme"}
		repo.StoreSubscription(ctx, sub)

		outcomes, err := testDispatcher(repo).Dispatch(ctx, "client.created", map[string]string{"id": "42"})
		require.NoError(t, err)
		require.Len(t, outcomes, 1)

		assert.Equal(t, webhook.Delivered.String(), outcomes[0].Status)
		assert.Equal(t, http.StatusOK, outcomes[0].ResponseStatus)
		assert.Equal(t, "acme", gotHeader)

		// The signature must verify over the exact transmitted bytes
		valid, err := signature.Verify("s3cr3t-key", gotBody, gotSig)
		require.NoError(t, err)
		assert.True(t, valid)

		record := repo.delivery(outcomes[0].DeliveryID)
		assert.Equal(t, webhook.Delivered, record.Status)
		assert.Equal(t, 1, record.RetryCount)
		assert.Equal(t, `{"received":true}`, record.ResponseBody)
		assert.Equal(t, gotBody, record.Payload)
	})

	t.Run("no matching subscriptions returns empty outcomes", func(t *testing.T) {
		repo := newFakeRepo()
		repo.StoreSubscription(ctx, activeSub("sub-1", "https://example.com/hook", "s3cr3t-key", "job.closed"))

		outcomes, err := testDispatcher(repo).Dispatch(ctx, "client.created", map[string]string{"id": "42"})
		require.NoError(t, err)
		assert.Empty(t, outcomes)
	})

	t.Run("inactive subscription never receives deliveries", func(t *testing.T) {
		delivered := false
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			delivered = true
		}))
		defer server.Close()

		repo := newFakeRepo()
		sub := activeSub("sub-1", server.URL, "s3cr3t-key", "client.created")
		sub.Active = false
		repo.StoreSubscription(ctx, sub)

		outcomes, err := testDispatcher(repo).Dispatch(ctx, "client.created", map[string]string{"id": "42"})
		require.NoError(t, err)
		assert.Empty(t, outcomes)
		assert.False(t, delivered)
	})

	t.Run("remote 500 schedules a retry", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer server.Close()

		repo := newFakeRepo()
		repo.StoreSubscription(ctx, activeSub("sub-1", server.URL, "s3cr3t", "client.created"))

		dispatcher := testDispatcher(repo)
		before := time.Now()
		outcomes, err := dispatcher.Dispatch(ctx, "client.created", map[string]string{"id": "42"})
		require.NoError(t, err)
		require.Len(t, outcomes, 1)
		assert.Equal(t, webhook.FailedRetrying.String(), outcomes[0].Status)

		record := repo.delivery(outcomes[0].DeliveryID)
		assert.Equal(t, webhook.FailedRetrying, record.Status)
		assert.Equal(t, 1, record.RetryCount)
		assert.Equal(t, http.StatusInternalServerError, record.ResponseStatus)
		assert.NotEmpty(t, record.Error)

		// nextRetryAt is roughly now + backoff base
		assert.WithinDuration(t, before.Add(5*time.Minute), record.NextRetryAt, 5*time.Second)

		at, scheduled := repo.retryAt(record.ID)
		require.True(t, scheduled)
		assert.Equal(t, record.NextRetryAt, at)
	})

	t.Run("unreachable subscriber does not block the others", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		repo := newFakeRepo()
		repo.StoreSubscription(ctx, activeSub("sub-good", server.URL, "s3cr3t-key", "client.created"))
		repo.StoreSubscription(ctx, activeSub("sub-bad", "http://127.0.0.1:1/hook", "s3cr3t-key", "client.created"))

		outcomes, err := testDispatcher(repo).Dispatch(ctx, "client.created", map[string]string{"id": "42"})
		require.NoError(t, err)
		require.Len(t, outcomes, 2)

		bySub := make(map[string]webhook.Outcome, 2)
		for _, o := range outcomes {
			bySub[o.SubscriptionID] = o
		}
		assert.Equal(t, webhook.Delivered.String(), bySub["sub-good"].Status)
		assert.Equal(t, webhook.FailedRetrying.String(), bySub["sub-bad"].Status)

		// Exactly one record per matching subscription, reachable or not
		stats, err := repo.Stats(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 2, stats.Total)
	})

	t.Run("attempt budget of one goes straight to exhausted", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		}))
		defer server.Close()

		repo := newFakeRepo()
		repo.StoreSubscription(ctx, activeSub("sub-1", server.URL, "s3cr3t", "client.created"))

		dispatcher := webhook.NewDispatcher(repo, webhook.DispatcherConfig{
			Timeout:     2 * time.Second,
			MaxAttempts: 1,
			BackoffBase: time.Minute,
		}, nil)

		outcomes, err := dispatcher.Dispatch(ctx, "client.created", map[string]string{"id": "42"})
		require.NoError(t, err)
		require.Len(t, outcomes, 1)
		assert.Equal(t, webhook.FailedExhausted.String(), outcomes[0].Status)

		_, scheduled := repo.retryAt(outcomes[0].DeliveryID)
		assert.False(t, scheduled)
	})

	t.Run("retry scheduling failure closes the record out", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer server.Close()

		repo := newFakeRepo()
		repo.scheduleErr = errors.New("redis gone")
		repo.StoreSubscription(ctx, activeSub("sub-1", server.URL, "s3cr3t", "client.created"))

		outcomes, err := testDispatcher(repo).Dispatch(ctx, "client.created", map[string]string{"id": "42"})
		require.NoError(t, err)
		require.Len(t, outcomes, 1)

		// No queue entry means no future sweep would ever find the
		// record, so it must not be left in failed_retrying
		assert.Equal(t, webhook.FailedExhausted.String(), outcomes[0].Status)
		record := repo.delivery(outcomes[0].DeliveryID)
		assert.Equal(t, webhook.FailedExhausted, record.Status)
		assert.Contains(t, record.Error, "scheduling retry")
		assert.True(t, record.NextRetryAt.IsZero())
	})

	t.Run("panicking transport records a terminal failure", func(t *testing.T) {
		repo := newFakeRepo()
		repo.StoreSubscription(ctx, activeSub("sub-1", "http://example.com/hook", "s3cr3t", "client.created"))

		dispatcher := testDispatcher(repo)
		dispatcher.Client = &http.Client{Transport: panicTransport{}}

		outcomes, err := dispatcher.Dispatch(ctx, "client.created", map[string]string{"id": "42"})
		require.NoError(t, err)
		require.Len(t, outcomes, 1)
		assert.Equal(t, webhook.FailedExhausted.String(), outcomes[0].Status)

		// The ledger carries the same terminal state the caller saw
		record := repo.delivery(outcomes[0].DeliveryID)
		assert.Equal(t, webhook.FailedExhausted, record.Status)
		assert.Contains(t, record.Error, "panicked")
	})

	t.Run("registry lookup failure is raised", func(t *testing.T) {
		repo := newFakeRepo()
		repo.listErr = errors.New("redis gone")

		_, err := testDispatcher(repo).Dispatch(ctx, "client.created", map[string]string{"id": "42"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "listing subscriptions")
	})

	t.Run("empty event is rejected", func(t *testing.T) {
		_, err := testDispatcher(newFakeRepo()).Dispatch(ctx, "", nil)
		require.Error(t, err)
	})

	t.Run("non-serializable payload is rejected", func(t *testing.T) {
		_, err := testDispatcher(newFakeRepo()).Dispatch(ctx, "client.created", make(chan int))
		require.Error(t, err)
	})
}

type panicTransport struct{}

func (panicTransport) RoundTrip(*http.Request) (*http.Response, error) {
	panic("transport exploded")
}

func TestBackoff(t *testing.T) {
	dispatcher := webhook.NewDispatcher(newFakeRepo(), webhook.DispatcherConfig{
		BackoffBase: 5 * time.Minute,
	}, nil)

	assert.Equal(t, 5*time.Minute, dispatcher.Backoff(1))
	assert.Equal(t, 10*time.Minute, dispatcher.Backoff(2))
	assert.Equal(t, 20*time.Minute, dispatcher.Backoff(3))
}
