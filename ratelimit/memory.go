package ratelimit

import (
	"context"
	"sync"
	"time"
)

/* MemoryStore keeps windows in a mutex-guarded map. Suitable for a
 * single process; limits are per-instance when the API scales out
 */
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count   int64
	resetAt time.Time
}

// NewMemoryStore creates an in-process window store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]*window),
	}
}

// Incr atomically creates or bumps the window for key
func (s *MemoryStore) Incr(_ context.Context, key string, windowSize time.Duration) (int64, time.Time, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{
			count:   0,
			resetAt: now.Add(windowSize),
		}
		s.windows[key] = w
	}
	w.count++
	return w.count, w.resetAt, nil
}

// Purge drops every window whose reset time has passed
func (s *MemoryStore) Purge(_ context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, w := range s.windows {
		if now.After(w.resetAt) {
			delete(s.windows, key)
		}
	}
	return nil
}

// Len reports how many windows are currently held
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}
