package webhook

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

/* Subscription represents a registered interest in one or more named events
 * Uses value semantics as it represents data, not behavior
 */
type Subscription struct {
	ID           string
	Name         string
	TargetURL    string
	Events       []string
	Secret       string
	ExtraHeaders map[string]string
	Active       bool
	CreatedAt    time.Time
}

// MinSecretBytes is the minimum accepted signing secret size
const MinSecretBytes = 8

// ErrInvalid marks subscription validation failures (surfaced as 400s)
var ErrInvalid = errors.New("invalid subscription")

// Validate checks the subscription invariants
func (s Subscription) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalid)
	}
	if len(s.Events) == 0 {
		return fmt.Errorf("%w: at least one event is required", ErrInvalid)
	}
	for _, event := range s.Events {
		if event == "" {
			return fmt.Errorf("%w: event name cannot be empty", ErrInvalid)
		}
	}
	u, err := url.Parse(s.TargetURL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: target_url must be an absolute http(s) URL", ErrInvalid)
	}
	if len(s.Secret) < MinSecretBytes {
		return fmt.Errorf("%w: secret must be at least %d bytes", ErrInvalid, MinSecretBytes)
	}
	return nil
}

// HasEvent reports whether the subscription is registered for the given event
func (s Subscription) HasEvent(event string) bool {
	for _, e := range s.Events {
		if e == event {
			return true
		}
	}
	return false
}
