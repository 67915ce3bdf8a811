package metrics

import (
	"context"
	"time"

	"github.com/drytrack/drytrack-api/webhook"
)

// Metrics represents the current state of the delivery pipeline.
type Metrics struct {
	// Deliveries holds the counts of delivery records by outcome
	Deliveries webhook.Stats `json:"deliveries"`

	// Timestamp when metrics were collected
	Timestamp time.Time `json:"timestamp"`
}

// Collector defines the interface for collecting metrics from the
// resilience layer.
type Collector interface {
	// Collect gathers current metrics from the system
	Collect(ctx context.Context) (Metrics, error)
}
