package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/drytrack/drytrack-api/webhook"
)

// DeliveryCollector derives metrics from the delivery ledger's stats
// projection. It holds no state of its own; every Collect reflects the
// records as they are now.
type DeliveryCollector struct {
	deliveries webhook.DeliveryReader
}

// NewDeliveryCollector creates a collector over the delivery ledger
func NewDeliveryCollector(deliveries webhook.DeliveryReader) *DeliveryCollector {
	return &DeliveryCollector{
		deliveries: deliveries,
	}
}

// Collect gathers current delivery counts
func (c *DeliveryCollector) Collect(ctx context.Context) (Metrics, error) {
	stats, err := c.deliveries.Stats(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("collecting delivery stats: %w", err)
	}

	return Metrics{
		Deliveries: stats,
		Timestamp:  time.Now(),
	}, nil
}
