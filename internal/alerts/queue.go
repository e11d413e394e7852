// Package alerts hands density alerts from the scanner to a delivery
// channel without ever blocking the scan.
package alerts

import (
	"context"

	"github.com/rewired-gh/densityscanner/internal/exchange"
	"github.com/rewired-gh/densityscanner/internal/logger"
	"github.com/rewired-gh/densityscanner/internal/metrics"
	"github.com/rewired-gh/densityscanner/internal/models"
)

const DefaultQueueSize = 1000

// Deliverer sends one alert to its destination.
type Deliverer interface {
	Deliver(ctx context.Context, alert models.DensityAlert) error
}

// Queue is a bounded alert buffer. Submit never blocks; when the buffer is
// full the alert is dropped.
type Queue struct {
	ch chan models.DensityAlert
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{ch: make(chan models.DensityAlert, size)}
}

func (q *Queue) Submit(alert models.DensityAlert) bool {
	select {
	case q.ch <- alert:
		return true
	default:
		metrics.AlertsDropped.Inc()
		logger.Warn("Alert queue full (%d), dropping %s %s %s alert [%s]",
			cap(q.ch), alert.Exchange, alert.Symbol, alert.Side, alert.ID)
		return false
	}
}

// Len returns the number of alerts waiting for delivery.
func (q *Queue) Len() int { return len(q.ch) }

// Run delivers queued alerts one at a time until ctx is done. Delivery
// failures are logged and the alert is discarded.
func (q *Queue) Run(ctx context.Context, d Deliverer) {
	for {
		select {
		case <-ctx.Done():
			if n := len(q.ch); n > 0 {
				logger.Warn("Alert delivery stopped with %d alerts pending", n)
			}
			return
		case alert := <-q.ch:
			if err := d.Deliver(ctx, alert); err != nil {
				logger.Error("Failed to deliver alert %s: %v", alert.ID, err)
			}
		}
	}
}

// LogDeliverer writes alerts to the log. It is used when no messaging
// channel is configured.
type LogDeliverer struct{}

func (LogDeliverer) Deliver(_ context.Context, a models.DensityAlert) error {
	venue := exchange.VenueInfo(a.Exchange)
	logger.Info("%s DENSITY %s %s %s %s %s at %g (%.2f%% from mid, lifetime %s)",
		models.SizeEmoji(a.Volume), venue.Label, venue.MarketType, models.BaseAsset(a.Symbol),
		a.Side, models.FormatSize(a.Volume), a.Price, a.DistancePct, models.FormatLifetime(a.LifetimeSeconds))
	return nil
}
