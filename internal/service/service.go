// Package service contains the application services of the shop core: catalog,
// inventory, promo, wallet, referral, and the purchase and replenishment
// orchestrators. Domain failures are returned as sentinel errors or closed
// outcome variants; only infrastructure errors propagate.
package service

import (
	"context"
	"time"

	"github.com/avkuzmin/teleshop/internal/model"
)

// nowUTC is the single clock read used by time-gated checks.
func nowUTC() time.Time { return time.Now().UTC() }

// EventSink receives domain events after the state change that produced them
// has committed. Implementations must not block the caller for long; sends go
// through the notification subsystem's own rate limiting.
type EventSink interface {
	// ReplenishmentCompleted reports a credited top-up.
	ReplenishmentCompleted(ctx context.Context, ev model.ReplenishmentCompleted)
	// ReplenishmentFailed reports a top-up that could not be credited.
	ReplenishmentFailed(ctx context.Context, ev model.ReplenishmentFailed)
	// PromoActivated reports a promo consumed by a committed purchase.
	PromoActivated(ctx context.Context, ev model.PromoActivated)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) ReplenishmentCompleted(context.Context, model.ReplenishmentCompleted) {}
func (NopSink) ReplenishmentFailed(context.Context, model.ReplenishmentFailed)       {}
func (NopSink) PromoActivated(context.Context, model.PromoActivated)                 {}

// Probe checks whether an account item is still alive on its service.
// A probe error (e.g. a network timeout) is not a verdict: the item's validity
// is left unchanged.
type Probe func(ctx context.Context, item *model.AccountStorage) (bool, error)
