package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"servicelink/internal/domain/booking"
	"servicelink/internal/general/contracts"
)

// applyTransition validates and applies a booking status transition, persists
// it, and broadcasts the committed status on the booking's channel. The
// caller holds the booking's lock, so the mutation and the broadcast form one
// critical section and status updates reach each subscriber in commit order.
func (c *Coordinator) applyTransition(ctx context.Context, actor Actor, bookingID string, target booking.Status) error {
	view, err := c.store.GetTracking(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("load booking %s: %w", bookingID, err)
	}

	if err := c.guard.Authorize(ctx, view, actor); err != nil {
		return err
	}

	// Reject transitions the status graph does not define, including any
	// attempt to move out of a terminal state.
	if !view.Status.CanTransitionTo(target) {
		return fmt.Errorf("%s -> %s: %w", view.Status, target, ErrInvalidTransition)
	}

	now := time.Now().UTC()
	if err := c.store.UpdateStatus(ctx, bookingID, target, now); err != nil {
		// No broadcast fires if persistence fails; the caller should retry.
		return fmt.Errorf("persist status %s: %w", target, err)
	}

	update := contracts.StatusUpdate{
		BookingID: bookingID,
		Status:    target.String(),
		Timestamp: now,
		UpdatedBy: actor.Role.String(),
	}
	c.registry.Broadcast(bookingID, contracts.EventStatusUpdate, update)

	c.publishLifecycle(ctx, bookingID, update)

	c.logger.Info(c.logCtx(ctx, bookingID), "status_updated", "Booking status updated", map[string]any{
		"status":     target.String(),
		"updated_by": actor.Role.String(),
	})
	return nil
}

// publishLifecycle pushes the committed transition to the booking topic
// exchange for downstream consumers. Best effort: a publish failure is
// logged, never surfaced to the session.
func (c *Coordinator) publishLifecycle(ctx context.Context, bookingID string, update contracts.StatusUpdate) {
	if c.pub == nil {
		return
	}
	body, err := json.Marshal(contracts.BookingLifecycleEvent{
		Type:      "booking_status",
		BookingID: bookingID,
		Status:    update.Status,
		UpdatedBy: update.UpdatedBy,
		CreatedAt: update.Timestamp,
	})
	if err != nil {
		return
	}
	routingKey := contracts.RouteBookingStatusPrefix + bookingID
	if err := c.pub.Publish(contracts.ExchangeBookingTopic, routingKey, body); err != nil {
		c.logger.Error(c.logCtx(ctx, bookingID), "lifecycle_publish_failed", "Failed to publish booking status event", err, map[string]any{
			"routing_key": routingKey,
		})
	}
}
