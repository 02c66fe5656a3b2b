package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"servicelink/internal/general/contracts"
	"servicelink/internal/general/logger"
	"servicelink/internal/tracking"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RunPaymentConsumer consumes payment status events from the payment
// subsystem and applies them through the coordinator. It restarts the consume
// loop on channel failures until ctx is cancelled.
func RunPaymentConsumer(ctx context.Context, client *Client, coord *tracking.Coordinator, log *logger.Logger, prefetch int) {
	handler := func(hCtx context.Context, d amqp.Delivery) error {
		var ev contracts.PaymentEvent
		if err := json.Unmarshal(d.Body, &ev); err != nil {
			log.Error(hCtx, "payment_event_bad_json", "Failed to decode payment event", err, map[string]any{
				"routing_key": d.RoutingKey,
				"size":        len(d.Body),
			})
			return err
		}

		if err := coord.HandlePaymentEvent(hCtx, ev); err != nil {
			// malformed or unknown bookings are acked and dropped; other
			// failures nack the delivery
			if errors.Is(err, tracking.ErrValidation) || errors.Is(err, tracking.ErrNotFound) {
				log.Error(hCtx, "payment_event_rejected", "Dropped unusable payment event", err, map[string]any{
					"booking_id": ev.BookingID,
				})
				return nil
			}
			return err
		}
		return nil
	}

	for {
		err := client.Consume(ctx, contracts.QueuePaymentUpdates, "tracking-payment-consumer", prefetch, handler)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Error(ctx, "payment_consumer_stopped", "Payment consumer stopped; restarting", err, nil)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}
