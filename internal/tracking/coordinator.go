package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"servicelink/internal/domain/booking"
	"servicelink/internal/domain/geo"
	"servicelink/internal/general/contracts"
	"servicelink/internal/general/logger"

	"github.com/go-playground/validator/v10"
)

// Options tunes the coordinator's transient-state behavior.
type Options struct {
	AssumedSpeedKMH float64       // average speed for ETA estimates
	SampleTTL       time.Duration // location sample expiry window
}

// Coordinator orchestrates the booking lifecycle and real-time tracking:
// it receives inbound events from participant sessions, validates and
// authorizes them, mutates state, persists, and fans out updates to all
// sessions subscribed to the booking's channel.
//
// Mutations to a single booking's channel and persisted status are
// serialized by a per-booking lock; the broadcast happens inside the same
// critical section so updates within one channel are strictly ordered.
type Coordinator struct {
	logger   *logger.Logger
	store    Store
	registry *Registry
	guard    *Guard
	pub      EventPublisher // nil disables lifecycle publishing
	validate *validator.Validate
	opts     Options

	locks sync.Map // booking id -> *sync.Mutex
}

// NewCoordinator wires the coordinator from its collaborators.
func NewCoordinator(log *logger.Logger, store Store, registry *Registry, pub EventPublisher, opts Options) *Coordinator {
	if opts.AssumedSpeedKMH <= 0 {
		opts.AssumedSpeedKMH = geo.DefaultSpeedKMH
	}
	if opts.SampleTTL <= 0 {
		opts.SampleTTL = 30 * time.Minute
	}
	return &Coordinator{
		logger:   log,
		store:    store,
		registry: registry,
		guard:    NewGuard(store),
		pub:      pub,
		validate: validator.New(),
		opts:     opts,
	}
}

// Registry exposes the channel registry to transport adapters and health
// reporting.
func (c *Coordinator) Registry() *Registry { return c.registry }

// lockFor returns the single-writer lock for a booking id.
func (c *Coordinator) lockFor(bookingID string) *sync.Mutex {
	if v, ok := c.locks.Load(bookingID); ok {
		return v.(*sync.Mutex)
	}
	v, _ := c.locks.LoadOrStore(bookingID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Connect registers a freshly authenticated session.
func (c *Coordinator) Connect(s Session) {
	c.registry.Register(s)
}

// Disconnect removes the session from every channel. Idempotent; an in-flight
// mutation it raced with still broadcasts to the reduced subscriber set.
func (c *Coordinator) Disconnect(sessionID string) {
	c.registry.Leave(sessionID)
}

// JoinTracking subscribes the session to a booking's channel and immediately
// replies with the last location sample, if any. Joins are read-only and
// deliberately unauthorized; they proceed without the booking lock.
func (c *Coordinator) JoinTracking(ctx context.Context, s Session, p contracts.JoinTrackingPayload) error {
	if err := c.validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, err)
	}

	sample, err := c.registry.Join(p.BookingID, s)
	if err != nil {
		return err
	}
	if sample != nil {
		_ = s.Send(contracts.EventLocationUpdate, sample)
	}

	c.logger.Info(c.logCtx(ctx, p.BookingID), "tracking_joined", "Session joined tracking channel", map[string]any{
		"session_id": s.ID(),
		"user_role":  p.UserRole,
		"has_sample": sample != nil,
	})
	return nil
}

// ProviderLocation handles a live position report: confirms the sender is the
// booking's assigned provider, computes distance/ETA against the customer's
// stored coordinates, stores the sample, and broadcasts it.
func (c *Coordinator) ProviderLocation(ctx context.Context, s Session, p contracts.ProviderLocationPayload) error {
	if err := c.validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, err)
	}
	if err := geo.ValidateCoordinates(p.Lat, p.Lng); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, err)
	}

	actor := s.Actor()
	if !actor.Role.IsProvider() {
		return ErrForbidden
	}

	mu := c.lockFor(p.BookingID)
	mu.Lock()
	defer mu.Unlock()

	view, err := c.store.GetTracking(ctx, p.BookingID)
	if err != nil {
		return fmt.Errorf("load booking %s: %w", p.BookingID, err)
	}

	// The session's bound identity is authoritative: the claimed providerId
	// must match both the actor's own profile and the booking assignment.
	providerID, err := c.guard.ResolveProvider(ctx, actor)
	if err != nil {
		return err
	}
	if providerID != p.ProviderID || providerID != view.ProviderID {
		return ErrForbidden
	}

	sample := geo.NewSample(p.Lat, p.Lng, view.CustomerLat, view.CustomerLng, c.opts.AssumedSpeedKMH, time.Now())
	c.registry.SetSample(p.BookingID, sample)
	c.registry.Broadcast(p.BookingID, contracts.EventLocationUpdate, sample)

	c.logger.Debug(c.logCtx(ctx, p.BookingID), "location_updated", "Provider location broadcast", map[string]any{
		"provider_id": providerID,
		"eta_minutes": sample.ETAMinutes,
		"distance_km": sample.DistanceKM,
	})
	return nil
}

// BookingStatus delegates a status transition request to the state machine
// under the booking's lock.
func (c *Coordinator) BookingStatus(ctx context.Context, s Session, p contracts.BookingStatusPayload) error {
	if err := c.validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, err)
	}
	target, err := booking.ParseStatus(p.Status)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, err)
	}

	mu := c.lockFor(p.BookingID)
	mu.Lock()
	defer mu.Unlock()

	return c.applyTransition(ctx, s.Actor(), p.BookingID, target)
}

// ProviderAvailability persists a provider's availability flag and broadcasts
// it globally. The guard reduces to a self-only check: the actor must be the
// provider in question (or an admin).
func (c *Coordinator) ProviderAvailability(ctx context.Context, s Session, p contracts.ProviderAvailabilityPayload) error {
	if err := c.validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, err)
	}

	if err := c.guard.AuthorizeProviderSelf(ctx, s.Actor(), p.ProviderID); err != nil {
		return err
	}

	if err := c.store.UpdateAvailability(ctx, p.ProviderID, p.IsAvailable); err != nil {
		return fmt.Errorf("persist availability: %w", err)
	}

	now := time.Now().UTC()
	c.registry.BroadcastAll(contracts.EventAvailabilityUpdate, contracts.AvailabilityUpdate{
		ProviderID:  p.ProviderID,
		IsAvailable: p.IsAvailable,
		Timestamp:   now,
	})

	if c.pub != nil {
		body, err := json.Marshal(contracts.ProviderAvailabilityEvent{
			Type:        "provider_availability",
			ProviderID:  p.ProviderID,
			IsAvailable: p.IsAvailable,
			CreatedAt:   now,
		})
		if err == nil {
			routingKey := contracts.RouteProviderAvailabilityPrefix + p.ProviderID
			if err := c.pub.Publish(contracts.ExchangeBookingTopic, routingKey, body); err != nil {
				c.logger.Error(ctx, "availability_publish_failed", "Failed to publish availability event", err, map[string]any{
					"provider_id": p.ProviderID,
				})
			}
		}
	}

	c.logger.Info(ctx, "availability_updated", "Provider availability updated", map[string]any{
		"provider_id":  p.ProviderID,
		"is_available": p.IsAvailable,
	})
	return nil
}

// SendMessage broadcasts an ephemeral chat message to the booking's channel
// after confirming the sender is the booking's customer or provider. Messages
// are never persisted.
func (c *Coordinator) SendMessage(ctx context.Context, s Session, p contracts.SendMessagePayload) error {
	if err := c.validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, err)
	}

	actor := s.Actor()
	if p.SenderRole != actor.Role.String() {
		return ErrForbidden
	}

	view, err := c.store.GetTracking(ctx, p.BookingID)
	if err != nil {
		return fmt.Errorf("load booking %s: %w", p.BookingID, err)
	}

	// senderId carries the customer's user id or the provider's profile id;
	// both are cross-checked against the session binding and the booking.
	switch {
	case actor.Role.IsCustomer():
		if p.SenderID != actor.ID || actor.ID != view.CustomerID {
			return ErrForbidden
		}
	case actor.Role.IsProvider():
		providerID, err := c.guard.ResolveProvider(ctx, actor)
		if err != nil {
			return err
		}
		if p.SenderID != providerID || providerID != view.ProviderID {
			return ErrForbidden
		}
	default:
		return ErrForbidden
	}

	c.registry.Broadcast(p.BookingID, contracts.EventNewMessage, contracts.NewMessage{
		BookingID:  p.BookingID,
		Message:    p.Message,
		SenderRole: p.SenderRole,
		SenderID:   p.SenderID,
		Timestamp:  time.Now().UTC(),
	})

	c.logger.Debug(c.logCtx(ctx, p.BookingID), "message_relayed", "Chat message broadcast", map[string]any{
		"sender_role": p.SenderRole,
	})
	return nil
}

// HandlePaymentEvent applies an asynchronous payment flag flip from the
// payment subsystem and broadcasts it on the booking's channel.
func (c *Coordinator) HandlePaymentEvent(ctx context.Context, ev contracts.PaymentEvent) error {
	if ev.BookingID == "" {
		return fmt.Errorf("%w: missing bookingId", ErrValidation)
	}
	status, err := booking.ParsePaymentStatus(ev.PaymentStatus)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, err)
	}

	mu := c.lockFor(ev.BookingID)
	mu.Lock()
	defer mu.Unlock()

	now := time.Now().UTC()
	if err := c.store.UpdatePaymentStatus(ctx, ev.BookingID, status, now); err != nil {
		return fmt.Errorf("persist payment status: %w", err)
	}

	c.registry.Broadcast(ev.BookingID, contracts.EventPaymentUpdate, contracts.PaymentUpdate{
		BookingID:     ev.BookingID,
		PaymentStatus: status.String(),
		Timestamp:     now,
	})

	c.logger.Info(c.logCtx(ctx, ev.BookingID), "payment_updated", "Booking payment status updated", map[string]any{
		"payment_status": status.String(),
	})
	return nil
}

// logCtx attaches the booking id to the logging context.
func (c *Coordinator) logCtx(ctx context.Context, bookingID string) context.Context {
	return c.logger.WithBookingID(ctx, bookingID)
}
