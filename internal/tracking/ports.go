package tracking

import (
	"context"
	"time"

	"servicelink/internal/domain/booking"
	"servicelink/internal/domain/user"
)

// Actor is the identity bound to a session at connection time from a verified
// token. Event payloads may repeat identity claims, but the bound actor is
// authoritative.
type Actor struct {
	Role user.Role
	ID   string // user id; providers are resolved to their profile id via the store
}

// View is the coordinator's read-mostly projection of a booking while
// processing an event. The persistent store owns the booking.
type View struct {
	BookingID     string
	CustomerID    string
	ProviderID    string
	CustomerLat   float64
	CustomerLng   float64
	Status        booking.Status
	PaymentStatus booking.PaymentStatus
}

// Store is the persistent-store contract consumed by the coordinator.
type Store interface {
	// GetTracking loads the tracking view of a booking. Returns ErrNotFound
	// when the booking is absent.
	GetTracking(ctx context.Context, bookingID string) (*View, error)

	// UpdateStatus persists a status change atomically (single update keyed by
	// booking id). Returns ErrInvalidTransition when the row's current status
	// no longer allows the target.
	UpdateStatus(ctx context.Context, bookingID string, status booking.Status, updatedAt time.Time) error

	// UpdatePaymentStatus flips the payment flag. Returns ErrNotFound when the
	// booking is absent.
	UpdatePaymentStatus(ctx context.Context, bookingID string, status booking.PaymentStatus, updatedAt time.Time) error

	// ResolveProviderID maps a user id to their provider profile id. Returns
	// ErrNotFound when no profile exists.
	ResolveProviderID(ctx context.Context, userID string) (string, error)

	// UpdateAvailability persists a provider's availability flag. Returns
	// ErrNotFound when the provider is absent.
	UpdateAvailability(ctx context.Context, providerID string, available bool) error
}

// Session is a live participant connection. Send must be safe for concurrent
// use; a failed send means the session is gone and may be dropped.
type Session interface {
	ID() string
	Actor() Actor
	Send(event string, payload any) error
}

// EventPublisher publishes lifecycle events to the message broker for
// downstream consumers. Publishing is best effort.
type EventPublisher interface {
	Publish(exchange, routingKey string, body []byte) error
}
