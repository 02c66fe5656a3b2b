package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"servicelink/internal/domain/booking"
	"servicelink/internal/tracking"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements the coordinator's persistent-store contract with pgx and
// plain SQL. Booking queries live here; provider queries in provider_repo.go.
type Store struct {
	pool *pgxpool.Pool
}

var _ tracking.Store = (*Store)(nil)

// NewStore constructs a Store over the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// GetTracking loads the coordinator's view of a booking.
func (s *Store) GetTracking(ctx context.Context, bookingID string) (*tracking.View, error) {
	var (
		view            tracking.View
		status, payment string
	)

	err := s.pool.QueryRow(ctx, `
		SELECT id, customer_id, provider_id, customer_lat, customer_lng, status, payment_status
		FROM bookings
		WHERE id = $1
	`, bookingID).Scan(
		&view.BookingID, &view.CustomerID, &view.ProviderID,
		&view.CustomerLat, &view.CustomerLng, &status, &payment,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tracking.ErrNotFound
		}
		return nil, fmt.Errorf("query booking %s: %w", bookingID, err)
	}

	view.Status = booking.Status(status)
	view.PaymentStatus = booking.PaymentStatus(payment)
	return &view, nil
}

// UpdateStatus sets the booking status under a row lock so two
// near-simultaneous transitions cannot both commit.
func (s *Store) UpdateStatus(ctx context.Context, bookingID string, status booking.Status, updatedAt time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin status update: %w", err)
	}
	defer tx.Rollback(ctx)

	// lock the row and re-check the transition against the current status
	var current string
	err = tx.QueryRow(ctx, `
		SELECT status
		FROM bookings
		WHERE id = $1
		FOR UPDATE
	`, bookingID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tracking.ErrNotFound
		}
		return fmt.Errorf("lock booking %s: %w", bookingID, err)
	}

	if !booking.Status(current).CanTransitionTo(status) {
		return fmt.Errorf("%s -> %s: %w", current, status, tracking.ErrInvalidTransition)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE bookings
		SET status = $1, updated_at = $2
		WHERE id = $3
	`, status.String(), updatedAt, bookingID); err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit status update: %w", err)
	}
	return nil
}

// UpdatePaymentStatus flips the payment flag on a booking.
func (s *Store) UpdatePaymentStatus(ctx context.Context, bookingID string, status booking.PaymentStatus, updatedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE bookings
		SET payment_status = $1, updated_at = $2
		WHERE id = $3
	`, status.String(), updatedAt, bookingID)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tracking.ErrNotFound
	}
	return nil
}
