package postgres

import (
	"context"
	"errors"
	"fmt"

	"servicelink/internal/tracking"

	"github.com/jackc/pgx/v5"
)

// ResolveProviderID maps a user id to their provider profile id. Provider
// identity on bookings always refers to the profile, not the user row.
func (s *Store) ResolveProviderID(ctx context.Context, userID string) (string, error) {
	var providerID string
	err := s.pool.QueryRow(ctx, `
		SELECT id
		FROM providers
		WHERE user_id = $1
	`, userID).Scan(&providerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", tracking.ErrNotFound
		}
		return "", fmt.Errorf("resolve provider for user %s: %w", userID, err)
	}
	return providerID, nil
}

// UpdateAvailability persists a provider's availability flag.
func (s *Store) UpdateAvailability(ctx context.Context, providerID string, available bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE providers
		SET is_available = $1
		WHERE id = $2
	`, available, providerID)
	if err != nil {
		return fmt.Errorf("update provider availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tracking.ErrNotFound
	}
	return nil
}
