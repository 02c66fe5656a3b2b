package tracking

import (
	"context"
	"fmt"
)

// Guard validates that an event's actor is legitimately associated with the
// target booking before any mutation. Failure is reported, never silently
// ignored; the calling operation must abort.
type Guard struct {
	store Store
}

// NewGuard constructs a Guard backed by the persistent store.
func NewGuard(store Store) *Guard {
	return &Guard{store: store}
}

// Authorize succeeds iff the actor is an admin, the booking's customer, or
// the booking's assigned provider. Provider identity is resolved via the
// actor's provider profile, not their raw user id.
func (g *Guard) Authorize(ctx context.Context, view *View, actor Actor) error {
	switch {
	case actor.Role.IsAdmin():
		return nil

	case actor.Role.IsCustomer():
		if actor.ID == view.CustomerID {
			return nil
		}
		return ErrForbidden

	case actor.Role.IsProvider():
		providerID, err := g.ResolveProvider(ctx, actor)
		if err != nil {
			return err
		}
		if providerID == view.ProviderID {
			return nil
		}
		return ErrForbidden

	default:
		return ErrForbidden
	}
}

// ResolveProvider maps a provider actor to their provider profile id. A
// missing profile is reported as ErrNotFound, matching the store contract.
func (g *Guard) ResolveProvider(ctx context.Context, actor Actor) (string, error) {
	if !actor.Role.IsProvider() {
		return "", ErrForbidden
	}
	providerID, err := g.store.ResolveProviderID(ctx, actor.ID)
	if err != nil {
		return "", fmt.Errorf("resolve provider profile: %w", err)
	}
	return providerID, nil
}

// AuthorizeProviderSelf checks the self-only rule for provider-owned
// resources: the actor must be an admin, or a provider whose profile id
// matches the claimed providerID.
func (g *Guard) AuthorizeProviderSelf(ctx context.Context, actor Actor, providerID string) error {
	if actor.Role.IsAdmin() {
		return nil
	}
	own, err := g.ResolveProvider(ctx, actor)
	if err != nil {
		return err
	}
	if own != providerID {
		return ErrForbidden
	}
	return nil
}
