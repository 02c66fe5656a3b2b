package tracking

import (
	"context"
	"errors"
	"testing"

	"servicelink/internal/domain/booking"
	"servicelink/internal/domain/user"
)

func guardFixture() (*Guard, *fakeStore, *View) {
	store := newFakeStore()
	store.providerUser["prov-user-1"] = "prov-1"
	store.providerUser["prov-user-2"] = "prov-2"
	view := &View{
		BookingID:  "bk1",
		CustomerID: "cust-1",
		ProviderID: "prov-1",
		Status:     booking.StatusConfirmed,
	}
	return NewGuard(store), store, view
}

func TestAuthorize(t *testing.T) {
	g, _, view := guardFixture()
	ctx := context.Background()

	tests := []struct {
		name  string
		actor Actor
		want  error
	}{
		{"admin always passes", Actor{Role: user.RoleAdmin, ID: "anyone"}, nil},
		{"booking customer", Actor{Role: user.RoleCustomer, ID: "cust-1"}, nil},
		{"foreign customer", Actor{Role: user.RoleCustomer, ID: "cust-2"}, ErrForbidden},
		{"assigned provider via profile", Actor{Role: user.RoleProvider, ID: "prov-user-1"}, nil},
		{"unassigned provider", Actor{Role: user.RoleProvider, ID: "prov-user-2"}, ErrForbidden},
		{"unknown role", Actor{Role: user.Role("bot"), ID: "x"}, ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Authorize(ctx, view, tt.actor)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Authorize(%+v) = %v, want %v", tt.actor, err, tt.want)
			}
		})
	}
}

func TestAuthorizeProviderWithoutProfile(t *testing.T) {
	g, _, view := guardFixture()

	err := g.Authorize(context.Background(), view, Actor{Role: user.RoleProvider, ID: "no-profile"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing provider profile should surface ErrNotFound, got %v", err)
	}
}

func TestAuthorizeProviderSelf(t *testing.T) {
	g, _, _ := guardFixture()
	ctx := context.Background()

	if err := g.AuthorizeProviderSelf(ctx, Actor{Role: user.RoleProvider, ID: "prov-user-1"}, "prov-1"); err != nil {
		t.Fatalf("own profile: %v", err)
	}
	if err := g.AuthorizeProviderSelf(ctx, Actor{Role: user.RoleProvider, ID: "prov-user-1"}, "prov-2"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign profile should be forbidden, got %v", err)
	}
	if err := g.AuthorizeProviderSelf(ctx, Actor{Role: user.RoleAdmin, ID: "ops"}, "prov-2"); err != nil {
		t.Fatalf("admin override: %v", err)
	}
	if err := g.AuthorizeProviderSelf(ctx, Actor{Role: user.RoleCustomer, ID: "cust-1"}, "prov-1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("customer can never claim a provider id, got %v", err)
	}
}

func TestErrorEventFor(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{ErrNotFound, "not_found"},
		{ErrForbidden, "forbidden"},
		{ErrInvalidTransition, "invalid_transition"},
		{ErrValidation, "validation_error"},
		{ErrChannelFull, "channel_full"},
		{errors.New("pg: connection refused"), "internal"},
	}
	for _, tt := range tests {
		if got := ErrorEventFor(tt.err); got.Code != tt.code {
			t.Errorf("ErrorEventFor(%v).Code = %q, want %q", tt.err, got.Code, tt.code)
		}
	}
}
