package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"servicelink/internal/domain/booking"
	"servicelink/internal/domain/geo"
	"servicelink/internal/domain/user"
	"servicelink/internal/general/contracts"
	"servicelink/internal/general/logger"
)

func newTestCoordinator(t *testing.T, store *fakeStore, pub EventPublisher) *Coordinator {
	t.Helper()
	return NewCoordinator(logger.New("tracking-test"), store, NewRegistry(0), pub, Options{
		AssumedSpeedKMH: 30,
		SampleTTL:       30 * time.Minute,
	})
}

// seedBooking registers a confirmed booking bk42 for customer cust-1 and
// provider profile prov-1 (owned by user prov-user-1), with the customer
// located at the first coordinate pair used throughout these tests.
func seedBooking(store *fakeStore, id string, status booking.Status) {
	store.addBooking(View{
		BookingID:     id,
		CustomerID:    "cust-1",
		ProviderID:    "prov-1",
		CustomerLat:   16.5062,
		CustomerLng:   80.6480,
		Status:        status,
		PaymentStatus: booking.PaymentPending,
	})
	store.providerUser["prov-user-1"] = "prov-1"
	store.providerUser["prov-user-2"] = "prov-2"
}

func TestStatusTransitionLifecycle(t *testing.T) {
	store := newFakeStore()
	seedBooking(store, "bk42", booking.StatusConfirmed)
	pub := &fakePublisher{}
	c := newTestCoordinator(t, store, pub)
	ctx := context.Background()

	customer := newFakeSession("cust-sess", user.RoleCustomer, "cust-1")
	provider := newFakeSession("prov-sess", user.RoleProvider, "prov-user-1")
	for _, s := range []*fakeSession{customer, provider} {
		c.Connect(s)
		if err := c.JoinTracking(ctx, s, contracts.JoinTrackingPayload{BookingID: "bk42"}); err != nil {
			t.Fatalf("join: %v", err)
		}
	}

	// Providers may start work directly from confirmed.
	err := c.BookingStatus(ctx, provider, contracts.BookingStatusPayload{BookingID: "bk42", Status: "in_progress"})
	if err != nil {
		t.Fatalf("confirmed -> in_progress should be allowed: %v", err)
	}
	for _, s := range []*fakeSession{customer, provider} {
		got := s.received(contracts.EventStatusUpdate)
		if len(got) != 1 {
			t.Fatalf("session %s got %d status updates, want 1", s.ID(), len(got))
		}
		upd := got[0].Payload.(contracts.StatusUpdate)
		if upd.Status != "in_progress" || upd.BookingID != "bk42" || upd.UpdatedBy != "provider" {
			t.Fatalf("unexpected update %+v", upd)
		}
	}

	// Moving backward is rejected without touching the store or the channel.
	err = c.BookingStatus(ctx, provider, contracts.BookingStatusPayload{BookingID: "bk42", Status: "pending"})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("in_progress -> pending: got %v, want ErrInvalidTransition", err)
	}
	if store.statusWrites != 1 {
		t.Fatalf("rejected transition must not write, writes=%d", store.statusWrites)
	}
	if customer.count(contracts.EventStatusUpdate) != 1 {
		t.Fatal("rejected transition must not broadcast")
	}

	// The committed transition was published for downstream consumers.
	if len(pub.messages) != 1 {
		t.Fatalf("want 1 lifecycle publish, got %d", len(pub.messages))
	}
	msg := pub.messages[0]
	if msg.Exchange != contracts.ExchangeBookingTopic || msg.RoutingKey != "booking.status.bk42" {
		t.Fatalf("unexpected publish target %s/%s", msg.Exchange, msg.RoutingKey)
	}
	var ev contracts.BookingLifecycleEvent
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		t.Fatalf("lifecycle body: %v", err)
	}
	if ev.Status != "in_progress" || ev.BookingID != "bk42" {
		t.Fatalf("unexpected lifecycle event %+v", ev)
	}
}

func TestStatusTransitionAuthorization(t *testing.T) {
	store := newFakeStore()
	seedBooking(store, "bk1", booking.StatusPending)
	c := newTestCoordinator(t, store, nil)
	ctx := context.Background()

	stranger := newFakeSession("x", user.RoleCustomer, "cust-99")
	err := c.BookingStatus(ctx, stranger, contracts.BookingStatusPayload{BookingID: "bk1", Status: "confirmed"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign customer: got %v, want ErrForbidden", err)
	}

	err = c.BookingStatus(ctx, stranger, contracts.BookingStatusPayload{BookingID: "missing", Status: "confirmed"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown booking: got %v, want ErrNotFound", err)
	}

	err = c.BookingStatus(ctx, stranger, contracts.BookingStatusPayload{BookingID: "bk1", Status: "paused"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown status string: got %v, want ErrValidation", err)
	}
}

func TestStatusTransitionStoreFailure(t *testing.T) {
	store := newFakeStore()
	seedBooking(store, "bk1", booking.StatusPending)
	c := newTestCoordinator(t, store, nil)
	ctx := context.Background()

	watcher := newFakeSession("w", user.RoleCustomer, "cust-1")
	c.Connect(watcher)
	if _, err := c.Registry().Join("bk1", watcher); err != nil {
		t.Fatal(err)
	}

	store.failMutations = true
	err := c.BookingStatus(ctx, watcher, contracts.BookingStatusPayload{BookingID: "bk1", Status: "confirmed"})
	if err == nil {
		t.Fatal("store outage must surface an error")
	}
	if watcher.count(contracts.EventStatusUpdate) != 0 {
		t.Fatal("no broadcast may fire when persistence fails")
	}

	// once the store recovers the same transition goes through
	store.failMutations = false
	if err := c.BookingStatus(ctx, watcher, contracts.BookingStatusPayload{BookingID: "bk1", Status: "confirmed"}); err != nil {
		t.Fatalf("retry after recovery: %v", err)
	}
	if watcher.count(contracts.EventStatusUpdate) != 1 {
		t.Fatal("recovered transition should broadcast once")
	}
}

func TestProviderLocationBroadcast(t *testing.T) {
	store := newFakeStore()
	seedBooking(store, "bk1", booking.StatusEnRoute)
	c := newTestCoordinator(t, store, nil)
	ctx := context.Background()

	provider := newFakeSession("prov-sess", user.RoleProvider, "prov-user-1")
	customer := newFakeSession("cust-sess", user.RoleCustomer, "cust-1")
	c.Connect(provider)
	c.Connect(customer)
	if err := c.JoinTracking(ctx, customer, contracts.JoinTrackingPayload{BookingID: "bk1"}); err != nil {
		t.Fatal(err)
	}

	err := c.ProviderLocation(ctx, provider, contracts.ProviderLocationPayload{
		BookingID: "bk1", ProviderID: "prov-1", Lat: 16.5180, Lng: 80.6278,
	})
	if err != nil {
		t.Fatalf("location report: %v", err)
	}

	got := customer.received(contracts.EventLocationUpdate)
	if len(got) != 1 {
		t.Fatalf("customer got %d location updates, want 1", len(got))
	}
	sample := got[0].Payload.(*geo.Sample)
	if sample.Lat != 16.5180 || sample.Lng != 80.6278 {
		t.Fatalf("unexpected sample coordinates %+v", sample)
	}
	if sample.DistanceKM <= 0 || sample.ETAMinutes < 1 {
		t.Fatalf("sample must carry distance and ETA, got %+v", sample)
	}

	// a later joiner immediately receives the cached sample
	late := newFakeSession("late", user.RoleCustomer, "cust-1")
	c.Connect(late)
	if err := c.JoinTracking(ctx, late, contracts.JoinTrackingPayload{BookingID: "bk1"}); err != nil {
		t.Fatal(err)
	}
	if late.count(contracts.EventLocationUpdate) != 1 {
		t.Fatal("late joiner should be replayed the last sample")
	}
}

func TestProviderLocationRejectsImpostors(t *testing.T) {
	store := newFakeStore()
	seedBooking(store, "bk1", booking.StatusEnRoute)
	c := newTestCoordinator(t, store, nil)
	ctx := context.Background()

	watcher := newFakeSession("w", user.RoleCustomer, "cust-1")
	c.Connect(watcher)
	if _, err := c.Registry().Join("bk1", watcher); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		session *fakeSession
		payload contracts.ProviderLocationPayload
		want    error
	}{
		{
			"customer posing as provider",
			newFakeSession("s1", user.RoleCustomer, "cust-1"),
			contracts.ProviderLocationPayload{BookingID: "bk1", ProviderID: "prov-1", Lat: 1, Lng: 1},
			ErrForbidden,
		},
		{
			"unassigned provider",
			newFakeSession("s2", user.RoleProvider, "prov-user-2"),
			contracts.ProviderLocationPayload{BookingID: "bk1", ProviderID: "prov-2", Lat: 1, Lng: 1},
			ErrForbidden,
		},
		{
			"assigned provider claiming another profile id",
			newFakeSession("s3", user.RoleProvider, "prov-user-1"),
			contracts.ProviderLocationPayload{BookingID: "bk1", ProviderID: "prov-2", Lat: 1, Lng: 1},
			ErrForbidden,
		},
		{
			"out-of-range latitude",
			newFakeSession("s4", user.RoleProvider, "prov-user-1"),
			contracts.ProviderLocationPayload{BookingID: "bk1", ProviderID: "prov-1", Lat: 91, Lng: 1},
			ErrValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.ProviderLocation(ctx, tt.session, tt.payload)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}

	if watcher.count(contracts.EventLocationUpdate) != 0 {
		t.Fatal("rejected reports must not broadcast")
	}
	if c.Registry().Sample("bk1") != nil {
		t.Fatal("rejected reports must not cache a sample")
	}
}

func TestSweepEvictsStaleSamples(t *testing.T) {
	store := newFakeStore()
	seedBooking(store, "bk7", booking.StatusEnRoute)
	c := newTestCoordinator(t, store, nil)
	ctx := context.Background()

	provider := newFakeSession("prov", user.RoleProvider, "prov-user-1")
	c.Connect(provider)
	err := c.ProviderLocation(ctx, provider, contracts.ProviderLocationPayload{
		BookingID: "bk7", ProviderID: "prov-1", Lat: 16.51, Lng: 80.63,
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.Registry().Sample("bk7") == nil {
		t.Fatal("sample should be cached")
	}

	c.Sweep(ctx, time.Now().UTC().Add(31*time.Minute))

	if c.Registry().Sample("bk7") != nil {
		t.Fatal("stale sample should be evicted")
	}
	// the channel was empty, so a fresh join sees no initial state
	viewer := newFakeSession("v", user.RoleCustomer, "cust-1")
	c.Connect(viewer)
	if err := c.JoinTracking(ctx, viewer, contracts.JoinTrackingPayload{BookingID: "bk7"}); err != nil {
		t.Fatal(err)
	}
	if viewer.count(contracts.EventLocationUpdate) != 0 {
		t.Fatal("no sample replay expected after eviction")
	}
}

func TestSendMessage(t *testing.T) {
	store := newFakeStore()
	seedBooking(store, "bk1", booking.StatusInProgress)
	c := newTestCoordinator(t, store, nil)
	ctx := context.Background()

	customer := newFakeSession("cust", user.RoleCustomer, "cust-1")
	provider := newFakeSession("prov", user.RoleProvider, "prov-user-1")
	for _, s := range []*fakeSession{customer, provider} {
		c.Connect(s)
		if _, err := c.Registry().Join("bk1", s); err != nil {
			t.Fatal(err)
		}
	}

	err := c.SendMessage(ctx, customer, contracts.SendMessagePayload{
		BookingID: "bk1", Message: "on my way out", SenderRole: "customer", SenderID: "cust-1",
	})
	if err != nil {
		t.Fatalf("customer message: %v", err)
	}
	err = c.SendMessage(ctx, provider, contracts.SendMessagePayload{
		BookingID: "bk1", Message: "almost done", SenderRole: "provider", SenderID: "prov-1",
	})
	if err != nil {
		t.Fatalf("provider message: %v", err)
	}

	for _, s := range []*fakeSession{customer, provider} {
		if got := s.count(contracts.EventNewMessage); got != 2 {
			t.Fatalf("session %s got %d messages, want 2", s.ID(), got)
		}
	}
}

func TestSendMessageIdentityBinding(t *testing.T) {
	store := newFakeStore()
	seedBooking(store, "bk1", booking.StatusInProgress)
	c := newTestCoordinator(t, store, nil)
	ctx := context.Background()

	customer := newFakeSession("cust", user.RoleCustomer, "cust-1")
	c.Connect(customer)
	if _, err := c.Registry().Join("bk1", customer); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		payload contracts.SendMessagePayload
	}{
		{"role spoof", contracts.SendMessagePayload{BookingID: "bk1", Message: "hi", SenderRole: "provider", SenderID: "prov-1"}},
		{"sender id spoof", contracts.SendMessagePayload{BookingID: "bk1", Message: "hi", SenderRole: "customer", SenderID: "cust-99"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.SendMessage(ctx, customer, tt.payload)
			if !errors.Is(err, ErrForbidden) {
				t.Fatalf("got %v, want ErrForbidden", err)
			}
		})
	}
	if customer.count(contracts.EventNewMessage) != 0 {
		t.Fatal("spoofed messages must not broadcast")
	}
}

func TestProviderAvailability(t *testing.T) {
	store := newFakeStore()
	seedBooking(store, "bk1", booking.StatusConfirmed)
	pub := &fakePublisher{}
	c := newTestCoordinator(t, store, pub)
	ctx := context.Background()

	provider := newFakeSession("prov", user.RoleProvider, "prov-user-1")
	bystander := newFakeSession("by", user.RoleCustomer, "cust-2")
	c.Connect(provider)
	c.Connect(bystander)

	err := c.ProviderAvailability(ctx, provider, contracts.ProviderAvailabilityPayload{ProviderID: "prov-1", IsAvailable: false})
	if err != nil {
		t.Fatalf("availability flip: %v", err)
	}
	if got := store.availability["prov-1"]; got != false {
		t.Fatalf("availability not persisted, got %v", got)
	}
	// availability updates reach every connected session, joined or not
	for _, s := range []*fakeSession{provider, bystander} {
		if s.count(contracts.EventAvailabilityUpdate) != 1 {
			t.Fatalf("session %s missed the global broadcast", s.ID())
		}
	}
	if len(pub.messages) != 1 || pub.messages[0].RoutingKey != "provider.availability.prov-1" {
		t.Fatalf("unexpected availability publish %+v", pub.messages)
	}

	// a provider cannot flip someone else's flag
	err = c.ProviderAvailability(ctx, provider, contracts.ProviderAvailabilityPayload{ProviderID: "prov-2", IsAvailable: true})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign profile flip: got %v, want ErrForbidden", err)
	}
}

func TestHandlePaymentEvent(t *testing.T) {
	store := newFakeStore()
	seedBooking(store, "bk1", booking.StatusCompleted)
	c := newTestCoordinator(t, store, nil)
	ctx := context.Background()

	watcher := newFakeSession("w", user.RoleCustomer, "cust-1")
	c.Connect(watcher)
	if _, err := c.Registry().Join("bk1", watcher); err != nil {
		t.Fatal(err)
	}

	if err := c.HandlePaymentEvent(ctx, contracts.PaymentEvent{BookingID: "bk1", PaymentStatus: "paid"}); err != nil {
		t.Fatalf("payment event: %v", err)
	}
	view, err := store.GetTracking(ctx, "bk1")
	if err != nil {
		t.Fatal(err)
	}
	if view.PaymentStatus != booking.PaymentPaid {
		t.Fatalf("payment status not persisted, got %s", view.PaymentStatus)
	}
	got := watcher.received(contracts.EventPaymentUpdate)
	if len(got) != 1 {
		t.Fatalf("want 1 payment update, got %d", len(got))
	}
	if upd := got[0].Payload.(contracts.PaymentUpdate); upd.PaymentStatus != "paid" {
		t.Fatalf("unexpected payment update %+v", upd)
	}

	// malformed events fail closed
	if err := c.HandlePaymentEvent(ctx, contracts.PaymentEvent{BookingID: "bk1", PaymentStatus: "settled"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown payment status: got %v, want ErrValidation", err)
	}
	if err := c.HandlePaymentEvent(ctx, contracts.PaymentEvent{PaymentStatus: "paid"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing booking id: got %v, want ErrValidation", err)
	}
	if err := c.HandlePaymentEvent(ctx, contracts.PaymentEvent{BookingID: "ghost", PaymentStatus: "paid"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown booking: got %v, want ErrNotFound", err)
	}
}

func TestIsolationBetweenBookings(t *testing.T) {
	store := newFakeStore()
	seedBooking(store, "bk1", booking.StatusConfirmed)
	seedBooking(store, "bk2", booking.StatusConfirmed)
	c := newTestCoordinator(t, store, nil)
	ctx := context.Background()

	w1 := newFakeSession("w1", user.RoleCustomer, "cust-1")
	w2 := newFakeSession("w2", user.RoleCustomer, "cust-1")
	c.Connect(w1)
	c.Connect(w2)
	if _, err := c.Registry().Join("bk1", w1); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Registry().Join("bk2", w2); err != nil {
		t.Fatal(err)
	}

	if err := c.BookingStatus(ctx, w1, contracts.BookingStatusPayload{BookingID: "bk1", Status: "en_route"}); err != nil {
		t.Fatal(err)
	}

	if w1.count(contracts.EventStatusUpdate) != 1 {
		t.Fatal("bk1 watcher should see the update")
	}
	if w2.count(contracts.EventStatusUpdate) != 0 {
		t.Fatal("bk2 watcher must not see bk1 traffic")
	}
}
