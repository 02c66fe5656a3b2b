package tracking

import (
	"context"
	"errors"
	"sync"
	"time"

	"servicelink/internal/domain/booking"
	"servicelink/internal/domain/user"
)

// fakeSession records everything it is sent.
type fakeSession struct {
	id    string
	actor Actor

	mu     sync.Mutex
	events []sentEvent
	broken bool // simulate a dead connection
}

type sentEvent struct {
	Event   string
	Payload any
}

func newFakeSession(id string, role user.Role, userID string) *fakeSession {
	return &fakeSession{id: id, actor: Actor{Role: role, ID: userID}}
}

func (f *fakeSession) ID() string   { return f.id }
func (f *fakeSession) Actor() Actor { return f.actor }

func (f *fakeSession) Send(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken {
		return errors.New("connection gone")
	}
	f.events = append(f.events, sentEvent{Event: event, Payload: payload})
	return nil
}

func (f *fakeSession) received(event string) []sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentEvent
	for _, e := range f.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeSession) count(event string) int { return len(f.received(event)) }

// fakeStore is an in-memory Store with switchable failure modes.
type fakeStore struct {
	mu sync.Mutex

	views        map[string]*View
	providerUser map[string]string // user id -> provider profile id
	availability map[string]bool

	failMutations bool // simulate store outage on writes
	statusWrites  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		views:        make(map[string]*View),
		providerUser: make(map[string]string),
		availability: make(map[string]bool),
	}
}

func (f *fakeStore) addBooking(v View) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := v
	f.views[v.BookingID] = &cp
}

func (f *fakeStore) GetTracking(_ context.Context, bookingID string) (*View, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.views[bookingID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, bookingID string, status booking.Status, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMutations {
		return errors.New("connection refused")
	}
	v, ok := f.views[bookingID]
	if !ok {
		return ErrNotFound
	}
	if !v.Status.CanTransitionTo(status) {
		return ErrInvalidTransition
	}
	v.Status = status
	f.statusWrites++
	return nil
}

func (f *fakeStore) UpdatePaymentStatus(_ context.Context, bookingID string, status booking.PaymentStatus, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMutations {
		return errors.New("connection refused")
	}
	v, ok := f.views[bookingID]
	if !ok {
		return ErrNotFound
	}
	v.PaymentStatus = status
	return nil
}

func (f *fakeStore) ResolveProviderID(_ context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.providerUser[userID]
	if !ok {
		return "", ErrNotFound
	}
	return id, nil
}

func (f *fakeStore) UpdateAvailability(_ context.Context, providerID string, available bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMutations {
		return errors.New("connection refused")
	}
	f.availability[providerID] = available
	return nil
}

// fakePublisher records lifecycle publishes.
type fakePublisher struct {
	mu       sync.Mutex
	messages []publishedMsg
}

type publishedMsg struct {
	Exchange   string
	RoutingKey string
	Body       []byte
}

func (f *fakePublisher) Publish(exchange, routingKey string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, publishedMsg{Exchange: exchange, RoutingKey: routingKey, Body: body})
	return nil
}
