package tracking

import (
	"sync"
	"time"

	"servicelink/internal/domain/geo"
)

// channel is the live state for one booking: the set of subscribed sessions
// and the last known location sample. Created lazily on first join or first
// location update; garbage-collected when empty and stale.
type channel struct {
	subscribers map[string]Session // session id -> session
	sample      *geo.Sample
}

// Registry maps booking ids to tracking channels and keeps the index of all
// connected sessions. It is rebuilt from zero on process restart; sessions
// must rejoin. Map access is guarded by the registry mutex, but sends happen
// outside it so one channel's slow subscriber never blocks another booking.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session             // all registered sessions
	channels map[string]*channel            // booking id -> channel
	joined   map[string]map[string]struct{} // session id -> booking ids
	cap      int                            // per-channel subscriber cap, 0 = unlimited
}

// NewRegistry creates an empty registry. cap bounds subscribers per channel
// (0 disables the bound).
func NewRegistry(cap int) *Registry {
	return &Registry{
		sessions: make(map[string]Session),
		channels: make(map[string]*channel),
		joined:   make(map[string]map[string]struct{}),
		cap:      cap,
	}
}

// Register adds a connected session to the global index. Idempotent.
func (r *Registry) Register(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

// Join idempotently subscribes the session to the booking's channel, creating
// the channel if absent, and returns the channel's last known location sample
// so a newly joined viewer receives immediate state.
func (r *Registry) Join(bookingID string, s Session) (*geo.Sample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := r.channels[bookingID]
	if ch == nil {
		ch = &channel{subscribers: make(map[string]Session)}
		r.channels[bookingID] = ch
	}

	if _, already := ch.subscribers[s.ID()]; !already {
		if r.cap > 0 && len(ch.subscribers) >= r.cap {
			return nil, ErrChannelFull
		}
		ch.subscribers[s.ID()] = s
	}

	set := r.joined[s.ID()]
	if set == nil {
		set = make(map[string]struct{})
		r.joined[s.ID()] = set
	}
	set[bookingID] = struct{}{}

	r.sessions[s.ID()] = s
	return ch.sample, nil
}

// Leave removes the session from every channel it is subscribed to and from
// the global index. O(channels joined); idempotent, used on disconnect.
func (r *Registry) Leave(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(sessionID)
}

func (r *Registry) leaveLocked(sessionID string) {
	for bookingID := range r.joined[sessionID] {
		if ch := r.channels[bookingID]; ch != nil {
			delete(ch.subscribers, sessionID)
		}
	}
	delete(r.joined, sessionID)
	delete(r.sessions, sessionID)
}

// SetSample stores the latest location sample for a booking, creating the
// channel lazily on first update.
func (r *Registry) SetSample(bookingID string, sample *geo.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := r.channels[bookingID]
	if ch == nil {
		ch = &channel{subscribers: make(map[string]Session)}
		r.channels[bookingID] = ch
	}
	ch.sample = sample
}

// Sample returns the last known location sample for a booking, if any.
// Lock-free for callers: reads only observe the last sample.
func (r *Registry) Sample(bookingID string) *geo.Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ch := r.channels[bookingID]; ch != nil {
		return ch.sample
	}
	return nil
}

// Broadcast delivers the event to every currently subscribed session for the
// booking. Delivery is best-effort and fire-and-forget: a session that fails
// to receive is dropped from all channels, not retried.
func (r *Registry) Broadcast(bookingID, event string, payload any) {
	r.mu.RLock()
	ch := r.channels[bookingID]
	var targets []Session
	if ch != nil {
		targets = make([]Session, 0, len(ch.subscribers))
		for _, s := range ch.subscribers {
			targets = append(targets, s)
		}
	}
	r.mu.RUnlock()

	var failed []string
	for _, s := range targets {
		if err := s.Send(event, payload); err != nil {
			failed = append(failed, s.ID())
		}
	}
	r.dropAll(failed)
}

// BroadcastAll delivers the event to every connected session regardless of
// channel membership (used for provider availability updates).
func (r *Registry) BroadcastAll(event string, payload any) {
	r.mu.RLock()
	targets := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	var failed []string
	for _, s := range targets {
		if err := s.Send(event, payload); err != nil {
			failed = append(failed, s.ID())
		}
	}
	r.dropAll(failed)
}

func (r *Registry) dropAll(sessionIDs []string) {
	if len(sessionIDs) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range sessionIDs {
		r.leaveLocked(id)
	}
}

// ChannelIDs returns a snapshot of booking ids with live channels, for the
// expiry sweep.
func (r *Registry) ChannelIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.channels))
	for id := range r.channels {
		ids = append(ids, id)
	}
	return ids
}

// EvictExpired clears the booking's sample when it is older than ttl and
// deletes the channel outright when it also has no subscribers. Returns
// whether a sample was evicted and whether the channel was removed. The
// caller holds the booking's lock.
func (r *Registry) EvictExpired(bookingID string, now time.Time, ttl time.Duration) (evicted, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := r.channels[bookingID]
	if ch == nil {
		return false, false
	}
	if ch.sample != nil && ch.sample.Expired(now, ttl) {
		ch.sample = nil
		evicted = true
	}
	if ch.sample == nil && len(ch.subscribers) == 0 {
		delete(r.channels, bookingID)
		removed = true
	}
	return evicted, removed
}

// Counts returns the number of connected sessions and live channels, for
// logging and health reporting.
func (r *Registry) Counts() (sessions, channels int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions), len(r.channels)
}
