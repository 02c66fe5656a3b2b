package contracts

import "time"

// Inbound payloads. Field names are the wire contract; identifiers are opaque
// strings. Validation tags are enforced before any handler logic runs.

// JoinTrackingPayload subscribes the session to a booking's channel.
type JoinTrackingPayload struct {
	BookingID string `json:"bookingId" validate:"required"`
	UserRole  string `json:"userRole"  validate:"omitempty,oneof=customer provider admin"`
}

// ProviderLocationPayload is a live position report from a provider.
type ProviderLocationPayload struct {
	BookingID  string  `json:"bookingId"  validate:"required"`
	ProviderID string  `json:"providerId" validate:"required"`
	Lat        float64 `json:"lat"        validate:"min=-90,max=90"`
	Lng        float64 `json:"lng"        validate:"min=-180,max=180"`
}

// BookingStatusPayload requests a booking status transition.
type BookingStatusPayload struct {
	BookingID string `json:"bookingId" validate:"required"`
	Status    string `json:"status"    validate:"required"`
}

// ProviderAvailabilityPayload flips a provider's availability flag.
type ProviderAvailabilityPayload struct {
	ProviderID  string `json:"providerId" validate:"required"`
	IsAvailable bool   `json:"isAvailable"`
}

// SendMessagePayload is an ephemeral chat message scoped to a booking.
type SendMessagePayload struct {
	BookingID  string `json:"bookingId"  validate:"required"`
	Message    string `json:"message"    validate:"required,max=2000"`
	SenderRole string `json:"senderRole" validate:"required,oneof=customer provider"`
	SenderID   string `json:"senderId"   validate:"required"`
}

// Outbound payloads.

// StatusUpdate is broadcast on the booking channel after a transition commits.
type StatusUpdate struct {
	BookingID string    `json:"bookingId"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	UpdatedBy string    `json:"updatedBy"`
}

// AvailabilityUpdate is broadcast globally to all connected sessions.
type AvailabilityUpdate struct {
	ProviderID  string    `json:"providerId"`
	IsAvailable bool      `json:"isAvailable"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewMessage is broadcast on the booking channel; messages are never stored.
type NewMessage struct {
	BookingID  string    `json:"bookingId"`
	Message    string    `json:"message"`
	SenderRole string    `json:"senderRole"`
	SenderID   string    `json:"senderId"`
	Timestamp  time.Time `json:"timestamp"`
}

// PaymentUpdate is broadcast after the payment subsystem flips the flag.
type PaymentUpdate struct {
	BookingID     string    `json:"bookingId"`
	PaymentStatus string    `json:"paymentStatus"`
	Timestamp     time.Time `json:"timestamp"`
}

// ErrorEvent is sent to the originating session only, never broadcast.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Broker messages.

// PaymentEvent is consumed from the payment subsystem via RabbitMQ.
type PaymentEvent struct {
	BookingID     string `json:"bookingId"`
	PaymentStatus string `json:"paymentStatus"`
}

// BookingLifecycleEvent is published to the booking topic exchange for
// downstream consumers (notifications, analytics).
type BookingLifecycleEvent struct {
	Type      string    `json:"type"`
	BookingID string    `json:"bookingId,omitempty"`
	Status    string    `json:"status,omitempty"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ProviderAvailabilityEvent is published on availability flips.
type ProviderAvailabilityEvent struct {
	Type        string    `json:"type"`
	ProviderID  string    `json:"providerId"`
	IsAvailable bool      `json:"isAvailable"`
	CreatedAt   time.Time `json:"createdAt"`
}
