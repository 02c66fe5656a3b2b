package contracts

// WebSocket event names (wire contract).
//
// Inbound events arrive from participant sessions; outbound events are
// emitted by the tracking coordinator.
const (
	// Inbound
	EventJoinTracking         = "join-tracking"
	EventProviderLocation     = "provider-location"
	EventBookingStatus        = "booking-status"
	EventProviderAvailability = "provider-availability"
	EventSendMessage          = "send-message"

	// Outbound
	EventLocationUpdate     = "location-update"
	EventStatusUpdate       = "status-update"
	EventAvailabilityUpdate = "provider-availability-update"
	EventNewMessage         = "new-message"
	EventPaymentUpdate      = "payment-update"
	EventError              = "error"
)

// RabbitMQ topology.
const (
	// Exchanges
	ExchangeBookingTopic = "booking_topic"
	ExchangePaymentTopic = "payment_topic"

	// Queues
	QueueBookingLifecycle = "booking_lifecycle"
	QueuePaymentUpdates   = "payment_status_updates"

	// Routing key prefixes (suffix is the booking/provider id)
	RouteBookingStatusPrefix        = "booking.status."
	RouteProviderAvailabilityPrefix = "provider.availability."
	RoutePaymentStatusPrefix        = "payment.status."
)

// Error codes carried on scoped `error` events.
const (
	CodeNotFound          = "not_found"
	CodeForbidden         = "forbidden"
	CodeInvalidTransition = "invalid_transition"
	CodeValidationError   = "validation_error"
	CodeChannelFull       = "channel_full"
	CodeInternal          = "internal"
)
