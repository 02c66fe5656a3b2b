package tracking

import (
	"errors"

	"servicelink/internal/general/contracts"
)

// Error taxonomy for coordinator operations. All four kinds are recoverable
// and scoped: they are reported to the originating session only and never
// affect other bookings' state.
var (
	ErrNotFound          = errors.New("booking not found")
	ErrForbidden         = errors.New("actor is not a party to this booking")
	ErrInvalidTransition = errors.New("invalid booking status transition")
	ErrValidation        = errors.New("invalid payload")
	ErrChannelFull       = errors.New("tracking channel subscriber limit reached")
)

// ErrorEventFor maps an operation error to the scoped `error` event sent back
// to the sender. Store-level failures are reported as retryable without
// leaking internals.
func ErrorEventFor(err error) contracts.ErrorEvent {
	switch {
	case errors.Is(err, ErrNotFound):
		return contracts.ErrorEvent{Code: contracts.CodeNotFound, Message: "booking not found"}
	case errors.Is(err, ErrForbidden):
		return contracts.ErrorEvent{Code: contracts.CodeForbidden, Message: "not authorized for this booking"}
	case errors.Is(err, ErrInvalidTransition):
		return contracts.ErrorEvent{Code: contracts.CodeInvalidTransition, Message: "status transition not allowed"}
	case errors.Is(err, ErrValidation):
		return contracts.ErrorEvent{Code: contracts.CodeValidationError, Message: "malformed payload"}
	case errors.Is(err, ErrChannelFull):
		return contracts.ErrorEvent{Code: contracts.CodeChannelFull, Message: "tracking channel is full"}
	default:
		return contracts.ErrorEvent{Code: contracts.CodeInternal, Message: "temporarily unavailable, please retry"}
	}
}
