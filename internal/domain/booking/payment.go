package booking

import (
	"errors"
	"strings"
)

// PaymentStatus tracks the payment flag independently of the booking status.
// It is flipped asynchronously by the payment subsystem.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

var ErrInvalidPaymentStatus = errors.New("invalid payment status")

// ParsePaymentStatus normalizes (lowercases+trims) and validates a payment status string.
func ParsePaymentStatus(in string) (PaymentStatus, error) {
	status := PaymentStatus(strings.ToLower(strings.TrimSpace(in)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidPaymentStatus
}

// Valid reports whether status is one of the allowed payment status constants.
func (status PaymentStatus) Valid() bool {
	switch status {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	default:
		return false
	}
}

// String returns the string representation of the PaymentStatus.
func (status PaymentStatus) String() string {
	return string(status)
}
