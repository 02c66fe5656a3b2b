package booking

import (
	"errors"
	"strings"
	"time"
)

// Booking is the domain entity corresponding to the `bookings` table.
type Booking struct {
	// Identity & audit
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Actors
	CustomerID string
	ProviderID string

	// Engagement details
	ServiceCategoryID string
	BookingDate       time.Time
	DurationHours     float64
	TotalAmount       float64

	// Core state
	Status        Status
	PaymentStatus PaymentStatus

	// Service address
	CustomerAddress     string
	CustomerLat         float64
	CustomerLng         float64
	SpecialInstructions *string
}

var (
	ErrCustomerRequired  = errors.New("customer id is required")
	ErrProviderRequired  = errors.New("provider id is required")
	ErrDurationInvalid   = errors.New("duration must be positive")
	ErrAmountNegative    = errors.New("total amount cannot be negative")
	ErrInvalidTransition = errors.New("invalid booking status transition")
)

// New creates a new booking in pending state.
func New(customerID, providerID, serviceCategoryID string, bookingDate time.Time, durationHours, totalAmount float64, address string, lat, lng float64) (*Booking, error) {
	if customerID = strings.TrimSpace(customerID); customerID == "" {
		return nil, ErrCustomerRequired
	}
	if providerID = strings.TrimSpace(providerID); providerID == "" {
		return nil, ErrProviderRequired
	}
	if durationHours <= 0 {
		return nil, ErrDurationInvalid
	}
	if totalAmount < 0 {
		return nil, ErrAmountNegative
	}

	now := time.Now().UTC()
	return &Booking{
		CreatedAt:         now,
		UpdatedAt:         now,
		CustomerID:        customerID,
		ProviderID:        providerID,
		ServiceCategoryID: strings.TrimSpace(serviceCategoryID),
		BookingDate:       bookingDate,
		DurationHours:     durationHours,
		TotalAmount:       totalAmount,
		Status:            StatusPending,
		PaymentStatus:     PaymentPending,
		CustomerAddress:   strings.TrimSpace(address),
		CustomerLat:       lat,
		CustomerLng:       lng,
	}, nil
}

// Transition moves the booking to the next status if the status graph allows it.
func (b *Booking) Transition(next Status) error {
	if !next.Valid() {
		return ErrInvalidStatus
	}
	if !b.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	b.Status = next
	b.touch()
	return nil
}

// MarkPayment records a payment flag flip from the payment subsystem.
func (b *Booking) MarkPayment(status PaymentStatus) error {
	if !status.Valid() {
		return ErrInvalidPaymentStatus
	}
	b.PaymentStatus = status
	b.touch()
	return nil
}

func (b *Booking) touch() {
	b.UpdatedAt = time.Now().UTC()
}
