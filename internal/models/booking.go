package models

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus is the state-machine status of a booking
type BookingStatus string

const (
	BookingStatusPending              BookingStatus = "pending"
	BookingStatusAwaitingPayment      BookingStatus = "awaiting_payment"
	BookingStatusConfirmed            BookingStatus = "confirmed"
	BookingStatusCheckedIn            BookingStatus = "checked_in"
	BookingStatusCompleted            BookingStatus = "completed"
	BookingStatusDisputed             BookingStatus = "disputed"
	BookingStatusRejected             BookingStatus = "rejected"
	BookingStatusExpired              BookingStatus = "expired"
	BookingStatusCancelledByPassenger BookingStatus = "cancelled_by_passenger"
	BookingStatusCancelledByDriver    BookingStatus = "cancelled_by_driver"
)

// PaymentStatus represents the payment status of a booking
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusPaid              PaymentStatus = "paid"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

// DisputeStatus represents the dispute state of a booking
type DisputeStatus string

const (
	DisputeStatusNone DisputeStatus = "none"
	DisputeStatusOpen DisputeStatus = "open"
)

// CompletionSource records who drove the completed transition
type CompletionSource string

const (
	CompletionSourcePassenger CompletionSource = "passenger"
	CompletionSourceAuto      CompletionSource = "auto"
)

// Booking represents a passenger's reservation of seats on a trip.
// Status transitions only happen through guarded conditional updates so
// conflicting concurrent requests get a definitive reject.
type Booking struct {
	ID               uuid.UUID     `json:"id" db:"id"`
	TripID           uuid.UUID     `json:"trip_id" db:"trip_id"`
	PassengerID      uuid.UUID     `json:"passenger_id" db:"passenger_id"`
	Status           BookingStatus `json:"status" db:"status"`
	Seats            int           `json:"seats" db:"seats"`
	PriceTotal       float64       `json:"price_total" db:"price_total"`
	CommissionAmount float64       `json:"commission_amount" db:"commission_amount"`
	PaymentStatus    PaymentStatus `json:"payment_status" db:"payment_status"`
	PaymentID        *string       `json:"payment_id,omitempty" db:"payment_id"`
	QRCode           string        `json:"qr_code" db:"qr_code"`
	PNRCode          string        `json:"pnr_code" db:"pnr_code"`

	ItemKind    ItemKind `json:"item_kind" db:"item_kind"`
	ItemPayload []byte   `json:"-" db:"item_payload"`

	BoardingStopID  *uuid.UUID `json:"boarding_stop_id,omitempty" db:"boarding_stop_id"`
	AlightingStopID *uuid.UUID `json:"alighting_stop_id,omitempty" db:"alighting_stop_id"`

	AcceptedAt       *time.Time        `json:"accepted_at,omitempty" db:"accepted_at"`
	PaymentDueAt     *time.Time        `json:"payment_due_at,omitempty" db:"payment_due_at"`
	PaidAt           *time.Time        `json:"paid_at,omitempty" db:"paid_at"`
	CheckedInAt      *time.Time        `json:"checked_in_at,omitempty" db:"checked_in_at"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
	CompletionSource *CompletionSource `json:"completion_source,omitempty" db:"completion_source"`

	DisputeStatus     DisputeStatus `json:"dispute_status" db:"dispute_status"`
	DisputeReason     *string       `json:"dispute_reason,omitempty" db:"dispute_reason"`
	DisputeDeadlineAt *time.Time    `json:"dispute_deadline_at,omitempty" db:"dispute_deadline_at"`

	CancelledAt        *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancellationReason *string    `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	RejectionReason    *string    `json:"rejection_reason,omitempty" db:"rejection_reason"`
	PenaltyAmount      float64    `json:"penalty_amount" db:"penalty_amount"`
	RefundAmount       float64    `json:"refund_amount" db:"refund_amount"`

	Payout10ReleasedAt *time.Time `json:"payout10_released_at,omitempty" db:"payout10_released_at"`
	Payout90ReleasedAt *time.Time `json:"payout90_released_at,omitempty" db:"payout90_released_at"`
	PayoutHoldReason   *string    `json:"payout_hold_reason,omitempty" db:"payout_hold_reason"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Terminal reports whether the booking reached a state from which no
// lifecycle transition other than raising a dispute remains.
func (b *Booking) Terminal() bool {
	switch b.Status {
	case BookingStatusRejected, BookingStatusExpired,
		BookingStatusCancelledByPassenger, BookingStatusCancelledByDriver,
		BookingStatusCompleted, BookingStatusDisputed:
		return true
	}
	return false
}

// HoldsSeats reports whether the booking currently counts against trip
// capacity. Only paid bookings hold seats; pending and awaiting_payment
// bookings never decremented them.
func (b *Booking) HoldsSeats() bool {
	switch b.Status {
	case BookingStatusConfirmed, BookingStatusCheckedIn,
		BookingStatusCompleted, BookingStatusDisputed:
		return true
	}
	return false
}

// PaymentOverdue reports whether the payment hold deadline has passed.
func (b *Booking) PaymentOverdue(now time.Time) bool {
	return b.PaymentDueAt != nil && now.After(*b.PaymentDueAt)
}
