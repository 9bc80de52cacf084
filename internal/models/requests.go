package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// MaxSeatsPerBooking caps how many seats one booking may take.
const MaxSeatsPerBooking = 8

// MaxDisputeReasonLength caps the free-text dispute reason.
const MaxDisputeReasonLength = 500

// CreateBookingRequest represents the request to create a booking
type CreateBookingRequest struct {
	TripID          uuid.UUID    `json:"trip_id" binding:"required"`
	Seats           int          `json:"seats" binding:"required,min=1"`
	ItemDetails     *ItemDetails `json:"item_details,omitempty"`
	BoardingStopID  *uuid.UUID   `json:"boarding_stop_id,omitempty"`
	AlightingStopID *uuid.UUID   `json:"alighting_stop_id,omitempty"`
}

// Validate validates the create booking request
func (r *CreateBookingRequest) Validate() error {
	if r.TripID == uuid.Nil {
		return errors.New("trip_id is required")
	}
	if r.Seats < 1 || r.Seats > MaxSeatsPerBooking {
		return errors.New("seats must be between 1 and 8")
	}
	if (r.BoardingStopID == nil) != (r.AlightingStopID == nil) {
		return errors.New("boarding and alighting stops must be provided together")
	}
	if r.ItemDetails != nil {
		if err := r.ItemDetails.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// TripStopInput is one route waypoint in a trip creation request
type TripStopInput struct {
	Name           string  `json:"name" binding:"required"`
	CumulativeFare float64 `json:"cumulative_fare"`
}

// CreateTripRequest represents a driver publishing a trip
type CreateTripRequest struct {
	Origin               string          `json:"origin" binding:"required"`
	Destination          string          `json:"destination" binding:"required"`
	TotalSeats           int             `json:"total_seats" binding:"required,min=1"`
	PricePerSeat         float64         `json:"price_per_seat" binding:"required"`
	DepartureTime        time.Time       `json:"departure_time" binding:"required"`
	EstimatedArrivalTime *time.Time      `json:"estimated_arrival_time,omitempty"`
	BookingType          TripBookingType `json:"booking_type"`
	Stops                []TripStopInput `json:"stops,omitempty"`
}

// Validate validates the create trip request
func (r *CreateTripRequest) Validate() error {
	if r.TotalSeats < 1 {
		return errors.New("total_seats must be at least 1")
	}
	if r.PricePerSeat <= 0 {
		return errors.New("price_per_seat must be positive")
	}
	if r.BookingType != "" && r.BookingType != BookingTypeInstant && r.BookingType != BookingTypeApproval {
		return errors.New("booking_type must be instant or approval_required")
	}
	if r.EstimatedArrivalTime != nil && !r.EstimatedArrivalTime.After(r.DepartureTime) {
		return errors.New("estimated_arrival_time must be after departure_time")
	}
	if len(r.Stops) == 1 {
		return errors.New("a route needs at least two stops")
	}
	for i, stop := range r.Stops {
		if stop.CumulativeFare < 0 {
			return errors.New("cumulative_fare cannot be negative")
		}
		if i > 0 && stop.CumulativeFare < r.Stops[i-1].CumulativeFare {
			return errors.New("cumulative fares must not decrease along the route")
		}
	}
	return nil
}

// ProcessPaymentRequest represents the request to pay for a booking
type ProcessPaymentRequest struct {
	PaymentToken string `json:"payment_token" binding:"required"`
}

// RejectBookingRequest carries the driver's optional decline reason
type RejectBookingRequest struct {
	Reason *string `json:"reason,omitempty"`
}

// CancelBookingRequest represents the request to cancel a booking
type CancelBookingRequest struct {
	Reason *string `json:"reason,omitempty"`
}

// CheckInByQRRequest represents a driver check-in via scanned QR payload
type CheckInByQRRequest struct {
	QRCode string `json:"qr_code" binding:"required"`
}

// CheckInByPNRRequest represents a driver check-in via typed PNR code
type CheckInByPNRRequest struct {
	TripID  uuid.UUID `json:"trip_id" binding:"required"`
	PNRCode string    `json:"pnr_code" binding:"required"`
}

// RaiseDisputeRequest represents the request to open a dispute
type RaiseDisputeRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Validate validates the dispute request
func (r *RaiseDisputeRequest) Validate() error {
	if r.Reason == "" {
		return errors.New("reason is required")
	}
	if len(r.Reason) > MaxDisputeReasonLength {
		return errors.New("reason must be 500 characters or fewer")
	}
	return nil
}

// RegisterPayoutAccountRequest registers a driver's payout account with the
// payment provider.
type RegisterPayoutAccountRequest struct {
	BankCode      string `json:"bank_code" binding:"required"`
	AccountNumber string `json:"account_number" binding:"required"`
	HolderName    string `json:"holder_name" binding:"required"`
}

// PayoutAccountStatusRequest is the provider's asynchronous verification
// callback for a registered payout account.
type PayoutAccountStatusRequest struct {
	DriverID uuid.UUID `json:"driver_id" binding:"required"`
	Verified bool      `json:"verified"`
}
