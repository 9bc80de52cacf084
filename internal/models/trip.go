package models

import (
	"time"

	"github.com/google/uuid"
)

// TripStatus represents the lifecycle status of a driver-posted trip
type TripStatus string

const (
	TripStatusDraft      TripStatus = "draft"
	TripStatusPublished  TripStatus = "published"
	TripStatusFull       TripStatus = "full"
	TripStatusInProgress TripStatus = "in_progress"
	TripStatusCompleted  TripStatus = "completed"
	TripStatusCancelled  TripStatus = "cancelled"
)

// TripBookingType controls whether bookings need driver approval
type TripBookingType string

const (
	// BookingTypeInstant skips driver approval; the booking goes straight to payment.
	BookingTypeInstant TripBookingType = "instant"

	// BookingTypeApproval requires the driver to accept before payment opens.
	BookingTypeApproval TripBookingType = "approval_required"
)

// Trip represents a driver-posted trip offering seats for sale.
// available_seats is mutated only through the seat inventory guard
// (TripRepository.ReserveSeats / ReleaseSeats).
type Trip struct {
	ID                   uuid.UUID       `json:"id" db:"id"`
	DriverID             uuid.UUID       `json:"driver_id" db:"driver_id"`
	Status               TripStatus      `json:"status" db:"status"`
	Origin               string          `json:"origin" db:"origin"`
	Destination          string          `json:"destination" db:"destination"`
	TotalSeats           int             `json:"total_seats" db:"total_seats"`
	AvailableSeats       int             `json:"available_seats" db:"available_seats"`
	PricePerSeat         float64         `json:"price_per_seat" db:"price_per_seat"`
	DepartureTime        time.Time       `json:"departure_time" db:"departure_time"`
	EstimatedArrivalTime *time.Time      `json:"estimated_arrival_time,omitempty" db:"estimated_arrival_time"`
	BookingType          TripBookingType `json:"booking_type" db:"booking_type"`
	CreatedAt            time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at" db:"updated_at"`
}

// Bookable reports whether new bookings may be created against the trip.
// Full trips keep a bookable status so a request against one fails on the
// availability check with a capacity error rather than a status error.
func (t *Trip) Bookable() bool {
	return t.Status == TripStatusPublished || t.Status == TripStatusFull
}

// ArrivalOrFallback returns the estimated arrival time, or departure plus
// fallback if the driver never provided one. Used by auto-completion.
func (t *Trip) ArrivalOrFallback(fallback time.Duration) time.Time {
	if t.EstimatedArrivalTime != nil {
		return *t.EstimatedArrivalTime
	}
	return t.DepartureTime.Add(fallback)
}

// TripStop is an ordered waypoint on a trip's route. CumulativeFare is the
// fare from the trip origin up to this stop, so a segment fare is the
// difference between two stops' cumulative fares.
type TripStop struct {
	ID             uuid.UUID `json:"id" db:"id"`
	TripID         uuid.UUID `json:"trip_id" db:"trip_id"`
	Position       int       `json:"position" db:"position"`
	Name           string    `json:"name" db:"name"`
	CumulativeFare float64   `json:"cumulative_fare" db:"cumulative_fare"`
}
