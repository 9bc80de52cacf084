package database

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/ridelink/carpool-backend/internal/models"
)

// TripRepository handles trip persistence and is the seat inventory guard:
// the only legitimate writer of trips.available_seats. Every mutation is a
// single conditional update so concurrent reservations against the same trip
// are linearized by the database, never by an application lock.
type TripRepository struct {
	db *sqlx.DB
}

// NewTripRepository creates a new TripRepository
func NewTripRepository(db *sqlx.DB) *TripRepository {
	return &TripRepository{db: db}
}

const tripColumns = `
	id, driver_id, status, origin, destination, total_seats, available_seats,
	price_per_seat, departure_time, estimated_arrival_time, booking_type,
	created_at, updated_at`

// GetByID retrieves a trip by ID. Returns (nil, nil) when absent.
func (r *TripRepository) GetByID(tripID uuid.UUID) (*models.Trip, error) {
	var trip models.Trip
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1`
	err := r.db.Get(&trip, query, tripID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}
	return &trip, nil
}

// Create inserts a new trip.
func (r *TripRepository) Create(trip *models.Trip) error {
	if trip.ID == uuid.Nil {
		trip.ID = uuid.New()
	}
	query := `
		INSERT INTO trips (
			id, driver_id, status, origin, destination, total_seats, available_seats,
			price_per_seat, departure_time, estimated_arrival_time, booking_type,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())`
	_, err := r.db.Exec(query,
		trip.ID, trip.DriverID, trip.Status, trip.Origin, trip.Destination,
		trip.TotalSeats, trip.AvailableSeats, trip.PricePerSeat,
		trip.DepartureTime, trip.EstimatedArrivalTime, trip.BookingType,
	)
	if err != nil {
		return fmt.Errorf("failed to create trip: %w", err)
	}
	return nil
}

// CreateWithStops inserts a trip and its route stops in one transaction.
// Stop positions are assigned from slice order.
func (r *TripRepository) CreateWithStops(trip *models.Trip, stops []models.TripStop) error {
	if trip.ID == uuid.Nil {
		trip.ID = uuid.New()
	}

	tx, err := r.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO trips (
			id, driver_id, status, origin, destination, total_seats, available_seats,
			price_per_seat, departure_time, estimated_arrival_time, booking_type,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())`
	_, err = tx.Exec(query,
		trip.ID, trip.DriverID, trip.Status, trip.Origin, trip.Destination,
		trip.TotalSeats, trip.AvailableSeats, trip.PricePerSeat,
		trip.DepartureTime, trip.EstimatedArrivalTime, trip.BookingType,
	)
	if err != nil {
		return fmt.Errorf("failed to create trip: %w", err)
	}

	stopQuery := `
		INSERT INTO trip_stops (id, trip_id, position, name, cumulative_fare)
		VALUES ($1, $2, $3, $4, $5)`
	for i := range stops {
		if stops[i].ID == uuid.Nil {
			stops[i].ID = uuid.New()
		}
		stops[i].TripID = trip.ID
		stops[i].Position = i
		_, err = tx.Exec(stopQuery,
			stops[i].ID, stops[i].TripID, stops[i].Position,
			stops[i].Name, stops[i].CumulativeFare,
		)
		if err != nil {
			return fmt.Errorf("failed to create trip stop: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trip creation: %w", err)
	}
	return nil
}

// GetStops returns a trip's route stops ordered by position.
func (r *TripRepository) GetStops(tripID uuid.UUID) ([]models.TripStop, error) {
	var stops []models.TripStop
	query := `
		SELECT id, trip_id, position, name, cumulative_fare
		FROM trip_stops
		WHERE trip_id = $1
		ORDER BY position`
	if err := r.db.Select(&stops, query, tripID); err != nil {
		return nil, fmt.Errorf("failed to get trip stops: %w", err)
	}
	return stops, nil
}

// reserveSeatsQuery decrements available_seats only if enough remain and the
// trip is still selling, and flips the trip to full when the last seat goes.
const reserveSeatsQuery = `
	UPDATE trips
	SET available_seats = available_seats - $2,
	    status = CASE WHEN available_seats - $2 = 0 THEN 'full' ELSE status END,
	    updated_at = NOW()
	WHERE id = $1
	  AND available_seats >= $2
	  AND status IN ('published', 'full')`

// releaseSeatsQuery restores capacity, capped at total_seats so a release
// for a booking that never decremented is a harmless no-op, and reopens a
// full trip for sale.
const releaseSeatsQuery = `
	UPDATE trips
	SET available_seats = LEAST(available_seats + $2, total_seats),
	    status = CASE WHEN status = 'full' THEN 'published' ELSE status END,
	    updated_at = NOW()
	WHERE id = $1
	  AND status NOT IN ('cancelled', 'completed')`

// ReserveSeats atomically takes seatCount seats from the trip. Returns false
// when the trip lacks capacity or is no longer selling; that is a business
// outcome, not a fault, and callers must not retry it automatically.
func (r *TripRepository) ReserveSeats(tripID uuid.UUID, seatCount int) (bool, error) {
	return reserveSeats(r.db, tripID, seatCount)
}

// ReserveSeatsTx is ReserveSeats inside an existing transaction, used by the
// payment finalization path.
func (r *TripRepository) ReserveSeatsTx(tx *sqlx.Tx, tripID uuid.UUID, seatCount int) (bool, error) {
	return reserveSeats(tx, tripID, seatCount)
}

// ReleaseSeats atomically returns seatCount seats to the trip.
func (r *TripRepository) ReleaseSeats(tripID uuid.UUID, seatCount int) error {
	return releaseSeats(r.db, tripID, seatCount)
}

// ReleaseSeatsTx is ReleaseSeats inside an existing transaction.
func (r *TripRepository) ReleaseSeatsTx(tx *sqlx.Tx, tripID uuid.UUID, seatCount int) error {
	return releaseSeats(tx, tripID, seatCount)
}

func reserveSeats(e sqlx.Ext, tripID uuid.UUID, seatCount int) (bool, error) {
	result, err := e.Exec(reserveSeatsQuery, tripID, seatCount)
	if err != nil {
		return false, fmt.Errorf("failed to reserve seats: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read reservation result: %w", err)
	}
	return rows == 1, nil
}

func releaseSeats(e sqlx.Ext, tripID uuid.UUID, seatCount int) error {
	if _, err := e.Exec(releaseSeatsQuery, tripID, seatCount); err != nil {
		return fmt.Errorf("failed to release seats: %w", err)
	}
	return nil
}
