package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/ridelink/carpool-backend/internal/models"
)

var (
	// ErrDuplicateCode indicates a qr_code/pnr_code unique constraint hit.
	// Callers regenerate the codes and retry the insert.
	ErrDuplicateCode = errors.New("booking code already in use")

	// ErrStatusConflict indicates a guarded status update matched no row:
	// the booking moved to another status concurrently.
	ErrStatusConflict = errors.New("booking is not in the expected status")

	// ErrNoSeats indicates the seat guard rejected the reservation inside a
	// finalization transaction.
	ErrNoSeats = errors.New("not enough seats available")
)

// uniqueViolation is the Postgres error code for unique constraint breaches
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

// BookingRepository handles booking persistence. All lifecycle transitions go
// through status-guarded conditional updates so two conflicting requests can
// never both win.
type BookingRepository struct {
	db    *sqlx.DB
	trips *TripRepository
}

// NewBookingRepository creates a new BookingRepository. The trip repository
// is injected because booking finalization, expiry and cancellation adjust
// seat capacity inside the same transaction.
func NewBookingRepository(db *sqlx.DB, trips *TripRepository) *BookingRepository {
	return &BookingRepository{db: db, trips: trips}
}

const bookingColumns = `
	id, trip_id, passenger_id, status, seats, price_total, commission_amount,
	payment_status, payment_id, qr_code, pnr_code, item_kind, item_payload,
	boarding_stop_id, alighting_stop_id,
	accepted_at, payment_due_at, paid_at, checked_in_at, completed_at,
	completion_source, dispute_status, dispute_reason, dispute_deadline_at,
	cancelled_at, cancellation_reason, rejection_reason,
	penalty_amount, refund_amount,
	payout10_released_at, payout90_released_at, payout_hold_reason,
	created_at, updated_at`

// Create inserts a new booking. Returns ErrDuplicateCode when the generated
// qr_code or pnr_code collides with an existing booking.
func (r *BookingRepository) Create(booking *models.Booking) error {
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	booking.CreatedAt = time.Now()
	booking.UpdatedAt = booking.CreatedAt

	query := `
		INSERT INTO bookings (
			id, trip_id, passenger_id, status, seats, price_total, commission_amount,
			payment_status, qr_code, pnr_code, item_kind, item_payload,
			boarding_stop_id, alighting_stop_id, payment_due_at,
			dispute_status, penalty_amount, refund_amount, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, 0, 0, $17, $18
		)`

	_, err := r.db.Exec(query,
		booking.ID, booking.TripID, booking.PassengerID, booking.Status,
		booking.Seats, booking.PriceTotal, booking.CommissionAmount,
		booking.PaymentStatus, booking.QRCode, booking.PNRCode,
		booking.ItemKind, booking.ItemPayload,
		booking.BoardingStopID, booking.AlightingStopID, booking.PaymentDueAt,
		booking.DisputeStatus, booking.CreatedAt, booking.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCode
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// GetByID retrieves a booking by ID. Returns (nil, nil) when absent.
func (r *BookingRepository) GetByID(bookingID uuid.UUID) (*models.Booking, error) {
	return r.getWhere(`id = $1`, bookingID)
}

// GetByQRCode retrieves a booking by its QR payload.
func (r *BookingRepository) GetByQRCode(qrCode string) (*models.Booking, error) {
	return r.getWhere(`qr_code = $1`, qrCode)
}

// GetByPNR retrieves a booking by its PNR code. Trip membership is checked
// by the caller so a mismatch can be distinguished from a missing code.
func (r *BookingRepository) GetByPNR(pnrCode string) (*models.Booking, error) {
	return r.getWhere(`pnr_code = $1`, pnrCode)
}

func (r *BookingRepository) getWhere(where string, arg interface{}) (*models.Booking, error) {
	var booking models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE ` + where
	err := r.db.Get(&booking, query, arg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

// ListByPassenger returns a passenger's bookings, newest first.
func (r *BookingRepository) ListByPassenger(passengerID uuid.UUID, limit, offset int) ([]models.Booking, error) {
	var bookings []models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE passenger_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	if err := r.db.Select(&bookings, query, passengerID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// ListByTrip returns all bookings against a trip, newest first.
func (r *BookingRepository) ListByTrip(tripID uuid.UUID) ([]models.Booking, error) {
	var bookings []models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE trip_id = $1 ORDER BY created_at DESC`
	if err := r.db.Select(&bookings, query, tripID); err != nil {
		return nil, fmt.Errorf("failed to list trip bookings: %w", err)
	}
	return bookings, nil
}

// ============================================================================
// GUARDED STATUS TRANSITIONS
// ============================================================================

// MarkAccepted moves a pending booking to awaiting_payment and opens its
// payment window. Returns ErrStatusConflict if the booking left pending.
func (r *BookingRepository) MarkAccepted(bookingID uuid.UUID, paymentDueAt, now time.Time) error {
	query := `
		UPDATE bookings
		SET status = 'awaiting_payment', accepted_at = $2, payment_due_at = $3, updated_at = $2
		WHERE id = $1 AND status = 'pending'`
	return r.guarded(query, bookingID, now, paymentDueAt)
}

// MarkRejected terminally declines a pending booking.
func (r *BookingRepository) MarkRejected(bookingID uuid.UUID, reason *string, now time.Time) error {
	query := `
		UPDATE bookings
		SET status = 'rejected', rejection_reason = $2, updated_at = $3
		WHERE id = $1 AND status = 'pending'`
	return r.guarded(query, bookingID, reason, now)
}

// MarkCheckedIn moves a confirmed booking to checked_in.
func (r *BookingRepository) MarkCheckedIn(bookingID uuid.UUID, now time.Time) error {
	query := `
		UPDATE bookings
		SET status = 'checked_in', checked_in_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'confirmed'`
	return r.guarded(query, bookingID, now)
}

// MarkCompleted moves a checked_in booking to completed and opens the
// dispute window.
func (r *BookingRepository) MarkCompleted(bookingID uuid.UUID, source models.CompletionSource, disputeDeadlineAt, now time.Time) error {
	query := `
		UPDATE bookings
		SET status = 'completed', completed_at = $2, completion_source = $3,
		    dispute_status = 'none', dispute_deadline_at = $4, updated_at = $2
		WHERE id = $1 AND status = 'checked_in'`
	return r.guarded(query, bookingID, now, source, disputeDeadlineAt)
}

// MarkDisputed opens a dispute on a completed (or already disputed) booking.
func (r *BookingRepository) MarkDisputed(bookingID uuid.UUID, reason string, now time.Time) error {
	query := `
		UPDATE bookings
		SET status = 'disputed', dispute_status = 'open', dispute_reason = $2,
		    payout_hold_reason = $3, updated_at = $4
		WHERE id = $1 AND status IN ('completed', 'disputed')`
	return r.guarded(query, bookingID, reason, models.HoldReasonDisputeOpen, now)
}

func (r *BookingRepository) guarded(query string, args ...interface{}) error {
	result, err := r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if rows == 0 {
		return ErrStatusConflict
	}
	return nil
}

// ============================================================================
// TRANSACTIONAL TRANSITIONS (booking + trip touched atomically)
// ============================================================================

// FinalizePayment confirms a paid booking inside a single transaction: the
// seat decrement and the status flip commit together or not at all. Returns
// ErrNoSeats when a faster concurrent booking consumed the capacity, and
// ErrStatusConflict when the booking left awaiting_payment meanwhile. In
// both cases the charge has already succeeded at the gateway and the caller
// owns the compensation.
func (r *BookingRepository) FinalizePayment(
	bookingID, tripID uuid.UUID,
	seats int,
	paymentID string,
	now time.Time,
) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	reserved, err := r.trips.ReserveSeatsTx(tx, tripID, seats)
	if err != nil {
		return err
	}
	if !reserved {
		return ErrNoSeats
	}

	result, err := tx.Exec(`
		UPDATE bookings
		SET status = 'confirmed', payment_status = 'paid', payment_id = $2,
		    paid_at = $3, payment_due_at = NULL, updated_at = $3
		WHERE id = $1 AND status = 'awaiting_payment'`,
		bookingID, paymentID, now,
	)
	if err != nil {
		return fmt.Errorf("failed to confirm booking: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read confirmation result: %w", err)
	}
	if rows == 0 {
		return ErrStatusConflict
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit payment finalization: %w", err)
	}
	return nil
}

// MarkExpired terminally expires an unpaid booking. No seats are released:
// only confirmed bookings hold capacity, and a blanket release here could
// hand back a seat another paid booking legitimately holds.
func (r *BookingRepository) MarkExpired(bookingID uuid.UUID, now time.Time) error {
	query := `
		UPDATE bookings
		SET status = 'expired', updated_at = $2
		WHERE id = $1 AND status IN ('pending', 'awaiting_payment')`
	return r.guarded(query, bookingID, now)
}

// Cancel terminally cancels a booking and, when it held seats, returns them
// to the trip in the same transaction. expectedStatus guards against a
// concurrent conflicting transition.
func (r *BookingRepository) Cancel(
	bookingID, tripID uuid.UUID,
	expectedStatus, newStatus models.BookingStatus,
	paymentStatus models.PaymentStatus,
	penalty, refund float64,
	reason *string,
	releaseSeats int,
	now time.Time,
) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		UPDATE bookings
		SET status = $3, payment_status = $4, penalty_amount = $5, refund_amount = $6,
		    cancellation_reason = $7, cancelled_at = $8, updated_at = $8
		WHERE id = $1 AND status = $2`,
		bookingID, expectedStatus, newStatus, paymentStatus, penalty, refund, reason, now,
	)
	if err != nil {
		return fmt.Errorf("failed to cancel booking: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read cancellation result: %w", err)
	}
	if rows == 0 {
		return ErrStatusConflict
	}

	if releaseSeats > 0 {
		if err := r.trips.ReleaseSeatsTx(tx, tripID, releaseSeats); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cancellation: %w", err)
	}
	return nil
}

// ============================================================================
// SWEEP QUERIES (Background Job Support)
// ============================================================================

// FindPaymentOverdue returns bookings whose payment window closed before
// now. Only awaiting_payment bookings carry a deadline; pending approval
// requests have none and stay until the driver answers or a party cancels.
func (r *BookingRepository) FindPaymentOverdue(now time.Time, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE status = 'awaiting_payment'
		  AND payment_due_at IS NOT NULL
		  AND payment_due_at < $1
		ORDER BY payment_due_at
		LIMIT $2`
	if err := r.db.Select(&bookings, query, now, limit); err != nil {
		return nil, fmt.Errorf("failed to find overdue bookings: %w", err)
	}
	return bookings, nil
}

// FindAutoCompletable returns checked_in bookings whose trip should long be
// over: estimated arrival (or departure plus the fallback duration) plus the
// auto-completion delay lies before now.
func (r *BookingRepository) FindAutoCompletable(now time.Time, arrivalFallback, delay time.Duration, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	query := `
		SELECT ` + bookingSelectAlias + ` FROM bookings b
		JOIN trips t ON t.id = b.trip_id
		WHERE b.status = 'checked_in'
		  AND COALESCE(t.estimated_arrival_time, t.departure_time + make_interval(secs => $2))
		      + make_interval(secs => $3) <= $1
		ORDER BY b.checked_in_at
		LIMIT $4`
	err := r.db.Select(&bookings, query, now, arrivalFallback.Seconds(), delay.Seconds(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find auto-completable bookings: %w", err)
	}
	return bookings, nil
}

// FindPayoutEligible returns paid bookings with at least one unreleased
// payout stage, oldest first.
func (r *BookingRepository) FindPayoutEligible(limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE payment_status = 'paid'
		  AND status IN ('checked_in', 'completed')
		  AND (payout10_released_at IS NULL OR payout90_released_at IS NULL)
		ORDER BY paid_at
		LIMIT $1`
	if err := r.db.Select(&bookings, query, limit); err != nil {
		return nil, fmt.Errorf("failed to find payout-eligible bookings: %w", err)
	}
	return bookings, nil
}

// bookingSelectAlias is bookingColumns qualified for joined queries.
const bookingSelectAlias = `
	b.id, b.trip_id, b.passenger_id, b.status, b.seats, b.price_total, b.commission_amount,
	b.payment_status, b.payment_id, b.qr_code, b.pnr_code, b.item_kind, b.item_payload,
	b.boarding_stop_id, b.alighting_stop_id,
	b.accepted_at, b.payment_due_at, b.paid_at, b.checked_in_at, b.completed_at,
	b.completion_source, b.dispute_status, b.dispute_reason, b.dispute_deadline_at,
	b.cancelled_at, b.cancellation_reason, b.rejection_reason,
	b.penalty_amount, b.refund_amount,
	b.payout10_released_at, b.payout90_released_at, b.payout_hold_reason,
	b.created_at, b.updated_at`
