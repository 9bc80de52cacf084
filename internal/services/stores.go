package services

import (
	"time"

	"github.com/google/uuid"
	"github.com/ridelink/carpool-backend/internal/models"
)

// Store interfaces mirror the database repositories so services can be unit
// tested against in-memory fakes. The *database types satisfy them.

// TripStore is the trip persistence surface the services need
type TripStore interface {
	GetByID(tripID uuid.UUID) (*models.Trip, error)
	GetStops(tripID uuid.UUID) ([]models.TripStop, error)
}

// BookingStore is the booking persistence surface the services need
type BookingStore interface {
	Create(booking *models.Booking) error
	GetByID(bookingID uuid.UUID) (*models.Booking, error)
	GetByQRCode(qrCode string) (*models.Booking, error)
	GetByPNR(pnrCode string) (*models.Booking, error)

	MarkAccepted(bookingID uuid.UUID, paymentDueAt, now time.Time) error
	MarkRejected(bookingID uuid.UUID, reason *string, now time.Time) error
	MarkCheckedIn(bookingID uuid.UUID, now time.Time) error
	MarkCompleted(bookingID uuid.UUID, source models.CompletionSource, disputeDeadlineAt, now time.Time) error
	MarkDisputed(bookingID uuid.UUID, reason string, now time.Time) error
	MarkExpired(bookingID uuid.UUID, now time.Time) error
	FinalizePayment(bookingID, tripID uuid.UUID, seats int, paymentID string, now time.Time) error
	Cancel(bookingID, tripID uuid.UUID,
		expectedStatus, newStatus models.BookingStatus,
		paymentStatus models.PaymentStatus,
		penalty, refund float64,
		reason *string,
		releaseSeats int,
		now time.Time,
	) error

	FindPaymentOverdue(now time.Time, limit int) ([]models.Booking, error)
	FindAutoCompletable(now time.Time, arrivalFallback, delay time.Duration, limit int) ([]models.Booking, error)
	FindPayoutEligible(limit int) ([]models.Booking, error)
}

// PayoutLedgerStore is the ledger persistence surface the payout engine needs
type PayoutLedgerStore interface {
	GetByBookingID(bookingID uuid.UUID) (*models.PayoutLedger, error)
	Create(ledger *models.PayoutLedger) error
	ReleaseStage(ledgerID, bookingID, driverID uuid.UUID,
		stage int,
		amount float64,
		newStatus models.PayoutLedgerStatus,
		transferID *string,
		now time.Time,
	) (bool, error)
	MarkHold(ledgerID, bookingID uuid.UUID, reason string, lastError *string, now time.Time) error
	ClearHold(ledgerID, bookingID uuid.UUID, now time.Time) error
}

// DriverAccountStore is the wallet/payout-account surface the payout engine needs
type DriverAccountStore interface {
	GetByDriverID(driverID uuid.UUID) (*models.DriverAccount, error)
	UpsertPayoutAccount(driverID uuid.UUID, providerAccountID string, status models.PayoutAccountStatus) error
	SetPayoutAccountStatus(driverID uuid.UUID, status models.PayoutAccountStatus) error
}
