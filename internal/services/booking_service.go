package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/ridelink/carpool-backend/internal/apperr"
	"github.com/ridelink/carpool-backend/internal/config"
	"github.com/ridelink/carpool-backend/internal/database"
	"github.com/ridelink/carpool-backend/internal/gateway"
	"github.com/ridelink/carpool-backend/internal/models"
	"github.com/ridelink/carpool-backend/pkg/clock"
	"github.com/ridelink/carpool-backend/pkg/codes"
	"github.com/ridelink/carpool-backend/pkg/money"
)

// CommissionPercent is the platform's flat commission on the booking total.
const CommissionPercent = 10

// codeRetryLimit bounds QR/PNR regeneration on a unique-constraint collision.
const codeRetryLimit = 10

// currencyCode is the settlement currency for charges, refunds and payouts.
const currencyCode = "LKR"

// payoutReleaser is the slice of the payout engine the booking lifecycle
// needs: the best-effort stage-10 trigger on check-in.
type payoutReleaser interface {
	ReleaseStage(ctx context.Context, bookingID uuid.UUID, stage int) (models.PayoutReleaseResult, error)
}

// BookingService drives the booking lifecycle from creation through payment,
// check-in, completion, dispute and cancellation. Every transition is
// pre-checked against the lifecycle graph and enforced again by the
// status-guarded updates in storage.
type BookingService struct {
	bookings BookingStore
	trips    TripStore
	pricing  *PricingService
	payouts  payoutReleaser
	gateway  gateway.Gateway
	notifier Notifier
	clock    clock.Clock
	config   config.BookingConfig
	logger   *logrus.Logger
}

// NewBookingService creates a new BookingService
func NewBookingService(
	bookings BookingStore,
	trips TripStore,
	pricing *PricingService,
	payouts payoutReleaser,
	gw gateway.Gateway,
	notifier Notifier,
	clk clock.Clock,
	cfg config.BookingConfig,
	logger *logrus.Logger,
) *BookingService {
	return &BookingService{
		bookings: bookings,
		trips:    trips,
		pricing:  pricing,
		payouts:  payouts,
		gateway:  gw,
		notifier: notifier,
		clock:    clk,
		config:   cfg,
		logger:   logger,
	}
}

// ============================================================================
// CREATE
// ============================================================================

// Create registers a new booking request. Seats are NOT reserved here; the
// decrement happens when the payment finalizes, so an unpaid request can
// never strand capacity.
func (s *BookingService) Create(ctx context.Context, passengerID uuid.UUID, req *models.CreateBookingRequest) (*models.Booking, error) {
	if err := req.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "invalid booking request", err)
	}

	trip, err := s.trips.GetByID(req.TripID)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, apperr.New(apperr.KindNotFound, "trip not found")
	}
	if trip.DriverID == passengerID {
		return nil, apperr.New(apperr.KindForbidden, "drivers cannot book their own trip")
	}
	if !trip.Bookable() {
		return nil, apperr.Newf(apperr.KindInvalidState, "trip is not open for booking (status %s)", trip.Status)
	}
	if trip.AvailableSeats < req.Seats {
		return nil, apperr.Newf(apperr.KindCapacityExceeded, "only %d seats available", trip.AvailableSeats)
	}

	fare, err := s.farePerSeat(ctx, trip, req)
	if err != nil {
		return nil, err
	}
	priceTotal := money.Round2(fare * float64(req.Seats))
	commission := money.Percent(priceTotal, CommissionPercent)

	details := req.ItemDetails
	if details == nil {
		details = &models.ItemDetails{Kind: models.ItemKindPerson}
	}
	itemKind, itemPayload, err := details.Marshal()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "invalid item details", err)
	}

	now := s.clock.Now()
	booking := &models.Booking{
		TripID:           trip.ID,
		PassengerID:      passengerID,
		Seats:            req.Seats,
		PriceTotal:       priceTotal,
		CommissionAmount: commission,
		PaymentStatus:    models.PaymentStatusPending,
		ItemKind:         itemKind,
		ItemPayload:      itemPayload,
		BoardingStopID:   req.BoardingStopID,
		AlightingStopID:  req.AlightingStopID,
		DisputeStatus:    models.DisputeStatusNone,
	}
	if trip.BookingType == models.BookingTypeInstant {
		booking.Status = models.BookingStatusAwaitingPayment
		due := now.Add(s.config.PaymentHold)
		booking.PaymentDueAt = &due
	} else {
		booking.Status = models.BookingStatusPending
	}

	if err := s.createWithFreshCodes(booking); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":  booking.ID,
		"trip_id":     trip.ID,
		"seats":       booking.Seats,
		"price_total": booking.PriceTotal,
		"status":      booking.Status,
	}).Info("Booking created")

	s.notifier.BookingRequested(booking)
	return booking, nil
}

func (s *BookingService) farePerSeat(ctx context.Context, trip *models.Trip, req *models.CreateBookingRequest) (float64, error) {
	var segment *models.SegmentContext
	if req.BoardingStopID != nil && req.AlightingStopID != nil {
		segment = &models.SegmentContext{
			BoardingStopID:  *req.BoardingStopID,
			AlightingStopID: *req.AlightingStopID,
		}
	}
	return s.pricing.FarePerSeat(ctx, trip, segment)
}

// createWithFreshCodes inserts the booking, regenerating the QR and PNR
// codes on a unique-constraint collision. Collisions are astronomically
// rare; the retry cap exists so a broken constraint cannot loop forever.
func (s *BookingService) createWithFreshCodes(booking *models.Booking) error {
	for attempt := 0; attempt < codeRetryLimit; attempt++ {
		qr, err := codes.NewQRCode()
		if err != nil {
			return fmt.Errorf("failed to generate QR code: %w", err)
		}
		pnr, err := codes.NewPNR()
		if err != nil {
			return fmt.Errorf("failed to generate PNR code: %w", err)
		}
		booking.QRCode = qr
		booking.PNRCode = pnr

		err = s.bookings.Create(booking)
		if err == nil {
			return nil
		}
		if !errors.Is(err, database.ErrDuplicateCode) {
			return err
		}
		s.logger.WithField("attempt", attempt+1).Warn("Booking code collision, regenerating")
	}
	return fmt.Errorf("failed to generate unique booking codes after %d attempts", codeRetryLimit)
}

// ============================================================================
// DRIVER APPROVAL
// ============================================================================

// Accept approves a pending booking request and opens its payment window.
func (s *BookingService) Accept(bookingID, driverID uuid.UUID) (*models.Booking, error) {
	booking, trip, err := s.bookingWithTrip(bookingID)
	if err != nil {
		return nil, err
	}
	if trip.DriverID != driverID {
		return nil, apperr.New(apperr.KindForbidden, "only the trip driver can accept a booking")
	}
	if !CanTransition(booking.Status, models.BookingStatusAwaitingPayment) {
		return nil, apperr.Newf(apperr.KindInvalidState, "booking cannot be accepted from status %s", booking.Status)
	}

	now := s.clock.Now()
	due := now.Add(s.config.PaymentHold)
	if err := s.bookings.MarkAccepted(booking.ID, due, now); err != nil {
		return nil, s.mapConflict(err, "booking left pending")
	}

	booking.Status = models.BookingStatusAwaitingPayment
	booking.AcceptedAt = &now
	booking.PaymentDueAt = &due
	return booking, nil
}

// Reject terminally declines a pending booking request.
func (s *BookingService) Reject(bookingID, driverID uuid.UUID, req *models.RejectBookingRequest) (*models.Booking, error) {
	booking, trip, err := s.bookingWithTrip(bookingID)
	if err != nil {
		return nil, err
	}
	if trip.DriverID != driverID {
		return nil, apperr.New(apperr.KindForbidden, "only the trip driver can reject a booking")
	}
	if !CanTransition(booking.Status, models.BookingStatusRejected) {
		return nil, apperr.Newf(apperr.KindInvalidState, "booking cannot be rejected from status %s", booking.Status)
	}

	now := s.clock.Now()
	if err := s.bookings.MarkRejected(booking.ID, req.Reason, now); err != nil {
		return nil, s.mapConflict(err, "booking left pending")
	}

	booking.Status = models.BookingStatusRejected
	booking.RejectionReason = req.Reason
	s.notifier.BookingCancelled(booking)
	return booking, nil
}

// ============================================================================
// PAYMENT
// ============================================================================

// ProcessPayment charges the passenger and finalizes the seat decrement in
// one transaction. A gateway failure leaves the booking untouched so the
// same call can be re-issued. If the charge succeeds but finalization fails
// (capacity raced away, or a concurrent conflicting transition), the charge
// is compensated with an immediate refund; a refund failure on that path is
// the one place money can be stranded and is surfaced as a reconciliation
// error.
func (s *BookingService) ProcessPayment(ctx context.Context, bookingID, passengerID uuid.UUID, req *models.ProcessPaymentRequest) (*models.Booking, error) {
	booking, err := s.bookings.GetByID(bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, apperr.New(apperr.KindNotFound, "booking not found")
	}
	if booking.PassengerID != passengerID {
		return nil, apperr.New(apperr.KindForbidden, "only the booking passenger can pay")
	}
	if booking.Status != models.BookingStatusAwaitingPayment {
		return nil, apperr.Newf(apperr.KindInvalidState, "booking is not awaiting payment (status %s)", booking.Status)
	}

	now := s.clock.Now()
	if booking.PaymentOverdue(now) {
		// Lazy expiry: the sweep has not caught this booking yet.
		if err := s.bookings.MarkExpired(booking.ID, now); err != nil && !errors.Is(err, database.ErrStatusConflict) {
			s.logger.WithError(err).WithField("booking_id", booking.ID).Error("Failed to expire overdue booking inline")
		}
		return nil, apperr.New(apperr.KindInvalidState, "payment window has closed")
	}

	charge, err := s.gateway.Charge(ctx, &gateway.ChargeRequest{
		InvoiceID:    booking.ID.String(),
		PaymentToken: req.PaymentToken,
		Amount:       booking.PriceTotal,
		CurrencyCode: currencyCode,
		Description:  fmt.Sprintf("Booking %s (%d seats)", booking.PNRCode, booking.Seats),
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindGatewayFailure, "payment charge failed", err)
	}

	err = s.bookings.FinalizePayment(booking.ID, booking.TripID, booking.Seats, charge.PaymentID, now)
	if err != nil {
		return nil, s.compensateCharge(ctx, booking, charge.PaymentID, err)
	}

	booking.Status = models.BookingStatusConfirmed
	booking.PaymentStatus = models.PaymentStatusPaid
	booking.PaymentID = &charge.PaymentID
	booking.PaidAt = &now
	booking.PaymentDueAt = nil

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"payment_id": charge.PaymentID,
		"amount":     booking.PriceTotal,
	}).Info("Payment finalized")

	s.notifier.BookingConfirmed(booking)
	return booking, nil
}

// compensateCharge refunds a captured payment whose local finalization
// failed, and classifies the outcome for the caller.
func (s *BookingService) compensateCharge(ctx context.Context, booking *models.Booking, paymentID string, cause error) error {
	_, refundErr := s.gateway.Refund(ctx, paymentID, booking.PriceTotal, "booking finalization failed")
	if refundErr != nil {
		s.logger.WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"payment_id": paymentID,
			"amount":     booking.PriceTotal,
			"cause":      cause.Error(),
			"error":      refundErr.Error(),
		}).Error("RECONCILIATION REQUIRED: charge captured but finalization and refund both failed")
		return apperr.Wrap(apperr.KindDataIntegrityRisk,
			fmt.Sprintf("payment %s captured but not finalized and refund failed", paymentID), refundErr)
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"payment_id": paymentID,
	}).Warn("Charge compensated after finalization failure")

	switch {
	case errors.Is(cause, database.ErrNoSeats):
		return apperr.New(apperr.KindCapacityExceeded, "no seats left, payment refunded")
	case errors.Is(cause, database.ErrStatusConflict):
		return apperr.New(apperr.KindInvalidState, "booking changed concurrently, payment refunded")
	default:
		return fmt.Errorf("failed to finalize payment (refunded): %w", cause)
	}
}

// ============================================================================
// CHECK-IN
// ============================================================================

// CheckIn boards a passenger from a scanned QR code and kicks off the
// stage-10 payout release.
func (s *BookingService) CheckIn(ctx context.Context, driverID uuid.UUID, qrCode string) (*models.Booking, error) {
	booking, err := s.bookings.GetByQRCode(qrCode)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, apperr.New(apperr.KindNotFound, "booking not found")
	}
	return s.checkIn(ctx, booking, driverID)
}

// CheckInByPNR boards a passenger from a hand-typed PNR code. The code is
// validated before any lookup; a valid code on the wrong trip is an
// invalid-state rejection, not a not-found, so drivers can tell a typo from
// a wrong-vehicle scan.
func (s *BookingService) CheckInByPNR(ctx context.Context, driverID uuid.UUID, req *models.CheckInByPNRRequest) (*models.Booking, error) {
	pnr := codes.NormalizePNR(req.PNRCode)
	if !codes.ValidPNR(pnr) {
		return nil, apperr.New(apperr.KindValidation, "PNR code must be 6 letters or digits")
	}

	booking, err := s.bookings.GetByPNR(pnr)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, apperr.New(apperr.KindNotFound, "booking not found")
	}
	if booking.TripID != req.TripID {
		return nil, apperr.New(apperr.KindInvalidState, "PNR code belongs to a different trip")
	}
	return s.checkIn(ctx, booking, driverID)
}

func (s *BookingService) checkIn(ctx context.Context, booking *models.Booking, driverID uuid.UUID) (*models.Booking, error) {
	trip, err := s.trips.GetByID(booking.TripID)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, apperr.New(apperr.KindNotFound, "trip not found")
	}
	if trip.DriverID != driverID {
		return nil, apperr.New(apperr.KindForbidden, "only the trip driver can check in passengers")
	}
	if !CanTransition(booking.Status, models.BookingStatusCheckedIn) {
		return nil, apperr.Newf(apperr.KindInvalidState, "booking cannot be checked in from status %s", booking.Status)
	}

	now := s.clock.Now()
	if err := s.bookings.MarkCheckedIn(booking.ID, now); err != nil {
		return nil, s.mapConflict(err, "booking left confirmed")
	}
	booking.Status = models.BookingStatusCheckedIn
	booking.CheckedInAt = &now

	// Best effort: a payout hiccup must not fail the boarding.
	if _, err := s.payouts.ReleaseStage(ctx, booking.ID, models.PayoutStage10); err != nil {
		s.logger.WithError(err).WithField("booking_id", booking.ID).Warn("Stage-10 payout release failed at check-in")
	}
	return booking, nil
}

// ============================================================================
// COMPLETION & DISPUTE
// ============================================================================

// CompleteByPassenger marks the ride finished and opens the dispute window.
func (s *BookingService) CompleteByPassenger(bookingID, passengerID uuid.UUID) (*models.Booking, error) {
	booking, err := s.bookings.GetByID(bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, apperr.New(apperr.KindNotFound, "booking not found")
	}
	if booking.PassengerID != passengerID {
		return nil, apperr.New(apperr.KindForbidden, "only the booking passenger can complete the ride")
	}
	if !CanTransition(booking.Status, models.BookingStatusCompleted) {
		return nil, apperr.Newf(apperr.KindInvalidState, "booking cannot be completed from status %s", booking.Status)
	}

	now := s.clock.Now()
	deadline := now.Add(s.config.DisputeWindow)
	if err := s.bookings.MarkCompleted(booking.ID, models.CompletionSourcePassenger, deadline, now); err != nil {
		return nil, s.mapConflict(err, "booking left checked_in")
	}

	booking.Status = models.BookingStatusCompleted
	booking.CompletedAt = &now
	booking.DisputeDeadlineAt = &deadline
	source := models.CompletionSourcePassenger
	booking.CompletionSource = &source
	return booking, nil
}

// RaiseDispute opens a dispute on a completed booking. Allowed strictly
// before the dispute deadline and only while the stage-90 payout is still
// unreleased; a dispute freezes all further payout progress.
func (s *BookingService) RaiseDispute(bookingID, callerID uuid.UUID, req *models.RaiseDisputeRequest) (*models.Booking, error) {
	if err := req.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "invalid dispute request", err)
	}

	booking, trip, err := s.bookingWithTrip(bookingID)
	if err != nil {
		return nil, err
	}
	if callerID != booking.PassengerID && callerID != trip.DriverID {
		return nil, apperr.New(apperr.KindForbidden, "only trip participants can open a dispute")
	}
	if booking.Status != models.BookingStatusCompleted && booking.Status != models.BookingStatusDisputed {
		return nil, apperr.Newf(apperr.KindInvalidState, "disputes can only be opened on completed bookings (status %s)", booking.Status)
	}
	now := s.clock.Now()
	if booking.DisputeDeadlineAt == nil || !now.Before(*booking.DisputeDeadlineAt) {
		return nil, apperr.New(apperr.KindInvalidState, "dispute window has closed")
	}
	if booking.Payout90ReleasedAt != nil {
		return nil, apperr.New(apperr.KindInvalidState, "payout has already been released")
	}

	if err := s.bookings.MarkDisputed(booking.ID, req.Reason, now); err != nil {
		return nil, s.mapConflict(err, "booking left completed")
	}

	booking.Status = models.BookingStatusDisputed
	booking.DisputeStatus = models.DisputeStatusOpen
	booking.DisputeReason = &req.Reason
	s.notifier.DisputeOpened(booking)
	return booking, nil
}

// ============================================================================
// CANCELLATION
// ============================================================================

// RefundPercent maps hours-until-departure to the refund tier.
func RefundPercent(now, departure time.Time) int {
	until := departure.Sub(now)
	switch {
	case until < 2*time.Hour:
		return 0
	case until < 24*time.Hour:
		return 50
	default:
		return 100
	}
}

// Cancel terminally cancels a booking before check-in. The refund tier
// depends only on how far away departure is; seats are returned only when
// the booking had actually reserved them (confirmed).
func (s *BookingService) Cancel(ctx context.Context, bookingID, callerID uuid.UUID, req *models.CancelBookingRequest) (*models.Booking, error) {
	booking, trip, err := s.bookingWithTrip(bookingID)
	if err != nil {
		return nil, err
	}

	var newStatus models.BookingStatus
	switch callerID {
	case booking.PassengerID:
		newStatus = models.BookingStatusCancelledByPassenger
	case trip.DriverID:
		newStatus = models.BookingStatusCancelledByDriver
	default:
		return nil, apperr.New(apperr.KindForbidden, "only trip participants can cancel a booking")
	}
	if !CanTransition(booking.Status, newStatus) {
		return nil, apperr.Newf(apperr.KindInvalidState, "booking cannot be cancelled from status %s", booking.Status)
	}

	now := s.clock.Now()
	pct := RefundPercent(now, trip.DepartureTime)
	refund := 0.0
	penalty := 0.0
	refundID := ""
	paymentStatus := booking.PaymentStatus
	if booking.PaymentStatus == models.PaymentStatusPaid {
		refund = money.Percent(booking.PriceTotal, pct)
		penalty = money.Round2(booking.PriceTotal - refund)

		if pct > 0 {
			result, err := s.gateway.Refund(ctx, deref(booking.PaymentID), refund, "booking cancelled")
			if err != nil {
				return nil, apperr.Wrap(apperr.KindGatewayFailure, "refund failed", err)
			}
			refundID = result.RefundID
			if pct == 100 {
				paymentStatus = models.PaymentStatusRefunded
			} else {
				paymentStatus = models.PaymentStatusPartiallyRefunded
			}
		}
	}

	releaseSeats := 0
	if booking.Status == models.BookingStatusConfirmed {
		releaseSeats = booking.Seats
	}

	err = s.bookings.Cancel(booking.ID, booking.TripID,
		booking.Status, newStatus, paymentStatus,
		penalty, refund, req.Reason, releaseSeats, now)
	if err != nil {
		if refundID != "" {
			return nil, s.refundedCancelFailure(booking, refundID, refund, err)
		}
		return nil, s.mapConflict(err, "booking changed concurrently")
	}

	booking.Status = newStatus
	booking.PaymentStatus = paymentStatus
	booking.PenaltyAmount = penalty
	booking.RefundAmount = refund
	booking.CancelledAt = &now
	booking.CancellationReason = req.Reason

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"status":     newStatus,
		"refund":     refund,
		"penalty":    penalty,
	}).Info("Booking cancelled")

	s.notifier.BookingCancelled(booking)
	return booking, nil
}

// refundedCancelFailure classifies a cancellation that failed after the
// refund already went through. The money has moved while the booking kept
// its old status, so the caller must not see a plain conflict that suggests
// nothing happened.
func (s *BookingService) refundedCancelFailure(booking *models.Booking, refundID string, amount float64, cause error) error {
	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"refund_id":  refundID,
		"amount":     amount,
		"cause":      cause.Error(),
	}).Error("RECONCILIATION REQUIRED: refund issued but booking cancellation failed")
	return apperr.Wrap(apperr.KindDataIntegrityRisk,
		fmt.Sprintf("refund %s issued but booking was not cancelled", refundID), cause)
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *BookingService) bookingWithTrip(bookingID uuid.UUID) (*models.Booking, *models.Trip, error) {
	booking, err := s.bookings.GetByID(bookingID)
	if err != nil {
		return nil, nil, err
	}
	if booking == nil {
		return nil, nil, apperr.New(apperr.KindNotFound, "booking not found")
	}
	trip, err := s.trips.GetByID(booking.TripID)
	if err != nil {
		return nil, nil, err
	}
	if trip == nil {
		return nil, nil, apperr.New(apperr.KindNotFound, "trip not found")
	}
	return booking, trip, nil
}

func (s *BookingService) mapConflict(err error, message string) error {
	if errors.Is(err, database.ErrStatusConflict) {
		return apperr.Wrap(apperr.KindInvalidState, message, err)
	}
	return err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
