package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/ridelink/carpool-backend/internal/apperr"
	"github.com/ridelink/carpool-backend/internal/database"
	"github.com/ridelink/carpool-backend/internal/gateway"
	"github.com/ridelink/carpool-backend/internal/models"
	"github.com/ridelink/carpool-backend/pkg/clock"
	"github.com/ridelink/carpool-backend/pkg/money"
)

// PayoutService releases driver earnings in two stages: 10% of the net at
// check-in, the remaining 90% once the booking is completed and the dispute
// window has closed. Every release is idempotent - repeated through the
// stage timestamps locally and the idempotency key at the provider - so the
// settlement sweep can retry freely.
type PayoutService struct {
	bookings BookingStore
	trips    TripStore
	ledgers  PayoutLedgerStore
	accounts DriverAccountStore
	gateway  gateway.Gateway
	clock    clock.Clock
	logger   *logrus.Logger
}

// NewPayoutService creates a new PayoutService
func NewPayoutService(
	bookings BookingStore,
	trips TripStore,
	ledgers PayoutLedgerStore,
	accounts DriverAccountStore,
	gw gateway.Gateway,
	clk clock.Clock,
	logger *logrus.Logger,
) *PayoutService {
	return &PayoutService{
		bookings: bookings,
		trips:    trips,
		ledgers:  ledgers,
		accounts: accounts,
		gateway:  gw,
		clock:    clk,
		logger:   logger,
	}
}

// ReleaseStage attempts one payout stage for a booking. Outcomes:
//   - Released: money moved (or the stage amount was zero) and the stage is stamped.
//   - Skipped:  the stage was already released, or its preconditions are not met yet.
//   - Held:     the ledger was parked (dispute open, unverified account, gateway error)
//     and the sweep will retry once the reason clears.
func (s *PayoutService) ReleaseStage(ctx context.Context, bookingID uuid.UUID, stage int) (models.PayoutReleaseResult, error) {
	if stage != models.PayoutStage10 && stage != models.PayoutStage90 {
		return "", apperr.Newf(apperr.KindValidation, "unknown payout stage %d", stage)
	}

	booking, err := s.bookings.GetByID(bookingID)
	if err != nil {
		return "", err
	}
	if booking == nil {
		return "", apperr.New(apperr.KindNotFound, "booking not found")
	}
	if booking.PaymentStatus != models.PaymentStatusPaid {
		return models.PayoutSkipped, nil
	}

	if stage == models.PayoutStage90 {
		// Stage 90 must never run ahead of stage 10. Ensure it first as an
		// explicit pipeline step, then re-fetch and re-check.
		if booking.Payout10ReleasedAt == nil {
			if _, err := s.releaseStage(ctx, booking, models.PayoutStage10); err != nil {
				return "", err
			}
			booking, err = s.bookings.GetByID(bookingID)
			if err != nil {
				return "", err
			}
			if booking == nil || booking.Payout10ReleasedAt == nil {
				return models.PayoutSkipped, nil
			}
		}
	}
	return s.releaseStage(ctx, booking, stage)
}

func (s *PayoutService) releaseStage(ctx context.Context, booking *models.Booking, stage int) (models.PayoutReleaseResult, error) {
	// An open dispute freezes every stage until resolved out of band.
	if booking.DisputeStatus == models.DisputeStatusOpen {
		return models.PayoutHeld, nil
	}

	// Idempotency check against the booking's stage stamp.
	switch stage {
	case models.PayoutStage10:
		if booking.Payout10ReleasedAt != nil {
			return models.PayoutSkipped, nil
		}
		if booking.Status != models.BookingStatusCheckedIn && booking.Status != models.BookingStatusCompleted {
			return models.PayoutSkipped, nil
		}
	case models.PayoutStage90:
		if booking.Payout90ReleasedAt != nil {
			return models.PayoutSkipped, nil
		}
		if booking.Status != models.BookingStatusCompleted {
			return models.PayoutSkipped, nil
		}
		if booking.DisputeDeadlineAt == nil || s.clock.Now().Before(*booking.DisputeDeadlineAt) {
			return models.PayoutSkipped, nil
		}
	}

	ledger, err := s.ensureLedger(booking)
	if err != nil {
		return "", err
	}

	now := s.clock.Now()

	account, err := s.accounts.GetByDriverID(ledger.DriverID)
	if err != nil {
		return "", err
	}
	if account == nil || !account.PayoutReady() {
		if err := s.ledgers.MarkHold(ledger.ID, booking.ID, models.HoldReasonAccountNotVerified, nil, now); err != nil {
			return "", err
		}
		return models.PayoutHeld, nil
	}

	amount := ledger.StageAmount(stage)
	newStatus := models.PayoutLedgerStatusPartialReleased
	if stage == models.PayoutStage90 {
		newStatus = models.PayoutLedgerStatusReleased
	}

	var transferID *string
	if amount > 0 {
		result, err := s.gateway.ReleasePayout(ctx, &gateway.PayoutRequest{
			IdempotencyKey:    fmt.Sprintf("booking-%s-stage-%d", booking.ID, stage),
			ProviderAccountID: deref(account.ProviderAccountID),
			Amount:            amount,
			CurrencyCode:      currencyCode,
			Description:       fmt.Sprintf("Payout stage %d for booking %s", stage, booking.PNRCode),
		})
		if err != nil {
			msg := err.Error()
			if holdErr := s.ledgers.MarkHold(ledger.ID, booking.ID, models.HoldReasonGatewayError, &msg, now); holdErr != nil {
				return "", holdErr
			}
			s.logger.WithFields(logrus.Fields{
				"booking_id": booking.ID,
				"stage":      stage,
				"amount":     amount,
				"error":      msg,
			}).Warn("Payout release held after gateway failure")
			return models.PayoutHeld, nil
		}
		transferID = &result.TransferID
	}

	applied, err := s.ledgers.ReleaseStage(ledger.ID, booking.ID, ledger.DriverID, stage, amount, newStatus, transferID, now)
	if err != nil {
		return "", err
	}
	if !applied {
		// A concurrent release won; the gateway side was idempotent too.
		return models.PayoutSkipped, nil
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"driver_id":  ledger.DriverID,
		"stage":      stage,
		"amount":     amount,
	}).Info("Payout stage released")
	return models.PayoutReleased, nil
}

// ensureLedger lazily creates the booking's ledger. Amounts are derived
// once, stored, and never recomputed; the rounding remainder of the split
// goes to stage 90 so the two stages always sum to the net exactly.
func (s *PayoutService) ensureLedger(booking *models.Booking) (*models.PayoutLedger, error) {
	ledger, err := s.ledgers.GetByBookingID(booking.ID)
	if err != nil {
		return nil, err
	}
	if ledger != nil {
		return ledger, nil
	}

	trip, err := s.trips.GetByID(booking.TripID)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, apperr.New(apperr.KindNotFound, "trip not found")
	}

	net := money.Round2(booking.PriceTotal - booking.CommissionAmount)
	stage10, stage90 := money.SplitStaged(net)
	ledger = &models.PayoutLedger{
		BookingID:        booking.ID,
		DriverID:         trip.DriverID,
		GrossAmount:      booking.PriceTotal,
		CommissionAmount: booking.CommissionAmount,
		DriverNetAmount:  net,
		Release10Amount:  stage10,
		Release90Amount:  stage90,
		Status:           models.PayoutLedgerStatusPending,
	}

	err = s.ledgers.Create(ledger)
	if errors.Is(err, database.ErrDuplicateCode) {
		// A concurrent attempt created it first; use theirs.
		return s.ledgers.GetByBookingID(booking.ID)
	}
	if err != nil {
		return nil, err
	}
	return ledger, nil
}

// RegisterPayoutAccount onboards a driver's bank details with the payment
// provider and records the provider account reference.
func (s *PayoutService) RegisterPayoutAccount(ctx context.Context, driverID uuid.UUID, req *models.RegisterPayoutAccountRequest) (*models.DriverAccount, error) {
	result, err := s.gateway.RegisterPayoutAccount(ctx, driverID.String(), req.AccountNumber, req.BankCode, req.HolderName)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindGatewayFailure, "payout account registration failed", err)
	}

	status := models.PayoutAccountPending
	if result.Verified {
		status = models.PayoutAccountVerified
	}
	if err := s.accounts.UpsertPayoutAccount(driverID, result.AccountID, status); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"driver_id":  driverID,
		"account_id": result.AccountID,
		"status":     status,
	}).Info("Payout account registered")

	return s.accounts.GetByDriverID(driverID)
}

// ConfirmPayoutAccount applies the provider's asynchronous verification
// outcome for a driver's payout account. Registration usually leaves the
// account pending; the provider reports the result through a webhook, and a
// verified account unblocks the driver's held payouts on the next
// settlement sweep.
func (s *PayoutService) ConfirmPayoutAccount(driverID uuid.UUID, verified bool) (*models.DriverAccount, error) {
	status := models.PayoutAccountUnverified
	if verified {
		status = models.PayoutAccountVerified
	}

	err := s.accounts.SetPayoutAccountStatus(driverID, status)
	if errors.Is(err, database.ErrStatusConflict) {
		return nil, apperr.New(apperr.KindNotFound, "no payout account registered for this driver")
	}
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"driver_id": driverID,
		"status":    status,
	}).Info("Payout account verification applied")

	return s.accounts.GetByDriverID(driverID)
}

// ClearPayoutHold lifts a booking's payout hold after the cause was handled
// out of band, so the next settlement sweep retries the release. A hold
// backed by an open dispute cannot be lifted until the dispute resolves.
func (s *PayoutService) ClearPayoutHold(bookingID uuid.UUID) (*models.PayoutLedger, error) {
	booking, err := s.bookings.GetByID(bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, apperr.New(apperr.KindNotFound, "booking not found")
	}
	if booking.DisputeStatus == models.DisputeStatusOpen {
		return nil, apperr.New(apperr.KindInvalidState, "cannot clear a payout hold while a dispute is open")
	}

	ledger, err := s.ledgers.GetByBookingID(bookingID)
	if err != nil {
		return nil, err
	}
	if ledger == nil {
		return nil, apperr.New(apperr.KindNotFound, "no payout ledger for this booking")
	}

	err = s.ledgers.ClearHold(ledger.ID, booking.ID, s.clock.Now())
	if errors.Is(err, database.ErrStatusConflict) {
		return nil, apperr.New(apperr.KindInvalidState, "payout is not held")
	}
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"ledger_id":  ledger.ID,
	}).Info("Payout hold cleared")

	return s.ledgers.GetByBookingID(bookingID)
}
