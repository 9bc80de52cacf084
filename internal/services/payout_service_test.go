package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ridelink/carpool-backend/internal/apperr"
	"github.com/ridelink/carpool-backend/internal/config"
	"github.com/ridelink/carpool-backend/internal/models"
	"github.com/ridelink/carpool-backend/pkg/money"
)

// completedBooking drives a booking through payment, check-in and
// completion, leaving it ready for stage-90 release once the window closes.
func completedBooking(t *testing.T, h *harness, seats int) *models.Booking {
	t.Helper()
	booking := h.paidBooking(t, seats)
	_, err := h.service.CheckIn(context.Background(), h.driverID, booking.QRCode)
	require.NoError(t, err)
	completed, err := h.service.CompleteByPassenger(booking.ID, h.passengerID)
	require.NoError(t, err)
	return completed
}

func TestReleaseStageIdempotent(t *testing.T) {
	h := newHarness(t)
	booking := h.paidBooking(t, 2)
	_, err := h.service.CheckIn(context.Background(), h.driverID, booking.QRCode)
	require.NoError(t, err)

	balanceAfterFirst := h.accounts.balance(h.driverID)
	assert.Equal(t, 27.0, balanceAfterFirst)

	result, err := h.payouts.ReleaseStage(context.Background(), booking.ID, models.PayoutStage10)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutSkipped, result)
	assert.Equal(t, balanceAfterFirst, h.accounts.balance(h.driverID))
}

func TestLedgerSplit(t *testing.T) {
	t.Run("Rounding Remainder Goes To Stage 90", func(t *testing.T) {
		h := newHarness(t)
		booking := h.paidBooking(t, 1)

		// Override financials: gross 100.01, commission 10.00 -> net 90.01.
		stored := h.bookings.bookings[booking.ID]
		stored.PriceTotal = 100.01
		stored.CommissionAmount = 10.00
		_, err := h.service.CheckIn(context.Background(), h.driverID, booking.QRCode)
		require.NoError(t, err)

		ledger, err := h.ledgers.GetByBookingID(booking.ID)
		require.NoError(t, err)
		require.NotNil(t, ledger)
		assert.Equal(t, 90.01, ledger.DriverNetAmount)
		assert.Equal(t, 9.00, ledger.Release10Amount)
		assert.Equal(t, 81.01, ledger.Release90Amount)
		assert.Equal(t, ledger.DriverNetAmount, money.Round2(ledger.Release10Amount+ledger.Release90Amount))
	})

	t.Run("Amounts Derived Once", func(t *testing.T) {
		h := newHarness(t)
		booking := h.paidBooking(t, 2)
		_, err := h.service.CheckIn(context.Background(), h.driverID, booking.QRCode)
		require.NoError(t, err)

		// A later price change must not affect the stored split.
		h.bookings.bookings[booking.ID].PriceTotal = 999

		ledger, err := h.ledgers.GetByBookingID(booking.ID)
		require.NoError(t, err)
		assert.Equal(t, 300.0, ledger.GrossAmount)
		assert.Equal(t, 27.0, ledger.Release10Amount)
	})
}

func TestStage90Release(t *testing.T) {
	t.Run("Skipped Before Window Closes", func(t *testing.T) {
		h := newHarness(t)
		booking := completedBooking(t, h, 2)

		result, err := h.payouts.ReleaseStage(context.Background(), booking.ID, models.PayoutStage90)
		require.NoError(t, err)
		assert.Equal(t, models.PayoutSkipped, result)
		assert.Equal(t, 27.0, h.accounts.balance(h.driverID))
	})

	t.Run("Full Release After Window", func(t *testing.T) {
		// seats=2, pricePerSeat=150 -> gross 300, commission 30, net 270:
		// 27.00 at check-in, 243.00 after the window, in two credits.
		h := newHarness(t)
		booking := completedBooking(t, h, 2)

		h.clock.Advance(49 * time.Hour)
		result, err := h.payouts.ReleaseStage(context.Background(), booking.ID, models.PayoutStage90)
		require.NoError(t, err)
		assert.Equal(t, models.PayoutReleased, result)
		assert.Equal(t, 270.0, h.accounts.balance(h.driverID))

		ledger, _ := h.ledgers.GetByBookingID(booking.ID)
		assert.Equal(t, models.PayoutLedgerStatusReleased, ledger.Status)
		assert.NotNil(t, ledger.Stage90ReleasedAt)
	})

	t.Run("Ensures Stage 10 First", func(t *testing.T) {
		h := newHarness(t)
		booking := h.paidBooking(t, 2)

		// Skip the check-in trigger by marking transitions directly.
		now := h.clock.Now()
		require.NoError(t, h.bookings.MarkCheckedIn(booking.ID, now))
		require.NoError(t, h.bookings.MarkCompleted(booking.ID, models.CompletionSourceAuto, now.Add(48*time.Hour), now))

		h.clock.Advance(49 * time.Hour)
		result, err := h.payouts.ReleaseStage(context.Background(), booking.ID, models.PayoutStage90)
		require.NoError(t, err)
		assert.Equal(t, models.PayoutReleased, result)
		assert.Equal(t, 270.0, h.accounts.balance(h.driverID))

		stored, _ := h.bookings.GetByID(booking.ID)
		assert.NotNil(t, stored.Payout10ReleasedAt)
		assert.NotNil(t, stored.Payout90ReleasedAt)
	})
}

func TestPayoutHolds(t *testing.T) {
	t.Run("Unverified Account", func(t *testing.T) {
		h := newHarness(t)
		delete(h.accounts.accounts, h.driverID)
		booking := h.paidBooking(t, 2)
		_, err := h.service.CheckIn(context.Background(), h.driverID, booking.QRCode)
		require.NoError(t, err)

		ledger, err := h.ledgers.GetByBookingID(booking.ID)
		require.NoError(t, err)
		require.NotNil(t, ledger)
		assert.Equal(t, models.PayoutLedgerStatusHold, ledger.Status)
		require.NotNil(t, ledger.HoldReason)
		assert.Equal(t, models.HoldReasonAccountNotVerified, *ledger.HoldReason)
		assert.Equal(t, 0.0, h.accounts.balance(h.driverID))

		// Verification clears the path on the next attempt.
		h.accounts.verified(h.driverID)
		result, err := h.payouts.ReleaseStage(context.Background(), booking.ID, models.PayoutStage10)
		require.NoError(t, err)
		assert.Equal(t, models.PayoutReleased, result)
		assert.Equal(t, 27.0, h.accounts.balance(h.driverID))
	})

	t.Run("Gateway Failure Captures Last Error", func(t *testing.T) {
		h := newHarness(t)
		booking := h.paidBooking(t, 2)
		h.gateway.payoutErr = fmt.Errorf("provider timeout")
		_, err := h.service.CheckIn(context.Background(), h.driverID, booking.QRCode)
		require.NoError(t, err)

		ledger, err := h.ledgers.GetByBookingID(booking.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PayoutLedgerStatusHold, ledger.Status)
		require.NotNil(t, ledger.HoldReason)
		assert.Equal(t, models.HoldReasonGatewayError, *ledger.HoldReason)
		require.NotNil(t, ledger.LastError)
		assert.Contains(t, *ledger.LastError, "provider timeout")
		assert.Equal(t, 0.0, h.accounts.balance(h.driverID))

		// Retry succeeds under the same idempotency key.
		h.gateway.payoutErr = nil
		result, err := h.payouts.ReleaseStage(context.Background(), booking.ID, models.PayoutStage10)
		require.NoError(t, err)
		assert.Equal(t, models.PayoutReleased, result)
		key := fmt.Sprintf("booking-%s-stage-10", booking.ID)
		assert.Equal(t, 2, h.gateway.payoutCalls[key])
	})
}

func TestZeroAmountStage(t *testing.T) {
	h := newHarness(t)
	booking := h.paidBooking(t, 1)

	// Commission consumed the full gross: nothing to transfer.
	stored := h.bookings.bookings[booking.ID]
	stored.CommissionAmount = stored.PriceTotal

	_, err := h.service.CheckIn(context.Background(), h.driverID, booking.QRCode)
	require.NoError(t, err)

	stored = h.bookings.bookings[booking.ID]
	assert.NotNil(t, stored.Payout10ReleasedAt)
	assert.Equal(t, 0, h.gateway.totalPayoutCalls())
	assert.Equal(t, 0.0, h.accounts.balance(h.driverID))
}

func TestUnpaidBookingSkipped(t *testing.T) {
	h := newHarness(t)
	booking, err := h.service.Create(context.Background(), h.passengerID, &models.CreateBookingRequest{
		TripID: h.trip.ID,
		Seats:  1,
	})
	require.NoError(t, err)

	result, err := h.payouts.ReleaseStage(context.Background(), booking.ID, models.PayoutStage10)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutSkipped, result)
}

func TestRegisterPayoutAccount(t *testing.T) {
	h := newHarness(t)
	h.gateway.verifiedOnRegister = false

	account, err := h.payouts.RegisterPayoutAccount(context.Background(), h.driverID, &models.RegisterPayoutAccountRequest{
		BankCode:      "7010",
		AccountNumber: "100200300",
		HolderName:    "K Perera",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PayoutAccountPending, account.PayoutAccountStatus)
	require.NotNil(t, account.ProviderAccountID)
	assert.False(t, account.PayoutReady())
}

func TestConfirmPayoutAccount(t *testing.T) {
	t.Run("Verification Unblocks Held Stage On Next Sweep", func(t *testing.T) {
		h := newHarness(t)
		h.gateway.verifiedOnRegister = false
		_, err := h.payouts.RegisterPayoutAccount(context.Background(), h.driverID, &models.RegisterPayoutAccountRequest{
			BankCode:      "7010",
			AccountNumber: "100200300",
			HolderName:    "K Perera",
		})
		require.NoError(t, err)

		// Check-in against the still-pending account parks the stage.
		booking := h.paidBooking(t, 2)
		_, err = h.service.CheckIn(context.Background(), h.driverID, booking.QRCode)
		require.NoError(t, err)
		ledger, err := h.ledgers.GetByBookingID(booking.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PayoutLedgerStatusHold, ledger.Status)
		require.NotNil(t, ledger.HoldReason)
		assert.Equal(t, models.HoldReasonAccountNotVerified, *ledger.HoldReason)
		assert.Equal(t, 0.0, h.accounts.balance(h.driverID))

		account, err := h.payouts.ConfirmPayoutAccount(h.driverID, true)
		require.NoError(t, err)
		assert.Equal(t, models.PayoutAccountVerified, account.PayoutAccountStatus)

		cfg := config.BookingConfig{
			DisputeWindow:     48 * time.Hour,
			AutoCompleteDelay: 2 * time.Hour,
			ArrivalFallback:   6 * time.Hour,
		}
		settlement := NewSettlementService(h.bookings, h.payouts, h.clock, cfg, 100, quietLogger())
		stats := settlement.Sweep(context.Background())
		assert.Equal(t, 1, stats.StagesReleased)
		assert.Equal(t, 27.0, h.accounts.balance(h.driverID))

		ledger, err = h.ledgers.GetByBookingID(booking.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PayoutLedgerStatusPartialReleased, ledger.Status)
		assert.Nil(t, ledger.HoldReason)
	})

	t.Run("Unknown Driver Not Found", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.payouts.ConfirmPayoutAccount(uuid.New(), true)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})

	t.Run("Failed Verification Keeps Payouts Blocked", func(t *testing.T) {
		h := newHarness(t)
		account, err := h.payouts.ConfirmPayoutAccount(h.driverID, false)
		require.NoError(t, err)
		assert.Equal(t, models.PayoutAccountUnverified, account.PayoutAccountStatus)
		assert.False(t, account.PayoutReady())
	})
}

func TestClearPayoutHold(t *testing.T) {
	t.Run("Cleared Hold Resets Ledger Status", func(t *testing.T) {
		h := newHarness(t)
		booking := h.paidBooking(t, 2)
		h.gateway.payoutErr = fmt.Errorf("provider timeout")
		_, err := h.service.CheckIn(context.Background(), h.driverID, booking.QRCode)
		require.NoError(t, err)

		ledger, err := h.payouts.ClearPayoutHold(booking.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PayoutLedgerStatusPending, ledger.Status)
		assert.Nil(t, ledger.HoldReason)

		stored, _ := h.bookings.GetByID(booking.ID)
		assert.Nil(t, stored.PayoutHoldReason)
	})

	t.Run("Open Dispute Blocks The Clear", func(t *testing.T) {
		h := newHarness(t)
		booking := completedBooking(t, h, 1)
		_, err := h.service.RaiseDispute(booking.ID, h.passengerID, &models.RaiseDisputeRequest{Reason: "driver never showed"})
		require.NoError(t, err)

		_, err = h.payouts.ClearPayoutHold(booking.ID)
		assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
	})

	t.Run("Unheld Ledger Is Invalid State", func(t *testing.T) {
		h := newHarness(t)
		booking := h.paidBooking(t, 2)
		_, err := h.service.CheckIn(context.Background(), h.driverID, booking.QRCode)
		require.NoError(t, err)

		_, err = h.payouts.ClearPayoutHold(booking.ID)
		assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
	})
}
