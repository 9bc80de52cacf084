package services

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ridelink/carpool-backend/internal/config"
	"github.com/ridelink/carpool-backend/internal/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestExpirySweep(t *testing.T) {
	h := newHarness(t)
	expiry := NewExpiryService(h.bookings, h.clock, 100, quietLogger())

	unpaid, err := h.service.Create(context.Background(), h.passengerID, &models.CreateBookingRequest{
		TripID: h.trip.ID,
		Seats:  2,
	})
	require.NoError(t, err)
	paid := h.paidBooking(t, 1)

	t.Run("Nothing Overdue Yet", func(t *testing.T) {
		expired, err := expiry.Sweep()
		require.NoError(t, err)
		assert.Equal(t, 0, expired)
	})

	t.Run("Overdue Booking Expired", func(t *testing.T) {
		h.clock.Advance(31 * time.Minute)
		expired, err := expiry.Sweep()
		require.NoError(t, err)
		assert.Equal(t, 1, expired)

		stored, _ := h.bookings.GetByID(unpaid.ID)
		assert.Equal(t, models.BookingStatusExpired, stored.Status)

		// The paid booking and its seat hold are untouched; the expired
		// booking never held seats so available capacity is capped at the
		// pre-expiry value.
		stored, _ = h.bookings.GetByID(paid.ID)
		assert.Equal(t, models.BookingStatusConfirmed, stored.Status)
		trip, _ := h.trips.GetByID(h.trip.ID)
		assert.Equal(t, 3, trip.AvailableSeats)
	})

	t.Run("Second Sweep Is A No-Op", func(t *testing.T) {
		expired, err := expiry.Sweep()
		require.NoError(t, err)
		assert.Equal(t, 0, expired)
	})
}

func TestExpirySweepIgnoresApprovalRequests(t *testing.T) {
	h := newHarness(t)
	h.trip.BookingType = models.BookingTypeApproval
	expiry := NewExpiryService(h.bookings, h.clock, 100, quietLogger())

	pending, err := h.service.Create(context.Background(), h.passengerID, &models.CreateBookingRequest{
		TripID: h.trip.ID,
		Seats:  1,
	})
	require.NoError(t, err)

	// An unanswered approval request carries no payment deadline; only
	// awaiting_payment bookings expire, however late the sweep runs.
	h.clock.Advance(72 * time.Hour)
	expired, err := expiry.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 0, expired)

	stored, _ := h.bookings.GetByID(pending.ID)
	assert.Equal(t, models.BookingStatusPending, stored.Status)
	assert.Nil(t, stored.PaymentDueAt)
}

func TestSettlementSweep(t *testing.T) {
	newSettlement := func(h *harness) *SettlementService {
		cfg := config.BookingConfig{
			PaymentHold:       30 * time.Minute,
			DisputeWindow:     48 * time.Hour,
			AutoCompleteDelay: 2 * time.Hour,
			ArrivalFallback:   6 * time.Hour,
		}
		return NewSettlementService(h.bookings, h.payouts, h.clock, cfg, 100, quietLogger())
	}

	t.Run("Auto-Completes Stale Check-Ins", func(t *testing.T) {
		h := newHarness(t)
		settlement := newSettlement(h)
		booking := h.paidBooking(t, 2)
		_, err := h.service.CheckIn(context.Background(), h.driverID, booking.QRCode)
		require.NoError(t, err)

		// Departure +48h, no arrival estimate: fallback 6h + delay 2h.
		h.clock.Set(h.trip.DepartureTime.Add(9 * time.Hour))
		stats := settlement.Sweep(context.Background())
		assert.Equal(t, 1, stats.AutoCompleted)

		stored, _ := h.bookings.GetByID(booking.ID)
		assert.Equal(t, models.BookingStatusCompleted, stored.Status)
		require.NotNil(t, stored.CompletionSource)
		assert.Equal(t, models.CompletionSourceAuto, *stored.CompletionSource)
		require.NotNil(t, stored.DisputeDeadlineAt)
	})

	t.Run("Releases Both Stages After Window", func(t *testing.T) {
		h := newHarness(t)
		settlement := newSettlement(h)
		booking := completedBooking(t, h, 2)
		require.Equal(t, 27.0, h.accounts.balance(h.driverID))

		h.clock.Advance(49 * time.Hour)
		stats := settlement.Sweep(context.Background())
		assert.Equal(t, 1, stats.StagesReleased)
		assert.Equal(t, 270.0, h.accounts.balance(h.driverID))

		stored, _ := h.bookings.GetByID(booking.ID)
		assert.NotNil(t, stored.Payout90ReleasedAt)
	})

	t.Run("Held Payout Does Not Abort The Batch", func(t *testing.T) {
		h := newHarness(t)
		settlement := newSettlement(h)

		held := completedBooking(t, h, 1)
		delete(h.accounts.accounts, h.driverID)
		_ = held

		h.clock.Advance(49 * time.Hour)
		stats := settlement.Sweep(context.Background())
		assert.Equal(t, 0, stats.StagesReleased)
		assert.Greater(t, stats.PayoutsHeld, 0)
	})
}
