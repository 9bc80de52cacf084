package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ridelink/carpool-backend/internal/models"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct {
		from, to models.BookingStatus
	}{
		{models.BookingStatusPending, models.BookingStatusAwaitingPayment},
		{models.BookingStatusPending, models.BookingStatusRejected},
		{models.BookingStatusPending, models.BookingStatusExpired},
		{models.BookingStatusAwaitingPayment, models.BookingStatusConfirmed},
		{models.BookingStatusAwaitingPayment, models.BookingStatusExpired},
		{models.BookingStatusConfirmed, models.BookingStatusCheckedIn},
		{models.BookingStatusConfirmed, models.BookingStatusCancelledByDriver},
		{models.BookingStatusCheckedIn, models.BookingStatusCompleted},
		{models.BookingStatusCompleted, models.BookingStatusDisputed},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be allowed", tc.from, tc.to)
	}

	denied := []struct {
		from, to models.BookingStatus
	}{
		{models.BookingStatusPending, models.BookingStatusConfirmed},
		{models.BookingStatusPending, models.BookingStatusCheckedIn},
		{models.BookingStatusConfirmed, models.BookingStatusCompleted},
		{models.BookingStatusCheckedIn, models.BookingStatusCancelledByPassenger},
		{models.BookingStatusCompleted, models.BookingStatusCheckedIn},
		{models.BookingStatusDisputed, models.BookingStatusCompleted},
		{models.BookingStatusExpired, models.BookingStatusAwaitingPayment},
		{models.BookingStatusRejected, models.BookingStatusPending},
		{models.BookingStatusCancelledByPassenger, models.BookingStatusConfirmed},
	}
	for _, tc := range denied {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s should be denied", tc.from, tc.to)
	}
}

func TestTerminalStatesHaveNoEdges(t *testing.T) {
	terminals := []models.BookingStatus{
		models.BookingStatusRejected,
		models.BookingStatusExpired,
		models.BookingStatusCancelledByPassenger,
		models.BookingStatusCancelledByDriver,
	}
	for _, status := range terminals {
		assert.Empty(t, allowedTransitions[status], "%s must be terminal", status)
	}
}
