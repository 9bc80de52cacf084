package services

import "github.com/ridelink/carpool-backend/internal/models"

// allowedTransitions is the booking lifecycle as a directed graph. The
// database-level status guards enforce the same edges under concurrency;
// this table is the authoritative pre-check so callers get a clean
// invalid-state error instead of a row conflict.
var allowedTransitions = map[models.BookingStatus][]models.BookingStatus{
	models.BookingStatusPending: {
		models.BookingStatusAwaitingPayment,
		models.BookingStatusRejected,
		models.BookingStatusExpired,
		models.BookingStatusCancelledByPassenger,
		models.BookingStatusCancelledByDriver,
	},
	models.BookingStatusAwaitingPayment: {
		models.BookingStatusConfirmed,
		models.BookingStatusExpired,
		models.BookingStatusCancelledByPassenger,
		models.BookingStatusCancelledByDriver,
	},
	models.BookingStatusConfirmed: {
		models.BookingStatusCheckedIn,
		models.BookingStatusCancelledByPassenger,
		models.BookingStatusCancelledByDriver,
	},
	models.BookingStatusCheckedIn: {
		models.BookingStatusCompleted,
	},
	models.BookingStatusCompleted: {
		models.BookingStatusDisputed,
	},
	// Disputes stay open until resolved out of band; every other status
	// is terminal.
	models.BookingStatusDisputed:             {},
	models.BookingStatusRejected:             {},
	models.BookingStatusExpired:              {},
	models.BookingStatusCancelledByPassenger: {},
	models.BookingStatusCancelledByDriver:    {},
}

// CanTransition reports whether from -> to is a legal lifecycle edge.
func CanTransition(from, to models.BookingStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
