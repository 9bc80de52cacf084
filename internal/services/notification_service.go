package services

import (
	"github.com/sirupsen/logrus"
	"github.com/ridelink/carpool-backend/internal/models"
)

// Notifier delivers lifecycle notices to trip participants. Delivery is
// fire-and-forget: implementations must never return control-flow-relevant
// errors, and callers never block a transition on a notice.
type Notifier interface {
	BookingRequested(booking *models.Booking)
	BookingConfirmed(booking *models.Booking)
	BookingCancelled(booking *models.Booking)
	DisputeOpened(booking *models.Booking)
}

// LogNotifier logs notices instead of delivering them. It stands in until a
// push/SMS dispatcher is wired up and keeps tests quiet.
type LogNotifier struct {
	logger *logrus.Logger
}

// NewLogNotifier creates a new LogNotifier
func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) BookingRequested(booking *models.Booking) {
	n.log("booking_requested", booking)
}

func (n *LogNotifier) BookingConfirmed(booking *models.Booking) {
	n.log("booking_confirmed", booking)
}

func (n *LogNotifier) BookingCancelled(booking *models.Booking) {
	n.log("booking_cancelled", booking)
}

func (n *LogNotifier) DisputeOpened(booking *models.Booking) {
	n.log("dispute_opened", booking)
}

func (n *LogNotifier) log(event string, booking *models.Booking) {
	n.logger.WithFields(logrus.Fields{
		"event":        event,
		"booking_id":   booking.ID,
		"trip_id":      booking.TripID,
		"passenger_id": booking.PassengerID,
		"status":       booking.Status,
	}).Info("Notification dispatched")
}
