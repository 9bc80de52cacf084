package services

import (
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/ridelink/carpool-backend/internal/database"
	"github.com/ridelink/carpool-backend/pkg/clock"
)

// ExpiryService is the periodic sweep that expires bookings whose payment
// window closed without a charge. Each booking is handled independently so
// one failure cannot abort the batch.
type ExpiryService struct {
	bookings  BookingStore
	clock     clock.Clock
	batchSize int
	logger    *logrus.Logger
}

// NewExpiryService creates a new ExpiryService
func NewExpiryService(bookings BookingStore, clk clock.Clock, batchSize int, logger *logrus.Logger) *ExpiryService {
	return &ExpiryService{
		bookings:  bookings,
		clock:     clk,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Sweep expires every overdue booking in the current batch and returns how
// many it expired.
func (s *ExpiryService) Sweep() (int, error) {
	now := s.clock.Now()
	overdue, err := s.bookings.FindPaymentOverdue(now, s.batchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range overdue {
		booking := &overdue[i]
		err := s.bookings.MarkExpired(booking.ID, now)
		if errors.Is(err, database.ErrStatusConflict) {
			// Paid or cancelled between the query and the update.
			continue
		}
		if err != nil {
			s.logger.WithError(err).WithField("booking_id", booking.ID).Error("Failed to expire booking")
			continue
		}
		expired++
	}

	if expired > 0 {
		s.logger.WithField("count", expired).Info("Expired overdue bookings")
	}
	return expired, nil
}
