package services

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/ridelink/carpool-backend/internal/config"
	"github.com/ridelink/carpool-backend/internal/database"
	"github.com/ridelink/carpool-backend/internal/models"
	"github.com/ridelink/carpool-backend/pkg/clock"
)

// SettlementService is the periodic sweep that auto-completes stale
// checked-in bookings and pushes eligible payouts through both stages.
type SettlementService struct {
	bookings  BookingStore
	payouts   *PayoutService
	clock     clock.Clock
	booking   config.BookingConfig
	batchSize int
	logger    *logrus.Logger
}

// SettlementStats summarizes one sweep cycle for observability.
type SettlementStats struct {
	AutoCompleted   int
	StagesReleased  int
	PayoutsHeld     int
	PayoutsAttempts int
}

// NewSettlementService creates a new SettlementService
func NewSettlementService(
	bookings BookingStore,
	payouts *PayoutService,
	clk clock.Clock,
	bookingCfg config.BookingConfig,
	batchSize int,
	logger *logrus.Logger,
) *SettlementService {
	return &SettlementService{
		bookings:  bookings,
		payouts:   payouts,
		clock:     clk,
		booking:   bookingCfg,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Sweep runs one settlement cycle. Per-item failures are logged and
// skipped; the next cycle retries them.
func (s *SettlementService) Sweep(ctx context.Context) SettlementStats {
	stats := SettlementStats{}
	s.autoComplete(&stats)
	s.releasePayouts(ctx, &stats)

	if stats.AutoCompleted > 0 || stats.StagesReleased > 0 || stats.PayoutsHeld > 0 {
		s.logger.WithFields(logrus.Fields{
			"auto_completed":  stats.AutoCompleted,
			"stages_released": stats.StagesReleased,
			"payouts_held":    stats.PayoutsHeld,
		}).Info("Settlement sweep finished")
	}
	return stats
}

// autoComplete finishes checked-in bookings whose trip should long be over.
func (s *SettlementService) autoComplete(stats *SettlementStats) {
	now := s.clock.Now()
	stale, err := s.bookings.FindAutoCompletable(now, s.booking.ArrivalFallback, s.booking.AutoCompleteDelay, s.batchSize)
	if err != nil {
		s.logger.WithError(err).Error("Failed to query auto-completable bookings")
		return
	}

	for i := range stale {
		booking := &stale[i]
		deadline := now.Add(s.booking.DisputeWindow)
		err := s.bookings.MarkCompleted(booking.ID, models.CompletionSourceAuto, deadline, now)
		if errors.Is(err, database.ErrStatusConflict) {
			continue
		}
		if err != nil {
			s.logger.WithError(err).WithField("booking_id", booking.ID).Error("Failed to auto-complete booking")
			continue
		}
		stats.AutoCompleted++
	}
}

// releasePayouts attempts both stages for every payout-eligible booking.
func (s *SettlementService) releasePayouts(ctx context.Context, stats *SettlementStats) {
	eligible, err := s.bookings.FindPayoutEligible(s.batchSize)
	if err != nil {
		s.logger.WithError(err).Error("Failed to query payout-eligible bookings")
		return
	}

	for i := range eligible {
		booking := &eligible[i]
		for _, stage := range []int{models.PayoutStage10, models.PayoutStage90} {
			stats.PayoutsAttempts++
			result, err := s.payouts.ReleaseStage(ctx, booking.ID, stage)
			if err != nil {
				s.logger.WithError(err).WithFields(logrus.Fields{
					"booking_id": booking.ID,
					"stage":      stage,
				}).Error("Payout release failed")
				break
			}
			switch result {
			case models.PayoutReleased:
				stats.StagesReleased++
			case models.PayoutHeld:
				stats.PayoutsHeld++
			}
		}
	}
}
