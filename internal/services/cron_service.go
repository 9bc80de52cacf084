package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/ridelink/carpool-backend/internal/config"
)

// CronService manages the scheduled background sweeps
type CronService struct {
	cron       *cron.Cron
	expiry     *ExpiryService
	settlement *SettlementService
	config     config.SchedulerConfig
	logger     *logrus.Logger
}

// NewCronService creates a new CronService
func NewCronService(expiry *ExpiryService, settlement *SettlementService, cfg config.SchedulerConfig, logger *logrus.Logger) *CronService {
	return &CronService{
		cron:       cron.New(),
		expiry:     expiry,
		settlement: settlement,
		config:     cfg,
		logger:     logger,
	}
}

// Start registers and starts the background sweeps
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	// Job 1: expire bookings whose payment window closed
	_, err := s.cron.AddFunc(every(s.config.ExpiryInterval), s.expiryJob)
	if err != nil {
		return fmt.Errorf("failed to schedule expiry sweep: %w", err)
	}
	s.logger.WithField("interval", s.config.ExpiryInterval).Info("Scheduled: expiry sweep")

	// Job 2: auto-complete stale check-ins and release payouts
	_, err = s.cron.AddFunc(every(s.config.SettlementInterval), s.settlementJob)
	if err != nil {
		return fmt.Errorf("failed to schedule settlement sweep: %w", err)
	}
	s.logger.WithField("interval", s.config.SettlementInterval).Info("Scheduled: settlement sweep")

	s.cron.Start()
	s.logger.Info("Cron service started")
	return nil
}

// Stop stops the sweeps, waiting for a running job to finish
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

func (s *CronService) expiryJob() {
	start := time.Now()
	expired, err := s.expiry.Sweep()
	if err != nil {
		s.logger.WithError(err).Error("Expiry sweep failed")
		return
	}
	if expired > 0 {
		s.logger.WithFields(logrus.Fields{
			"expired":  expired,
			"duration": time.Since(start),
		}).Info("Expiry sweep completed")
	}
}

func (s *CronService) settlementJob() {
	start := time.Now()
	stats := s.settlement.Sweep(context.Background())
	if stats.AutoCompleted > 0 || stats.StagesReleased > 0 {
		s.logger.WithFields(logrus.Fields{
			"auto_completed":  stats.AutoCompleted,
			"stages_released": stats.StagesReleased,
			"duration":        time.Since(start),
		}).Info("Settlement sweep completed")
	}
}

func every(interval time.Duration) string {
	return fmt.Sprintf("@every %s", interval)
}
