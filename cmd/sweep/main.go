package main

import (
	"context"
	"flag"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/ridelink/carpool-backend/internal/config"
	"github.com/ridelink/carpool-backend/internal/database"
	"github.com/ridelink/carpool-backend/internal/gateway"
	"github.com/ridelink/carpool-backend/internal/services"
	"github.com/ridelink/carpool-backend/pkg/clock"
)

// One-shot runner for the background sweeps. Useful for draining a backlog
// after downtime or for cron-less deployments.
func main() {
	runExpiry := flag.Bool("expiry", false, "run the payment-expiry sweep")
	runSettlement := flag.Bool("settlement", false, "run the settlement sweep")
	flag.Parse()

	// No flags means run both
	if !*runExpiry && !*runSettlement {
		*runExpiry = true
		*runSettlement = true
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	tripRepo := database.NewTripRepository(db)
	bookingRepo := database.NewBookingRepository(db, tripRepo)
	ledgerRepo := database.NewPayoutLedgerRepository(db)
	accountRepo := database.NewDriverAccountRepository(db)

	clk := clock.System()
	paymentGateway := gateway.NewHTTPGateway(&cfg.Gateway, logger)
	payoutService := services.NewPayoutService(
		bookingRepo, tripRepo, ledgerRepo, accountRepo, paymentGateway, clk, logger,
	)

	if *runExpiry {
		expiryService := services.NewExpiryService(bookingRepo, clk, cfg.Payout.SweepBatchSize, logger)
		expired, err := expiryService.Sweep()
		if err != nil {
			logger.WithError(err).Fatal("Expiry sweep failed")
		}
		logger.WithField("expired", expired).Info("Expiry sweep completed")
	}

	if *runSettlement {
		settlementService := services.NewSettlementService(
			bookingRepo, payoutService, clk, cfg.Booking, cfg.Payout.SweepBatchSize, logger,
		)
		stats := settlementService.Sweep(context.Background())
		logger.WithFields(logrus.Fields{
			"auto_completed":  stats.AutoCompleted,
			"stages_released": stats.StagesReleased,
			"payouts_held":    stats.PayoutsHeld,
		}).Info("Settlement sweep completed")
	}
}
