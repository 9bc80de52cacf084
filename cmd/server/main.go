package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/ridelink/carpool-backend/internal/cache"
	"github.com/ridelink/carpool-backend/internal/config"
	"github.com/ridelink/carpool-backend/internal/database"
	"github.com/ridelink/carpool-backend/internal/gateway"
	"github.com/ridelink/carpool-backend/internal/handlers"
	"github.com/ridelink/carpool-backend/internal/services"
	"github.com/ridelink/carpool-backend/pkg/clock"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting RideLink Carpool Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Initialize cache backend
	var cacheStore cache.Store
	switch cfg.Cache.Backend {
	case "redis":
		logger.Info("Initializing Redis cache...")
		redisStore, err := cache.NewRedisStore(cfg.Cache.RedisURL)
		if err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisStore.Close()
		cacheStore = redisStore
	default:
		logger.Info("Using in-process cache")
		memStore := cache.NewMemoryStore(time.Minute)
		defer memStore.Close()
		cacheStore = memStore
	}

	// Initialize repositories
	tripRepo := database.NewTripRepository(db)
	bookingRepo := database.NewBookingRepository(db, tripRepo)
	ledgerRepo := database.NewPayoutLedgerRepository(db)
	accountRepo := database.NewDriverAccountRepository(db)

	// Initialize services
	logger.Info("Initializing services...")
	clk := clock.System()
	paymentGateway := gateway.NewHTTPGateway(&cfg.Gateway, logger)
	notifier := services.NewLogNotifier(logger)
	pricingService := services.NewPricingService(tripRepo, cacheStore, cfg.Cache.TTL, logger)
	payoutService := services.NewPayoutService(
		bookingRepo, tripRepo, ledgerRepo, accountRepo, paymentGateway, clk, logger,
	)
	bookingService := services.NewBookingService(
		bookingRepo, tripRepo, pricingService, payoutService,
		paymentGateway, notifier, clk, cfg.Booking, logger,
	)
	expiryService := services.NewExpiryService(bookingRepo, clk, cfg.Payout.SweepBatchSize, logger)
	settlementService := services.NewSettlementService(
		bookingRepo, payoutService, clk, cfg.Booking, cfg.Payout.SweepBatchSize, logger,
	)

	// Initialize and start the background sweeps
	cronService := services.NewCronService(expiryService, settlementService, cfg.Scheduler, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}
	logger.Info("Services initialized")

	// Initialize handlers
	tripHandler := handlers.NewTripHandler(tripRepo)
	bookingHandler := handlers.NewBookingHandler(bookingService, bookingRepo, tripRepo)
	payoutHandler := handlers.NewPayoutHandler(
		payoutService, ledgerRepo, accountRepo, bookingRepo, tripRepo,
	)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Trip routes
		trips := v1.Group("/trips")
		{
			trips.POST("", tripHandler.CreateTrip)
			trips.GET("/:id", tripHandler.GetTrip)
			trips.GET("/:id/stops", tripHandler.GetTripStops)
			trips.GET("/:id/bookings", bookingHandler.GetTripBookings)
		}

		// Booking lifecycle routes
		bookings := v1.Group("/bookings")
		{
			bookings.POST("", bookingHandler.CreateBooking)
			bookings.GET("", bookingHandler.GetMyBookings)
			bookings.GET("/:id", bookingHandler.GetBooking)
			bookings.POST("/:id/accept", bookingHandler.AcceptBooking)
			bookings.POST("/:id/reject", bookingHandler.RejectBooking)
			bookings.POST("/:id/pay", bookingHandler.PayBooking)
			bookings.POST("/:id/complete", bookingHandler.CompleteBooking)
			bookings.POST("/:id/dispute", bookingHandler.DisputeBooking)
			bookings.POST("/:id/cancel", bookingHandler.CancelBooking)
			bookings.GET("/:id/payout", payoutHandler.GetBookingPayout)
		}

		// Driver check-in routes
		checkIn := v1.Group("/check-in")
		{
			checkIn.POST("/qr", bookingHandler.CheckInByQR)
			checkIn.POST("/pnr", bookingHandler.CheckInByPNR)
		}

		// Driver payout routes
		driver := v1.Group("/driver")
		{
			driver.POST("/payout-account", payoutHandler.RegisterPayoutAccount)
			driver.GET("/account", payoutHandler.GetDriverAccount)
		}

		// Payment provider callbacks
		webhooks := v1.Group("/webhooks")
		{
			webhooks.POST("/payout-accounts", payoutHandler.ConfirmPayoutAccount)
		}

		// Admin routes for operational intervention
		admin := v1.Group("/admin")
		{
			// Manual sweep triggers, same code paths as the cron jobs
			admin.POST("/sweeps/expiry", func(c *gin.Context) {
				expired, err := expiryService.Sweep()
				if err != nil {
					c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
					return
				}
				c.JSON(http.StatusOK, gin.H{"message": "Expiry sweep completed", "expired": expired})
			})

			admin.POST("/sweeps/settlement", func(c *gin.Context) {
				stats := settlementService.Sweep(c.Request.Context())
				c.JSON(http.StatusOK, gin.H{
					"message":         "Settlement sweep completed",
					"auto_completed":  stats.AutoCompleted,
					"stages_released": stats.StagesReleased,
					"payouts_held":    stats.PayoutsHeld,
				})
			})

			// Manual payout intervention for held ledgers
			admin.POST("/bookings/:id/payout/release/:stage", payoutHandler.ReleasePayoutStage)
			admin.POST("/bookings/:id/payout/clear-hold", payoutHandler.ClearPayoutHold)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop the background sweeps before closing the database
	cronService.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": time.Since(start).Milliseconds(),
		}

		if caller := c.GetHeader("X-User-ID"); caller != "" {
			fields["user_id"] = caller
		}

		entry := logger.WithFields(fields)
		status := c.Writer.Status()
		switch {
		case status >= 500:
			entry.Error("Request completed with server error")
		case status >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed")
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
