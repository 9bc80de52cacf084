package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Booking lifecycle configuration
	Booking BookingConfig

	// Payout engine configuration
	Payout PayoutConfig

	// Background sweep configuration
	Scheduler SchedulerConfig

	// Payment provider configuration
	Gateway GatewayConfig

	// Cache backend configuration
	Cache CacheConfig

	// CORS configuration
	CORS CORSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// BookingConfig holds booking lifecycle timing rules
type BookingConfig struct {
	PaymentHold       time.Duration // window to pay before an awaiting_payment booking expires
	DisputeWindow     time.Duration // window after completion during which disputes may open
	AutoCompleteDelay time.Duration // delay after estimated arrival before auto-completion
	ArrivalFallback   time.Duration // assumed trip duration when no arrival estimate exists
}

// PayoutConfig holds payout engine settings
type PayoutConfig struct {
	SweepBatchSize int // max bookings settled per sweep cycle
}

// SchedulerConfig holds background sweep settings
type SchedulerConfig struct {
	ExpiryInterval     time.Duration
	SettlementInterval time.Duration
}

// GatewayConfig holds payment provider configuration
type GatewayConfig struct {
	BaseURL   string
	APIKey    string // provider API key (SECRET - never expose to client)
	APISecret string
	Timeout   time.Duration
}

// CacheConfig selects the key-value cache backend
type CacheConfig struct {
	Backend  string // "memory" or "redis"
	RedisURL string
	TTL      time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		Booking: BookingConfig{
			PaymentHold:       time.Duration(getEnvAsInt("BOOKING_PAYMENT_HOLD_MINUTES", 30)) * time.Minute,
			DisputeWindow:     time.Duration(getEnvAsInt("BOOKING_DISPUTE_WINDOW_HOURS", 48)) * time.Hour,
			AutoCompleteDelay: time.Duration(getEnvAsInt("BOOKING_AUTO_COMPLETE_DELAY_MINUTES", 120)) * time.Minute,
			ArrivalFallback:   time.Duration(getEnvAsInt("BOOKING_ARRIVAL_FALLBACK_HOURS", 6)) * time.Hour,
		},
		Payout: PayoutConfig{
			SweepBatchSize: getEnvAsInt("PAYOUT_SWEEP_BATCH_SIZE", 100),
		},
		Scheduler: SchedulerConfig{
			ExpiryInterval:     time.Duration(getEnvAsInt("SCHEDULER_EXPIRY_INTERVAL_MINUTES", 5)) * time.Minute,
			SettlementInterval: time.Duration(getEnvAsInt("SCHEDULER_SETTLEMENT_INTERVAL_MINUTES", 5)) * time.Minute,
		},
		Gateway: GatewayConfig{
			BaseURL:   getEnv("GATEWAY_BASE_URL", ""),
			APIKey:    getEnv("GATEWAY_API_KEY", ""),
			APISecret: getEnv("GATEWAY_API_SECRET", ""),
			Timeout:   time.Duration(getEnvAsInt("GATEWAY_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Cache: CacheConfig{
			Backend:  getEnv("CACHE_BACKEND", "memory"),
			RedisURL: getEnv("CACHE_REDIS_URL", ""),
			TTL:      time.Duration(getEnvAsInt("CACHE_TTL_SECONDS", 300)) * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Cache.Backend != "memory" && c.Cache.Backend != "redis" {
		return fmt.Errorf("invalid cache backend: %s (must be 'memory' or 'redis')", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisURL == "" {
		return fmt.Errorf("CACHE_REDIS_URL is required when CACHE_BACKEND is redis")
	}

	// The gateway is optional in development: without credentials the
	// service starts but payment operations fail with GatewayFailure.
	if c.Server.Environment == "production" {
		if c.Gateway.BaseURL == "" {
			return fmt.Errorf("GATEWAY_BASE_URL is required in production mode")
		}
		if c.Gateway.APIKey == "" || c.Gateway.APISecret == "" {
			return fmt.Errorf("GATEWAY_API_KEY and GATEWAY_API_SECRET are required in production mode")
		}
	}

	if c.Booking.PaymentHold <= 0 {
		return fmt.Errorf("BOOKING_PAYMENT_HOLD_MINUTES must be positive")
	}
	if c.Booking.DisputeWindow <= 0 {
		return fmt.Errorf("BOOKING_DISPUTE_WINDOW_HOURS must be positive")
	}

	return nil
}

// getEnv gets an environment variable with a fallback default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a fallback default
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default %d", key, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsSlice gets an environment variable as a comma-separated slice
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
