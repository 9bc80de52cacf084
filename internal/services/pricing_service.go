package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/ridelink/carpool-backend/internal/apperr"
	"github.com/ridelink/carpool-backend/internal/cache"
	"github.com/ridelink/carpool-backend/internal/models"
	"github.com/ridelink/carpool-backend/pkg/money"
)

// PricingService resolves the per-seat fare for a booking. Trips without
// intermediate stops charge the flat trip price; trips with stops charge the
// difference of the cumulative fares at the alighting and boarding stops.
type PricingService struct {
	trips    TripStore
	cache    cache.Store
	cacheTTL time.Duration
	logger   *logrus.Logger
}

// NewPricingService creates a new PricingService
func NewPricingService(trips TripStore, cacheStore cache.Store, cacheTTL time.Duration, logger *logrus.Logger) *PricingService {
	return &PricingService{
		trips:    trips,
		cache:    cacheStore,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// FarePerSeat returns the per-seat fare for the given trip and optional
// segment. A nil segment means the full route at the trip's flat price.
func (s *PricingService) FarePerSeat(ctx context.Context, trip *models.Trip, segment *models.SegmentContext) (float64, error) {
	if segment == nil {
		return trip.PricePerSeat, nil
	}

	stops, err := s.tripStops(ctx, trip.ID)
	if err != nil {
		return 0, err
	}
	if len(stops) == 0 {
		return 0, apperr.New(apperr.KindValidation, "trip has no stops, segment booking not available")
	}

	boarding := findStop(stops, segment.BoardingStopID)
	alighting := findStop(stops, segment.AlightingStopID)
	if boarding == nil || alighting == nil {
		return 0, apperr.New(apperr.KindValidation, "unknown boarding or alighting stop")
	}
	if boarding.Position >= alighting.Position {
		return 0, apperr.New(apperr.KindValidation, "boarding stop must precede alighting stop")
	}

	fare := money.Round2(alighting.CumulativeFare - boarding.CumulativeFare)
	if fare <= 0 {
		return 0, apperr.New(apperr.KindValidation, "segment has no positive fare")
	}
	return fare, nil
}

// tripStops loads the trip's stop list through the cache. A cache failure is
// logged and falls through to storage; pricing must not depend on the cache
// being up.
func (s *PricingService) tripStops(ctx context.Context, tripID uuid.UUID) ([]models.TripStop, error) {
	key := fmt.Sprintf("trip_stops:%s", tripID)

	if cached, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.WithError(err).Warn("Stop cache read failed")
	} else if ok {
		var stops []models.TripStop
		if err := json.Unmarshal([]byte(cached), &stops); err == nil {
			return stops, nil
		}
		// A corrupt entry is dropped and re-fetched.
		_ = s.cache.Delete(ctx, key)
	}

	stops, err := s.trips.GetStops(tripID)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(stops); err == nil {
		if err := s.cache.Set(ctx, key, string(encoded), s.cacheTTL); err != nil {
			s.logger.WithError(err).Warn("Stop cache write failed")
		}
	}
	return stops, nil
}

func findStop(stops []models.TripStop, stopID uuid.UUID) *models.TripStop {
	for i := range stops {
		if stops[i].ID == stopID {
			return &stops[i]
		}
	}
	return nil
}
