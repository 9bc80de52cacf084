package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ridelink/carpool-backend/internal/database"
	"github.com/ridelink/carpool-backend/internal/models"
)

// TripHandler handles driver trip publishing and trip reads
type TripHandler struct {
	tripRepo *database.TripRepository
}

// NewTripHandler creates a new TripHandler
func NewTripHandler(tripRepo *database.TripRepository) *TripHandler {
	return &TripHandler{tripRepo: tripRepo}
}

// CreateTrip publishes a new trip
// @Summary Publish a trip
// @Description Driver publishes a trip with seats for sale, optionally with priced route stops
// @Tags Trips
// @Accept json
// @Produce json
// @Param request body models.CreateTripRequest true "Trip details"
// @Success 201 {object} models.Trip "Trip published"
// @Failure 400 {object} map[string]interface{} "Invalid request"
// @Router /api/v1/trips [post]
func (h *TripHandler) CreateTrip(c *gin.Context) {
	driverID, ok := callerID(c)
	if !ok {
		return
	}

	var req models.CreateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.DepartureTime.After(time.Now()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "departure_time must be in the future"})
		return
	}

	bookingType := req.BookingType
	if bookingType == "" {
		bookingType = models.BookingTypeApproval
	}

	trip := &models.Trip{
		DriverID:             driverID,
		Status:               models.TripStatusPublished,
		Origin:               req.Origin,
		Destination:          req.Destination,
		TotalSeats:           req.TotalSeats,
		AvailableSeats:       req.TotalSeats,
		PricePerSeat:         req.PricePerSeat,
		DepartureTime:        req.DepartureTime,
		EstimatedArrivalTime: req.EstimatedArrivalTime,
		BookingType:          bookingType,
	}

	stops := make([]models.TripStop, len(req.Stops))
	for i, stop := range req.Stops {
		stops[i] = models.TripStop{
			Name:           stop.Name,
			CumulativeFare: stop.CumulativeFare,
		}
	}

	if err := h.tripRepo.CreateWithStops(trip, stops); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create trip"})
		return
	}

	c.JSON(http.StatusCreated, trip)
}

// GetTrip retrieves a trip by ID
// @Summary Get trip
// @Tags Trips
// @Produce json
// @Param id path string true "Trip ID"
// @Success 200 {object} models.Trip "Trip details"
// @Failure 404 {object} map[string]interface{} "Not found"
// @Router /api/v1/trips/{id} [get]
func (h *TripHandler) GetTrip(c *gin.Context) {
	tripID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	trip, err := h.tripRepo.GetByID(tripID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get trip"})
		return
	}
	if trip == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Trip not found"})
		return
	}

	c.JSON(http.StatusOK, trip)
}

// GetTripStops retrieves a trip's route stops
// @Summary Get trip stops
// @Tags Trips
// @Produce json
// @Param id path string true "Trip ID"
// @Success 200 {object} map[string]interface{} "Ordered route stops"
// @Router /api/v1/trips/{id}/stops [get]
func (h *TripHandler) GetTripStops(c *gin.Context) {
	tripID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	stops, err := h.tripRepo.GetStops(tripID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get trip stops"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"stops": stops})
}
