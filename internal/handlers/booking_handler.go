package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ridelink/carpool-backend/internal/database"
	"github.com/ridelink/carpool-backend/internal/models"
	"github.com/ridelink/carpool-backend/internal/services"
)

// BookingHandler exposes the booking lifecycle over HTTP
type BookingHandler struct {
	service     *services.BookingService
	bookingRepo *database.BookingRepository
	tripRepo    *database.TripRepository
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(
	service *services.BookingService,
	bookingRepo *database.BookingRepository,
	tripRepo *database.TripRepository,
) *BookingHandler {
	return &BookingHandler{
		service:     service,
		bookingRepo: bookingRepo,
		tripRepo:    tripRepo,
	}
}

// CreateBooking creates a new booking request
// @Summary Create a booking
// @Description Request seats on a trip, optionally for a partial route segment
// @Tags Bookings
// @Accept json
// @Produce json
// @Param request body models.CreateBookingRequest true "Booking request"
// @Success 201 {object} models.Booking "Booking created"
// @Failure 400 {object} map[string]interface{} "Invalid request"
// @Failure 404 {object} map[string]interface{} "Trip not found"
// @Failure 409 {object} map[string]interface{} "Trip not bookable"
// @Router /api/v1/bookings [post]
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	passengerID, ok := callerID(c)
	if !ok {
		return
	}

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	booking, err := h.service.Create(c.Request.Context(), passengerID, &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, booking)
}

// GetBooking retrieves a booking by ID
// @Summary Get booking
// @Description Get booking details; visible to its passenger and the trip driver
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} models.Booking "Booking details"
// @Failure 403 {object} map[string]interface{} "Not a participant"
// @Failure 404 {object} map[string]interface{} "Not found"
// @Router /api/v1/bookings/{id} [get]
func (h *BookingHandler) GetBooking(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	bookingID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	booking, err := h.bookingRepo.GetByID(bookingID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get booking"})
		return
	}
	if booking == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
		return
	}

	if booking.PassengerID != caller {
		trip, err := h.tripRepo.GetByID(booking.TripID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get trip"})
			return
		}
		if trip == nil || trip.DriverID != caller {
			c.JSON(http.StatusForbidden, gin.H{"error": "Not authorized to view this booking"})
			return
		}
	}

	c.JSON(http.StatusOK, booking)
}

// GetMyBookings lists the caller's bookings
// @Summary List my bookings
// @Tags Bookings
// @Produce json
// @Param limit query int false "Limit" default(20)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} map[string]interface{} "List of bookings"
// @Router /api/v1/bookings [get]
func (h *BookingHandler) GetMyBookings(c *gin.Context) {
	passengerID, ok := callerID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	bookings, err := h.bookingRepo.ListByPassenger(passengerID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get bookings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"limit":    limit,
		"offset":   offset,
	})
}

// GetTripBookings lists all bookings on a trip (driver only)
// @Summary List trip bookings
// @Tags Bookings
// @Produce json
// @Param id path string true "Trip ID"
// @Success 200 {object} map[string]interface{} "List of bookings"
// @Failure 403 {object} map[string]interface{} "Not the trip driver"
// @Router /api/v1/trips/{id}/bookings [get]
func (h *BookingHandler) GetTripBookings(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
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
	if trip.DriverID != caller {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not authorized to view this trip's bookings"})
		return
	}

	bookings, err := h.bookingRepo.ListByTrip(tripID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get bookings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

// AcceptBooking accepts a pending booking (driver)
// @Summary Accept a booking
// @Description Driver accepts a pending request, opening the payment window
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} models.Booking "Booking awaiting payment"
// @Failure 403 {object} map[string]interface{} "Not the trip driver"
// @Failure 409 {object} map[string]interface{} "Booking not pending"
// @Router /api/v1/bookings/{id}/accept [post]
func (h *BookingHandler) AcceptBooking(c *gin.Context) {
	driverID, ok := callerID(c)
	if !ok {
		return
	}
	bookingID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	booking, err := h.service.Accept(bookingID, driverID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// RejectBooking declines a pending booking (driver)
// @Summary Reject a booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param request body models.RejectBookingRequest false "Optional reason"
// @Success 200 {object} models.Booking "Booking rejected"
// @Failure 403 {object} map[string]interface{} "Not the trip driver"
// @Failure 409 {object} map[string]interface{} "Booking not pending"
// @Router /api/v1/bookings/{id}/reject [post]
func (h *BookingHandler) RejectBooking(c *gin.Context) {
	driverID, ok := callerID(c)
	if !ok {
		return
	}
	bookingID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req models.RejectBookingRequest
	c.ShouldBindJSON(&req) // Reason is optional

	booking, err := h.service.Reject(bookingID, driverID, &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// PayBooking charges the passenger and confirms the booking
// @Summary Pay for a booking
// @Description Charge the payment token, reserve seats and confirm the booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param request body models.ProcessPaymentRequest true "Payment token"
// @Success 200 {object} models.Booking "Booking confirmed"
// @Failure 402 {object} map[string]interface{} "Charge declined"
// @Failure 409 {object} map[string]interface{} "No seats left or window expired"
// @Router /api/v1/bookings/{id}/pay [post]
func (h *BookingHandler) PayBooking(c *gin.Context) {
	passengerID, ok := callerID(c)
	if !ok {
		return
	}
	bookingID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req models.ProcessPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	booking, err := h.service.ProcessPayment(c.Request.Context(), bookingID, passengerID, &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// CheckInByQR checks a passenger in from a scanned QR code (driver)
// @Summary Check in by QR
// @Tags Check-in
// @Accept json
// @Produce json
// @Param request body models.CheckInByQRRequest true "Scanned QR payload"
// @Success 200 {object} models.Booking "Booking checked in"
// @Failure 403 {object} map[string]interface{} "Not the trip driver"
// @Failure 409 {object} map[string]interface{} "Booking not confirmed"
// @Router /api/v1/check-in/qr [post]
func (h *BookingHandler) CheckInByQR(c *gin.Context) {
	driverID, ok := callerID(c)
	if !ok {
		return
	}

	var req models.CheckInByQRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	booking, err := h.service.CheckIn(c.Request.Context(), driverID, req.QRCode)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// CheckInByPNR checks a passenger in from a typed PNR code (driver)
// @Summary Check in by PNR
// @Description Fallback check-in when the QR cannot be scanned
// @Tags Check-in
// @Accept json
// @Produce json
// @Param request body models.CheckInByPNRRequest true "Trip and PNR code"
// @Success 200 {object} models.Booking "Booking checked in"
// @Failure 403 {object} map[string]interface{} "Not the trip driver"
// @Failure 409 {object} map[string]interface{} "PNR belongs to another trip"
// @Router /api/v1/check-in/pnr [post]
func (h *BookingHandler) CheckInByPNR(c *gin.Context) {
	driverID, ok := callerID(c)
	if !ok {
		return
	}

	var req models.CheckInByPNRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	booking, err := h.service.CheckInByPNR(c.Request.Context(), driverID, &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// CompleteBooking marks a checked-in booking completed (passenger)
// @Summary Complete a booking
// @Description Passenger confirms the ride finished, opening the dispute window
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} models.Booking "Booking completed"
// @Failure 403 {object} map[string]interface{} "Not the booking passenger"
// @Failure 409 {object} map[string]interface{} "Booking not checked in"
// @Router /api/v1/bookings/{id}/complete [post]
func (h *BookingHandler) CompleteBooking(c *gin.Context) {
	passengerID, ok := callerID(c)
	if !ok {
		return
	}
	bookingID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	booking, err := h.service.CompleteByPassenger(bookingID, passengerID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// DisputeBooking opens a dispute on a completed booking
// @Summary Raise a dispute
// @Description Freeze the remaining payout while the dispute window is open
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param request body models.RaiseDisputeRequest true "Dispute reason"
// @Success 200 {object} models.Booking "Booking disputed"
// @Failure 403 {object} map[string]interface{} "Not a participant"
// @Failure 409 {object} map[string]interface{} "Dispute window closed"
// @Router /api/v1/bookings/{id}/dispute [post]
func (h *BookingHandler) DisputeBooking(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	bookingID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req models.RaiseDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	booking, err := h.service.RaiseDispute(bookingID, caller, &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// CancelBooking cancels a booking
// @Summary Cancel a booking
// @Description Cancel as passenger or driver; refund follows the departure-time tiers
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param request body models.CancelBookingRequest false "Optional reason"
// @Success 200 {object} models.Booking "Booking cancelled"
// @Failure 403 {object} map[string]interface{} "Not a participant"
// @Failure 409 {object} map[string]interface{} "Booking already terminal"
// @Router /api/v1/bookings/{id}/cancel [post]
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	bookingID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req models.CancelBookingRequest
	c.ShouldBindJSON(&req) // Reason is optional

	booking, err := h.service.Cancel(c.Request.Context(), bookingID, caller, &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}
