package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ridelink/carpool-backend/internal/database"
	"github.com/ridelink/carpool-backend/internal/models"
	"github.com/ridelink/carpool-backend/internal/services"
)

// PayoutHandler exposes driver payout operations over HTTP
type PayoutHandler struct {
	service     *services.PayoutService
	ledgerRepo  *database.PayoutLedgerRepository
	accountRepo *database.DriverAccountRepository
	bookingRepo *database.BookingRepository
	tripRepo    *database.TripRepository
}

// NewPayoutHandler creates a new PayoutHandler
func NewPayoutHandler(
	service *services.PayoutService,
	ledgerRepo *database.PayoutLedgerRepository,
	accountRepo *database.DriverAccountRepository,
	bookingRepo *database.BookingRepository,
	tripRepo *database.TripRepository,
) *PayoutHandler {
	return &PayoutHandler{
		service:     service,
		ledgerRepo:  ledgerRepo,
		accountRepo: accountRepo,
		bookingRepo: bookingRepo,
		tripRepo:    tripRepo,
	}
}

// RegisterPayoutAccount registers the driver's bank account with the provider
// @Summary Register payout account
// @Description Register a bank account at the payment provider for payout transfers
// @Tags Payouts
// @Accept json
// @Produce json
// @Param request body models.RegisterPayoutAccountRequest true "Bank account details"
// @Success 200 {object} models.DriverAccount "Account registered"
// @Failure 400 {object} map[string]interface{} "Invalid request"
// @Failure 502 {object} map[string]interface{} "Provider unavailable"
// @Router /api/v1/driver/payout-account [post]
func (h *PayoutHandler) RegisterPayoutAccount(c *gin.Context) {
	driverID, ok := callerID(c)
	if !ok {
		return
	}

	var req models.RegisterPayoutAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	account, err := h.service.RegisterPayoutAccount(c.Request.Context(), driverID, &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, account)
}

// GetDriverAccount returns the caller's wallet balance and payout account state
// @Summary Get driver account
// @Tags Payouts
// @Produce json
// @Success 200 {object} models.DriverAccount "Wallet and payout account"
// @Failure 404 {object} map[string]interface{} "No account yet"
// @Router /api/v1/driver/account [get]
func (h *PayoutHandler) GetDriverAccount(c *gin.Context) {
	driverID, ok := callerID(c)
	if !ok {
		return
	}

	account, err := h.accountRepo.GetByDriverID(driverID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get driver account"})
		return
	}
	if account == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Driver account not found"})
		return
	}

	c.JSON(http.StatusOK, account)
}

// GetBookingPayout returns the payout ledger for a booking (trip driver only)
// @Summary Get booking payout ledger
// @Tags Payouts
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} models.PayoutLedger "Ledger"
// @Failure 403 {object} map[string]interface{} "Not the trip driver"
// @Failure 404 {object} map[string]interface{} "No ledger yet"
// @Router /api/v1/bookings/{id}/payout [get]
func (h *PayoutHandler) GetBookingPayout(c *gin.Context) {
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

	trip, err := h.tripRepo.GetByID(booking.TripID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get trip"})
		return
	}
	if trip == nil || trip.DriverID != caller {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not authorized to view this payout"})
		return
	}

	ledger, err := h.ledgerRepo.GetByBookingID(bookingID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get payout ledger"})
		return
	}
	if ledger == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No payout ledger for this booking yet"})
		return
	}

	c.JSON(http.StatusOK, ledger)
}

// ReleasePayoutStage manually retries one payout stage for a booking.
// Operational endpoint for clearing held payouts without waiting for the
// settlement sweep.
// @Summary Release a payout stage
// @Tags Payouts
// @Produce json
// @Param id path string true "Booking ID"
// @Param stage path int true "Payout stage (10 or 90)"
// @Success 200 {object} map[string]interface{} "Release outcome"
// @Failure 400 {object} map[string]interface{} "Unknown stage"
// @Failure 404 {object} map[string]interface{} "Booking not found"
// @Router /api/v1/bookings/{id}/payout/release/{stage} [post]
func (h *PayoutHandler) ReleasePayoutStage(c *gin.Context) {
	bookingID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	stage, err := strconv.Atoi(c.Param("stage"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid stage"})
		return
	}

	result, err := h.service.ReleaseStage(c.Request.Context(), bookingID, stage)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"booking_id": bookingID,
		"stage":      stage,
		"result":     result,
	})
}

// ConfirmPayoutAccount applies the provider's verification outcome for a
// driver's payout account. Registration normally leaves the account pending;
// this webhook is how it ever reaches verified.
// @Summary Payout account verification webhook
// @Tags Payouts
// @Accept json
// @Produce json
// @Param request body models.PayoutAccountStatusRequest true "Verification outcome"
// @Success 200 {object} models.DriverAccount "Updated account"
// @Failure 404 {object} map[string]interface{} "No account registered"
// @Router /api/v1/webhooks/payout-accounts [post]
func (h *PayoutHandler) ConfirmPayoutAccount(c *gin.Context) {
	var req models.PayoutAccountStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	account, err := h.service.ConfirmPayoutAccount(req.DriverID, req.Verified)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, account)
}

// ClearPayoutHold lifts a booking's payout hold after the cause was handled
// out of band, so the next sweep retries the release.
// @Summary Clear a payout hold
// @Tags Payouts
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} models.PayoutLedger "Ledger after the hold clear"
// @Failure 404 {object} map[string]interface{} "Booking or ledger not found"
// @Failure 409 {object} map[string]interface{} "Not held, or dispute still open"
// @Router /api/v1/admin/bookings/{id}/payout/clear-hold [post]
func (h *PayoutHandler) ClearPayoutHold(c *gin.Context) {
	bookingID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	ledger, err := h.service.ClearPayoutHold(bookingID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, ledger)
}
