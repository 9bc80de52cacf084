package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ridelink/carpool-backend/internal/apperr"
)

// callerIDHeader carries the authenticated user's ID, injected by the API
// gateway that fronts this service.
const callerIDHeader = "X-User-ID"

// callerID extracts the authenticated caller from the request. Writes a 401
// and returns false when the header is missing or malformed.
func callerID(c *gin.Context) (uuid.UUID, bool) {
	raw := c.GetHeader(callerIDHeader)
	if raw == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user identity"})
		return uuid.Nil, false
	}
	return id, true
}

// pathUUID parses a UUID path parameter. Writes a 400 and returns false on
// a malformed value.
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

// writeError maps a classified service error to an HTTP response.
func writeError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindForbidden:
		status = http.StatusForbidden
	case apperr.KindInvalidState, apperr.KindCapacityExceeded:
		status = http.StatusConflict
	case apperr.KindGatewayFailure:
		status = http.StatusBadGateway
	case apperr.KindDataIntegrityRisk:
		status = http.StatusInternalServerError
	}

	body := gin.H{"error": err.Error()}
	if kind != "" {
		body["kind"] = string(kind)
		body["retryable"] = apperr.Retryable(err)
	}
	c.JSON(status, body)
}
