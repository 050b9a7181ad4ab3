package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"console-service/internal/services"
)

// ErrorResponse sends a standardized error response
// Internal errors are logged but not exposed to clients
func ErrorResponse(c *gin.Context, statusCode int, message string, err error) {
	requestID := getRequestID(c)

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"request_id": requestID,
			"status":     statusCode,
		}).WithError(err).Error(message)
	}

	response := gin.H{
		"success":    false,
		"message":    message,
		"request_id": requestID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}

	// Only include error details in development mode
	if gin.Mode() == gin.DebugMode && err != nil {
		response["error_details"] = err.Error()
	}

	c.JSON(statusCode, response)
}

// SuccessResponse sends a standardized success response
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	response := gin.H{
		"success":    true,
		"message":    message,
		"request_id": getRequestID(c),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}

	if data != nil {
		response["data"] = data
	}

	c.JSON(statusCode, response)
}

// ServiceErrorResponse maps the typed service errors onto HTTP statuses.
// Unknown errors become a generic 500 without exposing internals.
func ServiceErrorResponse(c *gin.Context, err error) {
	if notFound, ok := services.IsNotFoundError(err); ok {
		ErrorResponse(c, http.StatusNotFound, notFound.Error(), nil)
		return
	}
	if validation, ok := services.IsValidationError(err); ok {
		ErrorResponse(c, http.StatusBadRequest, validation.Error(), nil)
		return
	}
	if depth, ok := services.IsDepthExceededError(err); ok {
		ErrorResponse(c, http.StatusUnprocessableEntity, depth.Error(), nil)
		return
	}
	if circular, ok := services.IsCircularReferenceError(err); ok {
		ErrorResponse(c, http.StatusUnprocessableEntity, circular.Error(), nil)
		return
	}
	if children, ok := services.IsHasChildrenError(err); ok {
		ErrorResponse(c, http.StatusConflict, children.Error(), nil)
		return
	}
	if conflict, ok := services.IsSlugConflictError(err); ok {
		ErrorResponse(c, http.StatusConflict, conflict.Error(), nil)
		return
	}
	ErrorResponse(c, http.StatusInternalServerError, "Internal server error", err)
}

// getRequestID retrieves the request ID set by the middleware
func getRequestID(c *gin.Context) string {
	if requestID, exists := c.Get("request_id"); exists {
		return requestID.(string)
	}
	if requestID := c.GetHeader("X-Request-ID"); requestID != "" {
		return requestID
	}
	return time.Now().Format("20060102150405")
}
