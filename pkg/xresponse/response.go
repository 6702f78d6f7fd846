package xresponse

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// AckResponse is the body returned when a webhook is acknowledged
type AckResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HealthResponse is the body of the root health check
type HealthResponse struct {
	Status      string `json:"status"`
	CurrentTime string `json:"current_time"`
}

// DetailResponse is the minimal body used for not-found lookups
type DetailResponse struct {
	Detail string `json:"detail"`
}

// ErrorResponse represents error response format
type ErrorResponse struct {
	Status    string      `json:"status"`
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Common error codes
const (
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
)

// Status values
const (
	StatusAccepted = "ACCEPTED"
	StatusHealthy  = "HEALTHY"
	StatusError    = "ERROR"
)

// Accepted sends 202 Accepted acknowledgment
func Accepted(c *gin.Context, message string) {
	c.JSON(http.StatusAccepted, AckResponse{
		Status:  StatusAccepted,
		Message: message,
	})
}

// Healthy sends the root health payload stamped with the current UTC time
func Healthy(c *gin.Context, now time.Time) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:      StatusHealthy,
		CurrentTime: now.UTC().Format(time.RFC3339Nano),
	})
}

// OK sends data as a bare 200 body
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Error sends error response
func Error(c *gin.Context, statusCode int, errorCode, message string) {
	ErrorWithDetails(c, statusCode, errorCode, message, nil)
}

// ErrorWithDetails sends error response with details
func ErrorWithDetails(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		Status:    StatusError,
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().Unix(),
	})
}

// ValidationError sends validation error response with field details
func ValidationError(c *gin.Context, details interface{}) {
	ErrorWithDetails(c, http.StatusBadRequest, ErrCodeValidationFailed, "Validation failed", details)
}

// NotFound sends 404 with a detail message
func NotFound(c *gin.Context, detail string) {
	c.JSON(http.StatusNotFound, DetailResponse{Detail: detail})
}

// InternalServerError sends 500 Internal Server Error response
func InternalServerError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, ErrCodeInternalError, message)
}
