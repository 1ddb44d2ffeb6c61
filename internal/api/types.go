package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Response is the standard envelope for every API response.
type Response struct {
	Success  bool        `json:"success"`
	Data     interface{} `json:"data,omitempty"`
	Error    *ErrorInfo  `json:"error,omitempty"`
	Metadata *Metadata   `json:"metadata"`
}

// ErrorInfo carries error detail in an envelope.
type ErrorInfo struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id"`
}

// Metadata accompanies every response.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
	Version   string    `json:"version"`
}

// Common error codes: the plain HTTP ones plus codes for the
// IllegalTransition, DependencyBlocked and StepExecutionFailed kinds. The
// other kinds are reported under the plain HTTP codes, and no handler
// writes ErrorCodeIllegalTransition (IllegalTransition is sent as
// CONFLICT).
const (
	ErrorCodeBadRequest         = "BAD_REQUEST"
	ErrorCodeNotFound           = "NOT_FOUND"
	ErrorCodeConflict           = "CONFLICT"
	ErrorCodeValidation         = "VALIDATION_ERROR"
	ErrorCodeInternalError      = "INTERNAL_ERROR"
	ErrorCodeIllegalTransition  = "ILLEGAL_TRANSITION"
	ErrorCodeDependencyBlocked  = "DEPENDENCY_BLOCKED"
	ErrorCodeStepExecutionError = "STEP_EXECUTION_FAILED"
)

// SuccessResponse writes a 200 envelope around data.
func SuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Success: true,
		Data:    data,
		Metadata: &Metadata{
			Timestamp: time.Now(),
			RequestID: getRequestID(c),
			Version:   "v1",
		},
	})
}

// CreatedResponse writes a 201 envelope around data.
func CreatedResponse(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Success: true,
		Data:    data,
		Metadata: &Metadata{
			Timestamp: time.Now(),
			RequestID: getRequestID(c),
			Version:   "v1",
		},
	})
}

// ErrorResponse writes a statusCode envelope around an error.
func ErrorResponse(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.JSON(statusCode, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      errorCode,
			Message:   message,
			Details:   details,
			Timestamp: time.Now(),
			RequestID: getRequestID(c),
		},
		Metadata: &Metadata{
			Timestamp: time.Now(),
			RequestID: getRequestID(c),
			Version:   "v1",
		},
	})
}

func BadRequestError(c *gin.Context, message string, details interface{}) {
	ErrorResponse(c, 400, ErrorCodeBadRequest, message, details)
}

func NotFoundError(c *gin.Context, message string) {
	ErrorResponse(c, 404, ErrorCodeNotFound, message, nil)
}

func ConflictError(c *gin.Context, message string, details interface{}) {
	ErrorResponse(c, 409, ErrorCodeConflict, message, details)
}

func ValidationError(c *gin.Context, message string, details interface{}) {
	ErrorResponse(c, 422, ErrorCodeValidation, message, details)
}

func InternalError(c *gin.Context, message string, details interface{}) {
	ErrorResponse(c, 500, ErrorCodeInternalError, message, details)
}

// getRequestID extracts or generates a request ID for tracing.
func getRequestID(c *gin.Context) string {
	if requestID := c.GetHeader("X-Request-ID"); requestID != "" {
		return requestID
	}
	if requestID, exists := c.Get("request_id"); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return uuid.New().String()
}
