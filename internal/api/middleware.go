package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// RequestIDMiddleware assigns a request id, accepting one supplied by the
// caller so traces can be correlated across services.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// LoggingMiddleware logs each request with structured fields.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery
		requestID := getRequestID(c)

		c.Next()

		latency := time.Since(start)
		if raw != "" {
			path = path + "?" + raw
		}

		entry := log.WithFields(log.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       path,
			"status":     c.Writer.Status(),
			"latency":    latency,
			"client_ip":  c.ClientIP(),
		})

		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.Error("http request completed")
		case status >= 400:
			entry.Warn("http request completed")
		default:
			entry.Info("http request completed")
		}
	}
}

// RecoveryMiddleware turns a panic in a handler into a 500 response
// instead of crashing the dispatcher/registry's host process.
func RecoveryMiddleware() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		requestID := getRequestID(c)
		log.WithFields(log.Fields{
			"request_id": requestID,
			"panic":      recovered,
			"path":       c.Request.URL.Path,
			"method":     c.Request.Method,
		}).Error("panic recovered in http handler")
		InternalError(c, "internal server error", map[string]interface{}{"request_id": requestID})
	})
}

// ValidateContentTypeMiddleware rejects a non-JSON body on a mutating
// request before it reaches gojsonschema/binding validation.
func ValidateContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case "POST", "PUT", "PATCH":
			if ct := c.GetHeader("Content-Type"); ct != "" && ct != "application/json" {
				BadRequestError(c, "Content-Type must be application/json", map[string]string{"received": ct})
				c.Abort()
				return
			}
		}
		c.Next()
	}
}
