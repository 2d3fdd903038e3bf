package handlers

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-mailorder-bridge/internal/metrics"
)

const (
	headerAPIKey    = "X-API-Key"
	headerRequestID = "X-Request-Id"
	ctxRequestID    = "request_id"
)

// RequestID tags every request with an id, reusing the caller's when given.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// AccessLog logs one line per request and counts it when m is set.
func AccessLog(log *logrus.Entry, m *metrics.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		entry := log.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
			"request_id": c.GetString(ctxRequestID),
		})
		if status >= http.StatusInternalServerError {
			entry.Error("request failed")
		} else {
			entry.Info("request handled")
		}
		if m != nil {
			m.Requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(status)).Inc()
		}
	}
}

// APIKeyAuth checks the shared secret header. An empty key disables the
// check.
func APIKeyAuth(key string, log *logrus.Entry) gin.HandlerFunc {
	if key == "" {
		log.Warn("API key not configured, authentication disabled")
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		provided := c.GetHeader(headerAPIKey)
		if provided == "" {
			log.WithField("client_ip", c.ClientIP()).Warn("request without API key")
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{
				Error:   "missing_api_key",
				Message: "add the X-API-Key header with a valid key",
			})
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			log.WithField("client_ip", c.ClientIP()).Warn("invalid API key")
			c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{
				Error:   "invalid_api_key",
				Message: "the provided API key is not valid",
			})
			return
		}
		c.Next()
	}
}
