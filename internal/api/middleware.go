package api

import (
	"strings"
	"time"

	"emission-service/internal/apperr"
	"emission-service/internal/auth"
	"emission-service/internal/ids"
	"emission-service/internal/logging"
	"github.com/gin-gonic/gin"
)

const (
	principalKey    = "principal"
	requestIDHeader = "X-Request-ID"
)

func RequestLoggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = ids.UUIDv7{}.NewID()
		}
		c.Header(requestIDHeader, requestID)
		path := c.Request.URL.Path
		method := c.Request.Method
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		logger.WithRequest(requestID).Infof("Request: %s %s, Status: %d, Latency: %v", method, path, status, latency)
	}
}

// AuthMiddleware requires a bearer token. A missing token is 401; an invalid
// or expired one is 403.
func AuthMiddleware(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			respondError(c, nil, apperr.Unauthorized("missing bearer token", nil))
			return
		}
		p, err := svc.Parse(token)
		if err != nil {
			respondError(c, nil, err)
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !principal(c).IsAdmin() {
			respondError(c, nil, apperr.Forbidden("admin role required", nil))
			return
		}
		c.Next()
	}
}

func principal(c *gin.Context) auth.Principal {
	p, _ := c.Get(principalKey)
	pr, _ := p.(auth.Principal)
	return pr
}
