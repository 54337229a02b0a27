package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/YelzhanWeb/caseflow/internal/adapter/logger"
	"github.com/YelzhanWeb/caseflow/internal/domain"
	"github.com/YelzhanWeb/caseflow/internal/interfaces"
)

const (
	requestIDHeader = "X-Request-ID"
	ctxRequestID    = "request_id"
	ctxActor        = "actor"
)

func LoggingMiddleware(logger logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(ctxRequestID, requestID)
		c.Header(requestIDHeader, requestID)

		logger.Debug("http_request", fmt.Sprintf("%s %s", c.Request.Method, c.Request.URL.Path), requestID, map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		})

		c.Next()

		logger.Debug("http_response", "Request completed", requestID, map[string]interface{}{
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}
}

func RecoveryMiddleware(logger logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("panic_recovered", "Panic recovered", requestID(c), nil, fmt.Errorf("%v", recovered))
		c.AbortWithStatusJSON(http.StatusInternalServerError, newErrorResponse("InternalError", "internal server error", nil))
	})
}

// AuthMiddleware requires a valid bearer token and stores the actor on the
// gin context.
func AuthMiddleware(auth interfaces.Authenticator, logger logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse("Unauthorized", "missing bearer token", nil))
			return
		}

		actor, err := auth.Authenticate(c.Request.Context(), strings.TrimSpace(header[7:]))
		if err != nil {
			logger.Debug("auth_failed", "Rejected bearer token", requestID(c), map[string]interface{}{"error": err.Error()})
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse("Unauthorized", "invalid bearer token", nil))
			return
		}

		c.Set(ctxActor, actor)
		c.Next()
	}
}

func actorFrom(c *gin.Context) domain.Actor {
	if v, ok := c.Get(ctxActor); ok {
		if actor, ok := v.(domain.Actor); ok {
			return actor
		}
	}
	return domain.Actor{}
}

func requestID(c *gin.Context) string {
	return c.GetString(ctxRequestID)
}
