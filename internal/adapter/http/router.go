package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/YelzhanWeb/caseflow/internal/adapter/logger"
	"github.com/YelzhanWeb/caseflow/internal/interfaces"
)

// NewRouter wires the case API. /health is public; everything under /v1
// requires a bearer token.
func NewRouter(handler *CaseHandler, auth interfaces.Authenticator, logger logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(LoggingMiddleware(logger))
	router.Use(RecoveryMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1")
	v1.Use(AuthMiddleware(auth, logger))
	{
		v1.POST("/cases", handler.SubmitCase)
		v1.GET("/cases/:id", handler.GetCase)
		v1.GET("/cases/:id/history", handler.GetHistory)
		v1.GET("/cases/:id/transitions", handler.GetAllowedTransitions)
		v1.POST("/cases/:id/transitions", handler.RequestTransition)
		v1.POST("/cases/:id/override", handler.OverrideStatus)
	}

	return router
}
