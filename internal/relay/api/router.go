package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chatrelay/chatrelay/internal/common/logger"
	"github.com/chatrelay/chatrelay/internal/relay/service"
)

// SetupRoutes configures the relay API routes
func SetupRoutes(router *gin.Engine, svc *service.Service, log *logger.Logger) {
	handler := NewHandler(svc, log)

	router.GET("/health", handler.HealthCheck)
	router.POST("/upload", handler.Submit)
	router.POST("/webhook/response/:messageId", handler.Webhook)

	api := router.Group("/api")
	{
		api.GET("/response/:messageId", handler.GetResponse)
		api.GET("/debug/messages", handler.DebugMessages)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
