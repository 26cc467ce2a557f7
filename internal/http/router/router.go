package router

import (
	"github.com/gin-gonic/gin"

	"opsdesk.app/console/internal/http/handler"
	"opsdesk.app/console/internal/http/middleware"
)

type RouterConfig struct {
	AdminAPIKey string
}

func SetupRoutes(router *gin.Engine, consoleHandler *handler.ConsoleHandler, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1", middleware.AdminKey(cfg.AdminAPIKey))
	{
		ConsoleRouter(v1.Group("/console"), consoleHandler)
	}
}

func ConsoleRouter(rg *gin.RouterGroup, h *handler.ConsoleHandler) {
	rg.POST("/:session/messages", h.Send)
	rg.GET("/:session/messages", h.History)
}
