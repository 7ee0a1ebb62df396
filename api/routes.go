package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func SetupRoutes(router *gin.Engine, h *Handlers, wsHub *WebSocketHub) {
	router.Use(CORSMiddleware())
	router.Use(AccessLog(h.logger))

	router.GET("/health", h.Health)

	// Sync jobs. /api/device-sync is kept for existing front ends.
	for _, base := range []string{"/sync", "/api/device-sync"} {
		sync := router.Group(base)
		{
			sync.POST("", h.StartSync)
			sync.GET("/:id", h.GetSync)
		}
	}

	api := router.Group("/api")
	{
		api.GET("/devices", h.GetDevices)

		admin := api.Group("/admin")
		{
			admin.GET("", h.GetServerConfig)
			admin.PUT("", h.UpdateServerConfig)

			devices := admin.Group("/devices")
			{
				devices.GET("", h.ListRawDevices)
				devices.POST("", h.CreateDevice)
				devices.GET("/:name", h.GetRawDevice)
				devices.PUT("/:name", h.UpdateDevice)
				devices.DELETE("/:name", h.DeleteDevice)
			}
		}
	}

	// Live job log stream
	router.GET("/ws", func(c *gin.Context) {
		HandleWebSocket(wsHub, c)
	})
}

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// AccessLog writes one line per request: warn for 4xx, error for 5xx.
func AccessLog(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := logger.Info()
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
