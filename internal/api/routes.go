package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
)

// SetupRoutes sets up the API routes
func SetupRoutes(handler *Handler, logger *slog.Logger) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(Recovery())
	router.Use(CORS())
	router.Use(Logger(logger))

	// Health check
	router.GET("/health", handler.HealthCheck)

	// API v1
	v1 := router.Group("/api/v1")
	{
		report := v1.Group("/report")
		{
			report.GET("", handler.GetReport)
			report.GET("/summary", handler.GetSummary)
			report.GET("/channels", handler.GetChannels)
			report.GET("/channels/:slug", handler.GetChannel)
		}

		runs := v1.Group("/runs")
		{
			runs.GET("", handler.GetRuns)
			runs.GET("/:id/outcomes", handler.GetRunOutcomes)
		}

		v1.GET("/channels/:slug/history", handler.GetChannelHistory)
	}

	return router
}
