package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/smartlamp/lamplink/internal/api/handlers"
	"github.com/smartlamp/lamplink/internal/api/websocket"
)

// SetupRouter sets up the API router
func SetupRouter(
	lampHandler *handlers.LampHandler,
	notificationsHandler *handlers.NotificationsHandler,
	scheduleHandler *handlers.ScheduleHandler,
	wsHandler *websocket.Handler,
	logger *zap.Logger,
	corsAllowOrigin string,
	clock clockwork.Clock,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger, clock))

	config := cors.Config{
		AllowOrigins:  []string{corsAllowOrigin},
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if corsAllowOrigin == "*" {
		config.AllowOrigins = nil
		config.AllowAllOrigins = true
	}
	router.Use(cors.New(config))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "lamplink",
		})
	})

	// Live event stream for dashboards
	router.GET("/ws", wsHandler.HandleConnection)

	v1 := router.Group("/api/v1")
	{
		lamp := v1.Group("/lamp")
		{
			lamp.GET("/status", lampHandler.GetStatus)
			lamp.GET("/sensor-data", lampHandler.GetSensorData)
			lamp.POST("/toggle", lampHandler.Toggle)
			lamp.POST("/brightness", lampHandler.SetBrightness)
			lamp.POST("/color", lampHandler.SetColor)
		}

		presets := v1.Group("/presets")
		{
			presets.GET("", lampHandler.ListPresets)
			presets.POST("/:name", lampHandler.ApplyPreset)
		}

		conn := v1.Group("/connection")
		{
			conn.GET("", lampHandler.GetConnection)
			conn.POST("/reconnect", lampHandler.Reconnect)
		}

		notifications := v1.Group("/notifications")
		{
			notifications.GET("", notificationsHandler.ListNotifications)
			notifications.DELETE("", notificationsHandler.ClearNotifications)
			notifications.POST("/read-all", notificationsHandler.MarkAllRead)
			notifications.GET("/preferences", notificationsHandler.GetPreferences)
			notifications.PUT("/preferences", notificationsHandler.UpdatePreferences)
			notifications.POST("/:id/read", notificationsHandler.MarkRead)
			notifications.DELETE("/:id", notificationsHandler.DeleteNotification)
		}

		schedules := v1.Group("/schedules")
		{
			schedules.GET("", scheduleHandler.ListSchedules)
			schedules.POST("", scheduleHandler.CreateSchedule)
			schedules.PUT("/:id", scheduleHandler.UpdateSchedule)
			schedules.DELETE("/:id", scheduleHandler.DeleteSchedule)
		}
	}

	return router
}

// LoggerMiddleware creates a Gin middleware for logging
func LoggerMiddleware(logger *zap.Logger, clock clockwork.Clock) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := clock.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := clock.Since(start)

		if len(c.Errors) > 0 {
			for _, e := range c.Errors.Errors() {
				logger.Error("Request error", zap.String("error", e))
			}
		} else {
			logger.Debug("Request",
				zap.Int("status", c.Writer.Status()),
				zap.String("method", c.Request.Method),
				zap.String("path", path),
				zap.String("query", query),
				zap.String("ip", c.ClientIP()),
				zap.Duration("latency", latency),
			)
		}
	}
}
