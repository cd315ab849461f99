package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/podshelf/podshelf/app/cfg"
)

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler) *gin.Engine {
	// Set Gin mode (can be controlled via GIN_MODE environment variable)
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// Middleware
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	r.Use(gin.Recovery())

	// CORS middleware for API endpoints
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, HEAD, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Range")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Routes
	setupRoutes(r, handler)

	return r
}

// setupRoutes configures all the application routes
func setupRoutes(r *gin.Engine, handler *Handler) {
	// Catalogue endpoints
	r.GET("/channels", handler.ListChannels)
	r.POST("/channels", handler.CreateChannel)
	r.GET("/channels/:channelid", handler.GetChannel)
	r.POST("/channels/:channelid/refresh", handler.RefreshChannel)
	r.GET("/channels/:channelid/items", handler.ListChannelItems)
	r.GET("/channels/:channelid/items/:itemid", handler.GetItem)
	r.HEAD("/channels/:channelid/items/:itemid", handler.HeadItem)

	// Health and status endpoints
	r.GET("/health", handler.GetHealth)
	r.GET("/stats", handler.GetStats)

	// Root endpoint with basic information
	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"service":     "Podshelf",
			"version":     cfg.GetVersion(),
			"description": "Podcast feed aggregator with a synchronized channel/item catalogue and enclosure forwarding",
			"endpoints": map[string]string{
				"channels": "/channels",
				"channel":  "/channels/<id>",
				"items":    "/channels/<id>/items",
				"item":     "/channels/<id>/items/<itemid> (Accept: application/json or audio/mpeg)",
				"refresh":  "/channels/<id>/refresh (POST)",
				"health":   "/health",
				"stats":    "/stats",
			},
		})
	})

	// Favicon handler (return 204 to avoid 404s)
	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})
}
