// Package httpapi is the organism's external HTTP surface: chat-adapter
// event ingestion plus operational /status and /sleep endpoints (spec.md
// §6's "perception adapters" and the CLI's status/sleep commands,
// surfaced over HTTP for non-CLI callers).
//
// Grounded on the teacher's internal/http/{router,chat_handler}.go: same
// gin.New() + zap request-logging + recovery middleware shape, same
// handler-struct-holding-its-dependencies pattern, generalised from
// session/message/clone endpoints to a single event-ingestion endpoint
// since the organism has one conversation partner per conversation_id
// rather than a multi-user session model (spec.md Non-goals).
package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter wires the logging/recovery/CORS middleware chain and mounts
// every handler group, mirroring the teacher's NewRouter composition.
func NewRouter(logger *zap.Logger, eventsH *EventsHandler, statusH *StatusHandler, sleepH *SleepHandler, allowedOrigins []string) *gin.Engine {
	r := gin.New()

	corsConfig := cors.DefaultConfig()
	if len(allowedOrigins) > 0 {
		corsConfig.AllowOrigins = allowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Authorization"}

	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), cors.New(corsConfig), jsonContentTypeMiddleware())

	r.POST("/events", eventsH.PostEvent)
	r.GET("/status", statusH.GetStatus)
	r.POST("/sleep", sleepH.PostSleep)

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
