package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tonipcv/kr-webhooks/internal/handlers"
	"github.com/tonipcv/kr-webhooks/internal/interfaces"
	"github.com/tonipcv/kr-webhooks/internal/telemetry"
)

func NewRouter(events interfaces.WebhookEventRepository, stripeSecret, krxpaySecret string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "kr-webhooks"})
	})

	webhookHandler := handlers.NewWebhookHandler(events, stripeSecret, krxpaySecret)
	r.POST("/webhooks/stripe", webhookHandler.HandleStripe)
	r.POST("/webhooks/krxpay", webhookHandler.HandleKrxpay)
	r.POST("/replay/:provider/:eventID", webhookHandler.Replay)

	eventHandler := handlers.NewEventHandler(events)
	r.GET("/webhook-events/:id", eventHandler.GetEvent)

	return r
}
