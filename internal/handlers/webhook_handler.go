package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"

	"github.com/tonipcv/kr-webhooks/internal/interfaces"
	"github.com/tonipcv/kr-webhooks/internal/models"
	"github.com/tonipcv/kr-webhooks/internal/telemetry"
)

// WebhookHandler receives provider webhooks, verifies their signatures, and
// enqueues them as durable rows. Processing happens asynchronously in the
// worker; the provider only ever sees queued/rejected.
type WebhookHandler struct {
	events       interfaces.WebhookEventRepository
	stripeSecret string
	krxpaySecret string
}

func NewWebhookHandler(events interfaces.WebhookEventRepository, stripeSecret, krxpaySecret string) *WebhookHandler {
	return &WebhookHandler{
		events:       events,
		stripeSecret: stripeSecret,
		krxpaySecret: krxpaySecret,
	}
}

// envelope carries the few top-level fields needed to key the queue row.
type envelope struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Event string `json:"event"`
}

func (h *WebhookHandler) HandleStripe(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	eventID := ""
	eventType := ""

	if h.stripeSecret != "" {
		event, err := webhook.ConstructEvent(body, c.GetHeader("Stripe-Signature"), h.stripeSecret)
		if err != nil {
			telemetry.Logger.Warn("Rejected Stripe webhook with bad signature", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
			return
		}
		eventID = event.ID
		eventType = string(event.Type)
	} else {
		telemetry.Logger.Warn("STRIPE_WEBHOOK_SECRET unset, accepting unverified webhook")
		var env envelope
		_ = json.Unmarshal(body, &env)
		eventID = env.ID
		eventType = env.Type
	}

	if eventID == "" {
		eventID = bodyDigest(body)
	}

	h.enqueue(c, models.ProviderStripe, eventID, eventType, body)
}

func (h *WebhookHandler) HandleKrxpay(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if h.krxpaySecret != "" {
		if !h.verifyKrxpaySignature(c.GetHeader("X-Hub-Signature"), body) {
			telemetry.Logger.Warn("Rejected KRXPAY webhook with bad signature")
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
			return
		}
	} else {
		telemetry.Logger.Warn("KRXPAY_WEBHOOK_SECRET unset, accepting unverified webhook")
	}

	var env envelope
	_ = json.Unmarshal(body, &env)

	eventType := env.Type
	if eventType == "" {
		eventType = env.Event
	}
	eventID := env.ID
	if eventID == "" {
		eventID = bodyDigest(body)
	}

	h.enqueue(c, models.ProviderPagarme, eventID, eventType, body)
}

// Replay re-arms an event row for immediate reclaim, inserting a fresh row
// when the provider event was never seen.
func (h *WebhookHandler) Replay(c *gin.Context) {
	provider := strings.ToLower(c.Param("provider"))
	eventID := c.Param("eventID")

	if provider != models.ProviderStripe && provider != models.ProviderPagarme {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown provider"})
		return
	}

	if err := h.events.Publish(c.Request.Context(), provider, eventID, "", ""); err != nil {
		telemetry.Logger.Error("Failed to replay webhook event",
			zap.String("provider", provider),
			zap.String("provider_event_id", eventID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to replay event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            "queued",
		"provider":          provider,
		"provider_event_id": eventID,
	})
}

func (h *WebhookHandler) enqueue(c *gin.Context, provider, eventID, eventType string, body []byte) {
	if err := h.events.Publish(c.Request.Context(), provider, eventID, eventType, string(body)); err != nil {
		telemetry.Logger.Error("Failed to enqueue webhook event",
			zap.String("provider", provider),
			zap.String("provider_event_id", eventID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue event"})
		return
	}

	telemetry.EventsReceived.WithLabelValues(provider).Inc()
	c.JSON(http.StatusOK, gin.H{"status": "queued", "provider_event_id": eventID})
}

func (h *WebhookHandler) verifyKrxpaySignature(header string, body []byte) bool {
	signature := strings.TrimPrefix(header, "sha256=")
	expected, err := hex.DecodeString(signature)
	if err != nil || len(expected) == 0 {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.krxpaySecret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

// bodyDigest derives a stable provider event id for payloads that carry
// none, keeping republished deliveries deduplicated.
func bodyDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return "evt_" + hex.EncodeToString(sum[:12])
}
