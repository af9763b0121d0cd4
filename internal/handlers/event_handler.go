package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tonipcv/kr-webhooks/internal/interfaces"
	"github.com/tonipcv/kr-webhooks/internal/repository"
)

type EventHandler struct {
	events interfaces.WebhookEventRepository
}

func NewEventHandler(events interfaces.WebhookEventRepository) *EventHandler {
	return &EventHandler{events: events}
}

func (h *EventHandler) GetEvent(c *gin.Context) {
	ev, err := h.events.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Webhook event not found"})
		return
	}

	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch webhook event"})
		return
	}

	c.JSON(http.StatusOK, ev)
}
