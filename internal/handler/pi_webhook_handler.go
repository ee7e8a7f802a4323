package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"voyago/config"
	"voyago/internal/monitoring"
	"voyago/internal/service"
	"voyago/pkg/pinetwork"
)

// PiWebhookHandler receives payment callbacks from the Pi platform.
// Signature and timestamp are checked before the body is even parsed.
type PiWebhookHandler struct {
	svc *service.PaymentService
	cfg *config.PiConfig
}

func NewPiWebhookHandler(svc *service.PaymentService, cfg *config.PiConfig) *PiWebhookHandler {
	return &PiWebhookHandler{svc: svc, cfg: cfg}
}

func (h *PiWebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	ts := c.GetHeader(pinetwork.HeaderTimestamp)
	sig := c.GetHeader(pinetwork.HeaderSignature)
	if !pinetwork.VerifySignature(h.cfg.WebhookSecret, ts, body, sig) {
		monitoring.TrackWebhookEvent("unknown", "rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}
	if !pinetwork.FreshTimestamp(ts, time.Now(), pinetwork.ReplayWindow) {
		monitoring.TrackWebhookEvent("unknown", "rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": "stale timestamp"})
		return
	}

	var event pinetwork.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if event.Payment.Identifier == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payment identifier required"})
		return
	}

	_, replay, err := h.svc.HandleWebhookEvent(c.Request.Context(), event.Event, event.Payment)
	if err != nil {
		switch {
		case err == service.ErrUnknownEvent:
			monitoring.TrackWebhookEvent(event.Event, "rejected")
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown event"})
		case errors.Is(err, gorm.ErrRecordNotFound):
			// A payment this store never saw. Acknowledge so the
			// provider stops retrying.
			monitoring.TrackWebhookEvent(event.Event, "ignored")
			c.JSON(http.StatusOK, gin.H{"received": true})
		default:
			log.Printf("[webhook] %s %s: %v", event.Event, event.Payment.Identifier, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		}
		return
	}
	if replay {
		monitoring.TrackWebhookEvent(event.Event, "duplicate")
		c.JSON(http.StatusOK, gin.H{"received": true, "message": "already processed"})
		return
	}
	monitoring.TrackWebhookEvent(event.Event, "processed")
	c.JSON(http.StatusOK, gin.H{"received": true})
}
