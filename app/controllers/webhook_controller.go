package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ShahriarSojib/MarketHub/internal/pkg/billing"
	metrics "github.com/ShahriarSojib/MarketHub/internal/pkg/metrics/counter"
)

var webhookDispatcher *billing.Dispatcher

// InitializeWebhookController wires the shared dispatcher. Its processor
// client goes through the same process-wide limiter as the batch jobs, so
// a burst of event deliveries cannot exceed the outbound concurrency bound.
func InitializeWebhookController(d *billing.Dispatcher) {
	webhookDispatcher = d
}

// HandleStripeWebhook receives Stripe event deliveries. The route must be
// mounted without any body-transforming middleware: signature verification
// needs the exact bytes Stripe sent.
func HandleStripeWebhook(c *fiber.Ctx) error {
	if webhookDispatcher == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "unavailable", "message": "Webhook dispatcher not initialized"})
	}

	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := webhookDispatcher.Handle(ctx, rawBody, signature); err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}

	_ = metrics.AddWebhookEvent(eventTypeForCounter(rawBody))
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}

// eventTypeForCounter pulls the type field out of the payload, for the
// received-events counter only.
func eventTypeForCounter(payload []byte) string {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &head); err != nil || head.Type == "" {
		return "unknown"
	}
	return head.Type
}
