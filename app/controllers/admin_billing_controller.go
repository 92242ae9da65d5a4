package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	metrics "github.com/ShahriarSojib/MarketHub/internal/pkg/metrics/counter"
	"github.com/ShahriarSojib/MarketHub/internal/pkg/subsync"
)

var adminSynchronizer *subsync.Synchronizer

// InitializeBillingAdminController wires the shared synchronizer so manual
// triggers run through the same process-wide limiter as the scheduled jobs.
func InitializeBillingAdminController(s *subsync.Synchronizer) {
	adminSynchronizer = s
}

// HandleTriggerSync runs one full subscription sync and returns its summary.
func HandleTriggerSync(c *fiber.Ctx) error {
	if adminSynchronizer == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "unavailable", "message": "Synchronizer not initialized"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	summary, err := adminSynchronizer.SyncAll(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "sync_failed", "message": err.Error(), "summary": summary})
	}
	return c.JSON(summary)
}

// HandleTriggerExpirySweep runs one expiry sweep and returns its summary.
func HandleTriggerExpirySweep(c *fiber.Ctx) error {
	if adminSynchronizer == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "unavailable", "message": "Synchronizer not initialized"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	summary, err := adminSynchronizer.SweepExpired(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "sweep_failed", "message": err.Error(), "summary": summary})
	}
	return c.JSON(summary)
}

// HandleBillingCounters returns the accumulated webhook and sync counters.
func HandleBillingCounters(c *fiber.Ctx) error {
	webhooks, err := metrics.GetWebhookEventCounts()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load webhook counters"})
	}
	syncRuns, err := metrics.GetSyncRunCounts()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load sync counters"})
	}
	return c.JSON(fiber.Map{
		"webhook_events": webhooks,
		"sync_runs":      syncRuns,
	})
}
