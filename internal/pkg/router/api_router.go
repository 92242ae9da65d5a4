package router

import (
	"github.com/gofiber/fiber/v2"
	fiberlimiter "github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ShahriarSojib/MarketHub/app/controllers"
	"github.com/ShahriarSojib/MarketHub/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// The webhook route takes the raw request body and must stay outside
	// the rate limiter: Stripe retries aggressively and a 429 only piles
	// up redeliveries.
	app.Post("/api/v1/billing/webhook", controllers.HandleStripeWebhook)

	api := app.Group("/api", fiberlimiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1", middleware.UserContextMiddleware)

	subs := v1.Group("/subscriptions", middleware.RequireUser)
	subs.Post("/checkout", controllers.HandleCreateCheckoutSession)
	subs.Post("/", controllers.HandleCreateSubscription)
	subs.Get("/me", controllers.HandleGetSubscription)
	subs.Patch("/me", controllers.HandleUpdateSubscription)
	subs.Delete("/me", controllers.HandleCancelSubscription)

	admin := v1.Group("/admin/billing", middleware.AdminAPIKeyMiddleware())
	admin.Post("/sync", controllers.HandleTriggerSync)
	admin.Post("/expiry-sweep", controllers.HandleTriggerExpirySweep)
	admin.Get("/counters", controllers.HandleBillingCounters)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
