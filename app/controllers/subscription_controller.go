package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ShahriarSojib/MarketHub/internal/pkg/billing"
	"github.com/ShahriarSojib/MarketHub/internal/pkg/database"
	"github.com/ShahriarSojib/MarketHub/internal/pkg/usercontext"
)

func billingService() *billing.Service {
	return billing.NewServiceFromDB(database.GetDB())
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// HandleCreateCheckoutSession starts a hosted checkout flow for the
// authenticated user.
func HandleCreateCheckoutSession(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	var input billing.CheckoutInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}
	if input.PriceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "price_id is required"})
	}

	ctx, cancel := requestContext()
	defer cancel()

	sess, err := billingService().CreateCheckoutSession(ctx, userCtx.UserID, input)
	if err != nil {
		return subscriptionError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sess)
}

// HandleCreateSubscription creates a subscription against an attached
// payment method, without going through hosted checkout.
func HandleCreateSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	var input billing.CreateSubscriptionInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}
	if input.PriceID == "" || input.PaymentMethodID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "price_id and payment_method_id are required"})
	}

	ctx, cancel := requestContext()
	defer cancel()

	sub, err := billingService().CreateSubscription(ctx, userCtx.UserID, input)
	if err != nil {
		return subscriptionError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sub)
}

// HandleGetSubscription returns the authenticated user's most recent
// subscription.
func HandleGetSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	sub, err := billingService().GetSubscription(userCtx.UserID)
	if err != nil {
		return subscriptionError(c, err)
	}
	return c.JSON(sub)
}

// HandleUpdateSubscription toggles cancel-at-period-end or changes plans.
func HandleUpdateSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	var input billing.UpdateSubscriptionInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}
	if input.CancelAtPeriodEnd == nil && input.NewPriceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "cancel_at_period_end or new_price_id is required"})
	}

	ctx, cancel := requestContext()
	defer cancel()

	sub, err := billingService().UpdateSubscription(ctx, userCtx.UserID, input)
	if err != nil {
		return subscriptionError(c, err)
	}
	return c.JSON(sub)
}

// HandleCancelSubscription cancels the authenticated user's subscription
// immediately.
func HandleCancelSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	ctx, cancel := requestContext()
	defer cancel()

	sub, err := billingService().CancelSubscription(ctx, userCtx.UserID)
	if err != nil {
		return subscriptionError(c, err)
	}
	return c.JSON(sub)
}

func subscriptionError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, billing.ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
	case errors.Is(err, billing.ErrUserBlocked):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Account is blocked"})
	case errors.Is(err, billing.ErrEmailNotVerified):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Email address not verified"})
	case errors.Is(err, billing.ErrAlreadySubscribed):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "An active subscription already exists"})
	case errors.Is(err, billing.ErrNoActiveSubscription):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "No active subscription"})
	case errors.Is(err, billing.ErrNoSubscription):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "No subscription found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Subscription operation failed"})
	}
}
