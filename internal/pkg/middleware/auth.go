package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ShahriarSojib/MarketHub/internal/pkg/usercontext"
)

// RequireUser ensures a resolved user identity and returns JSON 401 otherwise.
func RequireUser(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
	}
	return c.Next()
}
