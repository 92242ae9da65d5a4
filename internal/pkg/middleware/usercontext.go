package middleware

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ShahriarSojib/MarketHub/app/models"
	"github.com/ShahriarSojib/MarketHub/internal/pkg/database"
	"github.com/ShahriarSojib/MarketHub/internal/pkg/usercontext"
)

// UserContextMiddleware resolves the caller identity for every request. The
// API gateway terminates authentication upstream and forwards the verified
// local user id in X-User-ID; requests without the header run anonymously.
func UserContextMiddleware(c *fiber.Ctx) error {
	raw := strings.TrimSpace(c.Get("X-User-ID"))
	if raw == "" {
		usercontext.SetUserContext(c, usercontext.UserContext{
			IsLoggedIn: false,
			IsAdmin:    false,
		})
		return c.Next()
	}

	userID, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || userID == 0 {
		usercontext.SetUserContext(c, usercontext.UserContext{
			IsLoggedIn: false,
			IsAdmin:    false,
		})
		return c.Next()
	}

	db := database.GetDB()
	var user models.User
	if err := db.First(&user, uint(userID)).Error; err != nil {
		log.Debugf("[Middleware] user %d from X-User-ID not found", userID)
		usercontext.SetUserContext(c, usercontext.UserContext{
			IsLoggedIn: false,
			IsAdmin:    false,
		})
		return c.Next()
	}

	usercontext.SetUserContext(c, usercontext.UserContext{
		UserID:     user.ID,
		Email:      user.Email,
		IsLoggedIn: true,
		IsAdmin:    user.Role == models.ROLE_ADMIN,
	})
	c.Locals(usercontext.KeyUserID, user.ID)
	c.Locals(usercontext.KeyIsAdmin, user.Role == models.ROLE_ADMIN)

	return c.Next()
}
