package router

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionRoutesRequireUser(t *testing.T) {
	app := fiber.New()
	InstallRouter(app)

	// Without X-User-ID the request runs anonymously and the guard answers
	// 401 before any handler code does.
	routes := []struct {
		method string
		path   string
	}{
		{fiber.MethodGet, "/api/v1/subscriptions/me"},
		{fiber.MethodPatch, "/api/v1/subscriptions/me"},
		{fiber.MethodDelete, "/api/v1/subscriptions/me"},
		{fiber.MethodPost, "/api/v1/subscriptions/checkout"},
		{fiber.MethodPost, "/api/v1/subscriptions/"},
	}
	for _, r := range routes {
		resp, err := app.Test(httptest.NewRequest(r.method, r.path, nil))
		require.NoError(t, err, "%s %s", r.method, r.path)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, "%s %s", r.method, r.path)
	}
}

func TestAdminRoutesDisabledWithoutKey(t *testing.T) {
	t.Setenv("ADMIN_API_KEY", "")
	app := fiber.New()
	InstallRouter(app)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/api/v1/admin/billing/sync", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}
