package routes

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	rbac "github.com/bohemiyan/grc-rbac"
)

const (
	HeaderUserID        = "X-User-ID"
	HeaderGatewaySecret = "X-Gateway-Secret"
)

// GatewayAuth trusts the X-User-ID header only on requests carrying the shared gateway secret.
func GatewayAuth(secret string) fiber.Handler {
	if secret == "" {
		panic("routes: gateway secret is required")
	}
	want := []byte(secret)
	return func(c *fiber.Ctx) error {
		if subtle.ConstantTimeCompare([]byte(c.Get(HeaderGatewaySecret)), want) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "request did not come through the gateway")
		}
		if id := c.Get(HeaderUserID); id != "" {
			c.Locals(rbac.LocalUserID, id)
		}
		return c.Next()
	}
}
