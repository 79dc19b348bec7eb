package rbac

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
)

const (
	// LocalUserID is the fiber.Ctx local an upstream authenticator sets to the caller's user ID.
	LocalUserID = "user_id"
	// LocalResolution is where ResolveMiddleware stores the caller's Resolution.
	LocalResolution = "rbac_resolution"
)

// ResolveMiddleware resolves the authenticated caller once per request and stores the
// result under LocalResolution. Requests without a user ID are rejected with 401.
func (s *RBACService) ResolveMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := c.Locals(LocalUserID).(string)
		if !ok || userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "user_id not found in context")
		}

		res, err := s.ResolveUser(c.UserContext(), userID)
		if err != nil {
			s.logger.Errorw("permission resolution failed", "user_id", userID, "error", err)
			return fiber.NewError(fiber.StatusInternalServerError, "permission resolution failed")
		}
		if res.InvalidIdentity || res.Empty() {
			return fiber.NewError(fiber.StatusUnauthorized, "unknown or expired identity")
		}

		c.Locals(LocalResolution, res)
		return c.Next()
	}
}

// ResolutionFrom returns the resolution stored by ResolveMiddleware.
func ResolutionFrom(c *fiber.Ctx) (Resolution, bool) {
	res, ok := c.Locals(LocalResolution).(Resolution)
	return res, ok
}

// RequirePermission provides Fiber middleware for permission checking
func (s *RBACService) RequirePermission(permission Permission) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, ok := ResolutionFrom(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "request not resolved")
		}
		if !res.Can(permission) {
			if s.auditEnabled {
				s.AuditLog(c.UserContext(), res.UserID, res.TenantID, "middleware_check", fmt.Sprintf("permission:%s", permission), false)
			}
			return fiber.NewError(fiber.StatusForbidden, fmt.Sprintf("missing permission %s", permission))
		}
		return c.Next()
	}
}

// RequireModule rejects requests for modules not enabled for the caller's tenant.
func (s *RBACService) RequireModule(module Module) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, ok := ResolutionFrom(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "request not resolved")
		}
		if !res.CanSee(module) {
			if s.auditEnabled {
				s.AuditLog(c.UserContext(), res.UserID, res.TenantID, "middleware_check", fmt.Sprintf("module:%s", module), false)
			}
			return fiber.NewError(fiber.StatusForbidden, fmt.Sprintf("module %s is not enabled", module))
		}
		return c.Next()
	}
}
