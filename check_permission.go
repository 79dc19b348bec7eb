package rbac

import (
	"context"
	"fmt"
)

// ValidatePermission verifies a user holds a permission in their current tenant.
func (s *RBACService) ValidatePermission(ctx context.Context, userID string, required Permission) error {
	res, err := s.ResolveUser(ctx, userID)
	if err != nil {
		return err
	}

	if !res.Can(required) {
		if s.auditEnabled {
			s.AuditLog(ctx, userID, res.TenantID, "validate_permission", fmt.Sprintf("permission:%s", required), false)
		}
		return fmt.Errorf("%w: missing %s", ErrPermissionDenied, required)
	}

	if s.auditEnabled {
		s.AuditLog(ctx, userID, res.TenantID, "validate_permission", fmt.Sprintf("permission:%s", required), true)
	}
	return nil
}

// ValidateAnyPermission checks that a user holds at least one of the required permissions.
func (s *RBACService) ValidateAnyPermission(ctx context.Context, userID string, required []Permission) error {
	res, err := s.ResolveUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, p := range required {
		if res.Can(p) {
			return nil
		}
	}
	return fmt.Errorf("%w: missing all of %v", ErrPermissionDenied, required)
}

// ValidateAllPermissions checks that a user holds every required permission.
func (s *RBACService) ValidateAllPermissions(ctx context.Context, userID string, required []Permission) error {
	res, err := s.ResolveUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, p := range required {
		if !res.Can(p) {
			return fmt.Errorf("%w: missing %s", ErrPermissionDenied, p)
		}
	}
	return nil
}

// ValidateModule checks that a module is visible to a user. Module gating is independent
// of permissions: a disabled module stays hidden whatever the user's roles grant.
func (s *RBACService) ValidateModule(ctx context.Context, userID string, module Module) error {
	res, err := s.ResolveUser(ctx, userID)
	if err != nil {
		return err
	}

	if !res.CanSee(module) {
		if s.auditEnabled {
			s.AuditLog(ctx, userID, res.TenantID, "validate_module", fmt.Sprintf("module:%s", module), false)
		}
		return fmt.Errorf("%w: %s", ErrModuleDisabled, module)
	}
	return nil
}
