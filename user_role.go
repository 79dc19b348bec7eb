package rbac

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EnsureProfile creates a user profile, or updates its tenant and admin flag if it exists.
func (s *RBACService) EnsureProfile(ctx context.Context, userID, tenantID string, isPlatformAdmin bool) (*UserProfile, error) {
	if userID == "" || tenantID == "" {
		return nil, ErrInvalidInput
	}

	profile := &UserProfile{UserID: userID, TenantID: tenantID, IsPlatformAdmin: isPlatformAdmin}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"tenant_id", "is_platform_admin", "updated_at"}),
	}).Create(profile).Error; err != nil {
		return nil, fmt.Errorf("failed to save user profile: %w", err)
	}
	return profile, nil
}

// AssignRoles grants roles to a user within a tenant. Already held roles are left untouched.
func (s *RBACService) AssignRoles(ctx context.Context, userID, tenantID string, roles []Role, actorID string) error {
	if userID == "" || tenantID == "" || len(roles) == 0 {
		return ErrInvalidInput
	}
	for _, role := range roles {
		if !s.catalog.IsKnownRole(role) {
			if s.auditEnabled {
				s.AuditLog(ctx, actorID, tenantID, "assign_roles", fmt.Sprintf("user:%s", userID), false)
			}
			return fmt.Errorf("%w: %s", ErrUnknownRole, role)
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, role := range roles {
			ur := UserRole{UserID: userID, TenantID: tenantID, Role: role}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&ur).Error; err != nil {
				return fmt.Errorf("failed to assign role %s: %w", role, err)
			}
		}
		return nil
	})
	if err != nil {
		if s.auditEnabled {
			s.AuditLog(ctx, actorID, tenantID, "assign_roles", fmt.Sprintf("user:%s", userID), false)
		}
		return err
	}

	if s.auditEnabled {
		s.AuditLog(ctx, actorID, tenantID, "assign_roles", fmt.Sprintf("user:%s", userID), true)
	}
	return nil
}

// RemoveRoles revokes roles from a user within a tenant.
func (s *RBACService) RemoveRoles(ctx context.Context, userID, tenantID string, roles []Role, actorID string) error {
	if userID == "" || tenantID == "" || len(roles) == 0 {
		return ErrInvalidInput
	}

	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND tenant_id = ? AND role IN ?", userID, tenantID, roles).
		Delete(&UserRole{}).Error; err != nil {
		if s.auditEnabled {
			s.AuditLog(ctx, actorID, tenantID, "remove_roles", fmt.Sprintf("user:%s", userID), false)
		}
		return fmt.Errorf("failed to remove roles: %w", err)
	}

	if s.auditEnabled {
		s.AuditLog(ctx, actorID, tenantID, "remove_roles", fmt.Sprintf("user:%s", userID), true)
	}
	return nil
}

// GetUserRoles lists the roles a user holds in a tenant.
func (s *RBACService) GetUserRoles(ctx context.Context, userID, tenantID string) ([]Role, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}

	var rows []UserRole
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND tenant_id = ?", userID, tenantID).
		Order("role").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch user roles: %w", err)
	}

	roles := make([]Role, 0, len(rows))
	for _, r := range rows {
		roles = append(roles, r.Role)
	}
	return roles, nil
}
