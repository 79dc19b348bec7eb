package rbac

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"
)

// EnabledModules returns the modules enabled for a tenant, served from Redis when cached.
// It implements ModuleSource for the service's resolver.
func (s *RBACService) EnabledModules(ctx context.Context, tenantID string) (ModuleSet, error) {
	if tenantID == "" {
		return ModuleSet{}, nil
	}

	cached, ok, err := s.getCachedModules(ctx, tenantID)
	if err != nil {
		s.logger.Warnw("module cache read failed", "tenant_id", tenantID, "error", err)
	}
	if ok {
		return cached, nil
	}

	modules, err := s.loadEnabledModules(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if err := s.setCachedModules(ctx, tenantID, modules); err != nil {
		s.logger.Warnw("module cache write failed", "tenant_id", tenantID, "error", err)
	}
	return modules, nil
}

func (s *RBACService) loadEnabledModules(ctx context.Context, tenantID string) (ModuleSet, error) {
	var rows []TenantModule
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND enabled = ?", tenantID, true).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch tenant modules: %w", err)
	}

	modules := make(ModuleSet, len(rows))
	for _, row := range rows {
		modules[row.Module] = struct{}{}
	}
	return modules, nil
}

// RefreshTenantModules drops the cached module set and reloads it from the database.
func (s *RBACService) RefreshTenantModules(ctx context.Context, tenantID string) (ModuleSet, error) {
	if tenantID == "" {
		return nil, ErrInvalidInput
	}
	if err := s.invalidateModules(ctx, tenantID); err != nil {
		s.logger.Warnw("module cache invalidation failed", "tenant_id", tenantID, "error", err)
	}
	return s.EnabledModules(ctx, tenantID)
}

// SetModuleEnabled enables or disables a module for a tenant.
func (s *RBACService) SetModuleEnabled(ctx context.Context, tenantID string, module Module, enabled bool, actorID string) error {
	if tenantID == "" || module == "" {
		return ErrInvalidInput
	}
	if !s.catalog.IsKnownModule(module) {
		return fmt.Errorf("%w: %s", ErrUnknownModule, module)
	}

	row := TenantModule{TenantID: tenantID, Module: module, Enabled: enabled}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "module"}},
		DoUpdates: clause.AssignmentColumns([]string{"enabled", "updated_at"}),
	}).Create(&row).Error; err != nil {
		if s.auditEnabled {
			s.AuditLog(ctx, actorID, tenantID, "set_module", fmt.Sprintf("module:%s", module), false)
		}
		return fmt.Errorf("failed to update tenant module: %w", err)
	}

	if err := s.invalidateModules(ctx, tenantID); err != nil {
		s.logger.Warnw("module cache invalidation failed", "tenant_id", tenantID, "error", err)
	}
	if s.auditEnabled {
		s.AuditLog(ctx, actorID, tenantID, "set_module", fmt.Sprintf("module:%s", module), true)
	}
	return nil
}

// ListTenantModules returns every module row recorded for a tenant, enabled or not.
func (s *RBACService) ListTenantModules(ctx context.Context, tenantID string) ([]TenantModule, error) {
	if tenantID == "" {
		return nil, ErrInvalidInput
	}

	var rows []TenantModule
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("module").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list tenant modules: %w", err)
	}
	return rows, nil
}
