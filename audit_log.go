package rbac

import (
	"context"
	"fmt"
	"time"
)

// AuditLog records an authorization event. Failures are returned but callers
// treat them as non-fatal.
func (s *RBACService) AuditLog(ctx context.Context, userID, tenantID, action, resource string, success bool) error {
	if !s.auditEnabled {
		return nil
	}

	audit := Audit{
		UserID:    userID,
		TenantID:  tenantID,
		Action:    action,
		Resource:  resource,
		Success:   success,
		Timestamp: time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(&audit).Error; err != nil {
		s.logger.Warnw("failed to record audit log", "action", action, "error", err)
		return fmt.Errorf("failed to record audit log: %w", err)
	}
	return nil
}

// AuditFilter narrows GetAuditLogs. Nil fields are ignored.
type AuditFilter struct {
	UserID    *string
	TenantID  *string
	Action    *string
	StartTime *time.Time
	EndTime   *time.Time
}

// GetAuditLogs retrieves audit logs with optional filters, newest first.
func (s *RBACService) GetAuditLogs(ctx context.Context, filter AuditFilter) ([]Audit, error) {
	query := s.db.WithContext(ctx).Model(&Audit{}).Order("timestamp DESC")
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.TenantID != nil {
		query = query.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.Action != nil {
		query = query.Where("action = ?", *filter.Action)
	}
	if filter.StartTime != nil {
		query = query.Where("timestamp >= ?", *filter.StartTime)
	}
	if filter.EndTime != nil {
		query = query.Where("timestamp <= ?", *filter.EndTime)
	}

	var audits []Audit
	if err := query.Find(&audits).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch audit logs: %w", err)
	}
	return audits, nil
}
