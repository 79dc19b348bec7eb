package workflow

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Store persists assessments and their audit trail with gorm.
type Store struct {
	db *gorm.DB
}

// NewStore creates a store on db.
func NewStore(db *gorm.DB) *Store {
	if db == nil {
		panic("workflow: database is required")
	}
	return &Store{db: db}
}

func (s *Store) withDB(tx *gorm.DB) *Store {
	return &Store{db: tx}
}

// Migrate creates or updates the assessment tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Assessment{}, &AuditLog{}); err != nil {
		return fmt.Errorf("failed to migrate workflow tables: %w", err)
	}
	return nil
}

// Create inserts a new assessment together with its creation record.
func (s *Store) Create(ctx context.Context, a *Assessment, log *AuditLog) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(a).Error; err != nil {
			return fmt.Errorf("failed to create assessment: %w", err)
		}
		if err := tx.Create(log).Error; err != nil {
			return fmt.Errorf("failed to append audit log: %w", err)
		}
		return nil
	})
}

// Get loads one assessment of a tenant.
func (s *Store) Get(ctx context.Context, tenantID, id string) (*Assessment, error) {
	var a Assessment
	err := s.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch assessment: %w", err)
	}
	return &a, nil
}

// List returns a tenant's assessments, newest first.
func (s *Store) List(ctx context.Context, tenantID string, status Status) ([]Assessment, error) {
	query := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var out []Assessment
	if err := query.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}
	return out, nil
}

// Append implements AuditSink.
func (s *Store) Append(ctx context.Context, log *AuditLog) error {
	if err := s.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to append audit log: %w", err)
	}
	return nil
}

// ListAuditLogs returns an assessment's audit trail, oldest first.
func (s *Store) ListAuditLogs(ctx context.Context, tenantID, assessmentID string) ([]AuditLog, error) {
	var logs []AuditLog
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND assessment_id = ?", tenantID, assessmentID).
		Order("timestamp ASC").
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch audit logs: %w", err)
	}
	return logs, nil
}

// compareAndSwap writes a's mutable fields only if the stored version still equals expected.
// On success a.Version is expected+1.
func (s *Store) compareAndSwap(ctx context.Context, a *Assessment, expected int64) error {
	a.Version = expected + 1
	res := s.db.WithContext(ctx).Model(a).
		Where("tenant_id = ? AND version = ?", a.TenantID, expected).
		Select("status", "phase", "previous_status", "metrics", "role_assignments", "version", "updated_at").
		Updates(a)
	if res.Error != nil {
		a.Version = expected
		return fmt.Errorf("failed to update assessment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		a.Version = expected
		return ErrConcurrentModification
	}
	return nil
}
