package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/bohemiyan/grc-rbac/quality"
)

// AuditAction names what an audit record captures.
type AuditAction string

const (
	ActionCreated        AuditAction = "created"
	ActionStatusChanged  AuditAction = "status_changed"
	ActionPhaseChanged   AuditAction = "phase_changed"
	ActionSuspended      AuditAction = "suspended"
	ActionResumed        AuditAction = "resumed"
	ActionReopened       AuditAction = "reopened"
	ActionCancelled      AuditAction = "cancelled"
	ActionMetricsUpdated AuditAction = "metrics_updated"
	ActionRoleAssigned   AuditAction = "role_assigned"
)

// Assignment is a role handed to a user on one assessment.
type Assignment struct {
	Role   AssessmentRole `json:"role"`
	UserID string         `json:"user_id"`
}

// Values is the before or after image stored on an audit record.
type Values struct {
	Status         Status           `json:"status,omitempty"`
	Phase          Phase            `json:"phase,omitempty"`
	PreviousStatus Status           `json:"previous_status,omitempty"`
	Metrics        *quality.Metrics `json:"metrics,omitempty"`
	Assignment     *Assignment      `json:"assignment,omitempty"`
}

// AuditLog is an append-only record of one accepted change to an assessment.
type AuditLog struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	TenantID     string         `gorm:"size:64;not null;index" json:"tenant_id"`
	AssessmentID string         `gorm:"size:36;not null;index" json:"assessment_id"`
	Action       AuditAction    `gorm:"size:32;not null" json:"action"`
	UserID       string         `gorm:"size:64" json:"user_id"`
	UserRole     AssessmentRole `gorm:"size:32" json:"user_role"`
	Timestamp    time.Time      `gorm:"not null;index" json:"timestamp"`
	OldValues    *Values        `gorm:"serializer:json" json:"old_values,omitempty"`
	NewValues    *Values        `gorm:"serializer:json" json:"new_values,omitempty"`
	Comments     string         `json:"comments,omitempty"`
}

// TableName implements gorm's tabler.
func (AuditLog) TableName() string { return "assessment_audit_logs" }

// AuditSink receives audit records. Implementations must only ever append.
type AuditSink interface {
	Append(ctx context.Context, log *AuditLog) error
}

// MemoryAuditLog is an in-process AuditSink, safe for concurrent use.
type MemoryAuditLog struct {
	mu      sync.RWMutex
	entries []AuditLog
}

// NewMemoryAuditLog returns an empty in-memory audit log.
func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{}
}

// Append stores a copy of log.
func (m *MemoryAuditLog) Append(_ context.Context, log *AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *log)
	return nil
}

// Entries returns the records for one assessment in append order.
func (m *MemoryAuditLog) Entries(assessmentID string) []AuditLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []AuditLog
	for _, e := range m.entries {
		if e.AssessmentID == assessmentID {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the total number of records.
func (m *MemoryAuditLog) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
