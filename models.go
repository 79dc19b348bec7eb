package rbac

import (
	"time"
)

// UserProfile holds the identity attributes the authorization core consumes.
type UserProfile struct {
	UserID          string `gorm:"primaryKey;size:64"`
	TenantID        string `gorm:"size:64;not null;index"`
	IsPlatformAdmin bool   `gorm:"default:false"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// UserRole maps a user to a role within a tenant.
type UserRole struct {
	UserID    string `gorm:"primaryKey;size:64;autoIncrement:false"`
	TenantID  string `gorm:"primaryKey;size:64;autoIncrement:false"`
	Role      Role   `gorm:"primaryKey;size:64;autoIncrement:false"`
	CreatedAt time.Time
}

// TenantModule records whether a module is enabled for a tenant.
type TenantModule struct {
	TenantID  string `gorm:"primaryKey;size:64;autoIncrement:false"`
	Module    Module `gorm:"primaryKey;size:64;autoIncrement:false"`
	Enabled   bool   `gorm:"not null;default:false"`
	UpdatedAt time.Time
}

// Audit records an authorization decision or an administrative change.
type Audit struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"size:64;index"`
	TenantID  string `gorm:"size:64;index"`
	Action    string `gorm:"not null"`
	Resource  string
	Success   bool
	Timestamp time.Time `gorm:"index"`
}

// TableName keeps authorization audits apart from assessment audit logs.
func (Audit) TableName() string { return "permission_audits" }
