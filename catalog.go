package rbac

import (
	"fmt"
	"sort"
)

// Role identifies a tenant-level role held by a user.
type Role string

const (
	RoleTenantAdmin       Role = "tenant_admin"
	RoleComplianceManager Role = "compliance_manager"
	RoleRiskManager       Role = "risk_manager"
	RolePrivacyOfficer    Role = "privacy_officer"
	RoleAuditor           Role = "auditor"
	RoleAnalyst           Role = "analyst"
	RoleRespondent        Role = "respondent"
	RoleUser              Role = "user"
	RoleViewer            Role = "viewer"
)

// Permission identifies an action a resolved identity may perform.
type Permission string

const (
	PermRead                 Permission = "read"
	PermWrite                Permission = "write"
	PermDelete               Permission = "delete"
	PermExport               Permission = "export"
	PermApprove              Permission = "approve"
	PermManageUsers          Permission = "manage_users"
	PermManageModules        Permission = "manage_modules"
	PermManageSettings       Permission = "manage_settings"
	PermViewAuditLog         Permission = "view_audit_log"
	PermAssessmentTransition Permission = "assessment.transition"
	PermOverrideQualityGate  Permission = "assessment.override_quality_gate"

	// PermAll is held only through the platform-admin override and satisfies every check.
	PermAll Permission = "all"
)

// Module is a feature area that can be enabled or disabled per tenant.
type Module string

const (
	ModuleDashboard       Module = "dashboard"
	ModuleRisks           Module = "risks"
	ModuleIncidents       Module = "incidents"
	ModulePrivacy         Module = "privacy"
	ModuleVendors         Module = "vendors"
	ModulePolicies        Module = "policies"
	ModuleAssessments     Module = "assessments"
	ModuleCompliance      Module = "compliance"
	ModuleVulnerabilities Module = "vulnerabilities"
	ModuleAIManagement    Module = "ai_management"
	ModuleReports         Module = "reports"
	ModuleAuditTrail      Module = "audit_trail"
)

// PermissionSet is an unordered set of permissions.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the given permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Has reports whether p is granted. A set holding PermAll grants everything.
func (s PermissionSet) Has(p Permission) bool {
	if _, ok := s[PermAll]; ok {
		return true
	}
	_, ok := s[p]
	return ok
}

// HasAll reports whether the set holds the universal permission.
func (s PermissionSet) HasAll() bool {
	_, ok := s[PermAll]
	return ok
}

// Slice returns the permissions in sorted order.
func (s PermissionSet) Slice() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ModuleSet is an unordered set of module keys.
type ModuleSet map[Module]struct{}

// NewModuleSet builds a set from the given modules.
func NewModuleSet(modules ...Module) ModuleSet {
	set := make(ModuleSet, len(modules))
	for _, m := range modules {
		set[m] = struct{}{}
	}
	return set
}

// Has reports whether m is in the set.
func (s ModuleSet) Has(m Module) bool {
	_, ok := s[m]
	return ok
}

// Slice returns the modules in sorted order.
func (s ModuleSet) Slice() []Module {
	out := make([]Module, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Catalog is the immutable role to permission table together with the module catalog.
type Catalog struct {
	roles       map[Role]PermissionSet
	permissions []Permission
	modules     []Module
}

// NewCatalog builds a catalog from a role table. It panics if a role does not grant PermRead.
func NewCatalog(roles map[Role][]Permission, permissions []Permission, modules []Module) *Catalog {
	c := &Catalog{
		roles:       make(map[Role]PermissionSet, len(roles)),
		permissions: append([]Permission(nil), permissions...),
		modules:     append([]Module(nil), modules...),
	}
	for role, perms := range roles {
		set := NewPermissionSet(perms...)
		if _, ok := set[PermRead]; !ok {
			panic(fmt.Sprintf("rbac.NewCatalog: role %q does not grant %q", role, PermRead))
		}
		c.roles[role] = set
	}
	return c
}

// PermissionsFor returns a copy of the permissions mapped to role, or {read} for an unmapped role.
func (c *Catalog) PermissionsFor(role Role) PermissionSet {
	perms, ok := c.roles[role]
	if !ok {
		return NewPermissionSet(PermRead)
	}
	out := make(PermissionSet, len(perms))
	for p := range perms {
		out[p] = struct{}{}
	}
	return out
}

// IsKnownRole reports whether role has an entry in the table.
func (c *Catalog) IsKnownRole(role Role) bool {
	_, ok := c.roles[role]
	return ok
}

// Universal returns every catalog permission plus PermAll.
func (c *Catalog) Universal() PermissionSet {
	set := NewPermissionSet(c.permissions...)
	set[PermAll] = struct{}{}
	return set
}

// Modules returns the full module catalog.
func (c *Catalog) Modules() ModuleSet {
	return NewModuleSet(c.modules...)
}

// IsKnownModule reports whether m belongs to the module catalog.
func (c *Catalog) IsKnownModule(m Module) bool {
	for _, known := range c.modules {
		if known == m {
			return true
		}
	}
	return false
}

var defaultCatalog = NewCatalog(
	map[Role][]Permission{
		RoleTenantAdmin: {
			PermRead, PermWrite, PermDelete, PermExport, PermApprove, PermManageUsers,
			PermManageSettings, PermViewAuditLog, PermAssessmentTransition, PermOverrideQualityGate,
		},
		RoleComplianceManager: {
			PermRead, PermWrite, PermExport, PermApprove, PermViewAuditLog, PermAssessmentTransition,
		},
		RoleRiskManager:    {PermRead, PermWrite, PermExport, PermAssessmentTransition},
		RolePrivacyOfficer: {PermRead, PermWrite, PermExport, PermViewAuditLog, PermAssessmentTransition},
		RoleAuditor:        {PermRead, PermExport, PermViewAuditLog, PermAssessmentTransition},
		RoleAnalyst:        {PermRead, PermWrite, PermAssessmentTransition},
		RoleRespondent:     {PermRead, PermAssessmentTransition},
		RoleUser:           {PermRead, PermWrite},
		RoleViewer:         {PermRead},
	},
	[]Permission{
		PermRead, PermWrite, PermDelete, PermExport, PermApprove, PermManageUsers, PermManageModules,
		PermManageSettings, PermViewAuditLog, PermAssessmentTransition, PermOverrideQualityGate,
	},
	[]Module{
		ModuleDashboard, ModuleRisks, ModuleIncidents, ModulePrivacy, ModuleVendors, ModulePolicies,
		ModuleAssessments, ModuleCompliance, ModuleVulnerabilities, ModuleAIManagement, ModuleReports,
		ModuleAuditTrail,
	},
)

// DefaultCatalog returns the built-in catalog loaded at process start.
func DefaultCatalog() *Catalog { return defaultCatalog }
