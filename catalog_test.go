package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEveryRoleGrantsRead(t *testing.T) {
	c := DefaultCatalog()
	for _, role := range []Role{
		RoleTenantAdmin, RoleComplianceManager, RoleRiskManager, RolePrivacyOfficer,
		RoleAuditor, RoleAnalyst, RoleRespondent, RoleUser, RoleViewer,
	} {
		assert.True(t, c.IsKnownRole(role), role)
		assert.True(t, c.PermissionsFor(role).Has(PermRead), role)
	}
}

func TestUnmappedRoleDefaultsToRead(t *testing.T) {
	perms := DefaultCatalog().PermissionsFor("intern")

	assert.Equal(t, []Permission{PermRead}, perms.Slice())
}

func TestPermissionsForReturnsCopy(t *testing.T) {
	c := DefaultCatalog()
	perms := c.PermissionsFor(RoleViewer)
	perms[PermDelete] = struct{}{}

	assert.False(t, c.PermissionsFor(RoleViewer).Has(PermDelete))
}

func TestNewCatalogPanicsWithoutRead(t *testing.T) {
	assert.Panics(t, func() {
		NewCatalog(map[Role][]Permission{"broken": {PermWrite}}, []Permission{PermRead, PermWrite}, nil)
	})
}

func TestUniversalSet(t *testing.T) {
	u := DefaultCatalog().Universal()

	assert.True(t, u.HasAll())
	assert.True(t, u.Has(PermManageModules))
	assert.True(t, u.Has("anything.at.all"))
	assert.False(t, DefaultCatalog().PermissionsFor(RoleTenantAdmin).Has(PermManageModules))
}

func TestModuleCatalog(t *testing.T) {
	c := DefaultCatalog()

	assert.Len(t, c.Modules(), 12)
	assert.True(t, c.IsKnownModule(ModulePrivacy))
	assert.False(t, c.IsKnownModule("crm"))
}
