package rbac

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// UserIdentity is the authenticated caller as provided by the session collaborator.
type UserIdentity struct {
	ID              string
	TenantID        string
	Roles           []Role
	IsPlatformAdmin bool
	// ExpiresAt is the session expiry. The zero value means the identity does not expire.
	ExpiresAt time.Time
}

// Resolution is the effective authorization state of an identity.
type Resolution struct {
	UserID          string        `json:"user_id,omitempty"`
	TenantID        string        `json:"tenant_id,omitempty"`
	Permissions     PermissionSet `json:"-"`
	VisibleModules  ModuleSet     `json:"-"`
	IsPlatformAdmin bool          `json:"is_platform_admin"`
	// InvalidIdentity is set when the identity was absent or expired.
	InvalidIdentity bool `json:"invalid_identity,omitempty"`
}

// Empty reports whether the resolution grants nothing. Callers gate access on this.
func (r Resolution) Empty() bool { return len(r.Permissions) == 0 }

// Can reports whether the resolution grants p.
func (r Resolution) Can(p Permission) bool { return r.Permissions.Has(p) }

// CanSee reports whether module m is visible.
func (r Resolution) CanSee(m Module) bool { return r.VisibleModules.Has(m) }

// ModuleSource looks up the modules enabled for a tenant.
type ModuleSource interface {
	EnabledModules(ctx context.Context, tenantID string) (ModuleSet, error)
}

// Resolver derives effective permissions and visible modules for identities.
// It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	catalog *Catalog
	modules ModuleSource
	logger  *zap.SugaredLogger
	now     func() time.Time
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverLogger sets the logger used to report module lookup failures.
func WithResolverLogger(l *zap.SugaredLogger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithResolverClock overrides the clock used for identity expiry.
func WithResolverClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// NewResolver creates a resolver over catalog and a tenant module source.
// Panics if catalog is nil.
func NewResolver(catalog *Catalog, modules ModuleSource, opts ...ResolverOption) *Resolver {
	if catalog == nil {
		panic("rbac.NewResolver: catalog is required")
	}
	r := &Resolver{
		catalog: catalog,
		modules: modules,
		logger:  zap.NewNop().Sugar(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve performs the single tenant module lookup and resolves identity against it.
// A failed lookup yields an empty module set but keeps role-based permissions.
func (r *Resolver) Resolve(ctx context.Context, identity *UserIdentity) Resolution {
	if !r.valid(identity) {
		return invalidResolution()
	}

	var enabled ModuleSet
	if !identity.IsPlatformAdmin && r.modules != nil {
		set, err := r.modules.EnabledModules(ctx, identity.TenantID)
		if err != nil {
			r.logger.Warnw("tenant module lookup failed, hiding all modules",
				"tenant_id", identity.TenantID, "user_id", identity.ID, "error", err)
		} else {
			enabled = set
		}
	}

	return r.ResolveWith(identity, enabled)
}

// ResolveWith resolves identity against an already fetched tenant module set.
func (r *Resolver) ResolveWith(identity *UserIdentity, enabled ModuleSet) Resolution {
	if !r.valid(identity) {
		return invalidResolution()
	}

	res := Resolution{
		UserID:          identity.ID,
		TenantID:        identity.TenantID,
		IsPlatformAdmin: identity.IsPlatformAdmin,
	}

	// Platform admins bypass the role table and tenant module gating entirely.
	if identity.IsPlatformAdmin {
		res.Permissions = r.catalog.Universal()
		res.VisibleModules = r.catalog.Modules()
		return res
	}

	res.Permissions = NewPermissionSet(PermRead)
	for _, role := range identity.Roles {
		for p := range r.catalog.PermissionsFor(role) {
			res.Permissions[p] = struct{}{}
		}
	}

	res.VisibleModules = make(ModuleSet)
	for m := range enabled {
		if r.catalog.IsKnownModule(m) {
			res.VisibleModules[m] = struct{}{}
		}
	}
	return res
}

func (r *Resolver) valid(identity *UserIdentity) bool {
	if identity == nil || identity.ID == "" {
		return false
	}
	if !identity.ExpiresAt.IsZero() && !r.now().Before(identity.ExpiresAt) {
		return false
	}
	return true
}

func invalidResolution() Resolution {
	return Resolution{
		Permissions:     PermissionSet{},
		VisibleModules:  ModuleSet{},
		InvalidIdentity: true,
	}
}
