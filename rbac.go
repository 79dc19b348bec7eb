package rbac

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config holds the configuration for the RBAC service
type Config struct {
	DB                 *gorm.DB
	RedisClient        *redis.Client
	CacheTTL           time.Duration
	CachePrefix        string
	AutoMigrate        bool
	EnableAuditLogging bool
	Catalog            *Catalog
	Logger             *zap.SugaredLogger
}

// RBACService resolves tenant-scoped permissions for users stored in the database.
type RBACService struct {
	db           *gorm.DB
	redisClient  *redis.Client
	cacheTTL     time.Duration
	cachePrefix  string
	cacheMu      sync.RWMutex
	cacheStats   map[string]interface{}
	auditEnabled bool
	catalog      *Catalog
	resolver     *Resolver
	logger       *zap.SugaredLogger
}

// NewRBACService initializes a new RBAC service. The Redis client is optional;
// without it tenant module sets are read from the database on every lookup.
func NewRBACService(cfg Config) (*RBACService, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("database is required")
	}

	if cfg.CachePrefix == "" {
		cfg.CachePrefix = "rbac:"
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Minute
	}
	if cfg.Catalog == nil {
		cfg.Catalog = DefaultCatalog()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}

	if cfg.AutoMigrate {
		if err := cfg.DB.AutoMigrate(&UserProfile{}, &UserRole{}, &TenantModule{}, &Audit{}); err != nil {
			return nil, fmt.Errorf("failed to auto-migrate: %w", err)
		}
	}

	s := &RBACService{
		db:           cfg.DB,
		redisClient:  cfg.RedisClient,
		cacheTTL:     cfg.CacheTTL,
		cachePrefix:  cfg.CachePrefix,
		auditEnabled: cfg.EnableAuditLogging,
		catalog:      cfg.Catalog,
		logger:       cfg.Logger,
		cacheStats: map[string]interface{}{
			"redis_enabled":     cfg.RedisClient != nil,
			"cache_ttl_minutes": cfg.CacheTTL.Minutes(),
			"module_hits":       0,
			"module_misses":     0,
		},
	}
	s.resolver = NewResolver(cfg.Catalog, s, WithResolverLogger(cfg.Logger))
	return s, nil
}

// Catalog returns the role table the service resolves against.
func (s *RBACService) Catalog() *Catalog { return s.catalog }

// Resolver returns the resolver backed by this service's tenant module lookup.
func (s *RBACService) Resolver() *Resolver { return s.resolver }

// LoadIdentity reads a user's profile and the roles held in the profile's current tenant.
func (s *RBACService) LoadIdentity(ctx context.Context, userID string) (*UserIdentity, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}

	var profile UserProfile
	if err := s.db.WithContext(ctx).First(&profile, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch user profile: %w", err)
	}

	roles, err := s.GetUserRoles(ctx, userID, profile.TenantID)
	if err != nil {
		return nil, err
	}

	return &UserIdentity{
		ID:              profile.UserID,
		TenantID:        profile.TenantID,
		Roles:           roles,
		IsPlatformAdmin: profile.IsPlatformAdmin,
	}, nil
}

// ResolveUser loads a user's identity and resolves it. A missing user resolves to the
// empty, invalid-identity resolution rather than an error.
func (s *RBACService) ResolveUser(ctx context.Context, userID string) (Resolution, error) {
	identity, err := s.LoadIdentity(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidInput) {
			return s.resolver.Resolve(ctx, nil), nil
		}
		return Resolution{}, err
	}
	return s.resolver.Resolve(ctx, identity), nil
}

// SwitchTenant moves a user's session to another tenant, refreshing that tenant's cached
// module set. Only platform admins may switch into a tenant where they hold no roles.
func (s *RBACService) SwitchTenant(ctx context.Context, userID, tenantID string) (Resolution, error) {
	if userID == "" || tenantID == "" {
		return Resolution{}, ErrInvalidInput
	}

	var profile UserProfile
	if err := s.db.WithContext(ctx).First(&profile, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Resolution{}, ErrNotFound
		}
		return Resolution{}, fmt.Errorf("failed to fetch user profile: %w", err)
	}

	if !profile.IsPlatformAdmin {
		var count int64
		if err := s.db.WithContext(ctx).Model(&UserRole{}).
			Where("user_id = ? AND tenant_id = ?", userID, tenantID).
			Count(&count).Error; err != nil {
			return Resolution{}, fmt.Errorf("failed to check tenant membership: %w", err)
		}
		if count == 0 {
			if s.auditEnabled {
				s.AuditLog(ctx, userID, tenantID, "switch_tenant", fmt.Sprintf("tenant:%s", tenantID), false)
			}
			return Resolution{}, ErrNotTenantMember
		}
	}

	if err := s.db.WithContext(ctx).Model(&profile).Update("tenant_id", tenantID).Error; err != nil {
		return Resolution{}, fmt.Errorf("failed to switch tenant: %w", err)
	}

	if _, err := s.RefreshTenantModules(ctx, tenantID); err != nil {
		s.logger.Warnw("failed to refresh tenant modules after switch", "tenant_id", tenantID, "error", err)
	}

	if s.auditEnabled {
		s.AuditLog(ctx, userID, tenantID, "switch_tenant", fmt.Sprintf("tenant:%s", tenantID), true)
	}
	return s.ResolveUser(ctx, userID)
}

// SetPlatformAdmin grants or revokes the platform-admin flag.
func (s *RBACService) SetPlatformAdmin(ctx context.Context, userID string, isAdmin bool, actorID string) error {
	if userID == "" {
		return ErrInvalidInput
	}

	res := s.db.WithContext(ctx).Model(&UserProfile{}).
		Where("user_id = ?", userID).
		Update("is_platform_admin", isAdmin)
	if res.Error != nil {
		if s.auditEnabled {
			s.AuditLog(ctx, actorID, "", "set_platform_admin", fmt.Sprintf("user:%s", userID), false)
		}
		return fmt.Errorf("failed to update platform admin flag: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	if s.auditEnabled {
		s.AuditLog(ctx, actorID, "", "set_platform_admin", fmt.Sprintf("user:%s", userID), true)
	}
	return nil
}
