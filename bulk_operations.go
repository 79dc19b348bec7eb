package rbac

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// bulkWorkers bounds concurrent lookups in ResolveBulk.
const bulkWorkers = 10

// ResolveBulk resolves many users concurrently. Users that do not exist resolve to the
// empty invalid-identity resolution; any other lookup failure aborts the batch.
func (s *RBACService) ResolveBulk(ctx context.Context, userIDs []string) (map[string]Resolution, error) {
	results := make(map[string]Resolution, len(userIDs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkWorkers)
	for _, id := range userIDs {
		id := id
		g.Go(func() error {
			res, err := s.ResolveUser(gctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			results[id] = res
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// BulkAssignRoles assigns roles to many users of one tenant in a single transaction.
func (s *RBACService) BulkAssignRoles(ctx context.Context, tenantID string, assignments map[string][]Role) error {
	if tenantID == "" {
		return ErrInvalidInput
	}
	for _, roles := range assignments {
		for _, role := range roles {
			if !s.catalog.IsKnownRole(role) {
				return ErrUnknownRole
			}
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for userID, roles := range assignments {
			for _, role := range roles {
				ur := UserRole{UserID: userID, TenantID: tenantID, Role: role}
				if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&ur).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// BulkRemoveRoles removes roles from many users of one tenant in a single transaction.
func (s *RBACService) BulkRemoveRoles(ctx context.Context, tenantID string, removals map[string][]Role) error {
	if tenantID == "" {
		return ErrInvalidInput
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for userID, roles := range removals {
			if err := tx.Where("user_id = ? AND tenant_id = ? AND role IN ?", userID, tenantID, roles).
				Delete(&UserRole{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
