package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// getModulesCacheKey generates the Redis key holding a tenant's enabled modules.
func (s *RBACService) getModulesCacheKey(tenantID string) string {
	return fmt.Sprintf("%stenant:%s:modules", s.cachePrefix, tenantID)
}

// getCachedModules returns the cached module set. The boolean is false on a miss.
func (s *RBACService) getCachedModules(ctx context.Context, tenantID string) (ModuleSet, bool, error) {
	if s.redisClient == nil {
		return nil, false, nil
	}

	val, err := s.redisClient.Get(ctx, s.getModulesCacheKey(tenantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		s.bumpStat("module_misses")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var modules []Module
	if err := json.Unmarshal(val, &modules); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached modules: %w", err)
	}
	s.bumpStat("module_hits")
	return NewModuleSet(modules...), true, nil
}

// setCachedModules caches a tenant's module set. An empty set is cached too.
func (s *RBACService) setCachedModules(ctx context.Context, tenantID string, modules ModuleSet) error {
	if s.redisClient == nil {
		return nil
	}

	payload, err := json.Marshal(modules.Slice())
	if err != nil {
		return err
	}
	return s.redisClient.Set(ctx, s.getModulesCacheKey(tenantID), payload, s.cacheTTL).Err()
}

// invalidateModules drops a tenant's cached module set.
func (s *RBACService) invalidateModules(ctx context.Context, tenantID string) error {
	if s.redisClient == nil {
		return nil
	}
	return s.redisClient.Del(ctx, s.getModulesCacheKey(tenantID)).Err()
}

func (s *RBACService) bumpStat(key string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if n, ok := s.cacheStats[key].(int); ok {
		s.cacheStats[key] = n + 1
	}
}

// GetCacheStats returns cache statistics
func (s *RBACService) GetCacheStats(ctx context.Context) map[string]interface{} {
	s.cacheMu.RLock()
	stats := make(map[string]interface{}, len(s.cacheStats)+1)
	for k, v := range s.cacheStats {
		stats[k] = v
	}
	s.cacheMu.RUnlock()

	if s.redisClient != nil {
		count := 0
		err := s.scanKeys(ctx, func(keys []string) error {
			count += len(keys)
			return nil
		})
		if err == nil {
			stats["cache_keys_count"] = count
		}
	}
	return stats
}

// ClearAllCache clears all cache entries under the service prefix.
func (s *RBACService) ClearAllCache(ctx context.Context) error {
	if s.redisClient == nil {
		return nil
	}
	return s.scanKeys(ctx, func(keys []string) error {
		return s.redisClient.Del(ctx, keys...).Err()
	})
}

const scanBatch = 100

// scanKeys walks the keys under the service prefix with SCAN and hands them to fn in batches.
func (s *RBACService) scanKeys(ctx context.Context, fn func(keys []string) error) error {
	iter := s.redisClient.Scan(ctx, 0, s.cachePrefix+"*", scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := fn(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}
	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}
