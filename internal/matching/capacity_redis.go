package matching

import (
	"context"
	"fmt"
	"time"

	"vendormatch-engine/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// RedisCapacityGuard is the Redis-backed CapacityGuard: a per-vendor
// in-flight counter acquired atomically via Lua, TTL-bounded so crashed
// processes cannot leak slots forever.
//
// Advisory only. The repository's guarded write remains the authoritative
// capacity check.
type RedisCapacityGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCapacityGuard(rdb *redis.Client, ttl time.Duration) *RedisCapacityGuard {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisCapacityGuard{rdb: rdb, ttl: ttl}
}

func (g *RedisCapacityGuard) Acquire(ctx context.Context, workspaceID, vendorID string, limit int) (bool, error) {
	return utils.AcquireVendorSlot(ctx, g.rdb, slotKey(workspaceID, vendorID), limit, g.ttl)
}

func (g *RedisCapacityGuard) Release(ctx context.Context, workspaceID, vendorID string) error {
	return utils.ReleaseVendorSlot(ctx, g.rdb, slotKey(workspaceID, vendorID))
}

func slotKey(workspaceID, vendorID string) string {
	return fmt.Sprintf("vendor_slots:%s:%s", workspaceID, vendorID)
}
