package segments

import (
	"context"
	"fmt"
	"time"

	"cityguide_crm_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// MembershipCache stores recently evaluated dynamic segment member sets.
// It is a pure optimization: a miss, an expired entry or a Redis outage
// only means the segment is recomputed from the store.
type MembershipCache interface {
	GetMembers(ctx context.Context, segmentID uuid.UUID) ([]uuid.UUID, bool)
	StoreMembers(ctx context.Context, segmentID uuid.UUID, ids []uuid.UUID)
	InvalidateSegment(ctx context.Context, segmentID uuid.UUID)
	// InvalidateAll drops every cached member set. Called whenever any
	// contact attribute changes, since any dynamic segment may be
	// affected.
	InvalidateAll(ctx context.Context)
}

const (
	cacheGenerationKey = "crm:segments:generation"
	cacheKeyPrefix     = "crm:segment:members"
)

// RedisMembershipCache implements MembershipCache on Redis. Keys embed a
// generation counter; InvalidateAll bumps the counter so stale entries
// become unreachable and expire through their TTL.
type RedisMembershipCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedisMembershipCache creates a membership cache with the given TTL.
func NewRedisMembershipCache(client *redis.Client, ttl time.Duration, log *logger.Logger) *RedisMembershipCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisMembershipCache{client: client, ttl: ttl, log: log}
}

func (c *RedisMembershipCache) key(ctx context.Context, segmentID uuid.UUID) (string, error) {
	gen, err := c.client.Get(ctx, cacheGenerationKey).Int64()
	if err != nil && err != redis.Nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d:%s", cacheKeyPrefix, gen, segmentID), nil
}

func (c *RedisMembershipCache) GetMembers(ctx context.Context, segmentID uuid.UUID) ([]uuid.UUID, bool) {
	key, err := c.key(ctx, segmentID)
	if err != nil {
		return nil, false
	}
	raw, err := c.client.SMembers(ctx, key).Result()
	if err != nil || len(raw) == 0 {
		return nil, false
	}

	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		if s == cacheEmptyMarker {
			continue
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

// cacheEmptyMarker keeps a set key alive for segments that currently
// match no contacts, so an empty result is still a cache hit.
const cacheEmptyMarker = "-"

func (c *RedisMembershipCache) StoreMembers(ctx context.Context, segmentID uuid.UUID, ids []uuid.UUID) {
	key, err := c.key(ctx, segmentID)
	if err != nil {
		return
	}

	members := make([]any, 0, len(ids)+1)
	members = append(members, cacheEmptyMarker)
	for _, id := range ids {
		members = append(members, id.String())
	}

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SAdd(ctx, key, members...)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil && c.log != nil {
		c.log.Warn("segment membership cache store failed", "segment_id", segmentID, "error", err)
	}
}

func (c *RedisMembershipCache) InvalidateSegment(ctx context.Context, segmentID uuid.UUID) {
	key, err := c.key(ctx, segmentID)
	if err != nil {
		return
	}
	if err := c.client.Del(ctx, key).Err(); err != nil && c.log != nil {
		c.log.Warn("segment membership cache invalidate failed", "segment_id", segmentID, "error", err)
	}
}

func (c *RedisMembershipCache) InvalidateAll(ctx context.Context) {
	if err := c.client.Incr(ctx, cacheGenerationKey).Err(); err != nil && c.log != nil {
		c.log.Warn("segment membership cache generation bump failed", "error", err)
	}
}
