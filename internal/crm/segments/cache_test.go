package segments

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*RedisMembershipCache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisMembershipCache(client, time.Minute, nil), srv
}

func TestMembershipCache_StoreAndGet(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	segmentID := uuid.New()
	ids := []uuid.UUID{uuid.New(), uuid.New()}

	if _, ok := cache.GetMembers(ctx, segmentID); ok {
		t.Fatal("expected miss before store")
	}

	cache.StoreMembers(ctx, segmentID, ids)

	got, ok := cache.GetMembers(ctx, segmentID)
	if !ok {
		t.Fatal("expected hit after store")
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 members, got %d", len(got))
	}
	seen := map[uuid.UUID]bool{}
	for _, id := range got {
		seen[id] = true
	}
	for _, id := range ids {
		if !seen[id] {
			t.Fatalf("member %s missing from cached set", id)
		}
	}
}

func TestMembershipCache_EmptySetIsAHit(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	segmentID := uuid.New()

	cache.StoreMembers(ctx, segmentID, nil)

	got, ok := cache.GetMembers(ctx, segmentID)
	if !ok {
		t.Fatal("expected empty member set to still be a cache hit")
	}
	if len(got) != 0 {
		t.Fatalf("expected no members, got %d", len(got))
	}
}

func TestMembershipCache_InvalidateSegment(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	segmentID := uuid.New()

	cache.StoreMembers(ctx, segmentID, []uuid.UUID{uuid.New()})
	cache.InvalidateSegment(ctx, segmentID)

	if _, ok := cache.GetMembers(ctx, segmentID); ok {
		t.Fatal("expected miss after segment invalidation")
	}
}

func TestMembershipCache_InvalidateAllBumpsGeneration(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	first := uuid.New()
	second := uuid.New()

	cache.StoreMembers(ctx, first, []uuid.UUID{uuid.New()})
	cache.StoreMembers(ctx, second, []uuid.UUID{uuid.New()})

	cache.InvalidateAll(ctx)

	if _, ok := cache.GetMembers(ctx, first); ok {
		t.Fatal("expected miss after generation bump")
	}
	if _, ok := cache.GetMembers(ctx, second); ok {
		t.Fatal("expected miss after generation bump")
	}

	// New writes land under the new generation and are readable again.
	cache.StoreMembers(ctx, first, []uuid.UUID{uuid.New()})
	if _, ok := cache.GetMembers(ctx, first); !ok {
		t.Fatal("expected hit for store after generation bump")
	}
}

func TestMembershipCache_ExpiredEntryIsAMiss(t *testing.T) {
	cache, srv := newTestCache(t)
	ctx := context.Background()
	segmentID := uuid.New()

	cache.StoreMembers(ctx, segmentID, []uuid.UUID{uuid.New()})
	srv.FastForward(2 * time.Minute)

	if _, ok := cache.GetMembers(ctx, segmentID); ok {
		t.Fatal("expected miss after TTL expiry")
	}
}
