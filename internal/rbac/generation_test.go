package rbac

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisGeneration(t *testing.T) (*RedisGeneration, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisGeneration(client), mr
}

func TestRedisGenerationCounts(t *testing.T) {
	gen, mr := newRedisGeneration(t)
	ctx := context.Background()

	current, err := gen.Current(ctx)
	require.NoError(t, err)
	assert.Zero(t, current)

	bumped, err := gen.Bump(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), bumped)

	stored, err := mr.Get(GenerationKey)
	require.NoError(t, err)
	assert.Equal(t, "1", stored)
}

func TestProvisionFromAnotherProcessReachesServer(t *testing.T) {
	store := newFakeStore()
	store.userRoles[7] = []Role{RoleAnnotationManager}
	gen, _ := newRedisGeneration(t)
	ctx := context.Background()

	serverCache := NewBindingCache(store, WithSharedGeneration(gen))
	server := NewService(store, serverCache, nil)
	cli := NewService(store, NewBindingCache(store, WithSharedGeneration(gen)), nil)

	before, err := server.ResolveActor(ctx, 7)
	require.NoError(t, err)
	assert.False(t, before.Can(PermViewUsers))

	_, err = cli.Provision(ctx)
	require.NoError(t, err)

	after, err := server.ResolveActor(ctx, 7)
	require.NoError(t, err)
	assert.True(t, after.Can(PermViewUsers))
	assert.Equal(t, uint64(2), serverCache.Loads())

	// Unchanged generation keeps serving the snapshot.
	_, err = server.ResolveActor(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), serverCache.Loads())
}

func TestCacheFailsWhenGenerationUnreadable(t *testing.T) {
	gen, mr := newRedisGeneration(t)
	cache := NewBindingCache(newFakeStore(), WithSharedGeneration(gen))
	mr.Close()

	_, err := cache.Get(context.Background())
	require.Error(t, err)
	assert.Zero(t, cache.Loads())
}

func TestProvisionReportsUnpublishedBindings(t *testing.T) {
	store := newFakeStore()
	gen, mr := newRedisGeneration(t)
	svc := NewService(store, NewBindingCache(store, WithSharedGeneration(gen)), nil)
	mr.Close()

	_, err := svc.Provision(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish bindings")
	assert.Len(t, store.perms, len(Permissions()))
}
