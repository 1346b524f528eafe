package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// GenerationKey holds the binding generation shared by every process.
const GenerationKey = "rbac:bindings:generation"

// Generation is a counter bumped whenever stored bindings change. Caches in
// other processes compare it against the generation of their snapshot.
type Generation interface {
	Current(ctx context.Context) (uint64, error)
	Bump(ctx context.Context) (uint64, error)
}

// RedisGeneration keeps the counter in Redis.
type RedisGeneration struct {
	client redis.Cmdable
}

// NewRedisGeneration returns a Generation stored under GenerationKey.
func NewRedisGeneration(client redis.Cmdable) *RedisGeneration {
	return &RedisGeneration{client: client}
}

// Current returns the stored generation, zero when never bumped.
func (g *RedisGeneration) Current(ctx context.Context) (uint64, error) {
	gen, err := g.client.Get(ctx, GenerationKey).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("rbac: read binding generation: %w", err)
	}
	return gen, nil
}

// Bump increments the stored generation.
func (g *RedisGeneration) Bump(ctx context.Context) (uint64, error) {
	gen, err := g.client.Incr(ctx, GenerationKey).Uint64()
	if err != nil {
		return 0, fmt.Errorf("rbac: bump binding generation: %w", err)
	}
	return gen, nil
}
