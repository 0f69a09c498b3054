package loginstate

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "login_state:"

type redisStore struct {
	cli *redis.Client
}

// NewRedis returns a Redis-backed store so state survives across replicas.
// Only the opaque state string is stored, with the TTL enforced server-side.
func NewRedis(cli *redis.Client) Store {
	return &redisStore{cli: cli}
}

func (r *redisStore) Put(ctx context.Context, state string, ttl time.Duration) error {
	return r.cli.Set(ctx, redisKeyPrefix+state, "1", ttl).Err()
}

func (r *redisStore) Consume(ctx context.Context, state string) (bool, error) {
	err := r.cli.GetDel(ctx, redisKeyPrefix+state).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
