package cherry

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// redisStore keeps each document as a string value under prefix+name
type redisStore struct {
	client redis.UniversalClient
	prefix string
}

func newRedisStore(client redis.UniversalClient, prefix string) *redisStore {
	return &redisStore{client: client, prefix: prefix}
}

func (r *redisStore) key(name string) string {
	return r.prefix + name
}

func (r *redisStore) Load(ctx context.Context, name string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.key(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (r *redisStore) Save(ctx context.Context, name string, data []byte) error {
	return r.client.Set(ctx, r.key(name), data, 0).Err()
}

func (r *redisStore) Delete(ctx context.Context, name string) error {
	return r.client.Del(ctx, r.key(name)).Err()
}

// Ping checks the redis connection
func (r *redisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
