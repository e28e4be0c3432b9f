package presence

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const onlineSetKey = "hubcore:clients:online"

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) SetOnline(ctx context.Context, clientID string) error {
	return r.client.SAdd(ctx, onlineSetKey, clientID).Err()
}

func (r *RedisStore) SetOffline(ctx context.Context, clientID string) error {
	return r.client.SRem(ctx, onlineSetKey, clientID).Err()
}

func (r *RedisStore) OnlineIDs(ctx context.Context) ([]string, error) {
	return r.client.SMembers(ctx, onlineSetKey).Result()
}

// Reset replaces the online set with the given ids.
func (r *RedisStore) Reset(ctx context.Context, ids []string) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, onlineSetKey)
	if len(ids) > 0 {
		members := make([]any, len(ids))
		for i, id := range ids {
			members[i] = id
		}
		pipe.SAdd(ctx, onlineSetKey, members...)
	}
	_, err := pipe.Exec(ctx)
	return err
}
