package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/intprep/apiserver/types"
	"github.com/redis/go-redis/v9"
)

const defaultUserTTL = 5 * time.Minute

// UserCache holds recently loaded users keyed by id. Cached users never
// carry a password hash.
type UserCache interface {
	Get(ctx context.Context, id int) (types.User, bool, error)
	Set(ctx context.Context, user types.User) error
	Delete(ctx context.Context, id int) error
}

type redisUserCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisUserCache(client *redis.Client, ttl time.Duration) UserCache {
	if ttl <= 0 {
		ttl = defaultUserTTL
	}
	return &redisUserCache{
		client: client,
		ttl:    ttl,
	}
}

func userKey(id int) string {
	return "user:" + strconv.Itoa(id)
}

func (c *redisUserCache) Get(ctx context.Context, id int) (types.User, bool, error) {
	data, err := c.client.Get(ctx, userKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return types.User{}, false, nil
		}
		return types.User{}, false, err
	}

	var user types.User
	if err := json.Unmarshal(data, &user); err != nil {
		return types.User{}, false, err
	}
	return user, true, nil
}

func (c *redisUserCache) Set(ctx context.Context, user types.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, userKey(user.ID), data, c.ttl).Err()
}

func (c *redisUserCache) Delete(ctx context.Context, id int) error {
	return c.client.Del(ctx, userKey(id)).Err()
}
