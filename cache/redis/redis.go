package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/avess/gallery-bed/cache/types"
)

// Redis is the shared cache backend.
type Redis struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedis connects and pings the server.
func NewRedis(addr, password string, db int) (types.Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, err
	}

	return &Redis{client: client, ctx: ctx}, nil
}

// Set stores a value as JSON with a TTL.
func (r *Redis) Set(key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(r.ctx, key, data, expiration).Err()
}

// Get loads a value into dest.
func (r *Redis) Get(key string, dest interface{}) error {
	data, err := r.client.Get(r.ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return types.ErrCacheMiss
		}
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

// Delete removes a key.
func (r *Redis) Delete(key string) error {
	return r.client.Del(r.ctx, key).Err()
}

// Exists checks a key without loading it.
func (r *Redis) Exists(key string) (bool, error) {
	exists, err := r.client.Exists(r.ctx, key).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

// Close closes the connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
