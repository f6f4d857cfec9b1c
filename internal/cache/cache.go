/*
Copyright 2025 Leadflow Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/cache/v9"

	"github.com/autoplexhq/leadflow/config"
	redis_db "github.com/autoplexhq/leadflow/internal/redis-db"
)

// Cache is the read-through cache used for hot, read-only data such as the
// active rule set. The rule set is immutable per version, so workers may
// cache it freely; a publish changes the version key and becomes visible in
// full, never partially.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, data interface{}) error
	Delete(ctx context.Context, key string) error
}

// RedisCache layers a local TinyLFU cache over Redis.
type RedisCache struct {
	cache *cache.Cache
}

// NewCache builds the cache from the configured Redis DNS.
func NewCache() (Cache, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	ca, err := NewRedisCacheFromAddresses([]string{fmt.Sprintf("redis://%s", cfg.Redis.Dns)})
	if err != nil {
		return nil, err
	}
	return ca, nil
}

// cacheSize is the local tier's entry budget.
const cacheSize = 128000

// NewRedisCacheFromAddresses sets up a Redis-backed cache with a TinyLFU
// local tier.
func NewRedisCacheFromAddresses(addresses []string) (*RedisCache, error) {
	client, err := redis_db.NewRedisClient(addresses)
	if err != nil {
		return nil, err
	}

	c := cache.New(&cache.Options{
		Redis:      client.Client(),
		LocalCache: cache.NewTinyLFU(cacheSize, 1*time.Minute),
	})

	return &RedisCache{cache: c}, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, data interface{}, ttl time.Duration) error {
	return r.cache.Set(&cache.Item{
		Ctx:   ctx,
		Key:   key,
		Value: data,
		TTL:   ttl,
	})
}

// Get fills data from the cache. A miss is not an error; data is left
// untouched.
func (r *RedisCache) Get(ctx context.Context, key string, data interface{}) error {
	err := r.cache.Get(ctx, key, &data)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}

	return err
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.cache.Delete(ctx, key)
}
