/*
Copyright 2025 The llm-d Authors.

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

package seqstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"k8s.io/klog/v2"

	"github.com/llm-d/llm-d-code-dataset/pkg/utils/logging"
)

const redisKeyPrefix = "seq:"

// RedisStoreConfig holds the configuration for the RedisStore.
type RedisStoreConfig struct {
	Address string `json:"address,omitempty"` // Redis server address
	// TTL expires stored sequences; zero keeps them forever.
	TTL time.Duration `json:"ttl,omitempty"`
}

// DefaultRedisStoreConfig returns a default configuration for the RedisStore.
func DefaultRedisStoreConfig() *RedisStoreConfig {
	return &RedisStoreConfig{
		Address: "redis://127.0.0.1:6379",
	}
}

// RedisStore keeps msgpack-encoded sequences in Redis, so that several
// preparation runs can share encodings.
type RedisStore struct {
	RedisClient *redis.Client
	ttl         time.Duration
}

var _ Store = &RedisStore{}

// NewRedisStore creates a new RedisStore and checks connectivity.
func NewRedisStore(config *RedisStoreConfig) (*RedisStore, error) {
	if config == nil {
		config = DefaultRedisStoreConfig()
	}

	address := config.Address
	if !strings.HasPrefix(address, "redis://") &&
		!strings.HasPrefix(address, "rediss://") &&
		!strings.HasPrefix(address, "unix://") {
		address = "redis://" + address
	}

	redisOpt, err := redis.ParseURL(address)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redisURL: %w", err)
	}

	redisClient := redis.NewClient(redisOpt)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		RedisClient: redisClient,
		ttl:         config.TTL,
	}, nil
}

// Get returns the sequence stored under key and whether it was found.
func (r *RedisStore) Get(ctx context.Context, key Key) ([]int, bool, error) {
	payload, err := r.RedisClient.Get(ctx, redisKeyPrefix+key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get sequence %s from Redis: %w", key.String(), err)
	}

	var ids []int
	if err := msgpack.Unmarshal(payload, &ids); err != nil {
		return nil, false, fmt.Errorf("failed to decode sequence %s: %w", key.String(), err)
	}

	klog.FromContext(ctx).V(logging.TRACE).WithName("seqstore.RedisStore.Get").
		Info("lookup", "key", key.String(), "length", len(ids))
	return ids, true, nil
}

// Put stores ids under key.
func (r *RedisStore) Put(ctx context.Context, key Key, ids []int) error {
	payload, err := msgpack.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to encode sequence %s: %w", key.String(), err)
	}

	if err := r.RedisClient.Set(ctx, redisKeyPrefix+key.String(), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to put sequence %s to Redis: %w", key.String(), err)
	}

	return nil
}

// Close closes the Redis client.
func (r *RedisStore) Close() error {
	return r.RedisClient.Close()
}
