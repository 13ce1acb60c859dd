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

// Package seqstore caches encoded token-id sequences so that rebuilding a
// dataset over an unchanged corpus does not re-encode every file.
package seqstore

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Config holds the configuration for the sequence store.
// It may configure several backends such as listed within the struct.
// If multiple backends are configured, only the first one will be used.
type Config struct {
	// InMemoryConfig holds the configuration for the in-memory store.
	InMemoryConfig *InMemoryStoreConfig `json:"inMemoryConfig"`
	// CostAwareMemoryConfig holds the configuration for the cost-aware memory store.
	CostAwareMemoryConfig *CostAwareMemoryStoreConfig `json:"costAwareMemoryConfig"`
	// RedisConfig holds the configuration for the Redis store.
	RedisConfig *RedisStoreConfig `json:"redisConfig"`

	// EnableMetrics toggles whether hits/misses/puts are recorded.
	EnableMetrics bool `json:"enableMetrics"`
}

// DefaultConfig returns a default configuration for the sequence store.
func DefaultConfig() *Config {
	return &Config{
		InMemoryConfig: DefaultInMemoryStoreConfig(),
		EnableMetrics:  false,
	}
}

// NewStore creates a new Store instance.
func NewStore(cfg *Config) (Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var store Store
	var err error

	switch {
	case cfg.InMemoryConfig != nil:
		store, err = NewInMemoryStore(cfg.InMemoryConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
	case cfg.CostAwareMemoryConfig != nil:
		store, err = NewCostAwareMemoryStore(cfg.CostAwareMemoryConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create cost-aware memory store: %w", err)
		}
	case cfg.RedisConfig != nil:
		store, err = NewRedisStore(cfg.RedisConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis store: %w", err)
		}
	default:
		return nil, fmt.Errorf("no valid sequence store configuration provided")
	}

	if cfg.EnableMetrics {
		store = NewInstrumentedStore(store)
	}

	return store, nil
}

// Store keeps encoded sequences keyed by encoder identity and content digest.
//
// Sequences returned by Get are shared with the store and must not be
// mutated. Store operations are thread-safe.
type Store interface {
	// Get returns the sequence stored under key and whether it was found.
	Get(ctx context.Context, key Key) ([]int, bool, error)
	// Put stores ids under key, replacing any previous sequence.
	Put(ctx context.Context, key Key, ids []int) error
}

// Key identifies the encoding of one file content by one encoder.
type Key struct {
	EncoderID   string
	ContentHash uint64
}

// NewKey returns the key of content encoded by the encoder identified by
// encoderID.
func NewKey(encoderID, content string) Key {
	return Key{
		EncoderID:   encoderID,
		ContentHash: xxhash.Sum64String(content),
	}
}

// String returns a string representation of the Key.
func (k Key) String() string {
	return fmt.Sprintf("%s@%d", k.EncoderID, k.ContentHash)
}

// Close releases the resources held by store, if any.
func Close(store Store) error {
	switch s := store.(type) {
	case *instrumentedStore:
		return Close(s.next)
	case interface{ Close() error }:
		return s.Close()
	case interface{ Close() }:
		s.Close()
	}
	return nil
}
