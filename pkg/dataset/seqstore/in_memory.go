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
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"k8s.io/klog/v2"

	"github.com/llm-d/llm-d-code-dataset/pkg/utils/logging"
)

const defaultInMemoryStoreSize = 1e5 // files

// InMemoryStoreConfig holds the configuration for the InMemoryStore.
type InMemoryStoreConfig struct {
	// Size is the maximum number of sequences kept in the store.
	Size int `json:"size"`
}

// DefaultInMemoryStoreConfig returns a default configuration for the InMemoryStore.
func DefaultInMemoryStoreConfig() *InMemoryStoreConfig {
	return &InMemoryStoreConfig{
		Size: defaultInMemoryStoreSize,
	}
}

// InMemoryStore is an LRU-bounded in-memory implementation of the Store
// interface.
type InMemoryStore struct {
	data *lru.Cache[Key, []int]
}

var _ Store = &InMemoryStore{}

// NewInMemoryStore creates a new InMemoryStore instance.
func NewInMemoryStore(cfg *InMemoryStoreConfig) (*InMemoryStore, error) {
	if cfg == nil {
		cfg = DefaultInMemoryStoreConfig()
	}

	cache, err := lru.New[Key, []int](cfg.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize in-memory store: %w", err)
	}

	return &InMemoryStore{data: cache}, nil
}

// Get returns the sequence stored under key and whether it was found.
func (m *InMemoryStore) Get(ctx context.Context, key Key) ([]int, bool, error) {
	ids, found := m.data.Get(key)
	klog.FromContext(ctx).V(logging.TRACE).WithName("seqstore.InMemoryStore.Get").
		Info("lookup", "key", key.String(), "found", found)
	return ids, found, nil
}

// Put stores ids under key.
func (m *InMemoryStore) Put(ctx context.Context, key Key, ids []int) error {
	evicted := m.data.Add(key, ids)
	klog.FromContext(ctx).V(logging.TRACE).WithName("seqstore.InMemoryStore.Put").
		Info("stored sequence", "key", key.String(), "length", len(ids), "evicted", evicted)
	return nil
}

// Len returns the number of stored sequences.
func (m *InMemoryStore) Len() int {
	return m.data.Len()
}
