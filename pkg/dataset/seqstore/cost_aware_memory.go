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

	"github.com/dgraph-io/ristretto/v2"
	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"

	"github.com/llm-d/llm-d-code-dataset/pkg/utils/logging"
)

const (
	defaultNumCounters = 1e6 // 1M keys
	defaultBufferItems = 64  // default buffer size for ristretto

	bytesPerID       = 8
	sliceHeaderBytes = 24
)

// CostAwareMemoryStoreConfig holds the configuration for the
// CostAwareMemoryStore.
type CostAwareMemoryStoreConfig struct {
	// Size is the maximum memory size that can be used by the store.
	// Supports human-readable formats like "2GiB", "500MiB", "1GB", etc.
	Size string `json:"size,omitempty"`
}

// DefaultCostAwareMemoryStoreConfig returns a default configuration for the
// CostAwareMemoryStore.
func DefaultCostAwareMemoryStoreConfig() *CostAwareMemoryStoreConfig {
	return &CostAwareMemoryStoreConfig{
		Size: "1GiB",
	}
}

// CostAwareMemoryStore bounds the store by the estimated memory footprint of
// the sequences it holds rather than by their count.
type CostAwareMemoryStore struct {
	data *ristretto.Cache[string, []int]
}

var _ Store = &CostAwareMemoryStore{}

// NewCostAwareMemoryStore creates a new CostAwareMemoryStore instance.
func NewCostAwareMemoryStore(cfg *CostAwareMemoryStoreConfig) (*CostAwareMemoryStore, error) {
	if cfg == nil {
		cfg = DefaultCostAwareMemoryStoreConfig()
	}

	sizeBytes, err := humanize.ParseBytes(cfg.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cost aware store: %w", err)
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, []int]{
		NumCounters: defaultNumCounters,
		MaxCost:     int64(sizeBytes), // #nosec G115 , maximum cost of cache
		BufferItems: defaultBufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cost aware store: %w", err)
	}

	return &CostAwareMemoryStore{data: cache}, nil
}

// MaxCost returns the memory budget of the store in bytes.
func (m *CostAwareMemoryStore) MaxCost() int64 {
	return m.data.MaxCost()
}

// Get returns the sequence stored under key and whether it was found.
func (m *CostAwareMemoryStore) Get(ctx context.Context, key Key) ([]int, bool, error) {
	ids, found := m.data.Get(key.String())
	klog.FromContext(ctx).V(logging.TRACE).WithName("seqstore.CostAwareMemoryStore.Get").
		Info("lookup", "key", key.String(), "found", found)
	return ids, found, nil
}

// Put stores ids under key. The admission policy may reject the sequence, in
// which case later lookups miss.
func (m *CostAwareMemoryStore) Put(ctx context.Context, key Key, ids []int) error {
	keyStr := key.String()
	cost := sequenceCost(keyStr, ids)
	admitted := m.data.Set(keyStr, ids, cost)
	m.data.Wait()

	klog.FromContext(ctx).V(logging.TRACE).WithName("seqstore.CostAwareMemoryStore.Put").
		Info("stored sequence", "key", keyStr, "length", len(ids), "cost-bytes", cost, "admitted", admitted)
	return nil
}

// Close stops the background goroutines of the underlying cache.
func (m *CostAwareMemoryStore) Close() {
	m.data.Close()
}

// sequenceCost estimates the bytes held by one cache entry.
func sequenceCost(keyStr string, ids []int) int64 {
	return int64(len(keyStr)) + sliceHeaderBytes + int64(len(ids))*bytesPerID
}
