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

	"github.com/llm-d/llm-d-code-dataset/pkg/metrics"
)

type instrumentedStore struct {
	next Store
}

// NewInstrumentedStore wraps a Store and emits metrics for Get and Put.
func NewInstrumentedStore(next Store) Store {
	return &instrumentedStore{next: next}
}

func (m *instrumentedStore) Get(ctx context.Context, key Key) ([]int, bool, error) {
	ids, found, err := m.next.Get(ctx, key)
	switch {
	case err != nil:
		metrics.StoreErrors.Inc()
	case found:
		metrics.StoreHits.Inc()
	default:
		metrics.StoreMisses.Inc()
	}
	return ids, found, err
}

func (m *instrumentedStore) Put(ctx context.Context, key Key, ids []int) error {
	err := m.next.Put(ctx, key, ids)
	if err != nil {
		metrics.StoreErrors.Inc()
	} else {
		metrics.StorePuts.Inc()
	}
	return err
}
