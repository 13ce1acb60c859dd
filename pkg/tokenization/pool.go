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

package tokenization

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"k8s.io/client-go/util/workqueue"
	"k8s.io/klog/v2"

	"github.com/llm-d/llm-d-code-dataset/pkg/corpus"
	"github.com/llm-d/llm-d-code-dataset/pkg/dataset/seqstore"
	"github.com/llm-d/llm-d-code-dataset/pkg/metrics"
	"github.com/llm-d/llm-d-code-dataset/pkg/utils/logging"
)

const defaultWorkers = 5

// PoolConfig holds the configuration for the encoding Pool.
type PoolConfig struct {
	WorkersCount int `json:"workersCount"`
}

// DefaultPoolConfig returns a default configuration for the encoding Pool.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		WorkersCount: defaultWorkers,
	}
}

// Pool encodes files in parallel with a fixed number of workers.
// Encoded sequences are looked up in, and written back to, an optional
// sequence store.
type Pool struct {
	workers int
	encoder Encoder
	store   seqstore.Store
}

// NewPool creates a Pool for encoder. store may be nil.
func NewPool(config *PoolConfig, encoder Encoder, store seqstore.Store) *Pool {
	if config == nil {
		config = DefaultPoolConfig()
	}

	workers := config.WorkersCount
	if workers < 1 {
		workers = 1
	}

	return &Pool{
		workers: workers,
		encoder: encoder,
		store:   store,
	}
}

// EncodeAll encodes every file and returns the sequences in file order.
// Any failed file, including files skipped after ctx is cancelled, makes
// EncodeAll fail.
func (pool *Pool) EncodeAll(ctx context.Context, files []corpus.FileContent) ([][]int, error) {
	logger := klog.FromContext(ctx).WithName("tokenization.Pool")

	sequences := make([][]int, len(files))
	errs := make([]error, len(files))

	// Tasks are file indices so every worker writes to its own slot.
	queue := workqueue.NewTyped[int]()
	var wg sync.WaitGroup

	for i := 0; i < min(pool.workers, max(len(files), 1)); i++ {
		wg.Add(1)
		go pool.workerLoop(queue, &wg, func(idx int) {
			if err := ctx.Err(); err != nil {
				errs[idx] = fmt.Errorf("skipped %s: %w", files[idx].Path, err)
				return
			}
			sequences[idx], errs[idx] = pool.processTask(ctx, files[idx])
		})
	}

	for idx := range files {
		queue.Add(idx)
	}

	queue.ShutDownWithDrain()
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	logger.V(logging.VERBOSE).Info("encoded files", "files", len(files), "encoder", pool.encoder.ID())
	return sequences, nil
}

// workerLoop is the main processing loop for each worker.
func (pool *Pool) workerLoop(queue workqueue.TypedInterface[int], wg *sync.WaitGroup, process func(idx int)) {
	defer wg.Done()
	for {
		idx, shutdown := queue.Get()
		if shutdown {
			return
		}

		process(idx)
		queue.Done(idx)
	}
}

// processTask returns the sequence of one file, preferring the store over
// the encoder.
func (pool *Pool) processTask(ctx context.Context, file corpus.FileContent) ([]int, error) {
	debugLogger := klog.FromContext(ctx).V(logging.DEBUG).WithName("tokenization.Pool")

	encoderID := pool.encoder.ID()
	cacheable := pool.store != nil && encoderID != ""
	key := seqstore.NewKey(encoderID, file.Content)

	if cacheable {
		ids, found, err := pool.store.Get(ctx, key)
		if err != nil {
			debugLogger.Error(err, "sequence store lookup failed, encoding", "path", file.Path)
		} else if found {
			return ids, nil
		}
	}

	start := time.Now()
	ids, err := pool.encoder.Encode(file.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", file.Path, err)
	}
	metrics.EncodeLatency.Observe(time.Since(start).Seconds())
	metrics.FilesEncoded.Inc()

	if cacheable {
		if err := pool.store.Put(ctx, key, ids); err != nil {
			debugLogger.Error(err, "failed to store sequence", "path", file.Path)
		}
	}

	debugLogger.Info("encoded file", "path", file.Path, "tokens", len(ids))
	return ids, nil
}
