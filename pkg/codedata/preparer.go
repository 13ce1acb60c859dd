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

// Package codedata wires corpus encoding, the sequence store and the
// windowed dataset into one preparation step for next-token training data.
package codedata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"

	"github.com/llm-d/llm-d-code-dataset/pkg/corpus"
	"github.com/llm-d/llm-d-code-dataset/pkg/dataset"
	"github.com/llm-d/llm-d-code-dataset/pkg/dataset/seqstore"
	"github.com/llm-d/llm-d-code-dataset/pkg/metrics"
	"github.com/llm-d/llm-d-code-dataset/pkg/tokenization"
	"github.com/llm-d/llm-d-code-dataset/pkg/utils/logging"
)

const defaultSeqLength = 48

// Config holds the configuration for the Preparer.
// The configuration covers the different components used by the Preparer.
type Config struct {
	// SeqLength is the number of tokens of every training window.
	SeqLength int `json:"seqLength"`
	// MaxWindows caps the dataset to a random selection of windows when
	// positive.
	MaxWindows int `json:"maxWindows"`
	// Seed makes the window selection reproducible when set.
	Seed *uint64 `json:"seed,omitempty"`

	// ModelName selects a pretrained HuggingFace tokenizer instead of
	// fitting a CodeTokenizer on the corpus.
	ModelName         string                          `json:"modelName,omitempty"`
	HFTokenizerConfig *tokenization.HFTokenizerConfig `json:"hfTokenizerConfig"`

	PoolConfig *tokenization.PoolConfig `json:"poolConfig"`
	// SequenceStoreConfig configures where encoded files are cached. Nil
	// disables caching.
	SequenceStoreConfig *seqstore.Config `json:"sequenceStoreConfig"`

	EnableMetrics          bool          `json:"enableMetrics"`
	MetricsLoggingInterval time.Duration `json:"metricsLoggingInterval"`
}

// NewDefaultConfig returns a default configuration for the Preparer.
func NewDefaultConfig() *Config {
	return &Config{
		SeqLength:           defaultSeqLength,
		HFTokenizerConfig:   tokenization.DefaultHFTokenizerConfig(),
		PoolConfig:          tokenization.DefaultPoolConfig(),
		SequenceStoreConfig: seqstore.DefaultConfig(),
	}
}

// Result is the outcome of one Prepare call.
type Result struct {
	// Dataset serves the training windows. It is instrumented when metrics
	// are enabled.
	Dataset dataset.Dataset
	// Windows is the underlying dataset, exposing its window index.
	Windows *dataset.WindowedDataset
	// Encoder produced the token ids of every window.
	Encoder tokenization.Encoder
	// Tokenizer is the fitted CodeTokenizer, nil when a pretrained
	// tokenizer was used.
	Tokenizer *tokenization.CodeTokenizer
}

type decoder interface {
	Decode(ids []int) (string, error)
}

// Decode converts token ids of the result's encoder back into text.
func (r *Result) Decode(ids []int) (string, error) {
	dec, ok := r.Encoder.(decoder)
	if !ok {
		return "", fmt.Errorf("encoder %q cannot decode", r.Encoder.ID())
	}
	return dec.Decode(ids)
}

// Preparer builds windowed datasets from file contents.
type Preparer struct {
	config *Config

	store       seqstore.Store                  // nil when caching is disabled
	hfTokenizer *tokenization.CachedHFTokenizer // nil unless ModelName is set
}

// NewPreparer creates a Preparer given a Config.
func NewPreparer(ctx context.Context, config *Config) (*Preparer, error) {
	if config == nil {
		config = NewDefaultConfig()
	}
	if config.SeqLength <= 0 {
		return nil, fmt.Errorf("%w: sequence length must be positive, got %d",
			dataset.ErrInvalidConfiguration, config.SeqLength)
	}
	if config.MaxWindows < 0 {
		return nil, fmt.Errorf("%w: max windows must not be negative, got %d",
			dataset.ErrInvalidConfiguration, config.MaxWindows)
	}

	preparer := &Preparer{config: config}

	if config.SequenceStoreConfig != nil {
		storeConfig := *config.SequenceStoreConfig
		storeConfig.EnableMetrics = storeConfig.EnableMetrics || config.EnableMetrics

		store, err := seqstore.NewStore(&storeConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create sequence store: %w", err)
		}
		preparer.store = store
	}

	if config.ModelName != "" {
		hfTokenizer, err := tokenization.NewCachedHFTokenizer(config.HFTokenizerConfig)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to create HuggingFace tokenizer: %w", err),
				preparer.Close())
		}
		preparer.hfTokenizer = hfTokenizer
	}

	if config.EnableMetrics {
		metrics.Register()
		if config.MetricsLoggingInterval > 0 {
			metrics.StartMetricsLogging(ctx, config.MetricsLoggingInterval)
		}
	}

	return preparer, nil
}

// Store returns the sequence store used by the Preparer, or nil.
func (p *Preparer) Store() seqstore.Store {
	return p.store
}

// Prepare encodes files and builds their windowed dataset. Without a
// configured model, a new CodeTokenizer is fitted on the file contents.
func (p *Preparer) Prepare(ctx context.Context, files []corpus.FileContent) (*Result, error) {
	logger := klog.FromContext(ctx).WithName("codedata.Prepare")

	result := &Result{}
	if p.hfTokenizer != nil {
		result.Encoder = tokenization.NewHFEncoder(p.hfTokenizer, p.config.ModelName)
	} else {
		tokenizer := tokenization.NewCodeTokenizer()
		if err := tokenizer.Fit(corpus.Contents(files)); err != nil {
			return nil, fmt.Errorf("failed to fit tokenizer: %w", err)
		}
		result.Tokenizer = tokenizer
		result.Encoder = tokenizer

		vocabSize, err := tokenizer.VocabSize()
		if err != nil {
			return nil, err
		}
		logger.V(logging.DEBUG).Info("fitted tokenizer", "vocab-size", vocabSize, "encoder", tokenizer.ID())
	}

	pool := tokenization.NewPool(p.config.PoolConfig, result.Encoder, p.store)
	sequences, err := pool.EncodeAll(ctx, files)
	if err != nil {
		return nil, fmt.Errorf("failed to encode files: %w", err)
	}

	var opts []dataset.Option
	if p.config.Seed != nil {
		opts = append(opts, dataset.WithSeed(*p.config.Seed))
	}

	windows, err := dataset.NewFromSequences(sequences, p.config.SeqLength, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build dataset: %w", err)
	}
	if p.config.MaxWindows > 0 {
		if err := windows.ShuffleAndCap(p.config.MaxWindows); err != nil {
			return nil, fmt.Errorf("failed to cap dataset: %w", err)
		}
	}

	result.Windows = windows
	result.Dataset = windows
	if p.config.EnableMetrics {
		result.Dataset = dataset.NewInstrumentedDataset(windows)
	}

	logger.Info("prepared dataset",
		"files", len(files), "size", humanize.IBytes(corpus.TotalSize(files)),
		"total-windows", windows.TotalWindows(), "windows", windows.Len(),
		"encoder", result.Encoder.ID())

	return result, nil
}

// Close releases the sequence store and loaded tokenizers.
func (p *Preparer) Close() error {
	if p.hfTokenizer != nil {
		p.hfTokenizer.Purge()
	}
	if p.store != nil {
		return seqstore.Close(p.store)
	}
	return nil
}
