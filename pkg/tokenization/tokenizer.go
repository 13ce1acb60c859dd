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
	"fmt"
	"os"
	"path/filepath"

	"github.com/daulet/tokenizers"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/llm-d/llm-d-code-dataset/pkg/utils"
)

// tokenizersCacheSize is the size of the LRU cache for pretrained tokenizers.
const tokenizersCacheSize = 8

// Encoder turns text into token ids.
type Encoder interface {
	// Encode tokenizes text and returns its token ids.
	Encode(text string) ([]int, error)
	// ID identifies the encoder and its vocabulary. Ids produced by encoders
	// with different IDs are not interchangeable.
	ID() string
}

// Tokenizer interface defines the methods of a pretrained tokenizer
// registry.
type Tokenizer interface {
	// Encode tokenizes the input string with the tokenizer of modelName.
	Encode(input, modelName string) ([]uint32, error)
	// Decode converts token ids produced for modelName back into text.
	Decode(ids []uint32, modelName string) (string, error)
}

// HFTokenizerConfig holds the configuration for the HuggingFace tokenizer.
type HFTokenizerConfig struct {
	HuggingFaceToken   string `json:"huggingFaceToken"`
	TokenizersCacheDir string `json:"tokenizersCacheDir"` // Directory for caching tokenizers
}

// DefaultHFTokenizerConfig returns a default configuration for the HuggingFace
// tokenizer.
func DefaultHFTokenizerConfig() *HFTokenizerConfig {
	return &HFTokenizerConfig{
		HuggingFaceToken:   "",
		TokenizersCacheDir: getTokenizerCacheDir(),
	}
}

// CachedHFTokenizer implements the Tokenizer interface using bindings to
// HuggingFace's rust tokenizer.
// The implementation wraps an LRU-cache for holding loaded per-model
// tokenizers.
type CachedHFTokenizer struct {
	opts  []tokenizers.TokenizerConfigOption
	cache *lru.Cache[string, *tokenizers.Tokenizer]
	group singleflight.Group
}

// NewCachedHFTokenizer creates a new instance of CachedHFTokenizer with the
// provided configuration.
func NewCachedHFTokenizer(config *HFTokenizerConfig) (*CachedHFTokenizer, error) {
	if config == nil {
		config = DefaultHFTokenizerConfig()
	}

	var opts []tokenizers.TokenizerConfigOption
	if config.TokenizersCacheDir != "" {
		opts = append(opts, tokenizers.WithCacheDir(config.TokenizersCacheDir))
	}
	if config.HuggingFaceToken != "" {
		opts = append(opts, tokenizers.WithAuthToken(config.HuggingFaceToken))
	}

	tokenizersCache, err := lru.NewWithEvict(tokenizersCacheSize,
		func(_ string, tokenizer *tokenizers.Tokenizer) {
			tokenizer.Close()
		})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tokenizer cache: %w", err)
	}

	return &CachedHFTokenizer{
		opts:  opts,
		cache: tokenizersCache,
	}, nil
}

func (t *CachedHFTokenizer) getTokenizer(modelName string) (*tokenizers.Tokenizer, error) {
	if tokenizer, ok := t.cache.Get(modelName); ok {
		return tokenizer, nil
	}

	result, err, _ := t.group.Do(modelName, func() (any, error) {
		if tokenizer, ok := t.cache.Get(modelName); ok {
			return tokenizer, nil
		}

		tokenizer, err := tokenizers.FromPretrained(modelName, t.opts...)
		if err != nil {
			return nil, err
		}

		t.cache.Add(modelName, tokenizer)
		return tokenizer, nil
	})
	if err != nil {
		return nil, err
	}

	tokenizer, ok := result.(*tokenizers.Tokenizer)
	if !ok {
		return nil, fmt.Errorf("unexpected tokenizer type from singleflight result")
	}
	return tokenizer, nil
}

// Encode converts a string into token ids.
func (t *CachedHFTokenizer) Encode(input, modelName string) ([]uint32, error) {
	tokenizer, err := t.getTokenizer(modelName)
	if err != nil {
		return nil, fmt.Errorf("failed to get tokenizer for model %q: %w", modelName, err)
	}

	ids, _ := tokenizer.Encode(input, false)
	return ids, nil
}

// Decode converts token ids into a string, skipping special tokens.
func (t *CachedHFTokenizer) Decode(ids []uint32, modelName string) (string, error) {
	tokenizer, err := t.getTokenizer(modelName)
	if err != nil {
		return "", fmt.Errorf("failed to get tokenizer for model %q: %w", modelName, err)
	}

	return tokenizer.Decode(ids, true), nil
}

// Purge closes and drops every loaded tokenizer.
func (t *CachedHFTokenizer) Purge() {
	t.cache.Purge()
}

// HFEncoder binds a pretrained Tokenizer to one model so that it can serve
// as a dataset Encoder.
type HFEncoder struct {
	tokenizer Tokenizer
	modelName string
}

var _ Encoder = &HFEncoder{}

// NewHFEncoder creates an Encoder for modelName.
func NewHFEncoder(tokenizer Tokenizer, modelName string) *HFEncoder {
	return &HFEncoder{
		tokenizer: tokenizer,
		modelName: modelName,
	}
}

// Encode converts text into the model's token ids.
func (e *HFEncoder) Encode(text string) ([]int, error) {
	ids, err := e.tokenizer.Encode(text, e.modelName)
	if err != nil {
		return nil, err
	}
	return utils.ToInts(ids), nil
}

// Decode converts the model's token ids back into text.
func (e *HFEncoder) Decode(ids []int) (string, error) {
	unsigned, err := utils.SliceMapE(ids, func(id int) (uint32, error) {
		if id < 0 || int64(id) > int64(^uint32(0)) {
			return 0, fmt.Errorf("%w: %d", ErrInvalidTokenID, id)
		}
		return uint32(id), nil
	})
	if err != nil {
		return "", err
	}
	return e.tokenizer.Decode(unsigned, e.modelName)
}

// ID returns the model name.
func (e *HFEncoder) ID() string {
	return e.modelName
}

// getTokenizerCacheDir returns the directory pretrained tokenizers are
// downloaded to.
func getTokenizerCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "llm-d-code-dataset", "tokenizers")
	}
	return filepath.Join(os.TempDir(), "llm-d-code-dataset", "tokenizers")
}
