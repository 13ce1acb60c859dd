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

package codedata_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llm-d/llm-d-code-dataset/pkg/codedata"
	"github.com/llm-d/llm-d-code-dataset/pkg/corpus"
	"github.com/llm-d/llm-d-code-dataset/pkg/dataset"
	"github.com/llm-d/llm-d-code-dataset/pkg/dataset/seqstore"
	"github.com/llm-d/llm-d-code-dataset/pkg/tokenization"
)

var testFiles = []corpus.FileContent{
	{Path: "greet.py", Content: "def greet(name):\n    return 'hello ' + name\n\nprint(greet('world'))\n"},
	{Path: "count.py", Content: "total = 0\nfor i in range(10):\n    total += i\nprint(total)\n"},
	{Path: "empty.py", Content: ""},
}

func newTestPreparer(t *testing.T, mutate func(*codedata.Config)) *codedata.Preparer {
	t.Helper()

	config := codedata.NewDefaultConfig()
	config.SeqLength = 8
	if mutate != nil {
		mutate(config)
	}

	preparer, err := codedata.NewPreparer(t.Context(), config)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, preparer.Close()) })
	return preparer
}

func TestPrepare(t *testing.T) {
	preparer := newTestPreparer(t, nil)

	result, err := preparer.Prepare(t.Context(), testFiles)
	require.NoError(t, err)
	require.NotNil(t, result.Tokenizer)
	assert.Equal(t, result.Tokenizer.ID(), result.Encoder.ID())

	want := []int{0}
	for _, file := range testFiles {
		ids, err := result.Tokenizer.Encode(file.Content)
		require.NoError(t, err)
		want = append(want, want[len(want)-1]+max(0, len(ids)-8))
	}
	assert.Equal(t, want, result.Windows.CumulativeLengths())
	assert.Equal(t, want[len(want)-1], result.Dataset.Len())

	window, err := result.Dataset.Get(0)
	require.NoError(t, err)
	assert.Len(t, window.InputIDs, 8)
	assert.Equal(t, window.InputIDs[1:], window.Labels[:7])

	text, err := result.Decode(window.InputIDs)
	require.NoError(t, err)
	assert.Equal(t, "def greet(name):", text)
}

func TestPrepareCapsWindows(t *testing.T) {
	seed := uint64(42)
	prepare := func() *codedata.Result {
		preparer := newTestPreparer(t, func(config *codedata.Config) {
			config.MaxWindows = 5
			config.Seed = &seed
		})
		result, err := preparer.Prepare(t.Context(), testFiles)
		require.NoError(t, err)
		return result
	}

	first, second := prepare(), prepare()
	assert.Equal(t, 5, first.Dataset.Len())
	assert.Greater(t, first.Windows.TotalWindows(), 5)

	for idx := range first.Dataset.Len() {
		a, err := first.Dataset.Get(idx)
		require.NoError(t, err)
		b, err := second.Dataset.Get(idx)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestPrepareUsesSequenceStore(t *testing.T) {
	preparer := newTestPreparer(t, nil)
	require.NotNil(t, preparer.Store())

	first, err := preparer.Prepare(t.Context(), testFiles)
	require.NoError(t, err)

	for _, file := range testFiles {
		want, err := first.Tokenizer.Encode(file.Content)
		require.NoError(t, err)

		ids, found, err := preparer.Store().Get(t.Context(), seqstore.NewKey(first.Encoder.ID(), file.Content))
		require.NoError(t, err)
		assert.True(t, found, file.Path)
		assert.Equal(t, want, ids)
	}

	second, err := preparer.Prepare(t.Context(), testFiles)
	require.NoError(t, err)
	assert.Equal(t, first.Encoder.ID(), second.Encoder.ID())
	assert.Equal(t, first.Windows.CumulativeLengths(), second.Windows.CumulativeLengths())
}

func TestPrepareWithoutStore(t *testing.T) {
	preparer := newTestPreparer(t, func(config *codedata.Config) {
		config.SequenceStoreConfig = nil
		config.PoolConfig = nil
	})
	assert.Nil(t, preparer.Store())

	result, err := preparer.Prepare(t.Context(), testFiles)
	require.NoError(t, err)
	assert.Positive(t, result.Dataset.Len())
}

func TestPrepareWithMetrics(t *testing.T) {
	preparer := newTestPreparer(t, func(config *codedata.Config) {
		config.EnableMetrics = true
	})

	result, err := preparer.Prepare(t.Context(), testFiles)
	require.NoError(t, err)

	_, isPlain := result.Dataset.(*dataset.WindowedDataset)
	assert.False(t, isPlain)
	assert.Equal(t, result.Windows.Len(), result.Dataset.Len())
}

func TestPrepareEmptyCorpus(t *testing.T) {
	preparer := newTestPreparer(t, nil)

	result, err := preparer.Prepare(t.Context(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Dataset.Len())

	size, err := result.Tokenizer.VocabSize()
	require.NoError(t, err)
	assert.Equal(t, 4, size)
}

func TestPrepareCancelled(t *testing.T) {
	preparer := newTestPreparer(t, nil)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := preparer.Prepare(ctx, testFiles)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewPreparerInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config *codedata.Config
	}{
		{name: "zero sequence length", config: &codedata.Config{SeqLength: 0}},
		{name: "negative sequence length", config: &codedata.Config{SeqLength: -3}},
		{name: "negative max windows", config: &codedata.Config{SeqLength: 8, MaxWindows: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codedata.NewPreparer(t.Context(), tt.config)
			assert.ErrorIs(t, err, dataset.ErrInvalidConfiguration)
		})
	}
}

func TestNewPreparerInvalidStore(t *testing.T) {
	_, err := codedata.NewPreparer(t.Context(), &codedata.Config{
		SeqLength:           8,
		SequenceStoreConfig: &seqstore.Config{},
	})
	assert.Error(t, err)
}

func TestPrepareWithPretrainedTokenizer(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping tokenizer integration test in short mode")
	}

	preparer := newTestPreparer(t, func(config *codedata.Config) {
		config.ModelName = "google-bert/bert-base-uncased"
		config.HFTokenizerConfig = &tokenization.HFTokenizerConfig{TokenizersCacheDir: t.TempDir()}
	})

	result, err := preparer.Prepare(t.Context(), testFiles)
	require.NoError(t, err)
	assert.Nil(t, result.Tokenizer)
	assert.Equal(t, "google-bert/bert-base-uncased", result.Encoder.ID())

	if result.Dataset.Len() > 0 {
		window, err := result.Dataset.Get(0)
		require.NoError(t, err)
		_, err = result.Decode(window.InputIDs)
		assert.NoError(t, err, fmt.Sprint(window.InputIDs))
	}
}
