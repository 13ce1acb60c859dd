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

package seqstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llm-d/llm-d-code-dataset/pkg/dataset/seqstore"
)

// testCommonStoreBehavior runs the behaviors every Store backend must share.
func testCommonStoreBehavior(t *testing.T, storeFactory func(t *testing.T) seqstore.Store) {
	t.Helper()

	t.Run("PutAndGet", func(t *testing.T) {
		testPutAndGet(t, storeFactory(t))
	})
	t.Run("Miss", func(t *testing.T) {
		testMiss(t, storeFactory(t))
	})
	t.Run("EncoderIsolation", func(t *testing.T) {
		testEncoderIsolation(t, storeFactory(t))
	})
	t.Run("Overwrite", func(t *testing.T) {
		testOverwrite(t, storeFactory(t))
	})
}

func testPutAndGet(t *testing.T, store seqstore.Store) {
	t.Helper()

	key := seqstore.NewKey("code-tokenizer@abc", "def foo():\n    pass\n")
	ids := []int{8, 4, 9, 10, 11, 12, 2, 3, 13, 2}

	require.NoError(t, store.Put(t.Context(), key, ids))

	got, found, err := store.Get(t.Context(), key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, ids, got)
}

func testMiss(t *testing.T, store seqstore.Store) {
	t.Helper()

	got, found, err := store.Get(t.Context(), seqstore.NewKey("code-tokenizer@abc", "never stored"))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func testEncoderIsolation(t *testing.T, store seqstore.Store) {
	t.Helper()

	content := "x = 1\n"
	codeKey := seqstore.NewKey("code-tokenizer@abc", content)
	hfKey := seqstore.NewKey("microsoft/CodeGPT-small-py", content)
	require.Equal(t, codeKey.ContentHash, hfKey.ContentHash)

	require.NoError(t, store.Put(t.Context(), codeKey, []int{4, 5, 6, 2}))

	_, found, err := store.Get(t.Context(), hfKey)
	require.NoError(t, err)
	assert.False(t, found)
}

func testOverwrite(t *testing.T, store seqstore.Store) {
	t.Helper()

	key := seqstore.NewKey("code-tokenizer@abc", "y = 2\n")
	require.NoError(t, store.Put(t.Context(), key, []int{1, 2}))
	require.NoError(t, store.Put(t.Context(), key, []int{3, 4, 5}))

	got, found, err := store.Get(t.Context(), key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []int{3, 4, 5}, got)
}

func TestKey(t *testing.T) {
	a := seqstore.NewKey("enc", "same content")
	b := seqstore.NewKey("enc", "same content")
	c := seqstore.NewKey("enc", "other content")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a.ContentHash, c.ContentHash)
	assert.Regexp(t, `^enc@\d+$`, a.String())
}

func TestNewStoreDefaultsToInMemory(t *testing.T) {
	store, err := seqstore.NewStore(nil)
	require.NoError(t, err)
	assert.IsType(t, &seqstore.InMemoryStore{}, store)
}

func TestNewStoreWithoutBackend(t *testing.T) {
	_, err := seqstore.NewStore(&seqstore.Config{})
	assert.Error(t, err)
}

func TestCloseStore(t *testing.T) {
	inMemory, err := seqstore.NewInMemoryStore(nil)
	require.NoError(t, err)
	assert.NoError(t, seqstore.Close(inMemory))

	costAware, err := seqstore.NewStore(&seqstore.Config{
		CostAwareMemoryConfig: &seqstore.CostAwareMemoryStoreConfig{Size: "1MiB"},
		EnableMetrics:         true,
	})
	require.NoError(t, err)
	assert.NoError(t, seqstore.Close(costAware))

	redisStore := createRedisStoreForTesting(t)
	assert.NoError(t, seqstore.Close(seqstore.NewInstrumentedStore(redisStore)))
}
