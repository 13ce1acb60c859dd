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

//nolint:testpackage // allow tests to run in the same package
package e2e

import (
	"fmt"
	"strings"
	"time"

	zmq "github.com/pebbe/zmq4"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/llm-d/llm-d-code-dataset/pkg/corpus"
	"github.com/llm-d/llm-d-code-dataset/pkg/corpus/zmqsource"
	"github.com/llm-d/llm-d-code-dataset/pkg/metrics"
)

// TestPrepareReusesRedisSequences verifies that the first preparation
// encodes every file and the second is served from Redis.
func (s *CodeDatasetSuite) TestPrepareReusesRedisSequences() {
	encodedBefore := testutil.ToFloat64(metrics.FilesEncoded)
	hitsBefore := testutil.ToFloat64(metrics.StoreHits)

	first, err := s.newPreparer().Prepare(s.ctx, s.files)
	s.Require().NoError(err)

	s.InDelta(encodedBefore+float64(len(s.files)), testutil.ToFloat64(metrics.FilesEncoded), 1e-9)
	s.Len(s.server.Keys(), len(s.files))
	for _, key := range s.server.Keys() {
		s.True(strings.HasPrefix(key, "seq:"), key)
	}

	second, err := s.newPreparer().Prepare(s.ctx, s.files)
	s.Require().NoError(err)

	s.InDelta(encodedBefore+float64(len(s.files)), testutil.ToFloat64(metrics.FilesEncoded), 1e-9)
	s.InDelta(hitsBefore+float64(len(s.files)), testutil.ToFloat64(metrics.StoreHits), 1e-9)

	s.Equal(first.Encoder.ID(), second.Encoder.ID())
	s.Equal(first.Windows.CumulativeLengths(), second.Windows.CumulativeLengths())
	s.Require().Positive(second.Dataset.Len())

	for idx := range second.Dataset.Len() {
		want, err := first.Dataset.Get(idx)
		s.Require().NoError(err)
		got, err := second.Dataset.Get(idx)
		s.Require().NoError(err)
		s.Equal(want, got)
	}
}

// TestChangedCorpusMissesRedis verifies that a different vocabulary does not
// reuse sequences encoded by another one.
func (s *CodeDatasetSuite) TestChangedCorpusMissesRedis() {
	_, err := s.newPreparer().Prepare(s.ctx, s.files)
	s.Require().NoError(err)

	encodedBefore := testutil.ToFloat64(metrics.FilesEncoded)
	changed := append(s.files, corpus.FileContent{Path: "app/extra.py", Content: "x = 'new tokens'\n"})

	result, err := s.newPreparer().Prepare(s.ctx, changed)
	s.Require().NoError(err)

	s.InDelta(encodedBefore+float64(len(changed)), testutil.ToFloat64(metrics.FilesEncoded), 1e-9)
	s.Len(s.server.Keys(), len(s.files)+len(changed))

	window, err := result.Dataset.Get(0)
	s.Require().NoError(err)
	text, err := result.Decode(window.InputIDs)
	s.Require().NoError(err)
	s.Equal("import sys\n\ndef", text)
}

// TestCappedDataset verifies that MaxWindows selects distinct windows.
func (s *CodeDatasetSuite) TestCappedDataset() {
	seed := uint64(1)
	s.config.MaxWindows = 4
	s.config.Seed = &seed

	result, err := s.newPreparer().Prepare(s.ctx, s.files)
	s.Require().NoError(err)
	s.Equal(4, result.Dataset.Len())

	seen := make(map[string]bool)
	for idx := range result.Dataset.Len() {
		window, err := result.Dataset.Get(idx)
		s.Require().NoError(err)
		s.Len(window.InputIDs, testSeqLength)
		s.Equal(window.InputIDs[1:], window.Labels[:testSeqLength-1])

		key := fmt.Sprint(window.InputIDs)
		s.False(seen[key])
		seen[key] = true
	}
}

// TestCorpusOverZMQ publishes the corpus in batches and prepares a dataset
// from what the subscriber collected.
func (s *CodeDatasetSuite) TestCorpusOverZMQ() {
	endpoint := fmt.Sprintf("inproc://corpus-e2e-%d", time.Now().UnixNano())
	subscriber := zmqsource.NewSubscriber(&zmqsource.SubscriberConfig{
		ZMQEndpoint: endpoint,
		TopicFilter: "corpus@",
	})

	type collected struct {
		files []corpus.FileContent
		err   error
	}
	done := make(chan collected, 1)
	go func() {
		files, err := subscriber.Collect(s.ctx)
		done <- collected{files: files, err: err}
	}()

	batches := []zmqsource.FileBatch{
		{Files: s.files[:2]},
		{Files: s.files[2:], Final: true, FirstSeq: 1},
	}
	messages := make([][][]byte, len(batches))
	for i, batch := range batches {
		msg, err := zmqsource.NewFileBatchMessage("corpus@e2e", uint64(i+1), batch)
		s.Require().NoError(err)
		messages[i] = msg
	}

	// Give the subscriber time to bind before connecting.
	time.Sleep(100 * time.Millisecond)

	pub, err := zmq.NewSocket(zmq.PUB)
	s.Require().NoError(err)
	defer pub.Close()
	s.Require().NoError(pub.Connect(endpoint))

	// Republish until the subscriber is done; early messages may be dropped
	// while the subscription propagates.
	var result collected
	deadline := time.After(10 * time.Second)
publish:
	for {
		for _, msg := range messages {
			_, err := pub.SendMessage(msg)
			s.Require().NoError(err)
		}

		select {
		case result = <-done:
			break publish
		case <-deadline:
			s.FailNow("timed out waiting for corpus")
		case <-time.After(50 * time.Millisecond):
		}
	}

	s.Require().NoError(result.err)
	s.Equal(s.files, result.files)

	prepared, err := s.newPreparer().Prepare(s.ctx, result.files)
	s.Require().NoError(err)
	s.Positive(prepared.Dataset.Len())
}
