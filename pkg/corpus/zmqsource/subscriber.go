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

// Package zmqsource collects a corpus published as file batches over ZMQ.
package zmqsource

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	zmq "github.com/pebbe/zmq4"
	"github.com/vmihailenco/msgpack/v5"
	"k8s.io/klog/v2"

	"github.com/llm-d/llm-d-code-dataset/pkg/corpus"
	"github.com/llm-d/llm-d-code-dataset/pkg/utils/logging"
)

const (
	// How often the poller should time out to check for context cancellation.
	pollTimeout = 250 * time.Millisecond
	// maxBatches bounds the sequence range a final batch may announce.
	maxBatches = 1 << 20
)

// SubscriberConfig holds the configuration for the corpus Subscriber.
type SubscriberConfig struct {
	// ZMQEndpoint is the ZMQ address to bind to (e.g., "tcp://*:5558").
	ZMQEndpoint string `json:"zmqEndpoint"`
	// TopicFilter is the ZMQ subscription filter (e.g., "corpus@").
	TopicFilter string `json:"topicFilter"`
}

// DefaultSubscriberConfig returns a default configuration for the Subscriber.
func DefaultSubscriberConfig() *SubscriberConfig {
	return &SubscriberConfig{
		ZMQEndpoint: "tcp://*:5558",
		TopicFilter: "corpus@",
	}
}

// FileBatch is the msgpack payload of a corpus message.
//
// Final marks the last batch of a corpus. A final batch also carries
// FirstSeq, the sequence number of the corpus' first batch, so that the
// corpus is complete once every sequence number from FirstSeq to the final
// one has arrived.
type FileBatch struct {
	_        struct{} `msgpack:",array"`
	Files    []corpus.FileContent
	Final    bool
	FirstSeq uint64
}

// NewFileBatchMessage builds the [topic, seq, payload] frames a publisher
// sends for one batch.
func NewFileBatchMessage(topic string, seq uint64, batch FileBatch) ([][]byte, error) {
	payload, err := msgpack.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal file batch: %w", err)
	}

	seqBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(seqBytes, seq)

	return [][]byte{[]byte(topic), seqBytes, payload}, nil
}

// Subscriber binds a ZMQ SUB socket and collects the file batches published by
// a file-scanning service.
type Subscriber struct {
	endpoint    string
	topicFilter string
}

// NewSubscriber creates a new corpus Subscriber.
func NewSubscriber(cfg *SubscriberConfig) *Subscriber {
	if cfg == nil {
		cfg = DefaultSubscriberConfig()
	}

	return &Subscriber{
		endpoint:    cfg.ZMQEndpoint,
		topicFilter: cfg.TopicFilter,
	}
}

// Collect receives batches until the final batch and every batch before it
// have arrived, and returns the files ordered by batch sequence number.
// It fails if ctx ends first.
func (s *Subscriber) Collect(ctx context.Context) ([]corpus.FileContent, error) {
	logger := klog.FromContext(ctx).WithName("corpus-subscriber")

	sub, err := zmq.NewSocket(zmq.SUB)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscriber socket: %w", err)
	}
	defer sub.Close()

	if err := sub.Bind(s.endpoint); err != nil {
		return nil, fmt.Errorf("failed to bind subscriber socket to %s: %w", s.endpoint, err)
	}
	logger.Info("Bound subscriber socket", "endpoint", s.endpoint)

	if err := sub.SetSubscribe(s.topicFilter); err != nil {
		return nil, fmt.Errorf("failed to subscribe to topic filter %q: %w", s.topicFilter, err)
	}

	poller := zmq.NewPoller()
	poller.Add(sub, zmq.POLLIN)
	debugLogger := logger.V(logging.DEBUG)
	collector := newBatchCollector()

	for {
		select {
		case <-ctx.Done():
			return nil, collector.incompleteError(ctx.Err())
		default:
		}

		polled, err := poller.Poll(pollTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to poll subscriber socket: %w", err)
		}
		if len(polled) == 0 {
			continue
		}

		parts, err := sub.RecvMessageBytes(0)
		if err != nil {
			return nil, fmt.Errorf("failed to receive message: %w", err)
		}

		done, err := collector.handleMessage(parts)
		if err != nil {
			debugLogger.Error(err, "Dropping malformed corpus message", "parts", len(parts))
			continue
		}
		if done {
			files := collector.files()
			logger.Info("Collected corpus", "batches", collector.finalSeq-collector.firstSeq+1, "files", len(files))
			return files, nil
		}
	}
}

// batchCollector reorders batches by sequence number and tracks which
// batches of the announced range are still missing.
type batchCollector struct {
	batches map[uint64][]corpus.FileContent

	final    bool // firstSeq and finalSeq are known
	firstSeq uint64
	finalSeq uint64
}

func newBatchCollector() *batchCollector {
	return &batchCollector{batches: make(map[uint64][]corpus.FileContent)}
}

// handleMessage decodes one [topic, seq, payload] message and reports whether
// the corpus is complete.
func (c *batchCollector) handleMessage(parts [][]byte) (bool, error) {
	if len(parts) != 3 {
		return false, fmt.Errorf("expected 3 message frames, got %d", len(parts))
	}
	if !strings.Contains(string(parts[0]), "@") {
		return false, fmt.Errorf("topic %q is not in <prefix>@<source> format", parts[0])
	}
	if len(parts[1]) != 8 {
		return false, fmt.Errorf("sequence frame has %d bytes, expected 8", len(parts[1]))
	}

	seq := binary.BigEndian.Uint64(parts[1])

	var batch FileBatch
	if err := msgpack.Unmarshal(parts[2], &batch); err != nil {
		return false, fmt.Errorf("failed to unmarshal file batch %d: %w", seq, err)
	}

	if batch.Final {
		if batch.FirstSeq > seq {
			return false, fmt.Errorf("final batch %d starts the corpus at later batch %d", seq, batch.FirstSeq)
		}
		if seq-batch.FirstSeq >= maxBatches {
			return false, fmt.Errorf("final batch %d announces more than %d batches", seq, maxBatches)
		}
		c.final = true
		c.firstSeq = batch.FirstSeq
		c.finalSeq = seq
	}

	// A redelivered sequence number replaces the earlier batch.
	c.batches[seq] = batch.Files
	return c.complete(), nil
}

// complete reports whether the final batch and every batch before it, down
// to the first one, have arrived.
func (c *batchCollector) complete() bool {
	return c.final && len(c.missing()) == 0
}

// missing returns the sequence numbers of the announced range that have not
// arrived yet.
func (c *batchCollector) missing() []uint64 {
	if !c.final {
		return nil
	}

	var seqs []uint64
	for i := range c.finalSeq - c.firstSeq + 1 {
		seq := c.firstSeq + i
		if _, ok := c.batches[seq]; !ok {
			seqs = append(seqs, seq)
		}
	}
	return seqs
}

// files concatenates the batches of the announced range in sequence order.
// Batches outside the range belong to another corpus and are left out.
func (c *batchCollector) files() []corpus.FileContent {
	if !c.final {
		return nil
	}

	var files []corpus.FileContent
	for i := range c.finalSeq - c.firstSeq + 1 {
		files = append(files, c.batches[c.firstSeq+i]...)
	}
	return files
}

func (c *batchCollector) incompleteError(cause error) error {
	missing := c.missing()
	if len(missing) == 0 {
		return fmt.Errorf("corpus stream ended before final batch: %w", cause)
	}
	return fmt.Errorf("corpus stream ended with %d missing batches, first missing %d: %w",
		len(missing), missing[0], cause)
}
