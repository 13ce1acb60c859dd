// Copyright 2025 The llm-d Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"k8s.io/klog/v2"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	// FilesEncoded counts files turned into token-id sequences by an encoder.
	FilesEncoded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "codedata", Subsystem: "encoding", Name: "files_total",
		Help: "Total number of files encoded into token ids",
	})
	// EncodeLatency logs latency of single-file encodings.
	EncodeLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "codedata", Subsystem: "encoding", Name: "latency_seconds",
		Help:    "Latency of encoding one file in seconds",
		Buckets: prometheus.DefBuckets,
	})

	StoreHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "codedata", Subsystem: "seqstore", Name: "hits_total",
		Help: "Number of encoded sequences served from the sequence store",
	})
	StoreMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "codedata", Subsystem: "seqstore", Name: "misses_total",
		Help: "Number of sequence store lookups that found nothing",
	})
	StorePuts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "codedata", Subsystem: "seqstore", Name: "puts_total",
		Help: "Number of encoded sequences written to the sequence store",
	})
	// StoreErrors counts failed sequence store operations, which are neither
	// hits nor misses.
	StoreErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "codedata", Subsystem: "seqstore", Name: "errors_total",
		Help: "Number of failed sequence store operations",
	})

	// WindowReads counts Get() calls on a dataset.
	WindowReads = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "codedata", Subsystem: "dataset", Name: "window_reads_total",
		Help: "Total number of training windows read",
	})
	// WindowLookupLatency logs latency of window lookups.
	WindowLookupLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "codedata", Subsystem: "dataset", Name: "window_lookup_latency_seconds",
		Help:    "Latency of window lookups in seconds",
		Buckets: prometheus.ExponentialBuckets(1e-7, 4, 10),
	})
)

// Collectors returns a slice of all registered Prometheus collectors.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		FilesEncoded, EncodeLatency,
		StoreHits, StoreMisses, StorePuts, StoreErrors,
		WindowReads, WindowLookupLatency,
	}
}

var registerMetricsOnce = sync.Once{}

// Register registers all metrics with K8s registry.
func Register() {
	registerMetricsOnce.Do(func() {
		metrics.Registry.MustRegister(Collectors()...)
	})
}

// StartMetricsLogging spawns a goroutine that logs current metric values every
// interval until ctx is done.
func StartMetricsLogging(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logMetrics(ctx)
			}
		}
	}()
}

func counterValue(c prometheus.Counter) (float64, bool) {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0, false
	}
	return m.GetCounter().GetValue(), true
}

func logMetrics(ctx context.Context) {
	files, ok := counterValue(FilesEncoded)
	if !ok {
		return
	}
	hits, ok := counterValue(StoreHits)
	if !ok {
		return
	}
	misses, ok := counterValue(StoreMisses)
	if !ok {
		return
	}
	reads, ok := counterValue(WindowReads)
	if !ok {
		return
	}

	var latencyMetric dto.Metric
	if err := EncodeLatency.Write(&latencyMetric); err != nil {
		return
	}
	latencyCount := latencyMetric.GetHistogram().GetSampleCount()
	latencySum := latencyMetric.GetHistogram().GetSampleSum()

	latencyAvg := 0.0
	if latencyCount > 0 {
		latencyAvg = latencySum / float64(latencyCount)
	}

	klog.FromContext(ctx).WithName("metrics").Info("metrics beat",
		"files_encoded", files,
		"store_hits", hits,
		"store_misses", misses,
		"window_reads", reads,
		"encode_latency_count", latencyCount,
		"encode_latency_avg", latencyAvg,
	)
}
