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

package dataset

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/llm-d/llm-d-code-dataset/pkg/metrics"
)

type instrumentedDataset struct {
	next Dataset
}

// NewInstrumentedDataset wraps a Dataset and emits metrics for Get.
func NewInstrumentedDataset(next Dataset) Dataset {
	return &instrumentedDataset{next: next}
}

func (m *instrumentedDataset) Len() int {
	return m.next.Len()
}

func (m *instrumentedDataset) Get(idx int) (Window, error) {
	timer := prometheus.NewTimer(metrics.WindowLookupLatency)
	defer timer.ObserveDuration()

	metrics.WindowReads.Inc()
	return m.next.Get(idx)
}

func (m *instrumentedDataset) ShuffleAndCap(length int) error {
	return m.next.ShuffleAndCap(length)
}
