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
	"fmt"
	"math/rand/v2"
	"slices"
	"sort"
	"sync"

	"github.com/llm-d/llm-d-code-dataset/pkg/corpus"
)

// Encoder turns text into token ids.
type Encoder interface {
	Encode(text string) ([]int, error)
}

// Window is one training example: SeqLength input ids and the ids that
// follow each of them.
type Window struct {
	InputIDs []int `json:"inputIds"`
	Labels   []int `json:"labels"`
}

// Dataset is an indexable collection of training windows.
type Dataset interface {
	// Len returns the number of windows.
	Len() int
	// Get returns the window at idx.
	Get(idx int) (Window, error)
	// ShuffleAndCap replaces the window order with a random selection of at
	// most length windows drawn from all windows.
	ShuffleAndCap(length int) error
}

// Option configures a WindowedDataset.
type Option func(*WindowedDataset)

// WithRand sets the random source used by ShuffleAndCap.
func WithRand(rng *rand.Rand) Option {
	return func(d *WindowedDataset) {
		d.rng = rng
	}
}

// WithSeed makes ShuffleAndCap reproducible.
func WithSeed(seed uint64) Option {
	return WithRand(rand.New(rand.NewPCG(seed, seed)))
}

// WindowedDataset exposes every sliding window of SeqLength tokens over a set
// of encoded files. A file of n tokens contributes max(0, n-SeqLength)
// windows, so that the label of the last window still exists.
//
// Len and Get are safe for concurrent use, including concurrently with
// ShuffleAndCap.
type WindowedDataset struct {
	mu sync.RWMutex

	seqLength         int
	sequences         [][]int
	cumulativeLengths []int // len(sequences)+1 entries, starting at 0
	// reshuffled remaps Get indices once ShuffleAndCap has run. A non-nil
	// empty slice is a dataset capped to zero windows.
	reshuffled []int
	rng        *rand.Rand
}

var _ Dataset = &WindowedDataset{}

// New encodes every file once, in order, and indexes its windows.
func New(files []corpus.FileContent, encoder Encoder, seqLength int, opts ...Option) (*WindowedDataset, error) {
	if seqLength <= 0 {
		return nil, fmt.Errorf("%w: sequence length must be positive, got %d", ErrInvalidConfiguration, seqLength)
	}

	sequences := make([][]int, len(files))
	for i, file := range files {
		ids, err := encoder.Encode(file.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", file.Path, err)
		}
		sequences[i] = ids
	}

	return NewFromSequences(sequences, seqLength, opts...)
}

// NewFromSequences indexes already encoded files. The dataset takes
// ownership of sequences.
func NewFromSequences(sequences [][]int, seqLength int, opts ...Option) (*WindowedDataset, error) {
	if seqLength <= 0 {
		return nil, fmt.Errorf("%w: sequence length must be positive, got %d", ErrInvalidConfiguration, seqLength)
	}

	cumulativeLengths := make([]int, len(sequences)+1)
	for i, ids := range sequences {
		cumulativeLengths[i+1] = cumulativeLengths[i] + max(0, len(ids)-seqLength)
	}

	d := &WindowedDataset{
		seqLength:         seqLength,
		sequences:         sequences,
		cumulativeLengths: cumulativeLengths,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.rng == nil {
		d.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // not security sensitive
	}

	return d, nil
}

// Len returns the number of windows, or the capped length after
// ShuffleAndCap.
func (d *WindowedDataset) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.reshuffled != nil {
		return len(d.reshuffled)
	}
	return d.totalWindows()
}

// Get returns the window at idx. After ShuffleAndCap, idx is first remapped
// through the shuffled order.
func (d *WindowedDataset) Get(idx int) (Window, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.reshuffled != nil {
		if idx < 0 || idx >= len(d.reshuffled) {
			return Window{}, fmt.Errorf("%w: %d is outside [0, %d)", ErrIndexOutOfRange, idx, len(d.reshuffled))
		}
		idx = d.reshuffled[idx]
	}

	total := d.totalWindows()
	if idx < 0 || idx >= total {
		return Window{}, fmt.Errorf("%w: %d is outside [0, %d)", ErrIndexOutOfRange, idx, total)
	}

	// Owning file: the last one whose cumulative length is <= idx.
	fileIdx := sort.Search(len(d.cumulativeLengths), func(i int) bool {
		return d.cumulativeLengths[i] > idx
	}) - 1

	local := idx - d.cumulativeLengths[fileIdx]
	ids := d.sequences[fileIdx]

	return Window{
		InputIDs: slices.Clone(ids[local : local+d.seqLength]),
		Labels:   slices.Clone(ids[local+1 : local+d.seqLength+1]),
	}, nil
}

// ShuffleAndCap draws a uniformly random ordering of all windows and keeps
// its first length entries. It always draws from every window, regardless
// of earlier calls.
func (d *WindowedDataset) ShuffleAndCap(length int) error {
	if length < 0 {
		return fmt.Errorf("%w: cap length must not be negative, got %d", ErrInvalidConfiguration, length)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	total := d.totalWindows()
	n := min(length, total)

	// Partial Fisher-Yates over a virtual [0, total) array. swapped holds the
	// positions whose value differs from their index.
	swapped := make(map[int]int, n)
	valueAt := func(pos int) int {
		if v, ok := swapped[pos]; ok {
			return v
		}
		return pos
	}

	reshuffled := make([]int, n)
	for i := range n {
		j := i + d.rng.IntN(total-i)
		vi, vj := valueAt(i), valueAt(j)
		reshuffled[i] = vj
		swapped[j] = vi
		delete(swapped, i)
	}

	d.reshuffled = reshuffled
	return nil
}

// CumulativeLengths returns the window offset of every file followed by the
// total number of windows.
func (d *WindowedDataset) CumulativeLengths() []int {
	return slices.Clone(d.cumulativeLengths)
}

// TrainInputLengths returns the number of windows of every file.
func (d *WindowedDataset) TrainInputLengths() []int {
	lengths := make([]int, len(d.sequences))
	for i := range lengths {
		lengths[i] = d.cumulativeLengths[i+1] - d.cumulativeLengths[i]
	}
	return lengths
}

// TotalWindows returns the number of windows before any capping.
func (d *WindowedDataset) TotalWindows() int {
	return d.totalWindows()
}

// SeqLength returns the length of InputIDs and Labels.
func (d *WindowedDataset) SeqLength() int {
	return d.seqLength
}

func (d *WindowedDataset) totalWindows() int {
	return d.cumulativeLengths[len(d.cumulativeLengths)-1]
}
