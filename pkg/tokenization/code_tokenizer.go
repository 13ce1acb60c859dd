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
	"strings"
	"sync"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"github.com/fxamacker/cbor/v2"
)

const (
	codeTokenizerIDPrefix = "code-tokenizer@"
	vocabularyFormat      = 1
)

// CodeTokenizer is a reversible tokenizer for source code that keeps
// indentation and line structure as tokens.
//
// A CodeTokenizer starts unfit and is fitted exactly once, after which it is
// read-only and safe for concurrent use.
type CodeTokenizer struct {
	mu    sync.RWMutex
	vocab *Vocabulary
	id    string
}

var _ Encoder = &CodeTokenizer{}

// NewCodeTokenizer creates an unfit CodeTokenizer.
func NewCodeTokenizer() *CodeTokenizer {
	return &CodeTokenizer{}
}

// Fit builds the vocabulary from code snippets. It fails with
// ErrAlreadyFitted if the tokenizer was already fitted.
func (t *CodeTokenizer) Fit(corpus []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.vocab != nil {
		return ErrAlreadyFitted
	}

	return t.setVocabulary(buildVocabulary(corpus))
}

func (t *CodeTokenizer) setVocabulary(vocab *Vocabulary) error {
	snapshot, err := marshalTokens(vocab.tokens)
	if err != nil {
		return err
	}

	t.vocab = vocab
	t.id = fmt.Sprintf("%s%016x", codeTokenizerIDPrefix, xxhash.Sum64(snapshot))
	return nil
}

func (t *CodeTokenizer) vocabulary() (*Vocabulary, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.vocab == nil {
		return nil, ErrNotFitted
	}
	return t.vocab, nil
}

// Encode converts text into token ids. Tokens missing from the vocabulary
// become the UnknownToken id. The result always ends with the NewlineToken id.
func (t *CodeTokenizer) Encode(text string) ([]int, error) {
	vocab, err := t.vocabulary()
	if err != nil {
		return nil, err
	}

	unknownID, _ := vocab.ID(UnknownToken)

	var ids []int
	for token := range Tokens(text) {
		id, ok := vocab.ID(token)
		if !ok {
			id = unknownID
		}
		ids = append(ids, id)
	}

	return ids, nil
}

// Decode converts token ids back into text, expanding NewlineToken and
// IndentToken. Trailing whitespace of the result is trimmed.
func (t *CodeTokenizer) Decode(ids []int) (string, error) {
	vocab, err := t.vocabulary()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, id := range ids {
		token, ok := vocab.Token(id)
		if !ok {
			return "", fmt.Errorf("%w: %d is outside [0, %d)", ErrInvalidTokenID, id, vocab.Size())
		}

		switch token {
		case NewlineToken:
			sb.WriteByte('\n')
		case IndentToken:
			sb.WriteString(indentUnit)
		default:
			sb.WriteString(token)
		}
	}

	return strings.TrimRightFunc(sb.String(), unicode.IsSpace), nil
}

// VocabSize returns the number of ids in the vocabulary.
func (t *CodeTokenizer) VocabSize() (int, error) {
	vocab, err := t.vocabulary()
	if err != nil {
		return 0, err
	}
	return vocab.Size(), nil
}

// PadTokenID returns the id of PadToken.
func (t *CodeTokenizer) PadTokenID() (int, error) {
	vocab, err := t.vocabulary()
	if err != nil {
		return 0, err
	}
	id, _ := vocab.ID(PadToken)
	return id, nil
}

// TokenID returns the id of token. It reports false for unknown tokens and
// before fitting.
func (t *CodeTokenizer) TokenID(token string) (int, bool) {
	vocab, err := t.vocabulary()
	if err != nil {
		return 0, false
	}
	return vocab.ID(token)
}

// Vocabulary returns a copy of the ordered token list.
func (t *CodeTokenizer) Vocabulary() ([]string, error) {
	vocab, err := t.vocabulary()
	if err != nil {
		return nil, err
	}
	return vocab.Tokens(), nil
}

// ID identifies the tokenizer by a checksum of its vocabulary. It is empty
// before fitting.
func (t *CodeTokenizer) ID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.id
}

type vocabularySnapshot struct {
	Format int      `cbor:"1,keyasint"`
	Tokens []string `cbor:"2,keyasint"`
}

func marshalTokens(tokens []string) ([]byte, error) {
	encMode, err := cbor.CanonicalEncOptions().EncMode() // deterministic
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR encoder: %w", err)
	}

	b, err := encMode.Marshal(vocabularySnapshot{Format: vocabularyFormat, Tokens: tokens})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal vocabulary to CBOR: %w", err)
	}
	return b, nil
}

// MarshalVocabulary serializes the fitted vocabulary.
func (t *CodeTokenizer) MarshalVocabulary() ([]byte, error) {
	vocab, err := t.vocabulary()
	if err != nil {
		return nil, err
	}
	return marshalTokens(vocab.tokens)
}

// LoadCodeTokenizer creates a fitted CodeTokenizer from the output of
// MarshalVocabulary.
func LoadCodeTokenizer(data []byte) (*CodeTokenizer, error) {
	var snapshot vocabularySnapshot
	if err := cbor.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vocabulary: %w", err)
	}
	if snapshot.Format != vocabularyFormat {
		return nil, fmt.Errorf("unsupported vocabulary format %d", snapshot.Format)
	}

	vocab := newVocabulary(snapshot.Tokens)
	if !vocab.hasReservedPrefix() {
		return nil, fmt.Errorf("vocabulary does not start with reserved tokens %v", reservedTokens)
	}

	t := NewCodeTokenizer()
	if err := t.setVocabulary(vocab); err != nil {
		return nil, err
	}
	return t, nil
}
