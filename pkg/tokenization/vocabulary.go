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
	"cmp"
	"slices"
)

// Vocabulary is an immutable ordered list of tokens. A token's id is its
// position in the list.
//
// A token may appear more than once (the reserved tokens are also counted as
// corpus tokens during fitting). Looking up a token always resolves to its
// first position, while every position decodes back to its token.
type Vocabulary struct {
	tokens []string
	ids    map[string]int
}

func newVocabulary(tokens []string) *Vocabulary {
	ids := make(map[string]int, len(tokens))
	for id, token := range tokens {
		if _, exists := ids[token]; !exists {
			ids[token] = id
		}
	}

	return &Vocabulary{
		tokens: tokens,
		ids:    ids,
	}
}

// buildVocabulary counts the tokens of every text and orders them after the
// reserved tokens by descending count. Ties keep first-encounter order.
func buildVocabulary(corpus []string) *Vocabulary {
	type tokenCount struct {
		token string
		count int
	}

	positions := make(map[string]int)
	var counts []tokenCount // in first-encounter order

	for _, text := range corpus {
		for token := range Tokens(text) {
			if pos, seen := positions[token]; seen {
				counts[pos].count++
				continue
			}
			positions[token] = len(counts)
			counts = append(counts, tokenCount{token: token, count: 1})
		}
	}

	slices.SortStableFunc(counts, func(a, b tokenCount) int {
		return cmp.Compare(b.count, a.count)
	})

	tokens := make([]string, 0, len(reservedTokens)+len(counts))
	tokens = append(tokens, reservedTokens...)
	for _, c := range counts {
		tokens = append(tokens, c.token)
	}

	return newVocabulary(tokens)
}

// Size returns the number of ids in the vocabulary.
func (v *Vocabulary) Size() int {
	return len(v.tokens)
}

// ID returns the id of token.
func (v *Vocabulary) ID(token string) (int, bool) {
	id, ok := v.ids[token]
	return id, ok
}

// Token returns the token of id.
func (v *Vocabulary) Token(id int) (string, bool) {
	if id < 0 || id >= len(v.tokens) {
		return "", false
	}
	return v.tokens[id], true
}

// Tokens returns a copy of the ordered token list.
func (v *Vocabulary) Tokens() []string {
	return slices.Clone(v.tokens)
}

// hasReservedPrefix reports whether the vocabulary starts with the reserved
// tokens in order.
func (v *Vocabulary) hasReservedPrefix() bool {
	return len(v.tokens) >= len(reservedTokens) &&
		slices.Equal(v.tokens[:len(reservedTokens)], reservedTokens)
}
