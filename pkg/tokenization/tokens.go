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
	"iter"
	"strings"
)

// Reserved tokens, in vocabulary order.
const (
	PadToken     = "<PAD>"
	UnknownToken = "<UNK>"
	NewlineToken = "<NEWLINE>"
	IndentToken  = "<INDENT>"
)

const (
	indentWidth = 4
	// separators are token boundaries that are also tokens themselves.
	separators = " :;.,'\"{}[]()"
)

var (
	reservedTokens = []string{PadToken, UnknownToken, NewlineToken, IndentToken}
	indentUnit     = strings.Repeat(" ", indentWidth)
)

// Tokens returns the token stream of text. Every line contributes one
// IndentToken per leading group of four spaces, the tokens of its remainder
// and a closing NewlineToken, including empty lines and a final line without
// a trailing newline.
//
// The returned sequence is lazy and can be ranged over any number of times.
func Tokens(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for line := range strings.SplitSeq(text, "\n") {
			for strings.HasPrefix(line, indentUnit) {
				line = line[indentWidth:]
				if !yield(IndentToken) {
					return
				}
			}

			for token := range LineTokens(line) {
				if !yield(token) {
					return
				}
			}

			if !yield(NewlineToken) {
				return
			}
		}
	}
}

// LineTokens splits a single line into tokens. Separator characters are
// emitted as one-character tokens; the runs between them are split on
// whitespace, dropping empty pieces.
func LineTokens(line string) iter.Seq[string] {
	return func(yield func(string) bool) {
		start := 0
		// separators are ASCII, so they never match inside a multi-byte rune.
		for i := 0; i < len(line); i++ {
			if strings.IndexByte(separators, line[i]) < 0 {
				continue
			}

			if !yieldFields(line[start:i], yield) || !yield(line[i:i+1]) {
				return
			}
			start = i + 1
		}

		yieldFields(line[start:], yield)
	}
}

func yieldFields(part string, yield func(string) bool) bool {
	for field := range strings.FieldsSeq(part) {
		if !yield(field) {
			return false
		}
	}
	return true
}
