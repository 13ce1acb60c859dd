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

import "errors"

var (
	// ErrNotFitted is returned when a CodeTokenizer is used before Fit.
	ErrNotFitted = errors.New("tokenizer is not fitted")
	// ErrAlreadyFitted is returned by a second call to Fit.
	ErrAlreadyFitted = errors.New("tokenizer is already fitted")
	// ErrInvalidTokenID is returned when decoding an id outside the vocabulary.
	ErrInvalidTokenID = errors.New("invalid token id")
)
