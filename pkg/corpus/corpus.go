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

// Package corpus supplies the (path, content) pairs that datasets are built
// from. Files are read from disk by ScanFolders; package zmqsource collects
// them from a publisher instead.
package corpus

import (
	"github.com/llm-d/llm-d-code-dataset/pkg/utils"
)

// FileContent is the content of a file along with its path.
// The path is opaque metadata; only the content is encoded.
type FileContent struct {
	_       struct{} `msgpack:",array"`
	Path    string
	Content string
}

// Contents returns the content of every file, in order.
func Contents(files []FileContent) []string {
	return utils.SliceMap(files, func(file FileContent) string {
		return file.Content
	})
}

// TotalSize returns the summed content size of files in bytes.
func TotalSize(files []FileContent) uint64 {
	var total uint64
	for _, file := range files {
		total += uint64(len(file.Content))
	}
	return total
}
