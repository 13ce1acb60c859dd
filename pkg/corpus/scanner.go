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

package corpus

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	ignore "github.com/sabhiram/go-gitignore"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"

	"github.com/llm-d/llm-d-code-dataset/pkg/utils/logging"
)

const gitignoreFile = ".gitignore"

// ScannerConfig holds the configuration for ScanFolders.
type ScannerConfig struct {
	// Folders are scanned recursively, in the given order.
	Folders []string `json:"folders"`
	// Extensions filters files by extension. A leading dot is optional.
	Extensions []string `json:"extensions"`
	// RespectGitignore skips paths matched by a .gitignore at the root of a
	// scanned folder.
	RespectGitignore bool `json:"respectGitignore"`
}

// DefaultScannerConfig returns a configuration that scans the working
// directory for Python sources.
func DefaultScannerConfig() *ScannerConfig {
	return &ScannerConfig{
		Folders:          []string{"."},
		Extensions:       []string{"py"},
		RespectGitignore: true,
	}
}

// ScanFolders walks the configured folders and returns the contents of all
// files whose extension matches. Files are returned folder by folder, each
// folder in lexical walk order.
func ScanFolders(ctx context.Context, cfg *ScannerConfig) ([]FileContent, error) {
	if cfg == nil {
		cfg = DefaultScannerConfig()
	}

	logger := klog.FromContext(ctx).WithName("corpus.ScanFolders")
	extensions := sets.New[string]()
	for _, ext := range cfg.Extensions {
		extensions.Insert(strings.TrimPrefix(ext, "."))
	}

	var files []FileContent
	var totalSize uint64

	for _, folder := range cfg.Folders {
		matcher, err := loadIgnoreMatcher(folder, cfg.RespectGitignore)
		if err != nil {
			return nil, err
		}

		err = filepath.WalkDir(folder, func(path string, entry fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			if matcher != nil && path != folder {
				if rel, relErr := filepath.Rel(folder, path); relErr == nil && matcher.MatchesPath(rel) {
					if entry.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}
			}

			if entry.IsDir() || !extensions.Has(strings.TrimPrefix(filepath.Ext(path), ".")) {
				return nil
			}

			content, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}

			absPath, err := filepath.Abs(path)
			if err != nil {
				absPath = path
			}

			size := uint64(len(content))
			totalSize += size
			files = append(files, FileContent{Path: absPath, Content: string(content)})
			logger.V(logging.DEBUG).Info("scanned file", "name", entry.Name(), "size", humanize.IBytes(size))

			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan folder %s: %w", folder, err)
		}
	}

	logger.Info("scan completed", "files", len(files), "size", humanize.IBytes(totalSize))
	return files, nil
}

// loadIgnoreMatcher compiles the .gitignore at the root of folder, if any.
func loadIgnoreMatcher(folder string, enabled bool) (*ignore.GitIgnore, error) {
	if !enabled {
		return nil, nil
	}

	ignorePath := filepath.Join(folder, gitignoreFile)
	if _, err := os.Stat(ignorePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("error checking for %s: %w", ignorePath, err)
	}

	matcher, err := ignore.CompileIgnoreFile(ignorePath)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", ignorePath, err)
	}
	return matcher, nil
}
