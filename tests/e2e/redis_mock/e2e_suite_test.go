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

//nolint:testpackage // allow tests to run in the same package
package e2e

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/suite"

	"github.com/llm-d/llm-d-code-dataset/pkg/codedata"
	"github.com/llm-d/llm-d-code-dataset/pkg/corpus"
	"github.com/llm-d/llm-d-code-dataset/pkg/dataset/seqstore"
)

const testSeqLength = 6

// CodeDatasetSuite defines a testify test suite for end-to-end testing of
// dataset preparation.
// It uses a mock Redis server (miniredis) as the sequence store.
type CodeDatasetSuite struct {
	suite.Suite

	ctx    context.Context
	cancel context.CancelFunc
	server *miniredis.Miniredis
	config *codedata.Config
	files  []corpus.FileContent
}

// SetupTest starts the mock Redis and builds a config pointing at it before
// each test.
func (s *CodeDatasetSuite) SetupTest() {
	s.ctx, s.cancel = context.WithCancel(context.Background())

	var err error
	s.server, err = miniredis.Run()
	s.Require().NoError(err)

	s.config = codedata.NewDefaultConfig()
	s.config.SeqLength = testSeqLength
	s.config.EnableMetrics = true
	s.config.SequenceStoreConfig = &seqstore.Config{
		RedisConfig: &seqstore.RedisStoreConfig{Address: s.server.Addr()},
	}

	s.files = []corpus.FileContent{
		{Path: "app/main.py", Content: "import sys\n\ndef main(argv):\n    print(argv)\n\nmain(sys.argv)\n"},
		{Path: "app/util.py", Content: "def add(a, b):\n    return a + b\n"},
		{Path: "app/__init__.py", Content: ""},
	}
}

// TearDownTest stops the mock Redis after each test.
func (s *CodeDatasetSuite) TearDownTest() {
	s.cancel()
	if s.server != nil {
		s.server.Close()
	}
}

// newPreparer creates a Preparer that is closed with the test.
func (s *CodeDatasetSuite) newPreparer() *codedata.Preparer {
	preparer, err := codedata.NewPreparer(s.ctx, s.config)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = preparer.Close() })
	return preparer
}

// TestCodeDatasetSuite runs the CodeDatasetSuite using testify's suite runner.
func TestCodeDatasetSuite(t *testing.T) {
	suite.Run(t, new(CodeDatasetSuite))
}
