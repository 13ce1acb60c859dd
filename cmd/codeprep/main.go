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

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"
	"k8s.io/klog/v2"

	"github.com/llm-d/llm-d-code-dataset/pkg/codedata"
	"github.com/llm-d/llm-d-code-dataset/pkg/corpus"
	"github.com/llm-d/llm-d-code-dataset/pkg/corpus/zmqsource"
	"github.com/llm-d/llm-d-code-dataset/pkg/dataset/seqstore"
	"github.com/llm-d/llm-d-code-dataset/pkg/tokenization"
)

const (
	envConfigFile     = "CONFIG_FILE"
	envCodeDirs       = "CODE_DIRS"
	envCodeExtensions = "CODE_EXTENSIONS"
	envSeqLength      = "SEQ_LENGTH"
	envMaxWindows     = "MAX_WINDOWS"
	envRedisAddr      = "REDIS_ADDR"
	envModelName      = "MODEL_NAME"
	envHFToken        = "HF_TOKEN"
	envZMQEndpoint    = "CORPUS_ZMQ_ENDPOINT"
	envVocabFile      = "VOCAB_FILE"

	sampleWindows = 3
)

// appConfig is the content of CONFIG_FILE. Environment variables override it.
type appConfig struct {
	Preparer   *codedata.Config            `json:"preparer"`
	Scanner    *corpus.ScannerConfig       `json:"scanner"`
	Subscriber *zmqsource.SubscriberConfig `json:"subscriber,omitempty"` // nil scans folders
	VocabFile  string                      `json:"vocabFile,omitempty"`
}

func defaultAppConfig() *appConfig {
	return &appConfig{
		Preparer: codedata.NewDefaultConfig(),
		Scanner:  corpus.DefaultScannerConfig(),
	}
}

func loadConfig() (*appConfig, error) {
	config := defaultAppConfig()

	if path := os.Getenv(envConfigFile); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		if config.Preparer == nil {
			config.Preparer = codedata.NewDefaultConfig()
		}
		if config.Scanner == nil {
			config.Scanner = corpus.DefaultScannerConfig()
		}
	}

	if dirs := splitList(os.Getenv(envCodeDirs)); len(dirs) > 0 {
		config.Scanner.Folders = dirs
	}
	if extensions := splitList(os.Getenv(envCodeExtensions)); len(extensions) > 0 {
		config.Scanner.Extensions = extensions
	}

	if err := intFromEnv(envSeqLength, &config.Preparer.SeqLength); err != nil {
		return nil, err
	}
	if err := intFromEnv(envMaxWindows, &config.Preparer.MaxWindows); err != nil {
		return nil, err
	}

	if modelName := os.Getenv(envModelName); modelName != "" {
		config.Preparer.ModelName = modelName
	}
	if huggingFaceToken := os.Getenv(envHFToken); huggingFaceToken != "" {
		if config.Preparer.HFTokenizerConfig == nil {
			config.Preparer.HFTokenizerConfig = tokenization.DefaultHFTokenizerConfig()
		}
		config.Preparer.HFTokenizerConfig.HuggingFaceToken = huggingFaceToken
	}

	if redisAddr := os.Getenv(envRedisAddr); redisAddr != "" {
		redisOpt, err := redis.ParseURL(redisAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis host: %w", err)
		}
		config.Preparer.SequenceStoreConfig = &seqstore.Config{
			RedisConfig: &seqstore.RedisStoreConfig{Address: redisOpt.Addr},
		}
	} // Otherwise keeps the configured (default in-memory) store

	if endpoint := os.Getenv(envZMQEndpoint); endpoint != "" {
		if config.Subscriber == nil {
			config.Subscriber = zmqsource.DefaultSubscriberConfig()
		}
		config.Subscriber.ZMQEndpoint = endpoint
	}

	if vocabFile := os.Getenv(envVocabFile); vocabFile != "" {
		config.VocabFile = vocabFile
	}

	return config, nil
}

func splitList(value string) []string {
	var items []string
	for item := range strings.SplitSeq(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func intFromEnv(name string, target *int) error {
	value := os.Getenv(name)
	if value == "" {
		return nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*target = parsed
	return nil
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := klog.FromContext(ctx)

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Received shutdown signal")
		cancel()
	}()

	if err := run(ctx); err != nil {
		logger.Error(err, "Failed to prepare code dataset")
		cancel()
		os.Exit(1) //nolint:gocritic // cancel is called explicitly
	}
}

func run(ctx context.Context) error {
	logger := klog.FromContext(ctx)

	config, err := loadConfig()
	if err != nil {
		return err
	}

	files, err := collectFiles(ctx, config)
	if err != nil {
		return err
	}
	logger.Info("Collected corpus", "files", len(files))

	preparer, err := codedata.NewPreparer(ctx, config.Preparer)
	if err != nil {
		return fmt.Errorf("failed to create preparer: %w", err)
	}

	result, err := preparer.Prepare(ctx, files)
	if err != nil {
		return errors.Join(err, preparer.Close())
	}

	if err := preparer.Close(); err != nil {
		logger.Error(err, "Failed to close preparer")
	}

	if err := writeVocabulary(config.VocabFile, result); err != nil {
		return err
	}

	logSummary(ctx, result)
	return nil
}

func collectFiles(ctx context.Context, config *appConfig) ([]corpus.FileContent, error) {
	if config.Subscriber != nil {
		klog.FromContext(ctx).Info("Waiting for corpus over ZMQ", "endpoint", config.Subscriber.ZMQEndpoint)
		files, err := zmqsource.NewSubscriber(config.Subscriber).Collect(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to collect corpus: %w", err)
		}
		return files, nil
	}

	files, err := corpus.ScanFolders(ctx, config.Scanner)
	if err != nil {
		return nil, fmt.Errorf("failed to scan folders: %w", err)
	}
	return files, nil
}

func writeVocabulary(path string, result *codedata.Result) error {
	if path == "" || result.Tokenizer == nil {
		return nil
	}

	data, err := result.Tokenizer.MarshalVocabulary()
	if err != nil {
		return fmt.Errorf("failed to marshal vocabulary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write vocabulary: %w", err)
	}
	return nil
}

func logSummary(ctx context.Context, result *codedata.Result) {
	logger := klog.FromContext(ctx)

	logger.Info("Prepared dataset",
		"encoder", result.Encoder.ID(),
		"seq-length", result.Windows.SeqLength(),
		"total-windows", result.Windows.TotalWindows(),
		"windows", result.Dataset.Len())

	if result.Tokenizer != nil {
		if vocabSize, err := result.Tokenizer.VocabSize(); err == nil {
			logger.Info("Fitted tokenizer", "vocab-size", vocabSize)
		}
	}

	for idx := range min(sampleWindows, result.Dataset.Len()) {
		window, err := result.Dataset.Get(idx)
		if err != nil {
			logger.Error(err, "Failed to read window", "index", idx)
			return
		}

		text, err := result.Decode(window.InputIDs)
		if err != nil {
			logger.Error(err, "Failed to decode window", "index", idx)
			return
		}
		logger.Info("Sample window", "index", idx, "text", text)
	}
}
