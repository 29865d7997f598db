package backend

import (
	"context"
	"fmt"
	"log/slog"

	"caixa/internal/remote/httpapi"
	"caixa/internal/remote/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(_ context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case HTTPBackend:
		return f.createHTTPBackend(config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createHTTPBackend(config Config) (*BackendResult, error) {
	client, err := httpapi.New(config.BaseURL, config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize HTTP client: %w", err)
	}

	f.logger.Info("Initialized HTTP backend",
		"component", "backend",
		"base_url", config.BaseURL,
		"timeout", config.Timeout)

	return &BackendResult{API: client}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}

	store, err := memory.NewFromFiles(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to seed memory backend: %w", err)
	}

	f.logger.Info("Initialized memory backend",
		"component", "backend",
		"data_directory", dataDir)

	return &BackendResult{API: store}, nil
}
