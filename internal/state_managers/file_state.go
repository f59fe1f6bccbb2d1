package state_managers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/benmeehan/geofence-agent/pkg/file"
)

// FileStateManager keeps the key-value map in memory and persists the whole
// document to a JSON file on every write.
type FileStateManager struct {
	filePath   string
	fileClient file.FileOperations
	logger     zerolog.Logger

	mu     sync.RWMutex
	values map[string]string
}

// NewFileStateManager loads filePath if it exists. A missing file is an empty store.
func NewFileStateManager(filePath string, fileClient file.FileOperations, logger zerolog.Logger) (*FileStateManager, error) {
	if filePath == "" {
		return nil, errors.New("state file path is empty")
	}

	sm := &FileStateManager{
		filePath:   filePath,
		fileClient: fileClient,
		logger:     logger,
		values:     make(map[string]string),
	}

	exists, err := fileClient.IsFileExists(filePath)
	if err != nil {
		return nil, fmt.Errorf("stat state file: %w", err)
	}
	if !exists {
		return sm, nil
	}

	if err := fileClient.ReadJsonFile(filePath, &sm.values); err != nil {
		sm.logger.Error().Err(err).Str("path", filePath).Msg("Failed to read state file")
		return nil, fmt.Errorf("read state file: %w", err)
	}
	if sm.values == nil {
		sm.values = make(map[string]string)
	}
	return sm, nil
}

// Get returns the value stored under key.
func (sm *FileStateManager) Get(_ context.Context, key string) (string, bool, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	v, ok := sm.values[key]
	return v, ok, nil
}

// Set stores a single value and persists the document.
func (sm *FileStateManager) Set(ctx context.Context, key, value string) error {
	return sm.SetAll(ctx, map[string]string{key: value})
}

// SetAll stores every value and persists the document once. On a write failure
// the in-memory map is left unchanged.
func (sm *FileStateManager) SetAll(_ context.Context, values map[string]string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	next := make(map[string]string, len(sm.values)+len(values))
	for k, v := range sm.values {
		next[k] = v
	}
	for k, v := range values {
		next[k] = v
	}

	if err := sm.fileClient.WriteJsonFile(sm.filePath, next); err != nil {
		sm.logger.Error().Err(err).Str("path", sm.filePath).Msg("Failed to write state file")
		return err
	}
	sm.values = next
	return nil
}

// Ping checks that the directory holding the state file is reachable.
func (sm *FileStateManager) Ping(_ context.Context) error {
	exists, err := sm.fileClient.IsFileExists(sm.filePath)
	if err != nil {
		return err
	}
	if !exists {
		sm.mu.RLock()
		empty := len(sm.values) == 0
		sm.mu.RUnlock()
		if !empty {
			return fmt.Errorf("state file %s: %w", sm.filePath, os.ErrNotExist)
		}
	}
	return nil
}

// Close is a no-op, every write is already on disk.
func (sm *FileStateManager) Close() error {
	return nil
}
