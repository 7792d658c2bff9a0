package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/yigit/academydesk/internal/pkg/apperrors"
	"github.com/yigit/academydesk/internal/pkg/logger"
)

// File keeps all keys in one JSON document on the local filesystem.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile creates a File store at path, creating the parent directory.
func NewFile(path string) (*File, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		logger.Error().Err(err).Str("path", dir).Msg("Failed to create storage directory")
		return nil, fmt.Errorf("failed to create storage directory %s: %w", dir, err)
	}
	logger.Debug().Str("path", path).Msg("File storage ensured")
	return &File{path: path}, nil
}

// Path returns the backing file path
func (f *File) Path() string {
	return f.path
}

// Get returns the value stored under key
func (f *File) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return "", err
	}
	v, ok := data[key]
	if !ok {
		return "", apperrors.ErrKeyNotFound
	}
	return v, nil
}

// Set stores value under key
func (f *File) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return err
	}
	data[key] = value
	return f.save(data)
}

// Remove deletes key; a missing file or key is not an error
func (f *File) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := data[key]; !ok {
		return nil
	}
	delete(data, key)
	return f.save(data)
}

func (f *File) load() (map[string]string, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read storage file: %w", err)
	}
	data := make(map[string]string)
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse storage file %s: %w", f.path, err)
	}
	return data, nil
}

// save writes to a sibling temp file and renames it over the target
func (f *File) save(data map[string]string) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode storage file: %w", err)
	}

	tmp := filepath.Join(filepath.Dir(f.path), "."+uuid.New().String()+".tmp")
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		logger.Error().Err(err).Str("path", tmp).Msg("Failed to write storage file")
		return fmt.Errorf("failed to write storage file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		logger.Error().Err(err).Str("path", f.path).Msg("Failed to replace storage file")
		return fmt.Errorf("failed to replace storage file: %w", err)
	}
	return nil
}
