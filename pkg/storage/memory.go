package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raafayk7/DocumentManagementSystem-sub001/pkg/models"
	"github.com/raafayk7/DocumentManagementSystem-sub001/pkg/resilience"
)

// MemoryStorage implements Provider using an in-memory map.
// This is primarily for development and testing purposes.
type MemoryStorage struct {
	files map[string]*memoryFile
	lock  sync.RWMutex
}

type memoryFile struct {
	data []byte
	info models.FileInfo
}

// NewMemoryStorage creates a new in-memory storage provider
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		files: make(map[string]*memoryFile),
	}
}

// Upload stores a file in memory
func (s *MemoryStorage) Upload(ctx context.Context, data []byte, filename string, mimeType string) (*models.FileInfo, error) {
	if filename == "" {
		return nil, resilience.Fatal(fmt.Errorf("filename cannot be empty"))
	}
	if len(data) == 0 {
		return nil, resilience.Fatal(fmt.Errorf("data cannot be empty"))
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	// Copy to avoid external modifications
	stored := make([]byte, len(data))
	copy(stored, data)

	info := models.FileInfo{
		Name:         filename,
		Size:         int64(len(data)),
		MimeType:     mimeType,
		ETag:         uuid.NewString(),
		LastModified: time.Now(),
	}
	s.files[filename] = &memoryFile{data: stored, info: info}

	result := info
	return &result, nil
}

// Download retrieves a file from memory
func (s *MemoryStorage) Download(ctx context.Context, filename string) ([]byte, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	file, exists := s.files[filename]
	if !exists {
		return nil, resilience.Fatal(fmt.Errorf("file not found: %s", filename))
	}

	out := make([]byte, len(file.data))
	copy(out, file.data)
	return out, nil
}

// Delete removes a file from memory
func (s *MemoryStorage) Delete(ctx context.Context, filename string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, exists := s.files[filename]; !exists {
		return resilience.Fatal(fmt.Errorf("file not found: %s", filename))
	}

	delete(s.files, filename)
	return nil
}

// Exists reports whether a file is present
func (s *MemoryStorage) Exists(ctx context.Context, filename string) (bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	_, exists := s.files[filename]
	return exists, nil
}

// ListFiles lists all stored files
func (s *MemoryStorage) ListFiles(ctx context.Context) ([]models.FileInfo, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	result := make([]models.FileInfo, 0, len(s.files))
	for _, file := range s.files {
		result = append(result, file.info)
	}
	return result, nil
}

// GetFileInfo returns info for a single file
func (s *MemoryStorage) GetFileInfo(ctx context.Context, filename string) (*models.FileInfo, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	file, exists := s.files[filename]
	if !exists {
		return nil, resilience.Fatal(fmt.Errorf("file not found: %s", filename))
	}

	info := file.info
	return &info, nil
}

// GetStorageConfig describes the in-memory store
func (s *MemoryStorage) GetStorageConfig(ctx context.Context) (*models.StorageConfig, error) {
	return &models.StorageConfig{Provider: "memory"}, nil
}

// HealthCheck always succeeds for the in-memory store
func (s *MemoryStorage) HealthCheck(ctx context.Context) (bool, error) {
	return true, nil
}
