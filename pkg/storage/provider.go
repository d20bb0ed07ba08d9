// Package storage defines the storage provider interface, its S3 and
// in-memory implementations, and the resilient wrapper that protects
// provider calls with retries and a circuit breaker.
package storage

import (
	"context"

	"github.com/raafayk7/DocumentManagementSystem-sub001/pkg/models"
)

// Provider is the operation surface of a storage backend. The resilient
// wrapper implements the same interface, so callers cannot tell whether
// resilience is applied.
type Provider interface {
	// Upload stores data under filename and returns the resulting file info
	Upload(ctx context.Context, data []byte, filename string, mimeType string) (*models.FileInfo, error)

	// Download returns the contents of the named file
	Download(ctx context.Context, filename string) ([]byte, error)

	// Delete removes the named file
	Delete(ctx context.Context, filename string) error

	// Exists reports whether the named file is present
	Exists(ctx context.Context, filename string) (bool, error)

	// ListFiles returns info for every stored file
	ListFiles(ctx context.Context) ([]models.FileInfo, error)

	// GetFileInfo returns info for the named file
	GetFileInfo(ctx context.Context, filename string) (*models.FileInfo, error)

	// GetStorageConfig describes the backing store
	GetStorageConfig(ctx context.Context) (*models.StorageConfig, error)

	// HealthCheck reports whether the backend is reachable
	HealthCheck(ctx context.Context) (bool, error)
}
