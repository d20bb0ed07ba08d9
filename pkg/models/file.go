// Package models defines the shared data types for the storage subsystem.
package models

import "time"

// FileInfo describes a stored file as reported by a storage provider
type FileInfo struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	MimeType     string    `json:"mime_type,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// StorageConfig describes the backing store a provider talks to.
// It is informational only; providers own their connection details.
type StorageConfig struct {
	Provider string `json:"provider"`
	Bucket   string `json:"bucket,omitempty"`
	Region   string `json:"region,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
	BasePath string `json:"base_path,omitempty"`
}
