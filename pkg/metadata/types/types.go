// Package types defines common metadata types and interfaces
package types

import (
	"time"
)

// BackupStatus represents the current status of a backup
type BackupStatus string

const (
	// StatusPending indicates a backup is in progress
	StatusPending BackupStatus = "pending"
	// StatusSuccess indicates a successful backup
	StatusSuccess BackupStatus = "success"
	// StatusError indicates a failed backup
	StatusError BackupStatus = "error"
	// StatusDeleted indicates a backup that was deleted by retention policy
	StatusDeleted BackupStatus = "deleted"
)

// BackupMeta represents metadata for a single backup
type BackupMeta struct {
	ID               string            `json:"id"`               // Unique identifier
	Target           string            `json:"target"`           // SQLite target name from configuration
	Database         string            `json:"database"`         // Database name within the target
	BackupType       string            `json:"backupType"`       // hourly, daily, manual, etc.
	CreatedAt        time.Time         `json:"createdAt"`        // When backup was created
	Size             int64             `json:"size"`             // Compressed size in bytes
	LocalPaths       map[string]string `json:"localPaths"`       // Paths in local storage by organization (by-server, by-type)
	S3Keys           map[string]string `json:"s3Keys"`           // S3 object keys by organization
	RetentionPolicy  string            `json:"retentionPolicy"`  // Human readable retention
	ExpiresAt        time.Time         `json:"expiresAt"`        // When backup will be deleted
	Status           BackupStatus      `json:"status"`           // pending, success, error, deleted
	ErrorMessage     string            `json:"errorMessage"`     // Error details if any
	S3UploadStatus   BackupStatus      `json:"s3UploadStatus"`   // success, pending, error
	S3UploadError    string            `json:"s3UploadError"`    // S3 upload error if any
	CompletedAt      time.Time         `json:"completedAt"`      // When backup completed
	S3UploadComplete time.Time         `json:"s3UploadComplete"` // When S3 upload completed
}

// AnyLocalPath returns one of the recorded local paths, if any.
func (m *BackupMeta) AnyLocalPath() string {
	for _, p := range m.LocalPaths {
		return p
	}
	return ""
}

// HasLocalPath reports whether path matches one of the recorded local paths.
func (m *BackupMeta) HasLocalPath(path string) bool {
	for _, p := range m.LocalPaths {
		if p == path {
			return true
		}
	}
	return false
}

// HasS3Key reports whether key matches one of the recorded S3 keys.
func (m *BackupMeta) HasS3Key(key string) bool {
	for _, k := range m.S3Keys {
		if k == key {
			return true
		}
	}
	return false
}

// MetadataStore defines the interface for metadata operations
type MetadataStore interface {
	// CreateBackupMeta creates a new backup metadata entry in pending state
	CreateBackupMeta(target, database, backupType string) *BackupMeta

	// UpdateBackupStatus updates the status of a backup
	UpdateBackupStatus(id string, status BackupStatus, localPaths map[string]string, size int64, errorMsg string) error

	// UpdateS3UploadStatus updates the S3 upload status of a backup
	UpdateS3UploadStatus(id string, status BackupStatus, s3Keys map[string]string, errorMsg string) error

	// GetBackups returns all backups
	GetBackups() []BackupMeta

	// GetBackupsFiltered returns backups filtered by target, database and/or
	// type. Empty filter values match everything; activeOnly skips deleted
	// entries.
	GetBackupsFiltered(target, database, backupType string, activeOnly bool) []BackupMeta

	// GetBackupByID returns a specific backup by ID
	GetBackupByID(id string) (BackupMeta, bool)

	// MarkBackupDeleted marks a backup as deleted
	MarkBackupDeleted(id string) error

	// GetStats returns statistics about the backups
	GetStats() map[string]interface{}

	// PurgeDeletedBackups removes backup entries that have been marked as
	// deleted and are older than the specified duration
	PurgeDeletedBackups(olderThan time.Duration) int

	// Load loads the metadata
	Load() error

	// Save persists the metadata
	Save() error
}
