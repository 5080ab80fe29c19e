// Package metadata manages tracking and persistence of backup metadata.
package metadata

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/supporttools/SQLiteGuard/pkg/config"
	"github.com/supporttools/SQLiteGuard/pkg/metadata/types"
)

// Re-export types for convenience
type (
	// BackupMeta represents metadata for a single backup
	BackupMeta = types.BackupMeta
	// BackupStatus represents the status of a backup
	BackupStatus = types.BackupStatus
)

const (
	// StatusPending indicates a backup is in progress
	StatusPending = types.StatusPending
	// StatusSuccess indicates a successful backup
	StatusSuccess = types.StatusSuccess
	// StatusError indicates a failed backup
	StatusError = types.StatusError
	// StatusDeleted indicates a backup that was deleted by retention policy
	StatusDeleted = types.StatusDeleted
)

// MetadataFile is the on-disk shape of the file-based store
type MetadataFile struct {
	Backups     []types.BackupMeta `json:"backups"`
	LastUpdated time.Time          `json:"lastUpdated"`
	Version     string             `json:"version"`
}

// Store is a file-backed metadata store
type Store struct {
	metadata MetadataFile
	mutex    sync.RWMutex
	filepath string
}

// DefaultStore is the global metadata store instance
var DefaultStore types.MetadataStore

// Initialize creates and initializes the metadata store. The MySQL-backed
// store is used when the metadata database is enabled, the file-based store
// otherwise.
func Initialize() error {
	if DefaultStore != nil {
		return nil // Already initialized
	}

	if config.CFG.MetadataDB.Enabled {
		return InitializeDatabaseStore()
	}

	store := &Store{
		metadata: MetadataFile{
			Backups:     make([]types.BackupMeta, 0),
			LastUpdated: time.Now(),
			Version:     "1.0",
		},
	}

	if config.CFG.Local.Enabled {
		store.filepath = filepath.Join(config.CFG.Local.BackupDirectory, "metadata.json")
	} else {
		tmpDir, err := os.MkdirTemp("", "sqliteguard-metadata")
		if err != nil {
			return fmt.Errorf("failed to create temp directory for metadata: %w", err)
		}
		store.filepath = filepath.Join(tmpDir, "metadata.json")
	}

	DefaultStore = store

	if err := DefaultStore.Load(); err != nil {
		log.Printf("Warning: Could not load existing metadata, starting fresh: %v", err)
	}
	if err := DefaultStore.Save(); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	return nil
}

// NewFileStore creates a file-backed store at an explicit path. Used by the
// recovery tool; the service goes through Initialize.
func NewFileStore(path string) *Store {
	return &Store{
		filepath: path,
		metadata: MetadataFile{
			Backups:     make([]types.BackupMeta, 0),
			LastUpdated: time.Now(),
			Version:     "1.0",
		},
	}
}

// CreateBackupMeta creates a new backup metadata entry in pending state
func (s *Store) CreateBackupMeta(target, database, backupType string) *types.BackupMeta {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	meta := types.BackupMeta{
		ID:             uuid.New().String(),
		Target:         target,
		Database:       database,
		BackupType:     backupType,
		CreatedAt:      time.Now(),
		Status:         types.StatusPending,
		S3UploadStatus: types.StatusPending,
		LocalPaths:     make(map[string]string),
		S3Keys:         make(map[string]string),
	}

	// Derive expiry from the backup type's retention policy.
	if typeConfig, ok := config.CFG.BackupTypes[backupType]; ok {
		if typeConfig.Local.Retention.Forever {
			meta.RetentionPolicy = "forever"
		} else if d, err := time.ParseDuration(typeConfig.Local.Retention.Duration); err == nil {
			meta.RetentionPolicy = typeConfig.Local.Retention.Duration
			meta.ExpiresAt = meta.CreatedAt.Add(d)
		}
	}

	s.metadata.Backups = append(s.metadata.Backups, meta)
	s.metadata.LastUpdated = time.Now()

	return &meta
}

// UpdateBackupStatus updates the status of a backup
func (s *Store) UpdateBackupStatus(id string, status types.BackupStatus, localPaths map[string]string, size int64, errorMsg string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i := range s.metadata.Backups {
		if s.metadata.Backups[i].ID != id {
			continue
		}
		s.metadata.Backups[i].Status = status
		s.metadata.Backups[i].Size = size
		s.metadata.Backups[i].ErrorMessage = errorMsg
		s.metadata.Backups[i].CompletedAt = time.Now()
		if localPaths != nil {
			s.metadata.Backups[i].LocalPaths = localPaths
		}
		s.metadata.LastUpdated = time.Now()
		return nil
	}
	return fmt.Errorf("backup not found: %s", id)
}

// UpdateS3UploadStatus updates the S3 upload status of a backup
func (s *Store) UpdateS3UploadStatus(id string, status types.BackupStatus, s3Keys map[string]string, errorMsg string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i := range s.metadata.Backups {
		if s.metadata.Backups[i].ID != id {
			continue
		}
		s.metadata.Backups[i].S3UploadStatus = status
		s.metadata.Backups[i].S3UploadError = errorMsg
		s.metadata.Backups[i].S3UploadComplete = time.Now()
		if s3Keys != nil {
			s.metadata.Backups[i].S3Keys = s3Keys
		}
		s.metadata.LastUpdated = time.Now()
		return nil
	}
	return fmt.Errorf("backup not found: %s", id)
}

// GetBackups returns all backups
func (s *Store) GetBackups() []types.BackupMeta {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	backups := make([]types.BackupMeta, len(s.metadata.Backups))
	copy(backups, s.metadata.Backups)
	return backups
}

// GetBackupsFiltered returns backups filtered by target, database and/or type
func (s *Store) GetBackupsFiltered(target, database, backupType string, activeOnly bool) []types.BackupMeta {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var result []types.BackupMeta
	for _, b := range s.metadata.Backups {
		if target != "" && b.Target != target {
			continue
		}
		if database != "" && b.Database != database {
			continue
		}
		if backupType != "" && b.BackupType != backupType {
			continue
		}
		if activeOnly && b.Status == types.StatusDeleted {
			continue
		}
		result = append(result, b)
	}
	return result
}

// GetBackupByID returns a specific backup by ID
func (s *Store) GetBackupByID(id string) (types.BackupMeta, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, b := range s.metadata.Backups {
		if b.ID == id {
			return b, true
		}
	}
	return types.BackupMeta{}, false
}

// MarkBackupDeleted marks a backup as deleted
func (s *Store) MarkBackupDeleted(id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i := range s.metadata.Backups {
		if s.metadata.Backups[i].ID == id {
			s.metadata.Backups[i].Status = types.StatusDeleted
			s.metadata.LastUpdated = time.Now()
			return nil
		}
	}
	return fmt.Errorf("backup not found: %s", id)
}

// GetStats returns statistics about the backups
func (s *Store) GetStats() map[string]interface{} {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var totalSize int64
	counts := map[types.BackupStatus]int{}
	byTarget := map[string]int{}
	for _, b := range s.metadata.Backups {
		counts[b.Status]++
		if b.Status == types.StatusSuccess {
			totalSize += b.Size
		}
		if b.Status != types.StatusDeleted {
			byTarget[b.Target]++
		}
	}

	return map[string]interface{}{
		"totalBackups":     len(s.metadata.Backups),
		"successCount":     counts[types.StatusSuccess],
		"errorCount":       counts[types.StatusError],
		"pendingCount":     counts[types.StatusPending],
		"deletedCount":     counts[types.StatusDeleted],
		"totalSizeBytes":   totalSize,
		"backupsPerTarget": byTarget,
		"lastUpdated":      s.metadata.LastUpdated,
	}
}

// PurgeDeletedBackups removes deleted entries older than the given duration
func (s *Store) PurgeDeletedBackups(olderThan time.Duration) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cutoff := time.Now().Add(-olderThan)
	kept := s.metadata.Backups[:0]
	purged := 0
	for _, b := range s.metadata.Backups {
		if b.Status == types.StatusDeleted && b.CompletedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, b)
	}
	s.metadata.Backups = kept
	if purged > 0 {
		s.metadata.LastUpdated = time.Now()
	}
	return purged
}

// Load loads metadata from disk
func (s *Store) Load() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	data, err := os.ReadFile(s.filepath)
	if err != nil {
		return err
	}

	var loaded MetadataFile
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("failed to parse metadata file: %w", err)
	}

	sort.Slice(loaded.Backups, func(i, j int) bool {
		return loaded.Backups[i].CreatedAt.Before(loaded.Backups[j].CreatedAt)
	})
	s.metadata = loaded
	return nil
}

// Save persists metadata to disk. The file is written to a temporary
// neighbor first so a crash mid-write cannot destroy the old metadata.
func (s *Store) Save() error {
	s.mutex.RLock()
	data, err := json.MarshalIndent(s.metadata, "", "  ")
	s.mutex.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.filepath), 0755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}

	tmp := s.filepath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return os.Rename(tmp, s.filepath)
}
