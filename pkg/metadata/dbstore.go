package metadata

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/supporttools/SQLiteGuard/pkg/config"
	dbmeta "github.com/supporttools/SQLiteGuard/pkg/database/metadata"
	"github.com/supporttools/SQLiteGuard/pkg/metadata/types"
)

// DBStore is a MySQL-backed implementation of the metadata store interface
type DBStore struct {
	repo *dbmeta.Repository
}

// NewDBStore creates a new database-backed metadata store
func NewDBStore(repo *dbmeta.Repository) *DBStore {
	return &DBStore{repo: repo}
}

// InitializeDatabaseStore connects to the metadata database and installs the
// database-backed store as the default store.
func InitializeDatabaseStore() error {
	if err := dbmeta.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize metadata database: %w", err)
	}

	DefaultStore = NewDBStore(dbmeta.NewRepository(dbmeta.DB))
	log.Println("Using database-backed metadata store")
	return nil
}

// CreateBackupMeta creates a new backup metadata entry in pending state
func (s *DBStore) CreateBackupMeta(target, database, backupType string) *types.BackupMeta {
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

	if typeConfig, ok := config.CFG.BackupTypes[backupType]; ok {
		if typeConfig.Local.Retention.Forever {
			meta.RetentionPolicy = "forever"
		} else if d, err := time.ParseDuration(typeConfig.Local.Retention.Duration); err == nil {
			meta.RetentionPolicy = typeConfig.Local.Retention.Duration
			meta.ExpiresAt = meta.CreatedAt.Add(d)
		}
	}

	if err := s.repo.CreateBackup(toRecord(&meta)); err != nil {
		log.Printf("Error creating backup record in database: %v", err)
	}

	return &meta
}

// UpdateBackupStatus updates the status of a backup
func (s *DBStore) UpdateBackupStatus(id string, status types.BackupStatus, localPaths map[string]string, size int64, errorMsg string) error {
	if err := s.repo.UpdateBackupStatus(id, string(status), errorMsg, size, time.Now()); err != nil {
		return err
	}
	if localPaths != nil {
		return s.repo.UpdateBackupPaths(id, dbmeta.PathKindLocal, localPaths)
	}
	return nil
}

// UpdateS3UploadStatus updates the S3 upload status of a backup
func (s *DBStore) UpdateS3UploadStatus(id string, status types.BackupStatus, s3Keys map[string]string, errorMsg string) error {
	if err := s.repo.UpdateS3UploadStatus(id, string(status), errorMsg, time.Now()); err != nil {
		return err
	}
	if s3Keys != nil {
		return s.repo.UpdateBackupPaths(id, dbmeta.PathKindS3, s3Keys)
	}
	return nil
}

// GetBackups returns all backups
func (s *DBStore) GetBackups() []types.BackupMeta {
	records, err := s.repo.GetAllBackups()
	if err != nil {
		log.Printf("Error fetching backups from database: %v", err)
		return nil
	}

	backups := make([]types.BackupMeta, 0, len(records))
	for i := range records {
		backups = append(backups, fromRecord(&records[i]))
	}
	return backups
}

// GetBackupsFiltered returns backups filtered by target, database and/or type
func (s *DBStore) GetBackupsFiltered(target, database, backupType string, activeOnly bool) []types.BackupMeta {
	records, err := s.repo.GetBackupsFiltered(target, database, backupType, "")
	if err != nil {
		log.Printf("Error fetching filtered backups from database: %v", err)
		return nil
	}

	var backups []types.BackupMeta
	for i := range records {
		meta := fromRecord(&records[i])
		if activeOnly && meta.Status == types.StatusDeleted {
			continue
		}
		backups = append(backups, meta)
	}
	return backups
}

// GetBackupByID returns a specific backup by ID
func (s *DBStore) GetBackupByID(id string) (types.BackupMeta, bool) {
	record, err := s.repo.GetBackupByID(id)
	if err != nil {
		log.Printf("Error fetching backup %s from database: %v", id, err)
		return types.BackupMeta{}, false
	}
	if record == nil {
		return types.BackupMeta{}, false
	}
	return fromRecord(record), true
}

// MarkBackupDeleted marks a backup as deleted
func (s *DBStore) MarkBackupDeleted(id string) error {
	return s.repo.MarkBackupDeleted(id)
}

// GetStats returns statistics about the backups
func (s *DBStore) GetStats() map[string]interface{} {
	backups := s.GetBackups()

	var totalSize int64
	counts := map[types.BackupStatus]int{}
	byTarget := map[string]int{}
	for _, b := range backups {
		counts[b.Status]++
		if b.Status == types.StatusSuccess {
			totalSize += b.Size
		}
		if b.Status != types.StatusDeleted {
			byTarget[b.Target]++
		}
	}

	return map[string]interface{}{
		"totalBackups":     len(backups),
		"successCount":     counts[types.StatusSuccess],
		"errorCount":       counts[types.StatusError],
		"pendingCount":     counts[types.StatusPending],
		"deletedCount":     counts[types.StatusDeleted],
		"totalSizeBytes":   totalSize,
		"backupsPerTarget": byTarget,
		"lastUpdated":      time.Now(),
	}
}

// PurgeDeletedBackups removes deleted entries older than the given duration
func (s *DBStore) PurgeDeletedBackups(olderThan time.Duration) int {
	purged, err := s.repo.PurgeDeletedBackups(time.Now().Add(-olderThan))
	if err != nil {
		log.Printf("Error purging deleted backups from database: %v", err)
		return 0
	}
	return purged
}

// Load is a no-op for the database store; records live in MySQL.
func (s *DBStore) Load() error {
	return nil
}

// Save is a no-op for the database store; writes are immediate.
func (s *DBStore) Save() error {
	return nil
}

// ImportFromFileStore copies records from a file-based store into the
// database, skipping any IDs already present.
func (s *DBStore) ImportFromFileStore(fileStore types.MetadataStore) error {
	backups := fileStore.GetBackups()
	if len(backups) == 0 {
		return nil
	}

	log.Printf("Importing %d backup records from file-based store", len(backups))
	records := make([]dbmeta.BackupRecord, 0, len(backups))
	for i := range backups {
		records = append(records, *toRecord(&backups[i]))
	}
	return s.repo.ImportBackups(records)
}

func toRecord(meta *types.BackupMeta) *dbmeta.BackupRecord {
	record := dbmeta.BackupRecord{
		ID:              meta.ID,
		Target:          meta.Target,
		DatabaseName:    meta.Database,
		BackupType:      meta.BackupType,
		CreatedAt:       meta.CreatedAt,
		Size:            meta.Size,
		Status:          string(meta.Status),
		ErrorMessage:    meta.ErrorMessage,
		RetentionPolicy: meta.RetentionPolicy,
		S3UploadStatus:  string(meta.S3UploadStatus),
		S3UploadError:   meta.S3UploadError,
	}

	if !meta.CompletedAt.IsZero() {
		completedAt := meta.CompletedAt
		record.CompletedAt = &completedAt
	}
	if !meta.ExpiresAt.IsZero() {
		expiresAt := meta.ExpiresAt
		record.ExpiresAt = &expiresAt
	}
	if !meta.S3UploadComplete.IsZero() {
		uploadComplete := meta.S3UploadComplete
		record.S3UploadComplete = &uploadComplete
	}

	for org, path := range meta.LocalPaths {
		record.Paths = append(record.Paths, dbmeta.BackupPath{
			BackupID:     meta.ID,
			Kind:         dbmeta.PathKindLocal,
			Organization: org,
			Path:         path,
		})
	}
	for org, key := range meta.S3Keys {
		record.Paths = append(record.Paths, dbmeta.BackupPath{
			BackupID:     meta.ID,
			Kind:         dbmeta.PathKindS3,
			Organization: org,
			Path:         key,
		})
	}

	return &record
}

func fromRecord(record *dbmeta.BackupRecord) types.BackupMeta {
	meta := types.BackupMeta{
		ID:              record.ID,
		Target:          record.Target,
		Database:        record.DatabaseName,
		BackupType:      record.BackupType,
		CreatedAt:       record.CreatedAt,
		Size:            record.Size,
		Status:          types.BackupStatus(record.Status),
		ErrorMessage:    record.ErrorMessage,
		RetentionPolicy: record.RetentionPolicy,
		S3UploadStatus:  types.BackupStatus(record.S3UploadStatus),
		S3UploadError:   record.S3UploadError,
		LocalPaths:      make(map[string]string),
		S3Keys:          make(map[string]string),
	}

	if record.CompletedAt != nil {
		meta.CompletedAt = *record.CompletedAt
	}
	if record.ExpiresAt != nil {
		meta.ExpiresAt = *record.ExpiresAt
	}
	if record.S3UploadComplete != nil {
		meta.S3UploadComplete = *record.S3UploadComplete
	}

	for _, p := range record.Paths {
		switch p.Kind {
		case dbmeta.PathKindLocal:
			meta.LocalPaths[p.Organization] = p.Path
		case dbmeta.PathKindS3:
			meta.S3Keys[p.Organization] = p.Path
		}
	}

	return meta
}
