package metadata

import (
	"sync"
	"time"

	"gorm.io/gorm"
)

// Repository handles database operations for backup metadata
type Repository struct {
	db    *gorm.DB
	mutex sync.RWMutex
}

// NewRepository creates a new metadata repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db: db,
	}
}

// CreateBackup creates a new backup record
func (r *Repository) CreateBackup(backup *BackupRecord) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.db.Create(backup).Error
}

// UpdateBackupStatus updates the status of a backup
func (r *Repository) UpdateBackupStatus(id, status, errorMsg string, size int64, completedAt time.Time) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.db.Model(&BackupRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        status,
		"error_message": errorMsg,
		"size":          size,
		"completed_at":  completedAt,
	}).Error
}

// UpdateBackupPaths replaces the stored paths of the given kind for a backup
func (r *Repository) UpdateBackupPaths(id, kind string, paths map[string]string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("backup_id = ? AND kind = ?", id, kind).Delete(&BackupPath{}).Error; err != nil {
			return err
		}

		for org, path := range paths {
			record := BackupPath{
				BackupID:     id,
				Kind:         kind,
				Organization: org,
				Path:         path,
			}
			if err := tx.Create(&record).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

// UpdateS3UploadStatus updates the S3 upload status of a backup
func (r *Repository) UpdateS3UploadStatus(id, status, errorMsg string, uploadTime time.Time) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.db.Model(&BackupRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
		"s3_upload_status":   status,
		"s3_upload_error":    errorMsg,
		"s3_upload_complete": uploadTime,
	}).Error
}

// GetBackupByID retrieves a backup by ID with its stored paths
func (r *Repository) GetBackupByID(id string) (*BackupRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var backup BackupRecord
	err := r.db.Preload("Paths").Where("id = ?", id).First(&backup).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}

	return &backup, nil
}

// GetAllBackups retrieves all backups with their stored paths
func (r *Repository) GetAllBackups() ([]BackupRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var backups []BackupRecord
	err := r.db.Preload("Paths").Order("created_at DESC").Find(&backups).Error
	if err != nil {
		return nil, err
	}

	return backups, nil
}

// GetBackupsFiltered retrieves backups with filters
func (r *Repository) GetBackupsFiltered(target, database, backupType, status string) ([]BackupRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	query := r.db.Preload("Paths")

	if target != "" {
		query = query.Where("target = ?", target)
	}

	if database != "" {
		query = query.Where("database_name = ?", database)
	}

	if backupType != "" {
		query = query.Where("backup_type = ?", backupType)
	}

	if status != "" {
		query = query.Where("status = ?", status)
	}

	var backups []BackupRecord
	err := query.Order("created_at DESC").Find(&backups).Error
	if err != nil {
		return nil, err
	}

	return backups, nil
}

// MarkBackupDeleted marks a backup as deleted
func (r *Repository) MarkBackupDeleted(id string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.db.Model(&BackupRecord{}).Where("id = ?", id).Update("status", "deleted").Error
}

// PurgeDeletedBackups removes deleted backup records older than the cutoff
func (r *Repository) PurgeDeletedBackups(cutoff time.Time) (int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var purged int
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var stale []BackupRecord
		if err := tx.Where("status = ? AND created_at < ?", "deleted", cutoff).Find(&stale).Error; err != nil {
			return err
		}

		for _, backup := range stale {
			if err := tx.Where("backup_id = ?", backup.ID).Delete(&BackupPath{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&backup).Error; err != nil {
				return err
			}
			purged++
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return purged, nil
}

// ImportBackups bulk inserts backup records, skipping IDs that already exist
func (r *Repository) ImportBackups(backups []BackupRecord) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.db.Transaction(func(tx *gorm.DB) error {
		for i := range backups {
			var count int64
			if err := tx.Model(&BackupRecord{}).Where("id = ?", backups[i].ID).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}
			if err := tx.Create(&backups[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// CountByColumn returns backup counts grouped by the given column
func (r *Repository) CountByColumn(column string) (map[string]int, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	type groupCount struct {
		Value string
		Count int
	}
	var rows []groupCount
	err := r.db.Model(&BackupRecord{}).
		Select(column + " as value, count(*) as count").
		Group(column).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Value] = row.Count
	}
	return counts, nil
}
