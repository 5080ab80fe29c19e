package metadata

import (
	"time"
)

// BackupRecord represents a database backup record
type BackupRecord struct {
	ID               string    `gorm:"primaryKey;type:varchar(255)"`
	Target           string    `gorm:"type:varchar(255);not null;index"`
	DatabaseName     string    `gorm:"column:database_name;type:varchar(255);not null;index"`
	BackupType       string    `gorm:"type:varchar(50);not null;index"`
	CreatedAt        time.Time `gorm:"not null"`
	CompletedAt      *time.Time
	Size             int64
	Status           string `gorm:"type:varchar(50);not null;index"`
	ErrorMessage     string `gorm:"type:text"`
	RetentionPolicy  string `gorm:"type:varchar(255)"`
	ExpiresAt        *time.Time
	S3UploadStatus   string `gorm:"type:varchar(50)"`
	S3UploadError    string `gorm:"type:text"`
	S3UploadComplete *time.Time

	// Relationships
	Paths []BackupPath `gorm:"foreignKey:BackupID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for the BackupRecord model
func (BackupRecord) TableName() string {
	return "backups"
}

// Storage kinds for BackupPath records.
const (
	PathKindLocal = "local"
	PathKindS3    = "s3"
)

// BackupPath represents a stored copy of a backup, either a local file path
// or an S3 object key, under one of the directory organizations.
type BackupPath struct {
	BackupID     string `gorm:"primaryKey;type:varchar(255)"`
	Kind         string `gorm:"primaryKey;type:varchar(10)"`
	Organization string `gorm:"primaryKey;type:varchar(50)"`
	Path         string `gorm:"type:varchar(1024);not null"`
}

// TableName specifies the table name for the BackupPath model
func (BackupPath) TableName() string {
	return "backup_paths"
}
