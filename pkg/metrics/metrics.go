// Package metrics provides Prometheus metrics for SQLite backup operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics
var (
	// BackupCount tracks the total number of SQLite backups performed
	BackupCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sqlite_backup_total",
		Help: "The total number of SQLite backups performed",
	}, []string{"type", "target", "database", "status"})

	// BackupDuration measures time taken to dump a SQLite database
	BackupDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sqlite_backup_duration_seconds",
		Help:    "Time taken to dump a SQLite database",
		Buckets: prometheus.DefBuckets,
	}, []string{"type", "target", "database"})

	// BackupSize tracks size of the backup file in bytes
	BackupSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sqlite_backup_size_bytes",
		Help: "Size of the backup file in bytes",
	}, []string{"type", "target", "database", "storage"})

	// BackupRetentionDeletes counts backups deleted by retention policy
	BackupRetentionDeletes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sqlite_backup_deletions_total",
		Help: "The total number of backups deleted by retention policy",
	}, []string{"type", "storage"})

	// LastBackupTimestamp records timestamp of the last successful backup
	LastBackupTimestamp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sqlite_backup_last_timestamp",
		Help: "Timestamp of the last successful backup",
	}, []string{"type", "target", "database"})

	// S3UploadCount tracks the total number of S3 uploads performed
	S3UploadCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sqlite_backup_s3_upload_total",
		Help: "The total number of S3 uploads performed",
	}, []string{"type", "target", "database", "status"})

	// S3UploadDuration measures time taken to upload backup to S3
	S3UploadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sqlite_backup_s3_upload_duration_seconds",
		Help:    "Time taken to upload backup to S3",
		Buckets: prometheus.DefBuckets,
	}, []string{"type", "target", "database"})
)
