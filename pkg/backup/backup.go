// Package backup implements SQLite backup operations.
package backup

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/supporttools/SQLiteGuard/pkg/config"
	"github.com/supporttools/SQLiteGuard/pkg/database"
	"github.com/supporttools/SQLiteGuard/pkg/database/providers/sqlite"
	"github.com/supporttools/SQLiteGuard/pkg/metadata"
	"github.com/supporttools/SQLiteGuard/pkg/metrics"
	"github.com/supporttools/SQLiteGuard/pkg/storage/local"
	"github.com/supporttools/SQLiteGuard/pkg/storage/s3"
)

// Options defines options for a backup run
type Options struct {
	Targets   []string // List of target names to back up, empty means all targets
	Databases []string // List of databases to back up, empty means all databases
}

// Manager handles backup operations
type Manager struct {
	cfg        *config.AppConfig
	localStore *local.Client
	s3Store    *s3.Client
}

// NewManager creates a new backup manager
func NewManager() (*Manager, error) {
	manager := &Manager{
		cfg: &config.CFG,
	}

	if config.CFG.Local.Enabled {
		localClient, err := local.NewClient()
		if err != nil {
			log.Printf("Warning: Failed to initialize local storage: %v", err)
		} else {
			manager.localStore = localClient
		}
	}

	if config.CFG.S3.Enabled {
		s3Client, err := s3.NewClient()
		if err != nil {
			log.Printf("Warning: Failed to initialize S3 storage: %v", err)
		} else {
			manager.s3Store = s3Client
		}
	}

	return manager, nil
}

// constructBackupPaths creates the paths for backup files in both by-server
// and by-type organizations
func constructBackupPaths(targetName, backupType, dbName, timestamp string) (map[string]string, map[string]string) {
	localPaths := make(map[string]string)
	s3Keys := make(map[string]string)

	filename := fmt.Sprintf("%s-%s.sql.gz", dbName, timestamp)
	targetPrefixedFilename := fmt.Sprintf("%s_%s", targetName, filename)

	if config.CFG.Local.Enabled {
		localPaths["by-server"] = filepath.Join(
			config.CFG.Local.BackupDirectory,
			"by-server",
			targetName,
			backupType,
			filename,
		)

		localPaths["by-type"] = filepath.Join(
			config.CFG.Local.BackupDirectory,
			"by-type",
			backupType,
			targetPrefixedFilename,
		)
	}

	if config.CFG.S3.Enabled {
		prefix := config.CFG.S3.Prefix
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix = prefix + "/"
		}

		s3Keys["by-server"] = fmt.Sprintf(
			"%sby-server/%s/%s/%s",
			prefix,
			targetName,
			backupType,
			filename,
		)

		s3Keys["by-type"] = fmt.Sprintf(
			"%sby-type/%s/%s",
			prefix,
			backupType,
			targetPrefixedFilename,
		)
	}

	return localPaths, s3Keys
}

// PerformBackup executes a backup run for the specified type.
// If options.Targets is provided, only those targets are backed up.
// If options.Databases is provided, only those databases are backed up.
func (m *Manager) PerformBackup(backupType string, options ...Options) error {
	var opts Options
	if len(options) > 0 {
		opts = options[0]
	}

	targetFilter := make(map[string]bool)
	if len(opts.Targets) > 0 {
		for _, target := range opts.Targets {
			targetFilter[target] = true
		}
		log.Printf("Filtering backup to specific targets: %v", opts.Targets)
	}

	dbFilter := make(map[string]bool)
	if len(opts.Databases) > 0 {
		for _, db := range opts.Databases {
			dbFilter[db] = true
		}
		log.Printf("Filtering backup to specific databases: %v", opts.Databases)
	}

	typeConfig, exists := m.cfg.BackupTypes[backupType]
	if !exists {
		return fmt.Errorf("no configuration found for backup type: %s", backupType)
	}

	localBackupEnabled := m.cfg.Local.Enabled && typeConfig.Local.Enabled && m.localStore != nil
	s3BackupEnabled := m.cfg.S3.Enabled && typeConfig.S3.Enabled && m.s3Store != nil
	if !localBackupEnabled && !s3BackupEnabled {
		return fmt.Errorf("backup type %s is not enabled for any storage destination", backupType)
	}

	for _, target := range m.cfg.Targets {
		if len(targetFilter) > 0 && !targetFilter[target.Name] {
			continue
		}

		log.Printf("Processing target: %s", target.Name)

		provider := sqlite.NewProvider(target)
		if err := provider.Connect(context.Background()); err != nil {
			log.Printf("Error connecting to target %s: %v", target.Name, err)
			continue
		}

		databases, err := provider.ListDatabases(context.Background())
		if err != nil {
			log.Printf("Error listing databases for target %s: %v", target.Name, err)
			provider.Close()
			continue
		}

		if len(databases) == 0 {
			log.Printf("Warning: No databases to back up for target %s after filtering. Check configuration.",
				target.Name)
			provider.Close()
			continue
		}

		for _, dbName := range databases {
			if len(dbFilter) > 0 && !dbFilter[dbName] {
				continue
			}
			if err := m.backupDatabase(provider, target.Name, dbName, backupType, typeConfig); err != nil {
				log.Printf("Failed to backup database %s on target %s: %v", dbName, target.Name, err)
				continue
			}
		}

		provider.Close()
	}

	return nil
}

// backupDatabase handles the backup process for a single database
func (m *Manager) backupDatabase(provider database.Provider, targetName, dbName, backupType string, typeConfig config.BackupTypeConfig) error {
	startTime := time.Now()
	timestamp := startTime.Format("2006-01-02-15-04-05")

	localPaths, s3Keys := constructBackupPaths(targetName, backupType, dbName, timestamp)

	meta := metadata.DefaultStore.CreateBackupMeta(targetName, dbName, backupType)

	var primaryBackupPath string
	localBackupEnabled := m.cfg.Local.Enabled && typeConfig.Local.Enabled && m.localStore != nil

	if localBackupEnabled {
		primaryBackupPath = localPaths["by-server"]

		if err := m.localStore.EnsureBackupPath(primaryBackupPath); err != nil {
			return m.failBackup(meta.ID, backupType, targetName, dbName, err)
		}
	} else {
		tempDir, err := os.MkdirTemp("", "sqlite-backup")
		if err != nil {
			return m.failBackup(meta.ID, backupType, targetName, dbName,
				fmt.Errorf("failed to create temp directory: %w", err))
		}
		defer os.RemoveAll(tempDir)

		primaryBackupPath = filepath.Join(tempDir, fmt.Sprintf("%s-%s.sql.gz", dbName, timestamp))
	}

	if err := m.writeDump(provider, dbName, primaryBackupPath); err != nil {
		return m.failBackup(meta.ID, backupType, targetName, dbName, err)
	}

	// Mirror the file to the by-type organization.
	if localBackupEnabled {
		if byTypePath, ok := localPaths["by-type"]; ok {
			if err := copyFile(primaryBackupPath, byTypePath); err != nil {
				log.Printf("Warning: Failed to copy backup to by-type path: %v", err)
			}
		}
	}

	duration := time.Since(startTime)
	metrics.BackupDuration.WithLabelValues(backupType, targetName, dbName).Observe(duration.Seconds())

	if localBackupEnabled {
		if err := m.localStore.RecordBackupMetrics(primaryBackupPath, backupType, targetName, dbName); err != nil {
			log.Printf("Warning: Failed to record local backup metrics: %v", err)
		}
	}

	var fileSize int64
	if fileInfo, err := os.Stat(primaryBackupPath); err == nil {
		fileSize = fileInfo.Size()
		log.Printf("Successfully created backup for database %s on target %s (%.2f MB)",
			dbName, targetName, float64(fileSize)/(1024*1024))
	} else {
		log.Printf("Successfully created backup for database %s on target %s (size unknown)",
			dbName, targetName)
	}

	recordedPaths := localPaths
	if !localBackupEnabled {
		recordedPaths = map[string]string{}
	}
	metadata.DefaultStore.UpdateBackupStatus(meta.ID, metadata.StatusSuccess, recordedPaths, fileSize, "")

	metrics.BackupCount.WithLabelValues(backupType, targetName, dbName, "success").Inc()
	metrics.LastBackupTimestamp.WithLabelValues(backupType, targetName, dbName).Set(float64(time.Now().Unix()))

	s3BackupEnabled := m.cfg.S3.Enabled && typeConfig.S3.Enabled && m.s3Store != nil
	if s3BackupEnabled {
		s3UploadSuccessful := true
		uploadErrors := make([]string, 0)

		for organization, s3Key := range s3Keys {
			if err := m.s3Store.UploadBackupWithKey(primaryBackupPath, s3Key, backupType, targetName, dbName); err != nil {
				log.Printf("Failed to upload backup to S3 (%s path): %v", organization, err)
				uploadErrors = append(uploadErrors, fmt.Sprintf("%s path: %v", organization, err))
				s3UploadSuccessful = false
			}
		}

		if s3UploadSuccessful {
			metadata.DefaultStore.UpdateS3UploadStatus(meta.ID, metadata.StatusSuccess, s3Keys, "")
		} else {
			errMsg := fmt.Sprintf("S3 upload failed: %s", strings.Join(uploadErrors, "; "))
			metadata.DefaultStore.UpdateS3UploadStatus(meta.ID, metadata.StatusError, map[string]string{}, errMsg)
		}
	} else if m.cfg.Debug {
		log.Printf("S3 upload not enabled for backup type %s, skipping upload", backupType)
	}

	return nil
}

// writeDump dumps the named database through gzip into path
func (m *Manager) writeDump(provider database.Provider, dbName, path string) error {
	outputFile, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer outputFile.Close()

	gzipWriter := gzip.NewWriter(outputFile)

	backupOpts := database.BackupOptions{
		ForeignKeysOff: m.cfg.DumpOptions.ForeignKeysOff,
		Timestamp:      time.Now(),
	}

	if err := provider.Backup(context.Background(), dbName, gzipWriter, backupOpts); err != nil {
		gzipWriter.Close()
		os.Remove(path)
		return fmt.Errorf("database backup failed: %w", err)
	}

	if err := gzipWriter.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to finalize compressed backup: %w", err)
	}

	return outputFile.Sync()
}

// failBackup records an error outcome in metrics and metadata
func (m *Manager) failBackup(id, backupType, targetName, dbName string, err error) error {
	metrics.BackupCount.WithLabelValues(backupType, targetName, dbName, "error").Inc()
	metadata.DefaultStore.UpdateBackupStatus(id, metadata.StatusError, map[string]string{}, 0, err.Error())
	return err
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	_, err = io.Copy(dstFile, srcFile)
	return err
}

// EnforceRetentionPolicies enforces retention policies across all storage types
func (m *Manager) EnforceRetentionPolicies() {
	log.Println("Enforcing retention policies...")

	purgedCount := metadata.DefaultStore.PurgeDeletedBackups(7 * 24 * time.Hour)
	if purgedCount > 0 {
		log.Printf("Purged %d deleted backup records from metadata", purgedCount)
	}

	if m.cfg.Local.Enabled && m.localStore != nil {
		if err := m.localStore.EnforceRetention(); err != nil {
			log.Printf("Error enforcing local retention policies: %v", err)
		}
	}

	if m.cfg.S3.Enabled && m.s3Store != nil {
		if err := m.s3Store.EnforceRetention(); err != nil {
			log.Printf("Error enforcing S3 retention policies: %v", err)
		}
	}
}
