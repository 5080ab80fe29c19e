// Package local handles local filesystem storage operations for SQLite backups.
package local

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/supporttools/SQLiteGuard/pkg/config"
	"github.com/supporttools/SQLiteGuard/pkg/metadata"
	"github.com/supporttools/SQLiteGuard/pkg/metrics"
)

// Client represents a local filesystem client
type Client struct {
	cfg *config.AppConfig
}

// NewClient creates a new local storage client
func NewClient() (*Client, error) {
	if !config.CFG.Local.Enabled {
		return nil, fmt.Errorf("local storage is not enabled in configuration")
	}

	return &Client{
		cfg: &config.CFG,
	}, nil
}

// EnsureBackupPath ensures the parent directory of path exists
func (c *Client) EnsureBackupPath(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create backup directory %s: %w", filepath.Dir(path), err)
	}
	return nil
}

// RecordBackupMetrics records metrics for a local backup
func (c *Client) RecordBackupMetrics(backupPath, backupType, target, database string) error {
	fileInfo, err := os.Stat(backupPath)
	if err != nil {
		return fmt.Errorf("failed to stat backup file: %w", err)
	}

	sizeBytes := float64(fileInfo.Size())
	metrics.BackupSize.WithLabelValues(backupType, target, database, "local").Set(sizeBytes)

	return nil
}

// EnforceRetention implements retention policy for local backups
func (c *Client) EnforceRetention() error {
	for backupType, typeConfig := range c.cfg.BackupTypes {
		if !typeConfig.Local.Enabled {
			if c.cfg.Debug {
				log.Printf("Local backup not enabled for %s, skipping retention enforcement", backupType)
			}
			continue
		}

		if typeConfig.Local.Retention.Forever {
			if c.cfg.Debug {
				log.Printf("Local backups for %s set to keep forever, skipping retention enforcement", backupType)
			}
			continue
		}

		duration, err := time.ParseDuration(typeConfig.Local.Retention.Duration)
		if err != nil {
			log.Printf("Invalid duration for %s local retention: %v", backupType, err)
			continue
		}

		files, err := c.findBackupFiles(backupType)
		if err != nil {
			log.Printf("Error finding backups: %v", err)
			continue
		}

		for _, file := range files {
			fileInfo, err := os.Stat(file)
			if err != nil {
				continue
			}

			fileAge := time.Since(fileInfo.ModTime())
			if fileAge <= duration {
				continue
			}

			if err := os.Remove(file); err != nil {
				log.Printf("Failed to remove expired backup %s: %v", file, err)
				continue
			}

			// Find the matching metadata entry and mark it deleted.
			backups := metadata.DefaultStore.GetBackupsFiltered("", "", backupType, true)
			for _, backup := range backups {
				if backup.HasLocalPath(file) {
					if err := metadata.DefaultStore.MarkBackupDeleted(backup.ID); err != nil {
						log.Printf("Warning: Failed to mark backup %s as deleted in metadata: %v", backup.ID, err)
					} else {
						log.Printf("Marked backup %s as deleted in metadata", backup.ID)
					}
					break
				}
			}

			log.Printf("Removed expired local backup: %s", file)
			metrics.BackupRetentionDeletes.WithLabelValues(backupType, "local").Inc()
		}
	}

	return nil
}

// findBackupFiles collects backup files of the given type across both the
// by-server and by-type directory organizations.
func (c *Client) findBackupFiles(backupType string) ([]string, error) {
	var files []string

	byType, err := filepath.Glob(filepath.Join(c.cfg.Local.BackupDirectory, "by-type", backupType, "*.sql.gz"))
	if err != nil {
		return nil, err
	}
	files = append(files, byType...)

	byServer, err := filepath.Glob(filepath.Join(c.cfg.Local.BackupDirectory, "by-server", "*", backupType, "*.sql.gz"))
	if err != nil {
		return nil, err
	}
	files = append(files, byServer...)

	return files, nil
}
