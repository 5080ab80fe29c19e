// metadata-recovery reconstructs SQLiteGuard metadata from existing backup
// files when the metadata file is lost or corrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"

	"github.com/supporttools/SQLiteGuard/pkg/config"
	"github.com/supporttools/SQLiteGuard/pkg/metadata"
	"github.com/supporttools/SQLiteGuard/pkg/metadata/types"
)

var (
	dryRun       = flag.Bool("dry-run", false, "Perform a dry run without writing metadata")
	verbose      = flag.Bool("verbose", false, "Enable verbose logging")
	scanLocal    = flag.Bool("local", true, "Scan local storage for backups")
	scanS3       = flag.Bool("s3", true, "Scan S3 storage for backups")
	forceRebuild = flag.Bool("force", false, "Force rebuild even if metadata exists")

	// Filenames under by-server: {database}-{timestamp}.sql.gz
	backupFilePattern = regexp.MustCompile(`^(.+)-(\d{4}-\d{2}-\d{2}-\d{2}-\d{2}-\d{2})\.sql\.gz$`)
)

// recoveredBackup represents one copy of a backup found during recovery
type recoveredBackup struct {
	Target       string
	Database     string
	BackupType   string
	Timestamp    string
	Organization string
	Size         int64
	ModTime      time.Time
	LocalPath    string
	S3Key        string
}

func main() {
	flag.Parse()

	config.LoadConfiguration()

	if err := metadata.Initialize(); err != nil {
		log.Fatalf("Failed to initialize metadata: %v", err)
	}

	existing := metadata.DefaultStore.GetBackups()
	if len(existing) > 0 && !*forceRebuild {
		log.Printf("Found existing metadata with %d backups. Use -force to rebuild.", len(existing))
		os.Exit(0)
	}

	log.Println("Starting metadata recovery process...")

	var recovered []recoveredBackup

	if *scanLocal && config.CFG.Local.Enabled {
		localBackups := scanLocalStorage()
		recovered = append(recovered, localBackups...)
		log.Printf("Found %d backup copies in local storage", len(localBackups))
	}

	if *scanS3 && config.CFG.S3.Enabled {
		s3Backups := scanS3Storage()
		recovered = append(recovered, s3Backups...)
		log.Printf("Found %d backup copies in S3 storage", len(s3Backups))
	}

	processRecoveredBackups(recovered)

	stats := metadata.DefaultStore.GetStats()
	log.Println("Recovery summary:")
	log.Printf("- Total backups recovered: %d", stats["totalBackups"])
	log.Printf("- Total size: %s", humanize.Bytes(uint64(stats["totalSizeBytes"].(int64))))

	if *dryRun {
		log.Println("Dry run completed - no changes were saved")
		return
	}

	if err := metadata.DefaultStore.Save(); err != nil {
		log.Fatalf("Failed to save metadata: %v", err)
	}
	log.Println("Metadata saved successfully!")
}

// scanLocalStorage scans the by-server tree for backup files. The by-type
// tree holds copies of the same files, so scanning one organization is
// enough to find every backup.
func scanLocalStorage() []recoveredBackup {
	var backups []recoveredBackup
	root := filepath.Join(config.CFG.Local.BackupDirectory, "by-server")

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if *verbose {
				log.Printf("Error accessing path %s: %v", path, err)
			}
			return nil
		}

		if info.IsDir() || !strings.HasSuffix(info.Name(), ".sql.gz") {
			return nil
		}

		backup, ok := parseBackupPath(root, path)
		if !ok {
			if *verbose {
				log.Printf("Skipping file with non-standard name: %s", path)
			}
			return nil
		}

		backup.Size = info.Size()
		backup.ModTime = info.ModTime()
		backup.LocalPath = path
		backups = append(backups, backup)
		return nil
	})
	if err != nil {
		log.Printf("Error walking backup directory: %v", err)
	}

	return backups
}

// scanS3Storage scans the S3 by-server prefix for backup objects
func scanS3Storage() []recoveredBackup {
	var backups []recoveredBackup

	ctx := context.Background()

	sdkOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			config.CFG.S3.AccessKey, config.CFG.S3.SecretKey, "",
		)),
	}
	if config.CFG.S3.Endpoint == "" {
		sdkOptions = append(sdkOptions, awsconfig.WithRegion(config.CFG.S3.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, sdkOptions...)
	if err != nil {
		log.Printf("Failed to initialize AWS SDK config: %v", err)
		return backups
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = config.CFG.S3.PathStyle
		if config.CFG.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.CFG.S3.Endpoint)
		}
	})

	prefix := "by-server/"
	if config.CFG.S3.Prefix != "" {
		prefix = strings.TrimSuffix(config.CFG.S3.Prefix, "/") + "/by-server/"
	}

	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(config.CFG.S3.Bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			log.Printf("Error listing S3 objects: %v", err)
			break
		}

		for _, obj := range page.Contents {
			key := *obj.Key
			if !strings.HasSuffix(key, ".sql.gz") {
				continue
			}

			backup, ok := parseBackupPath(strings.TrimSuffix(prefix, "/"), key)
			if !ok {
				if *verbose {
					log.Printf("Skipping S3 object with non-standard name: %s", key)
				}
				continue
			}

			backup.Size = *obj.Size
			backup.ModTime = *obj.LastModified
			backup.S3Key = key
			backups = append(backups, backup)
		}
	}

	return backups
}

// parseBackupPath extracts target, backup type, database and timestamp from a
// path of the form {root}/{target}/{type}/{database}-{timestamp}.sql.gz
func parseBackupPath(root, path string) (recoveredBackup, bool) {
	rel := strings.TrimPrefix(strings.TrimPrefix(path, root), string(filepath.Separator))
	rel = strings.TrimPrefix(rel, "/")
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 3 {
		return recoveredBackup{}, false
	}

	matches := backupFilePattern.FindStringSubmatch(parts[2])
	if matches == nil {
		return recoveredBackup{}, false
	}

	return recoveredBackup{
		Target:     parts[0],
		BackupType: parts[1],
		Database:   matches[1],
		Timestamp:  matches[2],
	}, true
}

// processRecoveredBackups merges local and S3 copies of the same backup into
// single metadata entries
func processRecoveredBackups(backups []recoveredBackup) {
	type entry struct {
		meta       *types.BackupMeta
		localPaths map[string]string
		s3Keys     map[string]string
		size       int64
	}
	entries := make(map[string]*entry)
	var order []string

	for _, backup := range backups {
		id := fmt.Sprintf("%s-%s-%s-%s", backup.Target, backup.Database, backup.BackupType, backup.Timestamp)

		e, ok := entries[id]
		if !ok {
			meta := metadata.DefaultStore.CreateBackupMeta(backup.Target, backup.Database, backup.BackupType)
			e = &entry{
				meta:       meta,
				localPaths: make(map[string]string),
				s3Keys:     make(map[string]string),
			}
			entries[id] = e
			order = append(order, id)
		}

		if backup.LocalPath != "" {
			e.localPaths["by-server"] = backup.LocalPath
			e.size = backup.Size
		}
		if backup.S3Key != "" {
			e.s3Keys["by-server"] = backup.S3Key
			if e.size == 0 {
				e.size = backup.Size
			}
		}
	}

	for _, id := range order {
		e := entries[id]
		if err := metadata.DefaultStore.UpdateBackupStatus(e.meta.ID, types.StatusSuccess, e.localPaths, e.size, ""); err != nil {
			log.Printf("Failed to record recovered backup %s: %v", id, err)
			continue
		}
		if len(e.s3Keys) > 0 {
			if err := metadata.DefaultStore.UpdateS3UploadStatus(e.meta.ID, types.StatusSuccess, e.s3Keys, ""); err != nil {
				log.Printf("Failed to record S3 keys for backup %s: %v", id, err)
			}
		}
		if *verbose {
			log.Printf("Recovered backup: %s", id)
		}
	}

	log.Printf("Recovered %d distinct backups", len(order))
}
