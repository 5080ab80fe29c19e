// Package s3 handles S3 storage operations for SQLite backups.
package s3

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/supporttools/SQLiteGuard/pkg/config"
	"github.com/supporttools/SQLiteGuard/pkg/metadata"
	"github.com/supporttools/SQLiteGuard/pkg/metrics"
)

// Client represents an S3 client
type Client struct {
	s3Client *s3.Client
	cfg      *config.AppConfig
}

// NewClient creates a new S3 client
func NewClient() (*Client, error) {
	if !config.CFG.S3.Enabled {
		return nil, fmt.Errorf("S3 storage is not enabled in configuration")
	}

	s3Client, err := getS3Client()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize S3 client: %w", err)
	}

	return &Client{
		s3Client: s3Client,
		cfg:      &config.CFG,
	}, nil
}

// getS3Client initializes and returns an S3 client based on configuration
func getS3Client() (*s3.Client, error) {
	ctx := context.Background()

	httpClient := &http.Client{}

	if config.CFG.S3.UseSSL {
		tlsConfig := &tls.Config{}

		if config.CFG.S3.CustomCAPath != "" && !config.CFG.S3.SkipCertValidation {
			rootCAs, _ := x509.SystemCertPool()
			if rootCAs == nil {
				rootCAs = x509.NewCertPool()
			}

			caCert, err := os.ReadFile(config.CFG.S3.CustomCAPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read custom CA certificate: %w", err)
			}

			if ok := rootCAs.AppendCertsFromPEM(caCert); !ok {
				return nil, fmt.Errorf("failed to append custom CA certificate")
			}

			tlsConfig.RootCAs = rootCAs
			log.Printf("Using custom CA certificate from %s", config.CFG.S3.CustomCAPath)
		}

		if config.CFG.S3.SkipCertValidation {
			tlsConfig.InsecureSkipVerify = true
			log.Printf("Warning: TLS certificate validation is disabled for S3 connections")
		}

		httpClient.Transport = &http.Transport{
			TLSClientConfig: tlsConfig,
		}
	}

	sdkOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			config.CFG.S3.AccessKey, config.CFG.S3.SecretKey, "",
		)),
		awsconfig.WithHTTPClient(httpClient),
	}

	if config.CFG.S3.Endpoint == "" {
		sdkOptions = append(sdkOptions, awsconfig.WithRegion(config.CFG.S3.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, sdkOptions...)
	if err != nil {
		return nil, fmt.Errorf("AWS SDK config initialization error: %w", err)
	}

	s3Options := []func(*s3.Options){
		func(o *s3.Options) {
			o.UsePathStyle = config.CFG.S3.PathStyle
		},
	}

	if config.CFG.S3.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.CFG.S3.Endpoint)
		})
	}

	return s3.NewFromConfig(awsCfg, s3Options...), nil
}

// UploadBackupWithKey uploads a backup file to S3 with the provided full object key
func (c *Client) UploadBackupWithKey(backupPath, objectKey, backupType, target, database string) error {
	startTime := time.Now()

	if config.CFG.Debug {
		log.Printf("S3 Debug: Starting upload of file %s to key %s", backupPath, objectKey)
	}

	file, err := os.Open(backupPath)
	if err != nil {
		metrics.S3UploadCount.WithLabelValues(backupType, target, database, "error").Inc()
		return fmt.Errorf("failed to open backup file for S3 upload: %w", err)
	}
	defer file.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	_, err = c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.cfg.S3.Bucket),
		Key:    aws.String(objectKey),
		Body:   file,
	})
	if err != nil {
		metrics.S3UploadCount.WithLabelValues(backupType, target, database, "error").Inc()
		log.Printf("S3 upload error for key %s: %v", objectKey, err)
		return fmt.Errorf("failed to upload backup to S3: %w", err)
	}

	duration := time.Since(startTime)
	metrics.S3UploadDuration.WithLabelValues(backupType, target, database).Observe(duration.Seconds())
	metrics.S3UploadCount.WithLabelValues(backupType, target, database, "success").Inc()

	if fileInfo, err := os.Stat(backupPath); err == nil {
		metrics.BackupSize.WithLabelValues(backupType, target, database, "s3").Set(float64(fileInfo.Size()))
	}

	log.Printf("Successfully uploaded backup to S3: s3://%s/%s", c.cfg.S3.Bucket, objectKey)
	return nil
}

// EnforceRetention implements retention policy for S3 backups
func (c *Client) EnforceRetention() error {
	for backupType, typeConfig := range c.cfg.BackupTypes {
		if !typeConfig.S3.Enabled {
			if c.cfg.Debug {
				log.Printf("S3 backup not enabled for %s, skipping retention enforcement", backupType)
			}
			continue
		}

		if typeConfig.S3.Retention.Forever {
			if c.cfg.Debug {
				log.Printf("S3 backups for %s set to keep forever, skipping retention enforcement", backupType)
			}
			continue
		}

		duration, err := time.ParseDuration(typeConfig.S3.Retention.Duration)
		if err != nil {
			log.Printf("Invalid duration for %s S3 retention: %v", backupType, err)
			continue
		}

		prefix := buildPrefix(c.cfg.S3.Prefix, backupType)

		ctx := context.Background()
		paginator := s3.NewListObjectsV2Paginator(c.s3Client, &s3.ListObjectsV2Input{
			Bucket: aws.String(c.cfg.S3.Bucket),
			Prefix: aws.String(prefix),
		})

		expirationTime := time.Now().Add(-duration)

		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				log.Printf("Failed to list S3 objects: %v", err)
				break
			}

			for _, obj := range page.Contents {
				if !obj.LastModified.Before(expirationTime) {
					continue
				}

				_, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
					Bucket: aws.String(c.cfg.S3.Bucket),
					Key:    obj.Key,
				})
				if err != nil {
					log.Printf("Failed to delete expired S3 backup %s: %v", *obj.Key, err)
					continue
				}

				backups := metadata.DefaultStore.GetBackupsFiltered("", "", backupType, true)
				for _, backup := range backups {
					if backup.HasS3Key(*obj.Key) {
						if err := metadata.DefaultStore.MarkBackupDeleted(backup.ID); err != nil {
							log.Printf("Warning: Failed to mark backup %s as deleted in metadata: %v", backup.ID, err)
						} else {
							log.Printf("Marked backup %s as deleted in metadata", backup.ID)
						}
						break
					}
				}

				log.Printf("Removed expired S3 backup: %s", *obj.Key)
				metrics.BackupRetentionDeletes.WithLabelValues(backupType, "s3").Inc()
			}
		}
	}
	return nil
}

// buildPrefix builds the listing prefix for a backup type's by-type tree
func buildPrefix(prefix, backupType string) string {
	if prefix != "" {
		return fmt.Sprintf("%s/by-type/%s/", strings.TrimSuffix(prefix, "/"), backupType)
	}
	return fmt.Sprintf("by-type/%s/", backupType)
}
