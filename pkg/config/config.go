// Package config provides configuration loading and management for SQLiteGuard
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// SQLiteTargetConfig defines one set of SQLite database files to protect.
// Path is either a single database file or a directory scanned for files
// matching Pattern.
type SQLiteTargetConfig struct {
	Name             string   `yaml:"name"`
	Path             string   `yaml:"path"`
	Pattern          string   `yaml:"pattern,omitempty"` // glob within a directory path, default *.db
	IncludeDatabases []string `yaml:"includeDatabases"`
	ExcludeDatabases []string `yaml:"excludeDatabases"`
}

// DumpOptionsConfig controls the emitted dump text
type DumpOptionsConfig struct {
	ForeignKeysOff bool `yaml:"foreignKeysOff"`
}

// LocalConfig defines local backup settings
type LocalConfig struct {
	Enabled              bool   `yaml:"enabled"`
	BackupDirectory      string `yaml:"backupDirectory"`
	OrganizationStrategy string `yaml:"organizationStrategy"` // server-only, type-only, combined
}

// S3Config defines S3 storage settings
type S3Config struct {
	Enabled              bool   `yaml:"enabled"`
	Bucket               string `yaml:"bucket"`
	Region               string `yaml:"region"`
	Endpoint             string `yaml:"endpoint"`
	AccessKey            string `yaml:"accessKey"`
	SecretKey            string `yaml:"secretKey"`
	Prefix               string `yaml:"prefix"`
	PathStyle            bool   `yaml:"pathStyle"`
	UseSSL               bool   `yaml:"useSSL"`
	CustomCAPath         string `yaml:"customCAPath"`
	SkipCertValidation   bool   `yaml:"skipCertValidation"`
	OrganizationStrategy string `yaml:"organizationStrategy"`
}

// MetadataDBConfig defines MySQL connection settings for the metadata database
type MetadataDBConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	Database        string `yaml:"database"`
	MaxOpenConns    int    `yaml:"maxOpenConns"`
	MaxIdleConns    int    `yaml:"maxIdleConns"`
	ConnMaxLifetime string `yaml:"connMaxLifetime"`
	AutoMigrate     bool   `yaml:"autoMigrate"`
}

// MetricsConfig defines metrics server settings
type MetricsConfig struct {
	Port string `yaml:"port"`
}

// RetentionRule defines retention policy rules
type RetentionRule struct {
	Duration string `yaml:"duration"`
	Forever  bool   `yaml:"forever"`
}

// LocalBackupConfig defines local storage settings for a backup type
type LocalBackupConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Retention RetentionRule `yaml:"retention"`
}

// S3BackupConfig defines S3 storage settings for a backup type
type S3BackupConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Retention RetentionRule `yaml:"retention"`
}

// BackupTypeConfig defines configuration for a specific backup type
type BackupTypeConfig struct {
	Schedule string            `yaml:"schedule"` // Cron schedule format
	Local    LocalBackupConfig `yaml:"local"`
	S3       S3BackupConfig    `yaml:"s3"`
}

// AppConfig contains the complete application configuration
type AppConfig struct {
	Targets     []SQLiteTargetConfig        `yaml:"targets"`
	DumpOptions DumpOptionsConfig           `yaml:"dumpOptions"`
	Local       LocalConfig                 `yaml:"local"`
	S3          S3Config                    `yaml:"s3"`
	Metrics     MetricsConfig               `yaml:"metrics"`
	MetadataDB  MetadataDBConfig            `yaml:"metadata_database"`
	BackupTypes map[string]BackupTypeConfig `yaml:"backupTypes"`
	Debug       bool                        `yaml:"debug"`
	ConfigFile  string                      `yaml:"-"`
}

// CFG is the global configuration object
var CFG AppConfig

// LoadConfiguration loads configuration from environment variables, then
// overlays the YAML config file named by CONFIG_FILE when one is set.
func LoadConfiguration() {
	log.Println("Loading configuration from environment variables...")
	loadFromEnvironment()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := LoadConfigFile(path); err != nil {
			log.Fatalf("Failed to load config file %s: %v", path, err)
		}
	}

	setDefaults()

	if CFG.Debug {
		log.Printf("Configuration loaded: %+v\n", CFG)
	}
}

// loadFromEnvironment loads configuration from environment variables
func loadFromEnvironment() {
	CFG.Debug = parseEnvBool("DEBUG", false)

	// Dump options
	CFG.DumpOptions.ForeignKeysOff = parseEnvBool("DUMP_FOREIGN_KEYS_OFF", true)

	// Local backup settings
	CFG.Local.Enabled = parseEnvBool("LOCAL_BACKUP_ENABLED", true)
	CFG.Local.BackupDirectory = getEnvOrDefault("LOCAL_BACKUP_DIRECTORY", "/backups")

	// S3 settings
	CFG.S3.Enabled = parseEnvBool("S3_BACKUP_ENABLED", false)
	CFG.S3.Bucket = getEnvOrDefault("S3_BUCKET", "")
	CFG.S3.Region = getEnvOrDefault("S3_REGION", "us-east-1")
	CFG.S3.Endpoint = getEnvOrDefault("S3_ENDPOINT", "")
	CFG.S3.AccessKey = getEnvOrDefault("S3_ACCESS_KEY", "")
	CFG.S3.SecretKey = getEnvOrDefault("S3_SECRET_KEY", "")
	CFG.S3.Prefix = getEnvOrDefault("S3_PREFIX", "sqlite-backups")
	CFG.S3.PathStyle = parseEnvBool("S3_PATH_STYLE", false)
	CFG.S3.UseSSL = parseEnvBool("S3_USE_SSL", true)
	CFG.S3.CustomCAPath = getEnvOrDefault("S3_CUSTOM_CA_PATH", "")
	CFG.S3.SkipCertValidation = parseEnvBool("S3_SKIP_CERT_VALIDATION", false)

	// Metadata DB settings
	CFG.MetadataDB.Enabled = parseEnvBool("METADATA_DB_ENABLED", false)
	CFG.MetadataDB.Host = getEnvOrDefault("METADATA_DB_HOST", "localhost")
	if port, err := strconv.Atoi(getEnvOrDefault("METADATA_DB_PORT", "3306")); err == nil {
		CFG.MetadataDB.Port = port
	} else {
		CFG.MetadataDB.Port = 3306
	}
	CFG.MetadataDB.Username = getEnvOrDefault("METADATA_DB_USERNAME", "sqliteguard")
	CFG.MetadataDB.Password = getEnvOrDefault("METADATA_DB_PASSWORD", "")
	CFG.MetadataDB.Database = getEnvOrDefault("METADATA_DB_DATABASE", "sqliteguard_metadata")

	if maxOpen, err := strconv.Atoi(getEnvOrDefault("METADATA_DB_MAX_OPEN_CONNS", "10")); err == nil {
		CFG.MetadataDB.MaxOpenConns = maxOpen
	} else {
		CFG.MetadataDB.MaxOpenConns = 10
	}

	if maxIdle, err := strconv.Atoi(getEnvOrDefault("METADATA_DB_MAX_IDLE_CONNS", "5")); err == nil {
		CFG.MetadataDB.MaxIdleConns = maxIdle
	} else {
		CFG.MetadataDB.MaxIdleConns = 5
	}

	CFG.MetadataDB.ConnMaxLifetime = getEnvOrDefault("METADATA_DB_CONN_MAX_LIFETIME", "5m")
	CFG.MetadataDB.AutoMigrate = parseEnvBool("METADATA_DB_AUTO_MIGRATE", true)

	// Metrics settings
	CFG.Metrics.Port = getEnvOrDefault("METRICS_PORT", "8080")

	// Organization strategies (optional)
	if orgStrategy := getEnvOrDefault("LOCAL_ORGANIZATION_STRATEGY", ""); orgStrategy != "" {
		CFG.Local.OrganizationStrategy = orgStrategy
	}

	if orgStrategy := getEnvOrDefault("S3_ORGANIZATION_STRATEGY", ""); orgStrategy != "" {
		CFG.S3.OrganizationStrategy = orgStrategy
	}

	// A single target can be configured from the environment; more require
	// the config file.
	if path := getEnvOrDefault("SQLITE_TARGET_PATH", ""); path != "" {
		CFG.Targets = append(CFG.Targets, SQLiteTargetConfig{
			Name:    getEnvOrDefault("SQLITE_TARGET_NAME", "default"),
			Path:    path,
			Pattern: getEnvOrDefault("SQLITE_TARGET_PATTERN", ""),
		})
	}
}

// setDefaults ensures all config fields have reasonable default values
func setDefaults() {
	if CFG.Metrics.Port == "" {
		CFG.Metrics.Port = "8080"
	}

	if CFG.Local.OrganizationStrategy == "" {
		CFG.Local.OrganizationStrategy = "combined"
	}

	if CFG.S3.OrganizationStrategy == "" {
		CFG.S3.OrganizationStrategy = "combined"
	}

	for i := range CFG.Targets {
		if CFG.Targets[i].Pattern == "" {
			CFG.Targets[i].Pattern = "*.db"
		}
	}

	if CFG.MetadataDB.Enabled {
		if CFG.MetadataDB.Host == "" {
			CFG.MetadataDB.Host = "localhost"
		}
		if CFG.MetadataDB.Port == 0 {
			CFG.MetadataDB.Port = 3306
		}
		if CFG.MetadataDB.Database == "" {
			CFG.MetadataDB.Database = "sqliteguard_metadata"
		}
		if CFG.MetadataDB.MaxOpenConns == 0 {
			CFG.MetadataDB.MaxOpenConns = 10
		}
		if CFG.MetadataDB.MaxIdleConns == 0 {
			CFG.MetadataDB.MaxIdleConns = 5
		}
		if CFG.MetadataDB.ConnMaxLifetime == "" {
			CFG.MetadataDB.ConnMaxLifetime = "5m"
		}
	}

	// Set up default backup types if none are configured
	if len(CFG.BackupTypes) == 0 {
		CFG.BackupTypes = map[string]BackupTypeConfig{
			"manual": {
				Schedule: "", // No schedule - manual only
				Local: LocalBackupConfig{
					Enabled: true,
					Retention: RetentionRule{
						Duration: "2160h", // 90 days
						Forever:  false,
					},
				},
				S3: S3BackupConfig{
					Enabled: true,
					Retention: RetentionRule{
						Duration: "8760h", // one year
						Forever:  false,
					},
				},
			},
			"hourly": {
				Schedule: "0 * * * *",
				Local: LocalBackupConfig{
					Enabled: false,
					Retention: RetentionRule{
						Duration: "24h",
						Forever:  false,
					},
				},
				S3: S3BackupConfig{
					Enabled: false,
				},
			},
			"daily": {
				Schedule: "0 0 * * *",
				Local: LocalBackupConfig{
					Enabled: true,
					Retention: RetentionRule{
						Duration: "168h", // 7 days
						Forever:  false,
					},
				},
				S3: S3BackupConfig{
					Enabled: true,
					Retention: RetentionRule{
						Duration: "720h", // 30 days
						Forever:  false,
					},
				},
			},
		}
	}
}

// ValidateConfig checks the loaded configuration for consistency
func ValidateConfig() error {
	if len(CFG.Targets) == 0 {
		return fmt.Errorf("no SQLite targets configured: set SQLITE_TARGET_PATH or provide a config file")
	}

	seen := make(map[string]bool)
	for _, target := range CFG.Targets {
		if target.Name == "" {
			return fmt.Errorf("target with path %s has no name", target.Path)
		}
		if seen[target.Name] {
			return fmt.Errorf("duplicate target name: %s", target.Name)
		}
		seen[target.Name] = true
		if target.Path == "" {
			return fmt.Errorf("target %s has no path", target.Name)
		}
	}

	if !CFG.Local.Enabled && !CFG.S3.Enabled {
		return fmt.Errorf("no storage destination enabled: enable local or S3 backups")
	}

	if CFG.S3.Enabled && CFG.S3.Bucket == "" {
		return fmt.Errorf("S3 backups enabled but no bucket configured")
	}

	for name, typeConfig := range CFG.BackupTypes {
		if typeConfig.Local.Enabled && !typeConfig.Local.Retention.Forever {
			if _, err := time.ParseDuration(typeConfig.Local.Retention.Duration); err != nil {
				return fmt.Errorf("backup type %s has invalid local retention duration %q: %w",
					name, typeConfig.Local.Retention.Duration, err)
			}
		}
		if typeConfig.S3.Enabled && !typeConfig.S3.Retention.Forever {
			if _, err := time.ParseDuration(typeConfig.S3.Retention.Duration); err != nil {
				return fmt.Errorf("backup type %s has invalid S3 retention duration %q: %w",
					name, typeConfig.S3.Retention.Duration, err)
			}
		}
	}

	return nil
}

// Helper functions for environment variables

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func parseEnvBool(key string, defaultValue bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value = strings.ToLower(value)

	switch value {
	case "1", "t", "true", "yes", "on", "enabled":
		return true
	case "0", "f", "false", "no", "off", "disabled":
		return false
	default:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			log.Printf("Error parsing %s as bool: %v. Using default value: %t", key, err, defaultValue)
			return defaultValue
		}
		return boolValue
	}
}

// DisplayConfiguration outputs the current configuration in a readable format
// while masking sensitive information
func DisplayConfiguration() {
	log.Println("========== SQLiteGuard Configuration ==========")
	log.Printf("Debug Mode: %t", CFG.Debug)
	log.Printf("Config File: %s", CFG.ConfigFile)

	log.Println("\n----- SQLite Targets -----")
	for _, target := range CFG.Targets {
		log.Printf("Target: %s path=%s pattern=%s", target.Name, target.Path, target.Pattern)
	}

	log.Println("\n----- Local Storage -----")
	log.Printf("Enabled: %t Directory: %s Strategy: %s",
		CFG.Local.Enabled, CFG.Local.BackupDirectory, CFG.Local.OrganizationStrategy)

	log.Println("\n----- S3 Storage -----")
	log.Printf("Enabled: %t Bucket: %s Region: %s Endpoint: %s",
		CFG.S3.Enabled, CFG.S3.Bucket, CFG.S3.Region, CFG.S3.Endpoint)
	log.Printf("Access Key: %s Secret Key: %s",
		maskSensitiveInfo(CFG.S3.AccessKey), maskSensitiveInfo(CFG.S3.SecretKey))

	log.Println("\n----- Backup Types -----")
	for name, typeConfig := range CFG.BackupTypes {
		log.Printf("%s: schedule=%q local=%t s3=%t",
			name, typeConfig.Schedule, typeConfig.Local.Enabled, typeConfig.S3.Enabled)
	}
	log.Println("===============================================")
}

func maskSensitiveInfo(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
