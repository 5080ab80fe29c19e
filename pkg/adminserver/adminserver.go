// Package adminserver provides the HTTP server for administering SQLiteGuard.
package adminserver

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/supporttools/SQLiteGuard/pkg/api"
	"github.com/supporttools/SQLiteGuard/pkg/backup"
	"github.com/supporttools/SQLiteGuard/pkg/config"
	"github.com/supporttools/SQLiteGuard/pkg/metadata"
	"github.com/supporttools/SQLiteGuard/pkg/scheduler"
	"github.com/supporttools/SQLiteGuard/pkg/storage/s3"
)

var (
	taskLock      sync.Mutex
	isTaskRunning bool
)

// Server represents the admin HTTP server
type Server struct {
	httpServer *http.Server
	scheduler  *scheduler.Scheduler
	backupMgr  *backup.Manager
}

// NewServer creates a new admin server instance
func NewServer(backupMgr *backup.Manager, sched *scheduler.Scheduler) *Server {
	return &Server{
		scheduler: sched,
		backupMgr: backupMgr,
	}
}

// Start starts the admin HTTP server
func (s *Server) Start() *http.Server {
	mux := http.NewServeMux()

	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", config.CFG.Metrics.Port),
		Handler:      logRequestMiddleware(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		log.Printf("Admin server running on port %s", config.CFG.Metrics.Port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	return s.httpServer
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.healthCheckHandler)
	mux.HandleFunc("/api/stats", s.statsHandler)

	// Backup operations
	mux.HandleFunc("/api/backups", s.listBackupsHandler)
	mux.HandleFunc("/api/backups/run", s.runBackupHandler)
	mux.HandleFunc("/api/backups/delete", s.deleteBackupHandler)
	mux.HandleFunc("/api/backups/download/local", s.downloadLocalBackupHandler)
	mux.HandleFunc("/api/backups/download/s3", s.downloadS3BackupHandler)

	// Storage operations
	mux.HandleFunc("/api/storage", s.storageInfoHandler)
	mux.HandleFunc("/api/schedules", s.schedulesHandler)
	mux.HandleFunc("/api/schedules/reload", s.reloadSchedulesHandler)
	mux.HandleFunc("/api/retention/run", s.runRetentionHandler)

	// Target inspection and restore API
	logger := logrus.New()
	if config.CFG.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	targetsHandler := api.NewTargetsHandler(&config.CFG, logger)
	targetsHandler.RegisterRoutes(mux)
	restoreHandler := api.NewRestoreHandler(&config.CFG, logger)
	restoreHandler.RegisterRoutes(mux)
}

// healthCheckHandler returns a simple health status
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err := json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
	if err != nil {
		log.Printf("Error encoding health check response: %v", err)
	}
}

// statsHandler returns statistics about backups
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	if metadata.DefaultStore == nil {
		http.Error(w, "Metadata store not available", http.StatusServiceUnavailable)
		return
	}

	stats := metadata.DefaultStore.GetStats()
	if size, ok := stats["totalSizeBytes"].(int64); ok {
		stats["totalSizeHuman"] = humanize.Bytes(uint64(size))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Printf("Error encoding stats response: %v", err)
		http.Error(w, "Error generating stats", http.StatusInternalServerError)
		return
	}
}

// listBackupsHandler returns a list of backups with optional filtering
func (s *Server) listBackupsHandler(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target")
	database := r.URL.Query().Get("database")
	backupType := r.URL.Query().Get("type")
	activeOnly := r.URL.Query().Get("activeOnly") == "true"

	if metadata.DefaultStore == nil {
		http.Error(w, "Metadata store not available", http.StatusServiceUnavailable)
		return
	}

	var backups []metadata.BackupMeta
	if target != "" || database != "" || backupType != "" || activeOnly {
		backups = metadata.DefaultStore.GetBackupsFiltered(target, database, backupType, activeOnly)
	} else {
		backups = metadata.DefaultStore.GetBackups()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"backups": backups,
		"count":   len(backups),
	}); err != nil {
		log.Printf("Error encoding backups response: %v", err)
		http.Error(w, "Error listing backups", http.StatusInternalServerError)
		return
	}
}

// schedulesHandler returns the configured backup schedules and their next run times
func (s *Server) schedulesHandler(w http.ResponseWriter, r *http.Request) {
	type scheduleInfo struct {
		BackupType string `json:"backupType"`
		Schedule   string `json:"schedule"`
		NextRun    string `json:"nextRun,omitempty"`
	}

	schedules := make([]scheduleInfo, 0, len(config.CFG.BackupTypes))
	for backupType, typeConfig := range config.CFG.BackupTypes {
		info := scheduleInfo{
			BackupType: backupType,
			Schedule:   typeConfig.Schedule,
		}
		if s.scheduler != nil && typeConfig.Schedule != "" {
			if next, err := s.scheduler.GetNextRunTime(backupType); err == nil {
				info.NextRun = next.Format(time.RFC3339)
			}
		}
		schedules = append(schedules, info)
	}
	sort.Slice(schedules, func(i, j int) bool {
		return schedules[i].BackupType < schedules[j].BackupType
	})

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"schedules": schedules,
		"count":     len(schedules),
	}); err != nil {
		log.Printf("Error encoding schedules response: %v", err)
		http.Error(w, "Error listing schedules", http.StatusInternalServerError)
		return
	}
}

// reloadSchedulesHandler re-reads configuration and re-registers cron jobs
func (s *Server) reloadSchedulesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.scheduler == nil {
		http.Error(w, "Scheduler not configured", http.StatusInternalServerError)
		return
	}

	config.LoadConfiguration()
	if err := s.scheduler.ReloadSchedules(); err != nil {
		log.Printf("Error reloading schedules: %v", err)
		http.Error(w, fmt.Sprintf("Failed to reload schedules: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"message": "Schedules reloaded",
	}); err != nil {
		log.Printf("Error encoding reload response: %v", err)
	}
}

// runBackupHandler triggers a manual backup
func (s *Server) runBackupHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	backupType := r.URL.Query().Get("type")
	databaseParam := r.URL.Query().Get("database")
	targetParam := r.URL.Query().Get("target")

	if backupType == "" {
		http.Error(w, "Missing required parameter: type", http.StatusBadRequest)
		return
	}

	var targets []string
	if targetParam != "" {
		targets = strings.Split(targetParam, ",")
	}

	var databases []string
	if databaseParam != "" {
		databases = strings.Split(databaseParam, ",")
	}

	if _, exists := config.CFG.BackupTypes[backupType]; !exists {
		http.Error(w, fmt.Sprintf("Invalid backup type: %s", backupType), http.StatusBadRequest)
		return
	}

	for _, targetName := range targets {
		targetExists := false
		for _, target := range config.CFG.Targets {
			if target.Name == targetName {
				targetExists = true
				break
			}
		}
		if !targetExists {
			http.Error(w, fmt.Sprintf("Target not found: %s", targetName), http.StatusBadRequest)
			return
		}
	}

	if s.scheduler == nil {
		http.Error(w, "Scheduler not configured", http.StatusInternalServerError)
		return
	}

	if !triggerBackup(s, backupType, targets, databases) {
		http.Error(w, "A backup task is already running", http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)

	response := map[string]string{
		"status":  "accepted",
		"message": fmt.Sprintf("Backup of type %s initiated", backupType),
	}

	if len(databases) > 0 {
		response["message"] = fmt.Sprintf("Backup of databases %s (type: %s) initiated",
			strings.Join(databases, ", "), backupType)
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// deleteBackupHandler marks a backup as deleted
func (s *Server) deleteBackupHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	backupID := r.URL.Query().Get("id")
	if backupID == "" {
		http.Error(w, "Missing required parameter: id", http.StatusBadRequest)
		return
	}

	if metadata.DefaultStore == nil {
		http.Error(w, "Metadata store not available", http.StatusServiceUnavailable)
		return
	}

	backupMeta, exists := metadata.DefaultStore.GetBackupByID(backupID)
	if !exists {
		http.Error(w, fmt.Sprintf("Backup with ID %s not found", backupID), http.StatusNotFound)
		return
	}

	if err := metadata.DefaultStore.MarkBackupDeleted(backupID); err != nil {
		log.Printf("Error marking backup as deleted: %v", err)
		http.Error(w, "Error deleting backup", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(map[string]string{
		"status":   "success",
		"message":  fmt.Sprintf("Backup %s marked as deleted", backupID),
		"id":       backupID,
		"database": backupMeta.Database,
		"type":     backupMeta.BackupType,
	}); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// storageInfoHandler returns information about storage destinations
func (s *Server) storageInfoHandler(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"local": map[string]interface{}{
			"enabled": config.CFG.Local.Enabled,
			"path":    config.CFG.Local.BackupDirectory,
		},
		"s3": map[string]interface{}{
			"enabled": config.CFG.S3.Enabled,
			"bucket":  config.CFG.S3.Bucket,
			"region":  config.CFG.S3.Region,
			"prefix":  config.CFG.S3.Prefix,
		},
	}

	if metadata.DefaultStore == nil {
		http.Error(w, "Metadata store not available", http.StatusServiceUnavailable)
		return
	}

	stats := metadata.DefaultStore.GetStats()
	if size, ok := stats["totalSizeBytes"].(int64); ok {
		stats["totalSizeHuman"] = humanize.Bytes(uint64(size))
	}
	info["stats"] = stats

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(info); err != nil {
		log.Printf("Error encoding storage info response: %v", err)
		http.Error(w, "Error generating storage info", http.StatusInternalServerError)
		return
	}
}

// downloadLocalBackupHandler serves a backup file from local storage for download
func (s *Server) downloadLocalBackupHandler(w http.ResponseWriter, r *http.Request) {
	backupID := r.URL.Query().Get("id")
	if backupID == "" {
		http.Error(w, "Missing required parameter: id", http.StatusBadRequest)
		return
	}

	if metadata.DefaultStore == nil {
		http.Error(w, "Metadata store not available", http.StatusServiceUnavailable)
		return
	}

	backupMeta, exists := metadata.DefaultStore.GetBackupByID(backupID)
	if !exists {
		http.Error(w, fmt.Sprintf("Backup with ID %s not found", backupID), http.StatusNotFound)
		return
	}

	localPath := backupMeta.AnyLocalPath()
	if localPath == "" {
		http.Error(w, fmt.Sprintf("No local file available for backup %s", backupID), http.StatusNotFound)
		return
	}

	if _, err := os.Stat(localPath); os.IsNotExist(err) {
		http.Error(w, fmt.Sprintf("Backup file not found on disk: %s", localPath), http.StatusNotFound)
		return
	}

	filename := fmt.Sprintf("%s-%s-%s.sql.gz", backupMeta.Database, backupMeta.BackupType,
		backupMeta.CreatedAt.Format("2006-01-02-15-04-05"))

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	http.ServeFile(w, r, localPath)

	log.Printf("Served local backup download: %s", localPath)
}

// downloadS3BackupHandler handles downloading a backup from S3 using presigned URLs
func (s *Server) downloadS3BackupHandler(w http.ResponseWriter, r *http.Request) {
	backupID := r.URL.Query().Get("id")
	if backupID == "" {
		http.Error(w, "Missing required parameter: id", http.StatusBadRequest)
		return
	}

	if metadata.DefaultStore == nil {
		http.Error(w, "Metadata store not available", http.StatusServiceUnavailable)
		return
	}

	backupMeta, exists := metadata.DefaultStore.GetBackupByID(backupID)
	if !exists {
		http.Error(w, fmt.Sprintf("Backup with ID %s not found", backupID), http.StatusNotFound)
		return
	}

	var s3Key string
	for _, key := range backupMeta.S3Keys {
		s3Key = key
		break
	}
	if s3Key == "" {
		http.Error(w, fmt.Sprintf("No S3 file available for backup %s", backupID), http.StatusNotFound)
		return
	}

	s3Client, err := s3.NewClient()
	if err != nil {
		log.Printf("Error initializing S3 client: %v", err)
		http.Error(w, "Failed to connect to S3 storage", http.StatusInternalServerError)
		return
	}

	presignedURL, err := s3Client.GeneratePresignedURL(s3Key, 15*time.Minute)
	if err != nil {
		log.Printf("Error generating presigned URL: %v", err)
		http.Error(w, "Failed to generate download link", http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("%s-%s-%s.sql.gz", backupMeta.Database, backupMeta.BackupType,
		backupMeta.CreatedAt.Format("2006-01-02-15-04-05"))

	if r.URL.Query().Get("redirect") == "true" {
		http.Redirect(w, r, presignedURL, http.StatusFound)
		log.Printf("Redirected to S3 presigned URL for backup: %s", backupID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	response := map[string]interface{}{
		"status":       "success",
		"message":      "S3 presigned URL generated successfully",
		"id":           backupID,
		"database":     backupMeta.Database,
		"type":         backupMeta.BackupType,
		"size":         backupMeta.Size,
		"size_human":   humanize.Bytes(uint64(backupMeta.Size)),
		"created_at":   backupMeta.CreatedAt,
		"s3_bucket":    config.CFG.S3.Bucket,
		"s3_key":       s3Key,
		"download_url": presignedURL,
		"expires_in":   "15 minutes",
		"filename":     filename,
		"content_type": "application/gzip",
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Error encoding S3 download response: %v", err)
	}

	log.Printf("Generated presigned URL for S3 backup: %s", backupID)
}

// runRetentionHandler triggers retention policy enforcement
func (s *Server) runRetentionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.scheduler == nil {
		http.Error(w, "Scheduler not configured", http.StatusInternalServerError)
		return
	}

	if !triggerRetention(s) {
		http.Error(w, "A task is already running", http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)

	if err := json.NewEncoder(w).Encode(map[string]string{
		"status":  "accepted",
		"message": "Retention policy enforcement initiated",
	}); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// logRequestMiddleware logs HTTP requests
func logRequestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("HTTP %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

// triggerBackup ensures only one backup runs at a time
func triggerBackup(s *Server, backupType string, targets []string, databases []string) bool {
	taskLock.Lock()
	defer taskLock.Unlock()

	if isTaskRunning {
		return false
	}

	isTaskRunning = true

	go func() {
		defer func() {
			taskLock.Lock()
			isTaskRunning = false
			taskLock.Unlock()
		}()

		if len(targets) > 0 {
			log.Printf("Running manual backup of type %s for targets: %v", backupType, targets)
		} else {
			log.Printf("Running manual backup of type %s for all targets", backupType)
		}

		if len(databases) > 0 {
			log.Printf("Only backing up databases: %v", databases)
		}

		if err := s.scheduler.RunOnce(backupType, targets, databases); err != nil {
			log.Printf("Error running backup: %v", err)
		}
	}()

	return true
}

// triggerRetention ensures only one retention task runs at a time
func triggerRetention(s *Server) bool {
	taskLock.Lock()
	defer taskLock.Unlock()

	if isTaskRunning {
		return false
	}

	isTaskRunning = true

	go func() {
		defer func() {
			taskLock.Lock()
			isTaskRunning = false
			taskLock.Unlock()
		}()

		log.Println("Running manual retention policy enforcement")
		s.scheduler.RunRetentionOnce()
	}()

	return true
}
