package api

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/supporttools/SQLiteGuard/pkg/config"
	"github.com/supporttools/SQLiteGuard/pkg/database/providers/sqlite"
	"github.com/supporttools/SQLiteGuard/pkg/metadata"
)

// RestoreHandler handles restore API endpoints
type RestoreHandler struct {
	Config *config.AppConfig
	Logger *logrus.Logger
}

// RestoreResponse represents the response for restore operations
type RestoreResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
	Target  string `json:"target,omitempty"`
	// Database is the name the dump was replayed into
	Database string `json:"database,omitempty"`
}

// NewRestoreHandler creates a new handler for restore endpoints
func NewRestoreHandler(cfg *config.AppConfig, logger *logrus.Logger) *RestoreHandler {
	return &RestoreHandler{
		Config: cfg,
		Logger: logger,
	}
}

// RegisterRoutes registers the restore API routes
func (h *RestoreHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/restore", h.handleRestore)
}

// handleRestore replays a stored backup into a fresh database file. The
// backup is identified by id; the optional database parameter names the
// restored database, defaulting to "<original>_restored".
func (h *RestoreHandler) handleRestore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	backupID := r.URL.Query().Get("id")
	if backupID == "" {
		h.sendError(w, "Missing required parameter: id", http.StatusBadRequest)
		return
	}

	if metadata.DefaultStore == nil {
		h.sendError(w, "Metadata store not available", http.StatusServiceUnavailable)
		return
	}

	backup, exists := metadata.DefaultStore.GetBackupByID(backupID)
	if !exists {
		h.sendError(w, fmt.Sprintf("Backup with ID %s not found", backupID), http.StatusNotFound)
		return
	}

	localPath := backup.AnyLocalPath()
	if localPath == "" {
		h.sendError(w, fmt.Sprintf("No local file available for backup %s", backupID), http.StatusNotFound)
		return
	}

	var target *config.SQLiteTargetConfig
	for i := range h.Config.Targets {
		if h.Config.Targets[i].Name == backup.Target {
			target = &h.Config.Targets[i]
			break
		}
	}
	if target == nil {
		h.sendError(w, fmt.Sprintf("Target %s is no longer configured", backup.Target), http.StatusConflict)
		return
	}

	restoreName := r.URL.Query().Get("database")
	if restoreName == "" {
		restoreName = backup.Database + "_restored"
	}

	file, err := os.Open(localPath)
	if err != nil {
		h.sendError(w, fmt.Sprintf("Backup file not found on disk: %s", localPath), http.StatusNotFound)
		return
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		h.sendError(w, "Backup file is not a valid gzip archive", http.StatusInternalServerError)
		return
	}
	defer gz.Close()

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	provider := sqlite.NewProvider(*target)
	if err := provider.Restore(ctx, restoreName, gz); err != nil {
		if h.Logger != nil {
			h.Logger.WithError(err).WithFields(logrus.Fields{
				"backup":   backupID,
				"database": restoreName,
			}).Error("Restore failed")
		}
		h.sendError(w, fmt.Sprintf("Restore failed: %v", err), http.StatusInternalServerError)
		return
	}

	if h.Logger != nil {
		h.Logger.WithFields(logrus.Fields{
			"backup":   backupID,
			"target":   backup.Target,
			"database": restoreName,
		}).Info("Restore completed")
	}

	h.sendJSON(w, RestoreResponse{
		Success:  true,
		Message:  fmt.Sprintf("Backup %s restored as %s", backupID, restoreName),
		ID:       backupID,
		Target:   backup.Target,
		Database: restoreName,
	})
}

func (h *RestoreHandler) sendJSON(w http.ResponseWriter, response RestoreResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil && h.Logger != nil {
		h.Logger.WithError(err).Error("Failed to encode restore response")
	}
}

func (h *RestoreHandler) sendError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(RestoreResponse{
		Success: false,
		Message: message,
	})
}
