// Package api provides JSON API handlers for the admin server.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/supporttools/SQLiteGuard/pkg/config"
	"github.com/supporttools/SQLiteGuard/pkg/database/providers/sqlite"
)

// TargetsHandler handles target inspection API endpoints
type TargetsHandler struct {
	Config *config.AppConfig
	Logger *logrus.Logger
}

// TargetInfo describes one configured target and its databases
type TargetInfo struct {
	Name      string   `json:"name"`
	Path      string   `json:"path"`
	Pattern   string   `json:"pattern,omitempty"`
	Databases []string `json:"databases"`
	Reachable bool     `json:"reachable"`
	Error     string   `json:"error,omitempty"`
}

// TargetsResponse represents the response for target operations
type TargetsResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewTargetsHandler creates a new handler for target endpoints
func NewTargetsHandler(cfg *config.AppConfig, logger *logrus.Logger) *TargetsHandler {
	return &TargetsHandler{
		Config: cfg,
		Logger: logger,
	}
}

// RegisterRoutes registers the target API routes
func (h *TargetsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/targets", h.handleTargets)
}

func (h *TargetsHandler) handleTargets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	infos := make([]TargetInfo, 0, len(h.Config.Targets))
	for _, target := range h.Config.Targets {
		info := TargetInfo{
			Name:    target.Name,
			Path:    target.Path,
			Pattern: target.Pattern,
		}

		provider := sqlite.NewProvider(target)
		if err := provider.Connect(ctx); err != nil {
			info.Error = err.Error()
			infos = append(infos, info)
			continue
		}

		databases, err := provider.ListDatabases(ctx)
		if err != nil {
			info.Error = err.Error()
		} else {
			info.Databases = databases
			info.Reachable = provider.Ping(ctx) == nil
		}
		provider.Close()

		infos = append(infos, info)
	}

	h.sendJSON(w, TargetsResponse{
		Success: true,
		Message: "Targets retrieved",
		Data:    infos,
	})
}

func (h *TargetsHandler) sendJSON(w http.ResponseWriter, response TargetsResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil && h.Logger != nil {
		h.Logger.WithError(err).Error("Failed to encode targets response")
	}
}

func (h *TargetsHandler) sendError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(TargetsResponse{
		Success: false,
		Message: message,
	})
}
