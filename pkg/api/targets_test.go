package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/supporttools/SQLiteGuard/pkg/config"
)

func TestTargetsHandlerListsDatabases(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"app.db", "audit.db"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := &config.AppConfig{
		Targets: []config.SQLiteTargetConfig{
			{Name: "apps", Path: dir, Pattern: "*.db"},
		},
	}
	handler := NewTargetsHandler(cfg, nil)

	req := httptest.NewRequest("GET", "/api/targets", nil)
	rr := httptest.NewRecorder()
	handler.handleTargets(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v", rr.Code)
	}

	var response struct {
		Success bool         `json:"success"`
		Data    []TargetInfo `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if !response.Success {
		t.Error("Expected success=true")
	}
	if len(response.Data) != 1 {
		t.Fatalf("Expected 1 target, got %d", len(response.Data))
	}
	if len(response.Data[0].Databases) != 2 {
		t.Errorf("Expected 2 databases, got %v", response.Data[0].Databases)
	}
}

func TestTargetsHandlerMissingPath(t *testing.T) {
	cfg := &config.AppConfig{
		Targets: []config.SQLiteTargetConfig{
			{Name: "gone", Path: "/nonexistent/nowhere.db"},
		},
	}
	handler := NewTargetsHandler(cfg, nil)

	req := httptest.NewRequest("GET", "/api/targets", nil)
	rr := httptest.NewRecorder()
	handler.handleTargets(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v", rr.Code)
	}

	var response struct {
		Data []TargetInfo `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if len(response.Data) != 1 {
		t.Fatalf("Expected 1 target, got %d", len(response.Data))
	}
	if response.Data[0].Error == "" {
		t.Error("Expected an error for a missing target path")
	}
	if response.Data[0].Reachable {
		t.Error("Expected target to be unreachable")
	}
}

func TestTargetsHandlerRejectsPost(t *testing.T) {
	handler := NewTargetsHandler(&config.AppConfig{}, nil)

	req := httptest.NewRequest("POST", "/api/targets", nil)
	rr := httptest.NewRecorder()
	handler.handleTargets(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %v", rr.Code)
	}
}
