package adminserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/supporttools/SQLiteGuard/pkg/config"
	"github.com/supporttools/SQLiteGuard/pkg/metadata"
	"github.com/supporttools/SQLiteGuard/pkg/metadata/types"
)

func setupStore(t *testing.T) {
	t.Helper()
	metadata.DefaultStore = metadata.NewFileStore(filepath.Join(t.TempDir(), "metadata.json"))
	t.Cleanup(func() { metadata.DefaultStore = nil })
}

func TestHealthCheckHandler(t *testing.T) {
	s := NewServer(nil, nil)

	req := httptest.NewRequest("GET", "/healthz", nil)
	rr := httptest.NewRecorder()
	s.healthCheckHandler(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}

	var response map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response["status"] != "healthy" {
		t.Errorf("Expected status=healthy, got %v", response["status"])
	}
}

func TestListBackupsHandler(t *testing.T) {
	setupStore(t)

	meta := metadata.DefaultStore.CreateBackupMeta("app", "main", "manual")
	if err := metadata.DefaultStore.UpdateBackupStatus(meta.ID, types.StatusSuccess, nil, 100, ""); err != nil {
		t.Fatal(err)
	}
	metadata.DefaultStore.CreateBackupMeta("reports", "stats", "hourly")

	s := NewServer(nil, nil)

	req := httptest.NewRequest("GET", "/api/backups?target=app", nil)
	rr := httptest.NewRecorder()
	s.listBackupsHandler(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}

	var response struct {
		Backups []types.BackupMeta `json:"backups"`
		Count   int                `json:"count"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response.Count != 1 {
		t.Errorf("Expected count=1, got %d", response.Count)
	}
	if len(response.Backups) != 1 || response.Backups[0].Target != "app" {
		t.Errorf("Expected one backup for target app, got %+v", response.Backups)
	}
}

func TestStatsHandlerHumanizesSize(t *testing.T) {
	setupStore(t)

	meta := metadata.DefaultStore.CreateBackupMeta("app", "main", "manual")
	if err := metadata.DefaultStore.UpdateBackupStatus(meta.ID, types.StatusSuccess, nil, 2048, ""); err != nil {
		t.Fatal(err)
	}

	s := NewServer(nil, nil)

	req := httptest.NewRequest("GET", "/api/stats", nil)
	rr := httptest.NewRecorder()
	s.statsHandler(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v", rr.Code)
	}

	var stats map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if stats["totalSizeHuman"] == nil {
		t.Error("Expected totalSizeHuman in stats response")
	}
}

func TestDeleteBackupHandler(t *testing.T) {
	setupStore(t)

	meta := metadata.DefaultStore.CreateBackupMeta("app", "main", "manual")

	s := NewServer(nil, nil)

	req := httptest.NewRequest("POST", "/api/backups/delete?id="+meta.ID, nil)
	rr := httptest.NewRecorder()
	s.deleteBackupHandler(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v, body %s", rr.Code, rr.Body.String())
	}

	got, ok := metadata.DefaultStore.GetBackupByID(meta.ID)
	if !ok {
		t.Fatal("backup disappeared")
	}
	if got.Status != types.StatusDeleted {
		t.Errorf("Expected status deleted, got %s", got.Status)
	}
}

func TestDeleteBackupHandlerRejectsGet(t *testing.T) {
	s := NewServer(nil, nil)

	req := httptest.NewRequest("GET", "/api/backups/delete?id=x", nil)
	rr := httptest.NewRecorder()
	s.deleteBackupHandler(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %v", rr.Code)
	}
}

func TestSchedulesHandler(t *testing.T) {
	config.CFG.BackupTypes = map[string]config.BackupTypeConfig{
		"hourly": {Schedule: "0 * * * *"},
		"manual": {},
	}
	defer func() { config.CFG = config.AppConfig{} }()

	s := NewServer(nil, nil)

	req := httptest.NewRequest("GET", "/api/schedules", nil)
	rr := httptest.NewRecorder()
	s.schedulesHandler(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v", rr.Code)
	}

	var response struct {
		Schedules []struct {
			BackupType string `json:"backupType"`
			Schedule   string `json:"schedule"`
		} `json:"schedules"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response.Count != 2 {
		t.Fatalf("Expected count=2, got %d", response.Count)
	}
	if response.Schedules[0].BackupType != "hourly" || response.Schedules[0].Schedule != "0 * * * *" {
		t.Errorf("Unexpected first schedule: %+v", response.Schedules[0])
	}
}

func TestReloadSchedulesHandlerRejectsGet(t *testing.T) {
	s := NewServer(nil, nil)

	req := httptest.NewRequest("GET", "/api/schedules/reload", nil)
	rr := httptest.NewRecorder()
	s.reloadSchedulesHandler(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %v", rr.Code)
	}
}

func TestRunBackupHandlerValidation(t *testing.T) {
	setupStore(t)
	config.CFG.BackupTypes = map[string]config.BackupTypeConfig{"manual": {}}
	defer func() { config.CFG = config.AppConfig{} }()

	s := NewServer(nil, nil)

	// Missing type parameter.
	req := httptest.NewRequest("POST", "/api/backups/run", nil)
	rr := httptest.NewRecorder()
	s.runBackupHandler(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing type, got %v", rr.Code)
	}

	// Unknown backup type.
	req = httptest.NewRequest("POST", "/api/backups/run?type=weekly", nil)
	rr = httptest.NewRecorder()
	s.runBackupHandler(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown type, got %v", rr.Code)
	}

	// Unknown target.
	req = httptest.NewRequest("POST", "/api/backups/run?type=manual&target=nope", nil)
	rr = httptest.NewRecorder()
	s.runBackupHandler(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown target, got %v", rr.Code)
	}
}
