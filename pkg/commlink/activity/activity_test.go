package activity

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/commlink/pkg/commlink/database"
	"github.com/mikepea/commlink/pkg/commlink/dispatch"
	"github.com/mikepea/commlink/pkg/commlink/models"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := database.Connect(database.Options{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	t.Cleanup(func() { database.Close(db) })
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

func setupTestRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	routes := dispatch.NewTable()
	h.RegisterRoutes(routes)

	r := gin.New()
	r.NoRoute(dispatch.New(routes, nil).Handle)
	return r
}

type logsResponse struct {
	Success bool    `json:"success"`
	Data    []Entry `json:"data"`
	Error   string  `json:"error"`
}

func get(t *testing.T, r *gin.Engine, path string) (int, logsResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
	var resp logsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid JSON response %q: %v", w.Body.String(), err)
	}
	return w.Code, resp
}

func uintPtr(v uint) *uint { return &v }

func TestRecord(t *testing.T) {
	db := setupTestDB(t)

	if err := Record(db, uintPtr(3), models.ActionCreated, "Link created for Acme"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := Record(db, nil, models.ActionProfileUpdated, "User profile updated"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	var logs []models.ActivityLog
	db.Order("id").Find(&logs)
	if len(logs) != 2 {
		t.Fatalf("Expected 2 logs, got %d", len(logs))
	}
	if logs[0].LinkID == nil || *logs[0].LinkID != 3 {
		t.Errorf("Expected link_id 3, got %v", logs[0].LinkID)
	}
	if logs[1].LinkID != nil {
		t.Errorf("Expected nil link_id for account action, got %v", *logs[1].LinkID)
	}
	if logs[0].Timestamp.IsZero() {
		t.Error("Expected timestamp to be set")
	}
}

func TestListNewestFirstWithLevels(t *testing.T) {
	db := setupTestDB(t)
	Record(db, uintPtr(1), models.ActionCreated, "Link created for Acme")
	Record(db, uintPtr(1), models.ActionUpdated, "Link updated for Acme")
	Record(db, uintPtr(1), models.ActionDeleted, "Link deleted for Acme")

	code, resp := get(t, setupTestRouter(NewHandler(db)), "/api/logs")
	if code != http.StatusOK || !resp.Success {
		t.Fatalf("Expected 200 success, got %d %+v", code, resp)
	}
	if len(resp.Data) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(resp.Data))
	}
	first := resp.Data[0]
	if first.Action != models.ActionDeleted {
		t.Errorf("Expected newest entry first, got %s", first.Action)
	}
	if first.Level != models.LevelWarn {
		t.Errorf("Expected warn level for delete, got %s", first.Level)
	}
	if first.Message != "Link deleted for Acme" {
		t.Errorf("Expected message to mirror details, got %q", first.Message)
	}
	if resp.Data[2].Level != models.LevelInfo {
		t.Errorf("Expected info level for create, got %s", resp.Data[2].Level)
	}
}

func TestListCapsAt100(t *testing.T) {
	db := setupTestDB(t)
	for i := 0; i < ListLimit+5; i++ {
		Record(db, nil, models.ActionSystemUpdated, "System theme updated to dark")
	}

	_, resp := get(t, setupTestRouter(NewHandler(db)), "/api/logs")
	if len(resp.Data) != ListLimit {
		t.Errorf("Expected %d entries, got %d", ListLimit, len(resp.Data))
	}
}

func TestListForLink(t *testing.T) {
	db := setupTestDB(t)
	Record(db, uintPtr(1), models.ActionCreated, "Link created for Acme")
	Record(db, uintPtr(2), models.ActionCreated, "Link created for Globex")
	Record(db, uintPtr(1), models.ActionUpdated, "Link updated for Acme")
	Record(db, nil, models.ActionPasswordChanged, "User password changed")
	r := setupTestRouter(NewHandler(db))

	code, resp := get(t, r, "/api/logs/1")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if len(resp.Data) != 2 {
		t.Fatalf("Expected 2 entries for link 1, got %d", len(resp.Data))
	}
	if resp.Data[0].Action != models.ActionUpdated {
		t.Errorf("Expected newest first, got %s", resp.Data[0].Action)
	}

	code, resp = get(t, r, "/api/logs/99")
	if code != http.StatusOK || len(resp.Data) != 0 {
		t.Errorf("Expected empty list for unknown link, got %d with %d entries", code, len(resp.Data))
	}

	code, resp = get(t, r, "/api/logs/abc")
	if code != http.StatusBadRequest || resp.Error != "Invalid link ID" {
		t.Errorf("Expected 400 Invalid link ID, got %d %q", code, resp.Error)
	}
}
