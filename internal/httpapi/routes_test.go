package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chatwheel/followup/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.ScheduleSetting{}, &models.Schedule{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	if err := db.Create(&models.ScheduleSetting{
		ID: "set-1", WorkspaceID: "ws-1", Active: true,
	}).Error; err != nil {
		t.Fatalf("seed setting: %v", err)
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	registerRoutes(router, db)
	return router, db
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t)
	w := doJSON(router, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestPostEvent_ConversationCreated(t *testing.T) {
	router, db := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/events", `{
		"type": "conversation_created",
		"conversation_id": "conv-1",
		"workspace_id": "ws-1",
		"setting_id": "set-1"
	}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var count int64
	db.Model(&models.Schedule{}).Where("conversation_id = ?", "conv-1").Count(&count)
	if count != 1 {
		t.Errorf("schedules = %d, want 1", count)
	}
}

func TestPostEvent_HumanHandoff(t *testing.T) {
	router, db := newTestRouter(t)
	doJSON(router, http.MethodPost, "/api/events", `{
		"type": "conversation_created",
		"conversation_id": "conv-1",
		"workspace_id": "ws-1",
		"setting_id": "set-1"
	}`)

	w := doJSON(router, http.MethodPost, "/api/events", `{
		"type": "human_handoff",
		"conversation_id": "conv-1",
		"actor_id": "agent-9"
	}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var s models.Schedule
	if err := db.Where("conversation_id = ?", "conv-1").First(&s).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !s.Stopped {
		t.Error("schedule not stopped after handoff event")
	}
}

func TestPostEvent_UnknownType(t *testing.T) {
	router, _ := newTestRouter(t)
	w := doJSON(router, http.MethodPost, "/api/events", `{"type": "conversation_archived"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestPostEvent_RedeliveryAccepted(t *testing.T) {
	router, _ := newTestRouter(t)
	payload := `{
		"type": "conversation_created",
		"conversation_id": "conv-1",
		"workspace_id": "ws-1",
		"setting_id": "set-1"
	}`

	if w := doJSON(router, http.MethodPost, "/api/events", payload); w.Code != http.StatusAccepted {
		t.Fatalf("first delivery status = %d", w.Code)
	}
	if w := doJSON(router, http.MethodPost, "/api/events", payload); w.Code != http.StatusAccepted {
		t.Fatalf("redelivery status = %d, want 202", w.Code)
	}
}

func TestPostSchedule_Created(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/schedules", `{
		"conversation_id": "conv-1",
		"workspace_id": "ws-1",
		"setting_id": "set-1"
	}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp models.Schedule
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.HasPrefix(resp.ID, "sch-") {
		t.Errorf("schedule ID = %q", resp.ID)
	}
}

func TestPostSchedule_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			"missing fields",
			`{"conversation_id": "conv-1"}`,
			http.StatusBadRequest,
		},
		{
			"unknown setting",
			`{"conversation_id": "conv-1", "workspace_id": "ws-1", "setting_id": "set-missing"}`,
			http.StatusNotFound,
		},
		{
			"workspace mismatch",
			`{"conversation_id": "conv-1", "workspace_id": "ws-other", "setting_id": "set-1"}`,
			http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(t)
			w := doJSON(router, http.MethodPost, "/api/schedules", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestPostSchedule_Conflict(t *testing.T) {
	router, _ := newTestRouter(t)
	body := `{"conversation_id": "conv-1", "workspace_id": "ws-1", "setting_id": "set-1"}`

	if w := doJSON(router, http.MethodPost, "/api/schedules", body); w.Code != http.StatusCreated {
		t.Fatalf("first create status = %d", w.Code)
	}
	if w := doJSON(router, http.MethodPost, "/api/schedules", body); w.Code != http.StatusConflict {
		t.Fatalf("second create status = %d, want 409", w.Code)
	}
}

func TestStopSchedule(t *testing.T) {
	router, db := newTestRouter(t)
	doJSON(router, http.MethodPost, "/api/schedules",
		`{"conversation_id": "conv-1", "workspace_id": "ws-1", "setting_id": "set-1"}`)

	w := doJSON(router, http.MethodPost, "/api/schedules/stop",
		`{"conversation_id": "conv-1", "actor_id": "agent-9"}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}

	var s models.Schedule
	db.Where("conversation_id = ?", "conv-1").First(&s)
	if !s.Stopped {
		t.Error("schedule not stopped")
	}
}

func TestStopSchedule_NoOpenSchedule(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/schedules/stop",
		`{"conversation_id": "conv-unknown"}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204 for no-op stop", w.Code)
	}
}

func TestGetSchedule(t *testing.T) {
	router, _ := newTestRouter(t)
	doJSON(router, http.MethodPost, "/api/schedules",
		`{"conversation_id": "conv-1", "workspace_id": "ws-1", "setting_id": "set-1"}`)

	w := doJSON(router, http.MethodGet, "/api/schedules/conv-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp models.Schedule
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ConversationID != "conv-1" {
		t.Errorf("conversation = %q", resp.ConversationID)
	}
}

func TestGetSchedule_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/api/schedules/conv-unknown", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
