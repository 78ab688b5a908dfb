package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/chatwheel/followup/internal/gateway"
	"github.com/chatwheel/followup/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openDispatchTestDB(t *testing.T) *gorm.DB {
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
	return db
}

func seedSchedule(t *testing.T, db *gorm.DB, sched models.Schedule) *models.Schedule {
	t.Helper()
	if sched.ID == "" {
		sched.ID = "sch-test1"
	}
	if sched.ConversationID == "" {
		sched.ConversationID = "conv-1"
	}
	if sched.WorkspaceID == "" {
		sched.WorkspaceID = "ws-1"
	}
	if sched.SettingID == "" {
		sched.SettingID = "set-1"
	}
	if err := db.Create(&sched).Error; err != nil {
		t.Fatalf("seed schedule: %v", err)
	}
	return &sched
}

func testSetting() *models.ScheduleSetting {
	return &models.ScheduleSetting{
		ID:                  "set-1",
		WorkspaceID:         "ws-1",
		Active:              true,
		InitialMessage:      "still there?",
		AutomaticMessage:    "just checking in",
		FinalizationMessage: "closing this out",
	}
}

func reload(t *testing.T, db *gorm.DB, id string) *models.Schedule {
	t.Helper()
	var s models.Schedule
	if err := db.Where("id = ?", id).First(&s).Error; err != nil {
		t.Fatalf("reload schedule %s: %v", id, err)
	}
	return &s
}

func TestDispatch_Initial(t *testing.T) {
	db := openDispatchTestDB(t)
	sched := seedSchedule(t, db, models.Schedule{})
	gw := gateway.NewMockGateway()
	d := &Dispatcher{DB: db, Gateway: gw}

	if err := d.Dispatch(context.Background(), sched, testSetting(), StageInitial); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	calls := gw.Calls()
	want := []string{
		"GetConversation:conv-1",
		"AddMember:conv-1:" + SystemMemberID,
		"AddTags:conv-1:followup-engaged",
		"MarkAutomationEngaged:conv-1",
		"DispatchMessage:conv-1",
	}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, calls[i], want[i])
		}
	}

	msgs := gw.Messages()
	if len(msgs) != 1 || msgs[0].Text != "still there?" {
		t.Errorf("messages = %+v", msgs)
	}
	if msgs[0].From.ID != SystemMemberID {
		t.Errorf("message author = %q, want system member", msgs[0].From.ID)
	}

	got := reload(t, db, sched.ID)
	if !got.InitialSent || got.InitialSentAt == nil {
		t.Errorf("initial flag not persisted: %+v", got)
	}
}

func TestDispatch_Initial_SystemMemberAlreadyPresent(t *testing.T) {
	db := openDispatchTestDB(t)
	sched := seedSchedule(t, db, models.Schedule{})
	gw := gateway.NewMockGateway()
	gw.SetConversation(&gateway.Conversation{
		ID:      "conv-1",
		Members: []gateway.Member{{ID: SystemMemberID, Name: SystemMemberName, Type: SystemMemberType}},
	})
	d := &Dispatcher{DB: db, Gateway: gw}

	if err := d.Dispatch(context.Background(), sched, testSetting(), StageInitial); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if gw.CalledCount("AddMember") != 0 {
		t.Errorf("AddMember called for existing system member: %v", gw.Calls())
	}
}

func TestDispatch_Automatic_MessageOnly(t *testing.T) {
	db := openDispatchTestDB(t)
	at := time.Now().Add(-10 * time.Minute)
	sched := seedSchedule(t, db, models.Schedule{InitialSent: true, InitialSentAt: &at})
	gw := gateway.NewMockGateway()
	d := &Dispatcher{DB: db, Gateway: gw}

	if err := d.Dispatch(context.Background(), sched, testSetting(), StageAutomatic); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if gw.CalledCount("AddTags") != 0 {
		t.Errorf("automatic stage must not tag: %v", gw.Calls())
	}
	if gw.CalledCount("MarkAutomationEngaged") != 0 {
		t.Errorf("automatic stage must not toggle engagement: %v", gw.Calls())
	}
	msgs := gw.Messages()
	if len(msgs) != 1 || msgs[0].Text != "just checking in" {
		t.Errorf("messages = %+v", msgs)
	}

	got := reload(t, db, sched.ID)
	if !got.AutomaticSent || got.AutomaticSentAt == nil {
		t.Errorf("automatic flag not persisted: %+v", got)
	}
}

func finalizableSchedule(t *testing.T, db *gorm.DB) *models.Schedule {
	t.Helper()
	initialAt := time.Now().Add(-30 * time.Minute)
	automaticAt := time.Now().Add(-15 * time.Minute)
	return seedSchedule(t, db, models.Schedule{
		InitialSent:     true,
		InitialSentAt:   &initialAt,
		AutomaticSent:   true,
		AutomaticSentAt: &automaticAt,
	})
}

func TestDispatch_Finalization_WithCategorization(t *testing.T) {
	db := openDispatchTestDB(t)
	sched := finalizableSchedule(t, db)
	gw := gateway.NewMockGateway()
	gw.SetConversation(&gateway.Conversation{ID: "conv-1", TeamID: "teamA"})
	d := &Dispatcher{DB: db, Gateway: gw}

	cfg := testSetting()
	obj, out := "obj-1", "out-1"
	cfg.CategorizationObjectiveID = &obj
	cfg.CategorizationOutcomeID = &out

	if err := d.Dispatch(context.Background(), sched, cfg, StageFinalization); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	calls := gw.Calls()
	var sawCategorize, sawTag, sawMessage, sawEnd bool
	for _, c := range calls {
		switch {
		case strings.HasPrefix(c, "CreateCategorization:conv-1:obj-1:out-1"):
			sawCategorize = true
		case strings.HasPrefix(c, "AddTags:conv-1:followup-finalized"):
			sawTag = true
		case strings.HasPrefix(c, "DispatchMessage"):
			sawMessage = true
		case strings.HasPrefix(c, "DispatchEndConversation:conv-1:"+CloseTypeBotFinished):
			sawEnd = true
		}
	}
	if !sawCategorize || !sawTag || !sawMessage || !sawEnd {
		t.Errorf("missing finalization effects (categorize=%v tag=%v message=%v end=%v): %v",
			sawCategorize, sawTag, sawMessage, sawEnd, calls)
	}

	got := reload(t, db, sched.ID)
	if !got.FinalizationSent || got.FinalizationSentAt == nil {
		t.Errorf("finalization flag not persisted: %+v", got)
	}
}

func TestDispatch_Finalization_NoCategorizationConfigured(t *testing.T) {
	db := openDispatchTestDB(t)
	sched := finalizableSchedule(t, db)
	gw := gateway.NewMockGateway()
	d := &Dispatcher{DB: db, Gateway: gw}

	if err := d.Dispatch(context.Background(), sched, testSetting(), StageFinalization); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if gw.CalledCount("CreateCategorization") != 0 {
		t.Errorf("categorization called without objective/outcome: %v", gw.Calls())
	}
}

func TestDispatch_Finalization_CategorizationFailureDoesNotBlock(t *testing.T) {
	db := openDispatchTestDB(t)
	sched := finalizableSchedule(t, db)
	gw := gateway.NewMockGateway()
	gw.FailCreateCategorization = errors.New("taxonomy service down")
	d := &Dispatcher{DB: db, Gateway: gw}

	cfg := testSetting()
	obj, out := "obj-1", "out-1"
	cfg.CategorizationObjectiveID = &obj
	cfg.CategorizationOutcomeID = &out

	if err := d.Dispatch(context.Background(), sched, cfg, StageFinalization); err != nil {
		t.Fatalf("Dispatch should swallow categorization failure, got: %v", err)
	}

	if gw.CalledCount("DispatchMessage") != 1 {
		t.Error("finalization message not dispatched after categorization failure")
	}
	if gw.CalledCount("DispatchEndConversation") != 1 {
		t.Error("end-conversation not dispatched after categorization failure")
	}
	got := reload(t, db, sched.ID)
	if !got.FinalizationSent {
		t.Error("FinalizationSent should be true despite categorization failure")
	}
}

func TestDispatch_SendFailureLeavesFlagUnset(t *testing.T) {
	db := openDispatchTestDB(t)
	sched := seedSchedule(t, db, models.Schedule{})
	gw := gateway.NewMockGateway()
	gw.FailDispatchMessage = errors.New("gateway timeout")
	d := &Dispatcher{DB: db, Gateway: gw}

	err := d.Dispatch(context.Background(), sched, testSetting(), StageInitial)
	if err == nil {
		t.Fatal("expected dispatch error")
	}

	// Flag persistence is the last step: a failed send must leave the
	// schedule evaluable by the next tick.
	got := reload(t, db, sched.ID)
	if got.InitialSent || got.InitialSentAt != nil {
		t.Errorf("flag persisted despite send failure: %+v", got)
	}
}

func TestDispatch_GetConversationFailure(t *testing.T) {
	db := openDispatchTestDB(t)
	sched := seedSchedule(t, db, models.Schedule{})
	gw := gateway.NewMockGateway()
	gw.FailGetConversation = errors.New("not found upstream")
	d := &Dispatcher{DB: db, Gateway: gw}

	if err := d.Dispatch(context.Background(), sched, testSetting(), StageInitial); err == nil {
		t.Fatal("expected error when conversation fetch fails")
	}
}

func TestDispatch_UnknownStage(t *testing.T) {
	db := openDispatchTestDB(t)
	sched := seedSchedule(t, db, models.Schedule{})
	d := &Dispatcher{DB: db, Gateway: gateway.NewMockGateway()}

	if err := d.Dispatch(context.Background(), sched, testSetting(), Stage("bogus")); err == nil {
		t.Fatal("expected error for unknown stage")
	}
}

func TestDispatch_UsesInjectedClock(t *testing.T) {
	db := openDispatchTestDB(t)
	sched := seedSchedule(t, db, models.Schedule{})
	gw := gateway.NewMockGateway()
	fixed := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	d := &Dispatcher{DB: db, Gateway: gw, Now: func() time.Time { return fixed }}

	if err := d.Dispatch(context.Background(), sched, testSetting(), StageInitial); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	got := reload(t, db, sched.ID)
	if got.InitialSentAt == nil || !got.InitialSentAt.Equal(fixed) {
		t.Errorf("InitialSentAt = %v, want %v", got.InitialSentAt, fixed)
	}
}
