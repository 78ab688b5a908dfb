package scheduler

import (
	"testing"
	"time"

	"github.com/chatwheel/followup/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openLockTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.TickLock{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func TestDBGate_FirstInstanceClaims(t *testing.T) {
	db := openLockTestDB(t)
	gate := &DBGate{DB: db, HolderID: "node-a"}

	ok, err := gate.ShouldRun()
	if err != nil {
		t.Fatalf("ShouldRun: %v", err)
	}
	if !ok {
		t.Fatal("first instance should claim the lock")
	}

	var lock models.TickLock
	if err := db.Where("name = ? AND status = ?", LockName, "active").First(&lock).Error; err != nil {
		t.Fatalf("lock row missing: %v", err)
	}
	if lock.HolderID != "node-a" {
		t.Errorf("HolderID = %q, want node-a", lock.HolderID)
	}
}

func TestDBGate_SecondInstanceDenied(t *testing.T) {
	db := openLockTestDB(t)
	a := &DBGate{DB: db, HolderID: "node-a"}
	b := &DBGate{DB: db, HolderID: "node-b"}

	if ok, _ := a.ShouldRun(); !ok {
		t.Fatal("node-a should claim")
	}
	ok, err := b.ShouldRun()
	if err != nil {
		t.Fatalf("ShouldRun: %v", err)
	}
	if ok {
		t.Fatal("node-b should be denied while node-a is fresh")
	}
}

func TestDBGate_HolderKeepsRunning(t *testing.T) {
	db := openLockTestDB(t)
	gate := &DBGate{DB: db, HolderID: "node-a"}

	if ok, _ := gate.ShouldRun(); !ok {
		t.Fatal("claim failed")
	}

	var before models.TickLock
	db.Where("name = ?", LockName).First(&before)

	time.Sleep(10 * time.Millisecond)

	ok, err := gate.ShouldRun()
	if err != nil {
		t.Fatalf("ShouldRun: %v", err)
	}
	if !ok {
		t.Fatal("holder should keep running")
	}

	var after models.TickLock
	db.Where("name = ?", LockName).First(&after)
	if !after.LastHeartbeat.After(before.LastHeartbeat) {
		t.Error("heartbeat should refresh on each run")
	}
}

func TestDBGate_StaleHolderReplaced(t *testing.T) {
	db := openLockTestDB(t)
	stale := models.TickLock{
		Name:          LockName,
		HolderID:      "node-dead",
		Status:        "active",
		LastHeartbeat: time.Now().Add(-5 * time.Minute),
	}
	db.Create(&stale)

	gate := &DBGate{DB: db, HolderID: "node-b", Timeout: 90 * time.Second}
	ok, err := gate.ShouldRun()
	if err != nil {
		t.Fatalf("ShouldRun: %v", err)
	}
	if !ok {
		t.Fatal("stale lock should be reclaimed")
	}

	var old models.TickLock
	db.First(&old, stale.ID)
	if old.Status != "expired" {
		t.Errorf("stale lock status = %q, want expired", old.Status)
	}
	if old.ReleasedAt == nil {
		t.Error("stale lock ReleasedAt should be set")
	}
}

func TestDBGate_ReleaseHandsOver(t *testing.T) {
	db := openLockTestDB(t)
	a := &DBGate{DB: db, HolderID: "node-a"}
	b := &DBGate{DB: db, HolderID: "node-b"}

	if ok, _ := a.ShouldRun(); !ok {
		t.Fatal("node-a claim failed")
	}
	if err := a.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	ok, err := b.ShouldRun()
	if err != nil {
		t.Fatalf("ShouldRun: %v", err)
	}
	if !ok {
		t.Fatal("node-b should claim after node-a released")
	}
}

func TestDBGate_MissingHolderID(t *testing.T) {
	db := openLockTestDB(t)
	gate := &DBGate{DB: db}

	if _, err := gate.ShouldRun(); err == nil {
		t.Fatal("expected error for missing holder ID")
	}
}

func TestAlwaysRun(t *testing.T) {
	ok, err := AlwaysRun{}.ShouldRun()
	if err != nil || !ok {
		t.Errorf("AlwaysRun = (%v, %v), want (true, nil)", ok, err)
	}
}
