package models

import "time"

// TickLock serializes the scheduler tick across service instances. Only
// the holder with a fresh heartbeat may run; stale holders are expired
// and replaced on the next acquisition attempt.
type TickLock struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	Name          string    `gorm:"size:64;not null;index"`
	HolderID      string    `gorm:"size:64;not null"`
	Status        string    `gorm:"size:16;default:active;index"` // active, released, expired
	LastHeartbeat time.Time `gorm:"index"`
	CreatedAt     time.Time
	ReleasedAt    *time.Time
}
