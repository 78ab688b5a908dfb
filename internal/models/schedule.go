package models

import "time"

// Schedule is one staged follow-up attempt bound to a conversation.
// Stage flags only ever move false→true, in order: initial, automatic,
// finalization. Stopped is absorbing. Rows are never deleted; a
// schedule retires by reaching finalization_sent or stopped.
type Schedule struct {
	ID             string `gorm:"primaryKey;size:32"`
	ConversationID string `gorm:"size:64;not null;index"`
	WorkspaceID    string `gorm:"size:64;index"`
	SettingID      string `gorm:"size:32;not null;index"`

	InitialSent   bool `gorm:"default:false"`
	InitialSentAt *time.Time

	AutomaticSent   bool `gorm:"default:false"`
	AutomaticSentAt *time.Time

	FinalizationSent   bool `gorm:"default:false;index"`
	FinalizationSentAt *time.Time

	Stopped          bool `gorm:"default:false;index"`
	StoppedAt        *time.Time
	StoppedByActorID *string `gorm:"size:64"`

	CreatedAt time.Time

	Setting ScheduleSetting `gorm:"foreignKey:SettingID"`
}
