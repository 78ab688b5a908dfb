package models

import "time"

// ScheduleSetting is the reusable per-workspace configuration for staged
// follow-up runs: how long to wait before each stage, what each stage
// says, and which teams may use it.
type ScheduleSetting struct {
	ID          string `gorm:"primaryKey;size:32"`
	WorkspaceID string `gorm:"size:64;not null;index"`
	Active      bool   `gorm:"default:true;index"`

	InitialWaitMinutes      int `gorm:"not null;default:0"`
	AutomaticWaitMinutes    int `gorm:"not null;default:0"`
	FinalizationWaitMinutes int `gorm:"not null;default:0"`

	InitialMessage      string `gorm:"type:text"`
	AutomaticMessage    string `gorm:"type:text"`
	FinalizationMessage string `gorm:"type:text"`

	// AllowedTeamIDs is a JSON array of team IDs. Empty means no
	// team restriction.
	AllowedTeamIDs string `gorm:"type:json"`

	// Both IDs must be present for finalization to auto-categorize.
	CategorizationObjectiveID *string `gorm:"size:64"`
	CategorizationOutcomeID   *string `gorm:"size:64"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
