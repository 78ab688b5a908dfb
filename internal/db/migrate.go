package db

import (
	"encoding/json"
	"fmt"

	"github.com/chatwheel/followup/internal/config"
	"github.com/chatwheel/followup/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.ScheduleSetting{},
		&models.Schedule{},
		&models.TickLock{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedSettings upserts ScheduleSetting rows from configuration.
func SeedSettings(db *gorm.DB, seeds []config.SettingSeed) error {
	for _, s := range seeds {
		teams, err := marshalJSON(s.AllowedTeamIDs)
		if err != nil {
			return fmt.Errorf("db: marshal allowed_team_ids for setting %q: %w", s.ID, err)
		}

		setting := models.ScheduleSetting{
			ID:                      s.ID,
			WorkspaceID:             s.WorkspaceID,
			Active:                  s.Active,
			InitialWaitMinutes:      s.InitialWaitMinutes,
			AutomaticWaitMinutes:    s.AutomaticWaitMinutes,
			FinalizationWaitMinutes: s.FinalizationWaitMinutes,
			InitialMessage:          s.InitialMessage,
			AutomaticMessage:        s.AutomaticMessage,
			FinalizationMessage:     s.FinalizationMessage,
			AllowedTeamIDs:          teams,
		}
		if s.CategorizationObjectiveID != "" && s.CategorizationOutcomeID != "" {
			setting.CategorizationObjectiveID = &s.CategorizationObjectiveID
			setting.CategorizationOutcomeID = &s.CategorizationOutcomeID
		}

		result := db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"workspace_id", "active",
				"initial_wait_minutes", "automatic_wait_minutes", "finalization_wait_minutes",
				"initial_message", "automatic_message", "finalization_message",
				"allowed_team_ids", "categorization_objective_id", "categorization_outcome_id",
			}),
		}).Create(&setting)
		if result.Error != nil {
			return fmt.Errorf("db: seed setting %q: %w", s.ID, result.Error)
		}
	}
	return nil
}

// marshalJSON marshals a value to a JSON string, returning empty string for nil.
func marshalJSON(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
