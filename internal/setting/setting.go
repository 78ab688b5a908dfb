// Package setting reads staged follow-up configuration.
package setting

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chatwheel/followup/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned when no setting exists for the given ID.
var ErrNotFound = errors.New("setting: not found")

// Get retrieves a setting by ID.
func Get(db *gorm.DB, id string) (*models.ScheduleSetting, error) {
	if id == "" {
		return nil, fmt.Errorf("setting: id is required")
	}
	var s models.ScheduleSetting
	if err := db.Where("id = ?", id).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("setting: get %s: %w", id, err)
	}
	return &s, nil
}

// List returns all settings for a workspace, newest first.
func List(db *gorm.DB, workspaceID string) ([]models.ScheduleSetting, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("setting: workspaceID is required")
	}
	var settings []models.ScheduleSetting
	if err := db.Where("workspace_id = ?", workspaceID).
		Order("created_at DESC").Find(&settings).Error; err != nil {
		return nil, fmt.Errorf("setting: list for %s: %w", workspaceID, err)
	}
	return settings, nil
}

// AllowedTeams decodes the JSON team list. An empty column means no
// restriction and decodes to an empty slice.
func AllowedTeams(s *models.ScheduleSetting) ([]string, error) {
	raw := s.AllowedTeamIDs
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var teams []string
	if err := json.Unmarshal([]byte(raw), &teams); err != nil {
		return nil, fmt.Errorf("setting: decode allowed_team_ids for %s: %w", s.ID, err)
	}
	return teams, nil
}

// TeamAllowed reports whether teamID may use this setting. An empty team
// list allows every team; an empty teamID is always allowed.
func TeamAllowed(s *models.ScheduleSetting, teamID string) (bool, error) {
	teams, err := AllowedTeams(s)
	if err != nil {
		return false, err
	}
	if len(teams) == 0 || teamID == "" {
		return true, nil
	}
	for _, t := range teams {
		if t == teamID {
			return true, nil
		}
	}
	return false, nil
}

// CategorizationEnabled reports whether finalization should create a
// categorization record. Both IDs must be present.
func CategorizationEnabled(s *models.ScheduleSetting) bool {
	return s.CategorizationObjectiveID != nil && *s.CategorizationObjectiveID != "" &&
		s.CategorizationOutcomeID != nil && *s.CategorizationOutcomeID != ""
}
