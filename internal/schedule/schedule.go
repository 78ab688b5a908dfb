// Package schedule manages the lifecycle of staged follow-up schedules:
// creation with eligibility checks, external cancellation, the candidate
// query the tick evaluates, and the stage-flag persistence used by the
// dispatcher.
package schedule

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/chatwheel/followup/internal/models"
	"github.com/chatwheel/followup/internal/setting"
	"gorm.io/gorm"
)

// Validation errors surfaced synchronously to Create callers. These are
// never retried automatically.
var (
	ErrSettingNotFound          = errors.New("schedule: setting not found")
	ErrSettingWorkspaceMismatch = errors.New("schedule: setting belongs to another workspace")
	ErrSettingInactive          = errors.New("schedule: setting is inactive")
	ErrTeamNotAllowed           = errors.New("schedule: team not allowed by setting")
	ErrAlreadyScheduled         = errors.New("schedule: conversation already has an open schedule")
)

// CreateOpts holds parameters for creating a new schedule.
type CreateOpts struct {
	ConversationID string
	WorkspaceID    string
	SettingID      string
	TeamID         string // optional; checked against the setting's team list
}

// GenerateID creates a unique schedule ID in sch-xxxxx format (5-char hex).
func GenerateID() (string, error) {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("schedule: generate ID: %w", err)
	}
	return "sch-" + hex.EncodeToString(b)[:5], nil
}

// Create validates eligibility and persists a new schedule with all stage
// flags cleared. It sends nothing itself; the first message goes out when
// the tick later observes the initial wait has elapsed (which may be zero).
func Create(db *gorm.DB, opts CreateOpts) (*models.Schedule, error) {
	if opts.ConversationID == "" {
		return nil, fmt.Errorf("schedule: conversationID is required")
	}
	if opts.WorkspaceID == "" {
		return nil, fmt.Errorf("schedule: workspaceID is required")
	}
	if opts.SettingID == "" {
		return nil, fmt.Errorf("schedule: settingID is required")
	}

	st, err := setting.Get(db, opts.SettingID)
	if err != nil {
		if errors.Is(err, setting.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSettingNotFound, opts.SettingID)
		}
		return nil, err
	}
	if st.WorkspaceID != opts.WorkspaceID {
		return nil, fmt.Errorf("%w: setting %s is for workspace %s", ErrSettingWorkspaceMismatch, st.ID, st.WorkspaceID)
	}
	if !st.Active {
		return nil, fmt.Errorf("%w: %s", ErrSettingInactive, st.ID)
	}
	if opts.TeamID != "" {
		allowed, err := setting.TeamAllowed(st, opts.TeamID)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, fmt.Errorf("%w: team %s", ErrTeamNotAllowed, opts.TeamID)
		}
	}

	existing, err := LatestNonStopped(db, opts.ConversationID)
	if err != nil {
		return nil, err
	}
	if existing != nil && !existing.FinalizationSent {
		return nil, fmt.Errorf("%w: %s has %s", ErrAlreadyScheduled, opts.ConversationID, existing.ID)
	}

	id, err := generateUniqueID(db)
	if err != nil {
		return nil, err
	}

	sched := models.Schedule{
		ID:             id,
		ConversationID: opts.ConversationID,
		WorkspaceID:    opts.WorkspaceID,
		SettingID:      st.ID,
		CreatedAt:      time.Now(),
	}
	if err := db.Create(&sched).Error; err != nil {
		return nil, fmt.Errorf("schedule: create: %w", err)
	}
	return &sched, nil
}

// generateUniqueID generates an ID and retries on the unlikely collision.
func generateUniqueID(db *gorm.DB) (string, error) {
	for range 5 {
		id, err := GenerateID()
		if err != nil {
			return "", err
		}
		var count int64
		if err := db.Model(&models.Schedule{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return "", fmt.Errorf("schedule: check ID %s: %w", id, err)
		}
		if count == 0 {
			return id, nil
		}
	}
	return "", fmt.Errorf("schedule: could not generate a unique ID")
}

// Get retrieves a schedule by ID with its setting preloaded.
func Get(db *gorm.DB, id string) (*models.Schedule, error) {
	var s models.Schedule
	if err := db.Preload("Setting").Where("id = ?", id).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("schedule: not found: %s", id)
		}
		return nil, fmt.Errorf("schedule: get %s: %w", id, err)
	}
	return &s, nil
}

// LatestNonStopped returns the most recent non-stopped schedule for a
// conversation, or nil if none exists.
func LatestNonStopped(db *gorm.DB, conversationID string) (*models.Schedule, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("schedule: conversationID is required")
	}
	var s models.Schedule
	err := db.Where("conversation_id = ? AND stopped = ?", conversationID, false).
		Order("created_at DESC").First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("schedule: latest for %s: %w", conversationID, err)
	}
	return &s, nil
}

// Stop records external cancellation on the conversation's open schedule.
// It is a no-op when no open schedule exists, and performs no side effects
// beyond persistence.
func Stop(db *gorm.DB, conversationID, actorID string) error {
	s, err := LatestNonStopped(db, conversationID)
	if err != nil {
		return err
	}
	if s == nil {
		return nil
	}

	now := time.Now()
	updates := map[string]interface{}{
		"stopped":    true,
		"stopped_at": now,
	}
	if actorID != "" {
		updates["stopped_by_actor_id"] = actorID
	}
	result := db.Model(&models.Schedule{}).
		Where("id = ? AND stopped = ?", s.ID, false).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("schedule: stop %s: %w", s.ID, result.Error)
	}
	// RowsAffected 0 means a concurrent stop won; that is still a stop.
	return nil
}

// Candidates returns schedules the tick should evaluate: not finalized,
// not stopped, and bound to an active setting. The setting comes back
// preloaded so the tick can compute due times without extra queries.
func Candidates(db *gorm.DB) ([]models.Schedule, error) {
	var scheds []models.Schedule
	err := db.Model(&models.Schedule{}).
		Joins("Setting").
		Where("schedules.finalization_sent = ? AND schedules.stopped = ? AND Setting.active = ?",
			false, false, true).
		Order("schedules.created_at ASC").
		Find(&scheds).Error
	if err != nil {
		return nil, fmt.Errorf("schedule: candidates: %w", err)
	}
	return scheds, nil
}

// MarkInitialSent flips the initial flag and stamps its timestamp. The
// guarded UPDATE means the timestamp is set exactly once; a second call
// for the same schedule is an error.
func MarkInitialSent(db *gorm.DB, id string, at time.Time) error {
	result := db.Model(&models.Schedule{}).
		Where("id = ? AND initial_sent = ?", id, false).
		Updates(map[string]interface{}{
			"initial_sent":    true,
			"initial_sent_at": at,
		})
	return markResult("initial", id, result)
}

// MarkAutomaticSent flips the automatic flag. The initial flag must
// already be set, preserving stage ordering.
func MarkAutomaticSent(db *gorm.DB, id string, at time.Time) error {
	result := db.Model(&models.Schedule{}).
		Where("id = ? AND automatic_sent = ? AND initial_sent = ?", id, false, true).
		Updates(map[string]interface{}{
			"automatic_sent":    true,
			"automatic_sent_at": at,
		})
	return markResult("automatic", id, result)
}

// MarkFinalizationSent flips the terminal flag. The automatic flag must
// already be set, preserving stage ordering.
func MarkFinalizationSent(db *gorm.DB, id string, at time.Time) error {
	result := db.Model(&models.Schedule{}).
		Where("id = ? AND finalization_sent = ? AND automatic_sent = ?", id, false, true).
		Updates(map[string]interface{}{
			"finalization_sent":    true,
			"finalization_sent_at": at,
		})
	return markResult("finalization", id, result)
}

func markResult(stage, id string, result *gorm.DB) error {
	if result.Error != nil {
		return fmt.Errorf("schedule: mark %s sent for %s: %w", stage, id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("schedule: mark %s sent for %s: already marked or out of order", stage, id)
	}
	return nil
}
