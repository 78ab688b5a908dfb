package dispatch

import (
	"time"

	"github.com/chatwheel/followup/internal/models"
)

// Stage is one ordered step of a staged follow-up run.
type Stage string

const (
	StageInitial      Stage = "initial"
	StageAutomatic    Stage = "automatic"
	StageFinalization Stage = "finalization"
)

// NextStage returns the next pending stage for a schedule, in order:
// initial, then automatic, then finalization. ok is false when the
// schedule is already finalized.
func NextStage(s *models.Schedule) (Stage, bool) {
	switch {
	case !s.InitialSent:
		return StageInitial, true
	case !s.AutomaticSent:
		return StageAutomatic, true
	case !s.FinalizationSent:
		return StageFinalization, true
	default:
		return "", false
	}
}

// Anchor returns the timestamp a stage's wait counts from: creation for
// initial, the previous stage's sent-at otherwise. ok is false when the
// anchor has not been recorded yet, which stage ordering normally rules
// out.
func Anchor(s *models.Schedule, st Stage) (time.Time, bool) {
	switch st {
	case StageInitial:
		return s.CreatedAt, true
	case StageAutomatic:
		if s.InitialSentAt == nil {
			return time.Time{}, false
		}
		return *s.InitialSentAt, true
	case StageFinalization:
		if s.AutomaticSentAt == nil {
			return time.Time{}, false
		}
		return *s.AutomaticSentAt, true
	default:
		return time.Time{}, false
	}
}

// Wait returns the configured wait before a stage fires.
func Wait(cfg *models.ScheduleSetting, st Stage) time.Duration {
	var minutes int
	switch st {
	case StageInitial:
		minutes = cfg.InitialWaitMinutes
	case StageAutomatic:
		minutes = cfg.AutomaticWaitMinutes
	case StageFinalization:
		minutes = cfg.FinalizationWaitMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// Message returns the configured message text for a stage.
func Message(cfg *models.ScheduleSetting, st Stage) string {
	switch st {
	case StageInitial:
		return cfg.InitialMessage
	case StageAutomatic:
		return cfg.AutomaticMessage
	case StageFinalization:
		return cfg.FinalizationMessage
	default:
		return ""
	}
}

// DueAt returns the instant a stage becomes due. ok is false when the
// stage's anchor is missing.
func DueAt(s *models.Schedule, cfg *models.ScheduleSetting, st Stage) (time.Time, bool) {
	anchor, ok := Anchor(s, st)
	if !ok {
		return time.Time{}, false
	}
	return anchor.Add(Wait(cfg, st)), true
}
