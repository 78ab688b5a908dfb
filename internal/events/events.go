// Package events defines the platform events that drive schedule
// lifecycle: a conversation entering an eligible state starts a run, a
// human taking over cancels it. Payloads are explicit typed events, not
// free-form maps.
package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chatwheel/followup/internal/schedule"
	"gorm.io/gorm"
)

// Type discriminates event payloads on the wire.
type Type string

const (
	TypeConversationCreated Type = "conversation_created"
	TypeHumanHandoff        Type = "human_handoff"
)

// Event is a platform event consumed by the schedule lifecycle.
type Event interface {
	EventType() Type
}

// ConversationCreated fires when a conversation enters an eligible state
// and should get a follow-up schedule.
type ConversationCreated struct {
	ConversationID string `json:"conversation_id"`
	WorkspaceID    string `json:"workspace_id"`
	SettingID      string `json:"setting_id"`
	TeamID         string `json:"team_id"`
}

// EventType implements Event.
func (ConversationCreated) EventType() Type { return TypeConversationCreated }

// HumanHandoff fires when a human agent takes over a conversation; any
// open schedule is stopped.
type HumanHandoff struct {
	ConversationID string `json:"conversation_id"`
	ActorID        string `json:"actor_id"`
}

// EventType implements Event.
func (HumanHandoff) EventType() Type { return TypeHumanHandoff }

// envelope carries the discriminator alongside the raw payload.
type envelope struct {
	Type Type `json:"type"`
}

// Decode parses a JSON event envelope into its concrete event type.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("events: decode envelope: %w", err)
	}

	switch env.Type {
	case TypeConversationCreated:
		var ev ConversationCreated
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("events: decode %s: %w", env.Type, err)
		}
		return ev, nil
	case TypeHumanHandoff:
		var ev HumanHandoff
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("events: decode %s: %w", env.Type, err)
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("events: unknown event type %q", env.Type)
	}
}

// Handle routes an event to the schedule lifecycle. A creation event for
// a conversation that already has an open schedule is a no-op, not an
// error — retried event deliveries must stay idempotent.
func Handle(db *gorm.DB, ev Event) error {
	switch e := ev.(type) {
	case ConversationCreated:
		_, err := schedule.Create(db, schedule.CreateOpts{
			ConversationID: e.ConversationID,
			WorkspaceID:    e.WorkspaceID,
			SettingID:      e.SettingID,
			TeamID:         e.TeamID,
		})
		if errors.Is(err, schedule.ErrAlreadyScheduled) {
			return nil
		}
		return err
	case HumanHandoff:
		return schedule.Stop(db, e.ConversationID, e.ActorID)
	default:
		return fmt.Errorf("events: no handler for %T", ev)
	}
}
