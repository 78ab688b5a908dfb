// Package dispatch executes the side effects of a stage transition:
// message send, tagging, categorization, conversation close, and the
// final stage-flag persistence.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/chatwheel/followup/internal/gateway"
	"github.com/chatwheel/followup/internal/models"
	"github.com/chatwheel/followup/internal/schedule"
	"github.com/chatwheel/followup/internal/setting"
	"gorm.io/gorm"
)

// The synthetic participant that authors every automated message.
const (
	SystemMemberID   = "followup-bot"
	SystemMemberName = "Follow-up"
	SystemMemberType = "system"
)

// CloseTypeBotFinished marks conversations closed by a completed run.
const CloseTypeBotFinished = "bot_finished"

var (
	engagedTag   = gateway.Tag{Name: "followup-engaged", Color: "#2eb67d"}
	finalizedTag = gateway.Tag{Name: "followup-finalized", Color: "#611f69"}
)

// Dispatcher performs stage transitions against the platform gateway and
// persists the resulting flags. Flag persistence is always the last step:
// a stage is never marked sent without the send having been attempted,
// which makes delivery at-least-once under crashes between send and mark.
type Dispatcher struct {
	DB      *gorm.DB
	Gateway gateway.ConversationGateway

	// Now is the clock used for sent-at stamps. Nil means time.Now.
	Now func() time.Time
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Dispatch runs the side effects for one stage of a schedule. cfg is the
// schedule's setting, resolved by the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, sched *models.Schedule, cfg *models.ScheduleSetting, st Stage) error {
	conv, err := d.Gateway.GetConversation(ctx, sched.ConversationID)
	if err != nil {
		return err
	}
	system, err := d.ensureSystemMember(ctx, conv)
	if err != nil {
		return err
	}

	switch st {
	case StageInitial:
		return d.dispatchInitial(ctx, sched, cfg, conv, system)
	case StageAutomatic:
		return d.dispatchAutomatic(ctx, sched, cfg, conv, system)
	case StageFinalization:
		return d.dispatchFinalization(ctx, sched, cfg, conv, system)
	default:
		return fmt.Errorf("dispatch: unknown stage %q", st)
	}
}

// ensureSystemMember adds the system participant to the conversation if
// absent and returns it.
func (d *Dispatcher) ensureSystemMember(ctx context.Context, conv *gateway.Conversation) (gateway.Member, error) {
	system := gateway.Member{ID: SystemMemberID, Name: SystemMemberName, Type: SystemMemberType}
	for _, m := range conv.Members {
		if m.ID == SystemMemberID {
			return system, nil
		}
	}
	if err := d.Gateway.AddMember(ctx, conv.ID, system); err != nil {
		return system, err
	}
	return system, nil
}

func (d *Dispatcher) dispatchInitial(ctx context.Context, sched *models.Schedule, cfg *models.ScheduleSetting, conv *gateway.Conversation, system gateway.Member) error {
	if err := d.Gateway.AddTags(ctx, conv.ID, []gateway.Tag{engagedTag}); err != nil {
		return err
	}
	if err := d.Gateway.MarkAutomationEngaged(ctx, conv.ID); err != nil {
		return err
	}
	if err := d.send(ctx, conv, system, Message(cfg, StageInitial)); err != nil {
		return err
	}
	return schedule.MarkInitialSent(d.DB, sched.ID, d.now())
}

func (d *Dispatcher) dispatchAutomatic(ctx context.Context, sched *models.Schedule, cfg *models.ScheduleSetting, conv *gateway.Conversation, system gateway.Member) error {
	if err := d.send(ctx, conv, system, Message(cfg, StageAutomatic)); err != nil {
		return err
	}
	return schedule.MarkAutomaticSent(d.DB, sched.ID, d.now())
}

func (d *Dispatcher) dispatchFinalization(ctx context.Context, sched *models.Schedule, cfg *models.ScheduleSetting, conv *gateway.Conversation, system gateway.Member) error {
	// Categorization is best-effort: a failure here must never block the
	// finalization message or the close.
	if setting.CategorizationEnabled(cfg) {
		opts := gateway.CategorizationOpts{
			ObjectiveID: *cfg.CategorizationObjectiveID,
			OutcomeID:   *cfg.CategorizationOutcomeID,
			TeamID:      conv.TeamID,
			Description: "closed automatically after staged follow-up",
		}
		if err := d.Gateway.CreateCategorization(ctx, sched.WorkspaceID, conv.ID, SystemMemberID, opts); err != nil {
			log.Printf("dispatch: categorization for %s failed: %v", conv.ID, err)
		}
	}

	if err := d.Gateway.AddTags(ctx, conv.ID, []gateway.Tag{finalizedTag}); err != nil {
		return err
	}
	if err := d.send(ctx, conv, system, Message(cfg, StageFinalization)); err != nil {
		return err
	}
	if err := d.Gateway.DispatchEndConversation(ctx, conv.ID, system, gateway.EndOpts{CloseType: CloseTypeBotFinished}); err != nil {
		return err
	}
	return schedule.MarkFinalizationSent(d.DB, sched.ID, d.now())
}

func (d *Dispatcher) send(ctx context.Context, conv *gateway.Conversation, from gateway.Member, text string) error {
	return d.Gateway.DispatchMessage(ctx, conv, gateway.Activity{
		ConversationID: conv.ID,
		From:           from,
		Text:           text,
	})
}
