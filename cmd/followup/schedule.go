package main

import (
	"fmt"
	"time"

	"github.com/chatwheel/followup/internal/schedule"
	"github.com/spf13/cobra"
)

func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect and manage follow-up schedules",
	}

	cmd.AddCommand(newScheduleCreateCmd())
	cmd.AddCommand(newScheduleStopCmd())
	cmd.AddCommand(newScheduleShowCmd())
	return cmd
}

func newScheduleCreateCmd() *cobra.Command {
	var (
		configPath  string
		workspaceID string
		settingID   string
		teamID      string
	)

	cmd := &cobra.Command{
		Use:   "create <conversation-id>",
		Short: "Create a follow-up schedule for a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			sched, err := schedule.Create(gormDB, schedule.CreateOpts{
				ConversationID: args[0],
				WorkspaceID:    workspaceID,
				SettingID:      settingID,
				TeamID:         teamID,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created schedule %s for conversation %s\n", sched.ID, sched.ConversationID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "followup.yaml", "path to Followup config file")
	cmd.Flags().StringVarP(&workspaceID, "workspace", "w", "", "workspace ID (required)")
	cmd.Flags().StringVarP(&settingID, "setting", "s", "", "setting ID (required)")
	cmd.Flags().StringVarP(&teamID, "team", "t", "", "team ID the conversation is assigned to")
	cmd.MarkFlagRequired("workspace")
	cmd.MarkFlagRequired("setting")
	return cmd
}

func newScheduleStopCmd() *cobra.Command {
	var (
		configPath string
		actorID    string
	)

	cmd := &cobra.Command{
		Use:   "stop <conversation-id>",
		Short: "Stop the open schedule for a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			if err := schedule.Stop(gormDB, args[0], actorID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped schedule for conversation %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "followup.yaml", "path to Followup config file")
	cmd.Flags().StringVarP(&actorID, "actor", "a", "", "ID of the actor requesting the stop")
	return cmd
}

func newScheduleShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Show the open schedule for a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			sched, err := schedule.LatestNonStopped(gormDB, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if sched == nil {
				fmt.Fprintf(out, "No open schedule for conversation %s\n", args[0])
				return nil
			}
			fmt.Fprintf(out, "Schedule %s (setting %s, created %s)\n",
				sched.ID, sched.SettingID, sched.CreatedAt.Format(time.RFC3339))
			fmt.Fprintf(out, "  initial:      %s\n", stageStatus(sched.InitialSent, sched.InitialSentAt))
			fmt.Fprintf(out, "  automatic:    %s\n", stageStatus(sched.AutomaticSent, sched.AutomaticSentAt))
			fmt.Fprintf(out, "  finalization: %s\n", stageStatus(sched.FinalizationSent, sched.FinalizationSentAt))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "followup.yaml", "path to Followup config file")
	return cmd
}

func stageStatus(sent bool, at *time.Time) string {
	if !sent {
		return "pending"
	}
	if at == nil {
		return "sent"
	}
	return "sent at " + at.Format(time.RFC3339)
}
