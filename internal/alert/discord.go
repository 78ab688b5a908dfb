package alert

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// DiscordSink posts alerts to a Discord webhook. Webhook execution needs
// no bot token, so the session is created unauthenticated.
type DiscordSink struct {
	webhookID    string
	webhookToken string
	session      *discordgo.Session
}

// NewDiscordSink creates a Discord webhook sink.
func NewDiscordSink(webhookID, webhookToken string) (*DiscordSink, error) {
	if webhookID == "" || webhookToken == "" {
		return nil, fmt.Errorf("alert: discord webhook id and token are required")
	}
	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("alert: discord session: %w", err)
	}
	return &DiscordSink{
		webhookID:    webhookID,
		webhookToken: webhookToken,
		session:      session,
	}, nil
}

// Report executes the webhook with the alert text.
func (d *DiscordSink) Report(ctx context.Context, subject, detail string) error {
	params := &discordgo.WebhookParams{
		Content: fmt.Sprintf("**%s**\n%s", subject, detail),
	}
	if _, err := d.session.WebhookExecute(d.webhookID, d.webhookToken, false, params); err != nil {
		return fmt.Errorf("alert: discord webhook: %w", err)
	}
	return nil
}
