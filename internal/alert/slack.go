package alert

import (
	"context"
	"fmt"

	slackapi "github.com/slack-go/slack"
)

// SlackSink posts alerts to a Slack incoming webhook.
type SlackSink struct {
	WebhookURL string
}

// Report posts the alert as a webhook message.
func (s *SlackSink) Report(ctx context.Context, subject, detail string) error {
	msg := &slackapi.WebhookMessage{
		Text: fmt.Sprintf(":warning: *%s*\n%s", subject, detail),
	}
	if err := slackapi.PostWebhookContext(ctx, s.WebhookURL, msg); err != nil {
		return fmt.Errorf("alert: slack webhook: %w", err)
	}
	return nil
}
