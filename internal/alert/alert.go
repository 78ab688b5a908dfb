// Package alert delivers operational alerts from the scheduler tick to
// chat webhooks. Delivery is best-effort: a broken sink never affects
// the tick itself.
package alert

import (
	"context"
	"log"

	"github.com/chatwheel/followup/internal/config"
)

// Sink receives tick error reports.
type Sink interface {
	Report(ctx context.Context, subject, detail string) error
}

// LogSink writes reports to the process log. It is the fallback when no
// webhook is configured.
type LogSink struct{}

// Report logs the alert.
func (LogSink) Report(ctx context.Context, subject, detail string) error {
	log.Printf("alert: %s: %s", subject, detail)
	return nil
}

// MultiSink fans a report out to every sink, logging individual failures.
type MultiSink []Sink

// Report delivers to all sinks. Always returns nil; per-sink failures
// are logged.
func (m MultiSink) Report(ctx context.Context, subject, detail string) error {
	for _, s := range m {
		if err := s.Report(ctx, subject, detail); err != nil {
			log.Printf("alert: sink %T failed: %v", s, err)
		}
	}
	return nil
}

// FromConfig builds a sink from the alerts configuration. Configured
// webhooks are combined; with none configured the log sink is used.
func FromConfig(cfg config.AlertsConfig) Sink {
	var sinks MultiSink
	if cfg.SlackWebhookURL != "" {
		sinks = append(sinks, &SlackSink{WebhookURL: cfg.SlackWebhookURL})
	}
	if cfg.DiscordWebhookID != "" && cfg.DiscordWebhookToken != "" {
		ds, err := NewDiscordSink(cfg.DiscordWebhookID, cfg.DiscordWebhookToken)
		if err != nil {
			log.Printf("alert: discord sink disabled: %v", err)
		} else {
			sinks = append(sinks, ds)
		}
	}
	if len(sinks) == 0 {
		return LogSink{}
	}
	return sinks
}
