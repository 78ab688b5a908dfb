// Package config provides YAML-based configuration loading for Followup.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Followup configuration, loaded from followup.yaml.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	HTTP      HTTPConfig      `yaml:"http"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Settings  []SettingSeed   `yaml:"settings"`
}

// DatabaseConfig holds connection settings for the MySQL server.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// HTTPConfig holds settings for the event-intake HTTP server.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// SchedulerConfig holds settings for the periodic evaluation tick.
type SchedulerConfig struct {
	TickInterval     string `yaml:"tick_interval"`     // Go duration, default "1m"
	HeartbeatTimeout string `yaml:"heartbeat_timeout"` // Go duration, default "90s"
	RunnerID         string `yaml:"runner_id"`         // defaults to hostname
}

// GatewayConfig holds settings for the conversation platform API.
type GatewayConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

// AlertsConfig holds optional webhook destinations for tick error alerts.
// Unset destinations fall back to plain log output.
type AlertsConfig struct {
	SlackWebhookURL     string `yaml:"slack_webhook_url"`
	DiscordWebhookID    string `yaml:"discord_webhook_id"`
	DiscordWebhookToken string `yaml:"discord_webhook_token"`
}

// SettingSeed declares a ScheduleSetting row to upsert at `db init` time.
type SettingSeed struct {
	ID                        string   `yaml:"id"`
	WorkspaceID               string   `yaml:"workspace_id"`
	Active                    bool     `yaml:"active"`
	InitialWaitMinutes        int      `yaml:"initial_wait_minutes"`
	AutomaticWaitMinutes      int      `yaml:"automatic_wait_minutes"`
	FinalizationWaitMinutes   int      `yaml:"finalization_wait_minutes"`
	InitialMessage            string   `yaml:"initial_message"`
	AutomaticMessage          string   `yaml:"automatic_message"`
	FinalizationMessage       string   `yaml:"finalization_message"`
	AllowedTeamIDs            []string `yaml:"allowed_team_ids"`
	CategorizationObjectiveID string   `yaml:"categorization_objective_id"`
	CategorizationOutcomeID   string   `yaml:"categorization_outcome_id"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.User == "" {
		c.Database.User = "root"
	}
	if c.Database.Name == "" {
		c.Database.Name = "followup"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.Scheduler.TickInterval == "" {
		c.Scheduler.TickInterval = "1m"
	}
	if c.Scheduler.HeartbeatTimeout == "" {
		c.Scheduler.HeartbeatTimeout = "90s"
	}
	if c.Scheduler.RunnerID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "followup"
		}
		c.Scheduler.RunnerID = host
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Gateway.BaseURL == "" {
		errs = append(errs, "gateway.base_url is required")
	}
	if _, err := time.ParseDuration(c.Scheduler.TickInterval); err != nil {
		errs = append(errs, fmt.Sprintf("scheduler.tick_interval %q is not a valid duration", c.Scheduler.TickInterval))
	}
	if _, err := time.ParseDuration(c.Scheduler.HeartbeatTimeout); err != nil {
		errs = append(errs, fmt.Sprintf("scheduler.heartbeat_timeout %q is not a valid duration", c.Scheduler.HeartbeatTimeout))
	}
	for i, s := range c.Settings {
		if s.ID == "" {
			errs = append(errs, fmt.Sprintf("settings[%d].id is required", i))
		}
		if s.WorkspaceID == "" {
			errs = append(errs, fmt.Sprintf("settings[%d].workspace_id is required", i))
		}
		if s.InitialWaitMinutes < 0 || s.AutomaticWaitMinutes < 0 || s.FinalizationWaitMinutes < 0 {
			errs = append(errs, fmt.Sprintf("settings[%d]: wait minutes must be non-negative", i))
		}
		if (s.CategorizationObjectiveID == "") != (s.CategorizationOutcomeID == "") {
			errs = append(errs, fmt.Sprintf("settings[%d]: categorization objective and outcome must be set together", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// TickInterval returns the parsed scheduler tick interval.
func (c *Config) TickInterval() time.Duration {
	d, err := time.ParseDuration(c.Scheduler.TickInterval)
	if err != nil {
		return time.Minute
	}
	return d
}

// HeartbeatTimeout returns the parsed tick-lock heartbeat timeout.
func (c *Config) HeartbeatTimeout() time.Duration {
	d, err := time.ParseDuration(c.Scheduler.HeartbeatTimeout)
	if err != nil {
		return 90 * time.Second
	}
	return d
}
