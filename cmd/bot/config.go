package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jusunglee/hearth/internal/cooldown"
	"github.com/jusunglee/hearth/internal/envsetup"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
)

type config struct {
	discordToken          string
	databaseURL           string
	guildID               string
	ownerID               string
	healthPort            int
	defaultCooldown       time.Duration
	premiumCooldownFactor float64
	premiumSweepInterval  time.Duration
	notifyWebhookURL      string
	notifyRate            float64
	setup                 bool
}

func parseConfig(args []string) (config, error) {
	fs := ff.NewFlagSet("hearth")
	var (
		discordToken          = fs.StringLong("discord-token", "", "Discord bot token")
		databaseURL           = fs.StringLong("database-url", envsetup.DefaultDatabaseURL, "SQLite path or PostgreSQL connection URL")
		guildID               = fs.StringLong("guild-id", "", "Register commands to this guild only (development)")
		ownerID               = fs.StringLong("owner-id", "", "Discord user ID allowed to run owner commands")
		healthPort            = fs.IntLong("health-port", 8080, "Port for /health, /metrics and /debug/cooldowns")
		defaultCooldown       = fs.DurationLong("default-cooldown", cooldown.DefaultDuration, "Cooldown for commands without their own")
		premiumCooldownFactor = fs.Float64Long("premium-cooldown-factor", 0.5, "Cooldown multiplier for premium guilds, in (0, 1]")
		premiumSweepInterval  = fs.DurationLong("premium-sweep-interval", time.Hour, "How often expired premium is removed")
		notifyWebhookURL      = fs.StringLong("notify-webhook-url", "", "Webhook for guild join/leave and failure events")
		notifyRate            = fs.Float64Long("notify-rate", 0.5, "Maximum webhook deliveries per second (0 disables throttling)")
		setup                 = fs.BoolLong("setup", "Run the setup wizard even if .env exists")
	)

	if err := ff.Parse(fs, args, ff.WithEnvVars()); err != nil {
		fmt.Printf("%s\n", ffhelp.Flags(fs))
		return config{}, fmt.Errorf("parsing flags: %w", err)
	}

	cfg := config{
		discordToken:          strings.TrimSpace(*discordToken),
		databaseURL:           *databaseURL,
		guildID:               *guildID,
		ownerID:               *ownerID,
		healthPort:            *healthPort,
		defaultCooldown:       *defaultCooldown,
		premiumCooldownFactor: *premiumCooldownFactor,
		premiumSweepInterval:  *premiumSweepInterval,
		notifyWebhookURL:      *notifyWebhookURL,
		notifyRate:            *notifyRate,
		setup:                 *setup,
	}
	return cfg, cfg.validate()
}

func (c config) validate() error {
	switch {
	case c.discordToken == "":
		return errors.New("discord-token is required")
	case c.databaseURL == "":
		return errors.New("database-url is required")
	case c.healthPort < 1 || c.healthPort > 65535:
		return fmt.Errorf("health-port %d out of range", c.healthPort)
	case c.defaultCooldown <= 0:
		return errors.New("default-cooldown must be positive")
	case c.premiumCooldownFactor <= 0 || c.premiumCooldownFactor > 1:
		return fmt.Errorf("premium-cooldown-factor %v must be in (0, 1]", c.premiumCooldownFactor)
	case c.premiumSweepInterval <= 0:
		return errors.New("premium-sweep-interval must be positive")
	case c.notifyRate < 0:
		return errors.New("notify-rate must not be negative")
	}
	return nil
}

func isPostgresURL(url string) bool {
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}
