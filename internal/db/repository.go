package db

import (
	"context"
	"database/sql"
	"time"
)

// GuildSettings holds per-guild configuration
type GuildSettings struct {
	GuildID          string
	WelcomeChannelID sql.NullString
	LogWebhookURL    sql.NullString
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Premium marks a guild as premium until ExpiresAt
type Premium struct {
	GuildID   string
	Tier      string
	GrantedBy string
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (p Premium) Active(now time.Time) bool {
	return now.Before(p.ExpiresAt)
}

// WelcomeTemplate is the message sent when a member joins a guild
type WelcomeTemplate struct {
	GuildID   string
	Title     string
	Body      string
	Color     int64
	Enabled   bool
	UpdatedAt time.Time
}

// Parameter structs for repository methods

// UpsertGuildSettingsParams only overwrites fields that are Valid, so a caller
// can update one setting without clearing the other.
type UpsertGuildSettingsParams struct {
	GuildID          string
	WelcomeChannelID sql.NullString
	LogWebhookURL    sql.NullString
}

type UpsertPremiumParams struct {
	GuildID   string
	Tier      string
	GrantedBy string
	ExpiresAt time.Time
}

type UpsertWelcomeTemplateParams struct {
	GuildID string
	Title   string
	Body    string
	Color   int64
	Enabled bool
}

// Repository defines the interface for database operations
type Repository interface {
	// Guild settings
	GetGuildSettings(ctx context.Context, guildID string) (GuildSettings, error)
	UpsertGuildSettings(ctx context.Context, arg UpsertGuildSettingsParams) (GuildSettings, error)
	DeleteGuildSettings(ctx context.Context, guildID string) (int64, error)

	// Premium
	GetPremium(ctx context.Context, guildID string) (Premium, error)
	UpsertPremium(ctx context.Context, arg UpsertPremiumParams) (Premium, error)
	DeletePremium(ctx context.Context, guildID string) (int64, error)
	DeleteExpiredPremium(ctx context.Context, before time.Time) (int64, error)

	// Welcome templates
	GetWelcomeTemplate(ctx context.Context, guildID string) (WelcomeTemplate, error)
	UpsertWelcomeTemplate(ctx context.Context, arg UpsertWelcomeTemplateParams) (WelcomeTemplate, error)
	SetWelcomeEnabled(ctx context.Context, guildID string, enabled bool) (int64, error)

	Close() error
}
