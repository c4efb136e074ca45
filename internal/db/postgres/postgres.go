package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jusunglee/hearth/internal/db"
)

//go:embed schema.sql
var schemaSQL string

// Repository implements db.Repository using PostgreSQL via pgx
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new PostgreSQL repository and applies the schema
func New(ctx context.Context, databaseURL string) (*Repository, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}

	// A guild bot only touches the database on settings commands and joins
	config.MaxConns = 5
	config.MinConns = 1
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 30 * time.Second
	config.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// PoolStats exposes pool counters for metrics
func (r *Repository) PoolStats() *pgxpool.Stat {
	return r.pool.Stat()
}

// Guild settings methods

func (r *Repository) GetGuildSettings(ctx context.Context, guildID string) (db.GuildSettings, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT guild_id, welcome_channel_id, log_webhook_url, created_at, updated_at
		FROM guild_settings
		WHERE guild_id = $1
	`, guildID)

	var s db.GuildSettings
	err := row.Scan(&s.GuildID, &s.WelcomeChannelID, &s.LogWebhookURL, &s.CreatedAt, &s.UpdatedAt)
	return s, noRows(err)
}

func (r *Repository) UpsertGuildSettings(ctx context.Context, arg db.UpsertGuildSettingsParams) (db.GuildSettings, error) {
	if err := db.CheckGuildID(arg.GuildID); err != nil {
		return db.GuildSettings{}, err
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO guild_settings (guild_id, welcome_channel_id, log_webhook_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (guild_id) DO UPDATE SET
			welcome_channel_id = COALESCE(EXCLUDED.welcome_channel_id, guild_settings.welcome_channel_id),
			log_webhook_url = COALESCE(EXCLUDED.log_webhook_url, guild_settings.log_webhook_url),
			updated_at = now()
		RETURNING guild_id, welcome_channel_id, log_webhook_url, created_at, updated_at
	`, arg.GuildID, arg.WelcomeChannelID, arg.LogWebhookURL)

	var s db.GuildSettings
	err := row.Scan(&s.GuildID, &s.WelcomeChannelID, &s.LogWebhookURL, &s.CreatedAt, &s.UpdatedAt)
	return s, noRows(err)
}

func (r *Repository) DeleteGuildSettings(ctx context.Context, guildID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM guild_settings WHERE guild_id = $1`, guildID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Premium methods

func (r *Repository) GetPremium(ctx context.Context, guildID string) (db.Premium, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT guild_id, tier, granted_by, expires_at, created_at
		FROM premium
		WHERE guild_id = $1
	`, guildID)

	var p db.Premium
	err := row.Scan(&p.GuildID, &p.Tier, &p.GrantedBy, &p.ExpiresAt, &p.CreatedAt)
	return p, noRows(err)
}

func (r *Repository) UpsertPremium(ctx context.Context, arg db.UpsertPremiumParams) (db.Premium, error) {
	if err := db.CheckGuildID(arg.GuildID); err != nil {
		return db.Premium{}, err
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO premium (guild_id, tier, granted_by, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (guild_id) DO UPDATE SET
			tier = EXCLUDED.tier,
			granted_by = EXCLUDED.granted_by,
			expires_at = EXCLUDED.expires_at
		RETURNING guild_id, tier, granted_by, expires_at, created_at
	`, arg.GuildID, arg.Tier, arg.GrantedBy, arg.ExpiresAt)

	var p db.Premium
	err := row.Scan(&p.GuildID, &p.Tier, &p.GrantedBy, &p.ExpiresAt, &p.CreatedAt)
	return p, noRows(err)
}

func (r *Repository) DeletePremium(ctx context.Context, guildID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM premium WHERE guild_id = $1`, guildID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) DeleteExpiredPremium(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM premium WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Welcome template methods

func (r *Repository) GetWelcomeTemplate(ctx context.Context, guildID string) (db.WelcomeTemplate, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT guild_id, title, body, color, enabled, updated_at
		FROM welcome_templates
		WHERE guild_id = $1
	`, guildID)

	var w db.WelcomeTemplate
	err := row.Scan(&w.GuildID, &w.Title, &w.Body, &w.Color, &w.Enabled, &w.UpdatedAt)
	return w, noRows(err)
}

func (r *Repository) UpsertWelcomeTemplate(ctx context.Context, arg db.UpsertWelcomeTemplateParams) (db.WelcomeTemplate, error) {
	if err := db.CheckGuildID(arg.GuildID); err != nil {
		return db.WelcomeTemplate{}, err
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO welcome_templates (guild_id, title, body, color, enabled)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (guild_id) DO UPDATE SET
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			color = EXCLUDED.color,
			enabled = EXCLUDED.enabled,
			updated_at = now()
		RETURNING guild_id, title, body, color, enabled, updated_at
	`, arg.GuildID, arg.Title, arg.Body, arg.Color, arg.Enabled)

	var w db.WelcomeTemplate
	err := row.Scan(&w.GuildID, &w.Title, &w.Body, &w.Color, &w.Enabled, &w.UpdatedAt)
	return w, noRows(err)
}

func (r *Repository) SetWelcomeEnabled(ctx context.Context, guildID string, enabled bool) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE welcome_templates SET enabled = $1, updated_at = now() WHERE guild_id = $2
	`, enabled, guildID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func noRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return db.ErrNoRows
	}
	return err
}
