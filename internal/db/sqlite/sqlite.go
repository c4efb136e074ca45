package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jusunglee/hearth/internal/db"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Fixed width so timestamps compare correctly as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Repository implements db.Repository using SQLite
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (or creates) the SQLite database at dbPath and applies the schema
func New(ctx context.Context, dbPath string) (*Repository, error) {
	// Strip sqlite:// prefix if present
	dbPath = strings.TrimPrefix(dbPath, "sqlite://")

	sqliteDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening SQLite database: %w", err)
	}

	// SQLite serialises writers anyway, and ":memory:" is per connection.
	sqliteDB.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance
	if _, err := sqliteDB.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		sqliteDB.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := sqliteDB.ExecContext(ctx, schemaSQL); err != nil {
		sqliteDB.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	slog.Debug("opened SQLite database", "path", dbPath)

	return &Repository{db: sqliteDB, now: time.Now}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// Guild settings methods

func (r *Repository) GetGuildSettings(ctx context.Context, guildID string) (db.GuildSettings, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT guild_id, welcome_channel_id, log_webhook_url, created_at, updated_at
		FROM guild_settings
		WHERE guild_id = ?
	`, guildID)

	return scanGuildSettings(row)
}

func (r *Repository) UpsertGuildSettings(ctx context.Context, arg db.UpsertGuildSettingsParams) (db.GuildSettings, error) {
	if err := db.CheckGuildID(arg.GuildID); err != nil {
		return db.GuildSettings{}, err
	}

	now := formatTime(r.now())
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO guild_settings (guild_id, welcome_channel_id, log_webhook_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (guild_id) DO UPDATE SET
			welcome_channel_id = COALESCE(excluded.welcome_channel_id, guild_settings.welcome_channel_id),
			log_webhook_url = COALESCE(excluded.log_webhook_url, guild_settings.log_webhook_url),
			updated_at = excluded.updated_at
	`, arg.GuildID, arg.WelcomeChannelID, arg.LogWebhookURL, now, now)
	if err != nil {
		return db.GuildSettings{}, err
	}

	return r.GetGuildSettings(ctx, arg.GuildID)
}

func (r *Repository) DeleteGuildSettings(ctx context.Context, guildID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM guild_settings WHERE guild_id = ?`, guildID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Premium methods

func (r *Repository) GetPremium(ctx context.Context, guildID string) (db.Premium, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT guild_id, tier, granted_by, expires_at, created_at
		FROM premium
		WHERE guild_id = ?
	`, guildID)

	return scanPremium(row)
}

func (r *Repository) UpsertPremium(ctx context.Context, arg db.UpsertPremiumParams) (db.Premium, error) {
	if err := db.CheckGuildID(arg.GuildID); err != nil {
		return db.Premium{}, err
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO premium (guild_id, tier, granted_by, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (guild_id) DO UPDATE SET
			tier = excluded.tier,
			granted_by = excluded.granted_by,
			expires_at = excluded.expires_at
	`, arg.GuildID, arg.Tier, arg.GrantedBy, formatTime(arg.ExpiresAt), formatTime(r.now()))
	if err != nil {
		return db.Premium{}, err
	}

	return r.GetPremium(ctx, arg.GuildID)
}

func (r *Repository) DeletePremium(ctx context.Context, guildID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM premium WHERE guild_id = ?`, guildID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *Repository) DeleteExpiredPremium(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM premium WHERE expires_at <= ?`, formatTime(before))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Welcome template methods

func (r *Repository) GetWelcomeTemplate(ctx context.Context, guildID string) (db.WelcomeTemplate, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT guild_id, title, body, color, enabled, updated_at
		FROM welcome_templates
		WHERE guild_id = ?
	`, guildID)

	return scanWelcomeTemplate(row)
}

func (r *Repository) UpsertWelcomeTemplate(ctx context.Context, arg db.UpsertWelcomeTemplateParams) (db.WelcomeTemplate, error) {
	if err := db.CheckGuildID(arg.GuildID); err != nil {
		return db.WelcomeTemplate{}, err
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO welcome_templates (guild_id, title, body, color, enabled, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (guild_id) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			color = excluded.color,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`, arg.GuildID, arg.Title, arg.Body, arg.Color, arg.Enabled, formatTime(r.now()))
	if err != nil {
		return db.WelcomeTemplate{}, err
	}

	return r.GetWelcomeTemplate(ctx, arg.GuildID)
}

func (r *Repository) SetWelcomeEnabled(ctx context.Context, guildID string, enabled bool) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE welcome_templates SET enabled = ?, updated_at = ? WHERE guild_id = ?
	`, enabled, formatTime(r.now()), guildID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Helpers

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeFormat, s)
	return t
}

func scanGuildSettings(row *sql.Row) (db.GuildSettings, error) {
	var s db.GuildSettings
	var createdAtStr, updatedAtStr string
	err := row.Scan(&s.GuildID, &s.WelcomeChannelID, &s.LogWebhookURL, &createdAtStr, &updatedAtStr)
	if errors.Is(err, sql.ErrNoRows) {
		return db.GuildSettings{}, db.ErrNoRows
	}
	if err != nil {
		return db.GuildSettings{}, err
	}
	s.CreatedAt = parseTime(createdAtStr)
	s.UpdatedAt = parseTime(updatedAtStr)
	return s, nil
}

func scanPremium(row *sql.Row) (db.Premium, error) {
	var p db.Premium
	var expiresAtStr, createdAtStr string
	err := row.Scan(&p.GuildID, &p.Tier, &p.GrantedBy, &expiresAtStr, &createdAtStr)
	if errors.Is(err, sql.ErrNoRows) {
		return db.Premium{}, db.ErrNoRows
	}
	if err != nil {
		return db.Premium{}, err
	}
	p.ExpiresAt = parseTime(expiresAtStr)
	p.CreatedAt = parseTime(createdAtStr)
	return p, nil
}

func scanWelcomeTemplate(row *sql.Row) (db.WelcomeTemplate, error) {
	var w db.WelcomeTemplate
	var updatedAtStr string
	err := row.Scan(&w.GuildID, &w.Title, &w.Body, &w.Color, &w.Enabled, &updatedAtStr)
	if errors.Is(err, sql.ErrNoRows) {
		return db.WelcomeTemplate{}, db.ErrNoRows
	}
	if err != nil {
		return db.WelcomeTemplate{}, err
	}
	w.UpdatedAt = parseTime(updatedAtStr)
	return w, nil
}
