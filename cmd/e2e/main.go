package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	"github.com/jusunglee/hearth/internal/bot"
	"github.com/jusunglee/hearth/internal/cooldown"
	"github.com/jusunglee/hearth/internal/db"
	"github.com/jusunglee/hearth/internal/db/sqlite"
	"github.com/jusunglee/hearth/internal/logger"
	"github.com/jusunglee/hearth/internal/notify"
)

func main() {
	if err := run(); err != nil {
		slog.Error("E2E FAILED", "error", err)
		os.Exit(1)
	}
	slog.Info("E2E PASSED")
}

func run() error {
	_ = godotenv.Load()

	discordToken := requireEnv("DISCORD_TOKEN")
	channelID := requireEnv("E2E_DISCORD_CHANNEL_ID")
	guildID := requireEnv("E2E_DISCORD_GUILD_ID")

	log := logger.New()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// Phase 1: temp DB seeded with a welcome channel and template
	log.Info("Phase 1: Setting up DB...")
	dbPath := fmt.Sprintf("/tmp/hearth-e2e-%d.db", time.Now().UnixNano())
	defer os.Remove(dbPath)

	repo, err := sqlite.New(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("creating temp SQLite: %w", err)
	}
	defer repo.Close()

	if _, err := repo.UpsertGuildSettings(ctx, db.UpsertGuildSettingsParams{
		GuildID:          guildID,
		WelcomeChannelID: sql.NullString{String: channelID, Valid: true},
	}); err != nil {
		return fmt.Errorf("seeding guild settings: %w", err)
	}
	marker := fmt.Sprintf("e2e-%d", time.Now().UnixNano())
	if _, err := repo.UpsertWelcomeTemplate(ctx, db.UpsertWelcomeTemplateParams{
		GuildID: guildID,
		Title:   "Welcome to {server}",
		Body:    "Hello {user}, you are member #{memberCount}. " + marker,
		Color:   0x57F287,
		Enabled: true,
	}); err != nil {
		return fmt.Errorf("seeding welcome template: %w", err)
	}
	log.Info("Phase 1 complete", "db", dbPath)

	// Phase 2: connect so the state cache has the guild
	log.Info("Phase 2: Connecting to Discord...")
	dg, err := discordgo.New("Bot " + discordToken)
	if err != nil {
		return fmt.Errorf("creating Discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds
	if err := dg.Open(); err != nil {
		return fmt.Errorf("opening Discord session: %w", err)
	}
	defer dg.Close()
	if err := waitForGuild(ctx, dg, guildID); err != nil {
		return err
	}

	tracker := cooldown.New()
	defer tracker.ClearAll()
	b := bot.New(bot.NewLogger(log), bot.NewDiscordSession(dg), repo, tracker, notify.New("", 0), bot.Config{GuildID: guildID})
	log.Info("Phase 2 complete", "bot_user", dg.State.User.Username)

	// Phase 3: post a welcome for the bot's own member
	log.Info("Phase 3: Sending welcome message...")
	member := &discordgo.Member{GuildID: guildID, User: dg.State.User}
	sent, err := b.SendWelcome(ctx, member)
	if err != nil {
		return fmt.Errorf("sending welcome: %w", err)
	}
	if !sent {
		return errors.New("welcome was skipped despite seeded settings")
	}

	// Phase 4: find the message and check the rendered embed
	log.Info("Phase 4: Verifying message...")
	msgs, err := dg.ChannelMessages(channelID, 10, "", "", "")
	if err != nil {
		return fmt.Errorf("fetching channel messages: %w", err)
	}
	var found *discordgo.Message
	for _, m := range msgs {
		if m.Author != nil && m.Author.ID == dg.State.User.ID && len(m.Embeds) > 0 && strings.Contains(m.Embeds[0].Description, marker) {
			found = m
			break
		}
	}
	if found == nil {
		return errors.New("welcome message not found in channel")
	}
	defer func() {
		if err := dg.ChannelMessageDelete(channelID, found.ID); err != nil {
			log.Warn("failed to delete test message", "message_id", found.ID, "error", err)
		}
	}()

	embed := found.Embeds[0]
	if strings.Contains(embed.Title, "{server}") || strings.Contains(embed.Description, "{user}") || strings.Contains(embed.Description, "{memberCount}") {
		return fmt.Errorf("placeholders not rendered: title=%q description=%q", embed.Title, embed.Description)
	}
	if !strings.Contains(found.Content, dg.State.User.ID) {
		return fmt.Errorf("message does not mention the member: %q", found.Content)
	}
	log.Info("Phase 4 complete", "message_id", found.ID, "title", embed.Title)

	// Phase 5: cooldown entries expire on the wall clock without a lookup
	log.Info("Phase 5: Checking cooldown expiry...")
	tracker.Set("welcome preview", dg.State.User.ID, time.Second)
	if onCooldown, _ := tracker.Check("welcome preview", dg.State.User.ID); !onCooldown {
		return errors.New("cooldown not active right after set")
	}
	time.Sleep(1500 * time.Millisecond)
	if stats := tracker.Stats(); stats.TotalActiveEntries != 0 {
		return fmt.Errorf("expected expired entry to be removed, stats=%+v", stats)
	}
	log.Info("Phase 5 complete")

	return nil
}

// waitForGuild blocks until the gateway has delivered GuildCreate for guildID.
func waitForGuild(ctx context.Context, dg *discordgo.Session, guildID string) error {
	for {
		if _, err := dg.State.Guild(guildID); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("guild %s never became available: %w", guildID, ctx.Err())
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("missing required env var", "key", key)
		os.Exit(1)
	}
	return v
}
