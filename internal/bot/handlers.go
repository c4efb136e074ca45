package bot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jusunglee/hearth/internal/cooldown"
	"github.com/jusunglee/hearth/internal/db"
	"github.com/jusunglee/hearth/internal/notify"
	"github.com/jusunglee/hearth/internal/sanitize"
	"github.com/jusunglee/hearth/internal/welcome"
	"github.com/samber/lo"
)

const maxPremiumDays = 3650

var webhookHosts = []string{"discord.com", "discordapp.com", "canary.discord.com", "ptb.discord.com"}

func (b *Bot) handlePing(ctx context.Context, inv invocation) handlerResult {
	latency := b.session.HeartbeatLatency().Round(time.Millisecond)
	return handlerResult{Response: fmt.Sprintf("🏓 Pong! Gateway latency: %s", latency)}
}

func (b *Bot) handlePremiumStatus(ctx context.Context, inv invocation) handlerResult {
	premium, err := b.repo.GetPremium(ctx, inv.guildID)
	if db.IsNoRows(err) {
		return handlerResult{Response: "This server doesn't have premium. Premium servers get shorter command cooldowns."}
	}
	if err != nil {
		return handlerResult{
			Response: "❌ Failed to look up premium. Please try again later.",
			Err:      fmt.Errorf("get premium for %s: %w", inv.guildID, err),
		}
	}

	if !premium.Active(b.now()) {
		return handlerResult{Response: fmt.Sprintf("Premium (**%s**) expired <t:%d:R>.", premium.Tier, premium.ExpiresAt.Unix())}
	}
	discount := int(math.Round((1 - b.config.PremiumCooldownFactor) * 100))
	return handlerResult{Response: fmt.Sprintf("✨ This server has **%s** premium until <t:%d:F>. Cooldowns are %d%% shorter.",
		premium.Tier, premium.ExpiresAt.Unix(), discount)}
}

func (b *Bot) handlePremiumGrant(ctx context.Context, inv invocation) handlerResult {
	days := inv.integer("days", 30)
	if days < 1 || days > maxPremiumDays {
		return handlerResult{
			Response:  fmt.Sprintf("❌ Days must be between 1 and %d.", maxPremiumDays),
			Ephemeral: true,
			Err:       newUserError(fmt.Errorf("invalid premium days: %d", days)),
		}
	}
	tier := inv.str("tier")
	if tier == "" {
		tier = premiumTiers[0]
	}

	premium, err := b.repo.UpsertPremium(ctx, db.UpsertPremiumParams{
		GuildID:   inv.guildID,
		Tier:      tier,
		GrantedBy: inv.userID,
		ExpiresAt: b.now().Add(time.Duration(days) * 24 * time.Hour),
	})
	if err != nil {
		return handlerResult{
			Response: "❌ Failed to grant premium. Please try again later.",
			Err:      fmt.Errorf("upsert premium for %s: %w", inv.guildID, err),
		}
	}

	b.log.InfoContext(ctx, "premium granted", "guild_id", inv.guildID, "tier", tier, "days", days)
	name, _ := b.session.GuildInfo(inv.guildID)
	b.notifyGuild(ctx, inv.guildID, notify.Event{
		Kind:        notify.PremiumGranted,
		GuildID:     inv.guildID,
		Title:       "Premium granted",
		Description: fmt.Sprintf("**%s** now has %s premium for %d days.", lo.CoalesceOrEmpty(name, inv.guildID), tier, days),
	})
	return handlerResult{Response: fmt.Sprintf("✅ Granted **%s** premium until <t:%d:F>.", premium.Tier, premium.ExpiresAt.Unix())}
}

func (b *Bot) handleSettingsView(ctx context.Context, inv invocation) handlerResult {
	settings, err := b.repo.GetGuildSettings(ctx, inv.guildID)
	if err != nil && !db.IsNoRows(err) {
		return handlerResult{
			Response: "❌ Failed to load settings. Please try again later.",
			Err:      fmt.Errorf("get settings for %s: %w", inv.guildID, err),
		}
	}
	tpl, err := b.welcomeTemplate(ctx, inv.guildID)
	if err != nil {
		return handlerResult{
			Response: "❌ Failed to load settings. Please try again later.",
			Err:      err,
		}
	}

	channel := "not set"
	if settings.WelcomeChannelID.Valid && settings.WelcomeChannelID.String != "" {
		channel = "<#" + settings.WelcomeChannelID.String + ">"
	}
	webhook := "not set"
	if settings.LogWebhookURL.Valid && settings.LogWebhookURL.String != "" {
		webhook = "`" + sanitize.MaskSecret(settings.LogWebhookURL.String) + "`"
	}
	welcomeState := "off"
	if tpl.Enabled {
		welcomeState = "on"
	}

	return handlerResult{
		Ephemeral: true,
		Embed: &discordgo.MessageEmbed{
			Title: "Server settings",
			Color: welcome.DefaultColor,
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Welcome channel", Value: channel, Inline: true},
				{Name: "Welcome messages", Value: welcomeState, Inline: true},
				{Name: "Log webhook", Value: webhook},
			},
		},
	}
}

func (b *Bot) handleSettingsWelcomeChannel(ctx context.Context, inv invocation) handlerResult {
	channelID := inv.str("channel")
	if channelID == "" {
		return handlerResult{
			Response:  "❌ Pick a channel.",
			Ephemeral: true,
			Err:       newUserError(errors.New("missing channel")),
		}
	}

	_, err := b.repo.UpsertGuildSettings(ctx, db.UpsertGuildSettingsParams{
		GuildID:          inv.guildID,
		WelcomeChannelID: sql.NullString{String: channelID, Valid: true},
	})
	if err != nil {
		return handlerResult{
			Response: "❌ Failed to save settings. Please try again later.",
			Err:      fmt.Errorf("set welcome channel for %s: %w", inv.guildID, err),
		}
	}

	b.log.InfoContext(ctx, "welcome channel set", "guild_id", inv.guildID, "channel_id", channelID)
	return handlerResult{Response: fmt.Sprintf("✅ Welcome messages will be posted in <#%s>.", channelID)}
}

func (b *Bot) handleSettingsLogWebhook(ctx context.Context, inv invocation) handlerResult {
	raw := strings.TrimSpace(inv.str("url"))
	if !isWebhookURL(raw) {
		return handlerResult{
			Response:  "❌ That doesn't look like a Discord webhook URL (`https://discord.com/api/webhooks/...`).",
			Ephemeral: true,
			Err:       newUserError(errors.New("invalid webhook url")),
		}
	}

	_, err := b.repo.UpsertGuildSettings(ctx, db.UpsertGuildSettingsParams{
		GuildID:       inv.guildID,
		LogWebhookURL: sql.NullString{String: raw, Valid: true},
	})
	if err != nil {
		return handlerResult{
			Response:  "❌ Failed to save settings. Please try again later.",
			Ephemeral: true,
			Err:       fmt.Errorf("set log webhook for %s: %w", inv.guildID, err),
		}
	}

	b.log.InfoContext(ctx, "log webhook set", "guild_id", inv.guildID)
	return handlerResult{
		Response:  fmt.Sprintf("✅ Log webhook set to `%s`.", sanitize.MaskSecret(raw)),
		Ephemeral: true,
	}
}

func isWebhookURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" {
		return false
	}
	for _, host := range webhookHosts {
		if u.Host == host {
			return strings.HasPrefix(u.Path, "/api/webhooks/")
		}
	}
	return false
}

func (b *Bot) handleWelcomeSet(ctx context.Context, inv invocation) handlerResult {
	title := inv.str("title")
	body := inv.str("body")
	if err := welcome.ValidateTemplate(title, body); err != nil {
		return handlerResult{
			Response:  fmt.Sprintf("❌ Invalid template: %v\nAvailable tokens: `{user}` `{user.name}` `{user.id}` `{server}` `{server.id}` `{memberCount}`", err),
			Ephemeral: true,
			Err:       newUserError(err),
		}
	}

	color := int64(welcome.DefaultColor)
	if raw := inv.str("color"); raw != "" {
		parsed, err := strconv.ParseInt(strings.TrimPrefix(raw, "#"), 16, 32)
		if err != nil || parsed < 0 || parsed > 0xFFFFFF {
			return handlerResult{
				Response:  fmt.Sprintf("❌ Invalid color `%s`. Use a hex value like `#57F287`.", raw),
				Ephemeral: true,
				Err:       newUserError(fmt.Errorf("invalid color %q", raw)),
			}
		}
		color = parsed
	}

	tpl, err := b.repo.UpsertWelcomeTemplate(ctx, db.UpsertWelcomeTemplateParams{
		GuildID: inv.guildID,
		Title:   title,
		Body:    body,
		Color:   color,
		Enabled: true,
	})
	if err != nil {
		return handlerResult{
			Response: "❌ Failed to save the welcome message. Please try again later.",
			Err:      fmt.Errorf("upsert welcome template for %s: %w", inv.guildID, err),
		}
	}

	b.log.InfoContext(ctx, "welcome template updated", "guild_id", inv.guildID)
	return handlerResult{
		Response:  "✅ Welcome message saved. New members will see:",
		Embed:     welcome.Embed(tpl, b.welcomeVars(inv)),
		Ephemeral: true,
	}
}

func (b *Bot) handleWelcomePreview(ctx context.Context, inv invocation) handlerResult {
	tpl, err := b.welcomeTemplate(ctx, inv.guildID)
	if err != nil {
		return handlerResult{
			Response: "❌ Failed to load the welcome message. Please try again later.",
			Err:      err,
		}
	}

	response := "Here's how your welcome message looks:"
	if !tpl.Enabled {
		response = "Welcome messages are off. When turned on, new members will see:"
	}
	return handlerResult{
		Response:  response,
		Embed:     welcome.Embed(tpl, b.welcomeVars(inv)),
		Ephemeral: true,
	}
}

func (b *Bot) handleWelcomeToggle(ctx context.Context, inv invocation) handlerResult {
	enabled, ok := inv.boolean("enabled")
	if !ok {
		return handlerResult{
			Response:  "❌ Choose whether welcome messages are enabled.",
			Ephemeral: true,
			Err:       newUserError(errors.New("missing enabled option")),
		}
	}

	n, err := b.repo.SetWelcomeEnabled(ctx, inv.guildID, enabled)
	if err == nil && n == 0 {
		tpl := welcome.Default(inv.guildID)
		_, err = b.repo.UpsertWelcomeTemplate(ctx, db.UpsertWelcomeTemplateParams{
			GuildID: inv.guildID,
			Title:   tpl.Title,
			Body:    tpl.Body,
			Color:   tpl.Color,
			Enabled: enabled,
		})
	}
	if err != nil {
		return handlerResult{
			Response: "❌ Failed to update welcome messages. Please try again later.",
			Err:      fmt.Errorf("toggle welcome for %s: %w", inv.guildID, err),
		}
	}

	if enabled {
		return handlerResult{Response: "✅ Welcome messages are on."}
	}
	return handlerResult{Response: "✅ Welcome messages are off."}
}

func (b *Bot) handleCooldownStatus(ctx context.Context, inv invocation) handlerResult {
	command := inv.str("command")
	r, ok := b.routes[command]
	if !ok || b.baseCooldown(r) <= 0 {
		return handlerResult{
			Response:  fmt.Sprintf("❌ `/%s` doesn't have a cooldown.", command),
			Ephemeral: true,
			Err:       newUserError(fmt.Errorf("no cooldown for %q", command)),
		}
	}

	key := cooldownKey(inv.guildID, command)
	onCooldown, remaining := b.tracker.Check(key, inv.userID)
	if !onCooldown {
		return handlerResult{Response: fmt.Sprintf("✅ You can use `/%s` right now.", command), Ephemeral: true}
	}

	response := fmt.Sprintf("⏳ You can use `/%s` again in %s.", command, formatSeconds(cooldown.CeilSeconds(remaining)))
	if entry, ok := b.tracker.Entry(key, inv.userID); ok {
		response += fmt.Sprintf(" (cooldown: %s)", entry.Duration)
	}
	return handlerResult{Response: response, Ephemeral: true}
}

// handleCooldownReset clears cooldowns in the guild it runs in. Only the owner
// can reach past it: `all` empties the tracker and a user-only reset clears
// that user everywhere.
func (b *Bot) handleCooldownReset(ctx context.Context, inv invocation) handlerResult {
	userID := inv.str("user")
	command := inv.str("command")
	all, _ := inv.boolean("all")
	owner := b.permitted(accessOwner, inv)

	if command != "" {
		if r, ok := b.routes[command]; !ok || b.baseCooldown(r) <= 0 {
			return handlerResult{
				Response:  fmt.Sprintf("❌ `/%s` doesn't have a cooldown.", command),
				Ephemeral: true,
				Err:       newUserError(fmt.Errorf("no cooldown for %q", command)),
			}
		}
	}

	var response string
	switch {
	case all:
		if !owner {
			return handlerResult{
				Response:  "❌ Only the bot owner can clear every cooldown.",
				Ephemeral: true,
				Err:       newUserError(fmt.Errorf("cooldown reset all: %w", errForbidden)),
			}
		}
		b.tracker.ClearAll()
		response = "✅ Cleared every cooldown."
	case userID != "" && command != "":
		b.tracker.Set(cooldownKey(inv.guildID, command), userID, 0)
		response = fmt.Sprintf("✅ Cleared the `/%s` cooldown for <@%s>.", command, userID)
	case userID != "" && owner:
		b.tracker.ClearActor(userID)
		response = fmt.Sprintf("✅ Cleared all cooldowns for <@%s> everywhere.", userID)
	case userID != "":
		for _, path := range b.gatedCommands() {
			b.tracker.Set(cooldownKey(inv.guildID, path), userID, 0)
		}
		response = fmt.Sprintf("✅ Cleared all cooldowns for <@%s> in this server.", userID)
	case command != "":
		b.tracker.ClearAction(cooldownKey(inv.guildID, command))
		response = fmt.Sprintf("✅ Cleared the `/%s` cooldown for everyone here.", command)
	default:
		return handlerResult{
			Response:  "❌ Choose a user, a command, or `all`.",
			Ephemeral: true,
			Err:       newUserError(errors.New("cooldown reset without a target")),
		}
	}

	b.log.InfoContext(ctx, "cooldowns reset", "by", inv.userID, "guild_id", inv.guildID, "user_id", userID, "command", command, "all", all)
	return handlerResult{Response: response, Ephemeral: true}
}

func (b *Bot) handleCooldownStats(ctx context.Context, inv invocation) handlerResult {
	stats := b.tracker.Stats()
	return handlerResult{
		Ephemeral: true,
		Embed: &discordgo.MessageEmbed{
			Title: "Cooldown tracker",
			Color: welcome.DefaultColor,
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Tracked commands", Value: strconv.Itoa(stats.TrackedActions), Inline: true},
				{Name: "Active entries", Value: strconv.Itoa(stats.TotalActiveEntries), Inline: true},
				{Name: "Load factor", Value: fmt.Sprintf("%.1f%%", stats.LoadFactorPercent), Inline: true},
			},
		},
	}
}

// welcomeTemplate returns the guild's template, or the default when none is saved.
func (b *Bot) welcomeTemplate(ctx context.Context, guildID string) (db.WelcomeTemplate, error) {
	tpl, err := b.repo.GetWelcomeTemplate(ctx, guildID)
	if db.IsNoRows(err) {
		return welcome.Default(guildID), nil
	}
	if err != nil {
		return db.WelcomeTemplate{}, fmt.Errorf("get welcome template for %s: %w", guildID, err)
	}
	return tpl, nil
}

func (b *Bot) welcomeVars(inv invocation) welcome.Vars {
	name, count := b.session.GuildInfo(inv.guildID)
	return welcome.Vars{
		UserID:      inv.userID,
		UserName:    inv.userName,
		GuildID:     inv.guildID,
		GuildName:   name,
		MemberCount: count,
	}
}
