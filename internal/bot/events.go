package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jusunglee/hearth/internal/db"
	"github.com/jusunglee/hearth/internal/metrics"
	"github.com/jusunglee/hearth/internal/notify"
	"github.com/jusunglee/hearth/internal/welcome"
)

func (b *Bot) handleMemberAdd(ctx context.Context, m *discordgo.GuildMemberAdd) {
	if m.Member == nil || m.User == nil || m.User.Bot {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	sent, err := b.SendWelcome(ctx, m.Member)
	result := "skipped"
	switch {
	case err != nil:
		result = "error"
		b.log.ErrorContext(ctx, "sending welcome message", "guild_id", m.GuildID, "user_id", m.User.ID, "error", err)
	case sent:
		result = "sent"
	}
	metrics.WelcomeMessagesTotal.WithLabelValues(result).Inc()
}

// SendWelcome posts the guild's welcome embed for member. It reports false
// without error when the guild has no welcome channel or has turned welcomes off.
func (b *Bot) SendWelcome(ctx context.Context, member *discordgo.Member) (bool, error) {
	settings, err := b.repo.GetGuildSettings(ctx, member.GuildID)
	if db.IsNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get settings: %w", err)
	}
	if !settings.WelcomeChannelID.Valid || settings.WelcomeChannelID.String == "" {
		return false, nil
	}

	tpl, err := b.welcomeTemplate(ctx, member.GuildID)
	if err != nil {
		return false, err
	}
	if !tpl.Enabled {
		return false, nil
	}

	name, count := b.session.GuildInfo(member.GuildID)
	embed := welcome.Embed(tpl, welcome.Vars{
		UserID:      member.User.ID,
		UserName:    member.User.Username,
		GuildID:     member.GuildID,
		GuildName:   name,
		MemberCount: count,
	})

	_, err = b.session.ChannelMessageSendComplex(settings.WelcomeChannelID.String, &discordgo.MessageSend{
		Content: "<@" + member.User.ID + ">",
		Embeds:  []*discordgo.MessageEmbed{embed},
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Users: []string{member.User.ID},
		},
	})
	if err != nil {
		return false, fmt.Errorf("send to channel %s: %w", settings.WelcomeChannelID.String, err)
	}

	b.log.InfoContext(ctx, "welcome message sent", "guild_id", member.GuildID, "user_id", member.User.ID)
	return true, nil
}

// handleGuildCreate only reports guilds joined after startup. Discord replays
// GuildCreate for every existing guild when the gateway connects.
func (b *Bot) handleGuildCreate(ctx context.Context, g *discordgo.GuildCreate) {
	if g.Guild == nil || g.Unavailable || !g.JoinedAt.After(b.startedAt) {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	b.log.InfoContext(ctx, "joined guild", "guild_id", g.ID, "name", g.Name, "members", g.MemberCount)
	err := b.notifier.Notify(ctx, notify.Event{
		Kind:        notify.GuildJoined,
		GuildID:     g.ID,
		Title:       "Joined " + g.Name,
		Description: fmt.Sprintf("%d members", g.MemberCount),
	})
	if err != nil {
		b.log.WarnContext(ctx, "notification failed", "event", notify.GuildJoined, "guild_id", g.ID, "error", err)
	}
}

// handleGuildDelete drops a guild's settings once the bot is removed from it.
// Unavailable guilds are outages, not removals.
func (b *Bot) handleGuildDelete(ctx context.Context, g *discordgo.GuildDelete) {
	if g.Guild == nil || g.Unavailable {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	name := g.ID
	if g.BeforeDelete != nil && g.BeforeDelete.Name != "" {
		name = g.BeforeDelete.Name
	}
	b.log.InfoContext(ctx, "left guild", "guild_id", g.ID, "name", name)

	if _, err := b.repo.DeleteGuildSettings(ctx, g.ID); err != nil {
		b.log.ErrorContext(ctx, "deleting guild settings", "guild_id", g.ID, "error", err)
	}

	err := b.notifier.Notify(ctx, notify.Event{
		Kind:    notify.GuildLeft,
		GuildID: g.ID,
		Title:   "Left " + name,
	})
	if err != nil {
		b.log.WarnContext(ctx, "notification failed", "event", notify.GuildLeft, "guild_id", g.ID, "error", err)
	}
}
