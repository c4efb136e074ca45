package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jusunglee/hearth/internal/cooldown"
	"github.com/jusunglee/hearth/internal/db"
	"github.com/jusunglee/hearth/internal/metrics"
	"github.com/jusunglee/hearth/internal/notify"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	// GuildID registers commands to a single guild instead of globally.
	GuildID string
	OwnerID string
	// DefaultCooldown gates routes that don't name their own duration.
	DefaultCooldown time.Duration
	// PremiumCooldownFactor scales cooldowns in guilds with active premium.
	PremiumCooldownFactor float64
	PremiumSweepInterval  time.Duration
	StatsInterval         time.Duration
}

type Bot struct {
	log       Logger
	session   DiscordSession
	repo      db.Repository
	tracker   *cooldown.Tracker
	notifier  Notifier
	config    Config
	routes    map[string]route
	now       func() time.Time
	startedAt time.Time
}

func New(
	log Logger,
	session DiscordSession,
	repo db.Repository,
	tracker *cooldown.Tracker,
	notifier Notifier,
	config Config,
) *Bot {
	if config.DefaultCooldown <= 0 {
		config.DefaultCooldown = cooldown.DefaultDuration
	}
	if config.PremiumCooldownFactor <= 0 || config.PremiumCooldownFactor > 1 {
		config.PremiumCooldownFactor = 1
	}
	if config.PremiumSweepInterval <= 0 {
		config.PremiumSweepInterval = time.Hour
	}
	if config.StatsInterval <= 0 {
		config.StatsInterval = 15 * time.Second
	}

	b := &Bot{
		log:      log,
		session:  session,
		repo:     repo,
		tracker:  tracker,
		notifier: notifier,
		config:   config,
		now:      time.Now,
	}
	b.routes = b.newRoutes()
	return b
}

func (b *Bot) Run(ctx context.Context) error {
	b.startedAt = b.now()

	b.session.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		b.handleInteraction(ctx, i)
	})
	b.session.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
		b.handleMemberAdd(ctx, m)
	})
	b.session.AddHandler(func(_ *discordgo.Session, g *discordgo.GuildCreate) {
		b.handleGuildCreate(ctx, g)
	})
	b.session.AddHandler(func(_ *discordgo.Session, g *discordgo.GuildDelete) {
		b.handleGuildDelete(ctx, g)
	})
	b.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		b.log.InfoContext(ctx, "connected to Discord", "username", r.User.Username, "guilds", len(r.Guilds))
	})

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("opening Discord connection: %w", err)
	}
	defer b.session.Close()

	if err := b.registerCommands(ctx); err != nil {
		return fmt.Errorf("registering commands: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b.runPremiumSweeper(gctx)
		return nil
	})
	g.Go(func() error {
		b.runStatsExporter(gctx)
		return nil
	})

	b.log.InfoContext(ctx, "bot is running, press Ctrl+C to stop")
	err := g.Wait()
	b.log.Info("shut down complete")
	return err
}

func (b *Bot) registerCommands(ctx context.Context) error {
	guildID := b.config.GuildID
	appID := b.session.GetUserID()
	commands := b.applicationCommands()

	if guildID != "" {
		b.log.InfoContext(ctx, "registering commands to guild", "guild_id", guildID)
		_, err := b.session.ApplicationCommandBulkOverwrite(appID, "", []*discordgo.ApplicationCommand{})
		if err != nil {
			b.log.WarnContext(ctx, "failed to clear global commands", "error", err)
		} else {
			b.log.InfoContext(ctx, "cleared global commands")
		}
	} else {
		b.log.InfoContext(ctx, "registering commands globally (may take up to 1 hour to propagate)")
	}

	_, err := b.session.ApplicationCommandBulkOverwrite(appID, guildID, commands)
	if err != nil {
		return fmt.Errorf("bulk overwrite commands: %w", err)
	}
	b.log.InfoContext(ctx, "registered commands", "count", len(commands))
	return nil
}

func (b *Bot) runPremiumSweeper(ctx context.Context) {
	for ctx.Err() == nil {
		sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
		if err := b.sweepExpiredPremium(sweepCtx); err != nil {
			b.log.ErrorContext(ctx, "sweeping expired premium", "error", err)
		}
		cancel()
		sleepWithContext(ctx, b.config.PremiumSweepInterval)
	}
	b.log.Info("premium sweeper stopped")
}

func (b *Bot) sweepExpiredPremium(ctx context.Context) error {
	n, err := b.repo.DeleteExpiredPremium(ctx, b.now())
	if err != nil {
		return fmt.Errorf("deleting expired premium: %w", err)
	}
	if n > 0 {
		metrics.PremiumExpiredTotal.Add(float64(n))
		b.log.InfoContext(ctx, "removed expired premium", "count", n)
	}
	return nil
}

func (b *Bot) runStatsExporter(ctx context.Context) {
	for ctx.Err() == nil {
		b.exportTrackerStats()
		sleepWithContext(ctx, b.config.StatsInterval)
	}
}

func (b *Bot) exportTrackerStats() {
	stats := b.tracker.Stats()
	metrics.CooldownTrackedActions.Set(float64(stats.TrackedActions))
	metrics.CooldownActiveEntries.Set(float64(stats.TotalActiveEntries))
}

func sleepWithContext(ctx context.Context, dur time.Duration) {
	timer := time.NewTimer(dur)
	defer timer.Stop()

	select {
	case <-timer.C:
		return
	case <-ctx.Done():
		return
	}
}

var (
	errOnCooldown = errors.New("on cooldown")
	errForbidden  = errors.New("missing permission")
	errGuildOnly  = errors.New("guild only")
)

type handlerResult struct {
	Response  string
	Embed     *discordgo.MessageEmbed
	Ephemeral bool
	Err       error
}

func (r handlerResult) outcome() string {
	switch {
	case r.Err == nil:
		return "success"
	case errors.Is(r.Err, errOnCooldown):
		return "cooldown"
	case errors.Is(r.Err, errForbidden), errors.Is(r.Err, errGuildOnly):
		return "denied"
	}
	if _, ok := errors.AsType[*userError](r.Err); ok {
		return "user_error"
	}
	return "error"
}

type userError struct {
	Err error
}

func (e *userError) Error() string {
	return e.Err.Error()
}

func (e *userError) Unwrap() error {
	return e.Err
}

func newUserError(err error) *userError {
	return &userError{Err: err}
}

func (b *Bot) handleInteraction(ctx context.Context, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	b.handleCommand(ctx, i)
}

func (b *Bot) handleCommand(ctx context.Context, i *discordgo.InteractionCreate) {
	inv := newInvocation(i)
	r, ok := b.routes[inv.path]
	if !ok {
		b.log.WarnContext(ctx, "unknown command", "command", inv.path)
		return
	}
	if inv.userID == "" {
		b.log.WarnContext(ctx, "interaction without a user", "command", inv.path)
		return
	}

	start := time.Now()
	result := b.dispatch(ctx, r, inv)
	metrics.CommandDuration.WithLabelValues(inv.path).Observe(time.Since(start).Seconds())
	metrics.CommandsTotal.WithLabelValues(inv.path, result.outcome()).Inc()

	b.respond(ctx, i, result)

	if result.Err == nil {
		return
	}

	if _, ok := errors.AsType[*userError](result.Err); ok {
		b.log.WarnContext(ctx, "user error", "command", inv.path, "error", result.Err, "user_id", inv.userID, "guild_id", inv.guildID)
		return
	}

	b.log.ErrorContext(ctx, "command failed", "command", inv.path, "error", result.Err, "guild_id", inv.guildID)
	b.notifyGuild(ctx, inv.guildID, notify.Event{
		Kind:        notify.CommandFailed,
		GuildID:     inv.guildID,
		Title:       fmt.Sprintf("/%s failed", inv.path),
		Description: result.Err.Error(),
	})
}

// dispatch gates a route on permissions and the caller's cooldown, runs it,
// and starts a new cooldown only when the handler succeeded.
func (b *Bot) dispatch(ctx context.Context, r route, inv invocation) handlerResult {
	if r.guildOnly && inv.guildID == "" {
		return handlerResult{
			Response:  "❌ This command only works in a server.",
			Ephemeral: true,
			Err:       newUserError(errGuildOnly),
		}
	}
	if !b.permitted(r.access, inv) {
		return handlerResult{
			Response:  "❌ You don't have permission to use this command.",
			Ephemeral: true,
			Err:       newUserError(fmt.Errorf("/%s: %w", inv.path, errForbidden)),
		}
	}

	// Check and Set are separate on purpose: two interactions racing through the
	// gate may both run, and the later Set wins.
	key := cooldownKey(inv.guildID, inv.path)
	gated := b.baseCooldown(r) > 0
	if gated {
		if onCooldown, remaining := b.tracker.Check(key, inv.userID); onCooldown {
			metrics.CooldownRejections.WithLabelValues(inv.path).Inc()
			return handlerResult{
				Response:  fmt.Sprintf("⏳ Slow down! You can use `/%s` again in %s.", inv.path, formatSeconds(cooldown.CeilSeconds(remaining))),
				Ephemeral: true,
				Err:       newUserError(errOnCooldown),
			}
		}
	}

	result := r.handler(ctx, inv)

	if gated && result.Err == nil {
		b.tracker.Set(key, inv.userID, b.cooldownFor(ctx, r, inv.guildID))
	}
	return result
}

// cooldownKey scopes a command's cooldowns to the guild it runs in, so resets
// by one guild's admins never reach another guild. Direct messages use the
// bare command path.
func cooldownKey(guildID, path string) string {
	if guildID == "" {
		return path
	}
	return guildID + "/" + path
}

func (b *Bot) permitted(a access, inv invocation) bool {
	owner := b.config.OwnerID != "" && inv.userID == b.config.OwnerID
	switch a {
	case accessOwner:
		return owner
	case accessAdmin:
		return owner || inv.isAdmin
	}
	return true
}

func (b *Bot) baseCooldown(r route) time.Duration {
	if r.cooldown == useDefaultCooldown {
		return b.config.DefaultCooldown
	}
	return r.cooldown
}

// cooldownFor is the route's cooldown scaled for the guild's premium status.
// Lookup failures fall back to the unscaled duration.
func (b *Bot) cooldownFor(ctx context.Context, r route, guildID string) time.Duration {
	d := b.baseCooldown(r)
	if guildID == "" {
		return d
	}

	premium, err := b.repo.GetPremium(ctx, guildID)
	if db.IsNoRows(err) {
		return d
	}
	if err != nil {
		b.log.WarnContext(ctx, "premium lookup failed, using full cooldown", "guild_id", guildID, "error", err)
		return d
	}
	if !premium.Active(b.now()) {
		return d
	}
	return time.Duration(float64(d) * b.config.PremiumCooldownFactor)
}

func (b *Bot) respond(ctx context.Context, i *discordgo.InteractionCreate, result handlerResult) {
	data := &discordgo.InteractionResponseData{
		Content: result.Response,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{},
		},
	}
	if result.Embed != nil {
		data.Embeds = []*discordgo.MessageEmbed{result.Embed}
	}
	if result.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}

	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		b.log.ErrorContext(ctx, "failed to respond to interaction", "error", err)
	}
}

// notifyGuild sends ev to the guild's log webhook when one is configured,
// otherwise to the operator default.
func (b *Bot) notifyGuild(ctx context.Context, guildID string, ev notify.Event) {
	if guildID != "" {
		settings, err := b.repo.GetGuildSettings(ctx, guildID)
		switch {
		case err == nil && settings.LogWebhookURL.Valid:
			ev.WebhookURL = settings.LogWebhookURL.String
		case err != nil && !db.IsNoRows(err):
			b.log.WarnContext(ctx, "loading guild settings for notification", "guild_id", guildID, "error", err)
		}
	}

	if err := b.notifier.Notify(ctx, ev); err != nil {
		b.log.WarnContext(ctx, "notification failed", "event", ev.Kind, "guild_id", guildID, "error", err)
	}
}

func formatSeconds(secs int64) string {
	if secs == 1 {
		return "1 second"
	}
	return fmt.Sprintf("%d seconds", secs)
}
