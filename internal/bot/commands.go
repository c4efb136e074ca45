package bot

import (
	"context"
	"slices"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"
)

type access int

const (
	accessEveryone access = iota
	accessAdmin
	accessOwner
)

// useDefaultCooldown marks a route gated by Config.DefaultCooldown.
const useDefaultCooldown time.Duration = -1

type route struct {
	// cooldown is how long a caller waits between successful runs. Zero
	// leaves the route ungated.
	cooldown  time.Duration
	access    access
	guildOnly bool
	handler   func(ctx context.Context, inv invocation) handlerResult
}

// newRoutes is keyed by command path, the command name followed by the
// subcommand name. The path doubles as the cooldown action key.
func (b *Bot) newRoutes() map[string]route {
	return map[string]route{
		"ping": {cooldown: 5 * time.Second, handler: b.handlePing},

		"premium status": {cooldown: 10 * time.Second, guildOnly: true, handler: b.handlePremiumStatus},
		"premium grant":  {access: accessOwner, guildOnly: true, handler: b.handlePremiumGrant},

		"settings view":            {cooldown: useDefaultCooldown, guildOnly: true, handler: b.handleSettingsView},
		"settings welcome-channel": {access: accessAdmin, guildOnly: true, handler: b.handleSettingsWelcomeChannel},
		"settings log-webhook":     {access: accessAdmin, guildOnly: true, handler: b.handleSettingsLogWebhook},

		"welcome set":     {access: accessAdmin, guildOnly: true, handler: b.handleWelcomeSet},
		"welcome preview": {cooldown: 15 * time.Second, guildOnly: true, handler: b.handleWelcomePreview},
		"welcome toggle":  {access: accessAdmin, guildOnly: true, handler: b.handleWelcomeToggle},

		"cooldown status": {cooldown: useDefaultCooldown, handler: b.handleCooldownStatus},
		"cooldown reset":  {access: accessAdmin, handler: b.handleCooldownReset},
		"cooldown stats":  {access: accessOwner, handler: b.handleCooldownStats},
	}
}

// gatedCommands lists the paths that carry a cooldown, sorted.
func (b *Bot) gatedCommands() []string {
	paths := lo.Keys(lo.PickBy(b.routes, func(_ string, r route) bool {
		return b.baseCooldown(r) > 0
	}))
	slices.Sort(paths)
	return paths
}

type invocation struct {
	path     string
	userID   string
	userName string
	guildID  string
	// isAdmin reports the Manage Server permission in the invoking channel.
	isAdmin bool
	options map[string]*discordgo.ApplicationCommandInteractionDataOption
}

func newInvocation(i *discordgo.InteractionCreate) invocation {
	data := i.ApplicationCommandData()
	path := data.Name
	opts := data.Options
	// No command uses subcommand groups, so there is at most one level.
	if len(opts) == 1 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		path += " " + opts[0].Name
		opts = opts[0].Options
	}

	inv := invocation{
		path:    path,
		guildID: i.GuildID,
		options: lo.KeyBy(opts, func(o *discordgo.ApplicationCommandInteractionDataOption) string {
			return o.Name
		}),
	}
	switch {
	case i.Member != nil && i.Member.User != nil:
		inv.userID = i.Member.User.ID
		inv.userName = i.Member.User.Username
		inv.isAdmin = i.Member.Permissions&discordgo.PermissionManageGuild != 0
	case i.User != nil:
		inv.userID = i.User.ID
		inv.userName = i.User.Username
	}
	return inv
}

// str reads string, user, and channel options, which all carry an ID or text.
func (inv invocation) str(name string) string {
	opt, ok := inv.options[name]
	if !ok {
		return ""
	}
	v, _ := opt.Value.(string)
	return v
}

func (inv invocation) integer(name string, fallback int64) int64 {
	opt, ok := inv.options[name]
	if !ok {
		return fallback
	}
	v, ok := opt.Value.(float64)
	if !ok {
		return fallback
	}
	return int64(v)
}

func (inv invocation) boolean(name string) (value, ok bool) {
	opt, ok := inv.options[name]
	if !ok {
		return false, false
	}
	v, ok := opt.Value.(bool)
	return v, ok
}

var premiumTiers = []string{"gold", "platinum"}

func (b *Bot) applicationCommands() []*discordgo.ApplicationCommand {
	cooldownChoices := lo.Map(b.gatedCommands(), func(path string, _ int) *discordgo.ApplicationCommandOptionChoice {
		return &discordgo.ApplicationCommandOptionChoice{Name: "/" + path, Value: path}
	})
	tierChoices := lo.Map(premiumTiers, func(tier string, _ int) *discordgo.ApplicationCommandOptionChoice {
		return &discordgo.ApplicationCommandOptionChoice{Name: tier, Value: tier}
	})

	return []*discordgo.ApplicationCommand{
		{
			Name:        "ping",
			Description: "Check that the bot is alive",
		},
		{
			Name:        "premium",
			Description: "Server premium",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "status",
					Description: "Show this server's premium status",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "grant",
					Description: "Grant premium to this server (bot owner only)",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "days",
							Description: "How many days of premium",
							Required:    true,
							MinValue:    lo.ToPtr(1.0),
							MaxValue:    maxPremiumDays,
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "tier",
							Description: "Premium tier",
							Choices:     tierChoices,
						},
					},
				},
			},
		},
		{
			Name:        "settings",
			Description: "Server settings",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "view",
					Description: "Show this server's settings",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "welcome-channel",
					Description: "Set the channel welcome messages are posted in",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:         discordgo.ApplicationCommandOptionChannel,
							Name:         "channel",
							Description:  "Welcome channel",
							Required:     true,
							ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "log-webhook",
					Description: "Send bot events for this server to a webhook",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "url",
							Description: "Discord webhook URL",
							Required:    true,
						},
					},
				},
			},
		},
		{
			Name:        "welcome",
			Description: "Welcome messages for new members",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "set",
					Description: "Set the welcome message. Tokens: {user} {user.name} {server} {memberCount}",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "title",
							Description: "Embed title",
							Required:    true,
							MaxLength:   256,
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "body",
							Description: "Embed body",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "color",
							Description: "Hex color, e.g. #57F287",
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "preview",
					Description: "Preview the welcome message as if you just joined",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "toggle",
					Description: "Turn welcome messages on or off",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionBoolean,
							Name:        "enabled",
							Description: "Send welcome messages",
							Required:    true,
						},
					},
				},
			},
		},
		{
			Name:        "cooldown",
			Description: "Command cooldowns",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "status",
					Description: "How long until you can use a command again",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "command",
							Description: "Command to check",
							Required:    true,
							Choices:     cooldownChoices,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "reset",
					Description: "Clear cooldowns for a user, a command, or everyone",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionUser,
							Name:        "user",
							Description: "Clear this user's cooldowns in this server",
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "command",
							Description: "Clear this command's cooldowns in this server",
							Choices:     cooldownChoices,
						},
						{
							Type:        discordgo.ApplicationCommandOptionBoolean,
							Name:        "all",
							Description: "Clear every cooldown (bot owner only)",
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "stats",
					Description: "Cooldown tracker statistics (bot owner only)",
				},
			},
		},
	}
}
