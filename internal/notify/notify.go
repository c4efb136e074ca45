// Package notify delivers bot lifecycle events to a Discord webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jusunglee/hearth/internal/metrics"
	"github.com/jusunglee/hearth/internal/sanitize"
	"golang.org/x/time/rate"
)

type Kind string

const (
	GuildJoined    Kind = "guild_joined"
	GuildLeft      Kind = "guild_left"
	CommandFailed  Kind = "command_failed"
	PremiumGranted Kind = "premium_granted"
)

var kindColors = map[Kind]int{
	GuildJoined:    0x57F287,
	GuildLeft:      0x99AAB5,
	CommandFailed:  0xED4245,
	PremiumGranted: 0xFEE75C,
}

type Event struct {
	Kind        Kind
	GuildID     string
	Title       string
	Description string
	// WebhookURL overrides the notifier's default destination.
	WebhookURL string
}

// Webhook posts events as embeds. With no default URL and no per-event URL,
// Notify is a no-op.
type Webhook struct {
	defaultURL string
	username   string
	http       *http.Client
	limiter    *rate.Limiter
	secrets    []string
	now        func() time.Time
}

// New creates a Webhook notifier. perSecond <= 0 disables throttling. Any
// secrets are masked out of event text before delivery.
func New(defaultURL string, perSecond float64, secrets ...string) *Webhook {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Webhook{
		defaultURL: defaultURL,
		username:   "hearth",
		http:       &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(limit, 1),
		secrets:    secrets,
		now:        time.Now,
	}
}

func (w *Webhook) Enabled() bool {
	return w.defaultURL != ""
}

func (w *Webhook) Notify(ctx context.Context, ev Event) error {
	url := ev.WebhookURL
	if url == "" {
		url = w.defaultURL
	}
	if url == "" {
		return nil
	}

	err := w.deliver(ctx, url, ev)
	result := "success"
	if err != nil {
		result = "error"
	}
	metrics.NotificationsTotal.WithLabelValues(string(ev.Kind), result).Inc()
	return err
}

func (w *Webhook) deliver(ctx context.Context, url string, ev Event) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for delivery slot: %w", err)
	}

	body, err := json.Marshal(w.payload(ev))
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		// The URL carries the webhook token, so the error text is masked
		// instead of wrapped.
		return fmt.Errorf("posting %s event: %s", ev.Kind, sanitize.Redact(w.redact(err.Error()), url))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("posting %s event: unexpected status %d", ev.Kind, resp.StatusCode)
	}
	return nil
}

func (w *Webhook) payload(ev Event) *discordgo.WebhookParams {
	embed := &discordgo.MessageEmbed{
		Title:       w.redact(ev.Title),
		Description: w.redact(ev.Description),
		Color:       kindColors[ev.Kind],
		Timestamp:   w.now().UTC().Format(time.RFC3339),
	}
	if ev.GuildID != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "guild " + ev.GuildID}
	}

	return &discordgo.WebhookParams{
		Username: w.username,
		Embeds:   []*discordgo.MessageEmbed{embed},
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{},
		},
	}
}

func (w *Webhook) redact(s string) string {
	return sanitize.DiscordTokens(sanitize.Redact(s, w.secrets...))
}
