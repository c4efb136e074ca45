// Package welcome renders guild welcome templates.
//
// Templates contain {token} placeholders:
//
//	{user}         mention of the new member
//	{user.name}    the member's username
//	{user.id}      the member's ID
//	{server}       guild name
//	{server.id}    guild ID
//	{memberCount}  current member count
//
// Unknown tokens are left as written.
package welcome

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/jusunglee/hearth/internal/db"
	"github.com/jusunglee/hearth/internal/sanitize"
)

const (
	DefaultTitle = "Welcome to {server}!"
	DefaultBody  = "Hey {user}, you are member #{memberCount}. Make yourself at home."
	DefaultColor = 0x57F287

	maxTitleLength = 256
	maxBodyLength  = 4096
)

var ErrUnknownToken = errors.New("unknown template token")

type Vars struct {
	UserID      string
	UserName    string
	GuildID     string
	GuildName   string
	MemberCount int
}

func (v Vars) lookup(token string) (string, bool) {
	switch token {
	case "user":
		return "<@" + v.UserID + ">", true
	case "user.name":
		return v.UserName, true
	case "user.id":
		return v.UserID, true
	case "server":
		return v.GuildName, true
	case "server.id":
		return v.GuildID, true
	case "memberCount":
		return strconv.Itoa(v.MemberCount), true
	}
	return "", false
}

// Render substitutes every known token in tpl.
func Render(tpl string, vars Vars) string {
	var sb strings.Builder
	sb.Grow(len(tpl))

	for {
		start := strings.IndexByte(tpl, '{')
		if start < 0 {
			break
		}
		end := strings.IndexByte(tpl[start:], '}')
		if end < 0 {
			break
		}
		end += start

		sb.WriteString(tpl[:start])
		if value, ok := vars.lookup(tpl[start+1 : end]); ok {
			sb.WriteString(value)
		} else {
			sb.WriteString(tpl[start : end+1])
		}
		tpl = tpl[end+1:]
	}
	sb.WriteString(tpl)
	return sb.String()
}

// Validate reports the first unknown token in tpl.
func Validate(tpl string) error {
	for {
		start := strings.IndexByte(tpl, '{')
		if start < 0 {
			return nil
		}
		end := strings.IndexByte(tpl[start:], '}')
		if end < 0 {
			return nil
		}
		end += start

		token := tpl[start+1 : end]
		if _, ok := (Vars{}).lookup(token); !ok {
			return fmt.Errorf("%w: {%s}", ErrUnknownToken, token)
		}
		tpl = tpl[end+1:]
	}
}

// ValidateTemplate checks both parts of a template and Discord's embed limits.
func ValidateTemplate(title, body string) error {
	if utf8.RuneCountInString(title) > maxTitleLength {
		return fmt.Errorf("title is longer than %d characters", maxTitleLength)
	}
	if utf8.RuneCountInString(body) > maxBodyLength {
		return fmt.Errorf("body is longer than %d characters", maxBodyLength)
	}
	if err := Validate(title); err != nil {
		return fmt.Errorf("title: %w", err)
	}
	if err := Validate(body); err != nil {
		return fmt.Errorf("body: %w", err)
	}
	return nil
}

func Default(guildID string) db.WelcomeTemplate {
	return db.WelcomeTemplate{
		GuildID: guildID,
		Title:   DefaultTitle,
		Body:    DefaultBody,
		Color:   DefaultColor,
		Enabled: true,
	}
}

func Embed(tpl db.WelcomeTemplate, vars Vars) *discordgo.MessageEmbed {
	color := tpl.Color
	if color == 0 {
		color = DefaultColor
	}
	return &discordgo.MessageEmbed{
		Title:       truncate(sanitize.EscapeMentions(Render(tpl.Title, vars)), maxTitleLength),
		Description: truncate(sanitize.EscapeMentions(Render(tpl.Body, vars)), maxBodyLength),
		Color:       int(color),
	}
}

// truncate cuts s to at most limit characters, ending with an ellipsis when cut.
// Substituted names can push a valid template past Discord's embed limits.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
