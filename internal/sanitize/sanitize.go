// Package sanitize masks secrets and neutralises mass mentions before text
// leaves the process.
package sanitize

import (
	"regexp"
	"strings"
)

// discordTokenPattern matches the three dot-separated base64 segments of a bot token.
var discordTokenPattern = regexp.MustCompile(`[A-Za-z0-9_-]{23,28}\.[A-Za-z0-9_-]{6,7}\.[A-Za-z0-9_-]{27,}`)

// MaskSecret keeps the first and last four characters of s. Anything of eight
// characters or fewer is masked entirely.
func MaskSecret(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

// Redact replaces every occurrence of each non-empty secret in text with its mask.
func Redact(text string, secrets ...string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		text = strings.ReplaceAll(text, secret, MaskSecret(secret))
	}
	return text
}

func DiscordTokens(text string) string {
	return discordTokenPattern.ReplaceAllStringFunc(text, MaskSecret)
}

// EscapeMentions inserts a zero-width space after @ in @everyone and @here.
func EscapeMentions(text string) string {
	text = strings.ReplaceAll(text, "@everyone", "@\u200beveryone")
	return strings.ReplaceAll(text, "@here", "@\u200bhere")
}
