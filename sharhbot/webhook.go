package sharhbot

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/time/rate"
)

// AuditLogger sends audit trail embeds to a Discord webhook. Sends are
// best-effort and rate-limited: a failed or throttled audit entry never
// blocks or fails the workflow action that produced it. When no webhook
// is configured, entries degrade to local structured logging.
type AuditLogger struct {
	session   DiscordSessionHandler
	webhookID string
	token     string
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// newAuditLogger parses the configured webhook URL into its ID and
// token components. An empty URL yields a logger-only AuditLogger.
func newAuditLogger(
	session DiscordSessionHandler,
	webhookURL string,
	logger *slog.Logger,
) (*AuditLogger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &AuditLogger{
		session: session,
		limiter: rate.NewLimiter(rate.Limit(auditSendsPerSecond), auditSendsPerSecond),
		logger:  logger.With(loggerNameKey, "audit"),
	}
	if webhookURL == "" {
		return a, nil
	}

	id, token, err := parseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}
	a.webhookID = id
	a.token = token
	return a, nil
}

// parseWebhookURL extracts the webhook ID and token from a Discord
// webhook URL (https://discord.com/api/webhooks/<id>/<token>).
func parseWebhookURL(webhookURL string) (id string, token string, err error) {
	u, err := url.Parse(webhookURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	// expect .../webhooks/<id>/<token>
	for i, part := range parts {
		if part == "webhooks" && i+2 < len(parts) {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", fmt.Errorf("webhook url missing id/token segments: %s", u.Path)
}

// enabled reports whether a webhook destination is configured.
func (a *AuditLogger) enabled() bool {
	return a.webhookID != "" && a.token != ""
}

// Send delivers the given embed to the audit webhook. Rate-limited and
// best-effort: on throttle or delivery failure the entry is logged
// locally and the error is swallowed.
func (a *AuditLogger) Send(ctx context.Context, embed *discordgo.MessageEmbed) {
	log, ok := ContextLogger(ctx)
	if !ok || log == nil {
		log = a.logger
	}
	if !a.enabled() {
		log.Info(
			"audit entry (webhook not configured)",
			"title", embed.Title,
			"description", embed.Description,
		)
		return
	}
	if !a.limiter.Allow() {
		log.Warn(
			"audit entry dropped (rate limited)",
			"title", embed.Title,
		)
		return
	}
	_, err := a.session.WebhookExecute(
		a.webhookID,
		a.token,
		false,
		&discordgo.WebhookParams{Embeds: []*discordgo.MessageEmbed{embed}},
		discordgo.WithContext(ctx),
		discordgo.WithRetryOnRatelimit(false),
	)
	if err != nil {
		log.Error("error sending audit webhook", tint.Err(err), "title", embed.Title)
	}
}

// auditEmbed assembles a standard audit trail embed.
func auditEmbed(
	title string,
	description string,
	color int,
	fields ...*discordgo.MessageEmbedField,
) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Fields:      fields,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}
