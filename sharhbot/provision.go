package sharhbot

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// ChannelProvisioner turns an approved ExplanationRequest into a real
// text channel: creating the channel under the requested category,
// posting the explanation content with its attachments, and granting
// the reward role.
type ChannelProvisioner struct {
	session DiscordSessionHandler
	config  *ExplanationConfig
	audit   *AuditLogger
	logger  *slog.Logger
}

func newChannelProvisioner(
	session DiscordSessionHandler,
	config *ExplanationConfig,
	audit *AuditLogger,
	logger *slog.Logger,
) *ChannelProvisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChannelProvisioner{
		session: session,
		config:  config,
		audit:   audit,
		logger:  logger.With(loggerNameKey, "provisioner"),
	}
}

// validateCategory fetches the channel with the given ID and verifies
// it is a guild category. Returns the category on success.
func (p *ChannelProvisioner) validateCategory(
	ctx context.Context,
	categoryID string,
) (*discordgo.Channel, error) {
	category, err := p.session.Channel(categoryID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("category %s not found: %w", categoryID, err)
	}
	if category.Type != discordgo.ChannelTypeGuildCategory {
		return nil, fmt.Errorf(
			"channel %s is not a category (type: %d)",
			categoryID,
			category.Type,
		)
	}
	return category, nil
}

// channelOverwrites builds the permission overwrites for a new
// explanation channel: hidden from @everyone, visible and writable for
// the requester and (if configured) the reviewer role.
func (p *ChannelProvisioner) channelOverwrites(
	guildID string,
	requesterID string,
) []*discordgo.PermissionOverwrite {
	memberPermissions := int64(
		discordgo.PermissionViewChannel |
			discordgo.PermissionSendMessages |
			discordgo.PermissionReadMessageHistory,
	)
	overwrites := []*discordgo.PermissionOverwrite{
		{
			// @everyone shares its ID with the guild
			ID:   guildID,
			Type: discordgo.PermissionOverwriteTypeRole,
			Deny: discordgo.PermissionViewChannel,
		},
		{
			ID:    requesterID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: memberPermissions,
		},
	}
	if p.config.ReviewerRoleID != "" {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    p.config.ReviewerRoleID,
			Type:  discordgo.PermissionOverwriteTypeRole,
			Allow: memberPermissions,
		})
	}
	return overwrites
}

// Provision creates the explanation channel and publishes the content
// into it. The request's category must already have been re-validated.
// Returns the created channel.
func (p *ChannelProvisioner) Provision(
	ctx context.Context,
	guildID string,
	request ExplanationRequest,
) (*discordgo.Channel, error) {
	log, ok := ContextLogger(ctx)
	if !ok || log == nil {
		log = p.logger
	}

	channel, err := p.session.GuildChannelCreateComplex(
		guildID,
		discordgo.GuildChannelCreateData{
			Name:     request.RoomName,
			Type:     discordgo.ChannelTypeGuildText,
			Topic:    fmt.Sprintf("Explanation by %s", request.RequesterName),
			ParentID: request.CategoryID,
			PermissionOverwrites: p.channelOverwrites(
				guildID,
				request.RequesterID,
			),
		},
		discordgo.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating explanation channel: %w", err)
	}

	if publishErr := p.publishContent(ctx, channel.ID, request); publishErr != nil {
		// channel exists but content didn't land; surface the error so
		// the reviewer sees the failure rather than an empty channel
		return channel, publishErr
	}
	log.InfoContext(
		ctx,
		"provisioned explanation channel",
		"channel_id", channel.ID,
		"request", request,
	)
	return channel, nil
}

// publishContent posts the primary content embed followed by one
// message per attachment.
func (p *ChannelProvisioner) publishContent(
	ctx context.Context,
	channelID string,
	request ExplanationRequest,
) error {
	attachments := extractAttachments(request.Content)
	body := stripAttachmentURLs(
		request.Content,
		attachments,
		DefaultNoAdditionalTextPlaceholder,
	)

	primary := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("📖 %s", request.RoomName),
		Description: body,
		Color:       colorGreen,
		Author: &discordgo.MessageEmbedAuthor{
			Name: fmt.Sprintf("Written by %s", request.RequesterName),
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Published via explanation request",
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if len(attachments) > 0 {
		primary.Fields = append(primary.Fields, &discordgo.MessageEmbedField{
			Name:  "📎 Attachments",
			Value: attachmentSummary(attachments),
		})
	}
	if _, err := p.session.ChannelMessageSendEmbed(
		channelID,
		primary,
		discordgo.WithContext(ctx),
	); err != nil {
		return fmt.Errorf("error posting explanation content: %w", err)
	}

	for _, attachment := range attachments {
		p.postAttachment(ctx, channelID, attachment)
	}
	return nil
}

// postAttachment delivers a single attachment into the channel. Images
// and videos get a dedicated embed; when the embed send fails (or for
// other types), the raw URL is posted so the content is never lost.
func (p *ChannelProvisioner) postAttachment(
	ctx context.Context,
	channelID string,
	attachment Attachment,
) {
	switch attachment.Type {
	case AttachmentImage:
		embed := &discordgo.MessageEmbed{
			Color: colorGreen,
			Image: &discordgo.MessageEmbedImage{URL: attachment.URL},
		}
		if _, err := p.session.ChannelMessageSendEmbed(
			channelID,
			embed,
			discordgo.WithContext(ctx),
		); err == nil {
			return
		}
	case AttachmentVideo:
		embed := &discordgo.MessageEmbed{
			Color: colorGreen,
			Video: &discordgo.MessageEmbedVideo{URL: attachment.URL},
		}
		if _, err := p.session.ChannelMessageSendEmbed(
			channelID,
			embed,
			discordgo.WithContext(ctx),
		); err == nil {
			return
		}
	}
	if _, err := p.session.ChannelMessageSend(
		channelID,
		fmt.Sprintf("%s %s", attachmentLabel(attachment.Type), attachment.URL),
		discordgo.WithContext(ctx),
	); err != nil {
		p.logger.ErrorContext(
			ctx,
			"error posting attachment",
			tint.Err(err),
			"url", attachment.URL,
		)
	}
}

// GrantRewardRole grants the configured reward role to the requester,
// skipping members who already hold it. Best-effort: a failed grant is
// logged and audited but never fails the approval.
func (p *ChannelProvisioner) GrantRewardRole(
	ctx context.Context,
	guildID string,
	request ExplanationRequest,
) {
	if p.config.RewardRoleID == "" {
		return
	}
	log, ok := ContextLogger(ctx)
	if !ok || log == nil {
		log = p.logger
	}

	member, err := p.session.GuildMember(
		guildID,
		request.RequesterID,
		discordgo.WithContext(ctx),
	)
	if err == nil && slices.Contains(member.Roles, p.config.RewardRoleID) {
		log.InfoContext(
			ctx,
			"requester already has reward role",
			"user_id", request.RequesterID,
		)
		return
	}

	err = p.session.GuildMemberRoleAdd(
		guildID,
		request.RequesterID,
		p.config.RewardRoleID,
		discordgo.WithContext(ctx),
		discordgo.WithAuditLogReason(
			fmt.Sprintf("Explanation request %s approved", request.ID),
		),
	)
	if err != nil {
		log.ErrorContext(
			ctx,
			"error granting reward role",
			tint.Err(err),
			"user_id", request.RequesterID,
			"role_id", p.config.RewardRoleID,
		)
		p.audit.Send(ctx, auditEmbed(
			"⚠️ Reward role grant failed",
			fmt.Sprintf(
				"Could not grant <@&%s> to <@%s>: %s",
				p.config.RewardRoleID,
				request.RequesterID,
				err.Error(),
			),
			colorYellow,
		))
		return
	}
	p.audit.Send(ctx, auditEmbed(
		"🎖️ Reward role granted",
		fmt.Sprintf(
			"Granted <@&%s> to %s (<@%s>)",
			p.config.RewardRoleID,
			request.RequesterName,
			request.RequesterID,
		),
		colorGold,
	))
}

// announceText is the public notice posted to the announce channel
// after an approval.
func announceText(request ExplanationRequest, channelID string) string {
	var b strings.Builder
	b.WriteString("📚 **New explanation published!**\n")
	fmt.Fprintf(&b, "**%s** by %s: <#%s>", request.RoomName, request.RequesterName, channelID)
	return b.String()
}
