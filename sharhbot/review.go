package sharhbot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// routingKind identifies which workflow action a component or modal
// custom ID maps to.
type routingKind int

const (
	routingUnknown routingKind = iota
	routingStartRequest
	routingSubmitModal
	routingApprove
	routingApproveEdit
	routingReject
	routingEditModal
	routingRejectReasonModal
)

// routingKey is a parsed component/modal custom ID.
type routingKey struct {
	kind      routingKind
	requestID string
}

// parseRoutingKey maps a custom ID onto a workflow action. Prefix
// order matters: the approve-with-edits prefix contains the approve
// prefix, so it has to be checked first.
func parseRoutingKey(customID string) routingKey {
	switch {
	case customID == customIDStartRequest:
		return routingKey{kind: routingStartRequest}
	case customID == customIDSubmitModal:
		return routingKey{kind: routingSubmitModal}
	case strings.HasPrefix(customID, customIDApproveEditPrefix):
		return routingKey{
			kind:      routingApproveEdit,
			requestID: strings.TrimPrefix(customID, customIDApproveEditPrefix),
		}
	case strings.HasPrefix(customID, customIDApprovePrefix):
		return routingKey{
			kind:      routingApprove,
			requestID: strings.TrimPrefix(customID, customIDApprovePrefix),
		}
	case strings.HasPrefix(customID, customIDRejectPrefix):
		return routingKey{
			kind:      routingReject,
			requestID: strings.TrimPrefix(customID, customIDRejectPrefix),
		}
	case strings.HasPrefix(customID, customIDEditModalPrefix):
		return routingKey{
			kind:      routingEditModal,
			requestID: strings.TrimPrefix(customID, customIDEditModalPrefix),
		}
	case strings.HasPrefix(customID, customIDRejectReasonPrefix):
		return routingKey{
			kind:      routingRejectReasonModal,
			requestID: strings.TrimPrefix(customID, customIDRejectReasonPrefix),
		}
	default:
		return routingKey{kind: routingUnknown}
	}
}

// ReviewWorkflow drives an explanation request through its lifecycle:
// submission, staff review, and a terminal approve/reject decision.
// Every transition looks the request up fresh in the store, so expired
// or already-decided requests resolve to a friendly not-found reply.
type ReviewWorkflow struct {
	session     DiscordSessionHandler
	store       *RequestStore
	provisioner *ChannelProvisioner
	config      *ExplanationConfig
	audit       *AuditLogger
	logger      *slog.Logger
}

func newReviewWorkflow(
	session DiscordSessionHandler,
	store *RequestStore,
	provisioner *ChannelProvisioner,
	config *ExplanationConfig,
	audit *AuditLogger,
	logger *slog.Logger,
) *ReviewWorkflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewWorkflow{
		session:     session,
		store:       store,
		provisioner: provisioner,
		config:      config,
		audit:       audit,
		logger:      logger.With(loggerNameKey, "review_workflow"),
	}
}

// respondEphemeral sends an immediate ephemeral text reply.
func (w *ReviewWorkflow) respondEphemeral(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	content string,
) {
	err := w.session.InteractionRespond(
		i.Interaction,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: content,
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		},
		discordgo.WithContext(ctx),
	)
	if err != nil {
		w.logger.ErrorContext(ctx, "error sending ephemeral response", tint.Err(err))
	}
}

// respondNotFound is the shared reply for requests that expired or
// were already decided.
func (w *ReviewWorkflow) respondNotFound(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) {
	w.respondEphemeral(
		ctx,
		i,
		"❌ This request no longer exists. It may have expired or already been decided.",
	)
}

// handleStartButton opens the submission modal.
func (w *ReviewWorkflow) handleStartButton(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) {
	if err := w.session.InteractionRespond(
		i.Interaction,
		submissionModal(),
		discordgo.WithContext(ctx),
	); err != nil {
		w.logger.ErrorContext(ctx, "error opening submission modal", tint.Err(err))
	}
}

// handleSubmitModal validates a freshly submitted request, stores it,
// and posts the review card for staff. The category is validated
// before anything is stored: an invalid category means no record and
// no review card.
func (w *ReviewWorkflow) handleSubmitModal(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) {
	log, ok := ContextLogger(ctx)
	if !ok || log == nil {
		log = w.logger
	}
	data := i.ModalSubmitData()
	user := getDiscordUser(i)
	if user == nil {
		log.WarnContext(ctx, "modal submit with no user", interactionLogAttrs(*i)...)
		return
	}

	categoryID := strings.TrimSpace(modalTextValue(data, modalInputCategoryID))
	roomName := strings.TrimSpace(modalTextValue(data, modalInputRoomName))
	content := modalTextValue(data, modalInputContent)

	if _, err := w.provisioner.validateCategory(ctx, categoryID); err != nil {
		log.WarnContext(ctx, "rejected submission with bad category", tint.Err(err))
		w.respondEphemeral(
			ctx,
			i,
			fmt.Sprintf(
				"❌ Category `%s` was not found or is not a category. Please check the ID and try again.",
				categoryID,
			),
		)
		return
	}

	if w.config.ReviewChannelID == "" {
		log.ErrorContext(ctx, "review channel not configured, dropping submission")
		w.respondEphemeral(
			ctx,
			i,
			"❌ Submissions are not configured on this server. Please contact an administrator.",
		)
		return
	}

	requestID := w.store.Create(ExplanationRequest{
		CategoryID:    categoryID,
		RoomName:      roomName,
		Content:       content,
		RequesterID:   user.ID,
		RequesterName: user.Username,
	})
	request, _ := w.store.Get(requestID)

	if _, err := w.session.ChannelMessageSendComplex(
		w.config.ReviewChannelID,
		reviewCardMessage(request),
		discordgo.WithContext(ctx),
	); err != nil {
		// no card means no reviewer will ever see it; roll back rather
		// than leaving an undecidable record behind
		w.store.Delete(requestID)
		log.ErrorContext(ctx, "error posting review card", tint.Err(err))
		w.respondEphemeral(
			ctx,
			i,
			"❌ Your request could not be submitted for review. Please try again later.",
		)
		return
	}

	log.InfoContext(ctx, "explanation request submitted", "request", request)
	w.respondEphemeral(
		ctx,
		i,
		"✅ Your explanation request has been submitted! You'll receive a DM once it's reviewed.",
	)
	w.audit.Send(ctx, auditEmbed(
		"📨 Explanation request submitted",
		fmt.Sprintf(
			"**%s** requested channel **%s** (request `%s`)",
			request.RequesterName,
			request.RoomName,
			request.ID,
		),
		colorBlue,
	))
}

// reviewCardMessage builds the staff review card: the request details
// plus the three decision buttons.
func reviewCardMessage(request ExplanationRequest) *discordgo.MessageSend {
	attachments := extractAttachments(request.Content)
	embed := &discordgo.MessageEmbed{
		Title: "📋 New explanation request",
		Color: colorYellow,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   "👤 Requester",
				Value:  fmt.Sprintf("%s (<@%s>)", request.RequesterName, request.RequesterID),
				Inline: true,
			},
			{
				Name:   "📁 Category",
				Value:  fmt.Sprintf("`%s`", request.CategoryID),
				Inline: true,
			},
			{
				Name:   "🏷️ Channel name",
				Value:  request.RoomName,
				Inline: true,
			},
			{
				Name:  "📝 Content",
				Value: truncateWithEllipsis(request.Content, reviewCardContentLimit),
			},
			{
				Name:  "📎 Attachments",
				Value: attachmentSummary(attachments),
			},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Request ID: %s", request.ID),
		},
		Timestamp: request.CreatedAt.Format(time.RFC3339),
	}
	return &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						CustomID: customIDApprovePrefix + request.ID,
						Label:    "✅ Approve",
						Style:    discordgo.SuccessButton,
					},
					discordgo.Button{
						CustomID: customIDApproveEditPrefix + request.ID,
						Label:    "✏️ Approve with edits",
						Style:    discordgo.PrimaryButton,
					},
					discordgo.Button{
						CustomID: customIDRejectPrefix + request.ID,
						Label:    "❌ Reject",
						Style:    discordgo.DangerButton,
					},
				},
			},
		},
	}
}

// handleApprove runs the full approval path for an unedited request.
func (w *ReviewWorkflow) handleApprove(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	requestID string,
) {
	request, ok := w.store.Get(requestID)
	if !ok {
		w.respondNotFound(ctx, i)
		return
	}
	w.approve(ctx, i, request, false)
}

// handleApproveEdit opens the pre-populated edit modal.
func (w *ReviewWorkflow) handleApproveEdit(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	requestID string,
) {
	request, ok := w.store.Get(requestID)
	if !ok {
		w.respondNotFound(ctx, i)
		return
	}
	if err := w.session.InteractionRespond(
		i.Interaction,
		editApproveModal(request),
		discordgo.WithContext(ctx),
	); err != nil {
		w.logger.ErrorContext(ctx, "error opening edit modal", tint.Err(err))
	}
}

// handleEditModal applies the reviewer's edits to the stored request
// and then runs the approval path with the edited values.
func (w *ReviewWorkflow) handleEditModal(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	requestID string,
) {
	data := i.ModalSubmitData()
	categoryID := strings.TrimSpace(modalTextValue(data, modalInputEditCategoryID))
	roomName := strings.TrimSpace(modalTextValue(data, modalInputEditRoomName))
	content := modalTextValue(data, modalInputEditContent)

	ok := w.store.Update(requestID, func(request *ExplanationRequest) {
		request.CategoryID = categoryID
		request.RoomName = roomName
		request.Content = content
	})
	if !ok {
		w.respondNotFound(ctx, i)
		return
	}
	request, ok := w.store.Get(requestID)
	if !ok {
		w.respondNotFound(ctx, i)
		return
	}
	w.approve(ctx, i, request, true)
}

// approve is the shared terminal approval path: re-validate the
// category, provision the channel, notify the requester, update the
// review card, announce, audit, and finally delete the request.
func (w *ReviewWorkflow) approve(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	request ExplanationRequest,
	edited bool,
) {
	log, lok := ContextLogger(ctx)
	if !lok || log == nil {
		log = w.logger
	}
	decider := getDiscordUser(i)
	deciderName := "unknown"
	if decider != nil {
		deciderName = decider.Username
	}

	// channel creation can exceed the 3s interaction window
	if err := w.session.InteractionRespond(
		i.Interaction,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Flags: discordgo.MessageFlagsEphemeral,
			},
		},
		discordgo.WithContext(ctx),
	); err != nil {
		log.ErrorContext(ctx, "error deferring approval response", tint.Err(err))
		return
	}

	if _, err := w.provisioner.validateCategory(ctx, request.CategoryID); err != nil {
		log.WarnContext(ctx, "approval blocked by invalid category", tint.Err(err))
		w.editDeferred(ctx, i, fmt.Sprintf(
			"❌ Category `%s` no longer exists or is not a category. Use \"Approve with edits\" to pick a new one.",
			request.CategoryID,
		))
		return
	}

	channel, err := w.provisioner.Provision(ctx, i.GuildID, request)
	if err != nil {
		log.ErrorContext(ctx, "error provisioning channel", tint.Err(err))
		w.editDeferred(ctx, i, fmt.Sprintf(
			"❌ Could not create the channel: %s",
			err.Error(),
		))
		return
	}

	w.provisioner.GrantRewardRole(ctx, i.GuildID, request)

	w.notifyRequesterApproved(ctx, request, channel.ID)
	w.updateCardApproved(ctx, i, request, deciderName, channel.ID, edited)
	w.announceApproval(ctx, request, channel.ID)

	auditTitle := "✅ Explanation request approved"
	if edited {
		auditTitle = "✅ Explanation request approved (with edits)"
	}
	w.audit.Send(ctx, auditEmbed(
		auditTitle,
		fmt.Sprintf(
			"Request `%s` by **%s** approved by **%s**. Channel: <#%s>",
			request.ID,
			request.RequesterName,
			deciderName,
			channel.ID,
		),
		colorGreen,
	))

	w.store.Delete(request.ID)
	w.editDeferred(ctx, i, fmt.Sprintf("✅ Approved! Channel created: <#%s>", channel.ID))
	log.InfoContext(
		ctx,
		"explanation request approved",
		"request", request,
		"channel_id", channel.ID,
		"decided_by", deciderName,
		"edited", edited,
	)
}

// editDeferred fills in a deferred ephemeral interaction response.
func (w *ReviewWorkflow) editDeferred(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	content string,
) {
	_, err := w.session.InteractionResponseEdit(
		i.Interaction,
		&discordgo.WebhookEdit{Content: &content},
		discordgo.WithContext(ctx),
	)
	if err != nil {
		w.logger.ErrorContext(ctx, "error editing deferred response", tint.Err(err))
	}
}

// notifyRequesterApproved DMs the requester about the approval.
// Best-effort: closed DMs are logged, never fatal.
func (w *ReviewWorkflow) notifyRequesterApproved(
	ctx context.Context,
	request ExplanationRequest,
	channelID string,
) {
	embed := &discordgo.MessageEmbed{
		Title: "✅ Your explanation request was approved!",
		Description: fmt.Sprintf(
			"Your explanation **%s** has been published: <#%s>",
			request.RoomName,
			channelID,
		),
		Color:     colorGreen,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	w.sendDM(ctx, request.RequesterID, embed)
}

// sendDM opens a DM channel with the user and sends the embed.
func (w *ReviewWorkflow) sendDM(
	ctx context.Context,
	userID string,
	embed *discordgo.MessageEmbed,
) {
	dm, err := w.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		w.logger.WarnContext(
			ctx,
			"could not open DM channel",
			tint.Err(err),
			"user_id", userID,
		)
		return
	}
	if _, err = w.session.ChannelMessageSendEmbed(
		dm.ID,
		embed,
		discordgo.WithContext(ctx),
	); err != nil {
		w.logger.WarnContext(
			ctx,
			"could not send DM",
			tint.Err(err),
			"user_id", userID,
		)
	}
}

// updateCardApproved rewrites the review card as a decided record and
// strips its buttons so the decision can't be repeated.
func (w *ReviewWorkflow) updateCardApproved(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	request ExplanationRequest,
	deciderName string,
	channelID string,
	edited bool,
) {
	title := "✅ Request approved"
	if edited {
		title = "✅ Request approved (with edits)"
	}
	fields := []*discordgo.MessageEmbedField{
		{
			Name:   "👤 Requester",
			Value:  fmt.Sprintf("%s (<@%s>)", request.RequesterName, request.RequesterID),
			Inline: true,
		},
		{
			Name:   "👮 Decided by",
			Value:  deciderName,
			Inline: true,
		},
		{
			Name:   "📺 Channel",
			Value:  fmt.Sprintf("<#%s>", channelID),
			Inline: true,
		},
		{
			Name:   "🕒 Decided",
			Value:  relativeTimestamp(time.Now()),
			Inline: true,
		},
	}
	if edited {
		if request.CategoryID != request.OriginalCategoryID {
			fields = append(fields, &discordgo.MessageEmbedField{
				Name: "📁 Category (edited)",
				Value: fmt.Sprintf(
					"`%s` → `%s`",
					request.OriginalCategoryID,
					request.CategoryID,
				),
				Inline: true,
			})
		}
		if request.RoomName != request.OriginalRoomName {
			fields = append(fields, &discordgo.MessageEmbedField{
				Name: "🏷️ Channel name (edited)",
				Value: fmt.Sprintf(
					"%s → %s",
					request.OriginalRoomName,
					request.RoomName,
				),
				Inline: true,
			})
		}
	}
	embed := &discordgo.MessageEmbed{
		Title:  title,
		Color:  colorGreen,
		Fields: fields,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Request ID: %s", request.ID),
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	w.replaceCard(ctx, i, embed)
}

// replaceCard edits the review card message the interaction came from,
// replacing its embed and removing all components.
func (w *ReviewWorkflow) replaceCard(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	embed *discordgo.MessageEmbed,
) {
	if i.Message == nil {
		return
	}
	embeds := []*discordgo.MessageEmbed{embed}
	components := []discordgo.MessageComponent{}
	_, err := w.session.ChannelMessageEditComplex(
		&discordgo.MessageEdit{
			Channel:    i.Message.ChannelID,
			ID:         i.Message.ID,
			Embeds:     &embeds,
			Components: &components,
		},
		discordgo.WithContext(ctx),
	)
	if err != nil {
		w.logger.ErrorContext(ctx, "error updating review card", tint.Err(err))
	}
}

// announceApproval posts the public notice, when an announce channel
// is configured.
func (w *ReviewWorkflow) announceApproval(
	ctx context.Context,
	request ExplanationRequest,
	channelID string,
) {
	if w.config.AnnounceChannelID == "" {
		return
	}
	if _, err := w.session.ChannelMessageSend(
		w.config.AnnounceChannelID,
		announceText(request, channelID),
		discordgo.WithContext(ctx),
	); err != nil {
		w.logger.ErrorContext(ctx, "error posting announcement", tint.Err(err))
	}
}

// handleReject opens the rejection reason modal.
func (w *ReviewWorkflow) handleReject(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	requestID string,
) {
	if _, ok := w.store.Get(requestID); !ok {
		w.respondNotFound(ctx, i)
		return
	}
	if err := w.session.InteractionRespond(
		i.Interaction,
		rejectReasonModal(requestID),
		discordgo.WithContext(ctx),
	); err != nil {
		w.logger.ErrorContext(ctx, "error opening rejection modal", tint.Err(err))
	}
}

// handleRejectReasonModal finalizes a rejection: DM the requester with
// the reason, rewrite the review card, audit, and delete the request.
func (w *ReviewWorkflow) handleRejectReasonModal(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	requestID string,
) {
	log, lok := ContextLogger(ctx)
	if !lok || log == nil {
		log = w.logger
	}
	request, ok := w.store.Get(requestID)
	if !ok {
		w.respondNotFound(ctx, i)
		return
	}

	reason := modalTextValue(i.ModalSubmitData(), modalInputRejectReason)
	decider := getDiscordUser(i)
	deciderName := "unknown"
	if decider != nil {
		deciderName = decider.Username
	}

	if err := w.session.InteractionRespond(
		i.Interaction,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Flags: discordgo.MessageFlagsEphemeral,
			},
		},
		discordgo.WithContext(ctx),
	); err != nil {
		log.ErrorContext(ctx, "error deferring rejection response", tint.Err(err))
		return
	}

	w.sendDM(ctx, request.RequesterID, &discordgo.MessageEmbed{
		Title: "❌ Your explanation request was rejected",
		Description: fmt.Sprintf(
			"Your request for channel **%s** was not approved.",
			request.RoomName,
		),
		Color: colorRed,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:  "Reason",
				Value: reason,
			},
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})

	w.replaceCard(ctx, i, &discordgo.MessageEmbed{
		Title: "❌ Request rejected",
		Color: colorRed,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   "👤 Requester",
				Value:  fmt.Sprintf("%s (<@%s>)", request.RequesterName, request.RequesterID),
				Inline: true,
			},
			{
				Name:   "👮 Decided by",
				Value:  deciderName,
				Inline: true,
			},
			{
				Name:   "🕒 Decided",
				Value:  relativeTimestamp(time.Now()),
				Inline: true,
			},
			{
				Name:  "📝 Reason",
				Value: truncateWithEllipsis(reason, rejectReasonCardLimit),
			},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Request ID: %s", request.ID),
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})

	w.audit.Send(ctx, auditEmbed(
		"❌ Explanation request rejected",
		fmt.Sprintf(
			"Request `%s` by **%s** rejected by **%s**: %s",
			request.ID,
			request.RequesterName,
			deciderName,
			truncateWithEllipsis(reason, rejectReasonAuditLimit),
		),
		colorRed,
	))

	w.store.Delete(request.ID)
	w.editDeferred(ctx, i, "❌ Request rejected. The requester has been notified.")
	log.InfoContext(
		ctx,
		"explanation request rejected",
		"request", request,
		"decided_by", deciderName,
	)
}
