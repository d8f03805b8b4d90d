package sharhbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"gorm.io/gorm"
)

// NicknameAssigner gives each new guild member a sequential ID,
// rendered into their nickname. Counters are per guild and persist
// across restarts; a member who leaves and rejoins keeps the number
// they were first assigned.
type NicknameAssigner struct {
	session DiscordSessionHandler
	db      *gorm.DB
	config  *NicknameConfig
	audit   *AuditLogger
	logger  *slog.Logger
}

func newNicknameAssigner(
	session DiscordSessionHandler,
	db *gorm.DB,
	config *NicknameConfig,
	audit *AuditLogger,
	logger *slog.Logger,
) *NicknameAssigner {
	if logger == nil {
		logger = slog.Default()
	}
	return &NicknameAssigner{
		session: session,
		db:      db,
		config:  config,
		audit:   audit,
		logger:  logger.With(loggerNameKey, "nickname_assigner"),
	}
}

// nicknameFor renders the assigned nickname, truncated to Discord's
// 32-character cap. The numeric suffix survives truncation.
func nicknameFor(username string, assignedID int64) string {
	suffix := fmt.Sprintf(" I (%d)", assignedID)
	maxName := discordMaxNicknameLength - len([]rune(suffix))
	if maxName < 0 {
		maxName = 0
	}
	return truncate(username, maxName) + suffix
}

// nextAssignment allocates the member's sequential ID inside a single
// transaction. An existing assignment is returned as-is; otherwise the
// guild counter is read (created at the configured starting ID if
// missing), incremented, and the assignment recorded.
func (n *NicknameAssigner) nextAssignment(
	ctx context.Context,
	guildID string,
	memberID string,
) (MemberAssignment, error) {
	var assignment MemberAssignment
	err := n.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		findErr := tx.Where(
			"guild_id = ? AND member_id = ?",
			guildID,
			memberID,
		).First(&assignment).Error
		if findErr == nil {
			return nil
		}
		if !errors.Is(findErr, gorm.ErrRecordNotFound) {
			return findErr
		}

		var counter GuildCounter
		counterErr := tx.Where("guild_id = ?", guildID).First(&counter).Error
		switch {
		case errors.Is(counterErr, gorm.ErrRecordNotFound):
			counter = GuildCounter{GuildID: guildID, NextID: n.config.StartingID}
			if createErr := tx.Create(&counter).Error; createErr != nil {
				return createErr
			}
		case counterErr != nil:
			return counterErr
		}

		assignment = MemberAssignment{
			GuildID:    guildID,
			MemberID:   memberID,
			AssignedID: counter.NextID,
		}
		if createErr := tx.Create(&assignment).Error; createErr != nil {
			return createErr
		}
		return tx.Model(&GuildCounter{}).Where(
			"guild_id = ?",
			guildID,
		).Update("next_id", counter.NextID+1).Error
	})
	return assignment, err
}

// HandleMemberAdd assigns and applies a nickname for the new member.
// Bots are skipped.
func (n *NicknameAssigner) HandleMemberAdd(
	ctx context.Context,
	m *discordgo.GuildMemberAdd,
) {
	if !n.config.Enabled {
		return
	}
	if m.User == nil || m.User.Bot {
		return
	}
	log, ok := ContextLogger(ctx)
	if !ok || log == nil {
		log = n.logger
	}

	assignment, err := n.nextAssignment(ctx, m.GuildID, m.User.ID)
	if err != nil {
		log.ErrorContext(
			ctx,
			"error allocating member id",
			tint.Err(err),
			"guild_id", m.GuildID,
			"user_id", m.User.ID,
		)
		n.audit.Send(ctx, auditEmbed(
			"⚠️ Member ID allocation failed",
			fmt.Sprintf(
				"Could not allocate an ID for <@%s>: %s",
				m.User.ID,
				err.Error(),
			),
			colorYellow,
		))
		return
	}

	nickname := nicknameFor(m.User.Username, assignment.AssignedID)
	err = n.session.GuildMemberNickname(
		m.GuildID,
		m.User.ID,
		nickname,
		discordgo.WithContext(ctx),
		discordgo.WithAuditLogReason("Sequential member ID assignment"),
	)
	if err != nil {
		log.ErrorContext(
			ctx,
			"error setting member nickname",
			tint.Err(err),
			"guild_id", m.GuildID,
			"user_id", m.User.ID,
			"nickname", nickname,
		)
		n.audit.Send(ctx, auditEmbed(
			"⚠️ Nickname assignment failed",
			fmt.Sprintf(
				"Assigned ID `%d` to <@%s> but could not set nickname `%s`: %s",
				assignment.AssignedID,
				m.User.ID,
				nickname,
				err.Error(),
			),
			colorYellow,
		))
		return
	}

	if saveErr := n.db.WithContext(ctx).Model(&MemberAssignment{}).Where(
		"guild_id = ? AND member_id = ?",
		m.GuildID,
		m.User.ID,
	).Update("nickname", nickname).Error; saveErr != nil {
		log.WarnContext(ctx, "error recording nickname", tint.Err(saveErr))
	}

	log.InfoContext(
		ctx,
		"assigned member nickname",
		"guild_id", m.GuildID,
		"user_id", m.User.ID,
		"assigned_id", assignment.AssignedID,
		"nickname", nickname,
	)
	n.audit.Send(ctx, auditEmbed(
		"🔢 Member ID assigned",
		fmt.Sprintf(
			"<@%s> joined and was assigned ID `%d` (nickname: `%s`)",
			m.User.ID,
			assignment.AssignedID,
			nickname,
		),
		colorBlue,
	))
}
