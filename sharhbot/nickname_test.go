package sharhbot

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t testing.TB) *gorm.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.sqlite3")
	db, err := CreateDB(
		dbPath,
		tint.NewHandler(
			testWriter{t},
			&tint.Options{Level: slog.LevelWarn},
		),
		DefaultDatabaseSlowThreshold,
	)
	require.NoError(t, err)
	t.Cleanup(
		func() {
			sqlDB, _ := db.DB()
			if sqlDB != nil {
				_ = sqlDB.Close()
			}
		},
	)
	return db
}

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func newTestAssigner(t testing.TB) (*NicknameAssigner, *mockDiscordSession) {
	t.Helper()
	session := newMockDiscordSession()
	audit, err := newAuditLogger(session, "", nil)
	require.NoError(t, err)
	assigner := newNicknameAssigner(
		session,
		newTestDB(t),
		&NicknameConfig{Enabled: true, StartingID: DefaultStartingID},
		audit,
		nil,
	)
	return assigner, session
}

func memberAdd(guildID string, userID string, username string) *discordgo.GuildMemberAdd {
	return &discordgo.GuildMemberAdd{
		Member: &discordgo.Member{
			GuildID: guildID,
			User:    &discordgo.User{ID: userID, Username: username},
		},
	}
}

func TestNicknameFor(t *testing.T) {
	assert.Equal(t, "someone I (1000)", nicknameFor("someone", 1000))

	// long usernames are truncated so the suffix always fits
	long := "a-very-long-username-that-exceeds-the-cap"
	nickname := nicknameFor(long, 1234)
	assert.LessOrEqual(t, len([]rune(nickname)), discordMaxNicknameLength)
	assert.Contains(t, nickname, "I (1234)")
}

func TestHandleMemberAddSequentialIDs(t *testing.T) {
	assigner, session := newTestAssigner(t)
	ctx := context.Background()

	assigner.HandleMemberAdd(ctx, memberAdd("guild-1", "user-1", "first"))
	assigner.HandleMemberAdd(ctx, memberAdd("guild-1", "user-2", "second"))

	assert.Equal(t, "first I (1000)", session.nicknames["guild-1/user-1"])
	assert.Equal(t, "second I (1001)", session.nicknames["guild-1/user-2"])

	var counter GuildCounter
	require.NoError(
		t,
		assigner.db.Where("guild_id = ?", "guild-1").First(&counter).Error,
	)
	assert.Equal(t, int64(1002), counter.NextID)
}

func TestHandleMemberAddCountersArePerGuild(t *testing.T) {
	assigner, session := newTestAssigner(t)
	ctx := context.Background()

	assigner.HandleMemberAdd(ctx, memberAdd("guild-1", "user-1", "first"))
	assigner.HandleMemberAdd(ctx, memberAdd("guild-2", "user-1", "first"))

	assert.Equal(t, "first I (1000)", session.nicknames["guild-1/user-1"])
	assert.Equal(t, "first I (1000)", session.nicknames["guild-2/user-1"])
}

func TestHandleMemberAddRejoinKeepsID(t *testing.T) {
	assigner, session := newTestAssigner(t)
	ctx := context.Background()

	assigner.HandleMemberAdd(ctx, memberAdd("guild-1", "user-1", "first"))
	assigner.HandleMemberAdd(ctx, memberAdd("guild-1", "user-2", "second"))

	// user-1 leaves and rejoins; their original number sticks
	assigner.HandleMemberAdd(ctx, memberAdd("guild-1", "user-1", "first"))
	assert.Equal(t, "first I (1000)", session.nicknames["guild-1/user-1"])

	var counter GuildCounter
	require.NoError(
		t,
		assigner.db.Where("guild_id = ?", "guild-1").First(&counter).Error,
	)
	assert.Equal(t, int64(1002), counter.NextID)
}

func TestHandleMemberAddSkipsBots(t *testing.T) {
	assigner, session := newTestAssigner(t)

	event := memberAdd("guild-1", "bot-1", "beep")
	event.User.Bot = true
	assigner.HandleMemberAdd(context.Background(), event)

	assert.Empty(t, session.nicknames)
}

func TestHandleMemberAddDisabled(t *testing.T) {
	assigner, session := newTestAssigner(t)
	assigner.config.Enabled = false

	assigner.HandleMemberAdd(
		context.Background(),
		memberAdd("guild-1", "user-1", "first"),
	)
	assert.Empty(t, session.nicknames)
}

func TestHandleMemberAddNicknameFailureKeepsAssignment(t *testing.T) {
	assigner, session := newTestAssigner(t)
	session.nicknameErr = assert.AnError

	assigner.HandleMemberAdd(
		context.Background(),
		memberAdd("guild-1", "user-1", "first"),
	)

	// the ID allocation is durable even though the rename failed
	var assignment MemberAssignment
	require.NoError(
		t,
		assigner.db.Where(
			"guild_id = ? AND member_id = ?",
			"guild-1",
			"user-1",
		).First(&assignment).Error,
	)
	assert.Equal(t, int64(1000), assignment.AssignedID)
}

func TestCreateDBMigratesSchema(t *testing.T) {
	db := newTestDB(t)
	mg := db.Migrator()
	assert.True(t, mg.HasTable(&GuildCounter{}))
	assert.True(t, mg.HasTable(&MemberAssignment{}))
}
