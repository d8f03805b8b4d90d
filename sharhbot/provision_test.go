package sharhbot

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvisioner(t testing.TB) (*ChannelProvisioner, *mockDiscordSession) {
	t.Helper()
	session := newMockDiscordSession()
	session.addCategory(testCategoryID, "Explanations")

	config := &ExplanationConfig{
		ReviewerRoleID: "reviewer-role",
		RewardRoleID:   "reward-role",
	}
	audit, err := newAuditLogger(session, "", nil)
	require.NoError(t, err)
	return newChannelProvisioner(session, config, audit, nil), session
}

func provisionRequest() ExplanationRequest {
	return ExplanationRequest{
		ID:            "req-1",
		CategoryID:    testCategoryID,
		RoomName:      "how-to-go",
		Content:       "explanation body",
		RequesterID:   "user-1",
		RequesterName: "someone",
	}
}

func TestValidateCategory(t *testing.T) {
	provisioner, session := newTestProvisioner(t)
	ctx := context.Background()

	category, err := provisioner.validateCategory(ctx, testCategoryID)
	require.NoError(t, err)
	assert.Equal(t, testCategoryID, category.ID)

	_, err = provisioner.validateCategory(ctx, "missing")
	assert.Error(t, err)

	// a text channel is not a valid category
	session.mu.Lock()
	session.channels["text-1"] = &discordgo.Channel{
		ID:   "text-1",
		Type: discordgo.ChannelTypeGuildText,
	}
	session.mu.Unlock()
	_, err = provisioner.validateCategory(ctx, "text-1")
	assert.ErrorContains(t, err, "not a category")
}

func TestChannelOverwritesWithoutReviewerRole(t *testing.T) {
	provisioner, _ := newTestProvisioner(t)
	provisioner.config.ReviewerRoleID = ""

	overwrites := provisioner.channelOverwrites(testGuildID, "user-1")
	require.Len(t, overwrites, 2)
	assert.Equal(t, testGuildID, overwrites[0].ID)
	assert.Equal(t, "user-1", overwrites[1].ID)
}

func TestProvisionAttachmentDegradesToRawURL(t *testing.T) {
	provisioner, session := newTestProvisioner(t)
	ctx := context.Background()

	channel, err := provisioner.Provision(
		ctx,
		testGuildID,
		ExplanationRequest{
			ID:            "req-1",
			CategoryID:    testCategoryID,
			RoomName:      "how-to-go",
			Content:       "watch http://x.com/clip.mp4 and read http://x.com/page",
			RequesterID:   "user-1",
			RequesterName: "someone",
		},
	)
	require.NoError(t, err)

	// the video got an embed, the plain link got a labeled raw URL
	embeds := session.sentEmbeds[channel.ID]
	require.Len(t, embeds, 2)
	require.NotNil(t, embeds[1].Video)
	assert.Equal(t, "http://x.com/clip.mp4", embeds[1].Video.URL)

	messages := session.sentMessages[channel.ID]
	require.Len(t, messages, 1)
	assert.Equal(t, "🔗 Link http://x.com/page", messages[0])
}

func TestProvisionTopicNamesRequester(t *testing.T) {
	provisioner, session := newTestProvisioner(t)

	_, err := provisioner.Provision(
		context.Background(),
		testGuildID,
		provisionRequest(),
	)
	require.NoError(t, err)

	require.Len(t, session.createdChannels, 1)
	assert.Equal(t, "Explanation by someone", session.createdChannels[0].Topic)
}

func TestGrantRewardRoleSkipsExistingHolder(t *testing.T) {
	provisioner, session := newTestProvisioner(t)

	session.mu.Lock()
	session.members[testGuildID+"/user-1"] = &discordgo.Member{
		User:  &discordgo.User{ID: "user-1"},
		Roles: []string{"reward-role"},
	}
	session.mu.Unlock()

	provisioner.GrantRewardRole(
		context.Background(),
		testGuildID,
		provisionRequest(),
	)
	assert.Empty(t, session.roleAdds)
}

func TestGrantRewardRoleDisabled(t *testing.T) {
	provisioner, session := newTestProvisioner(t)
	provisioner.config.RewardRoleID = ""

	provisioner.GrantRewardRole(
		context.Background(),
		testGuildID,
		provisionRequest(),
	)
	assert.Empty(t, session.roleAdds)
}

func TestGrantRewardRoleFailureIsNotFatal(t *testing.T) {
	provisioner, session := newTestProvisioner(t)
	session.roleAddErr = assert.AnError

	// must not panic or propagate
	provisioner.GrantRewardRole(
		context.Background(),
		testGuildID,
		provisionRequest(),
	)
	assert.Empty(t, session.roleAdds)
}
