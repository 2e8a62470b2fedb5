package cherry

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func messageCreate(channelID string, author *discordgo.User, content string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{
		Message: &discordgo.Message{
			ID:        "msg-" + channelID,
			ChannelID: channelID,
			GuildID:   testGuildID,
			Author:    author,
			Content:   content,
		},
	}
}

func TestHandleDiscordMessage_AutoResponse(t *testing.T) {
	tc := newTestCherry(t)
	ctx := context.Background()
	alice := &discordgo.User{ID: "u1", Username: "alice"}

	tc.handleDiscordMessage(ctx, messageCreate("general", alice, "Hello everyone"))
	assert.Equal(t, []string{"hi there"}, tc.session.replies)

	tc.handleDiscordMessage(ctx, messageCreate("general", alice, "nothing relevant"))
	assert.Len(t, tc.session.replies, 1)

	// bots are ignored entirely
	tc.handleDiscordMessage(ctx, messageCreate("general", &discordgo.User{ID: "b1", Bot: true}, "hello"))
	assert.Len(t, tc.session.replies, 1)

	// no auto-responses inside threads
	tc.session.channels["some-thread"] = &discordgo.Channel{
		ID:   "some-thread",
		Type: discordgo.ChannelTypeGuildPublicThread,
	}
	tc.handleDiscordMessage(ctx, messageCreate("some-thread", alice, "hello"))
	assert.Len(t, tc.session.replies, 1)

	tc.runtimeConfig.AutoResponsesEnabled = false
	tc.handleDiscordMessage(ctx, messageCreate("general", alice, "hello"))
	assert.Len(t, tc.session.replies, 1)
}

func TestHandleDiscordMessage_SelfIntroReaction(t *testing.T) {
	tc := newTestCherry(t)
	ctx := context.Background()
	alice := &discordgo.User{ID: "u1", Username: "alice"}

	tc.handleDiscordMessage(ctx, messageCreate("intro-chan", alice, "I'm alice, I like cherries"))
	assert.Equal(t, []string{"wave:123"}, tc.session.reactions)

	tc.handleDiscordMessage(ctx, messageCreate("general", alice, "no reaction here"))
	assert.Len(t, tc.session.reactions, 1)

	tc.runtimeConfig.AutoEmojiEnabled = false
	tc.handleDiscordMessage(ctx, messageCreate("intro-chan", alice, "me too"))
	assert.Len(t, tc.session.reactions, 1)
}

func TestHandleDiscordMessage_Autoban(t *testing.T) {
	tc := newTestCherry(t)
	ctx := context.Background()
	require.NoError(t, tc.automod.Enable(ctx, "trap"))

	tc.handleDiscordMessage(ctx, messageCreate("trap", &discordgo.User{ID: "spammer", Username: "spammer"}, "hello"))
	assert.Equal(t, []string{"spammer"}, tc.session.bans)
	// banned messages get no auto-response
	assert.Empty(t, tc.session.replies)
}

func TestHandleDiscordMessage_AIThread(t *testing.T) {
	tc := newTestCherry(t)
	ctx := context.Background()
	alice := &discordgo.User{ID: "u1", Username: "alice"}
	require.NoError(t, tc.ai.RegisterThread(ctx, "ai-thread"))

	tc.handleDiscordMessage(ctx, messageCreate("ai-thread", alice, "hello, who are you?"))
	tc.queue.Wait()

	require.Len(t, tc.session.sent, 1)
	assert.Equal(t, msgAIThinking, tc.session.sent[0].Content)
	require.Len(t, tc.session.edits, 1)
	for _, content := range tc.session.edits {
		assert.Contains(t, content, "hello from the ai")
	}
	// AI threads don't get keyword auto-responses
	assert.Empty(t, tc.session.replies)

	history := tc.ai.History(ctx, "ai-thread")
	require.Len(t, history, 1)
	assert.Equal(t, "hello, who are you?", history[0].User)

	tc.runtimeConfig.AIChatEnabled = false
	tc.handleDiscordMessage(ctx, messageCreate("ai-thread", alice, "still there?"))
	tc.queue.Wait()
	assert.Len(t, tc.session.sent, 1)
	tc.completions.AssertNumberOfCalls(t, "CreateChatCompletion", 1)
}

func TestHandleDiscordMessage_AIThreadUsesNickname(t *testing.T) {
	tc := newTestCherry(t)
	ctx := context.Background()
	require.NoError(t, tc.ai.RegisterThread(ctx, "ai-thread"))

	m := messageCreate("ai-thread", &discordgo.User{ID: "u1", Username: "alice"}, "hi")
	m.Member = &discordgo.Member{Nick: "Ali"}
	tc.handleDiscordMessage(ctx, m)
	tc.queue.Wait()

	m = messageCreate("ai-thread", &discordgo.User{ID: "u2", Username: "bob"}, "hello")
	m.Member = &discordgo.Member{}
	tc.handleDiscordMessage(ctx, m)
	tc.queue.Wait()

	history := tc.ai.History(ctx, "ai-thread")
	require.Len(t, history, 2)
	assert.Equal(t, "Ali", history[0].UserName)
	assert.Equal(t, "bob", history[1].UserName)
	assert.Contains(t, tc.completions.lastPrompt(t), "使用者 Ali (u1): hi")
}

func TestHandleDiscordMessage_AIFailureEditsPlaceholder(t *testing.T) {
	tc := newTestCherry(t)
	ctx := context.Background()
	require.NoError(t, tc.ai.RegisterThread(ctx, "ai-thread"))
	tc.completions.failWith(assert.AnError)

	tc.handleDiscordMessage(ctx, messageCreate("ai-thread", &discordgo.User{ID: "u1", Username: "alice"}, "hi"))
	tc.queue.Wait()

	require.Len(t, tc.session.edits, 1)
	for _, content := range tc.session.edits {
		assert.Equal(t, msgAIFailure, content)
	}
	assert.Empty(t, tc.ai.History(ctx, "ai-thread"))
}
