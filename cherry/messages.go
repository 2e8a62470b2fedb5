package cherry

import (
	"context"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// handleDiscordMessage applies, in order: the auto-ban gate, AI thread
// chat, the self-introduction reaction and keyword auto-responses. Bot
// messages are ignored entirely.
func (c *Cherry) handleDiscordMessage(ctx context.Context, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil || m.Author.Bot {
		return
	}
	logger := c.logger.With(slog.Group("message", messageLogAttrs(m.Message)...))
	ctx = WithLogger(ctx, logger)

	if c.automod.Enforce(ctx, m.Message) {
		return
	}

	rc := c.RuntimeConfig()

	if c.ai.IsThread(m.ChannelID) {
		if rc.AIChatEnabled {
			c.queueAIReply(ctx, m.Message)
		}
		return
	}
	if c.inThread(m.ChannelID) {
		return
	}

	if rc.AutoEmojiEnabled {
		c.reactSelfIntro(ctx, m.Message)
	}
	if rc.AutoResponsesEnabled {
		c.autoRespond(ctx, m.Message)
	}
}

// inThread reports whether channelID is a thread. Lookup failures are
// treated as "not a thread".
func (c *Cherry) inThread(channelID string) bool {
	ch, err := c.discord.session.Channel(channelID)
	if err != nil || ch == nil {
		return false
	}
	return isThread(ch.Type)
}

// queueAIReply posts a placeholder in the thread and queues the
// completion behind any earlier questions in the same thread. The
// placeholder is edited with the reply, or with the failure text.
func (c *Cherry) queueAIReply(ctx context.Context, m *discordgo.Message) {
	question := strings.TrimSpace(m.Content)
	if question == "" {
		return
	}
	logger, _ := ContextLogger(ctx)
	threadID := m.ChannelID
	userID := m.Author.ID
	userName := m.Author.Username
	if m.Member != nil && m.Member.Nick != "" {
		userName = m.Member.Nick
	}

	c.queue.Enqueue(
		ctx,
		threadID,
		func(ctx context.Context) error {
			placeholder, err := c.discord.session.ChannelMessageSend(threadID, msgAIThinking)
			if err != nil {
				return err
			}

			content, askErr := c.ai.Ask(ctx, threadID, userID, userName, question)
			if askErr != nil {
				logger.ErrorContext(ctx, "error getting ai reply", tint.Err(askErr))
				content = userMessage(askErr)
			}
			if _, err = c.discord.session.ChannelMessageEdit(
				threadID,
				placeholder.ID,
				shortenString(content, discordMaxMessageLength),
			); err != nil {
				return err
			}
			return askErr
		},
	)
}

func (c *Cherry) reactSelfIntro(ctx context.Context, m *discordgo.Message) {
	guild := c.config.Guild
	if guild == nil || guild.SelfIntroChannelID == "" || m.ChannelID != guild.SelfIntroChannelID {
		return
	}
	emoji := reactionEmoji(guild.SelfIntroEmoji)
	if emoji == "" {
		return
	}
	if err := c.discord.session.MessageReactionAdd(m.ChannelID, m.ID, emoji); err != nil {
		logger, _ := ContextLogger(ctx)
		logger.ErrorContext(ctx, "error adding self-introduction reaction", tint.Err(err))
	}
}

func (c *Cherry) autoRespond(ctx context.Context, m *discordgo.Message) {
	reply, ok := c.autoResponder.Respond(m.Content)
	if !ok {
		return
	}
	if _, err := c.discord.session.ChannelMessageSendReply(
		m.ChannelID,
		reply,
		m.Reference(),
	); err != nil {
		logger, _ := ContextLogger(ctx)
		logger.ErrorContext(ctx, "error sending auto-response", tint.Err(err))
	}
}
