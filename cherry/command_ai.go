package cherry

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

const (
	msgAIThreadCreated = "✅ Private conversation created: [%s](<%s>). Continue the discussion inside the thread!"
	msgAIThreadFailed  = "❌ Failed to create a private conversation. Please try again later."

	aiThreadNameFormat      = "AI Chat - %s"
	aiThreadArchiveDuration = 60
)

func threadURL(guildID, threadID string) string {
	return fmt.Sprintf("https://discord.com/channels/%s/%s", guildID, threadID)
}

// commandAIChat opens a private thread for the invoking user and
// registers it as an AI conversation
func (c *Cherry) commandAIChat(ctx context.Context, r *Responder) error {
	if err := r.Defer(ctx, true); err != nil {
		return err
	}
	user := r.User()
	if user == nil {
		return externalFailure(msgAIThreadFailed, errors.New("no user on interaction"))
	}

	thread, err := c.discord.session.ThreadStartComplex(
		r.ChannelID(),
		&discordgo.ThreadStart{
			Name:                fmt.Sprintf(aiThreadNameFormat, user.Username),
			AutoArchiveDuration: aiThreadArchiveDuration,
			Type:                discordgo.ChannelTypeGuildPrivateThread,
			Invitable:           false,
		},
	)
	if err != nil {
		return externalFailure(msgAIThreadFailed, err)
	}
	if err = c.discord.session.ThreadMemberAdd(thread.ID, user.ID); err != nil {
		return externalFailure(msgAIThreadFailed, err)
	}
	if err = c.ai.RegisterThread(ctx, thread.ID); err != nil {
		return persistenceFailure(msgAIThreadFailed, err)
	}
	r.Logger().InfoContext(ctx, "created ai thread", "thread_id", thread.ID)

	return r.EditReply(
		ctx,
		ReplyMessage{
			Content: fmt.Sprintf(
				msgAIThreadCreated,
				thread.Name,
				threadURL(r.GuildID(), thread.ID),
			),
		},
	)
}
