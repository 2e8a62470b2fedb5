package cherry

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	msgAutobanEnabled    = "✅ AutoBan has been enabled for %s. Users who send messages in this channel will be automatically banned."
	msgAutobanNotEnabled = "⚠️ AutoBan is not enabled for %s."
	msgAutobanDisabled   = "✅ AutoBan has been disabled for %s."
	msgAutobanFailed     = "❌ An error occurred, please try again later!"

	// autobanEmbedSearchLimit is how far back cancelautoban looks for
	// the warning embed to remove
	autobanEmbedSearchLimit = 50
)

func (c *Cherry) commandAutoban(ctx context.Context, r *Responder) error {
	if err := r.Defer(ctx, true); err != nil {
		return err
	}
	channelID := optionID(r.Options(), "channel")
	name := resolvedChannelName(r.Interaction(), channelID)

	if err := c.automod.Enable(ctx, channelID); err != nil {
		return persistenceFailure(msgAutobanFailed, err)
	}
	if _, err := c.discord.session.ChannelMessageSendComplex(
		channelID,
		&discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{autobanEmbed()}},
	); err != nil {
		return externalFailure(msgAutobanFailed, err)
	}
	return r.EditReply(ctx, ReplyMessage{Content: fmt.Sprintf(msgAutobanEnabled, name)})
}

func (c *Cherry) commandCancelAutoban(ctx context.Context, r *Responder) error {
	if err := r.Defer(ctx, true); err != nil {
		return err
	}
	channelID := optionID(r.Options(), "channel")
	name := resolvedChannelName(r.Interaction(), channelID)

	err := c.automod.Disable(ctx, channelID)
	switch {
	case errors.Is(err, ErrNotFound):
		return r.EditReply(ctx, ReplyMessage{Content: fmt.Sprintf(msgAutobanNotEnabled, name)})
	case err != nil:
		return persistenceFailure(msgAutobanFailed, err)
	}

	c.removeAutobanEmbed(ctx, r, channelID)
	return r.EditReply(ctx, ReplyMessage{Content: fmt.Sprintf(msgAutobanDisabled, name)})
}

// removeAutobanEmbed deletes the most recent AutoBan warning embed from
// the channel. Failures are only logged, since the channel is already
// unflagged.
func (c *Cherry) removeAutobanEmbed(ctx context.Context, r *Responder, channelID string) {
	logger := r.Logger()
	messages, err := c.discord.session.ChannelMessages(
		channelID,
		autobanEmbedSearchLimit,
		"",
		"",
		"",
	)
	if err != nil {
		logger.ErrorContext(ctx, "error fetching channel messages", tint.Err(err))
		return
	}
	for _, m := range messages {
		if m == nil || len(m.Embeds) == 0 || m.Embeds[0].Title != autobanEmbedTitle {
			continue
		}
		if err = c.discord.session.ChannelMessageDelete(channelID, m.ID); err != nil {
			logger.ErrorContext(ctx, "error deleting autoban embed", tint.Err(err))
		}
		return
	}
}
