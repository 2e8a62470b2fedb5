package cherry

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	msgScheduleInvalidDate = "❌ Invalid date format, please use YYYY-MM-DD"
	msgScheduleSet         = "🕒 Channel %s is set to be deleted on %s!"
	msgScheduleNotFound    = "⚠️ No scheduled deletion found for %s."
	msgScheduleCanceled    = "✅ The deletion schedule for %s has been successfully canceled."
	msgScheduleEmpty       = "📭 No channels are currently scheduled for deletion."
	msgScheduleHeader      = "📅 **Scheduled Channel Deletions:**\n"
	msgScheduleFailed      = "❌ An error occurred, please try again later!"

	scheduleListDateFormat = "Mon Jan 02 2006"
)

func (c *Cherry) commandDeleteChannel(ctx context.Context, r *Responder) error {
	if err := r.Defer(ctx, true); err != nil {
		return err
	}
	opts := r.Options()
	channelID := optionID(opts, "channel")
	name := resolvedChannelName(r.Interaction(), channelID)
	date := strings.TrimSpace(optionString(opts, "date"))

	at, err := parseDeletionDate(date, c.config.Location())
	if err != nil {
		return r.EditReply(ctx, ReplyMessage{Content: msgScheduleInvalidDate})
	}
	if err = c.deletions.Schedule(ctx, channelID, at); err != nil {
		return persistenceFailure(msgScheduleFailed, err)
	}
	return r.EditReply(ctx, ReplyMessage{Content: fmt.Sprintf(msgScheduleSet, name, date)})
}

func (c *Cherry) commandCancelSchedule(ctx context.Context, r *Responder) error {
	if err := r.Defer(ctx, true); err != nil {
		return err
	}
	channelID := optionID(r.Options(), "channel")
	name := resolvedChannelName(r.Interaction(), channelID)

	err := c.deletions.Cancel(ctx, channelID)
	switch {
	case errors.Is(err, ErrNotFound):
		return r.EditReply(ctx, ReplyMessage{Content: fmt.Sprintf(msgScheduleNotFound, name)})
	case err != nil:
		return persistenceFailure(msgScheduleFailed, err)
	}
	return r.EditReply(ctx, ReplyMessage{Content: fmt.Sprintf(msgScheduleCanceled, name)})
}

func (c *Cherry) commandShowDeleteSchedule(ctx context.Context, r *Responder) error {
	if err := r.Defer(ctx, true); err != nil {
		return err
	}
	pending := c.deletions.List(ctx)
	if len(pending) == 0 {
		return r.EditReply(ctx, ReplyMessage{Content: msgScheduleEmpty})
	}
	loc := c.config.Location()
	var b strings.Builder
	b.WriteString(msgScheduleHeader)
	for _, d := range pending {
		fmt.Fprintf(&b, "🔹 <#%s> - **%s**\n", d.ChannelID, d.At.In(loc).Format(scheduleListDateFormat))
	}
	return r.EditReply(
		ctx,
		ReplyMessage{Content: shortenString(b.String(), discordMaxMessageLength)},
	)
}
