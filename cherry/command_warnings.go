package cherry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	msgWarnBot          = "❌ Cannot warn a bot."
	msgWarnIssued       = "⚠️ **%s** has been warned!\n📌 **Violation Type**: %s\n📜 **Reason**: %s\n📂 **Recorded Time**: %s"
	msgWarningsNone     = "✅ **%s** has no warning records."
	msgWarningsHeader   = "⚠️ **%s**'s warning records:\n"
	msgWarningsEntry    = "**%d.** 📌 **Category:** %s\n📜 **Reason:** %s *(Recorded on %s )*"
	msgWarningsFailed   = "❌ Unable to execute the command. Please try again later."
	msgWarningsFailedZH = "❌ 無法執行該指令。請稍後重試"

	warningTimeFormat = "2006/1/2 15:04:05"
)

// clearWarningsText holds the replies for one of the clear warnings
// commands
type clearWarningsText struct {
	none    string
	cleared string
	failed  string
}

var (
	clearWarningsEnglish = clearWarningsText{
		none:    "✅ **%s** has no warnings to clear.",
		cleared: "🗑️ The most recent warning for **%s** has been cleared:\n📌 **Category:** %s\n📜 **Reason:** %s *(Recorded on %s)*",
		failed:  msgWarningsFailed,
	}
	clearWarningsChinese = clearWarningsText{
		none:    "✅ **%s** 沒有可以清除的警告",
		cleared: "🗑️ 已清除 **%s** 最近的一則警告：\n📌 **類別：** %s\n📜 **原因：** %s *(記錄於 %s)*",
		failed:  msgWarningsFailedZH,
	}
)

func (c *Cherry) warningTime(t time.Time) string {
	return t.In(c.config.Location()).Format(warningTimeFormat)
}

func (c *Cherry) commandWarn(ctx context.Context, r *Responder) error {
	opts := r.Options()
	user := resolvedUser(r.Interaction(), optionID(opts, "user"))
	if user == nil {
		return errors.New("missing user option")
	}
	if user.Bot {
		return r.ReplyText(ctx, msgWarnBot, true)
	}
	violation := optionString(opts, "violation")
	reason := optionString(opts, "reason")

	count, err := c.warnings.Add(ctx, user.ID, violation, reason)
	if err != nil {
		return persistenceFailure(msgWarningsFailed, err)
	}
	r.Logger().InfoContext(
		ctx,
		"warning issued",
		"warned_user_id", user.ID,
		"violation", violation,
		"warning_count", count,
	)
	return r.ReplyText(
		ctx,
		fmt.Sprintf(msgWarnIssued, user.Username, violation, reason, c.warningTime(time.Now())),
		true,
	)
}

func (c *Cherry) commandWarnings(ctx context.Context, r *Responder) error {
	user := resolvedUser(r.Interaction(), optionID(r.Options(), "user"))
	if user == nil {
		return errors.New("missing user option")
	}
	warnings := c.warnings.List(ctx, user.ID)
	if len(warnings) == 0 {
		return r.ReplyText(ctx, fmt.Sprintf(msgWarningsNone, user.Username), true)
	}

	entries := make([]string, 0, len(warnings))
	for n, w := range warnings {
		entries = append(
			entries,
			fmt.Sprintf(msgWarningsEntry, n+1, w.Violation, w.Reason, c.warningTime(w.Timestamp)),
		)
	}
	content := fmt.Sprintf(msgWarningsHeader, user.Username) + strings.Join(entries, "\n")
	return r.ReplyText(ctx, shortenString(content, discordMaxMessageLength), true)
}

func (c *Cherry) commandClearWarnings(text clearWarningsText) CommandHandlerFunc {
	return func(ctx context.Context, r *Responder) error {
		user := resolvedUser(r.Interaction(), optionID(r.Options(), "user"))
		if user == nil {
			return errors.New("missing user option")
		}
		popped, _, err := c.warnings.PopLatest(ctx, user.ID)
		switch {
		case errors.Is(err, ErrNotFound):
			return r.ReplyText(ctx, fmt.Sprintf(text.none, user.Username), true)
		case err != nil:
			return persistenceFailure(text.failed, err)
		}
		return r.ReplyText(
			ctx,
			fmt.Sprintf(
				text.cleared,
				user.Username,
				popped.Violation,
				popped.Reason,
				c.warningTime(popped.Timestamp),
			),
			true,
		)
	}
}
