package cherry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	msgPing             = "✅ Command executed successfully!"
	msgPublicityFailed  = "執行指令時發生錯誤！請稍後再試。"
	msgReloaded         = "🔄 Auto-responses, persona and channel policy have been reloaded."
	msgReloadFailed     = "❌ Reload failed, the previous configuration is still in use."
	publicityAnnounceMD = "# __☾__  音之幻想  __☽__ #\n" +
		"\n" +
		"- 好似天上點點繁星，看得見卻無法擁有。\n" +
		"- 不存在於現實，宛若幻想般的世界。\n" +
		"- 音，這個我們平常都會接觸到的事務，當它們串聯在一起時又可以從中感受到非凡。\n" +
		"\n" +
		"一起來沉浸在幻想的世界 .♡.\n" +
		"𝔂𝓲𝓷𝓱𝓾𝓪𝓷\n" +
		"𝓪 𝓱𝓸𝓹𝓮 𝓪𝓵𝔀𝓪𝔂𝓼 𝓫𝓮𝓼𝓲𝓭𝓮 𝔂𝓸𝓾\n" +
		"\n" +
		"音之幻想恭迎你的大駕 [☆](https://discord.gg/KjgWnkzYxr)"
)

func (*Cherry) commandPing(ctx context.Context, r *Responder) error {
	return r.ReplyText(ctx, msgPing, true)
}

func (*Cherry) commandPublicity(ctx context.Context, r *Responder) error {
	if err := r.ReplyText(ctx, publicityAnnounceMD, false); err != nil {
		return externalFailure(msgPublicityFailed, err)
	}
	return nil
}

func (c *Cherry) commandSign(ctx context.Context, r *Responder) error {
	if err := r.Defer(ctx, false); err != nil {
		return err
	}
	user := r.User()
	if user == nil {
		return persistenceFailure(msgSignInFailed, errors.New("no user on interaction"))
	}

	result, err := c.signIns.SignIn(ctx, user.ID)
	if err != nil {
		return persistenceFailure(msgSignInFailed, err)
	}
	if result.AlreadySigned {
		return r.EditReply(
			ctx,
			ReplyMessage{Content: fmt.Sprintf(msgSignInAlready, user.Username)},
		)
	}

	msg := ReplyMessage{
		Content: fmt.Sprintf(
			msgSignInSuccess,
			user.Username,
			result.Record.Streak,
			result.Record.Total,
		),
	}
	if imagePath := c.signIns.PickImage(); imagePath != "" {
		data, readErr := os.ReadFile(imagePath)
		if readErr != nil {
			r.Logger().ErrorContext(ctx, "error reading fortune image", "path", imagePath, tint.Err(readErr))
		} else {
			name := filepath.Base(imagePath)
			msg.Files = []*discordgo.File{
				{
					Name:        name,
					ContentType: mime.TypeByExtension(filepath.Ext(name)),
					Reader:      bytes.NewReader(data),
				},
			}
		}
	}
	return r.EditReply(ctx, msg)
}

func (c *Cherry) commandEmoji(ctx context.Context, r *Responder) error {
	emoji, ok := parseCustomEmoji(optionString(r.Options(), "emoji"))
	if !ok {
		return r.ReplyText(ctx, msgEmojiInvalid, false)
	}
	if err := r.Defer(ctx, false); err != nil {
		return err
	}
	data, err := c.emoji.Fetch(ctx, emoji)
	if err != nil {
		return err
	}
	return r.EditReply(
		ctx,
		ReplyMessage{
			Content: msgEmojiSent,
			Files: []*discordgo.File{
				{
					Name:        emoji.Filename(),
					ContentType: mime.TypeByExtension("." + emoji.ext()),
					Reader:      bytes.NewReader(data),
				},
			},
		},
	)
}

func (c *Cherry) commandReloadResponses(ctx context.Context, r *Responder) error {
	if err := r.Defer(ctx, true); err != nil {
		return err
	}
	if err := c.Reload(ctx); err != nil {
		return &UserError{Kind: ErrPersistence, Message: msgReloadFailed, Err: err}
	}
	return r.EditReply(ctx, ReplyMessage{Content: msgReloaded})
}
