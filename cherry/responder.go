package cherry

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
)

var errAlreadyAcknowledged = errors.New("interaction already acknowledged")

// ReplyMessage is the content of a reply, edit or follow-up
type ReplyMessage struct {
	Content    string
	Ephemeral  bool
	Embeds     []*discordgo.MessageEmbed
	Components []discordgo.MessageComponent
	Files      []*discordgo.File
}

func (m ReplyMessage) flags() discordgo.MessageFlags {
	if m.Ephemeral {
		return discordgo.MessageFlagsEphemeral
	}
	return 0
}

// Responder tracks whether an interaction has been acknowledged, so
// exactly one initial response is ever sent. Anything after the
// initial response goes out as an edit or a follow-up.
type Responder struct {
	handler InteractionHandler

	mu           sync.Mutex
	acknowledged bool

	// awaitingEdit is set by Defer, and cleared once the deferred
	// response has been edited
	awaitingEdit bool
}

func NewResponder(handler InteractionHandler) *Responder {
	return &Responder{handler: handler}
}

// Interaction returns the interaction being responded to
func (r *Responder) Interaction() *discordgo.InteractionCreate {
	return r.handler.GetInteraction()
}

// Logger returns the handler's logger, or the default logger
func (r *Responder) Logger() *slog.Logger {
	if l := r.handler.Logger(); l != nil {
		return l
	}
	return slog.Default()
}

// User returns the invoking user
func (r *Responder) User() *discordgo.User {
	return getDiscordUser(r.Interaction())
}

// Member returns the invoking guild member, if any
func (r *Responder) Member() *discordgo.Member {
	return r.Interaction().Member
}

func (r *Responder) ChannelID() string {
	return r.Interaction().ChannelID
}

func (r *Responder) GuildID() string {
	return r.Interaction().GuildID
}

// Options returns the top-level command options, keyed by name
func (r *Responder) Options() map[string]*discordgo.ApplicationCommandInteractionDataOption {
	i := r.Interaction()
	if i.Type != discordgo.InteractionApplicationCommand {
		return map[string]*discordgo.ApplicationCommandInteractionDataOption{}
	}
	return discordInteractionOptions(i)
}

// Acknowledged reports whether an initial response (reply or defer) has
// been sent
func (r *Responder) Acknowledged() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acknowledged
}

// respond sends the initial response. It fails with errAlreadyAcknowledged
// if one was already sent.
func (r *Responder) respond(ctx context.Context, resp *discordgo.InteractionResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.acknowledged {
		return errAlreadyAcknowledged
	}
	if err := r.handler.Respond(ctx, resp); err != nil {
		return errors.Join(ErrExternalService, err)
	}
	r.acknowledged = true
	return nil
}

// Reply sends msg as the initial response
func (r *Responder) Reply(ctx context.Context, msg ReplyMessage) error {
	return r.respond(
		ctx,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content:    msg.Content,
				Embeds:     msg.Embeds,
				Components: msg.Components,
				Files:      msg.Files,
				Flags:      msg.flags(),
			},
		},
	)
}

// ReplyText is a shortcut for Reply with plain text
func (r *Responder) ReplyText(ctx context.Context, content string, ephemeral bool) error {
	return r.Reply(ctx, ReplyMessage{Content: content, Ephemeral: ephemeral})
}

// Defer acknowledges a command, showing a 'thinking' state until the
// response is edited or a follow-up is sent
func (r *Responder) Defer(ctx context.Context, ephemeral bool) error {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	if err := r.respond(
		ctx,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{Flags: flags},
		},
	); err != nil {
		return err
	}
	r.mu.Lock()
	r.awaitingEdit = true
	r.mu.Unlock()
	return nil
}

// DeferUpdate acknowledges a component interaction without changing
// the message the component is attached to
func (r *Responder) DeferUpdate(ctx context.Context) error {
	return r.respond(
		ctx,
		&discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate},
	)
}

// EditReply replaces the content of the initial response
func (r *Responder) EditReply(ctx context.Context, msg ReplyMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.acknowledged {
		return errors.New("interaction not acknowledged")
	}
	content := msg.Content
	edit := &discordgo.WebhookEdit{Content: &content}
	if msg.Embeds != nil {
		edit.Embeds = &msg.Embeds
	}
	if msg.Components != nil {
		edit.Components = &msg.Components
	}
	if len(msg.Files) > 0 {
		edit.Files = msg.Files
	}
	if _, err := r.handler.Edit(ctx, edit); err != nil {
		return errors.Join(ErrExternalService, err)
	}
	r.awaitingEdit = false
	return nil
}

// FollowUp sends an additional message. The interaction must already
// be acknowledged.
func (r *Responder) FollowUp(ctx context.Context, msg ReplyMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.acknowledged {
		return errors.New("interaction not acknowledged")
	}
	if _, err := r.handler.FollowUp(
		ctx,
		&discordgo.WebhookParams{
			Content:    msg.Content,
			Embeds:     msg.Embeds,
			Components: msg.Components,
			Files:      msg.Files,
			Flags:      msg.flags(),
		},
	); err != nil {
		return errors.Join(ErrExternalService, err)
	}
	return nil
}

// Send replies if nothing has been sent yet, and follows up otherwise
func (r *Responder) Send(ctx context.Context, msg ReplyMessage) error {
	if err := r.Reply(ctx, msg); !errors.Is(err, errAlreadyAcknowledged) {
		return err
	}
	return r.FollowUp(ctx, msg)
}

// Fail sends the user-facing message for err: as an ephemeral reply if
// nothing was sent yet, as an edit of a deferred response that hasn't
// been filled in, or as a follow-up otherwise.
func (r *Responder) Fail(ctx context.Context, err error) error {
	msg := ReplyMessage{Content: userMessage(err), Ephemeral: true}
	r.mu.Lock()
	awaitingEdit := r.awaitingEdit
	r.mu.Unlock()
	if awaitingEdit {
		return r.EditReply(ctx, msg)
	}
	return r.Send(ctx, msg)
}
