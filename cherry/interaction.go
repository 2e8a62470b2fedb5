package cherry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// InteractionHandler sends responses for a single Discord interaction.
//
// Implementations exist for interactions received over the gateway
// ([GatewayHandler]) and via webhook ([WebhookHandler]).
type InteractionHandler interface {
	// Respond sends the initial response to the interaction.
	Respond(ctx context.Context, i *discordgo.InteractionResponse) error

	// Edit modifies the initial interaction response.
	Edit(
		ctx context.Context,
		e *discordgo.WebhookEdit,
		opts ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// FollowUp sends an additional message after the initial response.
	FollowUp(
		ctx context.Context,
		params *discordgo.WebhookParams,
		opts ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// Delete removes the initial interaction response.
	Delete(ctx context.Context, opts ...discordgo.RequestOption)

	// GetInteraction returns the original InteractionCreate event.
	GetInteraction() *discordgo.InteractionCreate

	// InteractionReceiveMethod returns the method used to receive the
	// interaction (webhook or gateway).
	InteractionReceiveMethod() DiscordInteractionReceiveMethod

	// Logger returns the logger associated with this handler.
	Logger() *slog.Logger
}

// GatewayHandler implements [InteractionHandler] when receiving interactions
// via the discord websocket gateway.
type GatewayHandler struct {
	session     DiscordSessionHandler
	interaction *discordgo.InteractionCreate
	logger      *slog.Logger
}

func (GatewayHandler) InteractionReceiveMethod() DiscordInteractionReceiveMethod {
	return discordInteractionReceiveMethodGateway
}

func (w GatewayHandler) Respond(
	ctx context.Context,
	response *discordgo.InteractionResponse,
) error {
	err := w.session.InteractionRespond(w.interaction.Interaction, response)
	if err != nil {
		w.logger.ErrorContext(ctx, "error responding to interaction", tint.Err(err))
	} else {
		w.logger.DebugContext(ctx, "responded to interaction", "response_type", response.Type)
	}
	return err
}

func (w GatewayHandler) GetInteraction() *discordgo.InteractionCreate {
	return w.interaction
}

func (w GatewayHandler) Edit(
	ctx context.Context,
	wh *discordgo.WebhookEdit,
	opts ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	msg, err := w.session.InteractionResponseEdit(w.interaction.Interaction, wh, opts...)
	if err != nil {
		w.logger.ErrorContext(ctx, "error editing interaction response", tint.Err(err))
	}
	return msg, err
}

func (w GatewayHandler) FollowUp(
	ctx context.Context,
	params *discordgo.WebhookParams,
	opts ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	msg, err := w.session.FollowupMessageCreate(w.interaction.Interaction, true, params, opts...)
	if err != nil {
		w.logger.ErrorContext(ctx, "error sending follow-up", tint.Err(err))
	}
	return msg, err
}

func (w GatewayHandler) Delete(ctx context.Context, opts ...discordgo.RequestOption) {
	if err := w.session.InteractionResponseDelete(w.interaction.Interaction, opts...); err != nil {
		w.logger.ErrorContext(ctx, "error deleting interaction response", tint.Err(err))
	}
}

func (w GatewayHandler) Logger() *slog.Logger {
	return w.logger
}

// InteractionLog records every interaction received, for auditing
//
//nolint:lll // struct tags can't be split
type InteractionLog struct {
	ModelUintID
	Method        DiscordInteractionReceiveMethod `json:"method" gorm:"type:string"` // webhook or gateway
	InteractionID string                          `json:"interaction_id" gorm:"not null"`
	Type          string                          `json:"type" gorm:"type:string"`
	Name          string                          `json:"name" gorm:"type:string"`
	UserID        string                          `json:"user_id" gorm:"index"`
	Username      string                          `json:"username" gorm:"type:string"`
	GuildID       string                          `json:"guild_id" gorm:"type:string"`
	ChannelID     string                          `json:"channel_id" gorm:"type:string"`
	Payload       string                          `json:"payload" gorm:"type:string"`
	CreatedAt     int64                           `gorm:"autoCreateTime:milli" json:"created_at,omitempty"`
}

func newInteractionLog(
	i *discordgo.InteractionCreate,
	method DiscordInteractionReceiveMethod,
) (*InteractionLog, error) {
	p, err := json.Marshal(i)
	if err != nil {
		return nil, fmt.Errorf("error marshaling interaction: %w", err)
	}

	rv := &InteractionLog{
		InteractionID: i.ID,
		Type:          i.Type.String(),
		GuildID:       i.GuildID,
		ChannelID:     i.ChannelID,
		Payload:       string(p),
		Method:        method,
	}
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		rv.Name = i.ApplicationCommandData().Name
	case discordgo.InteractionMessageComponent:
		rv.Name = i.MessageComponentData().CustomID
	}
	if u := getDiscordUser(i); u != nil {
		rv.UserID = u.ID
		rv.Username = u.Username
	}
	return rv, nil
}
