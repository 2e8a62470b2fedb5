package cherry

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// CommandHandlerFunc runs a slash command. Any returned error is logged
// and turned into a reply by the router.
type CommandHandlerFunc func(ctx context.Context, r *Responder) error

// ComponentHandlerFunc handles a message component interaction. It owns
// its reply entirely.
type ComponentHandlerFunc func(ctx context.Context, r *Responder)

// Command is a slash command registration entry with its handler
type Command struct {
	Name                     string
	Description              string
	Options                  []*discordgo.ApplicationCommandOption
	DefaultMemberPermissions *int64
	Handler                  CommandHandlerFunc
}

// ApplicationCommand returns the command as sent to the discord bulk
// overwrite endpoint
func (c Command) ApplicationCommand() *discordgo.ApplicationCommand {
	dmPermission := false
	return &discordgo.ApplicationCommand{
		Type:                     discordgo.ChatApplicationCommand,
		Name:                     c.Name,
		Description:              c.Description,
		Options:                  c.Options,
		DefaultMemberPermissions: c.DefaultMemberPermissions,
		DMPermission:             &dmPermission,
	}
}

// InteractionRouter dispatches interactions to exactly one handler. Slash
// commands are checked against the channel policy first. Every command
// interaction gets exactly one initial reply; errors after that go out as
// follow-ups.
type InteractionRouter struct {
	commands   map[string]Command
	components map[string]ComponentHandlerFunc
	policy     func() *ChannelPolicy
	logger     *slog.Logger

	metricPolicyViolations atomic.Int64
	metricFailures         atomic.Int64
	metricUnknownCommands  atomic.Int64
}

func NewInteractionRouter(
	commands []Command,
	policy func() *ChannelPolicy,
	logger *slog.Logger,
) *InteractionRouter {
	if logger == nil {
		logger = slog.Default()
	}
	r := &InteractionRouter{
		commands:   make(map[string]Command, len(commands)),
		components: map[string]ComponentHandlerFunc{},
		policy:     policy,
		logger:     logger.With(loggerNameKey, "router"),
	}
	for _, cmd := range commands {
		r.commands[cmd.Name] = cmd
	}
	return r
}

// HandleComponentPrefix routes component interactions whose custom ID
// starts with prefix to fn
func (r *InteractionRouter) HandleComponentPrefix(prefix string, fn ComponentHandlerFunc) {
	r.components[prefix] = fn
}

// Commands returns the registered command names
func (r *InteractionRouter) Commands() map[string]Command {
	return r.commands
}

// Route handles a single interaction
func (r *InteractionRouter) Route(ctx context.Context, handler InteractionHandler) {
	i := handler.GetInteraction()
	logger := handler.Logger()
	if logger == nil {
		logger = r.logger
	}
	logger = logger.With(slog.Group("interaction", interactionLogAttrs(*i)...))
	ctx = WithLogger(ctx, logger)
	resp := NewResponder(handler)

	switch i.Type {
	case discordgo.InteractionPing:
		if err := handler.Respond(
			ctx,
			&discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong},
		); err != nil {
			logger.ErrorContext(ctx, "error responding to ping", tint.Err(err))
		}
	case discordgo.InteractionMessageComponent:
		r.routeComponent(ctx, resp, logger)
	case discordgo.InteractionApplicationCommand:
		r.routeCommand(ctx, resp, logger)
	default:
		logger.WarnContext(ctx, "unhandled interaction type", "type", i.Type.String())
	}
}

func (r *InteractionRouter) routeComponent(ctx context.Context, resp *Responder, logger *slog.Logger) {
	customID := resp.Interaction().MessageComponentData().CustomID
	for prefix, fn := range r.components {
		if !strings.HasPrefix(customID, prefix) {
			continue
		}
		func() {
			defer func() {
				if rc := recover(); rc != nil {
					r.recovered(ctx, resp, logger, rc)
				}
			}()
			fn(ctx, resp)
		}()
		return
	}

	logger.WarnContext(ctx, "unknown component", "custom_id", customID)
	if err := resp.ReplyText(ctx, msgUnknownComponent, true); err != nil {
		logger.ErrorContext(ctx, "error replying to unknown component", tint.Err(err))
	}
}

func (r *InteractionRouter) routeCommand(ctx context.Context, resp *Responder, logger *slog.Logger) {
	name := resp.Interaction().ApplicationCommandData().Name
	cmd, ok := r.commands[name]
	if !ok {
		r.metricUnknownCommands.Add(1)
		logger.ErrorContext(ctx, "no handler for command", "command", name)
		return
	}

	if err := r.policy().Check(name, resp.ChannelID()); err != nil {
		r.metricPolicyViolations.Add(1)
		logger.WarnContext(ctx, "command rejected by channel policy", "command", name, tint.Err(err))
		if replyErr := resp.Fail(ctx, err); replyErr != nil {
			logger.ErrorContext(ctx, "error sending policy rejection", tint.Err(replyErr))
		}
		return
	}

	defer func() {
		if rc := recover(); rc != nil {
			r.recovered(ctx, resp, logger, rc)
		}
	}()

	if err := cmd.Handler(ctx, resp); err != nil {
		r.metricFailures.Add(1)
		logger.ErrorContext(ctx, "command failed", "command", name, tint.Err(err))
		if replyErr := resp.Fail(ctx, err); replyErr != nil {
			logger.ErrorContext(ctx, "error sending failure reply", tint.Err(replyErr))
		}
		return
	}
	logger.InfoContext(ctx, "command completed", "command", name)
}

// recovered logs a handler panic and sends the generic failure reply
func (r *InteractionRouter) recovered(
	ctx context.Context,
	resp *Responder,
	logger *slog.Logger,
	rc any,
) {
	r.metricFailures.Add(1)
	logger.ErrorContext(
		ctx,
		"recovered from panic",
		"panic", fmt.Sprintf("%v", rc),
		"stack", string(debug.Stack()),
	)
	if err := resp.Fail(ctx, fmt.Errorf("panic: %v", rc)); err != nil {
		logger.ErrorContext(ctx, "error sending failure reply", tint.Err(err))
	}
}
