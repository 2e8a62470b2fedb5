package cherry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	autobanReason       = "AutoBan: Sent message in restricted channel."
	autobanEmbedTitle   = "🚨 AutoBan Activated"
	autobanEmbedColor   = 0xff0000
	autobanNoticeFormat = "🚨 %s has been banned for sending a message in an AutoBan channel."
)

// AutoModerationGate bans anyone posting in a flagged channel. The set
// of flagged channels is kept in memory for constant-time checks on
// every message, and written through to the autoban document.
type AutoModerationGate struct {
	doc     *Document[map[string]bool]
	session DiscordSessionHandler
	logger  *slog.Logger

	mu      sync.RWMutex
	flagged map[string]bool
}

func NewAutoModerationGate(
	store KeyValueStore,
	session DiscordSessionHandler,
	logger *slog.Logger,
) *AutoModerationGate {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(loggerNameKey, "automod")
	return &AutoModerationGate{
		doc:     NewDocument(store, documentAutoban, emptyMap[string, bool](), logger),
		session: session,
		logger:  logger,
		flagged: map[string]bool{},
	}
}

// Load replaces the in-memory set with the persisted one
func (g *AutoModerationGate) Load(ctx context.Context) {
	persisted := g.doc.Load(ctx)
	flagged := make(map[string]bool, len(persisted))
	for channelID, enabled := range persisted {
		if enabled {
			flagged[channelID] = true
		}
	}
	g.mu.Lock()
	g.flagged = flagged
	g.mu.Unlock()
}

// Enabled reports whether the channel is flagged
func (g *AutoModerationGate) Enabled(channelID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.flagged[channelID]
}

// Channels returns the flagged channel IDs, sorted
func (g *AutoModerationGate) Channels() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rv := make([]string, 0, len(g.flagged))
	for channelID := range g.flagged {
		rv = append(rv, channelID)
	}
	sort.Strings(rv)
	return rv
}

// Enable flags the channel
func (g *AutoModerationGate) Enable(ctx context.Context, channelID string) error {
	if _, err := g.doc.Update(
		ctx, func(v *map[string]bool) error {
			(*v)[channelID] = true
			return nil
		},
	); err != nil {
		return err
	}
	g.mu.Lock()
	g.flagged[channelID] = true
	g.mu.Unlock()
	g.logger.InfoContext(ctx, "autoban enabled", "channel_id", channelID)
	return nil
}

// Disable removes the flag from the channel. ErrNotFound is returned if
// the channel wasn't flagged.
func (g *AutoModerationGate) Disable(ctx context.Context, channelID string) error {
	if _, err := g.doc.Update(
		ctx, func(v *map[string]bool) error {
			if !(*v)[channelID] {
				return ErrNotFound
			}
			delete(*v, channelID)
			return nil
		},
	); err != nil {
		return err
	}
	g.mu.Lock()
	delete(g.flagged, channelID)
	g.mu.Unlock()
	g.logger.InfoContext(ctx, "autoban disabled", "channel_id", channelID)
	return nil
}

// Enforce bans the author of m if it was posted in a flagged channel,
// and posts a public notice. It returns true when the channel is
// flagged, in which case no other handling should happen for m.
// Ban and notice failures are logged, never returned.
func (g *AutoModerationGate) Enforce(ctx context.Context, m *discordgo.Message) bool {
	if m == nil || m.Author == nil || !g.Enabled(m.ChannelID) {
		return false
	}
	logger := g.logger.With(slog.Group("message", messageLogAttrs(m)...))

	if err := g.session.GuildBanCreateWithReason(
		m.GuildID,
		m.Author.ID,
		autobanReason,
		0,
	); err != nil {
		logger.ErrorContext(ctx, "error banning user", tint.Err(err))
		return true
	}
	logger.InfoContext(ctx, "user banned")

	if _, err := g.session.ChannelMessageSend(
		m.ChannelID,
		fmt.Sprintf(autobanNoticeFormat, m.Author.Username),
	); err != nil {
		logger.ErrorContext(ctx, "error sending ban notice", tint.Err(err))
	}
	return true
}

func autobanEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       autobanEmbedTitle,
		Description: "This channel has been set for AutoBan. Any user sending messages here will be automatically banned.",
		Color:       autobanEmbedColor,
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Be cautious while using this channel.",
		},
	}
}
