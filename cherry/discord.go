package cherry

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// discordMessageFetchLimit is the max number of messages discord returns
// per ChannelMessages call
const discordMessageFetchLimit = 100

// Discord manages the discord session, connection state and gateway
// event handlers.
type Discord struct {
	session                     DiscordSessionHandler
	config                      *DiscordConfig
	logger                      *slog.Logger
	publicKey                   ed25519.PublicKey
	metricConnects              atomic.Int64
	metricDisconnects           atomic.Int64
	connected                   atomic.Bool
	botUserID                   atomic.Value
	discordgoRemoveHandlerFuncs []func()
	c                           *Cherry
}

// newDiscord initializes a new Discord instance with the provided configuration
func newDiscord(config *DiscordConfig) (*Discord, error) {
	d := &Discord{
		config:                      config,
		discordgoRemoveHandlerFuncs: []func(){},
	}

	if config.WebhookServer.PublicKey != "" {
		publicKey, err := hex.DecodeString(config.WebhookServer.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("error decoding public key: %w", err)
		}
		d.publicKey = ed25519.PublicKey(publicKey)
	}

	return d, nil
}

// newSession creates a discordgo session for the configured bot token.
// State tracking is enabled so channel lookups can be served from cache.
func (d *Discord) newSession() (DiscordSessionHandler, error) {
	session := DiscordSession{logger: d.logger.With(loggerNameKey, "discord_session_handler")}
	disc, err := discordgo.New("Bot " + d.config.Token)
	if err != nil {
		return session, fmt.Errorf("error creating discord session: %w", err)
	}
	disc.SyncEvents = true
	disc.StateEnabled = true
	session.session = disc
	if d.config.httpClient != nil {
		disc.Client = d.config.httpClient
	}

	if err = session.SetLogLevel(d.config.DiscordGoLogLevel.Level()); err != nil {
		return session, err
	}
	return session, nil
}

// BotUserID returns the bot's user ID, as seen on the last Ready event.
// Before that, the application ID is returned (which is the same for
// bot applications).
func (d *Discord) BotUserID() string {
	if v, ok := d.botUserID.Load().(string); ok && v != "" {
		return v
	}
	return d.config.ApplicationID
}

func (d *Discord) handlerReady() func(s *discordgo.Session, r *discordgo.Ready) {
	return func(s *discordgo.Session, r *discordgo.Ready) {
		if r.User != nil {
			d.botUserID.Store(r.User.ID)
		}
		d.logger.Info(
			"ready",
			"session_id", r.SessionID,
			"user_id", d.BotUserID(),
			"guilds", len(r.Guilds),
		)
		if d.c != nil {
			rc := d.c.RuntimeConfig()
			if err := d.session.UpdateStatusComplex(presence(rc)); err != nil {
				d.logger.Error("error setting presence", tint.Err(err))
			}
		}
	}
}

func (d *Discord) handlerConnect() func(s *discordgo.Session, r *discordgo.Connect) {
	return func(s *discordgo.Session, _ *discordgo.Connect) {
		d.metricConnects.Add(1)
		d.connected.Store(true)
		var sessionID string
		if s != nil && s.State != nil {
			sessionID = s.State.SessionID
		}
		d.logger.Info("connected", "session_id", sessionID)
	}
}

func (d *Discord) handlerDisconnect() func(s *discordgo.Session, r *discordgo.Disconnect) {
	return func(s *discordgo.Session, _ *discordgo.Disconnect) {
		d.connected.Store(false)
		d.metricDisconnects.Add(1)
		var sessionID string
		if s != nil && s.State != nil {
			sessionID = s.State.SessionID
		}
		d.logger.Info("disconnected", "session_id", sessionID)
	}
}

// presence builds the gateway status update for the given runtime config
func presence(rc RuntimeConfig) discordgo.UpdateStatusData {
	data := discordgo.UpdateStatusData{Status: string(discordStatus(rc.DiscordStatus))}
	if rc.DiscordActivity != "" {
		data.Activities = []*discordgo.Activity{
			{Name: rc.DiscordActivity, Type: discordgo.ActivityTypeGame},
		}
	}
	return data
}

// registerCommands sends the given commands to the discord bulk overwrite
// endpoint, scoped to the configured guild when one is set
func (d *Discord) registerCommands(
	commands []*discordgo.ApplicationCommand,
	options ...discordgo.RequestOption,
) ([]*discordgo.ApplicationCommand, error) {
	created, err := d.session.ApplicationCommandBulkOverwrite(
		d.config.ApplicationID,
		d.config.GuildID,
		commands,
		options...,
	)
	if err != nil {
		return created, fmt.Errorf("%w: registering commands: %w", ErrExternalService, err)
	}
	if len(created) == 0 {
		d.logger.Warn("no commands registered")
	}
	return created, nil
}

// isDiscordNotFound reports whether err is a discord 404, or an
// 'unknown channel/message' error
func isDiscordNotFound(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeUnknownMessage:
			return true
		}
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}

// DiscordSessionHandler defines the subset of `discordgo.Session` methods
// used by the bot, to enable testing/mocking.
type DiscordSessionHandler interface {
	// Open creates a websocket connection to Discord
	Open() error

	// Close closes the websocket connection to Discord
	Close() error

	// AddHandler adds a discord gateway event handler
	AddHandler(handler any) func()

	// SetIdentify sets the identify object that's sent during the initial
	// handshake with the discord gateway
	SetIdentify(discordgo.Identify)

	// SetLogLevel modifies the session's log level
	SetLogLevel(lvl slog.Level) error

	// SetHTTPClient sets the HTTP client for the session
	SetHTTPClient(client *http.Client)

	// UpdateStatusComplex sends the given status update, untouched
	UpdateStatusComplex(data discordgo.UpdateStatusData) error

	// ApplicationCommandBulkOverwrite overwrites application commands,
	// for the guild if guildID is set, globally otherwise
	ApplicationCommandBulkOverwrite(
		appID string,
		guildID string,
		commands []*discordgo.ApplicationCommand,
		options ...discordgo.RequestOption,
	) ([]*discordgo.ApplicationCommand, error)

	// InteractionRespond sends the initial response to an interaction
	InteractionRespond(
		interaction *discordgo.Interaction,
		resp *discordgo.InteractionResponse,
		options ...discordgo.RequestOption,
	) error

	// InteractionResponseEdit modifies the initial interaction response
	InteractionResponseEdit(
		interaction *discordgo.Interaction,
		newresp *discordgo.WebhookEdit,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// InteractionResponseDelete deletes the initial interaction response
	InteractionResponseDelete(
		interaction *discordgo.Interaction,
		options ...discordgo.RequestOption,
	) error

	// FollowupMessageCreate sends a follow-up message for an interaction
	// that's already been responded to
	FollowupMessageCreate(
		interaction *discordgo.Interaction,
		wait bool,
		data *discordgo.WebhookParams,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	ChannelMessageSend(
		channelID string,
		content string,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	ChannelMessageSendComplex(
		channelID string,
		data *discordgo.MessageSend,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// ChannelMessageSendReply sends a message to the given channel, as a
	// reply to the referenced message
	ChannelMessageSendReply(
		channelID string,
		content string,
		reference *discordgo.MessageReference,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	ChannelMessageEdit(
		channelID string,
		messageID string,
		content string,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	ChannelMessageDelete(
		channelID string,
		messageID string,
		options ...discordgo.RequestOption,
	) error

	// ChannelMessages returns up to limit messages from the channel,
	// newest first
	ChannelMessages(
		channelID string,
		limit int,
		beforeID string,
		afterID string,
		aroundID string,
		options ...discordgo.RequestOption,
	) ([]*discordgo.Message, error)

	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)

	GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)

	GuildChannelCreateComplex(
		guildID string,
		data discordgo.GuildChannelCreateData,
		options ...discordgo.RequestOption,
	) (*discordgo.Channel, error)

	ChannelDelete(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)

	// ChannelPermissionSet creates or replaces the permission overwrite
	// for targetID on the channel
	ChannelPermissionSet(
		channelID string,
		targetID string,
		targetType discordgo.PermissionOverwriteType,
		allow int64,
		deny int64,
		options ...discordgo.RequestOption,
	) error

	GuildBanCreateWithReason(
		guildID string,
		userID string,
		reason string,
		days int,
		options ...discordgo.RequestOption,
	) error

	ThreadStartComplex(
		channelID string,
		data *discordgo.ThreadStart,
		options ...discordgo.RequestOption,
	) (*discordgo.Channel, error)

	ThreadMemberAdd(threadID string, memberID string, options ...discordgo.RequestOption) error

	MessageReactionAdd(
		channelID string,
		messageID string,
		emojiID string,
		options ...discordgo.RequestOption,
	) error
}

// DiscordSession implements DiscordSessionHandler, wrapping a
// [discordgo.Session](https://pkg.go.dev/github.com/bwmarrin/discordgo#Session)
type DiscordSession struct {
	session *discordgo.Session
	logger  *slog.Logger
}

func (d DiscordSession) Open() error {
	return d.session.Open()
}

func (d DiscordSession) Close() error {
	return d.session.Close()
}

func (d DiscordSession) AddHandler(handler any) func() {
	return d.session.AddHandler(handler)
}

// SetIdentify replaces the identify payload, keeping the token and
// connection properties discordgo.New filled in
func (d DiscordSession) SetIdentify(i discordgo.Identify) {
	current := d.session.Identify
	if i.Token == "" {
		i.Token = current.Token
	}
	if i.Properties == (discordgo.IdentifyProperties{}) {
		i.Properties = current.Properties
	}
	if i.LargeThreshold == 0 {
		i.LargeThreshold = current.LargeThreshold
	}
	i.Compress = i.Compress || current.Compress
	d.session.Identify = i
}

func (d DiscordSession) SetHTTPClient(client *http.Client) {
	d.session.Client = client
}

func (d DiscordSession) SetLogLevel(lvl slog.Level) error {
	switch lvl.Level() {
	case slog.LevelInfo:
		d.session.LogLevel = discordgo.LogInformational
	case slog.LevelWarn:
		d.session.LogLevel = discordgo.LogWarning
	case slog.LevelDebug:
		d.session.LogLevel = discordgo.LogDebug
	case slog.LevelError:
		d.session.LogLevel = discordgo.LogError
	default:
		return fmt.Errorf("invalid log level: %s", lvl)
	}
	return nil
}

func (d DiscordSession) UpdateStatusComplex(data discordgo.UpdateStatusData) error {
	return d.session.UpdateStatusComplex(data)
}

func (d DiscordSession) ApplicationCommandBulkOverwrite(
	appID string,
	guildID string,
	commands []*discordgo.ApplicationCommand,
	options ...discordgo.RequestOption,
) ([]*discordgo.ApplicationCommand, error) {
	created, err := d.session.ApplicationCommandBulkOverwrite(
		appID,
		guildID,
		commands,
		options...,
	)
	if err != nil {
		d.logger.Error("error overwriting discord commands", tint.Err(err))
		return created, err
	}
	for _, c := range created {
		d.logger.Info("registered command", "command", c.Name, "id", c.ID)
	}
	return created, nil
}

func (d DiscordSession) InteractionRespond(
	interaction *discordgo.Interaction,
	resp *discordgo.InteractionResponse,
	options ...discordgo.RequestOption,
) error {
	return d.session.InteractionRespond(interaction, resp, options...)
}

func (d DiscordSession) InteractionResponseEdit(
	interaction *discordgo.Interaction,
	newresp *discordgo.WebhookEdit,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.session.InteractionResponseEdit(interaction, newresp, options...)
}

func (d DiscordSession) InteractionResponseDelete(
	interaction *discordgo.Interaction,
	options ...discordgo.RequestOption,
) error {
	return d.session.InteractionResponseDelete(interaction, options...)
}

func (d DiscordSession) FollowupMessageCreate(
	interaction *discordgo.Interaction,
	wait bool,
	data *discordgo.WebhookParams,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.session.FollowupMessageCreate(interaction, wait, data, options...)
}

func (d DiscordSession) ChannelMessageSend(
	channelID string,
	content string,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.session.ChannelMessageSend(channelID, content, options...)
}

func (d DiscordSession) ChannelMessageSendComplex(
	channelID string,
	data *discordgo.MessageSend,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.session.ChannelMessageSendComplex(channelID, data, options...)
}

func (d DiscordSession) ChannelMessageSendReply(
	channelID string,
	content string,
	reference *discordgo.MessageReference,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	msg, err := d.session.ChannelMessageSendReply(channelID, content, reference, options...)
	if err != nil {
		d.logger.Error(
			"error sending message reply",
			tint.Err(err),
			"channel_id", channelID,
			"reference", reference,
		)
	}
	return msg, err
}

func (d DiscordSession) ChannelMessageEdit(
	channelID string,
	messageID string,
	content string,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.session.ChannelMessageEdit(channelID, messageID, content, options...)
}

func (d DiscordSession) ChannelMessageDelete(
	channelID string,
	messageID string,
	options ...discordgo.RequestOption,
) error {
	return d.session.ChannelMessageDelete(channelID, messageID, options...)
}

func (d DiscordSession) ChannelMessages(
	channelID string,
	limit int,
	beforeID string,
	afterID string,
	aroundID string,
	options ...discordgo.RequestOption,
) ([]*discordgo.Message, error) {
	return d.session.ChannelMessages(channelID, limit, beforeID, afterID, aroundID, options...)
}

// Channel returns the channel from the state cache when it's there,
// fetching it otherwise
func (d DiscordSession) Channel(
	channelID string,
	options ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	if d.session.State != nil {
		if ch, err := d.session.State.Channel(channelID); err == nil && ch != nil {
			return ch, nil
		}
	}
	return d.session.Channel(channelID, options...)
}

func (d DiscordSession) GuildChannels(
	guildID string,
	options ...discordgo.RequestOption,
) ([]*discordgo.Channel, error) {
	return d.session.GuildChannels(guildID, options...)
}

func (d DiscordSession) GuildChannelCreateComplex(
	guildID string,
	data discordgo.GuildChannelCreateData,
	options ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	ch, err := d.session.GuildChannelCreateComplex(guildID, data, options...)
	if err != nil {
		d.logger.Error("error creating channel", tint.Err(err), "name", data.Name)
	}
	return ch, err
}

func (d DiscordSession) ChannelDelete(
	channelID string,
	options ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	return d.session.ChannelDelete(channelID, options...)
}

func (d DiscordSession) ChannelPermissionSet(
	channelID string,
	targetID string,
	targetType discordgo.PermissionOverwriteType,
	allow int64,
	deny int64,
	options ...discordgo.RequestOption,
) error {
	return d.session.ChannelPermissionSet(channelID, targetID, targetType, allow, deny, options...)
}

func (d DiscordSession) GuildBanCreateWithReason(
	guildID string,
	userID string,
	reason string,
	days int,
	options ...discordgo.RequestOption,
) error {
	return d.session.GuildBanCreateWithReason(guildID, userID, reason, days, options...)
}

func (d DiscordSession) ThreadStartComplex(
	channelID string,
	data *discordgo.ThreadStart,
	options ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	return d.session.ThreadStartComplex(channelID, data, options...)
}

func (d DiscordSession) ThreadMemberAdd(
	threadID string,
	memberID string,
	options ...discordgo.RequestOption,
) error {
	return d.session.ThreadMemberAdd(threadID, memberID, options...)
}

func (d DiscordSession) MessageReactionAdd(
	channelID string,
	messageID string,
	emojiID string,
	options ...discordgo.RequestOption,
) error {
	return d.session.MessageReactionAdd(channelID, messageID, emojiID, options...)
}

// getDiscordUser returns the [discordgo.User] associated with the interaction.
// Users don't always appear in the same place in the interaction object, so
// this checks known areas.
func getDiscordUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i == nil || i.Interaction == nil {
		return nil
	}
	u := i.User
	if u == nil && i.Member != nil {
		u = i.Member.User
	}
	return u
}

// isThread reports whether the channel type is any kind of thread
func isThread(t discordgo.ChannelType) bool {
	switch t {
	case discordgo.ChannelTypeGuildPublicThread,
		discordgo.ChannelTypeGuildPrivateThread,
		discordgo.ChannelTypeGuildNewsThread:
		return true
	}
	return false
}
