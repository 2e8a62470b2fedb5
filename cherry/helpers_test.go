package cherry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"
)

// mockDiscordSession records every call made against it. Methods not
// implemented here panic via the embedded nil interface.
type mockDiscordSession struct {
	DiscordSessionHandler

	mu     sync.Mutex
	Calls  []string
	errs   map[string]error
	nextID int

	channels      map[string]*discordgo.Channel
	guildChannels []*discordgo.Channel
	history       []*discordgo.Message

	sent        []*discordgo.MessageSend
	replies     []string
	edits       map[string]string
	bans        []string
	reactions   []string
	permissions []mockPermissionSet
	deleted     []string
	LastStatus  string
	registered  []*discordgo.ApplicationCommand
}

type mockPermissionSet struct {
	ChannelID string
	TargetID  string
	Allow     int64
	Deny      int64
}

func newMockDiscordSession() *mockDiscordSession {
	return &mockDiscordSession{
		errs:     map[string]error{},
		channels: map[string]*discordgo.Channel{},
		edits:    map[string]string{},
	}
}

func (m *mockDiscordSession) call(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, name)
	return m.errs[name]
}

func (m *mockDiscordSession) failOn(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[name] = err
}

func (m *mockDiscordSession) id() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return fmt.Sprintf("%d", 1000+m.nextID)
}

func (m *mockDiscordSession) called(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c == name {
			n++
		}
	}
	return n
}

func (m *mockDiscordSession) Open() error {
	return m.call("Open")
}

func (m *mockDiscordSession) Close() error {
	return m.call("Close")
}

func (m *mockDiscordSession) AddHandler(any) func() {
	_ = m.call("AddHandler")
	return func() {}
}

func (m *mockDiscordSession) SetIdentify(discordgo.Identify) {
	_ = m.call("SetIdentify")
}

func (m *mockDiscordSession) UpdateStatusComplex(data discordgo.UpdateStatusData) error {
	if err := m.call("UpdateStatusComplex"); err != nil {
		return err
	}
	m.mu.Lock()
	m.LastStatus = data.Status
	m.mu.Unlock()
	return nil
}

func (m *mockDiscordSession) ApplicationCommandBulkOverwrite(
	_ string,
	_ string,
	commands []*discordgo.ApplicationCommand,
	_ ...discordgo.RequestOption,
) ([]*discordgo.ApplicationCommand, error) {
	if err := m.call("ApplicationCommandBulkOverwrite"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.registered = commands
	m.mu.Unlock()
	return commands, nil
}

func (m *mockDiscordSession) ChannelMessageSend(
	channelID string,
	content string,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	if err := m.call("ChannelMessageSend"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.sent = append(m.sent, &discordgo.MessageSend{Content: content})
	m.mu.Unlock()
	return &discordgo.Message{ID: m.id(), ChannelID: channelID, Content: content}, nil
}

func (m *mockDiscordSession) ChannelMessageSendComplex(
	channelID string,
	data *discordgo.MessageSend,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	if err := m.call("ChannelMessageSendComplex"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.sent = append(m.sent, data)
	m.mu.Unlock()
	return &discordgo.Message{ID: m.id(), ChannelID: channelID, Content: data.Content}, nil
}

func (m *mockDiscordSession) ChannelMessageSendReply(
	channelID string,
	content string,
	_ *discordgo.MessageReference,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	if err := m.call("ChannelMessageSendReply"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.replies = append(m.replies, content)
	m.mu.Unlock()
	return &discordgo.Message{ID: m.id(), ChannelID: channelID, Content: content}, nil
}

func (m *mockDiscordSession) ChannelMessageEdit(
	channelID string,
	messageID string,
	content string,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	if err := m.call("ChannelMessageEdit"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.edits[messageID] = content
	m.mu.Unlock()
	return &discordgo.Message{ID: messageID, ChannelID: channelID, Content: content}, nil
}

func (m *mockDiscordSession) ChannelMessages(
	_ string,
	limit int,
	beforeID string,
	_ string,
	_ string,
	_ ...discordgo.RequestOption,
) ([]*discordgo.Message, error) {
	if err := m.call("ChannelMessages"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	start := 0
	if beforeID != "" {
		for idx, msg := range m.history {
			if msg.ID == beforeID {
				start = idx + 1
				break
			}
		}
	}
	end := min(start+limit, len(m.history))
	return m.history[start:end], nil
}

func (m *mockDiscordSession) Channel(
	channelID string,
	_ ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	if err := m.call("Channel"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[channelID]
	if !ok {
		return nil, &discordgo.RESTError{
			Response: &http.Response{StatusCode: http.StatusNotFound},
		}
	}
	return ch, nil
}

func (m *mockDiscordSession) GuildChannels(
	string,
	...discordgo.RequestOption,
) ([]*discordgo.Channel, error) {
	if err := m.call("GuildChannels"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*discordgo.Channel{}, m.guildChannels...), nil
}

func (m *mockDiscordSession) GuildChannelCreateComplex(
	guildID string,
	data discordgo.GuildChannelCreateData,
	_ ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	if err := m.call("GuildChannelCreateComplex"); err != nil {
		return nil, err
	}
	ch := &discordgo.Channel{
		ID:                   m.id(),
		GuildID:              guildID,
		Name:                 data.Name,
		Type:                 data.Type,
		ParentID:             data.ParentID,
		PermissionOverwrites: data.PermissionOverwrites,
	}
	m.mu.Lock()
	m.channels[ch.ID] = ch
	m.guildChannels = append(m.guildChannels, ch)
	m.mu.Unlock()
	return ch, nil
}

func (m *mockDiscordSession) ChannelDelete(
	channelID string,
	_ ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	if err := m.call("ChannelDelete"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, channelID)
	ch := m.channels[channelID]
	delete(m.channels, channelID)
	for idx, c := range m.guildChannels {
		if c.ID == channelID {
			m.guildChannels = append(m.guildChannels[:idx], m.guildChannels[idx+1:]...)
			break
		}
	}
	return ch, nil
}

func (m *mockDiscordSession) ChannelPermissionSet(
	channelID string,
	targetID string,
	_ discordgo.PermissionOverwriteType,
	allow int64,
	deny int64,
	_ ...discordgo.RequestOption,
) error {
	if err := m.call("ChannelPermissionSet"); err != nil {
		return err
	}
	m.mu.Lock()
	m.permissions = append(
		m.permissions,
		mockPermissionSet{ChannelID: channelID, TargetID: targetID, Allow: allow, Deny: deny},
	)
	m.mu.Unlock()
	return nil
}

func (m *mockDiscordSession) GuildBanCreateWithReason(
	_ string,
	userID string,
	_ string,
	_ int,
	_ ...discordgo.RequestOption,
) error {
	if err := m.call("GuildBanCreateWithReason"); err != nil {
		return err
	}
	m.mu.Lock()
	m.bans = append(m.bans, userID)
	m.mu.Unlock()
	return nil
}

func (m *mockDiscordSession) ThreadStartComplex(
	channelID string,
	data *discordgo.ThreadStart,
	_ ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	if err := m.call("ThreadStartComplex"); err != nil {
		return nil, err
	}
	ch := &discordgo.Channel{
		ID:       m.id(),
		Name:     data.Name,
		Type:     data.Type,
		ParentID: channelID,
	}
	m.mu.Lock()
	m.channels[ch.ID] = ch
	m.mu.Unlock()
	return ch, nil
}

func (m *mockDiscordSession) ThreadMemberAdd(string, string, ...discordgo.RequestOption) error {
	return m.call("ThreadMemberAdd")
}

func (m *mockDiscordSession) MessageReactionAdd(
	_ string,
	_ string,
	emojiID string,
	_ ...discordgo.RequestOption,
) error {
	if err := m.call("MessageReactionAdd"); err != nil {
		return err
	}
	m.mu.Lock()
	m.reactions = append(m.reactions, emojiID)
	m.mu.Unlock()
	return nil
}

// stubInteractionHandler is an InteractionHandler that records the
// responses sent through it
type stubInteractionHandler struct {
	interaction *discordgo.InteractionCreate
	respondErr  error

	mu        sync.Mutex
	responses []*discordgo.InteractionResponse
	edits     []*discordgo.WebhookEdit
	followUps []*discordgo.WebhookParams
}

func newStubHandler(i *discordgo.InteractionCreate) *stubInteractionHandler {
	return &stubInteractionHandler{interaction: i}
}

func (s *stubInteractionHandler) Respond(
	_ context.Context,
	r *discordgo.InteractionResponse,
) error {
	if s.respondErr != nil {
		return s.respondErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, r)
	return nil
}

func (s *stubInteractionHandler) Edit(
	_ context.Context,
	e *discordgo.WebhookEdit,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edits = append(s.edits, e)
	return &discordgo.Message{}, nil
}

func (s *stubInteractionHandler) FollowUp(
	_ context.Context,
	p *discordgo.WebhookParams,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.followUps = append(s.followUps, p)
	return &discordgo.Message{}, nil
}

func (*stubInteractionHandler) Delete(context.Context, ...discordgo.RequestOption) {}

func (s *stubInteractionHandler) GetInteraction() *discordgo.InteractionCreate {
	return s.interaction
}

func (*stubInteractionHandler) InteractionReceiveMethod() DiscordInteractionReceiveMethod {
	return discordInteractionReceiveMethodGateway
}

func (*stubInteractionHandler) Logger() *slog.Logger {
	return slog.Default()
}

// replyContent returns the content of the initial response
func (s *stubInteractionHandler) replyContent(t testing.TB) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.responses, 1)
	require.NotNil(t, s.responses[0].Data)
	return s.responses[0].Data.Content
}

func (s *stubInteractionHandler) lastEditContent(t testing.TB) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.edits)
	require.NotNil(t, s.edits[len(s.edits)-1].Content)
	return *s.edits[len(s.edits)-1].Content
}

func commandInteraction(
	name string,
	channelID string,
	user *discordgo.User,
	options ...*discordgo.ApplicationCommandInteractionDataOption,
) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:        "interaction-" + name,
			Type:      discordgo.InteractionApplicationCommand,
			GuildID:   testGuildID,
			ChannelID: channelID,
			Member:    &discordgo.Member{User: user},
			Data: discordgo.ApplicationCommandInteractionData{
				Name:    name,
				Options: options,
			},
		},
	}
}

func componentInteraction(
	customID string,
	channelID string,
	member *discordgo.Member,
) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:        "interaction-" + customID,
			Type:      discordgo.InteractionMessageComponent,
			GuildID:   testGuildID,
			ChannelID: channelID,
			Member:    member,
			Data:      discordgo.MessageComponentInteractionData{CustomID: customID},
		},
	}
}

func stringOption(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionString,
		Value: value,
	}
}

const testGuildID = "guild-1"

// fixedRand always returns the same values
type fixedRand struct {
	f float64
	n int
}

func (r fixedRand) Float64() float64 { return r.f }

func (r fixedRand) IntN(n int) int {
	if r.n >= n {
		return n - 1
	}
	return r.n
}

func newTestStore(t testing.TB) KeyValueStore {
	t.Helper()
	return newFileStore(t.TempDir())
}

func newTestDB(t testing.TB) DBI {
	t.Helper()
	ctx := context.Background()
	db, err := CreateDB(ctx, dbTypeSQLite, filepath.Join(t.TempDir(), "test.sqlite3"))
	require.NoError(t, err)
	require.NoError(t, configureSQLite(ctx, db))
	t.Cleanup(
		func() {
			if sqlDB, dbErr := db.DB(); dbErr == nil {
				_ = sqlDB.Close()
			}
		},
	)
	return NewDatabase(db, nil, false)
}

func (m *mockDiscordSession) ChannelMessageDelete(
	_ string,
	messageID string,
	_ ...discordgo.RequestOption,
) error {
	if err := m.call("ChannelMessageDelete"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, messageID)
	for idx, msg := range m.history {
		if msg.ID == messageID {
			m.history = append(m.history[:idx], m.history[idx+1:]...)
			break
		}
	}
	return nil
}

func writeFile(t testing.TB, path string, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}
