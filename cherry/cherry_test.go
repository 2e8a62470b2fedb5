package cherry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCherry struct {
	*Cherry
	session     *mockDiscordSession
	completions *mockCompletionClient
	dir         string
}

// newTestCherry builds a fully initialized bot backed by a mock discord
// session, a temporary sqlite database and the file store. It must not
// run in parallel with other tests, since New replaces the default
// logger and the discordgo logger.
func newTestCherry(t *testing.T) *testCherry {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.Database = filepath.Join(dir, "cherry.sqlite3")
	cfg.PolicyFile = filepath.Join(dir, "policy.json")
	cfg.ResponsesFile = filepath.Join(dir, "responses.json")
	cfg.PersonaFile = filepath.Join(dir, "persona.json")
	cfg.ImagesDir = filepath.Join(dir, "images")
	cfg.AutoResponseChance = 1
	cfg.Timezone = "Asia/Taipei"
	cfg.Guild.SupportRoleIDs = []string{"support-role"}
	cfg.Guild.SelfIntroChannelID = "intro-chan"
	cfg.Guild.RestrictedChannelID = "c1"
	cfg.Guild.SelfIntroEmoji = "<:wave:123>"
	cfg.API.Secret = "test-secret"

	require.NoError(
		t,
		os.WriteFile(
			cfg.ResponsesFile,
			[]byte(`{"greeting": {"keywords": ["hello"], "responses": ["hi there"]}}`),
			0o600,
		),
	)

	c, err := New(cfg)
	require.NoError(t, err)

	session := newMockDiscordSession()
	c.discord.session = session
	c.db = newTestDB(t)

	rc := DefaultRuntimeConfig()
	_, err = c.db.Create(ctx, &rc)
	require.NoError(t, err)
	c.runtimeConfig = &rc

	require.NoError(t, c.initComponents(ctx))
	t.Cleanup(c.scheduler.Stop)

	client := newReplyingClient("hello from the ai")
	c.ai = NewAIChat(
		client,
		&AIConfig{Model: "test-model", MemoryTurns: DefaultAIMemoryTurns},
		c.store,
		c.Persona,
		nil,
	)
	return &testCherry{Cherry: c, session: session, completions: client, dir: dir}
}

// command routes a slash command invocation and returns the stub
// handler holding the responses
func (tc *testCherry) command(
	name string,
	channelID string,
	user *discordgo.User,
	options ...*discordgo.ApplicationCommandInteractionDataOption,
) *stubInteractionHandler {
	h := newStubHandler(commandInteraction(name, channelID, user, options...))
	tc.router.Route(context.Background(), h)
	return h
}

func TestCherry_ApplicationCommands(t *testing.T) {
	tc := newTestCherry(t)

	names := map[string]bool{}
	for _, cmd := range tc.ApplicationCommands() {
		names[cmd.Name] = true
		require.NotNil(t, cmd.DMPermission)
		assert.False(t, *cmd.DMPermission)
	}
	for _, want := range []string{
		DiscordSlashCommandPing,
		DiscordSlashCommandDeleteChannel,
		DiscordSlashCommandCancelSchedule,
		DiscordSlashCommandShowDeleteSchedule,
		DiscordSlashCommandAutoban,
		DiscordSlashCommandCancelAutoban,
		DiscordSlashCommandWarn,
		DiscordSlashCommandWarnings,
		DiscordSlashCommandClearWarnings,
		DiscordSlashCommandClearWarningsZH,
		DiscordSlashCommandSign,
		DiscordSlashCommandEmoji,
		DiscordSlashCommandPublicity,
		DiscordSlashCommandTicketPanel,
		DiscordSlashCommandAIChat,
		DiscordSlashCommandReloadResponses,
	} {
		assert.True(t, names[want], want)
	}

	created, err := tc.RegisterSlashCommands()
	require.NoError(t, err)
	assert.Len(t, created, len(names))
	assert.Equal(t, 1, tc.session.called("ApplicationCommandBulkOverwrite"))
}

func TestCherry_Reload(t *testing.T) {
	tc := newTestCherry(t)
	ctx := context.Background()
	assert.Len(t, tc.autoResponder.Rules(), 1)
	assert.Equal(t, DefaultPersona().Name, tc.Persona().Name)

	require.NoError(
		t,
		os.WriteFile(tc.config.PolicyFile, []byte(`{"ping": {"channel_id": "bot-chan"}}`), 0o600),
	)
	require.NoError(
		t,
		os.WriteFile(tc.config.PersonaFile, []byte(`{"name": "Kiki", "nickname": "kiki"}`), 0o600),
	)
	require.NoError(t, tc.Reload(ctx))
	assert.Equal(t, 1, tc.Policy().Len())
	assert.Equal(t, "Kiki", tc.Persona().Name)

	// a broken file keeps the previous version of that file only
	require.NoError(t, os.WriteFile(tc.config.PolicyFile, []byte(`{`), 0o600))
	require.Error(t, tc.Reload(ctx))
	assert.Equal(t, 1, tc.Policy().Len())
	assert.Equal(t, "Kiki", tc.Persona().Name)
}
