package cherry

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedRequest(t *testing.T, key ed25519.PrivateKey, timestamp string, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, apiDiscordInteractions, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature-Timestamp", timestamp)
	sig := ed25519.Sign(key, []byte(timestamp+body))
	req.Header.Set("X-Signature-Ed25519", hex.EncodeToString(sig))
	return req
}

func TestVerifyRequest(t *testing.T) {
	t.Parallel()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	_, otherPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	body := `{"type":1}`
	req := signedRequest(t, priv, "1700000000", body)
	require.True(t, verifyRequest(req, pub))

	// the body is still readable afterwards
	var buf bytes.Buffer
	_, err = buf.ReadFrom(req.Body)
	require.NoError(t, err)
	assert.Equal(t, body, buf.String())

	assert.False(t, verifyRequest(signedRequest(t, otherPriv, "1700000000", body), pub))
	assert.False(t, verifyRequest(signedRequest(t, priv, "1700000000", body), nil))

	tampered := signedRequest(t, priv, "1700000000", body)
	tampered.Header.Set("X-Signature-Timestamp", "1700000001")
	assert.False(t, verifyRequest(tampered, pub))

	missing := signedRequest(t, priv, "1700000000", body)
	missing.Header.Del("X-Signature-Ed25519")
	assert.False(t, verifyRequest(missing, pub))

	garbage := signedRequest(t, priv, "1700000000", body)
	garbage.Header.Set("X-Signature-Ed25519", "not-hex")
	assert.False(t, verifyRequest(garbage, pub))
}

func TestWebhookServer_Interactions(t *testing.T) {
	tc := newTestCherry(t)
	ctx := context.Background()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	tc.discord.publicKey = pub
	tc.getInteractionHandlerFunc = func(_ context.Context, i *discordgo.InteractionCreate) InteractionHandler {
		return newStubHandler(i)
	}

	server, err := newWebhookServer(ctx, tc.Cherry, tc.config.Discord.WebhookServer)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	server.engine.ServeHTTP(rec, signedRequest(t, priv, "1700000000", `{"id":"1","type":1}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var pong discordgo.InteractionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pong))
	assert.Equal(t, discordgo.InteractionResponsePong, pong.Type)

	command := `{"id":"2","type":2,"channel_id":"c1","guild_id":"guild-1",` +
		`"member":{"user":{"id":"u1","username":"alice"}},` +
		`"data":{"id":"cmd-1","name":"ping","type":1}}`
	rec = httptest.NewRecorder()
	server.engine.ServeHTTP(rec, signedRequest(t, priv, "1700000000", command))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var reply discordgo.InteractionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, reply.Type)
	require.NotNil(t, reply.Data)
	assert.Equal(t, msgPing, reply.Data.Content)

	rec = httptest.NewRecorder()
	unsigned := httptest.NewRequest(http.MethodPost, apiDiscordInteractions, strings.NewReader(command))
	server.engine.ServeHTTP(rec, unsigned)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var logged int64
	require.NoError(t, tc.db.DB().Model(&InteractionLog{}).Count(&logged).Error)
	assert.Equal(t, int64(2), logged)
}
