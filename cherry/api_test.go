package cherry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiClient struct {
	t       *testing.T
	handler http.Handler
	cookies []*http.Cookie
}

func (a *apiClient) do(method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range a.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	if cookies := rec.Result().Cookies(); len(cookies) > 0 {
		a.cookies = cookies
	}
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestAPI_SetupAndLogin(t *testing.T) {
	tc := newTestCherry(t)
	client := &apiClient{t: t, handler: tc.api.engine}

	rec := client.do(http.MethodGet, apiPathSetupStatus, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[setupResponse](t, rec).Required)
	assert.NotEmpty(t, rec.Header().Get(xRequestIDHeader))

	// nothing under /api is reachable before setup
	rec = client.do(http.MethodGet, apiPrefix+apiPathConfig, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = client.do(
		http.MethodPost, apiPathSetup,
		map[string]string{"username": "admin", "password": "hunter22", "confirm_password": "hunter2"},
	)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = client.do(
		http.MethodPost, apiPathSetup,
		map[string]string{"username": "admin", "password": "hunter22", "confirm_password": "hunter22"},
	)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.False(t, tc.pendingSetup.Load())

	rec = client.do(
		http.MethodPost, apiPathSetup,
		map[string]string{"username": "evil", "password": "x", "confirm_password": "x"},
	)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// the stored credentials were persisted
	var stored RuntimeConfig
	require.NoError(t, tc.db.DB().Last(&stored).Error)
	assert.Equal(t, "admin", stored.AdminUsername)
	assert.NotEqual(t, "hunter22", stored.AdminPassword)

	rec = client.do(http.MethodGet, apiPrefix+apiPathLoggedIn, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = client.do(http.MethodPost, apiPathLogin, map[string]string{"username": "admin", "password": "hunter22"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotEmpty(t, client.cookies)

	rec = client.do(http.MethodGet, apiPrefix+apiPathLoggedIn, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", decodeBody[loggedInResponse](t, rec).Username)

	rec = client.do(http.MethodGet, apiHealthCheck, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decodeBody[healthCheckResponse](t, rec)
	assert.False(t, health.PendingSetup)
	assert.False(t, health.DiscordGatewayConnected)
}

// loggedInClient completes admin setup and logs in
func loggedInClient(t *testing.T, tc *testCherry) *apiClient {
	t.Helper()
	client := &apiClient{t: t, handler: tc.api.engine}
	rec := client.do(
		http.MethodPost, apiPathSetup,
		map[string]string{"username": "admin", "password": "pw", "confirm_password": "pw"},
	)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = client.do(http.MethodPost, apiPathLogin, map[string]string{"username": "admin", "password": "pw"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return client
}

func TestAPI_RuntimeConfig(t *testing.T) {
	tc := newTestCherry(t)
	client := loggedInClient(t, tc)

	rec := client.do(http.MethodGet, apiPrefix+apiPathConfig, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rc := decodeBody[RuntimeConfig](t, rec)
	assert.Empty(t, rc.AdminPassword)
	assert.Equal(t, "admin", rc.AdminUsername)
	assert.True(t, rc.AutoResponsesEnabled)

	rec = client.do(
		http.MethodPatch, apiPrefix+apiPathConfig,
		map[string]any{"discord_status": "online", "auto_responses_enabled": false},
	)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rc = decodeBody[RuntimeConfig](t, rec)
	assert.Equal(t, "online", rc.DiscordStatus)
	assert.False(t, rc.AutoResponsesEnabled)
	assert.False(t, tc.RuntimeConfig().AutoResponsesEnabled)
	assert.Equal(t, "online", tc.session.LastStatus)

	var stored RuntimeConfig
	require.NoError(t, tc.db.DB().Last(&stored).Error)
	assert.False(t, stored.AutoResponsesEnabled)

	rec = client.do(http.MethodPatch, apiPrefix+apiPathConfig, map[string]any{"discord_status": "sleeping"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "online", tc.RuntimeConfig().DiscordStatus)

	rec = client.do(http.MethodPatch, apiPrefix+apiPathConfig, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_ScheduleWarningsTickets(t *testing.T) {
	tc := newTestCherry(t)
	client := loggedInClient(t, tc)
	ctx := context.Background()

	require.NoError(t, tc.deletions.Schedule(ctx, "chan-9", time.Now().Add(48*time.Hour)))
	rec := client.do(http.MethodGet, apiPrefix+apiPathSchedule, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	scheduled := decodeBody[[]ScheduledDeletion](t, rec)
	require.Len(t, scheduled, 1)
	assert.Equal(t, "chan-9", scheduled[0].ChannelID)

	rec = client.do(http.MethodDelete, apiPrefix+"/schedule/chan-9", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = client.do(http.MethodDelete, apiPrefix+"/schedule/chan-9", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, err := tc.warnings.Add(ctx, "u1", violationChoices[0], "rude")
	require.NoError(t, err)
	rec = client.do(http.MethodGet, apiPrefix+"/warnings/u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	warnings := decodeBody[[]Warning](t, rec)
	require.Len(t, warnings, 1)
	assert.Equal(t, "rude", warnings[0].Reason)

	rec = client.do(http.MethodGet, apiPrefix+apiPathTickets+"?state=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = client.do(http.MethodGet, apiPrefix+apiPathTickets+"?state=open", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]Ticket](t, rec))

	rec = client.do(http.MethodPost, apiPrefix+apiPathRegisterCommands, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, tc.session.called("ApplicationCommandBulkOverwrite"))

	rec = client.do(http.MethodPost, apiPathLogout, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
