package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvidal/pairtask/internal/config"
	"github.com/nvidal/pairtask/internal/eventbus"
	notifrepo "github.com/nvidal/pairtask/internal/notification/repositoryimpl"
	"github.com/nvidal/pairtask/internal/participant"
	pushsubrepo "github.com/nvidal/pairtask/internal/pushsubscription/repositoryimpl"
	"github.com/nvidal/pairtask/internal/session"
	taskrepo "github.com/nvidal/pairtask/internal/task/repositoryimpl"
	typerepo "github.com/nvidal/pairtask/internal/tasktype/repositoryimpl"
	"github.com/nvidal/pairtask/pkg/storage"
)

type testServer struct {
	srv *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	registry := participant.New(
		participant.NewParticipant("hades", "Hades", "hades@example.com", participant.HashKey("llave-hades")),
		participant.NewParticipant("reiger", "Reiger", "reiger@example.com", participant.HashKey("llave-reiger")),
	)
	manager := session.NewManager(registry, st,
		taskrepo.NewYAMLRepository(st),
		typerepo.NewYAMLRepository(st),
		notifrepo.NewYAMLRepository(st),
		eventbus.New(), time.Second)

	env := &config.Env{}
	env.VAPIDPublicKey = "test-public-key"
	server := NewServer(env, manager, pushsubrepo.NewYAMLRepository(st))

	srv := httptest.NewServer(server.Routes())
	t.Cleanup(srv.Close)
	return &testServer{srv: srv}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (ts *testServer) login(t *testing.T, id, key string) string {
	t.Helper()
	resp, body := ts.do(t, http.MethodPost, "/api/login", "", map[string]string{
		"participantId": id,
		"accessKey":     key,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "login failed: %s", body)
	var out loginResponse
	require.NoError(t, json.Unmarshal(body, &out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginAndAuth(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, "/api/login", "", map[string]string{
		"participantId": "hades",
		"accessKey":     "incorrecta",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(body), "unauthenticated")

	token := ts.login(t, "hades", "llave-hades")

	// Authenticated request succeeds.
	resp, _ = ts.do(t, http.MethodGet, "/api/tasks", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Missing and bogus tokens are rejected.
	resp, _ = ts.do(t, http.MethodGet, "/api/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = ts.do(t, http.MethodGet, "/api/tasks", "bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, "hades", "llave-hades")

	// Create.
	resp, body := ts.do(t, http.MethodPost, "/api/tasks", token, map[string]any{
		"title":    "Comprar pan",
		"type":     "compras",
		"priority": "high",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "create failed: %s", body)
	var created taskBody
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "Comprar pan", created.Title)
	assert.Equal(t, "pending", created.Status)

	// List shows it.
	resp, body = ts.do(t, http.MethodGet, "/api/tasks", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed listTasksResponse
	require.NoError(t, json.Unmarshal(body, &listed))
	require.Len(t, listed.Tasks, 1)
	assert.Equal(t, created.ID, listed.Tasks[0].ID)

	// Update.
	resp, body = ts.do(t, http.MethodPatch, "/api/tasks/"+created.ID, token, map[string]any{
		"description": "de centeno",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated taskBody
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, "de centeno", updated.Description)

	// Toggle.
	resp, body = ts.do(t, http.MethodPost, fmt.Sprintf("/api/tasks/%s/toggle", created.ID), token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var toggled taskBody
	require.NoError(t, json.Unmarshal(body, &toggled))
	assert.Equal(t, "completed", toggled.Status)

	// Delete.
	resp, _ = ts.do(t, http.MethodDelete, "/api/tasks/"+created.ID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodDelete, "/api/tasks/"+created.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestValidationErrorsOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, "hades", "llave-hades")

	resp, body := ts.do(t, http.MethodPost, "/api/tasks", token, map[string]any{
		"type": "compras",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "invalid_argument")
}

func TestTypeDeleteRefusedOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, "hades", "llave-hades")

	resp, body := ts.do(t, http.MethodPost, "/api/types", token, map[string]any{
		"name": "Jardín",
		"icon": "🌱",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "create type failed: %s", body)
	var created typeBody
	require.NoError(t, json.Unmarshal(body, &created))

	resp, _ = ts.do(t, http.MethodPost, "/api/tasks", token, map[string]any{
		"title": "Regar",
		"type":  created.ID,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = ts.do(t, http.MethodDelete, "/api/types/"+created.ID, token, nil)
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
	assert.Contains(t, string(body), "failed_precondition")
}

func TestPushSubscriptionRegistration(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, "hades", "llave-hades")

	resp, body := ts.do(t, http.MethodPost, "/api/push/subscriptions", token, map[string]any{
		"endpoint": "https://push.example.com/ep1",
		"keys":     map[string]string{"p256dh": "pk", "auth": "ak"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "register failed: %s", body)
	var out registerSubscriptionResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.NotEmpty(t, out.ID)

	// Incomplete registrations are rejected.
	resp, _ = ts.do(t, http.MethodPost, "/api/push/subscriptions", token, map[string]any{
		"endpoint": "https://push.example.com/ep2",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodDelete, "/api/push/subscriptions", token, map[string]any{
		"endpoint": "https://push.example.com/ep1",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPushKeyIsPublic(t *testing.T) {
	ts := newTestServer(t)
	resp, body := ts.do(t, http.MethodGet, "/api/push/key", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out pushKeyResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "test-public-key", out.PublicKey)
}

func TestLogoutInvalidatesToken(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, "hades", "llave-hades")

	resp, _ := ts.do(t, http.MethodPost, "/api/logout", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/api/tasks", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
