package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dkeye/owndc/internal/app"
	"github.com/dkeye/owndc/internal/app/orch"
	"github.com/dkeye/owndc/internal/config"
	"github.com/dkeye/owndc/internal/core"
	"github.com/dkeye/owndc/internal/domain"
	"github.com/dkeye/owndc/internal/observability"
	"github.com/dkeye/owndc/internal/storage"
)

type testEnv struct {
	srv   *httptest.Server
	store *storage.MemoryStore
	orch  *orch.Orchestrator
	reg   *prometheus.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<html>owndc</html>"), 0o644))

	store := storage.NewMemoryStore()
	promReg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promReg)
	reg := app.NewRegistry()
	o := &orch.Orchestrator{
		Registry:     reg,
		Channels:     app.NewRoomManager(domain.RoomText),
		Voice:        app.NewRoomManager(domain.RoomVoice),
		Presence:     app.NewPresence(reg, store, app.SimplePolicy{}, metrics, time.Second),
		Store:        store,
		Policy:       app.SimplePolicy{},
		Metrics:      metrics,
		StoreTimeout: time.Second,
	}

	cfg := &config.Config{Mode: "test", Secret: "test-secret", StaticPath: static}
	r := SetupRouter(context.Background(), cfg, Deps{
		Orch:       o,
		Store:      store,
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.example.org:3478"}}},
		Gatherer:   promReg,
		HashCost:   bcrypt.MinCost,
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: store, orch: o, reg: promReg}
}

// client is a browser-like caller that keeps its session cookie.
type client struct {
	t    *testing.T
	base string
	http *http.Client
}

func (e *testEnv) client(t *testing.T) *client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &client{t: t, base: e.srv.URL, http: &http.Client{Jar: jar}}
}

func (c *client) send(method, path string, body any) (int, []byte) {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp.StatusCode, raw
}

// do decodes a JSON object response; anything else yields an empty map.
func (c *client) do(method, path string, body any) (int, map[string]any) {
	c.t.Helper()
	code, raw := c.send(method, path, body)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(c.t, json.Unmarshal(raw, &out))
	}
	return code, out
}

// list decodes a JSON array response.
func (c *client) list(path string) (int, []map[string]any) {
	c.t.Helper()
	code, raw := c.send(http.MethodGet, path, nil)
	var out []map[string]any
	if len(raw) > 0 && raw[0] == '[' {
		require.NoError(c.t, json.Unmarshal(raw, &out))
	}
	return code, out
}

func (c *client) register(name string) string {
	c.t.Helper()
	code, body := c.do(http.MethodPost, "/api/auth/register", gin.H{
		"username": name, "email": name + "@example.org", "password": "secret1",
	})
	require.Equal(c.t, http.StatusCreated, code, body)
	return body["id"].(string)
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)

	code, _ := c.do(http.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	id := c.register("alice")
	code, body := c.do(http.MethodGet, "/api/auth/me", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, id, body["id"])
	assert.Equal(t, "online", body["status"])
	assert.NotContains(t, body, "PasswordHash")

	code, _ = c.do(http.MethodPost, "/api/auth/register", gin.H{
		"username": "alice", "email": "other@example.org", "password": "secret1",
	})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = c.do(http.MethodPost, "/api/auth/logout", nil)
	require.Equal(t, http.StatusOK, code)
	u, err := env.store.GetUserByID(context.Background(), domain.UserID(id))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOffline, u.Status)

	code, _ = c.do(http.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = c.do(http.MethodPost, "/api/auth/login", gin.H{"email": "alice@example.org", "password": "wrong!!"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body = c.do(http.MethodPost, "/api/auth/login", gin.H{"email": "alice@example.org", "password": "secret1"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, id, body["id"])
	assert.Equal(t, "online", body["status"])
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)

	tests := []struct {
		name string
		body gin.H
	}{
		{"missing username", gin.H{"email": "a@example.org", "password": "secret1"}},
		{"bad email", gin.H{"username": "a", "email": "nope", "password": "secret1"}},
		{"short password", gin.H{"username": "a", "email": "a@example.org", "password": "123"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := c.do(http.MethodPost, "/api/auth/register", tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestProtectedRoutesRequireLogin(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)

	for _, path := range []string{"/api/friends", "/api/channels", "/api/channels/c1/messages", "/api/messages/dm/u1", "/api/groups"} {
		code, body := c.do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnauthorized, code, path)
		assert.Equal(t, "Not authenticated", body["error"], path)
	}
}

func TestFriendRequests(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := env.client(t), env.client(t)
	alice.register("alice")
	bobID := bob.register("bob")

	code, _ := alice.do(http.MethodPost, "/api/friends/request", gin.H{"username": "ghost"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = alice.do(http.MethodPost, "/api/friends/request", gin.H{"username": "alice"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := alice.do(http.MethodPost, "/api/friends/request", gin.H{"username": "bob"})
	require.Equal(t, http.StatusCreated, code)
	fid := body["friendship_id"].(string)
	assert.Equal(t, bobID, body["friend"].(map[string]any)["id"])

	code, _ = bob.do(http.MethodPost, "/api/friends/request", gin.H{"username": "alice"})
	assert.Equal(t, http.StatusConflict, code, "reverse request is a duplicate")

	code, body = bob.do(http.MethodGet, "/api/friends", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["pendingRequests"], 1)

	code, _ = alice.do(http.MethodPost, "/api/friends/accept", gin.H{"friendshipId": fid})
	assert.Equal(t, http.StatusNotFound, code, "only the receiver may accept")

	code, body = bob.do(http.MethodPost, "/api/friends/accept", gin.H{"friendshipId": fid})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alice", body["friend"].(map[string]any)["username"])

	code, body = alice.do(http.MethodGet, "/api/friends", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["friends"], 1)

	code, _ = alice.do(http.MethodDelete, "/api/friends/"+fid, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = alice.do(http.MethodDelete, "/api/friends/"+fid, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestDeclineFriendRequest(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := env.client(t), env.client(t)
	alice.register("alice")
	bob.register("bob")

	_, body := alice.do(http.MethodPost, "/api/friends/request", gin.H{"username": "bob"})
	fid := body["friendship_id"].(string)

	code, _ := bob.do(http.MethodPost, "/api/friends/decline", gin.H{"friendshipId": fid})
	require.Equal(t, http.StatusOK, code)
	code, _ = bob.do(http.MethodPost, "/api/friends/decline", gin.H{"friendshipId": fid})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestChannelsAndMessages(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := env.client(t), env.client(t)
	alice.register("alice")
	bob.register("bob")

	code, _ := alice.do(http.MethodPost, "/api/channels", gin.H{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := alice.do(http.MethodPost, "/api/channels", gin.H{"name": "general"})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "text", body["type"])
	chID := body["id"].(string)

	code, _ = bob.do(http.MethodPost, "/api/messages", gin.H{"channelId": chID, "content": "hi"})
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = bob.do(http.MethodGet, "/api/channels/"+chID+"/messages", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = bob.do(http.MethodPost, "/api/channels/nope/join", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = bob.do(http.MethodPost, "/api/channels/"+chID+"/join", nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = bob.do(http.MethodPost, "/api/channels/"+chID+"/join", nil)
	assert.Equal(t, http.StatusConflict, code)

	for _, text := range []string{"one", "two", "three"} {
		code, body = bob.do(http.MethodPost, "/api/messages", gin.H{"channelId": chID, "content": text})
		require.Equal(t, http.StatusCreated, code)
		assert.Equal(t, "bob", body["sender_username"])
	}

	code, msgs := alice.list("/api/channels/" + chID + "/messages?limit=2")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0]["content"])
	assert.Equal(t, "three", msgs[1]["content"])
}

func TestChannelDirectory(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := env.client(t), env.client(t)
	alice.register("alice")
	bob.register("bob")

	_, body := alice.do(http.MethodPost, "/api/channels", gin.H{"name": "general"})
	chID := body["id"].(string)

	code, body := bob.do(http.MethodGet, "/api/channels", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["mine"])
	all := body["all"].([]any)
	require.Len(t, all, 1)
	entry := all[0].(map[string]any)
	assert.Equal(t, "alice", entry["owner_username"])
	assert.EqualValues(t, 1, entry["member_count"])

	code, _ = bob.do(http.MethodPost, "/api/channels/"+chID+"/join", nil)
	require.Equal(t, http.StatusOK, code)
	_, body = bob.do(http.MethodGet, "/api/channels", nil)
	assert.Len(t, body["mine"], 1)
	assert.EqualValues(t, 2, body["all"].([]any)[0].(map[string]any)["member_count"])
}

func TestLeaveAndDeleteChannel(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := env.client(t), env.client(t)
	alice.register("alice")
	bobID := bob.register("bob")

	_, body := alice.do(http.MethodPost, "/api/channels", gin.H{"name": "general"})
	chID := body["id"].(string)
	code, _ := bob.do(http.MethodPost, "/api/channels/"+chID+"/join", nil)
	require.Equal(t, http.StatusOK, code)

	sess := core.NewSession("s-bob", nil)
	env.orch.Registry.Register(domain.UserID(bobID), sess)
	sess.SetUser(&domain.User{ID: domain.UserID(bobID), Username: "bob"})
	env.orch.Channels.Join(domain.RoomID(chID), domain.UserID(bobID), sess)

	code, _ = bob.do(http.MethodPost, "/api/channels/"+chID+"/leave", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, env.orch.Channels.MembersOf(domain.RoomID(chID)), "live session is evicted")
	code, body = bob.do(http.MethodPost, "/api/channels/"+chID+"/leave", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Not a member of this channel", body["error"])

	code, _ = bob.do(http.MethodDelete, "/api/channels/"+chID, nil)
	assert.Equal(t, http.StatusForbidden, code, "only the owner may delete")
	code, _ = alice.do(http.MethodDelete, "/api/channels/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = alice.do(http.MethodDelete, "/api/channels/"+chID, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = alice.do(http.MethodGet, "/api/channels/"+chID+"/messages", nil)
	assert.Equal(t, http.StatusForbidden, code)
	_, body = alice.do(http.MethodGet, "/api/channels", nil)
	assert.Empty(t, body["all"])
}

func TestGroups(t *testing.T) {
	env := newTestEnv(t)
	alice, bob, carol := env.client(t), env.client(t), env.client(t)
	alice.register("alice")
	bobID := bob.register("bob")
	carolID := carol.register("carol")

	code, _ := alice.do(http.MethodPost, "/api/groups", gin.H{"name": " "})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := alice.do(http.MethodPost, "/api/groups", gin.H{"name": "crew"})
	require.Equal(t, http.StatusCreated, code)
	gid := body["id"].(string)
	assert.Equal(t, "default-group.png", body["avatar"])

	code, _ = carol.do(http.MethodPost, "/api/groups/"+gid+"/members", gin.H{"userId": carolID})
	assert.Equal(t, http.StatusForbidden, code, "outsiders cannot add members")
	code, _ = alice.do(http.MethodPost, "/api/groups/nope/members", gin.H{"userId": bobID})
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = alice.do(http.MethodPost, "/api/groups/"+gid+"/members", gin.H{"userId": "ghost"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = alice.do(http.MethodPost, "/api/groups/"+gid+"/members", gin.H{"userId": bobID})
	require.Equal(t, http.StatusCreated, code)
	code, _ = alice.do(http.MethodPost, "/api/groups/"+gid+"/members", gin.H{"userId": bobID})
	assert.Equal(t, http.StatusConflict, code)

	code, groups := bob.list("/api/groups")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, groups, 1)
	assert.Equal(t, "crew", groups[0]["name"])
	assert.Equal(t, "alice", groups[0]["owner_username"])
	assert.EqualValues(t, 2, groups[0]["member_count"])

	code, _ = bob.do(http.MethodDelete, "/api/groups/"+gid, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = alice.do(http.MethodDelete, "/api/groups/"+gid, nil)
	require.Equal(t, http.StatusOK, code)
	code, groups = bob.list("/api/groups")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, groups)
}

func TestDirectMessages(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := env.client(t), env.client(t)
	aliceID := alice.register("alice")
	bobID := bob.register("bob")

	code, _ := alice.do(http.MethodPost, "/api/messages/dm/ghost", gin.H{"content": "hi"})
	assert.Equal(t, http.StatusNotFound, code)

	code, body := alice.do(http.MethodPost, "/api/messages/dm/"+bobID, gin.H{"content": "hi bob"})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, bobID, body["receiver_id"])
	code, _ = bob.do(http.MethodPost, "/api/messages/dm/"+aliceID, gin.H{"content": "hi alice"})
	require.Equal(t, http.StatusCreated, code)

	code, msgs := bob.list("/api/messages/dm/" + aliceID)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, msgs, 2)
}

func TestHistoryLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		query string
		want  int
	}{
		{"", defaultHistory},
		{"limit=abc", defaultHistory},
		{"limit=-3", defaultHistory},
		{"limit=10", 10},
		{"limit=1000", maxHistory},
	}
	for _, tt := range tests {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
		assert.Equal(t, tt.want, historyLimit(c), tt.query)
	}
}

func TestVoiceEndpoints(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)

	code, body := c.do(http.MethodGet, "/api/voice/rooms", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["rooms"])

	env.orch.Voice.Join("lobby", "u1", core.NewSession("s1", nil))
	code, body = c.do(http.MethodGet, "/api/voice/rooms", nil)
	require.Equal(t, http.StatusOK, code)
	rooms := body["rooms"].([]any)
	require.Len(t, rooms, 1)
	assert.Equal(t, "lobby", rooms[0].(map[string]any)["id"])
	assert.EqualValues(t, 1, rooms[0].(map[string]any)["member_count"])

	code, body = c.do(http.MethodGet, "/api/voice/ice-servers", nil)
	require.Equal(t, http.StatusOK, code)
	servers := body["iceServers"].([]any)
	require.Len(t, servers, 1)
	assert.Equal(t, []any{"stun:stun.example.org:3478"}, servers[0].(map[string]any)["urls"])
}

func TestStaticAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/")
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "owndc")

	env.orch.Metrics.ConnectionOpened()
	resp, err = http.Get(env.srv.URL + "/metrics")
	require.NoError(t, err)
	raw, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "owndc_connections_active 1")
}
