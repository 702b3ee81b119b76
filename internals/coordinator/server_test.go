package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/huddlehq/huddle-signal/internals/config"
	"github.com/huddlehq/huddle-signal/internals/roomstate"
	"github.com/huddlehq/huddle-signal/internals/signaling"
)

type testServer struct {
	*harness
	cfg    *config.Config
	server *Server
	ts     *httptest.Server
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	cfg := config.LoadConfig()
	if mutate != nil {
		mutate(cfg)
	}

	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.coord.Run(ctx)
		close(done)
	}()

	srv := NewServer(cfg, h.coord, h.hub, h.feed, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
	})
	return &testServer{harness: h, cfg: cfg, server: srv, ts: ts}
}

// seed runs messages on the event loop.
func (s *testServer) seed(t *testing.T, fn func()) {
	t.Helper()
	require.NoError(t, s.coord.Do(context.Background(), fn))
}

func (s *testServer) get(t *testing.T, path string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(s.ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestServerRoomQueries(t *testing.T) {
	s := newTestServer(t, nil)
	s.seed(t, func() {
		s.join("c-alice", "ws1", "r1", "alice")
		s.join("c-bob", "ws1", "r1", "bob")
		s.join("c-zed", "ws2", "r9", "zed")
		s.send("c-alice", signaling.MessageTypeScreenShareStart, nil)
	})

	var list struct {
		Rooms []roomstate.RoomSummary `json:"rooms"`
		Total int                     `json:"total"`
	}
	require.Equal(t, http.StatusOK, s.get(t, "/api/rooms?workspaceId=ws1", &list))
	require.Equal(t, 1, list.Total)
	assert.Equal(t, 2, list.Rooms[0].PeerCount)
	assert.Equal(t, "alice", list.Rooms[0].ActiveScreenSharerUserID)

	require.Equal(t, http.StatusOK, s.get(t, "/api/rooms", &list))
	assert.Equal(t, 2, list.Total)

	var details roomstate.RoomDetails
	require.Equal(t, http.StatusOK, s.get(t, "/api/rooms/ws1/r1", &details))
	assert.Len(t, details.Peers, 2)
	assert.Equal(t, "r1", details.RoomID)

	assert.Equal(t, http.StatusNotFound, s.get(t, "/api/rooms/ws1/missing", nil))
}

func TestServerConnectionAndPresence(t *testing.T) {
	s := newTestServer(t, nil)
	s.seed(t, func() {
		s.connectPresence("p-alice", "ws1", "alice", "idle")
		s.join("c-alice", "ws1", "r1", "alice")
	})

	var info ConnectionInfo
	require.Equal(t, http.StatusOK, s.get(t, "/api/connections/c-alice", &info))
	require.NotNil(t, info.Membership)
	assert.Equal(t, "r1", info.Membership.RoomID)
	assert.Nil(t, info.Presence)

	assert.Equal(t, http.StatusNotFound, s.get(t, "/api/connections/nobody", nil))

	var pres struct {
		Users []struct {
			UserID      string `json:"userId"`
			CurrentRoom string `json:"currentRoom"`
		} `json:"users"`
		Total int `json:"total"`
	}
	require.Equal(t, http.StatusOK, s.get(t, "/api/presence/ws1", &pres))
	require.Equal(t, 1, pres.Total)
	assert.Equal(t, "r1", pres.Users[0].CurrentRoom)
}

func TestServerHealth(t *testing.T) {
	tests := []struct {
		name       string
		redis      bool
		pingErr    error
		wantStatus string
		wantRedis  string
	}{
		{"redis disabled", false, nil, "healthy", "disabled"},
		{"redis up", true, nil, "healthy", "connected"},
		{"redis down", true, errors.New("dial tcp: refused"), "degraded", "error: dial tcp: refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, func(c *config.Config) { c.Redis.Enabled = tt.redis })
			s.feed.pingErr = tt.pingErr

			var health map[string]interface{}
			require.Equal(t, http.StatusOK, s.get(t, "/health", &health))
			assert.Equal(t, tt.wantStatus, health["status"])
			assert.Equal(t, tt.wantRedis, health["redis"])
		})
	}
}

func TestServerCORSPreflight(t *testing.T) {
	s := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodOptions, s.ts.URL+"/api/rooms", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServerMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	assert.Equal(t, http.StatusOK, s.get(t, "/metrics", nil))
}

func TestServerWebSocketSession(t *testing.T) {
	s := newTestServer(t, nil)
	url := "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/ws"

	dial := func() *websocket.Conn {
		ws, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		ws.SetReadDeadline(time.Now().Add(5 * time.Second))
		return ws
	}
	joinMsg := func(user string) signaling.Message {
		m, err := signaling.NewMessage(signaling.MessageTypeJoin, signaling.JoinPayload{
			WorkspaceID: "ws1", RoomID: "r1", UserID: user, DisplayName: user,
		})
		require.NoError(t, err)
		return m
	}

	alice := dial()
	defer alice.Close()
	require.NoError(t, alice.WriteJSON(joinMsg("alice")))

	var m signaling.Message
	require.NoError(t, alice.ReadJSON(&m))
	require.Equal(t, signaling.MessageTypeJoined, m.Type)

	bob := dial()
	require.NoError(t, bob.WriteJSON(joinMsg("bob")))
	require.NoError(t, bob.ReadJSON(&m))
	require.Equal(t, signaling.MessageTypeJoined, m.Type)

	require.NoError(t, alice.ReadJSON(&m))
	assert.Equal(t, signaling.MessageTypePeerJoined, m.Type)

	// Closing bob's socket runs the disconnect cascade.
	bob.Close()
	require.NoError(t, alice.ReadJSON(&m))
	assert.Equal(t, signaling.MessageTypePeerLeft, m.Type)
	var left PeerLeftPayload
	require.NoError(t, json.Unmarshal(m.Data, &left))
	assert.Equal(t, reasonDisconnected, left.Reason)
}
