package game

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWSServer(t *testing.T) (*httptest.Server, *Game) {
	t.Helper()
	hub := NewHub(nil)
	g := New(Config{DefaultBattleSeconds: 60}, nil, hub, &stubGen{}, nil)
	srv := NewServer(nil, g, hub)

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, g
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

// readUntil drains messages until one of the wanted type arrives.
func readUntil(t *testing.T, ws *websocket.Conn, typ string) Envelope {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := ws.ReadMessage()
		require.NoError(t, err, "waiting for %s", typ)
		var env Envelope
		if json.Unmarshal(data, &env) != nil {
			continue
		}
		if env.Type == typ {
			return env
		}
	}
}

func TestWS_Endpoint(t *testing.T) {
	t.Run("unknown role is rejected before the upgrade", func(t *testing.T) {
		ts, _ := newWSServer(t)
		ws, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws?role=referee"), nil)
		require.Error(t, err)
		if ws != nil {
			_ = ws.Close()
		}
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("every connection starts with the current state", func(t *testing.T) {
		ts, _ := newWSServer(t)
		ws, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws"), nil)
		require.NoError(t, err)
		defer ws.Close()

		env := readUntil(t, ws, EventGameState)
		var snap Snapshot
		require.NoError(t, json.Unmarshal(env.Payload, &snap))
		assert.Equal(t, PhaseWaiting, snap.Phase)
		assert.Equal(t, 2, snap.PlayerSlots)
	})

	t.Run("player query params seat the connection", func(t *testing.T) {
		ts, g := newWSServer(t)
		ws, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws?role=player&slot=1"), nil)
		require.NoError(t, err)
		defer ws.Close()

		readUntil(t, ws, EventGameState)
		require.Eventually(t, func() bool {
			return g.Snapshot().Players["1"].Connected
		}, 2*time.Second, 5*time.Millisecond)
	})

	t.Run("rejected commands answer only the sender", func(t *testing.T) {
		ts, _ := newWSServer(t)
		admin, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws?role=admin"), nil)
		require.NoError(t, err)
		defer admin.Close()
		readUntil(t, admin, EventGameState)

		require.NoError(t, admin.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"set-target","payload":{"type":"text","content":"a red kite"}}`)))
		readUntil(t, admin, EventGameState)

		// target is set but nobody is seated
		require.NoError(t, admin.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"start-battle","payload":{"duration":30}}`)))

		env := readUntil(t, admin, "error")
		var p ErrorPayload
		require.NoError(t, json.Unmarshal(env.Payload, &p))
		assert.Equal(t, "precondition_failed", p.Code)
	})

	t.Run("malformed frames and unknown types report back", func(t *testing.T) {
		ts, _ := newWSServer(t)
		ws, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws?role=admin"), nil)
		require.NoError(t, err)
		defer ws.Close()
		readUntil(t, ws, EventGameState)

		require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{not json`)))
		env := readUntil(t, ws, "error")
		var p ErrorPayload
		require.NoError(t, json.Unmarshal(env.Payload, &p))
		assert.Equal(t, "bad_json", p.Code)

		require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"warp-time"}`)))
		env = readUntil(t, ws, "error")
		require.NoError(t, json.Unmarshal(env.Payload, &p))
		assert.Equal(t, "unknown_type", p.Code)
	})

	t.Run("closing the socket keeps the seat reserved", func(t *testing.T) {
		ts, g := newWSServer(t)
		ws, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws?role=player&slot=2"), nil)
		require.NoError(t, err)
		readUntil(t, ws, EventGameState)
		require.Eventually(t, func() bool {
			return g.Snapshot().Players["2"].Connected
		}, 2*time.Second, 5*time.Millisecond)

		require.NoError(t, ws.Close())

		require.Eventually(t, func() bool {
			p, ok := g.Snapshot().Players["2"]
			return ok && !p.Connected
		}, 2*time.Second, 5*time.Millisecond, "seat stays registered, marked offline")
	})
}

func TestHTTP_StateEndpoints(t *testing.T) {
	ts, g := newWSServer(t)
	_, err := g.Join("conn-x", "1")
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status struct {
		Phase            Phase `json:"phase"`
		ConnectedPlayers int   `json:"connectedPlayers"`
		HasTarget        bool  `json:"hasTarget"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, PhaseWaiting, status.Phase)
	assert.Equal(t, 1, status.ConnectedPlayers)
	assert.False(t, status.HasTarget)

	resp, err = http.Get(ts.URL + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.True(t, snap.Players["1"].Connected)
}
