package realtime

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/shourk/messaging/backend/internal/auth"
	"github.com/shourk/messaging/backend/internal/model/chat"
	chatService "github.com/shourk/messaging/backend/internal/service/chat"
	"github.com/shourk/messaging/backend/internal/service/dispatch"
	"github.com/shourk/messaging/backend/internal/service/presence"
	"github.com/shourk/messaging/backend/internal/service/session"
	"github.com/shourk/messaging/backend/internal/storage/badgerstore"
)

type testServer struct {
	srv      *httptest.Server
	issuer   *auth.Issuer
	registry *presence.Registry
}

func newTestServer(t *testing.T, opts Options) testServer {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := badgerstore.New(db, zerolog.Nop())
	require.NoError(t, store.PutSession(context.Background(), chat.Session{Domain: chat.DomainUserExpert, ParticipantA: "U1", ParticipantB: "E1"}))

	registry := presence.NewRegistry()
	dispatcher := dispatch.New(registry, zerolog.Nop())
	registry.OnChange(dispatcher.BroadcastPresence)
	svc := chatService.NewService(store, session.NewGuard(store), dispatcher, registry, zerolog.Nop())
	issuer := auth.NewIssuer("test-secret", time.Hour)

	r := chi.NewRouter()
	New(svc, registry, issuer, opts, zerolog.Nop()).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return testServer{srv: srv, issuer: issuer, registry: registry}
}

func (s testServer) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"
	if query != "" {
		url += "?" + query
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (s testServer) token(t *testing.T, id string, role chat.Role) string {
	t.Helper()
	token, err := s.issuer.Issue(id, role)
	require.NoError(t, err)
	return token
}

// next reads frames until one of type want arrives.
func next(t *testing.T, conn *websocket.Conn, want string) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f map[string]any
		require.NoError(t, conn.ReadJSON(&f))
		if f["type"] == want {
			return f
		}
	}
}

func waitPresent(t *testing.T, reg *presence.Registry, id string) {
	t.Helper()
	require.Eventually(t, func() bool { return reg.IsPresent(id) }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_SendReachesReceiver(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t, Options{})

	expert := s.dial(t, "token="+s.token(t, "E1", chat.RoleExpert))
	waitPresent(t, s.registry, "E1")
	user := s.dial(t, "token="+s.token(t, "U1", chat.RoleUser))
	waitPresent(t, s.registry, "U1")

	req.NoError(user.WriteJSON(map[string]any{
		"type":      "message.send",
		"requestId": "r1",
		"data":      map[string]any{"receiverId": "E1", "text": "hello"},
	}))

	ack := next(t, user, "ack")
	req.Equal("r1", ack["requestId"])
	sent := ack["data"].(map[string]any)
	req.Equal("hello", sent["text"])

	created := next(t, expert, chat.EventMessageCreated)
	req.Equal(sent["id"], created["data"].(map[string]any)["id"])
}

func TestWebSocket_PresenceBroadcastReachesAnonymous(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t, Options{})

	anon := s.dial(t, "")
	next(t, anon, chat.EventPresenceChanged)

	s.dial(t, "userId=U1")
	waitPresent(t, s.registry, "U1")

	f := next(t, anon, chat.EventPresenceChanged)
	req.Equal([]any{"U1"}, f["data"])
}

func TestWebSocket_ActionsNeedAToken(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t, Options{})

	conn := s.dial(t, "userId=U1")
	req.NoError(conn.WriteJSON(map[string]any{"type": "message.send", "requestId": "r1", "data": map[string]any{"receiverId": "E1", "text": "hi"}}))

	f := next(t, conn, "error")
	req.Equal("r1", f["requestId"])
	req.Equal(codeUnauthorized, f["data"].(map[string]any)["code"])
}

func TestWebSocket_ErrorFrames(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t, Options{})
	conn := s.dial(t, "token="+s.token(t, "U1", chat.RoleUser))

	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	f := next(t, conn, "error")
	req.Equal(codeInvalidPayload, f["data"].(map[string]any)["code"])

	req.NoError(conn.WriteJSON(map[string]any{"type": "room.join", "requestId": "r2", "data": map[string]any{}}))
	f = next(t, conn, "error")
	req.Equal(codeUnsupported, f["data"].(map[string]any)["code"])

	req.NoError(conn.WriteJSON(map[string]any{"type": "message.send", "requestId": "r3", "data": map[string]any{"receiverId": "E9", "text": "hi"}}))
	f = next(t, conn, "error")
	req.Equal("r3", f["requestId"])
	req.Equal(codeUnauthorized, f["data"].(map[string]any)["code"])
}

func TestWebSocket_RateLimited(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t, Options{FramesPerSecond: 0.001, FrameBurst: 1})
	conn := s.dial(t, "token="+s.token(t, "U1", chat.RoleUser))

	frame := map[string]any{"type": "messages.read", "data": map[string]any{"senderId": "E1"}}
	req.NoError(conn.WriteJSON(frame))
	req.NoError(conn.WriteJSON(frame))

	f := next(t, conn, "error")
	req.Equal(codeRateLimited, f["data"].(map[string]any)["code"])
}

func TestWebSocket_RequireTokenRejectsBareUserID(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t, Options{RequireToken: true})

	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws?userId=U1"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	req.ErrorIs(err, websocket.ErrBadHandshake)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocket_InvalidTokenRejected(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t, Options{})

	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws?token=a.b.c"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	req.ErrorIs(err, websocket.ErrBadHandshake)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocket_DisconnectClearsPresence(t *testing.T) {
	s := newTestServer(t, Options{})
	conn := s.dial(t, "userId=U1")
	waitPresent(t, s.registry, "U1")

	_ = conn.Close()

	require.Eventually(t, func() bool { return !s.registry.IsPresent("U1") }, 2*time.Second, 10*time.Millisecond)
}

func TestEvents_StreamsPresence(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.srv.URL+"/events?userId=E1", nil)
	req.NoError(err)
	resp, err := http.DefaultClient.Do(httpReq)
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal("text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 32)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	deadline := time.After(3 * time.Second)
	var events []string
	for len(events) < 2 {
		select {
		case line, ok := <-lines:
			req.True(ok, "stream ended early")
			if name, found := strings.CutPrefix(line, "event: "); found {
				events = append(events, name)
			}
		case <-deadline:
			t.Fatalf("timed out, got events %v", events)
		}
	}
	req.Equal([]string{"ready", chat.EventPresenceChanged}, events)
	req.True(s.registry.IsPresent("E1"))
}

func TestUp(t *testing.T) {
	s := newTestServer(t, Options{})

	resp, err := http.Get(s.srv.URL + "/up")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOutbox_DropsWhenFull(t *testing.T) {
	req := require.New(t)
	o := newOutbox(1)

	req.NoError(o.Send("a", nil))
	req.ErrorIs(o.Send("b", nil), errOutboxFull)

	o.close()
	req.ErrorIs(o.Send("c", nil), errClientClosed)
}
