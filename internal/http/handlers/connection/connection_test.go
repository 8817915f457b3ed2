package connection_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/wa-connector-console/internal/http/handlers/connection"
	"github.com/magabrotheeeer/wa-connector-console/internal/models"
	"github.com/magabrotheeeer/wa-connector-console/internal/poller"
	"github.com/magabrotheeeer/wa-connector-console/internal/session"
	"github.com/magabrotheeeer/wa-connector-console/internal/view"
)

type fakeStatusAPI struct {
	mu         sync.Mutex
	state      models.ConnectionState
	calls      int
	connects   int
	disconnect int
}

func (f *fakeStatusAPI) Status(context.Context, string) (*models.ConnectionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	st := f.state
	return &st, nil
}

func (f *fakeStatusAPI) Connect(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	f.state = models.ConnectionState{Status: models.StatusQRReady, QRCode: "data:qr"}
	return nil
}

func (f *fakeStatusAPI) Disconnect(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnect++
	f.state = models.ConnectionState{Status: models.StatusDisconnected}
	return nil
}

func (f *fakeStatusAPI) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type SenderMock struct {
	mock.Mock
}

func (m *SenderMock) Send(ctx context.Context, id string, current models.ConnectionStatus, req models.SendMessageRequest) error {
	return m.Called(ctx, id, current, req).Error(0)
}

// fakeSessions источник сессии с ручным переключением состояния.
type fakeSessions struct {
	mu      sync.Mutex
	current session.Session
	subs    map[chan session.Session]struct{}
}

func newFakeSessions(s session.Session) *fakeSessions {
	return &fakeSessions{current: s, subs: map[chan session.Session]struct{}{}}
}

func (f *fakeSessions) Snapshot() session.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeSessions) Subscribe() (<-chan session.Session, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan session.Session, 1)
	f.subs[ch] = struct{}{}
	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.subs[ch]; ok {
			delete(f.subs, ch)
			close(ch)
		}
	}
}

func (f *fakeSessions) set(s session.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = s
	for ch := range f.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

func authenticated() session.Session {
	return session.Session{
		State: session.Authenticated,
		Token: "tok-1",
		User:  &models.UserProfile{ID: "u-1", Role: models.RoleCustomer},
	}
}

type env struct {
	api      *fakeStatusAPI
	nav      *view.Navigator
	sessions *fakeSessions
	sender   *SenderMock
	url      string
	done     chan struct{}
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func newEnv(t *testing.T, initial models.ConnectionState) *env {
	t.Helper()
	log := newNoopLogger()
	e := &env{
		api:      &fakeStatusAPI{state: initial},
		nav:      view.New(log, view.Dashboard),
		sessions: newFakeSessions(authenticated()),
		sender:   new(SenderMock),
		done:     make(chan struct{}, 1),
	}
	factory := func(id string) connection.Poller {
		return poller.New(id, e.api, log, poller.WithInterval(20*time.Millisecond))
	}
	h := connection.New(log, e.nav, e.sessions, factory, e.sender)

	r := chi.NewRouter()
	r.Get("/ws/sub-accounts/{id}", func(w http.ResponseWriter, req *http.Request) {
		h.ServeHTTP(w, req)
		e.done <- struct{}{}
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	e.url = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/sub-accounts/sa-1"
	return e
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil читает события, пока не встретится подходящее.
func readUntil(t *testing.T, conn *websocket.Conn, match func(connection.Event) bool) connection.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var ev connection.Event
		require.NoError(t, conn.ReadJSON(&ev))
		if match(ev) {
			return ev
		}
	}
}

func ofType(typ string) func(connection.Event) bool {
	return func(ev connection.Event) bool { return ev.Type == typ }
}

func TestConnection_PushesRenderableState(t *testing.T) {
	e := newEnv(t, models.ConnectionState{Status: models.StatusQRReady, QRCode: "data:qr", PhoneNumber: "+1555"})
	conn := dial(t, e.url)

	ev := readUntil(t, conn, ofType(connection.EventState))
	require.NotNil(t, ev.State)
	assert.Equal(t, models.StatusQRReady, ev.State.Status)
	assert.Equal(t, "data:qr", ev.State.QRCode)
	assert.Empty(t, ev.State.PhoneNumber)
	assert.Equal(t, view.SubAccountDetail, e.nav.Current())
}

func TestConnection_ConnectCommand(t *testing.T) {
	e := newEnv(t, models.ConnectionState{Status: models.StatusDisconnected})
	conn := dial(t, e.url)
	readUntil(t, conn, ofType(connection.EventState))

	require.NoError(t, conn.WriteJSON(connection.ClientMessage{Command: connection.CommandConnect}))

	ack := readUntil(t, conn, ofType(connection.EventAck))
	assert.Equal(t, connection.CommandConnect, ack.Command)

	ev := readUntil(t, conn, func(ev connection.Event) bool {
		return ev.Type == connection.EventState && ev.State.Status == models.StatusQRReady
	})
	assert.Equal(t, "data:qr", ev.State.QRCode)
}

func TestConnection_DisconnectRequiresConfirmation(t *testing.T) {
	e := newEnv(t, models.ConnectionState{Status: models.StatusConnected, PhoneNumber: "+1555"})
	conn := dial(t, e.url)
	readUntil(t, conn, ofType(connection.EventState))

	require.NoError(t, conn.WriteJSON(connection.ClientMessage{Command: connection.CommandDisconnect}))
	ev := readUntil(t, conn, ofType(connection.EventError))
	assert.Equal(t, connection.CommandDisconnect, ev.Command)
	assert.Equal(t, "disconnect requires confirmation", ev.Error)

	require.NoError(t, conn.WriteJSON(connection.ClientMessage{Command: connection.CommandDisconnect, Confirm: true}))
	readUntil(t, conn, ofType(connection.EventAck))

	e.api.mu.Lock()
	defer e.api.mu.Unlock()
	assert.Equal(t, 1, e.api.disconnect)
}

func TestConnection_SendUsesKnownStatus(t *testing.T) {
	e := newEnv(t, models.ConnectionState{Status: models.StatusConnected, PhoneNumber: "+1555"})
	req := models.SendMessageRequest{To: "+15550001", Message: "hello"}
	e.sender.On("Send", mock.Anything, "sa-1", models.StatusConnected, req).Return(nil).Once()

	conn := dial(t, e.url)
	readUntil(t, conn, ofType(connection.EventState))

	require.NoError(t, conn.WriteJSON(connection.ClientMessage{Command: connection.CommandSend, To: req.To, Message: req.Message}))
	ack := readUntil(t, conn, ofType(connection.EventAck))
	assert.Equal(t, connection.CommandSend, ack.Command)
	e.sender.AssertExpectations(t)
}

func TestConnection_UnknownCommand(t *testing.T) {
	e := newEnv(t, models.ConnectionState{Status: models.StatusDisconnected})
	conn := dial(t, e.url)

	require.NoError(t, conn.WriteJSON(connection.ClientMessage{Command: "reboot"}))
	ev := readUntil(t, conn, ofType(connection.EventError))
	assert.Equal(t, "unknown command", ev.Error)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	ev = readUntil(t, conn, ofType(connection.EventError))
	assert.Equal(t, "invalid message", ev.Error)
}

func TestConnection_RedirectOnSessionLoss(t *testing.T) {
	e := newEnv(t, models.ConnectionState{Status: models.StatusConnected})
	conn := dial(t, e.url)
	readUntil(t, conn, ofType(connection.EventState))

	e.sessions.set(session.Session{State: session.Anonymous})

	ev := readUntil(t, conn, ofType(connection.EventRedirect))
	assert.Equal(t, view.Login, ev.View)

	select {
	case <-e.done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not finish after redirect")
	}
}

func TestConnection_NavigationToLoginKeepsSocket(t *testing.T) {
	e := newEnv(t, models.ConnectionState{Status: models.StatusConnected})
	conn := dial(t, e.url)
	readUntil(t, conn, ofType(connection.EventState))

	// публичный экран открыт, но сессия жива
	e.nav.Enter(view.Login)
	e.sessions.set(authenticated())

	require.NoError(t, conn.WriteJSON(connection.ClientMessage{Command: connection.CommandRefresh}))
	ev := readUntil(t, conn, func(ev connection.Event) bool {
		return ev.Type == connection.EventAck || ev.Type == connection.EventRedirect
	})
	assert.Equal(t, connection.EventAck, ev.Type)

	select {
	case <-e.done:
		t.Fatal("handler finished while session is alive")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConnection_EndedSessionIsRedirectedOnOpen(t *testing.T) {
	e := newEnv(t, models.ConnectionState{Status: models.StatusConnected})
	e.sessions.set(session.Session{State: session.Anonymous})
	conn := dial(t, e.url)

	ev := readUntil(t, conn, func(connection.Event) bool { return true })
	assert.Equal(t, connection.EventRedirect, ev.Type)

	select {
	case <-e.done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not finish for ended session")
	}
	assert.Zero(t, e.api.Calls())
	assert.Equal(t, view.Dashboard, e.nav.Current())
}

func TestConnection_CloseStopsPolling(t *testing.T) {
	e := newEnv(t, models.ConnectionState{Status: models.StatusConnecting})
	conn := dial(t, e.url)
	readUntil(t, conn, ofType(connection.EventState))

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	select {
	case <-e.done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not finish after close")
	}

	calls := e.api.Calls()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, calls, e.api.Calls())
}
