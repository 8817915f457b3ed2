// Package connection реализует канал статуса подключения WhatsApp поверх websocket.
//
// Открытие сокета активирует экран саб-аккаунта: создаётся собственный опрос
// статуса, и каждое применённое состояние уходит клиенту в виде, безопасном
// для отрисовки. Закрытие сокета деактивирует экран и останавливает опрос.
// Конец сессии (выход или сброс по 401) закрывает сокет с событием redirect,
// простая навигация на другой экран сокет не трогает.
// Команды connect, disconnect, send и refresh приходят по тому же сокету.
package connection

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/gorilla/websocket"

	"github.com/magabrotheeeer/wa-connector-console/internal/http/response"
	"github.com/magabrotheeeer/wa-connector-console/internal/lib/sl"
	"github.com/magabrotheeeer/wa-connector-console/internal/models"
	"github.com/magabrotheeeer/wa-connector-console/internal/session"
	"github.com/magabrotheeeer/wa-connector-console/internal/view"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 90 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 16 * 1024
)

// Команды клиента.
const (
	CommandConnect    = "connect"
	CommandDisconnect = "disconnect"
	CommandSend       = "send"
	CommandRefresh    = "refresh"
)

// Типы событий сервера.
const (
	EventState    = "state"
	EventAck      = "ack"
	EventError    = "error"
	EventRedirect = "redirect"
)

// Poller опрос статуса одного саб-аккаунта.
type Poller interface {
	Start(ctx context.Context) error
	Stop()
	Refresh()
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context, confirmed bool) error
	State() (models.ConnectionState, bool)
	Subscribe() (<-chan models.ConnectionState, func())
}

// PollerFactory создаёт новый опрос для саб-аккаунта.
type PollerFactory func(subAccountID string) Poller

// Sender отправляет тестовое сообщение.
type Sender interface {
	Send(ctx context.Context, subAccountID string, current models.ConnectionStatus, req models.SendMessageRequest) error
}

// Navigator текущий экран консоли.
type Navigator interface {
	Enter(name view.Name)
}

// Sessions источник состояния сессии.
type Sessions interface {
	Snapshot() session.Session
	Subscribe() (<-chan session.Session, func())
}

// ClientMessage команда клиента.
type ClientMessage struct {
	Command string `json:"command"`
	Confirm bool   `json:"confirm,omitempty"`
	To      string `json:"to,omitempty"`
	Message string `json:"message,omitempty"`
}

// Event сообщение сервера.
type Event struct {
	Type    string                 `json:"type"`
	Command string                 `json:"command,omitempty"`
	State   *models.ConnectionView `json:"state,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Fields  map[string]string      `json:"fields,omitempty"`
	View    view.Name              `json:"view,omitempty"`
}

// Handler обработчик /ws/sub-accounts/{id}.
type Handler struct {
	log       *slog.Logger
	nav       Navigator
	sessions  Sessions
	newPoller PollerFactory
	sender    Sender
	upgrader  websocket.Upgrader

	// base отменяется Close и закрывает все открытые сокеты
	base   context.Context
	cancel context.CancelFunc
}

// New создаёт обработчик. Сокеты принимаются только с того же origin,
// что и сам сервер консоли.
func New(log *slog.Logger, nav Navigator, sessions Sessions, newPoller PollerFactory, sender Sender) *Handler {
	base, cancel := context.WithCancel(context.Background())
	return &Handler{
		base:      base,
		cancel:    cancel,
		log:       log,
		nav:       nav,
		sessions:  sessions,
		newPoller: newPoller,
		sender:    sender,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Close закрывает все открытые сокеты, опросы за ними останавливаются.
func (h *Handler) Close() {
	h.cancel()
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.connection.ServeHTTP"
	id := chi.URLParam(r, "id")
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		sl.SubAccount(id),
	)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		log.Warn("websocket upgrade failed", sl.Err(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(h.base)
	defer cancel()

	sessions, unsubscribeSessions := h.sessions.Subscribe()
	defer unsubscribeSessions()
	if !h.sessions.Snapshot().Authenticated() {
		// сессия закончилась между проверкой доступа и апгрейдом
		s := &socket{conn: conn, log: log}
		_ = s.write(Event{Type: EventRedirect, View: view.Login})
		s.close(websocket.ClosePolicyViolation, "session ended")
		return
	}
	h.nav.Enter(view.SubAccountDetail)

	p := h.newPoller(id)
	states, unsubscribe := p.Subscribe()
	defer unsubscribe()
	if err := p.Start(ctx); err != nil {
		log.Error("failed to start status polling", sl.Err(err))
		return
	}
	defer p.Stop()
	log.Info("status view activated")

	s := &socket{
		conn:   conn,
		log:    log,
		id:     id,
		poller: p,
		sender: h.sender,
		out:    make(chan Event, 8),
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx, states, sessions)
		cancel()
		// разблокирует readLoop
		_ = conn.Close()
	}()

	s.readLoop(ctx)
	cancel()
	s.commands.Wait()
	<-writerDone
	log.Info("status view deactivated")
}

type socket struct {
	conn     *websocket.Conn
	log      *slog.Logger
	id       string
	poller   Poller
	sender   Sender
	out      chan Event
	commands sync.WaitGroup
}

func (s *socket) readLoop(ctx context.Context) {
	s.conn.SetReadLimit(readLimit)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("websocket closed unexpectedly", sl.Err(err))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.emit(ctx, Event{Type: EventError, Error: "invalid message"})
			continue
		}

		// команды выполняются параллельно чтению, чтобы повторный connect
		// получил отказ, а не встал в очередь
		s.commands.Add(1)
		go func() {
			defer s.commands.Done()
			s.execute(ctx, msg)
		}()
	}
}

func (s *socket) execute(ctx context.Context, msg ClientMessage) {
	var err error
	switch msg.Command {
	case CommandConnect:
		err = s.poller.Connect(ctx)
	case CommandDisconnect:
		err = s.poller.Disconnect(ctx, msg.Confirm)
	case CommandSend:
		st, _ := s.poller.State()
		err = s.sender.Send(ctx, s.id, st.Status, models.SendMessageRequest{To: msg.To, Message: msg.Message})
	case CommandRefresh:
		s.poller.Refresh()
	default:
		s.emit(ctx, Event{Type: EventError, Command: msg.Command, Error: "unknown command"})
		return
	}

	if err != nil {
		s.log.Info("command rejected", slog.String("command", msg.Command), sl.Err(err))
		resp := response.FromError(err)
		s.emit(ctx, Event{Type: EventError, Command: msg.Command, Error: resp.Error, Fields: resp.Fields})
		return
	}
	s.emit(ctx, Event{Type: EventAck, Command: msg.Command})
}

func (s *socket) emit(ctx context.Context, ev Event) {
	select {
	case s.out <- ev:
	case <-ctx.Done():
	}
}

// writeLoop единственный писатель в сокет.
func (s *socket) writeLoop(ctx context.Context, states <-chan models.ConnectionState, sessions <-chan session.Session) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.close(websocket.CloseNormalClosure, "")
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			v := st.View()
			if err := s.write(Event{Type: EventState, State: &v}); err != nil {
				return
			}
		case ev := <-s.out:
			if err := s.write(ev); err != nil {
				return
			}
		case sess, ok := <-sessions:
			if !ok {
				sessions = nil
				continue
			}
			if sess.Authenticated() {
				continue
			}
			// сессия потеряна или закрыта, экран больше не активен
			_ = s.write(Event{Type: EventRedirect, View: view.Login})
			s.close(websocket.ClosePolicyViolation, "session ended")
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *socket) write(ev Event) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(ev); err != nil {
		s.log.Debug("websocket write failed", sl.Err(err))
		return err
	}
	return nil
}

func (s *socket) close(code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
