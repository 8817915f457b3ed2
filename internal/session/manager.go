// Package session управляет аутентифицированной сессией консоли.
//
// Manager восстанавливает сессию по сохранённому токену, кеширует профиль
// и сбрасывает сессию только при отказе в аутентификации (401/403) или явном
// выходе. Сетевая ошибка при восстановлении сессии токен не удаляет:
// пользователь выглядит вышедшим до повторной попытки, но не теряет вход.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/magabrotheeeer/wa-connector-console/internal/credstore"
	"github.com/magabrotheeeer/wa-connector-console/internal/gateway"
	"github.com/magabrotheeeer/wa-connector-console/internal/lib/jwt"
	"github.com/magabrotheeeer/wa-connector-console/internal/lib/sl"
	"github.com/magabrotheeeer/wa-connector-console/internal/models"
)

var (
	// ErrNotAuthenticated защищённый экран открыт без сессии.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrForbiddenRole роль пользователя не допускает экран.
	ErrForbiddenRole = errors.New("role is not allowed to open this view")
)

// AuthAPI эндпоинты сессии.
type AuthAPI interface {
	Me(ctx context.Context) (*models.UserProfile, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
	Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error)
	ForgotPassword(ctx context.Context, req models.ForgotPasswordRequest) error
}

// Recorder собирает метрики переходов.
type Recorder interface {
	ObserveTransition(state string)
}

// Manager владелец состояния сессии. Единственный, кто пишет в хранилище токена.
type Manager struct {
	api      AuthAPI
	store    credstore.Store
	log      *slog.Logger
	recorder Recorder
	group    singleflight.Group

	// storeMu упорядочивает записи в хранилище токена. Snapshot и Gate его
	// не берут, поэтому медленное хранилище (Redis) не блокирует чтение сессии.
	storeMu sync.Mutex

	mu      sync.Mutex
	state   State
	token   string
	user    *models.UserProfile
	loading bool
	// epoch растёт при каждой смене владельца токена (логин, выход, сброс),
	// ответы /auth/me, начатые в старой эпохе, отбрасываются.
	epoch  uint64
	nextID int
	subs   map[int]chan Session
}

// Option настраивает Manager.
type Option func(*Manager)

// WithRecorder подключает метрики переходов.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// New создаёт менеджер в состоянии Unresolved.
func New(api AuthAPI, store credstore.Store, log *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		api:   api,
		store: store,
		log:   log,
		state: Unresolved,
		subs:  map[int]chan Session{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Snapshot возвращает текущую сессию.
func (m *Manager) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Resolve восстанавливает сессию по сохранённому токену. Идемпотентен:
// выполняется только из Unresolved и AnonymousRetryable, иначе возвращает
// текущую сессию. Параллельные вызовы, в том числе пришедшие в Resolving,
// объединяются в один запрос и получают его результат.
func (m *Manager) Resolve(ctx context.Context) (Session, error) {
	m.mu.Lock()
	if m.state != Unresolved && m.state != AnonymousRetryable && m.state != Resolving {
		s := m.snapshotLocked()
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	_, err, _ := m.group.Do("resolve", func() (any, error) {
		return nil, m.resolve(ctx)
	})
	return m.Snapshot(), err
}

// Retry повторяет восстановление после сетевой ошибки (ручной повтор).
func (m *Manager) Retry(ctx context.Context) (Session, error) {
	return m.Resolve(ctx)
}

func (m *Manager) resolve(ctx context.Context) error {
	const op = "session.Resolve"
	log := m.log.With(slog.String("op", op))

	m.mu.Lock()
	if m.state != Unresolved && m.state != AnonymousRetryable {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	token, err := m.store.Token(ctx)
	if err != nil {
		log.Error("failed to read stored credential", sl.Err(err))
		m.mu.Lock()
		m.transitionLocked(AnonymousRetryable, "", nil, false)
		m.mu.Unlock()
		return fmt.Errorf("%s: %w", op, err)
	}

	m.mu.Lock()
	if m.state != Unresolved && m.state != AnonymousRetryable {
		// сессию уже установили, пока читали хранилище
		m.mu.Unlock()
		return nil
	}
	if token == "" {
		m.transitionLocked(Anonymous, "", nil, false)
		m.mu.Unlock()
		log.Debug("no stored credential")
		return nil
	}
	epoch := m.epoch
	m.transitionLocked(Resolving, token, nil, true)
	m.mu.Unlock()

	user, err := m.api.Me(ctx)

	if err != nil && denied(err) {
		if _, ok := m.discard(log, &epoch); ok {
			log.Info("stored credential rejected, discarded", sl.Err(err))
		} else {
			log.Debug("discarding stale session resolution")
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		// пока шёл запрос, сессию сменили логином, выходом или сбросом по 401
		log.Debug("discarding stale session resolution")
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	}

	if err != nil {
		m.transitionLocked(AnonymousRetryable, "", nil, false)
		log.Warn("session resolution failed, credential kept for retry", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	m.transitionLocked(Authenticated, token, user, false)
	log.Info("session resolved", slog.String("user_id", user.ID), slog.String("role", string(user.Role)))
	return nil
}

// Login обменивает учётные данные на сессию. При успехе токен и профиль
// устанавливаются атомарно; при ошибке состояние не меняется, ошибка
// возвращается для показа в форме.
func (m *Manager) Login(ctx context.Context, req models.LoginRequest) (*models.UserProfile, error) {
	const op = "session.Login"
	resp, err := m.api.Login(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := m.establish(ctx, resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	m.log.Info("logged in", slog.String("op", op), slog.String("user_id", resp.User.ID))
	user := resp.User
	return &user, nil
}

// Register регистрирует клиента и сразу открывает сессию.
func (m *Manager) Register(ctx context.Context, req models.RegisterRequest) (*models.UserProfile, error) {
	const op = "session.Register"
	resp, err := m.api.Register(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := m.establish(ctx, resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	m.log.Info("registered", slog.String("op", op), slog.String("user_id", resp.User.ID))
	user := resp.User
	return &user, nil
}

// ForgotPassword запрашивает сброс пароля, состояние сессии не меняется.
func (m *Manager) ForgotPassword(ctx context.Context, email string) error {
	const op = "session.ForgotPassword"
	if err := m.api.ForgotPassword(ctx, models.ForgotPasswordRequest{Email: email}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (m *Manager) establish(ctx context.Context, resp *models.AuthResponse) error {
	m.storeMu.Lock()
	defer m.storeMu.Unlock()

	if err := m.store.Save(ctx, resp.Token); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}

	user := resp.User
	m.mu.Lock()
	m.epoch++
	m.transitionLocked(Authenticated, resp.Token, &user, false)
	m.mu.Unlock()
	return nil
}

// Logout синхронно очищает токен и профиль. Бэкенд не уведомляется.
func (m *Manager) Logout() {
	log := m.log.With(slog.String("op", "session.Logout"))
	m.discard(log, nil)
	log.Info("logged out")
}

// Invalidate сбрасывает сессию по сигналу шлюза о 401.
func (m *Manager) Invalidate() {
	log := m.log.With(slog.String("op", "session.Invalidate"))
	if from, _ := m.discard(log, nil); from != Anonymous {
		log.Warn("session invalidated by backend", slog.String("from", from.String()))
	}
}

// discard переводит сессию в Anonymous и стирает сохранённый токен.
// С epoch != nil сброс выполняется, только если эпоха не сменилась.
// Состояние меняется под mu, а запись в хранилище идёт уже без него.
func (m *Manager) discard(log *slog.Logger, epoch *uint64) (State, bool) {
	m.storeMu.Lock()
	defer m.storeMu.Unlock()

	m.mu.Lock()
	from := m.state
	if epoch != nil && m.epoch != *epoch {
		m.mu.Unlock()
		return from, false
	}
	m.epoch++
	m.transitionLocked(Anonymous, "", nil, false)
	m.mu.Unlock()

	// хранилище локальное, его ошибка не должна мешать выходу
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.Clear(ctx); err != nil {
		log.Error("failed to clear stored credential", sl.Err(err))
	}
	return from, true
}

// RefreshProfile перезапрашивает профиль и заменяет его целиком.
// 401/403 сбрасывают сессию, прочие ошибки оставляют токен и прежний профиль.
func (m *Manager) RefreshProfile(ctx context.Context) (*models.UserProfile, error) {
	const op = "session.RefreshProfile"
	log := m.log.With(slog.String("op", op))

	m.mu.Lock()
	if m.state != Authenticated {
		m.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", op, ErrNotAuthenticated)
	}
	epoch := m.epoch
	m.loading = true
	m.notifyLocked()
	m.mu.Unlock()

	v, err, _ := m.group.Do("refresh", func() (any, error) {
		return m.api.Me(ctx)
	})

	if err != nil && denied(err) {
		if _, ok := m.discard(log, &epoch); ok {
			log.Info("credential rejected on refresh, discarded", sl.Err(err))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		log.Debug("discarding stale profile refresh")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return nil, fmt.Errorf("%s: %w", op, ErrNotAuthenticated)
	}

	if err != nil {
		m.loading = false
		m.notifyLocked()
		log.Warn("profile refresh failed, keeping session", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user := *v.(*models.UserProfile)
	m.transitionLocked(Authenticated, m.token, &user, false)
	return &user, nil
}

// Gate проверяет доступ к защищённому экрану. RoleAdmin требует администратора,
// любая другая роль допускает любого вошедшего пользователя.
func (m *Manager) Gate(role models.Role) (*models.UserProfile, error) {
	s := m.Snapshot()
	if s.State != Authenticated || s.User == nil {
		return nil, ErrNotAuthenticated
	}
	if role == models.RoleAdmin && !s.User.IsAdmin() {
		return nil, ErrForbiddenRole
	}
	user := *s.User
	return &user, nil
}

// Subscribe возвращает канал изменений сессии. Медленный подписчик
// получает только последнее состояние.
func (m *Manager) Subscribe() (<-chan Session, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan Session, 1)
	m.subs[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

func (m *Manager) transitionLocked(state State, token string, user *models.UserProfile, loading bool) {
	changed := m.state != state
	m.state = state
	m.token = token
	m.user = user
	m.loading = loading
	if changed && m.recorder != nil {
		m.recorder.ObserveTransition(state.String())
	}
	m.notifyLocked()
}

func (m *Manager) notifyLocked() {
	s := m.snapshotLocked()
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

func (m *Manager) snapshotLocked() Session {
	s := Session{
		State:   m.state,
		Token:   m.token,
		Loading: m.loading,
	}
	if m.user != nil {
		user := *m.user
		s.User = &user
	}
	if m.token != "" {
		if claims, err := jwt.Inspect(m.token); err == nil {
			if exp, ok := claims.ExpiresAtTime(); ok {
				s.ExpiresAt = &exp
			}
		}
	}
	return s
}

func denied(err error) bool {
	return gateway.IsUnauthenticated(err) || gateway.IsForbidden(err)
}
