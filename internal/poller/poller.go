// Package poller поддерживает состояние подключения WhatsApp одного
// саб-аккаунта согласованным с бэкендом через периодический опрос.
//
// Все запросы статуса выполняет одна горутина экземпляра, поэтому в полёте
// всегда не больше одного запроса. Внеочередные запросы, пришедшие во время
// опроса, схлопываются в один следующий.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/magabrotheeeer/wa-connector-console/internal/lib/sl"
	"github.com/magabrotheeeer/wa-connector-console/internal/models"
)

// DefaultInterval период опроса статуса.
const DefaultInterval = 3 * time.Second

var (
	// ErrConnectInFlight команда подключения уже выполняется.
	ErrConnectInFlight = errors.New("connect already in flight")
	// ErrNotConfirmed отключение без подтверждения пользователя.
	ErrNotConfirmed = errors.New("disconnect requires confirmation")
	// ErrStopped экземпляр уже остановлен.
	ErrStopped = errors.New("poller stopped")
)

// StatusAPI эндпоинты подключения WhatsApp.
type StatusAPI interface {
	Status(ctx context.Context, subAccountID string) (*models.ConnectionState, error)
	Connect(ctx context.Context, subAccountID string) error
	Disconnect(ctx context.Context, subAccountID string) error
}

// Recorder собирает метрики опроса.
type Recorder interface {
	ObserveFetch(result string)
}

// Publisher получает события смены статуса.
type Publisher interface {
	PublishStatusChange(ctx context.Context, ev models.StatusChange) error
}

const (
	resultApplied = "applied"
	resultFailed  = "failed"
	resultDropped = "dropped"
	resultSkipped = "skipped"
)

// Poller опрашивает статус одного саб-аккаунта.
type Poller struct {
	id        string
	api       StatusAPI
	log       *slog.Logger
	interval  time.Duration
	warnAfter int
	recorder  Recorder
	publisher Publisher

	kick   chan struct{}
	wg     sync.WaitGroup
	cancel context.CancelFunc

	mu       sync.Mutex
	started  bool
	alive    bool
	state    models.ConnectionState
	hasState bool
	// epoch растёт после каждой успешной команды; ответы на запросы,
	// отправленные раньше, отбрасываются.
	epoch uint64
	// afterDisconnect запрещает применять connected до следующего успешного connect.
	afterDisconnect bool
	connecting      bool
	failures        int
	nextID          int
	subs            map[int]chan models.ConnectionState
}

// Option настраивает Poller.
type Option func(*Poller)

// WithInterval задаёт период опроса.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithFailureWarnThreshold задаёт число подряд неудачных запросов,
// после которого опрос пишет предупреждение в лог.
func WithFailureWarnThreshold(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.warnAfter = n
		}
	}
}

// WithRecorder подключает метрики.
func WithRecorder(r Recorder) Option {
	return func(p *Poller) { p.recorder = r }
}

// WithPublisher подключает публикацию смены статуса.
func WithPublisher(pub Publisher) Option {
	return func(p *Poller) { p.publisher = pub }
}

// New создаёт опрос для саб-аккаунта. Опрос не идёт до вызова Start.
func New(subAccountID string, api StatusAPI, log *slog.Logger, opts ...Option) *Poller {
	p := &Poller{
		id:        subAccountID,
		api:       api,
		log:       log.With(sl.SubAccount(subAccountID)),
		interval:  DefaultInterval,
		warnAfter: 5,
		kick:      make(chan struct{}, 1),
		subs:      map[int]chan models.ConnectionState{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start сразу запрашивает статус и дальше опрашивает каждые interval до Stop
// или отмены ctx. Повторный Start ничего не делает, после Stop возвращает ErrStopped.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		if !p.alive {
			return ErrStopped
		}
		return nil
	}
	p.started = true
	p.alive = true

	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.run(ctx)

	p.log.Debug("status polling started", slog.Duration("interval", p.interval))
	return nil
}

// Stop останавливает опрос и дожидается горутины. После возврата состояние
// больше не меняется, даже если ответ на запрос придёт позже. Каналы подписчиков закрываются.
func (p *Poller) Stop() {
	p.mu.Lock()
	wasAlive := p.alive
	p.alive = false
	p.started = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	for id, ch := range p.subs {
		delete(p.subs, id)
		close(ch)
	}
	p.mu.Unlock()
	if wasAlive {
		p.log.Debug("status polling stopped")
	}
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	p.fetch(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.fetch(ctx)
		case <-p.kick:
			p.fetch(ctx)
		}
	}
}

// Refresh просит внеочередной запрос статуса, не дожидаясь тика.
func (p *Poller) Refresh() {
	select {
	case p.kick <- struct{}{}:
	default:
		// запрос уже ждёт своей очереди
	}
}

func (p *Poller) fetch(ctx context.Context) {
	const op = "poller.fetch"

	p.mu.Lock()
	if !p.alive {
		p.mu.Unlock()
		return
	}
	epoch := p.epoch
	p.mu.Unlock()

	st, err := p.api.Status(ctx, p.id)

	p.mu.Lock()
	if !p.alive || ctx.Err() != nil {
		p.mu.Unlock()
		p.observe(resultDropped)
		return
	}

	if err != nil {
		p.failures++
		failures := p.failures
		p.mu.Unlock()
		p.observe(resultFailed)

		log := p.log.With(slog.String("op", op), slog.Int("consecutive_failures", failures), sl.Err(err))
		if failures == p.warnAfter {
			log.Warn("connection status unreachable, showing last known state")
		} else {
			log.Debug("status fetch failed, keeping previous state")
		}
		return
	}
	p.failures = 0

	if epoch != p.epoch {
		p.mu.Unlock()
		p.observe(resultDropped)
		p.log.Debug("dropping status fetched before last command", slog.String("status", string(st.Status)))
		return
	}
	if p.afterDisconnect && st.Status == models.StatusConnected {
		p.mu.Unlock()
		p.observe(resultSkipped)
		p.log.Debug("ignoring connected status reported after disconnect")
		return
	}

	prev, hadState := p.state, p.hasState
	p.state = *st
	p.hasState = true
	changed := !hadState || prev != p.state
	if changed {
		p.notifyLocked()
	}
	p.mu.Unlock()
	p.observe(resultApplied)

	if changed && (!hadState || prev.Status != st.Status) {
		p.log.Info("connection status changed",
			slog.String("from", string(prev.Status)),
			slog.String("to", string(st.Status)),
		)
		p.publish(ctx, prev.Status, *st)
	}
}

func (p *Poller) publish(ctx context.Context, from models.ConnectionStatus, st models.ConnectionState) {
	if p.publisher == nil {
		return
	}
	ev := models.StatusChange{
		SubAccountID: p.id,
		From:         from,
		To:           st.Status,
		PhoneNumber:  st.PhoneNumber,
		At:           time.Now().UTC(),
	}
	if err := p.publisher.PublishStatusChange(ctx, ev); err != nil {
		p.log.Error("failed to publish status change", sl.Err(err))
	}
}

// Connect отправляет команду подключения и сразу запрашивает статус.
// Пока команда в полёте, повторный вызов возвращает ErrConnectInFlight.
// При ошибке состояние не меняется, ошибка возвращается вызывающему.
func (p *Poller) Connect(ctx context.Context) error {
	const op = "poller.Connect"

	p.mu.Lock()
	if !p.alive {
		p.mu.Unlock()
		return fmt.Errorf("%s: %w", op, ErrStopped)
	}
	if p.connecting {
		p.mu.Unlock()
		return fmt.Errorf("%s: %w", op, ErrConnectInFlight)
	}
	p.connecting = true
	p.mu.Unlock()

	err := p.api.Connect(ctx, p.id)

	p.mu.Lock()
	p.connecting = false
	if err != nil {
		p.mu.Unlock()
		p.log.Warn("connect command failed", slog.String("op", op), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if !p.alive {
		p.mu.Unlock()
		return nil
	}
	p.epoch++
	p.afterDisconnect = false
	p.mu.Unlock()

	p.log.Info("connect command accepted", slog.String("op", op))
	p.Refresh()
	return nil
}

// Disconnect разрывает сессию WhatsApp. Без confirmed команда не отправляется.
func (p *Poller) Disconnect(ctx context.Context, confirmed bool) error {
	const op = "poller.Disconnect"

	if !confirmed {
		return fmt.Errorf("%s: %w", op, ErrNotConfirmed)
	}
	p.mu.Lock()
	alive := p.alive
	p.mu.Unlock()
	if !alive {
		return fmt.Errorf("%s: %w", op, ErrStopped)
	}

	if err := p.api.Disconnect(ctx, p.id); err != nil {
		p.log.Warn("disconnect command failed", slog.String("op", op), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	p.mu.Lock()
	if !p.alive {
		p.mu.Unlock()
		return nil
	}
	p.epoch++
	p.afterDisconnect = true
	p.mu.Unlock()

	p.log.Info("disconnect command accepted", slog.String("op", op))
	p.Refresh()
	return nil
}

// State возвращает последнее применённое состояние; false, если статус ещё не получен.
func (p *Poller) State() (models.ConnectionState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.hasState
}

// View возвращает состояние для отрисовки.
func (p *Poller) View() models.ConnectionView {
	st, _ := p.State()
	return st.View()
}

// Connecting сообщает, выполняется ли команда подключения.
func (p *Poller) Connecting() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connecting
}

// Failures число подряд неудачных запросов статуса.
func (p *Poller) Failures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}

// Subscribe возвращает канал применённых состояний. Если статус уже известен,
// он сразу лежит в канале. Медленный подписчик получает только последнее.
// Канал закрывается при Stop или вызове отписки.
func (p *Poller) Subscribe() (<-chan models.ConnectionState, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan models.ConnectionState, 1)
	if !p.alive && p.started {
		close(ch)
		return ch, func() {}
	}
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	if p.hasState {
		ch <- p.state
	}

	return ch, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if c, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(c)
		}
	}
}

func (p *Poller) notifyLocked() {
	for _, ch := range p.subs {
		select {
		case <-ch:
		default:
		}
		ch <- p.state
	}
}

func (p *Poller) observe(result string) {
	if p.recorder != nil {
		p.recorder.ObserveFetch(result)
	}
}
