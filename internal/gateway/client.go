// Package gateway единая точка для всех запросов консоли к бэкенду коннектора.
//
// Client добавляет bearer-токен из хранилища, классифицирует каждый ответ
// и на 401 вне публичных экранов сообщает о потере сессии через явный
// колбэк и выполняет переход на экран входа. Остальные ошибки передаются
// вызывающему без побочных эффектов.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/wa-connector-console/internal/lib/sl"
)

// TokenSource читает сохранённый токен. Пустая строка означает, что токена нет.
// Шлюз только читает хранилище, пишет в него менеджер сессии.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Navigator знает текущий экран и умеет принудительно перейти на экран входа.
type Navigator interface {
	IsPublic() bool
	RedirectToLogin()
}

// Recorder собирает метрики запросов.
type Recorder interface {
	ObserveRequest(method, class string, duration time.Duration)
}

// Client шлюз запросов к REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	nav        Navigator
	limiter    *rate.Limiter
	recorder   Recorder
	log        *slog.Logger

	mu             sync.RWMutex
	onUnauthorized func()
}

// Option настраивает Client.
type Option func(*Client)

// WithHTTPClient подменяет http.Client (таймауты транспорта).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit ограничивает частоту исходящих запросов.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
		}
	}
}

// WithRecorder подключает сбор метрик.
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// New создаёт шлюз. nav может быть nil: тогда все экраны считаются защищёнными.
func New(baseURL string, tokens TokenSource, nav Navigator, log *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		tokens:     tokens,
		nav:        nav,
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnUnauthorized регистрирует обработчик потери сессии (401 вне публичных экранов).
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = fn
}

type callOptions struct {
	skipSessionReset bool
	query            url.Values
}

// CallOption настраивает отдельный вызов.
type CallOption func(*callOptions)

// SkipSessionReset отключает глобальную реакцию на 401 для вызова,
// ошибка которого ожидаема (логин, регистрация).
func SkipSessionReset() CallOption {
	return func(o *callOptions) { o.skipSessionReset = true }
}

// WithQuery добавляет query-параметры.
func WithQuery(q url.Values) CallOption {
	return func(o *callOptions) { o.query = q }
}

// Get выполняет GET и декодирует ответ в out.
func (c *Client) Get(ctx context.Context, path string, out any, opts ...CallOption) error {
	return c.Do(ctx, http.MethodGet, path, nil, out, opts...)
}

// Post выполняет POST.
func (c *Client) Post(ctx context.Context, path string, body, out any, opts ...CallOption) error {
	return c.Do(ctx, http.MethodPost, path, body, out, opts...)
}

// Put выполняет PUT.
func (c *Client) Put(ctx context.Context, path string, body, out any, opts ...CallOption) error {
	return c.Do(ctx, http.MethodPut, path, body, out, opts...)
}

// Delete выполняет DELETE.
func (c *Client) Delete(ctx context.Context, path string, out any, opts ...CallOption) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out, opts...)
}

// Do выполняет запрос и классифицирует ответ. При 2xx тело декодируется в out
// без изменений; иначе возвращается *Error.
func (c *Client) Do(ctx context.Context, method, path string, body, out any, opts ...CallOption) error {
	const op = "gateway.Do"
	var co callOptions
	for _, opt := range opts {
		opt(&co)
	}

	log := c.log.With(
		slog.String("op", op),
		slog.String("method", method),
		slog.String("path", path),
	)

	if err := validateBody(method, path, body); err != nil {
		log.Debug("request body rejected before sending", sl.Err(err))
		return err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	req, err := c.newRequest(ctx, method, path, body, co.query)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	log = log.With(slog.String("request_id", req.Header.Get("X-Request-ID")))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(method, KindTransient.String(), start)
		log.Warn("request failed", sl.Err(err))
		return &Error{Kind: KindTransient, Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(method, KindTransient.String(), start)
		log.Warn("failed to read response body", sl.Err(err))
		return &Error{Kind: KindTransient, Method: method, Path: path, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.observe(method, "success", start)
		if out == nil || len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%s: decode %s %s: %w", op, method, path, err)
		}
		return nil
	}

	kind := Classify(resp.StatusCode)
	c.observe(method, kind.String(), start)
	msg, fields := parseErrorBody(data)
	gwErr := &Error{
		Kind:    kind,
		Method:  method,
		Path:    path,
		Status:  resp.StatusCode,
		Message: msg,
		Fields:  fields,
	}

	if kind == KindUnauthenticated && !co.skipSessionReset && !c.onPublicView() {
		log.Warn("session rejected by backend, resetting")
		gwErr.Err = ErrSessionExpired
		c.resetSession()
		return gwErr
	}

	log.Debug("request rejected", slog.Int("status", resp.StatusCode), slog.String("class", kind.String()))
	return gwErr
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any, query url.Values) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
		reader = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("read credential: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

func (c *Client) onPublicView() bool {
	return c.nav != nil && c.nav.IsPublic()
}

func (c *Client) resetSession() {
	c.mu.RLock()
	fn := c.onUnauthorized
	c.mu.RUnlock()

	// экран уводится до сброса: подписчики сессии видят уже экран входа
	if c.nav != nil {
		c.nav.RedirectToLogin()
	}
	if fn != nil {
		fn()
	}
}

func (c *Client) observe(method, class string, start time.Time) {
	if c.recorder != nil {
		c.recorder.ObserveRequest(method, class, time.Since(start))
	}
}

// IsCanceled сообщает, что запрос прерван контекстом вызывающего.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
