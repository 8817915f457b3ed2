package console

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/magabrotheeeer/wa-connector-console/internal/config"
	"github.com/magabrotheeeer/wa-connector-console/internal/credstore"
	"github.com/magabrotheeeer/wa-connector-console/internal/gateway"
	"github.com/magabrotheeeer/wa-connector-console/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/wa-connector-console/internal/lib/sl"
	"github.com/magabrotheeeer/wa-connector-console/internal/metrics"
	"github.com/magabrotheeeer/wa-connector-console/internal/poller"
	"github.com/magabrotheeeer/wa-connector-console/internal/services/admin"
	"github.com/magabrotheeeer/wa-connector-console/internal/services/auth"
	"github.com/magabrotheeeer/wa-connector-console/internal/services/billing"
	"github.com/magabrotheeeer/wa-connector-console/internal/services/ghl"
	"github.com/magabrotheeeer/wa-connector-console/internal/services/subaccounts"
	"github.com/magabrotheeeer/wa-connector-console/internal/services/whatsapp"
	"github.com/magabrotheeeer/wa-connector-console/internal/session"
	"github.com/magabrotheeeer/wa-connector-console/internal/view"
)

// Deps связанный граф зависимостей консоли. Его используют и сервер, и команды CLI.
type Deps struct {
	Log      *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Store     credstore.Store
	Navigator *view.Navigator
	Gateway   *gateway.Client
	Session   *session.Manager

	WhatsApp    *whatsapp.Client
	SubAccounts *subaccounts.Client
	GHL         *ghl.Client
	Billing     *billing.Client
	Admin       *admin.Client

	Publisher poller.Publisher

	pollInterval time.Duration
	warnAfter    int
	closers      []func() error
	onShutdown   []func()
}

// NewDeps собирает зависимости по конфигу. Брокер подключается, только если
// задан его URL; недоступный брокер не мешает работе консоли.
func NewDeps(ctx context.Context, cfg *config.Config, log *slog.Logger, initial view.Name) (*Deps, error) {
	const op = "console.NewDeps"

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	d := &Deps{
		Log:          log,
		Registry:     reg,
		Metrics:      m,
		pollInterval: cfg.Interval,
		warnAfter:    cfg.FailureWarnThreshold,
	}

	store, err := d.newStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	d.Store = store

	d.Navigator = view.New(log, initial)
	d.Gateway = gateway.New(cfg.BaseURL, store, d.Navigator, log,
		gateway.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		gateway.WithRateLimit(cfg.RateLimit, cfg.Burst),
		gateway.WithRecorder(m),
	)

	d.Session = session.New(auth.NewClient(d.Gateway), store, log, session.WithRecorder(m))
	// 401 на защищённом экране закрывает сессию
	d.Gateway.OnUnauthorized(d.Session.Invalidate)

	d.WhatsApp = whatsapp.NewClient(d.Gateway)
	d.SubAccounts = subaccounts.NewClient(d.Gateway)
	d.GHL = ghl.NewClient(d.Gateway)
	d.Billing = billing.NewClient(d.Gateway)
	d.Admin = admin.NewClient(d.Gateway)

	if cfg.RabbitMQ.URL != "" {
		if err := d.connectBroker(cfg.RabbitMQ); err != nil {
			log.Warn("status events disabled, broker unavailable", sl.Err(err))
		}
	}

	return d, nil
}

func (d *Deps) newStore(ctx context.Context, cfg *config.Config) (credstore.Store, error) {
	switch cfg.Backend {
	case "redis":
		r, err := credstore.NewRedis(ctx, cfg.RedisConnection, cfg.Key)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, r.Close)
		return r, nil
	case "memory":
		return credstore.NewMemory(""), nil
	default:
		return credstore.NewFile(cfg.Path, cfg.Key, cfg.Secret), nil
	}
}

func (d *Deps) connectBroker(cfg config.RabbitMQ) error {
	conn, err := rabbitmq.Connect(cfg.URL, 3, 2*time.Second)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	if err := rabbitmq.SetupExchange(ch, cfg.Exchange, rabbitmq.StatusQueues()); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}
	d.Publisher = rabbitmq.NewStatusPublisher(ch, cfg.Exchange, d.Log)
	d.closers = append(d.closers, conn.Close, ch.Close)
	d.Log.Info("publishing status changes", slog.String("exchange", cfg.Exchange))
	return nil
}

// NewPoller создаёт опрос статуса саб-аккаунта с настройками из конфига.
func (d *Deps) NewPoller(subAccountID string) *poller.Poller {
	opts := []poller.Option{
		poller.WithInterval(d.pollInterval),
		poller.WithFailureWarnThreshold(d.warnAfter),
		poller.WithRecorder(d.Metrics),
	}
	if d.Publisher != nil {
		opts = append(opts, poller.WithPublisher(d.Publisher))
	}
	return poller.New(subAccountID, d.WhatsApp, d.Log, opts...)
}

// OnShutdown регистрирует f для вызова в начале остановки сервера.
func (d *Deps) OnShutdown(f func()) {
	d.onShutdown = append(d.onShutdown, f)
}

// Shutdown вызывает зарегистрированные OnShutdown функции.
func (d *Deps) Shutdown() {
	for _, f := range d.onShutdown {
		f()
	}
}

// Close освобождает соединения в обратном порядке.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.Log.Warn("failed to close resource", sl.Err(err))
		}
	}
	d.closers = nil
}
