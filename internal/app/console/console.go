// Package console собирает сервер консоли: граф зависимостей, маршруты
// и жизненный цикл HTTP-сервера.
package console

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/magabrotheeeer/wa-connector-console/internal/config"
	"github.com/magabrotheeeer/wa-connector-console/internal/lib/sl"
	"github.com/magabrotheeeer/wa-connector-console/internal/view"
)

type App struct {
	server *http.Server
	logger *slog.Logger
	deps   *Deps
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	deps, err := NewDeps(ctx, cfg, logger, view.Login)
	if err != nil {
		return nil, err
	}

	router := chi.NewRouter()
	RegisterRoutes(router, deps, cfg.API)

	srv := &http.Server{
		Addr:        cfg.AddressHTTP,
		Handler:     router,
		ReadTimeout: cfg.TimeoutHTTP,
		// websocket держит соединение дольше WriteTimeout, дедлайны ставит сам обработчик
		IdleTimeout: cfg.IdleTimeout,
	}
	srv.RegisterOnShutdown(deps.Shutdown)

	return &App{
		server: srv,
		logger: logger,
		deps:   deps,
	}, nil
}

// Handler возвращает корневой обработчик сервера.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run восстанавливает сессию из сохранённого токена и запускает сервер до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	s, err := a.deps.Session.Resolve(ctx)
	if err != nil {
		a.logger.Warn("session not restored", sl.Err(err))
	}
	a.logger.Info("session state", slog.String("state", s.State.String()))
	if s.Authenticated() {
		a.deps.Navigator.Enter(view.Dashboard)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.deps.Close()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.deps.Close()
		return err
	}
}
