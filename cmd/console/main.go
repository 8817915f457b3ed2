// Package main консоль коннектора WhatsApp и CRM.
//
// Команда serve поднимает локальный сервер консоли с REST API и каналом
// статуса подключения; остальные команды выполняют одну операцию от имени
// сохранённой сессии и печатают результат в stdout.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/magabrotheeeer/wa-connector-console/internal/app/console"
	"github.com/magabrotheeeer/wa-connector-console/internal/config"
	"github.com/magabrotheeeer/wa-connector-console/internal/lib/sl"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

const usage = `usage: console <command> [flags]

commands:
  serve                              run the console server
  login -email -password             open a session
  register -name -email -password    create an account and open a session
  forgot-password -email             request a password reset email
  logout                             forget the stored credential
  whoami                             show the current user
  sub-accounts [list|get|create|delete]
  status -id                         fetch the connection status once
  watch -id                          follow the connection status
  connect -id                        start a WhatsApp session and follow it
  disconnect -id -yes                end a WhatsApp session
  send -id -to -message              send a test message
  ghl [status|locations|link|unlink]
  billing [portal|subscribe|checkout]
  admin [stats|customers|sub-accounts]
`

func main() {
	// .env необязателен, переменные окружения имеют приоритет
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.MustLoad()
	logger := setupLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	name, args := os.Args[1], os.Args[2:]
	if name == "serve" {
		os.Exit(serve(ctx, cfg, logger))
	}

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", name, usage)
		os.Exit(2)
	}

	deps, err := console.NewDeps(ctx, cfg, logger, cmd.view)
	if err != nil {
		logger.Error("failed to initialize console", sl.Err(err))
		os.Exit(1)
	}
	defer deps.Close()

	if err := cmd.run(ctx, deps, args); err != nil {
		var ue usageError
		if errors.As(err, &ue) {
			fmt.Fprintln(os.Stderr, ue.Error())
			deps.Close()
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		deps.Close()
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) int {
	logger.Info("starting console", slog.String("env", cfg.Env))
	logger.Debug("config", slog.String("value", cfg.String()))

	app, err := console.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize app", sl.Err(err))
		return 1
	}

	if err := app.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("app stopped with error", sl.Err(err))
		return 1
	}

	logger.Info("console stopped gracefully")
	return 0
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		log = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		log = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	return log
}
