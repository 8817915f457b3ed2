package console

import (
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/magabrotheeeer/wa-connector-console/internal/config"
	"github.com/magabrotheeeer/wa-connector-console/internal/http/handlers/admin"
	"github.com/magabrotheeeer/wa-connector-console/internal/http/handlers/connection"
	"github.com/magabrotheeeer/wa-connector-console/internal/http/handlers/integrations"
	sessionhandler "github.com/magabrotheeeer/wa-connector-console/internal/http/handlers/session"
	"github.com/magabrotheeeer/wa-connector-console/internal/http/handlers/subaccounts"
	"github.com/magabrotheeeer/wa-connector-console/internal/http/middlewarectx"
	"github.com/magabrotheeeer/wa-connector-console/internal/models"
	"github.com/magabrotheeeer/wa-connector-console/internal/view"
)

// RegisterRoutes регистрирует все маршруты сервера консоли.
func RegisterRoutes(r chi.Router, d *Deps, limits config.API) {
	log := d.Log
	nav := d.Navigator

	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middlewarectx.RateLimitMiddleware(log, limits.RateLimit, limits.Burst),
	)

	sessionH := sessionhandler.New(log, d.Session, nav)
	subsH := subaccounts.New(log, d.SubAccounts, d.GHL, d.Billing)
	integrationsH := integrations.New(log, d.GHL, d.Billing)
	adminH := admin.New(log, d.Admin, d.SubAccounts)
	connH := connection.New(log, nav, d.Session, func(id string) connection.Poller {
		return d.NewPoller(id)
	}, d.WhatsApp)
	// сервер не ждёт захваченные websocket-соединения, их закрывает сам обработчик
	d.OnShutdown(connH.Close)

	r.Route("/api", func(r chi.Router) {
		// Открытые конечные точки
		r.Get("/session", sessionH.Get)
		r.Post("/session/retry", sessionH.Retry)
		r.Post("/session/logout", sessionH.Logout)
		r.With(middlewarectx.EnterView(nav, view.Login)).Post("/session/login", sessionH.Login)
		r.With(middlewarectx.EnterView(nav, view.Register)).Post("/session/register", sessionH.Register)
		r.With(middlewarectx.EnterView(nav, view.ForgotPassword)).Post("/session/forgot-password", sessionH.ForgotPassword)

		// Группа с открытой сессией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RequireSession(d.Session, models.RoleCustomer, log))

			r.With(middlewarectx.EnterView(nav, view.Dashboard)).Post("/session/refresh", sessionH.Refresh)

			r.Route("/sub-accounts", func(r chi.Router) {
				r.Use(middlewarectx.EnterView(nav, view.SubAccounts))
				r.Get("/", subsH.List)
				r.Post("/", subsH.Create)
				r.Get("/{id}", subsH.Get)
				r.Put("/{id}", subsH.Update)
				r.Delete("/{id}", subsH.Delete)
				r.Post("/{id}/location", subsH.LinkLocation)
				r.Delete("/{id}/location", subsH.UnlinkLocation)
				r.Post("/{id}/checkout", subsH.Checkout)
			})

			r.Group(func(r chi.Router) {
				r.Use(middlewarectx.EnterView(nav, view.Billing))
				r.Get("/ghl/status", integrationsH.CRMStatus)
				r.Get("/ghl/locations", integrationsH.Locations)
				r.Get("/billing/portal", integrationsH.Portal)
				r.Post("/billing/subscribe", integrationsH.Subscribe)
			})
		})

		// Админские маршруты
		r.Route("/admin", func(r chi.Router) {
			r.Use(middlewarectx.RequireSession(d.Session, models.RoleAdmin, log))
			r.Use(middlewarectx.EnterView(nav, view.Admin))
			r.Get("/stats", adminH.Stats)
			r.Get("/customers", adminH.Customers)
			r.Put("/customers/{id}/toggle", adminH.ToggleCustomer)
			r.Put("/customers/{id}/access", adminH.SetAccess)
			r.Delete("/customers/{id}", adminH.DeleteCustomer)
			r.Get("/sub-accounts", adminH.SubAccounts)
			r.Put("/sub-accounts/{id}/toggle", adminH.ToggleSubAccount)
			r.Put("/sub-accounts/{id}/payment", adminH.SetPayment)
		})
	})

	// Канал статуса подключения, экран сам отмечается текущим при открытии
	r.With(middlewarectx.RequireSession(d.Session, models.RoleCustomer, log)).
		Get("/ws/sub-accounts/{id}", connH.ServeHTTP)

	r.Handle("/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}
