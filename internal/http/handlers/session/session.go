// Package session реализует HTTP-обработчики сессии локального сервера консоли:
// вход, регистрацию, сброс пароля, выход, снимок и обновление профиля.
//
// Тела запросов проверяются шлюзом до отправки на бэкенд, ошибки полей
// возвращаются клиенту как ответ 422 с картой fields.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/wa-connector-console/internal/http/response"
	"github.com/magabrotheeeer/wa-connector-console/internal/lib/sl"
	"github.com/magabrotheeeer/wa-connector-console/internal/models"
	sess "github.com/magabrotheeeer/wa-connector-console/internal/session"
	"github.com/magabrotheeeer/wa-connector-console/internal/view"
)

// Service операции менеджера сессии, нужные обработчикам.
type Service interface {
	Snapshot() sess.Session
	Retry(ctx context.Context) (sess.Session, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.UserProfile, error)
	Register(ctx context.Context, req models.RegisterRequest) (*models.UserProfile, error)
	ForgotPassword(ctx context.Context, email string) error
	Logout()
	RefreshProfile(ctx context.Context) (*models.UserProfile, error)
}

// Navigator переводит консоль на экран после выхода.
type Navigator interface {
	Enter(name view.Name)
}

// Handler обработчики /api/session.
type Handler struct {
	log *slog.Logger
	svc Service
	nav Navigator
}

func New(log *slog.Logger, svc Service, nav Navigator) *Handler {
	return &Handler{log: log, svc: svc, nav: nav}
}

func (h *Handler) logger(r *http.Request, op string) *slog.Logger {
	return h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

// decode читает JSON-тело; при ошибке сам пишет ответ 400.
func decode(w http.ResponseWriter, r *http.Request, log *slog.Logger, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return false
	}
	return true
}

// Get отдаёт текущий снимок сессии. Токен в ответ не попадает.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, response.OK(h.svc.Snapshot()))
}

// Retry повторяет восстановление сессии после сетевой ошибки.
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.session.Retry")

	s, err := h.svc.Retry(r.Context())
	if err != nil {
		response.Write(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OK(s))
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.session.Login")

	var req models.LoginRequest
	if !decode(w, r, log, &req) {
		return
	}
	user, err := h.svc.Login(r.Context(), req)
	if err != nil {
		response.Write(w, r, log, err)
		return
	}

	log.Info("login success", slog.String("user_id", user.ID))
	h.nav.Enter(view.Dashboard)
	render.JSON(w, r, response.OK(h.svc.Snapshot()))
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.session.Register")

	var req models.RegisterRequest
	if !decode(w, r, log, &req) {
		return
	}
	user, err := h.svc.Register(r.Context(), req)
	if err != nil {
		response.Write(w, r, log, err)
		return
	}

	log.Info("registration success", slog.String("user_id", user.ID))
	h.nav.Enter(view.Dashboard)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.OK(h.svc.Snapshot()))
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.session.ForgotPassword")

	var req models.ForgotPasswordRequest
	if !decode(w, r, log, &req) {
		return
	}
	if err := h.svc.ForgotPassword(r.Context(), req.Email); err != nil {
		response.Write(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OK(nil))
}

// Logout закрывает сессию локально и уводит консоль на экран входа.
// Открытые каналы статуса закрываются по смене состояния сессии.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.svc.Logout()
	h.nav.Enter(view.Login)
	render.JSON(w, r, response.OK(h.svc.Snapshot()))
}

// Refresh перезапрашивает профиль.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.session.Refresh")

	user, err := h.svc.RefreshProfile(r.Context())
	if err != nil {
		response.Write(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OK(user))
}
