// Package admin HTTP-обработчики административного экрана.
// Маршруты монтируются только за проверкой роли admin.
package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/wa-connector-console/internal/http/response"
	"github.com/magabrotheeeer/wa-connector-console/internal/lib/sl"
	"github.com/magabrotheeeer/wa-connector-console/internal/models"
)

// Service административные операции бэкенда.
type Service interface {
	Stats(ctx context.Context) (*models.Stats, error)
	Customers(ctx context.Context) ([]models.Customer, error)
	SubAccounts(ctx context.Context) ([]models.SubAccount, error)
	ToggleCustomer(ctx context.Context, id string) error
	SetUnlimitedAccess(ctx context.Context, id string, unlimited bool) error
	DeleteCustomer(ctx context.Context, id string) error
}

// SubAccountService админские операции над саб-аккаунтами.
type SubAccountService interface {
	ToggleActive(ctx context.Context, id string) error
	SetPayment(ctx context.Context, id string, paid bool) error
}

type Handler struct {
	log  *slog.Logger
	svc  Service
	subs SubAccountService
}

func New(log *slog.Logger, svc Service, subs SubAccountService) *Handler {
	return &Handler{log: log, svc: svc, subs: subs}
}

func (h *Handler) logger(r *http.Request, op string) *slog.Logger {
	return h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.admin.Stats")

	st, err := h.svc.Stats(r.Context())
	if err != nil {
		response.Write(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OK(st))
}

func (h *Handler) Customers(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.admin.Customers")

	list, err := h.svc.Customers(r.Context())
	if err != nil {
		response.Write(w, r, log, err)
		return
	}
	if list == nil {
		list = []models.Customer{}
	}
	render.JSON(w, r, response.OK(list))
}

func (h *Handler) SubAccounts(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.admin.SubAccounts")

	list, err := h.svc.SubAccounts(r.Context())
	if err != nil {
		response.Write(w, r, log, err)
		return
	}
	if list == nil {
		list = []models.SubAccount{}
	}
	render.JSON(w, r, response.OK(list))
}

func (h *Handler) ToggleCustomer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	log := h.logger(r, "handlers.admin.ToggleCustomer").With(slog.String("customer_id", id))

	if err := h.svc.ToggleCustomer(r.Context(), id); err != nil {
		response.Write(w, r, log, err)
		return
	}
	log.Info("customer toggled")
	render.JSON(w, r, response.OK(nil))
}

// SetAccess выдаёт или отзывает безлимитный доступ.
func (h *Handler) SetAccess(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	log := h.logger(r, "handlers.admin.SetAccess").With(slog.String("customer_id", id))

	var req models.SetAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.svc.SetUnlimitedAccess(r.Context(), id, req.HasUnlimitedAccess); err != nil {
		response.Write(w, r, log, err)
		return
	}
	log.Info("customer access changed", slog.Bool("unlimited", req.HasUnlimitedAccess))
	render.JSON(w, r, response.OK(nil))
}

func (h *Handler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	log := h.logger(r, "handlers.admin.DeleteCustomer").With(slog.String("customer_id", id))

	if err := h.svc.DeleteCustomer(r.Context(), id); err != nil {
		response.Write(w, r, log, err)
		return
	}
	log.Info("customer deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ToggleSubAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	log := h.logger(r, "handlers.admin.ToggleSubAccount").With(sl.SubAccount(id))

	if err := h.subs.ToggleActive(r.Context(), id); err != nil {
		response.Write(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OK(nil))
}

func (h *Handler) SetPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	log := h.logger(r, "handlers.admin.SetPayment").With(sl.SubAccount(id))

	var req models.SetPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.subs.SetPayment(r.Context(), id, req.IsPaid); err != nil {
		response.Write(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OK(nil))
}
