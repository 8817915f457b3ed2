// Package subaccounts HTTP-обработчики экранов саб-аккаунтов.
package subaccounts

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

// Service операции над саб-аккаунтами.
type Service interface {
	List(ctx context.Context) ([]models.SubAccount, error)
	Get(ctx context.Context, id string) (*models.SubAccount, error)
	Create(ctx context.Context, req models.CreateSubAccountRequest) (*models.SubAccount, error)
	UpdateProfile(ctx context.Context, id string, req models.UpdateSubAccountRequest) (*models.SubAccount, error)
	Delete(ctx context.Context, id string) error
}

// Linker привязка локаций CRM.
type Linker interface {
	Link(ctx context.Context, subAccountID, locationID string) error
	Unlink(ctx context.Context, subAccountID string) error
}

// Checkout оплата саб-аккаунта.
type Checkout interface {
	Checkout(ctx context.Context, subAccountID string) (string, error)
}

type Handler struct {
	log      *slog.Logger
	svc      Service
	linker   Linker
	checkout Checkout
}

func New(log *slog.Logger, svc Service, linker Linker, checkout Checkout) *Handler {
	return &Handler{log: log, svc: svc, linker: linker, checkout: checkout}
}

func (h *Handler) logger(r *http.Request, op string) *slog.Logger {
	return h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.subaccounts.List")

	list, err := h.svc.List(r.Context())
	if err != nil {
		response.Write(w, r, log, err)
		return
	}
	if list == nil {
		list = []models.SubAccount{}
	}
	render.JSON(w, r, response.OK(list))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	log := h.logger(r, "handlers.subaccounts.Get").With(sl.SubAccount(id))

	sa, err := h.svc.Get(r.Context(), id)
	if err != nil {
		response.Write(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OK(sa))
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.subaccounts.Create")

	var req models.CreateSubAccountRequest
	if !decode(w, r, log, &req) {
		return
	}
	sa, err := h.svc.Create(r.Context(), req)
	if err != nil {
		response.Write(w, r, log, err)
		return
	}

	log.Info("sub-account created", sl.SubAccount(sa.ID))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.OK(sa))
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	log := h.logger(r, "handlers.subaccounts.Update").With(sl.SubAccount(id))

	var req models.UpdateSubAccountRequest
	if !decode(w, r, log, &req) {
		return
	}
	sa, err := h.svc.UpdateProfile(r.Context(), id, req)
	if err != nil {
		response.Write(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OK(sa))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	log := h.logger(r, "handlers.subaccounts.Delete").With(sl.SubAccount(id))

	if err := h.svc.Delete(r.Context(), id); err != nil {
		response.Write(w, r, log, err)
		return
	}
	log.Info("sub-account deleted")
	w.WriteHeader(http.StatusNoContent)
}

// LinkLocation привязывает локацию CRM к саб-аккаунту.
func (h *Handler) LinkLocation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	log := h.logger(r, "handlers.subaccounts.LinkLocation").With(sl.SubAccount(id))

	var req models.LinkLocationRequest
	if !decode(w, r, log, &req) {
		return
	}
	if err := h.linker.Link(r.Context(), id, req.LocationID); err != nil {
		response.Write(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OK(nil))
}

func (h *Handler) UnlinkLocation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	log := h.logger(r, "handlers.subaccounts.UnlinkLocation").With(sl.SubAccount(id))

	if err := h.linker.Unlink(r.Context(), id); err != nil {
		response.Write(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OK(nil))
}

// Checkout возвращает ссылку на оплату саб-аккаунта.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	log := h.logger(r, "handlers.subaccounts.Checkout").With(sl.SubAccount(id))

	u, err := h.checkout.Checkout(r.Context(), id)
	if err != nil {
		response.Write(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OK(models.RedirectURL{URL: u}))
}

func decode(w http.ResponseWriter, r *http.Request, log *slog.Logger, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return false
	}
	return true
}
