// Package integrations HTTP-обработчики экранов биллинга и интеграции с CRM.
package integrations

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
)

// CRM статус подключения агентства и его локации.
type CRM interface {
	Status(ctx context.Context) (*models.GHLStatus, error)
	Locations(ctx context.Context) ([]models.Location, error)
}

// Billing ссылки на страницы платёжного провайдера.
type Billing interface {
	Portal(ctx context.Context) (string, error)
	Subscribe(ctx context.Context, planType string) (string, error)
}

type Handler struct {
	log     *slog.Logger
	crm     CRM
	billing Billing
}

func New(log *slog.Logger, crm CRM, billing Billing) *Handler {
	return &Handler{log: log, crm: crm, billing: billing}
}

func (h *Handler) logger(r *http.Request, op string) *slog.Logger {
	return h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

func (h *Handler) CRMStatus(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.integrations.CRMStatus")

	st, err := h.crm.Status(r.Context())
	if err != nil {
		response.Write(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OK(st))
}

func (h *Handler) Locations(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.integrations.Locations")

	list, err := h.crm.Locations(r.Context())
	if err != nil {
		response.Write(w, r, log, err)
		return
	}
	if list == nil {
		list = []models.Location{}
	}
	render.JSON(w, r, response.OK(list))
}

func (h *Handler) Portal(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.integrations.Portal")

	u, err := h.billing.Portal(r.Context())
	if err != nil {
		response.Write(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OK(models.RedirectURL{URL: u}))
}

// Subscribe оформляет подписку и отдаёт ссылку на оплату.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.integrations.Subscribe")

	var req models.SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	u, err := h.billing.Subscribe(r.Context(), req.PlanType)
	if err != nil {
		response.Write(w, r, log, err)
		return
	}
	log.Info("subscription checkout created", slog.String("plan", req.PlanType))
	render.JSON(w, r, response.OK(models.RedirectURL{URL: u}))
}
