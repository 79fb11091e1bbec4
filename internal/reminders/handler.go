package reminders

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/billdesk/internal/ar"
	"github.com/odyssey-erp/billdesk/internal/platform/httpx"
)

// Handler exposes reminder endpoints.
type Handler struct {
	logger    *slog.Logger
	scheduler *Scheduler
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, scheduler *Scheduler) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, scheduler: scheduler}
}

// MountRoutes registers /api/reminders routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listCandidates)
	r.Post("/scan", h.scan)
}

// MountInvoiceRoutes registers the manual reminder route under /api/invoices.
func (h *Handler) MountInvoiceRoutes(r chi.Router) {
	r.Post("/{id}/reminders", h.sendManual)
}

type candidatesResponse struct {
	Date            string      `json:"date"`
	Candidates      []Candidate `json:"candidates"`
	TrackingLocally bool        `json:"trackingLocally"`
}

func (h *Handler) listCandidates(w http.ResponseWriter, r *http.Request) {
	candidates, err := h.scheduler.Candidates(r.Context())
	if err != nil {
		h.logger.Error("list reminder candidates", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, candidatesResponse{
		Date:            ar.FormatDate(h.scheduler.Today()),
		Candidates:      candidates,
		TrackingLocally: h.scheduler.Tracker().Degraded(),
	})
}

func (h *Handler) scan(w http.ResponseWriter, r *http.Request) {
	res, err := h.scheduler.Scan(r.Context())
	if err != nil {
		h.logger.Error("reminder scan", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	status := http.StatusOK
	if res.Skipped {
		status = http.StatusAccepted
	}
	httpx.JSON(w, status, res)
}

func (h *Handler) sendManual(w http.ResponseWriter, r *http.Request) {
	rem, err := h.scheduler.SendManual(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rem)
}
