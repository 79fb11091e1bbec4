package ar

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/billdesk/internal/platform/httpx"
)

// DocumentRenderer turns a finalized invoice into a PDF.
type DocumentRenderer interface {
	Render(inv Invoice, logo []byte) ([]byte, error)
}

// Handler exposes invoice endpoints.
type Handler struct {
	logger   *slog.Logger
	engine   *Engine
	renderer DocumentRenderer
	logo     []byte
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, engine *Engine, renderer DocumentRenderer, logo []byte) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, engine: engine, renderer: renderer, logo: logo}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listInvoices)
	r.Post("/", h.createInvoice)
	r.Get("/aging", h.showAging)
	r.Get("/{id}", h.showInvoice)
	r.Delete("/{id}", h.deleteInvoice)
	r.Post("/{id}/payments", h.recordPayment)
	r.Get("/{id}/pdf", h.renderPDF)
}

type listResponse struct {
	Invoices              []Invoice `json:"invoices"`
	DataSourceUnavailable bool      `json:"dataSourceUnavailable"`
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Refresh(r.Context()); err != nil {
		h.logger.Error("refresh invoices", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{
		Invoices:              h.engine.Invoices(),
		DataSourceUnavailable: h.engine.DataSourceUnavailable(),
	})
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var input CreateInvoiceInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.engine.CreateInvoice(r.Context(), input)
	if err != nil {
		h.logger.Warn("create invoice", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) showInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.engine.Get(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type paymentRequest struct {
	Amount float64 `json:"amount"`
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.engine.RecordPayment(r.Context(), chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		h.logger.Warn("record payment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) showAging(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.Aging(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) renderPDF(w http.ResponseWriter, r *http.Request) {
	inv, err := h.engine.Get(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if h.renderer == nil {
		httpx.Problem(w, http.StatusNotImplemented, "Rendering Disabled", "no document renderer configured")
		return
	}
	pdf, err := h.renderer.Render(inv, h.logo)
	if err != nil {
		h.logger.Error("render invoice", slog.String("invoice_id", inv.ID), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Rendering Failed", err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", inv.Number+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}
