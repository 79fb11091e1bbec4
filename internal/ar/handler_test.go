package ar

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/billdesk/internal/store"
	"github.com/odyssey-erp/billdesk/internal/store/memory"
)

type stubRenderer struct {
	err error
}

func (s stubRenderer) Render(inv Invoice, _ []byte) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []byte("%PDF-" + inv.Number), nil
}

func newTestRouter(t *testing.T, renderer DocumentRenderer, invoices ...Invoice) (http.Handler, *memory.Store) {
	t.Helper()
	engine, st := newTestEngine(t, nil, invoices...)
	r := chi.NewRouter()
	r.Route("/api/invoices", NewHandler(nil, engine, renderer, nil).MountRoutes)
	return r, st
}

func TestHandlerListReportsUnavailableSource(t *testing.T) {
	router, st := newTestRouter(t, nil, testInvoice("a", "INV-1000", Day(testNow), "10"))
	st.DropTable(store.EntityInvoice)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invoices", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body listResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Empty(t, body.Invoices)
	require.True(t, body.DataSourceUnavailable)
}

func TestHandlerRecordPayment(t *testing.T) {
	router, _ := newTestRouter(t, nil, testInvoice("a", "INV-1000", Day(testNow), "100"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/invoices/a/payments", strings.NewReader(`{"amount":25}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	var inv Invoice
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&inv))
	require.Equal(t, StatusPartiallyPaid, inv.Status)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/invoices/a/payments", strings.NewReader(`{"amount":-1}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/invoices/a/payments", strings.NewReader(`{"amount":"abc"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/invoices/zzz/payments", strings.NewReader(`{"amount":1}`)))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerDeleteFailureReturnsError(t *testing.T) {
	router, st := newTestRouter(t, nil, testInvoice("a", "INV-1000", Day(testNow), "100"))
	st.FailNext(memory.OpDelete, store.EntityInvoice, errors.New("network"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/invoices/a", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invoices/a", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerRenderPDF(t *testing.T) {
	router, _ := newTestRouter(t, stubRenderer{}, testInvoice("a", "INV-1000", Day(testNow), "100"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invoices/a/pdf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	require.Equal(t, "%PDF-INV-1000", rec.Body.String())
}

func TestHandlerAging(t *testing.T) {
	router, _ := newTestRouter(t, nil, testInvoice("a", "INV-1000", Day(testNow).AddDate(0, 0, -3), "100"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invoices/aging", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var report AgingReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	requireAmount(t, "100.00", report.Buckets.Days30)
}
