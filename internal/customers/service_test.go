package customers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/billdesk/internal/ar"
	"github.com/odyssey-erp/billdesk/internal/platform/httpx"
	"github.com/odyssey-erp/billdesk/internal/store"
	"github.com/odyssey-erp/billdesk/internal/store/memory"
)

func TestServiceCRUD(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.New())

	created, err := svc.Create(ctx, CreateCustomerRequest{Name: "Leitaria Sol", Email: "sol@example.com"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	_, err = svc.Create(ctx, CreateCustomerRequest{Email: "not-an-email"})
	require.ErrorIs(t, err, httpx.ErrValidation)

	phone := "+351 210 000 000"
	updated, err := svc.Update(ctx, created.ID, UpdateCustomerRequest{Phone: &phone})
	require.NoError(t, err)
	require.Equal(t, phone, updated.Phone)
	require.Equal(t, "Leitaria Sol", updated.Name)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, phone, got.Phone)

	require.NoError(t, svc.Delete(ctx, created.ID))
	_, err = svc.Get(ctx, created.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListWithMissingTable(t *testing.T) {
	st := memory.New()
	st.DropTable(store.EntityCustomer)

	res, err := NewService(st).List(context.Background())
	require.NoError(t, err)
	require.Empty(t, res.Customers)
	require.True(t, res.DataSourceUnavailable)
}

func TestInvoiceSnapshotSurvivesCustomerEdits(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	svc := NewService(st)
	c, err := svc.Create(ctx, CreateCustomerRequest{Name: "Vidros Lda", Email: "ap@vidros.example", Address: "Rua A"})
	require.NoError(t, err)

	clock := func() time.Time { return time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC) }
	engine := ar.NewEngine(ar.NewRepository(st, time.UTC), nil, ar.WithCustomerLookup(svc), ar.WithClock(clock))
	require.NoError(t, engine.Refresh(ctx))

	inv, err := engine.CreateInvoice(ctx, ar.CreateInvoiceInput{
		CustomerID: c.ID,
		Items:      []ar.LineItemInput{{Description: "Mirror", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(50)}},
	})
	require.NoError(t, err)
	require.Equal(t, "Rua A", inv.Customer.Address)

	moved := "Rua B"
	_, err = svc.Update(ctx, c.ID, UpdateCustomerRequest{Address: &moved})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, c.ID))

	require.NoError(t, engine.Refresh(ctx))
	reloaded, err := engine.Get(inv.ID)
	require.NoError(t, err)
	require.Equal(t, "Rua A", reloaded.Customer.Address)
	require.Equal(t, "Vidros Lda", reloaded.Customer.Name)
}

func TestHandlerRoutes(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/api/customers", NewHandler(nil, NewService(memory.New())).MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/customers", strings.NewReader(`{"name":"Ana"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/customers", strings.NewReader(`{"email":"x"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/api/customers/missing", strings.NewReader(`{"name":"B"}`)))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/customers", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"Ana"`)
}
