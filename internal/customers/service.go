// Package customers manages customer records over the record store.
package customers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/billdesk/internal/ar"
	"github.com/odyssey-erp/billdesk/internal/platform/httpx"
	"github.com/odyssey-erp/billdesk/internal/store"
)

var ErrNotFound = fmt.Errorf("customers: customer %w", httpx.ErrNotFound)

type Service struct {
	store    store.Store
	validate *validator.Validate
	clock    func() time.Time
}

func NewService(st store.Store) *Service {
	return &Service{store: st, validate: validator.New(), clock: time.Now}
}

// List returns every customer. A missing customers table yields an empty result
// flagged as unavailable.
func (s *Service) List(ctx context.Context) (ListResult, error) {
	recs, err := s.store.Get(ctx, store.EntityCustomer)
	if errors.Is(err, store.ErrSchemaMissing) {
		return ListResult{Customers: []Customer{}, DataSourceUnavailable: true}, nil
	}
	if err != nil {
		return ListResult{}, fmt.Errorf("list customers: %w", err)
	}
	out := make([]Customer, 0, len(recs))
	for _, rec := range recs {
		out = append(out, decode(rec))
	}
	return ListResult{Customers: out}, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Customer, error) {
	res, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range res.Customers {
		if res.Customers[i].ID == id {
			return &res.Customers[i], nil
		}
	}
	return nil, ErrNotFound
}

func (s *Service) Create(ctx context.Context, req CreateCustomerRequest) (*Customer, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	customer := Customer{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		Address:   req.Address,
		Notes:     req.Notes,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.store.Insert(ctx, store.EntityCustomer, encode(customer)); err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return &customer, nil
}

func (s *Service) Update(ctx context.Context, id string, req UpdateCustomerRequest) (*Customer, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}

	updates := store.Record{}
	if req.Name != nil {
		updates["name"] = *req.Name
		existing.Name = *req.Name
	}
	if req.Email != nil {
		updates["email"] = *req.Email
		existing.Email = *req.Email
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
		existing.Phone = *req.Phone
	}
	if req.Address != nil {
		updates["address"] = *req.Address
		existing.Address = *req.Address
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
		existing.Notes = *req.Notes
	}
	if len(updates) == 0 {
		return existing, nil
	}

	if err := s.store.Update(ctx, store.EntityCustomer, id, updates); err != nil {
		return nil, fmt.Errorf("update customer: %w", err)
	}
	return existing, nil
}

// Delete removes the customer only; invoices keep their snapshot.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, store.EntityCustomer, id); err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	return nil
}

// Snapshot copies the contact fields used on a new invoice.
func (s *Service) Snapshot(ctx context.Context, id string) (ar.CustomerSnapshot, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return ar.CustomerSnapshot{}, err
	}
	return ar.CustomerSnapshot{Name: c.Name, Email: c.Email, Phone: c.Phone, Address: c.Address}, nil
}

func (s *Service) check(req any) error {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s %s", httpx.ErrValidation, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return nil
}

func encode(c Customer) store.Record {
	return store.Record{
		"id":        c.ID,
		"name":      c.Name,
		"email":     c.Email,
		"phone":     c.Phone,
		"address":   c.Address,
		"notes":     c.Notes,
		"createdAt": c.CreatedAt,
	}
}

func decode(rec store.Record) Customer {
	c := Customer{
		ID:      str(rec["id"]),
		Name:    str(rec["name"]),
		Email:   str(rec["email"]),
		Phone:   str(rec["phone"]),
		Address: str(rec["address"]),
		Notes:   str(rec["notes"]),
	}
	if t, ok := rec["createdAt"].(time.Time); ok {
		c.CreatedAt = t
	}
	return c
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
