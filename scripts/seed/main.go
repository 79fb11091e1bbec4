package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/billdesk/internal/app"
	"github.com/odyssey-erp/billdesk/internal/ar"
	"github.com/odyssey-erp/billdesk/internal/customers"
)

type demoInvoice struct {
	customer  int
	issuedAgo int
	dueIn     int
	items     []ar.LineItemInput
	paid      float64
}

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	services, err := app.Build(ctx, cfg, logger, app.BuildOptions{})
	if err != nil {
		log.Fatalf("build services: %v", err)
	}
	defer services.Close()

	fmt.Println("→ Seeding customers...")
	ids, err := seedCustomers(ctx, services.Customers)
	if err != nil {
		log.Fatalf("seed customers: %v", err)
	}

	fmt.Println("→ Seeding invoices...")
	if err := services.Invoices.Refresh(ctx); err != nil {
		log.Fatalf("load invoices: %v", err)
	}
	if err := seedInvoices(ctx, services.Invoices, ids); err != nil {
		log.Fatalf("seed invoices: %v", err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func seedCustomers(ctx context.Context, svc *customers.Service) ([]string, error) {
	reqs := []customers.CreateCustomerRequest{
		{Name: "Vidros Atlântico Lda", Email: "contas@vidros-atlantico.example", Phone: "+351 210 000 111", Address: "Rua do Vidro 12, Lisboa"},
		{Name: "Casa Azul Interiores", Email: "financeiro@casaazul.example", Address: "Av. da Liberdade 200, Lisboa"},
		{Name: "Oficina Norte", Phone: "+351 220 555 010", Address: "Rua de Santa Catarina 45, Porto"},
	}
	ids := make([]string, 0, len(reqs))
	for _, req := range reqs {
		c, err := svc.Create(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("customer %s: %w", req.Name, err)
		}
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func seedInvoices(ctx context.Context, engine *ar.Engine, customerIDs []string) error {
	item := func(desc, qty, price string) ar.LineItemInput {
		return ar.LineItemInput{Description: desc, Quantity: decimal.RequireFromString(qty), UnitPrice: decimal.RequireFromString(price)}
	}
	demos := []demoInvoice{
		{customer: 0, issuedAgo: 45, dueIn: -15, items: []ar.LineItemInput{item("Tempered glass 8mm (m²)", "12.5", "48.00"), item("Installation", "6", "35.00")}},
		{customer: 1, issuedAgo: 28, dueIn: 2, items: []ar.LineItemInput{item("Bathroom mirror 80x60", "3", "120.00")}, paid: 100},
		{customer: 2, issuedAgo: 95, dueIn: -65, items: []ar.LineItemInput{item("Shop window replacement", "1", "1450.00")}},
		{customer: 0, issuedAgo: 10, dueIn: 20, items: []ar.LineItemInput{item("Shower screen", "2", "310.00")}},
		{customer: 1, issuedAgo: 40, dueIn: -10, items: []ar.LineItemInput{item("Glass shelves", "8", "22.50")}, paid: 221.40},
	}
	today := engine.Today()
	for i, d := range demos {
		issued := today.AddDate(0, 0, -d.issuedAgo)
		inv, err := engine.CreateInvoice(ctx, ar.CreateInvoiceInput{
			CustomerID: customerIDs[d.customer],
			Items:      d.items,
			DateIssued: ar.FormatDate(issued),
			DueDate:    ar.FormatDate(today.AddDate(0, 0, d.dueIn)),
		})
		if err != nil {
			return fmt.Errorf("invoice %d: %w", i+1, err)
		}
		if d.paid > 0 {
			if _, err := engine.RecordPayment(ctx, inv.ID, d.paid); err != nil {
				return fmt.Errorf("payment on %s: %w", inv.Number, err)
			}
		}
		fmt.Printf("  %s %s due %s\n", inv.Number, inv.Customer.Name, ar.FormatDate(inv.DueDate))
	}
	return nil
}
