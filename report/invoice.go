// Package report renders invoice documents as PDF.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/billdesk/internal/ar"
)

// ErrRender wraps every rendering failure.
var ErrRender = errors.New("report: render failed")

const (
	marginX = 15.0
	marginY = 15.0
	logoKey = "logo"
)

// InvoiceRenderer lays out invoices on A4 pages.
type InvoiceRenderer struct {
	Company  string
	Currency string
	// Now stamps the generation date in the footer.
	Now func() time.Time
}

// NewInvoiceRenderer builds a renderer.
func NewInvoiceRenderer(company, currency string) *InvoiceRenderer {
	return &InvoiceRenderer{Company: company, Currency: currency, Now: time.Now}
}

// Render returns the PDF bytes for inv. logo may be nil; PNG and JPEG are accepted.
func (r *InvoiceRenderer) Render(inv ar.Invoice, logo []byte) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(marginX, marginY, marginX)
	pdf.SetAutoPageBreak(true, marginY)
	pdf.SetTitle(tr(inv.Number), false)
	pdf.SetCreator(tr(r.Company), false)
	pdf.AddPage()

	if len(logo) > 0 {
		if err := r.placeLogo(pdf, logo); err != nil {
			return nil, err
		}
	}

	// Header
	pdf.SetFont("Arial", "B", 16)
	pdf.SetTextColor(33, 37, 41)
	pdf.SetXY(marginX, marginY)
	pdf.Cell(120, 10, tr(r.Company))
	pdf.Ln(12)
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 7, tr("Invoice "+inv.Number))
	pdf.Ln(7)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, "Issued: "+inv.DateIssued.Format("02 Jan 2006"))
	pdf.Ln(6)
	pdf.Cell(0, 6, "Due: "+inv.DueDate.Format("02 Jan 2006"))
	pdf.Ln(10)

	// Bill to
	pdf.SetFont("Arial", "B", 11)
	pdf.Cell(0, 7, "BILL TO:")
	pdf.Ln(6)
	pdf.SetFont("Arial", "", 10)
	for _, line := range []string{inv.Customer.Name, inv.Customer.Address, inv.Customer.Email, inv.Customer.Phone} {
		if line == "" {
			continue
		}
		pdf.Cell(0, 5, tr(line))
		pdf.Ln(5)
	}
	pdf.Ln(6)

	// Items
	widths := []float64{95, 25, 30, 30}
	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(240, 240, 240)
	for i, h := range []string{"Description", "Qty", "Unit price", "Amount"} {
		pdf.CellFormat(widths[i], 8, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 10)
	for _, item := range inv.Items {
		pdf.CellFormat(widths[0], 7, tr(item.Description), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 7, item.Quantity.String(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[2], 7, tr(r.money(item.UnitPrice)), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 7, tr(r.money(item.LineTotal)), "1", 0, "R", false, 0, "")
		pdf.Ln(7)
	}
	pdf.Ln(4)

	// Totals
	totals := []struct {
		label string
		value decimal.Decimal
		bold  bool
	}{
		{"Subtotal:", inv.Subtotal, false},
		{fmt.Sprintf("VAT (%s%%):", inv.TaxRate.String()), inv.TaxAmount, false},
		{"Total:", inv.Total, true},
		{"Paid:", inv.AmountPaid, false},
		{"Balance due:", inv.BalanceDue, true},
	}
	for _, row := range totals {
		style := ""
		if row.bold {
			style = "B"
		}
		pdf.SetFont("Arial", style, 10)
		pdf.CellFormat(150, 6, row.label, "", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, tr(r.money(row.value)), "", 0, "R", false, 0, "")
		pdf.Ln(6)
	}
	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(0, 6, "Status: "+string(inv.Status))
	pdf.Ln(8)

	if inv.Notes != "" {
		pdf.SetFont("Arial", "", 9)
		pdf.MultiCell(0, 5, tr(inv.Notes), "", "L", false)
	}

	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 6, "Generated "+now().Format("2006-01-02"), "", 0, "C", false, 0, "")
	})

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	return buf.Bytes(), nil
}

func (r *InvoiceRenderer) placeLogo(pdf *gofpdf.Fpdf, logo []byte) error {
	var kind string
	switch http.DetectContentType(logo) {
	case "image/png":
		kind = "PNG"
	case "image/jpeg":
		kind = "JPG"
	default:
		return fmt.Errorf("%w: unsupported logo format", ErrRender)
	}
	opts := gofpdf.ImageOptions{ImageType: kind, ReadDpi: true}
	pdf.RegisterImageOptionsReader(logoKey, opts, bytes.NewReader(logo))
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("%w: logo: %v", ErrRender, err)
	}
	pdf.ImageOptions(logoKey, 160, marginY, 35, 0, false, opts, 0, "")
	return nil
}

func (r *InvoiceRenderer) money(d decimal.Decimal) string {
	return r.Currency + d.StringFixed(2)
}
