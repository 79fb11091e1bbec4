package report

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/billdesk/internal/ar"
)

func sampleInvoice() ar.Invoice {
	inv := ar.Invoice{
		ID:         "a",
		Number:     "INV-1000",
		Customer:   ar.CustomerSnapshot{Name: "Vidros Lda", Address: "Rua da Prata 12, Lisboa"},
		TaxRate:    decimal.NewFromInt(23),
		DateIssued: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		DueDate:    time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC),
		Notes:      "Thank you for your business.",
		Items: []ar.LineItem{
			{Description: "Mirror 1.2m²", Quantity: decimal.RequireFromString("1.2"), UnitPrice: decimal.NewFromInt(80)},
		},
	}
	inv.Recalculate()
	return inv
}

func TestRenderProducesPDF(t *testing.T) {
	r := NewInvoiceRenderer("Vidros Lda", "€")
	out, err := r.Render(sampleInvoice(), nil)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestRenderWithLogo(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var logo bytes.Buffer
	require.NoError(t, png.Encode(&logo, img))

	out, err := NewInvoiceRenderer("Vidros Lda", "€").Render(sampleInvoice(), logo.Bytes())
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestRenderRejectsUnknownLogo(t *testing.T) {
	_, err := NewInvoiceRenderer("Vidros Lda", "€").Render(sampleInvoice(), []byte("GIF89a not really"))
	require.ErrorIs(t, err, ErrRender)
}
