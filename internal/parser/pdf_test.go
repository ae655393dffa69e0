package parser

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/invoicekeeper/internal/common"
	"github.com/dmitrijs2005/invoicekeeper/internal/portal/portaltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderPDF(t *testing.T, inv portaltest.Invoice) []byte {
	t.Helper()
	data, err := portaltest.RenderPDF(inv)
	require.NoError(t, err)
	return data
}

func TestParseInvoicePDF(t *testing.T) {
	p := New(Options{})
	data := renderPDF(t, portaltest.Invoice{
		ID:       "R0012345678",
		Date:     "31.01.2025",
		Customer: "K0123456789",
		Items: []portaltest.Item{
			{Description: "CX22 server", Quantity: "744 h", Amount: "€4.46"},
			{Description: "Backups", Quantity: "1", Amount: "€5.49"},
		},
		Net:    "€9.95",
		VAT:    "€1.89",
		Amount: "€11.84",
	})

	got, err := p.ParseInvoicePDF(data, "R0012345678")
	require.NoError(t, err)

	assert.Equal(t, "R0012345678", got.InvoiceID)
	assert.Equal(t, "R0012345678", got.InvoiceNumber)
	assert.Equal(t, "K0123456789", got.CustomerNumber)
	assert.Equal(t, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), got.IssueDate)
	require.NotNil(t, got.Total)
	require.NotNil(t, got.Net)
	require.NotNil(t, got.VAT)
	assert.EqualValues(t, 1184, *got.Total)
	assert.EqualValues(t, 995, *got.Net)
	assert.EqualValues(t, 189, *got.VAT)
	assert.Equal(t, "19", got.VATRate)
	assert.Equal(t, "EUR", got.Currency)
	assert.Contains(t, got.Text, "Total €11.84")
}

func TestParseInvoicePDF_MissingFieldsStayEmpty(t *testing.T) {
	p := New(Options{DefaultCurrency: "usd"})
	data := renderPDF(t, portaltest.Invoice{ID: "R1", Amount: "12.50"})

	got, err := p.ParseInvoicePDF(data, "R1")
	require.NoError(t, err)
	require.NotNil(t, got.Total)
	assert.EqualValues(t, 1250, *got.Total)
	assert.Equal(t, "USD", got.Currency)
	assert.Nil(t, got.Net)
	assert.Nil(t, got.VAT)
	assert.True(t, got.IssueDate.IsZero())
	assert.Empty(t, got.Contract)
}

func TestParseInvoicePDF_Errors(t *testing.T) {
	p := New(Options{})

	tests := []struct {
		name  string
		data  []byte
		field string
	}{
		{name: "not a pdf", data: []byte("<html>login</html>"), field: "pdf"},
		{name: "truncated", data: []byte("%PDF-1.3\n1 0 obj"), field: "pdf"},
		{name: "unreadable total", data: renderPDF(t, portaltest.Invoice{ID: "R1", Amount: "1,2,3"}), field: "total"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.ParseInvoicePDF(tt.data, "R1")
			var pe *common.ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.field, pe.Field)
			assert.Equal(t, -1, pe.Row)
		})
	}
}
