package invoice

import (
	"encoding/json"
	"time"
)

// DocumentSummary holds what could be read from the text of an invoice PDF.
// Amounts are minor units of Currency; a nil amount or empty string means
// the document does not state that field.
type DocumentSummary struct {
	InvoiceID      string
	InvoiceNumber  string
	IssueDate      time.Time
	Net            *int64
	VAT            *int64
	VATRate        string
	Total          *int64
	Currency       string
	CustomerNumber string
	Contract       string

	// Text is the extracted document text, one line per printed row.
	Text string
}

type documentSummaryJSON struct {
	InvoiceID      string `json:"invoice_id"`
	InvoiceNumber  string `json:"invoice_number,omitempty"`
	IssueDate      string `json:"issue_date,omitempty"`
	Net            *int64 `json:"net_minor,omitempty"`
	VAT            *int64 `json:"vat_minor,omitempty"`
	VATRate        string `json:"vat_rate,omitempty"`
	Total          *int64 `json:"total_minor,omitempty"`
	Currency       string `json:"currency,omitempty"`
	CustomerNumber string `json:"customer_number,omitempty"`
	Contract       string `json:"contract,omitempty"`
	Text           string `json:"raw_text,omitempty"`
}

func (d DocumentSummary) MarshalJSON() ([]byte, error) {
	dj := documentSummaryJSON{
		InvoiceID:      d.InvoiceID,
		InvoiceNumber:  d.InvoiceNumber,
		Net:            d.Net,
		VAT:            d.VAT,
		VATRate:        d.VATRate,
		Total:          d.Total,
		Currency:       d.Currency,
		CustomerNumber: d.CustomerNumber,
		Contract:       d.Contract,
		Text:           d.Text,
	}
	if !d.IssueDate.IsZero() {
		dj.IssueDate = d.IssueDate.Format(DateLayout)
	}
	return json.Marshal(dj)
}
