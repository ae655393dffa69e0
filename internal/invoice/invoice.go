// Package invoice defines the typed records produced by the portal parser and
// consumed by the ledger-facing surfaces.
package invoice

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// DateLayout is the single calendar format every issue date is normalized to.
const DateLayout = time.DateOnly

// Status classifies the payment state shown on the listing badge.
type Status string

const (
	StatusPaid    Status = "PAID"
	StatusOpen    Status = "OPEN"
	StatusUnknown Status = "UNKNOWN"
)

// Record is one invoice as shown on the listing page.
type Record struct {
	// ID is the provider's invoice number, e.g. "R0012345678".
	ID string

	// IssueDate is a calendar date at midnight UTC.
	IssueDate time.Time

	// Total is the invoice total in minor currency units.
	Total int64

	// Currency is an ISO 4217 code.
	Currency string

	Status Status

	// DocumentURL points at the PDF download, if the listing links one.
	DocumentURL string

	// UsageID identifies the usage breakdown page, if the listing links one.
	UsageID string
}

// IssueDateISO returns the issue date as YYYY-MM-DD.
func (r Record) IssueDateISO() string {
	return r.IssueDate.Format(DateLayout)
}

type recordJSON struct {
	ID          string `json:"id"`
	IssueDate   string `json:"issue_date"`
	Total       int64  `json:"total_minor"`
	Currency    string `json:"currency"`
	Status      Status `json:"status"`
	DocumentURL string `json:"document_url,omitempty"`
	UsageID     string `json:"usage_id,omitempty"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		ID:          r.ID,
		IssueDate:   r.IssueDateISO(),
		Total:       r.Total,
		Currency:    r.Currency,
		Status:      r.Status,
		DocumentURL: r.DocumentURL,
		UsageID:     r.UsageID,
	})
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var rj recordJSON
	if err := json.Unmarshal(b, &rj); err != nil {
		return err
	}
	d, err := time.Parse(DateLayout, rj.IssueDate)
	if err != nil {
		return fmt.Errorf("issue_date: %w", err)
	}
	*r = Record{
		ID:          rj.ID,
		IssueDate:   d,
		Total:       rj.Total,
		Currency:    rj.Currency,
		Status:      rj.Status,
		DocumentURL: rj.DocumentURL,
		UsageID:     rj.UsageID,
	}
	return nil
}

// LineItem is one itemized charge of an invoice's usage breakdown.
type LineItem struct {
	InvoiceID   string `json:"invoice_id"`
	Description string `json:"description"`
	// Quantity is kept as the exact decimal text (usage is often fractional hours).
	Quantity  string `json:"quantity"`
	UnitPrice int64  `json:"unit_price_minor"`
	Amount    int64  `json:"amount_minor"`
	Currency  string `json:"currency"`
}

// Latest picks the record with the greatest issue date. Ties go to the
// numerically greatest invoice id. It returns false for an empty slice.
func Latest(records []Record) (Record, bool) {
	if len(records) == 0 {
		return Record{}, false
	}
	return slices.MaxFunc(records, compareRecency), true
}

func compareRecency(a, b Record) int {
	if c := a.IssueDate.Compare(b.IssueDate); c != 0 {
		return c
	}
	return CompareIDs(a.ID, b.ID)
}

// CompareIDs orders invoice ids by their numeric part. Ids without digits
// sort before numeric ones and fall back to string order among themselves.
func CompareIDs(a, b string) int {
	na, okA := numericPart(a)
	nb, okB := numericPart(b)
	switch {
	case okA && okB:
		return compareDigits(na, nb)
	case okA:
		return 1
	case okB:
		return -1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func numericPart(id string) (string, bool) {
	digits := make([]byte, 0, len(id))
	for i := 0; i < len(id); i++ {
		if id[i] >= '0' && id[i] <= '9' {
			digits = append(digits, id[i])
		}
	}
	if len(digits) == 0 {
		return "", false
	}
	s := string(digits)
	for len(s) > 1 && s[0] == '0' {
		s = s[1:]
	}
	return s, true
}

// compareDigits compares two leading-zero-free digit strings of any length.
func compareDigits(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
