// Package parser turns raw listing rows and usage documents into typed
// invoice records. Amounts become integer minor units and dates become
// calendar days in UTC.
//
// Parsing is fail-fast per page: the first malformed row aborts the page with
// a *common.ParseError naming the row. A dropped financial record is worse
// than a visible failure, so rows are never skipped.
package parser

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/invoicekeeper/internal/common"
	"github.com/dmitrijs2005/invoicekeeper/internal/invoice"
	"github.com/dmitrijs2005/invoicekeeper/internal/money"
	"github.com/dmitrijs2005/invoicekeeper/internal/portal/navigator"
)

var ErrUnknownDate = errors.New("unrecognized date format")

// Listing date formats, most specific first. Slash dates are read
// month-first, as the English portal renders them.
var dateLayouts = []string{
	"02.01.2006",
	"2.1.2006",
	time.DateOnly,
	"01/02/2006",
	"1/2/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
}

type Options struct {
	// DefaultCurrency applies when an amount carries neither symbol nor code.
	DefaultCurrency string
}

type Parser struct {
	defaultCurrency string
}

func New(opts Options) *Parser {
	c := strings.ToUpper(strings.TrimSpace(opts.DefaultCurrency))
	if c == "" {
		c = "EUR"
	}
	return &Parser{defaultCurrency: c}
}

// ParseDate reads a listing date into midnight UTC of that day.
func ParseDate(s string) (time.Time, error) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownDate, s)
}

// ParseStatus maps the listing badge text onto a Status.
func ParseStatus(s string) invoice.Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "paid", "bezahlt", "settled", "beglichen":
		return invoice.StatusPaid
	case "open", "unpaid", "due", "overdue", "pending", "offen", "fällig", "ausstehend":
		return invoice.StatusOpen
	}
	return invoice.StatusUnknown
}

// UsageID is the last path segment of a usage link, e.g. the UUID of
// https://usage.example.com/7b65bc9a-6229-4019-99f8-31ef3e0ec8c6.
func UsageID(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	path := strings.TrimRight(u.Path, "/")
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		path = path[i+1:]
	}
	return path
}

// ParseRow converts one listing row.
func (p *Parser) ParseRow(row navigator.RawRow) (invoice.Record, error) {
	fail := func(field string, err error) (invoice.Record, error) {
		return invoice.Record{}, &common.ParseError{Row: row.Index, Field: field, Raw: row.Raw, Err: err}
	}

	if row.Columns != navigator.ListingColumns {
		return invoice.Record{}, &common.ParseError{
			Row:         row.Index,
			Raw:         row.Raw,
			WantColumns: navigator.ListingColumns,
			GotColumns:  row.Columns,
		}
	}
	if row.ID == "" {
		return fail("id", errors.New("missing invoice number"))
	}

	date, err := ParseDate(row.Cells[navigator.CellDate])
	if err != nil {
		return fail(navigator.CellDate, err)
	}

	amount, err := money.Parse(row.Cells[navigator.CellAmount])
	if err != nil {
		return fail(navigator.CellAmount, err)
	}
	if amount.Currency == "" {
		amount.Currency = p.defaultCurrency
	}

	return invoice.Record{
		ID:          row.ID,
		IssueDate:   date,
		Total:       amount.Minor,
		Currency:    amount.Currency,
		Status:      ParseStatus(row.Cells[navigator.CellStatus]),
		DocumentURL: row.PDFURL,
		UsageID:     UsageID(row.UsageURL),
	}, nil
}

// ParseRows converts a page of rows, stopping at the first malformed one.
func (p *Parser) ParseRows(rows []navigator.RawRow) ([]invoice.Record, error) {
	out := make([]invoice.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := p.ParseRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
