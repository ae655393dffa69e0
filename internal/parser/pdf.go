package parser

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dmitrijs2005/invoicekeeper/internal/common"
	"github.com/dmitrijs2005/invoicekeeper/internal/invoice"
	"github.com/dmitrijs2005/invoicekeeper/internal/money"
	"github.com/ledongthuc/pdf"
)

const (
	amountExpr = `\(?-?\s*(?:€|EUR|US\$|\$|USD|£|GBP|CHF)?\s*\d(?:[\d.,']*\d)?\)?(?:\s*(?:€|(?:EUR|USD|GBP|CHF)\b))?`
	numberExpr = `([A-Z]*\d[\w-]*)`
	dateExpr   = `(\d{4}-\d{2}-\d{2}|\d{1,2}[./]\d{1,2}[./]\d{4}|[A-Z][a-z]+\.? \d{1,2}, ?\d{4}|\d{1,2} [A-Z][a-z]+ \d{4})`
)

var (
	pdfInvoiceNumber = regexp.MustCompile(`(?i)\binvoice\s*(?:no\.?|number|nr\.?|#)\s*:?\s*` + numberExpr)
	pdfCustomer      = regexp.MustCompile(`(?i)\bcustomer\s*(?:no\.?|number|nr\.?|#)\s*:?\s*` + numberExpr)
	pdfContract      = regexp.MustCompile(`(?i)\bcontract(?:\s*(?:no\.?|number|nr\.?|#))?\s*:?\s*` + numberExpr)
	pdfInvoiceDate   = regexp.MustCompile(`(?i)\binvoice\s+date\s*:?\s*` + dateExpr)
	pdfDate          = regexp.MustCompile(`(?i)\bdate\s*:?\s*` + dateExpr)
	pdfNet           = regexp.MustCompile(`(?i)\b(?:total\s+)?net(?:\s+amount)?\s*:?\s*(` + amountExpr + `)`)
	pdfVAT           = regexp.MustCompile(`(?i)\b(?:vat|ust\.?|mwst\.?)\s*\(?\s*(?:(\d+(?:[.,]\d+)?)\s*%)?\s*\)?\s*:?\s*(` + amountExpr + `)`)
	pdfTotal         = regexp.MustCompile(`(?i)\b(?:invoice\s+)?total(?:\s+amount|\s+gross|\s+due)?\s*:?\s*(` + amountExpr + `)`)
)

// ParseInvoicePDF extracts the reference numbers, issue date and totals
// printed on an invoice document. Fields the document does not state stay
// empty; a stated amount that cannot be read fails the whole document.
func (p *Parser) ParseInvoicePDF(data []byte, invoiceID string) (invoice.DocumentSummary, error) {
	fail := func(field string, err error) (invoice.DocumentSummary, error) {
		return invoice.DocumentSummary{}, &common.ParseError{Row: -1, Field: field, Err: err}
	}

	text, err := pdfText(data)
	if err != nil {
		return fail("pdf", err)
	}

	out := invoice.DocumentSummary{InvoiceID: invoiceID, Text: text}
	found := false
	first := func(re *regexp.Regexp) string {
		if m := re.FindStringSubmatch(text); m != nil {
			found = true
			return strings.TrimSpace(m[len(m)-1])
		}
		return ""
	}

	out.InvoiceNumber = first(pdfInvoiceNumber)
	out.CustomerNumber = first(pdfCustomer)
	out.Contract = first(pdfContract)

	date := first(pdfInvoiceDate)
	if date == "" {
		date = first(pdfDate)
	}
	if date != "" {
		if out.IssueDate, err = ParseDate(date); err != nil {
			return fail("date", err)
		}
	}

	var currency string
	amount := func(field, s string) (*int64, error) {
		if s == "" {
			return nil, nil
		}
		a, err := money.Parse(s)
		if err != nil {
			return nil, &common.ParseError{Row: -1, Field: field, Raw: s, Err: err}
		}
		if currency == "" {
			currency = a.Currency
		}
		return &a.Minor, nil
	}

	if out.Total, err = amount("total", first(pdfTotal)); err != nil {
		return invoice.DocumentSummary{}, err
	}
	if out.Net, err = amount("net", first(pdfNet)); err != nil {
		return invoice.DocumentSummary{}, err
	}
	if m := pdfVAT.FindStringSubmatch(text); m != nil {
		found = true
		out.VATRate = strings.Replace(m[1], ",", ".", 1)
		if out.VAT, err = amount("vat", strings.TrimSpace(m[2])); err != nil {
			return invoice.DocumentSummary{}, err
		}
	}

	if !found {
		return fail("pdf", errors.New("no invoice fields in document text"))
	}
	out.Currency = p.currencyOr(currency)
	return out, nil
}

// pdfText returns the document text with one line per printed row, top to
// bottom.
func pdfText(data []byte) (text string, err error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return "", errors.New("not a PDF document")
	}
	// The reader panics on some malformed object graphs.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("unreadable PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		for _, row := range rows {
			for j, word := range row.Content {
				if j > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(word.S)
			}
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}
