package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dmitrijs2005/invoicekeeper/internal/common"
	"github.com/dmitrijs2005/invoicekeeper/internal/invoice"
	"github.com/dmitrijs2005/invoicekeeper/internal/money"
)

const (
	colDescription = "description"
	colQuantity    = "quantity"
	colUnitPrice   = "unit_price"
	colAmount      = "amount"
)

// Header spellings seen on usage pages and CSV exports.
var headerAliases = map[string]string{
	"description":  colDescription,
	"product":      colDescription,
	"name":         colDescription,
	"item":         colDescription,
	"beschreibung": colDescription,
	"quantity":     colQuantity,
	"qty":          colQuantity,
	"usage":        colQuantity,
	"menge":        colQuantity,
	"unit price":   colUnitPrice,
	"unit_price":   colUnitPrice,
	"price":        colUnitPrice,
	"einzelpreis":  colUnitPrice,
	"amount":       colAmount,
	"total":        colAmount,
	"sum":          colAmount,
	"net":          colAmount,
	"betrag":       colAmount,
	"gesamt":       colAmount,
}

// Column order of a usage table without a header.
var positional = []string{colDescription, colQuantity, colUnitPrice, colAmount}

// A number followed by an optional unit such as "h", "GB" or "IP/h".
var quantityPattern = regexp.MustCompile(`^([+-]?\d[\d.,]*)\s*([\p{L}/%²³]*)$`)

// columnMap resolves column names to cell positions.
type columnMap map[string]int

func mapHeader(cells []string) (columnMap, error) {
	m := columnMap{}
	for i, c := range cells {
		key := strings.ToLower(strings.Join(strings.Fields(strings.TrimPrefix(c, "\ufeff")), " "))
		if col, ok := headerAliases[key]; ok {
			if _, dup := m[col]; !dup {
				m[col] = i
			}
		}
	}
	for _, required := range []string{colDescription, colAmount} {
		if _, ok := m[required]; !ok {
			return nil, fmt.Errorf("no %s column in header %q", required, strings.Join(cells, ","))
		}
	}
	return m, nil
}

func (m columnMap) width() int {
	w := 0
	for _, i := range m {
		w = max(w, i+1)
	}
	return w
}

func (m columnMap) get(cells []string, col string) string {
	i, ok := m[col]
	if !ok || i >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[i])
}

// lineItem converts one usage row. Unit price and quantity are optional;
// description and amount are not.
func (p *Parser) lineItem(m columnMap, cells []string, row int, invoiceID, currency string) (invoice.LineItem, error) {
	raw := strings.Join(cells, " | ")
	fail := func(field string, err error) (invoice.LineItem, error) {
		return invoice.LineItem{}, &common.ParseError{Row: row, Field: field, Raw: raw, Err: err}
	}

	if w := m.width(); len(cells) < w {
		return invoice.LineItem{}, &common.ParseError{Row: row, Raw: raw, WantColumns: w, GotColumns: len(cells)}
	}

	desc := m.get(cells, colDescription)
	if desc == "" {
		return fail(colDescription, errors.New("missing description"))
	}

	amount, err := money.Parse(m.get(cells, colAmount))
	if err != nil {
		return fail(colAmount, err)
	}
	if amount.Currency == "" {
		amount.Currency = currency
	}

	var unit money.Amount
	if s := m.get(cells, colUnitPrice); s != "" {
		if unit, err = money.Parse(s); err != nil {
			return fail(colUnitPrice, err)
		}
	}

	qty := "1"
	if s := m.get(cells, colQuantity); s != "" {
		if qty, err = parseQuantity(s); err != nil {
			return fail(colQuantity, err)
		}
	}

	return invoice.LineItem{
		InvoiceID:   invoiceID,
		Description: desc,
		Quantity:    qty,
		UnitPrice:   unit.Minor,
		Amount:      amount.Minor,
		Currency:    amount.Currency,
	}, nil
}

// parseQuantity keeps the exact decimal value and drops a trailing unit
// such as "h" or "GB".
func parseQuantity(s string) (string, error) {
	m := quantityPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", fmt.Errorf("invalid quantity %q", s)
	}
	d, err := money.ParseDecimal(m[1])
	if err != nil {
		return "", fmt.Errorf("invalid quantity %q: %w", s, err)
	}
	return d.String(), nil
}

func (p *Parser) currencyOr(c string) string {
	if c == "" {
		return p.defaultCurrency
	}
	return c
}

// ParseDetailPage reads the line items of a usage page's table.usage-table.
func (p *Parser) ParseDetailPage(doc *goquery.Document, invoiceID, currency string) ([]invoice.LineItem, error) {
	table := doc.Find("table.usage-table").First()
	if table.Length() == 0 {
		return nil, &common.ParseError{Row: -1, Field: "table", Err: errors.New("usage table not found")}
	}
	currency = p.currencyOr(currency)

	m := columnMap{}
	for i, col := range positional {
		m[col] = i
	}
	if th := table.Find("thead th"); th.Length() > 0 {
		var header []string
		th.Each(func(_ int, s *goquery.Selection) { header = append(header, strings.TrimSpace(s.Text())) })
		var err error
		if m, err = mapHeader(header); err != nil {
			return nil, &common.ParseError{Row: -1, Field: "header", Err: err}
		}
	}

	var (
		items []invoice.LineItem
		err   error
	)
	table.Find("tbody tr").EachWithBreak(func(i int, tr *goquery.Selection) bool {
		var cells []string
		tr.Find("td").Each(func(_ int, td *goquery.Selection) {
			cells = append(cells, strings.Join(strings.Fields(td.Text()), " "))
		})
		var item invoice.LineItem
		if item, err = p.lineItem(m, cells, i, invoiceID, currency); err != nil {
			return false
		}
		items = append(items, item)
		return true
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ParseUsageCSV reads the usage CSV export. Columns are found by header name;
// comma and semicolon delimiters are accepted.
func (p *Parser) ParseUsageCSV(data []byte, invoiceID, currency string) ([]invoice.LineItem, error) {
	currency = p.currencyOr(currency)
	data = bytes.TrimPrefix(data, []byte("\ufeff"))

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	if first, _, _ := bytes.Cut(data, []byte("\n")); bytes.Count(first, []byte(";")) > bytes.Count(first, []byte(",")) {
		r.Comma = ';'
	}

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &common.ParseError{Row: -1, Field: "header", Err: errors.New("empty export")}
		}
		return nil, &common.ParseError{Row: -1, Field: "header", Err: err}
	}
	m, err := mapHeader(header)
	if err != nil {
		return nil, &common.ParseError{Row: -1, Field: "header", Err: err}
	}

	var items []invoice.LineItem
	for row := 0; ; row++ {
		cells, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &common.ParseError{Row: row, Err: err}
		}
		item, err := p.lineItem(m, cells, row, invoiceID, currency)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
