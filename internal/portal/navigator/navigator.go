// Package navigator walks the portal's invoice listing. It turns each listing
// page into raw rows for the parser and knows where every row links to, but
// it never interprets cell contents.
package navigator

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dmitrijs2005/invoicekeeper/internal/common"
	"github.com/dmitrijs2005/invoicekeeper/internal/invoice"
	"github.com/dmitrijs2005/invoicekeeper/internal/logging"
	"github.com/dmitrijs2005/invoicekeeper/internal/portal/browser"
	"github.com/dmitrijs2005/invoicekeeper/internal/portal/session"
	"github.com/dmitrijs2005/invoicekeeper/internal/retry"
)

// Cell names of a listing row.
const (
	CellNumber = "number"
	CellDate   = "date"
	CellAmount = "amount"
	CellStatus = "status"
)

// ListingColumns is how many data cells a well-formed row carries. The
// invoice number cell is optional and not counted.
const ListingColumns = 3

var cellSelectors = []struct {
	name     string
	selector string
	counted  bool
}{
	{CellNumber, ".invoice-number", false},
	{CellDate, ".invoice-date", true},
	{CellAmount, ".invoice-value", true},
	{CellStatus, ".invoice-status", true},
}

// RawRow is one listing row before parsing.
type RawRow struct {
	// Index is the zero-based position of the row on its page.
	Index int
	Page  int

	ID      string
	Cells   map[string]string
	Columns int

	// Raw is the row's whitespace-collapsed text, kept for diagnostics.
	Raw string

	PDFURL   string
	UsageURL string
}

// Browser is the part of the browser the navigator needs.
type Browser interface {
	Visit(ctx context.Context, req browser.Request, fn func(*browser.Page) error) error
	Download(ctx context.Context, req browser.Request) (*browser.Document, error)
}

type Options struct {
	ListPath  string
	LoginPath string
}

type Navigator struct {
	browser Browser
	retrier *retry.Retrier
	opts    Options
	logger  logging.Logger
}

func New(b Browser, r *retry.Retrier, opts Options, l logging.Logger) *Navigator {
	if opts.ListPath == "" {
		opts.ListPath = "/invoice"
	}
	if opts.LoginPath == "" {
		opts.LoginPath = "/login"
	}
	if l == nil {
		l = logging.NopLogger{}
	}
	if r == nil {
		r = retry.New(retry.DefaultPolicy(), l)
	}
	return &Navigator{browser: b, retrier: r, opts: opts, logger: l.With("module", "navigator")}
}

// PageURL is the listing URL for a normalized page.
func (n *Navigator) PageURL(p invoice.Page) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(p.Number))
	q.Set("per_page", strconv.Itoa(p.PerPage))
	return n.opts.ListPath + "?" + q.Encode()
}

// FetchPage returns the raw rows of one listing page. per_page is clamped to
// invoice.MaxPerPage; a page past the end yields no rows and no error.
func (n *Navigator) FetchPage(ctx context.Context, page, perPage int) ([]RawRow, error) {
	p := invoice.NewPage(page, perPage)
	action := fmt.Sprintf("open invoice page %d", p.Number)

	var rows []RawRow
	err := n.retrier.Do(ctx, action, func(ctx context.Context) error {
		rows = nil
		return n.browser.Visit(ctx, browser.Request{Action: action, URL: n.PageURL(p)}, func(pg *browser.Page) error {
			if n.isLoginPage(pg) {
				return &common.SessionExpiredError{Action: action, URL: pg.URL.Path}
			}
			rows = extractRows(pg, p.Number)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	n.logger.Debug(ctx, "listing page read", "page", p.Number, "per_page", p.PerPage, "rows", len(rows))
	return rows, nil
}

// FindRow scans listing pages from the first until the row with id turns up,
// an empty page ends the listing or maxPages pages were read.
func (n *Navigator) FindRow(ctx context.Context, id string, maxPages int) (RawRow, error) {
	id = strings.TrimSpace(id)
	for page := 1; page <= maxPages; page++ {
		rows, err := n.FetchPage(ctx, page, invoice.MaxPerPage)
		if err != nil {
			return RawRow{}, err
		}
		if len(rows) == 0 {
			break
		}
		for _, r := range rows {
			if r.ID == id {
				return r, nil
			}
		}
		if len(rows) < invoice.MaxPerPage {
			break
		}
	}
	return RawRow{}, &common.NotFoundError{Kind: "invoice", ID: id}
}

// VisitDetail opens a page linked from a row, such as the usage breakdown.
func (n *Navigator) VisitDetail(ctx context.Context, action, rawURL string, fn func(*browser.Page) error) error {
	return n.retrier.Do(ctx, action, func(ctx context.Context) error {
		return n.browser.Visit(ctx, browser.Request{Action: action, URL: rawURL}, func(pg *browser.Page) error {
			if n.isLoginPage(pg) {
				return &common.SessionExpiredError{Action: action, URL: pg.URL.Path}
			}
			return fn(pg)
		})
	})
}

// Download fetches a linked document. Landing on the login page instead
// means the session is gone.
func (n *Navigator) Download(ctx context.Context, action, rawURL string) (*browser.Document, error) {
	return retry.DoValue(ctx, n.retrier, action, func(ctx context.Context) (*browser.Document, error) {
		doc, err := n.browser.Download(ctx, browser.Request{Action: action, URL: rawURL})
		if err != nil {
			return nil, err
		}
		if strings.TrimSuffix(doc.URL.Path, "/") == n.opts.LoginPath {
			return nil, &common.SessionExpiredError{Action: action, URL: doc.URL.Path}
		}
		return doc, nil
	})
}

func (n *Navigator) isLoginPage(pg *browser.Page) bool {
	return session.IsLoginPage(pg, n.opts.LoginPath)
}

func extractRows(pg *browser.Page, page int) []RawRow {
	var rows []RawRow
	pg.Doc.Find("ul.invoice-list > li").Each(func(_ int, li *goquery.Selection) {
		cells := map[string]string{}
		columns := 0
		for _, c := range cellSelectors {
			sel := li.Find(c.selector).First()
			if sel.Length() == 0 {
				continue
			}
			cells[c.name] = collapse(sel.Text())
			if c.counted {
				columns++
			}
		}

		id := strings.TrimSpace(li.AttrOr("id", ""))
		if id == "" {
			id = cells[CellNumber]
		}
		if id == "" && len(cells) == 0 {
			// Decoration such as a header or spacer.
			return
		}

		row := RawRow{
			Index:   len(rows),
			Page:    page,
			ID:      id,
			Cells:   cells,
			Columns: columns,
			Raw:     collapse(li.Text()),
		}
		if href, ok := li.Find(`a[href*="/pdf"]`).First().Attr("href"); ok {
			if u, err := pg.Resolve(href); err == nil {
				row.PDFURL = u.String()
			}
		}
		if href, ok := li.Find(`a.btn-detail[href]`).First().Attr("href"); ok {
			if u, err := pg.Resolve(href); err == nil {
				row.UsageURL = u.String()
			}
		}
		rows = append(rows, row)
	})
	return rows
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
