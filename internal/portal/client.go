package portal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dmitrijs2005/invoicekeeper/internal/common"
	"github.com/dmitrijs2005/invoicekeeper/internal/invoice"
	"github.com/dmitrijs2005/invoicekeeper/internal/logging"
	"github.com/dmitrijs2005/invoicekeeper/internal/parser"
	"github.com/dmitrijs2005/invoicekeeper/internal/portal/browser"
	"github.com/dmitrijs2005/invoicekeeper/internal/portal/navigator"
	"github.com/dmitrijs2005/invoicekeeper/internal/portal/session"
	"github.com/dmitrijs2005/invoicekeeper/internal/retry"
	"github.com/google/uuid"
)

// MaxScanPages bounds the listing scan of a lookup by id.
const MaxScanPages = 20

var ErrClosed = errors.New("portal client closed")

var pdfMagic = []byte("%PDF-")

type Options struct {
	BaseURL        string
	CustomerNumber string
	UserAgent      string

	NavigationTimeout time.Duration
	LoginTimeout      time.Duration
	Retry             retry.Policy
	DriftSteps        int
	MaxScanPages      int

	DefaultCurrency string

	Now       func() time.Time
	Transport http.RoundTripper
}

type Client struct {
	browser *browser.Browser
	session *session.Manager
	nav     *navigator.Navigator
	parser  *parser.Parser
	opts    Options
	logger  logging.Logger

	mu     sync.RWMutex
	closed bool
}

func New(creds invoice.Credentials, opts Options, l logging.Logger) (*Client, error) {
	if l == nil {
		l = logging.NopLogger{}
	}
	if opts.MaxScanPages <= 0 {
		opts.MaxScanPages = MaxScanPages
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = retry.DefaultPolicy()
	}

	b, err := browser.New(browser.Options{
		BaseURL:   opts.BaseURL,
		Timeout:   opts.NavigationTimeout,
		UserAgent: opts.UserAgent,
		Transport: opts.Transport,
	}, l)
	if err != nil {
		return nil, fmt.Errorf("browser: %w", err)
	}

	r := retry.New(opts.Retry, l)
	return &Client{
		browser: b,
		session: session.NewManager(b, r, creds, session.Options{
			LoginTimeout: opts.LoginTimeout,
			DriftSteps:   opts.DriftSteps,
			Now:          opts.Now,
		}, l),
		nav:    navigator.New(b, r, navigator.Options{}, l),
		parser: parser.New(parser.Options{DefaultCurrency: opts.DefaultCurrency}),
		opts:   opts,
		logger: l.With("module", "portal"),
	}, nil
}

// SessionState reports the login state machine's current state.
func (c *Client) SessionState() session.State {
	return c.session.State()
}

// run executes one operation under the session manager with an operation
// id attached to its log lines.
func (c *Client) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}

	l := c.logger.With("op", op, "op_id", uuid.NewString())
	start := time.Now()
	l.Debug(ctx, "operation started")

	err := c.session.Run(ctx, op, fn)
	if err != nil {
		l.Error(ctx, "operation failed", "error", err, "duration", time.Since(start), "retry", retry.Classify(err).String())
		return err
	}
	l.Info(ctx, "operation finished", "duration", time.Since(start))
	return nil
}

// Login authenticates up front instead of on the first operation.
func (c *Client) Login(ctx context.Context) error {
	return c.run(ctx, "login", func(context.Context) error { return nil })
}

// ListInvoices returns one listing page. perPage is clamped to
// invoice.MaxPerPage; a page past the end is empty.
func (c *Client) ListInvoices(ctx context.Context, page, perPage int) ([]invoice.Record, error) {
	var out []invoice.Record
	err := c.run(ctx, "list invoices", func(ctx context.Context) error {
		rows, err := c.nav.FetchPage(ctx, page, perPage)
		if err != nil {
			return err
		}
		out, err = c.parser.ParseRows(rows)
		return err
	})
	return out, err
}

// GetInvoice looks an invoice up by id across listing pages.
func (c *Client) GetInvoice(ctx context.Context, id string) (invoice.Record, error) {
	var out invoice.Record
	err := c.run(ctx, "get invoice", func(ctx context.Context) error {
		row, err := c.nav.FindRow(ctx, id, c.opts.MaxScanPages)
		if err != nil {
			return err
		}
		out, err = c.parser.ParseRow(row)
		return err
	})
	return out, err
}

// GetLatestInvoice returns the invoice with the latest issue date on the
// first listing page.
func (c *Client) GetLatestInvoice(ctx context.Context) (invoice.Record, error) {
	var out invoice.Record
	err := c.run(ctx, "get latest invoice", func(ctx context.Context) error {
		rows, err := c.nav.FetchPage(ctx, 1, invoice.MaxPerPage)
		if err != nil {
			return err
		}
		recs, err := c.parser.ParseRows(rows)
		if err != nil {
			return err
		}
		latest, ok := invoice.Latest(recs)
		if !ok {
			return &common.NotFoundError{Kind: "invoice"}
		}
		out = latest
		return nil
	})
	return out, err
}

// GetInvoicePDF downloads the invoice document.
func (c *Client) GetInvoicePDF(ctx context.Context, id string) ([]byte, error) {
	var out []byte
	err := c.run(ctx, "get invoice pdf", func(ctx context.Context) error {
		row, err := c.nav.FindRow(ctx, id, c.opts.MaxScanPages)
		if err != nil {
			return err
		}
		if row.PDFURL == "" {
			return &common.NotFoundError{Kind: "invoice document", ID: row.ID}
		}

		doc, err := c.nav.Download(ctx, "download invoice "+row.ID, row.PDFURL)
		if err != nil {
			return err
		}
		if !bytes.HasPrefix(doc.Data, pdfMagic) {
			return &common.ParseError{
				Row:   row.Index,
				Field: "pdf",
				Err:   fmt.Errorf("document is not a PDF (content type %q, %d bytes)", doc.ContentType, len(doc.Data)),
			}
		}
		out = doc.Data
		return nil
	})
	return out, err
}

// GetInvoicePDFParsed downloads the invoice document and reads the numbers
// printed on it.
func (c *Client) GetInvoicePDFParsed(ctx context.Context, id string) (invoice.DocumentSummary, error) {
	data, err := c.GetInvoicePDF(ctx, id)
	if err != nil {
		return invoice.DocumentSummary{}, err
	}
	sum, err := c.parser.ParseInvoicePDF(data, id)
	if err != nil {
		c.logger.Error(ctx, "invoice document unreadable", "invoice_id", id, "error", err)
		return invoice.DocumentSummary{}, err
	}
	return sum, nil
}

// GetInvoiceDetails returns the usage line items of an invoice. With a
// customer number configured the CSV export is used, otherwise the usage
// page itself is read.
func (c *Client) GetInvoiceDetails(ctx context.Context, id string) ([]invoice.LineItem, error) {
	var out []invoice.LineItem
	err := c.run(ctx, "get invoice details", func(ctx context.Context) error {
		row, err := c.nav.FindRow(ctx, id, c.opts.MaxScanPages)
		if err != nil {
			return err
		}
		rec, err := c.parser.ParseRow(row)
		if err != nil {
			return err
		}
		if row.UsageURL == "" {
			return &common.NotFoundError{Kind: "usage details for invoice", ID: rec.ID}
		}

		if c.opts.CustomerNumber != "" {
			csvURL, err := usageCSVURL(row.UsageURL, c.opts.CustomerNumber)
			if err != nil {
				return err
			}
			doc, err := c.nav.Download(ctx, "download usage csv "+rec.ID, csvURL)
			if err != nil {
				return err
			}
			out, err = c.parser.ParseUsageCSV(doc.Data, rec.ID, rec.Currency)
			return err
		}

		return c.nav.VisitDetail(ctx, "open usage "+rec.ID, row.UsageURL, func(p *browser.Page) error {
			var err error
			out, err = c.parser.ParseDetailPage(p.Doc, rec.ID, rec.Currency)
			return err
		})
	})
	return out, err
}

// usageCSVURL turns a usage page link into its CSV export link.
func usageCSVURL(usageURL, customer string) (string, error) {
	u, err := url.Parse(usageURL)
	if err != nil {
		return "", fmt.Errorf("usage link: %w", err)
	}
	u.RawQuery = "csv&cn=" + url.QueryEscape(customer)
	return u.String(), nil
}

// Close logs out locally and releases the browser. Later calls fail with
// ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.session.Invalidate()
	return c.browser.Close()
}
