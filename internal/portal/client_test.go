package portal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dmitrijs2005/invoicekeeper/internal/common"
	"github.com/dmitrijs2005/invoicekeeper/internal/invoice"
	"github.com/dmitrijs2005/invoicekeeper/internal/logging"
	"github.com/dmitrijs2005/invoicekeeper/internal/portal/portaltest"
	"github.com/dmitrijs2005/invoicekeeper/internal/portal/session"
	"github.com/dmitrijs2005/invoicekeeper/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	email    = "billing@example.com"
	password = "s3cret-pass"
	secret   = "JBSWY3DPEHPK3PXP"
)

var now = time.Date(2025, 2, 1, 9, 30, 0, 0, time.UTC)

func fixtures() []portaltest.Invoice {
	return []portaltest.Invoice{
		{
			ID: "R0012345678", Date: "31.01.2025", Amount: "€11.84", Status: "Paid",
			UsageID: "7b65bc9a-6229-4019-99f8-31ef3e0ec8c6",
			Items: []portaltest.Item{
				{Description: "CX22 server", Quantity: "744 h", UnitPrice: "€0.0060", Amount: "€4.46"},
				{Description: "Backups", Quantity: "1", UnitPrice: "€7.38", Amount: "€7.38"},
			},
		},
		{ID: "R0012345600", Date: "31.12.2024", Amount: "€10.00", Status: "Paid"},
	}
}

func newClient(t *testing.T, p *portaltest.Portal, opts Options, l logging.Logger) *Client {
	t.Helper()
	p.Email, p.Password = email, password
	if p.Now == nil {
		p.Now = func() time.Time { return now }
	}
	p.Start(t)

	opts.BaseURL = p.URL()
	opts.Now = func() time.Time { return now }
	opts.Retry = retry.Policy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	if opts.NavigationTimeout == 0 {
		opts.NavigationTimeout = 2 * time.Second
	}
	opts.DriftSteps = 1

	creds := invoice.Credentials{Email: email, Password: password}
	if p.TOTPSecret != "" {
		creds.TOTPSecret = p.TOTPSecret
	}

	c, err := New(creds, opts, l)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestEndToEnd_TwoFactorLoginAndLatest(t *testing.T) {
	p := &portaltest.Portal{TOTPSecret: secret, Invoices: fixtures()}
	c := newClient(t, p, Options{}, nil)
	ctx := context.Background()

	recs, err := c.ListInvoices(ctx, 1, 25)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "2025-01-31", recs[0].IssueDateISO())
	assert.Equal(t, "2024-12-31", recs[1].IssueDateISO())
	assert.Equal(t, int64(1184), recs[0].Total)
	assert.Equal(t, "EUR", recs[0].Currency)
	assert.Equal(t, invoice.StatusPaid, recs[0].Status)

	latest, err := c.GetLatestInvoice(ctx)
	require.NoError(t, err)
	assert.Equal(t, "R0012345678", latest.ID)
	assert.Equal(t, "2025-01-31", latest.IssueDateISO())

	assert.Equal(t, 1, p.Logins())
	assert.Equal(t, 1, p.CodePosts())
	assert.Equal(t, session.Authenticated, c.SessionState())
}

func TestGetLatestInvoice_PicksMaxDateNotFirstRow(t *testing.T) {
	inv := fixtures()
	inv[0], inv[1] = inv[1], inv[0]
	c := newClient(t, &portaltest.Portal{Invoices: inv}, Options{}, nil)

	latest, err := c.GetLatestInvoice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "R0012345678", latest.ID)
}

func TestGetLatestInvoice_NoInvoices(t *testing.T) {
	c := newClient(t, &portaltest.Portal{}, Options{}, nil)

	_, err := c.GetLatestInvoice(context.Background())
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestListInvoices_PastTheEnd(t *testing.T) {
	c := newClient(t, &portaltest.Portal{Invoices: fixtures()}, Options{}, nil)

	recs, err := c.ListInvoices(context.Background(), 7, 50)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestListInvoices_MalformedRowFailsThePage(t *testing.T) {
	inv := fixtures()
	inv[1].Amount = "ask accounting"
	c := newClient(t, &portaltest.Portal{Invoices: inv}, Options{}, nil)

	_, err := c.ListInvoices(context.Background(), 1, 25)

	var pe *common.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 1, pe.Row)
	assert.Equal(t, "amount", pe.Field)
	assert.Equal(t, retry.Fatal, retry.Classify(err))
}

func TestGetInvoice(t *testing.T) {
	var many []portaltest.Invoice
	for i := range 60 {
		many = append(many, portaltest.Invoice{
			ID: fmt.Sprintf("R%d", 500-i), Date: "01.01.2024", Amount: "€1.00", Status: "Paid",
		})
	}
	c := newClient(t, &portaltest.Portal{Invoices: many}, Options{}, nil)
	ctx := context.Background()

	rec, err := c.GetInvoice(ctx, "R441")
	require.NoError(t, err)
	assert.Equal(t, "R441", rec.ID)
	assert.Equal(t, int64(100), rec.Total)

	_, err = c.GetInvoice(ctx, "R1")
	var nf *common.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "invoice R1 not found", nf.Error())
}

func TestGetInvoicePDF(t *testing.T) {
	inv := fixtures()
	inv[1].NoPDF = true
	c := newClient(t, &portaltest.Portal{Invoices: inv}, Options{}, nil)
	ctx := context.Background()

	pdf, err := c.GetInvoicePDF(ctx, "R0012345678")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))

	_, err = c.GetInvoicePDF(ctx, "R0012345600")
	require.ErrorIs(t, err, common.ErrNotFound)

	_, err = c.GetInvoicePDF(ctx, "R404")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestGetInvoicePDF_RejectsNonPDF(t *testing.T) {
	inv := fixtures()
	inv[0].PDF = []byte("<html>maintenance</html>")
	c := newClient(t, &portaltest.Portal{Invoices: inv}, Options{}, nil)

	_, err := c.GetInvoicePDF(context.Background(), "R0012345678")
	var pe *common.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "pdf", pe.Field)
}

func TestGetInvoicePDFParsed(t *testing.T) {
	inv := fixtures()
	inv[0].Net, inv[0].VAT, inv[0].Customer = "€9.95", "€1.89", "K0123456789"
	c := newClient(t, &portaltest.Portal{Invoices: inv}, Options{}, nil)

	sum, err := c.GetInvoicePDFParsed(context.Background(), "R0012345678")
	require.NoError(t, err)
	assert.Equal(t, "R0012345678", sum.InvoiceNumber)
	assert.Equal(t, "K0123456789", sum.CustomerNumber)
	assert.Equal(t, "2025-01-31", sum.IssueDate.Format(invoice.DateLayout))
	require.NotNil(t, sum.Total)
	assert.EqualValues(t, 1184, *sum.Total)
	assert.EqualValues(t, 995, *sum.Net)
	assert.EqualValues(t, 189, *sum.VAT)
	assert.Equal(t, "EUR", sum.Currency)
}

func TestGetInvoicePDFParsed_UnreadableDocument(t *testing.T) {
	inv := fixtures()
	inv[0].PDF = []byte("%PDF-1.4\ngarbage")
	c := newClient(t, &portaltest.Portal{Invoices: inv}, Options{}, nil)

	_, err := c.GetInvoicePDFParsed(context.Background(), "R0012345678")
	var pe *common.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "pdf", pe.Field)
}

func TestGetInvoiceDetails_FromUsagePage(t *testing.T) {
	c := newClient(t, &portaltest.Portal{Invoices: fixtures()}, Options{}, nil)

	items, err := c.GetInvoiceDetails(context.Background(), "R0012345678")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, invoice.LineItem{
		InvoiceID: "R0012345678", Description: "CX22 server", Quantity: "744", UnitPrice: 1, Amount: 446, Currency: "EUR",
	}, items[0])

	var sum int64
	for _, it := range items {
		sum += it.Amount
	}
	assert.Equal(t, int64(1184), sum)
}

func TestGetInvoiceDetails_FromCSVExport(t *testing.T) {
	p := &portaltest.Portal{Invoices: fixtures(), CustomerNumber: "K0123456789"}
	c := newClient(t, p, Options{CustomerNumber: "K0123456789"}, nil)

	items, err := c.GetInvoiceDetails(context.Background(), "R0012345678")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Backups", items[1].Description)
	assert.Equal(t, int64(738), items[1].Amount)
}

func TestGetInvoiceDetails_WrongCustomerNumber(t *testing.T) {
	p := &portaltest.Portal{Invoices: fixtures(), CustomerNumber: "K0123456789"}
	c := newClient(t, p, Options{CustomerNumber: "K999"}, nil)

	_, err := c.GetInvoiceDetails(context.Background(), "R0012345678")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.NotErrorIs(t, err, common.ErrTransient)
	assert.NotErrorIs(t, err, common.ErrAuthentication)
	assert.Equal(t, 1, p.Logins())
}

func TestGetInvoiceDetails_NoUsageLink(t *testing.T) {
	c := newClient(t, &portaltest.Portal{Invoices: fixtures()}, Options{}, nil)

	_, err := c.GetInvoiceDetails(context.Background(), "R0012345600")
	require.ErrorIs(t, err, common.ErrNotFound)
}

// The session dies on the second navigation; the operation logs in again
// exactly once and succeeds.
func TestSessionExpiryOnSecondNavigation(t *testing.T) {
	p := &portaltest.Portal{TOTPSecret: secret, Invoices: fixtures(), ExpireAt: []int{2}}
	c := newClient(t, p, Options{}, nil)
	ctx := context.Background()

	_, err := c.ListInvoices(ctx, 1, 25)
	require.NoError(t, err)

	latest, err := c.GetLatestInvoice(ctx)
	require.NoError(t, err)
	assert.Equal(t, "R0012345678", latest.ID)
	assert.Equal(t, 2, p.Logins())
}

func TestRepeatedExpiryIsAnAuthenticationError(t *testing.T) {
	p := &portaltest.Portal{Invoices: fixtures(), ExpireAlways: true}
	c := newClient(t, p, Options{}, nil)

	_, err := c.ListInvoices(context.Background(), 1, 25)
	require.ErrorIs(t, err, common.ErrAuthentication)
	require.ErrorIs(t, err, common.ErrSessionExpired)
	assert.Equal(t, 2, p.Logins())
}

func TestTransientFailuresAreAbsorbed(t *testing.T) {
	p := &portaltest.Portal{Invoices: fixtures(), FailNext: 2}
	c := newClient(t, p, Options{}, nil)

	recs, err := c.ListInvoices(context.Background(), 1, 25)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestNavigationTimeout(t *testing.T) {
	p := &portaltest.Portal{Invoices: fixtures(), ListDelay: time.Second}
	c := newClient(t, p, Options{NavigationTimeout: 50 * time.Millisecond}, nil)

	_, err := c.ListInvoices(context.Background(), 1, 25)

	require.ErrorIs(t, err, common.ErrRetriesExhausted)
	var nt *common.NavigationTimeoutError
	require.ErrorAs(t, err, &nt)
	assert.Equal(t, 50*time.Millisecond, nt.Timeout)
	assert.Equal(t, "open invoice page 1", nt.Action)
}

func TestBadCredentials(t *testing.T) {
	p := &portaltest.Portal{Invoices: fixtures()}
	c := newClient(t, p, Options{}, nil)
	p.Password = "changed"

	_, err := c.ListInvoices(context.Background(), 1, 25)
	require.ErrorIs(t, err, common.ErrAuthentication)
	assert.Equal(t, 1, p.CredentialPosts())
	assert.Equal(t, session.Failed, c.SessionState())
}

func TestCredentialSubmitTimeoutIsNotRetried(t *testing.T) {
	p := &portaltest.Portal{Invoices: fixtures(), LoginCheckDelay: 5 * time.Second}
	c := newClient(t, p, Options{NavigationTimeout: 50 * time.Millisecond}, nil)

	_, err := c.ListInvoices(context.Background(), 1, 25)

	require.ErrorIs(t, err, common.ErrAuthentication)
	require.NotErrorIs(t, err, common.ErrRetriesExhausted)
	assert.ErrorContains(t, err, "no authenticated landing within timeout")
	assert.Equal(t, 1, p.CredentialPosts())
	assert.Equal(t, session.Failed, c.SessionState())
}

func TestLogsCarryOperationIDButNoSecrets(t *testing.T) {
	var buf bytes.Buffer
	l := logging.New(&buf, "debug", "json")
	p := &portaltest.Portal{TOTPSecret: secret, Invoices: fixtures()}
	c := newClient(t, p, Options{}, l)

	_, err := c.GetLatestInvoice(context.Background())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"op":"get latest invoice"`)
	assert.Contains(t, out, `"op_id":`)
	assert.NotContains(t, out, password)
	assert.NotContains(t, out, secret)
	assert.NotContains(t, out, "example.com")
}

func TestClose(t *testing.T) {
	c := newClient(t, &portaltest.Portal{Invoices: fixtures()}, Options{}, nil)
	require.NoError(t, c.Login(context.Background()))
	require.Equal(t, session.Authenticated, c.SessionState())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, session.Unauthenticated, c.SessionState())

	_, err := c.ListInvoices(context.Background(), 1, 25)
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestUsageCSVURL(t *testing.T) {
	u, err := usageCSVURL("https://usage.example.com/abc", "K 1")
	require.NoError(t, err)
	assert.Equal(t, "https://usage.example.com/abc?csv&cn=K+1", u)
}
