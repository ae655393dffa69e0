// Package portaltest runs an in-process imitation of the invoice portal for
// tests: login form with CSRF token, optional TOTP challenge, paginated
// invoice list, PDF documents and usage pages with a CSV export.
package portaltest

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/invoicekeeper/internal/totp"
	"github.com/jung-kurt/gofpdf"
)

const sessionCookie = "PHPSESSID"

type Item struct {
	Description string
	Quantity    string
	UnitPrice   string
	Amount      string
}

// Invoice is one listing row as the portal renders it; amounts and dates
// are raw display strings.
type Invoice struct {
	ID      string
	Date    string
	Amount  string
	Status  string
	UsageID string
	Items   []Item

	// Printed on the generated PDF only.
	Net      string
	VAT      string
	Customer string

	// PDF is served as the document; when nil a one-page PDF is generated.
	PDF []byte
	// NoPDF hides the document link.
	NoPDF bool
}

type Portal struct {
	Email      string
	Password   string
	TOTPSecret string

	// CustomerNumber must accompany CSV exports when set.
	CustomerNumber string

	// ClockSkewSteps shifts the portal's TOTP clock relative to Now.
	ClockSkewSteps int
	Now            func() time.Time

	Invoices []Invoice

	// ExpireAt lists protected request numbers (1-based) before which every
	// session is dropped.
	ExpireAt []int
	// ExpireAlways drops sessions before every protected request.
	ExpireAlways bool
	// FailNext answers the next n protected requests with 503.
	FailNext int
	// ListDelay holds invoice list responses.
	ListDelay time.Duration
	// LoginCheckDelay holds credential posts after counting them.
	LoginCheckDelay time.Duration
	// RawListHTML replaces the rendered invoice list when set.
	RawListHTML string

	mu              sync.Mutex
	srv             *httptest.Server
	sessions        map[string]*sess
	credentialPosts int
	codePosts       int
	logins          int
	protected       int
}

type sess struct {
	csrf          string
	pending       bool
	authenticated bool
}

// Start serves the portal until the test ends.
func (p *Portal) Start(t interface{ Cleanup(func()) }) *Portal {
	p.sessions = map[string]*sess{}
	if p.Now == nil {
		p.Now = time.Now
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /login", p.loginPage)
	mux.HandleFunc("POST /login_check", p.loginCheck)
	mux.HandleFunc("GET /login/2fa", p.challengePage)
	mux.HandleFunc("POST /login/2fa_check", p.challengeCheck)
	mux.HandleFunc("GET /{$}", p.requireSession(p.dashboard))
	mux.HandleFunc("GET /invoice", p.protect(p.invoiceList))
	mux.HandleFunc("GET /invoice/{id}/pdf", p.protect(p.invoicePDF))
	mux.HandleFunc("GET /usage/{usage}", p.protect(p.usage))

	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func (p *Portal) URL() string { return p.srv.URL }

// UsageURL is the base of the usage pages linked from the listing.
func (p *Portal) UsageURL() string { return p.srv.URL + "/usage" }

// Logins counts completed logins.
func (p *Portal) Logins() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logins
}

func (p *Portal) CredentialPosts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.credentialPosts
}

func (p *Portal) CodePosts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.codePosts
}

// ExpireSessions drops every session, as a server-side logout would.
func (p *Portal) ExpireSessions() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions = map[string]*sess{}
}

func (p *Portal) session(w http.ResponseWriter, r *http.Request) *sess {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if s, ok := p.sessions[c.Value]; ok {
			return s
		}
	}
	id := randomHex(16)
	s := &sess{csrf: randomHex(8)}
	p.sessions[id] = s
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: id, Path: "/", HttpOnly: true})
	return s
}

func (p *Portal) loginPage(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	s := p.session(w, r)
	if s.authenticated {
		p.mu.Unlock()
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	csrf := s.csrf
	p.mu.Unlock()

	fmt.Fprintf(w, `<!DOCTYPE html><html><head><title>Login</title></head><body>
<form id="login-form" action="/login_check" method="post">
  <input type="hidden" name="_csrf_token" value="%s">
  <input type="text" name="_username" value="">
  <input type="password" name="_password" value="">
  <input type="checkbox" name="_remember_me">
  <input type="submit" value="Log in">
</form></body></html>`, csrf)
}

func (p *Portal) loginCheck(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	p.credentialPosts++
	p.mu.Unlock()
	if !hold(r, p.LoginCheckDelay) {
		return
	}

	p.mu.Lock()
	s := p.session(w, r)
	ok := r.PostForm.Get("_csrf_token") == s.csrf &&
		r.PostForm.Get("_username") == p.Email &&
		r.PostForm.Get("_password") == p.Password
	secondFactor := p.TOTPSecret != ""
	switch {
	case !ok:
	case secondFactor:
		s.pending = true
	default:
		s.authenticated = true
		p.logins++
	}
	p.mu.Unlock()

	switch {
	case !ok:
		http.Redirect(w, r, "/login?error=1", http.StatusFound)
	case secondFactor:
		http.Redirect(w, r, "/login/2fa", http.StatusFound)
	default:
		http.Redirect(w, r, "/", http.StatusFound)
	}
}

func (p *Portal) challengePage(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	s := p.session(w, r)
	pending, csrf := s.pending, s.csrf
	p.mu.Unlock()
	if !pending {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	fmt.Fprintf(w, `<!DOCTYPE html><html><body><h1>Two-factor authentication</h1>
<form action="/login/2fa_check" method="post">
  <input type="hidden" name="_csrf_token" value="%s">
  <input type="text" name="_auth_code" autocomplete="one-time-code">
  <input type="submit" value="Verify">
</form></body></html>`, csrf)
}

func (p *Portal) challengeCheck(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	want, err := totp.Code(p.TOTPSecret, p.Now().Add(time.Duration(p.ClockSkewSteps)*totp.Step))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	p.mu.Lock()
	p.codePosts++
	s := p.session(w, r)
	ok := s.pending && r.PostForm.Get("_csrf_token") == s.csrf && r.PostForm.Get("_auth_code") == want
	if ok {
		s.pending = false
		s.authenticated = true
		p.logins++
	}
	pending := s.pending
	p.mu.Unlock()

	switch {
	case ok:
		http.Redirect(w, r, "/", http.StatusFound)
	case pending:
		http.Redirect(w, r, "/login/2fa", http.StatusFound)
	default:
		http.Redirect(w, r, "/login", http.StatusFound)
	}
}

// protect applies the expiry and failure hooks to a counted request.
func (p *Portal) protect(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.protected++
		if p.ExpireAlways || slices.Contains(p.ExpireAt, p.protected) {
			p.sessions = map[string]*sess{}
		}
		fail := p.FailNext > 0
		if fail {
			p.FailNext--
		}
		p.mu.Unlock()

		if fail {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
		p.requireSession(next)(w, r)
	}
}

func (p *Portal) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		authenticated := p.session(w, r).authenticated
		p.mu.Unlock()

		if !authenticated {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next(w, r)
	}
}

func (p *Portal) dashboard(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, `<!DOCTYPE html><html><body><nav><a href="/invoice">Invoices</a></nav><h1>Dashboard</h1></body></html>`)
}

func (p *Portal) invoiceList(w http.ResponseWriter, r *http.Request) {
	if !hold(r, p.ListDelay) {
		return
	}

	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html><body><h1>Invoices</h1>`)
	if p.RawListHTML != "" {
		b.WriteString(p.RawListHTML)
		b.WriteString(`</body></html>`)
		fmt.Fprint(w, b.String())
		return
	}

	page := atoiDefault(r.URL.Query().Get("page"), 1)
	perPage := atoiDefault(r.URL.Query().Get("per_page"), 25)
	from := (page - 1) * perPage
	if from < 0 || from >= len(p.Invoices) {
		b.WriteString(`<p class="no-invoices">No invoices found.</p></body></html>`)
		fmt.Fprint(w, b.String())
		return
	}
	to := min(from+perPage, len(p.Invoices))

	b.WriteString(`<ul class="invoice-list">`)
	for _, inv := range p.Invoices[from:to] {
		fmt.Fprintf(&b, `<li id="%s">`, html.EscapeString(inv.ID))
		fmt.Fprintf(&b, `<span class="invoice-number">%s</span>`, html.EscapeString(inv.ID))
		fmt.Fprintf(&b, `<span class="invoice-date">%s</span>`, html.EscapeString(inv.Date))
		fmt.Fprintf(&b, `<span class="invoice-value">%s</span>`, html.EscapeString(inv.Amount))
		fmt.Fprintf(&b, `<span class="invoice-status">%s</span>`, html.EscapeString(inv.Status))
		if !inv.NoPDF {
			fmt.Fprintf(&b, `<a class="btn-pdf" href="/invoice/%s/pdf">PDF</a>`, html.EscapeString(inv.ID))
		}
		if inv.UsageID != "" {
			fmt.Fprintf(&b, `<a class="btn-detail" href="%s/%s">Details</a>`, p.UsageURL(), html.EscapeString(inv.UsageID))
		}
		b.WriteString(`</li>`)
	}
	b.WriteString(`</ul>`)
	fmt.Fprintf(&b, `<div class="pagination" data-page="%d"></div></body></html>`, page)
	fmt.Fprint(w, b.String())
}

func (p *Portal) find(match func(Invoice) bool) (Invoice, bool) {
	for _, inv := range p.Invoices {
		if match(inv) {
			return inv, true
		}
	}
	return Invoice{}, false
}

func (p *Portal) invoicePDF(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	inv, ok := p.find(func(i Invoice) bool { return i.ID == id && !i.NoPDF })
	if !ok {
		http.NotFound(w, r)
		return
	}
	data := inv.PDF
	if data == nil {
		var err error
		if data, err = RenderPDF(inv); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="Hetzner_%s.pdf"`, id))
	_, _ = w.Write(data)
}

func (p *Portal) usage(w http.ResponseWriter, r *http.Request) {
	usageID := r.PathValue("usage")
	inv, ok := p.find(func(i Invoice) bool { return i.UsageID == usageID })
	if !ok {
		http.NotFound(w, r)
		return
	}

	if r.URL.Query().Has("csv") {
		if p.CustomerNumber != "" && r.URL.Query().Get("cn") != p.CustomerNumber {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		var b strings.Builder
		b.WriteString("Description,Quantity,Unit price,Amount\n")
		for _, it := range inv.Items {
			fmt.Fprintf(&b, "%s,%s,%s,%s\n", csvField(it.Description), csvField(it.Quantity), csvField(it.UnitPrice), csvField(it.Amount))
		}
		fmt.Fprint(w, b.String())
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<!DOCTYPE html><html><body><h1>Usage %s</h1><table class="usage-table">`, html.EscapeString(inv.ID))
	b.WriteString(`<thead><tr><th>Description</th><th>Quantity</th><th>Unit price</th><th>Amount</th></tr></thead><tbody>`)
	for _, it := range inv.Items {
		fmt.Fprintf(&b, `<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>`,
			html.EscapeString(it.Description), html.EscapeString(it.Quantity),
			html.EscapeString(it.UnitPrice), html.EscapeString(it.Amount))
	}
	b.WriteString(`</tbody></table></body></html>`)
	fmt.Fprint(w, b.String())
}

// RenderPDF produces a small but well-formed invoice document laid out as
// label and value columns.
func RenderPDF(inv Invoice) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Invoice "+inv.ID, true)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Invoice", "", 1, "L", false, 0, "")
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "", 11)

	field := func(label, value string) {
		if value == "" {
			return
		}
		pdf.CellFormat(50, 7, tr(label), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 7, tr(value), "", 1, "L", false, 0, "")
	}
	field("Invoice No.:", inv.ID)
	field("Customer No.:", inv.Customer)
	field("Invoice date:", inv.Date)
	pdf.Ln(4)

	for _, it := range inv.Items {
		pdf.CellFormat(90, 7, tr(it.Description), "", 0, "L", false, 0, "")
		pdf.CellFormat(30, 7, tr(it.Quantity), "", 0, "R", false, 0, "")
		pdf.CellFormat(0, 7, tr(it.Amount), "", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	field("Net", inv.Net)
	field("VAT 19%", inv.VAT)
	field("Total", inv.Amount)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func csvField(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// hold waits d unless the client gives up first.
func hold(r *http.Request, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-time.After(d):
		return true
	case <-r.Context().Done():
		return false
	}
}
