package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dmitrijs2005/invoicekeeper/internal/common"
	"github.com/dmitrijs2005/invoicekeeper/internal/logging"
)

// MaxDocumentSize caps a single download.
const MaxDocumentSize = 32 << 20

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string

	// Transport overrides the HTTP transport, mostly for tests.
	Transport http.RoundTripper
}

type Browser struct {
	client    *http.Client
	jar       *resettableJar
	base      *url.URL
	timeout   time.Duration
	userAgent string
	logger    logging.Logger
}

// Request describes one navigation. URL may be relative to the base URL.
// A non-nil Form turns the request into a form POST.
type Request struct {
	Action string
	Method string
	URL    string
	Form   url.Values
}

func New(opts Options, l logging.Logger) (*Browser, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", opts.BaseURL)
	}
	jar, err := newResettableJar()
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if l == nil {
		l = logging.NopLogger{}
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}

	return &Browser{
		client:    &http.Client{Jar: jar, Transport: transport},
		jar:       jar,
		base:      base,
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
		logger:    l.With("module", "browser"),
	}, nil
}

// Resolve turns a possibly relative reference into an absolute URL.
func (b *Browser) Resolve(ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, err
	}
	return b.base.ResolveReference(u), nil
}

func (b *Browser) Timeout() time.Duration { return b.timeout }

// Visit opens the requested page and hands it to fn. The underlying response
// is released when fn returns.
func (b *Browser) Visit(ctx context.Context, req Request, fn func(*Page) error) error {
	resp, target, cancel, err := b.do(ctx, req)
	if err != nil {
		return err
	}
	defer cancel()
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, MaxDocumentSize))
	if err != nil {
		return b.classify(ctx, req.Action, target, err)
	}

	page := &Page{URL: resp.Request.URL, StatusCode: resp.StatusCode, Doc: doc}
	return fn(page)
}

// Document is a downloaded file. URL is the final URL after redirects.
type Document struct {
	URL         *url.URL
	ContentType string
	Data        []byte
}

// Download fetches a document into memory, up to MaxDocumentSize bytes.
func (b *Browser) Download(ctx context.Context, req Request) (*Document, error) {
	resp, target, cancel, err := b.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer resp.Body.Close()

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(resp.Body, MaxDocumentSize+1))
	if err != nil {
		return nil, b.classify(ctx, req.Action, target, err)
	}
	if n > MaxDocumentSize {
		return nil, fmt.Errorf("%s: document larger than %d bytes", req.Action, MaxDocumentSize)
	}
	return &Document{URL: resp.Request.URL, ContentType: resp.Header.Get("Content-Type"), Data: buf.Bytes()}, nil
}

func (b *Browser) do(ctx context.Context, req Request) (*http.Response, string, context.CancelFunc, error) {
	target, err := b.Resolve(req.URL)
	if err != nil {
		return nil, req.URL, nil, fmt.Errorf("%s: %w", req.Action, err)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
		if req.Form != nil {
			method = http.MethodPost
		}
	}

	var body io.Reader
	if req.Form != nil {
		body = strings.NewReader(req.Form.Encode())
	}

	stepCtx, cancel := context.WithTimeout(ctx, b.timeout)
	hreq, err := http.NewRequestWithContext(stepCtx, method, target.String(), body)
	if err != nil {
		cancel()
		return nil, target.Path, nil, fmt.Errorf("%s: %w", req.Action, err)
	}
	hreq.Header.Set("User-Agent", b.userAgent)
	hreq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if req.Form != nil {
		hreq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := b.client.Do(hreq)
	if err != nil {
		cancel()
		return nil, target.Path, nil, b.classify(ctx, req.Action, target.Path, err)
	}

	b.logger.Debug(ctx, "navigated",
		"action", req.Action,
		"method", method,
		"path", target.Path,
		"final_path", resp.Request.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if err := statusError(req.Action, target.Path, resp.StatusCode); err != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		cancel()
		return nil, target.Path, nil, err
	}
	return resp, target.Path, cancel, nil
}

func statusError(action, path string, code int) error {
	switch {
	case code >= 500, code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return &common.TransientError{Action: action, URL: path, StatusCode: code}
	case code == http.StatusNotFound:
		return &common.NotFoundError{Kind: "page", ID: path}
	case code == http.StatusUnauthorized:
		return fmt.Errorf("%s %s: status %d: %w", action, path, code, common.ErrSessionExpired)
	case code >= 400:
		return fmt.Errorf("%s %s: unexpected status %d", action, path, code)
	}
	return nil
}

// classify converts transport failures into the common error types. The
// caller's own cancellation wins over everything else.
func (b *Browser) classify(ctx context.Context, action, path string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &common.NavigationTimeoutError{Action: action, URL: path, Timeout: b.timeout}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &common.NavigationTimeoutError{Action: action, URL: path, Timeout: b.timeout}
	}
	return &common.TransientError{Action: action, URL: path, Err: err}
}

// Cookies returns the cookies the jar would send to ref.
func (b *Browser) Cookies(ref string) []*http.Cookie {
	u, err := b.Resolve(ref)
	if err != nil {
		return nil
	}
	return b.jar.Cookies(u)
}

// Reset drops every cookie. Only the session manager calls it.
func (b *Browser) Reset() error {
	return b.jar.reset()
}

// Close releases idle connections.
func (b *Browser) Close() error {
	b.client.CloseIdleConnections()
	return nil
}

type resettableJar struct {
	mu  sync.RWMutex
	jar *cookiejar.Jar
}

func newResettableJar() (*resettableJar, error) {
	j, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &resettableJar{jar: j}, nil
}

func (r *resettableJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.jar.SetCookies(u, cookies)
}

func (r *resettableJar) Cookies(u *url.URL) []*http.Cookie {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.jar.Cookies(u)
}

func (r *resettableJar) reset() error {
	j, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.jar = j
	r.mu.Unlock()
	return nil
}
