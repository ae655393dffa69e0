package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/dmitrijs2005/invoicekeeper/internal/common"
	"github.com/dmitrijs2005/invoicekeeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBrowser(t *testing.T, h http.Handler, timeout time.Duration) (*Browser, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	b, err := New(Options{BaseURL: srv.URL, Timeout: timeout}, logging.NopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b, srv
}

func TestNew_RejectsRelativeBase(t *testing.T) {
	_, err := New(Options{BaseURL: "/relative"}, nil)
	require.Error(t, err)
}

func TestVisit_FollowsRedirectsAndParses(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/end", http.StatusFound)
	})
	mux.HandleFunc("/end", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><h1> Invoices </h1></body></html>`)
	})
	b, _ := newTestBrowser(t, mux, time.Second)

	var got *Page
	err := b.Visit(context.Background(), Request{Action: "open", URL: "/start"}, func(p *Page) error {
		got = p
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "/end", got.URL.Path)
	assert.Equal(t, http.StatusOK, got.StatusCode)
	assert.Equal(t, "Invoices", got.Text("h1"))
	assert.True(t, got.Has("h1"))
	assert.False(t, got.Has("table"))
}

func TestVisit_CallbackErrorIsReturned(t *testing.T) {
	b, _ := newTestBrowser(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<p>ok</p>`)
	}), time.Second)

	boom := errors.New("boom")
	err := b.Visit(context.Background(), Request{Action: "open", URL: "/"}, func(*Page) error { return boom })
	require.ErrorIs(t, err, boom)
}

func TestVisit_StatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{
			name:   "server error is transient",
			status: http.StatusBadGateway,
			check: func(t *testing.T, err error) {
				var te *common.TransientError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, http.StatusBadGateway, te.StatusCode)
			},
		},
		{
			name:   "rate limit is transient",
			status: http.StatusTooManyRequests,
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, common.ErrTransient)
			},
		},
		{
			name:   "missing page",
			status: http.StatusNotFound,
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, common.ErrNotFound)
			},
		},
		{
			name:   "unauthorized means the session is gone",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, common.ErrSessionExpired)
			},
		},
		{
			name:   "other client errors are plain",
			status: http.StatusTeapot,
			check: func(t *testing.T, err error) {
				require.Error(t, err)
				assert.NotErrorIs(t, err, common.ErrTransient)
				assert.Contains(t, err.Error(), "418")
			},
		},
		{
			name:   "forbidden is plain",
			status: http.StatusForbidden,
			check: func(t *testing.T, err error) {
				require.Error(t, err)
				assert.NotErrorIs(t, err, common.ErrSessionExpired)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBrowser(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}), time.Second)

			called := false
			err := b.Visit(context.Background(), Request{Action: "open", URL: "/x"}, func(*Page) error {
				called = true
				return nil
			})
			tt.check(t, err)
			assert.False(t, called)
		})
	}
}

func TestVisit_Timeout(t *testing.T) {
	release := make(chan struct{})
	b, _ := newTestBrowser(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}), 50*time.Millisecond)
	defer close(release)

	err := b.Visit(context.Background(), Request{Action: "open invoices", URL: "/invoice"}, func(*Page) error { return nil })

	var nt *common.NavigationTimeoutError
	require.ErrorAs(t, err, &nt)
	assert.Equal(t, "open invoices", nt.Action)
	assert.Equal(t, "/invoice", nt.URL)
	assert.Equal(t, 50*time.Millisecond, nt.Timeout)
}

func TestVisit_CallerCancellationIsNotATimeout(t *testing.T) {
	release := make(chan struct{})
	b, _ := newTestBrowser(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}), 5*time.Second)
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	err := b.Visit(ctx, Request{Action: "open", URL: "/"}, func(*Page) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, common.ErrNavigationTimeout)
}

func TestVisit_ConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	b, err := New(Options{BaseURL: base, Timeout: time.Second}, nil)
	require.NoError(t, err)

	err = b.Visit(context.Background(), Request{Action: "open", URL: "/"}, func(*Page) error { return nil })
	require.ErrorIs(t, err, common.ErrTransient)
}

func TestFormPostCarriesCookiesAndFields(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "s1", Path: "/"})
			fmt.Fprint(w, `<form id="login" action="/login_check" method="post">
				<input type="hidden" name="_csrf_token" value="tok">
				<input type="text" name="_username">
				<input type="password" name="_password">
				<input type="checkbox" name="_remember_me">
				<input type="submit" name="go" value="Log in">
			</form>`)
			return
		}
	})
	mux.HandleFunc("/login_check", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		c, err := r.Cookie("sid")
		if err != nil || c.Value != "s1" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprintf(w, `<p id="echo">%s|%s|%s|%t|%t</p>`,
			r.PostForm.Get("_csrf_token"), r.PostForm.Get("_username"), r.PostForm.Get("_password"),
			r.PostForm.Has("go"), r.PostForm.Has("_remember_me"))
	})
	b, srv := newTestBrowser(t, mux, time.Second)
	ctx := context.Background()

	var form *Form
	err := b.Visit(ctx, Request{Action: "open login", URL: "/login"}, func(p *Page) error {
		var err error
		form, err = p.Form("form#login")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/login_check", form.Action.String())
	assert.True(t, form.Has("_username"))
	assert.False(t, form.Has("go"))

	form.Set("_username", "user@example.com")
	form.Set("_password", "pw")

	var echo string
	err = b.Visit(ctx, form.Request("submit login"), func(p *Page) error {
		echo = p.Text("#echo")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "tok|user@example.com|pw|false|false", echo)

	assert.Len(t, b.Cookies("/"), 1)
	require.NoError(t, b.Reset())
	assert.Empty(t, b.Cookies("/"))
}

func TestForm_FromFieldInsideForm(t *testing.T) {
	b, _ := newTestBrowser(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<form method="get" action="search"><input name="_auth_code" value=""></form>`)
	}), time.Second)

	err := b.Visit(context.Background(), Request{Action: "open", URL: "/a/b"}, func(p *Page) error {
		f, err := p.Form(`input[name="_auth_code"]`)
		require.NoError(t, err)
		assert.Equal(t, "/a/search", f.Action.Path)

		f.Set("_auth_code", "123456")
		req := f.Request("submit")
		u, err := url.Parse(req.URL)
		require.NoError(t, err)
		assert.Equal(t, "123456", u.Query().Get("_auth_code"))
		assert.Nil(t, req.Form)

		_, err = p.Form("form#missing")
		assert.Error(t, err)
		return nil
	})
	require.NoError(t, err)
}

func TestDownload(t *testing.T) {
	b, _ := newTestBrowser(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, "%PDF-1.4 body")
	}), time.Second)

	doc, err := b.Download(context.Background(), Request{Action: "download", URL: "/invoice/1/pdf"})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.Equal(t, "%PDF-1.4 body", string(doc.Data))
	assert.Equal(t, "/invoice/1/pdf", doc.URL.Path)
}
