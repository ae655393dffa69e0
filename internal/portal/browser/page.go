package browser

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Page is a loaded HTML document. URL is the final URL after redirects.
type Page struct {
	URL        *url.URL
	StatusCode int
	Doc        *goquery.Document
}

// Resolve turns a link found on the page into an absolute URL.
func (p *Page) Resolve(ref string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return nil, err
	}
	return p.URL.ResolveReference(u), nil
}

// Has reports whether selector matches anything on the page.
func (p *Page) Has(selector string) bool {
	return p.Doc.Find(selector).Length() > 0
}

// Text returns the trimmed text of the first match.
func (p *Page) Text(selector string) string {
	return strings.TrimSpace(p.Doc.Find(selector).First().Text())
}

// Form is a snapshot of an HTML form ready to be submitted.
type Form struct {
	Action *url.URL
	Method string
	Values url.Values
}

// Form extracts the first form matching selector. Named inputs keep their
// current values, so hidden CSRF tokens travel with the submit. Submit
// buttons and unchecked boxes are left out, as a browser would.
func (p *Page) Form(selector string) (*Form, error) {
	sel := p.Doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, fmt.Errorf("form %q not found on %s", selector, p.URL.Path)
	}
	if !sel.Is("form") {
		sel = sel.Closest("form")
		if sel.Length() == 0 {
			return nil, fmt.Errorf("%q on %s is not inside a form", selector, p.URL.Path)
		}
	}

	action, err := p.Resolve(sel.AttrOr("action", ""))
	if err != nil {
		return nil, fmt.Errorf("form action: %w", err)
	}
	method := strings.ToUpper(sel.AttrOr("method", http.MethodPost))

	values := url.Values{}
	sel.Find("input[name], select[name], textarea[name]").Each(func(_ int, in *goquery.Selection) {
		name, _ := in.Attr("name")
		switch strings.ToLower(in.AttrOr("type", "text")) {
		case "submit", "button", "image", "reset", "file":
			return
		case "checkbox", "radio":
			if _, ok := in.Attr("checked"); !ok {
				return
			}
			values.Add(name, in.AttrOr("value", "on"))
			return
		}
		if in.Is("select") {
			values.Add(name, in.Find("option[selected]").AttrOr("value", in.Find("option").First().AttrOr("value", "")))
			return
		}
		if in.Is("textarea") {
			values.Add(name, in.Text())
			return
		}
		values.Add(name, in.AttrOr("value", ""))
	})

	return &Form{Action: action, Method: method, Values: values}, nil
}

// Has reports whether the form carries a field with the given name.
func (f *Form) Has(name string) bool {
	_, ok := f.Values[name]
	return ok
}

// Set overwrites a field value.
func (f *Form) Set(name, value string) {
	f.Values.Set(name, value)
}

// Request turns the form into a navigation request.
func (f *Form) Request(action string) Request {
	if f.Method == http.MethodGet {
		u := *f.Action
		q := u.Query()
		for k, vs := range f.Values {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
		return Request{Action: action, Method: http.MethodGet, URL: u.String()}
	}
	return Request{Action: action, Method: f.Method, URL: f.Action.String(), Form: f.Values}
}
