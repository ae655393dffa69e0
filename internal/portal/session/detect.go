package session

import (
	"strings"

	"github.com/dmitrijs2005/invoicekeeper/internal/portal/browser"
)

const (
	usernameField = "_username"
	passwordField = "_password"
)

// Field names the portal has used for the one-time code, preferred first.
var challengeFields = []string{"_auth_code", "totp", "code"}

// IsLoginPage reports whether p is the credentials form, which is where the
// portal sends any request made without a valid session.
func IsLoginPage(p *browser.Page, loginPath string) bool {
	if p == nil {
		return false
	}
	if strings.TrimSuffix(p.URL.Path, "/") == strings.TrimSuffix(loginPath, "/") {
		return true
	}
	return p.Has(`input[name="` + passwordField + `"]`)
}

// challengeField returns the name of the one-time code input, or "" when p
// is not a second-factor page.
func challengeField(p *browser.Page) string {
	for _, f := range challengeFields {
		if p.Has(`input[name="` + f + `"]`) {
			return f
		}
	}
	path := strings.ToLower(p.URL.Path)
	if strings.Contains(path, "2fa") || strings.Contains(path, "totp") {
		// Unknown field name on a second-factor URL: take the first text input.
		if name, ok := p.Doc.Find(`form input[type="text"][name], form input[type="number"][name], form input:not([type])[name]`).First().Attr("name"); ok {
			return name
		}
	}
	return ""
}
