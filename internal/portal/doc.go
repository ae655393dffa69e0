// Package portal is the invoice capability built on top of the provider's
// web portal: list, look up, pick the latest, download the PDF and read the
// usage breakdown of invoices.
//
// A Client owns one browser session for the life of the process. Every
// operation runs under the session manager, so an expired session is
// repaired with one re-login, and every page load runs under the shared
// retry policy. Errors come back unchanged from the layer that produced them
// and can be matched with errors.Is against the sentinels in the common
// package.
//
//	c, err := portal.New(creds, portal.Options{BaseURL: "https://accounts.hetzner.com"}, logger)
//	if err != nil { ... }
//	defer c.Close()
//	latest, err := c.GetLatestInvoice(ctx)
package portal
