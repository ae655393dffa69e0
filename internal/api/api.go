// Package api serves the invoice operations over HTTP as JSON, with PDFs
// streamed as application/pdf.
package api

import (
	"net/http"

	"github.com/dmitrijs2005/invoicekeeper/internal/logging"
	"github.com/dmitrijs2005/invoicekeeper/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type API struct {
	router chi.Router
	svc    service.InvoiceService
	logger logging.Logger
}

func New(svc service.InvoiceService, l logging.Logger) *API {
	if l == nil {
		l = logging.NopLogger{}
	}
	a := &API{
		router: chi.NewRouter(),
		svc:    svc,
		logger: l.With("component", "api"),
	}
	a.RegisterRoutes()
	return a
}

func (a *API) RegisterRoutes() {
	a.router.Use(middleware.RequestID)
	a.router.Use(a.requestLogger)
	a.router.Use(middleware.Recoverer)

	a.router.Get("/healthz", a.handleHealth)

	a.router.Route("/invoices", func(r chi.Router) {
		r.Get("/", a.handleList)
		r.Get("/latest", a.handleLatest)
		r.Get("/latest/pdf", a.handleLatestPDF)
		r.Get("/latest/pdf/parsed", a.handleLatestParsed)
		r.Get("/{id}", a.handleGet)
		r.Get("/{id}/pdf", a.handlePDF)
		r.Get("/{id}/pdf/parsed", a.handlePDFParsed)
		r.Get("/{id}/items", a.handleItems)
	})
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}
