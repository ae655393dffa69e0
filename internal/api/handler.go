package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/invoicekeeper/internal/invoice"
	"github.com/dmitrijs2005/invoicekeeper/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type listResponse struct {
	Invoices   []invoice.Record `json:"invoices"`
	Pagination pagination       `json:"pagination"`
}

type pagination struct {
	invoice.Page
	Count int `json:"count"`
}

type itemsResponse struct {
	InvoiceID string             `json:"invoice_id"`
	Items     []invoice.LineItem `json:"items"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		_ = render.Render(w, r, errBadRequest(err.Error()))
		return
	}
	perPage, err := queryInt(r, "per_page", invoice.DefaultPerPage)
	if err != nil {
		_ = render.Render(w, r, errBadRequest(err.Error()))
		return
	}

	p := invoice.NewPage(page, perPage)
	records, err := a.svc.ListInvoices(r.Context(), p.Number, p.PerPage)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if records == nil {
		records = []invoice.Record{}
	}

	render.JSON(w, r, listResponse{
		Invoices:   records,
		Pagination: pagination{Page: p, Count: len(records)},
	})
}

func (a *API) handleLatest(w http.ResponseWriter, r *http.Request) {
	rec, err := a.svc.GetLatestInvoice(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	render.JSON(w, r, rec)
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := a.svc.GetInvoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	render.JSON(w, r, rec)
}

func (a *API) handleItems(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	items, err := a.svc.GetInvoiceDetails(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if items == nil {
		items = []invoice.LineItem{}
	}
	render.JSON(w, r, itemsResponse{InvoiceID: id, Items: items})
}

func (a *API) handlePDF(w http.ResponseWriter, r *http.Request) {
	doc, err := a.svc.PDF(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writePDF(w, doc)
}

func (a *API) handleLatestPDF(w http.ResponseWriter, r *http.Request) {
	doc, err := a.svc.LatestWithPDF(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writePDF(w, doc)
}

func (a *API) handlePDFParsed(w http.ResponseWriter, r *http.Request) {
	sum, err := a.svc.GetInvoicePDFParsed(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	render.JSON(w, r, sum)
}

func (a *API) handleLatestParsed(w http.ResponseWriter, r *http.Request) {
	parsed, err := a.svc.LatestParsed(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	render.JSON(w, r, parsed)
}

func writePDF(w http.ResponseWriter, doc *service.Document) {
	h := w.Header()
	h.Set("Content-Type", "application/pdf")
	h.Set("Content-Length", strconv.Itoa(len(doc.PDF)))
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Record.ID+".pdf"))
	h.Set("X-Invoice-Id", doc.Record.ID)
	if doc.ArchiveKey != "" {
		h.Set("X-Archive-Key", doc.ArchiveKey)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.PDF)
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return n, nil
}
