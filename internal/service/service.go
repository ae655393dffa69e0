// Package service exposes the invoice operations to the outer surfaces (HTTP
// API and CLI) and optionally archives downloaded documents.
package service

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/invoicekeeper/internal/archive"
	"github.com/dmitrijs2005/invoicekeeper/internal/invoice"
	"github.com/dmitrijs2005/invoicekeeper/internal/logging"
)

// InvoiceSource is the read-only capability offered by the portal client.
// All methods must honor context cancellation.
type InvoiceSource interface {
	ListInvoices(ctx context.Context, page, perPage int) ([]invoice.Record, error)
	GetInvoice(ctx context.Context, id string) (invoice.Record, error)
	GetLatestInvoice(ctx context.Context) (invoice.Record, error)
	GetInvoicePDF(ctx context.Context, id string) ([]byte, error)
	GetInvoiceDetails(ctx context.Context, id string) ([]invoice.LineItem, error)
	GetInvoicePDFParsed(ctx context.Context, id string) (invoice.DocumentSummary, error)
	Close() error
}

// Document is an invoice together with its PDF.
type Document struct {
	Record invoice.Record
	PDF    []byte

	// ArchiveKey is empty when archiving is disabled or failed.
	ArchiveKey string
}

// ParsedInvoice is a listing record with the figures read from its PDF.
type ParsedInvoice struct {
	Record invoice.Record          `json:"invoice"`
	Parsed invoice.DocumentSummary `json:"parsed"`
}

// InvoiceService adds the composite operations used by the surfaces.
type InvoiceService interface {
	InvoiceSource

	// LatestWithPDF fetches the newest invoice and its PDF. The document is
	// archived when an archive is configured; an archive failure is logged
	// and does not fail the call.
	LatestWithPDF(ctx context.Context) (*Document, error)

	// PDF fetches the document of one invoice and archives it like
	// LatestWithPDF does.
	PDF(ctx context.Context, id string) (*Document, error)

	// LatestParsed fetches the newest invoice and reads its PDF.
	LatestParsed(ctx context.Context) (*ParsedInvoice, error)
}

type invoiceService struct {
	InvoiceSource
	archive archive.Archive
	logger  logging.Logger
}

// NewInvoiceService wraps src. A nil archive disables archiving.
func NewInvoiceService(src InvoiceSource, a archive.Archive, l logging.Logger) InvoiceService {
	if a == nil {
		a = archive.Nop{}
	}
	if l == nil {
		l = logging.NopLogger{}
	}
	return &invoiceService{InvoiceSource: src, archive: a, logger: l.With("component", "service")}
}

func (s *invoiceService) LatestWithPDF(ctx context.Context) (*Document, error) {
	rec, err := s.GetLatestInvoice(ctx)
	if err != nil {
		return nil, err
	}
	return s.document(ctx, rec)
}

func (s *invoiceService) LatestParsed(ctx context.Context) (*ParsedInvoice, error) {
	rec, err := s.GetLatestInvoice(ctx)
	if err != nil {
		return nil, err
	}
	sum, err := s.GetInvoicePDFParsed(ctx, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("invoice %s: %w", rec.ID, err)
	}
	if sum.Total != nil && *sum.Total != rec.Total {
		s.logger.Warn(ctx, "document total differs from listing", "invoice_id", rec.ID,
			"listing_minor", rec.Total, "document_minor", *sum.Total)
	}
	return &ParsedInvoice{Record: rec, Parsed: sum}, nil
}

func (s *invoiceService) PDF(ctx context.Context, id string) (*Document, error) {
	rec, err := s.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.document(ctx, rec)
}

func (s *invoiceService) document(ctx context.Context, rec invoice.Record) (*Document, error) {
	pdf, err := s.GetInvoicePDF(ctx, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("invoice %s: %w", rec.ID, err)
	}

	doc := &Document{Record: rec, PDF: pdf}

	key, err := s.archive.Put(ctx, rec, pdf)
	if err != nil {
		s.logger.Warn(ctx, "archive failed", "invoice_id", rec.ID, "error", err)
		return doc, nil
	}
	doc.ArchiveKey = key
	return doc, nil
}
