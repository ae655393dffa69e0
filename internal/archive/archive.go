// Package archive stores downloaded invoice PDFs in S3 compatible object
// storage.
package archive

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/dmitrijs2005/invoicekeeper/internal/invoice"
)

const ContentTypePDF = "application/pdf"

// Archive keeps a copy of an invoice document and returns the key it was
// stored under.
type Archive interface {
	Put(ctx context.Context, rec invoice.Record, pdf []byte) (string, error)
}

// Key returns the object key for rec: <prefix>/<yyyy>/<mm>/<id>.pdf.
func Key(prefix string, rec invoice.Record) string {
	name := strings.NewReplacer("/", "_", "\\", "_").Replace(rec.ID) + ".pdf"
	return path.Join(
		strings.Trim(prefix, "/"),
		fmt.Sprintf("%04d", rec.IssueDate.Year()),
		fmt.Sprintf("%02d", int(rec.IssueDate.Month())),
		name,
	)
}

// Nop discards documents. It is used while no bucket is configured.
type Nop struct{}

func (Nop) Put(context.Context, invoice.Record, []byte) (string, error) { return "", nil }
