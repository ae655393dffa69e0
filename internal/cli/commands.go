package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/dmitrijs2005/invoicekeeper/internal/filex"
	"github.com/dmitrijs2005/invoicekeeper/internal/invoice"
	"github.com/dmitrijs2005/invoicekeeper/internal/money"
	"github.com/dmitrijs2005/invoicekeeper/internal/service"
)

// writeFile is a test seam for filex.WriteFile.
var writeFile = filex.WriteFile

var errUsage = errors.New("usage")

func (a *App) report(err error) error {
	if errors.Is(err, errUsage) {
		fmt.Fprintln(a.out, err.Error())
		return err
	}
	fmt.Fprintf(a.out, "error: %v\n", err)
	return err
}

func usage(text string) error {
	return fmt.Errorf("%w: %s", errUsage, text)
}

func (a *App) List(ctx context.Context, args []string) error {
	page, perPage := 1, invoice.DefaultPerPage
	var err error
	if len(args) > 0 {
		if page, err = strconv.Atoi(args[0]); err != nil {
			return a.report(usage("list [page] [per_page]"))
		}
	}
	if len(args) > 1 {
		if perPage, err = strconv.Atoi(args[1]); err != nil {
			return a.report(usage("list [page] [per_page]"))
		}
	}

	p := invoice.NewPage(page, perPage)
	records, err := a.svc.ListInvoices(ctx, p.Number, p.PerPage)
	if err != nil {
		return a.report(err)
	}
	if len(records) == 0 {
		fmt.Fprintf(a.out, "no invoices on page %d\n", p.Number)
		return nil
	}
	a.printRecords(records)
	return nil
}

func (a *App) Get(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return a.report(usage("get <id>"))
	}
	rec, err := a.svc.GetInvoice(ctx, args[0])
	if err != nil {
		return a.report(err)
	}
	a.printRecords([]invoice.Record{rec})
	return nil
}

func (a *App) Latest(ctx context.Context, _ []string) error {
	rec, err := a.svc.GetLatestInvoice(ctx)
	if err != nil {
		return a.report(err)
	}
	a.printRecords([]invoice.Record{rec})
	return nil
}

func (a *App) PDF(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return a.report(usage("pdf <id|latest> [file]"))
	}

	var doc *service.Document
	var err error
	if args[0] == "latest" {
		doc, err = a.svc.LatestWithPDF(ctx)
	} else {
		doc, err = a.svc.PDF(ctx, args[0])
	}
	if err != nil {
		return a.report(err)
	}

	path := doc.Record.ID + ".pdf"
	if len(args) == 2 {
		path = args[1]
	}
	if err := writeFile(path, doc.PDF, 0o644); err != nil {
		return a.report(err)
	}

	fmt.Fprintf(a.out, "saved %s (%d bytes)\n", path, len(doc.PDF))
	if doc.ArchiveKey != "" {
		fmt.Fprintf(a.out, "archived as %s\n", doc.ArchiveKey)
	}
	return nil
}

func (a *App) Items(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return a.report(usage("items <id>"))
	}
	items, err := a.svc.GetInvoiceDetails(ctx, args[0])
	if err != nil {
		return a.report(err)
	}
	if len(items) == 0 {
		fmt.Fprintln(a.out, "no line items")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DESCRIPTION\tQTY\tUNIT PRICE\tAMOUNT")
	var total int64
	currency := items[0].Currency
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			it.Description,
			it.Quantity,
			money.Format(money.Amount{Minor: it.UnitPrice, Currency: it.Currency}),
			money.Format(money.Amount{Minor: it.Amount, Currency: it.Currency}),
		)
		total += it.Amount
	}
	fmt.Fprintf(tw, "\t\tTOTAL\t%s\n", money.Format(money.Amount{Minor: total, Currency: currency}))
	return tw.Flush()
}

func (a *App) Parsed(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return a.report(usage("parsed <id|latest>"))
	}

	var sum invoice.DocumentSummary
	if args[0] == "latest" {
		parsed, err := a.svc.LatestParsed(ctx)
		if err != nil {
			return a.report(err)
		}
		sum = parsed.Parsed
	} else {
		var err error
		if sum, err = a.svc.GetInvoicePDFParsed(ctx, args[0]); err != nil {
			return a.report(err)
		}
	}

	amount := func(v *int64) string {
		if v == nil {
			return "-"
		}
		return money.Format(money.Amount{Minor: *v, Currency: sum.Currency})
	}
	text := func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	}
	date := "-"
	if !sum.IssueDate.IsZero() {
		date = sum.IssueDate.Format(invoice.DateLayout)
	}
	vat := "VAT"
	if sum.VATRate != "" {
		vat = "VAT " + sum.VATRate + "%"
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "INVOICE\t%s\n", sum.InvoiceID)
	fmt.Fprintf(tw, "NUMBER\t%s\n", text(sum.InvoiceNumber))
	fmt.Fprintf(tw, "DATE\t%s\n", date)
	fmt.Fprintf(tw, "CUSTOMER\t%s\n", text(sum.CustomerNumber))
	fmt.Fprintf(tw, "CONTRACT\t%s\n", text(sum.Contract))
	fmt.Fprintf(tw, "NET\t%s\n", amount(sum.Net))
	fmt.Fprintf(tw, "%s\t%s\n", vat, amount(sum.VAT))
	fmt.Fprintf(tw, "TOTAL\t%s\n", amount(sum.Total))
	return tw.Flush()
}

func (a *App) printRecords(records []invoice.Record) {
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTOTAL\tSTATUS")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			r.ID,
			r.IssueDateISO(),
			money.Format(money.Amount{Minor: r.Total, Currency: r.Currency}),
			r.Status,
		)
	}
	_ = tw.Flush()
}
