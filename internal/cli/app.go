package cli

import (
	"bufio"
	"context"
	"io"

	"github.com/dmitrijs2005/invoicekeeper/internal/service"
)

type App struct {
	svc    service.InvoiceService
	status func() string
	in     io.Reader
	out    io.Writer
}

// NewApp builds the console. status reports the session state shown in the
// prompt and may be nil.
func NewApp(svc service.InvoiceService, status func() string, in io.Reader, out io.Writer) *App {
	if status == nil {
		status = func() string { return "ready" }
	}
	return &App{svc: svc, status: status, in: in, out: out}
}

// Run blocks until the user leaves or ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	printlnFn("Invoice console (type 'help' for commands)")
	runREPL(ctx, a, a.status, bufio.NewScanner(a.in))
}
