// Package cli provides the interactive invoice console.
//
// The REPL reads one command per line and runs it against an
// service.InvoiceService:
//
//	help                      show available commands
//	list [page] [per_page]    list one listing page
//	get <id>                  show one invoice
//	latest                    show the newest invoice
//	pdf <id|latest> [file]    save an invoice PDF (default <id>.pdf)
//	items <id>                show the usage breakdown of an invoice
//	exit | quit               leave the program
//
// Missing account credentials are prompted for before the portal client is
// built; the password is read without echo.
package cli
