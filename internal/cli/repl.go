package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for REPL output.
var printlnFn = fmt.Println

// execIface is the command surface the REPL dispatches to.
type execIface interface {
	List(ctx context.Context, args []string) error
	Get(ctx context.Context, args []string) error
	Latest(ctx context.Context, args []string) error
	PDF(ctx context.Context, args []string) error
	Items(ctx context.Context, args []string) error
	Parsed(ctx context.Context, args []string) error
}

const helpText = "Available commands: (l)ist [page] [per_page], get <id>, latest, pdf <id|latest> [file], parsed <id|latest>, items <id>, exit"

// runREPL reads commands from scanner until EOF, exit or quit. Handler
// errors are reported by the handlers themselves.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("ik (%s)> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			printlnFn(helpText)

		case "l", "list":
			_ = a.List(ctx, args)

		case "get":
			_ = a.Get(ctx, args)

		case "latest":
			_ = a.Latest(ctx, args)

		case "pdf":
			_ = a.PDF(ctx, args)

		case "parsed":
			_ = a.Parsed(ctx, args)

		case "items":
			_ = a.Items(ctx, args)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if ctx.Err() != nil {
			return
		}
	}
}
