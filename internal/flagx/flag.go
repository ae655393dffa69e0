// Package flagx lets several independent flag sets share one command line.
// Each consumer filters os.Args down to the flags it owns before parsing, so
// a JSON path, a dotenv path and the main settings can be read in separate
// passes without tripping over each other's flags.
package flagx

import (
	"flag"
	"io"
	"strings"
)

// FilterArgs keeps only the allowed flags and their values. Allowed names
// are given with one dash ("-c"); the double-dash spelling ("--c") is
// accepted too, as the flag package does.
//
// Supported forms:
//
//	-c conf.json
//	--config=conf.json
//
// A value is taken from the next argument only when it does not start with
// a dash. The result is never nil.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[canonical(f)] = struct{}{}
	}

	filtered := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			continue
		}

		if name, _, ok := strings.Cut(arg, "="); ok {
			if _, keep := allowed[canonical(name)]; keep {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, keep := allowed[canonical(arg)]; !keep {
			continue
		}
		filtered = append(filtered, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			filtered = append(filtered, args[i+1])
			i++
		}
	}
	return filtered
}

// StringFlag returns the value of a string flag known under any of names
// (without dashes). When the flag repeats, the last value wins; when it is
// absent the result is "".
func StringFlag(args []string, names ...string) string {
	allowed := make([]string, len(names))
	for i, n := range names {
		allowed[i] = "-" + n
	}

	var value string
	fs := flag.NewFlagSet("flagx", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	for _, n := range names {
		fs.StringVar(&value, n, "", "")
	}
	_ = fs.Parse(FilterArgs(args, allowed))
	return value
}

func canonical(name string) string {
	return "-" + strings.TrimLeft(name, "-")
}
