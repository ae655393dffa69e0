// Package buildinfo reports the version stamped in at link time, e.g.
//
//	go build -ldflags "-X github.com/dmitrijs2005/invoicekeeper/internal/buildinfo.buildVersion=v1.2.0"
package buildinfo

import (
	"fmt"
	"io"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

func value(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// Version is the stamped version or "N/A".
func Version() string { return value(buildVersion) }

func PrintBuildData(w io.Writer) {
	fmt.Fprintf(w, "Build version: %s\n", value(buildVersion))
	fmt.Fprintf(w, "Build date: %s\n", value(buildDate))
	fmt.Fprintf(w, "Build commit: %s\n", value(buildCommit))
}
