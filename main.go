// Package main is the entry point for the osgi-utils command line tool.
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/szhem/osgi-utils/cmd"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cmd.SetVersion(buildVersion())
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildVersion falls back to the module version recorded by go install when
// no ldflags were given.
func buildVersion() string {
	if version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return fmt.Sprintf("%s (commit: %s)", version, commit)
}
