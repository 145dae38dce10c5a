package main

import (
	"os"

	"golang-compliance-analytics/cmd/analytics/cmd"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// Set version information
	cmd.SetVersionInfo(version, commit, date)

	os.Exit(cmd.Execute())
}
