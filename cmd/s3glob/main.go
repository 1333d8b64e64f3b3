// Command s3glob lists and downloads S3 objects selected by Unix-style
// glob patterns applied to object keys.
package main

import (
	"os"

	"github.com/quayside/s3glob/internal/cmd"
)

// version, commit, and buildDate are overridden via -ldflags at release
// build time (e.g. -X main.version=1.2.3).
var (
	version   = "dev"
	commit    = "HEAD"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	os.Exit(cmd.Execute())
}
