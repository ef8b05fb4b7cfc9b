package version

import (
	"fmt"
	"runtime"
)

// Set via ldflags at build time:
//
//	go build -ldflags "-X github.com/jswain/chatvault/internal/version.Version=1.0.0
//	  -X github.com/jswain/chatvault/internal/version.Commit=abc123
//	  -X github.com/jswain/chatvault/internal/version.Date=2026-01-01"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info returns a formatted version string.
func Info() string {
	return fmt.Sprintf("chatvault %s (commit: %s, built: %s, %s/%s)",
		Version, shortCommit(Commit), Date, runtime.GOOS, runtime.GOARCH)
}

func shortCommit(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
