package main

import (
	"fmt"
	"os"

	"github.com/tphakala/livesound/cmd"
	"github.com/tphakala/livesound/internal/conf"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	settings := conf.Defaults()

	rootCmd := cmd.RootCommand(&settings, version)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
