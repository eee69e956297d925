package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/turboresource/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ╔╦╗┬ ┬┬─┐┌┐ ┌─┐
   ║ │ │├┬┘├┴┐│ │
   ╩ └─┘┴└─└─┘└─┘
`

func main() {
	if err := rootCmd().Execute(); err != nil {
		errors.Fprint(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "turbo",
		Short: "Inspect a cache-bound resource",
		Long: `turbo binds one reactive resource to a cache key and serves it
over HTTP, so cache broadcasts, focus and reconnect refetches and
staleness can be watched and driven by hand.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		serveCmd(),
		versionCmd(),
	)
	return root
}

// printBanner prints the ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}
