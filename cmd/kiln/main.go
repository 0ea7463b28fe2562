// Command kiln serves an HTTP application with background tasks and
// shuts both down without losing work.
//
// Usage:
//
//	kiln serve -c kiln.yaml    # Start the server
//	kiln validate -c kiln.yaml # Check the configuration
//	kiln version               # Show version info
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time via ldflags, e.g. -X main.version=1.0.0.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kiln",
		Short: "HTTP server with background tasks and graceful shutdown",
		Long: `kiln serves HTTP on plain, TLS, ACME and redirect listeners while running
periodic background tasks.

On SIGINT or SIGTERM it stops accepting connections, gives in-flight
requests a short grace period, stops scheduling tasks, waits for running
tasks to finish and flushes every store before exiting.

Quick start:
  1. Create a config file (kiln.yaml)
  2. Run: kiln validate -c kiln.yaml
  3. Run: kiln serve -c kiln.yaml`,
		SilenceUsage: true,
	}

	root.AddCommand(newServeCmd(), newValidateCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "kiln %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		// cobra has already printed the error
		os.Exit(1)
	}
}
