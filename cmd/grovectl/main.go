// Command grovectl is the minimal CLI front-end over the garden core
// library: it wires a garden.Garden and exposes its operations as cobra
// subcommands. build and test drive the full
// bootstrap-then-execute pipeline; the remaining subcommands are stubs.
// The full driver (watch mode, TUI, dashboard) lives outside this
// repository.
package main

import (
	"fmt"
	"os"

	"github.com/grove-run/grove/internal/garden"
	"github.com/grove-run/grove/internal/logging"
)

func main() {
	appLogger := logging.New(logging.Options{Level: "info"})

	cacheRoot, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to resolve working directory: %v\n", err)
		os.Exit(1)
	}

	g, err := garden.New(cacheRoot, garden.Options{Logger: appLogger})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build garden: %v\n", err)
		os.Exit(1)
	}

	rootCmd := newRootCmd(g, appLogger)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
