package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "realmpaint",
		Short: "Client for shared realm painting servers",
		Long: `realmpaint connects to a realm painting server over a websocket,
keeps a local copy of the realm's layers and peer cursors, and sends
paint, clear, cursor and realm change requests.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		connectCmd(),
		decodeCmd(),
		versionCmd(),
	)
	return rootCmd
}
