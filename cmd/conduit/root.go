package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "conduit",
	Short: "Conduit - broker connection bootstrap",
	Long: `Conduit accepts client connections for a message broker.

For every accepted connection it assembles a fixed pipeline:
  - optional TLS termination, with credentials refreshed in the background
  - optional HAProxy PROXY protocol detection
  - length-prefixed frame decoding with a maximum frame size
  - a backpressure gate that holds reads until the broker is ready`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path (empty for built-in defaults)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
}
