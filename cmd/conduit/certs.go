package main

import (
	"github.com/spf13/cobra"
)

var certsCmd = &cobra.Command{
	Use:   "certs",
	Short: "Inspect TLS certificates",
	Long: `Inspect the TLS certificates a listener serves.

Subcommands:
  info     - Display certificate details
  validate - Validate certificate, key and chain

Examples:
  # Display certificate information
  conduit certs info server.crt

  # Validate a certificate against its CA
  conduit certs validate --cert server.crt --key server.key --ca ca.crt`,
}

func init() {
	rootCmd.AddCommand(certsCmd)
}
