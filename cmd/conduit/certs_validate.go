package main

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/spf13/cobra"

	ctls "mercator-hq/conduit/pkg/security/tls"
)

var certsValidateFlags struct {
	certFile string
	keyFile  string
	caFile   string
	client   bool
}

var certsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate certificate and key",
	Long: `Validate a TLS certificate before a listener serves it.

This command checks:
  - the certificate and key pair match (with --key)
  - the chain verifies against the CA bundle (with --ca)
  - the certificate is currently valid
  - the certificate does not expire within 30 days (warning only)

Examples:
  # Validate certificate and key match
  conduit certs validate --cert server.crt --key server.key

  # Validate a client certificate chain
  conduit certs validate --cert client.crt --ca ca.crt --client`,
	RunE: validateCertificate,
}

func init() {
	certsCmd.AddCommand(certsValidateCmd)

	certsValidateCmd.Flags().StringVar(&certsValidateFlags.certFile, "cert", "", "certificate file (required)")
	certsValidateCmd.Flags().StringVar(&certsValidateFlags.keyFile, "key", "", "private key file")
	certsValidateCmd.Flags().StringVar(&certsValidateFlags.caFile, "ca", "", "CA certificate file")
	certsValidateCmd.Flags().BoolVar(&certsValidateFlags.client, "client", false, "verify the chain for client authentication")

	_ = certsValidateCmd.MarkFlagRequired("cert")
}

func validateCertificate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Validating certificate: %s\n\n", certsValidateFlags.certFile)

	certs, err := ctls.LoadCertificates(certsValidateFlags.certFile)
	if err != nil {
		return err
	}
	leaf := certs[0]

	if certsValidateFlags.keyFile != "" {
		if _, err := tls.LoadX509KeyPair(certsValidateFlags.certFile, certsValidateFlags.keyFile); err != nil {
			fmt.Fprintln(out, "✗ Certificate and key do NOT match")
			return err
		}
		fmt.Fprintln(out, "✓ Certificate and key match")
	}

	if certsValidateFlags.caFile != "" {
		if err := verifyAgainst(leaf, certs[1:], certsValidateFlags.caFile); err != nil {
			fmt.Fprintln(out, "✗ Certificate chain invalid")
			return err
		}
		fmt.Fprintln(out, "✓ Certificate chain valid")
	}

	if err := ctls.ValidateX509Certificate(leaf); err != nil {
		fmt.Fprintf(out, "✗ %v\n", err)
		return err
	}
	fmt.Fprintf(out, "✓ Certificate valid until %s\n", leaf.NotAfter.Format("2006-01-02"))

	if _, warning := ctls.CheckCertificateExpiration(leaf); warning != "" {
		fmt.Fprintf(out, "⚠  %s\n", warning)
	}
	return nil
}

func verifyAgainst(leaf *x509.Certificate, intermediates []*x509.Certificate, caFile string) error {
	cas, err := ctls.LoadCertificates(caFile)
	if err != nil {
		return err
	}
	roots := x509.NewCertPool()
	for _, ca := range cas {
		roots.AddCert(ca)
	}
	// Intermediates bundled with the leaf count as trusted for the check.
	for _, c := range intermediates {
		roots.AddCert(c)
	}

	usage := x509.ExtKeyUsageServerAuth
	if certsValidateFlags.client {
		usage = x509.ExtKeyUsageClientAuth
	}
	return ctls.VerifyChain(leaf, roots, usage)
}
