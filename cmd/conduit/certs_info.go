package main

import (
	"crypto/x509"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/conduit/pkg/cli"
	ctls "mercator-hq/conduit/pkg/security/tls"
)

var infoFlags struct {
	format string
}

var certsInfoCmd = &cobra.Command{
	Use:   "info [cert-file]",
	Short: "Display certificate details",
	Long: `Display every certificate of a PEM file.

For each certificate this prints the subject, issuer, validity period,
subject alternative names, key usages and algorithms.

Examples:
  # Display certificate info in text format
  conduit certs info server.crt

  # Display in JSON format
  conduit certs info --format json server.crt`,
	Args: cobra.ExactArgs(1),
	RunE: displayCertInfo,
}

func init() {
	certsCmd.AddCommand(certsInfoCmd)

	certsInfoCmd.Flags().StringVar(&infoFlags.format, "format", "text", "output format: text, json")
}

// certReport is the printable form of one certificate.
type certReport struct {
	*ctls.CertificateInfo
	DaysRemaining int      `json:"days_remaining"`
	Expired       bool     `json:"expired"`
	KeyUsage      []string `json:"key_usage,omitempty"`
	ExtKeyUsage   []string `json:"ext_key_usage,omitempty"`
}

func newCertReport(cert *x509.Certificate) certReport {
	return certReport{
		CertificateInfo: ctls.ExtractCertificateInfo(cert),
		DaysRemaining:   int(time.Until(cert.NotAfter).Hours() / 24),
		Expired:         time.Now().After(cert.NotAfter),
		KeyUsage:        keyUsages(cert.KeyUsage),
		ExtKeyUsage:     extKeyUsages(cert.ExtKeyUsage),
	}
}

func (r certReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Subject: %s\n", r.Subject)
	fmt.Fprintf(&b, "Issuer: %s\n", r.Issuer)
	fmt.Fprintf(&b, "Serial Number: %s\n", r.SerialNumber)
	fmt.Fprintf(&b, "Not Before: %s\n", r.NotBefore.Format(time.RFC3339))
	fmt.Fprintf(&b, "Not After: %s\n", r.NotAfter.Format(time.RFC3339))
	if r.Expired {
		fmt.Fprintf(&b, "Status: ✗ EXPIRED on %s\n", r.NotAfter.Format("2006-01-02"))
	} else {
		fmt.Fprintf(&b, "Status: ✓ Valid (%d days remaining)\n", r.DaysRemaining)
		if r.DaysRemaining < ctls.ExpiryWarningDays {
			fmt.Fprintf(&b, "Warning: ⚠  Certificate expires in %d days\n", r.DaysRemaining)
		}
	}
	for _, san := range r.DNSNames {
		fmt.Fprintf(&b, "DNS: %s\n", san)
	}
	for _, ip := range r.IPAddresses {
		fmt.Fprintf(&b, "IP: %s\n", ip)
	}
	if len(r.KeyUsage) > 0 {
		fmt.Fprintf(&b, "Key Usage: %s\n", strings.Join(r.KeyUsage, ", "))
	}
	if len(r.ExtKeyUsage) > 0 {
		fmt.Fprintf(&b, "Extended Key Usage: %s\n", strings.Join(r.ExtKeyUsage, ", "))
	}
	fmt.Fprintf(&b, "Signature Algorithm: %s\n", r.SignatureAlgorithm)
	fmt.Fprintf(&b, "Public Key Algorithm: %s\n", r.PublicKeyAlgorithm)
	fmt.Fprintf(&b, "Is CA: %v", r.IsCA)
	return b.String()
}

func displayCertInfo(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(infoFlags.format)
	if err != nil {
		return err
	}

	certs, err := ctls.LoadCertificates(args[0])
	if err != nil {
		return err
	}

	reports := make([]certReport, 0, len(certs))
	for _, c := range certs {
		reports = append(reports, newCertReport(c))
	}

	formatter := cli.NewFormatter(format)
	if format == cli.FormatJSON {
		return formatter.FormatTo(cmd.OutOrStdout(), reports)
	}
	for i, r := range reports {
		fmt.Fprintf(cmd.OutOrStdout(), "Certificate %d of %d (%s)\n", i+1, len(reports), args[0])
		if err := formatter.FormatTo(cmd.OutOrStdout(), r); err != nil {
			return err
		}
	}
	return nil
}

var keyUsageNames = []struct {
	bit  x509.KeyUsage
	name string
}{
	{x509.KeyUsageDigitalSignature, "Digital Signature"},
	{x509.KeyUsageContentCommitment, "Content Commitment"},
	{x509.KeyUsageKeyEncipherment, "Key Encipherment"},
	{x509.KeyUsageDataEncipherment, "Data Encipherment"},
	{x509.KeyUsageKeyAgreement, "Key Agreement"},
	{x509.KeyUsageCertSign, "Certificate Sign"},
	{x509.KeyUsageCRLSign, "CRL Sign"},
	{x509.KeyUsageEncipherOnly, "Encipher Only"},
	{x509.KeyUsageDecipherOnly, "Decipher Only"},
}

func keyUsages(usage x509.KeyUsage) []string {
	var usages []string
	for _, u := range keyUsageNames {
		if usage&u.bit != 0 {
			usages = append(usages, u.name)
		}
	}
	return usages
}

func extKeyUsages(usages []x509.ExtKeyUsage) []string {
	var result []string
	for _, usage := range usages {
		result = append(result, extKeyUsage(usage))
	}
	return result
}

func extKeyUsage(usage x509.ExtKeyUsage) string {
	switch usage {
	case x509.ExtKeyUsageAny:
		return "Any"
	case x509.ExtKeyUsageServerAuth:
		return "Server Authentication"
	case x509.ExtKeyUsageClientAuth:
		return "Client Authentication"
	case x509.ExtKeyUsageCodeSigning:
		return "Code Signing"
	case x509.ExtKeyUsageEmailProtection:
		return "Email Protection"
	case x509.ExtKeyUsageTimeStamping:
		return "Time Stamping"
	case x509.ExtKeyUsageOCSPSigning:
		return "OCSP Signing"
	default:
		return fmt.Sprintf("Unknown (%d)", usage)
	}
}
